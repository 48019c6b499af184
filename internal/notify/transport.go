package notify

import (
	"context"
	"fmt"
	"net/smtp"
	"strings"

	"github.com/linnemanlabs/go-core/log"
)

// Transport delivers one message to one address. Implementations must be safe
// for concurrent use.
type Transport interface {
	Send(ctx context.Context, to, subject, body string) error
}

// SMTPTransport sends messages through an SMTP relay, which covers both
// direct email and email-to-SMS gateway addresses.
type SMTPTransport struct {
	addr string // host:port
	host string
	from string
	auth smtp.Auth
}

// NewSMTPTransport creates a transport authenticating as user against
// host:port.
func NewSMTPTransport(host string, port int, user, password string) *SMTPTransport {
	return &SMTPTransport{
		addr: fmt.Sprintf("%s:%d", host, port),
		host: host,
		from: user,
		auth: smtp.PlainAuth("", user, password, host),
	}
}

// Send delivers one message. The context is accepted for interface symmetry;
// net/smtp has no context support, so cancellation is bounded by the server's
// own timeouts.
func (t *SMTPTransport) Send(_ context.Context, to, subject, body string) error {
	var msg strings.Builder
	fmt.Fprintf(&msg, "From: %s\r\n", t.from)
	fmt.Fprintf(&msg, "To: %s\r\n", to)
	fmt.Fprintf(&msg, "Subject: %s\r\n", subject)
	msg.WriteString("\r\n")
	msg.WriteString(body)

	if err := smtp.SendMail(t.addr, t.auth, t.from, []string{to}, []byte(msg.String())); err != nil {
		return fmt.Errorf("smtp: send to %s: %w", to, err)
	}
	return nil
}

// LogTransport simulates delivery by logging the message. Default in dev.
type LogTransport struct {
	logger log.Logger
}

// NewLogTransport creates a logging transport.
func NewLogTransport(logger log.Logger) *LogTransport {
	if logger == nil {
		logger = log.Nop()
	}
	return &LogTransport{logger: logger}
}

// Send logs the message instead of delivering it.
func (t *LogTransport) Send(ctx context.Context, to, subject, body string) error {
	t.logger.Info(ctx, "simulated notification",
		"to", to,
		"subject", subject,
		"body", body,
	)
	return nil
}
