package cfg

import (
	"errors"
	"flag"
	"fmt"
)

// Notifier modes.
const (
	NotifierMock  = "mock"
	NotifierEmail = "email"
)

// Config adds service-specific configuration fields to the
// common cfg.Registerable and cfg.Validatable interfaces
type Config struct {
	DrainSeconds            int
	ShutdownBudgetSeconds   int
	APIPort                 int
	ClaudeAPIKey            string
	ClaudeModel             string
	ReasoningTimeoutSeconds int
	DatabaseURL             string
	STTEndpoint             string
	VectorEndpoint          string
	GeocodingAPIKey         string
	NotifierMode            string
	SMTPHost                string
	SMTPPort                int
	SMTPUser                string
	SMTPPassword            string
	DispatchWorkers         int
	DispatchQueueDepth      int
}

// RegisterFlags binds Config fields to the given FlagSet with defaults inline
func (c *Config) RegisterFlags(fs *flag.FlagSet) {
	fs.IntVar(&c.DrainSeconds, "drain-seconds", 60, "seconds to wait for in-flight requests to drain before shutdown (1..300)")
	fs.IntVar(&c.ShutdownBudgetSeconds, "shutdown-budget-seconds", 90, "total seconds for component shutdown after drain (1..300)")
	fs.IntVar(&c.APIPort, "http-port", 8080, "API listen TCP port (1..65535)")
	fs.StringVar(&c.ClaudeAPIKey, "claude-api-key", "", "API key for the Claude reasoning provider (empty = rule-based assessment only)")
	fs.StringVar(&c.ClaudeModel, "claude-model", "claude-sonnet-4-20250514", "Claude model to use")
	fs.IntVar(&c.ReasoningTimeoutSeconds, "reasoning-timeout-seconds", 30, "per-call timeout for the reasoning provider (1..120)")
	fs.StringVar(&c.DatabaseURL, "database-url", "", "PostgreSQL connection URL (empty = in-memory stores)")
	fs.StringVar(&c.STTEndpoint, "stt-endpoint", "", "speech-to-text service base URL (empty = transcription unavailable)")
	fs.StringVar(&c.VectorEndpoint, "vector-endpoint", "", "vector index base URL for incident similarity (empty = disabled)")
	fs.StringVar(&c.GeocodingAPIKey, "geocoding-api-key", "", "Google Geocoding API key for address enrichment (empty = coordinates only)")
	fs.StringVar(&c.NotifierMode, "notifier-mode", NotifierMock, "notification transport: mock (log only) or email (SMTP)")
	fs.StringVar(&c.SMTPHost, "smtp-host", "", "SMTP server host (required when notifier-mode=email)")
	fs.IntVar(&c.SMTPPort, "smtp-port", 587, "SMTP server port")
	fs.StringVar(&c.SMTPUser, "smtp-user", "", "SMTP username and sender address")
	fs.StringVar(&c.SMTPPassword, "smtp-password", "", "SMTP password")
	fs.IntVar(&c.DispatchWorkers, "dispatch-workers", 4, "background dispatch worker count (1..64)")
	fs.IntVar(&c.DispatchQueueDepth, "dispatch-queue-depth", 256, "background dispatch queue capacity (1..10000)")
}

// Validate checks all configuration fields for correctness.
// It returns an error if any field is invalid, or nil if all fields are valid.
func (c *Config) Validate() error {
	var errs []error

	// Drain and shutdown budgets
	if c.DrainSeconds <= 0 || c.DrainSeconds > 300 {
		errs = append(errs, fmt.Errorf("invalid DRAIN_SECONDS %d (must be 1..300)", c.DrainSeconds))
	}
	if c.ShutdownBudgetSeconds <= 0 || c.ShutdownBudgetSeconds > 300 {
		errs = append(errs, fmt.Errorf("invalid SHUTDOWN_BUDGET_SECONDS %d (must be 1..300)", c.ShutdownBudgetSeconds))
	}

	// Shutdown budget must be greater than drain time
	if c.ShutdownBudgetSeconds <= c.DrainSeconds {
		errs = append(errs, fmt.Errorf("SHUTDOWN_BUDGET_SECONDS %d must be greater than DRAIN_SECONDS %d", c.ShutdownBudgetSeconds, c.DrainSeconds))
	}

	// API port must be valid TCP port number
	if c.APIPort <= 0 || c.APIPort > 65535 {
		errs = append(errs, fmt.Errorf("invalid HTTP_PORT %d (must be 1..65535)", c.APIPort))
	}

	// The reasoning provider is optional, but a key without a model is a
	// misconfiguration
	if c.ClaudeAPIKey != "" && c.ClaudeModel == "" {
		errs = append(errs, errors.New("CLAUDE_MODEL is required when CLAUDE_API_KEY is set"))
	}
	if c.ReasoningTimeoutSeconds <= 0 || c.ReasoningTimeoutSeconds > 120 {
		errs = append(errs, fmt.Errorf("invalid REASONING_TIMEOUT_SECONDS %d (must be 1..120)", c.ReasoningTimeoutSeconds))
	}

	switch c.NotifierMode {
	case NotifierMock:
	case NotifierEmail:
		if c.SMTPHost == "" {
			errs = append(errs, errors.New("SMTP_HOST is required when NOTIFIER_MODE=email"))
		}
		if c.SMTPUser == "" {
			errs = append(errs, errors.New("SMTP_USER is required when NOTIFIER_MODE=email"))
		}
		if c.SMTPPassword == "" {
			errs = append(errs, errors.New("SMTP_PASSWORD is required when NOTIFIER_MODE=email"))
		}
		if c.SMTPPort <= 0 || c.SMTPPort > 65535 {
			errs = append(errs, fmt.Errorf("invalid SMTP_PORT %d (must be 1..65535)", c.SMTPPort))
		}
	default:
		errs = append(errs, fmt.Errorf("invalid NOTIFIER_MODE %q (must be mock or email)", c.NotifierMode))
	}

	if c.DispatchWorkers <= 0 || c.DispatchWorkers > 64 {
		errs = append(errs, fmt.Errorf("invalid DISPATCH_WORKERS %d (must be 1..64)", c.DispatchWorkers))
	}
	if c.DispatchQueueDepth <= 0 || c.DispatchQueueDepth > 10000 {
		errs = append(errs, fmt.Errorf("invalid DISPATCH_QUEUE_DEPTH %d (must be 1..10000)", c.DispatchQueueDepth))
	}

	if len(errs) > 0 {
		return errors.Join(errs...)
	}
	return nil
}
