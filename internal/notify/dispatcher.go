// Package notify fans a confirmed or high-severity incident out to the
// user's emergency contacts, one message per contact, with channel fallback
// and per-contact failure isolation.
package notify

import (
	"context"

	"github.com/linnemanlabs/go-core/log"
	"github.com/linnemanlabs/go-core/xerrors"

	"github.com/linnemanlabs/guardian/internal/incident"
	"github.com/linnemanlabs/guardian/internal/profile"
)

// Contact outcomes reported through the OnContact hook.
const (
	OutcomeSent    = "sent"
	OutcomeSkipped = "skipped"
	OutcomeFailed  = "failed"
)

// Geocoder upgrades coordinates to a human-readable address. Optional.
type Geocoder interface {
	ReverseGeocode(ctx context.Context, lat, lon float64) (string, error)
}

// Dispatcher resolves a user's contacts and sends one message per contact.
type Dispatcher struct {
	profiles  profile.Store
	transport Transport
	geocoder  Geocoder // nil disables address enrichment
	logger    log.Logger

	// OnContact, when set, is called once per contact with the delivery
	// outcome. Wired to metrics by main.
	OnContact func(outcome string)
}

// New creates a dispatcher. The geocoder may be nil.
func New(profiles profile.Store, transport Transport, geocoder Geocoder, logger log.Logger) *Dispatcher {
	if transport == nil {
		panic(xerrors.New("notification transport is required"))
	}
	if logger == nil {
		logger = log.Nop()
	}
	return &Dispatcher{
		profiles:  profiles,
		transport: transport,
		geocoder:  geocoder,
		logger:    logger,
	}
}

// Notify resolves the user's profile fresh and attempts delivery to every
// contact in order. It returns true iff contacts were found and delivery was
// at least attempted; individual transport failures do not change the return
// value. A missing user or empty contact list is a logged no-op.
func (d *Dispatcher) Notify(ctx context.Context, inc *incident.Incident) bool {
	user, ok, err := d.profiles.Get(ctx, inc.UserID)
	if err != nil {
		d.logger.Error(ctx, err, "profile lookup failed, notification dropped",
			"incident_id", inc.ID, "user_id", inc.UserID)
		return false
	}
	if !ok {
		d.logger.Warn(ctx, "no profile for user, notification dropped",
			"incident_id", inc.ID, "user_id", inc.UserID)
		return false
	}
	if len(user.Contacts) == 0 {
		d.logger.Warn(ctx, "user has no emergency contacts configured",
			"incident_id", inc.ID, "user_id", inc.UserID)
		return false
	}

	loc := d.resolveLocation(ctx, inc)
	subject := buildSubject(user)
	body := buildBody(user, inc, loc)

	for _, contact := range user.Contacts {
		d.notifyContact(ctx, inc, contact, subject, body)
	}
	return true
}

// notifyContact attempts delivery to one contact. Failures are terminal for
// this attempt and never propagate to other contacts.
func (d *Dispatcher) notifyContact(ctx context.Context, inc *incident.Incident, contact profile.Contact, subject, body string) {
	to := contact.Email
	if to == "" {
		addr, ok := gatewayAddress(contact.Phone, contact.Carrier)
		if !ok {
			d.logger.Warn(ctx, "contact unreachable: no email and no known carrier gateway",
				"incident_id", inc.ID, "contact", contact.Name, "carrier", contact.Carrier)
			d.contactDone(OutcomeSkipped)
			return
		}
		to = addr
	}

	if err := d.transport.Send(ctx, to, subject, body); err != nil {
		d.logger.Error(ctx, err, "notification send failed",
			"incident_id", inc.ID, "contact", contact.Name, "to", to)
		d.contactDone(OutcomeFailed)
		return
	}

	d.logger.Info(ctx, "notification sent",
		"incident_id", inc.ID, "contact", contact.Name, "to", to)
	d.contactDone(OutcomeSent)
}

func (d *Dispatcher) contactDone(outcome string) {
	if d.OnContact != nil {
		d.OnContact(outcome)
	}
}
