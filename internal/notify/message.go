package notify

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/linnemanlabs/guardian/internal/incident"
	"github.com/linnemanlabs/guardian/internal/profile"
)

const (
	maxTranscriptLen = 1000
	geocodeTimeout   = 5 * time.Second
)

// locationRef describes where the incident happened, at whatever fidelity is
// available.
type locationRef struct {
	mapsURL string // empty when coordinates are absent
	address string // empty unless geocoding succeeded
}

// resolveLocation builds the location reference for an incident. Geocoding is
// best-effort enrichment; any failure falls back to the coordinate link.
func (d *Dispatcher) resolveLocation(ctx context.Context, inc *incident.Incident) locationRef {
	if inc.Latitude == nil || inc.Longitude == nil {
		return locationRef{}
	}
	ref := locationRef{
		mapsURL: fmt.Sprintf("https://www.google.com/maps?q=%f,%f", *inc.Latitude, *inc.Longitude),
	}
	if d.geocoder == nil {
		return ref
	}

	gctx, cancel := context.WithTimeout(ctx, geocodeTimeout)
	defer cancel()

	addr, err := d.geocoder.ReverseGeocode(gctx, *inc.Latitude, *inc.Longitude)
	if err != nil {
		d.logger.Warn(ctx, "reverse geocoding failed, using coordinate link",
			"incident_id", inc.ID, "error", err)
		return ref
	}
	ref.address = addr
	return ref
}

func buildSubject(user *profile.Profile) string {
	name := user.Name
	if name == "" {
		name = "N/A"
	}
	return "Distress Alert from " + name
}

func buildBody(user *profile.Profile, inc *incident.Incident, loc locationRef) string {
	name := user.Name
	if name == "" {
		name = "N/A"
	}
	transcript := inc.Transcript
	if transcript == "" {
		transcript = "No transcript available."
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Distress alert from %s.\n", name)
	fmt.Fprintf(&b, "Severity: %.2f\n", inc.Severity)
	fmt.Fprintf(&b, "Message: %s\n", truncate(transcript, maxTranscriptLen))
	if inc.Assessment != nil && inc.Assessment.Reason != "" {
		fmt.Fprintf(&b, "Assessment: %s\n", inc.Assessment.Reason)
	}
	b.WriteString("\n--- LOCATION DETAILS ---\n")
	if loc.mapsURL == "" {
		b.WriteString("Location not available.\n")
	} else {
		fmt.Fprintf(&b, "Exact Location (Google Maps): %s\n", loc.mapsURL)
		if loc.address != "" {
			fmt.Fprintf(&b, "Nearest Address: %s\n", loc.address)
		}
	}
	return b.String()
}

func truncate(s string, limit int) string {
	if len(s) <= limit {
		return s
	}
	return s[:limit-3] + "..."
}
