package pipeline

import (
	"time"

	"github.com/linnemanlabs/guardian/internal/incident"
)

// SignalKind classifies how a free-form submission was captured.
type SignalKind string

const (
	SignalVoice  SignalKind = "voice"
	SignalText   SignalKind = "text"
	SignalSensor SignalKind = "sensor"
	SignalButton SignalKind = "button"
)

// Submission is the closed set of trigger variants the pipeline handles.
// Each variant carries only its relevant fields.
type Submission interface {
	trigger() string
}

// AnalysisSubmission is a free-form voice/text/sensor event that needs
// urgency assessment.
type AnalysisSubmission struct {
	UserID string
	// EventAt defaults to submission time when zero.
	EventAt     time.Time
	Kind        SignalKind
	Transcript  string
	AudioEvents []string
	SensorData  map[string]float64
	Latitude    *float64
	Longitude   *float64
	// Audio is transcribed when Transcript is absent.
	Audio []byte
}

// PanicTrigger is the hardware panic button.
type PanicTrigger struct {
	UserID    string
	Latitude  *float64
	Longitude *float64
}

// WearableTrigger is a panic activation from a paired wearable.
type WearableTrigger struct {
	UserID    string
	Latitude  *float64
	Longitude *float64
}

// FallTrigger is automatic fall detection.
type FallTrigger struct {
	UserID    string
	Latitude  *float64
	Longitude *float64
}

// ListenClip is one short rolling audio clip from phrase-triggered listening.
type ListenClip struct {
	UserID    string
	Audio     []byte
	Latitude  *float64
	Longitude *float64
}

// SMSTrigger is a distress SMS forwarded into the pipeline.
type SMSTrigger struct {
	UserID    string
	Text      string
	Latitude  *float64
	Longitude *float64
}

func (*AnalysisSubmission) trigger() string { return "analyze" }
func (*PanicTrigger) trigger() string       { return "panic" }
func (*WearableTrigger) trigger() string    { return "wearable" }
func (*FallTrigger) trigger() string        { return "fall" }
func (*ListenClip) trigger() string         { return "listen" }
func (*SMSTrigger) trigger() string         { return "sms" }

// Fixed policy for deterministic triggers: sentinel transcripts and
// severities. These bypass assessment entirely.
const (
	panicTranscript    = "PANIC BUTTON ACTIVATED"
	wearableTranscript = "WEARABLE PANIC ACTIVATED"
	fallTranscript     = "FALL DETECTED"
	smsSeverity        = 1.0
	panicSeverity      = 1.0
	wearableSeverity   = 1.0
	fallSeverity       = 0.9
	listenSeverity     = 0.9
)

// Outcome is the caller-visible result of handling one submission.
type Outcome struct {
	IncidentID string               `json:"incident_id,omitempty"`
	Severity   float64              `json:"severity"`
	Status     incident.Status      `json:"status,omitempty"`
	Assessment *incident.Assessment `json:"assessment,omitempty"`
	// Detected reports phrase detection for listen clips.
	Detected bool   `json:"detected,omitempty"`
	Phrase   string `json:"phrase,omitempty"`
}
