package incident

import "time"

// Status tracks whether an incident still needs review.
type Status string

const (
	// StatusPending means assessed but not yet confirmed by a reviewer.
	StatusPending Status = "pending"

	// StatusConfirmed means distress is established, either by a
	// deterministic trigger or by phrase detection.
	StatusConfirmed Status = "confirmed"
)

// Assessment is the urgency assessor's output, embedded in an Incident. It is
// never persisted on its own.
type Assessment struct {
	// Urgency is a severity score in [0, 1].
	Urgency float64 `json:"urgency"`
	Reason  string  `json:"reason"`
	// RecommendedActions is ordered; the first entry is the primary action.
	RecommendedActions []string `json:"recommended_actions,omitempty"`
}

// Incident is the durable record of one assessed or triggered distress event.
// Severity and Status are set atomically at creation; status transitions
// happen only through out-of-scope review tooling.
type Incident struct {
	ID        string    `json:"id"`
	UserID    string    `json:"user_id"`
	CreatedAt time.Time `json:"created_at"`
	// EventAt may differ from CreatedAt for replayed or batched submissions.
	EventAt     time.Time          `json:"event_at"`
	Transcript  string             `json:"transcript"`
	Latitude    *float64           `json:"latitude,omitempty"`
	Longitude   *float64           `json:"longitude,omitempty"`
	AudioEvents []string           `json:"audio_events,omitempty"`
	SensorData  map[string]float64 `json:"sensor_data,omitempty"`
	// Assessment is nil for deterministic triggers that bypass assessment.
	Assessment *Assessment `json:"assessment,omitempty"`
	// Severity is the authoritative score: copied from the assessment when
	// present, a fixed policy constant otherwise.
	Severity float64 `json:"severity"`
	Status   Status  `json:"status"`
}
