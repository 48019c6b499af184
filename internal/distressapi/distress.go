package distressapi

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/linnemanlabs/guardian/internal/pipeline"
	"github.com/linnemanlabs/guardian/internal/stt"
)

// analyzeRequest is the free-form submission payload. Audio is base64 in
// JSON per encoding/json []byte convention.
type analyzeRequest struct {
	UserID      string             `json:"user_id"`
	EventAt     time.Time          `json:"event_at,omitzero"`
	Transcript  string             `json:"transcript,omitempty"`
	Audio       []byte             `json:"audio,omitempty"`
	AudioEvents []string           `json:"audio_events,omitempty"`
	SensorData  map[string]float64 `json:"sensor_data,omitempty"`
	Latitude    *float64           `json:"latitude,omitempty"`
	Longitude   *float64           `json:"longitude,omitempty"`
}

// triggerRequest is shared by the deterministic trigger endpoints.
type triggerRequest struct {
	UserID    string   `json:"user_id"`
	Latitude  *float64 `json:"latitude,omitempty"`
	Longitude *float64 `json:"longitude,omitempty"`
}

type listenRequest struct {
	UserID    string   `json:"user_id"`
	Audio     []byte   `json:"audio"`
	Latitude  *float64 `json:"latitude,omitempty"`
	Longitude *float64 `json:"longitude,omitempty"`
}

type smsRequest struct {
	UserID    string   `json:"user_id"`
	Text      string   `json:"text"`
	Latitude  *float64 `json:"latitude,omitempty"`
	Longitude *float64 `json:"longitude,omitempty"`
}

func (a *API) handleAnalyze(w http.ResponseWriter, r *http.Request) {
	var req analyzeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, `{"error":"invalid payload"}`, http.StatusBadRequest)
		return
	}
	if req.UserID == "" {
		http.Error(w, `{"error":"user_id is required"}`, http.StatusBadRequest)
		return
	}

	a.submit(w, r, req.UserID, &pipeline.AnalysisSubmission{
		UserID:      req.UserID,
		EventAt:     req.EventAt,
		Kind:        signalKind(&req),
		Transcript:  req.Transcript,
		Audio:       req.Audio,
		AudioEvents: req.AudioEvents,
		SensorData:  req.SensorData,
		Latitude:    req.Latitude,
		Longitude:   req.Longitude,
	})
}

func signalKind(req *analyzeRequest) pipeline.SignalKind {
	switch {
	case len(req.Audio) > 0:
		return pipeline.SignalVoice
	case req.Transcript != "":
		return pipeline.SignalText
	default:
		return pipeline.SignalSensor
	}
}

func (a *API) handlePanic(w http.ResponseWriter, r *http.Request) {
	req, ok := a.decodeTrigger(w, r)
	if !ok {
		return
	}
	a.submit(w, r, req.UserID, &pipeline.PanicTrigger{
		UserID:    req.UserID,
		Latitude:  req.Latitude,
		Longitude: req.Longitude,
	})
}

func (a *API) handleWearable(w http.ResponseWriter, r *http.Request) {
	req, ok := a.decodeTrigger(w, r)
	if !ok {
		return
	}
	a.submit(w, r, req.UserID, &pipeline.WearableTrigger{
		UserID:    req.UserID,
		Latitude:  req.Latitude,
		Longitude: req.Longitude,
	})
}

func (a *API) handleFall(w http.ResponseWriter, r *http.Request) {
	req, ok := a.decodeTrigger(w, r)
	if !ok {
		return
	}
	a.submit(w, r, req.UserID, &pipeline.FallTrigger{
		UserID:    req.UserID,
		Latitude:  req.Latitude,
		Longitude: req.Longitude,
	})
}

func (a *API) handleListen(w http.ResponseWriter, r *http.Request) {
	var req listenRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, `{"error":"invalid payload"}`, http.StatusBadRequest)
		return
	}
	if req.UserID == "" {
		http.Error(w, `{"error":"user_id is required"}`, http.StatusBadRequest)
		return
	}
	a.submit(w, r, req.UserID, &pipeline.ListenClip{
		UserID:    req.UserID,
		Audio:     req.Audio,
		Latitude:  req.Latitude,
		Longitude: req.Longitude,
	})
}

func (a *API) handleSMS(w http.ResponseWriter, r *http.Request) {
	var req smsRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, `{"error":"invalid payload"}`, http.StatusBadRequest)
		return
	}
	if req.UserID == "" {
		http.Error(w, `{"error":"user_id is required"}`, http.StatusBadRequest)
		return
	}
	if req.Text == "" {
		http.Error(w, `{"error":"text is required"}`, http.StatusBadRequest)
		return
	}
	a.submit(w, r, req.UserID, &pipeline.SMSTrigger{
		UserID:    req.UserID,
		Text:      req.Text,
		Latitude:  req.Latitude,
		Longitude: req.Longitude,
	})
}

func (a *API) decodeTrigger(w http.ResponseWriter, r *http.Request) (*triggerRequest, bool) {
	var req triggerRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, `{"error":"invalid payload"}`, http.StatusBadRequest)
		return nil, false
	}
	if req.UserID == "" {
		http.Error(w, `{"error":"user_id is required"}`, http.StatusBadRequest)
		return nil, false
	}
	return &req, true
}

// submit runs one submission through the pipeline and writes the outcome.
func (a *API) submit(w http.ResponseWriter, r *http.Request, userID string, sub pipeline.Submission) {
	span := trace.SpanFromContext(r.Context())
	span.SetAttributes(attribute.String("guardian.user_id", userID))

	out, err := a.pipe.Handle(r.Context(), sub)
	if err != nil {
		if errors.Is(err, pipeline.ErrClientInput) {
			http.Error(w, `{"error":"`+err.Error()+`"}`, http.StatusBadRequest)
			return
		}
		a.logger.Error(r.Context(), err, "failed to handle distress submission", "user_id", userID)
		http.Error(w, `{"error":"internal error"}`, http.StatusInternalServerError)
		return
	}

	if out.IncidentID != "" {
		span.SetAttributes(
			attribute.String("guardian.incident_id", out.IncidentID),
			attribute.Float64("guardian.severity", out.Severity),
		)
	}

	writeJSON(w, http.StatusOK, out)
}

type transcribeRequest struct {
	Audio []byte `json:"audio"`
}

type transcribeResponse struct {
	Transcript string `json:"transcript"`
}

// handleTranscribe exposes transcription on its own. Failures degrade to the
// sentinel transcript rather than an error status so clients can always read
// a transcript field.
func (a *API) handleTranscribe(w http.ResponseWriter, r *http.Request) {
	var req transcribeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, `{"error":"invalid payload"}`, http.StatusBadRequest)
		return
	}
	if len(req.Audio) == 0 {
		http.Error(w, `{"error":"audio is required"}`, http.StatusBadRequest)
		return
	}

	if a.transcriber == nil {
		writeJSON(w, http.StatusOK, transcribeResponse{Transcript: stt.Unavailable})
		return
	}
	text, err := a.transcriber.Transcribe(r.Context(), req.Audio)
	if err != nil {
		a.logger.Warn(r.Context(), "transcription failed", "error", err)
		writeJSON(w, http.StatusOK, transcribeResponse{Transcript: stt.Unavailable})
		return
	}
	writeJSON(w, http.StatusOK, transcribeResponse{Transcript: text})
}
