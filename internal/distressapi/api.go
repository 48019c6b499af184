// Package distressapi exposes the distress pipeline, incident queries, and
// profile management over HTTP.
package distressapi

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/linnemanlabs/go-core/log"
	"github.com/linnemanlabs/go-core/xerrors"

	"github.com/linnemanlabs/guardian/internal/incident"
	"github.com/linnemanlabs/guardian/internal/pipeline"
	"github.com/linnemanlabs/guardian/internal/profile"
)

// Pipeline defines the distress-handling operations the API needs.
type Pipeline interface {
	Handle(ctx context.Context, sub pipeline.Submission) (*pipeline.Outcome, error)
}

// Transcriber converts raw audio to text for the standalone transcription
// endpoint.
type Transcriber interface {
	Transcribe(ctx context.Context, audio []byte) (string, error)
}

// API holds dependencies for HTTP handlers.
type API struct {
	logger      log.Logger
	pipe        Pipeline
	incidents   incident.Store
	profiles    profile.Store
	transcriber Transcriber // nil means transcription unavailable
}

// New creates a new API handler. transcriber may be nil.
func New(logger log.Logger, pipe Pipeline, incidents incident.Store, profiles profile.Store, transcriber Transcriber) *API {
	if logger == nil {
		logger = log.Nop()
	}
	if pipe == nil {
		panic(xerrors.New("pipeline is required"))
	}
	if incidents == nil {
		panic(xerrors.New("incident store is required"))
	}
	if profiles == nil {
		panic(xerrors.New("profile store is required"))
	}
	return &API{
		logger:      logger,
		pipe:        pipe,
		incidents:   incidents,
		profiles:    profiles,
		transcriber: transcriber,
	}
}

// RegisterRoutes attaches API endpoints to the router.
func (a *API) RegisterRoutes(r chi.Router) {
	r.Route("/api/v1", func(r chi.Router) {
		r.Route("/distress", func(r chi.Router) {
			r.Post("/analyze", a.handleAnalyze)
			r.Post("/panic", a.handlePanic)
			r.Post("/wearable", a.handleWearable)
			r.Post("/fall", a.handleFall)
			r.Post("/listen", a.handleListen)
			r.Post("/sms", a.handleSMS)
		})
		r.Get("/incidents", a.handleRecentIncidents)
		r.Get("/incidents/user/{userID}", a.handleUserIncidents)
		r.Get("/profile/{userID}", a.handleGetProfile)
		r.Put("/profile/{userID}", a.handlePutProfile)
		r.Post("/location", a.handleAppendLocation)
		r.Post("/stt/transcribe", a.handleTranscribe)
	})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
