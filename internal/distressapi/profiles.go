package distressapi

import (
	"encoding/json"
	"net/http"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/go-chi/chi/v5"
	"github.com/linnemanlabs/guardian/internal/profile"
)

func (a *API) handleGetProfile(w http.ResponseWriter, r *http.Request) {
	userID := chi.URLParam(r, "userID")

	span := trace.SpanFromContext(r.Context())
	span.SetAttributes(attribute.String("guardian.user_id", userID))

	p, ok, err := a.profiles.Get(r.Context(), userID)
	if err != nil {
		a.logger.Error(r.Context(), err, "failed to get profile", "user_id", userID)
		http.Error(w, `{"error":"internal error"}`, http.StatusInternalServerError)
		return
	}
	if !ok {
		http.Error(w, `{"error":"not found"}`, http.StatusNotFound)
		return
	}

	writeJSON(w, http.StatusOK, p)
}

func (a *API) handlePutProfile(w http.ResponseWriter, r *http.Request) {
	userID := chi.URLParam(r, "userID")

	var p profile.Profile
	if err := json.NewDecoder(r.Body).Decode(&p); err != nil {
		http.Error(w, `{"error":"invalid payload"}`, http.StatusBadRequest)
		return
	}
	// The path is authoritative for identity.
	p.UserID = userID

	if err := a.profiles.Put(r.Context(), &p); err != nil {
		a.logger.Error(r.Context(), err, "failed to store profile", "user_id", userID)
		http.Error(w, `{"error":"internal error"}`, http.StatusInternalServerError)
		return
	}

	writeJSON(w, http.StatusOK, &p)
}

type locationRequest struct {
	UserID    string  `json:"user_id"`
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
}

func (a *API) handleAppendLocation(w http.ResponseWriter, r *http.Request) {
	var req locationRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, `{"error":"invalid payload"}`, http.StatusBadRequest)
		return
	}
	if req.UserID == "" {
		http.Error(w, `{"error":"user_id is required"}`, http.StatusBadRequest)
		return
	}

	if err := a.profiles.AppendLocation(r.Context(), req.UserID, req.Latitude, req.Longitude); err != nil {
		a.logger.Error(r.Context(), err, "failed to append location", "user_id", req.UserID)
		http.Error(w, `{"error":"internal error"}`, http.StatusInternalServerError)
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{"status": "recorded"})
}
