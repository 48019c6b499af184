package distressapi

import (
	"net/http"
	"strconv"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/go-chi/chi/v5"
	"github.com/linnemanlabs/guardian/internal/incident"
)

const (
	defaultIncidentLimit = 50
	maxIncidentLimit     = 200
)

func (a *API) handleRecentIncidents(w http.ResponseWriter, r *http.Request) {
	limit := parseLimit(r.URL.Query().Get("limit"))

	incidents, err := a.incidents.Recent(r.Context(), limit)
	if err != nil {
		a.logger.Error(r.Context(), err, "failed to list incidents")
		http.Error(w, `{"error":"internal error"}`, http.StatusInternalServerError)
		return
	}
	if incidents == nil {
		incidents = []incident.Incident{}
	}

	writeJSON(w, http.StatusOK, map[string]any{"incidents": incidents})
}

func (a *API) handleUserIncidents(w http.ResponseWriter, r *http.Request) {
	userID := chi.URLParam(r, "userID")
	limit := parseLimit(r.URL.Query().Get("limit"))

	span := trace.SpanFromContext(r.Context())
	span.SetAttributes(attribute.String("guardian.user_id", userID))

	incidents, err := a.incidents.ByUser(r.Context(), userID, limit)
	if err != nil {
		a.logger.Error(r.Context(), err, "failed to list incidents", "user_id", userID)
		http.Error(w, `{"error":"internal error"}`, http.StatusInternalServerError)
		return
	}
	if incidents == nil {
		incidents = []incident.Incident{}
	}

	writeJSON(w, http.StatusOK, map[string]any{"incidents": incidents})
}

func parseLimit(raw string) int {
	if raw == "" {
		return defaultIncidentLimit
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n <= 0 {
		return defaultIncidentLimit
	}
	if n > maxIncidentLimit {
		return maxIncidentLimit
	}
	return n
}
