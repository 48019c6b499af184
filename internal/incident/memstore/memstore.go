// Package memstore provides an in-memory implementation of incident.Store.
package memstore

import (
	"context"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"

	"github.com/linnemanlabs/guardian/internal/incident"
)

// Store holds incidents in memory, insertion-ordered. Suitable for
// dev/testing.
type Store struct {
	mu        sync.RWMutex
	incidents []*incident.Incident // oldest first
	byID      map[string]*incident.Incident
}

// New initializes a new in-memory Store.
func New() *Store {
	return &Store{byID: make(map[string]*incident.Incident)}
}

// Insert assigns an ID and creation timestamp and appends a copy.
func (s *Store) Insert(_ context.Context, inc *incident.Incident) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	inc.ID = ulid.Make().String()
	inc.CreatedAt = time.Now().UTC()

	cp := copyIncident(inc)
	s.incidents = append(s.incidents, cp)
	s.byID[cp.ID] = cp
	return cp.ID, nil
}

// Recent returns up to limit incidents, newest first.
func (s *Store) Recent(_ context.Context, limit int) ([]incident.Incident, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]incident.Incident, 0, limit)
	for i := len(s.incidents) - 1; i >= 0 && len(out) < limit; i-- {
		out = append(out, *copyIncident(s.incidents[i]))
	}
	return out, nil
}

// ByUser returns up to limit incidents for one user, newest first.
func (s *Store) ByUser(_ context.Context, userID string, limit int) ([]incident.Incident, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]incident.Incident, 0, limit)
	for i := len(s.incidents) - 1; i >= 0 && len(out) < limit; i-- {
		if s.incidents[i].UserID == userID {
			out = append(out, *copyIncident(s.incidents[i]))
		}
	}
	return out, nil
}

func copyIncident(inc *incident.Incident) *incident.Incident {
	cp := *inc
	cp.AudioEvents = append([]string(nil), inc.AudioEvents...)
	if inc.SensorData != nil {
		cp.SensorData = make(map[string]float64, len(inc.SensorData))
		for k, v := range inc.SensorData {
			cp.SensorData[k] = v
		}
	}
	if inc.Assessment != nil {
		a := *inc.Assessment
		a.RecommendedActions = append([]string(nil), inc.Assessment.RecommendedActions...)
		cp.Assessment = &a
	}
	return &cp
}
