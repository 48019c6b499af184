// Package memstore provides an in-memory implementation of profile.Store.
package memstore

import (
	"context"
	"sync"
	"time"

	"github.com/linnemanlabs/guardian/internal/profile"
)

// Store holds profiles in memory. Suitable for dev/testing.
type Store struct {
	mu       sync.RWMutex
	profiles map[string]*profile.Profile // user ID -> profile
}

// New initializes a new in-memory Store.
func New() *Store {
	return &Store{profiles: make(map[string]*profile.Profile)}
}

// Get retrieves a profile by user ID. Returns a copy.
func (s *Store) Get(_ context.Context, userID string) (*profile.Profile, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.profiles[userID]
	if !ok {
		return nil, false, nil
	}
	return copyProfile(p), true, nil
}

// Put stores a copy of the profile.
func (s *Store) Put(_ context.Context, p *profile.Profile) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.profiles[p.UserID] = copyProfile(p)
	return nil
}

// AppendLocation appends a location point, creating a bare profile if needed.
func (s *Store) AppendLocation(_ context.Context, userID string, lat, lon float64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.profiles[userID]
	if !ok {
		p = &profile.Profile{UserID: userID}
		s.profiles[userID] = p
	}
	p.LocationHistory = append(p.LocationHistory, profile.LocationPoint{
		Latitude:  lat,
		Longitude: lon,
		At:        time.Now().UTC(),
	})
	return nil
}

func copyProfile(p *profile.Profile) *profile.Profile {
	cp := *p
	cp.Contacts = append([]profile.Contact(nil), p.Contacts...)
	cp.LocationHistory = append([]profile.LocationPoint(nil), p.LocationHistory...)
	return &cp
}
