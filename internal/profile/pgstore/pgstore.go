// Package pgstore provides a PostgreSQL implementation of profile.Store.
package pgstore

import (
	"context"
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/linnemanlabs/guardian/internal/profile"
)

var tracer = otel.Tracer("github.com/linnemanlabs/guardian/internal/profile/pgstore")

//go:embed schema.sql
var schema string

// Store persists user profiles in PostgreSQL.
type Store struct {
	pool *pgxpool.Pool
}

// New applies the schema and returns a ready Store. The pool is owned by the
// caller and is not closed by the store.
func New(ctx context.Context, pool *pgxpool.Pool) (*Store, error) {
	if _, err := pool.Exec(ctx, schema); err != nil {
		return nil, fmt.Errorf("apply schema: %w", err)
	}
	return &Store{pool: pool}, nil
}

// Get retrieves a profile by user ID.
func (s *Store) Get(ctx context.Context, userID string) (*profile.Profile, bool, error) {
	ctx, span := tracer.Start(ctx, "pgstore.GetProfile", trace.WithAttributes(
		attribute.String("db.system", "postgresql"),
		attribute.String("db.operation.name", "SELECT"),
	))
	defer span.End()

	query := `SELECT user_id, name, age, phone, email, medical_history, consent, contacts, location_history
		FROM profiles WHERE user_id = $1`

	var (
		p            profile.Profile
		consentJSON  []byte
		contactsJSON []byte
		historyJSON  []byte
	)
	err := s.pool.QueryRow(ctx, query, userID).Scan(
		&p.UserID, &p.Name, &p.Age, &p.Phone, &p.Email, &p.MedicalHistory,
		&consentJSON, &contactsJSON, &historyJSON,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, false, nil
		}
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, false, fmt.Errorf("scan profile: %w", err)
	}

	if err := json.Unmarshal(consentJSON, &p.Consent); err != nil {
		return nil, false, fmt.Errorf("unmarshal consent: %w", err)
	}
	if err := json.Unmarshal(contactsJSON, &p.Contacts); err != nil {
		return nil, false, fmt.Errorf("unmarshal contacts: %w", err)
	}
	if err := json.Unmarshal(historyJSON, &p.LocationHistory); err != nil {
		return nil, false, fmt.Errorf("unmarshal location history: %w", err)
	}

	return &p, true, nil
}

// Put creates or replaces a profile.
func (s *Store) Put(ctx context.Context, p *profile.Profile) error {
	ctx, span := tracer.Start(ctx, "pgstore.PutProfile", trace.WithAttributes(
		attribute.String("db.system", "postgresql"),
		attribute.String("db.operation.name", "UPSERT"),
	))
	defer span.End()

	consentJSON, err := json.Marshal(p.Consent)
	if err != nil {
		return fmt.Errorf("marshal consent: %w", err)
	}
	contacts := p.Contacts
	if contacts == nil {
		contacts = []profile.Contact{}
	}
	contactsJSON, err := json.Marshal(contacts)
	if err != nil {
		return fmt.Errorf("marshal contacts: %w", err)
	}
	history := p.LocationHistory
	if history == nil {
		history = []profile.LocationPoint{}
	}
	historyJSON, err := json.Marshal(history)
	if err != nil {
		return fmt.Errorf("marshal location history: %w", err)
	}

	query := `INSERT INTO profiles (
		user_id, name, age, phone, email, medical_history, consent, contacts, location_history, updated_at
	) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10)
	ON CONFLICT (user_id) DO UPDATE SET
		name             = EXCLUDED.name,
		age              = EXCLUDED.age,
		phone            = EXCLUDED.phone,
		email            = EXCLUDED.email,
		medical_history  = EXCLUDED.medical_history,
		consent          = EXCLUDED.consent,
		contacts         = EXCLUDED.contacts,
		location_history = EXCLUDED.location_history,
		updated_at       = EXCLUDED.updated_at`

	_, err = s.pool.Exec(ctx, query,
		p.UserID, p.Name, p.Age, p.Phone, p.Email, p.MedicalHistory,
		consentJSON, contactsJSON, historyJSON, time.Now().UTC(),
	)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return fmt.Errorf("upsert profile: %w", err)
	}
	return nil
}

// AppendLocation appends a location point, creating a bare row if needed.
func (s *Store) AppendLocation(ctx context.Context, userID string, lat, lon float64) error {
	ctx, span := tracer.Start(ctx, "pgstore.AppendLocation", trace.WithAttributes(
		attribute.String("db.system", "postgresql"),
		attribute.String("db.operation.name", "UPSERT"),
	))
	defer span.End()

	pointJSON, err := json.Marshal(profile.LocationPoint{
		Latitude:  lat,
		Longitude: lon,
		At:        time.Now().UTC(),
	})
	if err != nil {
		return fmt.Errorf("marshal location point: %w", err)
	}

	query := `INSERT INTO profiles (user_id, location_history)
		VALUES ($1, jsonb_build_array($2::jsonb))
	ON CONFLICT (user_id) DO UPDATE SET
		location_history = profiles.location_history || $2::jsonb,
		updated_at       = now()`

	if _, err := s.pool.Exec(ctx, query, userID, pointJSON); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return fmt.Errorf("append location: %w", err)
	}
	return nil
}
