// Package pgstore provides a PostgreSQL implementation of incident.Store.
package pgstore

import (
	"context"
	_ "embed"
	"encoding/json"
	"fmt"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/oklog/ulid/v2"

	"github.com/linnemanlabs/guardian/internal/incident"
)

var tracer = otel.Tracer("github.com/linnemanlabs/guardian/internal/incident/pgstore")

//go:embed schema.sql
var schema string

// Store persists incidents in PostgreSQL.
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

const incidentColumns = `id, user_id, created_at, event_at, transcript, latitude, longitude,
	audio_events, sensor_data, assessment, severity, status`

// Insert assigns an ID and creation timestamp and writes the incident.
func (s *Store) Insert(ctx context.Context, inc *incident.Incident) (string, error) {
	ctx, span := tracer.Start(ctx, "pgstore.InsertIncident", trace.WithAttributes(
		attribute.String("db.system", "postgresql"),
		attribute.String("db.operation.name", "INSERT"),
	))
	defer span.End()

	inc.ID = ulid.Make().String()
	inc.CreatedAt = time.Now().UTC()

	events := inc.AudioEvents
	if events == nil {
		events = []string{}
	}
	eventsJSON, err := json.Marshal(events)
	if err != nil {
		return "", fmt.Errorf("marshal audio events: %w", err)
	}
	sensors := inc.SensorData
	if sensors == nil {
		sensors = map[string]float64{}
	}
	sensorsJSON, err := json.Marshal(sensors)
	if err != nil {
		return "", fmt.Errorf("marshal sensor data: %w", err)
	}
	var assessmentJSON []byte
	if inc.Assessment != nil {
		assessmentJSON, err = json.Marshal(inc.Assessment)
		if err != nil {
			return "", fmt.Errorf("marshal assessment: %w", err)
		}
	}

	query := `INSERT INTO incidents (` + incidentColumns + `)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12)`

	_, err = s.pool.Exec(ctx, query,
		inc.ID, inc.UserID, inc.CreatedAt, inc.EventAt, inc.Transcript,
		inc.Latitude, inc.Longitude, eventsJSON, sensorsJSON, assessmentJSON,
		inc.Severity, string(inc.Status),
	)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return "", fmt.Errorf("insert incident: %w", err)
	}
	return inc.ID, nil
}

// Recent returns up to limit incidents, newest first.
func (s *Store) Recent(ctx context.Context, limit int) ([]incident.Incident, error) {
	ctx, span := tracer.Start(ctx, "pgstore.RecentIncidents", trace.WithAttributes(
		attribute.String("db.system", "postgresql"),
		attribute.String("db.operation.name", "SELECT"),
	))
	defer span.End()

	query := `SELECT ` + incidentColumns + ` FROM incidents ORDER BY created_at DESC LIMIT $1`
	rows, err := s.pool.Query(ctx, query, limit)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, fmt.Errorf("query incidents: %w", err)
	}
	defer rows.Close()

	return scanIncidents(rows)
}

// ByUser returns up to limit incidents for one user, newest first.
func (s *Store) ByUser(ctx context.Context, userID string, limit int) ([]incident.Incident, error) {
	ctx, span := tracer.Start(ctx, "pgstore.IncidentsByUser", trace.WithAttributes(
		attribute.String("db.system", "postgresql"),
		attribute.String("db.operation.name", "SELECT"),
	))
	defer span.End()

	query := `SELECT ` + incidentColumns + ` FROM incidents WHERE user_id = $1 ORDER BY created_at DESC LIMIT $2`
	rows, err := s.pool.Query(ctx, query, userID, limit)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, fmt.Errorf("query incidents by user: %w", err)
	}
	defer rows.Close()

	return scanIncidents(rows)
}

func scanIncidents(rows pgx.Rows) ([]incident.Incident, error) {
	var out []incident.Incident
	for rows.Next() {
		var (
			inc            incident.Incident
			status         string
			eventsJSON     []byte
			sensorsJSON    []byte
			assessmentJSON []byte
		)
		err := rows.Scan(
			&inc.ID, &inc.UserID, &inc.CreatedAt, &inc.EventAt, &inc.Transcript,
			&inc.Latitude, &inc.Longitude, &eventsJSON, &sensorsJSON, &assessmentJSON,
			&inc.Severity, &status,
		)
		if err != nil {
			return nil, fmt.Errorf("scan incident: %w", err)
		}
		inc.Status = incident.Status(status)

		if err := json.Unmarshal(eventsJSON, &inc.AudioEvents); err != nil {
			return nil, fmt.Errorf("unmarshal audio events: %w", err)
		}
		if err := json.Unmarshal(sensorsJSON, &inc.SensorData); err != nil {
			return nil, fmt.Errorf("unmarshal sensor data: %w", err)
		}
		if len(assessmentJSON) > 0 {
			inc.Assessment = &incident.Assessment{}
			if err := json.Unmarshal(assessmentJSON, inc.Assessment); err != nil {
				return nil, fmt.Errorf("unmarshal assessment: %w", err)
			}
		}
		out = append(out, inc)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate incidents: %w", err)
	}
	return out, nil
}
