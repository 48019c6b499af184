package incident

import "context"

// Store is the append-only persistence interface for incidents. No update or
// delete operations are part of the pipeline's responsibility.
type Store interface {
	// Insert persists the incident, assigning its ID and CreatedAt. No
	// other caller-supplied fields are mutated. Returns the assigned ID.
	Insert(ctx context.Context, inc *Incident) (string, error)

	// Recent returns up to limit incidents, newest first.
	Recent(ctx context.Context, limit int) ([]Incident, error)

	// ByUser returns up to limit incidents for one user, newest first.
	ByUser(ctx context.Context, userID string, limit int) ([]Incident, error)
}
