package profile

import "context"

// Store is the persistence interface for user profiles.
type Store interface {
	// Get retrieves a profile by user ID. The second return is false when
	// no profile exists.
	Get(ctx context.Context, userID string) (*Profile, bool, error)

	// Put creates or replaces a profile keyed by Profile.UserID.
	Put(ctx context.Context, p *Profile) error

	// AppendLocation appends a point to the user's location history,
	// creating a bare profile row if none exists yet.
	AppendLocation(ctx context.Context, userID string, lat, lon float64) error
}
