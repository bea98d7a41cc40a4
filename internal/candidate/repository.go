package candidate

import "context"

// Repository persists candidates. Listing methods return candidates in
// ascending id order, which is the storage order ranking relies on for ties.
type Repository interface {
	// FindByArea returns candidates in the given district and subdistrict.
	FindByArea(ctx context.Context, district, subdistrict string) ([]*Candidate, error)

	// NextPendingGeocode returns the lowest-id PENDING candidate with fewer
	// than maxAttempts geocode attempts, or ErrNotFound.
	NextPendingGeocode(ctx context.Context, maxAttempts int) (*Candidate, error)

	// FindMissingCoordinates returns every candidate whose x or y is null or zero.
	FindMissingCoordinates(ctx context.Context) ([]*Candidate, error)

	// Create stores a new candidate and assigns its ID.
	Create(ctx context.Context, c *Candidate) error

	// UpdateGeocode writes the coordinate and geocode fields of one candidate
	// and counts one attempt. A stored SUCCESS row is never overwritten.
	UpdateGeocode(ctx context.Context, c *Candidate) error

	// UpdateGeocodeBatch writes the coordinate and geocode fields of many
	// candidates in one transaction, with the same SUCCESS guard.
	UpdateGeocodeBatch(ctx context.Context, cs []*Candidate) error
}
