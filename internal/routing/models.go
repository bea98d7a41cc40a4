// Package routing defines the driving-route provider contract used for
// commute estimates and walking-distance proxies.
package routing

import (
	"context"
	"errors"

	"github.com/roomcommute/roomcommute/pkg/geo"
)

// Sentinel errors for routing operations.
var (
	// ErrProviderUnavailable indicates the provider is down or its breaker is open.
	ErrProviderUnavailable = errors.New("routing provider unavailable")
	// ErrNoRoute indicates the provider found no drivable route.
	ErrNoRoute = errors.New("no route found between the given points")
	// ErrRateLimitExceeded indicates the provider quota was hit.
	ErrRateLimitExceeded = errors.New("rate limit exceeded")
	// ErrInvalidCoordinates indicates a point outside the valid range.
	ErrInvalidCoordinates = errors.New("invalid coordinates")
)

// Summary is the distance and duration of one driving route.
type Summary struct {
	DistanceMeters  int
	DurationSeconds int
}

// Origin is a keyed start point for a batched query.
type Origin struct {
	ID    int64
	Point geo.Point
}

// DrivingProvider answers driving-route queries.
type DrivingProvider interface {
	// Route returns the driving summary from origin to dest.
	Route(ctx context.Context, origin, dest geo.Point) (*Summary, error)

	// RouteMany returns summaries keyed by origin ID. Origins the provider
	// could not route are absent from the map.
	RouteMany(ctx context.Context, origins []Origin, dest geo.Point) (map[int64]Summary, error)

	// Name returns the provider identifier for logging and metrics.
	Name() string
}

// Error carries provider details for a failed routing call.
type Error struct {
	Provider string
	Code     string
	Message  string
	Err      error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return e.Provider + ": " + e.Message + ": " + e.Err.Error()
	}
	return e.Provider + ": " + e.Message
}

func (e *Error) Unwrap() error {
	return e.Err
}

// IsRetryable reports whether the failure is transient.
func (e *Error) IsRetryable() bool {
	return errors.Is(e.Err, ErrProviderUnavailable) || errors.Is(e.Err, ErrRateLimitExceeded)
}

// ValidatePoint checks that p is inside WGS84 bounds and not zero.
func ValidatePoint(p geo.Point) error {
	if !p.Valid() || p.Lat < -90 || p.Lat > 90 || p.Lng < -180 || p.Lng > 180 {
		return ErrInvalidCoordinates
	}
	return nil
}
