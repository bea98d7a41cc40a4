// Package geocode backfills candidate coordinates from a geocoding provider.
//
// Two paths exist. Tick handles one PENDING candidate per call and leaves it
// PENDING on failure so it is retried until MaxAttempts is reached. Sweep
// walks every candidate without coordinates in sequence and marks failures
// FAILED, flushing writes in batches.
package geocode

import (
	"context"
	"errors"

	"github.com/roomcommute/roomcommute/pkg/geo"
)

var (
	// ErrNoMatch is returned by a Geocoder when the address resolves to nothing.
	ErrNoMatch = errors.New("address did not match any location")

	// ErrEmptyAddress is returned when a candidate has no usable address.
	ErrEmptyAddress = errors.New("candidate has no address")
)

// Geocoder resolves a free-text address to a coordinate.
type Geocoder interface {
	Geocode(ctx context.Context, address string) (geo.Point, error)
}

// sourced is implemented by geocoders that name the tag recorded on success.
type sourced interface {
	GeocoderSource() string
}
