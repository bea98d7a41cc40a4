// Package candidate holds rentable units, their geocode state and persistence.
package candidate

import (
	"errors"
	"strings"
	"time"

	"github.com/roomcommute/roomcommute/pkg/geo"
)

// ErrNotFound is returned when no candidate matches a lookup.
var ErrNotFound = errors.New("candidate not found")

// GeocodeStatus tracks where a candidate is in the coordinate backfill.
type GeocodeStatus string

const (
	GeocodeStatusPending GeocodeStatus = "PENDING"
	GeocodeStatusSuccess GeocodeStatus = "SUCCESS"
	GeocodeStatusFailed  GeocodeStatus = "FAILED"
	// GeocodeStatusFallback may be present on rows written by other tools.
	// The backfill never sets it. Tick does not select it, and Sweep retries
	// it like FAILED when coordinates are missing.
	GeocodeStatusFallback GeocodeStatus = "FALLBACK"
)

// RentType is the lease category of a candidate.
type RentType string

const (
	// RentTypeDepositOnly is a lump-sum deposit lease (전세).
	RentTypeDepositOnly RentType = "전세"
	// RentTypeMonthly is a deposit plus monthly fee lease (월세).
	RentTypeMonthly RentType = "월세"
	// RentTypeUnknown marks an unsupported request value.
	RentTypeUnknown RentType = ""
)

// ParseRentType maps request spellings to a RentType. Unsupported values
// return RentTypeUnknown.
func ParseRentType(s string) RentType {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "전세", "jeonse", "deposit-only", "deposit_only":
		return RentTypeDepositOnly
	case "월세", "wolse", "monthly", "deposit+monthly", "deposit_monthly":
		return RentTypeMonthly
	default:
		return RentTypeUnknown
	}
}

// Candidate is a rentable unit with its location, price terms and geocode state.
type Candidate struct {
	ID           int64
	District     string
	Subdistrict  string
	LotNumber    string
	Building     string
	Address      string
	ContractDate string
	RentType     RentType
	Deposit      int64
	MonthlyFee   int64
	AreaM2       float64
	Floor        int
	BuiltYear    int
	ImageURL     string

	// Location is zero until the candidate has been geocoded.
	Location geo.Point

	GeocodeStatus   GeocodeStatus
	GeocodeAttempts int
	GeocodeSource   string
	GeocodedAt      *time.Time
}

// HasLocation reports whether the candidate can take part in a commute computation.
func (c *Candidate) HasLocation() bool {
	return c.Location.Valid()
}

// FullAddress returns the stored address, or one assembled from district,
// subdistrict and lot number when none was recorded.
func (c *Candidate) FullAddress() string {
	if a := strings.TrimSpace(c.Address); a != "" {
		return a
	}
	parts := make([]string, 0, 4)
	for _, p := range []string{"서울특별시", c.District, c.Subdistrict, c.LotNumber} {
		if p = strings.TrimSpace(p); p != "" {
			parts = append(parts, p)
		}
	}
	if len(parts) <= 1 {
		return ""
	}
	return strings.Join(parts, " ")
}

// MarkGeocoded records a successful geocode attempt.
func (c *Candidate) MarkGeocoded(p geo.Point, source string, at time.Time) {
	c.Location = p
	c.GeocodeStatus = GeocodeStatusSuccess
	c.GeocodeSource = source
	c.GeocodedAt = &at
	c.GeocodeAttempts++
}

// MarkAttemptFailed records a failed attempt that stays eligible for retry.
func (c *Candidate) MarkAttemptFailed() {
	c.GeocodeAttempts++
}

// MarkGeocodeFailed records a terminal failure from a bulk sweep.
func (c *Candidate) MarkGeocodeFailed() {
	c.GeocodeStatus = GeocodeStatusFailed
	c.GeocodeAttempts++
}
