// Package ranking filters stored candidates by area and budget, orders them
// by distance to a destination and ranks them by estimated commute.
package ranking

import (
	"github.com/roomcommute/roomcommute/internal/candidate"
	"github.com/roomcommute/roomcommute/internal/commute"
	"github.com/roomcommute/roomcommute/pkg/geo"
)

// Request is one ranking query.
type Request struct {
	District    string
	Subdistrict string
	RentType    candidate.RentType

	// DepositMax is the deposit ceiling for both rent types.
	DepositMax int64

	// MonthlyMax is the monthly fee ceiling for monthly leases. Nil means no ceiling.
	MonthlyMax *int64

	Destination     geo.Point
	CommuteLimitMin int
	Mode            commute.Mode
}

// RankedCandidate is a candidate that passed the budget and commute filters.
type RankedCandidate struct {
	ID           int64              `json:"id"`
	District     string             `json:"district"`
	Subdistrict  string             `json:"subdistrict"`
	LotNumber    string             `json:"lotNumber,omitempty"`
	Building     string             `json:"building,omitempty"`
	Address      string             `json:"address,omitempty"`
	ContractDate string             `json:"contractDate,omitempty"`
	RentType     candidate.RentType `json:"rentType"`
	Deposit      int64              `json:"deposit"`
	MonthlyFee   int64              `json:"monthlyFee"`
	AreaM2       float64            `json:"areaM2,omitempty"`
	Floor        int                `json:"floor,omitempty"`
	BuiltYear    int                `json:"builtYear,omitempty"`
	X            float64            `json:"x"`
	Y            float64            `json:"y"`
	ImageURL     string             `json:"imageUrl,omitempty"`
	DistanceKm   float64            `json:"distanceKm"`
	DurationMin  int                `json:"durationMin"`
	Method       commute.Method     `json:"method"`
}

// Page is one cursor window of a ranking.
type Page struct {
	Cursor          int               `json:"cursor"`
	BatchSize       int               `json:"batchSize"`
	TotalCandidates int               `json:"totalCandidates"`
	ScannedFrom     int               `json:"scannedFrom"`
	ScannedTo       int               `json:"scannedTo"`
	ComputedCount   int               `json:"computedCount"`
	ComputedIDs     []int64           `json:"computedIds"`
	Returned        int               `json:"returned"`
	HasNext         bool              `json:"hasNext"`
	NextCursor      int               `json:"nextCursor"`
	Items           []RankedCandidate `json:"items"`
}

// scored is a filtered candidate with its straight-line distance.
type scored struct {
	c          *candidate.Candidate
	distanceKm float64
}

func newRanked(s scored, r commute.Result) RankedCandidate {
	c := s.c
	return RankedCandidate{
		ID:           c.ID,
		District:     c.District,
		Subdistrict:  c.Subdistrict,
		LotNumber:    c.LotNumber,
		Building:     c.Building,
		Address:      c.FullAddress(),
		ContractDate: c.ContractDate,
		RentType:     c.RentType,
		Deposit:      c.Deposit,
		MonthlyFee:   c.MonthlyFee,
		AreaM2:       c.AreaM2,
		Floor:        c.Floor,
		BuiltYear:    c.BuiltYear,
		X:            c.Location.Lng,
		Y:            c.Location.Lat,
		ImageURL:     c.ImageURL,
		DistanceKm:   s.distanceKm,
		DurationMin:  r.DurationMin,
		Method:       r.Method,
	}
}
