package models

import (
	"strings"

	"github.com/roomcommute/roomcommute/internal/candidate"
	"github.com/roomcommute/roomcommute/internal/commute"
	"github.com/roomcommute/roomcommute/internal/ranking"
	"github.com/roomcommute/roomcommute/internal/routing"
)

// RecommendationRequest is the body of both recommendation endpoints.
type RecommendationRequest struct {
	District    string `json:"district"`
	Subdistrict string `json:"subdistrict"`

	// RentType is "전세" or "월세"; the romanized spellings are accepted too.
	RentType string `json:"rentType"`

	// Deposit is the deposit ceiling in 10k KRW.
	Deposit int64 `json:"deposit"`

	// MonthlyFee is the monthly fee ceiling for 월세. Omit for no ceiling.
	MonthlyFee *int64 `json:"monthlyFee,omitempty"`

	Destination      *Point `json:"destination"`
	CommuteTimeLimit int    `json:"commuteTimeLimit"`

	// TransportType selects driving ("자차", "driving", "car"); anything else
	// means public transit.
	TransportType string `json:"transportType"`
}

// Validate returns one FieldError per invalid field.
func (r *RecommendationRequest) Validate() []FieldError {
	var errs []FieldError
	if strings.TrimSpace(r.District) == "" {
		errs = append(errs, FieldError{Field: "district", Message: "required", Code: "REQUIRED"})
	}
	if strings.TrimSpace(r.Subdistrict) == "" {
		errs = append(errs, FieldError{Field: "subdistrict", Message: "required", Code: "REQUIRED"})
	}
	if strings.TrimSpace(r.RentType) == "" {
		errs = append(errs, FieldError{Field: "rentType", Message: "required", Code: "REQUIRED"})
	}
	if r.Deposit < 0 {
		errs = append(errs, FieldError{Field: "deposit", Message: "must not be negative", Code: "OUT_OF_RANGE"})
	}
	if r.MonthlyFee != nil && *r.MonthlyFee < 0 {
		errs = append(errs, FieldError{Field: "monthlyFee", Message: "must not be negative", Code: "OUT_OF_RANGE"})
	}
	if r.CommuteTimeLimit <= 0 {
		errs = append(errs, FieldError{Field: "commuteTimeLimit", Message: "must be positive", Code: "OUT_OF_RANGE"})
	}
	switch {
	case r.Destination == nil:
		errs = append(errs, FieldError{Field: "destination", Message: "required", Code: "REQUIRED"})
	case routing.ValidatePoint(r.Destination.GeoPoint()) != nil:
		errs = append(errs, FieldError{Field: "destination", Message: "must be a valid coordinate", Code: "OUT_OF_RANGE"})
	}
	return errs
}

// ToRankingRequest converts a validated request. An unsupported rent type
// maps to candidate.RentTypeUnknown, which ranks nothing.
func (r *RecommendationRequest) ToRankingRequest() ranking.Request {
	return ranking.Request{
		District:        strings.TrimSpace(r.District),
		Subdistrict:     strings.TrimSpace(r.Subdistrict),
		RentType:        candidate.ParseRentType(r.RentType),
		DepositMax:      r.Deposit,
		MonthlyMax:      r.MonthlyFee,
		Destination:     r.Destination.GeoPoint(),
		CommuteLimitMin: r.CommuteTimeLimit,
		Mode:            commute.ParseMode(r.TransportType),
	}
}

// RecommendationResponse is the body of POST /v1/recommendations.
type RecommendationResponse struct {
	Items []ranking.RankedCandidate `json:"items"`
}
