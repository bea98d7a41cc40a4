package ranking

import (
	"context"
	"fmt"
	"sort"

	"github.com/rs/zerolog"

	"github.com/roomcommute/roomcommute/internal/candidate"
	"github.com/roomcommute/roomcommute/internal/commute"
	"github.com/roomcommute/roomcommute/pkg/geo"
)

// Estimator computes commute results. *commute.Engine implements it.
type Estimator interface {
	Estimate(ctx context.Context, mode commute.Mode, origins []commute.Origin, dest geo.Point) []commute.Result
}

// ServiceConfig holds configuration for the ranking service.
type ServiceConfig struct {
	Repository candidate.Repository
	Estimator  Estimator

	// Policy supplies the candidate caps and default batch size.
	Policy commute.Policy

	Logger zerolog.Logger
}

// Service ranks candidates by commute.
type Service struct {
	repo      candidate.Repository
	estimator Estimator
	policy    commute.Policy
	logger    zerolog.Logger
}

// NewService creates a ranking service.
func NewService(cfg ServiceConfig) *Service {
	return &Service{
		repo:      cfg.Repository,
		estimator: cfg.Estimator,
		policy:    cfg.Policy.WithDefaults(),
		logger:    cfg.Logger.With().Str("component", "ranking").Logger(),
	}
}

// Recommend estimates the closest candidates, up to the mode's cap, and
// returns those within the commute limit sorted by duration.
func (s *Service) Recommend(ctx context.Context, req Request) ([]RankedCandidate, error) {
	pool, err := s.pool(ctx, req)
	if err != nil {
		return nil, err
	}

	capped := pool[:min(len(pool), s.policy.CandidateCap(req.Mode))]
	items := s.rank(ctx, req, capped)

	s.logger.Debug().
		Int("pool", len(pool)).
		Int("estimated", len(capped)).
		Int("returned", len(items)).
		Str("mode", string(req.Mode)).
		Msg("recommendation computed")
	return items, nil
}

// RecommendPage estimates only the candidates in [cursor, cursor+batchSize)
// of the distance-ordered pool. A negative cursor is treated as zero and a
// non-positive batchSize takes the policy default.
func (s *Service) RecommendPage(ctx context.Context, req Request, cursor, batchSize int) (*Page, error) {
	cursor = max(cursor, 0)
	if batchSize <= 0 {
		batchSize = s.policy.DefaultBatchSize
	}

	pool, err := s.pool(ctx, req)
	if err != nil {
		return nil, err
	}

	total := len(pool)
	from := min(cursor, total)
	to := from + min(batchSize, total-from)
	window := pool[from:to]

	ids := make([]int64, len(window))
	for i, sc := range window {
		ids[i] = sc.c.ID
	}

	items := s.rank(ctx, req, window)

	return &Page{
		Cursor:          cursor,
		BatchSize:       batchSize,
		TotalCandidates: total,
		ScannedFrom:     from,
		ScannedTo:       to,
		ComputedCount:   len(ids),
		ComputedIDs:     ids,
		Returned:        len(items),
		HasNext:         to < total,
		NextCursor:      to,
		Items:           items,
	}, nil
}

// pool returns the area's candidates that have coordinates and fit the
// budget, ordered by distance to the destination. Storage order breaks ties.
func (s *Service) pool(ctx context.Context, req Request) ([]scored, error) {
	if req.RentType != candidate.RentTypeDepositOnly && req.RentType != candidate.RentTypeMonthly {
		return []scored{}, nil
	}

	cs, err := s.repo.FindByArea(ctx, req.District, req.Subdistrict)
	if err != nil {
		return nil, fmt.Errorf("finding candidates in %s %s: %w", req.District, req.Subdistrict, err)
	}

	pool := make([]scored, 0, len(cs))
	for _, c := range cs {
		if !c.HasLocation() || !withinBudget(req, c) {
			continue
		}
		pool = append(pool, scored{c: c, distanceKm: geo.DistanceKm(c.Location, req.Destination)})
	}

	sort.SliceStable(pool, func(i, j int) bool {
		return pool[i].distanceKm < pool[j].distanceKm
	})
	return pool, nil
}

func withinBudget(req Request, c *candidate.Candidate) bool {
	if c.RentType != req.RentType || c.Deposit > req.DepositMax {
		return false
	}
	if req.RentType == candidate.RentTypeMonthly && req.MonthlyMax != nil && c.MonthlyFee > *req.MonthlyMax {
		return false
	}
	return true
}

// rank estimates window and keeps results within the commute limit, joined
// by id and sorted by duration. Equal durations keep distance order.
func (s *Service) rank(ctx context.Context, req Request, window []scored) []RankedCandidate {
	if len(window) == 0 {
		return []RankedCandidate{}
	}

	origins := make([]commute.Origin, len(window))
	for i, sc := range window {
		origins[i] = commute.Origin{ID: sc.c.ID, Point: sc.c.Location}
	}

	results := make(map[int64]commute.Result, len(window))
	for _, r := range s.estimator.Estimate(ctx, req.Mode, origins, req.Destination) {
		results[r.OriginID] = r
	}

	items := make([]RankedCandidate, 0, len(results))
	for _, sc := range window {
		r, ok := results[sc.c.ID]
		if !ok || !r.Reachable() || r.DurationMin > req.CommuteLimitMin {
			continue
		}
		items = append(items, newRanked(sc, r))
	}

	sort.SliceStable(items, func(i, j int) bool {
		return items[i].DurationMin < items[j].DurationMin
	})
	return items
}
