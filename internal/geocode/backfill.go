package geocode

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/time/rate"

	"github.com/roomcommute/roomcommute/internal/candidate"
	"github.com/roomcommute/roomcommute/internal/provider/resilience"
	"github.com/roomcommute/roomcommute/pkg/geo"
)

const (
	// DefaultMaxAttempts is the attempt count after which Tick stops selecting a candidate.
	DefaultMaxAttempts = 3

	// DefaultSweepDelay is the minimum spacing between provider calls in a sweep.
	DefaultSweepDelay = 100 * time.Millisecond

	// DefaultFlushEvery is the number of sweep updates buffered before a write.
	DefaultFlushEvery = 500

	defaultSource = "geocoder"
)

// Config holds configuration for the backfill.
type Config struct {
	Repository candidate.Repository
	Geocoder   Geocoder

	// Source is the tag recorded on success. Defaults to the geocoder's own
	// GeocoderSource when it has one.
	Source string

	// MaxAttempts bounds Tick retries per candidate (default: 3).
	MaxAttempts int

	// SweepDelay spaces sweep provider calls (default: 100ms).
	SweepDelay time.Duration

	// FlushEvery sets the sweep write batch size (default: 500).
	FlushEvery int

	// Retry wraps each sweep provider call. The zero value makes one call.
	Retry resilience.RetryPolicy

	Logger zerolog.Logger

	// Now is used for GeocodedAt. Defaults to time.Now.
	Now func() time.Time
}

// Backfill fills in missing candidate coordinates.
type Backfill struct {
	repo        candidate.Repository
	geocoder    Geocoder
	source      string
	maxAttempts int
	sweepDelay  time.Duration
	flushEvery  int
	retry       resilience.RetryPolicy
	logger      zerolog.Logger
	now         func() time.Time
}

// SweepStats summarises one Sweep run.
type SweepStats struct {
	Scanned   int `json:"scanned"`
	Succeeded int `json:"succeeded"`
	Failed    int `json:"failed"`
	Flushes   int `json:"flushes"`
}

// NewBackfill creates a Backfill.
func NewBackfill(cfg Config) *Backfill {
	source := cfg.Source
	if source == "" {
		if s, ok := cfg.Geocoder.(sourced); ok {
			source = s.GeocoderSource()
		} else {
			source = defaultSource
		}
	}

	maxAttempts := cfg.MaxAttempts
	if maxAttempts <= 0 {
		maxAttempts = DefaultMaxAttempts
	}

	sweepDelay := cfg.SweepDelay
	if sweepDelay <= 0 {
		sweepDelay = DefaultSweepDelay
	}

	flushEvery := cfg.FlushEvery
	if flushEvery <= 0 {
		flushEvery = DefaultFlushEvery
	}

	now := cfg.Now
	if now == nil {
		now = time.Now
	}

	return &Backfill{
		repo:        cfg.Repository,
		geocoder:    cfg.Geocoder,
		source:      source,
		maxAttempts: maxAttempts,
		sweepDelay:  sweepDelay,
		flushEvery:  flushEvery,
		retry:       cfg.Retry,
		logger:      cfg.Logger.With().Str("component", "geocode_backfill").Logger(),
		now:         now,
	}
}

// Tick geocodes the oldest PENDING candidate that still has attempts left.
// It reports whether a candidate was processed. A provider failure is not an
// error: the candidate's attempt counter is incremented and it stays PENDING.
func (b *Backfill) Tick(ctx context.Context) (bool, error) {
	c, err := b.repo.NextPendingGeocode(ctx, b.maxAttempts)
	if errors.Is(err, candidate.ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("selecting pending candidate: %w", err)
	}

	p, err := b.lookup(ctx, c)
	if err != nil {
		c.MarkAttemptFailed()
		b.logger.Debug().
			Err(err).
			Int64("candidate_id", c.ID).
			Int("attempts", c.GeocodeAttempts).
			Msg("geocode attempt failed")
	} else {
		c.MarkGeocoded(p, b.source, b.now())
	}

	if err := b.repo.UpdateGeocode(ctx, c); err != nil {
		return true, fmt.Errorf("saving candidate %d: %w", c.ID, err)
	}
	return true, nil
}

// Sweep geocodes every candidate with missing coordinates, one provider call
// at a time. Failures are marked FAILED and do not stop the sweep. Updates
// are written every FlushEvery records and once more at the end, including
// when ctx ends early.
func (b *Backfill) Sweep(ctx context.Context) (SweepStats, error) {
	var stats SweepStats

	cs, err := b.repo.FindMissingCoordinates(ctx)
	if err != nil {
		return stats, fmt.Errorf("finding candidates without coordinates: %w", err)
	}

	b.logger.Info().Int("candidates", len(cs)).Msg("geocode sweep started")

	limiter := rate.NewLimiter(rate.Every(b.sweepDelay), 1)
	buf := make([]*candidate.Candidate, 0, min(len(cs), b.flushEvery))

	flush := func(ctx context.Context) error {
		if len(buf) == 0 {
			return nil
		}
		if err := b.repo.UpdateGeocodeBatch(ctx, buf); err != nil {
			return fmt.Errorf("flushing %d geocode updates: %w", len(buf), err)
		}
		stats.Flushes++
		buf = buf[:0]
		return nil
	}

	for _, c := range cs {
		if err := limiter.Wait(ctx); err != nil {
			flushErr := flush(context.WithoutCancel(ctx))
			b.logger.Warn().Err(err).Int("scanned", stats.Scanned).Msg("geocode sweep interrupted")
			return stats, errors.Join(ctx.Err(), flushErr)
		}

		stats.Scanned++
		p, err := b.lookupWithRetry(ctx, c)
		if err != nil {
			c.MarkGeocodeFailed()
			stats.Failed++
			b.logger.Warn().
				Err(err).
				Int64("candidate_id", c.ID).
				Str("address", c.FullAddress()).
				Msg("geocode failed")
		} else {
			c.MarkGeocoded(p, b.source, b.now())
			stats.Succeeded++
		}

		buf = append(buf, c)
		if len(buf) >= b.flushEvery {
			if err := flush(ctx); err != nil {
				return stats, err
			}
		}
	}

	if err := flush(ctx); err != nil {
		return stats, err
	}

	b.logger.Info().
		Int("scanned", stats.Scanned).
		Int("succeeded", stats.Succeeded).
		Int("failed", stats.Failed).
		Msg("geocode sweep finished")
	return stats, nil
}

func (b *Backfill) lookupWithRetry(ctx context.Context, c *candidate.Candidate) (geo.Point, error) {
	var p geo.Point
	err := resilience.Retry(ctx, b.retry, func(ctx context.Context) error {
		var err error
		p, err = b.lookup(ctx, c)
		if errors.Is(err, ErrNoMatch) || errors.Is(err, ErrEmptyAddress) {
			return resilience.Permanent(err)
		}
		return err
	})
	return p, err
}

// lookup geocodes the candidate's cleaned address. A zero or NaN result is
// reported as ErrNoMatch so SUCCESS always carries a usable coordinate.
func (b *Backfill) lookup(ctx context.Context, c *candidate.Candidate) (geo.Point, error) {
	address := CleanAddress(c.FullAddress())
	if address == "" {
		return geo.Point{}, ErrEmptyAddress
	}

	p, err := b.geocoder.Geocode(ctx, address)
	if err != nil {
		return geo.Point{}, err
	}
	if !p.Valid() {
		return geo.Point{}, ErrNoMatch
	}
	return p, nil
}
