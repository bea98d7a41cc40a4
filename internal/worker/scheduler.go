// Package worker runs the background geocode backfill for RoomCommute.
package worker

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/roomcommute/roomcommute/internal/geocode"
)

// DefaultTickInterval is the spacing between backfill ticks.
const DefaultTickInterval = time.Second

// Backfiller is the part of *geocode.Backfill the worker drives.
type Backfiller interface {
	Tick(ctx context.Context) (bool, error)
	Sweep(ctx context.Context) (geocode.SweepStats, error)
}

// Metrics tracks worker statistics.
type Metrics struct {
	mu sync.RWMutex

	Ticks      int64
	Processed  int64
	TickErrors int64

	Sweeps        int64
	SweepFailures int64
	LastSweep     geocode.SweepStats
	LastSweepAt   time.Time

	LastTickAt time.Time
}

// MetricsSnapshot is a point-in-time copy of Metrics.
type MetricsSnapshot struct {
	Ticks         int64              `json:"ticks"`
	Processed     int64              `json:"processed"`
	TickErrors    int64              `json:"tickErrors"`
	Sweeps        int64              `json:"sweeps"`
	SweepFailures int64              `json:"sweepFailures"`
	LastSweep     geocode.SweepStats `json:"lastSweep"`
	LastSweepAt   *time.Time         `json:"lastSweepAt,omitempty"`
	LastTickAt    *time.Time         `json:"lastTickAt,omitempty"`
}

// Snapshot returns a copy of the current counters.
func (m *Metrics) Snapshot() MetricsSnapshot {
	m.mu.RLock()
	defer m.mu.RUnlock()

	s := MetricsSnapshot{
		Ticks:         m.Ticks,
		Processed:     m.Processed,
		TickErrors:    m.TickErrors,
		Sweeps:        m.Sweeps,
		SweepFailures: m.SweepFailures,
		LastSweep:     m.LastSweep,
	}
	if !m.LastSweepAt.IsZero() {
		at := m.LastSweepAt
		s.LastSweepAt = &at
	}
	if !m.LastTickAt.IsZero() {
		at := m.LastTickAt
		s.LastTickAt = &at
	}
	return s
}

func (m *Metrics) recordTick(processed bool, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Ticks++
	m.LastTickAt = time.Now()
	if err != nil {
		m.TickErrors++
		return
	}
	if processed {
		m.Processed++
	}
}

func (m *Metrics) recordSweep(stats geocode.SweepStats, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Sweeps++
	m.LastSweep = stats
	m.LastSweepAt = time.Now()
	if err != nil {
		m.SweepFailures++
	}
}

// SchedulerConfig holds configuration for the Scheduler.
type SchedulerConfig struct {
	Backfill Backfiller
	Interval time.Duration
	Metrics  *Metrics
	Logger   zerolog.Logger
}

// Scheduler drives one backfill tick per interval.
type Scheduler struct {
	backfill Backfiller
	interval time.Duration
	metrics  *Metrics
	logger   zerolog.Logger
}

// NewScheduler creates a Scheduler.
func NewScheduler(cfg SchedulerConfig) *Scheduler {
	interval := cfg.Interval
	if interval <= 0 {
		interval = DefaultTickInterval
	}
	metrics := cfg.Metrics
	if metrics == nil {
		metrics = &Metrics{}
	}
	return &Scheduler{
		backfill: cfg.Backfill,
		interval: interval,
		metrics:  metrics,
		logger:   cfg.Logger.With().Str("component", "geocode_scheduler").Logger(),
	}
}

// Metrics returns the scheduler's metrics.
func (s *Scheduler) Metrics() *Metrics {
	return s.metrics
}

// Run ticks until ctx is cancelled. A tick error is logged and does not stop
// the loop; the next tick runs on schedule.
func (s *Scheduler) Run(ctx context.Context) error {
	s.logger.Info().Dur("interval", s.interval).Msg("geocode scheduler started")

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			s.logger.Info().Msg("geocode scheduler stopped")
			return ctx.Err()
		case <-ticker.C:
			s.tick(ctx)
		}
	}
}

func (s *Scheduler) tick(ctx context.Context) {
	processed, err := s.backfill.Tick(ctx)
	s.metrics.recordTick(processed, err)
	if err != nil {
		if ctx.Err() == nil {
			s.logger.Error().Err(err).Msg("geocode tick failed")
		}
		return
	}
	if processed {
		s.logger.Debug().Msg("geocode tick processed a candidate")
	}
}
