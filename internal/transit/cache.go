package transit

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/roomcommute/roomcommute/pkg/geo"
)

// DurationStore keeps minimum transit durations by key.
type DurationStore interface {
	Get(ctx context.Context, key string) (minutes int, ok bool, err error)
	Set(ctx context.Context, key string, minutes int, ttl time.Duration) error
}

// CacheConfig configures a CachedProvider.
type CacheConfig struct {
	// TTL is how long a duration stays cached. Default: 6 hours
	TTL time.Duration

	// Precision is the number of decimals coordinates are rounded to for the key.
	// Default: 4 (about 11 m)
	Precision int

	Logger zerolog.Logger
}

// CachedProvider caches successful MinDuration answers. Failures are never
// cached, so callers still see every provider error. Paths is passed through.
type CachedProvider struct {
	next      Provider
	store     DurationStore
	ttl       time.Duration
	precision int
	logger    zerolog.Logger
}

var _ Provider = (*CachedProvider)(nil)

// NewCachedProvider wraps next with store.
func NewCachedProvider(next Provider, store DurationStore, cfg CacheConfig) *CachedProvider {
	if cfg.TTL == 0 {
		cfg.TTL = 6 * time.Hour
	}
	if cfg.Precision == 0 {
		cfg.Precision = 4
	}
	return &CachedProvider{
		next:      next,
		store:     store,
		ttl:       cfg.TTL,
		precision: cfg.Precision,
		logger:    cfg.Logger,
	}
}

// Name returns the wrapped provider's name.
func (p *CachedProvider) Name() string {
	return p.next.Name()
}

// MinDuration serves from the store when possible. Store errors are logged
// and fall through to the provider.
func (p *CachedProvider) MinDuration(ctx context.Context, origin, dest geo.Point) (int, error) {
	key := p.key(origin, dest)

	minutes, ok, err := p.store.Get(ctx, key)
	if err != nil {
		p.logger.Warn().Err(err).Str("cache_key", key).Msg("transit cache read failed")
	} else if ok {
		p.logger.Debug().Str("cache_key", key).Msg("transit cache hit")
		return minutes, nil
	}

	minutes, err = p.next.MinDuration(ctx, origin, dest)
	if err != nil {
		return 0, err
	}

	if err := p.store.Set(ctx, key, minutes, p.ttl); err != nil {
		p.logger.Warn().Err(err).Str("cache_key", key).Msg("transit cache write failed")
	}
	return minutes, nil
}

// Paths is not cached.
func (p *CachedProvider) Paths(ctx context.Context, origin, dest geo.Point) ([]Path, error) {
	return p.next.Paths(ctx, origin, dest)
}

func (p *CachedProvider) key(origin, dest geo.Point) string {
	return fmt.Sprintf("transit:%s:%.*f,%.*f:%.*f,%.*f", p.next.Name(),
		p.precision, origin.Lat, p.precision, origin.Lng,
		p.precision, dest.Lat, p.precision, dest.Lng)
}

// MemoryStore is an in-process DurationStore.
type MemoryStore struct {
	mu          sync.RWMutex
	entries     map[string]memoryEntry
	lastCleanup time.Time
	now         func() time.Time
}

type memoryEntry struct {
	minutes   int
	expiresAt time.Time
}

var _ DurationStore = (*MemoryStore)(nil)

// NewMemoryStore creates an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		entries: make(map[string]memoryEntry),
		now:     time.Now,
	}
}

// Get returns an unexpired entry.
func (s *MemoryStore) Get(_ context.Context, key string) (int, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	e, ok := s.entries[key]
	if !ok || !s.now().Before(e.expiresAt) {
		return 0, false, nil
	}
	return e.minutes, true, nil
}

// Set stores an entry and prunes expired ones at most once a minute.
func (s *MemoryStore) Set(_ context.Context, key string, minutes int, ttl time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	s.entries[key] = memoryEntry{minutes: minutes, expiresAt: now.Add(ttl)}

	if now.Sub(s.lastCleanup) >= time.Minute {
		for k, e := range s.entries {
			if !now.Before(e.expiresAt) {
				delete(s.entries, k)
			}
		}
		s.lastCleanup = now
	}
	return nil
}

// Len returns the number of stored entries, expired or not.
func (s *MemoryStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.entries)
}
