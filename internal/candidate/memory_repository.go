package candidate

import (
	"context"
	"sort"
	"sync"
)

// InMemoryRepository is a Repository backed by a map. Intended for tests and local runs.
type InMemoryRepository struct {
	mu     sync.RWMutex
	nextID int64
	items  map[int64]*Candidate
}

var _ Repository = (*InMemoryRepository)(nil)

// NewInMemoryRepository creates an empty repository.
func NewInMemoryRepository() *InMemoryRepository {
	return &InMemoryRepository{items: make(map[int64]*Candidate)}
}

// FindByArea returns copies of matching candidates in id order.
func (r *InMemoryRepository) FindByArea(_ context.Context, district, subdistrict string) ([]*Candidate, error) {
	return r.collect(func(c *Candidate) bool {
		return c.District == district && c.Subdistrict == subdistrict
	}), nil
}

// NextPendingGeocode returns the lowest-id eligible PENDING candidate.
func (r *InMemoryRepository) NextPendingGeocode(_ context.Context, maxAttempts int) (*Candidate, error) {
	pending := r.collect(func(c *Candidate) bool {
		return c.GeocodeStatus == GeocodeStatusPending && c.GeocodeAttempts < maxAttempts
	})
	if len(pending) == 0 {
		return nil, ErrNotFound
	}
	return pending[0], nil
}

// FindMissingCoordinates returns candidates with a zero x or y.
func (r *InMemoryRepository) FindMissingCoordinates(_ context.Context) ([]*Candidate, error) {
	return r.collect(func(c *Candidate) bool {
		return c.Location.Lat == 0 || c.Location.Lng == 0
	}), nil
}

// Create stores a copy of c, assigning an ID when c.ID is zero.
func (r *InMemoryRepository) Create(_ context.Context, c *Candidate) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if c.ID == 0 {
		r.nextID++
		c.ID = r.nextID
	} else if c.ID > r.nextID {
		r.nextID = c.ID
	}
	if c.GeocodeStatus == "" {
		c.GeocodeStatus = GeocodeStatusPending
	}
	cpy := *c
	r.items[c.ID] = &cpy
	return nil
}

// UpdateGeocode writes the geocode fields of a stored candidate unless it is
// already SUCCESS.
func (r *InMemoryRepository) UpdateGeocode(_ context.Context, c *Candidate) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.applyGeocode(c)
}

// UpdateGeocodeBatch applies every update or none.
func (r *InMemoryRepository) UpdateGeocodeBatch(_ context.Context, cs []*Candidate) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, c := range cs {
		if _, ok := r.items[c.ID]; !ok {
			return ErrNotFound
		}
	}
	for _, c := range cs {
		if err := r.applyGeocode(c); err != nil {
			return err
		}
	}
	return nil
}

// Get returns a copy of one candidate.
func (r *InMemoryRepository) Get(_ context.Context, id int64) (*Candidate, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	c, ok := r.items[id]
	if !ok {
		return nil, ErrNotFound
	}
	cpy := *c
	return &cpy, nil
}

func (r *InMemoryRepository) applyGeocode(c *Candidate) error {
	stored, ok := r.items[c.ID]
	if !ok {
		return ErrNotFound
	}
	if stored.GeocodeStatus == GeocodeStatusSuccess {
		return nil
	}
	stored.Location = c.Location
	stored.GeocodeStatus = c.GeocodeStatus
	stored.GeocodeAttempts++
	stored.GeocodeSource = c.GeocodeSource
	if c.GeocodedAt != nil {
		at := *c.GeocodedAt
		stored.GeocodedAt = &at
	}
	return nil
}

func (r *InMemoryRepository) collect(match func(*Candidate) bool) []*Candidate {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]*Candidate, 0)
	for _, c := range r.items {
		if match(c) {
			cpy := *c
			out = append(out, &cpy)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}
