package app

import (
	"sync"

	"github.com/fd1az/arb-engine/business/quotes/domain"
)

// HealthRegistry hands out the per-venue health tracker, creating it
// closed on first use. Shared with the risk and execution contexts so
// every outcome lands on the same score.
type HealthRegistry struct {
	mu  sync.RWMutex
	cfg domain.HealthConfig
	all map[string]*domain.VenueHealth
}

// NewHealthRegistry creates a registry applying cfg to every venue.
func NewHealthRegistry(cfg domain.HealthConfig) *HealthRegistry {
	return &HealthRegistry{
		cfg: cfg,
		all: make(map[string]*domain.VenueHealth),
	}
}

// Get returns the health tracker for a venue, creating it if needed.
func (r *HealthRegistry) Get(venue string) *domain.VenueHealth {
	r.mu.RLock()
	h, ok := r.all[venue]
	r.mu.RUnlock()
	if ok {
		return h
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if h, ok := r.all[venue]; ok {
		return h
	}
	h = domain.NewVenueHealth(venue, r.cfg)
	r.all[venue] = h
	return h
}

// All returns every tracked venue health, in no particular order.
func (r *HealthRegistry) All() []*domain.VenueHealth {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]*domain.VenueHealth, 0, len(r.all))
	for _, h := range r.all {
		out = append(out, h)
	}
	return out
}
