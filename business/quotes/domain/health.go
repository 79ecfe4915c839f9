// Package domain contains the quote aggregation domain: per-venue
// health tracking and assembled quote sets.
package domain

import (
	"sync"
	"time"
)

// BreakerState is the venue breaker's position.
type BreakerState int

const (
	StateClosed BreakerState = iota
	StateOpen
	StateHalfOpen
)

// String returns the lowercase state name.
func (s BreakerState) String() string {
	switch s {
	case StateClosed:
		return "closed"
	case StateOpen:
		return "open"
	case StateHalfOpen:
		return "half-open"
	}
	return "unknown"
}

// reliabilityAlpha is the EWMA weight of the newest outcome.
const reliabilityAlpha = 0.1

// HealthConfig holds the breaker knobs for one venue.
type HealthConfig struct {
	// FailureThreshold consecutive failures open the breaker.
	FailureThreshold int
	// Cooldown is the initial open duration. Every probe failure
	// doubles it, up to MaxCooldown; a probe success resets it.
	Cooldown    time.Duration
	MaxCooldown time.Duration
}

// VenueHealth tracks one venue's breaker and reliability score. Safe
// for concurrent use. Time is passed in so state transitions are
// deterministic under test.
type VenueHealth struct {
	mu sync.Mutex

	name string
	cfg  HealthConfig

	state               BreakerState
	consecutiveFailures int
	openedAt            time.Time
	cooldown            time.Duration
	probeInFlight       bool

	reliability float64
}

// NewVenueHealth starts a venue closed with full reliability.
func NewVenueHealth(name string, cfg HealthConfig) *VenueHealth {
	if cfg.FailureThreshold <= 0 {
		cfg.FailureThreshold = 5
	}
	if cfg.Cooldown <= 0 {
		cfg.Cooldown = time.Minute
	}
	if cfg.MaxCooldown < cfg.Cooldown {
		cfg.MaxCooldown = cfg.Cooldown
	}
	return &VenueHealth{
		name:        name,
		cfg:         cfg,
		state:       StateClosed,
		cooldown:    cfg.Cooldown,
		reliability: 1.0,
	}
}

// Name returns the venue name.
func (h *VenueHealth) Name() string { return h.name }

// Allow reports whether a request may go to the venue now. When the
// cooldown has elapsed the breaker moves to half-open and admits
// exactly one probe; everything else is rejected until the probe
// resolves.
func (h *VenueHealth) Allow(now time.Time) bool {
	h.mu.Lock()
	defer h.mu.Unlock()

	switch h.state {
	case StateClosed:
		return true
	case StateOpen:
		if now.Sub(h.openedAt) < h.cooldown {
			return false
		}
		h.state = StateHalfOpen
		h.probeInFlight = true
		return true
	case StateHalfOpen:
		if h.probeInFlight {
			return false
		}
		h.probeInFlight = true
		return true
	}
	return false
}

// RecordSuccess notes a successful venue interaction. A half-open
// probe success closes the breaker and resets the cooldown ladder.
func (h *VenueHealth) RecordSuccess(now time.Time) {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.consecutiveFailures = 0
	h.reliability = h.reliability*(1-reliabilityAlpha) + reliabilityAlpha

	if h.state == StateHalfOpen {
		h.state = StateClosed
		h.cooldown = h.cfg.Cooldown
		h.probeInFlight = false
	}
}

// RecordFailure notes a failed venue interaction. The threshold-th
// consecutive failure opens the breaker; a half-open probe failure
// reopens it with a doubled cooldown, capped at MaxCooldown.
func (h *VenueHealth) RecordFailure(now time.Time) {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.reliability = h.reliability * (1 - reliabilityAlpha)

	switch h.state {
	case StateClosed:
		h.consecutiveFailures++
		if h.consecutiveFailures >= h.cfg.FailureThreshold {
			h.open(now)
		}
	case StateHalfOpen:
		h.cooldown *= 2
		if h.cooldown > h.cfg.MaxCooldown {
			h.cooldown = h.cfg.MaxCooldown
		}
		h.open(now)
		h.probeInFlight = false
	case StateOpen:
		// Late failure from a request admitted before the trip.
	}
}

func (h *VenueHealth) open(now time.Time) {
	h.state = StateOpen
	h.openedAt = now
	h.consecutiveFailures = 0
}

// State returns the current breaker position.
func (h *VenueHealth) State() BreakerState {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.state
}

// Reliability returns the EWMA success score in [0, 1].
func (h *VenueHealth) Reliability() float64 {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.reliability
}

// Cooldown returns the current open duration, for observability.
func (h *VenueHealth) Cooldown() time.Duration {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.cooldown
}
