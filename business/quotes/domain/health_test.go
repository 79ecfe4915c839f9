package domain

import (
	"testing"
	"time"
)

func newHealth() *VenueHealth {
	return NewVenueHealth("swapx", HealthConfig{
		FailureThreshold: 5,
		Cooldown:         time.Minute,
		MaxCooldown:      8 * time.Minute,
	})
}

func TestBreakerOpensAfterConsecutiveFailures(t *testing.T) {
	h := newHealth()
	now := time.Now()

	for i := 0; i < 4; i++ {
		h.RecordFailure(now)
		if h.State() != StateClosed {
			t.Fatalf("breaker opened after %d failures", i+1)
		}
	}
	h.RecordFailure(now)
	if h.State() != StateOpen {
		t.Fatal("breaker must open on the 5th consecutive failure")
	}
	if h.Allow(now.Add(30 * time.Second)) {
		t.Error("open breaker must reject before cooldown elapses")
	}
}

func TestSuccessResetsFailureStreak(t *testing.T) {
	h := newHealth()
	now := time.Now()

	for i := 0; i < 4; i++ {
		h.RecordFailure(now)
	}
	h.RecordSuccess(now)
	h.RecordFailure(now)
	if h.State() != StateClosed {
		t.Error("a success in between must reset the consecutive-failure count")
	}
}

func TestHalfOpenProbeSuccessCloses(t *testing.T) {
	h := newHealth()
	now := time.Now()

	for i := 0; i < 5; i++ {
		h.RecordFailure(now)
	}

	probeTime := now.Add(time.Minute)
	if !h.Allow(probeTime) {
		t.Fatal("breaker must admit a probe once the cooldown elapses")
	}
	if h.State() != StateHalfOpen {
		t.Fatalf("state = %s, want half-open", h.State())
	}
	// Only one probe at a time.
	if h.Allow(probeTime) {
		t.Error("half-open must admit exactly one probe")
	}

	h.RecordSuccess(probeTime)
	if h.State() != StateClosed {
		t.Error("probe success must close the breaker")
	}
	if h.Cooldown() != time.Minute {
		t.Errorf("cooldown = %v, want reset to base", h.Cooldown())
	}
}

func TestHalfOpenProbeFailureDoublesCooldown(t *testing.T) {
	h := newHealth()
	now := time.Now()

	for i := 0; i < 5; i++ {
		h.RecordFailure(now)
	}

	// Fail probes repeatedly; cooldown doubles each time, capped.
	wantCooldowns := []time.Duration{
		2 * time.Minute, 4 * time.Minute, 8 * time.Minute, 8 * time.Minute,
	}
	probeTime := now
	cooldown := time.Minute
	for i, want := range wantCooldowns {
		probeTime = probeTime.Add(cooldown)
		if !h.Allow(probeTime) {
			t.Fatalf("round %d: probe not admitted after cooldown", i)
		}
		h.RecordFailure(probeTime)
		if h.State() != StateOpen {
			t.Fatalf("round %d: probe failure must reopen", i)
		}
		if h.Cooldown() != want {
			t.Fatalf("round %d: cooldown = %v, want %v", i, h.Cooldown(), want)
		}
		cooldown = want
	}
}

func TestReliabilityTracksOutcomes(t *testing.T) {
	h := newHealth()
	now := time.Now()

	if h.Reliability() != 1.0 {
		t.Fatalf("initial reliability = %f, want 1.0", h.Reliability())
	}

	for i := 0; i < 10; i++ {
		h.RecordFailure(now)
	}
	low := h.Reliability()
	if low >= 0.5 {
		t.Errorf("reliability after 10 failures = %f, want < 0.5", low)
	}

	for i := 0; i < 10; i++ {
		h.RecordSuccess(now)
	}
	if h.Reliability() <= low {
		t.Error("successes must recover the reliability score")
	}
}
