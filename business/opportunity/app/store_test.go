package app

import (
	"testing"
	"time"

	"github.com/fd1az/arb-engine/business/opportunity/domain"
	venues "github.com/fd1az/arb-engine/business/venues/domain"
	"github.com/fd1az/arb-engine/internal/apperror"
	"github.com/fd1az/arb-engine/internal/asset"
)

func storeOpportunity(t *testing.T, validity time.Duration) *domain.Opportunity {
	t.Helper()
	weth, dai := modelAssets(t)
	borrow := asset.NewAmountFromInt64(weth, 1_000_000)
	sellOut := asset.NewAmountFromInt64(dai, 2_000_000_000)

	sell := venues.NewQuote("alpha", venues.KindConstantProduct, weth, dai, borrow, sellOut, validity)
	buy := venues.NewQuote("beta", venues.KindConstantProduct, dai, weth,
		sellOut, asset.NewAmountFromInt64(weth, 1_010_000), validity)

	o := domain.New(venues.NewPair(weth, dai), borrow, sell, buy, 0)
	o.NetProfit = asset.NewAmountFromInt64(weth, 10_000)
	return o
}

func TestPutSupersedesOlderCandidate(t *testing.T) {
	s := NewStore(16)
	first := storeOpportunity(t, time.Minute)
	second := storeOpportunity(t, time.Minute)

	if _, err := s.Put(first); err != nil {
		t.Fatalf("Put: %v", err)
	}
	superseded, err := s.Put(second)
	if err != nil {
		t.Fatalf("Put: %v", err)
	}
	if superseded == nil || superseded.ID != first.ID {
		t.Fatal("newer candidate must supersede the older one")
	}
	if first.Status != domain.StatusSuperseded {
		t.Errorf("old status = %s, want superseded", first.Status)
	}

	active := s.Active(time.Now())
	if len(active) != 1 || active[0].ID != second.ID {
		t.Errorf("active book must hold only the newer candidate")
	}
}

func TestOneInFlightPerPair(t *testing.T) {
	s := NewStore(16)
	first := storeOpportunity(t, time.Minute)
	if _, err := s.Put(first); err != nil {
		t.Fatalf("Put: %v", err)
	}

	if _, err := s.BeginExecution(first.ID, time.Now()); err != nil {
		t.Fatalf("BeginExecution: %v", err)
	}

	// A second candidate for the same pair is admitted but cannot
	// start while the first is in flight.
	second := storeOpportunity(t, time.Minute)
	if _, err := s.Put(second); err != nil {
		t.Fatalf("Put: %v", err)
	}
	_, err := s.BeginExecution(second.ID, time.Now())
	if !apperror.HasCode(err, apperror.CodePairBusy) {
		t.Fatalf("err = %v, want PAIR_BUSY", err)
	}

	// Resolving the first releases the pair.
	if err := s.FinishExecution(first.ID, domain.StatusExecuted, "confirmed"); err != nil {
		t.Fatalf("FinishExecution: %v", err)
	}
	if _, err := s.BeginExecution(second.ID, time.Now()); err != nil {
		t.Fatalf("BeginExecution after release: %v", err)
	}
}

func TestActiveKeepsExecutingVisibleBehindNewerCandidate(t *testing.T) {
	s := NewStore(16)
	executing := storeOpportunity(t, time.Minute)
	if _, err := s.Put(executing); err != nil {
		t.Fatalf("Put: %v", err)
	}
	if _, err := s.BeginExecution(executing.ID, time.Now()); err != nil {
		t.Fatalf("BeginExecution: %v", err)
	}

	// A newer candidate takes the pair's active slot while the first
	// is still in flight. Both must stay visible.
	newer := storeOpportunity(t, time.Minute)
	if _, err := s.Put(newer); err != nil {
		t.Fatalf("Put: %v", err)
	}

	active := s.Active(time.Now())
	if len(active) != 2 {
		t.Fatalf("active = %d, want executing and newer candidate", len(active))
	}
	got := map[string]domain.Status{}
	for _, o := range active {
		got[o.ID] = o.Status
	}
	if got[executing.ID] != domain.StatusExecuting {
		t.Errorf("executing opportunity missing or wrong status: %v", got)
	}
	if got[newer.ID] != domain.StatusDetected {
		t.Errorf("newer candidate missing or wrong status: %v", got)
	}

	// Resolving the execution drops it from the active book.
	if err := s.FinishExecution(executing.ID, domain.StatusExecuted, "confirmed"); err != nil {
		t.Fatalf("FinishExecution: %v", err)
	}
	active = s.Active(time.Now())
	if len(active) != 1 || active[0].ID != newer.ID {
		t.Errorf("active after resolve = %d, want only the newer candidate", len(active))
	}
}

func TestBeginExecutionRejectsExpired(t *testing.T) {
	s := NewStore(16)
	o := storeOpportunity(t, 10*time.Millisecond)
	if _, err := s.Put(o); err != nil {
		t.Fatalf("Put: %v", err)
	}

	_, err := s.BeginExecution(o.ID, o.ExpiresAt.Add(time.Second))
	if !apperror.HasCode(err, apperror.CodeOpportunityExpired) {
		t.Fatalf("err = %v, want OPPORTUNITY_EXPIRED", err)
	}
	if o.Status != domain.StatusExpired {
		t.Errorf("status = %s, want expired", o.Status)
	}
}

func TestPurgeExpired(t *testing.T) {
	s := NewStore(16)
	short := storeOpportunity(t, time.Nanosecond)
	long := storeOpportunity(t, time.Hour)

	// Different pairs would be needed for both to stay active; the
	// same pair means the long one supersedes. Put long second so it
	// survives.
	if _, err := s.Put(short); err != nil {
		t.Fatalf("Put: %v", err)
	}
	if _, err := s.Put(long); err != nil {
		t.Fatalf("Put: %v", err)
	}

	n := s.PurgeExpired(time.Now().Add(time.Minute))
	if n != 0 {
		// short was already superseded, not expired.
		t.Errorf("purged %d, want 0", n)
	}

	if got := len(s.Active(time.Now())); got != 1 {
		t.Errorf("active = %d, want 1", got)
	}
}

func TestSkip(t *testing.T) {
	s := NewStore(16)
	o := storeOpportunity(t, time.Minute)
	if _, err := s.Put(o); err != nil {
		t.Fatalf("Put: %v", err)
	}
	if err := s.Skip(o.ID, "risk score above threshold"); err != nil {
		t.Fatalf("Skip: %v", err)
	}
	if o.Status != domain.StatusSkipped {
		t.Errorf("status = %s, want skipped", o.Status)
	}
	if got := len(s.Active(time.Now())); got != 0 {
		t.Errorf("active = %d, want 0", got)
	}

	hist := s.History()
	if len(hist) != 1 || hist[0].ID != o.ID {
		t.Error("skipped opportunity must land in history")
	}
}
