package app

import (
	"context"
	"errors"
	"math/big"
	"sync"
	"testing"
	"time"

	"github.com/fd1az/arb-engine/business/arbitrage/domain"
	blockchain "github.com/fd1az/arb-engine/business/blockchain/domain"
	execdomain "github.com/fd1az/arb-engine/business/execution/domain"
	oppapp "github.com/fd1az/arb-engine/business/opportunity/app"
	opp "github.com/fd1az/arb-engine/business/opportunity/domain"
	quotes "github.com/fd1az/arb-engine/business/quotes/domain"
	venues "github.com/fd1az/arb-engine/business/venues/domain"
	"github.com/fd1az/arb-engine/internal/asset"
	"github.com/fd1az/arb-engine/internal/logger"
)

type fakeFinder struct {
	candidate *opp.Opportunity
	err       error
	calls     int
}

func (f *fakeFinder) FindBest(context.Context, venues.Pair, oppapp.SizingParams, uint64) (*opp.Opportunity, error) {
	f.calls++
	return f.candidate, f.err
}

type fixedScorer struct{ decision opp.Decision }

func (s fixedScorer) Assess(o *opp.Opportunity, _ time.Time) opp.Decision {
	o.Decision = s.decision
	return s.decision
}

type fakeExecutor struct {
	rec  *execdomain.Record
	err  error
	done chan string
}

func (f *fakeExecutor) Execute(_ context.Context, id string) (*execdomain.Record, error) {
	if f.done != nil {
		defer func() { f.done <- id }()
	}
	return f.rec, f.err
}

type noBlocks struct{}

func (noBlocks) SubscribeBlocks(context.Context) (<-chan *blockchain.Block, error) {
	return nil, errors.New("not wired")
}

type noHealth struct{}

func (noHealth) All() []*quotes.VenueHealth { return nil }

type rosterHealth struct{ roster []*quotes.VenueHealth }

func (r rosterHealth) All() []*quotes.VenueHealth { return r.roster }

type venueHealthUpdate struct {
	venue       string
	state       string
	reliability float64
}

type captureReporter struct {
	mu            sync.Mutex
	opportunities []*opp.Opportunity
	executions    []*execdomain.Record
	ticks         []domain.TickReport
	healthUpdates []venueHealthUpdate
}

func (r *captureReporter) Start(context.Context) error { return nil }
func (r *captureReporter) Stop() error                 { return nil }

func (r *captureReporter) ReportOpportunity(o *opp.Opportunity) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.opportunities = append(r.opportunities, o)
}

func (r *captureReporter) ReportExecution(rec *execdomain.Record) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.executions = append(r.executions, rec)
}

func (r *captureReporter) ReportTick(t domain.TickReport) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.ticks = append(r.ticks, t)
}

func (r *captureReporter) UpdateVenueHealth(venue, state string, reliability float64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.healthUpdates = append(r.healthUpdates, venueHealthUpdate{venue, state, reliability})
}

func enginePair(t *testing.T) (venues.Pair, *asset.Asset, *asset.Asset) {
	t.Helper()
	reg := asset.DefaultRegistry()
	weth, ok := reg.GetBySymbolAndChain("WETH", asset.ChainIDEthereum)
	if !ok {
		t.Fatal("WETH missing")
	}
	dai, ok := reg.GetBySymbolAndChain("DAI", asset.ChainIDEthereum)
	if !ok {
		t.Fatal("DAI missing")
	}
	return venues.NewPair(weth, dai), weth, dai
}

func candidateFor(t *testing.T, pair venues.Pair, weth, dai *asset.Asset) *opp.Opportunity {
	t.Helper()
	borrow := asset.NewAmount(weth, big.NewInt(1e18))
	sellOut := asset.NewAmount(dai, new(big.Int).Mul(big.NewInt(2000), big.NewInt(1e18)))
	buyOut := asset.NewAmount(weth, big.NewInt(1.01e18))

	sell := venues.NewQuote("alpha", venues.KindConstantProduct, weth, dai, borrow, sellOut, time.Second)
	buy := venues.NewQuote("beta", venues.KindConstantProduct, dai, weth, sellOut, buyOut, time.Second)

	o := opp.New(pair, borrow, sell, buy, 42)
	o.NetProfit = asset.NewAmount(weth, big.NewInt(5e15))
	return o
}

func newEngine(t *testing.T, finder OpportunityFinder, scorer RiskScorer, store *oppapp.Store, executor Executor, reporter Reporter, pair venues.Pair) *Engine {
	t.Helper()
	e, err := NewEngine(finder, scorer, store, executor, noBlocks{}, noHealth{}, reporter, EngineConfig{
		Pairs:        []PairSizing{{Pair: pair}},
		Trigger:      domain.TriggerTicker,
		TickInterval: time.Hour, // ticks driven manually in tests
	}, logger.Nop())
	if err != nil {
		t.Fatalf("NewEngine: %v", err)
	}
	return e
}

func TestTickDispatchesExecutableCandidate(t *testing.T) {
	pair, weth, dai := enginePair(t)
	o := candidateFor(t, pair, weth, dai)
	store := oppapp.NewStore(16)
	done := make(chan string, 1)
	executor := &fakeExecutor{
		rec:  &execdomain.Record{OpportunityID: o.ID, Outcome: execdomain.OutcomeExecuted},
		done: done,
	}
	reporter := &captureReporter{}

	e := newEngine(t, &fakeFinder{candidate: o}, fixedScorer{opp.DecisionExecute}, store, executor, reporter, pair)

	report := e.Tick(context.Background(), 42)
	if report.Detected != 1 || report.Executing != 1 {
		t.Errorf("report = %+v, want 1 detected / 1 executing", report)
	}

	select {
	case id := <-done:
		if id != o.ID {
			t.Errorf("executed %s, want %s", id, o.ID)
		}
	case <-time.After(time.Second):
		t.Fatal("executor never invoked")
	}

	// The execution record reaches the reporter on the dispatch
	// goroutine; give it a moment.
	deadline := time.Now().Add(time.Second)
	for {
		reporter.mu.Lock()
		n := len(reporter.executions)
		reporter.mu.Unlock()
		if n == 1 {
			break
		}
		if time.Now().After(deadline) {
			t.Fatal("execution record never reported")
		}
		time.Sleep(time.Millisecond)
	}

	if len(reporter.opportunities) != 1 {
		t.Errorf("opportunities reported = %d, want 1", len(reporter.opportunities))
	}
}

func TestTickSkipsHighRiskCandidate(t *testing.T) {
	pair, weth, dai := enginePair(t)
	o := candidateFor(t, pair, weth, dai)
	store := oppapp.NewStore(16)
	reporter := &captureReporter{}

	e := newEngine(t, &fakeFinder{candidate: o}, fixedScorer{opp.DecisionSkip}, store, &fakeExecutor{}, reporter, pair)

	report := e.Tick(context.Background(), 42)
	if report.Skipped != 1 || report.Executing != 0 {
		t.Errorf("report = %+v, want 1 skipped / 0 executing", report)
	}
	if got, _ := store.Get(o.ID, time.Now()); got == nil || got.Status != opp.StatusSkipped {
		t.Errorf("stored status = %v, want skipped", got)
	}
}

func TestTickParksWaitingCandidate(t *testing.T) {
	pair, weth, dai := enginePair(t)
	o := candidateFor(t, pair, weth, dai)
	store := oppapp.NewStore(16)

	e := newEngine(t, &fakeFinder{candidate: o}, fixedScorer{opp.DecisionWait}, store, &fakeExecutor{}, &captureReporter{}, pair)

	report := e.Tick(context.Background(), 42)
	if report.Waiting != 1 {
		t.Errorf("report = %+v, want 1 waiting", report)
	}
	if active := store.Active(time.Now()); len(active) != 1 {
		t.Errorf("active = %d, want the waiting candidate retained", len(active))
	}
}

func TestTickCountsScanErrors(t *testing.T) {
	pair, _, _ := enginePair(t)
	store := oppapp.NewStore(16)

	e := newEngine(t, &fakeFinder{err: errors.New("all venues down")}, fixedScorer{opp.DecisionWait}, store, &fakeExecutor{}, &captureReporter{}, pair)

	report := e.Tick(context.Background(), 42)
	if report.Errors != 1 || report.Detected != 0 {
		t.Errorf("report = %+v, want 1 error / 0 detected", report)
	}
}

func TestTickQuietOnEmptyScan(t *testing.T) {
	pair, _, _ := enginePair(t)
	store := oppapp.NewStore(16)
	reporter := &captureReporter{}

	e := newEngine(t, &fakeFinder{}, fixedScorer{opp.DecisionWait}, store, &fakeExecutor{}, reporter, pair)

	report := e.Tick(context.Background(), 42)
	if report.Detected != 0 || report.Errors != 0 {
		t.Errorf("report = %+v, want clean empty round", report)
	}
	if len(reporter.ticks) != 1 {
		t.Errorf("tick reports = %d, want 1", len(reporter.ticks))
	}
}

func TestTickReportsReadableVenueStates(t *testing.T) {
	pair, _, _ := enginePair(t)
	store := oppapp.NewStore(16)
	reporter := &captureReporter{}

	healthy := quotes.NewVenueHealth("alpha", quotes.HealthConfig{FailureThreshold: 1})
	tripped := quotes.NewVenueHealth("beta", quotes.HealthConfig{FailureThreshold: 1})
	tripped.RecordFailure(time.Now())

	e, err := NewEngine(&fakeFinder{}, fixedScorer{opp.DecisionWait}, store, &fakeExecutor{},
		noBlocks{}, rosterHealth{[]*quotes.VenueHealth{healthy, tripped}}, reporter, EngineConfig{
			Pairs:        []PairSizing{{Pair: pair}},
			Trigger:      domain.TriggerTicker,
			TickInterval: time.Hour,
		}, logger.Nop())
	if err != nil {
		t.Fatalf("NewEngine: %v", err)
	}

	e.Tick(context.Background(), 42)

	reporter.mu.Lock()
	defer reporter.mu.Unlock()
	if len(reporter.healthUpdates) != 2 {
		t.Fatalf("health updates = %d, want 2", len(reporter.healthUpdates))
	}
	want := map[string]string{"alpha": "closed", "beta": "open"}
	for _, u := range reporter.healthUpdates {
		if u.state != want[u.venue] {
			t.Errorf("venue %s reported state %q, want %q", u.venue, u.state, want[u.venue])
		}
	}
}

func TestNewEngineRejectsEmptyRoster(t *testing.T) {
	store := oppapp.NewStore(16)
	_, err := NewEngine(&fakeFinder{}, fixedScorer{}, store, &fakeExecutor{}, noBlocks{}, noHealth{}, &captureReporter{}, EngineConfig{
		Trigger:      domain.TriggerTicker,
		TickInterval: time.Second,
	}, logger.Nop())
	if err == nil {
		t.Fatal("want error for empty pair roster")
	}
}
