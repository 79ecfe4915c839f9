package app

import (
	"context"
	"errors"
	"math/big"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/fd1az/arb-engine/business/execution/domain"
	oppapp "github.com/fd1az/arb-engine/business/opportunity/app"
	opp "github.com/fd1az/arb-engine/business/opportunity/domain"
	venuesapp "github.com/fd1az/arb-engine/business/venues/app"
	venues "github.com/fd1az/arb-engine/business/venues/domain"
	"github.com/fd1az/arb-engine/internal/apperror"
	"github.com/fd1az/arb-engine/internal/asset"
	"github.com/fd1az/arb-engine/internal/logger"
)

// legAdapter answers requotes with a fixed output per direction.
type legAdapter struct {
	name string
	outs map[string]*big.Int // tokenIn>tokenOut -> amount out
	err  error
}

func (f *legAdapter) Venue() venues.Venue {
	return venues.Venue{Name: f.name, Kind: venues.KindConstantProduct}
}

func (f *legAdapter) Quote(_ context.Context, tokenIn, tokenOut *asset.Asset, amountIn asset.Amount) (*venues.Quote, error) {
	if f.err != nil {
		return nil, f.err
	}
	out, ok := f.outs[tokenIn.Symbol()+">"+tokenOut.Symbol()]
	if !ok {
		return nil, errors.New("no rate configured")
	}
	q := venues.NewQuote(f.name, venues.KindConstantProduct, tokenIn, tokenOut,
		amountIn, asset.NewAmount(tokenOut, out), 200*time.Millisecond)
	return &q, nil
}

func (f *legAdapter) PoolState(context.Context, venues.Pair) (*venues.PoolState, error) {
	return nil, errors.New("not implemented")
}

func (f *legAdapter) BuildExecutionStep(q *venues.Quote, minOut asset.Amount) ([]byte, error) {
	return []byte(q.Venue + ":" + minOut.Raw().String()), nil
}

type fakeDirectory map[string]venuesapp.Adapter

func (d fakeDirectory) Adapter(name string) (venuesapp.Adapter, bool) {
	a, ok := d[name]
	return a, ok
}

// fakeSubmitter scripts the broadcast and receipt phases.
type fakeSubmitter struct {
	submitErr error
	receipt   *TxReceipt
	submits   int
	mu        sync.Mutex
}

func (f *fakeSubmitter) Submit(context.Context, *domain.Plan) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.submits++
	if f.submitErr != nil {
		return "", f.submitErr
	}
	return "0xabc123", nil
}

func (f *fakeSubmitter) Receipt(context.Context, string) (*TxReceipt, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.receipt, nil
}

// zeroGas values the settlement's gas at nothing, keeping profit math
// in the tests driven by the quotes alone.
type zeroGas struct{}

func (zeroGas) RepriceGas(_ context.Context, base *asset.Asset, _, _ uint64) (asset.Amount, error) {
	return asset.NewAmountFromInt64(base, 0), nil
}

type fixedRisk struct{ decision opp.Decision }

func (f fixedRisk) Assess(*opp.Opportunity, time.Time) opp.Decision { return f.decision }

type healthLog struct {
	mu        sync.Mutex
	successes []string
	failures  []string
}

func (h *healthLog) RecordSuccess(venue string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.successes = append(h.successes, venue)
}

func (h *healthLog) RecordFailure(venue string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.failures = append(h.failures, venue)
}

func execAssets(t *testing.T) (*asset.Asset, *asset.Asset) {
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
	return weth, dai
}

// seedOpportunity builds a detected WETH-DAI candidate: borrow 1 WETH,
// sell for 2000 DAI on alpha, buy back 1.01 WETH on beta.
func seedOpportunity(t *testing.T, store *oppapp.Store) (*opp.Opportunity, *asset.Asset, *asset.Asset) {
	t.Helper()
	weth, dai := execAssets(t)

	borrow := asset.NewAmount(weth, big.NewInt(1e18))
	sellOut := asset.NewAmount(dai, new(big.Int).Mul(big.NewInt(2000), big.NewInt(1e18)))
	buyOut := asset.NewAmount(weth, big.NewInt(1.01e18))

	sell := venues.NewQuote("alpha", venues.KindConstantProduct, weth, dai, borrow, sellOut, 200*time.Millisecond)
	buy := venues.NewQuote("beta", venues.KindConstantProduct, dai, weth, sellOut, buyOut, 200*time.Millisecond)

	o := opp.New(venues.NewPair(weth, dai), borrow, sell, buy, 100)
	o.FlashFee = asset.NewAmount(weth, big.NewInt(9e14)) // 9 bps
	o.NetProfit = asset.NewAmount(weth, big.NewInt(5e15))

	if _, err := store.Put(o); err != nil {
		t.Fatalf("Put: %v", err)
	}
	return o, weth, dai
}

// happyDirectory requotes both legs at the original rates.
func happyDirectory() fakeDirectory {
	sellOut := new(big.Int).Mul(big.NewInt(2000), big.NewInt(1e18))
	return fakeDirectory{
		"alpha": &legAdapter{name: "alpha", outs: map[string]*big.Int{"WETH>DAI": sellOut}},
		"beta":  &legAdapter{name: "beta", outs: map[string]*big.Int{"DAI>WETH": big.NewInt(1.01e18)}},
	}
}

func newCoordinator(t *testing.T, store *oppapp.Store, dir VenueDirectory, sub Submitter, health HealthRecorder, cfg Config) *Coordinator {
	t.Helper()
	return newCoordinatorWith(t, store, dir, sub, health, zeroGas{}, fixedRisk{opp.DecisionExecute}, cfg)
}

func newCoordinatorWith(t *testing.T, store *oppapp.Store, dir VenueDirectory, sub Submitter, health HealthRecorder, gas GasValuer, risk RiskScorer, cfg Config) *Coordinator {
	t.Helper()
	c, err := NewCoordinator(store, dir, sub, health, gas, risk, cfg, logger.Nop())
	if err != nil {
		t.Fatalf("NewCoordinator: %v", err)
	}
	return c
}

func TestExecuteConfirmsProfitableOpportunity(t *testing.T) {
	store := oppapp.NewStore(16)
	o, _, _ := seedOpportunity(t, store)
	sub := &fakeSubmitter{receipt: &TxReceipt{Status: 1, GasUsed: 310_000, BlockNumber: 101}}
	health := &healthLog{}

	c := newCoordinator(t, store, happyDirectory(), sub, health, Config{
		SlippageBps:         50,
		ConfirmPollInterval: time.Millisecond,
		GasLimit:            600_000,
	})

	rec, err := c.Execute(context.Background(), o.ID)
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if rec.Outcome != domain.OutcomeExecuted {
		t.Errorf("outcome = %s, want executed", rec.Outcome)
	}
	if rec.GasUsed != 310_000 {
		t.Errorf("gas used = %d, want 310000", rec.GasUsed)
	}
	if len(health.successes) != 2 {
		t.Errorf("reliability successes = %v, want both venues", health.successes)
	}
	if got, _ := store.Get(o.ID, time.Now()); got == nil || got.Status != opp.StatusExecuted {
		t.Errorf("stored status = %v, want executed", got)
	}
}

func TestExecuteAbortsWhenSellLegDegrades(t *testing.T) {
	store := oppapp.NewStore(16)
	o, _, _ := seedOpportunity(t, store)

	// Requote returns 1900 DAI against an original 2000: well past a
	// 50 bps slippage guard.
	degraded := fakeDirectory{
		"alpha": &legAdapter{name: "alpha", outs: map[string]*big.Int{
			"WETH>DAI": new(big.Int).Mul(big.NewInt(1900), big.NewInt(1e18)),
		}},
		"beta": &legAdapter{name: "beta", outs: map[string]*big.Int{"DAI>WETH": big.NewInt(1.01e18)}},
	}
	sub := &fakeSubmitter{}
	health := &healthLog{}

	c := newCoordinator(t, store, degraded, sub, health, Config{
		SlippageBps:         50,
		ConfirmPollInterval: time.Millisecond,
	})

	rec, err := c.Execute(context.Background(), o.ID)
	if !apperror.HasCode(err, apperror.CodeAbortedByRevalidation) {
		t.Fatalf("err = %v, want CodeAbortedByRevalidation", err)
	}
	if rec.Outcome != domain.OutcomeAborted {
		t.Errorf("outcome = %s, want aborted", rec.Outcome)
	}
	if sub.submits != 0 {
		t.Errorf("submits = %d, want 0 before revalidation passes", sub.submits)
	}
	if len(health.failures) != 0 {
		t.Errorf("aborts must not touch reliability, got failures %v", health.failures)
	}
	if got, _ := store.Get(o.ID, time.Now()); got == nil || got.Status != opp.StatusAborted {
		t.Errorf("stored status = %v, want aborted", got)
	}
}

func TestExecuteAbortsWhenBuyBackMissesRepayment(t *testing.T) {
	store := oppapp.NewStore(16)
	o, _, _ := seedOpportunity(t, store)

	// Buy-back barely returns the borrow; with the flash fee on top
	// the repayment floor is unreachable.
	thin := fakeDirectory{
		"alpha": &legAdapter{name: "alpha", outs: map[string]*big.Int{
			"WETH>DAI": new(big.Int).Mul(big.NewInt(2000), big.NewInt(1e18)),
		}},
		"beta": &legAdapter{name: "beta", outs: map[string]*big.Int{"DAI>WETH": big.NewInt(1e18)}},
	}

	c := newCoordinator(t, store, thin, &fakeSubmitter{}, &healthLog{}, Config{
		SlippageBps:         50,
		ConfirmPollInterval: time.Millisecond,
	})

	_, err := c.Execute(context.Background(), o.ID)
	if !apperror.HasCode(err, apperror.CodeAbortedByRevalidation) {
		t.Fatalf("err = %v, want CodeAbortedByRevalidation", err)
	}
}

func TestExecuteAbortsWhenProfitFallsBelowThreshold(t *testing.T) {
	store := oppapp.NewStore(16)
	o, _, _ := seedOpportunity(t, store)

	// The buy-back still clears the repayment floor, but only by a
	// sliver: the refreshed net profit is far under the threshold the
	// candidate cleared at detection.
	repayFloor := new(big.Int).Add(o.Borrow.Raw(), o.FlashFee.Raw())
	thinBuyOut := new(big.Int).Add(repayFloor, big.NewInt(1e12))
	degraded := fakeDirectory{
		"alpha": &legAdapter{name: "alpha", outs: map[string]*big.Int{
			"WETH>DAI": new(big.Int).Mul(big.NewInt(2000), big.NewInt(1e18)),
		}},
		"beta": &legAdapter{name: "beta", outs: map[string]*big.Int{"DAI>WETH": thinBuyOut}},
	}
	sub := &fakeSubmitter{}
	health := &healthLog{}

	c := newCoordinatorWith(t, store, degraded, sub, health, zeroGas{}, fixedRisk{opp.DecisionExecute}, Config{
		SlippageBps:         0,
		ConfirmPollInterval: time.Millisecond,
		MinProfit:           decimal.RequireFromString("0.005"), // 5e15 wei
	})

	rec, err := c.Execute(context.Background(), o.ID)
	if !apperror.HasCode(err, apperror.CodeAbortedByRevalidation) {
		t.Fatalf("err = %v, want CodeAbortedByRevalidation", err)
	}
	if rec.Outcome != domain.OutcomeAborted {
		t.Errorf("outcome = %s, want aborted", rec.Outcome)
	}
	if sub.submits != 0 {
		t.Errorf("submits = %d, want 0 when the refreshed profit misses the threshold", sub.submits)
	}
	if len(health.failures) != 0 {
		t.Errorf("aborts must not touch reliability, got failures %v", health.failures)
	}
	if got, _ := store.Get(o.ID, time.Now()); got == nil || got.Status != opp.StatusAborted {
		t.Errorf("stored status = %v, want aborted", got)
	}
}

func TestExecuteAbortsWhenMarginFallsBelowThreshold(t *testing.T) {
	store := oppapp.NewStore(16)
	o, _, _ := seedOpportunity(t, store)
	sub := &fakeSubmitter{}

	// The requoted rates still net ~91 bps; a 200 bps floor rejects it.
	c := newCoordinatorWith(t, store, happyDirectory(), sub, &healthLog{}, zeroGas{}, fixedRisk{opp.DecisionExecute}, Config{
		SlippageBps:         50,
		ConfirmPollInterval: time.Millisecond,
		MinMarginBps:        200,
	})

	_, err := c.Execute(context.Background(), o.ID)
	if !apperror.HasCode(err, apperror.CodeAbortedByRevalidation) {
		t.Fatalf("err = %v, want CodeAbortedByRevalidation", err)
	}
	if sub.submits != 0 {
		t.Errorf("submits = %d, want 0", sub.submits)
	}
}

func TestExecuteAbortsWhenRiskWorsens(t *testing.T) {
	store := oppapp.NewStore(16)
	o, _, _ := seedOpportunity(t, store)
	sub := &fakeSubmitter{}
	health := &healthLog{}

	c := newCoordinatorWith(t, store, happyDirectory(), sub, health, zeroGas{}, fixedRisk{opp.DecisionSkip}, Config{
		SlippageBps:         50,
		ConfirmPollInterval: time.Millisecond,
	})

	rec, err := c.Execute(context.Background(), o.ID)
	if !apperror.HasCode(err, apperror.CodeAbortedByRevalidation) {
		t.Fatalf("err = %v, want CodeAbortedByRevalidation", err)
	}
	if rec.Outcome != domain.OutcomeAborted {
		t.Errorf("outcome = %s, want aborted", rec.Outcome)
	}
	if sub.submits != 0 {
		t.Errorf("submits = %d, want 0 when the risk verdict is not execute", sub.submits)
	}
	if len(health.failures) != 0 {
		t.Errorf("aborts must not touch reliability, got failures %v", health.failures)
	}
}

func TestExecuteRejectsBusyPair(t *testing.T) {
	store := oppapp.NewStore(16)
	first, weth, dai := seedOpportunity(t, store)

	if _, err := store.BeginExecution(first.ID, time.Now()); err != nil {
		t.Fatalf("BeginExecution: %v", err)
	}

	// A second candidate for the same pair arrives while the first is
	// in flight.
	borrow := asset.NewAmount(weth, big.NewInt(1e18))
	sellOut := asset.NewAmount(dai, new(big.Int).Mul(big.NewInt(2001), big.NewInt(1e18)))
	buyOut := asset.NewAmount(weth, big.NewInt(1.02e18))
	sell := venues.NewQuote("alpha", venues.KindConstantProduct, weth, dai, borrow, sellOut, 200*time.Millisecond)
	buy := venues.NewQuote("beta", venues.KindConstantProduct, dai, weth, sellOut, buyOut, 200*time.Millisecond)
	second := opp.New(venues.NewPair(weth, dai), borrow, sell, buy, 101)
	second.FlashFee = asset.NewAmount(weth, big.NewInt(9e14))
	if _, err := store.Put(second); err != nil {
		t.Fatalf("Put second: %v", err)
	}

	c := newCoordinator(t, store, happyDirectory(), &fakeSubmitter{}, &healthLog{}, Config{
		SlippageBps:         50,
		ConfirmPollInterval: time.Millisecond,
	})

	_, err := c.Execute(context.Background(), second.ID)
	if !apperror.HasCode(err, apperror.CodePairBusy) {
		t.Errorf("err = %v, want CodePairBusy", err)
	}
}

func TestExecuteDryRunSkipsBroadcast(t *testing.T) {
	store := oppapp.NewStore(16)
	o, _, _ := seedOpportunity(t, store)
	sub := &fakeSubmitter{}
	health := &healthLog{}

	c := newCoordinator(t, store, happyDirectory(), sub, health, Config{
		SlippageBps:         50,
		ConfirmPollInterval: time.Millisecond,
		DryRun:              true,
	})

	rec, err := c.Execute(context.Background(), o.ID)
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if rec.Outcome != domain.OutcomeDryRun {
		t.Errorf("outcome = %s, want dry-run", rec.Outcome)
	}
	if sub.submits != 0 {
		t.Errorf("submits = %d, want 0 in dry run", sub.submits)
	}
	if len(health.successes)+len(health.failures) != 0 {
		t.Error("dry runs must not touch reliability")
	}
}

func TestExecuteMarksRevertedSettlement(t *testing.T) {
	store := oppapp.NewStore(16)
	o, _, _ := seedOpportunity(t, store)
	sub := &fakeSubmitter{receipt: &TxReceipt{Status: 0, GasUsed: 290_000, BlockNumber: 102}}
	health := &healthLog{}

	c := newCoordinator(t, store, happyDirectory(), sub, health, Config{
		SlippageBps:         50,
		ConfirmPollInterval: time.Millisecond,
	})

	rec, err := c.Execute(context.Background(), o.ID)
	if !apperror.HasCode(err, apperror.CodeExecutionReverted) {
		t.Fatalf("err = %v, want CodeExecutionReverted", err)
	}
	if rec.Outcome != domain.OutcomeReverted {
		t.Errorf("outcome = %s, want reverted", rec.Outcome)
	}
	if len(health.failures) != 2 {
		t.Errorf("reliability failures = %v, want both venues", health.failures)
	}
	if got, _ := store.Get(o.ID, time.Now()); got == nil || got.Status != opp.StatusFailed {
		t.Errorf("stored status = %v, want failed", got)
	}
}

func TestExecuteTimesOutUnconfirmedTx(t *testing.T) {
	store := oppapp.NewStore(16)
	o, _, _ := seedOpportunity(t, store)
	sub := &fakeSubmitter{receipt: nil} // never confirms
	health := &healthLog{}

	c := newCoordinator(t, store, happyDirectory(), sub, health, Config{
		SlippageBps:         50,
		ConfirmPollInterval: 2 * time.Millisecond,
	})

	rec, err := c.Execute(context.Background(), o.ID)
	if !apperror.HasCode(err, apperror.CodeConfirmationTimeout) {
		t.Fatalf("err = %v, want CodeConfirmationTimeout", err)
	}
	if rec.Outcome != domain.OutcomeFailed {
		t.Errorf("outcome = %s, want failed", rec.Outcome)
	}
	if rec.TxHash == "" {
		t.Error("timeout record must keep the tx hash")
	}
	if len(health.failures) != 2 {
		t.Errorf("reliability failures = %v, want both venues", health.failures)
	}
}

func TestRecordsJournalKeepsAttempts(t *testing.T) {
	store := oppapp.NewStore(16)
	o, _, _ := seedOpportunity(t, store)
	sub := &fakeSubmitter{receipt: &TxReceipt{Status: 1, GasUsed: 300_000, BlockNumber: 103}}

	c := newCoordinator(t, store, happyDirectory(), sub, &healthLog{}, Config{
		SlippageBps:         50,
		ConfirmPollInterval: time.Millisecond,
	})

	if _, err := c.Execute(context.Background(), o.ID); err != nil {
		t.Fatalf("Execute: %v", err)
	}

	recs := c.Records()
	if len(recs) != 1 {
		t.Fatalf("records = %d, want 1", len(recs))
	}
	if recs[0].OpportunityID != o.ID || !recs[0].Succeeded() {
		t.Errorf("unexpected record %+v", recs[0])
	}
}
