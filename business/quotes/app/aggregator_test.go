package app

import (
	"context"
	"errors"
	"math/big"
	"sync/atomic"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"github.com/fd1az/arb-engine/business/quotes/domain"
	venuesapp "github.com/fd1az/arb-engine/business/venues/app"
	venues "github.com/fd1az/arb-engine/business/venues/domain"
	"github.com/fd1az/arb-engine/internal/asset"
	"github.com/fd1az/arb-engine/internal/logger"
)

type fakeAdapter struct {
	venue venues.Venue
	out   *big.Int
	err   error
	calls atomic.Int32
}

func (f *fakeAdapter) Venue() venues.Venue { return f.venue }

func (f *fakeAdapter) Quote(_ context.Context, tokenIn, tokenOut *asset.Asset, amountIn asset.Amount) (*venues.Quote, error) {
	f.calls.Add(1)
	if f.err != nil {
		return nil, f.err
	}
	q := venues.NewQuote(f.venue.Name, f.venue.Kind, tokenIn, tokenOut,
		amountIn, asset.NewAmount(tokenOut, f.out), time.Minute)
	return &q, nil
}

func (f *fakeAdapter) PoolState(context.Context, venues.Pair) (*venues.PoolState, error) {
	return nil, errors.New("not implemented")
}

func (f *fakeAdapter) BuildExecutionStep(*venues.Quote, asset.Amount) ([]byte, error) {
	return nil, errors.New("not implemented")
}

func testAssets(t *testing.T) (*asset.Asset, *asset.Asset) {
	t.Helper()
	reg := asset.DefaultRegistry()
	weth, ok := reg.GetBySymbolAndChain("WETH", asset.ChainIDEthereum)
	if !ok {
		t.Fatal("WETH missing from default registry")
	}
	usdc, ok := reg.GetBySymbolAndChain("USDC", asset.ChainIDEthereum)
	if !ok {
		t.Fatal("USDC missing from default registry")
	}
	return weth, usdc
}

func newFake(t *testing.T, name string, out int64, err error) *fakeAdapter {
	t.Helper()
	weth, usdc := testAssets(t)
	return &fakeAdapter{
		venue: venues.Venue{
			Name: name,
			Kind: venues.KindConstantProduct,
			Pools: []venues.PoolRef{
				{Pair: venues.NewPair(weth, usdc), Address: common.HexToAddress("0x01")},
			},
		},
		out: big.NewInt(out),
		err: err,
	}
}

func newAggregator(t *testing.T, cacheTTL time.Duration, adapters ...venuesapp.Adapter) *Aggregator {
	t.Helper()
	health := NewHealthRegistry(domain.HealthConfig{
		FailureThreshold: 5,
		Cooldown:         time.Hour,
		MaxCooldown:      2 * time.Hour,
	})
	agg, err := NewAggregator(venuesapp.NewService(adapters), health, Config{
		VenueTimeout:       time.Second,
		AggregationTimeout: 2 * time.Second,
		CacheTTL:           cacheTTL,
		MaxConcurrent:      4,
	}, logger.Nop())
	if err != nil {
		t.Fatalf("NewAggregator: %v", err)
	}
	t.Cleanup(agg.Close)
	return agg
}

func TestAggregateCollectsAndSorts(t *testing.T) {
	weth, usdc := testAssets(t)
	low := newFake(t, "slow-swap", 2_000_000_000, nil)
	high := newFake(t, "deep-swap", 2_010_000_000, nil)
	agg := newAggregator(t, 0, low, high)

	set, err := agg.Aggregate(context.Background(), weth, usdc, asset.NewAmountFromInt64(weth, 1_000_000))
	if err != nil {
		t.Fatalf("Aggregate: %v", err)
	}
	if len(set.Quotes) != 2 {
		t.Fatalf("quotes = %d, want 2", len(set.Quotes))
	}
	if set.Best().Venue != "deep-swap" {
		t.Errorf("best venue = %s, want deep-swap", set.Best().Venue)
	}
	if set.FailedVenues != 0 {
		t.Errorf("FailedVenues = %d, want 0", set.FailedVenues)
	}
	if second := set.BestExcluding("deep-swap"); second == nil || second.Venue != "slow-swap" {
		t.Error("BestExcluding must surface the runner-up venue")
	}
}

func TestAggregateCountsFailures(t *testing.T) {
	weth, usdc := testAssets(t)
	ok := newFake(t, "deep-swap", 2_000_000_000, nil)
	bad := newFake(t, "flaky-swap", 0, errors.New("rpc down"))
	agg := newAggregator(t, 0, ok, bad)

	set, err := agg.Aggregate(context.Background(), weth, usdc, asset.NewAmountFromInt64(weth, 1_000_000))
	if err != nil {
		t.Fatalf("Aggregate: %v", err)
	}
	if len(set.Quotes) != 1 || set.FailedVenues != 1 {
		t.Errorf("quotes = %d, failed = %d, want 1/1", len(set.Quotes), set.FailedVenues)
	}
}

func TestAggregateAllVenuesFailed(t *testing.T) {
	weth, usdc := testAssets(t)
	bad := newFake(t, "flaky-swap", 0, errors.New("rpc down"))
	agg := newAggregator(t, 0, bad)

	if _, err := agg.Aggregate(context.Background(), weth, usdc, asset.NewAmountFromInt64(weth, 1_000_000)); err == nil {
		t.Fatal("expected error when no venue answers")
	}
}

func TestAggregateSkipsOpenBreaker(t *testing.T) {
	weth, usdc := testAssets(t)
	ok := newFake(t, "deep-swap", 2_000_000_000, nil)
	bad := newFake(t, "flaky-swap", 0, errors.New("rpc down"))
	agg := newAggregator(t, 0, ok, bad)
	amt := asset.NewAmountFromInt64(weth, 1_000_000)

	// Five failing rounds trip the venue breaker.
	for i := 0; i < 5; i++ {
		if _, err := agg.Aggregate(context.Background(), weth, usdc, amt); err != nil {
			t.Fatalf("round %d: %v", i, err)
		}
	}
	if got := agg.Health().Get("flaky-swap").State(); got != domain.StateOpen {
		t.Fatalf("breaker state = %s, want open", got)
	}

	callsBefore := bad.calls.Load()
	set, err := agg.Aggregate(context.Background(), weth, usdc, amt)
	if err != nil {
		t.Fatalf("Aggregate: %v", err)
	}
	if bad.calls.Load() != callsBefore {
		t.Error("open breaker must keep the venue from being called")
	}
	if set.FailedVenues != 1 {
		t.Errorf("breaker skip must count as a failed venue, got %d", set.FailedVenues)
	}
}

func TestAggregateServesFromCache(t *testing.T) {
	weth, usdc := testAssets(t)
	ok := newFake(t, "deep-swap", 2_000_000_000, nil)
	agg := newAggregator(t, time.Minute, ok)
	amt := asset.NewAmountFromInt64(weth, 1_000_000)

	for i := 0; i < 3; i++ {
		if _, err := agg.Aggregate(context.Background(), weth, usdc, amt); err != nil {
			t.Fatalf("round %d: %v", i, err)
		}
	}
	if got := ok.calls.Load(); got != 1 {
		t.Errorf("adapter called %d times, want 1 (cache hit)", got)
	}

	// A different size must not reuse the entry.
	other := asset.NewAmountFromInt64(weth, 2_000_000)
	if _, err := agg.Aggregate(context.Background(), weth, usdc, other); err != nil {
		t.Fatalf("Aggregate: %v", err)
	}
	if got := ok.calls.Load(); got != 2 {
		t.Errorf("adapter called %d times, want 2 after size change", got)
	}
}
