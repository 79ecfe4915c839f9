package app

import (
	"context"
	"errors"
	"math/big"
	"sync/atomic"
	"testing"
	"time"

	"github.com/fd1az/arb-engine/business/opportunity/domain"
	quotes "github.com/fd1az/arb-engine/business/quotes/domain"
	venues "github.com/fd1az/arb-engine/business/venues/domain"
	"github.com/fd1az/arb-engine/internal/asset"
	"github.com/fd1az/arb-engine/internal/logger"
)

// venueRate prices a direction linearly: out = in * num / den.
type venueRate struct {
	venue string
	num   int64
	den   int64
}

// fakeQuoter answers both directions from fixed linear rates, with a
// huge liquidity cap so sizing is unconstrained.
type fakeQuoter struct {
	rates map[string][]venueRate // key: "IN>OUT" symbols
	calls atomic.Int32
}

func dirKey(in, out *asset.Asset) string { return in.Symbol() + ">" + out.Symbol() }

func (f *fakeQuoter) Aggregate(_ context.Context, tokenIn, tokenOut *asset.Asset, amountIn asset.Amount) (*quotes.QuoteSet, error) {
	f.calls.Add(1)
	rates, ok := f.rates[dirKey(tokenIn, tokenOut)]
	if !ok || len(rates) == 0 {
		return nil, errors.New("no venues for direction")
	}

	bigCap := new(big.Int).Exp(big.NewInt(10), big.NewInt(27), nil)
	var qs []venues.Quote
	for _, r := range rates {
		out := new(big.Int).Mul(amountIn.Raw(), big.NewInt(r.num))
		out.Div(out, big.NewInt(r.den))
		q := venues.NewQuote(r.venue, venues.KindConstantProduct, tokenIn, tokenOut,
			amountIn, asset.NewAmount(tokenOut, out), time.Minute)
		q.ImpactBps = 10
		q.LiquidityCap = asset.NewAmount(tokenIn, bigCap)
		q.GasEstimate = 120_000
		qs = append(qs, q)
	}
	return quotes.NewQuoteSet(tokenIn, tokenOut, amountIn, qs, 0), nil
}

type fakeGas struct{ wei int64 }

func (g *fakeGas) GasPriceWei(context.Context) (*big.Int, error) {
	return big.NewInt(g.wei), nil
}

type failingRef struct{}

func (failingRef) Price(context.Context, *asset.Asset, *asset.Asset) (asset.Price, error) {
	return asset.Price{}, errors.New("reference feed down")
}

func modelAssets(t *testing.T) (*asset.Asset, *asset.Asset) {
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

func ethAmt(a *asset.Asset, n int64, exp int64) asset.Amount {
	raw := new(big.Int).Exp(big.NewInt(10), big.NewInt(exp), nil)
	return asset.NewAmount(a, raw.Mul(raw, big.NewInt(n)))
}

func newModel(t *testing.T, quoter Quoter, gasWei int64) *Model {
	t.Helper()
	weth, _ := modelAssets(t)
	m, err := NewModel(quoter, &fakeGas{wei: gasWei}, failingRef{}, weth, ProfitConfig{
		FlashFeeBps:   5,
		MinMarginBps:  10,
		SearchSamples: 4,
	}, logger.Nop())
	if err != nil {
		t.Fatalf("NewModel: %v", err)
	}
	return m
}

func TestFindBestProfitableSpread(t *testing.T) {
	weth, dai := modelAssets(t)
	// Sell WETH at 2000 on alpha, buy back at 1990 on beta: ~50 bps
	// gross spread, against a 5 bps flash fee and fixed gas.
	quoter := &fakeQuoter{rates: map[string][]venueRate{
		"WETH>DAI": {{"alpha", 2_000, 1}, {"beta", 1_995, 1}},
		"DAI>WETH": {{"beta", 1, 1_990}, {"alpha", 1, 2_005}},
	}}
	m := newModel(t, quoter, 10_000_000_000) // 10 gwei

	params := SizingParams{
		Min:       ethAmt(weth, 1, 17),  // 0.1 WETH
		Max:       ethAmt(weth, 10, 18), // 10 WETH
		MinProfit: ethAmt(weth, 1, 14),  // 0.0001 WETH
	}
	opp, err := m.FindBest(context.Background(), venues.NewPair(weth, dai), params, 42)
	if err != nil {
		t.Fatalf("FindBest: %v", err)
	}
	if opp == nil {
		t.Fatal("expected an opportunity")
	}

	if opp.SellLeg.Venue != "alpha" || opp.BuyLeg.Venue != "beta" {
		t.Errorf("legs = %s/%s, want alpha/beta", opp.SellLeg.Venue, opp.BuyLeg.Venue)
	}
	if opp.SellLeg.Venue == opp.BuyLeg.Venue {
		t.Error("legs must be on different venues")
	}
	if opp.NetProfit.Raw().Sign() <= 0 {
		t.Error("net profit must be positive")
	}
	if opp.MarginBps < 10 {
		t.Errorf("margin = %d bps, below threshold yet reported", opp.MarginBps)
	}
	if opp.Status != domain.StatusDetected {
		t.Errorf("status = %s, want detected", opp.Status)
	}

	// Linear rates make profit monotone in size, so the search should
	// end at or near the ceiling.
	half := new(big.Int).Div(params.Max.Raw(), big.NewInt(2))
	if opp.Borrow.Raw().Cmp(half) < 0 {
		t.Errorf("borrow = %s, expected the search to push toward the max", opp.Borrow.Raw())
	}

	// Accounting identity: net = gross - flash fee - gas.
	want := new(big.Int).Sub(opp.GrossProfit.Raw(), opp.FlashFee.Raw())
	want.Sub(want, opp.GasCost.Raw())
	if opp.NetProfit.Raw().Cmp(want) != 0 {
		t.Errorf("net profit %s != gross - fee - gas %s", opp.NetProfit.Raw(), want)
	}
}

func TestFindBestNegativeSpreadShortCircuits(t *testing.T) {
	weth, dai := modelAssets(t)
	// Buying back costs more than selling earned: no spread.
	quoter := &fakeQuoter{rates: map[string][]venueRate{
		"WETH>DAI": {{"alpha", 2_000, 1}},
		"DAI>WETH": {{"beta", 1, 2_010}},
	}}
	m := newModel(t, quoter, 10_000_000_000)

	params := SizingParams{
		Min:       ethAmt(weth, 1, 17),
		Max:       ethAmt(weth, 10, 18),
		MinProfit: ethAmt(weth, 1, 14),
	}
	opp, err := m.FindBest(context.Background(), venues.NewPair(weth, dai), params, 0)
	if err != nil {
		t.Fatalf("FindBest: %v", err)
	}
	if opp != nil {
		t.Fatal("expected no opportunity on a negative spread")
	}
	// One probe = two aggregate calls; the sizing search never ran.
	if got := quoter.calls.Load(); got != 2 {
		t.Errorf("aggregate calls = %d, want 2 (short circuit)", got)
	}
}

func TestFindBestRejectsSameVenueLegs(t *testing.T) {
	weth, dai := modelAssets(t)
	quoter := &fakeQuoter{rates: map[string][]venueRate{
		"WETH>DAI": {{"alpha", 2_000, 1}},
		"DAI>WETH": {{"alpha", 1, 1_990}},
	}}
	m := newModel(t, quoter, 10_000_000_000)

	params := SizingParams{
		Min:       ethAmt(weth, 1, 17),
		Max:       ethAmt(weth, 1, 18),
		MinProfit: ethAmt(weth, 1, 14),
	}
	_, err := m.FindBest(context.Background(), venues.NewPair(weth, dai), params, 0)
	if err == nil {
		t.Fatal("expected error when only one venue quotes both legs")
	}
}

func TestFindBestBelowThresholds(t *testing.T) {
	weth, dai := modelAssets(t)
	// ~2.5 bps gross spread cannot clear a 5 bps flash fee.
	quoter := &fakeQuoter{rates: map[string][]venueRate{
		"WETH>DAI": {{"alpha", 2_000, 1}, {"beta", 1_999, 1}},
		"DAI>WETH": {{"beta", 2, 3_999}, {"alpha", 1, 2_005}},
	}}
	m := newModel(t, quoter, 10_000_000_000)

	params := SizingParams{
		Min:       ethAmt(weth, 1, 17),
		Max:       ethAmt(weth, 10, 18),
		MinProfit: ethAmt(weth, 1, 14),
	}
	opp, err := m.FindBest(context.Background(), venues.NewPair(weth, dai), params, 0)
	if err != nil {
		t.Fatalf("FindBest: %v", err)
	}
	if opp != nil {
		t.Errorf("margin %d bps cleared thresholds unexpectedly", opp.MarginBps)
	}
}
