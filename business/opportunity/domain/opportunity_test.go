package domain

import (
	"testing"
	"time"

	venues "github.com/fd1az/arb-engine/business/venues/domain"
	"github.com/fd1az/arb-engine/internal/asset"
)

func testOpportunity(t *testing.T, validity time.Duration) *Opportunity {
	t.Helper()
	reg := asset.DefaultRegistry()
	weth, _ := reg.GetBySymbolAndChain("WETH", asset.ChainIDEthereum)
	usdc, _ := reg.GetBySymbolAndChain("USDC", asset.ChainIDEthereum)
	pair := venues.NewPair(weth, usdc)

	borrow := asset.NewAmountFromInt64(weth, 1_000_000)
	sell := venues.NewQuote("deep-swap", venues.KindConstantProduct, weth, usdc,
		borrow, asset.NewAmountFromInt64(usdc, 2_000), validity)
	buy := venues.NewQuote("slow-swap", venues.KindConstantProduct, usdc, weth,
		asset.NewAmountFromInt64(usdc, 2_000), asset.NewAmountFromInt64(weth, 1_001_000), validity)

	return New(pair, borrow, sell, buy, 123)
}

func TestNewOpportunity(t *testing.T) {
	o := testOpportunity(t, time.Minute)

	if o.ID == "" {
		t.Error("opportunity must get an ID")
	}
	if o.Status != StatusDetected {
		t.Errorf("status = %s, want detected", o.Status)
	}
	if o.Expired(time.Now()) {
		t.Error("fresh opportunity must not be expired")
	}
	if o.ExpiresAt.After(o.SellLeg.ValidUntil) || o.ExpiresAt.After(o.BuyLeg.ValidUntil) {
		t.Error("expiry must not outlive either leg quote")
	}
}

func TestTransitions(t *testing.T) {
	o := testOpportunity(t, time.Minute)

	if err := o.Transition(StatusExecuted, ""); err == nil {
		t.Error("detected -> executed must be rejected")
	}
	if err := o.Transition(StatusExecuting, ""); err != nil {
		t.Fatalf("detected -> executing: %v", err)
	}
	if err := o.Transition(StatusExecuted, "confirmed"); err != nil {
		t.Fatalf("executing -> executed: %v", err)
	}
	if !o.Status.Terminal() {
		t.Error("executed must be terminal")
	}
	if err := o.Transition(StatusExecuting, ""); err == nil {
		t.Error("terminal opportunity must refuse further transitions")
	}
}

func TestExecutable(t *testing.T) {
	o := testOpportunity(t, 10*time.Millisecond)
	if !o.Executable(time.Now()) {
		t.Fatal("fresh detected opportunity must be executable")
	}
	if o.Executable(o.ExpiresAt.Add(time.Second)) {
		t.Error("expired opportunity must not be executable")
	}

	o2 := testOpportunity(t, time.Minute)
	_ = o2.Transition(StatusSkipped, "risk")
	if o2.Executable(time.Now()) {
		t.Error("skipped opportunity must not be executable")
	}
}
