package app

import (
	"math/big"
	"testing"
	"time"

	"github.com/fd1az/arb-engine/business/opportunity/domain"
	venues "github.com/fd1az/arb-engine/business/venues/domain"
	"github.com/fd1az/arb-engine/internal/asset"
)

type fixedReliability map[string]float64

func (f fixedReliability) Reliability(venue string) float64 {
	if r, ok := f[venue]; ok {
		return r
	}
	return 1.0
}

// riskOpportunity builds a candidate with tunable caps and impacts.
func riskOpportunity(t *testing.T, borrow, sellCap, buyCap int64, impactBps int64) *domain.Opportunity {
	t.Helper()
	weth, dai := modelAssets(t)

	b := asset.NewAmount(weth, big.NewInt(borrow))
	sellOut := asset.NewAmount(dai, big.NewInt(borrow*2000))

	sell := venues.NewQuote("alpha", venues.KindConstantProduct, weth, dai, b, sellOut, time.Minute)
	sell.ImpactBps = impactBps
	sell.LiquidityCap = asset.NewAmount(weth, big.NewInt(sellCap))

	buy := venues.NewQuote("beta", venues.KindConstantProduct, dai, weth,
		sellOut, asset.NewAmount(weth, big.NewInt(borrow+borrow/100)), time.Minute)
	buy.ImpactBps = impactBps
	buy.LiquidityCap = asset.NewAmount(dai, big.NewInt(buyCap))

	return domain.New(venues.NewPair(weth, dai), b, sell, buy, 0)
}

func defaultAssessor(rel ReliabilityReader) *Assessor {
	return NewAssessor(
		RiskWeights{Liquidity: 1, Impact: 1, Reliability: 1, Time: 1},
		RiskThresholds{ExecuteBelow: 30, SkipAbove: 60},
		rel, 100,
	)
}

func TestAssessLowRiskExecutes(t *testing.T) {
	// Tiny utilization, tiny impact, perfect venues, fresh quotes.
	o := riskOpportunity(t, 1_000, 1_000_000, 2_000_000_000, 5)
	a := defaultAssessor(fixedReliability{})

	decision := a.Assess(o, o.DetectedAt)
	if decision != domain.DecisionExecute {
		t.Errorf("decision = %s (score %d), want execute", decision, o.RiskScore)
	}
	if o.RiskScore >= 30 {
		t.Errorf("score = %d, want < 30", o.RiskScore)
	}
}

func TestAssessHighRiskSkips(t *testing.T) {
	// Full cap utilization, impact at ceiling, unreliable venue.
	o := riskOpportunity(t, 1_000, 1_000, 2_000_000, 100)
	a := defaultAssessor(fixedReliability{"beta": 0.2})

	decision := a.Assess(o, o.DetectedAt)
	if decision != domain.DecisionSkip {
		t.Errorf("decision = %s (score %d), want skip", decision, o.RiskScore)
	}
}

func TestAssessStaleQuotesRaiseScore(t *testing.T) {
	o := riskOpportunity(t, 1_000, 1_000_000, 2_000_000_000, 5)
	a := defaultAssessor(fixedReliability{})

	a.Assess(o, o.DetectedAt)
	fresh := o.RiskScore

	a.Assess(o, o.ExpiresAt.Add(-time.Millisecond))
	if o.RiskScore <= fresh {
		t.Errorf("score must rise as the window burns down: %d -> %d", fresh, o.RiskScore)
	}
}

func TestAssessUnreliableVenueRaisesScore(t *testing.T) {
	o := riskOpportunity(t, 1_000, 1_000_000, 2_000_000_000, 5)
	a := defaultAssessor(fixedReliability{})
	a.Assess(o, o.DetectedAt)
	base := o.RiskScore

	o2 := riskOpportunity(t, 1_000, 1_000_000, 2_000_000_000, 5)
	a2 := defaultAssessor(fixedReliability{"alpha": 0.5})
	a2.Assess(o2, o2.DetectedAt)
	if o2.RiskScore <= base {
		t.Errorf("unreliable venue must raise the score: %d -> %d", base, o2.RiskScore)
	}
}

func TestAssessMissingCapReadsAsFullUtilization(t *testing.T) {
	o := riskOpportunity(t, 1_000, 1_000_000, 2_000_000_000, 5)
	o.SellLeg.LiquidityCap = asset.Amount{}
	a := defaultAssessor(fixedReliability{})

	a.Assess(o, o.DetectedAt)
	if o.RiskScore < 25 {
		t.Errorf("score = %d, missing cap info must weigh in heavily", o.RiskScore)
	}
}
