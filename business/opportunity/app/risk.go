package app

import (
	"time"

	"github.com/fd1az/arb-engine/business/opportunity/domain"
	"github.com/fd1az/arb-engine/internal/asset"
)

// RiskWeights are the relative factor weights; the assessor normalizes
// them, so only their ratios matter.
type RiskWeights struct {
	Liquidity   float64
	Impact      float64
	Reliability float64
	Time        float64
}

// RiskThresholds map a 0-100 score to a verdict. Scores below
// ExecuteBelow execute, above SkipAbove skip, in between wait for a
// better round.
type RiskThresholds struct {
	ExecuteBelow int
	SkipAbove    int
}

// Assessor scores opportunities 0 (safe) to 100 (hopeless) from four
// factors: liquidity utilization, price impact, venue reliability, and
// remaining quote lifetime.
type Assessor struct {
	weights          RiskWeights
	thresholds       RiskThresholds
	reliability      ReliabilityReader
	impactCeilingBps int64
}

// NewAssessor creates the assessor. Zero weights fall back to equal
// weighting.
func NewAssessor(weights RiskWeights, thresholds RiskThresholds, reliability ReliabilityReader, impactCeilingBps int64) *Assessor {
	if weights.Liquidity == 0 && weights.Impact == 0 && weights.Reliability == 0 && weights.Time == 0 {
		weights = RiskWeights{Liquidity: 1, Impact: 1, Reliability: 1, Time: 1}
	}
	if impactCeilingBps <= 0 {
		impactCeilingBps = 100
	}
	return &Assessor{
		weights:          weights,
		thresholds:       thresholds,
		reliability:      reliability,
		impactCeilingBps: impactCeilingBps,
	}
}

// Assess scores the opportunity and stamps RiskScore and Decision on
// it. The verdict is returned for convenience.
func (a *Assessor) Assess(o *domain.Opportunity, now time.Time) domain.Decision {
	liquidity := a.liquidityFactor(o)
	impact := a.impactFactor(o)
	reliability := a.reliabilityFactor(o)
	timeFactor := a.timeFactor(o, now)

	total := a.weights.Liquidity + a.weights.Impact + a.weights.Reliability + a.weights.Time
	score := (liquidity*a.weights.Liquidity +
		impact*a.weights.Impact +
		reliability*a.weights.Reliability +
		timeFactor*a.weights.Time) / total

	o.RiskScore = clampScore(int(score + 0.5))

	switch {
	case o.RiskScore < a.thresholds.ExecuteBelow:
		o.Decision = domain.DecisionExecute
	case o.RiskScore > a.thresholds.SkipAbove:
		o.Decision = domain.DecisionSkip
	default:
		o.Decision = domain.DecisionWait
	}
	return o.Decision
}

// liquidityFactor is the worse of the two legs' cap utilization: how
// much of the pool's impact-bounded capacity the trade consumes.
func (a *Assessor) liquidityFactor(o *domain.Opportunity) float64 {
	sell := utilization(o.Borrow, o.SellLeg.LiquidityCap)
	buy := utilization(o.SellLeg.AmountOut, o.BuyLeg.LiquidityCap)
	if buy > sell {
		return buy
	}
	return sell
}

func utilization(used, cap asset.Amount) float64 {
	if cap.Raw() == nil || cap.Raw().Sign() <= 0 {
		// No cap information reads as fully utilized.
		return 100
	}
	bps := asset.RatioBps(used.Raw(), cap.Raw())
	return float64(bps) / 100 // 10000 bps -> 100
}

// impactFactor scales the worse leg's impact against the configured
// ceiling.
func (a *Assessor) impactFactor(o *domain.Opportunity) float64 {
	worst := o.SellLeg.ImpactBps
	if o.BuyLeg.ImpactBps > worst {
		worst = o.BuyLeg.ImpactBps
	}
	f := float64(worst) / float64(a.impactCeilingBps) * 100
	if f > 100 {
		return 100
	}
	return f
}

// reliabilityFactor is driven by the less reliable of the two venues.
func (a *Assessor) reliabilityFactor(o *domain.Opportunity) float64 {
	worst := a.reliability.Reliability(o.SellLeg.Venue)
	if r := a.reliability.Reliability(o.BuyLeg.Venue); r < worst {
		worst = r
	}
	if worst < 0 {
		worst = 0
	}
	if worst > 1 {
		worst = 1
	}
	return (1 - worst) * 100
}

// timeFactor grows as the validity window burns down.
func (a *Assessor) timeFactor(o *domain.Opportunity, now time.Time) float64 {
	window := o.ExpiresAt.Sub(o.DetectedAt)
	if window <= 0 {
		return 100
	}
	elapsed := now.Sub(o.DetectedAt)
	if elapsed <= 0 {
		return 0
	}
	f := float64(elapsed) / float64(window) * 100
	if f > 100 {
		return 100
	}
	return f
}

func clampScore(s int) int {
	if s < 0 {
		return 0
	}
	if s > 100 {
		return 100
	}
	return s
}
