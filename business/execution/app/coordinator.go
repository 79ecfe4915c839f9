package app

import (
	"context"
	"fmt"
	"math/big"
	"sync"
	"time"

	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"

	"github.com/fd1az/arb-engine/business/execution/domain"
	oppapp "github.com/fd1az/arb-engine/business/opportunity/app"
	opp "github.com/fd1az/arb-engine/business/opportunity/domain"
	venues "github.com/fd1az/arb-engine/business/venues/domain"
	"github.com/fd1az/arb-engine/internal/apperror"
	"github.com/fd1az/arb-engine/internal/asset"
	"github.com/fd1az/arb-engine/internal/logger"
)

const (
	tracerName = "execution"
	meterName  = "execution"

	bpsDenominator = 10_000

	recordLimit = 256
)

type coordinatorMetrics struct {
	attempts  metric.Int64Counter
	aborts    metric.Int64Counter
	reverts   metric.Int64Counter
	confirmed metric.Int64Counter
	latency   metric.Float64Histogram
}

// Config holds the execution knobs.
type Config struct {
	// SlippageBps guards each leg's minimum output below the
	// revalidated quote.
	SlippageBps int64
	// SafetyMargin is shaved off the opportunity's expiry when
	// deriving the submission and confirmation deadline.
	SafetyMargin        time.Duration
	ConfirmPollInterval time.Duration
	GasLimit            uint64
	// MinProfit and MinMarginBps re-apply the detection thresholds to
	// the refreshed figures; falling below either aborts the attempt.
	MinProfit    decimal.Decimal
	MinMarginBps int64
	// DryRun builds and validates the plan but never broadcasts.
	DryRun bool
}

// Coordinator drives one opportunity from claim to terminal state:
// claim it in the store, revalidate both legs against live pool state,
// encode the settlement plan, submit, and poll for confirmation. Every
// attempt leaves a Record.
type Coordinator struct {
	store     *oppapp.Store
	venueDir  VenueDirectory
	submitter Submitter
	health    HealthRecorder
	gas       GasValuer
	risk      RiskScorer
	cfg       Config

	records   []*domain.Record
	recordsMu sync.RWMutex

	logger  logger.LoggerInterface
	tracer  trace.Tracer
	metrics *coordinatorMetrics
}

// NewCoordinator creates the coordinator.
func NewCoordinator(store *oppapp.Store, venueDir VenueDirectory, submitter Submitter, health HealthRecorder, gas GasValuer, risk RiskScorer, cfg Config, log logger.LoggerInterface) (*Coordinator, error) {
	if cfg.SlippageBps < 0 || cfg.SlippageBps >= bpsDenominator {
		return nil, apperror.New(apperror.CodeInvalidInput,
			apperror.WithContext(fmt.Sprintf("slippage %d bps out of range", cfg.SlippageBps)))
	}
	if cfg.ConfirmPollInterval <= 0 {
		cfg.ConfirmPollInterval = time.Second
	}

	c := &Coordinator{
		store:     store,
		venueDir:  venueDir,
		submitter: submitter,
		health:    health,
		gas:       gas,
		risk:      risk,
		cfg:       cfg,
		logger:    log,
		tracer:    otel.Tracer(tracerName),
	}
	if err := c.initMetrics(); err != nil {
		return nil, fmt.Errorf("init metrics: %w", err)
	}
	return c, nil
}

func (c *Coordinator) initMetrics() error {
	meter := otel.Meter(meterName)
	m := &coordinatorMetrics{}
	var err error

	if m.attempts, err = meter.Int64Counter("execution.attempts",
		metric.WithDescription("Execution attempts claimed")); err != nil {
		return err
	}
	if m.aborts, err = meter.Int64Counter("execution.aborts",
		metric.WithDescription("Attempts aborted before submission")); err != nil {
		return err
	}
	if m.reverts, err = meter.Int64Counter("execution.reverts",
		metric.WithDescription("Settlement transactions reverted on-chain")); err != nil {
		return err
	}
	if m.confirmed, err = meter.Int64Counter("execution.confirmed",
		metric.WithDescription("Settlement transactions confirmed successfully")); err != nil {
		return err
	}
	if m.latency, err = meter.Float64Histogram("execution.latency_seconds",
		metric.WithDescription("Claim-to-terminal latency")); err != nil {
		return err
	}

	c.metrics = m
	return nil
}

// Execute claims the opportunity and drives it to a terminal state.
// The returned record is also retained in the journal.
func (c *Coordinator) Execute(ctx context.Context, id string) (*domain.Record, error) {
	start := time.Now()

	ctx, span := c.tracer.Start(ctx, "execution.Execute",
		trace.WithAttributes(attribute.String("opportunity_id", id)))
	defer span.End()

	o, err := c.store.BeginExecution(id, start)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "claim failed")
		return nil, err
	}
	c.metrics.attempts.Add(ctx, 1)

	rec := &domain.Record{
		OpportunityID:     o.ID,
		PairKey:           o.Pair.Key(),
		SellVenue:         o.SellLeg.Venue,
		BuyVenue:          o.BuyLeg.Venue,
		Borrow:            o.Borrow,
		ExpectedNetProfit: o.NetProfit,
	}
	defer func() {
		rec.FinishedAt = time.Now()
		c.append(rec)
		c.metrics.latency.Record(ctx, time.Since(start).Seconds(),
			metric.WithAttributes(attribute.String("outcome", string(rec.Outcome))))
	}()

	plan, err := c.revalidate(ctx, o, rec)
	if err != nil {
		c.metrics.aborts.Add(ctx, 1)
		span.RecordError(err)
		span.SetStatus(codes.Error, "aborted")
		return rec, err
	}

	if c.cfg.DryRun {
		rec.Outcome = domain.OutcomeDryRun
		rec.Reason = "dry run, plan built and not broadcast"
		c.finish(ctx, o.ID, opp.StatusExecuted, rec.Reason)
		span.SetStatus(codes.Ok, "")
		c.logger.Info(ctx, "dry run complete",
			"opportunity", o.ID, "pair", rec.PairKey, "steps", len(plan.Steps))
		return rec, nil
	}

	txHash, err := c.submitter.Submit(ctx, plan)
	if err != nil {
		rec.Outcome = domain.OutcomeFailed
		rec.Reason = err.Error()
		c.finish(ctx, o.ID, opp.StatusFailed, "submission failed")
		c.recordOutcome(o, false)
		span.RecordError(err)
		span.SetStatus(codes.Error, "submission failed")
		return rec, apperror.Wrap(err, apperror.CodeSubmissionFailed, "broadcast settlement")
	}
	rec.TxHash = txHash
	rec.SubmittedAt = time.Now()
	span.SetAttributes(attribute.String("tx_hash", txHash))

	receipt, err := c.confirm(ctx, txHash, plan.Deadline)
	switch {
	case err != nil:
		rec.Outcome = domain.OutcomeFailed
		rec.Reason = err.Error()
		c.finish(ctx, o.ID, opp.StatusFailed, "confirmation timed out")
		c.recordOutcome(o, false)
		span.RecordError(err)
		span.SetStatus(codes.Error, "confirmation timeout")
		return rec, err

	case receipt.Status == 0:
		rec.Outcome = domain.OutcomeReverted
		rec.Reason = "settlement reverted on-chain"
		rec.GasUsed = receipt.GasUsed
		c.metrics.reverts.Add(ctx, 1)
		c.finish(ctx, o.ID, opp.StatusFailed, rec.Reason)
		c.recordOutcome(o, false)
		span.SetStatus(codes.Error, "reverted")
		return rec, apperror.New(apperror.CodeExecutionReverted,
			apperror.WithContext("tx "+txHash))

	default:
		rec.Outcome = domain.OutcomeExecuted
		rec.GasUsed = receipt.GasUsed
		c.metrics.confirmed.Add(ctx, 1)
		c.finish(ctx, o.ID, opp.StatusExecuted, "confirmed")
		c.recordOutcome(o, true)
		span.SetStatus(codes.Ok, "")
		c.logger.Info(ctx, "execution confirmed",
			"opportunity", o.ID, "tx", txHash,
			"block", receipt.BlockNumber, "gas_used", receipt.GasUsed)
		return rec, nil
	}
}

// revalidate re-quotes both legs against live pool state, recomputes
// the profit at current gas, re-scores the risk, and encodes the
// settlement plan. Any degradation past the slippage guard, a buy-back
// that no longer covers the repayment, a net profit below the
// configured thresholds, or a risk verdict other than execute aborts
// the attempt.
func (c *Coordinator) revalidate(ctx context.Context, o *opp.Opportunity, rec *domain.Record) (*domain.Plan, error) {
	deadline := o.ExpiresAt.Add(-c.cfg.SafetyMargin)
	if !time.Now().Before(deadline) {
		c.abort(ctx, o, rec, "expiry inside the safety margin")
		return nil, apperror.New(apperror.CodeOpportunityExpired,
			apperror.WithContext("opportunity "+o.ID))
	}

	sellAdapter, ok := c.venueDir.Adapter(o.SellLeg.Venue)
	if !ok {
		c.abort(ctx, o, rec, "sell venue vanished: "+o.SellLeg.Venue)
		return nil, apperror.New(apperror.CodeAbortedByRevalidation,
			apperror.WithContext("no adapter for "+o.SellLeg.Venue))
	}
	buyAdapter, ok := c.venueDir.Adapter(o.BuyLeg.Venue)
	if !ok {
		c.abort(ctx, o, rec, "buy venue vanished: "+o.BuyLeg.Venue)
		return nil, apperror.New(apperror.CodeAbortedByRevalidation,
			apperror.WithContext("no adapter for "+o.BuyLeg.Venue))
	}

	freshSell, err := sellAdapter.Quote(ctx, o.SellLeg.TokenIn, o.SellLeg.TokenOut, o.Borrow)
	if err != nil {
		c.abort(ctx, o, rec, "sell leg requote failed")
		return nil, apperror.Wrap(err, apperror.CodeAbortedByRevalidation, "requote sell leg")
	}

	minSellOut := applySlippage(o.SellLeg.AmountOut.Raw(), c.cfg.SlippageBps)
	if freshSell.AmountOut.Raw().Cmp(minSellOut) < 0 {
		c.abort(ctx, o, rec, fmt.Sprintf("sell leg degraded: %s < floor %s",
			freshSell.AmountOut.Raw(), minSellOut))
		return nil, apperror.New(apperror.CodeAbortedByRevalidation,
			apperror.WithContext("sell output below slippage floor"))
	}

	freshBuy, err := buyAdapter.Quote(ctx, o.BuyLeg.TokenIn, o.BuyLeg.TokenOut, freshSell.AmountOut)
	if err != nil {
		c.abort(ctx, o, rec, "buy leg requote failed")
		return nil, apperror.Wrap(err, apperror.CodeAbortedByRevalidation, "requote buy leg")
	}

	// The buy-back must cover repayment even in the worst slippage
	// case, or the settlement would revert anyway.
	repayFloor := new(big.Int).Add(o.Borrow.Raw(), o.FlashFee.Raw())
	minBuyOut := applySlippage(freshBuy.AmountOut.Raw(), c.cfg.SlippageBps)
	if minBuyOut.Cmp(repayFloor) <= 0 {
		c.abort(ctx, o, rec, fmt.Sprintf("buy-back no longer covers repayment: %s <= %s",
			minBuyOut, repayFloor))
		return nil, apperror.New(apperror.CodeAbortedByRevalidation,
			apperror.WithContext("unprofitable after revalidation"))
	}

	refreshed, err := c.reprice(ctx, o, freshSell, freshBuy)
	if err != nil {
		c.abort(ctx, o, rec, "gas reprice failed")
		return nil, apperror.Wrap(err, apperror.CodeAbortedByRevalidation, "reprice gas")
	}

	minProfit, err := asset.ParseDecimal(o.Pair.Base, c.cfg.MinProfit)
	if err != nil {
		c.abort(ctx, o, rec, "min profit threshold unparseable")
		return nil, apperror.Wrap(err, apperror.CodeAbortedByRevalidation, "parse min profit")
	}
	if refreshed.NetProfit.Raw().Cmp(minProfit.Raw()) < 0 || refreshed.MarginBps < c.cfg.MinMarginBps {
		c.abort(ctx, o, rec, fmt.Sprintf("profit fell below thresholds: net %s, margin %d bps",
			refreshed.NetProfit.Raw(), refreshed.MarginBps))
		return nil, apperror.New(apperror.CodeAbortedByRevalidation,
			apperror.WithContext("refreshed profit below thresholds"))
	}

	if decision := c.risk.Assess(refreshed, time.Now()); decision != opp.DecisionExecute {
		c.abort(ctx, o, rec, fmt.Sprintf("risk worsened to %s (score %d)", decision, refreshed.RiskScore))
		return nil, apperror.New(apperror.CodeAbortedByRevalidation,
			apperror.WithContext("risk verdict "+string(decision)+" after revalidation"))
	}

	sellStep, err := sellAdapter.BuildExecutionStep(freshSell, asset.NewAmount(freshSell.TokenOut, minSellOut))
	if err != nil {
		c.abort(ctx, o, rec, "sell step encoding failed")
		return nil, apperror.Wrap(err, apperror.CodeAbortedByRevalidation, "encode sell step")
	}
	buyStep, err := buyAdapter.BuildExecutionStep(freshBuy, asset.NewAmount(freshBuy.TokenOut, minBuyOut))
	if err != nil {
		c.abort(ctx, o, rec, "buy step encoding failed")
		return nil, apperror.Wrap(err, apperror.CodeAbortedByRevalidation, "encode buy step")
	}

	return &domain.Plan{
		OpportunityID: o.ID,
		PairKey:       o.Pair.Key(),
		Borrow:        o.Borrow,
		Steps:         [][]byte{sellStep, buyStep},
		GasLimit:      c.cfg.GasLimit,
		Deadline:      deadline,
	}, nil
}

// reprice clones the opportunity with the fresh legs and current gas
// so the profit thresholds and the risk assessor judge what would
// actually be submitted. The stored opportunity stays untouched.
func (c *Coordinator) reprice(ctx context.Context, o *opp.Opportunity, freshSell, freshBuy *venues.Quote) (*opp.Opportunity, error) {
	gasCost, err := c.gas.RepriceGas(ctx, o.Pair.Base, freshSell.GasEstimate, freshBuy.GasEstimate)
	if err != nil {
		return nil, err
	}

	gross := new(big.Int).Sub(freshBuy.AmountOut.Raw(), o.Borrow.Raw())
	net := new(big.Int).Sub(gross, o.FlashFee.Raw())
	net.Sub(net, gasCost.Raw())
	margin := new(big.Int).Mul(net, big.NewInt(bpsDenominator))
	margin.Div(margin, o.Borrow.Raw())

	refreshed := *o
	refreshed.SellLeg = *freshSell
	refreshed.BuyLeg = *freshBuy
	refreshed.GrossProfit = asset.NewAmount(o.Pair.Base, gross)
	refreshed.GasCost = gasCost
	refreshed.NetProfit = asset.NewAmount(o.Pair.Base, net)
	refreshed.MarginBps = margin.Int64()
	return &refreshed, nil
}

// confirm polls for the receipt until the deadline passes.
func (c *Coordinator) confirm(ctx context.Context, txHash string, deadline time.Time) (*TxReceipt, error) {
	ticker := time.NewTicker(c.cfg.ConfirmPollInterval)
	defer ticker.Stop()

	for {
		receipt, err := c.submitter.Receipt(ctx, txHash)
		if err != nil {
			return nil, apperror.Wrap(err, apperror.CodeConfirmationTimeout, "receipt lookup for "+txHash)
		}
		if receipt != nil {
			return receipt, nil
		}
		if !time.Now().Before(deadline) {
			return nil, apperror.New(apperror.CodeConfirmationTimeout,
				apperror.WithContext("tx "+txHash+" unconfirmed at deadline"))
		}

		select {
		case <-ticker.C:
		case <-ctx.Done():
			return nil, apperror.Wrap(ctx.Err(), apperror.CodeConfirmationTimeout, "context done waiting for "+txHash)
		}
	}
}

// Records returns the attempt journal, newest last.
func (c *Coordinator) Records() []*domain.Record {
	c.recordsMu.RLock()
	defer c.recordsMu.RUnlock()
	out := make([]*domain.Record, len(c.records))
	copy(out, c.records)
	return out
}

func (c *Coordinator) abort(ctx context.Context, o *opp.Opportunity, rec *domain.Record, reason string) {
	rec.Outcome = domain.OutcomeAborted
	rec.Reason = reason
	c.finish(ctx, o.ID, opp.StatusAborted, reason)
	c.logger.Warn(ctx, "execution aborted",
		"opportunity", o.ID, "pair", o.Pair.String(), "reason", reason)
}

func (c *Coordinator) finish(ctx context.Context, id string, status opp.Status, reason string) {
	if err := c.store.FinishExecution(id, status, reason); err != nil {
		c.logger.Error(ctx, "failed to finalize opportunity", "opportunity", id, "error", err)
	}
}

// recordOutcome feeds both venues' reliability with the attempt result.
// Aborts before submission deliberately leave reliability untouched.
func (c *Coordinator) recordOutcome(o *opp.Opportunity, success bool) {
	for _, venue := range []string{o.SellLeg.Venue, o.BuyLeg.Venue} {
		if success {
			c.health.RecordSuccess(venue)
		} else {
			c.health.RecordFailure(venue)
		}
	}
}

func (c *Coordinator) append(rec *domain.Record) {
	c.recordsMu.Lock()
	defer c.recordsMu.Unlock()
	c.records = append(c.records, rec)
	if len(c.records) > recordLimit {
		c.records = c.records[len(c.records)-recordLimit:]
	}
}

// applySlippage returns out scaled down by slippageBps.
func applySlippage(out *big.Int, slippageBps int64) *big.Int {
	scaled := new(big.Int).Mul(out, big.NewInt(bpsDenominator-slippageBps))
	return scaled.Div(scaled, big.NewInt(bpsDenominator))
}
