package app

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"

	"github.com/fd1az/arb-engine/business/arbitrage/domain"
	blockchain "github.com/fd1az/arb-engine/business/blockchain/domain"
	execdomain "github.com/fd1az/arb-engine/business/execution/domain"
	oppapp "github.com/fd1az/arb-engine/business/opportunity/app"
	opp "github.com/fd1az/arb-engine/business/opportunity/domain"
	quotes "github.com/fd1az/arb-engine/business/quotes/domain"
	venues "github.com/fd1az/arb-engine/business/venues/domain"
	"github.com/fd1az/arb-engine/internal/apperror"
	"github.com/fd1az/arb-engine/internal/logger"
)

const (
	tracerName = "arbitrage"
	meterName  = "arbitrage"
)

// OpportunityFinder sizes and prices the best candidate for a pair.
type OpportunityFinder interface {
	FindBest(ctx context.Context, pair venues.Pair, params oppapp.SizingParams, blockNumber uint64) (*opp.Opportunity, error)
}

// RiskScorer stamps a verdict on a candidate.
type RiskScorer interface {
	Assess(o *opp.Opportunity, now time.Time) opp.Decision
}

// Executor drives a claimed opportunity to a terminal state.
type Executor interface {
	Execute(ctx context.Context, id string) (*execdomain.Record, error)
}

// BlockSource feeds new chain heads when the engine runs block-driven.
type BlockSource interface {
	SubscribeBlocks(ctx context.Context) (<-chan *blockchain.Block, error)
}

// HealthSource exposes the venue health roster for reporting.
type HealthSource interface {
	All() []*quotes.VenueHealth
}

// PairSizing binds a traded pair to its search bounds.
type PairSizing struct {
	Pair   venues.Pair
	Sizing oppapp.SizingParams
}

// EngineConfig holds the scan cadence and the pair roster.
type EngineConfig struct {
	Pairs        []PairSizing
	Trigger      domain.Trigger
	TickInterval time.Duration
}

type engineMetrics struct {
	ticks        metric.Int64Counter
	detections   metric.Int64Counter
	executions   metric.Int64Counter
	tickDuration metric.Float64Histogram
}

// Engine runs the detection loop: each round it sizes every configured
// pair, scores the candidates, and dispatches the executable ones.
// Execution runs concurrently; the store's one-in-flight-per-pair rule
// keeps dispatches from racing each other.
type Engine struct {
	finder   OpportunityFinder
	scorer   RiskScorer
	store    *oppapp.Store
	executor Executor
	blocks   BlockSource
	health   HealthSource
	reporter Reporter
	cfg      EngineConfig

	running atomic.Bool
	wg      sync.WaitGroup

	logger  logger.LoggerInterface
	tracer  trace.Tracer
	metrics *engineMetrics
}

// NewEngine creates the engine.
func NewEngine(finder OpportunityFinder, scorer RiskScorer, store *oppapp.Store, executor Executor, blocks BlockSource, health HealthSource, reporter Reporter, cfg EngineConfig, log logger.LoggerInterface) (*Engine, error) {
	if len(cfg.Pairs) == 0 {
		return nil, apperror.New(apperror.CodeConfigurationError,
			apperror.WithContext("engine: no pairs configured"))
	}
	if cfg.Trigger == domain.TriggerTicker && cfg.TickInterval <= 0 {
		return nil, apperror.New(apperror.CodeConfigurationError,
			apperror.WithContext("engine: ticker trigger needs a positive tick interval"))
	}

	e := &Engine{
		finder:   finder,
		scorer:   scorer,
		store:    store,
		executor: executor,
		blocks:   blocks,
		health:   health,
		reporter: reporter,
		cfg:      cfg,
		logger:   log,
		tracer:   otel.Tracer(tracerName),
	}
	if err := e.initMetrics(); err != nil {
		return nil, fmt.Errorf("init metrics: %w", err)
	}
	return e, nil
}

func (e *Engine) initMetrics() error {
	meter := otel.Meter(meterName)
	m := &engineMetrics{}
	var err error

	if m.ticks, err = meter.Int64Counter("arbitrage.ticks",
		metric.WithDescription("Detection rounds run")); err != nil {
		return err
	}
	if m.detections, err = meter.Int64Counter("arbitrage.detections",
		metric.WithDescription("Candidates that cleared the profit thresholds")); err != nil {
		return err
	}
	if m.executions, err = meter.Int64Counter("arbitrage.executions_dispatched",
		metric.WithDescription("Candidates handed to the executor")); err != nil {
		return err
	}
	if m.tickDuration, err = meter.Float64Histogram("arbitrage.tick_seconds",
		metric.WithDescription("Detection round duration")); err != nil {
		return err
	}

	e.metrics = m
	return nil
}

// Start launches the scan loop. It returns once the loop is running;
// cancellation of ctx stops it.
func (e *Engine) Start(ctx context.Context) error {
	if !e.running.CompareAndSwap(false, true) {
		return nil
	}

	if err := e.reporter.Start(ctx); err != nil {
		e.running.Store(false)
		return fmt.Errorf("start reporter: %w", err)
	}

	switch e.cfg.Trigger {
	case domain.TriggerBlocks:
		blocks, err := e.blocks.SubscribeBlocks(ctx)
		if err != nil {
			e.running.Store(false)
			return apperror.Wrap(err, apperror.CodeEthereumSubscribeFailed, "subscribe blocks")
		}
		e.wg.Add(1)
		go e.runOnBlocks(ctx, blocks)
	default:
		e.wg.Add(1)
		go e.runOnTicker(ctx)
	}

	e.logger.Info(ctx, "engine started",
		"trigger", string(e.cfg.Trigger),
		"pairs", len(e.cfg.Pairs),
	)
	return nil
}

// Stop waits for in-flight work and shuts the reporter down.
func (e *Engine) Stop() error {
	if !e.running.CompareAndSwap(true, false) {
		return nil
	}
	e.wg.Wait()
	return e.reporter.Stop()
}

func (e *Engine) runOnBlocks(ctx context.Context, blocks <-chan *blockchain.Block) {
	defer e.wg.Done()
	for {
		select {
		case <-ctx.Done():
			return
		case block, ok := <-blocks:
			if !ok {
				e.logger.Warn(ctx, "block stream closed, engine idle")
				return
			}
			if block != nil {
				e.Tick(ctx, block.Number)
			}
		}
	}
}

func (e *Engine) runOnTicker(ctx context.Context) {
	defer e.wg.Done()
	ticker := time.NewTicker(e.cfg.TickInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			e.Tick(ctx, 0)
		}
	}
}

// Tick runs one detection round across all pairs.
func (e *Engine) Tick(ctx context.Context, blockNumber uint64) domain.TickReport {
	start := time.Now()
	ctx, span := e.tracer.Start(ctx, "arbitrage.Tick",
		trace.WithAttributes(attribute.Int64("block", int64(blockNumber))))
	defer span.End()

	report := domain.TickReport{
		Block:        blockNumber,
		At:           start,
		PairsScanned: len(e.cfg.Pairs),
		Purged:       e.store.PurgeExpired(start),
	}

	for _, ps := range e.cfg.Pairs {
		e.scanPair(ctx, ps, blockNumber, &report)
	}

	report.Duration = time.Since(start)
	e.metrics.ticks.Add(ctx, 1)
	e.metrics.tickDuration.Record(ctx, report.Duration.Seconds())
	span.SetAttributes(
		attribute.Int("detected", report.Detected),
		attribute.Int("executing", report.Executing),
	)

	e.reporter.ReportTick(report)
	for _, h := range e.health.All() {
		e.reporter.UpdateVenueHealth(h.Name(), h.State().String(), h.Reliability())
	}
	return report
}

func (e *Engine) scanPair(ctx context.Context, ps PairSizing, blockNumber uint64, report *domain.TickReport) {
	o, err := e.finder.FindBest(ctx, ps.Pair, ps.Sizing, blockNumber)
	if err != nil {
		report.Errors++
		e.logger.Warn(ctx, "pair scan failed", "pair", ps.Pair.String(), "error", err)
		return
	}
	if o == nil {
		return
	}

	report.Detected++
	e.metrics.detections.Add(ctx, 1, metric.WithAttributes(attribute.String("pair", ps.Pair.String())))

	if superseded, err := e.store.Put(o); err != nil {
		report.Errors++
		e.logger.Warn(ctx, "store rejected candidate", "pair", ps.Pair.String(), "error", err)
		return
	} else if superseded != nil {
		e.logger.Debug(ctx, "candidate superseded", "pair", ps.Pair.String(), "old", superseded.ID, "new", o.ID)
	}

	decision := e.scorer.Assess(o, time.Now())
	e.reporter.ReportOpportunity(o)

	switch decision {
	case opp.DecisionExecute:
		report.Executing++
		e.metrics.executions.Add(ctx, 1)
		e.dispatch(ctx, o.ID, ps.Pair)
	case opp.DecisionSkip:
		report.Skipped++
		if err := e.store.Skip(o.ID, fmt.Sprintf("risk score %d above skip threshold", o.RiskScore)); err != nil {
			e.logger.Warn(ctx, "skip failed", "opportunity", o.ID, "error", err)
		}
	default:
		report.Waiting++
	}
}

// dispatch hands the candidate to the executor without blocking the
// scan loop. A busy pair is expected contention, not a failure.
func (e *Engine) dispatch(ctx context.Context, id string, pair venues.Pair) {
	e.wg.Add(1)
	go func() {
		defer e.wg.Done()

		rec, err := e.executor.Execute(ctx, id)
		if err != nil {
			if apperror.HasCode(err, apperror.CodePairBusy) {
				e.logger.Debug(ctx, "pair busy, candidate parked", "pair", pair.String(), "opportunity", id)
			} else {
				e.logger.Warn(ctx, "execution finished with error",
					"pair", pair.String(), "opportunity", id, "error", err)
			}
		}
		if rec != nil {
			e.reporter.ReportExecution(rec)
		}
	}()
}
