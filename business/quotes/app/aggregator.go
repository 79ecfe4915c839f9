// Package app implements quote aggregation: concurrent venue fan-out
// with per-venue deadlines, breaker gating, and short-TTL caching.
package app

import (
	"context"
	"fmt"
	"math/big"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"

	"github.com/fd1az/arb-engine/business/quotes/domain"
	venuesapp "github.com/fd1az/arb-engine/business/venues/app"
	venues "github.com/fd1az/arb-engine/business/venues/domain"
	"github.com/fd1az/arb-engine/internal/apperror"
	"github.com/fd1az/arb-engine/internal/asset"
	"github.com/fd1az/arb-engine/internal/cache"
	"github.com/fd1az/arb-engine/internal/logger"
)

const (
	tracerName = "quotes"
	meterName  = "quotes"
)

type aggregatorMetrics struct {
	roundsTotal   metric.Int64Counter
	venueFailures metric.Int64Counter
	breakerSkips  metric.Int64Counter
	roundLatency  metric.Float64Histogram
	cacheHits     metric.Int64Counter
}

// Config holds the aggregation knobs.
type Config struct {
	// VenueTimeout bounds each venue's quote call.
	VenueTimeout time.Duration
	// AggregationTimeout bounds the whole round.
	AggregationTimeout time.Duration
	// CacheTTL is how long a fetched quote may be reused. Keep it at
	// or below the quote validity window or cached entries expire
	// before the cache does.
	CacheTTL time.Duration
	// MaxConcurrent bounds in-flight venue calls.
	MaxConcurrent int
}

// Aggregator fans a quote request out to every venue listing the pair
// and assembles the answers into a QuoteSet.
type Aggregator struct {
	venues *venuesapp.Service
	health *HealthRegistry
	cfg    Config

	cache *cache.Cache[string, venues.Quote]

	logger  logger.LoggerInterface
	tracer  trace.Tracer
	metrics *aggregatorMetrics
}

// NewAggregator creates the aggregator.
func NewAggregator(venueSvc *venuesapp.Service, health *HealthRegistry, cfg Config, log logger.LoggerInterface) (*Aggregator, error) {
	if cfg.VenueTimeout <= 0 || cfg.AggregationTimeout <= 0 {
		return nil, fmt.Errorf("aggregation timeouts must be positive")
	}
	if cfg.MaxConcurrent <= 0 {
		cfg.MaxConcurrent = 8
	}

	a := &Aggregator{
		venues: venueSvc,
		health: health,
		cfg:    cfg,
		cache:  cache.New[string, venues.Quote](time.Minute),
		logger: log,
		tracer: otel.Tracer(tracerName),
	}
	if err := a.initMetrics(); err != nil {
		return nil, fmt.Errorf("failed to init metrics: %w", err)
	}
	return a, nil
}

func (a *Aggregator) initMetrics() error {
	meter := otel.Meter(meterName)
	var err error

	a.metrics = &aggregatorMetrics{}

	a.metrics.roundsTotal, err = meter.Int64Counter(
		"quote_rounds_total",
		metric.WithDescription("Total aggregation rounds"),
	)
	if err != nil {
		return err
	}

	a.metrics.venueFailures, err = meter.Int64Counter(
		"quote_venue_failures_total",
		metric.WithDescription("Venue quote failures, by venue"),
	)
	if err != nil {
		return err
	}

	a.metrics.breakerSkips, err = meter.Int64Counter(
		"quote_breaker_skips_total",
		metric.WithDescription("Venues skipped by an open breaker"),
	)
	if err != nil {
		return err
	}

	a.metrics.roundLatency, err = meter.Float64Histogram(
		"quote_round_latency_ms",
		metric.WithDescription("Aggregation round latency in milliseconds"),
		metric.WithUnit("ms"),
	)
	if err != nil {
		return err
	}

	a.metrics.cacheHits, err = meter.Int64Counter(
		"quote_cache_hits_total",
		metric.WithDescription("Quotes served from the short-TTL cache"),
	)
	return err
}

// Health exposes the shared health registry.
func (a *Aggregator) Health() *HealthRegistry {
	return a.health
}

// Aggregate collects quotes for selling amountIn of tokenIn into
// tokenOut across every venue that lists the pair. Venues behind an
// open breaker are skipped and counted as failed. The round never
// fails because a subset of venues failed; it fails only when no venue
// answered at all.
func (a *Aggregator) Aggregate(ctx context.Context, tokenIn, tokenOut *asset.Asset, amountIn asset.Amount) (*domain.QuoteSet, error) {
	ctx, span := a.tracer.Start(ctx, "quotes.aggregate",
		trace.WithAttributes(
			attribute.String("token_in", tokenIn.Symbol()),
			attribute.String("token_out", tokenOut.Symbol()),
			attribute.String("amount_in", amountIn.Raw().String()),
		),
	)
	defer span.End()

	start := time.Now()
	a.metrics.roundsTotal.Add(ctx, 1)

	pair := venues.NewPair(tokenIn, tokenOut)
	adapters := a.venues.AdaptersForPair(pair)
	if len(adapters) == 0 {
		err := apperror.New(apperror.CodePoolNotFound,
			apperror.WithContext(fmt.Sprintf("no venue lists %s", pair)))
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}

	ctx, cancel := context.WithTimeout(ctx, a.cfg.AggregationTimeout)
	defer cancel()

	var (
		mu      sync.Mutex
		quotes  []venues.Quote
		failed  int
		skipped int
	)

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(a.cfg.MaxConcurrent)

	for _, adapter := range adapters {
		g.Go(func() error {
			name := adapter.Venue().Name
			health := a.health.Get(name)

			if !health.Allow(time.Now()) {
				a.metrics.breakerSkips.Add(gctx, 1, metric.WithAttributes(attribute.String("venue", name)))
				mu.Lock()
				failed++
				skipped++
				mu.Unlock()
				return nil
			}

			quote, err := a.quoteVenue(gctx, adapter, tokenIn, tokenOut, amountIn)
			if err != nil {
				health.RecordFailure(time.Now())
				a.metrics.venueFailures.Add(gctx, 1, metric.WithAttributes(attribute.String("venue", name)))
				a.logger.Warn(gctx, "venue quote failed",
					"venue", name, "pair", pair.String(), "error", err.Error())
				mu.Lock()
				failed++
				mu.Unlock()
				return nil
			}

			health.RecordSuccess(time.Now())
			mu.Lock()
			quotes = append(quotes, *quote)
			mu.Unlock()
			return nil
		})
	}
	// Goroutines always return nil; the group is used for its limit
	// and context plumbing.
	_ = g.Wait()

	a.metrics.roundLatency.Record(ctx, float64(time.Since(start).Milliseconds()))

	if len(quotes) == 0 {
		err := apperror.New(apperror.CodeVenueUnavailable,
			apperror.WithContext(fmt.Sprintf("no venue quoted %s (%d failed, %d breaker-skipped)",
				pair, failed, skipped)))
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}

	set := domain.NewQuoteSet(tokenIn, tokenOut, amountIn, quotes, failed)

	span.SetAttributes(
		attribute.Int("quotes", len(set.Quotes)),
		attribute.Int("failed_venues", failed),
	)
	span.SetStatus(codes.Ok, "aggregated")

	a.logger.Debug(ctx, "quote round complete",
		"pair", pair.String(),
		"quotes", len(set.Quotes),
		"failed_venues", failed,
		"elapsed_ms", time.Since(start).Milliseconds(),
	)

	return set, nil
}

func (a *Aggregator) quoteVenue(ctx context.Context, adapter venuesapp.Adapter, tokenIn, tokenOut *asset.Asset, amountIn asset.Amount) (*venues.Quote, error) {
	name := adapter.Venue().Name
	key := a.cacheKey(name, tokenIn, tokenOut, amountIn)

	// The bucketed key limits cardinality; the exact-size check keeps
	// a hit from answering for a different input amount.
	if cached, ok := a.cache.Get(ctx, key); ok && !cached.Expired(time.Now()) &&
		cached.AmountIn.Raw().Cmp(amountIn.Raw()) == 0 {
		a.metrics.cacheHits.Add(ctx, 1, metric.WithAttributes(attribute.String("venue", name)))
		return &cached, nil
	}

	vctx, cancel := context.WithTimeout(ctx, a.cfg.VenueTimeout)
	defer cancel()

	quote, err := adapter.Quote(vctx, tokenIn, tokenOut, amountIn)
	if err != nil {
		return nil, err
	}

	if a.cfg.CacheTTL > 0 {
		a.cache.Set(ctx, key, *quote, a.cfg.CacheTTL)
	}
	return quote, nil
}

// cacheKey buckets the amount to its three most significant digits so
// near-identical sizes probed by the search share cache entries.
func (a *Aggregator) cacheKey(venue string, tokenIn, tokenOut *asset.Asset, amountIn asset.Amount) string {
	return fmt.Sprintf("%s|%s>%s|%s", venue, tokenIn.Symbol(), tokenOut.Symbol(), bucketAmount(amountIn.Raw()))
}

func bucketAmount(raw *big.Int) string {
	s := raw.String()
	const sig = 3
	if len(s) <= sig {
		return s
	}
	return s[:sig] + fmt.Sprintf("e%d", len(s)-sig)
}

// Close releases the quote cache's janitor.
func (a *Aggregator) Close() {
	a.cache.Close()
}
