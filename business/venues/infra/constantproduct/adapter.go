// Package constantproduct quotes x*y=k pools by reading reserves
// on-chain and recomputing the swap output locally.
package constantproduct

import (
	"context"
	"fmt"
	"math/big"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/ethclient"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"

	"github.com/fd1az/arb-engine/business/venues/app"
	"github.com/fd1az/arb-engine/business/venues/domain"
	"github.com/fd1az/arb-engine/business/venues/infra/stepenc"
	"github.com/fd1az/arb-engine/internal/apperror"
	"github.com/fd1az/arb-engine/internal/asset"
	"github.com/fd1az/arb-engine/internal/cache"
	"github.com/fd1az/arb-engine/internal/circuitbreaker"
	"github.com/fd1az/arb-engine/internal/logger"
)

const (
	tracerName = "venues.constantproduct"
	meterName  = "venues.constantproduct"

	// Gas for one pair swap, transfer included. Constant-product swaps
	// are cheap and their cost barely varies with trade size.
	swapGasEstimate = 120_000
)

var _ app.Adapter = (*Adapter)(nil)

type adapterMetrics struct {
	quotesTotal  metric.Int64Counter
	quoteLatency metric.Float64Histogram
	quoteErrors  metric.Int64Counter
}

// Options carries the quoting knobs shared by every venue adapter.
type Options struct {
	QuoteValidity    time.Duration
	ImpactCeilingBps int64
}

// Adapter implements app.Adapter for constant-product pools.
type Adapter struct {
	client  *ethclient.Client
	venue   domain.Venue
	pairABI abi.ABI
	opts    Options

	// token0 never changes for a pool, so it is fetched once.
	token0s *cache.Cache[common.Address, common.Address]

	logger logger.LoggerInterface
	cb     *circuitbreaker.CircuitBreaker[[]byte]

	tracer  trace.Tracer
	metrics *adapterMetrics
}

// NewAdapter creates a constant-product adapter for one venue.
func NewAdapter(client *ethclient.Client, venue domain.Venue, opts Options, log logger.LoggerInterface) (*Adapter, error) {
	parsedABI, err := abi.JSON(strings.NewReader(PairABI))
	if err != nil {
		return nil, fmt.Errorf("failed to parse pair ABI: %w", err)
	}
	if opts.QuoteValidity <= 0 {
		return nil, fmt.Errorf("quote validity must be positive")
	}

	a := &Adapter{
		client:  client,
		venue:   venue,
		pairABI: parsedABI,
		opts:    opts,
		token0s: cache.New[common.Address, common.Address](time.Hour),
		logger:  log,
		tracer:  otel.Tracer(tracerName),
	}

	a.cb = circuitbreaker.New[[]byte](circuitbreaker.DefaultConfig(venue.Name + "-rpc"))

	if err := a.initMetrics(); err != nil {
		return nil, fmt.Errorf("failed to init metrics: %w", err)
	}
	return a, nil
}

func (a *Adapter) initMetrics() error {
	meter := otel.Meter(meterName)
	var err error

	a.metrics = &adapterMetrics{}

	a.metrics.quotesTotal, err = meter.Int64Counter(
		"venue_quotes_total",
		metric.WithDescription("Total quote requests"),
	)
	if err != nil {
		return err
	}

	a.metrics.quoteLatency, err = meter.Float64Histogram(
		"venue_quote_latency_ms",
		metric.WithDescription("Quote request latency in milliseconds"),
		metric.WithUnit("ms"),
	)
	if err != nil {
		return err
	}

	a.metrics.quoteErrors, err = meter.Int64Counter(
		"venue_quote_errors_total",
		metric.WithDescription("Total quote errors"),
	)
	return err
}

// Venue returns the static venue identity.
func (a *Adapter) Venue() domain.Venue {
	return a.venue
}

// Quote prices a swap by fetching reserves and recomputing the output
// with the constant-product formula.
func (a *Adapter) Quote(ctx context.Context, tokenIn, tokenOut *asset.Asset, amountIn asset.Amount) (*domain.Quote, error) {
	ctx, span := a.tracer.Start(ctx, "constantproduct.quote",
		trace.WithAttributes(
			attribute.String("venue", a.venue.Name),
			attribute.String("token_in", tokenIn.Symbol()),
			attribute.String("token_out", tokenOut.Symbol()),
			attribute.String("amount_in", amountIn.Raw().String()),
		),
	)
	defer span.End()

	start := time.Now()
	a.metrics.quotesTotal.Add(ctx, 1, metric.WithAttributes(attribute.String("venue", a.venue.Name)))

	pair := domain.NewPair(tokenIn, tokenOut)
	ref, err := a.poolFor(pair)
	if err != nil {
		a.recordError(ctx, span, err)
		return nil, err
	}

	state, err := a.fetchPoolState(ctx, ref)
	if err != nil {
		a.recordError(ctx, span, err)
		return nil, err
	}

	baseIn := state.Pair.Base.Equals(tokenIn)
	reserveIn, reserveOut := state.ReservesInOut(baseIn)

	out, err := AmountOut(amountIn.Raw(), reserveIn, reserveOut, a.venue.FeeBps)
	if err != nil {
		a.recordError(ctx, span, err)
		return nil, err
	}

	quote := domain.NewQuote(a.venue.Name, domain.KindConstantProduct,
		tokenIn, tokenOut, amountIn, asset.NewAmount(tokenOut, out), a.opts.QuoteValidity)
	quote.Pool = ref.Address
	quote.ImpactBps = ImpactBps(amountIn.Raw(), reserveIn, a.venue.FeeBps)
	quote.LiquidityCap = asset.NewAmount(tokenIn,
		MaxInputForImpact(reserveIn, a.opts.ImpactCeilingBps, a.venue.FeeBps))
	quote.GasEstimate = swapGasEstimate

	a.metrics.quoteLatency.Record(ctx, float64(time.Since(start).Milliseconds()))
	span.SetAttributes(
		attribute.String("amount_out", out.String()),
		attribute.Int64("impact_bps", quote.ImpactBps),
	)
	span.SetStatus(codes.Ok, "quote computed")

	a.logger.Debug(ctx, "constant-product quote",
		"venue", a.venue.Name,
		"pair", pair.String(),
		"amount_in", amountIn.Raw().String(),
		"amount_out", out.String(),
		"impact_bps", quote.ImpactBps,
	)

	return &quote, nil
}

// PoolState fetches reserves and token ordering for the pair's pool.
func (a *Adapter) PoolState(ctx context.Context, pair domain.Pair) (*domain.PoolState, error) {
	ref, err := a.poolFor(pair)
	if err != nil {
		return nil, err
	}
	return a.fetchPoolState(ctx, ref)
}

// BuildExecutionStep encodes the swap leg for the settlement contract.
func (a *Adapter) BuildExecutionStep(quote *domain.Quote, minOut asset.Amount) ([]byte, error) {
	if quote.Venue != a.venue.Name {
		return nil, fmt.Errorf("quote venue %q does not match adapter %q", quote.Venue, a.venue.Name)
	}
	return stepenc.EncodeFromQuote(quote, minOut.Raw())
}

func (a *Adapter) poolFor(pair domain.Pair) (domain.PoolRef, error) {
	refs := a.venue.PoolsFor(pair)
	if len(refs) == 0 {
		return domain.PoolRef{}, apperror.New(apperror.CodePoolNotFound,
			apperror.WithContext(fmt.Sprintf("venue %s has no pool for %s", a.venue.Name, pair)))
	}
	// Constant-product venues keep a single pool per pair.
	return refs[0], nil
}

func (a *Adapter) fetchPoolState(ctx context.Context, ref domain.PoolRef) (*domain.PoolState, error) {
	reserve0, reserve1, err := a.getReserves(ctx, ref.Address)
	if err != nil {
		return nil, err
	}

	token0, err := a.token0(ctx, ref.Address)
	if err != nil {
		return nil, err
	}

	state := &domain.PoolState{
		Venue:       a.venue.Name,
		Kind:        domain.KindConstantProduct,
		Pair:        ref.Pair,
		Token0First: ref.Pair.Base.Address() == token0,
		Reserve0:    reserve0,
		Reserve1:    reserve1,
		FeeBps:      a.venue.FeeBps,
		FetchedAt:   time.Now(),
	}
	if !state.HasLiquidity() {
		return nil, apperror.New(apperror.CodeInsufficientLiquidity,
			apperror.WithContext(fmt.Sprintf("pool %s has empty reserves", ref.Address.Hex())))
	}
	return state, nil
}

func (a *Adapter) getReserves(ctx context.Context, pool common.Address) (*big.Int, *big.Int, error) {
	raw, err := a.call(ctx, pool, "getReserves")
	if err != nil {
		return nil, nil, err
	}

	outputs, err := a.pairABI.Unpack("getReserves", raw)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to decode reserves: %w", err)
	}
	if len(outputs) < 2 {
		return nil, nil, fmt.Errorf("unexpected getReserves output length: %d", len(outputs))
	}
	return outputs[0].(*big.Int), outputs[1].(*big.Int), nil
}

func (a *Adapter) token0(ctx context.Context, pool common.Address) (common.Address, error) {
	if cached, ok := a.token0s.Get(ctx, pool); ok {
		return cached, nil
	}

	raw, err := a.call(ctx, pool, "token0")
	if err != nil {
		return common.Address{}, err
	}

	outputs, err := a.pairABI.Unpack("token0", raw)
	if err != nil {
		return common.Address{}, fmt.Errorf("failed to decode token0: %w", err)
	}
	addr := outputs[0].(common.Address)
	a.token0s.Set(ctx, pool, addr, 24*time.Hour)
	return addr, nil
}

func (a *Adapter) call(ctx context.Context, to common.Address, method string, args ...interface{}) ([]byte, error) {
	callData, err := a.pairABI.Pack(method, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to encode %s call: %w", method, err)
	}

	result, err := a.cb.Execute(func() ([]byte, error) {
		return a.client.CallContract(ctx, ethereum.CallMsg{
			To:   &to,
			Data: callData,
		}, nil)
	})
	if err != nil {
		return nil, apperror.New(apperror.CodeContractCallFailed,
			apperror.WithCause(err),
			apperror.WithContext(fmt.Sprintf("%s call to %s failed", method, to.Hex())))
	}
	return result, nil
}

func (a *Adapter) recordError(ctx context.Context, span trace.Span, err error) {
	a.metrics.quoteErrors.Add(ctx, 1, metric.WithAttributes(attribute.String("venue", a.venue.Name)))
	span.SetStatus(codes.Error, err.Error())
}
