package concentrated

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
	tracerName = "venues.concentrated"
	meterName  = "venues.concentrated"

	// Concentrated swaps cost more than pair swaps; tick crossings add
	// to this, which the quoter's own estimate captures when available.
	swapGasEstimate = 150_000

	// divergenceToleranceBps bounds how far the on-chain quoter may
	// disagree with the local within-tick recomputation before the
	// quote is rejected as unreliable.
	divergenceToleranceBps = 50
)

var _ app.Adapter = (*Adapter)(nil)

type adapterMetrics struct {
	quotesTotal       metric.Int64Counter
	quoteLatency      metric.Float64Histogram
	quoteErrors       metric.Int64Counter
	corroborationFail metric.Int64Counter
}

// Options carries the quoting knobs for concentrated venues.
type Options struct {
	QuoteValidity    time.Duration
	ImpactCeilingBps int64

	// Quoter is the QuoterV2-style corroboration contract. The zero
	// address disables corroboration.
	Quoter common.Address
}

// Adapter implements app.Adapter for concentrated-liquidity pools.
type Adapter struct {
	client    *ethclient.Client
	venue     domain.Venue
	poolABI   abi.ABI
	quoterABI abi.ABI
	opts      Options

	token0s *cache.Cache[common.Address, common.Address]

	logger logger.LoggerInterface
	cb     *circuitbreaker.CircuitBreaker[[]byte]

	tracer  trace.Tracer
	metrics *adapterMetrics
}

// NewAdapter creates a concentrated-liquidity adapter for one venue.
func NewAdapter(client *ethclient.Client, venue domain.Venue, opts Options, log logger.LoggerInterface) (*Adapter, error) {
	poolABI, err := abi.JSON(strings.NewReader(PoolABI))
	if err != nil {
		return nil, fmt.Errorf("failed to parse pool ABI: %w", err)
	}
	quoterABI, err := abi.JSON(strings.NewReader(QuoterV2ABI))
	if err != nil {
		return nil, fmt.Errorf("failed to parse quoter ABI: %w", err)
	}
	if opts.QuoteValidity <= 0 {
		return nil, fmt.Errorf("quote validity must be positive")
	}

	a := &Adapter{
		client:    client,
		venue:     venue,
		poolABI:   poolABI,
		quoterABI: quoterABI,
		opts:      opts,
		token0s:   cache.New[common.Address, common.Address](time.Hour),
		logger:    log,
		tracer:    otel.Tracer(tracerName),
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
	if err != nil {
		return err
	}

	a.metrics.corroborationFail, err = meter.Int64Counter(
		"venue_quote_corroboration_failures_total",
		metric.WithDescription("Quotes rejected because the on-chain quoter diverged from local recomputation"),
	)
	return err
}

// Venue returns the static venue identity.
func (a *Adapter) Venue() domain.Venue {
	return a.venue
}

type tierQuote struct {
	ref       domain.PoolRef
	out       *big.Int
	impactBps int64
	cap       *big.Int
	gas       uint64
}

// Quote prices a swap across every configured fee-tier pool for the
// pair and keeps the tier with the largest output, ties broken by the
// lower fee.
func (a *Adapter) Quote(ctx context.Context, tokenIn, tokenOut *asset.Asset, amountIn asset.Amount) (*domain.Quote, error) {
	ctx, span := a.tracer.Start(ctx, "concentrated.quote",
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
	refs := a.venue.PoolsFor(pair)
	if len(refs) == 0 {
		err := apperror.New(apperror.CodePoolNotFound,
			apperror.WithContext(fmt.Sprintf("venue %s has no pool for %s", a.venue.Name, pair)))
		a.recordError(ctx, span, err)
		return nil, err
	}

	var best *tierQuote
	for _, ref := range refs {
		tq, err := a.quoteTier(ctx, ref, tokenIn, amountIn.Raw())
		if err != nil {
			span.AddEvent("fee_tier_failed",
				trace.WithAttributes(
					attribute.Int("fee_tier", ref.FeeTier),
					attribute.String("error", err.Error()),
				),
			)
			continue
		}
		if best == nil || tq.out.Cmp(best.out) > 0 ||
			(tq.out.Cmp(best.out) == 0 && tq.ref.FeeTier < best.ref.FeeTier) {
			best = tq
		}
	}

	a.metrics.quoteLatency.Record(ctx, float64(time.Since(start).Milliseconds()))

	if best == nil {
		err := apperror.New(apperror.CodeVenueUnavailable,
			apperror.WithContext(fmt.Sprintf("no tier quoted %s on %s", pair, a.venue.Name)))
		a.recordError(ctx, span, err)
		return nil, err
	}

	// Corroborate the winning tier against the on-chain quoter.
	if a.opts.Quoter != (common.Address{}) {
		if err := a.corroborate(ctx, span, best, tokenIn, tokenOut, amountIn.Raw()); err != nil {
			a.recordError(ctx, span, err)
			return nil, err
		}
	}

	quote := domain.NewQuote(a.venue.Name, domain.KindConcentratedLiquidity,
		tokenIn, tokenOut, amountIn, asset.NewAmount(tokenOut, best.out), a.opts.QuoteValidity)
	quote.Pool = best.ref.Address
	quote.ImpactBps = best.impactBps
	quote.LiquidityCap = asset.NewAmount(tokenIn, best.cap)
	quote.GasEstimate = best.gas
	quote.FeeTier = best.ref.FeeTier

	span.SetAttributes(
		attribute.String("amount_out", best.out.String()),
		attribute.Int("fee_tier", best.ref.FeeTier),
		attribute.Int64("impact_bps", best.impactBps),
	)
	span.SetStatus(codes.Ok, "quote computed")

	a.logger.Debug(ctx, "concentrated quote",
		"venue", a.venue.Name,
		"pair", pair.String(),
		"fee_tier", best.ref.FeeTier,
		"amount_in", amountIn.Raw().String(),
		"amount_out", best.out.String(),
		"impact_bps", best.impactBps,
	)

	return &quote, nil
}

func (a *Adapter) quoteTier(ctx context.Context, ref domain.PoolRef, tokenIn *asset.Asset, amountIn *big.Int) (*tierQuote, error) {
	state, err := a.fetchPoolState(ctx, ref)
	if err != nil {
		return nil, err
	}

	baseIn := state.Pair.Base.Equals(tokenIn)
	zeroForOne := baseIn == state.Token0First

	out, sqrtNew, err := SwapWithinTick(state.SqrtPriceX96, state.Liquidity, amountIn, ref.FeeTier, zeroForOne)
	if err != nil {
		return nil, err
	}
	if out.Sign() <= 0 {
		return nil, apperror.New(apperror.CodeInsufficientLiquidity,
			apperror.WithContext("swap output rounds to zero"))
	}

	return &tierQuote{
		ref:       ref,
		out:       out,
		impactBps: ImpactBps(state.SqrtPriceX96, sqrtNew),
		cap:       MaxInputForImpact(state.SqrtPriceX96, state.Liquidity, a.opts.ImpactCeilingBps, ref.FeeTier, zeroForOne),
		gas:       swapGasEstimate,
	}, nil
}

// corroborate calls the on-chain quoter and rejects the local quote
// when the two disagree beyond tolerance. A quoter RPC failure is not
// fatal: the local value stands and the breaker tracks the failure.
func (a *Adapter) corroborate(ctx context.Context, span trace.Span, tq *tierQuote, tokenIn, tokenOut *asset.Asset, amountIn *big.Int) error {
	result, err := a.quoterQuote(ctx, tokenIn.Address(), tokenOut.Address(), amountIn, tq.ref.FeeTier)
	if err != nil {
		span.AddEvent("quoter_unavailable", trace.WithAttributes(attribute.String("error", err.Error())))
		a.logger.Warn(ctx, "quoter corroboration skipped",
			"venue", a.venue.Name, "error", err.Error())
		return nil
	}

	div, err := DivergenceBps(tq.out, result.AmountOut)
	if err != nil {
		return apperror.New(apperror.CodeQuoteValidationFailed, apperror.WithCause(err))
	}
	if div > divergenceToleranceBps {
		a.metrics.corroborationFail.Add(ctx, 1, metric.WithAttributes(attribute.String("venue", a.venue.Name)))
		return apperror.New(apperror.CodeQuoteValidationFailed,
			apperror.WithContext(fmt.Sprintf("quoter diverges %d bps from local output (local=%s quoter=%s)",
				div, tq.out, result.AmountOut)))
	}

	// The quoter sees tick crossings the local model does not; its
	// numbers are the better estimate once they corroborate.
	tq.out = result.AmountOut
	if result.GasEstimate != nil && result.GasEstimate.IsUint64() && result.GasEstimate.Uint64() > 0 {
		tq.gas = result.GasEstimate.Uint64()
	}
	return nil
}

func (a *Adapter) quoterQuote(ctx context.Context, tokenIn, tokenOut common.Address, amountIn *big.Int, feeTier int) (*QuoteResult, error) {
	callData, err := a.quoterABI.Pack("quoteExactInputSingle", QuoteExactInputSingleParams{
		TokenIn:           tokenIn,
		TokenOut:          tokenOut,
		AmountIn:          amountIn,
		Fee:               big.NewInt(int64(feeTier)),
		SqrtPriceLimitX96: big.NewInt(0),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to encode quoter call: %w", err)
	}

	raw, err := a.cb.Execute(func() ([]byte, error) {
		return a.client.CallContract(ctx, ethereum.CallMsg{
			To:   &a.opts.Quoter,
			Data: callData,
		}, nil)
	})
	if err != nil {
		return nil, err
	}

	outputs, err := a.quoterABI.Unpack("quoteExactInputSingle", raw)
	if err != nil {
		return nil, fmt.Errorf("failed to decode quoter result: %w", err)
	}
	if len(outputs) < 4 {
		return nil, fmt.Errorf("unexpected quoter output length: %d", len(outputs))
	}
	return &QuoteResult{
		AmountOut:               outputs[0].(*big.Int),
		SqrtPriceX96After:       outputs[1].(*big.Int),
		InitializedTicksCrossed: outputs[2].(uint32),
		GasEstimate:             outputs[3].(*big.Int),
	}, nil
}

// PoolState fetches the snapshot of the first configured pool for the
// pair.
func (a *Adapter) PoolState(ctx context.Context, pair domain.Pair) (*domain.PoolState, error) {
	refs := a.venue.PoolsFor(pair)
	if len(refs) == 0 {
		return nil, apperror.New(apperror.CodePoolNotFound,
			apperror.WithContext(fmt.Sprintf("venue %s has no pool for %s", a.venue.Name, pair)))
	}
	return a.fetchPoolState(ctx, refs[0])
}

// BuildExecutionStep encodes the swap leg for the settlement contract.
func (a *Adapter) BuildExecutionStep(quote *domain.Quote, minOut asset.Amount) ([]byte, error) {
	if quote.Venue != a.venue.Name {
		return nil, fmt.Errorf("quote venue %q does not match adapter %q", quote.Venue, a.venue.Name)
	}
	return stepenc.EncodeFromQuote(quote, minOut.Raw())
}

func (a *Adapter) fetchPoolState(ctx context.Context, ref domain.PoolRef) (*domain.PoolState, error) {
	sqrtPrice, tick, err := a.slot0(ctx, ref.Address)
	if err != nil {
		return nil, err
	}
	liquidity, err := a.liquidity(ctx, ref.Address)
	if err != nil {
		return nil, err
	}
	token0, err := a.token0(ctx, ref.Address)
	if err != nil {
		return nil, err
	}

	state := &domain.PoolState{
		Venue:        a.venue.Name,
		Kind:         domain.KindConcentratedLiquidity,
		Pair:         ref.Pair,
		Token0First:  ref.Pair.Base.Address() == token0,
		SqrtPriceX96: sqrtPrice,
		Tick:         tick,
		Liquidity:    liquidity,
		FetchedAt:    time.Now(),
	}
	if !state.HasLiquidity() {
		return nil, apperror.New(apperror.CodeInsufficientLiquidity,
			apperror.WithContext(fmt.Sprintf("pool %s has no in-range liquidity", ref.Address.Hex())))
	}
	return state, nil
}

func (a *Adapter) slot0(ctx context.Context, pool common.Address) (*big.Int, int32, error) {
	raw, err := a.call(ctx, pool, "slot0")
	if err != nil {
		return nil, 0, err
	}
	outputs, err := a.poolABI.Unpack("slot0", raw)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to decode slot0: %w", err)
	}
	if len(outputs) < 2 {
		return nil, 0, fmt.Errorf("unexpected slot0 output length: %d", len(outputs))
	}
	sqrtPrice := outputs[0].(*big.Int)
	tick := outputs[1].(*big.Int)
	return sqrtPrice, int32(tick.Int64()), nil
}

func (a *Adapter) liquidity(ctx context.Context, pool common.Address) (*big.Int, error) {
	raw, err := a.call(ctx, pool, "liquidity")
	if err != nil {
		return nil, err
	}
	outputs, err := a.poolABI.Unpack("liquidity", raw)
	if err != nil {
		return nil, fmt.Errorf("failed to decode liquidity: %w", err)
	}
	return outputs[0].(*big.Int), nil
}

func (a *Adapter) token0(ctx context.Context, pool common.Address) (common.Address, error) {
	if cached, ok := a.token0s.Get(ctx, pool); ok {
		return cached, nil
	}
	raw, err := a.call(ctx, pool, "token0")
	if err != nil {
		return common.Address{}, err
	}
	outputs, err := a.poolABI.Unpack("token0", raw)
	if err != nil {
		return common.Address{}, fmt.Errorf("failed to decode token0: %w", err)
	}
	addr := outputs[0].(common.Address)
	a.token0s.Set(ctx, pool, addr, 24*time.Hour)
	return addr, nil
}

func (a *Adapter) call(ctx context.Context, to common.Address, method string) ([]byte, error) {
	callData, err := a.poolABI.Pack(method)
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
