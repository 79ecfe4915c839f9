package stableswap

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
	tracerName = "venues.stableswap"
	meterName  = "venues.stableswap"

	// Curve-style exchanges run the invariant solver on-chain.
	swapGasEstimate = 250_000

	normalizedDecimals = 18
)

var _ app.Adapter = (*Adapter)(nil)

type adapterMetrics struct {
	quotesTotal  metric.Int64Counter
	quoteLatency metric.Float64Histogram
	quoteErrors  metric.Int64Counter
}

// Options carries the quoting knobs for stable-swap venues.
type Options struct {
	QuoteValidity    time.Duration
	ImpactCeilingBps int64
}

// Adapter implements app.Adapter for Curve-style stable pools.
type Adapter struct {
	client  *ethclient.Client
	venue   domain.Venue
	poolABI abi.ABI
	opts    Options

	coin0s *cache.Cache[common.Address, common.Address]

	logger logger.LoggerInterface
	cb     *circuitbreaker.CircuitBreaker[[]byte]

	tracer  trace.Tracer
	metrics *adapterMetrics
}

// NewAdapter creates a stable-swap adapter for one venue. The
// amplification coefficient comes from the venue config; pools that
// ramp A need a config update to follow.
func NewAdapter(client *ethclient.Client, venue domain.Venue, opts Options, log logger.LoggerInterface) (*Adapter, error) {
	parsedABI, err := abi.JSON(strings.NewReader(PoolABI))
	if err != nil {
		return nil, fmt.Errorf("failed to parse pool ABI: %w", err)
	}
	if opts.QuoteValidity <= 0 {
		return nil, fmt.Errorf("quote validity must be positive")
	}
	if venue.AmpCoeff <= 0 {
		return nil, fmt.Errorf("venue %s: amplification coefficient must be positive", venue.Name)
	}

	a := &Adapter{
		client:  client,
		venue:   venue,
		poolABI: parsedABI,
		opts:    opts,
		coin0s:  cache.New[common.Address, common.Address](time.Hour),
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

// Quote prices a swap by reading pool balances, normalizing to 18
// decimals, and solving the invariant locally.
func (a *Adapter) Quote(ctx context.Context, tokenIn, tokenOut *asset.Asset, amountIn asset.Amount) (*domain.Quote, error) {
	ctx, span := a.tracer.Start(ctx, "stableswap.quote",
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
	ref := refs[0]

	state, err := a.fetchPoolState(ctx, ref)
	if err != nil {
		a.recordError(ctx, span, err)
		return nil, err
	}

	baseIn := state.Pair.Base.Equals(tokenIn)
	reserveIn, reserveOut := state.ReservesInOut(baseIn)

	rateIn := rate(tokenIn.Decimals())
	rateOut := rate(tokenOut.Decimals())
	xpIn := new(big.Int).Mul(reserveIn, rateIn)
	xpOut := new(big.Int).Mul(reserveOut, rateOut)
	dx := new(big.Int).Mul(amountIn.Raw(), rateIn)

	post, pre, err := AmountOut(dx, xpIn, xpOut, a.venue.AmpCoeff, a.venue.FeeBps)
	if err != nil {
		a.recordError(ctx, span, err)
		return nil, err
	}
	out := new(big.Int).Div(post, rateOut)
	if out.Sign() <= 0 {
		err := apperror.New(apperror.CodeInsufficientLiquidity,
			apperror.WithContext("swap output rounds to zero"))
		a.recordError(ctx, span, err)
		return nil, err
	}

	capNorm := MaxInputForImpact(xpIn, xpOut, a.venue.AmpCoeff, a.opts.ImpactCeilingBps, a.venue.FeeBps)

	quote := domain.NewQuote(a.venue.Name, domain.KindStableSwap,
		tokenIn, tokenOut, amountIn, asset.NewAmount(tokenOut, out), a.opts.QuoteValidity)
	quote.Pool = ref.Address
	quote.ImpactBps = ImpactBps(dx, pre)
	quote.LiquidityCap = asset.NewAmount(tokenIn, new(big.Int).Div(capNorm, rateIn))
	quote.GasEstimate = swapGasEstimate

	a.metrics.quoteLatency.Record(ctx, float64(time.Since(start).Milliseconds()))
	span.SetAttributes(
		attribute.String("amount_out", out.String()),
		attribute.Int64("impact_bps", quote.ImpactBps),
	)
	span.SetStatus(codes.Ok, "quote computed")

	a.logger.Debug(ctx, "stable-swap quote",
		"venue", a.venue.Name,
		"pair", pair.String(),
		"amount_in", amountIn.Raw().String(),
		"amount_out", out.String(),
		"impact_bps", quote.ImpactBps,
	)

	return &quote, nil
}

// PoolState fetches balances and coin ordering for the pair's pool.
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
	balance0, err := a.balance(ctx, ref.Address, 0)
	if err != nil {
		return nil, err
	}
	balance1, err := a.balance(ctx, ref.Address, 1)
	if err != nil {
		return nil, err
	}
	coin0, err := a.coin0(ctx, ref.Address)
	if err != nil {
		return nil, err
	}

	state := &domain.PoolState{
		Venue:       a.venue.Name,
		Kind:        domain.KindStableSwap,
		Pair:        ref.Pair,
		Token0First: ref.Pair.Base.Address() == coin0,
		Reserve0:    balance0,
		Reserve1:    balance1,
		FeeBps:      a.venue.FeeBps,
		AmpCoeff:    a.venue.AmpCoeff,
		FetchedAt:   time.Now(),
	}
	if !state.HasLiquidity() {
		return nil, apperror.New(apperror.CodeInsufficientLiquidity,
			apperror.WithContext(fmt.Sprintf("pool %s has empty balances", ref.Address.Hex())))
	}
	return state, nil
}

func (a *Adapter) balance(ctx context.Context, pool common.Address, index int64) (*big.Int, error) {
	raw, err := a.call(ctx, pool, "balances", big.NewInt(index))
	if err != nil {
		return nil, err
	}
	outputs, err := a.poolABI.Unpack("balances", raw)
	if err != nil {
		return nil, fmt.Errorf("failed to decode balances(%d): %w", index, err)
	}
	return outputs[0].(*big.Int), nil
}

func (a *Adapter) coin0(ctx context.Context, pool common.Address) (common.Address, error) {
	if cached, ok := a.coin0s.Get(ctx, pool); ok {
		return cached, nil
	}
	raw, err := a.call(ctx, pool, "coins", big.NewInt(0))
	if err != nil {
		return common.Address{}, err
	}
	outputs, err := a.poolABI.Unpack("coins", raw)
	if err != nil {
		return common.Address{}, fmt.Errorf("failed to decode coins(0): %w", err)
	}
	addr := outputs[0].(common.Address)
	a.coin0s.Set(ctx, pool, addr, 24*time.Hour)
	return addr, nil
}

func (a *Adapter) call(ctx context.Context, to common.Address, method string, args ...interface{}) ([]byte, error) {
	callData, err := a.poolABI.Pack(method, args...)
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

func rate(decimals uint8) *big.Int {
	return new(big.Int).Exp(big.NewInt(10), big.NewInt(int64(normalizedDecimals-int(decimals))), nil)
}

func (a *Adapter) recordError(ctx context.Context, span trace.Span, err error) {
	a.metrics.quoteErrors.Add(ctx, 1, metric.WithAttributes(attribute.String("venue", a.venue.Name)))
	span.SetStatus(codes.Error, err.Error())
}
