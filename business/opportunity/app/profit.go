package app

import (
	"context"
	"fmt"
	"math/big"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"

	"github.com/fd1az/arb-engine/business/opportunity/domain"
	venues "github.com/fd1az/arb-engine/business/venues/domain"
	"github.com/fd1az/arb-engine/internal/apperror"
	"github.com/fd1az/arb-engine/internal/asset"
	"github.com/fd1az/arb-engine/internal/logger"
)

const (
	tracerName = "opportunity"
	meterName  = "opportunity"

	// Gas the settlement spends outside the two swaps: flash borrow,
	// repayment transfer, bookkeeping.
	flashGasOverhead = 90_000

	// ternaryIterations shrinks the search interval to well under a
	// tenth of a percent of its initial width.
	ternaryIterations = 18
)

// ProfitConfig holds the sizing-search knobs shared across pairs.
type ProfitConfig struct {
	FlashFeeBps   int64
	MinMarginBps  int64
	SearchSamples int
}

// SizingParams bound the search for one pair, in the base token's
// smallest units.
type SizingParams struct {
	Min       asset.Amount
	Max       asset.Amount
	MinProfit asset.Amount
}

type profitMetrics struct {
	evaluations   metric.Int64Counter
	shortCircuits metric.Int64Counter
	found         metric.Int64Counter
	searchLatency metric.Float64Histogram
}

// Model prices two-leg flash-loan arbitrage candidates. All profit
// math is exact integer arithmetic in the base token's smallest units.
type Model struct {
	quotes   Quoter
	gas      GasPricer
	ref      ReferencePricer
	gasToken *asset.Asset
	cfg      ProfitConfig

	logger  logger.LoggerInterface
	tracer  trace.Tracer
	metrics *profitMetrics
}

// NewModel creates the profit model. gasToken is the asset gas costs
// are paid in (the wrapped native token).
func NewModel(quoter Quoter, gas GasPricer, ref ReferencePricer, gasToken *asset.Asset, cfg ProfitConfig, log logger.LoggerInterface) (*Model, error) {
	if gasToken == nil {
		return nil, fmt.Errorf("gas token is required")
	}
	if cfg.SearchSamples <= 0 {
		cfg.SearchSamples = 8
	}

	m := &Model{
		quotes:   quoter,
		gas:      gas,
		ref:      ref,
		gasToken: gasToken,
		cfg:      cfg,
		logger:   log,
		tracer:   otel.Tracer(tracerName),
	}
	if err := m.initMetrics(); err != nil {
		return nil, fmt.Errorf("failed to init metrics: %w", err)
	}
	return m, nil
}

func (m *Model) initMetrics() error {
	meter := otel.Meter(meterName)
	var err error

	m.metrics = &profitMetrics{}

	m.metrics.evaluations, err = meter.Int64Counter(
		"profit_evaluations_total",
		metric.WithDescription("Candidate size evaluations"),
	)
	if err != nil {
		return err
	}

	m.metrics.shortCircuits, err = meter.Int64Counter(
		"profit_short_circuits_total",
		metric.WithDescription("Searches abandoned on a non-positive spread at the minimum size"),
	)
	if err != nil {
		return err
	}

	m.metrics.found, err = meter.Int64Counter(
		"opportunities_found_total",
		metric.WithDescription("Opportunities that cleared both profit thresholds"),
	)
	if err != nil {
		return err
	}

	m.metrics.searchLatency, err = meter.Float64Histogram(
		"profit_search_latency_ms",
		metric.WithDescription("Sizing search latency in milliseconds"),
		metric.WithUnit("ms"),
	)
	return err
}

// valuation is one candidate size priced end to end. Signed fields are
// big.Int because losses are representable.
type valuation struct {
	borrow   asset.Amount
	sell     venues.Quote
	buy      venues.Quote
	gross    *big.Int
	flashFee *big.Int
	gasCost  *big.Int
	net      *big.Int
	margin   int64
}

// FindBest searches [params.Min, params.Max] for the most profitable
// borrow size and returns a detected opportunity, or nil when the pair
// offers nothing that clears the thresholds. A non-positive spread at
// the minimum size abandons the search immediately.
func (m *Model) FindBest(ctx context.Context, pair venues.Pair, params SizingParams, blockNumber uint64) (*domain.Opportunity, error) {
	ctx, span := m.tracer.Start(ctx, "opportunity.find_best",
		trace.WithAttributes(attribute.String("pair", pair.String())),
	)
	defer span.End()

	start := time.Now()
	defer func() {
		m.metrics.searchLatency.Record(ctx, float64(time.Since(start).Milliseconds()))
	}()

	probe, err := m.evaluate(ctx, pair, params.Min)
	if err != nil {
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}
	if probe.gross.Sign() <= 0 {
		m.metrics.shortCircuits.Add(ctx, 1)
		span.AddEvent("negative_spread_short_circuit")
		span.SetStatus(codes.Ok, "no spread")
		return nil, nil
	}

	lo := new(big.Int).Set(params.Min.Raw())
	hi := m.clampMax(params, probe)
	if hi.Cmp(lo) < 0 {
		hi = new(big.Int).Set(lo)
	}

	best := probe

	// Ternary search assumes a unimodal profit curve, which holds for
	// monotone-impact curves; the grid pass below catches the rest.
	tlo, thi := new(big.Int).Set(lo), new(big.Int).Set(hi)
	for i := 0; i < ternaryIterations && tlo.Cmp(thi) < 0; i++ {
		third := new(big.Int).Sub(thi, tlo)
		third.Div(third, big.NewInt(3))
		if third.Sign() == 0 {
			break
		}
		m1 := new(big.Int).Add(tlo, third)
		m2 := new(big.Int).Sub(thi, third)

		v1, err1 := m.evaluate(ctx, pair, asset.NewAmount(pair.Base, m1))
		v2, err2 := m.evaluate(ctx, pair, asset.NewAmount(pair.Base, m2))
		if err1 != nil || err2 != nil {
			break
		}
		best = better(best, v1)
		best = better(best, v2)

		if v1.net.Cmp(v2.net) < 0 {
			tlo = m1
		} else {
			thi = m2
		}
	}

	// Grid pass over the full clamped range.
	span.AddEvent("grid_pass", trace.WithAttributes(attribute.Int("samples", m.cfg.SearchSamples)))
	width := new(big.Int).Sub(hi, lo)
	for i := 1; i <= m.cfg.SearchSamples; i++ {
		size := new(big.Int).Mul(width, big.NewInt(int64(i)))
		size.Div(size, big.NewInt(int64(m.cfg.SearchSamples)))
		size.Add(size, lo)

		v, err := m.evaluate(ctx, pair, asset.NewAmount(pair.Base, size))
		if err != nil {
			continue
		}
		best = better(best, v)
	}

	if best == nil || best.net.Sign() <= 0 ||
		best.net.Cmp(params.MinProfit.Raw()) < 0 ||
		best.margin < m.cfg.MinMarginBps {
		span.SetStatus(codes.Ok, "below thresholds")
		return nil, nil
	}

	opp := domain.New(pair, best.borrow, best.sell, best.buy, blockNumber)
	opp.GrossProfit = asset.NewAmount(pair.Base, best.gross)
	opp.FlashFee = asset.NewAmount(pair.Base, best.flashFee)
	opp.GasCost = asset.NewAmount(pair.Base, best.gasCost)
	opp.NetProfit = asset.NewAmount(pair.Base, best.net)
	opp.MarginBps = best.margin

	m.metrics.found.Add(ctx, 1)
	span.SetAttributes(
		attribute.String("borrow", best.borrow.Raw().String()),
		attribute.String("net_profit", best.net.String()),
		attribute.Int64("margin_bps", best.margin),
	)
	span.SetStatus(codes.Ok, "opportunity found")

	m.logger.Info(ctx, "opportunity detected",
		"pair", pair.String(),
		"sell_venue", best.sell.Venue,
		"buy_venue", best.buy.Venue,
		"borrow", best.borrow.Raw().String(),
		"net_profit", best.net.String(),
		"margin_bps", best.margin,
	)

	return opp, nil
}

// evaluate prices one borrow size end to end: sell base for quote on
// the best venue, buy base back on the best other venue, subtract the
// flash fee and gas.
func (m *Model) evaluate(ctx context.Context, pair venues.Pair, borrow asset.Amount) (*valuation, error) {
	m.metrics.evaluations.Add(ctx, 1)

	sellSet, err := m.quotes.Aggregate(ctx, pair.Base, pair.Quote, borrow)
	if err != nil {
		return nil, err
	}
	sell := sellSet.Best()
	if sell == nil {
		return nil, apperror.New(apperror.CodeVenueUnavailable,
			apperror.WithContext(fmt.Sprintf("no sell quote for %s", pair)))
	}

	buySet, err := m.quotes.Aggregate(ctx, pair.Quote, pair.Base, sell.AmountOut)
	if err != nil {
		return nil, err
	}
	buy := buySet.BestExcluding(sell.Venue)
	if buy == nil {
		return nil, apperror.New(apperror.CodeSameVenueLegs,
			apperror.WithContext(fmt.Sprintf("only %s can quote both legs of %s", sell.Venue, pair)))
	}

	gross := new(big.Int).Sub(buy.AmountOut.Raw(), borrow.Raw())
	flashFee := borrow.ApplyBps(m.cfg.FlashFeeBps).Raw()

	gasCost, err := m.gasCostInBase(ctx, pair.Base, sell.GasEstimate+buy.GasEstimate+flashGasOverhead)
	if err != nil {
		return nil, err
	}

	net := new(big.Int).Sub(gross, flashFee)
	net.Sub(net, gasCost)

	margin := new(big.Int).Mul(net, big.NewInt(asset.BpsDenominator))
	margin.Div(margin, borrow.Raw())

	return &valuation{
		borrow:   borrow,
		sell:     *sell,
		buy:      *buy,
		gross:    gross,
		flashFee: flashFee,
		gasCost:  gasCost,
		net:      net,
		margin:   margin.Int64(),
	}, nil
}

// gasCostInBase prices totalGas units of gas in the borrowed token.
func (m *Model) gasCostInBase(ctx context.Context, base *asset.Asset, totalGas uint64) (*big.Int, error) {
	gasPrice, err := m.gas.GasPriceWei(ctx)
	if err != nil {
		return nil, err
	}
	costWei := new(big.Int).Mul(gasPrice, new(big.Int).SetUint64(totalGas))

	if base.Equals(m.gasToken) {
		return costWei, nil
	}

	price, err := m.ref.Price(ctx, m.gasToken, base)
	if err != nil {
		return nil, err
	}
	converted, err := price.Convert(asset.NewAmount(m.gasToken, costWei))
	if err != nil {
		return nil, err
	}
	return converted.Raw(), nil
}

// RepriceGas prices the settlement's total gas, both swaps plus the
// flash-loan overhead, in the borrowed token at the current gas price.
// The execution coordinator uses it to refresh a candidate's cost side
// before submission.
func (m *Model) RepriceGas(ctx context.Context, base *asset.Asset, sellGas, buyGas uint64) (asset.Amount, error) {
	cost, err := m.gasCostInBase(ctx, base, sellGas+buyGas+flashGasOverhead)
	if err != nil {
		return asset.Amount{}, err
	}
	return asset.NewAmount(base, cost), nil
}

// clampMax bounds the search ceiling by both legs' liquidity caps, as
// observed at the probe size.
func (m *Model) clampMax(params SizingParams, probe *valuation) *big.Int {
	hi := new(big.Int).Set(params.Max.Raw())

	if cap := probe.sell.LiquidityCap.Raw(); cap != nil && cap.Sign() > 0 && cap.Cmp(hi) < 0 {
		hi.Set(cap)
	}

	// The buy leg's cap is in the quote token. Scale it back to a
	// borrow size through the probe's sell rate.
	if cap := probe.buy.LiquidityCap.Raw(); cap != nil && cap.Sign() > 0 {
		sellOut := probe.sell.AmountOut.Raw()
		if sellOut.Sign() > 0 && sellOut.Cmp(cap) > 0 {
			scaled := new(big.Int).Mul(probe.borrow.Raw(), cap)
			scaled.Div(scaled, sellOut)
			if scaled.Cmp(hi) < 0 {
				hi.Set(scaled)
			}
		}
	}
	return hi
}

func better(a, b *valuation) *valuation {
	if a == nil {
		return b
	}
	if b == nil {
		return a
	}
	if b.net.Cmp(a.net) > 0 {
		return b
	}
	return a
}
