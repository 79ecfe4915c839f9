package feed

import (
	"context"
	"encoding/json"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"

	"github.com/fd1az/arb-engine/business/pricing/domain"
	"github.com/fd1az/arb-engine/internal/apperror"
	"github.com/fd1az/arb-engine/internal/asset"
	"github.com/fd1az/arb-engine/internal/logger"
	"github.com/fd1az/arb-engine/internal/wsconn"
)

const meterName = "pricing.feed"

type wsMetrics struct {
	ticksReceived metric.Int64Counter
	parseErrors   metric.Int64Counter
}

// WSConfig holds the streaming provider configuration.
type WSConfig struct {
	URL     string
	Symbols []string // feed symbols to subscribe, e.g. "ETHUSDC"
}

// WSProvider subscribes to mini ticker streams and answers Rate from
// the latest tick per symbol. Staleness is judged by the caller.
type WSProvider struct {
	cfg  WSConfig
	conn *wsconn.Client

	latest map[string]domain.Tick
	mu     sync.RWMutex

	nextID  atomic.Int64
	running atomic.Bool

	logger  logger.LoggerInterface
	tracer  trace.Tracer
	metrics *wsMetrics
}

// NewWSProvider creates the streaming provider.
func NewWSProvider(cfg WSConfig, log logger.LoggerInterface) (*WSProvider, error) {
	if cfg.URL == "" {
		return nil, apperror.New(apperror.CodeInvalidInput, apperror.WithContext("feed: empty WebSocket URL"))
	}
	if len(cfg.Symbols) == 0 {
		return nil, apperror.New(apperror.CodeInvalidInput, apperror.WithContext("feed: no symbols to subscribe"))
	}

	p := &WSProvider{
		cfg:    cfg,
		latest: make(map[string]domain.Tick),
		logger: log,
		tracer: otel.Tracer(tracerName),
	}
	if err := p.initMetrics(); err != nil {
		return nil, err
	}

	connCfg := wsconn.DefaultConfig(cfg.URL)
	connCfg.OnConnect = p.subscribe
	p.conn = wsconn.New(connCfg)
	return p, nil
}

func (p *WSProvider) initMetrics() error {
	meter := otel.Meter(meterName)
	m := &wsMetrics{}
	var err error

	if m.ticksReceived, err = meter.Int64Counter("pricing.feed.ticks",
		metric.WithDescription("Mini ticker events received")); err != nil {
		return err
	}
	if m.parseErrors, err = meter.Int64Counter("pricing.feed.parse_errors",
		metric.WithDescription("Stream messages that failed to parse")); err != nil {
		return err
	}

	p.metrics = m
	return nil
}

// Name identifies the provider in logs and metrics.
func (p *WSProvider) Name() string { return "ws-feed" }

// Start connects and begins consuming ticks. The read loop lives until
// Stop or context cancellation.
func (p *WSProvider) Start(ctx context.Context) error {
	if !p.running.CompareAndSwap(false, true) {
		return nil
	}
	if err := p.conn.Connect(ctx); err != nil {
		p.running.Store(false)
		return apperror.Wrap(err, apperror.CodePriceFeedUnavailable, "stream connect")
	}

	go p.consume(ctx)
	p.logger.Info(ctx, "price stream started", "symbols", strings.Join(p.cfg.Symbols, ","))
	return nil
}

// Stop closes the stream.
func (p *WSProvider) Stop() error {
	if !p.running.CompareAndSwap(true, false) {
		return nil
	}
	return p.conn.Close()
}

// Rate returns the latest streamed rate for base/quote. A pair with no
// tick yet is an error, not a zero price.
func (p *WSProvider) Rate(_ context.Context, base, quote *asset.Asset) (asset.Price, error) {
	symbol := domain.FeedSymbol(base, quote)

	p.mu.RLock()
	tick, ok := p.latest[symbol]
	p.mu.RUnlock()

	if !ok {
		return asset.Price{}, apperror.New(apperror.CodePriceFeedUnavailable,
			apperror.WithContext("no tick yet for "+symbol))
	}
	return tick.Price(base, quote)
}

// subscribe replays the stream subscriptions. Runs on every
// (re)connect.
func (p *WSProvider) subscribe(ctx context.Context) error {
	params := make([]string, 0, len(p.cfg.Symbols))
	for _, s := range p.cfg.Symbols {
		params = append(params, strings.ToLower(s)+"@miniTicker")
	}

	msg, err := json.Marshal(subscribeRequest{
		Method: "SUBSCRIBE",
		Params: params,
		ID:     p.nextID.Add(1),
	})
	if err != nil {
		return err
	}
	return p.conn.Send(ctx, msg)
}

func (p *WSProvider) consume(ctx context.Context) {
	for {
		select {
		case raw, ok := <-p.conn.Messages():
			if !ok {
				return
			}
			p.handle(ctx, raw)
		case <-ctx.Done():
			return
		}
	}
}

func (p *WSProvider) handle(ctx context.Context, raw []byte) {
	var env streamEnvelope
	if err := json.Unmarshal(raw, &env); err != nil {
		p.metrics.parseErrors.Add(ctx, 1)
		return
	}
	if env.Data.Symbol == "" {
		// Subscription acks carry no payload.
		return
	}

	rate, err := decimal.NewFromString(env.Data.ClosePrice)
	if err != nil {
		p.metrics.parseErrors.Add(ctx, 1)
		p.logger.Warn(ctx, "bad tick price", "symbol", env.Data.Symbol, "price", env.Data.ClosePrice)
		return
	}

	tick := domain.Tick{
		Symbol:     strings.ToUpper(env.Data.Symbol),
		Rate:       rate,
		Source:     p.Name(),
		ReceivedAt: time.Now(),
	}

	p.mu.Lock()
	p.latest[tick.Symbol] = tick
	p.mu.Unlock()

	p.metrics.ticksReceived.Add(ctx, 1)
}
