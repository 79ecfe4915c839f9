package feed

import (
	"context"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/fd1az/arb-engine/business/pricing/domain"
	"github.com/fd1az/arb-engine/internal/apperror"
	"github.com/fd1az/arb-engine/internal/asset"
	"github.com/fd1az/arb-engine/internal/cache"
	"github.com/fd1az/arb-engine/internal/httpclient"
	"github.com/fd1az/arb-engine/internal/logger"
	"github.com/fd1az/arb-engine/internal/ratelimit"
)

const (
	tracerName = "pricing.feed"

	tickerEndpoint = "/api/v3/ticker/price"

	httpTimeout = 10 * time.Second
)

// HTTPConfig holds the REST provider configuration.
type HTTPConfig struct {
	BaseURL           string
	RequestsPerMinute int
	// PollInterval is how long a fetched rate is reused before the
	// endpoint is hit again for the same symbol.
	PollInterval time.Duration
}

// HTTPProvider polls the REST ticker endpoint, rate-limited and with a
// short per-symbol cache so hot pairs do not burn the request budget.
type HTTPProvider struct {
	client  httpclient.Client
	cfg     HTTPConfig
	limiter *ratelimit.Limiter
	recent  *cache.Cache[string, asset.Price]

	logger logger.LoggerInterface
	tracer trace.Tracer
}

// NewHTTPProvider creates the REST provider.
func NewHTTPProvider(cfg HTTPConfig, log logger.LoggerInterface) (*HTTPProvider, error) {
	if cfg.BaseURL == "" {
		return nil, apperror.New(apperror.CodeInvalidInput, apperror.WithContext("feed: empty HTTP base URL"))
	}
	if cfg.RequestsPerMinute <= 0 {
		cfg.RequestsPerMinute = 60
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = 5 * time.Second
	}

	tracer := otel.Tracer(tracerName)

	client, err := httpclient.NewInstrumentedClient(
		httpclient.WithProviderName("price-feed"),
		httpclient.WithBaseURL(cfg.BaseURL),
		httpclient.WithRequestTimeout(httpTimeout),
		httpclient.WithTraceOptions(tracer, httpclient.TraceRequest, httpclient.TraceResponse),
		httpclient.WithHeaders(map[string]string{
			"Accept": "application/json",
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("create HTTP client: %w", err)
	}

	return &HTTPProvider{
		client:  client,
		cfg:     cfg,
		limiter: ratelimit.New(cfg.RequestsPerMinute),
		recent:  cache.New[string, asset.Price](time.Minute),
		logger:  log,
		tracer:  tracer,
	}, nil
}

// Name identifies the provider in logs and metrics.
func (p *HTTPProvider) Name() string { return "http-feed" }

// Rate fetches the current reference rate for base/quote.
func (p *HTTPProvider) Rate(ctx context.Context, base, quote *asset.Asset) (asset.Price, error) {
	symbol := domain.FeedSymbol(base, quote)

	ctx, span := p.tracer.Start(ctx, "feed.http.rate",
		trace.WithAttributes(attribute.String("symbol", symbol)))
	defer span.End()

	if cached, ok := p.recent.Get(ctx, symbol); ok {
		span.SetAttributes(attribute.Bool("cache_hit", true))
		return cached, nil
	}

	if err := p.limiter.Wait(ctx); err != nil {
		return asset.Price{}, apperror.Wrap(err, apperror.CodePriceFeedUnavailable, "rate limiter wait")
	}

	var result tickerResponse
	resp, err := p.client.NewRequestWithOptions(
		httpclient.WithLabels(
			httpclient.NewLabel("endpoint", "ticker"),
			httpclient.NewLabel("symbol", symbol),
		),
	).
		SetQueryParam("symbol", symbol).
		SetResult(&result).
		Get(ctx, tickerEndpoint)
	if err != nil {
		span.RecordError(err)
		return asset.Price{}, apperror.New(apperror.CodePriceFeedUnavailable,
			apperror.WithCause(err),
			apperror.WithContext("ticker request failed for "+symbol))
	}
	if resp.IsError() {
		return asset.Price{}, apperror.New(apperror.CodePriceFeedUnavailable,
			apperror.WithContext(fmt.Sprintf("ticker HTTP %d for %s: %s", resp.StatusCode, symbol, resp.String())))
	}

	rate, err := decimal.NewFromString(result.Price)
	if err != nil {
		return asset.Price{}, apperror.New(apperror.CodePriceFeedUnavailable,
			apperror.WithCause(err),
			apperror.WithContext(fmt.Sprintf("unparseable price %q for %s", result.Price, symbol)))
	}

	tick := domain.Tick{Symbol: symbol, Rate: rate, Source: p.Name(), ReceivedAt: time.Now()}
	price, err := tick.Price(base, quote)
	if err != nil {
		return asset.Price{}, err
	}

	p.recent.Set(ctx, symbol, price, p.cfg.PollInterval)
	p.logger.Debug(ctx, "fetched reference rate", "symbol", symbol, "rate", rate.String())
	return price, nil
}
