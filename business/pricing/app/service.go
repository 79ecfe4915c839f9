package app

import (
	"context"
	"fmt"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"

	"github.com/fd1az/arb-engine/internal/apperror"
	"github.com/fd1az/arb-engine/internal/asset"
	"github.com/fd1az/arb-engine/internal/logger"
)

const (
	tracerName = "pricing"
	meterName  = "pricing"
)

type serviceMetrics struct {
	lookups    metric.Int64Counter
	staleDrops metric.Int64Counter
}

// Service answers reference price lookups. It prefers the streaming
// provider's latest tick and falls back to the on-demand provider when
// the stream has nothing fresh for the pair.
type Service struct {
	stream     StreamingProvider // may be nil
	fallback   Provider
	staleAfter time.Duration

	logger  logger.LoggerInterface
	tracer  trace.Tracer
	metrics *serviceMetrics
}

// NewService creates the price feed service. stream may be nil when no
// streaming endpoint is configured; fallback must not be.
func NewService(stream StreamingProvider, fallback Provider, staleAfter time.Duration, log logger.LoggerInterface) (*Service, error) {
	if fallback == nil {
		return nil, apperror.New(apperror.CodeInvalidInput, apperror.WithContext("pricing: nil fallback provider"))
	}
	if staleAfter <= 0 {
		return nil, apperror.New(apperror.CodeInvalidInput, apperror.WithContext("pricing: non-positive stale_after"))
	}

	s := &Service{
		stream:     stream,
		fallback:   fallback,
		staleAfter: staleAfter,
		logger:     log,
		tracer:     otel.Tracer(tracerName),
	}
	if err := s.initMetrics(); err != nil {
		return nil, fmt.Errorf("init metrics: %w", err)
	}
	return s, nil
}

func (s *Service) initMetrics() error {
	meter := otel.Meter(meterName)
	m := &serviceMetrics{}
	var err error

	if m.lookups, err = meter.Int64Counter("pricing.lookups",
		metric.WithDescription("Reference price lookups by serving source")); err != nil {
		return err
	}
	if m.staleDrops, err = meter.Int64Counter("pricing.stale_drops",
		metric.WithDescription("Prices discarded for exceeding the staleness window")); err != nil {
		return err
	}

	s.metrics = m
	return nil
}

// Price returns the freshest reference rate for base/quote. A rate
// older than the staleness window is rejected rather than served.
func (s *Service) Price(ctx context.Context, base, quote *asset.Asset) (asset.Price, error) {
	ctx, span := s.tracer.Start(ctx, "pricing.Price",
		trace.WithAttributes(
			attribute.String("pair", base.Symbol()+"-"+quote.Symbol()),
		))
	defer span.End()

	if p, ok := s.fromStream(ctx, base, quote); ok {
		span.SetAttributes(attribute.String("source", s.stream.Name()))
		span.SetStatus(codes.Ok, "")
		return p, nil
	}

	p, err := s.fallback.Rate(ctx, base, quote)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "fallback failed")
		return asset.Price{}, apperror.Wrap(err, apperror.CodePriceFeedUnavailable,
			fmt.Sprintf("%s/%s via %s", base.Symbol(), quote.Symbol(), s.fallback.Name()))
	}
	if p.IsStale(s.staleAfter) {
		s.metrics.staleDrops.Add(ctx, 1, metric.WithAttributes(attribute.String("source", s.fallback.Name())))
		span.SetStatus(codes.Error, "stale")
		return asset.Price{}, apperror.New(apperror.CodePriceFeedStale,
			apperror.WithContext(fmt.Sprintf("%s/%s aged %s from %s", base.Symbol(), quote.Symbol(), p.Age(), s.fallback.Name())))
	}

	s.metrics.lookups.Add(ctx, 1, metric.WithAttributes(attribute.String("source", s.fallback.Name())))
	span.SetStatus(codes.Ok, "")
	return p, nil
}

func (s *Service) fromStream(ctx context.Context, base, quote *asset.Asset) (asset.Price, bool) {
	if s.stream == nil {
		return asset.Price{}, false
	}
	p, err := s.stream.Rate(ctx, base, quote)
	if err != nil {
		return asset.Price{}, false
	}
	if p.IsStale(s.staleAfter) {
		s.metrics.staleDrops.Add(ctx, 1, metric.WithAttributes(attribute.String("source", s.stream.Name())))
		return asset.Price{}, false
	}
	s.metrics.lookups.Add(ctx, 1, metric.WithAttributes(attribute.String("source", s.stream.Name())))
	return p, true
}
