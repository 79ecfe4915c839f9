// Package quotes implements the quote aggregation bounded context.
package quotes

import (
	"context"

	"github.com/fd1az/arb-engine/business/quotes/app"
	quotesDI "github.com/fd1az/arb-engine/business/quotes/di"
	"github.com/fd1az/arb-engine/business/quotes/domain"
	venuesDI "github.com/fd1az/arb-engine/business/venues/di"
	"github.com/fd1az/arb-engine/internal/config"
	"github.com/fd1az/arb-engine/internal/di"
	"github.com/fd1az/arb-engine/internal/logger"
	"github.com/fd1az/arb-engine/internal/monolith"
)

// Module implements the quotes bounded context.
type Module struct{}

// RegisterServices registers the aggregator and health registry.
func (m *Module) RegisterServices(c di.Container) error {
	di.RegisterToken(c, quotesDI.HealthRegistry, func(sr di.ServiceRegistry) *app.HealthRegistry {
		cfg := sr.Get("config").(*config.Config)
		return app.NewHealthRegistry(domain.HealthConfig{
			FailureThreshold: cfg.Quotes.Breaker.FailureThreshold,
			Cooldown:         cfg.Quotes.Breaker.Cooldown,
			MaxCooldown:      cfg.Quotes.Breaker.MaxCooldown,
		})
	})

	di.RegisterToken(c, quotesDI.QuoteAggregator, func(sr di.ServiceRegistry) *app.Aggregator {
		cfg := sr.Get("config").(*config.Config)
		log := sr.Get("logger").(logger.LoggerInterface)
		venueSvc := venuesDI.GetVenueService(sr)
		health := quotesDI.GetHealthRegistry(sr)

		agg, err := app.NewAggregator(venueSvc, health, app.Config{
			VenueTimeout:       cfg.Quotes.VenueTimeout,
			AggregationTimeout: cfg.Quotes.AggregationTimeout,
			CacheTTL:           cfg.Quotes.CacheTTL,
			MaxConcurrent:      cfg.Quotes.MaxConcurrent,
		}, log)
		if err != nil {
			panic("failed to create quote aggregator: " + err.Error())
		}
		return agg
	})

	return nil
}

// Startup initializes the quotes module.
func (m *Module) Startup(ctx context.Context, mono monolith.Monolith) error {
	mono.Logger().Info(ctx, "quotes module started")
	return nil
}
