// Package pricing implements the reference price feed bounded context:
// an external market data feed consulted for gas-cost conversion and
// sanity rates, never for quote math.
package pricing

import (
	"context"
	"strings"

	"github.com/fd1az/arb-engine/business/pricing/app"
	pricingDI "github.com/fd1az/arb-engine/business/pricing/di"
	"github.com/fd1az/arb-engine/business/pricing/domain"
	"github.com/fd1az/arb-engine/business/pricing/infra/feed"
	"github.com/fd1az/arb-engine/internal/asset"
	"github.com/fd1az/arb-engine/internal/config"
	"github.com/fd1az/arb-engine/internal/di"
	"github.com/fd1az/arb-engine/internal/logger"
	"github.com/fd1az/arb-engine/internal/monolith"
)

// Module implements the pricing bounded context.
type Module struct{}

// RegisterServices registers the feed providers and the price service.
func (m *Module) RegisterServices(c di.Container) error {
	di.RegisterToken(c, pricingDI.FallbackProvider, func(sr di.ServiceRegistry) app.Provider {
		cfg := sr.Get("config").(*config.Config)
		log := sr.Get("logger").(logger.LoggerInterface)

		provider, err := feed.NewHTTPProvider(feed.HTTPConfig{
			BaseURL:           cfg.Pricing.HTTPURL,
			RequestsPerMinute: cfg.Pricing.RequestsPerMinute,
			PollInterval:      cfg.Pricing.PollInterval,
		}, log)
		if err != nil {
			panic("failed to create HTTP price provider: " + err.Error())
		}
		return provider
	})

	di.RegisterToken(c, pricingDI.StreamProvider, func(sr di.ServiceRegistry) app.StreamingProvider {
		cfg := sr.Get("config").(*config.Config)
		log := sr.Get("logger").(logger.LoggerInterface)
		registry := sr.Get("assetRegistry").(*asset.Registry)

		if cfg.Pricing.WebSocketURL == "" {
			return nil
		}
		provider, err := feed.NewWSProvider(feed.WSConfig{
			URL:     cfg.Pricing.WebSocketURL,
			Symbols: feedSymbols(cfg, registry),
		}, log)
		if err != nil {
			panic("failed to create streaming price provider: " + err.Error())
		}
		return provider
	})

	di.RegisterToken(c, pricingDI.PriceFeed, func(sr di.ServiceRegistry) *app.Service {
		cfg := sr.Get("config").(*config.Config)
		log := sr.Get("logger").(logger.LoggerInterface)

		svc, err := app.NewService(
			pricingDI.GetStreamProvider(sr),
			pricingDI.GetFallbackProvider(sr),
			cfg.Pricing.StaleAfter,
			log,
		)
		if err != nil {
			panic("failed to create price feed service: " + err.Error())
		}
		return svc
	})

	return nil
}

// Startup connects the stream when one is configured. A failed connect
// is logged and left to the fallback provider, not fatal.
func (m *Module) Startup(ctx context.Context, mono monolith.Monolith) error {
	log := mono.Logger()

	stream := pricingDI.GetStreamProvider(mono.Services())
	if stream != nil {
		if err := stream.Start(ctx); err != nil {
			log.Warn(ctx, "price stream unavailable, serving from HTTP fallback", "error", err)
		}
	}

	log.Info(ctx, "pricing module started")
	return nil
}

// feedSymbols derives the stream subscriptions from the configured
// pairs: each traded pair plus the gas token against every base, so
// gas-cost conversion always has a rate.
func feedSymbols(cfg *config.Config, registry *asset.Registry) []string {
	gasToken, haveGas := registry.GetBySymbolAndChain("WETH", cfg.Ethereum.ChainID)

	seen := make(map[string]struct{})
	var symbols []string
	add := func(s string) {
		if _, ok := seen[s]; ok {
			return
		}
		seen[s] = struct{}{}
		symbols = append(symbols, s)
	}

	for _, pair := range cfg.Arbitrage.Pairs {
		parts := strings.SplitN(pair, "-", 2)
		if len(parts) != 2 {
			continue
		}
		base, okBase := registry.GetBySymbolAndChain(parts[0], cfg.Ethereum.ChainID)
		quote, okQuote := registry.GetBySymbolAndChain(parts[1], cfg.Ethereum.ChainID)
		if !okBase || !okQuote {
			continue
		}

		add(domain.FeedSymbol(base, quote))
		if haveGas && !base.Equals(gasToken) {
			add(domain.FeedSymbol(gasToken, base))
		}
	}
	return symbols
}
