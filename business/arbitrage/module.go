// Package arbitrage implements the engine bounded context: the scan
// loop that ties detection, risk scoring, and execution together.
package arbitrage

import (
	"context"
	"fmt"
	"strings"

	"github.com/fd1az/arb-engine/business/arbitrage/app"
	arbitrageDI "github.com/fd1az/arb-engine/business/arbitrage/di"
	"github.com/fd1az/arb-engine/business/arbitrage/domain"
	"github.com/fd1az/arb-engine/business/arbitrage/infra"
	blockchainDI "github.com/fd1az/arb-engine/business/blockchain/di"
	executionDI "github.com/fd1az/arb-engine/business/execution/di"
	oppapp "github.com/fd1az/arb-engine/business/opportunity/app"
	opportunityDI "github.com/fd1az/arb-engine/business/opportunity/di"
	quotesDI "github.com/fd1az/arb-engine/business/quotes/di"
	venues "github.com/fd1az/arb-engine/business/venues/domain"
	"github.com/fd1az/arb-engine/internal/asset"
	"github.com/fd1az/arb-engine/internal/config"
	"github.com/fd1az/arb-engine/internal/di"
	"github.com/fd1az/arb-engine/internal/logger"
	"github.com/fd1az/arb-engine/internal/monolith"
)

// Module implements the arbitrage bounded context.
type Module struct{}

// RegisterServices registers the reporter and the engine with the DI
// container.
func (m *Module) RegisterServices(c di.Container) error {
	di.RegisterToken(c, arbitrageDI.Reporter, func(sr di.ServiceRegistry) app.Reporter {
		cfg := sr.Get("config").(*config.Config)
		if cfg.Arbitrage.TUIMode {
			return infra.NewTUIReporter()
		}
		return infra.NewConsoleReporter()
	})

	di.RegisterToken(c, arbitrageDI.Engine, func(sr di.ServiceRegistry) *app.Engine {
		cfg := sr.Get("config").(*config.Config)
		log := sr.Get("logger").(logger.LoggerInterface)
		registry := sr.Get("assetRegistry").(*asset.Registry)

		pairs, err := pairSizings(cfg, registry)
		if err != nil {
			panic("failed to build pair roster: " + err.Error())
		}

		engine, err := app.NewEngine(
			opportunityDI.GetProfitModel(sr),
			opportunityDI.GetRiskAssessor(sr),
			opportunityDI.GetOpportunityStore(sr),
			executionDI.GetExecutionCoordinator(sr),
			blockchainDI.GetBlockchainService(sr),
			quotesDI.GetHealthRegistry(sr),
			arbitrageDI.GetReporter(sr),
			app.EngineConfig{
				Pairs:        pairs,
				Trigger:      domain.ParseTrigger(cfg.Arbitrage.Trigger),
				TickInterval: cfg.Arbitrage.TickInterval,
			},
			log,
		)
		if err != nil {
			panic("failed to create engine: " + err.Error())
		}
		return engine
	})

	return nil
}

// Startup launches the scan loop.
func (m *Module) Startup(ctx context.Context, mono monolith.Monolith) error {
	engine := arbitrageDI.GetEngine(mono.Services())
	if err := engine.Start(ctx); err != nil {
		return err
	}
	mono.Logger().Info(ctx, "arbitrage module started",
		"trigger", mono.Config().Arbitrage.Trigger,
		"pairs", len(mono.Config().Arbitrage.Pairs),
	)
	return nil
}

// pairSizings resolves the configured pair strings against the asset
// registry and attaches the search bounds, denominated in each pair's
// base token.
func pairSizings(cfg *config.Config, registry *asset.Registry) ([]app.PairSizing, error) {
	out := make([]app.PairSizing, 0, len(cfg.Arbitrage.Pairs))
	for _, raw := range cfg.Arbitrage.Pairs {
		parts := strings.SplitN(raw, "-", 2)
		if len(parts) != 2 {
			return nil, fmt.Errorf("malformed pair %q, want BASE-QUOTE", raw)
		}

		base, ok := registry.GetBySymbolAndChain(parts[0], cfg.Ethereum.ChainID)
		if !ok {
			return nil, fmt.Errorf("pair %q: unknown base asset %q", raw, parts[0])
		}
		quote, ok := registry.GetBySymbolAndChain(parts[1], cfg.Ethereum.ChainID)
		if !ok {
			return nil, fmt.Errorf("pair %q: unknown quote asset %q", raw, parts[1])
		}

		min, err := asset.ParseDecimal(base, cfg.Arbitrage.MinTradeSizeDecimal())
		if err != nil {
			return nil, fmt.Errorf("pair %q: min trade size: %w", raw, err)
		}
		max, err := asset.ParseDecimal(base, cfg.Arbitrage.MaxTradeSizeDecimal())
		if err != nil {
			return nil, fmt.Errorf("pair %q: max trade size: %w", raw, err)
		}
		minProfit, err := asset.ParseDecimal(base, cfg.Arbitrage.MinProfitDecimal())
		if err != nil {
			return nil, fmt.Errorf("pair %q: min profit: %w", raw, err)
		}

		out = append(out, app.PairSizing{
			Pair: venues.NewPair(base, quote),
			Sizing: oppapp.SizingParams{
				Min:       min,
				Max:       max,
				MinProfit: minProfit,
			},
		})
	}
	return out, nil
}
