// Package opportunity implements the opportunity bounded context:
// profit sizing, risk scoring, and the candidate store.
package opportunity

import (
	"context"
	"math/big"

	blockchainapp "github.com/fd1az/arb-engine/business/blockchain/app"
	blockchainDI "github.com/fd1az/arb-engine/business/blockchain/di"
	"github.com/fd1az/arb-engine/business/opportunity/app"
	opportunityDI "github.com/fd1az/arb-engine/business/opportunity/di"
	pricingDI "github.com/fd1az/arb-engine/business/pricing/di"
	quotesapp "github.com/fd1az/arb-engine/business/quotes/app"
	quotesDI "github.com/fd1az/arb-engine/business/quotes/di"
	"github.com/fd1az/arb-engine/internal/asset"
	"github.com/fd1az/arb-engine/internal/config"
	"github.com/fd1az/arb-engine/internal/di"
	"github.com/fd1az/arb-engine/internal/logger"
	"github.com/fd1az/arb-engine/internal/monolith"
)

const historyLimit = 256

// Module implements the opportunity bounded context.
type Module struct{}

// RegisterServices registers the profit model, risk assessor, and
// candidate store with the DI container.
func (m *Module) RegisterServices(c di.Container) error {
	di.RegisterToken(c, opportunityDI.ProfitModel, func(sr di.ServiceRegistry) *app.Model {
		cfg := sr.Get("config").(*config.Config)
		log := sr.Get("logger").(logger.LoggerInterface)
		registry := sr.Get("assetRegistry").(*asset.Registry)

		gasToken, ok := registry.GetBySymbolAndChain("WETH", cfg.Ethereum.ChainID)
		if !ok {
			panic("profit model: WETH missing from asset registry")
		}

		model, err := app.NewModel(
			quotesDI.GetQuoteAggregator(sr),
			gasPricer{chain: blockchainDI.GetBlockchainService(sr)},
			pricingDI.GetPriceFeed(sr),
			gasToken,
			app.ProfitConfig{
				FlashFeeBps:   cfg.Settlement.FlashLoanFeeBps,
				MinMarginBps:  cfg.Arbitrage.MinMarginBps,
				SearchSamples: cfg.Arbitrage.SearchSamples,
			},
			log,
		)
		if err != nil {
			panic("failed to create profit model: " + err.Error())
		}
		return model
	})

	di.RegisterToken(c, opportunityDI.RiskAssessor, func(sr di.ServiceRegistry) *app.Assessor {
		cfg := sr.Get("config").(*config.Config)

		return app.NewAssessor(
			app.RiskWeights{
				Liquidity:   cfg.Risk.LiquidityWeight,
				Impact:      cfg.Risk.ImpactWeight,
				Reliability: cfg.Risk.ReliabilityWeight,
				Time:        cfg.Risk.TimeWeight,
			},
			app.RiskThresholds{
				ExecuteBelow: cfg.Risk.ExecuteBelow,
				SkipAbove:    cfg.Risk.SkipAbove,
			},
			healthReliability{registry: quotesDI.GetHealthRegistry(sr)},
			cfg.Arbitrage.ImpactCeilingBps,
		)
	})

	di.RegisterToken(c, opportunityDI.OpportunityStore, func(sr di.ServiceRegistry) *app.Store {
		return app.NewStore(historyLimit)
	})

	return nil
}

// Startup is a no-op; the context holds no connections of its own.
func (m *Module) Startup(ctx context.Context, mono monolith.Monolith) error {
	mono.Logger().Info(ctx, "opportunity module started")
	return nil
}

// gasPricer adapts the blockchain service to the profit model's port.
type gasPricer struct {
	chain *blockchainapp.BlockchainService
}

func (g gasPricer) GasPriceWei(ctx context.Context) (*big.Int, error) {
	price, err := g.chain.GetGasPrice(ctx)
	if err != nil {
		return nil, err
	}
	return price.Wei, nil
}

// healthReliability adapts the venue health registry to the risk
// assessor's port.
type healthReliability struct {
	registry *quotesapp.HealthRegistry
}

func (h healthReliability) Reliability(venue string) float64 {
	return h.registry.Get(venue).Reliability()
}
