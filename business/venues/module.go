// Package venues implements the venue registry bounded context: one
// adapter per configured liquidity venue, each recomputing quotes from
// raw pool state.
package venues

import (
	"context"
	"fmt"

	"github.com/ethereum/go-ethereum/ethclient"

	"github.com/fd1az/arb-engine/business/venues/app"
	venuesDI "github.com/fd1az/arb-engine/business/venues/di"
	"github.com/fd1az/arb-engine/business/venues/domain"
	"github.com/fd1az/arb-engine/business/venues/infra/concentrated"
	"github.com/fd1az/arb-engine/business/venues/infra/constantproduct"
	"github.com/fd1az/arb-engine/business/venues/infra/stableswap"
	"github.com/fd1az/arb-engine/internal/asset"
	"github.com/fd1az/arb-engine/internal/config"
	"github.com/fd1az/arb-engine/internal/di"
	"github.com/fd1az/arb-engine/internal/logger"
	"github.com/fd1az/arb-engine/internal/monolith"
)

// Module implements the venues bounded context.
type Module struct{}

// RegisterServices registers the venue registry with the DI container.
func (m *Module) RegisterServices(c di.Container) error {
	di.RegisterToken(c, venuesDI.VenueService, func(sr di.ServiceRegistry) *app.Service {
		cfg := sr.Get("config").(*config.Config)
		log := sr.Get("logger").(logger.LoggerInterface)
		ethClient := sr.Get("ethClient").(*ethclient.Client)
		registry := sr.Get("assetRegistry").(*asset.Registry)

		adapters, err := buildAdapters(cfg, registry, ethClient, log)
		if err != nil {
			panic("failed to build venue adapters: " + err.Error())
		}
		return app.NewService(adapters)
	})
	return nil
}

// Startup logs the venue roster.
func (m *Module) Startup(ctx context.Context, mono monolith.Monolith) error {
	svc := venuesDI.GetVenueService(mono.Services())
	for _, a := range svc.Adapters() {
		v := a.Venue()
		mono.Logger().Info(ctx, "venue registered",
			"venue", v.Name,
			"kind", string(v.Kind),
			"pools", len(v.Pools),
		)
	}
	return nil
}

func buildAdapters(cfg *config.Config, registry *asset.Registry, ethClient *ethclient.Client, log logger.LoggerInterface) ([]app.Adapter, error) {
	var adapters []app.Adapter
	for _, vc := range cfg.Venues {
		if vc.Disabled {
			continue
		}
		venue, err := buildVenue(vc, registry, cfg.Ethereum.ChainID)
		if err != nil {
			return nil, err
		}

		var adapter app.Adapter
		switch venue.Kind {
		case domain.KindConstantProduct:
			adapter, err = constantproduct.NewAdapter(ethClient, venue, constantproduct.Options{
				QuoteValidity:    cfg.Quotes.QuoteValidity,
				ImpactCeilingBps: cfg.Arbitrage.ImpactCeilingBps,
			}, log)
		case domain.KindConcentratedLiquidity:
			adapter, err = concentrated.NewAdapter(ethClient, venue, concentrated.Options{
				QuoteValidity:    cfg.Quotes.QuoteValidity,
				ImpactCeilingBps: cfg.Arbitrage.ImpactCeilingBps,
				Quoter:           vc.QuoterAddressHex(),
			}, log)
		case domain.KindStableSwap:
			adapter, err = stableswap.NewAdapter(ethClient, venue, stableswap.Options{
				QuoteValidity:    cfg.Quotes.QuoteValidity,
				ImpactCeilingBps: cfg.Arbitrage.ImpactCeilingBps,
			}, log)
		default:
			err = fmt.Errorf("venue %s: unknown kind %q", vc.Name, vc.Kind)
		}
		if err != nil {
			return nil, err
		}
		adapters = append(adapters, adapter)
	}
	return adapters, nil
}

func buildVenue(vc config.VenueConfig, registry *asset.Registry, chainID uint64) (domain.Venue, error) {
	kind, ok := domain.ParseVenueKind(vc.Kind)
	if !ok {
		return domain.Venue{}, fmt.Errorf("venue %s: unknown kind %q", vc.Name, vc.Kind)
	}

	venue := domain.Venue{
		Name:     vc.Name,
		Kind:     kind,
		FeeBps:   vc.FeeBps,
		AmpCoeff: vc.AmpCoeff,
	}
	for _, pc := range vc.Pools {
		pair, err := domain.ResolvePair(registry, chainID, pc.Pair)
		if err != nil {
			return domain.Venue{}, fmt.Errorf("venue %s: %w", vc.Name, err)
		}
		venue.Pools = append(venue.Pools, domain.PoolRef{
			Pair:    pair,
			Address: pc.AddressHex(),
			FeeTier: pc.FeeTier,
		})
	}
	return venue, nil
}
