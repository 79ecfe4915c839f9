// Package execution implements the execution bounded context: claim,
// revalidate, submit, confirm.
package execution

import (
	"context"
	"time"

	"github.com/ethereum/go-ethereum/ethclient"

	"github.com/fd1az/arb-engine/business/execution/app"
	executionDI "github.com/fd1az/arb-engine/business/execution/di"
	"github.com/fd1az/arb-engine/business/execution/infra/settlement"
	opportunityDI "github.com/fd1az/arb-engine/business/opportunity/di"
	quotesapp "github.com/fd1az/arb-engine/business/quotes/app"
	quotesDI "github.com/fd1az/arb-engine/business/quotes/di"
	venuesDI "github.com/fd1az/arb-engine/business/venues/di"
	"github.com/fd1az/arb-engine/internal/config"
	"github.com/fd1az/arb-engine/internal/di"
	"github.com/fd1az/arb-engine/internal/logger"
	"github.com/fd1az/arb-engine/internal/monolith"
)

// Module implements the execution bounded context.
type Module struct{}

// RegisterServices registers the submitter and coordinator with the DI
// container.
func (m *Module) RegisterServices(c di.Container) error {
	di.RegisterToken(c, executionDI.Submitter, func(sr di.ServiceRegistry) app.Submitter {
		cfg := sr.Get("config").(*config.Config)
		log := sr.Get("logger").(logger.LoggerInterface)
		ethClient := sr.Get("ethClient").(*ethclient.Client)

		sub, err := settlement.NewSubmitter(
			ethClient,
			cfg.Settlement.ContractAddressHex(),
			cfg.Ethereum.PrivateKey,
			cfg.Ethereum.ChainID,
			log,
		)
		if err != nil {
			panic("failed to create settlement submitter: " + err.Error())
		}
		return sub
	})

	di.RegisterToken(c, executionDI.ExecutionCoordinator, func(sr di.ServiceRegistry) *app.Coordinator {
		cfg := sr.Get("config").(*config.Config)
		log := sr.Get("logger").(logger.LoggerInterface)

		coordinator, err := app.NewCoordinator(
			opportunityDI.GetOpportunityStore(sr),
			venuesDI.GetVenueService(sr),
			executionDI.GetSubmitter(sr),
			healthRecorder{registry: quotesDI.GetHealthRegistry(sr)},
			opportunityDI.GetProfitModel(sr),
			opportunityDI.GetRiskAssessor(sr),
			app.Config{
				SlippageBps:         cfg.Execution.SlippageBps,
				SafetyMargin:        cfg.Execution.SafetyMargin,
				ConfirmPollInterval: cfg.Execution.ConfirmPollInterval,
				GasLimit:            cfg.Execution.GasLimit,
				MinProfit:           cfg.Arbitrage.MinProfitDecimal(),
				MinMarginBps:        cfg.Arbitrage.MinMarginBps,
				DryRun:              cfg.Execution.DryRun,
			},
			log,
		)
		if err != nil {
			panic("failed to create execution coordinator: " + err.Error())
		}
		return coordinator
	})

	return nil
}

// Startup logs the execution mode.
func (m *Module) Startup(ctx context.Context, mono monolith.Monolith) error {
	cfg := mono.Config()
	mono.Logger().Info(ctx, "execution module started",
		"dry_run", cfg.Execution.DryRun,
		"slippage_bps", cfg.Execution.SlippageBps,
	)
	return nil
}

// healthRecorder adapts the venue health registry to the coordinator's
// outcome feedback port.
type healthRecorder struct {
	registry *quotesapp.HealthRegistry
}

func (h healthRecorder) RecordSuccess(venue string) {
	h.registry.Get(venue).RecordSuccess(time.Now())
}

func (h healthRecorder) RecordFailure(venue string) {
	h.registry.Get(venue).RecordFailure(time.Now())
}
