// Package app contains the detection engine and its reporting port.
package app

import (
	"context"

	"github.com/fd1az/arb-engine/business/arbitrage/domain"
	execdomain "github.com/fd1az/arb-engine/business/execution/domain"
	opp "github.com/fd1az/arb-engine/business/opportunity/domain"
)

// Reporter receives engine events for display or logging.
type Reporter interface {
	Start(ctx context.Context) error

	// ReportOpportunity is called for every scored candidate, whatever
	// the verdict.
	ReportOpportunity(o *opp.Opportunity)

	// ReportExecution is called when an execution attempt reaches a
	// terminal state.
	ReportExecution(rec *execdomain.Record)

	// ReportTick is called once per detection round.
	ReportTick(t domain.TickReport)

	// UpdateVenueHealth pushes a venue's breaker state and reliability.
	UpdateVenueHealth(venue, state string, reliability float64)

	Stop() error
}
