// Package infra contains infrastructure adapters for the arbitrage context.
package infra

import (
	"context"

	"github.com/fd1az/arb-engine/business/arbitrage/domain"
	execdomain "github.com/fd1az/arb-engine/business/execution/domain"
	opp "github.com/fd1az/arb-engine/business/opportunity/domain"
	"github.com/fd1az/arb-engine/pkg/ui"
)

// TUIReporter implements Reporter by forwarding engine events to the
// Bubble Tea program as messages. The program itself is owned by
// main, which starts it before the modules.
type TUIReporter struct{}

// NewTUIReporter creates a new TUIReporter.
func NewTUIReporter() *TUIReporter {
	return &TUIReporter{}
}

// Start is a no-op; main runs the Bubble Tea program.
func (r *TUIReporter) Start(ctx context.Context) error {
	return nil
}

// ReportOpportunity sends a detected candidate to the TUI.
func (r *TUIReporter) ReportOpportunity(o *opp.Opportunity) {
	ui.Send(ui.OpportunityMsg{Opportunity: o})
}

// ReportExecution sends a finished attempt to the TUI.
func (r *TUIReporter) ReportExecution(rec *execdomain.Record) {
	ui.Send(ui.ExecutionMsg{Record: rec})
}

// ReportTick sends the round summary to the TUI.
func (r *TUIReporter) ReportTick(t domain.TickReport) {
	ui.Send(ui.TickReportMsg{Report: t})
}

// UpdateVenueHealth sends breaker state to the TUI.
func (r *TUIReporter) UpdateVenueHealth(venue, state string, reliability float64) {
	ui.Send(ui.VenueHealthMsg{Venue: venue, State: state, Reliability: reliability})
}

// Stop is a no-op; main tears down the Bubble Tea program.
func (r *TUIReporter) Stop() error {
	return nil
}
