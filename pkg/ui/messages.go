// Package ui provides the Bubble Tea TUI for the arbitrage engine.
package ui

import (
	"time"

	"github.com/fd1az/arb-engine/business/arbitrage/domain"
	execdomain "github.com/fd1az/arb-engine/business/execution/domain"
	opp "github.com/fd1az/arb-engine/business/opportunity/domain"
)

// Message types for TUI updates

// OpportunityMsg is sent when an arbitrage candidate is detected.
type OpportunityMsg struct {
	Opportunity *opp.Opportunity
}

// ExecutionMsg is sent when an execution attempt finishes.
type ExecutionMsg struct {
	Record *execdomain.Record
}

// TickReportMsg is sent after each scan round completes.
type TickReportMsg struct {
	Report domain.TickReport
}

// VenueHealthMsg is sent when a venue's breaker state or reliability changes.
type VenueHealthMsg struct {
	Venue       string
	State       string
	Reliability float64
}

// BlockMsg is sent when a new block is received.
type BlockMsg struct {
	Number    uint64
	Timestamp time.Time
}

// ErrorMsg is sent when an error occurs.
type ErrorMsg struct {
	Error error
}

// TickMsg is sent periodically for UI animations.
type TickMsg struct{}

// WelcomeCompleteMsg signals the welcome screen is done (timeout or keypress).
type WelcomeCompleteMsg struct{}

// StartModulesMsg signals that modules should start loading.
type StartModulesMsg struct{}

// LogMsg is sent to display a log message in the UI.
type LogMsg struct {
	Level   string // "info", "warn", "error"
	Message string
}

// StartupMsg is sent during application startup to show progress.
type StartupMsg struct {
	Step    string // Current step name
	Status  string // "connecting", "connected", "failed"
	Message string // Optional message
}
