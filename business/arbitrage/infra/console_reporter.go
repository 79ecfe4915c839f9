// Package infra contains infrastructure adapters for the arbitrage context.
package infra

import (
	"context"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/fd1az/arb-engine/business/arbitrage/domain"
	execdomain "github.com/fd1az/arb-engine/business/execution/domain"
	opp "github.com/fd1az/arb-engine/business/opportunity/domain"
)

// ConsoleReporter implements Reporter for CLI output.
type ConsoleReporter struct {
	out io.Writer
}

// NewConsoleReporter creates a new ConsoleReporter.
func NewConsoleReporter() *ConsoleReporter {
	return &ConsoleReporter{
		out: os.Stdout,
	}
}

// Start initializes the console reporter.
func (r *ConsoleReporter) Start(ctx context.Context) error {
	fmt.Fprintln(r.out, "Arbitrage Engine Started")
	fmt.Fprintln(r.out, "========================")
	return nil
}

// ReportOpportunity outputs a detected candidate to the console.
func (r *ConsoleReporter) ReportOpportunity(o *opp.Opportunity) {
	fmt.Fprintln(r.out, "")
	fmt.Fprintln(r.out, "================================================================================")
	fmt.Fprintln(r.out, "ARBITRAGE OPPORTUNITY DETECTED")
	fmt.Fprintln(r.out, "================================================================================")
	fmt.Fprintf(r.out, "Block:          #%d\n", o.BlockNumber)
	fmt.Fprintf(r.out, "Detected:       %s\n", o.DetectedAt.Format(time.RFC3339))
	fmt.Fprintf(r.out, "Expires:        %s\n", o.ExpiresAt.Format(time.RFC3339))
	fmt.Fprintf(r.out, "Pair:           %s\n", o.Pair.String())
	fmt.Fprintf(r.out, "Route:          sell on %s, buy back on %s\n", o.SellLeg.Venue, o.BuyLeg.Venue)
	fmt.Fprintln(r.out, "--------------------------------------------------------------------------------")
	fmt.Fprintln(r.out, "SIZING")
	fmt.Fprintf(r.out, "  Borrow:         %s\n", o.Borrow.String())
	fmt.Fprintf(r.out, "  Flash fee:      %s\n", o.FlashFee.String())
	fmt.Fprintf(r.out, "  Gas cost:       %s\n", o.GasCost.String())
	fmt.Fprintln(r.out, "--------------------------------------------------------------------------------")
	fmt.Fprintln(r.out, "PROFIT")
	fmt.Fprintf(r.out, "  Gross:          %s\n", o.GrossProfit.String())
	fmt.Fprintf(r.out, "  Net:            %s (%d bps)\n", o.NetProfit.String(), o.MarginBps)
	fmt.Fprintf(r.out, "  Risk score:     %d → %s\n", o.RiskScore, o.Decision)
	fmt.Fprintln(r.out, "================================================================================")
}

// ReportExecution outputs a finished execution attempt.
func (r *ConsoleReporter) ReportExecution(rec *execdomain.Record) {
	fmt.Fprintf(r.out, "[%s] execution %s %s→%s: %s",
		rec.FinishedAt.Format("15:04:05"), rec.PairKey, rec.SellVenue, rec.BuyVenue, rec.Outcome)
	if rec.TxHash != "" {
		fmt.Fprintf(r.out, " tx=%s", rec.TxHash)
	}
	if rec.Reason != "" {
		fmt.Fprintf(r.out, " (%s)", rec.Reason)
	}
	fmt.Fprintln(r.out)
}

// ReportTick outputs a scan round summary. Quiet rounds are elided to
// keep the console usable.
func (r *ConsoleReporter) ReportTick(t domain.TickReport) {
	if t.Detected == 0 && t.Errors == 0 && t.Purged == 0 {
		return
	}
	fmt.Fprintf(r.out, "[%s] block #%d: scanned %d pairs in %s, detected %d, executing %d, skipped %d, errors %d, purged %d\n",
		t.At.Format("15:04:05"), t.Block, t.PairsScanned, t.Duration.Round(time.Millisecond),
		t.Detected, t.Executing, t.Skipped, t.Errors, t.Purged)
}

// UpdateVenueHealth outputs breaker transitions. Healthy venues stay
// silent.
func (r *ConsoleReporter) UpdateVenueHealth(venue, state string, reliability float64) {
	if state == "closed" {
		return
	}
	fmt.Fprintf(r.out, "[%s] venue %s breaker %s (reliability %.1f%%)\n",
		time.Now().Format("15:04:05"), venue, state, reliability*100)
}

// Stop gracefully shuts down the console reporter.
func (r *ConsoleReporter) Stop() error {
	fmt.Fprintln(r.out, "")
	fmt.Fprintln(r.out, "Arbitrage Engine Stopped")
	return nil
}
