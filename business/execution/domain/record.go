// Package domain contains the execution context's domain types: the
// settlement plan handed to the submitter and the record of what
// became of it.
package domain

import (
	"time"

	"github.com/fd1az/arb-engine/internal/asset"
)

// Plan is a fully encoded settlement call: borrow, run the steps in
// order, repay. Steps are opaque calldata blobs; only the settlement
// contract interprets them.
type Plan struct {
	OpportunityID string
	PairKey       string
	Borrow        asset.Amount
	Steps         [][]byte
	GasLimit      uint64

	// Deadline is the last instant the transaction may still be
	// waiting on confirmation. Derived from the opportunity's expiry
	// minus the safety margin.
	Deadline time.Time
}

// Outcome is the terminal result of one execution attempt.
type Outcome string

const (
	OutcomeExecuted Outcome = "executed"
	OutcomeReverted Outcome = "reverted"
	OutcomeAborted  Outcome = "aborted"
	OutcomeFailed   Outcome = "failed"
	OutcomeDryRun   Outcome = "dry-run"
)

// Record is the audit entry for one execution attempt.
type Record struct {
	OpportunityID string
	PairKey       string
	SellVenue     string
	BuyVenue      string

	Borrow            asset.Amount
	ExpectedNetProfit asset.Amount

	TxHash      string
	SubmittedAt time.Time
	FinishedAt  time.Time
	GasUsed     uint64

	Outcome Outcome
	Reason  string
}

// Succeeded reports whether the attempt settled profitably on-chain.
func (r *Record) Succeeded() bool {
	return r.Outcome == OutcomeExecuted
}
