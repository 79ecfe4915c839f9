// Package domain contains the opportunity lifecycle: a priced two-leg
// arbitrage candidate and its state machine.
package domain

import (
	"fmt"
	"time"

	"github.com/google/uuid"

	venues "github.com/fd1az/arb-engine/business/venues/domain"
	"github.com/fd1az/arb-engine/internal/asset"
)

// Status is an opportunity's lifecycle position.
type Status string

const (
	StatusDetected   Status = "detected"
	StatusExecuting  Status = "executing"
	StatusExecuted   Status = "executed"
	StatusFailed     Status = "failed"
	StatusAborted    Status = "aborted"
	StatusExpired    Status = "expired"
	StatusSuperseded Status = "superseded"
	StatusSkipped    Status = "skipped"
)

// Terminal reports whether no further transition is allowed.
func (s Status) Terminal() bool {
	switch s {
	case StatusExecuted, StatusFailed, StatusAborted, StatusExpired, StatusSuperseded, StatusSkipped:
		return true
	}
	return false
}

// Decision is the risk assessor's verdict.
type Decision string

const (
	DecisionExecute Decision = "execute"
	DecisionWait    Decision = "wait"
	DecisionSkip    Decision = "skip"
)

// Opportunity is a fully priced two-leg arbitrage candidate: borrow
// the pair's base token, sell it on SellLeg's venue, buy it back on
// BuyLeg's venue, repay plus the flash fee. All money fields are in
// the base token's smallest units.
type Opportunity struct {
	ID          string
	BlockNumber uint64
	DetectedAt  time.Time

	// ExpiresAt is the earlier of the two leg quotes' validity ends.
	// Execution past this instant is forbidden.
	ExpiresAt time.Time

	Pair   venues.Pair
	Borrow asset.Amount

	SellLeg venues.Quote // base -> quote
	BuyLeg  venues.Quote // quote -> base

	GrossProfit asset.Amount
	FlashFee    asset.Amount
	GasCost     asset.Amount
	NetProfit   asset.Amount
	MarginBps   int64

	RiskScore int
	Decision  Decision

	Status       Status
	StatusReason string
}

// New builds a detected opportunity. ExpiresAt is derived from the leg
// quotes.
func New(pair venues.Pair, borrow asset.Amount, sellLeg, buyLeg venues.Quote, blockNumber uint64) *Opportunity {
	expires := sellLeg.ValidUntil
	if buyLeg.ValidUntil.Before(expires) {
		expires = buyLeg.ValidUntil
	}
	return &Opportunity{
		ID:          uuid.New().String(),
		BlockNumber: blockNumber,
		DetectedAt:  time.Now(),
		ExpiresAt:   expires,
		Pair:        pair,
		Borrow:      borrow,
		SellLeg:     sellLeg,
		BuyLeg:      buyLeg,
		Status:      StatusDetected,
	}
}

// Expired reports whether the opportunity may no longer execute.
func (o *Opportunity) Expired(now time.Time) bool {
	return now.After(o.ExpiresAt)
}

// Remaining returns the time left before expiry, floored at zero.
func (o *Opportunity) Remaining(now time.Time) time.Duration {
	if d := o.ExpiresAt.Sub(now); d > 0 {
		return d
	}
	return 0
}

var allowedTransitions = map[Status][]Status{
	StatusDetected:  {StatusExecuting, StatusSkipped, StatusExpired, StatusSuperseded},
	StatusExecuting: {StatusExecuted, StatusFailed, StatusAborted},
}

// Transition moves the opportunity to a new status, rejecting illegal
// moves (a terminal opportunity never changes again).
func (o *Opportunity) Transition(to Status, reason string) error {
	for _, next := range allowedTransitions[o.Status] {
		if next == to {
			o.Status = to
			o.StatusReason = reason
			return nil
		}
	}
	return fmt.Errorf("illegal transition %s -> %s", o.Status, to)
}

// Executable reports whether the opportunity is still a live candidate
// for execution at now.
func (o *Opportunity) Executable(now time.Time) bool {
	return o.Status == StatusDetected && !o.Expired(now)
}
