// Package app implements the execution coordinator: revalidate, build
// the settlement plan, submit, and confirm.
package app

import (
	"context"
	"time"

	"github.com/fd1az/arb-engine/business/execution/domain"
	opp "github.com/fd1az/arb-engine/business/opportunity/domain"
	venuesapp "github.com/fd1az/arb-engine/business/venues/app"
	"github.com/fd1az/arb-engine/internal/asset"
)

// TxReceipt is the slice of an on-chain receipt the coordinator reads.
type TxReceipt struct {
	Status      uint64 // 1 = success, 0 = reverted
	GasUsed     uint64
	BlockNumber uint64
}

// Submitter broadcasts settlement plans and reports their fate.
type Submitter interface {
	Submit(ctx context.Context, plan *domain.Plan) (txHash string, err error)

	// Receipt returns (nil, nil) while the transaction is still
	// pending.
	Receipt(ctx context.Context, txHash string) (*TxReceipt, error)
}

// VenueDirectory resolves a venue name to its adapter for leg
// revalidation and step encoding.
type VenueDirectory interface {
	Adapter(name string) (venuesapp.Adapter, bool)
}

// HealthRecorder feeds execution outcomes back into venue reliability.
type HealthRecorder interface {
	RecordSuccess(venue string)
	RecordFailure(venue string)
}

// GasValuer re-prices the settlement's gas in the borrowed token so
// revalidation sees current costs, not detection-time ones.
type GasValuer interface {
	RepriceGas(ctx context.Context, base *asset.Asset, sellGas, buyGas uint64) (asset.Amount, error)
}

// RiskScorer re-scores a refreshed candidate before submission.
type RiskScorer interface {
	Assess(o *opp.Opportunity, now time.Time) opp.Decision
}
