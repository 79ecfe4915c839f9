// Package app contains application services and port definitions for the venues context.
package app

import (
	"context"

	"github.com/fd1az/arb-engine/business/venues/domain"
	"github.com/fd1az/arb-engine/internal/asset"
)

// Adapter is the uniform quoting/execution capability every venue kind
// implements. Implementations must recompute expected output locally
// from raw pool state - a quote is never just a relayed external
// estimate.
type Adapter interface {
	// Venue returns the static venue identity.
	Venue() domain.Venue

	// Quote prices a swap of amountIn tokenIn into tokenOut. Across
	// multiple fee tiers the adapter returns the tier with the
	// largest output, ties broken by the lower fee.
	Quote(ctx context.Context, tokenIn, tokenOut *asset.Asset, amountIn asset.Amount) (*domain.Quote, error)

	// PoolState fetches the raw pool snapshot backing quotes for the
	// pair, for callers that need to corroborate independently.
	PoolState(ctx context.Context, pair domain.Pair) (*domain.PoolState, error)

	// BuildExecutionStep encodes an opaque calldata blob for one swap
	// leg, bounded below by minOut.
	BuildExecutionStep(quote *domain.Quote, minOut asset.Amount) ([]byte, error)
}
