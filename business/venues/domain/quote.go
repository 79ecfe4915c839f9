package domain

import (
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"

	"github.com/fd1az/arb-engine/internal/asset"
)

// Quote is one venue's answer for swapping AmountIn of TokenIn into
// TokenOut. Quotes are immutable; a newer quote for the same
// (venue, pair) supersedes rather than mutates.
type Quote struct {
	Venue     string
	Kind      VenueKind
	Pool      common.Address
	TokenIn   *asset.Asset
	TokenOut  *asset.Asset
	AmountIn  asset.Amount
	AmountOut asset.Amount

	// ImpactBps is the price degradation of this trade against the
	// pool's spot price, in basis points.
	ImpactBps int64

	// LiquidityCap is the largest input the pool can absorb without
	// blowing past the configured impact ceiling. Sizing never
	// exceeds it.
	LiquidityCap asset.Amount

	GasEstimate uint64
	FeeTier     int // hundredths of a bip (concentrated pools), 0 otherwise

	FetchedAt  time.Time
	ValidUntil time.Time
}

// NewQuote builds a quote stamped with the validity window. Panics if
// validity is not positive - validUntil must always exceed fetchedAt.
func NewQuote(venue string, kind VenueKind, tokenIn, tokenOut *asset.Asset, amountIn, amountOut asset.Amount, validity time.Duration) Quote {
	if validity <= 0 {
		panic("venues: quote validity must be positive")
	}
	now := time.Now()
	return Quote{
		Venue:      venue,
		Kind:       kind,
		TokenIn:    tokenIn,
		TokenOut:   tokenOut,
		AmountIn:   amountIn,
		AmountOut:  amountOut,
		FetchedAt:  now,
		ValidUntil: now.Add(validity),
	}
}

// Expired reports whether the quote may no longer be used.
func (q Quote) Expired(now time.Time) bool {
	return now.After(q.ValidUntil)
}

// ImpliedPrice returns AmountOut/AmountIn as a decimal, for display and
// spread direction checks. Exact math stays in the integer domain.
func (q Quote) ImpliedPrice() decimal.Decimal {
	if q.AmountIn.IsZero() {
		return decimal.Zero
	}
	return q.AmountOut.ToDecimal().Div(q.AmountIn.ToDecimal())
}

// SameVenue reports whether two quotes come from the same venue.
func (q Quote) SameVenue(other Quote) bool {
	return q.Venue == other.Venue
}
