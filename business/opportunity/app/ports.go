// Package app implements opportunity pricing, risk scoring, and the
// in-memory opportunity store.
package app

import (
	"context"
	"math/big"

	quotes "github.com/fd1az/arb-engine/business/quotes/domain"
	"github.com/fd1az/arb-engine/internal/asset"
)

// Quoter aggregates venue quotes for one swap direction.
type Quoter interface {
	Aggregate(ctx context.Context, tokenIn, tokenOut *asset.Asset, amountIn asset.Amount) (*quotes.QuoteSet, error)
}

// GasPricer supplies the current gas price in wei.
type GasPricer interface {
	GasPriceWei(ctx context.Context) (*big.Int, error)
}

// ReferencePricer supplies an external reference price of base
// denominated in quote, used only to translate gas costs into the
// borrowed token. It never prices the arbitrage itself.
type ReferencePricer interface {
	Price(ctx context.Context, base, quote *asset.Asset) (asset.Price, error)
}

// ReliabilityReader exposes venue reliability scores for risk scoring.
type ReliabilityReader interface {
	Reliability(venue string) float64
}
