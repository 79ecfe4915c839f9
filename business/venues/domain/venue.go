// Package domain contains the core domain types for the venues context.
package domain

import (
	"github.com/ethereum/go-ethereum/common"

	"github.com/fd1az/arb-engine/internal/asset"
)

// VenueKind identifies the pricing curve a venue implements.
type VenueKind string

const (
	KindConstantProduct       VenueKind = "constant-product"
	KindConcentratedLiquidity VenueKind = "concentrated-liquidity"
	KindStableSwap            VenueKind = "stable-swap"
)

// ParseVenueKind maps a configuration string to a VenueKind.
func ParseVenueKind(s string) (VenueKind, bool) {
	switch VenueKind(s) {
	case KindConstantProduct, KindConcentratedLiquidity, KindStableSwap:
		return VenueKind(s), true
	}
	return "", false
}

// PoolRef binds an asset pair to a pool contract on a venue.
type PoolRef struct {
	Pair    Pair
	Address common.Address
	FeeTier int // hundredths of a bip for concentrated pools, 0 otherwise
}

// Venue is the identity of a liquidity source. Reliability and breaker
// state live in the quotes context; this type never mutates at runtime.
type Venue struct {
	Name     string
	Kind     VenueKind
	FeeBps   int64 // swap fee for constant-product / stable-swap curves
	AmpCoeff int64 // stable-swap amplification coefficient
	Pools    []PoolRef
}

// PoolsFor returns every pool the venue holds for the pair, in config order.
func (v Venue) PoolsFor(pair Pair) []PoolRef {
	var refs []PoolRef
	for _, p := range v.Pools {
		if p.Pair.Equal(pair) {
			refs = append(refs, p)
		}
	}
	return refs
}

// Pair represents a trading pair using typed assets.
type Pair struct {
	Base  *asset.Asset // e.g., WETH - the borrowed/traded token
	Quote *asset.Asset // e.g., USDC
}

// NewPair creates a new trading pair.
func NewPair(base, quote *asset.Asset) Pair {
	if base == nil || quote == nil {
		panic("venues: nil asset in pair")
	}
	return Pair{Base: base, Quote: quote}
}

// String returns the pair symbol (e.g., "WETH-USDC").
func (p Pair) String() string {
	return p.Base.Symbol() + "-" + p.Quote.Symbol()
}

// Invert returns the inverted pair.
func (p Pair) Invert() Pair {
	return Pair{Base: p.Quote, Quote: p.Base}
}

// Equal compares pairs by asset identity, ignoring orientation.
func (p Pair) Equal(other Pair) bool {
	if p.Base.Equals(other.Base) && p.Quote.Equals(other.Quote) {
		return true
	}
	return p.Base.Equals(other.Quote) && p.Quote.Equals(other.Base)
}

// Key returns a stable identifier usable as a map key. Orientation is
// normalized so WETH-USDC and USDC-WETH share a key.
func (p Pair) Key() string {
	a, b := p.Base.Symbol(), p.Quote.Symbol()
	if a > b {
		a, b = b, a
	}
	return a + "/" + b
}
