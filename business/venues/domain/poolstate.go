package domain

import (
	"math/big"
	"time"
)

// PoolState is a raw on-chain snapshot of a pool, the input to local
// quote recomputation. Which fields are set depends on Kind.
type PoolState struct {
	Venue string
	Kind  VenueKind
	Pair  Pair

	// Token0First is true when Pair.Base is the pool's token0.
	Token0First bool

	// Constant-product and stable-swap pools.
	Reserve0 *big.Int
	Reserve1 *big.Int

	// Concentrated-liquidity pools.
	SqrtPriceX96 *big.Int
	Tick         int32
	Liquidity    *big.Int

	FeeBps   int64
	AmpCoeff int64

	FetchedAt time.Time
}

// HasLiquidity reports whether the pool can quote at all.
func (s *PoolState) HasLiquidity() bool {
	switch s.Kind {
	case KindConcentratedLiquidity:
		return s.Liquidity != nil && s.Liquidity.Sign() > 0
	default:
		return s.Reserve0 != nil && s.Reserve0.Sign() > 0 &&
			s.Reserve1 != nil && s.Reserve1.Sign() > 0
	}
}

// ReservesInOut orders the reserves as (input side, output side) for a
// swap of base->quote when baseIn, and quote->base otherwise.
func (s *PoolState) ReservesInOut(baseIn bool) (*big.Int, *big.Int) {
	if baseIn == s.Token0First {
		return s.Reserve0, s.Reserve1
	}
	return s.Reserve1, s.Reserve0
}
