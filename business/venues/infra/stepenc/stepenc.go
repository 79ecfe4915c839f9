// Package stepenc encodes swap legs into the calldata format the
// settlement contract's executeOperation callback decodes. Every venue
// adapter funnels through here so the on-chain decoder sees one layout.
package stepenc

import (
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"

	"github.com/fd1az/arb-engine/business/venues/domain"
)

// Curve discriminators understood by the settlement contract.
const (
	curveConstantProduct uint8 = 0
	curveConcentrated    uint8 = 1
	curveStableSwap      uint8 = 2
)

// KindCode maps a venue kind to its on-chain discriminator.
func KindCode(kind domain.VenueKind) (uint8, error) {
	switch kind {
	case domain.KindConstantProduct:
		return curveConstantProduct, nil
	case domain.KindConcentratedLiquidity:
		return curveConcentrated, nil
	case domain.KindStableSwap:
		return curveStableSwap, nil
	}
	return 0, fmt.Errorf("stepenc: unknown venue kind %q", kind)
}

var stepArgs = abi.Arguments{
	{Name: "curve", Type: mustType("uint8")},
	{Name: "pool", Type: mustType("address")},
	{Name: "tokenIn", Type: mustType("address")},
	{Name: "tokenOut", Type: mustType("address")},
	{Name: "amountIn", Type: mustType("uint256")},
	{Name: "minAmountOut", Type: mustType("uint256")},
	{Name: "feeTier", Type: mustType("uint24")},
}

func mustType(t string) abi.Type {
	typ, err := abi.NewType(t, "", nil)
	if err != nil {
		panic(err)
	}
	return typ
}

// Encode packs one swap leg. minAmountOut is the slippage floor; the
// settlement contract reverts the whole bundle if any leg falls short.
func Encode(kind domain.VenueKind, pool, tokenIn, tokenOut common.Address, amountIn, minAmountOut *big.Int, feeTier int) ([]byte, error) {
	code, err := KindCode(kind)
	if err != nil {
		return nil, err
	}
	if amountIn == nil || amountIn.Sign() <= 0 {
		return nil, fmt.Errorf("stepenc: non-positive amountIn")
	}
	if minAmountOut == nil || minAmountOut.Sign() < 0 {
		return nil, fmt.Errorf("stepenc: negative minAmountOut")
	}
	return stepArgs.Pack(code, pool, tokenIn, tokenOut, amountIn, minAmountOut, big.NewInt(int64(feeTier)))
}

// EncodeFromQuote packs the leg described by a quote with the given
// output floor.
func EncodeFromQuote(q *domain.Quote, minOut *big.Int) ([]byte, error) {
	return Encode(q.Kind, q.Pool, q.TokenIn.Address(), q.TokenOut.Address(), q.AmountIn.Raw(), minOut, q.FeeTier)
}
