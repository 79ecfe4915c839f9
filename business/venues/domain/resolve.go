package domain

import (
	"fmt"
	"strings"

	"github.com/fd1az/arb-engine/internal/asset"
)

// ResolvePair turns a configured pair symbol like "WETH-USDC" into a
// typed pair using the asset registry.
func ResolvePair(reg *asset.Registry, chainID uint64, s string) (Pair, error) {
	parts := strings.Split(s, "-")
	if len(parts) != 2 || parts[0] == "" || parts[1] == "" {
		return Pair{}, fmt.Errorf("malformed pair %q, want BASE-QUOTE", s)
	}
	base, ok := reg.GetBySymbolAndChain(parts[0], chainID)
	if !ok {
		return Pair{}, fmt.Errorf("unknown asset %q on chain %d", parts[0], chainID)
	}
	quote, ok := reg.GetBySymbolAndChain(parts[1], chainID)
	if !ok {
		return Pair{}, fmt.Errorf("unknown asset %q on chain %d", parts[1], chainID)
	}
	return NewPair(base, quote), nil
}
