// Package domain contains the pricing context's domain types: feed
// symbols and reference rate ticks.
package domain

import (
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/fd1az/arb-engine/internal/apperror"
	"github.com/fd1az/arb-engine/internal/asset"
)

// unwrapped maps wrapped on-chain tokens to the symbol external feeds
// quote them under.
var unwrapped = map[string]string{
	"WETH": "ETH",
	"WBTC": "BTC",
}

// FeedSymbol returns the external feed symbol for a pair, e.g.
// WETH/USDC -> "ETHUSDC".
func FeedSymbol(base, quote *asset.Asset) string {
	return feedLeg(base.Symbol()) + feedLeg(quote.Symbol())
}

func feedLeg(symbol string) string {
	s := strings.ToUpper(symbol)
	if u, ok := unwrapped[s]; ok {
		return u
	}
	return s
}

// Tick is one observed reference rate from a feed.
type Tick struct {
	Symbol     string
	Rate       decimal.Decimal
	Source     string
	ReceivedAt time.Time
}

// Price converts the tick into a typed price for the given pair.
// Non-positive rates are rejected so a malformed feed message can
// never poison downstream gas-cost conversion.
func (t Tick) Price(base, quote *asset.Asset) (asset.Price, error) {
	if !t.Rate.IsPositive() {
		return asset.Price{}, apperror.New(apperror.CodePriceFeedUnavailable,
			apperror.WithContext(fmt.Sprintf("non-positive rate %s for %s from %s", t.Rate, t.Symbol, t.Source)))
	}
	return asset.NewPrice(base, quote, t.Rate, t.ReceivedAt), nil
}
