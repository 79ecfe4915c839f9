// Package di contains dependency injection tokens for the quotes context.
package di

import (
	"github.com/fd1az/arb-engine/business/quotes/app"
	"github.com/fd1az/arb-engine/internal/di"
)

// Public service tokens - exposed to other modules
var (
	QuoteAggregator = di.NewToken[*app.Aggregator]("quotes.QuoteAggregator")
	HealthRegistry  = di.NewToken[*app.HealthRegistry]("quotes.HealthRegistry")
)

// Helper functions for type-safe access
func GetQuoteAggregator(c di.ServiceRegistry) *app.Aggregator {
	return di.GetToken(c, QuoteAggregator)
}

func GetHealthRegistry(c di.ServiceRegistry) *app.HealthRegistry {
	return di.GetToken(c, HealthRegistry)
}
