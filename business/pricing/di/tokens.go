// Package di contains dependency injection tokens for the pricing context.
package di

import (
	"github.com/fd1az/arb-engine/business/pricing/app"
	"github.com/fd1az/arb-engine/internal/di"
)

// Public service tokens - exposed to other modules
var (
	PriceFeed = di.NewToken[*app.Service]("pricing.PriceFeed")
)

// Private dependency tokens - internal to pricing module
var (
	StreamProvider   = di.NewToken[app.StreamingProvider]("pricing:streamProvider")
	FallbackProvider = di.NewToken[app.Provider]("pricing:fallbackProvider")
)

// Helper functions for type-safe access
func GetPriceFeed(c di.ServiceRegistry) *app.Service {
	return di.GetToken(c, PriceFeed)
}

func GetStreamProvider(c di.ServiceRegistry) app.StreamingProvider {
	return di.GetToken(c, StreamProvider)
}

func GetFallbackProvider(c di.ServiceRegistry) app.Provider {
	return di.GetToken(c, FallbackProvider)
}
