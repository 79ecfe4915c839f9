// Package di contains dependency injection tokens for the venues context.
package di

import (
	"github.com/fd1az/arb-engine/business/venues/app"
	"github.com/fd1az/arb-engine/internal/di"
)

// Public service tokens - exposed to other modules
var (
	VenueService = di.NewToken[*app.Service]("venues.VenueService")
)

// Helper functions for type-safe access
func GetVenueService(c di.ServiceRegistry) *app.Service {
	return di.GetToken(c, VenueService)
}
