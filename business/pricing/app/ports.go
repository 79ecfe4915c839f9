// Package app contains the reference price feed service and its ports.
package app

import (
	"context"

	"github.com/fd1az/arb-engine/internal/asset"
)

// Provider serves a reference rate for a pair on demand.
type Provider interface {
	Name() string
	Rate(ctx context.Context, base, quote *asset.Asset) (asset.Price, error)
}

// StreamingProvider keeps a live subscription open and answers Rate
// from its latest observed tick.
type StreamingProvider interface {
	Provider
	Start(ctx context.Context) error
	Stop() error
}
