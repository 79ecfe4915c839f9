// Package domain contains the engine context's domain types: the
// scan cadence and the per-round summary.
package domain

import "time"

// Trigger selects what drives detection rounds.
type Trigger string

const (
	TriggerTicker Trigger = "ticker"
	TriggerBlocks Trigger = "blocks"
)

// ParseTrigger maps the config string, defaulting to the ticker.
func ParseTrigger(s string) Trigger {
	if s == string(TriggerBlocks) {
		return TriggerBlocks
	}
	return TriggerTicker
}

// TickReport summarizes one detection round across all pairs.
type TickReport struct {
	Block        uint64
	At           time.Time
	Duration     time.Duration
	PairsScanned int
	Detected     int
	Executing    int
	Skipped      int
	Waiting      int
	Errors       int
	Purged       int
}
