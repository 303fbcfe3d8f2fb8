package primitives

import "time"

// Tick is handed to every registered tick function once per scheduler period.
type Tick struct {
	// Number counts ticks since the scheduler was created, starting at 1.
	Number uint64
	// Elapsed is the time since the start of the current robot mode.
	Elapsed time.Duration
	// Slow marks the periodic slow cycle (status, dashboard).
	Slow bool
	// Now is the clock reading taken once at the start of the tick.
	Now time.Time
}
