// Package realtime provides the fixed-rate scheduler that drives every task
// and façade tick.
//
// The scheduler is the only source of forward progress. Each tick it:
//  1. Runs functions posted from other goroutines (Post)
//  2. Applies registrations and unregistrations made since the last tick
//  3. Orders the registered functions deterministically
//  4. Calls each of them once with the same Tick value
//
// # Example Usage
//
//	sched := realtime.NewScheduler(realtime.Config{
//		TickRate:    20 * time.Millisecond, // 50 Hz control loop
//		SlowDivisor: 5,                     // dashboard every 100ms
//	})
//	sched.Register("drivetrain", 100, drive.Tick)
//	sched.Start(ctx)
//	defer sched.Stop()
//
// # Ordering Guarantees
//
// Registered functions run in a fixed order:
//  1. Priority (higher priority runs first)
//  2. Registration sequence (earlier registration first for equal priority)
//
// Registrations made during a tick take effect at the start of the next one,
// so a task started mid-tick never runs twice and one canceled mid-tick is
// simply a no-op for the remainder of that tick.
//
// # Determinism
//
// Time is read from a primitives.Clock once per tick. Tests drive the
// scheduler with Step and a manual clock instead of Start, which makes
// every run of a scenario identical regardless of host load.
//
// # Threading
//
// All registered functions run on the scheduler goroutine (or the goroutine
// calling Step). Register, Unregister and Post are safe from any goroutine.
package realtime
