// Package primitives provides the leaf data structures shared by the task
// runner, the scheduler and the subsystem façades.
//
// Nothing in here blocks. Events are signaled flags, Timers are polled once
// per tick, and time is always read through a Clock so a whole match can be
// replayed deterministically from a test.
//
// Core invariants:
//   - An Event is signaled at most once until it is cleared
//   - A Timer has at most one outstanding arm; re-arming cancels the previous one
//   - A Timer never fires before its expiry and never fires twice for one arm
package primitives
