// Package core provides the cooperative task-and-ownership core: the
// one-step-per-tick StateMachine, the ownership Registry and the generic Task
// runner every robot behavior is built on.
//
// Nothing in this package blocks. Suspension is "not ready this tick", and
// every failure path ends in the same cancellation code so ownership is
// never leaked.
package core

import (
	"fmt"
	"time"

	"github.com/comalice/autotask/internal/primitives"
)

// StateMachine holds the current state of one behavior and advances it at
// most one transition per step.
//
// A step starts with CheckReadyAndGetState. The state handler that runs
// afterwards may call exactly one of SetState or WaitForEvent; a second call
// is ignored and recorded as an InvariantViolationError.
type StateMachine[S comparable] struct {
	name  string
	clock primitives.Clock

	current S
	enabled bool

	waiting      bool
	waitEvent    *primitives.Event
	waitDeadline time.Time
	next         S

	stepped   bool
	violation error
}

// NewStateMachine creates a stopped state machine.
func NewStateMachine[S comparable](name string, clock primitives.Clock) *StateMachine[S] {
	if clock == nil {
		clock = primitives.SystemClock{}
	}
	return &StateMachine[S]{name: name, clock: clock}
}

func (sm *StateMachine[S]) Name() string { return sm.name }

// Start enables the machine in the given state.
func (sm *StateMachine[S]) Start(initial S) {
	sm.current = initial
	sm.enabled = true
	sm.clearWait()
	sm.stepped = false
	sm.violation = nil
}

// Stop disables the machine and drops any pending suspension.
func (sm *StateMachine[S]) Stop() {
	sm.enabled = false
	sm.clearWait()
}

func (sm *StateMachine[S]) IsEnabled() bool { return sm.enabled }

// State returns the current state.
func (sm *StateMachine[S]) State() S { return sm.current }

// NextState returns the state the machine will enter when its pending wait
// completes.
func (sm *StateMachine[S]) NextState() (S, bool) {
	return sm.next, sm.waiting
}

// IsWaiting reports whether the machine is suspended on an event or delay.
func (sm *StateMachine[S]) IsWaiting() bool { return sm.waiting }

// CheckReadyAndGetState begins a step. It returns false if the machine is
// disabled or still suspended. When a suspension has completed it is cleared
// and the machine enters the stored next state before returning it.
func (sm *StateMachine[S]) CheckReadyAndGetState() (S, bool) {
	var zero S
	if !sm.enabled {
		return zero, false
	}
	if sm.waiting {
		signaled := sm.waitEvent != nil && sm.waitEvent.IsSignaled()
		expired := !sm.waitDeadline.IsZero() && !sm.clock.Now().Before(sm.waitDeadline)
		if !signaled && !expired {
			return zero, false
		}
		sm.current = sm.next
		sm.clearWait()
	}
	sm.stepped = false
	return sm.current, true
}

// SetState moves the machine to next immediately.
func (sm *StateMachine[S]) SetState(next S) {
	if !sm.claimStep("SetState", next) {
		return
	}
	sm.current = next
}

// WaitForEvent suspends the machine until event is signaled, then enters
// next on the following readiness check. A positive timeout also ends the
// wait once it has elapsed. A nil event with a zero timeout behaves like
// SetState.
func (sm *StateMachine[S]) WaitForEvent(event *primitives.Event, next S, timeout time.Duration) {
	if !sm.claimStep("WaitForEvent", next) {
		return
	}
	if event == nil && timeout <= 0 {
		sm.current = next
		return
	}
	sm.waiting = true
	sm.waitEvent = event
	sm.next = next
	if timeout > 0 {
		sm.waitDeadline = sm.clock.Now().Add(timeout)
	}
}

// TakeViolation returns and clears the invariant violation recorded during
// the last step, if any.
func (sm *StateMachine[S]) TakeViolation() error {
	err := sm.violation
	sm.violation = nil
	return err
}

func (sm *StateMachine[S]) claimStep(op string, next S) bool {
	if sm.stepped {
		if sm.violation == nil {
			sm.violation = &InvariantViolationError{
				Task:  sm.name,
				State: fmt.Sprint(sm.current),
				Err:   fmt.Errorf("%w: %s(%v) after a transition was already made", ErrMultipleTransitions, op, next),
			}
		}
		return false
	}
	sm.stepped = true
	return true
}

func (sm *StateMachine[S]) clearWait() {
	var zero S
	sm.waiting = false
	sm.waitEvent = nil
	sm.waitDeadline = time.Time{}
	sm.next = zero
}

func (sm *StateMachine[S]) String() string {
	if sm.waiting {
		return fmt.Sprintf("%s: %v (waiting, next=%v)", sm.name, sm.current, sm.next)
	}
	if !sm.enabled {
		return fmt.Sprintf("%s: disabled", sm.name)
	}
	return fmt.Sprintf("%s: %v", sm.name, sm.current)
}
