package primitives

import "sync"

// Event is the one-shot signal primitive used for every "wait until"
// in the system: actuator arrival, timer expiry and task completion.
//
// # Single Signal
//
// The first Signal/SignalWith call wins. Later calls are no-ops and report
// false, so a completion event is signaled at most once per activation no
// matter how many paths race to finish a task. Clear re-arms the event for
// the next activation.
//
// # Waiters
//
// Tick code polls IsSignaled. Code outside the tick loop (the CLI, tests that
// run the scheduler on a goroutine) can block on Done instead, and OnSignal
// callbacks run synchronously inside the signaling call.
type Event struct {
	name string

	mu       sync.Mutex
	signaled bool
	outcome  Outcome
	err      error
	done     chan struct{}
	waiters  []func(*Event)
}

// NewEvent creates an unsignaled event.
func NewEvent(name string) *Event {
	return &Event{
		name: name,
		done: make(chan struct{}),
	}
}

func (e *Event) Name() string { return e.name }

// Signal signals the event with a Success outcome.
func (e *Event) Signal() bool {
	return e.SignalWith(Success, nil)
}

// SignalWith signals the event with the given outcome. It returns false if
// the event had already been signaled, in which case nothing changes.
func (e *Event) SignalWith(outcome Outcome, err error) bool {
	e.mu.Lock()
	if e.signaled {
		e.mu.Unlock()
		return false
	}
	e.signaled = true
	e.outcome = outcome
	e.err = err
	close(e.done)
	waiters := e.waiters
	e.waiters = nil
	e.mu.Unlock()

	for _, fn := range waiters {
		fn(e)
	}
	return true
}

// IsSignaled reports whether the event has been signaled.
func (e *Event) IsSignaled() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.signaled
}

// Outcome returns the outcome and error the event was signaled with, or
// Pending if it has not been signaled.
func (e *Event) Outcome() (Outcome, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if !e.signaled {
		return Pending, nil
	}
	return e.outcome, e.err
}

// Done returns a channel closed when the event is signaled.
func (e *Event) Done() <-chan struct{} {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.done
}

// OnSignal registers fn to run when the event is signaled. If it already
// is, fn runs immediately.
func (e *Event) OnSignal(fn func(*Event)) {
	e.mu.Lock()
	if e.signaled {
		e.mu.Unlock()
		fn(e)
		return
	}
	e.waiters = append(e.waiters, fn)
	e.mu.Unlock()
}

// Clear returns the event to the unsignaled state and drops pending waiters.
func (e *Event) Clear() {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.signaled {
		e.done = make(chan struct{})
	}
	e.signaled = false
	e.outcome = Pending
	e.err = nil
	e.waiters = nil
}

func (e *Event) String() string {
	outcome, _ := e.Outcome()
	return e.name + "(" + outcome.String() + ")"
}
