package core

import (
	"errors"
	"fmt"

	"github.com/comalice/autotask/internal/primitives"
)

var (
	// ErrTimeout marks an activation that reached its deadline before its
	// behavior finished. It is a normal terminal outcome, not a crash.
	ErrTimeout = errors.New("deadline exceeded")
	// ErrUnavailable marks a behavior that could not run because a
	// collaborator (detector, façade) is missing.
	ErrUnavailable = errors.New("collaborator unavailable")
	// ErrAlreadyActive is returned by Start on a task that is still running.
	ErrAlreadyActive = errors.New("task already active")

	ErrUnknownResource     = errors.New("unknown resource")
	ErrInvalidOwner        = errors.New("owner id is required")
	ErrMultipleTransitions = errors.New("more than one transition in a single step")
	ErrNoHandler           = errors.New("no handler for state")
)

// AcquisitionConflictError reports that a resource needed by Requester is
// held by another task. The registry is unchanged when this is returned.
type AcquisitionConflictError struct {
	Requester string
	Resource  primitives.ResourceID
	Owner     string
}

func (e *AcquisitionConflictError) Error() string {
	return fmt.Sprintf("%s cannot acquire %s: owned by %s", e.Requester, e.Resource, e.Owner)
}

// InvariantViolationError is raised when a behavior breaks a rule of the
// runner: two transitions in one step, a state without a handler, or a
// panic inside a handler. It is surfaced to telemetry; the tick still
// returns normally.
type InvariantViolationError struct {
	Task  string
	State string
	Err   error
}

func (e *InvariantViolationError) Error() string {
	return fmt.Sprintf("invariant violation in %s at %s: %v", e.Task, e.State, e.Err)
}

func (e *InvariantViolationError) Unwrap() error { return e.Err }
