package subsystem

import (
	"time"

	"github.com/sirupsen/logrus"

	"github.com/comalice/autotask/internal/core"
	"github.com/comalice/autotask/internal/primitives"
)

// Deps are the shared collaborators every façade is built with.
type Deps struct {
	Registry *core.Registry
	Clock    primitives.Clock
	Logger   logrus.FieldLogger
}

func (d Deps) withDefaults() Deps {
	if d.Clock == nil {
		d.Clock = primitives.SystemClock{}
	}
	if d.Logger == nil {
		d.Logger = logrus.StandardLogger()
	}
	return d
}

// guard checks ownership before a command reaches the driver.
type guard struct {
	id       primitives.ResourceID
	registry *core.Registry
	clock    primitives.Clock
	log      logrus.FieldLogger
}

func newGuard(id primitives.ResourceID, deps Deps) guard {
	deps = deps.withDefaults()
	return guard{
		id:       id,
		registry: deps.Registry,
		clock:    deps.Clock,
		log:      deps.Logger.WithField("resource", id),
	}
}

func (g guard) ResourceID() primitives.ResourceID { return g.id }

// permit reports whether owner may command the resource. A nil registry
// permits everything. A dropped command's event, if any, is signaled Failed
// with an AcquisitionConflictError so its caller does not wait on it.
func (g guard) permit(owner, command string, event *primitives.Event) bool {
	if g.registry == nil || g.registry.Validate(owner, g.id) {
		return true
	}
	holder, _ := g.registry.OwnerOf(g.id)
	g.log.WithFields(logrus.Fields{
		"owner":   owner,
		"holder":  holder,
		"command": command,
	}).Warn("Dropped command from non-owner")
	if event != nil {
		event.SignalWith(primitives.Failed, &core.AcquisitionConflictError{Requester: owner, Resource: g.id, Owner: holder})
	}
	return false
}

// operation tracks one asynchronous command: its completion event and
// absolute deadline.
type operation struct {
	event    *primitives.Event
	deadline time.Time
	active   bool
}

// begin starts a new operation. A still-pending previous one is superseded
// and its event signaled Canceled.
func (op *operation) begin(event *primitives.Event, now time.Time, timeout time.Duration) {
	op.finish(primitives.Canceled, nil)
	op.active = true
	op.event = event
	op.deadline = time.Time{}
	if timeout > 0 {
		op.deadline = now.Add(timeout)
	}
}

// poll completes the operation with Success if arrived, or TimedOut if the
// deadline has passed. It returns true if the operation finished.
func (op *operation) poll(now time.Time, arrived bool) bool {
	if !op.active {
		return false
	}
	switch {
	case arrived:
		op.finish(primitives.Success, nil)
	case !op.deadline.IsZero() && !now.Before(op.deadline):
		op.finish(primitives.TimedOut, core.ErrTimeout)
	default:
		return false
	}
	return true
}

func (op *operation) finish(outcome primitives.Outcome, err error) {
	if !op.active {
		return
	}
	event := op.event
	op.active = false
	op.event = nil
	op.deadline = time.Time{}
	if event != nil {
		event.SignalWith(outcome, err)
	}
}
