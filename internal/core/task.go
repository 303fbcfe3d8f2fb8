package core

import (
	"fmt"
	"time"

	goerrors "github.com/go-errors/errors"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"golang.org/x/time/rate"

	"github.com/comalice/autotask/internal/primitives"
)

// TickRegistrar is the scheduler surface a task needs: it registers its
// tick function while active and unregisters when it terminates.
type TickRegistrar interface {
	Register(name string, priority int, fn func(primitives.Tick))
	Unregister(name string)
}

// Handler runs the logic of one state for one step. It may call at most one
// of sm.SetState or sm.WaitForEvent. A non-nil error ends the activation
// with a Failed outcome.
type Handler[S comparable] func(sm *StateMachine[S], tick primitives.Tick) error

// Definition is the state table and hooks a concrete behavior supplies.
type Definition[S comparable] struct {
	Name      string
	Resources []primitives.ResourceID
	Initial   S
	// Terminal is the state that ends the activation with Success. It needs
	// no handler.
	Terminal S
	States   map[S]Handler[S]
	// StopActuators puts every actuator the behavior may have commanded
	// into a safe state. It runs on every termination, before ownership is
	// released.
	StopActuators func(owner string)
	// OnStart runs after ownership is acquired and before the first tick.
	// An error releases ownership and fails the start.
	OnStart func(owner string) error
}

// Task is the generic lifecycle shared by every behavior:
//
//	INACTIVE -> acquire -> Initial ... -> Terminal -> stop, release -> INACTIVE
//
// Cancel, timeout, handler errors and panics all funnel through the same
// termination path, so ownership is always released and the completion
// event is signaled at most once.
type Task[S comparable] struct {
	def       Definition[S]
	owner     string
	registry  *Registry
	clock     primitives.Clock
	scheduler TickRegistrar
	publisher StatusPublisher
	priority  int
	log       logrus.FieldLogger
	waitLog   *rate.Sometimes

	sm         *StateMachine[S]
	timers     []*primitives.Timer
	completion *primitives.Event
	deadline   time.Time
	activation string
	lastState  S

	lastOutcome primitives.Outcome
	lastErr     error
}

// NewTask validates def and creates an inactive task.
func NewTask[S comparable](def Definition[S], registry *Registry, opts ...Option) (*Task[S], error) {
	if def.Name == "" {
		return nil, fmt.Errorf("task name is required")
	}
	if registry == nil {
		return nil, fmt.Errorf("task %s: registry is required", def.Name)
	}
	if _, ok := def.States[def.Initial]; !ok {
		return nil, fmt.Errorf("task %s: %w %v (initial)", def.Name, ErrNoHandler, def.Initial)
	}
	for _, id := range def.Resources {
		if !id.Valid() {
			return nil, fmt.Errorf("task %s: %w %q", def.Name, ErrUnknownResource, id)
		}
	}

	o := options{}
	for _, opt := range opts {
		opt(&o)
	}
	if o.clock == nil {
		o.clock = primitives.SystemClock{}
	}
	if o.log == nil {
		o.log = logrus.StandardLogger()
	}
	if o.owner == "" {
		o.owner = def.Name
	}

	return &Task[S]{
		def:       def,
		owner:     o.owner,
		registry:  registry,
		clock:     o.clock,
		scheduler: o.scheduler,
		publisher: o.publisher,
		priority:  o.priority,
		log:       o.log.WithField("task", def.Name),
		waitLog:   &rate.Sometimes{Interval: time.Second},
		sm:        NewStateMachine[S](def.Name, o.clock),
	}, nil
}

func (t *Task[S]) Name() string  { return t.def.Name }
func (t *Task[S]) Owner() string { return t.owner }

// IsActive reports whether the task's state machine is enabled.
func (t *Task[S]) IsActive() bool { return t.sm.IsEnabled() }

// State returns the current state while the task is active.
func (t *Task[S]) State() (S, bool) {
	if !t.sm.IsEnabled() {
		var zero S
		return zero, false
	}
	return t.sm.State(), true
}

// Activation returns the id of the current or most recent activation.
func (t *Task[S]) Activation() string { return t.activation }

// Deadline returns the absolute deadline of the current activation, or the
// zero time if it has none.
func (t *Task[S]) Deadline() time.Time { return t.deadline }

// LastOutcome returns how the most recent activation ended.
func (t *Task[S]) LastOutcome() (primitives.Outcome, error) {
	return t.lastOutcome, t.lastErr
}

// NewTimer creates a timer that the task polls at the start of every tick
// and cancels on termination.
func (t *Task[S]) NewTimer(name string) *primitives.Timer {
	timer := primitives.NewTimer(t.def.Name+"."+name, t.clock)
	t.timers = append(t.timers, timer)
	return timer
}

// Start activates the task. It acquires every resource in the definition or
// fails without side effects: on failure the completion event, if any, is
// signaled Failed and the error is returned. A positive timeout sets an
// absolute deadline of now+timeout.
func (t *Task[S]) Start(completion *primitives.Event, timeout time.Duration) error {
	if t.sm.IsEnabled() {
		err := fmt.Errorf("%s: %w", t.def.Name, ErrAlreadyActive)
		if completion != nil {
			completion.SignalWith(primitives.Failed, err)
		}
		return err
	}

	if err := t.registry.Acquire(t.owner, t.def.Resources...); err != nil {
		t.log.WithError(err).Warn("Failed to acquire subsystem ownership")
		return t.failStart(completion, err)
	}

	if t.def.OnStart != nil {
		if err := t.def.OnStart(t.owner); err != nil {
			t.registry.Release(t.owner, t.def.Resources...)
			t.log.WithError(err).Warn("Task start hook failed")
			return t.failStart(completion, err)
		}
	}

	now := t.clock.Now()
	t.activation = uuid.NewString()
	t.completion = completion
	t.deadline = time.Time{}
	if timeout > 0 {
		t.deadline = now.Add(timeout)
	}
	t.lastOutcome, t.lastErr = primitives.Pending, nil
	t.lastState = t.def.Initial
	t.sm.Start(t.def.Initial)

	if t.scheduler != nil {
		t.scheduler.Register(t.def.Name, t.priority, t.Tick)
	}

	t.log.WithFields(logrus.Fields{
		"activation": t.activation,
		"resources":  t.def.Resources,
		"timeout":    timeout,
	}).Info("Task started")
	t.publish(Status{From: InactiveState, To: fmt.Sprint(t.def.Initial)})
	return nil
}

func (t *Task[S]) failStart(completion *primitives.Event, err error) error {
	t.lastOutcome, t.lastErr = primitives.Failed, err
	t.publish(Status{To: InactiveState, Outcome: primitives.Failed, Error: err.Error()})
	if completion != nil {
		completion.SignalWith(primitives.Failed, err)
	}
	return err
}

// Cancel terminates an active task: actuators are stopped, ownership is
// released, the state machine is disabled and the tick is unregistered, all
// before Cancel returns. If notify is true the pending completion event is
// signaled Canceled. Cancel on an inactive task does nothing.
func (t *Task[S]) Cancel(notify bool) {
	t.terminate(notify, primitives.Canceled, nil)
}

// Tick advances the task by at most one state transition.
func (t *Task[S]) Tick(tick primitives.Tick) {
	if !t.sm.IsEnabled() {
		return
	}
	defer func() {
		if r := recover(); r != nil {
			wrapped := goerrors.Wrap(r, 2)
			err := &InvariantViolationError{Task: t.def.Name, State: fmt.Sprint(t.sm.State()), Err: wrapped}
			t.activationLog().WithError(err).WithField("stack", string(wrapped.Stack())).Error("Recovered panic in task handler")
			t.terminate(true, primitives.Failed, err)
		}
	}()

	for _, timer := range t.timers {
		timer.Poll()
	}

	if !t.deadline.IsZero() && !t.clock.Now().Before(t.deadline) {
		t.terminate(true, primitives.TimedOut, fmt.Errorf("%s: %w", t.def.Name, ErrTimeout))
		return
	}

	state, ready := t.sm.CheckReadyAndGetState()
	if !ready {
		if next, waiting := t.sm.NextState(); waiting {
			t.waitLog.Do(func() {
				t.activationLog().WithFields(logrus.Fields{"state": t.sm.State(), "next": next}).Debug("Waiting")
			})
		}
		return
	}
	t.noteTransition(state)

	if state == t.def.Terminal {
		t.terminate(true, primitives.Success, nil)
		return
	}

	handler, ok := t.def.States[state]
	if !ok || handler == nil {
		t.terminate(true, primitives.Failed, &InvariantViolationError{
			Task:  t.def.Name,
			State: fmt.Sprint(state),
			Err:   ErrNoHandler,
		})
		return
	}

	err := handler(t.sm, tick)
	if violation := t.sm.TakeViolation(); violation != nil {
		t.activationLog().WithError(violation).Error("Invariant violation")
		t.publish(Status{From: fmt.Sprint(state), To: fmt.Sprint(state), Error: violation.Error()})
	}
	if err != nil {
		t.terminate(true, primitives.Failed, err)
		return
	}
	if t.sm.IsEnabled() {
		t.noteTransition(t.sm.State())
	}
}

// Describe reports the task for dashboards and snapshots.
func (t *Task[S]) Describe() TaskStatus {
	status := TaskStatus{
		Name:        t.def.Name,
		Owner:       t.owner,
		Active:      t.sm.IsEnabled(),
		Activation:  t.activation,
		Resources:   append([]primitives.ResourceID(nil), t.def.Resources...),
		LastOutcome: t.lastOutcome,
	}
	if t.lastErr != nil {
		status.LastError = t.lastErr.Error()
	}
	if status.Active {
		status.State = fmt.Sprint(t.sm.State())
		if next, waiting := t.sm.NextState(); waiting {
			status.Next = fmt.Sprint(next)
		}
	}
	return status
}

func (t *Task[S]) terminate(notify bool, outcome primitives.Outcome, err error) {
	if !t.sm.IsEnabled() {
		return
	}
	from := t.sm.State()
	t.sm.Stop()
	t.stopActuators()
	for _, timer := range t.timers {
		timer.Cancel()
	}
	released := t.registry.ReleaseAll(t.owner)
	if t.scheduler != nil {
		t.scheduler.Unregister(t.def.Name)
	}
	t.deadline = time.Time{}
	t.lastOutcome, t.lastErr = outcome, err

	completion := t.completion
	t.completion = nil

	entry := t.activationLog().WithFields(logrus.Fields{
		"state":    from,
		"outcome":  outcome,
		"released": released,
	})
	if err != nil && outcome != primitives.TimedOut {
		entry.WithError(err).Warn("Task terminated")
	} else {
		entry.Info("Task terminated")
	}

	status := Status{From: fmt.Sprint(from), To: InactiveState, Outcome: outcome}
	if err != nil {
		status.Error = err.Error()
	}
	t.publish(status)

	// Waiters may restart this task, so signal last.
	if notify && completion != nil {
		completion.SignalWith(outcome, err)
	}
}

func (t *Task[S]) stopActuators() {
	if t.def.StopActuators == nil {
		return
	}
	defer func() {
		if r := recover(); r != nil {
			t.activationLog().WithField("panic", r).Error("Recovered panic while stopping actuators")
		}
	}()
	t.def.StopActuators(t.owner)
}

func (t *Task[S]) noteTransition(state S) {
	if state == t.lastState {
		return
	}
	t.activationLog().WithFields(logrus.Fields{"from": t.lastState, "to": state}).Debug("State transition")
	t.publish(Status{From: fmt.Sprint(t.lastState), To: fmt.Sprint(state)})
	t.lastState = state
}

func (t *Task[S]) activationLog() logrus.FieldLogger {
	return t.log.WithField("activation", t.activation)
}

func (t *Task[S]) publish(status Status) {
	if t.publisher == nil {
		return
	}
	status.Task = t.def.Name
	status.Activation = t.activation
	status.Time = t.clock.Now()
	t.publisher.Publish(status)
}
