package core

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/comalice/autotask/internal/primitives"
	"github.com/comalice/autotask/testutil"
)

type step int

const (
	stepStart step = iota
	stepRun
	stepWait
	stepDone
)

func (s step) String() string {
	switch s {
	case stepStart:
		return "START"
	case stepRun:
		return "RUN"
	case stepWait:
		return "WAIT"
	case stepDone:
		return "DONE"
	}
	return "UNKNOWN"
}

type statusLog struct {
	statuses []Status
}

func (l *statusLog) Publish(s Status) { l.statuses = append(l.statuses, s) }

func (l *statusLog) outcomes() []primitives.Outcome {
	var out []primitives.Outcome
	for _, s := range l.statuses {
		if s.To == InactiveState {
			out = append(out, s.Outcome)
		}
	}
	return out
}

type taskFixture struct {
	h        *testutil.Harness
	registry *Registry
	statuses *statusLog
}

func newTaskFixture() *taskFixture {
	h := testutil.NewHarness(20 * time.Millisecond)
	return &taskFixture{
		h:        h,
		registry: NewRegistry(h.Logger),
		statuses: &statusLog{},
	}
}

func (f *taskFixture) newTask(t *testing.T, def Definition[step]) *Task[step] {
	t.Helper()
	task, err := NewTask(def, f.registry,
		WithLogger(f.h.Logger),
		WithClock(f.h.Clock),
		WithScheduler(f.h.Scheduler),
		WithPublisher(f.statuses),
	)
	require.NoError(t, err)
	return task
}

// idleDef never leaves RUN on its own.
func idleDef(name string, resources ...primitives.ResourceID) Definition[step] {
	return Definition[step]{
		Name:      name,
		Resources: resources,
		Initial:   stepStart,
		Terminal:  stepDone,
		States: map[step]Handler[step]{
			stepStart: func(sm *StateMachine[step], _ primitives.Tick) error {
				sm.SetState(stepRun)
				return nil
			},
			stepRun: func(*StateMachine[step], primitives.Tick) error { return nil },
		},
	}
}

func TestNewTaskValidatesDefinition(t *testing.T) {
	registry := NewRegistry(testutil.QuietLogger())

	_, err := NewTask(Definition[step]{}, registry)
	assert.Error(t, err)

	_, err = NewTask(idleDef("a"), nil)
	assert.Error(t, err)

	def := idleDef("a")
	delete(def.States, stepStart)
	_, err = NewTask(def, registry)
	assert.ErrorIs(t, err, ErrNoHandler)

	_, err = NewTask(idleDef("a", "arm"), registry)
	assert.ErrorIs(t, err, ErrUnknownResource)
}

func TestTaskRunsToTerminal(t *testing.T) {
	f := newTaskFixture()
	var visited []step
	record := func(next step) Handler[step] {
		return func(sm *StateMachine[step], _ primitives.Tick) error {
			visited = append(visited, sm.State())
			sm.SetState(next)
			return nil
		}
	}
	task := f.newTask(t, Definition[step]{
		Name:      "seq",
		Resources: []primitives.ResourceID{primitives.Intake},
		Initial:   stepStart,
		Terminal:  stepDone,
		States: map[step]Handler[step]{
			stepStart: record(stepRun),
			stepRun:   record(stepDone),
		},
	})
	done := primitives.NewEvent("seq.done")

	require.NoError(t, task.Start(done, 0))
	assert.True(t, task.IsActive())
	assert.NotEmpty(t, task.Activation())

	f.h.StepN(3)

	assert.Equal(t, []step{stepStart, stepRun}, visited)
	assert.False(t, task.IsActive())
	outcome, err := done.Outcome()
	assert.Equal(t, primitives.Success, outcome)
	assert.NoError(t, err)
	_, owned := f.registry.OwnerOf(primitives.Intake)
	assert.False(t, owned, "ownership not released on completion")
	assert.Equal(t, []primitives.Outcome{primitives.Success}, f.statuses.outcomes())

	f.h.Step()
	assert.False(t, f.h.Scheduler.IsRegistered("seq"))
}

func TestTaskDrivetrainConflict(t *testing.T) {
	f := newTaskFixture()
	a := f.newTask(t, idleDef("a", primitives.Drivetrain))
	b := f.newTask(t, idleDef("b", primitives.Drivetrain, primitives.Intake))

	require.NoError(t, a.Start(nil, 0))
	f.h.Step()

	bDone := primitives.NewEvent("b.done")
	err := b.Start(bDone, 0)
	require.Error(t, err)
	var conflict *AcquisitionConflictError
	require.True(t, errors.As(err, &conflict))
	assert.Equal(t, primitives.Drivetrain, conflict.Resource)
	assert.Equal(t, "a", conflict.Owner)
	assert.False(t, b.IsActive())
	outcome, _ := bDone.Outcome()
	assert.Equal(t, primitives.Failed, outcome)
	_, owned := f.registry.OwnerOf(primitives.Intake)
	assert.False(t, owned, "partial acquisition on conflict")

	a.Cancel(true)
	require.NoError(t, b.Start(nil, 0))
	owner, _ := f.registry.OwnerOf(primitives.Drivetrain)
	assert.Equal(t, "b", owner)
}

func TestTaskCancelIsSynchronousAndIdempotent(t *testing.T) {
	f := newTaskFixture()
	stopped := 0
	def := idleDef("drive", primitives.Drivetrain)
	def.StopActuators = func(owner string) {
		assert.Equal(t, "drive", owner)
		stopped++
	}
	task := f.newTask(t, def)
	done := primitives.NewEvent("drive.done")
	var signals int
	done.OnSignal(func(*primitives.Event) { signals++ })

	require.NoError(t, task.Start(done, 0))
	f.h.StepN(2)
	task.Cancel(true)

	assert.False(t, task.IsActive())
	assert.Equal(t, 1, stopped)
	assert.Empty(t, f.registry.Snapshot())
	outcome, _ := done.Outcome()
	assert.Equal(t, primitives.Canceled, outcome)

	task.Cancel(true)
	task.Cancel(false)
	assert.Equal(t, 1, stopped)
	assert.Equal(t, 1, signals)
}

func TestTaskCancelWithoutNotify(t *testing.T) {
	f := newTaskFixture()
	task := f.newTask(t, idleDef("drive", primitives.Drivetrain))
	done := primitives.NewEvent("drive.done")

	require.NoError(t, task.Start(done, 0))
	task.Cancel(false)

	assert.False(t, done.IsSignaled())
	outcome, _ := task.LastOutcome()
	assert.Equal(t, primitives.Canceled, outcome)
}

func TestTaskDeadline(t *testing.T) {
	f := newTaskFixture()
	task := f.newTask(t, idleDef("slow", primitives.Shooter))
	done := primitives.NewEvent("slow.done")
	timeout := 110 * time.Millisecond

	start := f.h.Clock.Now()
	require.NoError(t, task.Start(done, timeout))
	assert.Equal(t, start.Add(timeout), task.Deadline())

	var endedAt time.Time
	done.OnSignal(func(*primitives.Event) { endedAt = f.h.Clock.Now() })
	_, ended := f.h.RunUntil(50, done.IsSignaled)
	require.True(t, ended)

	assert.False(t, endedAt.Before(start.Add(timeout)), "terminated before the deadline")
	assert.True(t, endedAt.Before(start.Add(timeout+f.h.Period)), "terminated more than one tick late")
	outcome, err := done.Outcome()
	assert.Equal(t, primitives.TimedOut, outcome)
	assert.ErrorIs(t, err, ErrTimeout)
	assert.False(t, task.IsActive())
	assert.True(t, task.Deadline().IsZero())
	assert.Empty(t, f.registry.Snapshot())
}

func TestTaskOneTransitionPerTick(t *testing.T) {
	f := newTaskFixture()
	ticks := 0
	f.h.Scheduler.Register("counter", -1, func(primitives.Tick) { ticks++ })

	bounce := func(next step) Handler[step] {
		return func(sm *StateMachine[step], _ primitives.Tick) error {
			sm.SetState(next)
			sm.SetState(stepDone)
			return nil
		}
	}
	task := f.newTask(t, Definition[step]{
		Name:     "greedy",
		Initial:  stepStart,
		Terminal: stepDone,
		States: map[step]Handler[step]{
			stepStart: bounce(stepRun),
			stepRun:   bounce(stepWait),
			stepWait:  bounce(stepRun),
		},
	})
	require.NoError(t, task.Start(nil, 0))
	f.h.StepN(10)

	transitions := 0
	violations := 0
	for _, s := range f.statuses.statuses {
		switch {
		case s.From != "" && s.From == s.To:
			violations++
		case s.From != "" && s.From != InactiveState && s.To != InactiveState:
			transitions++
		}
	}
	assert.LessOrEqual(t, transitions, ticks)
	assert.Equal(t, 10, violations, "every step attempted a second transition")
	assert.True(t, task.IsActive(), "second transition to DONE was applied")
}

func TestTaskWaitForEventAndTimers(t *testing.T) {
	f := newTaskFixture()
	var timer *primitives.Timer
	fired := primitives.NewEvent("fired")
	def := Definition[step]{
		Name:     "timed",
		Initial:  stepStart,
		Terminal: stepDone,
		States: map[step]Handler[step]{
			stepStart: func(sm *StateMachine[step], _ primitives.Tick) error {
				timer.Set(60*time.Millisecond, fired)
				sm.WaitForEvent(fired, stepDone, 0)
				return nil
			},
		},
	}
	task := f.newTask(t, def)
	timer = task.NewTimer("delay")

	require.NoError(t, task.Start(nil, 0))
	f.h.Step() // START arms the timer
	f.h.StepN(2)
	assert.True(t, task.IsActive())
	state, _ := task.State()
	assert.Equal(t, stepStart, state)
	assert.Equal(t, "DONE", task.Describe().Next)

	f.h.StepN(2)
	assert.True(t, fired.IsSignaled())
	assert.False(t, task.IsActive())
	outcome, _ := task.LastOutcome()
	assert.Equal(t, primitives.Success, outcome)
}

func TestTaskCancelCancelsTimers(t *testing.T) {
	f := newTaskFixture()
	def := idleDef("armed")
	task := f.newTask(t, def)
	timer := task.NewTimer("t")
	ev := primitives.NewEvent("ev")

	require.NoError(t, task.Start(nil, 0))
	timer.Set(20*time.Millisecond, ev)
	task.Cancel(false)
	f.h.StepN(5)

	assert.False(t, timer.IsArmed())
	assert.False(t, ev.IsSignaled())
}

func TestTaskHandlerErrorFails(t *testing.T) {
	f := newTaskFixture()
	boom := errors.New("sensor unplugged")
	def := idleDef("fragile", primitives.Intake)
	def.States[stepRun] = func(*StateMachine[step], primitives.Tick) error { return boom }
	task := f.newTask(t, def)
	done := primitives.NewEvent("fragile.done")

	require.NoError(t, task.Start(done, 0))
	f.h.StepN(3)

	outcome, err := done.Outcome()
	assert.Equal(t, primitives.Failed, outcome)
	assert.ErrorIs(t, err, boom)
	assert.Empty(t, f.registry.Snapshot())
}

func TestTaskPanicIsRecovered(t *testing.T) {
	f := newTaskFixture()
	def := idleDef("panicky", primitives.Climber)
	def.States[stepRun] = func(*StateMachine[step], primitives.Tick) error { panic("index out of range") }
	task := f.newTask(t, def)
	done := primitives.NewEvent("panicky.done")

	require.NoError(t, task.Start(done, 0))
	assert.NotPanics(t, func() { f.h.StepN(3) })

	outcome, err := done.Outcome()
	assert.Equal(t, primitives.Failed, outcome)
	var violation *InvariantViolationError
	require.True(t, errors.As(err, &violation))
	assert.Equal(t, "RUN", violation.State)
	assert.Empty(t, f.registry.Snapshot(), "ownership kept after panic")
}

func TestTaskMissingHandlerFails(t *testing.T) {
	f := newTaskFixture()
	def := idleDef("partial")
	def.States[stepStart] = func(sm *StateMachine[step], _ primitives.Tick) error {
		sm.SetState(stepWait)
		return nil
	}
	task := f.newTask(t, def)
	done := primitives.NewEvent("partial.done")

	require.NoError(t, task.Start(done, 0))
	f.h.StepN(3)

	_, err := done.Outcome()
	assert.ErrorIs(t, err, ErrNoHandler)
	assert.False(t, task.IsActive())
}

func TestTaskStartWhileActive(t *testing.T) {
	f := newTaskFixture()
	task := f.newTask(t, idleDef("once", primitives.Shooter))
	first := primitives.NewEvent("first")
	second := primitives.NewEvent("second")

	require.NoError(t, task.Start(first, 0))
	activation := task.Activation()
	assert.ErrorIs(t, task.Start(second, 0), ErrAlreadyActive)

	assert.Equal(t, activation, task.Activation())
	assert.False(t, first.IsSignaled())
	outcome, _ := second.Outcome()
	assert.Equal(t, primitives.Failed, outcome)
}

func TestTaskIsReusable(t *testing.T) {
	f := newTaskFixture()
	task := f.newTask(t, idleDef("again", primitives.Intake))

	require.NoError(t, task.Start(nil, 0))
	first := task.Activation()
	task.Cancel(false)

	done := primitives.NewEvent("again.done")
	require.NoError(t, task.Start(done, 0))
	assert.NotEqual(t, first, task.Activation())
	state, active := task.State()
	assert.True(t, active)
	assert.Equal(t, stepStart, state)
}

func TestTaskRestartFromCompletionWaiter(t *testing.T) {
	f := newTaskFixture()
	task := f.newTask(t, idleDef("loop", primitives.Intake))
	done := primitives.NewEvent("loop.done")
	restarted := false
	done.OnSignal(func(*primitives.Event) {
		restarted = task.Start(nil, 0) == nil
	})

	require.NoError(t, task.Start(done, 0))
	task.Cancel(true)

	assert.True(t, restarted, "waiter could not restart the task")
	assert.True(t, task.IsActive())
	owner, _ := f.registry.OwnerOf(primitives.Intake)
	assert.Equal(t, "loop", owner)
}

func TestTaskOnStartError(t *testing.T) {
	f := newTaskFixture()
	def := idleDef("hooked", primitives.Shooter)
	def.OnStart = func(string) error { return ErrUnavailable }
	task := f.newTask(t, def)

	assert.ErrorIs(t, task.Start(nil, 0), ErrUnavailable)
	assert.False(t, task.IsActive())
	assert.Empty(t, f.registry.Snapshot())
}

func TestTaskDescribe(t *testing.T) {
	f := newTaskFixture()
	task := f.newTask(t, idleDef("shown", primitives.Intake))

	status := task.Describe()
	assert.False(t, status.Active)
	assert.Empty(t, status.State)

	require.NoError(t, task.Start(nil, 0))
	f.h.StepN(2)
	status = task.Describe()
	assert.True(t, status.Active)
	assert.Equal(t, "RUN", status.State)
	assert.Equal(t, []primitives.ResourceID{primitives.Intake}, status.Resources)
}
