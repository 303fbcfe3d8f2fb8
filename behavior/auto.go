package behavior

import (
	"time"

	"github.com/sirupsen/logrus"

	"github.com/comalice/autotask/internal/core"
	"github.com/comalice/autotask/internal/primitives"
)

// AutoState is a state of the autonomous sequencer.
type AutoState int

const (
	AutoStart AutoState = iota
	AutoDelay
	AutoScorePreload
	AutoPickup
	AutoScorePickup
	AutoDone
)

func (s AutoState) String() string {
	switch s {
	case AutoStart:
		return "START"
	case AutoDelay:
		return "DELAY"
	case AutoScorePreload:
		return "SCORE_PRELOAD"
	case AutoPickup:
		return "PICKUP"
	case AutoScorePickup:
		return "SCORE_PICKUP"
	case AutoDone:
		return "DONE"
	}
	return "UNKNOWN"
}

// AutoParams are the autonomous routine choices.
type AutoParams struct {
	StartDelay   time.Duration
	ScorePreload bool
	Pickup       bool
	ScorePickup  bool
	Shot         Shot
	ScoreTimeout time.Duration
	Timeout      time.Duration
}

// Auto runs the autonomous routine: wait, score the preloaded piece, pick
// up another and score it. It owns no actuator itself; it starts the
// sub-tasks and waits on their completion events.
type Auto struct {
	task   *core.Task[AutoState]
	score  *Score
	pickup *Pickup
	params AutoParams
	log    logrus.FieldLogger

	delay    *primitives.Timer
	delayed  *primitives.Event
	scored   *primitives.Event
	picked   *primitives.Event
	rescored *primitives.Event
}

// NewAuto creates the sequencer over score and pickup. Either may be nil to
// skip its steps.
func NewAuto(env Env, score *Score, pickup *Pickup, params AutoParams) (*Auto, error) {
	a := &Auto{
		score:  score,
		pickup: pickup,
		params: params,
		log:    env.logger().WithField("task", "auto"),
	}
	task, err := core.NewTask(core.Definition[AutoState]{
		Name:     "auto",
		Initial:  AutoStart,
		Terminal: AutoDone,
		States: map[AutoState]core.Handler[AutoState]{
			AutoStart:        a.start,
			AutoDelay:        a.wait,
			AutoScorePreload: a.scorePreload,
			AutoPickup:       a.pickUp,
			AutoScorePickup:  a.scorePickup,
		},
		OnStart:       a.reset,
		StopActuators: a.cancelSubtasks,
	}, env.Registry, env.options(core.WithPriority(10))...)
	if err != nil {
		return nil, err
	}
	a.task = task
	a.delay = task.NewTimer("delay")
	return a, nil
}

func (a *Auto) Name() string              { return a.task.Name() }
func (a *Auto) IsActive() bool            { return a.task.IsActive() }
func (a *Auto) Cancel(notify bool)        { a.task.Cancel(notify) }
func (a *Auto) Describe() core.TaskStatus { return a.task.Describe() }
func (a *Auto) State() (AutoState, bool)  { return a.task.State() }

// Start runs the routine. event is signaled when it ends.
func (a *Auto) Start(event *primitives.Event) error {
	return a.task.Start(event, a.params.Timeout)
}

func (a *Auto) reset(string) error {
	a.delayed = primitives.NewEvent("auto.delayed")
	a.scored = nil
	a.picked = nil
	a.rescored = nil
	return nil
}

// cancelSubtasks cancels only the sub-task runs this activation started.
// A run started elsewhere, or one that rejected our start, is left alone.
func (a *Auto) cancelSubtasks(string) {
	if a.score != nil && (running(a.scored) || running(a.rescored)) {
		a.score.Cancel(false)
	}
	if a.pickup != nil && running(a.picked) {
		a.pickup.Cancel(false)
	}
}

// running reports whether the sub-task run that signals done is still
// going. Rejected starts signal done immediately.
func running(done *primitives.Event) bool {
	return done != nil && !done.IsSignaled()
}

func (a *Auto) start(sm *core.StateMachine[AutoState], _ primitives.Tick) error {
	a.log.WithFields(logrus.Fields{
		"delay":         a.params.StartDelay,
		"score_preload": a.params.ScorePreload,
		"pickup":        a.params.Pickup,
		"score_pickup":  a.params.ScorePickup,
	}).Info("Autonomous routine")
	sm.SetState(AutoDelay)
	return nil
}

func (a *Auto) wait(sm *core.StateMachine[AutoState], _ primitives.Tick) error {
	if a.params.StartDelay <= 0 {
		sm.SetState(AutoScorePreload)
		return nil
	}
	a.delay.Set(a.params.StartDelay, a.delayed)
	sm.WaitForEvent(a.delayed, AutoScorePreload, 0)
	return nil
}

func (a *Auto) scorePreload(sm *core.StateMachine[AutoState], _ primitives.Tick) error {
	if !a.params.ScorePreload || a.score == nil {
		sm.SetState(AutoPickup)
		return nil
	}
	a.scored = primitives.NewEvent("auto.scored")
	a.runStep(sm, "score preload", a.score.Start(a.params.Shot, a.scored, a.params.ScoreTimeout), a.scored, AutoPickup)
	return nil
}

func (a *Auto) pickUp(sm *core.StateMachine[AutoState], _ primitives.Tick) error {
	if !a.params.Pickup || a.pickup == nil {
		sm.SetState(AutoScorePickup)
		return nil
	}
	a.picked = primitives.NewEvent("auto.picked")
	a.runStep(sm, "pickup", a.pickup.Start(a.picked), a.picked, AutoScorePickup)
	return nil
}

func (a *Auto) scorePickup(sm *core.StateMachine[AutoState], _ primitives.Tick) error {
	if !a.params.ScorePickup || a.score == nil || a.picked == nil {
		sm.SetState(AutoDone)
		return nil
	}
	if outcome, _ := a.picked.Outcome(); outcome != primitives.Success || !a.pickup.HasPiece() {
		a.log.WithFields(logrus.Fields{"pickup": outcome, "piece": a.pickup.HasPiece()}).Info("Skipping second shot")
		sm.SetState(AutoDone)
		return nil
	}
	a.rescored = primitives.NewEvent("auto.rescored")
	a.runStep(sm, "score pickup", a.score.Start(a.params.Shot, a.rescored, a.params.ScoreTimeout), a.rescored, AutoDone)
	return nil
}

// runStep waits on a started sub-task, or skips to next if it was rejected.
func (a *Auto) runStep(sm *core.StateMachine[AutoState], step string, err error, done *primitives.Event, next AutoState) {
	if err != nil {
		a.log.WithError(err).WithField("step", step).Warn("Skipping step")
		sm.SetState(next)
		return
	}
	sm.WaitForEvent(done, next, 0)
}
