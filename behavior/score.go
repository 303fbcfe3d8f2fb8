package behavior

import (
	"fmt"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/comalice/autotask/internal/core"
	"github.com/comalice/autotask/internal/primitives"
	"github.com/comalice/autotask/subsystem"
)

// ScoreState is a state of the score task.
type ScoreState int

const (
	ScoreStart ScoreState = iota
	ScoreAim
	ScoreFire
	ScoreDone
)

func (s ScoreState) String() string {
	switch s {
	case ScoreStart:
		return "START"
	case ScoreAim:
		return "AIM"
	case ScoreFire:
		return "FIRE"
	case ScoreDone:
		return "DONE"
	}
	return "UNKNOWN"
}

// Shot is where to aim.
type Shot struct {
	Velocity float64 // rev/s
	Angle    float64 // degrees
}

// ScoreParams configures the score task.
type ScoreParams struct {
	MonitorTimeout time.Duration
	FeedPower      float64
	FeedDuration   time.Duration
}

// Score spins up and aims the shooter, then feeds the held game piece
// through it.
type Score struct {
	task    *core.Task[ScoreState]
	shooter *subsystem.Shooter
	intake  *subsystem.Intake
	params  ScoreParams
	log     logrus.FieldLogger

	shot  Shot
	aimed *primitives.Event
	fed   *primitives.Event
}

// NewScore creates the score task.
func NewScore(env Env, shooter *subsystem.Shooter, intake *subsystem.Intake, params ScoreParams) (*Score, error) {
	s := &Score{
		shooter: shooter,
		intake:  intake,
		params:  params,
		log:     env.logger().WithField("task", "score"),
	}
	task, err := core.NewTask(core.Definition[ScoreState]{
		Name:      "score",
		Resources: []primitives.ResourceID{primitives.Shooter, primitives.Intake},
		Initial:   ScoreStart,
		Terminal:  ScoreDone,
		States: map[ScoreState]core.Handler[ScoreState]{
			ScoreStart: s.start,
			ScoreAim:   s.aim,
			ScoreFire:  s.fire,
		},
		OnStart: func(string) error {
			s.aimed = primitives.NewEvent("score.aimed")
			s.fed = primitives.NewEvent("score.fed")
			return nil
		},
		StopActuators: s.stop,
	}, env.Registry, env.options()...)
	if err != nil {
		return nil, err
	}
	s.task = task
	return s, nil
}

func (s *Score) Name() string              { return s.task.Name() }
func (s *Score) IsActive() bool            { return s.task.IsActive() }
func (s *Score) Cancel(notify bool)        { s.task.Cancel(notify) }
func (s *Score) Describe() core.TaskStatus { return s.task.Describe() }
func (s *Score) State() (ScoreState, bool) { return s.task.State() }

// Start takes one shot. timeout bounds the whole activation.
func (s *Score) Start(shot Shot, event *primitives.Event, timeout time.Duration) error {
	if !s.task.IsActive() {
		s.shot = shot
	}
	return s.task.Start(event, timeout)
}

func (s *Score) stop(owner string) {
	s.shooter.Stop(owner)
	s.intake.Stop(owner)
}

func (s *Score) start(sm *core.StateMachine[ScoreState], _ primitives.Tick) error {
	if !s.intake.HasObject() {
		return ErrNoGamePiece
	}
	s.log.WithFields(logrus.Fields{"velocity": s.shot.Velocity, "angle": s.shot.Angle}).Info("Scoring")
	sm.SetState(ScoreAim)
	return nil
}

func (s *Score) aim(sm *core.StateMachine[ScoreState], _ primitives.Tick) error {
	s.shooter.Prepare(s.task.Owner(), s.shot.Velocity, s.shot.Angle, s.aimed, s.params.MonitorTimeout)
	sm.WaitForEvent(s.aimed, ScoreFire, 0)
	return nil
}

func (s *Score) fire(sm *core.StateMachine[ScoreState], _ primitives.Tick) error {
	switch outcome, err := s.aimed.Outcome(); outcome {
	case primitives.Success:
	case primitives.TimedOut:
		s.log.WithField("velocity", s.shooter.Velocity()).Warn("Shooting before flywheel reached speed")
	default:
		return fmt.Errorf("aim %s: %w", outcome, err)
	}
	s.intake.Eject(s.task.Owner(), s.params.FeedPower, s.params.FeedDuration, s.fed)
	sm.WaitForEvent(s.fed, ScoreDone, 0)
	return nil
}
