package behavior

import (
	"time"

	"github.com/sirupsen/logrus"

	"github.com/comalice/autotask/internal/core"
	"github.com/comalice/autotask/internal/primitives"
	"github.com/comalice/autotask/subsystem"
)

// ClimbState is a state of the climb task.
type ClimbState int

const (
	ClimbStart ClimbState = iota
	ClimbMove
	ClimbDone
)

func (s ClimbState) String() string {
	switch s {
	case ClimbStart:
		return "START"
	case ClimbMove:
		return "MOVE"
	case ClimbDone:
		return "DONE"
	}
	return "UNKNOWN"
}

// ClimbDirection selects where the climber goes.
type ClimbDirection int

const (
	Extend ClimbDirection = iota
	Retract
)

func (d ClimbDirection) String() string {
	if d == Retract {
		return "retract"
	}
	return "extend"
}

// ClimbParams holds the climber positions.
type ClimbParams struct {
	Extend  float64
	Retract float64
	Timeout time.Duration
}

// Climb extends or retracts the climber.
type Climb struct {
	task    *core.Task[ClimbState]
	climber *subsystem.Climber
	params  ClimbParams
	log     logrus.FieldLogger

	direction ClimbDirection
	moved     *primitives.Event
}

// NewClimb creates the climb task.
func NewClimb(env Env, climber *subsystem.Climber, params ClimbParams) (*Climb, error) {
	c := &Climb{
		climber: climber,
		params:  params,
		log:     env.logger().WithField("task", "climb"),
	}
	task, err := core.NewTask(core.Definition[ClimbState]{
		Name:      "climb",
		Resources: []primitives.ResourceID{primitives.Climber},
		Initial:   ClimbStart,
		Terminal:  ClimbDone,
		States: map[ClimbState]core.Handler[ClimbState]{
			ClimbStart: func(sm *core.StateMachine[ClimbState], _ primitives.Tick) error {
				c.log.WithField("direction", c.direction).Info("Climbing")
				sm.SetState(ClimbMove)
				return nil
			},
			ClimbMove: c.move,
		},
		OnStart: func(string) error {
			c.moved = primitives.NewEvent("climb.moved")
			return nil
		},
		StopActuators: func(owner string) { c.climber.Stop(owner) },
	}, env.Registry, env.options()...)
	if err != nil {
		return nil, err
	}
	c.task = task
	return c, nil
}

func (c *Climb) Name() string              { return c.task.Name() }
func (c *Climb) IsActive() bool            { return c.task.IsActive() }
func (c *Climb) Cancel(notify bool)        { c.task.Cancel(notify) }
func (c *Climb) Describe() core.TaskStatus { return c.task.Describe() }

// Start moves the climber in direction.
func (c *Climb) Start(direction ClimbDirection, event *primitives.Event) error {
	if !c.task.IsActive() {
		c.direction = direction
	}
	return c.task.Start(event, c.params.Timeout)
}

func (c *Climb) move(sm *core.StateMachine[ClimbState], _ primitives.Tick) error {
	target := c.params.Extend
	if c.direction == Retract {
		target = c.params.Retract
	}
	c.climber.SetPosition(c.task.Owner(), target, c.moved, 0)
	sm.WaitForEvent(c.moved, ClimbDone, 0)
	return nil
}
