// Package behavior implements the robot's multi-step tasks on top of the
// generic task runner: ground pickup, scoring, climbing and the autonomous
// sequencer that chains them.
package behavior

import (
	"errors"

	"github.com/sirupsen/logrus"

	"github.com/comalice/autotask/internal/core"
	"github.com/comalice/autotask/internal/primitives"
)

// ErrNoGamePiece is returned when a behavior needs a held game piece and
// there is none.
var ErrNoGamePiece = errors.New("no game piece")

// Env carries the collaborators every behavior is built with.
type Env struct {
	Registry  *core.Registry
	Scheduler core.TickRegistrar
	Clock     primitives.Clock
	Logger    logrus.FieldLogger
	Publisher core.StatusPublisher
}

// Behavior is the control surface shared by every task in this package.
// Start differs per behavior because each takes its own parameters.
type Behavior interface {
	core.Describer
	Name() string
	Cancel(notify bool)
	IsActive() bool
}

func (e Env) logger() logrus.FieldLogger {
	if e.Logger == nil {
		return logrus.StandardLogger()
	}
	return e.Logger
}

func (e Env) options(extra ...core.Option) []core.Option {
	opts := []core.Option{
		core.WithLogger(e.logger()),
		core.WithScheduler(e.Scheduler),
	}
	if e.Clock != nil {
		opts = append(opts, core.WithClock(e.Clock))
	}
	if e.Publisher != nil {
		opts = append(opts, core.WithPublisher(e.Publisher))
	}
	return append(opts, extra...)
}
