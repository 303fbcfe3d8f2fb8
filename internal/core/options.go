// Options for configuring Task instances.
package core

import (
	"github.com/sirupsen/logrus"

	"github.com/comalice/autotask/internal/primitives"
)

// Option applies configuration to a Task via functional options pattern.
type Option func(*options)

type options struct {
	log       logrus.FieldLogger
	clock     primitives.Clock
	scheduler TickRegistrar
	publisher StatusPublisher
	priority  int
	owner     string
}

// WithLogger sets the logger; the task adds its own fields.
func WithLogger(log logrus.FieldLogger) Option {
	return func(o *options) {
		o.log = log
	}
}

// WithClock sets the time source used for deadlines and timers.
func WithClock(clock primitives.Clock) Option {
	return func(o *options) {
		o.clock = clock
	}
}

// WithScheduler sets where the task registers its tick while active.
func WithScheduler(s TickRegistrar) Option {
	return func(o *options) {
		o.scheduler = s
	}
}

// WithPublisher sets the telemetry sink for status changes.
func WithPublisher(p StatusPublisher) Option {
	return func(o *options) {
		o.publisher = p
	}
}

// WithPriority sets the scheduler priority; higher runs first in a tick.
func WithPriority(priority int) Option {
	return func(o *options) {
		o.priority = priority
	}
}

// WithOwner overrides the owner id used with the registry. Defaults to the
// task name.
func WithOwner(owner string) Option {
	return func(o *options) {
		o.owner = owner
	}
}
