package command

import (
	"context"

	"github.com/sirupsen/logrus"
)

// Poster queues work for the tick loop.
type Poster interface {
	Post(fn func()) error
}

// Handler holds what starting and canceling one name does. Either may be nil.
type Handler struct {
	Start  func()
	Cancel func()
}

// Table maps command names to handlers.
type Table map[string]Handler

// Dispatcher reads commands and posts the matching handler onto the loop.
type Dispatcher struct {
	poster Poster
	table  Table
	log    logrus.FieldLogger
}

func NewDispatcher(poster Poster, table Table, log logrus.FieldLogger) *Dispatcher {
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &Dispatcher{poster: poster, table: table, log: log.WithField("component", "command")}
}

// Run dispatches commands until src closes or ctx is done.
func (d *Dispatcher) Run(ctx context.Context, src Source) error {
	commands := src.Commands()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case cmd, ok := <-commands:
			if !ok {
				return nil
			}
			d.Dispatch(cmd)
		}
	}
}

// Dispatch posts the handler for cmd, if any. It reports whether one was
// queued.
func (d *Dispatcher) Dispatch(cmd Command) bool {
	log := d.log.WithFields(logrus.Fields{"command": cmd.Name, "cancel": cmd.Cancel})
	h, ok := d.table[cmd.Name]
	if !ok {
		log.Warn("Unknown command")
		return false
	}
	fn := h.Start
	if cmd.Cancel {
		fn = h.Cancel
	}
	if fn == nil {
		log.Warn("Command not supported")
		return false
	}
	if err := d.poster.Post(fn); err != nil {
		log.WithError(err).Warn("Dropped command")
		return false
	}
	log.Debug("Command queued")
	return true
}
