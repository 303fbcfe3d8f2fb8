// Package command feeds start and cancel requests from outside the tick loop
// (a scripted scenario, the CLI) onto the loop, so every task is still
// started and canceled on the scheduler goroutine.
package command

import (
	"fmt"
	"sort"
	"strings"
	"time"
)

// Command asks for a named task to be started or canceled.
type Command struct {
	Name   string
	Cancel bool
}

func (c Command) String() string {
	if c.Cancel {
		return "cancel " + c.Name
	}
	return "start " + c.Name
}

// Source delivers commands. The channel is closed when the source ends.
type Source interface {
	Commands() <-chan Command
}

// ChannelSource is a Source backed by a Go channel.
type ChannelSource struct {
	ch chan Command
}

// NewChannelSource creates a ChannelSource with the given channel. The
// channel should be buffered if the producer must not block.
func NewChannelSource(ch chan Command) *ChannelSource {
	return &ChannelSource{ch: ch}
}

// Commands returns the receive-only channel for commands.
func (s *ChannelSource) Commands() <-chan Command {
	return s.ch
}

// Step issues Command At an offset from the start of a script.
type Step struct {
	At      time.Duration
	Command Command
}

// ParseStep parses "NAME@OFFSET" to start a task or "-NAME@OFFSET" to cancel
// it, e.g. "pickup@1.5s" or "-pickup@3s".
func ParseStep(s string) (Step, error) {
	name, at, ok := strings.Cut(s, "@")
	if !ok {
		return Step{}, fmt.Errorf("script step %q: want NAME@OFFSET", s)
	}
	cancel := strings.HasPrefix(name, "-")
	name = strings.TrimPrefix(name, "-")
	if name == "" {
		return Step{}, fmt.Errorf("script step %q: missing name", s)
	}
	d, err := time.ParseDuration(at)
	if err != nil {
		return Step{}, fmt.Errorf("script step %q: %w", s, err)
	}
	if d < 0 {
		return Step{}, fmt.Errorf("script step %q: negative offset", s)
	}
	return Step{At: d, Command: Command{Name: name, Cancel: cancel}}, nil
}

// ScriptSource replays a fixed list of steps in real time, then closes its
// channel.
type ScriptSource struct {
	ch   chan Command
	stop chan struct{}
}

// NewScriptSource starts replaying steps in offset order.
func NewScriptSource(steps []Step) *ScriptSource {
	steps = append([]Step(nil), steps...)
	sort.SliceStable(steps, func(i, j int) bool { return steps[i].At < steps[j].At })
	s := &ScriptSource{
		ch:   make(chan Command, len(steps)),
		stop: make(chan struct{}),
	}
	go s.run(steps)
	return s
}

func (s *ScriptSource) run(steps []Step) {
	defer close(s.ch)
	start := time.Now()
	for _, step := range steps {
		timer := time.NewTimer(time.Until(start.Add(step.At)))
		select {
		case <-timer.C:
			s.ch <- step.Command
		case <-s.stop:
			timer.Stop()
			return
		}
	}
}

// Commands returns the command channel.
func (s *ScriptSource) Commands() <-chan Command {
	return s.ch
}

// Stop ends the replay and closes the channel. It must be called at most once.
func (s *ScriptSource) Stop() {
	close(s.stop)
}
