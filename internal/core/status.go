package core

import (
	"time"

	"github.com/comalice/autotask/internal/primitives"
)

// StatusPublisher receives a Status record on every start, state change and
// termination. Implementations must not block.
type StatusPublisher interface {
	Publish(status Status)
}

// Status describes one observable change of a task.
type Status struct {
	Task       string             `json:"task" yaml:"task"`
	Activation string             `json:"activation,omitempty" yaml:"activation,omitempty"`
	From       string             `json:"from,omitempty" yaml:"from,omitempty"`
	To         string             `json:"to" yaml:"to"`
	Outcome    primitives.Outcome `json:"outcome,omitempty" yaml:"outcome,omitempty"`
	Error      string             `json:"error,omitempty" yaml:"error,omitempty"`
	Time       time.Time          `json:"time" yaml:"time"`
}

// TaskStatus is a point-in-time description of a task for dashboards and
// snapshots.
type TaskStatus struct {
	Name        string                  `json:"name" yaml:"name"`
	Owner       string                  `json:"owner" yaml:"owner"`
	Active      bool                    `json:"active" yaml:"active"`
	State       string                  `json:"state,omitempty" yaml:"state,omitempty"`
	Next        string                  `json:"next,omitempty" yaml:"next,omitempty"`
	Activation  string                  `json:"activation,omitempty" yaml:"activation,omitempty"`
	Resources   []primitives.ResourceID `json:"resources,omitempty" yaml:"resources,omitempty"`
	LastOutcome primitives.Outcome      `json:"lastOutcome,omitempty" yaml:"lastOutcome,omitempty"`
	LastError   string                  `json:"lastError,omitempty" yaml:"lastError,omitempty"`
}

// Describer is implemented by everything that can report a TaskStatus.
type Describer interface {
	Describe() TaskStatus
}

// InactiveState is the To value published when a task terminates.
const InactiveState = "INACTIVE"
