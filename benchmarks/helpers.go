// Package benchmarks measures the per-tick cost of the task core.
package benchmarks

import (
	"fmt"
	"time"

	"github.com/comalice/autotask/internal/core"
	"github.com/comalice/autotask/internal/primitives"
	"github.com/comalice/autotask/testutil"
)

// Phase is the state type of the benchmark tasks.
type Phase int

const (
	PhaseA Phase = iota
	PhaseB
	PhaseDone
)

// FlipDefinition is a task that alternates between two states every tick
// and never finishes on its own.
func FlipDefinition(name string, resources ...primitives.ResourceID) core.Definition[Phase] {
	return core.Definition[Phase]{
		Name:      name,
		Initial:   PhaseA,
		Terminal:  PhaseDone,
		Resources: resources,
		States: map[Phase]core.Handler[Phase]{
			PhaseA: func(sm *core.StateMachine[Phase], _ primitives.Tick) error {
				sm.SetState(PhaseB)
				return nil
			},
			PhaseB: func(sm *core.StateMachine[Phase], _ primitives.Tick) error {
				sm.SetState(PhaseA)
				return nil
			},
		},
		StopActuators: func(string) {},
	}
}

// StartFlipTasks starts n resource-free flip tasks on h's scheduler and runs
// one tick so they are registered.
func StartFlipTasks(h *testutil.Harness, registry *core.Registry, n int) ([]*core.Task[Phase], error) {
	tasks := make([]*core.Task[Phase], 0, n)
	for i := 0; i < n; i++ {
		task, err := core.NewTask(FlipDefinition(fmt.Sprintf("flip-%d", i)), registry,
			core.WithLogger(h.Logger),
			core.WithClock(h.Clock),
			core.WithScheduler(h.Scheduler),
		)
		if err != nil {
			return nil, err
		}
		if err := task.Start(nil, time.Hour); err != nil {
			return nil, err
		}
		tasks = append(tasks, task)
	}
	h.Step()
	return tasks, nil
}
