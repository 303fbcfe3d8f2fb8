package realtime_test

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/comalice/autotask/internal/primitives"
	"github.com/comalice/autotask/realtime"
	"github.com/comalice/autotask/testutil"
)

func TestSchedulerOrdersByPriorityThenRegistration(t *testing.T) {
	h := testutil.NewHarness(20 * time.Millisecond)
	var order []string
	record := func(name string) func(primitives.Tick) {
		return func(primitives.Tick) { order = append(order, name) }
	}

	h.Scheduler.Register("low-a", 0, record("low-a"))
	h.Scheduler.Register("high", 10, record("high"))
	h.Scheduler.Register("low-b", 0, record("low-b"))
	h.Step()

	assert.Equal(t, []string{"high", "low-a", "low-b"}, order)
}

func TestSchedulerRegistrationDuringTickTakesEffectNextTick(t *testing.T) {
	h := testutil.NewHarness(20 * time.Millisecond)
	lateRuns := 0
	h.Scheduler.Register("starter", 0, func(tick primitives.Tick) {
		if tick.Number == 1 {
			h.Scheduler.Register("late", 0, func(primitives.Tick) { lateRuns++ })
		}
	})

	h.Step()
	assert.Equal(t, 0, lateRuns, "registration made mid-tick ran in the same tick")
	h.Step()
	assert.Equal(t, 1, lateRuns)
}

func TestSchedulerUnregister(t *testing.T) {
	h := testutil.NewHarness(20 * time.Millisecond)
	runs := 0
	h.Scheduler.Register("task", 0, func(primitives.Tick) { runs++ })
	h.Step()
	h.Scheduler.Unregister("task")
	h.Scheduler.Unregister("unknown")
	h.StepN(3)

	assert.Equal(t, 1, runs)
	assert.False(t, h.Scheduler.IsRegistered("task"))
}

func TestSchedulerReRegisterReplaces(t *testing.T) {
	h := testutil.NewHarness(20 * time.Millisecond)
	var got []string
	h.Scheduler.Register("task", 0, func(primitives.Tick) { got = append(got, "old") })
	h.Scheduler.Register("task", 0, func(primitives.Tick) { got = append(got, "new") })
	h.Step()

	assert.Equal(t, []string{"new"}, got)
}

func TestSchedulerPostRunsBeforeEntries(t *testing.T) {
	h := testutil.NewHarness(20 * time.Millisecond)
	var order []string
	h.Scheduler.Register("entry", 0, func(primitives.Tick) { order = append(order, "entry") })
	require.NoError(t, h.Scheduler.Post(func() { order = append(order, "posted") }))
	h.Step()

	assert.Equal(t, []string{"posted", "entry"}, order)
}

func TestSchedulerPostRegistersSameTick(t *testing.T) {
	h := testutil.NewHarness(20 * time.Millisecond)
	runs := 0
	require.NoError(t, h.Scheduler.Post(func() {
		h.Scheduler.Register("task", 0, func(primitives.Tick) { runs++ })
	}))
	h.Step()

	assert.Equal(t, 1, runs)
}

func TestSchedulerPostQueueFull(t *testing.T) {
	s := realtime.NewScheduler(realtime.Config{MaxPosted: 1, Logger: testutil.QuietLogger()})
	require.NoError(t, s.Post(func() {}))
	assert.ErrorIs(t, s.Post(func() {}), realtime.ErrPostQueueFull)
}

func TestSchedulerTickValues(t *testing.T) {
	h := testutil.NewHarness(20 * time.Millisecond)
	var ticks []primitives.Tick
	h.Scheduler.Register("probe", 0, func(tick primitives.Tick) { ticks = append(ticks, tick) })
	h.StepN(5)

	require.Len(t, ticks, 5)
	assert.Equal(t, uint64(1), ticks[0].Number)
	assert.Equal(t, 20*time.Millisecond, ticks[0].Elapsed)
	assert.Equal(t, 100*time.Millisecond, ticks[4].Elapsed)
	for i, tick := range ticks {
		assert.Equal(t, i == 4, tick.Slow, "tick %d slow flag", tick.Number)
	}

	h.Scheduler.ResetModeStart()
	h.Step()
	assert.Equal(t, 20*time.Millisecond, ticks[5].Elapsed)
}

func TestSchedulerRecoversPanics(t *testing.T) {
	h := testutil.NewHarness(20 * time.Millisecond)
	runs := 0
	h.Scheduler.Register("bad", 10, func(primitives.Tick) { panic("boom") })
	h.Scheduler.Register("good", 0, func(primitives.Tick) { runs++ })

	assert.NotPanics(t, func() { h.StepN(2) })
	assert.Equal(t, 2, runs)
}

func TestSchedulerStartStop(t *testing.T) {
	s := realtime.NewScheduler(realtime.Config{
		TickRate: 5 * time.Millisecond,
		Logger:   testutil.QuietLogger(),
	})
	var runs atomic.Int64
	s.Register("count", 0, func(primitives.Tick) { runs.Add(1) })

	require.NoError(t, s.Start(context.Background()))
	assert.Eventually(t, func() bool { return runs.Load() >= 3 }, time.Second, time.Millisecond)
	require.NoError(t, s.Stop())

	stoppedAt := runs.Load()
	time.Sleep(20 * time.Millisecond)
	assert.Equal(t, stoppedAt, runs.Load(), "ticks ran after Stop returned")
}
