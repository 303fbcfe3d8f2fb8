package testutil

import (
	"io"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/comalice/autotask/realtime"
)

// Epoch is the fixed start time used by harness clocks.
var Epoch = time.Date(2024, time.April, 6, 9, 0, 0, 0, time.UTC)

// Harness drives a scheduler deterministically: every Step advances the
// manual clock by one period and runs one tick.
type Harness struct {
	Clock     *ManualClock
	Scheduler *realtime.Scheduler
	Period    time.Duration
	Logger    *logrus.Logger
}

// NewHarness creates a harness with a quiet logger and the given period.
func NewHarness(period time.Duration) *Harness {
	clock := NewManualClock(Epoch)
	log := QuietLogger()
	return &Harness{
		Clock: clock,
		Scheduler: realtime.NewScheduler(realtime.Config{
			TickRate: period,
			Clock:    clock,
			Logger:   log,
		}),
		Period: period,
		Logger: log,
	}
}

// Step advances the clock one period and runs one tick.
func (h *Harness) Step() {
	h.Clock.Advance(h.Period)
	h.Scheduler.Step()
}

// StepN runs n ticks.
func (h *Harness) StepN(n int) {
	for i := 0; i < n; i++ {
		h.Step()
	}
}

// RunUntil steps until cond holds or max ticks have run. It returns the
// number of ticks run and whether cond was met.
func (h *Harness) RunUntil(max int, cond func() bool) (int, bool) {
	for i := 0; i < max; i++ {
		if cond() {
			return i, true
		}
		h.Step()
	}
	return max, cond()
}

// RunFor steps until at least d of clock time has passed.
func (h *Harness) RunFor(d time.Duration) int {
	end := h.Clock.Now().Add(d)
	n := 0
	for h.Clock.Now().Before(end) {
		h.Step()
		n++
	}
	return n
}

// QuietLogger returns a logger that discards output.
func QuietLogger() *logrus.Logger {
	log := logrus.New()
	log.SetOutput(io.Discard)
	log.SetLevel(logrus.DebugLevel)
	return log
}
