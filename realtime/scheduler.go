package realtime

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/comalice/autotask/internal/primitives"
)

// ErrPostQueueFull is returned by Post when too many functions are waiting
// for the next tick.
var ErrPostQueueFull = errors.New("post queue full")

// Config configures the scheduler.
type Config struct {
	TickRate    time.Duration // Fixed tick period (e.g., 20ms for a 50 Hz loop)
	SlowDivisor int           // Every SlowDivisor-th tick is a slow tick (default: 5)
	MaxPosted   int           // Post queue capacity (default: 1000)
	Clock       primitives.Clock
	Logger      logrus.FieldLogger
}

// Scheduler calls registered tick functions once per period.
type Scheduler struct {
	tickRate    time.Duration
	slowDivisor uint64
	clock       primitives.Clock
	log         logrus.FieldLogger

	mu          sync.Mutex
	entries     []entry
	ops         []registration
	posted      []func()
	maxPosted   int
	sequenceNum uint64
	tickNum     uint64
	modeStart   time.Time

	// Control
	tickCtx    context.Context
	tickCancel context.CancelFunc
	ticker     *time.Ticker
	stopped    chan struct{}
}

// NewScheduler creates a scheduler. Nothing runs until Start or Step.
func NewScheduler(cfg Config) *Scheduler {
	if cfg.TickRate == 0 {
		cfg.TickRate = 20 * time.Millisecond
	}
	if cfg.SlowDivisor <= 0 {
		cfg.SlowDivisor = 5
	}
	if cfg.MaxPosted == 0 {
		cfg.MaxPosted = 1000
	}
	if cfg.Clock == nil {
		cfg.Clock = primitives.SystemClock{}
	}
	if cfg.Logger == nil {
		cfg.Logger = logrus.StandardLogger()
	}

	return &Scheduler{
		tickRate:    cfg.TickRate,
		slowDivisor: uint64(cfg.SlowDivisor),
		clock:       cfg.Clock,
		log:         cfg.Logger.WithField("component", "scheduler"),
		maxPosted:   cfg.MaxPosted,
		modeStart:   cfg.Clock.Now(),
	}
}

// TickRate returns the configured period.
func (s *Scheduler) TickRate() time.Duration { return s.tickRate }

// Register adds fn under name, replacing any function already registered
// under that name. It takes effect at the start of the next tick.
func (s *Scheduler) Register(name string, priority int, fn func(primitives.Tick)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.ops = append(s.ops, registration{name: name, priority: priority, fn: fn})
}

// Unregister removes the function registered under name at the start of the
// next tick. Unknown names are ignored.
func (s *Scheduler) Unregister(name string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.ops = append(s.ops, registration{name: name, remove: true})
}

// Post queues fn to run on the scheduler goroutine at the start of the next
// tick, before any registered function.
func (s *Scheduler) Post(fn func()) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.posted) >= s.maxPosted {
		return ErrPostQueueFull
	}
	s.posted = append(s.posted, fn)
	return nil
}

// ResetModeStart restarts Tick.Elapsed from zero, e.g. when the robot enters
// autonomous.
func (s *Scheduler) ResetModeStart() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.modeStart = s.clock.Now()
}

// IsRegistered reports whether name is currently in the tick list. Pending
// registrations are not counted until the next tick applies them.
func (s *Scheduler) IsRegistered(name string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, e := range s.entries {
		if e.name == name {
			return true
		}
	}
	return false
}

// TickNumber returns the number of ticks run so far.
func (s *Scheduler) TickNumber() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.tickNum
}

// Step runs exactly one tick on the calling goroutine.
func (s *Scheduler) Step() {
	s.processTick()
}

// Start runs ticks on a new goroutine until ctx is done or Stop is called.
func (s *Scheduler) Start(ctx context.Context) error {
	if s.ticker != nil {
		return errors.New("scheduler already started")
	}
	s.tickCtx, s.tickCancel = context.WithCancel(ctx)
	s.ticker = time.NewTicker(s.tickRate)
	s.stopped = make(chan struct{})

	go s.tickLoop()

	return nil
}

// Stop ends the tick loop and waits for the current tick to finish.
func (s *Scheduler) Stop() error {
	if s.tickCancel == nil {
		return nil
	}
	s.tickCancel()
	s.ticker.Stop()

	<-s.stopped
	return nil
}

// tickLoop is the main tick execution loop
func (s *Scheduler) tickLoop() {
	defer close(s.stopped)

	for {
		select {
		case <-s.tickCtx.Done():
			return
		case <-s.ticker.C:
			s.processTick()
		}
	}
}
