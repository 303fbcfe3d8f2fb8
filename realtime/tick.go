package realtime

import (
	"sort"

	"github.com/sirupsen/logrus"

	"github.com/comalice/autotask/internal/primitives"
)

// entry is one registered tick function.
type entry struct {
	name        string
	priority    int
	sequenceNum uint64
	fn          func(primitives.Tick)
}

// registration is a pending Register or Unregister call.
type registration struct {
	name     string
	priority int
	fn       func(primitives.Tick)
	remove   bool
}

// processTick processes one complete tick
func (s *Scheduler) processTick() {
	// Phase 1: Build the tick value and collect posted work atomically
	tick, posted := s.beginTick()

	// Phase 2: Posted functions may start or cancel tasks
	for _, fn := range posted {
		s.runSafely("posted", func() { fn() })
	}

	// Phase 3: Apply registrations and snapshot the run list
	entries := s.applyRegistrations()

	// Phase 4: Run every registered function once
	for _, e := range entries {
		fn := e.fn
		s.runSafely(e.name, func() { fn(tick) })
	}
}

func (s *Scheduler) beginTick() (primitives.Tick, []func()) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.tickNum++
	now := s.clock.Now()
	tick := primitives.Tick{
		Number:  s.tickNum,
		Elapsed: now.Sub(s.modeStart),
		Slow:    s.tickNum%s.slowDivisor == 0,
		Now:     now,
	}

	posted := s.posted
	s.posted = make([]func(), 0, cap(s.posted))
	return tick, posted
}

func (s *Scheduler) applyRegistrations() []entry {
	s.mu.Lock()
	defer s.mu.Unlock()

	if len(s.ops) > 0 {
		for _, op := range s.ops {
			s.entries = removeEntry(s.entries, op.name)
			if op.remove {
				continue
			}
			s.entries = append(s.entries, entry{
				name:        op.name,
				priority:    op.priority,
				sequenceNum: s.sequenceNum,
				fn:          op.fn,
			})
			s.sequenceNum++
		}
		s.ops = s.ops[:0]
		sortEntries(s.entries)
	}

	return append([]entry(nil), s.entries...)
}

// runSafely keeps one misbehaving function from taking down the loop.
func (s *Scheduler) runSafely(name string, fn func()) {
	defer func() {
		if r := recover(); r != nil {
			s.log.WithFields(logrus.Fields{"entry": name, "panic": r}).Error("Recovered panic in tick function")
		}
	}()
	fn()
}

func removeEntry(entries []entry, name string) []entry {
	for i, e := range entries {
		if e.name == name {
			return append(entries[:i], entries[i+1:]...)
		}
	}
	return entries
}

// sortEntries orders entries deterministically
// Stable sort preserves registration order for equal priorities
func sortEntries(entries []entry) {
	sort.SliceStable(entries, func(i, j int) bool {
		// Primary: Higher priority first
		if entries[i].priority != entries[j].priority {
			return entries[i].priority > entries[j].priority
		}

		// Secondary: Earlier registration first (FIFO)
		return entries[i].sequenceNum < entries[j].sequenceNum
	})
}
