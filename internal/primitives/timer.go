package primitives

import "time"

// Timer signals an Event once a duration has elapsed. There is no goroutine
// behind it: the owner calls Poll once per tick. A skipped poll delays the
// signal, it never loses or repeats it.
type Timer struct {
	name   string
	clock  Clock
	armed  bool
	expiry time.Time
	event  *Event
}

// NewTimer creates a disarmed timer reading time from clock.
func NewTimer(name string, clock Clock) *Timer {
	if clock == nil {
		clock = SystemClock{}
	}
	return &Timer{name: name, clock: clock}
}

func (t *Timer) Name() string { return t.name }

// Set arms the timer to signal event once d has elapsed. Any previous arm is
// dropped without signaling its event.
func (t *Timer) Set(d time.Duration, event *Event) {
	if d < 0 {
		d = 0
	}
	t.armed = true
	t.expiry = t.clock.Now().Add(d)
	t.event = event
}

// Cancel disarms the timer. Its event is left untouched.
func (t *Timer) Cancel() {
	t.armed = false
	t.event = nil
	t.expiry = time.Time{}
}

// IsArmed reports whether an arm is outstanding.
func (t *Timer) IsArmed() bool { return t.armed }

// Expiry returns the absolute expiry of the outstanding arm.
func (t *Timer) Expiry() time.Time { return t.expiry }

// Poll fires the timer if it is armed and expired. It returns true only on
// the poll that fired.
func (t *Timer) Poll() bool {
	if !t.armed || t.clock.Now().Before(t.expiry) {
		return false
	}
	event := t.event
	t.armed = false
	t.event = nil
	if event != nil {
		event.Signal()
	}
	return true
}
