package subsystem

import (
	"math"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/comalice/autotask/internal/primitives"
)

// ClimberLimits bounds the spool position.
type ClimberLimits struct {
	Min       float64
	Max       float64
	Tolerance float64
}

// Climber is the single-spool telescoping climber.
type Climber struct {
	guard
	motor  Motor
	limits ClimberLimits

	moving bool
	op     operation
}

// NewClimber wraps the spool motor.
func NewClimber(motor Motor, limits ClimberLimits, deps Deps) *Climber {
	return &Climber{
		guard:  newGuard(primitives.Climber, deps),
		motor:  motor,
		limits: limits,
	}
}

// SetPosition moves the climber to position, clamped to the configured
// limits. event is signaled on arrival or timeout.
func (c *Climber) SetPosition(owner string, position float64, event *primitives.Event, timeout time.Duration) {
	if !c.permit(owner, "SetPosition", event) {
		return
	}
	clamped := math.Min(math.Max(position, c.limits.Min), c.limits.Max)
	if clamped != position {
		c.log.WithFields(logrus.Fields{"requested": position, "clamped": clamped}).Warn("Climber target outside limits")
	}
	c.moving = true
	c.motor.SetTarget(clamped)
	c.op.begin(event, c.clock.Now(), timeout)
}

// Position returns the current spool position.
func (c *Climber) Position() float64 { return c.motor.Value() }

// Stop halts the spool and cancels any pending move.
func (c *Climber) Stop(owner string) {
	if !c.permit(owner, "Stop", nil) {
		return
	}
	c.moving = false
	c.motor.Stop()
	c.op.finish(primitives.Canceled, nil)
}

// Tick completes a pending move. The motor keeps holding its target after
// arrival.
func (c *Climber) Tick(tick primitives.Tick) {
	if !c.moving {
		return
	}
	if c.op.poll(tick.Now, onTarget(c.motor, c.limits.Tolerance)) {
		c.moving = false
	}
}
