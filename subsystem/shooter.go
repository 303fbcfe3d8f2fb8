package subsystem

import (
	"errors"
	"math"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/comalice/autotask/internal/core"
	"github.com/comalice/autotask/internal/primitives"
)

const (
	// MonitorName is the scheduler entry of the aim monitor.
	MonitorName = "shooter.monitor"
	// MonitorPriority runs the monitor after behaviors within a tick.
	MonitorPriority = -100
)

// ErrAngleStuck is signaled by the aim monitor when the tilter stays off
// target for longer than ShooterParams.AngleStuckTimeout.
var ErrAngleStuck = errors.New("shooter angle not converging")

// ShooterParams are the shooter tolerances.
type ShooterParams struct {
	VelocityTolerance float64 // rev/s
	AngleTolerance    float64 // degrees
	// AngleStuckTimeout fails the aim monitor when the tilter has been off
	// target this long. Zero waits until the monitor deadline.
	AngleStuckTimeout time.Duration
}

type aimMonitor struct {
	armed    bool
	owner    string
	angle    float64
	deadline time.Time
	offSince time.Time
	event    *primitives.Event
}

// Shooter is the flywheel plus the tilter that sets the shot angle.
type Shooter struct {
	guard
	flywheel  Motor
	tilter    Motor
	params    ShooterParams
	scheduler core.TickRegistrar

	monitor aimMonitor
	tilting bool
	angleOp operation
}

// NewShooter wraps the flywheel and tilter motors. The aim monitor
// registers itself with scheduler while armed.
func NewShooter(flywheel, tilter Motor, params ShooterParams, scheduler core.TickRegistrar, deps Deps) *Shooter {
	return &Shooter{
		guard:     newGuard(primitives.Shooter, deps),
		flywheel:  flywheel,
		tilter:    tilter,
		params:    params,
		scheduler: scheduler,
	}
}

// Prepare spins the flywheel to velocity, tilts to angle and arms the aim
// monitor. Each tick the monitor re-issues the angle command while the
// tilter is off target; once it is on target the monitor signals event as
// soon as the flywheel is at speed or the timeout has passed.
func (s *Shooter) Prepare(owner string, velocity, angle float64, event *primitives.Event, timeout time.Duration) {
	if !s.permit(owner, "Prepare", event) {
		return
	}
	now := s.clock.Now()
	s.flywheel.SetTarget(velocity)
	s.tilter.SetTarget(angle)

	s.stopMonitor(primitives.Canceled, nil)
	s.monitor = aimMonitor{armed: true, owner: owner, angle: angle, event: event}
	if timeout > 0 {
		s.monitor.deadline = now.Add(timeout)
	}
	if s.scheduler != nil {
		s.scheduler.Register(MonitorName, MonitorPriority, s.monitorTick)
	}
	s.log.WithFields(logrus.Fields{
		"owner":    owner,
		"velocity": velocity,
		"angle":    angle,
		"timeout":  timeout,
	}).Debug("Preparing to shoot")
}

// SetVelocity sets the flywheel target in rev/s.
func (s *Shooter) SetVelocity(owner string, velocity float64) {
	if !s.permit(owner, "SetVelocity", nil) {
		return
	}
	s.flywheel.SetTarget(velocity)
}

// SetAngle tilts to angle. event is signaled on arrival or timeout.
func (s *Shooter) SetAngle(owner string, angle float64, event *primitives.Event, timeout time.Duration) {
	if !s.permit(owner, "SetAngle", event) {
		return
	}
	s.tilter.SetTarget(angle)
	s.tilting = true
	s.angleOp.begin(event, s.clock.Now(), timeout)
}

// Velocity returns the flywheel velocity.
func (s *Shooter) Velocity() float64 { return s.flywheel.Value() }

// Angle returns the tilter angle.
func (s *Shooter) Angle() float64 { return s.tilter.Value() }

// IsMonitoring reports whether the aim monitor is armed.
func (s *Shooter) IsMonitoring() bool { return s.monitor.armed }

// Stop spins down the flywheel, stops the tilter and disarms the aim
// monitor. Pending events are signaled Canceled.
func (s *Shooter) Stop(owner string) {
	if !s.permit(owner, "Stop", nil) {
		return
	}
	s.flywheel.Stop()
	s.tilter.Stop()
	s.tilting = false
	s.angleOp.finish(primitives.Canceled, nil)
	s.stopMonitor(primitives.Canceled, nil)
}

// Tick completes a pending SetAngle.
func (s *Shooter) Tick(tick primitives.Tick) {
	if !s.tilting {
		return
	}
	if s.angleOp.poll(tick.Now, onTarget(s.tilter, s.params.AngleTolerance)) {
		s.tilting = false
	}
}

func (s *Shooter) monitorTick(tick primitives.Tick) {
	m := &s.monitor
	if !m.armed {
		return
	}

	if math.Abs(s.tilter.Value()-m.angle) > s.params.AngleTolerance {
		if m.offSince.IsZero() {
			m.offSince = tick.Now
		} else if s.params.AngleStuckTimeout > 0 && tick.Now.Sub(m.offSince) >= s.params.AngleStuckTimeout {
			s.log.WithFields(logrus.Fields{"owner": m.owner, "angle": s.tilter.Value(), "target": m.angle}).Warn("Tilter stuck off target")
			s.stopMonitor(primitives.Failed, ErrAngleStuck)
			return
		}
		if s.registry != nil && !s.registry.Validate(m.owner, s.id) {
			s.stopMonitor(primitives.Canceled, nil)
			return
		}
		s.tilter.SetTarget(m.angle)
		return
	}
	m.offSince = time.Time{}

	switch {
	case onTarget(s.flywheel, s.params.VelocityTolerance):
		s.stopMonitor(primitives.Success, nil)
	case !m.deadline.IsZero() && !tick.Now.Before(m.deadline):
		s.log.WithFields(logrus.Fields{"owner": m.owner, "velocity": s.flywheel.Value()}).Warn("Flywheel not at speed before deadline")
		s.stopMonitor(primitives.TimedOut, core.ErrTimeout)
	}
}

func (s *Shooter) stopMonitor(outcome primitives.Outcome, err error) {
	if !s.monitor.armed {
		return
	}
	event := s.monitor.event
	s.monitor = aimMonitor{}
	if s.scheduler != nil {
		s.scheduler.Unregister(MonitorName)
	}
	if event != nil {
		event.SignalWith(outcome, err)
	}
}
