package subsystem

import (
	"time"

	"github.com/sirupsen/logrus"

	"github.com/comalice/autotask/internal/primitives"
)

type intakeMode int

const (
	intakeIdle intakeMode = iota
	intakeCollecting
	intakeEjecting
)

// Intake is the roller conveyor that collects game pieces from the ground
// and feeds them into the shooter.
type Intake struct {
	guard
	motor  Motor
	sensor ObjectSensor

	mode    intakeMode
	ejectAt time.Time
	op      operation
}

// NewIntake wraps the conveyor motor and the entry sensor.
func NewIntake(motor Motor, sensor ObjectSensor, deps Deps) *Intake {
	return &Intake{
		guard:  newGuard(primitives.Intake, deps),
		motor:  motor,
		sensor: sensor,
	}
}

// Collect runs the conveyor at power until a game piece trips the sensor,
// then stops and signals event. If a piece is already held it signals
// immediately.
func (i *Intake) Collect(owner string, power float64, event *primitives.Event, timeout time.Duration) {
	if !i.permit(owner, "Collect", event) {
		return
	}
	i.op.begin(event, i.clock.Now(), timeout)
	if i.sensor.Active() {
		i.op.finish(primitives.Success, nil)
		return
	}
	i.mode = intakeCollecting
	i.motor.SetTarget(power)
	i.log.WithFields(logrus.Fields{"owner": owner, "power": power}).Debug("Intake collecting")
}

// Eject runs the conveyor at power for d to feed the held piece out, then
// stops and signals event.
func (i *Intake) Eject(owner string, power float64, d time.Duration, event *primitives.Event) {
	if !i.permit(owner, "Eject", event) {
		return
	}
	now := i.clock.Now()
	i.op.begin(event, now, 0)
	i.mode = intakeEjecting
	i.ejectAt = now.Add(d)
	i.motor.SetTarget(power)
	i.log.WithFields(logrus.Fields{"owner": owner, "power": power, "duration": d}).Debug("Intake ejecting")
}

// HasObject reports whether the sensor sees a game piece.
func (i *Intake) HasObject() bool { return i.sensor.Active() }

// IsRunning reports whether the conveyor is collecting or ejecting.
func (i *Intake) IsRunning() bool { return i.mode != intakeIdle }

// Stop turns the conveyor off and cancels any pending command.
func (i *Intake) Stop(owner string) {
	if !i.permit(owner, "Stop", nil) {
		return
	}
	i.halt()
	i.op.finish(primitives.Canceled, nil)
}

// Tick completes a pending collect or eject.
func (i *Intake) Tick(tick primitives.Tick) {
	switch i.mode {
	case intakeCollecting:
		if i.op.poll(tick.Now, i.sensor.Active()) {
			i.halt()
		}
	case intakeEjecting:
		if i.op.poll(tick.Now, !tick.Now.Before(i.ejectAt)) {
			i.halt()
		}
	}
}

func (i *Intake) halt() {
	i.mode = intakeIdle
	i.motor.Stop()
}
