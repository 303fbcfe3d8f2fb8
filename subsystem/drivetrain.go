package subsystem

import (
	"time"

	"github.com/sirupsen/logrus"

	"github.com/comalice/autotask/internal/primitives"
)

// Drivetrain drives the robot to field poses.
type Drivetrain struct {
	guard
	base      DriveBase
	tolerance float64

	target  Pose
	driving bool
	op      operation
}

// NewDrivetrain wraps base. tolerance is the arrival radius in meters.
func NewDrivetrain(base DriveBase, tolerance float64, deps Deps) *Drivetrain {
	return &Drivetrain{
		guard:     newGuard(primitives.Drivetrain, deps),
		base:      base,
		tolerance: tolerance,
	}
}

// DriveTo starts driving toward target. event is signaled Success on
// arrival, or TimedOut if timeout is positive and elapses first.
func (d *Drivetrain) DriveTo(owner string, target Pose, event *primitives.Event, timeout time.Duration) {
	if !d.permit(owner, "DriveTo", event) {
		return
	}
	d.target = target
	d.driving = true
	d.op.begin(event, d.clock.Now(), timeout)
	d.log.WithFields(logrus.Fields{"owner": owner, "x": target.X, "y": target.Y}).Debug("Driving to pose")
}

// Stop halts the drive base and cancels any pending drive.
func (d *Drivetrain) Stop(owner string) {
	if !d.permit(owner, "Stop", nil) {
		return
	}
	d.halt()
	d.op.finish(primitives.Canceled, nil)
}

// Pose returns the robot's current field pose.
func (d *Drivetrain) Pose() Pose { return d.base.Pose() }

// Target returns the current drive goal and whether a drive is in progress.
func (d *Drivetrain) Target() (Pose, bool) { return d.target, d.driving }

// Tick feeds the goal to the drive base and completes the pending drive.
func (d *Drivetrain) Tick(tick primitives.Tick) {
	if !d.driving {
		return
	}
	arrived := d.base.Pose().DistanceTo(d.target) <= d.tolerance
	if !arrived {
		d.base.DriveToward(d.target)
	}
	if d.op.poll(tick.Now, arrived) || arrived {
		d.halt()
	}
}

func (d *Drivetrain) halt() {
	d.driving = false
	d.base.Stop()
}
