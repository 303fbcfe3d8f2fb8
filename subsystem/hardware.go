// Package subsystem provides ownership-aware façades over the robot's
// actuators and sensors.
//
// A façade wraps the low-level drivers (motors, drive base, sensors) behind
// commands that take the caller's owner id. Commands from a caller that does
// not own the resource are dropped and logged. Asynchronous commands take an
// optional completion event and timeout and are polled from the façade's
// Tick, which the robot registers with the scheduler.
package subsystem

import (
	"math"

	"github.com/comalice/autotask/internal/primitives"
)

// Motor is a closed-loop actuator driver. The control loop itself lives
// below this interface; the façade only sets targets and reads back values.
type Motor interface {
	SetTarget(target float64)
	Target() float64
	Value() float64
	Stop()
}

// Pose is a field position in meters with heading in radians.
type Pose struct {
	X       float64 `yaml:"x" mapstructure:"x"`
	Y       float64 `yaml:"y" mapstructure:"y"`
	Heading float64 `yaml:"heading" mapstructure:"heading"`
}

// DistanceTo returns the straight-line distance between two poses.
func (p Pose) DistanceTo(other Pose) float64 {
	return math.Hypot(other.X-p.X, other.Y-p.Y)
}

// DriveBase moves the robot. DriveToward is called once per tick with the
// current goal; the base decides how far to move in that cycle.
type DriveBase interface {
	DriveToward(target Pose)
	Pose() Pose
	Stop()
}

// ObjectSensor reports whether a game piece is present.
type ObjectSensor interface {
	Active() bool
}

// Candidate is a detected game piece relative to the robot.
type Candidate struct {
	Bearing    float64 // radians, relative to robot heading
	Distance   float64 // meters
	Confidence float64
}

// Detector returns the best current game piece detection, if any.
type Detector interface {
	BestCandidate() (Candidate, bool)
}

// Actuator is the surface every façade shares.
type Actuator interface {
	ResourceID() primitives.ResourceID
	Stop(owner string)
	Tick(tick primitives.Tick)
}

// PoseOf projects a detection into field coordinates from the robot pose.
func PoseOf(robot Pose, c Candidate) Pose {
	heading := robot.Heading + c.Bearing
	return Pose{
		X:       robot.X + c.Distance*math.Cos(heading),
		Y:       robot.Y + c.Distance*math.Sin(heading),
		Heading: heading,
	}
}

func onTarget(m Motor, tolerance float64) bool {
	return math.Abs(m.Value()-m.Target()) <= tolerance
}
