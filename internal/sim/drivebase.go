package sim

import (
	"math"
	"sync"
	"time"

	"github.com/comalice/autotask/subsystem"
)

// DriveBase turns to face its goal and moves toward it at a fixed speed.
type DriveBase struct {
	speed float64

	mu      sync.Mutex
	pose    subsystem.Pose
	goal    subsystem.Pose
	driving bool
}

func NewDriveBase(start subsystem.Pose, speed float64) *DriveBase {
	return &DriveBase{pose: start, speed: speed}
}

func (b *DriveBase) DriveToward(target subsystem.Pose) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.goal = target
	b.driving = true
}

func (b *DriveBase) Pose() subsystem.Pose {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.pose
}

func (b *DriveBase) Stop() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.driving = false
}

// Step moves the base by dt toward its goal. The goal is cleared after
// each step; the façade renews it every tick.
func (b *DriveBase) Step(dt time.Duration) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if !b.driving {
		return
	}
	b.driving = false
	d := b.pose.DistanceTo(b.goal)
	if d == 0 {
		return
	}
	b.pose.Heading = math.Atan2(b.goal.Y-b.pose.Y, b.goal.X-b.pose.X)
	move := math.Min(d, b.speed*dt.Seconds())
	b.pose.X += math.Cos(b.pose.Heading) * move
	b.pose.Y += math.Sin(b.pose.Heading) * move
}
