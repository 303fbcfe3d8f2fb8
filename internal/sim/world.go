package sim

import (
	"math"
	"sync"
	"time"

	"github.com/comalice/autotask/internal/primitives"
	"github.com/comalice/autotask/subsystem"
)

// Config sizes the simulated robot and field.
type Config struct {
	Start         subsystem.Pose
	Preloaded     bool // robot starts holding a game piece
	Notes         []subsystem.Pose
	DriveSpeed    float64 // m/s
	FlywheelRate  float64 // rev/s per second
	TilterRate    float64 // degrees per second
	TilterStart   float64 // degrees
	IntakeRate    float64 // power per second
	ClimberRate   float64 // spool units per second
	CaptureRadius float64 // m; intake picks up notes inside this radius
	FeedTime      time.Duration
	CameraRange   float64 // m
	CameraFOV     float64 // radians, full width
}

// World is the simulated robot on a field of game pieces.
type World struct {
	cfg Config

	Flywheel *Motor
	Tilter   *Motor
	Intake   *Motor
	Climber  *Motor
	Base     *DriveBase

	mu       sync.Mutex
	notes    []subsystem.Pose
	holding  bool
	fed      time.Duration
	shots    int
	lastTick time.Time
}

// NewWorld creates a world from cfg.
func NewWorld(cfg Config) *World {
	return &World{
		cfg:      cfg,
		Flywheel: NewVelocityMotor("flywheel", cfg.FlywheelRate),
		Tilter:   NewPositionMotor("tilter", cfg.TilterRate, cfg.TilterStart),
		Intake:   NewVelocityMotor("intake", cfg.IntakeRate),
		Climber:  NewPositionMotor("climber", cfg.ClimberRate, 0),
		Base:     NewDriveBase(cfg.Start, cfg.DriveSpeed),
		notes:    append([]subsystem.Pose(nil), cfg.Notes...),
		holding:  cfg.Preloaded,
	}
}

// Tick advances every model by the time since the previous tick.
func (w *World) Tick(tick primitives.Tick) {
	w.mu.Lock()
	var dt time.Duration
	if !w.lastTick.IsZero() {
		dt = tick.Now.Sub(w.lastTick)
	}
	w.lastTick = tick.Now
	w.mu.Unlock()

	w.Step(dt)
}

// Step advances every model by dt.
func (w *World) Step(dt time.Duration) {
	for _, m := range []*Motor{w.Flywheel, w.Tilter, w.Intake, w.Climber} {
		m.Step(dt)
	}
	w.Base.Step(dt)

	w.mu.Lock()
	defer w.mu.Unlock()
	running := math.Abs(w.Intake.Value()) > 0.05
	switch {
	case w.holding && running:
		w.fed += dt
		if w.fed >= w.cfg.FeedTime {
			w.holding = false
			w.fed = 0
			w.shots++
		}
	case !w.holding && running:
		pose := w.Base.Pose()
		for i, note := range w.notes {
			if pose.DistanceTo(note) <= w.cfg.CaptureRadius {
				w.notes = append(w.notes[:i], w.notes[i+1:]...)
				w.holding = true
				w.fed = 0
				break
			}
		}
	}
}

// Shots returns how many game pieces have been fed out.
func (w *World) Shots() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.shots
}

// Notes returns the game pieces still on the field.
func (w *World) Notes() []subsystem.Pose {
	w.mu.Lock()
	defer w.mu.Unlock()
	return append([]subsystem.Pose(nil), w.notes...)
}

// Sensor returns the intake entry sensor.
func (w *World) Sensor() subsystem.ObjectSensor { return worldSensor{w} }

// Camera returns a detector that sees notes in front of the robot.
func (w *World) Camera() subsystem.Detector { return worldCamera{w} }

type worldSensor struct{ w *World }

func (s worldSensor) Active() bool {
	s.w.mu.Lock()
	defer s.w.mu.Unlock()
	return s.w.holding
}

type worldCamera struct{ w *World }

func (c worldCamera) BestCandidate() (subsystem.Candidate, bool) {
	w := c.w
	pose := w.Base.Pose()
	w.mu.Lock()
	defer w.mu.Unlock()

	var best subsystem.Candidate
	found := false
	for _, note := range w.notes {
		d := pose.DistanceTo(note)
		if d > w.cfg.CameraRange {
			continue
		}
		bearing := normalizeAngle(math.Atan2(note.Y-pose.Y, note.X-pose.X) - pose.Heading)
		if math.Abs(bearing) > w.cfg.CameraFOV/2 {
			continue
		}
		if !found || d < best.Distance {
			best = subsystem.Candidate{Bearing: bearing, Distance: d, Confidence: 1 - d/w.cfg.CameraRange}
			found = true
		}
	}
	return best, found
}

func normalizeAngle(a float64) float64 {
	for a > math.Pi {
		a -= 2 * math.Pi
	}
	for a < -math.Pi {
		a += 2 * math.Pi
	}
	return a
}
