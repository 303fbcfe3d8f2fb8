package behavior

import (
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/time/rate"

	"github.com/comalice/autotask/internal/core"
	"github.com/comalice/autotask/internal/primitives"
	"github.com/comalice/autotask/subsystem"
)

// PickupState is a state of the ground pickup task.
type PickupState int

const (
	PickupStart PickupState = iota
	PickupDetect
	PickupPrep
	PickupDrive
	PickupDone
)

func (s PickupState) String() string {
	switch s {
	case PickupStart:
		return "START"
	case PickupDetect:
		return "DETECT_NOTE"
	case PickupPrep:
		return "PREP_TO_DRIVE"
	case PickupDrive:
		return "DRIVE_TO_NOTE"
	case PickupDone:
		return "DONE"
	}
	return "UNKNOWN"
}

// retargetDistance is how far a fresh detection must move before the
// pickup re-homes on it.
const retargetDistance = 0.25

// PickupParams configures the ground pickup.
type PickupParams struct {
	Timeout       time.Duration // whole activation; zero means none
	DriveTimeout  time.Duration
	TuckTimeout   time.Duration // shooter to turtle angle; zero waits for the activation deadline
	MinConfidence float64
	Retarget      bool
	CollectPower  float64
	TurtleAngle   float64
}

// Pickup finds a game piece with the detector, tucks the shooter, runs the
// intake and drives onto the piece.
type Pickup struct {
	task     *core.Task[PickupState]
	drive    *subsystem.Drivetrain
	intake   *subsystem.Intake
	shooter  *subsystem.Shooter
	detector subsystem.Detector
	params   PickupParams
	log      logrus.FieldLogger
	noTarget *rate.Sometimes

	target  subsystem.Pose
	tucked  *primitives.Event
	arrived *primitives.Event
	driving bool
}

// NewPickup creates the pickup task. detector may be nil, in which case
// every activation finishes immediately.
func NewPickup(env Env, drive *subsystem.Drivetrain, intake *subsystem.Intake, shooter *subsystem.Shooter,
	detector subsystem.Detector, params PickupParams) (*Pickup, error) {
	p := &Pickup{
		drive:    drive,
		intake:   intake,
		shooter:  shooter,
		detector: detector,
		params:   params,
		log:      env.logger().WithField("task", "pickup"),
		noTarget: &rate.Sometimes{Interval: time.Second},
	}
	task, err := core.NewTask(core.Definition[PickupState]{
		Name:      "pickup",
		Resources: []primitives.ResourceID{primitives.Drivetrain, primitives.Intake, primitives.Shooter},
		Initial:   PickupStart,
		Terminal:  PickupDone,
		States: map[PickupState]core.Handler[PickupState]{
			PickupStart:  p.start,
			PickupDetect: p.detect,
			PickupPrep:   p.prep,
			PickupDrive:  p.driveToNote,
		},
		OnStart:       p.reset,
		StopActuators: p.stop,
	}, env.Registry, env.options()...)
	if err != nil {
		return nil, err
	}
	p.task = task
	return p, nil
}

func (p *Pickup) Name() string               { return p.task.Name() }
func (p *Pickup) IsActive() bool             { return p.task.IsActive() }
func (p *Pickup) Cancel(notify bool)         { p.task.Cancel(notify) }
func (p *Pickup) Describe() core.TaskStatus  { return p.task.Describe() }
func (p *Pickup) State() (PickupState, bool) { return p.task.State() }

// Start begins a pickup. event is signaled when the activation ends.
func (p *Pickup) Start(event *primitives.Event) error {
	return p.task.Start(event, p.params.Timeout)
}

// Target returns the field pose the pickup is driving to.
func (p *Pickup) Target() subsystem.Pose { return p.target }

// HasPiece reports whether the intake holds a game piece. A pickup that
// reached its target without collecting one still ends with Success.
func (p *Pickup) HasPiece() bool { return p.intake.HasObject() }

func (p *Pickup) reset(string) error {
	p.target = subsystem.Pose{}
	p.tucked = primitives.NewEvent("pickup.tucked")
	p.arrived = primitives.NewEvent("pickup.arrived")
	p.driving = false
	return nil
}

func (p *Pickup) stop(owner string) {
	p.drive.Stop(owner)
	p.intake.Stop(owner)
	p.shooter.Stop(owner)
}

func (p *Pickup) start(sm *core.StateMachine[PickupState], _ primitives.Tick) error {
	if p.detector == nil {
		p.log.Warn("No object detector, nothing to pick up")
		sm.SetState(PickupDone)
		return nil
	}
	sm.SetState(PickupDetect)
	return nil
}

func (p *Pickup) detect(sm *core.StateMachine[PickupState], _ primitives.Tick) error {
	target, ok := p.locate()
	if !ok {
		p.noTarget.Do(func() { p.log.Debug("No game piece in view yet") })
		return nil
	}
	p.target = target
	p.log.WithFields(logrus.Fields{"x": target.X, "y": target.Y}).Info("Found game piece")
	sm.SetState(PickupPrep)
	return nil
}

func (p *Pickup) prep(sm *core.StateMachine[PickupState], _ primitives.Tick) error {
	owner := p.task.Owner()
	p.shooter.SetAngle(owner, p.params.TurtleAngle, p.tucked, p.params.TuckTimeout)
	p.intake.Collect(owner, p.params.CollectPower, nil, 0)
	sm.WaitForEvent(p.tucked, PickupDrive, 0)
	return nil
}

func (p *Pickup) driveToNote(sm *core.StateMachine[PickupState], _ primitives.Tick) error {
	owner := p.task.Owner()
	if !p.driving {
		p.drive.DriveTo(owner, p.target, p.arrived, p.params.DriveTimeout)
		p.driving = true
		return nil
	}

	if p.intake.HasObject() {
		p.log.Info("Picked up game piece")
		sm.SetState(PickupDone)
		return nil
	}
	if p.arrived.IsSignaled() {
		outcome, _ := p.arrived.Outcome()
		p.log.WithField("drive", outcome).Warn("Reached target without a game piece")
		sm.SetState(PickupDone)
		return nil
	}

	if p.params.Retarget {
		if target, ok := p.locate(); ok && target.DistanceTo(p.target) > retargetDistance {
			p.log.WithFields(logrus.Fields{"x": target.X, "y": target.Y}).Debug("Retargeting")
			p.target = target
			p.arrived = primitives.NewEvent("pickup.arrived")
			p.drive.DriveTo(owner, target, p.arrived, p.params.DriveTimeout)
		}
	}
	return nil
}

func (p *Pickup) locate() (subsystem.Pose, bool) {
	c, ok := p.detector.BestCandidate()
	if !ok || c.Confidence < p.params.MinConfidence {
		return subsystem.Pose{}, false
	}
	return subsystem.PoseOf(p.drive.Pose(), c), true
}
