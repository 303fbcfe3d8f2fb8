package autotask

import (
	"context"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/comalice/autotask/behavior"
	"github.com/comalice/autotask/config"
	"github.com/comalice/autotask/internal/core"
	"github.com/comalice/autotask/internal/command"
	"github.com/comalice/autotask/internal/primitives"
	"github.com/comalice/autotask/internal/production"
	"github.com/comalice/autotask/internal/sim"
	"github.com/comalice/autotask/realtime"
	"github.com/comalice/autotask/subsystem"
)

// Tick priorities. Façades apply commands before tasks read them back; the
// simulated world integrates last.
const (
	FacadePriority    = 100
	DashboardPriority = -150
	WorldPriority     = -200
)

// Hardware is the set of devices a Robot drives. Detector may be nil.
type Hardware struct {
	Base     subsystem.DriveBase
	Flywheel subsystem.Motor
	Tilter   subsystem.Motor
	Intake   subsystem.Motor
	Climber  subsystem.Motor
	Sensor   subsystem.ObjectSensor
	Detector subsystem.Detector
}

// Option configures a Robot.
type Option func(*robotOptions)

type robotOptions struct {
	log        logrus.FieldLogger
	clock      primitives.Clock
	publishers []core.StatusPublisher
}

// WithLogger sets the logger.
func WithLogger(log logrus.FieldLogger) Option {
	return func(o *robotOptions) { o.log = log }
}

// WithClock sets the clock used by the scheduler, the façades and every task.
func WithClock(clock primitives.Clock) Option {
	return func(o *robotOptions) { o.clock = clock }
}

// WithPublisher adds a status publisher next to the dashboard.
func WithPublisher(p core.StatusPublisher) Option {
	return func(o *robotOptions) { o.publishers = append(o.publishers, p) }
}

// Robot owns the scheduler, registry, façades and behaviors. Climber and
// Climb are nil when the climber is disabled in the configuration.
type Robot struct {
	cfg   config.Config
	log   logrus.FieldLogger
	clock primitives.Clock

	Scheduler *realtime.Scheduler
	Registry  *core.Registry
	Dashboard *production.Dashboard

	Drive   *subsystem.Drivetrain
	Intake  *subsystem.Intake
	Shooter *subsystem.Shooter
	Climber *subsystem.Climber

	Pickup *behavior.Pickup
	Score  *behavior.Score
	Climb  *behavior.Climb
	Auto   *behavior.Auto
}

// New wires a robot over hw. Nothing runs until Run or Step.
func New(cfg config.Config, hw Hardware, opts ...Option) (*Robot, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	o := robotOptions{log: logrus.StandardLogger(), clock: primitives.SystemClock{}}
	for _, opt := range opts {
		opt(&o)
	}

	r := &Robot{
		cfg:       cfg,
		log:       o.log,
		clock:     o.clock,
		Registry:  core.NewRegistry(o.log),
		Dashboard: production.NewDashboard(),
	}
	r.Scheduler = realtime.NewScheduler(realtime.Config{
		TickRate:    cfg.Scheduler.TickRate,
		SlowDivisor: cfg.Scheduler.SlowDivisor,
		MaxPosted:   cfg.Scheduler.MaxPosted,
		Clock:       o.clock,
		Logger:      o.log,
	})

	deps := subsystem.Deps{Registry: r.Registry, Clock: o.clock, Logger: o.log}
	r.Drive = subsystem.NewDrivetrain(hw.Base, cfg.Drive.Tolerance, deps)
	r.Intake = subsystem.NewIntake(hw.Intake, hw.Sensor, deps)
	r.Shooter = subsystem.NewShooter(hw.Flywheel, hw.Tilter, subsystem.ShooterParams{
		VelocityTolerance: cfg.Shooter.VelocityTolerance,
		AngleTolerance:    cfg.Shooter.AngleTolerance,
		AngleStuckTimeout: cfg.Shooter.AngleStuckTimeout,
	}, r.Scheduler, deps)
	facades := []subsystem.Actuator{r.Drive, r.Intake, r.Shooter}
	if cfg.Subsystems.Climber && hw.Climber != nil {
		r.Climber = subsystem.NewClimber(hw.Climber, subsystem.ClimberLimits{
			Min:       cfg.Climber.Min,
			Max:       cfg.Climber.Max,
			Tolerance: cfg.Climber.Tolerance,
		}, deps)
		facades = append(facades, r.Climber)
	}
	for _, f := range facades {
		r.Scheduler.Register(f.ResourceID().String(), FacadePriority, f.Tick)
	}

	publisher := append(production.MultiPublisher{r.Dashboard}, o.publishers...)
	env := behavior.Env{
		Registry:  r.Registry,
		Scheduler: r.Scheduler,
		Clock:     o.clock,
		Logger:    o.log,
		Publisher: publisher,
	}
	if err := r.buildBehaviors(env, hw); err != nil {
		return nil, err
	}

	r.Scheduler.Register("dashboard", DashboardPriority, r.refreshDashboard)
	return r, nil
}

func (r *Robot) buildBehaviors(env behavior.Env, hw Hardware) error {
	detector := hw.Detector
	if !r.cfg.Subsystems.Detector {
		detector = nil
	}

	var err error
	r.Pickup, err = behavior.NewPickup(env, r.Drive, r.Intake, r.Shooter, detector, behavior.PickupParams{
		Timeout:       r.cfg.Pickup.Timeout,
		DriveTimeout:  r.cfg.Pickup.DriveTimeout,
		TuckTimeout:   r.cfg.Pickup.TuckTimeout,
		MinConfidence: r.cfg.Pickup.MinConfidence,
		Retarget:      r.cfg.Pickup.Retarget,
		CollectPower:  r.cfg.Intake.CollectPower,
		TurtleAngle:   r.cfg.Shooter.TurtleAngle,
	})
	if err != nil {
		return fmt.Errorf("pickup: %w", err)
	}
	r.Score, err = behavior.NewScore(env, r.Shooter, r.Intake, behavior.ScoreParams{
		MonitorTimeout: r.cfg.Shooter.MonitorTimeout,
		FeedPower:      r.cfg.Intake.FeedPower,
		FeedDuration:   r.cfg.Intake.FeedDuration,
	})
	if err != nil {
		return fmt.Errorf("score: %w", err)
	}
	if r.Climber != nil {
		r.Climb, err = behavior.NewClimb(env, r.Climber, behavior.ClimbParams{
			Extend:  r.cfg.Climber.Extend,
			Retract: r.cfg.Climber.Retract,
			Timeout: r.cfg.Climber.Timeout,
		})
		if err != nil {
			return fmt.Errorf("climb: %w", err)
		}
	}
	r.Auto, err = behavior.NewAuto(env, r.Score, r.Pickup, behavior.AutoParams{
		StartDelay:   r.cfg.Auto.StartDelay,
		ScorePreload: r.cfg.Auto.ScorePreload,
		Pickup:       r.cfg.Auto.Pickup,
		ScorePickup:  r.cfg.Auto.ScorePickup,
		Shot:         r.shot(),
		ScoreTimeout: r.cfg.Auto.ScoreTimeout,
		Timeout:      r.cfg.Auto.Timeout,
	})
	if err != nil {
		return fmt.Errorf("auto: %w", err)
	}
	return nil
}

// NewSimRobot wires a robot to a simulated world built from cfg.Sim. The
// world is ticked by the robot's scheduler after every task.
func NewSimRobot(cfg config.Config, opts ...Option) (*Robot, *sim.World, error) {
	world := sim.NewWorld(SimWorldConfig(cfg.Sim))
	r, err := New(cfg, Hardware{
		Base:     world.Base,
		Flywheel: world.Flywheel,
		Tilter:   world.Tilter,
		Intake:   world.Intake,
		Climber:  world.Climber,
		Sensor:   world.Sensor(),
		Detector: world.Camera(),
	}, opts...)
	if err != nil {
		return nil, nil, err
	}
	r.Scheduler.Register("world", WorldPriority, world.Tick)
	return r, world, nil
}

// SimWorldConfig converts the sim configuration section.
func SimWorldConfig(c config.SimConfig) sim.Config {
	return sim.Config{
		Start:         c.Start,
		Preloaded:     c.Preloaded,
		Notes:         c.Notes,
		DriveSpeed:    c.DriveSpeed,
		FlywheelRate:  c.FlywheelRate,
		TilterRate:    c.TilterRate,
		TilterStart:   c.TilterStart,
		IntakeRate:    c.IntakeRate,
		ClimberRate:   c.ClimberRate,
		CaptureRadius: c.CaptureRadius,
		FeedTime:      c.FeedTime,
		CameraRange:   c.CameraRange,
		CameraFOV:     c.CameraFOV,
	}
}

// Config returns the configuration the robot was built with.
func (r *Robot) Config() config.Config { return r.cfg }

// Behaviors returns every task the robot runs.
func (r *Robot) Behaviors() []behavior.Behavior {
	tasks := []behavior.Behavior{r.Auto, r.Pickup, r.Score}
	if r.Climb != nil {
		tasks = append(tasks, r.Climb)
	}
	return tasks
}

// StartAuto restarts the mode clock and runs the autonomous routine.
func (r *Robot) StartAuto(event *primitives.Event) error {
	r.Scheduler.ResetModeStart()
	return r.Auto.Start(event)
}

// StartPickup runs the ground pickup.
func (r *Robot) StartPickup(event *primitives.Event) error {
	return r.Pickup.Start(event)
}

// StartScore scores the held piece with the configured autonomous shot.
func (r *Robot) StartScore(event *primitives.Event) error {
	return r.Score.Start(r.shot(), event, r.cfg.Auto.ScoreTimeout)
}

// StartClimb extends or retracts the climber.
func (r *Robot) StartClimb(direction behavior.ClimbDirection, event *primitives.Event) error {
	if r.Climb == nil {
		if event != nil {
			event.SignalWith(primitives.Failed, core.ErrUnavailable)
		}
		return fmt.Errorf("climb: %w", core.ErrUnavailable)
	}
	return r.Climb.Start(direction, event)
}

// CancelAll cancels every active task without signaling completions.
func (r *Robot) CancelAll() {
	for _, b := range r.Behaviors() {
		b.Cancel(false)
	}
}

// Snapshot captures ownership and task state under name. It must run on
// the scheduler goroutine; use SnapshotAsync from elsewhere.
func (r *Robot) Snapshot(name string) production.Snapshot {
	snap := production.Snapshot{
		Name:   name,
		Time:   r.clock.Now(),
		Tick:   r.Scheduler.TickNumber(),
		Owners: r.Registry.Snapshot(),
	}
	for _, b := range r.Behaviors() {
		snap.Tasks = append(snap.Tasks, b.Describe())
	}
	return snap
}

// SnapshotAsync posts a snapshot request to the loop and waits for it.
func (r *Robot) SnapshotAsync(ctx context.Context, name string) (production.Snapshot, error) {
	out := make(chan production.Snapshot, 1)
	if err := r.Post(func() { out <- r.Snapshot(name) }); err != nil {
		return production.Snapshot{}, err
	}
	select {
	case snap := <-out:
		return snap, nil
	case <-ctx.Done():
		return production.Snapshot{}, ctx.Err()
	}
}

// Post queues fn for the start of the next tick.
func (r *Robot) Post(fn func()) error {
	return r.Scheduler.Post(fn)
}

// Step runs one tick on the calling goroutine.
func (r *Robot) Step() {
	r.Scheduler.Step()
}

// Run ticks until ctx is done, then cancels every task on the loop and stops
// the scheduler.
func (r *Robot) Run(ctx context.Context) error {
	if err := r.Scheduler.Start(ctx); err != nil {
		return err
	}
	r.log.WithField("tick_rate", r.Scheduler.TickRate()).Info("Robot running")
	<-ctx.Done()

	// ctx also ends the tick loop; tasks are canceled here once it has exited.
	if err := r.Scheduler.Stop(); err != nil {
		return err
	}
	r.CancelAll()
	r.log.Info("Robot stopped")
	return nil
}

// Commands returns the command table for scripted starts and cancels:
// auto, pickup, score, extend and retract, plus "all" which only cancels.
func (r *Robot) Commands() command.Table {
	start := func(name string, fn func(*primitives.Event) error) func() {
		return func() {
			if err := fn(nil); err != nil {
				r.log.WithError(err).WithField("task", name).Warn("Command rejected")
			}
		}
	}
	table := command.Table{
		"auto":   {Start: start("auto", r.StartAuto), Cancel: func() { r.Auto.Cancel(true) }},
		"pickup": {Start: start("pickup", r.StartPickup), Cancel: func() { r.Pickup.Cancel(true) }},
		"score":  {Start: start("score", r.StartScore), Cancel: func() { r.Score.Cancel(true) }},
		"all":    {Cancel: r.CancelAll},
	}
	if r.Climb != nil {
		cancel := func() { r.Climb.Cancel(true) }
		table["extend"] = command.Handler{Start: start("climb", func(e *primitives.Event) error {
			return r.StartClimb(behavior.Extend, e)
		}), Cancel: cancel}
		table["retract"] = command.Handler{Start: start("climb", func(e *primitives.Event) error {
			return r.StartClimb(behavior.Retract, e)
		}), Cancel: cancel}
	}
	return table
}

func (r *Robot) shot() behavior.Shot {
	return behavior.Shot{Velocity: r.cfg.Auto.ShotVelocity, Angle: r.cfg.Auto.ShotAngle}
}

func (r *Robot) refreshDashboard(tick primitives.Tick) {
	if !tick.Slow {
		return
	}
	pose := r.Drive.Pose()
	r.Dashboard.Printf(0, "t=%s tick=%d", tick.Elapsed.Truncate(time.Millisecond), tick.Number)
	r.Dashboard.Printf(1, "pose x=%.2f y=%.2f heading=%.2f", pose.X, pose.Y, pose.Heading)
	r.Dashboard.Printf(2, "shooter v=%.1f angle=%.1f piece=%t", r.Shooter.Velocity(), r.Shooter.Angle(), r.Intake.HasObject())
	owners := r.Registry.Snapshot()
	for i, id := range primitives.AllResources() {
		owner, ok := owners[id]
		if !ok {
			owner = "-"
		}
		r.Dashboard.Printf(3+i, "%s: %s", id, owner)
	}
}
