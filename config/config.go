// Package config loads the robot configuration once at process start.
//
// Values come from defaults, an optional YAML file and AUTOTASK_* environment
// overrides, in increasing order of precedence. The result is treated as
// immutable after Load returns.
package config

import (
	"fmt"
	"io"
	"math"
	"strings"
	"time"

	"github.com/hashicorp/go-multierror"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"

	"github.com/comalice/autotask/subsystem"
)

// EnvPrefix prefixes every environment override, e.g.
// AUTOTASK_SCHEDULER_TICK_RATE=10ms.
const EnvPrefix = "AUTOTASK"

// Config holds the robot configuration.
type Config struct {
	Scheduler  SchedulerConfig  `mapstructure:"scheduler" yaml:"scheduler"`
	Subsystems SubsystemsConfig `mapstructure:"subsystems" yaml:"subsystems"`
	Shooter    ShooterConfig    `mapstructure:"shooter" yaml:"shooter"`
	Drive      DriveConfig      `mapstructure:"drive" yaml:"drive"`
	Intake     IntakeConfig     `mapstructure:"intake" yaml:"intake"`
	Climber    ClimberConfig    `mapstructure:"climber" yaml:"climber"`
	Pickup     PickupConfig     `mapstructure:"pickup" yaml:"pickup"`
	Auto       AutoConfig       `mapstructure:"auto" yaml:"auto"`
	Sim        SimConfig        `mapstructure:"sim" yaml:"sim"`
}

// SchedulerConfig sets the control loop rate.
type SchedulerConfig struct {
	TickRate    time.Duration `mapstructure:"tick_rate" yaml:"tick_rate"`
	SlowDivisor int           `mapstructure:"slow_divisor" yaml:"slow_divisor"`
	MaxPosted   int           `mapstructure:"max_posted" yaml:"max_posted"`
}

// SubsystemsConfig enables optional hardware.
type SubsystemsConfig struct {
	Detector bool `mapstructure:"detector" yaml:"detector"`
	Climber  bool `mapstructure:"climber" yaml:"climber"`
}

// ShooterConfig holds shooter tolerances and the aim monitor settings.
type ShooterConfig struct {
	VelocityTolerance float64       `mapstructure:"velocity_tolerance" yaml:"velocity_tolerance"`
	AngleTolerance    float64       `mapstructure:"angle_tolerance" yaml:"angle_tolerance"`
	TurtleAngle       float64       `mapstructure:"turtle_angle" yaml:"turtle_angle"`
	MonitorTimeout    time.Duration `mapstructure:"monitor_timeout" yaml:"monitor_timeout"`
	AngleStuckTimeout time.Duration `mapstructure:"angle_stuck_timeout" yaml:"angle_stuck_timeout"`
}

// DriveConfig holds drivetrain settings.
type DriveConfig struct {
	Tolerance float64 `mapstructure:"tolerance" yaml:"tolerance"`
}

// IntakeConfig holds conveyor powers and the feed time used when shooting.
type IntakeConfig struct {
	CollectPower float64       `mapstructure:"collect_power" yaml:"collect_power"`
	FeedPower    float64       `mapstructure:"feed_power" yaml:"feed_power"`
	FeedDuration time.Duration `mapstructure:"feed_duration" yaml:"feed_duration"`
}

// ClimberConfig holds spool limits and the extend/retract positions.
type ClimberConfig struct {
	Min       float64       `mapstructure:"min" yaml:"min"`
	Max       float64       `mapstructure:"max" yaml:"max"`
	Extend    float64       `mapstructure:"extend" yaml:"extend"`
	Retract   float64       `mapstructure:"retract" yaml:"retract"`
	Tolerance float64       `mapstructure:"tolerance" yaml:"tolerance"`
	Timeout   time.Duration `mapstructure:"timeout" yaml:"timeout"`
}

// PickupConfig holds the ground pickup settings.
type PickupConfig struct {
	Timeout       time.Duration `mapstructure:"timeout" yaml:"timeout"`
	DriveTimeout  time.Duration `mapstructure:"drive_timeout" yaml:"drive_timeout"`
	TuckTimeout   time.Duration `mapstructure:"tuck_timeout" yaml:"tuck_timeout"`
	MinConfidence float64       `mapstructure:"min_confidence" yaml:"min_confidence"`
	// Retarget re-homes on a fresh detection while driving instead of
	// committing to the first one.
	Retarget bool `mapstructure:"retarget" yaml:"retarget"`
}

// AutoConfig holds the autonomous routine choices.
type AutoConfig struct {
	StartDelay   time.Duration `mapstructure:"start_delay" yaml:"start_delay"`
	ScorePreload bool          `mapstructure:"score_preload" yaml:"score_preload"`
	Pickup       bool          `mapstructure:"pickup" yaml:"pickup"`
	ScorePickup  bool          `mapstructure:"score_pickup" yaml:"score_pickup"`
	ShotVelocity float64       `mapstructure:"shot_velocity" yaml:"shot_velocity"`
	ShotAngle    float64       `mapstructure:"shot_angle" yaml:"shot_angle"`
	ScoreTimeout time.Duration `mapstructure:"score_timeout" yaml:"score_timeout"`
	Timeout      time.Duration `mapstructure:"timeout" yaml:"timeout"`
}

// SimConfig sizes the simulated robot used by the robotsim command.
type SimConfig struct {
	Start         subsystem.Pose   `mapstructure:"start" yaml:"start"`
	Preloaded     bool             `mapstructure:"preloaded" yaml:"preloaded"`
	Notes         []subsystem.Pose `mapstructure:"notes" yaml:"notes"`
	DriveSpeed    float64          `mapstructure:"drive_speed" yaml:"drive_speed"`
	FlywheelRate  float64          `mapstructure:"flywheel_rate" yaml:"flywheel_rate"`
	TilterRate    float64          `mapstructure:"tilter_rate" yaml:"tilter_rate"`
	TilterStart   float64          `mapstructure:"tilter_start" yaml:"tilter_start"`
	IntakeRate    float64          `mapstructure:"intake_rate" yaml:"intake_rate"`
	ClimberRate   float64          `mapstructure:"climber_rate" yaml:"climber_rate"`
	CaptureRadius float64          `mapstructure:"capture_radius" yaml:"capture_radius"`
	FeedTime      time.Duration    `mapstructure:"feed_time" yaml:"feed_time"`
	CameraRange   float64          `mapstructure:"camera_range" yaml:"camera_range"`
	CameraFOV     float64          `mapstructure:"camera_fov" yaml:"camera_fov"`
}

// Default returns the built-in configuration.
func Default() Config {
	return Config{
		Scheduler: SchedulerConfig{
			TickRate:    20 * time.Millisecond,
			SlowDivisor: 5,
			MaxPosted:   1000,
		},
		Subsystems: SubsystemsConfig{Detector: true, Climber: true},
		Shooter: ShooterConfig{
			VelocityTolerance: 2,
			AngleTolerance:    1,
			TurtleAngle:       0,
			MonitorTimeout:    1500 * time.Millisecond,
		},
		Drive:  DriveConfig{Tolerance: 0.1},
		Intake: IntakeConfig{CollectPower: 1, FeedPower: 1, FeedDuration: 500 * time.Millisecond},
		Climber: ClimberConfig{
			Min:       0,
			Max:       30,
			Extend:    28,
			Retract:   2,
			Tolerance: 0.5,
			Timeout:   4 * time.Second,
		},
		Pickup: PickupConfig{
			Timeout:       4 * time.Second,
			DriveTimeout:  3 * time.Second,
			TuckTimeout:   time.Second,
			MinConfidence: 0.2,
		},
		Auto: AutoConfig{
			ScorePreload: true,
			Pickup:       true,
			ScorePickup:  true,
			ShotVelocity: 90,
			ShotAngle:    45,
			ScoreTimeout: 3 * time.Second,
			Timeout:      15 * time.Second,
		},
		Sim: SimConfig{
			Preloaded:     true,
			Notes:         []subsystem.Pose{{X: 2.5, Y: 0}},
			DriveSpeed:    2,
			FlywheelRate:  150,
			TilterRate:    90,
			TilterStart:   20,
			IntakeRate:    10,
			ClimberRate:   15,
			CaptureRadius: 0.25,
			FeedTime:      200 * time.Millisecond,
			CameraRange:   5,
			CameraFOV:     math.Pi / 2,
		},
	}
}

// Load reads the configuration. An empty path uses defaults and the
// environment only.
func Load(path string) (Config, error) {
	v := viper.New()
	setDefaults(v, Default())

	v.SetConfigType("yaml")
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("read config %s: %w", path, err)
		}
	}

	var c Config
	if err := v.Unmarshal(&c); err != nil {
		return Config{}, fmt.Errorf("unmarshal config: %w", err)
	}
	if err := c.Validate(); err != nil {
		return Config{}, err
	}
	return c, nil
}

func setDefaults(v *viper.Viper, d Config) {
	v.SetDefault("scheduler.tick_rate", d.Scheduler.TickRate)
	v.SetDefault("scheduler.slow_divisor", d.Scheduler.SlowDivisor)
	v.SetDefault("scheduler.max_posted", d.Scheduler.MaxPosted)

	v.SetDefault("subsystems.detector", d.Subsystems.Detector)
	v.SetDefault("subsystems.climber", d.Subsystems.Climber)

	v.SetDefault("shooter.velocity_tolerance", d.Shooter.VelocityTolerance)
	v.SetDefault("shooter.angle_tolerance", d.Shooter.AngleTolerance)
	v.SetDefault("shooter.turtle_angle", d.Shooter.TurtleAngle)
	v.SetDefault("shooter.monitor_timeout", d.Shooter.MonitorTimeout)
	v.SetDefault("shooter.angle_stuck_timeout", d.Shooter.AngleStuckTimeout)

	v.SetDefault("drive.tolerance", d.Drive.Tolerance)

	v.SetDefault("intake.collect_power", d.Intake.CollectPower)
	v.SetDefault("intake.feed_power", d.Intake.FeedPower)
	v.SetDefault("intake.feed_duration", d.Intake.FeedDuration)

	v.SetDefault("climber.min", d.Climber.Min)
	v.SetDefault("climber.max", d.Climber.Max)
	v.SetDefault("climber.extend", d.Climber.Extend)
	v.SetDefault("climber.retract", d.Climber.Retract)
	v.SetDefault("climber.tolerance", d.Climber.Tolerance)
	v.SetDefault("climber.timeout", d.Climber.Timeout)

	v.SetDefault("pickup.timeout", d.Pickup.Timeout)
	v.SetDefault("pickup.drive_timeout", d.Pickup.DriveTimeout)
	v.SetDefault("pickup.tuck_timeout", d.Pickup.TuckTimeout)
	v.SetDefault("pickup.min_confidence", d.Pickup.MinConfidence)
	v.SetDefault("pickup.retarget", d.Pickup.Retarget)

	v.SetDefault("auto.start_delay", d.Auto.StartDelay)
	v.SetDefault("auto.score_preload", d.Auto.ScorePreload)
	v.SetDefault("auto.pickup", d.Auto.Pickup)
	v.SetDefault("auto.score_pickup", d.Auto.ScorePickup)
	v.SetDefault("auto.shot_velocity", d.Auto.ShotVelocity)
	v.SetDefault("auto.shot_angle", d.Auto.ShotAngle)
	v.SetDefault("auto.score_timeout", d.Auto.ScoreTimeout)
	v.SetDefault("auto.timeout", d.Auto.Timeout)

	v.SetDefault("sim.start", d.Sim.Start)
	v.SetDefault("sim.preloaded", d.Sim.Preloaded)
	v.SetDefault("sim.notes", d.Sim.Notes)
	v.SetDefault("sim.drive_speed", d.Sim.DriveSpeed)
	v.SetDefault("sim.flywheel_rate", d.Sim.FlywheelRate)
	v.SetDefault("sim.tilter_rate", d.Sim.TilterRate)
	v.SetDefault("sim.tilter_start", d.Sim.TilterStart)
	v.SetDefault("sim.intake_rate", d.Sim.IntakeRate)
	v.SetDefault("sim.climber_rate", d.Sim.ClimberRate)
	v.SetDefault("sim.capture_radius", d.Sim.CaptureRadius)
	v.SetDefault("sim.feed_time", d.Sim.FeedTime)
	v.SetDefault("sim.camera_range", d.Sim.CameraRange)
	v.SetDefault("sim.camera_fov", d.Sim.CameraFOV)
}

// Validate reports every invalid setting at once.
func (c Config) Validate() error {
	var errs *multierror.Error
	check := func(ok bool, format string, args ...any) {
		if !ok {
			errs = multierror.Append(errs, fmt.Errorf(format, args...))
		}
	}

	check(c.Scheduler.TickRate > 0, "scheduler.tick_rate must be positive, got %s", c.Scheduler.TickRate)
	check(c.Scheduler.SlowDivisor > 0, "scheduler.slow_divisor must be positive, got %d", c.Scheduler.SlowDivisor)
	check(c.Scheduler.MaxPosted > 0, "scheduler.max_posted must be positive, got %d", c.Scheduler.MaxPosted)

	check(c.Shooter.VelocityTolerance > 0, "shooter.velocity_tolerance must be positive")
	check(c.Shooter.AngleTolerance > 0, "shooter.angle_tolerance must be positive")
	check(c.Shooter.MonitorTimeout >= 0, "shooter.monitor_timeout must not be negative")
	check(c.Shooter.AngleStuckTimeout >= 0, "shooter.angle_stuck_timeout must not be negative")

	check(c.Drive.Tolerance > 0, "drive.tolerance must be positive")
	check(c.Intake.FeedDuration > 0, "intake.feed_duration must be positive")

	check(c.Climber.Min < c.Climber.Max, "climber.min (%g) must be below climber.max (%g)", c.Climber.Min, c.Climber.Max)
	for _, p := range []struct {
		name string
		pos  float64
	}{{"extend", c.Climber.Extend}, {"retract", c.Climber.Retract}} {
		check(p.pos >= c.Climber.Min && p.pos <= c.Climber.Max, "climber.%s (%g) outside [%g, %g]", p.name, p.pos, c.Climber.Min, c.Climber.Max)
	}
	check(c.Climber.Tolerance > 0, "climber.tolerance must be positive")

	check(c.Pickup.Timeout >= 0, "pickup.timeout must not be negative")
	check(c.Pickup.DriveTimeout >= 0, "pickup.drive_timeout must not be negative")
	check(c.Pickup.TuckTimeout >= 0, "pickup.tuck_timeout must not be negative")
	check(c.Pickup.MinConfidence >= 0 && c.Pickup.MinConfidence <= 1, "pickup.min_confidence must be within [0, 1]")

	check(c.Auto.StartDelay >= 0, "auto.start_delay must not be negative")
	check(c.Auto.ScoreTimeout >= 0, "auto.score_timeout must not be negative")
	check(c.Auto.Timeout >= 0, "auto.timeout must not be negative")

	return errs.ErrorOrNil()
}

// Dump writes cfg as YAML.
func Dump(w io.Writer, cfg Config) error {
	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	if err := enc.Encode(cfg); err != nil {
		return fmt.Errorf("encode config: %w", err)
	}
	return enc.Close()
}
