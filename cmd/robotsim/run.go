package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/urfave/cli/v2"

	"github.com/comalice/autotask"
	"github.com/comalice/autotask/behavior"
	"github.com/comalice/autotask/config"
	"github.com/comalice/autotask/internal/command"
	"github.com/comalice/autotask/internal/primitives"
	"github.com/comalice/autotask/internal/production"
)

var configFlag = &cli.StringFlag{
	Name:    "config",
	Aliases: []string{"c"},
	Usage:   "YAML configuration file",
	EnvVars: []string{config.EnvPrefix + "_CONFIG"},
}

func configCommand() *cli.Command {
	return &cli.Command{
		Name:  "config",
		Usage: "Print the effective configuration",
		Flags: []cli.Flag{configFlag},
		Action: func(c *cli.Context) error {
			cfg, err := config.Load(c.String("config"))
			if err != nil {
				return err
			}
			return config.Dump(c.App.Writer, cfg)
		},
	}
}

func runCommand() *cli.Command {
	return &cli.Command{
		Name:  "run",
		Usage: "Run a routine in the simulator",
		Flags: []cli.Flag{
			configFlag,
			&cli.StringFlag{
				Name:  "routine",
				Usage: "Routine to run: auto, pickup, score, climb, or none to rely on --at",
				Value: "auto",
			},
			&cli.DurationFlag{
				Name:  "tick-rate",
				Usage: "Override the scheduler period",
			},
			&cli.DurationFlag{
				Name:  "duration",
				Usage: "Stop after this long even if the routine is still running",
				Value: 20 * time.Second,
			},
			&cli.StringFlag{
				Name:  "log-level",
				Usage: "Log level: debug, info, warn, error",
				Value: "info",
			},
			&cli.StringSliceFlag{
				Name:  "at",
				Usage: "Scripted command, NAME@OFFSET to start or -NAME@OFFSET to cancel (repeatable)",
			},
			&cli.StringFlag{
				Name:  "status-dir",
				Usage: "Directory to write the final status snapshot to",
			},
			&cli.BoolFlag{
				Name:  "status-stream",
				Usage: "Log every task status record as it is published",
			},
			&cli.StringFlag{
				Name:  "dot",
				Usage: "File to write a Graphviz view of the final state to",
			},
		},
		Action: runSim,
	}
}

func runSim(c *cli.Context) error {
	cfg, err := config.Load(c.String("config"))
	if err != nil {
		return err
	}
	if rate := c.Duration("tick-rate"); rate > 0 {
		cfg.Scheduler.TickRate = rate
	}

	level, err := logrus.ParseLevel(c.String("log-level"))
	if err != nil {
		return err
	}
	log := logrus.New()
	log.SetOutput(c.App.ErrWriter)
	log.SetLevel(level)

	opts := []autotask.Option{autotask.WithLogger(log)}
	var stream *statusStream
	if c.Bool("status-stream") {
		stream = newStatusStream(log.WithField("stream", "status"), 256)
		opts = append(opts, autotask.WithPublisher(stream))
	}

	robot, world, err := autotask.NewSimRobot(cfg, opts...)
	if err != nil {
		if stream != nil {
			_ = stream.Close()
		}
		return err
	}

	var script []command.Step
	for _, arg := range c.StringSlice("at") {
		step, err := command.ParseStep(arg)
		if err != nil {
			return err
		}
		script = append(script, step)
	}

	routine := c.String("routine")
	done := primitives.NewEvent(routine + ".done")
	start, err := routineStarter(robot, routine)
	if err != nil {
		return err
	}
	if start != nil {
		if err := robot.Post(func() {
			if err := start(done); err != nil {
				log.WithError(err).Error("Routine did not start")
			}
		}); err != nil {
			return err
		}
	}

	ctx, stop := signal.NotifyContext(c.Context, syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	// The loop keeps running on interrupt until the final snapshot is taken.
	runCtx, cancelRun := context.WithCancel(context.Background())
	defer cancelRun()

	var snap production.Snapshot
	var snapErr error
	reported := make(chan struct{})
	go func() {
		defer close(reported)
		defer cancelRun()
		select {
		case <-done.Done():
		case <-time.After(c.Duration("duration")):
			log.Warn("Duration elapsed before the routine finished")
		case <-ctx.Done():
			log.Info("Interrupted")
		}
		snapCtx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		snap, snapErr = robot.SnapshotAsync(snapCtx, "final")
	}()

	if len(script) > 0 {
		src := command.NewScriptSource(script)
		defer src.Stop()
		dispatcher := command.NewDispatcher(robot, robot.Commands(), log)
		go func() { _ = dispatcher.Run(runCtx, src) }()
	}

	runErr := robot.Run(runCtx)
	if stream != nil {
		_ = stream.Close()
	}
	if runErr != nil {
		return runErr
	}
	<-reported
	if snapErr != nil {
		return fmt.Errorf("snapshot: %w", snapErr)
	}

	outcome, routineErr := done.Outcome()
	fmt.Fprintf(c.App.Writer, "%s: %s", routine, outcome)
	if routineErr != nil {
		fmt.Fprintf(c.App.Writer, " (%v)", routineErr)
	}
	fmt.Fprintf(c.App.Writer, "\nshots: %d, notes left: %d\n", world.Shots(), len(world.Notes()))
	if err := robot.Dashboard.Render(c.App.Writer); err != nil {
		return err
	}

	return writeReports(c, snap)
}

func routineStarter(robot *autotask.Robot, routine string) (func(*primitives.Event) error, error) {
	switch routine {
	case "none":
		return nil, nil
	case "auto":
		return robot.StartAuto, nil
	case "pickup":
		return robot.StartPickup, nil
	case "score":
		return robot.StartScore, nil
	case "climb":
		return func(e *primitives.Event) error { return robot.StartClimb(behavior.Extend, e) }, nil
	}
	return nil, fmt.Errorf("unknown routine %q", routine)
}

func writeReports(c *cli.Context, snap production.Snapshot) error {
	if dir := c.String("status-dir"); dir != "" {
		rec, err := production.NewRecorder(dir)
		if err != nil {
			return err
		}
		path, err := rec.Save(c.Context, snap)
		if err != nil {
			return err
		}
		fmt.Fprintf(c.App.Writer, "status written to %s\n", path)
	}
	if fn := c.String("dot"); fn != "" {
		if err := os.WriteFile(fn, []byte(production.ExportDOT(snap)), 0o644); err != nil {
			return fmt.Errorf("write %s: %w", fn, err)
		}
		fmt.Fprintf(c.App.Writer, "graph written to %s\n", fn)
	}
	return nil
}
