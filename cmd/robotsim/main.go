// Command robotsim runs the robot's autonomous routine against the simulated
// world and reports the task and ownership state it ends in.
package main

import (
	"fmt"
	"os"

	"github.com/urfave/cli/v2"
)

func main() {
	app := &cli.App{
		Name:  "robotsim",
		Usage: "Run robot behaviors against a simulated field",
		Description: `Builds the robot from a YAML configuration (plus AUTOTASK_* environment
overrides), ticks it against the simulated world and prints the dashboard.

Example:
  robotsim run --config robot.yaml --routine auto --status-dir status --dot robot.dot
  robotsim run --routine none --at pickup@0s --at -pickup@1s --at extend@1.2s --duration 5s
  robotsim config --config robot.yaml`,
		Commands: []*cli.Command{
			runCommand(),
			configCommand(),
		},
	}

	if err := app.Run(os.Args); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
