// Command teleop runs a teleoperation bridge session: it receives motion
// commands over ZeroMQ, integrates them into a high-rate target for the
// arm's real-time controller, and publishes pose telemetry.
package main

import (
	"context"
	"flag"

	"github.com/pkg/errors"
	"go.viam.com/rdk/logging"
	goutils "go.viam.com/utils"

	teleop "xmate_teleop"
)

var (
	configPath = flag.String("config", "", "path to a JSON session config")
	mode       = flag.String("mode", "", "operating mode override: velocity, pose or joint")
	simulate   = flag.Bool("sim", true, "run against the built-in kinematic simulator")
)

func main() {
	goutils.ContextualMain(mainWithArgs, logging.NewLogger("xmate-teleop"))
}

func mainWithArgs(ctx context.Context, args []string, logger logging.Logger) error {
	flag.Parse()

	cfg := &teleop.TeleopConfig{Logger: logger}
	if *configPath != "" {
		loaded, err := teleop.LoadConfigFromFile(*configPath, logger)
		if err != nil {
			return err
		}
		cfg = loaded
	}
	if *mode != "" {
		cfg.Mode = teleop.OperatingMode(*mode)
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	registry := teleop.NewControllerRegistry()
	controller, err := registry.Get(cfg, func(cfg *teleop.TeleopConfig) (teleop.MotionController, error) {
		// Only the simulator backend ships with the bridge; a vendor driver
		// implements the same MotionController interface.
		if !*simulate {
			return nil, errors.New("no vendor driver in this build, run with -sim")
		}
		return teleop.NewSimController(cfg, logger.Sublogger("sim")), nil
	})
	if err != nil {
		return err
	}
	defer registry.Release(cfg.RobotAddr)

	return teleop.NewSession(cfg, controller, logger).Run(ctx)
}
