package xmate_teleop

import (
	"context"
	"sync"
	"time"

	"github.com/pkg/errors"
	"go.viam.com/rdk/logging"
	"go.viam.com/utils"
)

// Session wires one teleoperation run together: command ingest, telemetry
// publish, and the real-time integrator, all sharing state through the two
// stores. The three activities synchronize only through those stores; ingest
// and telemetry errors never reach the control path.
type Session struct {
	cfg        *TeleopConfig
	controller MotionController
	commands   *CommandStore
	poses      *PoseStore
	integrator *Integrator
	ingest     *Ingest
	telemetry  *Telemetry
	logger     logging.Logger

	workers sync.WaitGroup
}

// NewSession builds a session from a validated config and an open
// controller.
func NewSession(cfg *TeleopConfig, controller MotionController, logger logging.Logger) *Session {
	commands := NewCommandStore(cfg.DOF)
	poses := NewPoseStore(cfg.DOF)
	return &Session{
		cfg:        cfg,
		controller: controller,
		commands:   commands,
		poses:      poses,
		integrator: NewIntegrator(cfg, controller, commands, poses, logger),
		ingest:     NewIngest(cfg, commands, logger),
		telemetry:  NewTelemetry(cfg, poses, logger),
		logger:     logger,
	}
}

// Run prepares the controller, seeds the shared state from the robot's
// actual pose, starts the background loops, and blocks in the control loop
// until ctx is canceled or the controller reports a fatal fault. Either way
// it finishes with the full shutdown sequence: stop the loop, stop the
// workers, power off.
func (s *Session) Run(ctx context.Context) error {
	if err := s.controller.Prepare(s.cfg); err != nil {
		return errors.Wrap(err, "controller setup failed")
	}
	if err := s.controller.SetToolFrame(s.cfg.ToolFrame); err != nil {
		return errors.Wrap(err, "failed to set tool frame")
	}
	if err := s.controller.MoveToInitial(s.cfg.InitialJointPositions); err != nil {
		return errors.Wrap(err, "failed to reach initial joint positions")
	}
	if err := s.seed(); err != nil {
		return errors.Wrap(err, "failed to seed session state")
	}
	s.logger.Infof("session initialized: %s mode, robot %s", s.cfg.Mode, s.cfg.RobotAddr)

	loopCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	s.workers.Add(2)
	utils.ManagedGo(func() {
		if err := s.ingest.Run(loopCtx); err != nil {
			s.logger.Errorf("command ingest stopped: %v", err)
		}
	}, s.workers.Done)
	utils.ManagedGo(func() {
		if err := s.telemetry.Run(loopCtx); err != nil {
			s.logger.Errorf("telemetry stopped: %v", err)
		}
	}, s.workers.Done)

	var loopErr error
	if s.cfg.Mode == ModeJoint {
		loopErr = s.controller.RunJointLoop(loopCtx, s.integrator.TickJoints)
	} else {
		loopErr = s.controller.RunCartesianLoop(loopCtx, s.integrator.Tick)
	}
	if loopErr != nil {
		s.logger.Errorf("control loop ended: %v", loopErr)
	} else {
		s.logger.Info("control loop stopped")
	}

	cancel()
	s.workers.Wait()

	if err := s.controller.SetPowerState(false); err != nil {
		s.logger.Warnf("failed to power off: %v", err)
	}
	return loopErr
}

// seed initializes the command store, the integrator target, and the pose
// snapshot from the robot's state, so every mode holds position until the
// first network command arrives. The TCP target is the flange pose composed
// with the tool frame.
func (s *Session) seed() error {
	posture, err := s.controller.CurrentPosture()
	if err != nil {
		return err
	}
	joints := make([]float64, s.cfg.DOF)
	if err := s.controller.CurrentJoints(joints); err != nil {
		return err
	}

	target := posture.Matrix().Mul(s.cfg.ToolFrame)
	s.commands.Seed(target, joints, time.Now())
	s.integrator.SeedTarget(target, joints)
	s.poses.Set(posture, joints)
	return nil
}
