package xmate_teleop

import (
	"time"

	"github.com/golang/geo/r3"
	"github.com/pkg/errors"
	"go.viam.com/rdk/logging"
)

// StateQuery is the read-only view of controller state the integrator
// samples at the start of every tick. Implementations may have non-trivial
// latency; the integrator warns past a budget but always proceeds.
type StateQuery interface {
	// CurrentPosture reports the flange pose in base coordinates.
	CurrentPosture() (Posture, error)
	// CurrentJoints fills dst with the current joint angles.
	CurrentJoints(dst []float64) error
}

// Integrator turns the low, jittery command rate into a smooth high-rate
// target. The motion controller invokes Tick (or TickJoints) once per
// control period on its real-time thread, so a tick must stay within a small
// time budget: locks are copy-in/copy-out only, all values are fixed-size,
// and there is no I/O.
//
// The target transform is owned exclusively by the integrator and mutated
// only inside a tick.
type Integrator struct {
	cfg      *TeleopConfig
	state    StateQuery
	commands *CommandStore
	poses    *PoseStore
	logger   logging.Logger

	dt           float64
	target       Mat4
	targetJoints []float64
	jointScratch []float64
	tickCount    uint64
}

func NewIntegrator(cfg *TeleopConfig, state StateQuery, commands *CommandStore, poses *PoseStore, logger logging.Logger) *Integrator {
	return &Integrator{
		cfg:          cfg,
		state:        state,
		commands:     commands,
		poses:        poses,
		logger:       logger,
		dt:           cfg.TickInterval.Seconds(),
		target:       identityMat4(),
		targetJoints: make([]float64, cfg.DOF),
		jointScratch: make([]float64, cfg.DOF),
	}
}

// SeedTarget sets the integration origin, normally the TCP pose at session
// start (flange pose composed with the tool frame).
func (ig *Integrator) SeedTarget(target Mat4, joints []float64) {
	ig.target = target
	copy(ig.targetJoints, joints)
}

// Target returns the current target transform. Not safe to call
// concurrently with ticks; intended for setup and tests.
func (ig *Integrator) Target() Mat4 {
	return ig.target
}

// Tick computes the next Cartesian target. In pose mode it passes the
// commanded transform through; in velocity mode it integrates the effective
// velocity into the running target.
func (ig *Integrator) Tick(now time.Time) (Mat4, error) {
	posture, err := ig.sampleState()
	if err != nil {
		return Mat4{}, err
	}

	if ig.cfg.Mode == ModePose {
		ig.target = ig.commands.PoseTarget()
		return ig.target, nil
	}

	// Restart from the reported pose instead of the running desired target.
	if ig.cfg.IntegrateFromObserved {
		ig.target = posture.Matrix().Mul(ig.cfg.ToolFrame)
	}

	linear, angular, latched := ig.commands.EffectiveVelocity(now, ig.cfg.StalenessWindow)
	if latched {
		ig.logger.Warnf("no command received within %v; forcing velocity to zero", ig.cfg.StalenessWindow)
	}

	rotation := ig.target.Rotation()

	if ig.cfg.UseToolFrame {
		linear = remapToolAxes(linear)
		angular = remapToolAxes(angular)
	}

	linear = linear.Mul(ig.cfg.MaxLinearVelocity)
	angular = angular.Mul(ig.cfg.MaxAngularVelocity)

	deltaPos := linear.Mul(ig.dt)
	if ig.cfg.UseToolFrame {
		deltaPos = rotation.MulVec(deltaPos)
	}
	ig.target.SetTranslation(ig.target.Translation().Add(deltaPos))

	rotVec := angular.Mul(ig.dt)
	if ig.cfg.UseToolFrame {
		rotVec = rotation.MulVec(rotVec)
	}

	// The increment is expressed in base frame, so it left-multiplies the
	// current rotation.
	newRotation := rodrigues(rotVec).Mul(rotation)

	ig.tickCount++
	if n := ig.cfg.ReorthonormalizeEvery; n > 0 && ig.tickCount%uint64(n) == 0 {
		newRotation = newRotation.Orthonormalized()
	}
	ig.target.SetRotation(newRotation)

	return ig.target, nil
}

// TickJoints computes the next joint target: a pass-through of the latest
// joint command. Staleness never zeroes anything here; holding the last
// commanded configuration is the safe default. The returned slice is owned
// by the integrator and valid until the next tick.
func (ig *Integrator) TickJoints(_ time.Time) ([]float64, error) {
	if _, err := ig.sampleState(); err != nil {
		return nil, err
	}
	ig.commands.JointTarget(ig.targetJoints)
	return ig.targetJoints, nil
}

// sampleState queries the controller's observed posture and joints and
// stores them for the telemetry loop. A slow query gets a warning but never
// aborts the tick; a failed query is fatal to the session.
func (ig *Integrator) sampleState() (Posture, error) {
	start := time.Now()
	posture, err := ig.state.CurrentPosture()
	if err != nil {
		return Posture{}, errors.Wrap(err, "posture query failed")
	}
	if err := ig.state.CurrentJoints(ig.jointScratch); err != nil {
		return Posture{}, errors.Wrap(err, "joint query failed")
	}
	if elapsed := time.Since(start); elapsed > ig.cfg.SlowQueryWarning {
		ig.logger.Warnf("state query took %v", elapsed)
	}

	ig.poses.Set(posture, ig.jointScratch)
	return posture, nil
}

// The tool frame's forward, left and up axes are the base frame's -z, y and
// x. Fixed convention of the flange mount.
func remapToolAxes(v r3.Vector) r3.Vector {
	return r3.Vector{X: -v.Z, Y: v.Y, Z: v.X}
}
