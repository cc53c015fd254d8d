package xmate_teleop

import (
	"context"
	"math"
	"sync"
	"time"

	"github.com/pkg/errors"
	"go.viam.com/rdk/logging"
)

// MotionController is the session's view of the vendor real-time motion
// controller. The controller owns the servo loop and its scheduling; the
// bridge only supplies a tick callback and reads state.
type MotionController interface {
	StateQuery

	// Prepare applies session-wide tuning (control mode, collision
	// thresholds or impedance gains, filter frequencies, network tolerance)
	// and powers the arm on.
	Prepare(cfg *TeleopConfig) error

	// SetToolFrame sets the controlled end-effector frame. Targets returned
	// by the tick callback are TCP-in-base; reported postures remain
	// flange-in-base.
	SetToolFrame(frame Mat4) error

	// MoveToInitial runs a joint-space move to the session's start
	// configuration before real-time control begins.
	MoveToInitial(joints []float64) error

	// RunCartesianLoop invokes tick once per control period and forwards the
	// returned TCP target to the servo loop. It blocks until ctx is done or
	// tick returns an error, which is fatal to the session.
	RunCartesianLoop(ctx context.Context, tick func(now time.Time) (Mat4, error)) error

	// RunJointLoop is the joint-space equivalent.
	RunJointLoop(ctx context.Context, tick func(now time.Time) ([]float64, error)) error

	// SetPowerState toggles motor power.
	SetPowerState(on bool) error

	Close() error
}

// SimController is a kinematic stand-in for the vendor controller: it runs
// the control loop on a wall-clock ticker and tracks commanded targets
// perfectly, deriving the reported flange posture from the TCP target and
// the inverse tool frame. Used by tests and by the bridge binary when no
// robot is reachable.
type SimController struct {
	logger   logging.Logger
	interval time.Duration

	mu      sync.Mutex
	posture Posture
	joints  []float64
	tool    Mat4
	toolInv Mat4
	powered bool
}

// The sim wakes up roughly here: elbow up, flange pointing down.
var simHomePosture = Posture{0.56, 0, 0.43, math.Pi, 0, 0}

func NewSimController(cfg *TeleopConfig, logger logging.Logger) *SimController {
	return &SimController{
		logger:   logger,
		interval: cfg.TickInterval,
		posture:  simHomePosture,
		joints:   make([]float64, cfg.DOF),
		tool:     identityMat4(),
		toolInv:  identityMat4(),
	}
}

func (c *SimController) Prepare(cfg *TeleopConfig) error {
	mode := "position"
	if cfg.ImpedanceControl {
		mode = "impedance"
	}
	c.logger.Infof("sim controller ready: %s control, filter %v, network tolerance %d%%",
		mode, cfg.FilterFrequencies, cfg.RtNetworkTolerance)
	return c.SetPowerState(true)
}

func (c *SimController) SetToolFrame(frame Mat4) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.tool = frame
	c.toolInv = frame.RigidInverse()
	return nil
}

func (c *SimController) MoveToInitial(joints []float64) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if len(joints) != len(c.joints) {
		return errors.Errorf("expected %d joint positions, got %d", len(c.joints), len(joints))
	}
	copy(c.joints, joints)
	return nil
}

func (c *SimController) CurrentPosture() (Posture, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.powered {
		return Posture{}, errors.New("arm is not powered")
	}
	return c.posture, nil
}

func (c *SimController) CurrentJoints(dst []float64) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.powered {
		return errors.New("arm is not powered")
	}
	copy(dst, c.joints)
	return nil
}

func (c *SimController) RunCartesianLoop(ctx context.Context, tick func(now time.Time) (Mat4, error)) error {
	ticker := time.NewTicker(c.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case now := <-ticker.C:
			target, err := tick(now)
			if err != nil {
				return errors.Wrap(err, "control tick failed")
			}
			if err := c.applyCartesian(target); err != nil {
				return err
			}
		}
	}
}

func (c *SimController) RunJointLoop(ctx context.Context, tick func(now time.Time) ([]float64, error)) error {
	ticker := time.NewTicker(c.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case now := <-ticker.C:
			target, err := tick(now)
			if err != nil {
				return errors.Wrap(err, "control tick failed")
			}
			c.mu.Lock()
			copy(c.joints, target)
			c.mu.Unlock()
		}
	}
}

// applyCartesian adopts the TCP target instantly: flange = target * tool⁻¹.
func (c *SimController) applyCartesian(target Mat4) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	posture, err := PostureFromMatrix(target.Mul(c.toolInv))
	if err != nil {
		return errors.Wrap(err, "commanded target is not a rigid transform")
	}
	c.posture = posture
	return nil
}

func (c *SimController) SetPowerState(on bool) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.powered = on
	c.logger.Infof("motor power: %v", on)
	return nil
}

// Powered reports motor power state; test hook.
func (c *SimController) Powered() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.powered
}

func (c *SimController) Close() error {
	return c.SetPowerState(false)
}
