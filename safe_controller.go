package xmate_teleop

import (
	"context"
	"sync"
	"time"
)

// SafeMotionController serializes access to an underlying controller between
// the real-time tick callback and session-level operations (power, setup,
// close). The loop methods pass through unlocked: exactly one control loop
// runs per controller, and the loop's own state reads take the lock.
type SafeMotionController struct {
	mu   sync.Mutex
	ctrl MotionController
}

func NewSafeMotionController(ctrl MotionController) *SafeMotionController {
	return &SafeMotionController{ctrl: ctrl}
}

func (s *SafeMotionController) CurrentPosture() (Posture, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.ctrl.CurrentPosture()
}

func (s *SafeMotionController) CurrentJoints(dst []float64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.ctrl.CurrentJoints(dst)
}

func (s *SafeMotionController) Prepare(cfg *TeleopConfig) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.ctrl.Prepare(cfg)
}

func (s *SafeMotionController) SetToolFrame(frame Mat4) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.ctrl.SetToolFrame(frame)
}

func (s *SafeMotionController) MoveToInitial(joints []float64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.ctrl.MoveToInitial(joints)
}

func (s *SafeMotionController) RunCartesianLoop(ctx context.Context, tick func(now time.Time) (Mat4, error)) error {
	return s.ctrl.RunCartesianLoop(ctx, tick)
}

func (s *SafeMotionController) RunJointLoop(ctx context.Context, tick func(now time.Time) ([]float64, error)) error {
	return s.ctrl.RunJointLoop(ctx, tick)
}

func (s *SafeMotionController) SetPowerState(on bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.ctrl.SetPowerState(on)
}

func (s *SafeMotionController) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.ctrl.Close()
}
