package xmate_teleop

import (
	"sync"
	"time"

	"github.com/golang/geo/r3"
)

// Command is the most recent command received from the network, in whatever
// shape the operating mode expects. Exactly one Command is current at any
// instant; CommandStore replaces it atomically so readers never observe a
// partial update.
type Command struct {
	// Normalized [-1, 1] velocities, scaled by the session limits at
	// integration time.
	Linear  r3.Vector
	Angular r3.Vector

	// Desired TCP pose in base coordinates.
	PoseMatrix Mat4

	// Desired joint angles, length = DOF.
	JointPositions []float64

	ReceivedAt time.Time

	// Suppressed marks commands that need no staleness failsafe: either the
	// command shape is safe to hold (joint targets), or the velocity has
	// already been zeroed by the staleness latch.
	Suppressed bool
}

// CommandStore holds the current Command behind a mutex. The ingest loop is
// the only writer; the integrator is the only reader. The lock is held just
// long enough to copy values in or out, never across I/O or math.
type CommandStore struct {
	mu  sync.Mutex
	cmd Command
}

// NewCommandStore returns a store whose command holds position: identity
// pose, zero velocity, zeroed joints. The arrival stamp starts at now so a
// silent network trips the staleness latch one window after startup, same as
// a lost connection would.
func NewCommandStore(dof int) *CommandStore {
	return &CommandStore{
		cmd: Command{
			PoseMatrix:     identityMat4(),
			JointPositions: make([]float64, dof),
			ReceivedAt:     time.Now(),
		},
	}
}

// SetVelocity stores a velocity command and clears the staleness latch.
func (s *CommandStore) SetVelocity(linear, angular r3.Vector, now time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cmd.Linear = linear
	s.cmd.Angular = angular
	s.cmd.Suppressed = false
	s.cmd.ReceivedAt = now
}

// SetPose stores an absolute pose command.
func (s *CommandStore) SetPose(pose Mat4, now time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cmd.PoseMatrix = pose
	s.cmd.Suppressed = false
	s.cmd.ReceivedAt = now
}

// SetJoints stores a joint target command. Joint targets are marked
// suppressed up front: holding the last commanded configuration is safe, so
// the staleness failsafe never fires for them.
func (s *CommandStore) SetJoints(joints []float64, now time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	copy(s.cmd.JointPositions, joints)
	s.cmd.Suppressed = true
	s.cmd.ReceivedAt = now
}

// Seed initializes both hold targets from the robot's actual state at
// session start, so pass-through modes hold position until the first network
// command arrives.
func (s *CommandStore) Seed(pose Mat4, joints []float64, now time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cmd.PoseMatrix = pose
	copy(s.cmd.JointPositions, joints)
	s.cmd.ReceivedAt = now
}

// PoseTarget returns the current absolute pose command.
func (s *CommandStore) PoseTarget() Mat4 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cmd.PoseMatrix
}

// JointTarget copies the current joint command into dst, which the caller
// provides so the real-time path does not allocate.
func (s *CommandStore) JointTarget(dst []float64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	copy(dst, s.cmd.JointPositions)
}

// EffectiveVelocity returns the velocity the integrator should act on. If
// the current command is older than window and not already suppressed, the
// stored velocity is zeroed and the suppressed latch set before returning;
// latched reports that this call performed the transition, so the caller can
// log it exactly once. The latch holds until a fresh velocity command clears
// it.
func (s *CommandStore) EffectiveVelocity(now time.Time, window time.Duration) (linear, angular r3.Vector, latched bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if now.Sub(s.cmd.ReceivedAt) > window && !s.cmd.Suppressed {
		s.cmd.Linear = r3.Vector{}
		s.cmd.Angular = r3.Vector{}
		s.cmd.Suppressed = true
		latched = true
	}
	return s.cmd.Linear, s.cmd.Angular, latched
}

// Snapshot returns a deep copy of the current command.
func (s *CommandStore) Snapshot() Command {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := s.cmd
	out.JointPositions = append([]float64(nil), s.cmd.JointPositions...)
	return out
}
