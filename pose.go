package xmate_teleop

import "sync"

// PoseStore is the shared snapshot of the robot's last-observed state. The
// integrator overwrites it once per control tick; the telemetry loop copies
// it out once per publish period. Single writer, single reader, short-lived
// lock on both sides.
type PoseStore struct {
	mu      sync.Mutex
	posture Posture
	joints  []float64
}

func NewPoseStore(dof int) *PoseStore {
	return &PoseStore{joints: make([]float64, dof)}
}

// Set overwrites the snapshot in place. joints is copied, not retained, so
// the real-time caller can reuse its buffer.
func (s *PoseStore) Set(posture Posture, joints []float64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.posture = posture
	copy(s.joints, joints)
}

// Observed returns a copy of the snapshot.
func (s *PoseStore) Observed() (Posture, []float64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.posture, append([]float64(nil), s.joints...)
}
