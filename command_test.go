package xmate_teleop

import (
	"testing"
	"time"

	"github.com/golang/geo/r3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStalenessLatch(t *testing.T) {
	store := NewCommandStore(7)
	window := 100 * time.Millisecond
	t0 := time.Now()
	v := r3.Vector{Y: 1}

	store.SetVelocity(v, r3.Vector{}, t0)

	t.Run("fresh command passes through", func(t *testing.T) {
		lin, ang, latched := store.EffectiveVelocity(t0.Add(50*time.Millisecond), window)
		assert.Equal(t, v, lin)
		assert.Equal(t, r3.Vector{}, ang)
		assert.False(t, latched)
	})

	t.Run("stale command is zeroed and latched once", func(t *testing.T) {
		lin, _, latched := store.EffectiveVelocity(t0.Add(150*time.Millisecond), window)
		assert.Equal(t, r3.Vector{}, lin)
		assert.True(t, latched)

		// Already suppressed: still zero, but no second transition.
		lin, _, latched = store.EffectiveVelocity(t0.Add(300*time.Millisecond), window)
		assert.Equal(t, r3.Vector{}, lin)
		assert.False(t, latched)
	})

	t.Run("fresh command clears the latch", func(t *testing.T) {
		t1 := t0.Add(400 * time.Millisecond)
		store.SetVelocity(v, r3.Vector{}, t1)

		lin, _, latched := store.EffectiveVelocity(t1.Add(10*time.Millisecond), window)
		assert.Equal(t, v, lin)
		assert.False(t, latched)
	})
}

func TestJointCommandsNeverLatch(t *testing.T) {
	store := NewCommandStore(7)
	t0 := time.Now()
	joints := []float64{0.1, 0.2, 0.3, 0.4, 0.5, 0.6, 0.7}
	store.SetJoints(joints, t0)

	// Joint targets are suppressed up front; an hour of silence triggers no
	// transition.
	_, _, latched := store.EffectiveVelocity(t0.Add(time.Hour), 100*time.Millisecond)
	assert.False(t, latched)

	dst := make([]float64, 7)
	store.JointTarget(dst)
	assert.Equal(t, joints, dst)
}

func TestSetJointsCopiesInput(t *testing.T) {
	store := NewCommandStore(3)
	joints := []float64{1, 2, 3}
	store.SetJoints(joints, time.Now())

	joints[0] = 99
	dst := make([]float64, 3)
	store.JointTarget(dst)
	assert.Equal(t, []float64{1, 2, 3}, dst)
}

func TestSeedHoldsPosition(t *testing.T) {
	store := NewCommandStore(2)
	pose := Posture{0.5, 0, 0.4, 0, 0, 0}.Matrix()
	store.Seed(pose, []float64{0.1, 0.2}, time.Now())

	assert.Equal(t, pose, store.PoseTarget())

	snap := store.Snapshot()
	require.Len(t, snap.JointPositions, 2)
	assert.Equal(t, []float64{0.1, 0.2}, snap.JointPositions)
	assert.Equal(t, r3.Vector{}, snap.Linear)
}
