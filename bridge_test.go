package xmate_teleop

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.viam.com/rdk/logging"
)

func sessionConfig(t *testing.T, mode OperatingMode, cmdPort, telPort string) *TeleopConfig {
	t.Helper()
	cfg := &TeleopConfig{
		Mode:          mode,
		CommandAddr:   "tcp://127.0.0.1:" + cmdPort,
		TelemetryAddr: "tcp://127.0.0.1:" + telPort,
	}
	require.NoError(t, cfg.Validate())
	return cfg
}

func TestSessionHoldsPoseWithoutCommands(t *testing.T) {
	logger := logging.NewTestLogger(t)
	cfg := sessionConfig(t, ModeVelocity, "15711", "15712")

	sim := NewSimController(cfg, logger)
	ctx, cancel := context.WithTimeout(context.Background(), 300*time.Millisecond)
	defer cancel()

	require.NoError(t, NewSession(cfg, sim, logger).Run(ctx))
	assert.False(t, sim.Powered(), "session must power off on shutdown")

	// With no commands the staleness latch holds the seeded pose.
	require.NoError(t, sim.SetPowerState(true))
	posture, err := sim.CurrentPosture()
	require.NoError(t, err)
	assertMat4Near(t, simHomePosture.Matrix(), posture.Matrix(), 1e-9)
}

func TestSessionJointModeHoldsInitialJoints(t *testing.T) {
	logger := logging.NewTestLogger(t)
	cfg := sessionConfig(t, ModeJoint, "15713", "15714")

	sim := NewSimController(cfg, logger)
	ctx, cancel := context.WithTimeout(context.Background(), 300*time.Millisecond)
	defer cancel()

	require.NoError(t, NewSession(cfg, sim, logger).Run(ctx))

	require.NoError(t, sim.SetPowerState(true))
	joints := make([]float64, cfg.DOF)
	require.NoError(t, sim.CurrentJoints(joints))
	assert.Equal(t, cfg.InitialJointPositions, joints)
}

// faultyController fails its posture query after a number of calls, as a
// dropped real-time link would.
type faultyController struct {
	*SimController
	calls int32
	limit int32
}

func (f *faultyController) CurrentPosture() (Posture, error) {
	if atomic.AddInt32(&f.calls, 1) > f.limit {
		return Posture{}, errors.New("encoder fault")
	}
	return f.SimController.CurrentPosture()
}

func TestSessionStopsOnControllerFault(t *testing.T) {
	logger := logging.NewTestLogger(t)
	cfg := sessionConfig(t, ModeVelocity, "15715", "15716")

	faulty := &faultyController{
		SimController: NewSimController(cfg, logger),
		limit:         5,
	}
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	err := NewSession(cfg, faulty, logger).Run(ctx)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "encoder fault")
	assert.False(t, faulty.Powered(), "session must power off after a fault")
}
