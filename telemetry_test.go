package xmate_teleop

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.viam.com/rdk/logging"
)

func TestTelemetryMessageShape(t *testing.T) {
	posture := Posture{0.5, -0.1, 0.4, 3.1, 0, 0}
	joints := []float64{0, 0.1, 0.2, 0.3, 0.4, 0.5, 0.6}

	poses := NewPoseStore(7)
	poses.Set(posture, joints)

	t.Run("cartesian modes publish the TCP posture", func(t *testing.T) {
		for _, mode := range []OperatingMode{ModeVelocity, ModePose} {
			cfg := testConfig(t, mode)
			tel := NewTelemetry(cfg, poses, logging.NewTestLogger(t))

			payload, err := tel.message()
			require.NoError(t, err)

			var decoded map[string][]float64
			require.NoError(t, json.Unmarshal(payload, &decoded))
			assert.Equal(t, posture[:], decoded["ActualTCPPose"])
			assert.NotContains(t, decoded, "ActualJointPos")
		}
	})

	t.Run("joint mode publishes joint angles", func(t *testing.T) {
		cfg := testConfig(t, ModeJoint)
		tel := NewTelemetry(cfg, poses, logging.NewTestLogger(t))

		payload, err := tel.message()
		require.NoError(t, err)

		var decoded map[string][]float64
		require.NoError(t, json.Unmarshal(payload, &decoded))
		assert.Equal(t, joints, decoded["ActualJointPos"])
		assert.NotContains(t, decoded, "ActualTCPPose")
	})
}

func TestTelemetryStopsOnCancel(t *testing.T) {
	cfg := testConfig(t, ModeVelocity)
	cfg.TelemetryAddr = "tcp://127.0.0.1:15702"
	cfg.PublishPeriod = 10 * time.Millisecond

	tel := NewTelemetry(cfg, NewPoseStore(cfg.DOF), logging.NewTestLogger(t))

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- tel.Run(ctx) }()

	time.Sleep(50 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("telemetry did not stop on cancellation")
	}
}
