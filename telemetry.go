package xmate_teleop

import (
	"context"
	"encoding/json"
	"time"

	"github.com/go-zeromq/zmq4"
	"github.com/pkg/errors"
	"go.viam.com/rdk/logging"
	"go.viam.com/utils"
)

// telemetryMessage is the outbound wire shape. Cartesian sessions publish
// the TCP posture, joint sessions the joint vector.
type telemetryMessage struct {
	ActualTCPPose  []float64 `json:"ActualTCPPose,omitempty"`
	ActualJointPos []float64 `json:"ActualJointPos,omitempty"`
}

// Telemetry periodically samples the pose store and publishes a snapshot on
// the PUB socket. Telemetry is lossy by design: a failed send is logged and
// the next tick proceeds; nothing here ever blocks the control path.
type Telemetry struct {
	poses  *PoseStore
	mode   OperatingMode
	addr   string
	period time.Duration
	logger logging.Logger
}

func NewTelemetry(cfg *TeleopConfig, poses *PoseStore, logger logging.Logger) *Telemetry {
	return &Telemetry{
		poses:  poses,
		mode:   cfg.Mode,
		addr:   cfg.TelemetryAddr,
		period: cfg.PublishPeriod,
		logger: logger,
	}
}

// Run publishes until ctx is canceled.
func (t *Telemetry) Run(ctx context.Context) error {
	pub := zmq4.NewPub(ctx)
	defer pub.Close()

	if err := pub.Listen(t.addr); err != nil {
		return errors.Wrapf(err, "failed to bind telemetry socket to %s", t.addr)
	}
	t.logger.Infof("publishing telemetry on %s every %v", t.addr, t.period)

	for {
		if !utils.SelectContextOrWait(ctx, t.period) {
			return nil
		}

		payload, err := t.message()
		if err != nil {
			t.logger.Warnf("telemetry marshal failed: %v", err)
			continue
		}
		if err := pub.Send(zmq4.NewMsg(payload)); err != nil {
			t.logger.Warnf("telemetry send failed: %v", err)
		}
	}
}

// message snapshots the pose store and marshals it; the store lock is
// released before marshaling.
func (t *Telemetry) message() ([]byte, error) {
	posture, joints := t.poses.Observed()
	if t.mode.cartesian() {
		return json.Marshal(telemetryMessage{ActualTCPPose: posture[:]})
	}
	return json.Marshal(telemetryMessage{ActualJointPos: joints})
}
