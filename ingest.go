package xmate_teleop

import (
	"context"
	"encoding/json"
	"time"

	"github.com/go-zeromq/zmq4"
	"github.com/golang/geo/r3"
	"github.com/pkg/errors"
	"go.viam.com/rdk/logging"
)

// commandPayload is the wire shape of an inbound command. A valid payload
// carries exactly one of the three forms.
type commandPayload struct {
	LinearVelocity  []float64 `json:"linear_velocity"`
	AngularVelocity []float64 `json:"angular_velocity"`
	PoseMatrix      []float64 `json:"pose_matrix"`
	JointPosition   []float64 `json:"joint_position"`
}

// Ingest consumes command messages from the SUB socket and publishes them
// into the command store. It is the store's only writer.
type Ingest struct {
	store  *CommandStore
	addr   string
	dof    int
	logger logging.Logger
}

func NewIngest(cfg *TeleopConfig, store *CommandStore, logger logging.Logger) *Ingest {
	return &Ingest{
		store:  store,
		addr:   cfg.CommandAddr,
		dof:    cfg.DOF,
		logger: logger,
	}
}

// Run receives until ctx is canceled. Receive is blocking; the socket is
// closed from a watcher goroutine on cancellation so a pending receive
// cannot hang shutdown. Malformed messages are dropped with a diagnostic and
// leave the command state untouched.
func (in *Ingest) Run(ctx context.Context) error {
	sub := zmq4.NewSub(ctx)
	defer sub.Close()

	if err := sub.Dial(in.addr); err != nil {
		return errors.Wrapf(err, "failed to connect command socket to %s", in.addr)
	}
	if err := sub.SetOption(zmq4.OptionSubscribe, ""); err != nil {
		return errors.Wrap(err, "failed to subscribe")
	}
	in.logger.Infof("receiving commands from %s", in.addr)

	// Unblock a pending Recv on shutdown.
	done := make(chan struct{})
	defer close(done)
	go func() {
		select {
		case <-ctx.Done():
			sub.Close()
		case <-done:
		}
	}()

	lastRecv := time.Now()
	for {
		msg, err := sub.Recv()
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return errors.Wrap(err, "command receive failed")
		}

		now := time.Now()
		kind, err := applyCommand(in.store, in.dof, msg.Bytes(), now)
		if err != nil {
			in.logger.Warnf("dropping command message: %v", err)
			continue
		}
		in.logger.Debugf("%s command received, %.1fms since last",
			kind, float64(now.Sub(lastRecv).Microseconds())/1000)
		lastRecv = now
	}
}

// applyCommand decodes one wire payload, classifies it, and stores it. On
// any error the store is left unchanged. Returns the command kind for
// diagnostics.
func applyCommand(store *CommandStore, dof int, payload []byte, now time.Time) (string, error) {
	var msg commandPayload
	if err := json.Unmarshal(payload, &msg); err != nil {
		return "", errors.Wrap(err, "malformed command payload")
	}

	switch {
	case msg.LinearVelocity != nil || msg.AngularVelocity != nil:
		if len(msg.LinearVelocity) != 3 || len(msg.AngularVelocity) != 3 {
			return "", errors.Errorf("velocity command needs 3+3 components, got %d+%d",
				len(msg.LinearVelocity), len(msg.AngularVelocity))
		}
		store.SetVelocity(vectorFrom(msg.LinearVelocity), vectorFrom(msg.AngularVelocity), now)
		return "velocity", nil

	case msg.PoseMatrix != nil:
		if len(msg.PoseMatrix) != 16 {
			return "", errors.Errorf("pose command needs 16 elements, got %d", len(msg.PoseMatrix))
		}
		var pose Mat4
		copy(pose[:], msg.PoseMatrix)
		store.SetPose(pose, now)
		return "pose", nil

	case msg.JointPosition != nil:
		if len(msg.JointPosition) != dof {
			return "", errors.Errorf("joint command needs %d angles, got %d", dof, len(msg.JointPosition))
		}
		store.SetJoints(msg.JointPosition, now)
		return "joint", nil

	default:
		return "", errors.New("unrecognized command shape")
	}
}

func vectorFrom(v []float64) r3.Vector {
	return r3.Vector{X: v[0], Y: v[1], Z: v[2]}
}
