package xmate_teleop

import (
	"encoding/json"
	"math"
	"os"
	"time"

	"github.com/pkg/errors"
	"go.viam.com/rdk/logging"
)

// OperatingMode selects which command shape drives the arm for the whole
// session. It is fixed at session start.
type OperatingMode string

const (
	// ModeVelocity integrates normalized Cartesian velocity commands into a
	// running target transform.
	ModeVelocity OperatingMode = "velocity"
	// ModePose passes received TCP transforms straight through. Smooth motion
	// needs a command rate close to the control rate.
	ModePose OperatingMode = "pose"
	// ModeJoint passes received joint angles straight through. Same rate
	// expectation as ModePose.
	ModeJoint OperatingMode = "joint"
)

func (m OperatingMode) cartesian() bool {
	return m == ModeVelocity || m == ModePose
}

// Tick intervals outside this range are clamped so one misconfigured session
// cannot command a large single-tick step.
const (
	minTickInterval = 100 * time.Microsecond
	maxTickInterval = 2 * time.Millisecond
)

func clampTickInterval(d time.Duration) time.Duration {
	if d < minTickInterval {
		return minTickInterval
	}
	if d > maxTickInterval {
		return maxTickInterval
	}
	return d
}

// TeleopConfig is the immutable session configuration. Construct it once,
// call Validate, and pass it by reference; nothing mutates it after start.
type TeleopConfig struct {
	// Network endpoints. Commands are received on a SUB socket dialed to
	// CommandAddr; telemetry is published on a PUB socket bound to
	// TelemetryAddr.
	CommandAddr   string `json:"command_addr,omitempty"`
	TelemetryAddr string `json:"telemetry_addr,omitempty"`

	// Vendor controller endpoints.
	RobotAddr string `json:"robot_addr,omitempty"`
	LocalAddr string `json:"local_addr,omitempty"`

	Mode OperatingMode `json:"mode,omitempty"`
	DOF  int           `json:"dof,omitempty"`

	// Velocity commands arrive normalized to [-1, 1] and are scaled by these
	// limits (m/s and rad/s).
	MaxLinearVelocity  float64 `json:"max_linear_velocity,omitempty"`
	MaxAngularVelocity float64 `json:"max_angular_velocity,omitempty"`

	// UseToolFrame reinterprets velocity commands as tool-frame quantities
	// before integration.
	UseToolFrame bool `json:"use_tool_frame,omitempty"`

	// IntegrateFromObserved restarts each velocity tick from the pose the
	// controller actually reports instead of the running desired target.
	// Tracking lag makes motion slower in this mode; raise the velocity
	// limits to compensate.
	IntegrateFromObserved bool `json:"integrate_from_observed,omitempty"`

	StalenessWindow  time.Duration `json:"staleness_window,omitempty"`
	TickInterval     time.Duration `json:"tick_interval,omitempty"`
	PublishPeriod    time.Duration `json:"publish_period,omitempty"`
	SlowQueryWarning time.Duration `json:"slow_query_warning,omitempty"`

	// ToolFrame is the TCP offset from the flange, row-major 4x4.
	ToolFrame Mat4 `json:"tool_frame,omitempty"`

	// ReorthonormalizeEvery re-orthonormalizes the target rotation every N
	// velocity ticks to bound numerical drift on long runs. 0 disables it.
	ReorthonormalizeEvery int `json:"reorthonormalize_every,omitempty"`

	// Startup joint configuration reached before the control loop starts.
	InitialJointPositions []float64 `json:"initial_joint_positions,omitempty"`

	// Controller tuning, passed through to the vendor driver.
	ImpedanceControl    bool      `json:"impedance_control,omitempty"`
	CollisionThresholds []float64 `json:"collision_thresholds,omitempty"`
	CartesianImpedance  []float64 `json:"cartesian_impedance,omitempty"`
	JointImpedance      []float64 `json:"joint_impedance,omitempty"`
	FilterFrequencies   []int     `json:"filter_frequencies,omitempty"`
	RtNetworkTolerance  int       `json:"rt_network_tolerance_percent,omitempty"`

	// Not serialized
	Logger logging.Logger `json:"-"`
}

// Validate fills defaults and rejects configurations the session cannot run
// with.
func (cfg *TeleopConfig) Validate() error {
	if cfg.Mode == "" {
		cfg.Mode = ModeVelocity
	}
	switch cfg.Mode {
	case ModeVelocity, ModePose, ModeJoint:
	default:
		return errors.Errorf("unknown operating mode %q", cfg.Mode)
	}

	if cfg.DOF == 0 {
		cfg.DOF = 7
	}
	if cfg.DOF < 1 {
		return errors.Errorf("dof must be positive, got %d", cfg.DOF)
	}

	if cfg.CommandAddr == "" {
		cfg.CommandAddr = "tcp://127.0.0.1:5555"
	}
	if cfg.TelemetryAddr == "" {
		cfg.TelemetryAddr = "tcp://0.0.0.0:5556"
	}
	if cfg.RobotAddr == "" {
		cfg.RobotAddr = "192.168.0.160"
	}
	if cfg.LocalAddr == "" {
		cfg.LocalAddr = "192.168.0.100"
	}

	if cfg.MaxLinearVelocity == 0 {
		cfg.MaxLinearVelocity = 0.08
	}
	if cfg.MaxLinearVelocity < 0 {
		return errors.New("max_linear_velocity must not be negative")
	}
	if cfg.MaxAngularVelocity == 0 {
		cfg.MaxAngularVelocity = 0.16
	}
	if cfg.MaxAngularVelocity < 0 {
		return errors.New("max_angular_velocity must not be negative")
	}

	if cfg.StalenessWindow == 0 {
		cfg.StalenessWindow = 100 * time.Millisecond
	}
	if cfg.TickInterval == 0 {
		cfg.TickInterval = time.Millisecond
	}
	cfg.TickInterval = clampTickInterval(cfg.TickInterval)
	if cfg.PublishPeriod == 0 {
		cfg.PublishPeriod = 100 * time.Millisecond
	}
	if cfg.SlowQueryWarning == 0 {
		cfg.SlowQueryWarning = time.Millisecond
	}

	if cfg.ToolFrame == (Mat4{}) {
		cfg.ToolFrame = identityMat4()
	}

	if cfg.ReorthonormalizeEvery < 0 {
		return errors.New("reorthonormalize_every must not be negative")
	}

	if len(cfg.InitialJointPositions) == 0 {
		cfg.InitialJointPositions = defaultInitialJoints(cfg.DOF)
	}
	if len(cfg.InitialJointPositions) != cfg.DOF {
		return errors.Errorf("expected %d initial joint positions, got %d",
			cfg.DOF, len(cfg.InitialJointPositions))
	}

	if len(cfg.CollisionThresholds) == 0 {
		cfg.CollisionThresholds = defaultCollisionThresholds(cfg.DOF)
	}
	if len(cfg.CollisionThresholds) != cfg.DOF {
		return errors.Errorf("expected %d collision thresholds, got %d",
			cfg.DOF, len(cfg.CollisionThresholds))
	}

	if len(cfg.CartesianImpedance) == 0 {
		cfg.CartesianImpedance = []float64{1200, 1200, 1200, 100, 100, 100}
	}
	if len(cfg.CartesianImpedance) != 6 {
		return errors.Errorf("expected 6 cartesian impedance gains, got %d",
			len(cfg.CartesianImpedance))
	}

	if len(cfg.JointImpedance) == 0 {
		cfg.JointImpedance = defaultJointImpedance(cfg.DOF)
	}
	if len(cfg.JointImpedance) != cfg.DOF {
		return errors.Errorf("expected %d joint impedance gains, got %d",
			cfg.DOF, len(cfg.JointImpedance))
	}

	if len(cfg.FilterFrequencies) == 0 {
		cfg.FilterFrequencies = []int{25, 25, 52}
	}
	if len(cfg.FilterFrequencies) != 3 {
		return errors.Errorf("expected 3 filter frequencies, got %d",
			len(cfg.FilterFrequencies))
	}

	if cfg.RtNetworkTolerance == 0 {
		cfg.RtNetworkTolerance = 10
	}
	if cfg.RtNetworkTolerance < 0 || cfg.RtNetworkTolerance > 100 {
		return errors.Errorf("rt_network_tolerance_percent must be in [0, 100], got %d",
			cfg.RtNetworkTolerance)
	}

	return nil
}

func defaultInitialJoints(dof int) []float64 {
	joints := make([]float64, dof)
	// The canonical 7-axis ready pose; extra axes stay at zero.
	ready := []float64{0, math.Pi / 6, 0, math.Pi / 3, 0, math.Pi / 2, 0}
	copy(joints, ready)
	return joints
}

func defaultCollisionThresholds(dof int) []float64 {
	if dof == 7 {
		return []float64{16, 16, 8, 8, 4, 4, 4}
	}
	thresholds := make([]float64, dof)
	for i := range thresholds {
		thresholds[i] = 8
	}
	return thresholds
}

func defaultJointImpedance(dof int) []float64 {
	gains := make([]float64, dof)
	for i := range gains {
		if i < 3 {
			gains[i] = 1200
		} else {
			gains[i] = 100
		}
	}
	return gains
}

// LoadConfigFromFile reads and validates a session configuration from a JSON
// file.
func LoadConfigFromFile(path string, logger logging.Logger) (*TeleopConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrap(err, "failed to read config file")
	}

	var cfg TeleopConfig
	if err := json.Unmarshal(data, &cfg); err != nil {
		return nil, errors.Wrap(err, "failed to parse config JSON")
	}
	cfg.Logger = logger

	if err := cfg.Validate(); err != nil {
		return nil, errors.Wrapf(err, "invalid config %s", path)
	}
	return &cfg, nil
}
