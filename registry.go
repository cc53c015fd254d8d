package xmate_teleop

import (
	"sync"

	"github.com/pkg/errors"
)

// ControllerDialer opens a connection to the robot at the configured
// address.
type ControllerDialer func(cfg *TeleopConfig) (MotionController, error)

type controllerEntry struct {
	controller *SafeMotionController
	cfg        *TeleopConfig
	refCount   int64
	lastError  error
}

// ControllerRegistry shares one controller connection per robot address. The
// vendor controller accepts a single real-time client, so a second session
// against the same robot must either reuse the existing connection (matching
// config) or be refused.
type ControllerRegistry struct {
	mu      sync.Mutex
	entries map[string]*controllerEntry
}

func NewControllerRegistry() *ControllerRegistry {
	return &ControllerRegistry{entries: make(map[string]*controllerEntry)}
}

// Get returns the shared controller for cfg.RobotAddr, dialing on first use.
// A failed dial is cached so repeated calls fail fast until Release clears
// the entry.
func (r *ControllerRegistry) Get(cfg *TeleopConfig, dial ControllerDialer) (*SafeMotionController, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	entry, ok := r.entries[cfg.RobotAddr]
	if ok {
		if entry.lastError != nil {
			return nil, errors.Wrapf(entry.lastError, "cached controller error for %s", cfg.RobotAddr)
		}
		if !controllersCompatible(entry.cfg, cfg) {
			return nil, errors.Errorf(
				"conflict: controller for %s already open with incompatible config (refCount: %d)",
				cfg.RobotAddr, entry.refCount)
		}
		entry.refCount++
		return entry.controller, nil
	}

	ctrl, err := dial(cfg)
	if err != nil {
		r.entries[cfg.RobotAddr] = &controllerEntry{cfg: cfg, lastError: err}
		return nil, errors.Wrapf(err, "failed to connect to robot at %s", cfg.RobotAddr)
	}

	entry = &controllerEntry{
		controller: NewSafeMotionController(ctrl),
		cfg:        cfg,
		refCount:   1,
	}
	r.entries[cfg.RobotAddr] = entry
	return entry.controller, nil
}

// Release drops one reference to the controller for addr, closing it when
// the last reference goes away. Cached dial errors are cleared so the next
// Get retries.
func (r *ControllerRegistry) Release(addr string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	entry, ok := r.entries[addr]
	if !ok {
		return
	}
	if entry.lastError != nil {
		delete(r.entries, addr)
		return
	}

	entry.refCount--
	if entry.refCount <= 0 {
		if err := entry.controller.Close(); err != nil && entry.cfg != nil && entry.cfg.Logger != nil {
			entry.cfg.Logger.Warnf("error closing controller for %s: %v", addr, err)
		}
		delete(r.entries, addr)
	}
}

// Status reports the registry's view of one address: refcount, whether a
// live controller exists, and a config summary.
func (r *ControllerRegistry) Status(addr string) (int64, bool, string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	entry, ok := r.entries[addr]
	if !ok || entry.controller == nil {
		return 0, false, ""
	}
	summary := string(entry.cfg.Mode) + " mode, local " + entry.cfg.LocalAddr
	return entry.refCount, true, summary
}

// Sessions can share a controller only when the physical setup they assume
// is identical.
func controllersCompatible(a, b *TeleopConfig) bool {
	if a == nil || b == nil {
		return false
	}
	return a.RobotAddr == b.RobotAddr &&
		a.LocalAddr == b.LocalAddr &&
		a.DOF == b.DOF &&
		a.ImpedanceControl == b.ImpedanceControl &&
		a.ToolFrame == b.ToolFrame
}
