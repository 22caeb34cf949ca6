// Package actuator drives on/off hardware such as the servo light switch and
// the indicator LED, issuing a physical command only on a state change.
package actuator

import (
	"fmt"
	"sync"

	"go.uber.org/zap"

	"github.com/sweeney/sleep-monitor/internal/metrics"
)

// Driver performs physical transitions.
type Driver interface {
	Activate() error
	Deactivate() error
	Close() error
}

// Actuator remembers the last applied state of a Driver.
type Actuator struct {
	name    string
	driver  Driver
	logger  *zap.Logger
	metrics *metrics.Metrics

	mu    sync.Mutex
	on    bool
	known bool
}

// New wraps driver. The state is unknown until the first successful Apply,
// so the first call always reaches the hardware. m may be nil.
func New(name string, driver Driver, logger *zap.Logger, m *metrics.Metrics) *Actuator {
	return &Actuator{name: name, driver: driver, logger: logger, metrics: m}
}

// Name returns the actuator name used in logs and metrics.
func (a *Actuator) Name() string { return a.name }

// Apply drives the hardware to desired if it differs from the last applied
// state. On failure the cached state is left unchanged so the next call
// retries.
func (a *Actuator) Apply(desired bool) (bool, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.known && a.on == desired {
		return false, nil
	}
	if err := a.drive(desired); err != nil {
		return false, err
	}
	return true, nil
}

// ForceOff drives the off transition regardless of the cached state.
func (a *Actuator) ForceOff() error {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.drive(false)
}

// State returns the last applied state and whether any transition has
// succeeded yet.
func (a *Actuator) State() (on, known bool) {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.on, a.known
}

// Close releases the driver.
func (a *Actuator) Close() error {
	return a.driver.Close()
}

// drive must be called with mu held.
func (a *Actuator) drive(on bool) error {
	err := safeCall(func() error {
		if on {
			return a.driver.Activate()
		}
		return a.driver.Deactivate()
	})
	if err != nil {
		a.logger.Warn("actuation failed",
			zap.String("actuator", a.name),
			zap.Bool("desired", on),
			zap.Error(err))
		if a.metrics != nil {
			a.metrics.ActuationFaults.WithLabelValues(a.name).Inc()
		}
		return fmt.Errorf("%s: %w", a.name, err)
	}

	a.on, a.known = on, true
	a.logger.Info("actuated", zap.String("actuator", a.name), zap.Bool("on", on))
	if a.metrics != nil {
		a.metrics.Actuations.WithLabelValues(a.name, stateLabel(on)).Inc()
	}
	return nil
}

func stateLabel(on bool) string {
	if on {
		return "on"
	}
	return "off"
}

func safeCall(fn func() error) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("driver panic: %v", r)
		}
	}()
	return fn()
}
