// Package status provides a thread-safe status tracker for the sleep-monitor daemon.
// It is read by the HTTP handlers and written by the monitor loop.
package status

import (
	"sync"
	"time"

	"github.com/sweeney/sleep-monitor/internal/logic"
)

// Config contains daemon configuration for display.
type Config struct {
	FlushIntervalMs     int64
	ReadTimeoutMs       int64
	BrightnessThreshold float64
	Broker              string
	HTTPPort            string
	Sinks               []string
}

// Counts are running totals since startup.
type Counts struct {
	Rounds           int
	Flushes          int
	Malformed        int
	SensorFaults     int
	PublishFaults    int
	ActuationFaults  int
	ScheduleRejected int
}

// Snapshot is a point-in-time view of daemon state.
// It is a value type, safe to use after the lock is released.
type Snapshot struct {
	Light         bool
	LightKnown    bool
	Indicator     bool
	Window        logic.ScheduleWindow
	LastPayload   *logic.Payload
	Quality       float64
	Counts        Counts
	StartTime     time.Time
	Now           time.Time
	MQTTConnected bool
	Config        Config
}

// Uptime returns the duration since the daemon started.
func (s Snapshot) Uptime() time.Duration {
	return s.Now.Sub(s.StartTime)
}

// Tracker holds mutable daemon state behind an RWMutex.
type Tracker struct {
	mu   sync.RWMutex
	snap Snapshot
}

// NewTracker creates a Tracker with the given start time and config.
func NewTracker(startTime time.Time, cfg Config) *Tracker {
	return &Tracker{
		snap: Snapshot{
			StartTime: startTime,
			Window:    logic.UnsetWindow(),
			Config:    cfg,
		},
	}
}

// SetActuators records the last applied light and indicator states.
func (t *Tracker) SetActuators(light, lightKnown, indicator bool) {
	t.mu.Lock()
	t.snap.Light = light
	t.snap.LightKnown = lightKnown
	t.snap.Indicator = indicator
	t.mu.Unlock()
}

// SetWindow records the active schedule.
func (t *Tracker) SetWindow(w logic.ScheduleWindow) {
	t.mu.Lock()
	t.snap.Window = w
	t.mu.Unlock()
}

// RecordFlush stores the payload just handed to the sinks.
func (t *Tracker) RecordFlush(p logic.Payload, quality float64) {
	t.mu.Lock()
	t.snap.LastPayload = &p
	t.snap.Quality = quality
	t.snap.Counts.Flushes++
	t.mu.Unlock()
}

// Count applies fn to the running totals.
func (t *Tracker) Count(fn func(c *Counts)) {
	t.mu.Lock()
	fn(&t.snap.Counts)
	t.mu.Unlock()
}

// SetMQTTConnected sets the MQTT connection status.
func (t *Tracker) SetMQTTConnected(connected bool) {
	t.mu.Lock()
	t.snap.MQTTConnected = connected
	t.mu.Unlock()
}

// Snapshot returns a point-in-time copy of the daemon state.
// The Now field is set to the current time at the moment of the call.
func (t *Tracker) Snapshot() Snapshot {
	t.mu.RLock()
	s := t.snap
	if s.LastPayload != nil {
		p := *s.LastPayload
		s.LastPayload = &p
	}
	s.Config.Sinks = append([]string(nil), s.Config.Sinks...)
	t.mu.RUnlock()
	s.Now = time.Now()
	return s
}
