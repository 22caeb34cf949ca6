// Package monitor runs the sampling, actuation and flush loop.
//
// Each round moves through Idle → Sampling → Deciding → (Flushing | Idle):
// the local sensors and pose are sampled, the light is driven from the
// schedule, the indicator from the latest readings, and once per flush
// interval the buffers are reduced into one payload for the sinks.
package monitor

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/sweeney/sleep-monitor/internal/actuator"
	"github.com/sweeney/sleep-monitor/internal/aggregate"
	"github.com/sweeney/sleep-monitor/internal/ble"
	"github.com/sweeney/sleep-monitor/internal/logic"
	"github.com/sweeney/sleep-monitor/internal/metrics"
	"github.com/sweeney/sleep-monitor/internal/pose"
	"github.com/sweeney/sleep-monitor/internal/quality"
	"github.com/sweeney/sleep-monitor/internal/schedule"
	"github.com/sweeney/sleep-monitor/internal/sensor"
	"github.com/sweeney/sleep-monitor/internal/sink"
	"github.com/sweeney/sleep-monitor/internal/status"
)

// Defaults.
const (
	DefaultFlushInterval       = 10 * time.Second
	DefaultReadTimeout         = 2 * time.Second
	DefaultPublishTimeout      = 5 * time.Second
	DefaultBrightnessThreshold = 60.0
)

// State is the loop phase, exposed for diagnostics.
type State int32

const (
	Idle State = iota
	Sampling
	Deciding
	Flushing
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case Sampling:
		return "sampling"
	case Deciding:
		return "deciding"
	case Flushing:
		return "flushing"
	}
	return "unknown"
}

// Config holds the loop tunables. Zero values take the defaults.
type Config struct {
	FlushInterval       time.Duration
	ReadTimeout         time.Duration
	PublishTimeout      time.Duration
	BrightnessThreshold float64
}

func (c *Config) applyDefaults() {
	if c.FlushInterval <= 0 {
		c.FlushInterval = DefaultFlushInterval
	}
	if c.ReadTimeout <= 0 {
		c.ReadTimeout = DefaultReadTimeout
	}
	if c.PublishTimeout <= 0 {
		c.PublishTimeout = DefaultPublishTimeout
	}
	if c.BrightnessThreshold <= 0 {
		c.BrightnessThreshold = DefaultBrightnessThreshold
	}
}

// Deps are the collaborators of a Monitor. Sensors, Pose, Metrics, Tracker,
// Now and NewID are optional.
type Deps struct {
	Sensors   []sensor.Named
	Pose      pose.Source
	Schedule  *schedule.Store
	Light     *actuator.Actuator
	Indicator *actuator.Actuator
	Sink      sink.Sink
	Buffer    *aggregate.Buffer
	Metrics   *metrics.Metrics
	Tracker   *status.Tracker
	Logger    *zap.Logger
	Now       func() time.Time
	NewID     func() string
}

// Monitor owns the buffers and actuators of one device.
type Monitor struct {
	cfg Config
	d   Deps

	// roundMu serializes rounds so overlapping transports cannot re-enter.
	roundMu   sync.Mutex
	lastFlush time.Time
	state     atomic.Int32
}

// New creates a Monitor. The first flush happens one interval after New.
func New(cfg Config, d Deps) (*Monitor, error) {
	if d.Schedule == nil || d.Light == nil || d.Indicator == nil || d.Sink == nil {
		return nil, errors.New("monitor: schedule, light, indicator and sink are required")
	}
	cfg.applyDefaults()
	if d.Logger == nil {
		d.Logger = zap.NewNop()
	}
	if d.Buffer == nil {
		d.Buffer = aggregate.New(logic.LabelUnknown)
	}
	if d.Metrics == nil {
		d.Metrics = metrics.NewUnregistered()
	}
	if d.Now == nil {
		d.Now = time.Now
	}
	if d.NewID == nil {
		d.NewID = uuid.NewString
	}
	if _, ok := d.Sink.(*sink.Multi); !ok {
		d.Sink = sink.NewMulti(d.Logger, d.Metrics, d.Sink)
	}
	return &Monitor{cfg: cfg, d: d, lastFlush: d.Now()}, nil
}

// State returns the current loop phase.
func (m *Monitor) State() State { return State(m.state.Load()) }

func (m *Monitor) setState(s State) { m.state.Store(int32(s)) }

// HandleNotification runs one round for a BLE notification. A malformed
// payload contributes no samples and leaves the indicator alone, but the
// schedule is still enforced and a due flush still happens. It returns the
// flushed payload, if any.
func (m *Monitor) HandleNotification(ctx context.Context, payload []byte) (*logic.Payload, error) {
	tel, err := ble.Decode(payload)
	if err != nil {
		m.d.Logger.Warn("discarding malformed notification",
			zap.ByteString("payload", truncate(payload, 128)),
			zap.Error(err))
		m.d.Metrics.Malformed.WithLabelValues("ble").Inc()
		m.count(func(c *status.Counts) { c.Malformed++ })
		return m.round(ctx, nil, false)
	}
	return m.round(ctx, &tel, true)
}

// Tick runs one round without wearable telemetry.
func (m *Monitor) Tick(ctx context.Context) (*logic.Payload, error) {
	return m.round(ctx, nil, true)
}

func (m *Monitor) round(ctx context.Context, tel *logic.Telemetry, sample bool) (*logic.Payload, error) {
	m.roundMu.Lock()
	defer m.roundMu.Unlock()
	defer m.setState(Idle)

	m.d.Metrics.Ticks.Inc()
	m.count(func(c *status.Counts) { c.Rounds++ })

	var brightness float64
	if sample {
		m.setState(Sampling)
		brightness = m.sample(ctx, tel)
	}

	m.setState(Deciding)
	now := m.d.Now()
	m.decideLight(now)
	if sample {
		m.decideIndicator(brightness, tel)
	}
	m.syncStatus()

	if now.Sub(m.lastFlush) < m.cfg.FlushInterval {
		return nil, nil
	}
	m.setState(Flushing)
	return m.flush(ctx, now)
}

// sample reads every source and appends one round. It returns the
// brightness reading for the indicator override.
func (m *Monitor) sample(ctx context.Context, tel *logic.Telemetry) float64 {
	var label string
	var poseErr error
	var wg sync.WaitGroup
	if m.d.Pose != nil {
		wg.Add(1)
		go func() {
			defer wg.Done()
			label, poseErr = pose.ReadBounded(ctx, m.d.Pose, m.cfg.ReadTimeout)
		}()
	}
	results := sensor.ReadAll(ctx, m.d.Sensors, m.cfg.ReadTimeout, 0)
	wg.Wait()

	values := make(map[logic.Metric]float64, len(results)+2)
	if tel != nil {
		values[logic.MetricHeartRate] = tel.HeartRate
		values[logic.MetricMotion] = tel.Motion
	}
	faults := 0
	for _, r := range results {
		values[r.Metric] = r.Value
		if !r.OK() {
			faults++
			m.d.Logger.Warn("sensor read failed, using default",
				zap.String("metric", string(r.Metric)),
				zap.Duration("took", r.Took),
				zap.Error(r.Err))
			m.d.Metrics.SensorFaults.WithLabelValues(string(r.Metric)).Inc()
		}
	}

	if m.d.Pose == nil {
		label = logic.LabelUnknown
	} else if poseErr != nil {
		label = logic.LabelUnknown
		if !errors.Is(poseErr, pose.ErrNoPerson) {
			faults++
			m.d.Logger.Debug("pose read failed", zap.Error(poseErr))
			m.d.Metrics.SensorFaults.WithLabelValues("posture").Inc()
		}
	}
	if faults > 0 {
		m.count(func(c *status.Counts) { c.SensorFaults += faults })
	}

	m.d.Buffer.AppendRound(values, label)
	return values[logic.MetricBrightness]
}

func (m *Monitor) decideLight(now time.Time) {
	window := m.d.Schedule.Snapshot()
	desired := window.IsOnAt(logic.MinuteOfDay(now))
	if _, err := m.d.Light.Apply(desired); err != nil {
		m.count(func(c *status.Counts) { c.ActuationFaults++ })
	}
	if m.d.Tracker != nil {
		m.d.Tracker.SetWindow(window)
	}
}

// decideIndicator lights the LED when the room is bright or the wearable
// reports no pulse. Without telemetry only brightness is considered.
func (m *Monitor) decideIndicator(brightness float64, tel *logic.Telemetry) {
	on := brightness > m.cfg.BrightnessThreshold
	if tel != nil {
		on = logic.IndicatorOn(brightness, tel.HeartRate, m.cfg.BrightnessThreshold)
	}
	if _, err := m.d.Indicator.Apply(on); err != nil {
		m.count(func(c *status.Counts) { c.ActuationFaults++ })
	}
}

func (m *Monitor) syncStatus() {
	light, known := m.d.Light.State()
	indicator, _ := m.d.Indicator.State()
	m.d.Metrics.LightOn.Set(metrics.Bool(light))
	m.d.Metrics.IndicatorOn.Set(metrics.Bool(indicator))
	if m.d.Tracker != nil {
		m.d.Tracker.SetActuators(light, known, indicator)
	}
}

// flush drains the buffers and publishes. The buffers stay drained when the
// sink fails so a retry cannot double count.
func (m *Monitor) flush(ctx context.Context, now time.Time) (*logic.Payload, error) {
	snap := m.d.Buffer.Drain(logic.NumericMetrics, 0, logic.LabelUnknown)
	light, _ := m.d.Light.State()
	p := logic.Payload{
		ID:        m.d.NewID(),
		Timestamp: now,
		Sensor:    logic.NewSensorAggregate(snap.Means, light),
		Posture:   logic.PostureAggregate{Posture: snap.Label},
		Samples:   snap.Rounds,
	}
	m.lastFlush = now

	m.d.Metrics.Flushes.Inc()
	m.d.Metrics.FlushRounds.Observe(float64(p.Samples))
	if m.d.Tracker != nil {
		m.d.Tracker.RecordFlush(p, quality.Score(p.Sensor))
	}

	pctx, cancel := context.WithTimeout(ctx, m.cfg.PublishTimeout)
	defer cancel()
	if err := m.d.Sink.Publish(pctx, p); err != nil {
		m.count(func(c *status.Counts) { c.PublishFaults++ })
		return &p, err
	}
	m.d.Logger.Debug("flushed",
		zap.String("id", p.ID),
		zap.Int("samples", p.Samples),
		zap.Float64("heart_rate", p.Sensor.HeartRate),
		zap.String("posture", p.Posture.Posture))
	return &p, nil
}

// ForceOff drives both actuators off. Used during shutdown.
func (m *Monitor) ForceOff() error {
	m.roundMu.Lock()
	defer m.roundMu.Unlock()
	return errors.Join(m.d.Light.ForceOff(), m.d.Indicator.ForceOff())
}

func (m *Monitor) count(fn func(c *status.Counts)) {
	if m.d.Tracker != nil {
		m.d.Tracker.Count(fn)
	}
}

func truncate(b []byte, n int) []byte {
	if len(b) > n {
		return b[:n]
	}
	return b
}
