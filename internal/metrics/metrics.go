// Package metrics exposes Prometheus collectors for the monitor loop.
package metrics

import "github.com/prometheus/client_golang/prometheus"

// Metrics groups every collector the daemon updates.
type Metrics struct {
	Ticks           prometheus.Counter
	Flushes         prometheus.Counter
	FlushRounds     prometheus.Histogram
	SensorFaults    *prometheus.CounterVec
	Malformed       *prometheus.CounterVec
	PublishFaults   *prometheus.CounterVec
	ActuationFaults *prometheus.CounterVec
	Actuations      *prometheus.CounterVec
	LightOn         prometheus.Gauge
	IndicatorOn     prometheus.Gauge
	BufferedMQTT    prometheus.Gauge
}

// New creates the collectors and registers them on reg.
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		Ticks: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "sleep_ticks_total",
			Help: "Sampling rounds handled by the monitor loop.",
		}),
		Flushes: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "sleep_flushes_total",
			Help: "Aggregated payloads handed to the sink.",
		}),
		FlushRounds: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "sleep_flush_rounds",
			Help:    "Sampling rounds reduced into one flush.",
			Buckets: prometheus.LinearBuckets(0, 5, 10),
		}),
		SensorFaults: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "sleep_sensor_faults_total",
			Help: "Sensor or pose reads that failed and were replaced by a default.",
		}, []string{"metric"}),
		Malformed: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "sleep_malformed_messages_total",
			Help: "Inbound messages discarded because they could not be decoded.",
		}, []string{"source"}),
		PublishFaults: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "sleep_publish_faults_total",
			Help: "Flushes a sink failed to accept. The interval's data is not retried.",
		}, []string{"sink"}),
		ActuationFaults: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "sleep_actuation_faults_total",
			Help: "Physical transitions that failed and will be retried.",
		}, []string{"actuator"}),
		Actuations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "sleep_actuations_total",
			Help: "Physical transitions issued.",
		}, []string{"actuator", "state"}),
		LightOn: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "sleep_light_on",
			Help: "1 when the servo light was last driven on.",
		}),
		IndicatorOn: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "sleep_indicator_on",
			Help: "1 when the indicator LED was last driven on.",
		}),
		BufferedMQTT: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "sleep_mqtt_buffered_messages",
			Help: "Messages held for replay while the broker is unreachable.",
		}),
	}

	reg.MustRegister(
		m.Ticks, m.Flushes, m.FlushRounds,
		m.SensorFaults, m.Malformed, m.PublishFaults,
		m.ActuationFaults, m.Actuations,
		m.LightOn, m.IndicatorOn, m.BufferedMQTT,
	)
	return m
}

// NewUnregistered creates collectors that are not exported anywhere.
// Useful for tests and for tools that only need the counters locally.
func NewUnregistered() *Metrics {
	return New(prometheus.NewRegistry())
}

// Bool converts a state to a gauge value.
func Bool(on bool) float64 {
	if on {
		return 1
	}
	return 0
}
