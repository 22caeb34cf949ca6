// Package logic contains the pure decision and reduction rules of the sleep monitor.
// This package has NO external dependencies (no GPIO, BLE, MQTT, OS, or time.Sleep).
// Time is always injectable via time.Time parameters.
package logic

import "time"

// LabelUnknown is the sentinel posture label for a failed or low-confidence read.
const LabelUnknown = "Unknown"

// Metric names a numeric series. The values double as JSON keys of the sensor payload.
type Metric string

const (
	MetricHeartRate   Metric = "heartRate"
	MetricMotion      Metric = "motion"
	MetricHumidity    Metric = "humid"
	MetricTemperature Metric = "temp"
	MetricSound       Metric = "sound"
	MetricBrightness  Metric = "brightness"
)

// NumericMetrics lists every numeric series drained on flush, in payload order.
var NumericMetrics = []Metric{
	MetricHeartRate,
	MetricMotion,
	MetricHumidity,
	MetricTemperature,
	MetricSound,
	MetricBrightness,
}

// Telemetry is the wearer data carried by one BLE notification from the ESP32.
type Telemetry struct {
	HeartRate float64
	Motion    float64
}

// SensorAggregate is the reduced sensor series of one flush interval.
type SensorAggregate struct {
	HeartRate  float64 `json:"heartRate"`
	Motion     float64 `json:"motion"`
	Humid      float64 `json:"humid"`
	Temp       float64 `json:"temp"`
	Sound      float64 `json:"sound"`
	Brightness float64 `json:"brightness"`
	Light      bool    `json:"light"`
}

// PostureAggregate is the reduced posture series of one flush interval.
type PostureAggregate struct {
	Posture string `json:"posture"`
}

// Payload is one outbound flush. It is immutable once built.
type Payload struct {
	ID        string
	Timestamp time.Time
	Sensor    SensorAggregate
	Posture   PostureAggregate
	// Samples is the number of rounds that contributed to the aggregate.
	Samples int
}

// NewSensorAggregate builds a SensorAggregate from per-metric means.
// Missing metrics read as zero.
func NewSensorAggregate(means map[Metric]float64, light bool) SensorAggregate {
	return SensorAggregate{
		HeartRate:  means[MetricHeartRate],
		Motion:     means[MetricMotion],
		Humid:      means[MetricHumidity],
		Temp:       means[MetricTemperature],
		Sound:      means[MetricSound],
		Brightness: means[MetricBrightness],
		Light:      light,
	}
}
