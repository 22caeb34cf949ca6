package status

import (
	"encoding/json"
	"time"

	"github.com/sweeney/sleep-monitor/internal/logic"
)

// StatusJSON is the top-level JSON envelope for status output.
type StatusJSON struct {
	Status StatusInner `json:"status"`
}

// StatusInner contains the status details.
type StatusInner struct {
	Light         string        `json:"light"`
	Indicator     bool          `json:"indicator"`
	Schedule      ScheduleJSON  `json:"schedule"`
	Quality       float64       `json:"quality"`
	Last          *ReadingsJSON `json:"last,omitempty"`
	UptimeSeconds int64         `json:"uptime_seconds"`
	StartTime     string        `json:"start_time"`
	Timestamp     string        `json:"timestamp"`
	MQTT          MQTTStatus    `json:"mqtt"`
	Counts        CountsJSON    `json:"counts"`
	Config        ConfigJSON    `json:"config"`
}

// ScheduleJSON is the light window as HH:MM strings.
type ScheduleJSON struct {
	On  string `json:"on"`
	Off string `json:"off"`
	Set bool   `json:"set"`
}

// ReadingsJSON is the last flushed payload.
type ReadingsJSON struct {
	ID        string                `json:"id"`
	Timestamp string                `json:"timestamp"`
	Sensor    logic.SensorAggregate `json:"sensor"`
	Posture   string                `json:"posture"`
	Samples   int                   `json:"samples"`
}

// MQTTStatus reports MQTT connection state.
type MQTTStatus struct {
	Connected bool   `json:"connected"`
	Broker    string `json:"broker"`
}

// CountsJSON is the JSON representation of running totals.
type CountsJSON struct {
	Rounds           int `json:"rounds"`
	Flushes          int `json:"flushes"`
	Malformed        int `json:"malformed"`
	SensorFaults     int `json:"sensor_faults"`
	PublishFaults    int `json:"publish_faults"`
	ActuationFaults  int `json:"actuation_faults"`
	ScheduleRejected int `json:"schedule_rejected"`
}

// ConfigJSON is the JSON representation of daemon config.
type ConfigJSON struct {
	FlushIntervalMs     int64    `json:"flush_interval_ms"`
	ReadTimeoutMs       int64    `json:"read_timeout_ms"`
	BrightnessThreshold float64  `json:"brightness_threshold"`
	Broker              string   `json:"broker"`
	HTTPPort            string   `json:"http_port"`
	Sinks               []string `json:"sinks"`
}

// LightLabel renders the light state, UNKNOWN before the first actuation.
func LightLabel(snap Snapshot) string {
	switch {
	case !snap.LightKnown:
		return "UNKNOWN"
	case snap.Light:
		return "ON"
	default:
		return "OFF"
	}
}

// FormatJSON returns the JSON status for the web endpoint.
func FormatJSON(snap Snapshot) []byte {
	inner := StatusInner{
		Light:     LightLabel(snap),
		Indicator: snap.Indicator,
		Schedule: ScheduleJSON{
			On:  logic.FormatMinutes(snap.Window.On),
			Off: logic.FormatMinutes(snap.Window.Off),
			Set: snap.Window.IsSet(),
		},
		Quality:       snap.Quality,
		UptimeSeconds: int64(snap.Uptime().Truncate(time.Second).Seconds()),
		StartTime:     snap.StartTime.UTC().Format(time.RFC3339),
		Timestamp:     snap.Now.UTC().Format(time.RFC3339),
		MQTT:          MQTTStatus{Connected: snap.MQTTConnected, Broker: snap.Config.Broker},
		Counts:        CountsJSON(snap.Counts),
		Config: ConfigJSON{
			FlushIntervalMs:     snap.Config.FlushIntervalMs,
			ReadTimeoutMs:       snap.Config.ReadTimeoutMs,
			BrightnessThreshold: snap.Config.BrightnessThreshold,
			Broker:              snap.Config.Broker,
			HTTPPort:            snap.Config.HTTPPort,
			Sinks:               snap.Config.Sinks,
		},
	}
	if p := snap.LastPayload; p != nil {
		inner.Last = &ReadingsJSON{
			ID:        p.ID,
			Timestamp: p.Timestamp.UTC().Format(time.RFC3339),
			Sensor:    p.Sensor,
			Posture:   p.Posture.Posture,
			Samples:   p.Samples,
		}
	}

	data, _ := json.MarshalIndent(StatusJSON{Status: inner}, "", "  ")
	return data
}
