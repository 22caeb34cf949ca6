// Package mqtt provides MQTT publishing and the settings subscription with
// abstraction for testing.
package mqtt

import (
	"context"
	"encoding/json"
	"time"

	"github.com/sweeney/sleep-monitor/internal/logic"
)

// Topics used by the dashboard.
const (
	// TopicSensor carries the averaged sensor readings of one interval.
	TopicSensor = "sensor"
	// TopicPosture carries the dominant posture of one interval.
	TopicPosture = "posture"
	// TopicSetting is where the dashboard posts the light schedule.
	TopicSetting = "setting"
	// TopicSystem carries lifecycle events.
	TopicSystem = "sleep-monitor/system"
)

// Publisher publishes aggregated payloads to MQTT.
type Publisher interface {
	// Name identifies the publisher in logs and metrics.
	Name() string

	// Publish sends one interval's payload to the broker.
	// Returns error if publishing fails (should not crash the process).
	Publish(ctx context.Context, p logic.Payload) error

	// PublishSystem sends a system lifecycle event to the broker.
	PublishSystem(event SystemEvent) error

	// Close disconnects from the broker.
	Close() error
}

// MessageHandler processes an inbound message. Returned errors are logged.
type MessageHandler func(topic string, payload []byte) error

// Subscriber delivers inbound messages on a topic.
type Subscriber interface {
	Subscribe(topic string, handler MessageHandler) error
}

// ConnectionStatus reports whether the MQTT connection is active.
type ConnectionStatus interface {
	IsConnected() bool
}

// SystemEvent represents a system lifecycle event (e.g., startup, shutdown).
type SystemEvent struct {
	Timestamp time.Time
	Event     string // e.g., "STARTUP", "SHUTDOWN", "RECONNECTED"
	Reason    string // e.g., "SIGTERM", "SIGINT" (shutdown only)
	Retained  bool   // Whether the message should be retained by the broker
}

// FormatSensorPayload creates the JSON body for TopicSensor.
func FormatSensorPayload(p logic.Payload) ([]byte, error) {
	return json.Marshal(p.Sensor)
}

// FormatPosturePayload creates the JSON body for TopicPosture.
func FormatPosturePayload(p logic.Payload) ([]byte, error) {
	return json.Marshal(p.Posture)
}

// SystemPayload represents the MQTT message payload for system events.
type SystemPayload struct {
	System SystemPayloadInner `json:"system"`
}

// SystemPayloadInner contains the system event details.
type SystemPayloadInner struct {
	Timestamp string `json:"timestamp"`
	Event     string `json:"event"`
	Reason    string `json:"reason,omitempty"`
}

// FormatSystemPayload creates the JSON payload for a system event.
func FormatSystemPayload(event SystemEvent) ([]byte, error) {
	payload := SystemPayload{
		System: SystemPayloadInner{
			Timestamp: event.Timestamp.UTC().Format(time.RFC3339),
			Event:     event.Event,
			Reason:    event.Reason,
		},
	}
	return json.Marshal(payload)
}
