package mqtt

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/sweeney/sleep-monitor/internal/logic"
)

func testPayload() logic.Payload {
	return logic.Payload{
		ID:        "batch-1",
		Timestamp: time.Date(2026, 2, 2, 22, 18, 12, 0, time.UTC),
		Sensor: logic.SensorAggregate{
			HeartRate:  70,
			Motion:     0.25,
			Humid:      45,
			Temp:       22.5,
			Sound:      0.1,
			Brightness: 12,
			Light:      true,
		},
		Posture: logic.PostureAggregate{Posture: "Left Side"},
		Samples: 10,
	}
}

func TestTopics(t *testing.T) {
	if TopicSensor != "sensor" {
		t.Errorf("unexpected sensor topic: %s", TopicSensor)
	}
	if TopicPosture != "posture" {
		t.Errorf("unexpected posture topic: %s", TopicPosture)
	}
	if TopicSetting != "setting" {
		t.Errorf("unexpected setting topic: %s", TopicSetting)
	}
}

func TestFormatSensorPayloadExactJSON(t *testing.T) {
	payload, err := FormatSensorPayload(testPayload())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	expected := `{"heartRate":70,"motion":0.25,"humid":45,"temp":22.5,"sound":0.1,"brightness":12,"light":true}`
	if string(payload) != expected {
		t.Errorf("unexpected payload:\ngot:  %s\nwant: %s", string(payload), expected)
	}
}

func TestFormatPosturePayloadExactJSON(t *testing.T) {
	payload, err := FormatPosturePayload(testPayload())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	expected := `{"posture":"Left Side"}`
	if string(payload) != expected {
		t.Errorf("unexpected payload:\ngot:  %s\nwant: %s", string(payload), expected)
	}
}

func TestFormatSystemPayloadExactJSON(t *testing.T) {
	event := SystemEvent{
		Timestamp: time.Date(2026, 2, 3, 10, 30, 45, 0, time.UTC),
		Event:     "SHUTDOWN",
		Reason:    "SIGTERM",
	}

	payload, err := FormatSystemPayload(event)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	expected := `{"system":{"timestamp":"2026-02-03T10:30:45Z","event":"SHUTDOWN","reason":"SIGTERM"}}`
	if string(payload) != expected {
		t.Errorf("unexpected payload:\ngot:  %s\nwant: %s", string(payload), expected)
	}
}

func TestFormatSystemPayloadStartupOmitsReason(t *testing.T) {
	event := SystemEvent{
		Timestamp: time.Date(2026, 2, 3, 10, 30, 45, 0, time.UTC),
		Event:     "STARTUP",
	}

	payload, err := FormatSystemPayload(event)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	var raw map[string]map[string]any
	if err := json.Unmarshal(payload, &raw); err != nil {
		t.Fatalf("invalid JSON: %v", err)
	}
	if _, ok := raw["system"]["reason"]; ok {
		t.Error("reason should be omitted for STARTUP")
	}
}

func TestFormatSystemPayloadTimezoneConversion(t *testing.T) {
	loc := time.FixedZone("CET", 3600)
	event := SystemEvent{
		Timestamp: time.Date(2026, 2, 3, 11, 30, 45, 0, loc),
		Event:     "STARTUP",
	}

	payload, err := FormatSystemPayload(event)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	var parsed SystemPayload
	if err := json.Unmarshal(payload, &parsed); err != nil {
		t.Fatalf("invalid JSON: %v", err)
	}
	if parsed.System.Timestamp != "2026-02-03T10:30:45Z" {
		t.Errorf("expected UTC timestamp, got %s", parsed.System.Timestamp)
	}
}

func TestBrokerURL(t *testing.T) {
	tests := []struct {
		cfg  Config
		want string
	}{
		{Config{Host: "localhost"}, "tcp://localhost:1883"},
		{Config{Host: "localhost", TLS: true}, "ssl://localhost:8883"},
		{Config{Host: "broker.example.com", Port: 8884, TLS: true}, "ssl://broker.example.com:8884"},
		{Config{Host: "10.0.0.5", Port: 1884}, "tcp://10.0.0.5:1884"},
	}

	for _, tt := range tests {
		if got := tt.cfg.BrokerURL(); got != tt.want {
			t.Errorf("BrokerURL(%+v) = %s, want %s", tt.cfg, got, tt.want)
		}
	}
}

func TestFakePublisher(t *testing.T) {
	f := NewFakePublisher()

	if err := f.Publish(context.Background(), testPayload()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if len(f.Payloads) != 1 {
		t.Fatalf("expected 1 payload, got %d", len(f.Payloads))
	}
	if f.Count(TopicSensor) != 1 || f.Count(TopicPosture) != 1 {
		t.Errorf("expected one sensor and one posture message, got %d and %d",
			f.Count(TopicSensor), f.Count(TopicPosture))
	}
	if string(f.Last(TopicPosture)) != `{"posture":"Left Side"}` {
		t.Errorf("unexpected posture message: %s", f.Last(TopicPosture))
	}
	if f.Last("nothing") != nil {
		t.Error("expected nil for unused topic")
	}
}

func TestFakePublisherError(t *testing.T) {
	f := NewFakePublisher()
	f.PublishError = errors.New("broker down")

	if err := f.Publish(context.Background(), testPayload()); err == nil {
		t.Fatal("expected error")
	}
	if f.Count(TopicSensor) != 0 {
		t.Error("failed publish should not be recorded")
	}
}

func TestFakePublisherPublishSystem(t *testing.T) {
	f := NewFakePublisher()
	event := SystemEvent{Timestamp: time.Now(), Event: "STARTUP"}

	if err := f.PublishSystem(event); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(f.SystemEvents) != 1 || f.SystemEvents[0].Event != "STARTUP" {
		t.Errorf("unexpected system events: %+v", f.SystemEvents)
	}

	f.PublishSystemError = errors.New("nope")
	if err := f.PublishSystem(event); err == nil {
		t.Error("expected error")
	}
}

func TestFakePublisherSubscribeDeliver(t *testing.T) {
	f := NewFakePublisher()
	var got []byte
	if err := f.Subscribe(TopicSetting, func(topic string, payload []byte) error {
		got = payload
		return nil
	}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if err := f.Deliver(TopicSetting, []byte(`{"lightOnHour":8}`)); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if string(got) != `{"lightOnHour":8}` {
		t.Errorf("handler got %s", got)
	}
	if err := f.Deliver("other", nil); err != nil {
		t.Errorf("unsubscribed topic should be ignored, got %v", err)
	}
}

func TestFakePublisherReset(t *testing.T) {
	f := NewFakePublisher()
	f.Publish(context.Background(), testPayload())
	f.Close()
	f.Connected = true

	f.Reset()

	if len(f.Payloads) != 0 || f.Count(TopicSensor) != 0 || f.Closed || f.IsConnected() {
		t.Error("reset should clear all state")
	}
}
