// Package ble receives heart-rate and motion telemetry from the wearable
// over Bluetooth Low Energy.
//
// The wearable advertises as DeviceName and notifies a JSON object on
// NotifyCharacteristic roughly once a second:
//
//	{"heartRate": 72, "motion": 0.4}
package ble

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/sweeney/sleep-monitor/internal/logic"
)

// Defaults for the ESP32 wearable.
const (
	DeviceName           = "ESP32S3_BLE"
	NotifyCharacteristic = "6E400003-B5A3-F393-E0A9-E50E24DCCA9E"
)

// ErrMalformed is returned for notifications that are not valid telemetry.
var ErrMalformed = errors.New("malformed telemetry")

// Dial errors. Both mean retrying will not help without operator action.
var (
	ErrAdapter  = errors.New("bluetooth adapter unavailable")
	ErrNotFound = errors.New("wearable not found")
)

// Source delivers raw notification payloads.
type Source interface {
	// Notifications is closed when the link drops or Close is called.
	Notifications() <-chan []byte
	Close() error
}

// Decode parses one notification. heartRate must be a number; motion may
// be a number or a boolean. Both fields are required.
func Decode(payload []byte) (logic.Telemetry, error) {
	var raw struct {
		HeartRate json.RawMessage `json:"heartRate"`
		Motion    json.RawMessage `json:"motion"`
	}
	if err := json.Unmarshal(bytes.TrimSpace(payload), &raw); err != nil {
		return logic.Telemetry{}, fmt.Errorf("%w: %v", ErrMalformed, err)
	}

	hr, err := number(raw.HeartRate)
	if err != nil {
		return logic.Telemetry{}, fmt.Errorf("%w: heartRate: %v", ErrMalformed, err)
	}
	motion, err := number(raw.Motion)
	if err != nil {
		return logic.Telemetry{}, fmt.Errorf("%w: motion: %v", ErrMalformed, err)
	}
	return logic.Telemetry{HeartRate: hr, Motion: motion}, nil
}

func number(raw json.RawMessage) (float64, error) {
	if len(raw) == 0 || string(raw) == "null" {
		return 0, errors.New("missing")
	}
	var f float64
	if err := json.Unmarshal(raw, &f); err == nil {
		return f, nil
	}
	var b bool
	if err := json.Unmarshal(raw, &b); err == nil {
		if b {
			return 1, nil
		}
		return 0, nil
	}
	return 0, fmt.Errorf("not a number: %s", raw)
}
