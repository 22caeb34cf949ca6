// Package schedule holds the light schedule shared between the MQTT setting
// handler (writer) and the monitor loop (reader).
package schedule

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
	"sync/atomic"

	"go.uber.org/zap"

	"github.com/sweeney/sleep-monitor/internal/logic"
)

// ErrIncompleteSetting is returned when a setting message lacks one of the
// four schedule fields.
var ErrIncompleteSetting = errors.New("incomplete setting: expected lightOnHour, lightOnMin, lightOffHour, lightOffMin")

// Setting field names of the inbound configuration message.
const (
	FieldOnHour    = "lightOnHour"
	FieldOnMinute  = "lightOnMin"
	FieldOffHour   = "lightOffHour"
	FieldOffMinute = "lightOffMin"
)

// Store holds the current window. Readers get a copy; writers replace the
// whole window, so a half-updated window is never observable.
type Store struct {
	window atomic.Pointer[logic.ScheduleWindow]
	logger *zap.Logger
}

// NewStore creates a Store with an unset window.
func NewStore(logger *zap.Logger) *Store {
	s := &Store{logger: logger}
	w := logic.UnsetWindow()
	s.window.Store(&w)
	return s
}

// Snapshot returns a copy of the current window.
func (s *Store) Snapshot() logic.ScheduleWindow {
	return *s.window.Load()
}

// SetWindow normalizes the four fields and commits a new window.
func (s *Store) SetWindow(onHour, onMinute, offHour, offMinute int) logic.ScheduleWindow {
	w := logic.NewWindow(onHour, onMinute, offHour, offMinute)
	s.window.Store(&w)
	return w
}

// ApplySetting decodes a setting message and commits it. Malformed or partial
// messages return an error and leave the current window untouched.
func (s *Store) ApplySetting(payload []byte) (logic.ScheduleWindow, error) {
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(payload, &raw); err != nil {
		return s.Snapshot(), fmt.Errorf("decode setting: %w", err)
	}

	fields := [4]string{FieldOnHour, FieldOnMinute, FieldOffHour, FieldOffMinute}
	var vals [4]int
	for i, name := range fields {
		v, ok := raw[name]
		if !ok || bytes.Equal(bytes.TrimSpace(v), []byte("null")) {
			return s.Snapshot(), ErrIncompleteSetting
		}
		n, err := parseInt(v)
		if err != nil {
			return s.Snapshot(), fmt.Errorf("field %s: %w", name, err)
		}
		vals[i] = n
	}

	return s.SetWindow(vals[0], vals[1], vals[2], vals[3]), nil
}

// HandleMessage is the MQTT handler for the setting topic.
func (s *Store) HandleMessage(topic string, payload []byte) error {
	w, err := s.ApplySetting(payload)
	if err != nil {
		s.logger.Warn("setting ignored",
			zap.String("topic", topic),
			zap.ByteString("payload", payload),
			zap.Error(err))
		return err
	}
	s.logger.Info("schedule updated",
		zap.String("on", logic.FormatMinutes(w.On)),
		zap.String("off", logic.FormatMinutes(w.Off)))
	return nil
}

// ParseClock parses "HH:MM" into hour and minute.
func ParseClock(s string) (int, int, error) {
	h, m, ok := strings.Cut(strings.TrimSpace(s), ":")
	if !ok {
		return 0, 0, fmt.Errorf("clock %q: want HH:MM", s)
	}
	hour, err := strconv.Atoi(h)
	if err != nil {
		return 0, 0, fmt.Errorf("clock %q: hour: %w", s, err)
	}
	minute, err := strconv.Atoi(m)
	if err != nil {
		return 0, 0, fmt.Errorf("clock %q: minute: %w", s, err)
	}
	return hour, minute, nil
}

// parseInt accepts a JSON number or a numeric string. Fractions truncate.
func parseInt(raw json.RawMessage) (int, error) {
	var f float64
	if err := json.Unmarshal(raw, &f); err == nil {
		return truncate(f)
	}
	var str string
	if err := json.Unmarshal(raw, &str); err != nil {
		return 0, fmt.Errorf("not a number: %s", raw)
	}
	f, err := strconv.ParseFloat(strings.TrimSpace(str), 64)
	if err != nil {
		return 0, fmt.Errorf("not a number: %q", str)
	}
	return truncate(f)
}

func truncate(f float64) (int, error) {
	if math.IsNaN(f) || math.IsInf(f, 0) || math.Abs(f) > math.MaxInt32 {
		return 0, fmt.Errorf("out of range: %v", f)
	}
	return int(f), nil
}
