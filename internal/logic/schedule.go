package logic

import (
	"fmt"
	"time"
)

// MinutesPerDay is the size of the minute-of-day domain.
const MinutesPerDay = 24 * 60

// Unset marks a schedule bound that has not been configured.
const Unset = -1

// ScheduleWindow is a daily on/off window in minutes after midnight.
// It is a value type; callers replace it whole, never field by field.
type ScheduleWindow struct {
	On  int
	Off int
}

// UnsetWindow returns a window with neither bound configured.
func UnsetWindow() ScheduleWindow {
	return ScheduleWindow{On: Unset, Off: Unset}
}

// NewWindow builds a window from hour/minute pairs, normalizing each field.
func NewWindow(onHour, onMinute, offHour, offMinute int) ScheduleWindow {
	return ScheduleWindow{
		On:  HMToMinutes(onHour, onMinute),
		Off: HMToMinutes(offHour, offMinute),
	}
}

// IsSet reports whether both bounds are configured.
func (w ScheduleWindow) IsSet() bool {
	return w.On >= 0 && w.Off >= 0
}

// IsOnAt reports whether the light should be on at now (minutes after midnight).
//
// Unset or empty (on == off) windows are never on. When on < off the window is
// [on, off); otherwise it wraps past midnight: [on, 1440) ∪ [0, off).
func (w ScheduleWindow) IsOnAt(now int) bool {
	if !w.IsSet() || w.On == w.Off {
		return false
	}
	if w.On < w.Off {
		return w.On <= now && now < w.Off
	}
	return now >= w.On || now < w.Off
}

// HMToMinutes converts an hour/minute pair to minutes after midnight.
// Hours wrap mod 24 and minutes mod 60, including negative inputs.
func HMToMinutes(hour, minute int) int {
	return wrap(hour, 24)*60 + wrap(minute, 60)
}

// MinuteOfDay returns the local minute-of-day of t.
func MinuteOfDay(t time.Time) int {
	return t.Hour()*60 + t.Minute()
}

// FormatMinutes renders minutes after midnight as HH:MM, or "--:--" when unset.
func FormatMinutes(m int) string {
	if m < 0 {
		return "--:--"
	}
	return fmt.Sprintf("%02d:%02d", m/60, m%60)
}

func wrap(v, n int) int {
	v %= n
	if v < 0 {
		v += n
	}
	return v
}
