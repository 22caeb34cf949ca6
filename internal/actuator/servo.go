package actuator

import (
	"math"
	"sync"
	"time"

	"github.com/sweeney/sleep-monitor/internal/gpio"
)

// Servo timing defaults for an SG90-class servo.
const (
	ServoPeriod     = 20 * time.Millisecond // 50 Hz
	ServoMinPulse   = 600 * time.Microsecond
	ServoMaxPulse   = 2300 * time.Microsecond
	ServoMinAngle   = -90.0
	ServoMaxAngle   = 90.0
	ServoSettle     = 300 * time.Millisecond
	ServoDeadband   = 3.0
	ServoPressAngle = 60.0
)

// Servo presses a wall light switch. Activate swings to +60° and back to
// rest, Deactivate swings to -60° and back. Pulses are generated in software
// on a single GPIO line and the line idles low between moves so the horn
// does not jitter.
type Servo struct {
	line   gpio.Writer
	settle time.Duration

	// sleep is swapped in tests.
	sleep func(time.Duration)

	mu    sync.Mutex
	angle float64
	moved bool
}

// NewServo creates a servo driver on line.
func NewServo(line gpio.Writer, settle time.Duration) *Servo {
	if settle <= 0 {
		settle = ServoSettle
	}
	return &Servo{line: line, settle: settle, sleep: time.Sleep}
}

// Activate turns the light on.
func (s *Servo) Activate() error {
	return s.press(ServoPressAngle)
}

// Deactivate turns the light off.
func (s *Servo) Deactivate() error {
	return s.press(-ServoPressAngle)
}

// Close idles the line and releases it.
func (s *Servo) Close() error {
	_ = s.line.SetValue(0)
	return s.line.Close()
}

// Rest moves the horn to 0° unless it is already there.
func (s *Servo) Rest() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.moveTo(0)
}

// Angle returns the last commanded angle.
func (s *Servo) Angle() float64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.angle
}

func (s *Servo) press(angle float64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.moveTo(angle); err != nil {
		return err
	}
	return s.moveTo(0)
}

// moveTo must be called with mu held.
func (s *Servo) moveTo(angle float64) error {
	if s.moved && math.Abs(angle-s.angle) < ServoDeadband {
		return nil
	}
	high := pulseWidth(angle)
	low := ServoPeriod - high
	for held := time.Duration(0); held < s.settle; held += ServoPeriod {
		if err := s.line.SetValue(1); err != nil {
			return err
		}
		s.sleep(high)
		if err := s.line.SetValue(0); err != nil {
			return err
		}
		s.sleep(low)
	}
	s.angle, s.moved = angle, true
	return nil
}

// pulseWidth maps an angle onto the servo's pulse range. Angles outside
// [ServoMinAngle, ServoMaxAngle] are clamped.
func pulseWidth(angle float64) time.Duration {
	angle = math.Max(ServoMinAngle, math.Min(ServoMaxAngle, angle))
	frac := (angle - ServoMinAngle) / (ServoMaxAngle - ServoMinAngle)
	span := float64(ServoMaxPulse - ServoMinPulse)
	return ServoMinPulse + time.Duration(math.Round(frac*span))
}
