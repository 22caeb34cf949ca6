// Package gpio drives output lines for the bedside actuators: the servo that
// presses the light switch and the indicator LED. real.go talks to the Linux
// GPIO character device; FakeWriter records levels for tests.
package gpio

// Writer drives a single GPIO output line.
type Writer interface {
	// SetValue sets the line level: 1 = high, 0 = low.
	SetValue(v int) error

	// Close releases the line, leaving the pin as a pulled-down input.
	Close() error
}

// BCM pin numbers of the sleep-monitor board.
const (
	PinServo     = 18
	PinIndicator = 5
)

// DefaultChip is the 40-pin header on Pi 3/4. The Pi 5 header is gpiochip4.
const DefaultChip = "gpiochip0"
