package actuator

import "github.com/sweeney/sleep-monitor/internal/gpio"

// LED drives an indicator on a single output line.
type LED struct {
	line gpio.Writer
}

// NewLED creates an LED driver on line.
func NewLED(line gpio.Writer) *LED {
	return &LED{line: line}
}

// Set turns the LED on or off.
func (l *LED) Set(on bool) error {
	if on {
		return l.line.SetValue(1)
	}
	return l.line.SetValue(0)
}

func (l *LED) Activate() error   { return l.Set(true) }
func (l *LED) Deactivate() error { return l.Set(false) }

// Close switches the LED off and releases the line.
func (l *LED) Close() error {
	_ = l.line.SetValue(0)
	return l.line.Close()
}
