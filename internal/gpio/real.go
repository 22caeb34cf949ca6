//go:build linux

package gpio

import (
	"fmt"

	"github.com/warthog618/go-gpiocdev"
)

// RealWriter drives an output line on actual hardware using the Linux GPIO
// character device.
type RealWriter struct {
	line *gpiocdev.Line
	pin  int
}

// NewRealWriter requests pin on chip as an output, initially low.
func NewRealWriter(chip string, pin int, consumer string) (*RealWriter, error) {
	if chip == "" {
		chip = DefaultChip
	}
	line, err := gpiocdev.RequestLine(chip, pin,
		gpiocdev.AsOutput(0),
		gpiocdev.WithConsumer(consumer))
	if err != nil {
		return nil, fmt.Errorf("request %s pin %d: %w", chip, pin, err)
	}
	return &RealWriter{line: line, pin: pin}, nil
}

// SetValue sets the line level.
func (w *RealWriter) SetValue(v int) error {
	if err := w.line.SetValue(v); err != nil {
		return fmt.Errorf("set pin %d: %w", w.pin, err)
	}
	return nil
}

// Close releases the line.
// Reconfigures the pin to input with pull-down (matching Pi boot defaults)
// before closing so a servo or LED is not left driven across a reboot.
func (w *RealWriter) Close() error {
	var errs []error
	if err := w.line.Reconfigure(gpiocdev.AsInput, gpiocdev.WithPullDown); err != nil {
		errs = append(errs, fmt.Errorf("reconfigure pin %d: %w", w.pin, err))
	}
	if err := w.line.Close(); err != nil {
		errs = append(errs, fmt.Errorf("close pin %d: %w", w.pin, err))
	}
	if len(errs) > 0 {
		return fmt.Errorf("close errors: %v", errs)
	}
	return nil
}
