//go:build !linux

package gpio

import "errors"

// ErrUnsupported is returned by NewRealWriter off Linux. Use FakeWriter there.
var ErrUnsupported = errors.New("gpio: character device requires linux")

// RealWriter is a placeholder so callers build on every platform.
type RealWriter struct{}

func NewRealWriter(chip string, pin int, consumer string) (*RealWriter, error) {
	return nil, ErrUnsupported
}

func (w *RealWriter) SetValue(int) error { return ErrUnsupported }

func (w *RealWriter) Close() error { return nil }
