package sensor

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sync"
	"time"
)

// Sound reports microphone loudness as the peak deviation of the amplifier
// output from its quiet DC offset over a short window.
type Sound struct {
	Voltage Source
	Window  time.Duration
	// Now is the clock used to bound the window. Defaults to time.Now.
	Now func() time.Time

	mu     sync.Mutex
	offset float64
	ready  bool
}

// NewSound creates a Sound reader sampling voltage over window.
func NewSound(voltage Source, window time.Duration) *Sound {
	return &Sound{Voltage: voltage, Window: window, Now: time.Now}
}

// Calibrate averages n quiet readings to find the DC offset. Failed readings
// are skipped; at least one must succeed.
func (s *Sound) Calibrate(ctx context.Context, n int, gap time.Duration) (float64, error) {
	var total float64
	var ok int
	var lastErr error
	for i := 0; i < n; i++ {
		v, err := s.Voltage.Read(ctx)
		if err != nil {
			lastErr = err
		} else {
			total += v
			ok++
		}
		if gap > 0 {
			select {
			case <-ctx.Done():
				return 0, ctx.Err()
			case <-time.After(gap):
			}
		}
	}
	if ok == 0 {
		return 0, fmt.Errorf("calibrate sound: no readings: %w", lastErr)
	}
	offset := total / float64(ok)
	s.SetOffset(offset)
	return offset, nil
}

// SetOffset sets the DC offset directly.
func (s *Sound) SetOffset(offset float64) {
	s.mu.Lock()
	s.offset = offset
	s.ready = true
	s.mu.Unlock()
}

// Read implements Source.
func (s *Sound) Read(ctx context.Context) (float64, error) {
	s.mu.Lock()
	offset, ready := s.offset, s.ready
	s.mu.Unlock()
	if !ready {
		return 0, errors.New("sound: not calibrated")
	}

	now := s.Now
	if now == nil {
		now = time.Now
	}
	end := now().Add(s.Window)
	var peak float64
	for {
		if err := ctx.Err(); err != nil {
			return 0, err
		}
		v, err := s.Voltage.Read(ctx)
		if err != nil {
			return 0, err
		}
		if d := math.Abs(v - offset); d > peak {
			peak = d
		}
		if !now().Before(end) {
			break
		}
	}
	return peak, nil
}
