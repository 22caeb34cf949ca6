package sensor

import (
	"context"
	"errors"
	"sync"
	"time"
)

// Fake is a test double that returns scripted values.
// It is safe for concurrent use because Read runs on its own goroutine.
type Fake struct {
	mu sync.Mutex

	// Values contains scripted values. Each call to Read consumes the next one;
	// once exhausted the last value repeats.
	Values []float64

	// Err, if set, is returned by Read.
	Err error

	// Delay blocks Read for this long (or until ctx is done).
	Delay time.Duration

	// Panic, if set, makes Read panic with this value.
	Panic any

	index int
	calls int
}

// NewFake creates a Fake with the given values.
func NewFake(values ...float64) *Fake {
	return &Fake{Values: values}
}

// Read returns the next scripted value.
func (f *Fake) Read(ctx context.Context) (float64, error) {
	f.mu.Lock()
	f.calls++
	delay, err, p := f.Delay, f.Err, f.Panic
	var v float64
	var ok bool
	if len(f.Values) > 0 {
		v, ok = f.Values[f.index], true
		if f.index < len(f.Values)-1 {
			f.index++
		}
	}
	f.mu.Unlock()

	if p != nil {
		panic(p)
	}
	if delay > 0 {
		select {
		case <-ctx.Done():
			return 0, ctx.Err()
		case <-time.After(delay):
		}
	}
	if err != nil {
		return 0, err
	}
	if !ok {
		return 0, errors.New("no values configured")
	}
	return v, nil
}

// Calls returns how many times Read was called.
func (f *Fake) Calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

// SetErr changes the scripted error.
func (f *Fake) SetErr(err error) {
	f.mu.Lock()
	f.Err = err
	f.mu.Unlock()
}
