package pose

import (
	"context"
	"sync"
	"time"
)

// Fake returns scripted labels. Safe for concurrent use.
type Fake struct {
	mu     sync.Mutex
	Labels []string
	Err    error
	Delay  time.Duration
	index  int
}

// NewFake creates a Fake with the given labels.
func NewFake(labels ...string) *Fake {
	return &Fake{Labels: labels}
}

// Read returns the next scripted label, repeating the last once exhausted.
func (f *Fake) Read(ctx context.Context) (string, error) {
	f.mu.Lock()
	delay, err := f.Delay, f.Err
	label := Unknown
	if len(f.Labels) > 0 {
		label = f.Labels[f.index]
		if f.index < len(f.Labels)-1 {
			f.index++
		}
	}
	f.mu.Unlock()

	if delay > 0 {
		select {
		case <-ctx.Done():
			return Unknown, ctx.Err()
		case <-time.After(delay):
		}
	}
	if err != nil {
		return Unknown, err
	}
	return label, nil
}
