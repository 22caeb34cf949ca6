package gpio

import "sync"

// FakeWriter is a test double that records every level written.
type FakeWriter struct {
	mu sync.Mutex

	// Values holds every level passed to SetValue, in order.
	Values []int

	// Closed tracks if Close was called
	Closed bool

	// SetError, if set, will be returned by SetValue()
	SetError error
}

// NewFakeWriter creates an empty FakeWriter.
func NewFakeWriter() *FakeWriter {
	return &FakeWriter{}
}

// SetValue records v.
func (f *FakeWriter) SetValue(v int) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.SetError != nil {
		return f.SetError
	}
	f.Values = append(f.Values, v)
	return nil
}

// Level returns the last level written, or 0 if none.
func (f *FakeWriter) Level() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.Values) == 0 {
		return 0
	}
	return f.Values[len(f.Values)-1]
}

// Pulses counts rising edges written so far.
func (f *FakeWriter) Pulses() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n, prev := 0, 0
	for _, v := range f.Values {
		if v == 1 && prev == 0 {
			n++
		}
		prev = v
	}
	return n
}

// Close marks the writer as closed.
func (f *FakeWriter) Close() error {
	f.mu.Lock()
	f.Closed = true
	f.mu.Unlock()
	return nil
}

// Reset clears recorded values.
func (f *FakeWriter) Reset() {
	f.mu.Lock()
	f.Values = nil
	f.Closed = false
	f.mu.Unlock()
}
