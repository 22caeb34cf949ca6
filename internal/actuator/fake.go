package actuator

import "sync"

// FakeDriver records transitions. Safe for concurrent use.
type FakeDriver struct {
	mu          sync.Mutex
	activates   int
	deactivates int
	closed      bool

	// Err, if set, is returned by Activate and Deactivate.
	Err error
	// Panic, if non-nil, is raised by Activate and Deactivate.
	Panic any
}

// NewFakeDriver creates a FakeDriver.
func NewFakeDriver() *FakeDriver {
	return &FakeDriver{}
}

func (f *FakeDriver) Activate() error   { return f.record(true) }
func (f *FakeDriver) Deactivate() error { return f.record(false) }

func (f *FakeDriver) record(on bool) error {
	f.mu.Lock()
	p, err := f.Panic, f.Err
	if p == nil && err == nil {
		if on {
			f.activates++
		} else {
			f.deactivates++
		}
	}
	f.mu.Unlock()
	if p != nil {
		panic(p)
	}
	return err
}

// SetErr changes the error returned by later transitions.
func (f *FakeDriver) SetErr(err error) {
	f.mu.Lock()
	f.Err = err
	f.mu.Unlock()
}

// Counts returns the number of successful activations and deactivations.
func (f *FakeDriver) Counts() (activates, deactivates int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.activates, f.deactivates
}

// Transitions returns the total number of successful transitions.
func (f *FakeDriver) Transitions() int {
	a, d := f.Counts()
	return a + d
}

// Close marks the driver closed.
func (f *FakeDriver) Close() error {
	f.mu.Lock()
	f.closed = true
	f.mu.Unlock()
	return nil
}

// Closed reports whether Close was called.
func (f *FakeDriver) Closed() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.closed
}
