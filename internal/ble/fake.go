package ble

import "sync"

// Fake is an in-memory Source for tests and dry runs.
type Fake struct {
	notes  chan []byte
	once   sync.Once
	closed chan struct{}
}

// NewFake creates a Fake with the given channel capacity.
func NewFake(buffer int) *Fake {
	return &Fake{notes: make(chan []byte, buffer), closed: make(chan struct{})}
}

// Send queues a notification. It returns false after Close.
func (f *Fake) Send(payload []byte) bool {
	select {
	case <-f.closed:
		return false
	default:
	}
	select {
	case f.notes <- payload:
		return true
	case <-f.closed:
		return false
	}
}

// Notifications implements Source.
func (f *Fake) Notifications() <-chan []byte { return f.notes }

// Close closes the notification channel. Safe to call more than once.
// Send must not race with Close.
func (f *Fake) Close() error {
	f.once.Do(func() {
		close(f.closed)
		close(f.notes)
	})
	return nil
}
