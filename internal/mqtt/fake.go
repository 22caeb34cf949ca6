package mqtt

import (
	"context"
	"sync"

	"github.com/sweeney/sleep-monitor/internal/logic"
)

// FakePublisher records published messages for test assertions.
// Safe for concurrent use.
type FakePublisher struct {
	mu sync.Mutex

	// Payloads contains every interval payload that was published.
	Payloads []logic.Payload

	// Messages contains the raw messages per topic.
	Messages map[string][][]byte

	// SystemEvents contains all system events that were published.
	SystemEvents []SystemEvent

	// PublishError, if set, will be returned by Publish.
	PublishError error

	// PublishSystemError, if set, will be returned by PublishSystem.
	PublishSystemError error

	// Closed tracks if Close was called.
	Closed bool

	// Connected controls the return value of IsConnected.
	Connected bool

	handlers map[string]MessageHandler
}

// NewFakePublisher creates a FakePublisher for testing.
func NewFakePublisher() *FakePublisher {
	return &FakePublisher{
		Messages: make(map[string][][]byte),
		handlers: make(map[string]MessageHandler),
	}
}

// Name implements Publisher.
func (f *FakePublisher) Name() string { return "mqtt" }

// Publish records the payload and the topic messages it would produce.
func (f *FakePublisher) Publish(_ context.Context, p logic.Payload) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.PublishError != nil {
		return f.PublishError
	}

	sensor, err := FormatSensorPayload(p)
	if err != nil {
		return err
	}
	posture, err := FormatPosturePayload(p)
	if err != nil {
		return err
	}
	f.Payloads = append(f.Payloads, p)
	f.Messages[TopicSensor] = append(f.Messages[TopicSensor], sensor)
	f.Messages[TopicPosture] = append(f.Messages[TopicPosture], posture)
	return nil
}

// PublishSystem records the system event.
func (f *FakePublisher) PublishSystem(event SystemEvent) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.PublishSystemError != nil {
		return f.PublishSystemError
	}

	payload, err := FormatSystemPayload(event)
	if err != nil {
		return err
	}
	f.SystemEvents = append(f.SystemEvents, event)
	f.Messages[TopicSystem] = append(f.Messages[TopicSystem], payload)
	return nil
}

// Subscribe records handler for topic.
func (f *FakePublisher) Subscribe(topic string, handler MessageHandler) error {
	f.mu.Lock()
	f.handlers[topic] = handler
	f.mu.Unlock()
	return nil
}

// Deliver simulates an inbound message. It returns the handler's error, or
// nil when nothing is subscribed to topic.
func (f *FakePublisher) Deliver(topic string, payload []byte) error {
	f.mu.Lock()
	h := f.handlers[topic]
	f.mu.Unlock()
	if h == nil {
		return nil
	}
	return h(topic, payload)
}

// Count returns the number of messages published on topic.
func (f *FakePublisher) Count(topic string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.Messages[topic])
}

// Last returns the most recent message on topic, or nil.
func (f *FakePublisher) Last(topic string) []byte {
	f.mu.Lock()
	defer f.mu.Unlock()
	msgs := f.Messages[topic]
	if len(msgs) == 0 {
		return nil
	}
	return msgs[len(msgs)-1]
}

// Close marks the publisher as closed.
func (f *FakePublisher) Close() error {
	f.mu.Lock()
	f.Closed = true
	f.mu.Unlock()
	return nil
}

// IsConnected reports whether the fake publisher is "connected".
func (f *FakePublisher) IsConnected() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.Connected
}

// Reset clears recorded messages.
func (f *FakePublisher) Reset() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Payloads = nil
	f.Messages = make(map[string][][]byte)
	f.SystemEvents = nil
	f.Closed = false
	f.PublishError = nil
	f.PublishSystemError = nil
	f.Connected = false
}
