// Package sink delivers flushed payloads to downstream stores.
package sink

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/sweeney/sleep-monitor/internal/logic"
	"github.com/sweeney/sleep-monitor/internal/metrics"
)

// Sink accepts one payload per flush interval.
type Sink interface {
	Name() string
	Publish(ctx context.Context, p logic.Payload) error
	Close() error
}

// Multi fans a payload out to every sink. A failing sink does not stop the
// others.
type Multi struct {
	sinks   []Sink
	logger  *zap.Logger
	metrics *metrics.Metrics
}

// NewMulti combines sinks. m may be nil.
func NewMulti(logger *zap.Logger, m *metrics.Metrics, sinks ...Sink) *Multi {
	return &Multi{sinks: sinks, logger: logger, metrics: m}
}

// Add appends a sink.
func (m *Multi) Add(s Sink) { m.sinks = append(m.sinks, s) }

// Names lists the configured sinks.
func (m *Multi) Names() []string {
	names := make([]string, len(m.sinks))
	for i, s := range m.sinks {
		names[i] = s.Name()
	}
	return names
}

func (m *Multi) Name() string { return "multi" }

// Publish sends p to every sink and joins their errors.
func (m *Multi) Publish(ctx context.Context, p logic.Payload) error {
	var errs []error
	for _, s := range m.sinks {
		if err := s.Publish(ctx, p); err != nil {
			m.logger.Warn("sink publish failed",
				zap.String("sink", s.Name()),
				zap.String("payload_id", p.ID),
				zap.Error(err))
			if m.metrics != nil {
				m.metrics.PublishFaults.WithLabelValues(s.Name()).Inc()
			}
			errs = append(errs, fmt.Errorf("%s: %w", s.Name(), err))
		}
	}
	return errors.Join(errs...)
}

// Close closes every sink.
func (m *Multi) Close() error {
	var errs []error
	for _, s := range m.sinks {
		if err := s.Close(); err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", s.Name(), err))
		}
	}
	return errors.Join(errs...)
}

// Fake records payloads. Err, if set, is returned by Publish.
type Fake struct {
	FakeName string
	Err      error
	Payloads []logic.Payload
	Closed   bool
}

func (f *Fake) Name() string {
	if f.FakeName == "" {
		return "fake"
	}
	return f.FakeName
}

func (f *Fake) Publish(_ context.Context, p logic.Payload) error {
	if f.Err != nil {
		return f.Err
	}
	f.Payloads = append(f.Payloads, p)
	return nil
}

func (f *Fake) Close() error {
	f.Closed = true
	return nil
}
