// Package aggregate holds per-interval sample buffers for the monitor.
//
// Numeric series are reduced by mean and the categorical (posture) series by
// mode. Every drain clears the series it reads, so each sample is reported in
// exactly one flush.
package aggregate

import (
	"sync"

	"github.com/sweeney/sleep-monitor/internal/logic"
)

// Buffer accumulates samples between flushes. It is safe for concurrent use;
// appends and drains are serialized by a single mutex.
type Buffer struct {
	mu       sync.Mutex
	numeric  map[logic.Metric][]float64
	labels   []string
	sentinel string
	rounds   int
}

// Snapshot is the result of draining every series at once.
type Snapshot struct {
	Means  map[logic.Metric]float64
	Label  string
	Rounds int
}

// New creates an empty Buffer. Labels equal to sentinel are kept but never
// win the mode.
func New(sentinel string) *Buffer {
	return &Buffer{
		numeric:  make(map[logic.Metric][]float64),
		sentinel: sentinel,
	}
}

// AppendNumeric adds one value to the metric's series.
func (b *Buffer) AppendNumeric(metric logic.Metric, value float64) {
	b.mu.Lock()
	b.numeric[metric] = append(b.numeric[metric], value)
	b.mu.Unlock()
}

// AppendLabel adds one label to the categorical series.
func (b *Buffer) AppendLabel(label string) {
	b.mu.Lock()
	b.labels = append(b.labels, label)
	b.mu.Unlock()
}

// AppendRound adds one complete sampling round under a single lock so a
// concurrent drain never observes half of it.
func (b *Buffer) AppendRound(values map[logic.Metric]float64, label string) {
	b.mu.Lock()
	for m, v := range values {
		b.numeric[m] = append(b.numeric[m], v)
	}
	b.labels = append(b.labels, label)
	b.rounds++
	b.mu.Unlock()
}

// DrainNumeric returns the mean of the metric's series, or def when it is
// empty, and clears the series.
func (b *Buffer) DrainNumeric(metric logic.Metric, def float64) float64 {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.drainNumericLocked(metric, def)
}

// DrainCategorical returns the mode of the non-sentinel labels, or def when
// none remain after filtering, and clears the series.
func (b *Buffer) DrainCategorical(def string) string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.drainLabelsLocked(def)
}

// Drain reduces and clears the given numeric metrics and the categorical
// series in one critical section.
func (b *Buffer) Drain(metrics []logic.Metric, numericDef float64, labelDef string) Snapshot {
	b.mu.Lock()
	defer b.mu.Unlock()

	snap := Snapshot{
		Means:  make(map[logic.Metric]float64, len(metrics)),
		Rounds: b.rounds,
	}
	for _, m := range metrics {
		snap.Means[m] = b.drainNumericLocked(m, numericDef)
	}
	snap.Label = b.drainLabelsLocked(labelDef)
	b.rounds = 0
	return snap
}

// Len returns the number of buffered values for metric.
func (b *Buffer) Len(metric logic.Metric) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.numeric[metric])
}

// LabelLen returns the number of buffered labels.
func (b *Buffer) LabelLen() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.labels)
}

// Empty reports whether no samples are buffered.
func (b *Buffer) Empty() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	if len(b.labels) > 0 {
		return false
	}
	for _, s := range b.numeric {
		if len(s) > 0 {
			return false
		}
	}
	return true
}

// Reset discards every buffered sample.
func (b *Buffer) Reset() {
	b.mu.Lock()
	b.numeric = make(map[logic.Metric][]float64)
	b.labels = nil
	b.rounds = 0
	b.mu.Unlock()
}

func (b *Buffer) drainNumericLocked(metric logic.Metric, def float64) float64 {
	series := b.numeric[metric]
	delete(b.numeric, metric)
	if mean, ok := logic.Mean(series); ok {
		return mean
	}
	return def
}

func (b *Buffer) drainLabelsLocked(def string) string {
	labels := b.labels
	b.labels = nil
	if mode, ok := logic.Mode(labels, b.sentinel); ok {
		return mode
	}
	return def
}
