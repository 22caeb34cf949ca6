// Package sensor provides scalar sensor reads with hardware abstraction.
// The real implementations read Linux IIO devices (dht11 and ads1115 overlays).
// The fake implementation allows testing without hardware.
package sensor

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/sweeney/sleep-monitor/internal/logic"
)

// ErrTimeout is the Result error of a read that did not finish in time.
var ErrTimeout = errors.New("sensor read timed out")

// Source reads one scalar metric.
type Source interface {
	// Read returns the current value. Implementations should honor ctx but
	// callers must not rely on it; Read bounds every call regardless.
	Read(ctx context.Context) (float64, error)
}

// SourceFunc adapts a function to Source.
type SourceFunc func(ctx context.Context) (float64, error)

// Read calls f.
func (f SourceFunc) Read(ctx context.Context) (float64, error) { return f(ctx) }

// Named binds a Source to the metric it feeds.
type Named struct {
	Metric logic.Metric
	Source Source
}

// Result is the outcome of one bounded read. On failure Value holds the
// substituted default and Err the reason.
type Result struct {
	Metric logic.Metric
	Value  float64
	Err    error
	Took   time.Duration
}

// OK reports whether the read succeeded.
func (r Result) OK() bool { return r.Err == nil }

// Read performs one best-effort read bounded by timeout. A failed, panicking
// or late read yields def with the error set. A late read keeps running in
// its goroutine until the driver returns; its value is discarded.
func Read(ctx context.Context, n Named, timeout time.Duration, def float64) Result {
	start := time.Now()
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	type outcome struct {
		v   float64
		err error
	}
	ch := make(chan outcome, 1)
	go func() {
		v, err := safeRead(ctx, n.Source)
		ch <- outcome{v, err}
	}()

	res := Result{Metric: n.Metric, Value: def}
	select {
	case o := <-ch:
		if o.err != nil {
			res.Err = o.err
		} else {
			res.Value = o.v
		}
	case <-ctx.Done():
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			res.Err = ErrTimeout
		} else {
			res.Err = ctx.Err()
		}
	}
	res.Took = time.Since(start)
	return res
}

// ReadAll reads every source concurrently, so the round takes at most one
// timeout. Results are returned in the order of sources.
func ReadAll(ctx context.Context, sources []Named, timeout time.Duration, def float64) []Result {
	results := make([]Result, len(sources))
	done := make(chan struct{}, len(sources))
	for i, n := range sources {
		go func(i int, n Named) {
			results[i] = Read(ctx, n, timeout, def)
			done <- struct{}{}
		}(i, n)
	}
	for range sources {
		<-done
	}
	return results
}

func safeRead(ctx context.Context, src Source) (v float64, err error) {
	defer func() {
		if rec := recover(); rec != nil {
			err = fmt.Errorf("panic: %v", rec)
		}
	}()
	return src.Read(ctx)
}
