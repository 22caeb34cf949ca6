// Package shutdown coordinates cancellation and hardware quiesce.
//
// Signal handlers never touch hardware. They call Trigger, which cancels the
// shared context; the main goroutine then calls Quiesce once the loop has
// returned.
package shutdown

import (
	"context"
	"fmt"
	"os"
	"sync"
	"syscall"

	"go.uber.org/zap"
)

type hook struct {
	name string
	fn   func() error
}

// Coordinator owns the root context and the ordered quiesce hooks.
type Coordinator struct {
	ctx    context.Context
	cancel context.CancelFunc
	logger *zap.Logger

	mu     sync.Mutex
	reason string
	hooks  []hook

	quiesce sync.Once
}

// New creates a Coordinator whose context derives from parent.
func New(parent context.Context, logger *zap.Logger) *Coordinator {
	ctx, cancel := context.WithCancel(parent)
	return &Coordinator{ctx: ctx, cancel: cancel, logger: logger}
}

// Context is cancelled by the first Trigger.
func (c *Coordinator) Context() context.Context { return c.ctx }

// Trigger records reason and cancels the context. Later calls are no-ops.
func (c *Coordinator) Trigger(reason string) {
	c.mu.Lock()
	first := c.reason == ""
	if first {
		c.reason = reason
	}
	c.mu.Unlock()
	if first {
		c.logger.Info("shutdown requested", zap.String("reason", reason))
	}
	c.cancel()
}

// Reason returns the first trigger reason, or "" if not triggered.
func (c *Coordinator) Reason() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.reason
}

// Watch triggers on the first signal from sig. It returns when a signal
// arrives or the context is done.
func (c *Coordinator) Watch(sig <-chan os.Signal) {
	select {
	case s := <-sig:
		c.Trigger(SignalName(s))
	case <-c.ctx.Done():
	}
}

// OnQuiesce registers fn to run during Quiesce. Hooks run in registration
// order.
func (c *Coordinator) OnQuiesce(name string, fn func() error) {
	c.mu.Lock()
	c.hooks = append(c.hooks, hook{name: name, fn: fn})
	c.mu.Unlock()
}

// Quiesce runs every hook exactly once, continuing past failures and
// panics. It returns the number of hooks that failed.
func (c *Coordinator) Quiesce() int {
	failed := 0
	c.quiesce.Do(func() {
		c.mu.Lock()
		hooks := append([]hook(nil), c.hooks...)
		c.mu.Unlock()

		for _, h := range hooks {
			if err := safeRun(h.fn); err != nil {
				failed++
				c.logger.Warn("quiesce step failed", zap.String("step", h.name), zap.Error(err))
				continue
			}
			c.logger.Debug("quiesce step done", zap.String("step", h.name))
		}
	})
	return failed
}

// SignalName maps a signal to the reason string published on shutdown.
func SignalName(s os.Signal) string {
	switch s {
	case syscall.SIGINT:
		return "SIGINT"
	case syscall.SIGTERM:
		return "SIGTERM"
	case nil:
		return "UNKNOWN"
	}
	return s.String()
}

func safeRun(fn func() error) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic: %v", r)
		}
	}()
	return fn()
}
