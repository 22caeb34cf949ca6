//go:build !linux

package ble

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"
)

// Config selects the peripheral and characteristic to subscribe to.
type Config struct {
	DeviceName     string
	Characteristic string
	Buffer         int
	ScanTimeout    time.Duration
}

// Client is not available on non-Linux platforms.
type Client struct{}

// Dial returns an error on non-Linux platforms.
func Dial(ctx context.Context, cfg Config, logger *zap.Logger) (*Client, error) {
	return nil, fmt.Errorf("%w: requires linux", ErrAdapter)
}

// Notifications returns nil on non-Linux platforms.
func (c *Client) Notifications() <-chan []byte { return nil }

// Close is a no-op on non-Linux platforms.
func (c *Client) Close() error { return nil }
