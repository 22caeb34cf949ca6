//go:build linux

package ble

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	goble "github.com/go-ble/ble"
	"github.com/go-ble/ble/linux"
	"go.uber.org/zap"
)

// Config selects the peripheral and characteristic to subscribe to.
type Config struct {
	DeviceName     string
	Characteristic string
	// Buffer is the notification channel capacity. Notifications arriving
	// while it is full are dropped.
	Buffer int
	// ScanTimeout bounds the search for DeviceName. Zero scans until ctx
	// is done.
	ScanTimeout time.Duration
}

// Client is a connected wearable.
type Client struct {
	device *linux.Device
	client goble.Client
	notes  chan []byte
	logger *zap.Logger

	closeOnce sync.Once
	mu        sync.Mutex
	closed    bool
}

// Dial opens the default HCI adapter, scans for cfg.DeviceName for at most
// cfg.ScanTimeout, connects and subscribes to cfg.Characteristic. A missing
// adapter wraps ErrAdapter; a scan that runs out of time wraps ErrNotFound.
func Dial(ctx context.Context, cfg Config, logger *zap.Logger) (*Client, error) {
	if cfg.DeviceName == "" {
		cfg.DeviceName = DeviceName
	}
	if cfg.Characteristic == "" {
		cfg.Characteristic = NotifyCharacteristic
	}
	if cfg.Buffer <= 0 {
		cfg.Buffer = 16
	}
	want, err := goble.Parse(cfg.Characteristic)
	if err != nil {
		return nil, fmt.Errorf("parse characteristic %q: %w", cfg.Characteristic, err)
	}

	d, err := linux.NewDevice()
	if err != nil {
		return nil, fmt.Errorf("%w: open hci device: %w", ErrAdapter, err)
	}
	goble.SetDefaultDevice(d)

	scanCtx, cancel := ctx, context.CancelFunc(func() {})
	if cfg.ScanTimeout > 0 {
		scanCtx, cancel = context.WithTimeout(ctx, cfg.ScanTimeout)
	}
	defer cancel()

	logger.Info("scanning for wearable",
		zap.String("name", cfg.DeviceName),
		zap.Duration("timeout", cfg.ScanTimeout))
	cln, err := goble.Connect(scanCtx, func(a goble.Advertisement) bool {
		return strings.EqualFold(a.LocalName(), cfg.DeviceName)
	})
	if err != nil {
		d.Stop()
		if ctx.Err() == nil && scanCtx.Err() != nil {
			return nil, fmt.Errorf("%w: %s after %s", ErrNotFound, cfg.DeviceName, cfg.ScanTimeout)
		}
		return nil, fmt.Errorf("connect %s: %w", cfg.DeviceName, err)
	}

	c := &Client{
		device: d,
		client: cln,
		notes:  make(chan []byte, cfg.Buffer),
		logger: logger,
	}

	char, err := c.find(want)
	if err != nil {
		c.Close()
		return nil, err
	}
	if err := cln.Subscribe(char, false, c.deliver); err != nil {
		c.Close()
		return nil, fmt.Errorf("subscribe %s: %w", want, err)
	}

	go func() {
		<-cln.Disconnected()
		logger.Warn("wearable disconnected", zap.String("addr", cln.Addr().String()))
		c.shut()
	}()

	logger.Info("subscribed to wearable",
		zap.String("addr", cln.Addr().String()),
		zap.String("characteristic", want.String()))
	return c, nil
}

func (c *Client) find(want goble.UUID) (*goble.Characteristic, error) {
	p, err := c.client.DiscoverProfile(true)
	if err != nil {
		return nil, fmt.Errorf("discover profile: %w", err)
	}
	for _, s := range p.Services {
		for _, ch := range s.Characteristics {
			if ch.UUID.Equal(want) {
				return ch, nil
			}
		}
	}
	return nil, fmt.Errorf("characteristic %s not found", want)
}

// deliver runs on the HCI goroutine and must not block.
func (c *Client) deliver(req []byte) {
	payload := append([]byte(nil), req...)
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}
	select {
	case c.notes <- payload:
	default:
		c.logger.Debug("notification dropped, consumer behind")
	}
}

func (c *Client) shut() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.closed {
		c.closed = true
		close(c.notes)
	}
}

// Notifications implements Source.
func (c *Client) Notifications() <-chan []byte {
	return c.notes
}

// Close disconnects and releases the adapter. Safe to call more than once.
func (c *Client) Close() error {
	var err error
	c.closeOnce.Do(func() {
		c.shut()
		if cerr := c.client.CancelConnection(); cerr != nil {
			err = fmt.Errorf("cancel connection: %w", cerr)
		}
		if serr := c.device.Stop(); serr != nil && err == nil {
			err = fmt.Errorf("stop hci device: %w", serr)
		}
	})
	return err
}
