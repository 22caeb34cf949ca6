package mqtt

import (
	"context"
	"crypto/tls"
	"fmt"
	"net"
	"strconv"
	"sync"
	"time"

	paho "github.com/eclipse/paho.mqtt.golang"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/sweeney/sleep-monitor/internal/logic"
	"github.com/sweeney/sleep-monitor/internal/metrics"
)

// Config describes the broker connection.
type Config struct {
	Host     string
	Port     int
	Username string
	Password string
	// TLS enables ssl:// transport. HiveMQ Cloud and most hosted brokers
	// require it on port 8883.
	TLS                bool
	InsecureSkipVerify bool
	// ClientID defaults to "sleep-monitor-" plus a random suffix.
	ClientID string
	// BufferSize is the number of messages held while disconnected.
	BufferSize     int
	ConnectTimeout time.Duration
}

// BrokerURL returns the paho broker address for c.
func (c Config) BrokerURL() string {
	scheme := "tcp"
	if c.TLS {
		scheme = "ssl"
	}
	port := c.Port
	if port == 0 {
		port = 1883
		if c.TLS {
			port = 8883
		}
	}
	return scheme + "://" + net.JoinHostPort(c.Host, strconv.Itoa(port))
}

// RealPublisher publishes to an actual MQTT broker. Messages published while
// the connection is down are buffered and replayed on reconnect.
type RealPublisher struct {
	client  paho.Client
	logger  *zap.Logger
	metrics *metrics.Metrics

	mu        sync.Mutex
	buf       *ringBuffer
	subs      map[string]MessageHandler
	connected bool
	everUp    bool
}

// NewRealPublisher creates a publisher connected to the broker in cfg.
// m may be nil.
func NewRealPublisher(cfg Config, logger *zap.Logger, m *metrics.Metrics) (*RealPublisher, error) {
	if cfg.ClientID == "" {
		cfg.ClientID = "sleep-monitor-" + uuid.NewString()[:8]
	}
	if cfg.BufferSize <= 0 {
		cfg.BufferSize = 100
	}
	if cfg.ConnectTimeout <= 0 {
		cfg.ConnectTimeout = 10 * time.Second
	}

	p := &RealPublisher{
		logger:  logger,
		metrics: m,
		buf:     newRingBuffer(cfg.BufferSize),
		subs:    make(map[string]MessageHandler),
	}

	will, err := FormatSystemPayload(SystemEvent{
		Timestamp: time.Now(),
		Event:     "SHUTDOWN",
		Reason:    "MQTT_DISCONNECT",
	})
	if err != nil {
		return nil, fmt.Errorf("format will: %w", err)
	}

	opts := paho.NewClientOptions().
		AddBroker(cfg.BrokerURL()).
		SetClientID(cfg.ClientID).
		SetAutoReconnect(true).
		SetConnectRetry(true).
		SetConnectRetryInterval(5*time.Second).
		SetWill(TopicSystem, string(will), 1, false).
		SetOnConnectHandler(p.onConnect).
		SetConnectionLostHandler(p.onConnectionLost)
	if cfg.Username != "" {
		opts.SetUsername(cfg.Username).SetPassword(cfg.Password)
	}
	if cfg.TLS {
		opts.SetTLSConfig(&tls.Config{
			MinVersion:         tls.VersionTLS12,
			InsecureSkipVerify: cfg.InsecureSkipVerify,
		})
	}

	p.client = paho.NewClient(opts)
	token := p.client.Connect()
	if !token.WaitTimeout(cfg.ConnectTimeout) {
		return nil, fmt.Errorf("connection timeout")
	}
	if err := token.Error(); err != nil {
		return nil, fmt.Errorf("connect to broker: %w", err)
	}

	logger.Info("mqtt connected", zap.String("broker", cfg.BrokerURL()), zap.String("client_id", cfg.ClientID))
	return p, nil
}

// Name implements Publisher.
func (p *RealPublisher) Name() string { return "mqtt" }

// IsConnected reports whether the broker connection is up.
func (p *RealPublisher) IsConnected() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.connected
}

func (p *RealPublisher) onConnect(c paho.Client) {
	p.mu.Lock()
	reconnect := p.everUp
	p.connected, p.everUp = true, true
	pending, dropped := p.buf.drainAll()
	subs := make(map[string]MessageHandler, len(p.subs))
	for t, h := range p.subs {
		subs[t] = h
	}
	p.mu.Unlock()
	p.setBuffered(0)

	for topic, h := range subs {
		c.Subscribe(topic, 1, p.wrap(h))
	}
	for _, msg := range pending {
		c.Publish(msg.topic, msg.qos, msg.retained, msg.payload)
	}
	if len(pending) > 0 {
		p.logger.Info("mqtt replayed buffered messages",
			zap.Int("count", len(pending)),
			zap.Int("dropped", dropped))
	}
	if reconnect {
		payload, _ := FormatSystemPayload(SystemEvent{Timestamp: time.Now(), Event: "RECONNECTED"})
		c.Publish(TopicSystem, 1, false, payload)
	}
}

func (p *RealPublisher) onConnectionLost(_ paho.Client, err error) {
	p.mu.Lock()
	p.connected = false
	p.mu.Unlock()
	p.logger.Warn("mqtt connection lost", zap.Error(err))
}

func (p *RealPublisher) wrap(h MessageHandler) paho.MessageHandler {
	return func(_ paho.Client, msg paho.Message) {
		if err := h(msg.Topic(), msg.Payload()); err != nil {
			p.logger.Warn("mqtt message rejected", zap.String("topic", msg.Topic()), zap.Error(err))
		}
	}
}

// Subscribe registers handler for topic. The subscription is renewed on
// every reconnect.
func (p *RealPublisher) Subscribe(topic string, handler MessageHandler) error {
	p.mu.Lock()
	p.subs[topic] = handler
	connected := p.connected
	p.mu.Unlock()
	if !connected {
		return nil
	}

	token := p.client.Subscribe(topic, 1, p.wrap(handler))
	if !token.WaitTimeout(5 * time.Second) {
		return fmt.Errorf("subscribe %s: timeout", topic)
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("subscribe %s: %w", topic, err)
	}
	return nil
}

// Publish sends the sensor and posture messages for one interval.
func (p *RealPublisher) Publish(ctx context.Context, payload logic.Payload) error {
	sensor, err := FormatSensorPayload(payload)
	if err != nil {
		return fmt.Errorf("format sensor payload: %w", err)
	}
	posture, err := FormatPosturePayload(payload)
	if err != nil {
		return fmt.Errorf("format posture payload: %w", err)
	}

	// QoS 0 (at-most-once), not retained
	if err := p.publish(ctx, bufferedMsg{topic: TopicSensor, payload: sensor}); err != nil {
		return err
	}
	return p.publish(ctx, bufferedMsg{topic: TopicPosture, payload: posture})
}

// PublishSystem sends a system lifecycle event to the MQTT broker.
func (p *RealPublisher) PublishSystem(event SystemEvent) error {
	payload, err := FormatSystemPayload(event)
	if err != nil {
		return fmt.Errorf("format system payload: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	// QoS 1 (at-least-once) for lifecycle events - we want to ensure delivery
	return p.publish(ctx, bufferedMsg{topic: TopicSystem, payload: payload, qos: 1, retained: event.Retained})
}

func (p *RealPublisher) publish(ctx context.Context, msg bufferedMsg) error {
	p.mu.Lock()
	if !p.connected {
		dropped := p.buf.push(msg)
		n := p.buf.len()
		p.mu.Unlock()
		p.setBuffered(n)
		if dropped {
			p.logger.Warn("mqtt buffer full, dropping oldest intervals", zap.Int("capacity", n))
		}
		return nil
	}
	p.mu.Unlock()

	token := p.client.Publish(msg.topic, msg.qos, msg.retained, msg.payload)
	select {
	case <-token.Done():
	case <-ctx.Done():
		return fmt.Errorf("publish %s: %w", msg.topic, ctx.Err())
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("publish %s: %w", msg.topic, err)
	}
	return nil
}

func (p *RealPublisher) setBuffered(n int) {
	if p.metrics != nil {
		p.metrics.BufferedMQTT.Set(float64(n))
	}
}

// Close disconnects from the broker.
func (p *RealPublisher) Close() error {
	p.client.Disconnect(1000) // 1 second timeout
	return nil
}
