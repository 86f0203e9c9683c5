package mqtt

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	paho "github.com/eclipse/paho.mqtt.golang"

	"github.com/sweeney/env-controller/internal/logger"
)

// DefaultBufferSize is the number of outbound messages kept while disconnected.
const DefaultBufferSize = 100

// Options configures a RealClient.
type Options struct {
	Broker         string
	ClientID       string
	Username       string
	Password       string
	SystemTopic    string        // lifecycle topic, also used for the LWT
	ConnectRetries int           // attempts after the first before giving up
	ConnectTimeout time.Duration // per attempt
	PublishTimeout time.Duration
	BufferSize     int

	// OnConnectionChange, if set, is called after every connect and connection loss.
	OnConnectionChange func(connected bool)
}

type subscription struct {
	qos     byte
	handler Handler
}

// RealClient talks to an actual MQTT broker.
type RealClient struct {
	client paho.Client
	opts   Options
	log    *logger.Logger

	mu   sync.Mutex
	subs map[string]subscription
	buf  *ringBuffer
}

// NewRealClient creates a client. Call Connect before use.
func NewRealClient(opts Options, log *logger.Logger) *RealClient {
	if opts.ConnectTimeout <= 0 {
		opts.ConnectTimeout = 10 * time.Second
	}
	if opts.PublishTimeout <= 0 {
		opts.PublishTimeout = 5 * time.Second
	}
	if opts.BufferSize <= 0 {
		opts.BufferSize = DefaultBufferSize
	}

	c := &RealClient{
		opts: opts,
		log:  log,
		subs: make(map[string]subscription),
		buf:  newRingBuffer(opts.BufferSize),
	}

	will, _ := FormatSystemPayload(SystemEvent{
		Timestamp: time.Now(),
		Event:     "SHUTDOWN",
		Reason:    "MQTT_DISCONNECT",
	})

	po := paho.NewClientOptions().
		AddBroker(opts.Broker).
		SetClientID(opts.ClientID).
		SetCleanSession(true).
		SetAutoReconnect(true).
		SetMaxReconnectInterval(30 * time.Second).
		SetConnectTimeout(opts.ConnectTimeout).
		SetOnConnectHandler(c.onConnect).
		SetConnectionLostHandler(c.onConnectionLost)
	if opts.Username != "" {
		po.SetUsername(opts.Username)
		po.SetPassword(opts.Password)
	}
	if opts.SystemTopic != "" {
		po.SetWill(opts.SystemTopic, string(will), 1, true)
	}

	c.client = paho.NewClient(po)
	return c
}

// Connect dials the broker with exponential backoff.
func (c *RealClient) Connect(ctx context.Context) error {
	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = 500 * time.Millisecond
	bo.MaxElapsedTime = 0

	attempt := 0
	err := backoff.Retry(func() error {
		attempt++
		token := c.client.Connect()
		if !token.WaitTimeout(c.opts.ConnectTimeout) {
			c.log.Warnw("mqtt connect timed out", "broker", c.opts.Broker, "attempt", attempt)
			return errors.New("connection timeout")
		}
		if err := token.Error(); err != nil {
			c.log.Warnw("mqtt connect failed", "broker", c.opts.Broker, "attempt", attempt, "err", err)
			return err
		}
		return nil
	}, backoff.WithContext(backoff.WithMaxRetries(bo, uint64(c.opts.ConnectRetries)), ctx))
	if err != nil {
		return fmt.Errorf("connect to broker %s: %w", c.opts.Broker, err)
	}
	return nil
}

func (c *RealClient) onConnect(client paho.Client) {
	c.mu.Lock()
	subs := make(map[string]subscription, len(c.subs))
	for t, s := range c.subs {
		subs[t] = s
	}
	pending := c.buf.drainAll()
	c.mu.Unlock()

	c.log.Infow("mqtt connected", "broker", c.opts.Broker, "subscriptions", len(subs), "replay", len(pending))

	for topic, s := range subs {
		if err := c.subscribe(topic, s); err != nil {
			c.log.Errorw("mqtt resubscribe failed", "topic", topic, "err", err)
		}
	}
	for _, m := range pending {
		if err := c.send(m); err != nil {
			c.log.Warnw("mqtt replay failed", "topic", m.topic, "err", err)
		}
	}

	if c.opts.OnConnectionChange != nil {
		c.opts.OnConnectionChange(true)
	}
}

func (c *RealClient) onConnectionLost(_ paho.Client, err error) {
	c.log.Warnw("mqtt connection lost", "err", err)
	if c.opts.OnConnectionChange != nil {
		c.opts.OnConnectionChange(false)
	}
}

// Subscribe registers h for topic and subscribes now if connected.
func (c *RealClient) Subscribe(topic string, qos byte, h Handler) error {
	s := subscription{qos: qos, handler: h}
	c.mu.Lock()
	c.subs[topic] = s
	c.mu.Unlock()

	if !c.client.IsConnectionOpen() {
		return nil
	}
	return c.subscribe(topic, s)
}

func (c *RealClient) subscribe(topic string, s subscription) error {
	token := c.client.Subscribe(topic, s.qos, func(_ paho.Client, m paho.Message) {
		s.handler(m.Topic(), m.Payload())
	})
	if !token.WaitTimeout(c.opts.PublishTimeout) {
		return fmt.Errorf("subscribe %s: timeout", topic)
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("subscribe %s: %w", topic, err)
	}
	return nil
}

// Publish sends payload to topic, or buffers it while the connection is down.
func (c *RealClient) Publish(topic string, payload []byte, qos byte, retained bool) error {
	m := bufferedMsg{topic: topic, payload: payload, qos: qos, retained: retained}
	if !c.client.IsConnectionOpen() {
		c.mu.Lock()
		firstDrop := c.buf.push(m)
		c.mu.Unlock()
		if firstDrop {
			c.log.Warnw("mqtt buffer full, dropping oldest", "capacity", c.opts.BufferSize)
		}
		return nil
	}
	return c.send(m)
}

func (c *RealClient) send(m bufferedMsg) error {
	token := c.client.Publish(m.topic, m.qos, m.retained, m.payload)
	if !token.WaitTimeout(c.opts.PublishTimeout) {
		return fmt.Errorf("publish %s: timeout", m.topic)
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("publish %s: %w", m.topic, err)
	}
	return nil
}

// PublishSystem sends a system lifecycle event on the system topic.
func (c *RealClient) PublishSystem(event SystemEvent) error {
	payload, err := FormatSystemPayload(event)
	if err != nil {
		return fmt.Errorf("format system payload: %w", err)
	}
	// QoS 1 (at-least-once) for lifecycle events - we want to ensure delivery
	return c.Publish(c.opts.SystemTopic, payload, 1, event.Retained)
}

// IsConnected reports whether the connection is currently up.
func (c *RealClient) IsConnected() bool {
	return c.client.IsConnectionOpen()
}

// Buffered returns the number of messages waiting for a reconnect.
func (c *RealClient) Buffered() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.buf.len()
}

// Close disconnects from the broker.
func (c *RealClient) Close() error {
	c.client.Disconnect(1000) // 1 second timeout
	return nil
}
