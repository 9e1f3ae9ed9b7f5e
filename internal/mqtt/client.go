package mqtt

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net"
	"net/url"
	"sync"
	"time"

	paho "github.com/eclipse/paho.mqtt.golang"

	"github.com/urbansound/soundscape/internal/errors"
	"github.com/urbansound/soundscape/internal/export"
	"github.com/urbansound/soundscape/internal/logger"
	"github.com/urbansound/soundscape/internal/observability/metrics"
)

// ErrNotConnected is returned by Publish before a successful Connect
var ErrNotConnected = errors.NewStd("not connected to MQTT broker")

// client implements the Client interface.
type client struct {
	config         Config
	internalClient paho.Client
	newClient      func(*paho.ClientOptions) paho.Client
	mu             sync.Mutex
	metrics        *metrics.MQTTMetrics
	log            logger.Logger
}

// Option configures a client
type Option func(*client)

// WithMetrics records connection state and publishes in m
func WithMetrics(m *metrics.MQTTMetrics) Option {
	return func(c *client) { c.metrics = m }
}

// withClientFactory replaces the paho constructor, used by tests
func withClientFactory(f func(*paho.ClientOptions) paho.Client) Option {
	return func(c *client) { c.newClient = f }
}

// NewClient creates a new MQTT client with the provided configuration.
func NewClient(cfg Config, opts ...Option) (Client, error) {
	if cfg.Broker == "" {
		return nil, errors.Newf("mqtt broker is not configured").
			Component("mqtt").
			Category(errors.CategoryConfiguration).
			Build()
	}
	if _, err := url.Parse(cfg.Broker); err != nil {
		return nil, errors.New(fmt.Errorf("invalid broker URL: %w", err)).
			Component("mqtt").
			Category(errors.CategoryConfiguration).
			Context("broker", cfg.Broker).
			Build()
	}

	c := &client{
		config:    cfg,
		newClient: paho.NewClient,
		log:       GetLogger(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

func connectionError(err error, broker string) error {
	return errors.New(err).
		Component("mqtt").
		Category(errors.CategoryMQTTConnection).
		Context("broker", broker).
		Build()
}

// Connect resolves the broker host and connects. The attempt is bounded by
// ConnectTimeout and ctx.
func (c *client) Connect(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	u, err := url.Parse(c.config.Broker)
	if err != nil {
		return connectionError(fmt.Errorf("invalid broker URL: %w", err), c.config.Broker)
	}

	if host := u.Hostname(); host != "" && net.ParseIP(host) == nil {
		if _, err := net.DefaultResolver.LookupHost(ctx, host); err != nil {
			return connectionError(fmt.Errorf("failed to resolve hostname %s: %w", host, err), c.config.Broker)
		}
	}

	opts := paho.NewClientOptions()
	opts.AddBroker(c.config.Broker)
	opts.SetClientID(c.config.ClientID)
	opts.SetUsername(c.config.Username)
	opts.SetPassword(c.config.Password)
	opts.SetCleanSession(true)
	opts.SetAutoReconnect(true)
	opts.SetConnectTimeout(c.config.ConnectTimeout)
	opts.SetOnConnectHandler(c.onConnect)
	opts.SetConnectionLostHandler(c.onConnectionLost)

	c.internalClient = c.newClient(opts)

	if err := waitToken(ctx, c.internalClient.Connect(), c.config.ConnectTimeout); err != nil {
		return connectionError(fmt.Errorf("connection error: %w", err), c.config.Broker)
	}

	c.setConnected(true)
	return nil
}

// Publish sends payload to topic with the configured QoS and retain flag.
func (c *client) Publish(ctx context.Context, topic string, payload []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.IsConnected() {
		return errors.New(ErrNotConnected).
			Component("mqtt").
			Category(errors.CategoryMQTTPublish).
			Context("topic", topic).
			Build()
	}

	start := time.Now()
	err := waitToken(ctx, c.internalClient.Publish(topic, c.config.QoS, c.config.Retain, payload), c.config.PublishTimeout)
	if c.metrics != nil {
		c.metrics.RecordPublish(len(payload), time.Since(start), err)
	}
	if err != nil {
		return errors.New(fmt.Errorf("publish failed: %w", err)).
			Component("mqtt").
			Category(errors.CategoryMQTTPublish).
			Context("topic", topic).
			Build()
	}

	c.log.Debug("published",
		logger.String("topic", topic),
		logger.Int("bytes", len(payload)))
	return nil
}

// PublishDocument sends doc to the configured topic
func (c *client) PublishDocument(ctx context.Context, doc *export.Document) error {
	payload, err := EncodeDocument(doc)
	if err != nil {
		return err
	}
	return c.Publish(ctx, c.config.Topic, payload)
}

// EncodeDocument renders doc the same way export files are written, on a
// single line.
func EncodeDocument(doc *export.Document) ([]byte, error) {
	if doc == nil {
		return nil, errors.New(export.ErrInvalidDocument).
			Component("mqtt").
			Category(errors.CategoryValidation).
			Build()
	}

	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(doc); err != nil {
		return nil, errors.New(err).
			Component("mqtt").
			Category(errors.CategoryMQTTPublish).
			Build()
	}
	return bytes.TrimRight(buf.Bytes(), "\n"), nil
}

// IsConnected returns true if the client is currently connected to the MQTT broker.
func (c *client) IsConnected() bool {
	return c.internalClient != nil && c.internalClient.IsConnected()
}

// Disconnect closes the connection to the MQTT broker.
func (c *client) Disconnect() {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.internalClient != nil && c.internalClient.IsConnected() {
		c.internalClient.Disconnect(uint(c.config.DisconnectTimeout.Milliseconds()))
		c.setConnected(false)
	}
}

func (c *client) setConnected(connected bool) {
	if c.metrics != nil {
		c.metrics.UpdateConnectionStatus(connected)
	}
}

func (c *client) onConnect(_ paho.Client) {
	c.log.Info("connected to MQTT broker", logger.String("broker", c.config.Broker))
	c.setConnected(true)
}

func (c *client) onConnectionLost(_ paho.Client, err error) {
	c.log.Warn("connection to MQTT broker lost",
		logger.String("broker", c.config.Broker),
		logger.Error(err))
	c.setConnected(false)
}

// waitToken waits for token to complete, for timeout or for ctx.
func waitToken(ctx context.Context, token paho.Token, timeout time.Duration) error {
	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case <-token.Done():
		return token.Error()
	case <-timer.C:
		return fmt.Errorf("timed out after %v", timeout)
	case <-ctx.Done():
		return ctx.Err()
	}
}
