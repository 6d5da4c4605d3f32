// Package natsclient manages the NATS connection and JetStream key-value
// access used by the KV-backed persistence store.
package natsclient

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"

	"github.com/c360/paramsync/errors"
)

// Client wraps a NATS connection with JetStream enabled.
type Client struct {
	url    string
	logger *slog.Logger

	conn *nats.Conn
	js   jetstream.JetStream

	maxReconnects int
	reconnectWait time.Duration
	timeout       time.Duration
	clientName    string

	mu     sync.RWMutex
	closed bool
}

// Option configures a Client.
type Option func(*Client) error

// WithName sets the client name reported to the server.
func WithName(name string) Option {
	return func(c *Client) error {
		if name == "" {
			return fmt.Errorf("%w: empty client name", errors.ErrInvalidConfig)
		}
		c.clientName = name
		return nil
	}
}

// WithTimeout sets the connect timeout.
func WithTimeout(timeout time.Duration) Option {
	return func(c *Client) error {
		if timeout <= 0 {
			return fmt.Errorf("%w: timeout must be positive", errors.ErrInvalidConfig)
		}
		c.timeout = timeout
		return nil
	}
}

// WithReconnect sets the reconnect policy. maxReconnects < 0 retries forever.
func WithReconnect(maxReconnects int, wait time.Duration) Option {
	return func(c *Client) error {
		c.maxReconnects = maxReconnects
		c.reconnectWait = wait
		return nil
	}
}

// WithLogger sets the client logger.
func WithLogger(logger *slog.Logger) Option {
	return func(c *Client) error {
		c.logger = logger
		return nil
	}
}

// NewClient creates a client for the given server URL. Connect must be
// called before any KV access.
func NewClient(url string, opts ...Option) (*Client, error) {
	if url == "" {
		return nil, errors.WrapInvalid(
			fmt.Errorf("%w: empty server url", errors.ErrInvalidConfig),
			"Client", "NewClient", "validate url")
	}

	c := &Client{
		url:           url,
		maxReconnects: -1,
		reconnectWait: 2 * time.Second,
		timeout:       5 * time.Second,
		clientName:    "paramsync",
	}
	for _, opt := range opts {
		if err := opt(c); err != nil {
			return nil, errors.WrapInvalid(err, "Client", "NewClient", "apply option")
		}
	}
	if c.logger == nil {
		c.logger = slog.Default().With("component", "natsclient")
	}
	return c, nil
}

// Connect establishes the connection and initializes JetStream.
func (c *Client) Connect() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return errors.WrapFatal(errors.ErrShuttingDown, "Client", "Connect", "check state")
	}
	if c.conn != nil && c.conn.IsConnected() {
		return nil
	}

	conn, err := nats.Connect(c.url,
		nats.Name(c.clientName),
		nats.Timeout(c.timeout),
		nats.MaxReconnects(c.maxReconnects),
		nats.ReconnectWait(c.reconnectWait),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			if err != nil {
				c.logger.Warn("NATS disconnected", "error", err)
			}
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			c.logger.Info("NATS reconnected", "url", nc.ConnectedUrl())
		}),
	)
	if err != nil {
		return errors.WrapTransient(
			fmt.Errorf("%w: %w", errors.ErrConnectionFailed, err),
			"Client", "Connect", "dial server")
	}

	js, err := jetstream.New(conn)
	if err != nil {
		conn.Close()
		return errors.WrapFatal(err, "Client", "Connect", "initialize jetstream")
	}

	c.conn = conn
	c.js = js
	c.logger.Info("NATS connected", "url", conn.ConnectedUrl())
	return nil
}

// IsConnected reports whether the connection is up.
func (c *Client) IsConnected() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.conn != nil && c.conn.IsConnected()
}

// KeyValue opens the named bucket, creating it if absent.
func (c *Client) KeyValue(ctx context.Context, bucket string) (*KVStore, error) {
	c.mu.RLock()
	js := c.js
	c.mu.RUnlock()

	if js == nil {
		return nil, errors.WrapInvalid(errors.ErrNotStarted, "Client", "KeyValue", "check connection")
	}

	kv, err := js.CreateKeyValue(ctx, jetstream.KeyValueConfig{
		Bucket:      bucket,
		Description: "parameter documents",
		History:     1,
	})
	if err != nil {
		return nil, errors.WrapTransient(
			fmt.Errorf("create bucket %s: %w", bucket, err),
			"Client", "KeyValue", "create bucket")
	}

	return newKVStore(kv, c.logger), nil
}

// Close drains and closes the connection. Safe to call more than once.
func (c *Client) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return
	}
	c.closed = true

	if c.conn != nil {
		if err := c.conn.Drain(); err != nil {
			c.logger.Warn("NATS drain failed, closing hard", "error", err)
			c.conn.Close()
		}
		c.conn = nil
		c.js = nil
	}
}
