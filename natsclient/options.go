package natsclient

import (
	"log/slog"
	"time"
)

// ClientOption configures a Client
type ClientOption func(*Client)

// WithLogger sets the logger used for connection events.
func WithLogger(logger *slog.Logger) ClientOption {
	return func(c *Client) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// WithClientName sets the connection name visible in NATS monitoring.
func WithClientName(name string) ClientOption {
	return func(c *Client) {
		if name != "" {
			c.clientName = name
		}
	}
}

// WithMaxReconnects bounds reconnect attempts (-1 for infinite).
func WithMaxReconnects(n int) ClientOption {
	return func(c *Client) {
		c.maxReconnects = n
	}
}

// WithReconnectWait sets the delay between reconnect attempts.
func WithReconnectWait(d time.Duration) ClientOption {
	return func(c *Client) {
		if d > 0 {
			c.reconnectWait = d
		}
	}
}

// WithTimeout sets the connect timeout.
func WithTimeout(d time.Duration) ClientOption {
	return func(c *Client) {
		if d > 0 {
			c.timeout = d
		}
	}
}

// WithDrainTimeout bounds how long Close waits for pending messages.
func WithDrainTimeout(d time.Duration) ClientOption {
	return func(c *Client) {
		if d > 0 {
			c.drainTimeout = d
		}
	}
}
