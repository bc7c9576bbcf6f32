package natsclient

import (
	stderrors "errors"
	"log/slog"
	"time"
)

// ClientOption configures a Client at construction time
type ClientOption func(*Client) error

// WithLogger sets the logger used for connection lifecycle events
func WithLogger(logger *slog.Logger) ClientOption {
	return func(c *Client) error {
		if logger == nil {
			return stderrors.New("logger cannot be nil")
		}
		c.logger = logger.With("component", "natsclient")
		return nil
	}
}

// WithMaxReconnects sets the maximum reconnection attempts (-1 for infinite)
func WithMaxReconnects(max int) ClientOption {
	return func(c *Client) error {
		c.maxReconnects = max
		return nil
	}
}

// WithReconnectWait sets the wait between reconnection attempts
func WithReconnectWait(wait time.Duration) ClientOption {
	return func(c *Client) error {
		if wait <= 0 {
			return stderrors.New("reconnect wait must be positive")
		}
		c.reconnectWait = wait
		return nil
	}
}

// WithCircuitThreshold sets the failure count that opens the circuit breaker
func WithCircuitThreshold(threshold int32) ClientOption {
	return func(c *Client) error {
		if threshold <= 0 {
			return stderrors.New("circuit threshold must be positive")
		}
		c.circuitThreshold = threshold
		return nil
	}
}

// WithMaxBackoff caps the circuit breaker backoff duration
func WithMaxBackoff(max time.Duration) ClientOption {
	return func(c *Client) error {
		if max <= 0 {
			return stderrors.New("max backoff must be positive")
		}
		c.maxBackoff = max
		return nil
	}
}

// WithConnectTimeout sets the connection establishment timeout
func WithConnectTimeout(timeout time.Duration) ClientOption {
	return func(c *Client) error {
		if timeout <= 0 {
			return stderrors.New("connect timeout must be positive")
		}
		c.timeout = timeout
		return nil
	}
}

// WithDrainTimeout sets the timeout for draining subscriptions on close
func WithDrainTimeout(timeout time.Duration) ClientOption {
	return func(c *Client) error {
		if timeout <= 0 {
			return stderrors.New("drain timeout must be positive")
		}
		c.drainTimeout = timeout
		return nil
	}
}

// WithUserCredentials sets username/password authentication
func WithUserCredentials(username, password string) ClientOption {
	return func(c *Client) error {
		if username == "" || password == "" {
			return stderrors.New("username and password must both be set")
		}
		c.username = username
		c.password = password
		return nil
	}
}

// WithToken sets token authentication
func WithToken(token string) ClientOption {
	return func(c *Client) error {
		if token == "" {
			return stderrors.New("token cannot be empty")
		}
		c.token = token
		return nil
	}
}

// WithClientName sets the connection name visible to the NATS server
func WithClientName(name string) ClientOption {
	return func(c *Client) error {
		c.clientName = name
		return nil
	}
}
