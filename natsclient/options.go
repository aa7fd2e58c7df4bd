package natsclient

import (
	"log/slog"
)

// ClientOption customizes a Client at construction time.
type ClientOption func(*Client)

// WithName sets the connection name reported to the NATS server.
func WithName(name string) ClientOption {
	return func(c *Client) {
		c.name = name
	}
}

// WithLogger replaces the default logger.
func WithLogger(logger *slog.Logger) ClientOption {
	return func(c *Client) {
		c.logger = logger
	}
}
