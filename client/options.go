package client

import (
	"github.com/swiftcore/netio/netcore"
	"github.com/swiftcore/netio/netopt"
)

// Option customizes a Config before it is handed to New, mirroring
// server.Option/server.Apply.
type Option func(*Config)

// DefaultConfig returns a Config dialing address with no socket-option
// overrides and the netcore defaults.
func DefaultConfig(address string) Config {
	return Config{Address: address}
}

// WithSockets overrides the socket options applied to the dialed connection.
func WithSockets(opts netopt.Options) Option {
	return func(c *Config) { c.Sockets = opts }
}

// WithConnConfig overrides the netcore.Config applied to the Client's
// connection.
func WithConnConfig(cfg netcore.Config) Option {
	return func(c *Config) { c.Conn = cfg }
}

// Apply runs every Option against cfg in order and returns the result.
func Apply(cfg Config, opts ...Option) Config {
	for _, opt := range opts {
		opt(&cfg)
	}
	return cfg
}
