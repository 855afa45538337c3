package server

import (
	"github.com/swiftcore/netio/netcore"
	"github.com/swiftcore/netio/netopt"
)

// Option customizes a Config before it is handed to New.
type Option func(*Config)

// DefaultConfig returns a Config with no socket-option overrides and the
// netcore defaults (see netcore.Config.withDefaults).
func DefaultConfig(address string) Config {
	return Config{Address: address}
}

// WithSockets overrides the socket options applied to the listener and every
// accepted connection.
func WithSockets(opts netopt.Options) Option {
	return func(c *Config) { c.Sockets = opts }
}

// WithSessionConfig overrides the netcore.Config applied to every accepted
// Session.
func WithSessionConfig(cfg netcore.Config) Option {
	return func(c *Config) { c.Session = cfg }
}

// Apply runs every Option against cfg in order and returns the result,
// letting callers write server.New(svc, server.Apply(server.DefaultConfig(addr),
// server.WithSockets(opts)), hooks).
func Apply(cfg Config, opts ...Option) Config {
	for _, opt := range opts {
		opt(&cfg)
	}
	return cfg
}
