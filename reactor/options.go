package reactor

import "github.com/rs/zerolog"

// Option customizes a Config before it is handed to New, mirroring
// server.Option/client.Option.
type Option func(*Config)

// WithThreads overrides the worker-goroutine count (see Config's doc for
// what each threading mode means).
func WithThreads(n int) Option {
	return func(c *Config) { c.Threads = n }
}

// WithStrand forces every task posted through the Service onto a single
// serialized Strand regardless of Threads.
func WithStrand(needsStrand bool) Option {
	return func(c *Config) { c.NeedsStrand = needsStrand }
}

// WithLogger installs the zerolog.Logger the Service reports internal
// diagnostics through.
func WithLogger(logger *zerolog.Logger) Option {
	return func(c *Config) { c.Logger = logger }
}

// Apply runs every Option against cfg in order and returns the result.
func Apply(cfg Config, opts ...Option) Config {
	for _, opt := range opts {
		opt(&cfg)
	}
	return cfg
}
