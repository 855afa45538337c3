// Package control supplies a lightweight metrics/introspection surface for
// the reactor, server, and client: named mutable metric values (session
// counts, aggregate byte counters, uptime) plus named on-demand debug
// probes, both read as a pull-based, in-process snapshot.
package control

import (
	"sync"
	"time"
)

// Registry holds named numeric metrics and named debug probes for one
// component (a reactor.Service or a server.Server/client.Client). Reads and
// writes are safe for concurrent use.
type Registry struct {
	mu        sync.RWMutex
	metrics   map[string]int64
	probes    map[string]func() any
	startedAt time.Time
}

// NewRegistry creates an empty Registry, recording the current time as its
// StartedAt so Uptime is measurable from construction.
func NewRegistry() *Registry {
	return &Registry{
		metrics:   make(map[string]int64),
		probes:    make(map[string]func() any),
		startedAt: time.Now(),
	}
}

// Set sets or updates a named metric.
func (r *Registry) Set(key string, value int64) {
	r.mu.Lock()
	r.metrics[key] = value
	r.mu.Unlock()
}

// Add increments a named metric by delta, treating an unset metric as 0.
func (r *Registry) Add(key string, delta int64) {
	r.mu.Lock()
	r.metrics[key] += delta
	r.mu.Unlock()
}

// Metrics returns a point-in-time copy of every named metric.
func (r *Registry) Metrics() map[string]int64 {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make(map[string]int64, len(r.metrics))
	for k, v := range r.metrics {
		out[k] = v
	}
	return out
}

// RegisterProbe installs a named, on-demand debug hook. fn is called fresh
// every time DumpProbes runs — probes are for cheap introspection (current
// loop count, current registry size), not precomputed values.
func (r *Registry) RegisterProbe(name string, fn func() any) {
	r.mu.Lock()
	r.probes[name] = fn
	r.mu.Unlock()
}

// DumpProbes runs every registered probe and returns its current result.
func (r *Registry) DumpProbes() map[string]any {
	r.mu.RLock()
	probes := make([]string, 0, len(r.probes))
	fns := make([]func() any, 0, len(r.probes))
	for name, fn := range r.probes {
		probes = append(probes, name)
		fns = append(fns, fn)
	}
	r.mu.RUnlock()

	out := make(map[string]any, len(probes))
	for i, name := range probes {
		out[name] = fns[i]()
	}
	return out
}

// Uptime reports how long this Registry has existed. The Control() methods
// build a fresh Registry on every call, so component uptime is reported as
// a metric (server's "uptime_seconds") rather than through this method.
func (r *Registry) Uptime() time.Duration {
	return time.Since(r.startedAt)
}

// StartedAt reports when this Registry was constructed.
func (r *Registry) StartedAt() time.Time {
	return r.startedAt
}
