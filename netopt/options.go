// Package netopt wires socket-level tuning for Server/Client — SO_REUSEADDR,
// SO_REUSEPORT, SO_KEEPALIVE, TCP_NODELAY, and a receive-buffer size hint —
// onto Go's net package.
//
// Most of these options are exposed directly by *net.TCPConn and need no
// syscall access at all. Only SO_REUSEADDR/SO_REUSEPORT, which must be set
// on the listening socket before bind(2) runs, require reaching underneath
// net.ListenConfig via its Control hook; that part is platform-specific and
// lives in listen_unix.go/listen_other.go.
package netopt

import (
	"context"
	"net"
	"syscall"
	"time"
)

// Options configures the socket-level knobs a Server or Client may apply.
// The zero value applies nothing beyond Go's own defaults.
type Options struct {
	ReuseAddr       bool
	ReusePort       bool
	NoDelay         bool
	KeepAlive       bool
	KeepAlivePeriod time.Duration
	RecvBuffer      int
}

// ListenConfig builds a net.ListenConfig whose Control hook applies
// ReuseAddr/ReusePort to the listening socket before it's bound.
func (o Options) ListenConfig() net.ListenConfig {
	return net.ListenConfig{
		Control: func(_, _ string, c syscall.RawConn) error {
			return controlReuse(c, o)
		},
	}
}

// Listen opens a TCP listener at address with this Options' ReuseAddr and
// ReusePort applied.
func (o Options) Listen(ctx context.Context, address string) (net.Listener, error) {
	lc := o.ListenConfig()
	return lc.Listen(ctx, "tcp", address)
}

// ApplyConn tunes an already-connected socket: TCP_NODELAY, keepalive, and
// the receive buffer size hint. These are all plain *net.TCPConn methods,
// so no syscall access is needed here regardless of platform; ApplyConn is
// a no-op for any net.Conn that isn't backed by TCP (e.g. already-wrapped
// *tls.Conn — Server and Client pass the underlying TCP conn instead).
func ApplyConn(conn net.Conn, o Options) error {
	tc, ok := conn.(*net.TCPConn)
	if !ok {
		return nil
	}
	if err := tc.SetNoDelay(o.NoDelay); err != nil {
		return err
	}
	if o.KeepAlive {
		if err := tc.SetKeepAlive(true); err != nil {
			return err
		}
		if o.KeepAlivePeriod > 0 {
			if err := tc.SetKeepAlivePeriod(o.KeepAlivePeriod); err != nil {
				return err
			}
		}
	} else {
		if err := tc.SetKeepAlive(false); err != nil {
			return err
		}
	}
	if o.RecvBuffer > 0 {
		if err := tc.SetReadBuffer(o.RecvBuffer); err != nil {
			return err
		}
	}
	return nil
}
