// Package client implements a Client that resolves an address, connects,
// and drives the same buffering/IO discipline as server.Session against its
// own socket, via a *netcore.Conn held in a field and rebuilt on every
// connect (see netcore's package doc for the shared type).
package client

import (
	"context"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/swiftcore/netio/control"
	"github.com/swiftcore/netio/errs"
	"github.com/swiftcore/netio/netcore"
	"github.com/swiftcore/netio/netopt"
	"github.com/swiftcore/netio/reactor"
)

// Hooks are the Client-side notification surface: the same set Session
// exposes, plus connect/disconnect/handshake since a Client drives its own
// connection lifecycle rather than being handed an already-accepted one.
type Hooks struct {
	OnConnect    func(*Client)
	OnDisconnect func(*Client, error)
	OnHandshaked func(*Client)
	OnReceive    func(*Client, []byte)
	OnSend       func(*Client, int)
	OnEmpty      func(*Client)
	OnErr        func(*Client, error)
}

// Config configures the address a Client connects to and the netcore.Conn
// tuning applied once connected.
type Config struct {
	Address string
	Sockets netopt.Options
	Conn    netcore.Config
}

// DialFunc is the polymorphic connection-establishment hook the TLS layer
// overrides to wrap the dialed socket in a *tls.Conn and drive a handshake
// before the Client is considered connected.
type DialFunc func(ctx context.Context, address string) (net.Conn, error)

func defaultDial(ctx context.Context, address string) (net.Conn, error) {
	var d net.Dialer
	return d.DialContext(ctx, "tcp", address)
}

// PostConnectFunc lets an extension act on the freshly built *netcore.Conn
// before OnConnect fires and before the readiness check that decides
// whether to arm ReceiveAsync — the hook tlsnet uses to flip handshaked to
// false and kick off an async TLS handshake before the connection is
// considered ready.
type PostConnectFunc func(*Client, *netcore.Conn)

// Client initiates an outbound connection and runs the send/receive
// quartet against it. A fresh *netcore.Conn is built on every successful
// connect attempt; reconnecting never reuses a stream after failure.
type Client struct {
	svc   *reactor.Service
	cfg   Config
	hooks Hooks
	dial  DialFunc

	postConnect PostConnectFunc

	mu                sync.Mutex
	conn              *netcore.Conn
	disconnectWaiters []chan struct{}

	connecting atomic.Bool
	connected  atomic.Bool

	reconnectGroup singleflight.Group
}

// New constructs an idle Client. Call Connect or ConnectAsync to dial.
func New(svc *reactor.Service, cfg Config, hooks Hooks) *Client {
	return &Client{svc: svc, cfg: cfg, hooks: hooks, dial: defaultDial}
}

// SetDialFunc overrides how Connect/ConnectAsync establish the underlying
// net.Conn. Must be called before the first Connect/ConnectAsync.
func (cl *Client) SetDialFunc(f DialFunc) {
	if f == nil {
		f = defaultDial
	}
	cl.dial = f
}

// SetPostConnectHook installs f to run immediately after each successful
// connect's *netcore.Conn is built, before on_connect fires and before the
// readiness check that decides whether to arm receive_async. Must be called
// before the first Connect/ConnectAsync.
func (cl *Client) SetPostConnectHook(f PostConnectFunc) {
	cl.postConnect = f
}

func (cl *Client) currentConn() *netcore.Conn {
	cl.mu.Lock()
	defer cl.mu.Unlock()
	return cl.conn
}

// Ready reports connected ∧ (handshaked ∨ plain), delegating to the
// current underlying connection if one exists.
func (cl *Client) Ready() bool {
	c := cl.currentConn()
	return c != nil && c.Ready()
}

func (cl *Client) Connected() bool { return cl.connected.Load() }

// Hooks returns the Hooks this Client was constructed with, letting an
// extension (tlsnet's PostConnectFunc, for instance) fire the same on_err
// callback the Client's own connect/send/receive paths fire.
func (cl *Client) Hooks() Hooks { return cl.hooks }

func (cl *Client) connHooks() netcore.Hooks {
	return netcore.Hooks{
		OnReceive: func(buf []byte) {
			if cl.hooks.OnReceive != nil {
				cl.hooks.OnReceive(cl, buf)
			}
		},
		OnSend: func(n int) {
			if cl.hooks.OnSend != nil {
				cl.hooks.OnSend(cl, n)
			}
		},
		OnEmpty: func() {
			if cl.hooks.OnEmpty != nil {
				cl.hooks.OnEmpty(cl)
			}
		},
		OnErr: func(err error) {
			if cl.hooks.OnErr != nil {
				cl.hooks.OnErr(cl, err)
			}
		},
		OnDisconnect: func(cause error) {
			cl.connected.Store(false)
			cl.mu.Lock()
			waiters := cl.disconnectWaiters
			cl.disconnectWaiters = nil
			cl.mu.Unlock()
			for _, w := range waiters {
				close(w)
			}
			if cl.hooks.OnDisconnect != nil {
				cl.hooks.OnDisconnect(cl, cause)
			}
		},
	}
}

// connectGuarded performs one connect attempt, rejecting a call made while
// another connect attempt is already in flight.
func (cl *Client) connectGuarded() error {
	if !cl.connecting.CompareAndSwap(false, true) {
		return errs.New(errs.CodeNotReady, "client: connect already in progress")
	}
	defer cl.connecting.Store(false)
	return cl.doConnect()
}

func (cl *Client) doConnect() error {
	rawConn, err := cl.dial(context.Background(), cl.cfg.Address)
	if err != nil {
		if cl.hooks.OnErr != nil {
			cl.hooks.OnErr(cl, err)
		}
		return err
	}
	sockConn := rawConn
	if u, ok := rawConn.(interface{ NetConn() net.Conn }); ok {
		sockConn = u.NetConn()
	}
	_ = netopt.ApplyConn(sockConn, cl.cfg.Sockets)

	loop := cl.svc.GetIO()
	c := netcore.New(rawConn, loop, cl.cfg.Conn, cl.connHooks())

	cl.mu.Lock()
	cl.conn = c
	cl.mu.Unlock()
	cl.connected.Store(true)

	if cl.postConnect != nil {
		cl.postConnect(cl, c)
	}
	if cl.hooks.OnConnect != nil {
		cl.hooks.OnConnect(cl)
	}
	if c.Ready() {
		_ = c.ReceiveAsync()
	}
	return nil
}

// Connect dials synchronously and returns any connection error.
func (cl *Client) Connect() error {
	return cl.connectGuarded()
}

// ConnectAsync dials in the background; connect failures surface through
// on_err rather than a return value.
func (cl *Client) ConnectAsync() {
	if !cl.connecting.CompareAndSwap(false, true) {
		return
	}
	go func() {
		defer cl.connecting.Store(false)
		_ = cl.doConnect()
	}()
}

// Disconnect tears down the current connection and blocks until
// on_disconnect has fired. It returns false if there is no connection to
// tear down.
func (cl *Client) Disconnect() bool {
	cl.mu.Lock()
	c := cl.conn
	if c == nil {
		cl.mu.Unlock()
		return false
	}
	done := make(chan struct{})
	cl.disconnectWaiters = append(cl.disconnectWaiters, done)
	cl.mu.Unlock()

	if !c.Disconnect() {
		return false
	}
	<-done
	return true
}

// DisconnectAsync tears down the current connection without waiting for
// on_disconnect to fire.
func (cl *Client) DisconnectAsync() bool {
	c := cl.currentConn()
	if c == nil {
		return false
	}
	return c.Disconnect()
}

// Reconnect disconnects, waits for the disconnect to complete, and connects
// again, deduplicated via singleflight so concurrent Reconnect/
// ReconnectAsync callers share one attempt instead of racing independent
// dial/disconnect sequences against each other.
func (cl *Client) Reconnect() error {
	_, err, _ := cl.reconnectGroup.Do("reconnect", func() (interface{}, error) {
		cl.Disconnect()
		return nil, cl.connectGuarded()
	})
	return err
}

// ReconnectAsync runs Reconnect in the background.
func (cl *Client) ReconnectAsync() {
	go func() { _ = cl.Reconnect() }()
}

// SendAsync delegates to the current connection's send-main buffer.
func (cl *Client) SendAsync(buf []byte) error {
	c := cl.currentConn()
	if c == nil {
		return errs.Closed
	}
	return c.SendAsync(buf)
}

// Send delegates to the current connection's synchronous write.
func (cl *Client) Send(buf []byte, timeout time.Duration) error {
	c := cl.currentConn()
	if c == nil {
		return errs.Closed
	}
	return c.Send(buf, timeout)
}

// ReceiveAsync arms the current connection's continuous read loop.
func (cl *Client) ReceiveAsync() error {
	c := cl.currentConn()
	if c == nil {
		return errs.Closed
	}
	return c.ReceiveAsync()
}

// Receive delegates to the current connection's synchronous read.
func (cl *Client) Receive(buf []byte, timeout time.Duration) (int, error) {
	c := cl.currentConn()
	if c == nil {
		return 0, errs.Closed
	}
	return c.Receive(buf, timeout)
}

func (cl *Client) BytesPending() int64 {
	if c := cl.currentConn(); c != nil {
		return c.BytesPending()
	}
	return 0
}

func (cl *Client) BytesSending() int64 {
	if c := cl.currentConn(); c != nil {
		return c.BytesSending()
	}
	return 0
}

func (cl *Client) BytesSent() int64 {
	if c := cl.currentConn(); c != nil {
		return c.BytesSent()
	}
	return 0
}

func (cl *Client) BytesReceived() int64 {
	if c := cl.currentConn(); c != nil {
		return c.BytesReceived()
	}
	return 0
}

// Control returns a snapshot registry carrying this Client's connection
// state and byte counters.
func (cl *Client) Control() *control.Registry {
	reg := control.NewRegistry()
	connected := int64(0)
	if cl.Connected() {
		connected = 1
	}
	reg.Set("connected", connected)
	reg.Set("bytes_sent", cl.BytesSent())
	reg.Set("bytes_received", cl.BytesReceived())
	return reg
}
