package server

import (
	"context"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/swiftcore/netio/control"
	"github.com/swiftcore/netio/errs"
	"github.com/swiftcore/netio/netcore"
	"github.com/swiftcore/netio/netopt"
	"github.com/swiftcore/netio/reactor"
)

// Hooks are the notification surface for a Server: lifecycle callbacks
// (OnStart, OnStop, OnConnect, OnDisconnect, OnHandshaked, OnErr) plus the
// Session-level OnReceive/OnSend/OnEmpty a Server must supply on every
// Session it constructs, since every Session built by this Server shares
// one handler configuration — the same "one handler, many connections"
// shape net/http uses for its Handler.
type Hooks struct {
	OnStart      func()
	OnStop       func()
	OnConnect    func(*Session)
	OnDisconnect func(*Session, error)
	OnHandshaked func(*Session)
	OnReceive    func(*Session, []byte)
	OnSend       func(*Session, int)
	OnEmpty      func(*Session)
	OnErr        func(*Session, error)
}

// Config configures a Server's listening endpoint and the netcore.Conn
// tuning applied to every Session it accepts.
type Config struct {
	Address string
	Sockets netopt.Options
	Session netcore.Config
}

// NewSessionFunc is the polymorphic Session-construction hook: it lets a
// wrapper (tlsnet, for instance) construct its own Session variant — one
// that wraps conn in a *tls.Conn and starts not-handshaked — without Server
// needing to know anything about TLS.
type NewSessionFunc func(id uint64, conn net.Conn, loop *reactor.IOLoop) *Session

// Server accepts inbound connections, constructs a Session per connection,
// and maintains a keyed registry of the currently connected Sessions.
type Server struct {
	svc        *reactor.Service
	cfg        Config
	hooks      Hooks
	newSession NewSessionFunc

	mu       sync.RWMutex
	sessions map[uint64]*Session
	nextID   uint64

	started   atomic.Bool
	listener  net.Listener
	startedAt time.Time

	bytesSent     atomic.Int64
	bytesReceived atomic.Int64
}

// New constructs an idle Server bound to svc for its loop assignment.
// SetNewSessionFunc may be called before Start to inject a TLS (or other)
// Session variant; the default builds plain Sessions.
func New(svc *reactor.Service, cfg Config, hooks Hooks) *Server {
	srv := &Server{svc: svc, cfg: cfg, hooks: hooks, sessions: make(map[uint64]*Session)}
	srv.newSession = srv.defaultNewSession
	return srv
}

// SetNewSessionFunc overrides the Session-construction hook. Must be
// called before Start.
func (srv *Server) SetNewSessionFunc(f NewSessionFunc) {
	if f == nil {
		f = srv.defaultNewSession
	}
	srv.newSession = f
}

// NewSession builds a Session bound to this Server's registry and hook set,
// wrapping conn for I/O on loop. A custom NewSessionFunc (tlsnet's, for
// instance) calls this with its own decorated net.Conn — a *tls.Conn rather
// than the raw accepted socket — to get the same registry wiring and
// byte-counter/event plumbing the default plain-TCP path gets.
func (srv *Server) NewSession(id uint64, conn net.Conn, loop *reactor.IOLoop) *Session {
	return srv.defaultNewSession(id, conn, loop)
}

// Hooks returns the Hooks this Server was constructed with, letting a
// custom NewSessionFunc fire the same on_handshaked/on_err callbacks the
// Server's own accept loop fires, without the Server needing to know
// anything about TLS itself.
func (srv *Server) Hooks() Hooks { return srv.hooks }

func (srv *Server) defaultNewSession(id uint64, conn net.Conn, loop *reactor.IOLoop) *Session {
	sess := &Session{id: id, srv: srv}
	sess.Conn = netcore.New(conn, loop, srv.cfg.Session, srv.sessionHooks(sess))
	return sess
}

// sessionHooks builds the netcore.Hooks closure shared by every Session
// this Server constructs, wiring aggregate byte counters and registry
// cleanup on top of the user-supplied per-session callbacks.
func (srv *Server) sessionHooks(sess *Session) netcore.Hooks {
	return netcore.Hooks{
		OnReceive: func(buf []byte) {
			srv.bytesReceived.Add(int64(len(buf)))
			if srv.hooks.OnReceive != nil {
				srv.hooks.OnReceive(sess, buf)
			}
		},
		OnSend: func(n int) {
			srv.bytesSent.Add(int64(n))
			if srv.hooks.OnSend != nil {
				srv.hooks.OnSend(sess, n)
			}
		},
		OnEmpty: func() {
			if srv.hooks.OnEmpty != nil {
				srv.hooks.OnEmpty(sess)
			}
		},
		OnErr: func(err error) {
			if srv.hooks.OnErr != nil {
				srv.hooks.OnErr(sess, err)
			}
		},
		OnDisconnect: func(cause error) {
			sess.clearServer()
			srv.unregister(sess.id)
			if srv.hooks.OnDisconnect != nil {
				srv.hooks.OnDisconnect(sess, cause)
			}
		},
	}
}

func (srv *Server) unregister(id uint64) {
	srv.mu.Lock()
	delete(srv.sessions, id)
	srv.mu.Unlock()
}

// Start opens the listener with this Server's configured socket options,
// zeroes its aggregate counters, fires on_start, and begins accepting.
func (srv *Server) Start() error {
	if !srv.started.CompareAndSwap(false, true) {
		return errs.New(errs.CodeInvalidArgument, "server: already started")
	}
	ln, err := srv.cfg.Sockets.Listen(context.Background(), srv.cfg.Address)
	if err != nil {
		srv.started.Store(false)
		return err
	}
	srv.listener = ln
	srv.startedAt = time.Now()
	srv.bytesSent.Store(0)
	srv.bytesReceived.Store(0)
	if srv.hooks.OnStart != nil {
		srv.hooks.OnStart()
	}
	go srv.acceptLoop()
	return nil
}

// acceptLoop always re-arms another accept, whether or not the previous one
// succeeded, until the Server is stopped.
func (srv *Server) acceptLoop() {
	for {
		conn, err := srv.listener.Accept()
		if err != nil {
			if !srv.started.Load() {
				return
			}
			if !errs.IsBenignDisconnect(err) && srv.hooks.OnErr != nil {
				srv.hooks.OnErr(nil, err)
			}
			continue
		}
		_ = netopt.ApplyConn(conn, srv.cfg.Sockets)

		id := atomic.AddUint64(&srv.nextID, 1)
		loop := srv.svc.GetIO()
		sess := srv.newSession(id, conn, loop)

		srv.mu.Lock()
		srv.sessions[id] = sess
		srv.mu.Unlock()

		if srv.hooks.OnConnect != nil {
			srv.hooks.OnConnect(sess)
		}
		if sess.Ready() {
			_ = sess.ReceiveAsync()
		}
	}
}

// Multicast sends buf to every currently ready Session, with no ordering
// guarantee across sessions. It returns the number of sessions the payload
// was enqueued for.
func (srv *Server) Multicast(buf []byte) int {
	srv.mu.RLock()
	defer srv.mu.RUnlock()
	n := 0
	for _, sess := range srv.sessions {
		if sess.Ready() {
			if sess.SendAsync(buf) == nil {
				n++
			}
		}
	}
	return n
}

// DisconnectAll disconnects every currently registered Session.
func (srv *Server) DisconnectAll() {
	srv.mu.RLock()
	sessions := make([]*Session, 0, len(srv.sessions))
	for _, sess := range srv.sessions {
		sessions = append(sessions, sess)
	}
	srv.mu.RUnlock()
	for _, sess := range sessions {
		sess.Disconnect()
	}
}

// FindSession looks up a Session by id under the registry's reader lock.
func (srv *Server) FindSession(id uint64) (*Session, bool) {
	srv.mu.RLock()
	defer srv.mu.RUnlock()
	sess, ok := srv.sessions[id]
	return sess, ok
}

// Count reports the number of currently registered sessions.
func (srv *Server) Count() int {
	srv.mu.RLock()
	defer srv.mu.RUnlock()
	return len(srv.sessions)
}

func (srv *Server) BytesSent() int64     { return srv.bytesSent.Load() }
func (srv *Server) BytesReceived() int64 { return srv.bytesReceived.Load() }

// ListenerAddr returns the address the Server is currently listening on, or
// an empty string before Start. Useful with Config.Address == ":0" or
// "host:0" to discover the ephemeral port a test or CLI example bound to.
func (srv *Server) ListenerAddr() string {
	if srv.listener == nil {
		return ""
	}
	return srv.listener.Addr().String()
}

// Stop closes the acceptor, disconnects every Session, and fires on_stop.
// Stop on an already-stopped Server is a no-op.
func (srv *Server) Stop() {
	if !srv.started.CompareAndSwap(true, false) {
		return
	}
	if srv.listener != nil {
		_ = srv.listener.Close()
	}
	srv.DisconnectAll()
	if srv.hooks.OnStop != nil {
		srv.hooks.OnStop()
	}
}

// Control returns a snapshot registry carrying this Server's session count,
// aggregate byte counters, and uptime since Start.
func (srv *Server) Control() *control.Registry {
	reg := control.NewRegistry()
	reg.Set("sessions", int64(srv.Count()))
	reg.Set("bytes_sent", srv.BytesSent())
	reg.Set("bytes_received", srv.BytesReceived())
	if !srv.startedAt.IsZero() {
		reg.Set("uptime_seconds", int64(time.Since(srv.startedAt).Seconds()))
	}
	reg.RegisterProbe("session_ids", func() any {
		srv.mu.RLock()
		defer srv.mu.RUnlock()
		ids := make([]uint64, 0, len(srv.sessions))
		for id := range srv.sessions {
			ids = append(ids, id)
		}
		return ids
	})
	return reg
}

// Restart stops the Server (if running) and starts it again at the same
// configured address, handing fresh ids to any subsequently accepted
// Session.
func (srv *Server) Restart() error {
	srv.Stop()
	return srv.Start()
}
