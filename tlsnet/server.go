package tlsnet

import (
	"context"
	"crypto/tls"
	"net"

	"github.com/swiftcore/netio/reactor"
	"github.com/swiftcore/netio/server"
)

// NewServerSessionFunc builds a server.NewSessionFunc that wraps every
// accepted connection in a *tls.Conn and runs the handshake asynchronously
// after accept. OnConnect still fires immediately on accept (server.Server's
// own accept loop does that unconditionally); OnHandshaked and the Session's
// first ReceiveAsync arming happen only once the handshake completes.
func NewServerSessionFunc(srv *server.Server, ctx *Context) server.NewSessionFunc {
	hooks := srv.Hooks()
	return func(id uint64, conn net.Conn, loop *reactor.IOLoop) *server.Session {
		tlsConn := tls.Server(conn, ctx.serverConfig())
		sess := srv.NewSession(id, tlsConn, loop)
		sess.SetHandshaked(false)
		beginServerHandshake(sess, tlsConn, hooks)
		return sess
	}
}

func beginServerHandshake(sess *server.Session, tlsConn *tls.Conn, hooks server.Hooks) {
	loop := sess.Loop()
	go func() {
		err := tlsConn.HandshakeContext(context.Background())
		loop.Post(func() {
			if !sess.Connected() {
				return
			}
			if err != nil {
				if !IsBenignDisconnect(err) && hooks.OnErr != nil {
					hooks.OnErr(sess, err)
				}
				sess.Disconnect()
				return
			}
			sess.SetHandshaked(true)
			if hooks.OnHandshaked != nil {
				hooks.OnHandshaked(sess)
			}
			_ = sess.ReceiveAsync()
		})
	}()
}
