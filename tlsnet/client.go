package tlsnet

import (
	"context"
	"crypto/tls"
	"net"

	netclient "github.com/swiftcore/netio/client"
	"github.com/swiftcore/netio/netcore"
)

func defaultTCPDial(ctx context.Context, address string) (net.Conn, error) {
	var d net.Dialer
	return d.DialContext(ctx, "tcp", address)
}

// NewClientDialFunc builds a client.DialFunc that dials a plain TCP socket
// and wraps it in a *tls.Conn, ready for ApplyClientHooks to drive the
// handshake once connected. serverName overrides SNI when address is not
// itself a usable certificate name (e.g. it's an IP).
func NewClientDialFunc(ctx *Context, serverName string) netclient.DialFunc {
	return func(c context.Context, address string) (net.Conn, error) {
		raw, err := defaultTCPDial(c, address)
		if err != nil {
			return nil, err
		}
		return tls.Client(raw, ctx.clientConfig(serverName)), nil
	}
}

// ApplyClientHooks installs the PostConnectFunc that flips a freshly
// connected Client's netcore.Conn to not-handshaked and drives the
// handshake asynchronously, firing OnHandshaked and arming ReceiveAsync on
// success. cl must have been given a dial func from NewClientDialFunc (or
// an equivalent that returns a *tls.Conn) via SetDialFunc.
func ApplyClientHooks(cl *netclient.Client) {
	cl.SetPostConnectHook(func(cl *netclient.Client, c *netcore.Conn) {
		c.SetHandshaked(false)
		beginClientHandshake(cl, c)
	})
}

func beginClientHandshake(cl *netclient.Client, c *netcore.Conn) {
	tlsConn, ok := c.Raw().(*tls.Conn)
	if !ok {
		return
	}
	hooks := cl.Hooks()
	loop := c.Loop()
	go func() {
		err := tlsConn.HandshakeContext(context.Background())
		loop.Post(func() {
			if !c.Connected() {
				return
			}
			if err != nil {
				if !IsBenignDisconnect(err) && hooks.OnErr != nil {
					hooks.OnErr(cl, err)
				}
				c.Disconnect()
				return
			}
			c.SetHandshaked(true)
			if hooks.OnHandshaked != nil {
				hooks.OnHandshaked(cl)
			}
			_ = c.ReceiveAsync()
		})
	}()
}
