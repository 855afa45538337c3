// Package netcore implements the double-buffered send path, adaptive
// receive loop, and connection lifecycle shared by every connection-like
// component in this module. server.Session embeds a *netcore.Conn and
// client.Client holds one per connection instead of duplicating this logic;
// tlsnet supplies a
// *tls.Conn as the underlying net.Conn, since *tls.Conn already satisfies
// net.Conn and needs no parallel implementation of any of this.
//
// Writes and every callback run as tasks posted to the connection's
// reactor.IOLoop. Each read_some runs on a short-lived goroutine that posts
// its result back to the loop, so a connection waiting for data does not
// hold the loop; a write runs on the loop itself and holds it until
// net.Conn.Write returns. Go's netpoller already turns a blocking
// net.Conn.Read/Write into a cheap suspension point, so there is no separate
// non-blocking path to hand-roll.
package netcore

import (
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/swiftcore/netio/errs"
	"github.com/swiftcore/netio/pool"
	"github.com/swiftcore/netio/reactor"
)

// Hooks are the Stream-agnostic notification surface netcore.Conn fires.
// server.Session and client.Client each build their own Hooks value that
// closes over their richer, component-specific hook sets (e.g. Session's
// OnDisconnect also unregisters from the Server's registry).
type Hooks struct {
	OnReceive    func(buf []byte)
	OnSend       func(n int)
	OnEmpty      func()
	OnErr        func(err error)
	OnDisconnect func(cause error)
}

// Config carries the per-connection back-pressure limits and receive-buffer
// sizing a Conn applies.
type Config struct {
	// SendLimit caps the bytes not yet written — the main buffer plus the
	// unwritten tail of the flush buffer; 0 is unlimited. Exceeding it
	// rejects the enqueue with buffer_exhausted and leaves the connection
	// live.
	SendLimit int
	// ReceiveLimit caps how large the adaptive receive buffer may grow; 0
	// is unlimited. Exceeding it disconnects with buffer_exhausted.
	ReceiveLimit int
	// InitialReceiveBuffer sizes the first receive buffer. Defaults to
	// 512 bytes, which fits pool.DefaultSlabSize's 1 KiB inline arena. The
	// first doubling releases the slab and moves the buffer to the shared
	// heap-backed BufferPool.
	InitialReceiveBuffer int
}

func (c Config) withDefaults() Config {
	if c.InitialReceiveBuffer <= 0 {
		c.InitialReceiveBuffer = 512
	}
	return c
}

// Conn is the double-buffered send path and adaptive receive loop shared by
// every connection-like component in this module. It is deliberately
// unaware of Session ids, Server registries, or Client reconnect state —
// those live one layer up.
type Conn struct {
	conn  net.Conn
	loop  *reactor.IOLoop
	cfg   Config
	hooks Hooks

	connected  atomic.Bool
	handshaked atomic.Bool

	sendMu   sync.Mutex
	mainBuf  []byte
	flushBuf []byte
	flushOff int
	sending  atomic.Bool

	recvBuf      []byte
	recvSlab     *pool.Slab
	recvFromSlab bool
	receiving    atomic.Bool

	pendingBytes  atomic.Int64
	sendingBytes  atomic.Int64
	sentBytes     atomic.Int64
	receivedBytes atomic.Int64

	disconnectOnce sync.Once
}

// New wraps conn for buffered, back-pressured I/O driven by loop. The
// connection starts connected and handshaked (the plain-TCP case); TLS
// wrappers call SetHandshaked(false) immediately after New to hold the
// connection in a connected-but-not-yet-handshaked state until the
// handshake completes.
func New(conn net.Conn, loop *reactor.IOLoop, cfg Config, hooks Hooks) *Conn {
	cfg = cfg.withDefaults()
	c := &Conn{conn: conn, loop: loop, cfg: cfg, hooks: hooks, recvSlab: pool.NewSlab()}
	c.connected.Store(true)
	c.handshaked.Store(true)
	buf, fromSlab := c.recvSlab.Acquire(cfg.InitialReceiveBuffer)
	c.recvBuf = buf
	c.recvFromSlab = fromSlab
	return c
}

// Raw returns the underlying net.Conn (a *tls.Conn for TLS connections).
func (c *Conn) Raw() net.Conn { return c.conn }

// Loop returns the reactor loop this connection's I/O is bound to.
func (c *Conn) Loop() *reactor.IOLoop { return c.loop }

// Connected reports the connected flag alone, ignoring handshake state.
func (c *Conn) Connected() bool { return c.connected.Load() }

// Ready reports connected ∧ handshaked. Plain connections are handshaked
// from construction, so this reduces to Connected() for them automatically.
func (c *Conn) Ready() bool { return c.connected.Load() && c.handshaked.Load() }

// SetHandshaked updates the handshake flag. Transitioning to true fires
// OnEmpty if the send side happens to already be idle. Arming the receive
// loop once handshaked is the caller's responsibility, since a TLS wrapper
// owns the handshake sequencing and may need to do other bookkeeping first.
func (c *Conn) SetHandshaked(v bool) {
	c.handshaked.Store(v)
	if !v {
		return
	}
	c.sendMu.Lock()
	idle := len(c.mainBuf) == 0 && c.flushOff >= len(c.flushBuf)
	c.sendMu.Unlock()
	if idle && c.hooks.OnEmpty != nil {
		c.hooks.OnEmpty()
	}
}

func (c *Conn) BytesPending() int64  { return c.pendingBytes.Load() }
func (c *Conn) BytesSending() int64  { return c.sendingBytes.Load() }
func (c *Conn) BytesSent() int64     { return c.sentBytes.Load() }
func (c *Conn) BytesReceived() int64 { return c.receivedBytes.Load() }

func isTimeout(err error) bool {
	ne, ok := err.(net.Error)
	return ok && ne.Timeout()
}

// enqueueSend appends buf to the send-main buffer under the send lock,
// applying the send-limit back-pressure check, and reports whether a new
// write campaign must be started (both buffers were empty before append).
func (c *Conn) enqueueSend(buf []byte) (startCampaign bool, err error) {
	if !c.Ready() {
		return false, errs.Closed
	}
	c.sendMu.Lock()
	defer c.sendMu.Unlock()
	outstanding := len(c.mainBuf) + (len(c.flushBuf) - c.flushOff)
	if c.cfg.SendLimit > 0 && outstanding+len(buf) > c.cfg.SendLimit {
		return false, errs.BufferExhausted("send", c.cfg.SendLimit, outstanding+len(buf))
	}
	wasEmpty := outstanding == 0
	c.mainBuf = append(c.mainBuf, buf...)
	c.pendingBytes.Store(int64(len(c.mainBuf)))
	if wasEmpty {
		c.sending.Store(true)
	}
	return wasEmpty, nil
}

// SendAsync appends buf to send-main and, only when a new write campaign
// must be started, schedules try_send on this connection's loop.
func (c *Conn) SendAsync(buf []byte) error {
	startCampaign, err := c.enqueueSend(buf)
	if err != nil {
		c.reportBackpressure(err)
		return err
	}
	if startCampaign {
		c.loop.Post(c.trySend)
	}
	return nil
}

// Send synchronously writes buf. It competes for the same single-in-flight
// "sending" flag SendAsync uses: if a write campaign is already underway
// the call fails immediately rather than silently interleaving with it. A
// non-zero timeout bounds the write with a deadline.
func (c *Conn) Send(buf []byte, timeout time.Duration) error {
	if !c.Ready() {
		return errs.Closed
	}
	if !c.sending.CompareAndSwap(false, true) {
		return errs.New(errs.CodeNotReady, "netcore: a send is already in flight")
	}
	defer c.sending.Store(false)

	if timeout > 0 {
		_ = c.conn.SetWriteDeadline(time.Now().Add(timeout))
		defer c.conn.SetWriteDeadline(time.Time{})
	}
	n, err := c.conn.Write(buf)
	if n > 0 {
		c.sentBytes.Add(int64(n))
		if c.hooks.OnSend != nil {
			c.hooks.OnSend(n)
		}
	}
	if err != nil {
		if isTimeout(err) {
			return errs.New(errs.CodeTimeout, "netcore: send timed out")
		}
		c.handleIOErr(err)
		return err
	}
	return nil
}

// trySend runs on the bound loop and owns the flush buffer until it drains
// or a write fails. It performs exactly one write_some per invocation and
// reposts itself for the next chunk, rather than looping in place, so that
// other connections sharing this loop get a fair turn between writes.
func (c *Conn) trySend() {
	c.sendMu.Lock()
	if c.flushOff >= len(c.flushBuf) {
		if len(c.mainBuf) == 0 {
			c.flushBuf = nil
			c.flushOff = 0
			c.sendingBytes.Store(0)
			c.sending.Store(false)
			c.sendMu.Unlock()
			if c.hooks.OnEmpty != nil {
				c.hooks.OnEmpty()
			}
			return
		}
		c.flushBuf = c.mainBuf
		c.mainBuf = nil
		c.flushOff = 0
		c.sendingBytes.Store(int64(len(c.flushBuf)))
		c.pendingBytes.Store(0)
	}
	chunk := c.flushBuf[c.flushOff:]
	c.sendMu.Unlock()

	n, err := c.conn.Write(chunk)
	if n > 0 {
		c.sendMu.Lock()
		c.flushOff += n
		c.sendingBytes.Store(int64(len(c.flushBuf) - c.flushOff))
		c.sentBytes.Add(int64(n))
		c.sendMu.Unlock()
		if c.hooks.OnSend != nil {
			c.hooks.OnSend(n)
		}
	}
	if err != nil {
		c.sending.Store(false)
		c.handleIOErr(err)
		return
	}
	c.loop.Post(c.trySend)
}

// ReceiveAsync arms the continuous read loop. Calling it while already
// armed is a no-op: at most one read is ever outstanding at a time.
func (c *Conn) ReceiveAsync() error {
	if !c.Ready() {
		return errs.Closed
	}
	if !c.receiving.CompareAndSwap(false, true) {
		return nil
	}
	c.loop.Post(c.tryReceive)
	return nil
}

// tryReceive runs on the bound loop and arms one read_some. The read blocks
// until data arrives, so it runs on its own goroutine and posts its result
// back to the loop, which stays free for sends, disconnects, and other
// connections' tasks in the meantime.
func (c *Conn) tryReceive() {
	if !c.connected.Load() {
		c.receiving.Store(false)
		return
	}
	buf := c.recvBuf
	go func() {
		n, err := c.conn.Read(buf)
		c.loop.Post(func() { c.onRead(n, err) })
	}()
}

// onRead runs on the bound loop with one read_some's result: it delivers the
// bytes via OnReceive, doubles the buffer on a full read (subject to
// ReceiveLimit), and arms the next read.
func (c *Conn) onRead(n int, err error) {
	if !c.connected.Load() {
		c.receiving.Store(false)
		return
	}
	if n > 0 {
		c.receivedBytes.Add(int64(n))
		if c.hooks.OnReceive != nil {
			c.hooks.OnReceive(c.recvBuf[:n])
		}
		if n == len(c.recvBuf) {
			if grown, ok := c.growRecvBuf(); !ok {
				c.receiving.Store(false)
				bufErr := errs.BufferExhausted("receive", c.cfg.ReceiveLimit, grown)
				c.reportFatal(bufErr)
				return
			}
		}
	}
	if err != nil {
		c.receiving.Store(false)
		c.handleIOErr(err)
		return
	}
	c.loop.Post(c.tryReceive)
}

// recvBufPool recycles the heap-backed receive buffers growRecvBuf hands out
// once a connection outgrows its slab's inline arena. It is process-global
// because, unlike the single-tenant Slab, nothing about reuse across
// unrelated connections is unsafe here — only the size class matters.
var recvBufPool = pool.NewBufferPool()

// growRecvBuf doubles the receive buffer's capacity. It returns the size
// that would have resulted and ok=false when that size would exceed a
// configured, non-zero ReceiveLimit.
func (c *Conn) growRecvBuf() (size int, ok bool) {
	next := len(c.recvBuf) * 2
	if c.cfg.ReceiveLimit > 0 && next > c.cfg.ReceiveLimit {
		return next, false
	}
	if c.recvFromSlab {
		c.recvSlab.Release(true)
		c.recvFromSlab = false
	} else {
		recvBufPool.Put(c.recvBuf)
	}
	c.recvBuf = recvBufPool.Get(next)
	return next, true
}

// Receive performs exactly one synchronous read into buf, bounded by an
// optional timeout expressed as a deadline. It competes for the same
// "receiving" flag ReceiveAsync uses.
func (c *Conn) Receive(buf []byte, timeout time.Duration) (int, error) {
	if !c.Ready() {
		return 0, errs.Closed
	}
	if !c.receiving.CompareAndSwap(false, true) {
		return 0, errs.New(errs.CodeNotReady, "netcore: a receive is already in flight")
	}
	defer c.receiving.Store(false)

	if timeout > 0 {
		_ = c.conn.SetReadDeadline(time.Now().Add(timeout))
		defer c.conn.SetReadDeadline(time.Time{})
	}
	n, err := c.conn.Read(buf)
	if n > 0 {
		c.receivedBytes.Add(int64(n))
	}
	if err != nil {
		if isTimeout(err) {
			return n, errs.New(errs.CodeTimeout, "netcore: receive timed out")
		}
		c.handleIOErr(err)
		return n, err
	}
	return n, nil
}

func (c *Conn) reportBackpressure(err error) {
	if c.hooks.OnErr != nil {
		c.hooks.OnErr(err)
	}
}

// reportFatal reports a non-benign error (buffer exhaustion on receive) and
// disconnects: unlike a send-side back-pressure rejection, a receive-side
// buffer limit leaves no way to keep the connection usable.
func (c *Conn) reportFatal(err error) {
	if c.hooks.OnErr != nil {
		c.hooks.OnErr(err)
	}
	c.disconnectInline(err)
}

// handleIOErr classifies an I/O error from the send or receive path:
// benign disconnects are suppressed from OnErr, everything else is
// reported, and either way the connection is torn down.
func (c *Conn) handleIOErr(err error) {
	if !errs.IsBenignDisconnect(err) && c.hooks.OnErr != nil {
		c.hooks.OnErr(err)
	}
	c.disconnectInline(err)
}

// disconnectInline tears the connection down immediately, for use from
// code already executing on the bound loop (trySend/tryReceive's error
// paths) where posting another closure would just delay the inevitable.
func (c *Conn) disconnectInline(cause error) {
	if !c.connected.CompareAndSwap(true, false) {
		return
	}
	c.teardown(cause)
}

// Disconnect tears the connection down if it is currently connected,
// posting the teardown to the bound loop so it runs serialized with any
// other in-flight send/receive completion for this connection. It returns
// false on an already-disconnected connection; calling it more than once
// is always safe.
func (c *Conn) Disconnect() bool {
	if !c.connected.CompareAndSwap(true, false) {
		return false
	}
	c.loop.Post(func() { c.teardown(nil) })
	return true
}

func (c *Conn) teardown(cause error) {
	c.disconnectOnce.Do(func() {
		_ = c.conn.Close()
		c.sendMu.Lock()
		c.mainBuf = nil
		c.flushBuf = nil
		c.flushOff = 0
		c.pendingBytes.Store(0)
		c.sendingBytes.Store(0)
		c.sendMu.Unlock()
		if c.recvFromSlab {
			c.recvSlab.Release(true)
			c.recvFromSlab = false
		} else if c.recvBuf != nil {
			recvBufPool.Put(c.recvBuf)
			c.recvBuf = nil
		}
		if c.hooks.OnDisconnect != nil {
			c.hooks.OnDisconnect(cause)
		}
	})
}
