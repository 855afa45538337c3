package netcore

import (
	"net"
	"sync"
	"testing"
	"time"

	"github.com/swiftcore/netio/reactor"
)

func newTestPair(t *testing.T, cfg Config, hooks Hooks) (client net.Conn, c *Conn, loop *reactor.IOLoop) {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("Listen: %v", err)
	}
	defer ln.Close()

	accepted := make(chan net.Conn, 1)
	go func() {
		conn, err := ln.Accept()
		if err != nil {
			return
		}
		accepted <- conn
	}()

	client, err = net.Dial("tcp", ln.Addr().String())
	if err != nil {
		t.Fatalf("Dial: %v", err)
	}
	server := <-accepted

	svc := reactor.New(reactor.Config{Threads: 1}, reactor.Hooks{})
	svc.Start(false)
	t.Cleanup(svc.Stop)
	loop = svc.GetIO()

	c = New(server, loop, cfg, hooks)
	t.Cleanup(func() { client.Close() })
	return client, c, loop
}

func TestConnSendAsyncDeliversBytes(t *testing.T) {
	received := make(chan []byte, 1)
	client, c, _ := newTestPair(t, Config{}, Hooks{})
	_ = c

	go func() {
		buf := make([]byte, 64)
		n, err := client.Read(buf)
		if err != nil {
			return
		}
		out := make([]byte, n)
		copy(out, buf[:n])
		received <- out
	}()

	if err := c.SendAsync([]byte("hello")); err != nil {
		t.Fatalf("SendAsync: %v", err)
	}

	select {
	case got := <-received:
		if string(got) != "hello" {
			t.Fatalf("got %q, want %q", got, "hello")
		}
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for bytes to arrive at peer")
	}
	if got := c.BytesSent(); got != 5 {
		t.Fatalf("BytesSent() = %d, want 5", got)
	}
}

func TestConnReceiveAsyncFiresOnReceive(t *testing.T) {
	var mu sync.Mutex
	var got []byte
	done := make(chan struct{})
	client, c, _ := newTestPair(t, Config{}, Hooks{
		OnReceive: func(buf []byte) {
			mu.Lock()
			got = append([]byte(nil), buf...)
			mu.Unlock()
			close(done)
		},
	})

	if err := c.ReceiveAsync(); err != nil {
		t.Fatalf("ReceiveAsync: %v", err)
	}
	if _, err := client.Write([]byte("ping")); err != nil {
		t.Fatalf("client write: %v", err)
	}

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("on_receive never fired")
	}
	mu.Lock()
	defer mu.Unlock()
	if string(got) != "ping" {
		t.Fatalf("got %q, want %q", got, "ping")
	}
}

func TestConnSendLimitRejectsOversizedEnqueue(t *testing.T) {
	errCh := make(chan error, 1)
	_, c, _ := newTestPair(t, Config{SendLimit: 4}, Hooks{
		OnErr: func(err error) { errCh <- err },
	})

	err := c.SendAsync([]byte("too-long"))
	if err == nil {
		t.Fatal("expected SendAsync to reject a payload over the send limit")
	}
	if !c.Connected() {
		t.Fatal("send-limit back-pressure must not disconnect the session")
	}
	select {
	case <-errCh:
	case <-time.After(time.Second):
		t.Fatal("expected on_err to fire for the rejected send")
	}
}

func TestConnReceiveLimitDisconnects(t *testing.T) {
	disconnected := make(chan struct{})
	client, c, _ := newTestPair(t, Config{InitialReceiveBuffer: 4, ReceiveLimit: 4}, Hooks{
		OnDisconnect: func(error) { close(disconnected) },
	})

	if err := c.ReceiveAsync(); err != nil {
		t.Fatalf("ReceiveAsync: %v", err)
	}
	if _, err := client.Write([]byte("abcd")); err != nil {
		t.Fatalf("client write: %v", err)
	}

	select {
	case <-disconnected:
	case <-time.After(2 * time.Second):
		t.Fatal("expected a full read at the receive limit to disconnect")
	}
}

func TestConnDisconnectIsIdempotent(t *testing.T) {
	_, c, _ := newTestPair(t, Config{}, Hooks{})
	if !c.Disconnect() {
		t.Fatal("expected first Disconnect to return true")
	}
	if c.Disconnect() {
		t.Fatal("expected second Disconnect to return false")
	}
}

func TestConnSyncReceiveCompetesWithReceiveAsync(t *testing.T) {
	_, c, _ := newTestPair(t, Config{}, Hooks{})
	if err := c.ReceiveAsync(); err != nil {
		t.Fatalf("ReceiveAsync: %v", err)
	}
	_, err := c.Receive(make([]byte, 1), 10*time.Millisecond)
	if err == nil {
		t.Fatal("expected sync Receive to fail while receive_async owns the receiving flag")
	}
}

func TestConnSetHandshakedFiresOnEmptyWhenIdle(t *testing.T) {
	empty := make(chan struct{}, 1)
	_, c, _ := newTestPair(t, Config{}, Hooks{
		OnEmpty: func() { empty <- struct{}{} },
	})
	c.SetHandshaked(false)
	if c.Ready() {
		t.Fatal("expected Ready() to be false before handshake completes")
	}
	c.SetHandshaked(true)
	select {
	case <-empty:
	case <-time.After(time.Second):
		t.Fatal("expected on_empty to fire once handshake completes on an idle send side")
	}
	if !c.Ready() {
		t.Fatal("expected Ready() to be true after handshake completes")
	}
}
