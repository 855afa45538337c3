package client

import (
	"net"
	"sync"
	"testing"
	"time"

	"github.com/swiftcore/netio/reactor"
)

// echoListener runs a minimal raw-socket echo listener so Client has
// something real to dial against, without pulling in the server package
// (which would make this a cross-package integration test rather than a
// unit test of Client itself).
func echoListener(t *testing.T) string {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("Listen: %v", err)
	}
	t.Cleanup(func() { ln.Close() })
	go func() {
		for {
			conn, err := ln.Accept()
			if err != nil {
				return
			}
			go func(c net.Conn) {
				defer c.Close()
				buf := make([]byte, 4096)
				for {
					n, err := c.Read(buf)
					if n > 0 {
						if _, werr := c.Write(buf[:n]); werr != nil {
							return
						}
					}
					if err != nil {
						return
					}
				}
			}(conn)
		}
	}()
	return ln.Addr().String()
}

func newTestClient(t *testing.T, addr string, hooks Hooks) (*Client, *reactor.Service) {
	t.Helper()
	svc := reactor.New(reactor.Config{Threads: 2}, reactor.Hooks{})
	svc.Start(false)
	t.Cleanup(svc.Stop)

	cl := New(svc, Config{Address: addr}, hooks)
	return cl, svc
}

func TestConnectAndEchoRoundTrip(t *testing.T) {
	addr := echoListener(t)

	received := make(chan []byte, 1)
	cl, _ := newTestClient(t, addr, Hooks{
		OnReceive: func(_ *Client, buf []byte) {
			received <- append([]byte(nil), buf...)
		},
	})

	if err := cl.Connect(); err != nil {
		t.Fatalf("Connect: %v", err)
	}
	if !cl.Ready() {
		t.Fatal("expected client to be ready after Connect")
	}

	if err := cl.SendAsync([]byte("ping")); err != nil {
		t.Fatalf("SendAsync: %v", err)
	}

	select {
	case buf := <-received:
		if string(buf) != "ping" {
			t.Fatalf("got %q, want %q", buf, "ping")
		}
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for echo")
	}
}

func TestConnectAsyncFiresOnConnect(t *testing.T) {
	addr := echoListener(t)

	done := make(chan struct{})
	cl, _ := newTestClient(t, addr, Hooks{
		OnConnect: func(*Client) { close(done) },
	})

	cl.ConnectAsync()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for on_connect")
	}
	if !cl.Connected() {
		t.Fatal("expected Connected() to be true after on_connect fires")
	}
}

func TestConnectToClosedAddressReturnsError(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("Listen: %v", err)
	}
	addr := ln.Addr().String()
	ln.Close()

	var mu sync.Mutex
	var errFired bool
	cl, _ := newTestClient(t, addr, Hooks{
		OnErr: func(_ *Client, _ error) {
			mu.Lock()
			errFired = true
			mu.Unlock()
		},
	})

	if err := cl.Connect(); err == nil {
		t.Fatal("expected Connect to a closed port to fail")
	}
	mu.Lock()
	if !errFired {
		t.Fatal("expected on_err to fire on a failed connect")
	}
	mu.Unlock()
}

func TestDisconnectFiresOnDisconnectAndBlocksUntilDone(t *testing.T) {
	addr := echoListener(t)

	var disconnected bool
	var mu sync.Mutex
	cl, _ := newTestClient(t, addr, Hooks{
		OnDisconnect: func(*Client, error) {
			mu.Lock()
			disconnected = true
			mu.Unlock()
		},
	})

	if err := cl.Connect(); err != nil {
		t.Fatalf("Connect: %v", err)
	}

	if !cl.Disconnect() {
		t.Fatal("expected Disconnect to report true on a connected client")
	}
	mu.Lock()
	if !disconnected {
		t.Fatal("expected on_disconnect to have fired by the time Disconnect returns")
	}
	mu.Unlock()

	if cl.Disconnect() {
		t.Fatal("expected a second Disconnect to report false")
	}
}

func TestReconnectReplacesConnection(t *testing.T) {
	addr := echoListener(t)

	var connects int
	var mu sync.Mutex
	cl, _ := newTestClient(t, addr, Hooks{
		OnConnect: func(*Client) {
			mu.Lock()
			connects++
			mu.Unlock()
		},
	})

	if err := cl.Connect(); err != nil {
		t.Fatalf("Connect: %v", err)
	}
	firstConn := cl.currentConn()

	if err := cl.Reconnect(); err != nil {
		t.Fatalf("Reconnect: %v", err)
	}

	secondConn := cl.currentConn()
	if secondConn == firstConn {
		t.Fatal("expected Reconnect to install a new underlying connection")
	}
	if !cl.Ready() {
		t.Fatal("expected client to be ready after Reconnect")
	}

	mu.Lock()
	if connects != 2 {
		t.Fatalf("on_connect fired %d times, want 2", connects)
	}
	mu.Unlock()
}

func TestConcurrentReconnectIsDeduplicated(t *testing.T) {
	addr := echoListener(t)

	var connects int
	var mu sync.Mutex
	cl, _ := newTestClient(t, addr, Hooks{
		OnConnect: func(*Client) {
			mu.Lock()
			connects++
			mu.Unlock()
		},
	})
	if err := cl.Connect(); err != nil {
		t.Fatalf("Connect: %v", err)
	}

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			cl.ReconnectAsync()
		}()
	}
	wg.Wait()

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		mu.Lock()
		n := connects
		mu.Unlock()
		if n >= 2 {
			break
		}
		time.Sleep(5 * time.Millisecond)
	}

	mu.Lock()
	defer mu.Unlock()
	if connects == 0 {
		t.Fatal("expected at least one reconnect to complete")
	}
}

func TestOperationsBeforeConnectFail(t *testing.T) {
	cl, _ := newTestClient(t, "127.0.0.1:1", Hooks{})

	if err := cl.SendAsync([]byte("x")); err == nil {
		t.Fatal("expected SendAsync before Connect to fail")
	}
	if err := cl.ReceiveAsync(); err == nil {
		t.Fatal("expected ReceiveAsync before Connect to fail")
	}
	if cl.Ready() {
		t.Fatal("expected an unconnected Client to report not-ready")
	}
}
