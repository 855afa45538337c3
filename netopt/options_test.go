package netopt

import (
	"context"
	"net"
	"testing"
	"time"
)

func TestListenAndApplyConnRoundTrip(t *testing.T) {
	opts := Options{
		ReuseAddr:       true,
		NoDelay:         true,
		KeepAlive:       true,
		KeepAlivePeriod: 30 * time.Second,
		RecvBuffer:      64 * 1024,
	}

	ln, err := opts.Listen(context.Background(), "127.0.0.1:0")
	if err != nil {
		t.Fatalf("Listen: %v", err)
	}
	defer ln.Close()

	accepted := make(chan error, 1)
	go func() {
		conn, err := ln.Accept()
		if err != nil {
			accepted <- err
			return
		}
		defer conn.Close()
		accepted <- ApplyConn(conn, opts)
	}()

	dialed, err := net.Dial("tcp", ln.Addr().String())
	if err != nil {
		t.Fatalf("Dial: %v", err)
	}
	defer dialed.Close()

	if err := <-accepted; err != nil {
		t.Fatalf("ApplyConn on accepted conn: %v", err)
	}
}

func TestApplyConnOnNonTCPConnIsNoop(t *testing.T) {
	a, b := net.Pipe()
	defer a.Close()
	defer b.Close()

	if err := ApplyConn(a, Options{NoDelay: true, KeepAlive: true}); err != nil {
		t.Fatalf("expected ApplyConn on a non-TCP conn to no-op, got %v", err)
	}
}
