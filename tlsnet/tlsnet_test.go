package tlsnet

import (
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/x509"
	"crypto/x509/pkix"
	"encoding/pem"
	"math/big"
	"net"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	netclient "github.com/swiftcore/netio/client"
	"github.com/swiftcore/netio/reactor"
	"github.com/swiftcore/netio/server"
)

// generateSelfSignedCert writes a throwaway self-signed EC certificate and
// key to dir, for loopback TLS tests only — never used for anything that
// leaves the test process.
func generateSelfSignedCert(t *testing.T, dir string) (certPath, keyPath string) {
	t.Helper()
	priv, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	if err != nil {
		t.Fatalf("GenerateKey: %v", err)
	}
	tmpl := &x509.Certificate{
		SerialNumber: big.NewInt(1),
		Subject:      pkix.Name{CommonName: "127.0.0.1"},
		NotBefore:    time.Now().Add(-time.Hour),
		NotAfter:     time.Now().Add(time.Hour),
		KeyUsage:     x509.KeyUsageDigitalSignature,
		ExtKeyUsage:  []x509.ExtKeyUsage{x509.ExtKeyUsageServerAuth},
		IPAddresses:  []net.IP{net.ParseIP("127.0.0.1")},
	}
	der, err := x509.CreateCertificate(rand.Reader, tmpl, tmpl, &priv.PublicKey, priv)
	if err != nil {
		t.Fatalf("CreateCertificate: %v", err)
	}
	certPath = filepath.Join(dir, "cert.pem")
	keyPath = filepath.Join(dir, "key.pem")

	certOut, err := os.Create(certPath)
	if err != nil {
		t.Fatalf("create cert file: %v", err)
	}
	if err := pem.Encode(certOut, &pem.Block{Type: "CERTIFICATE", Bytes: der}); err != nil {
		t.Fatalf("encode cert: %v", err)
	}
	certOut.Close()

	keyBytes, err := x509.MarshalECPrivateKey(priv)
	if err != nil {
		t.Fatalf("MarshalECPrivateKey: %v", err)
	}
	keyOut, err := os.Create(keyPath)
	if err != nil {
		t.Fatalf("create key file: %v", err)
	}
	if err := pem.Encode(keyOut, &pem.Block{Type: "EC PRIVATE KEY", Bytes: keyBytes}); err != nil {
		t.Fatalf("encode key: %v", err)
	}
	keyOut.Close()
	return certPath, keyPath
}

// TestTLSEchoScenario verifies a TLS-wrapped echo server and one client
// exchange a message only after both sides report a completed handshake.
func TestTLSEchoScenario(t *testing.T) {
	dir := t.TempDir()
	certPath, keyPath := generateSelfSignedCert(t, dir)

	serverCtx, err := NewContext(WithCertificate(certPath, keyPath))
	if err != nil {
		t.Fatalf("NewContext(server): %v", err)
	}
	clientCtx, err := NewContext(WithRootCAFile(certPath))
	if err != nil {
		t.Fatalf("NewContext(client): %v", err)
	}

	svc := reactor.New(reactor.Config{Threads: 2}, reactor.Hooks{})
	svc.Start(false)
	t.Cleanup(svc.Stop)

	var serverHandshaked sync.WaitGroup
	serverHandshaked.Add(1)

	srv := server.New(svc, server.Config{Address: "127.0.0.1:0"}, server.Hooks{
		OnHandshaked: func(*server.Session) { serverHandshaked.Done() },
		OnReceive: func(sess *server.Session, buf []byte) {
			_ = sess.SendAsync(append([]byte(nil), buf...))
		},
	})
	srv.SetNewSessionFunc(NewServerSessionFunc(srv, serverCtx))
	if err := srv.Start(); err != nil {
		t.Fatalf("Start: %v", err)
	}
	t.Cleanup(srv.Stop)

	received := make(chan []byte, 1)
	var clientHandshaked sync.WaitGroup
	clientHandshaked.Add(1)

	cl := netclient.New(svc, netclient.Config{Address: srv.ListenerAddr()}, netclient.Hooks{
		OnHandshaked: func(*netclient.Client) { clientHandshaked.Done() },
		OnReceive: func(_ *netclient.Client, buf []byte) {
			received <- append([]byte(nil), buf...)
		},
	})
	cl.SetDialFunc(NewClientDialFunc(clientCtx, "127.0.0.1"))
	ApplyClientHooks(cl)

	if err := cl.Connect(); err != nil {
		t.Fatalf("Connect: %v", err)
	}

	waitWithTimeout(t, &clientHandshaked, "client handshake")
	waitWithTimeout(t, &serverHandshaked, "server handshake")

	if !cl.Ready() {
		t.Fatal("expected client to be ready after handshake")
	}

	if err := cl.SendAsync([]byte("secret")); err != nil {
		t.Fatalf("SendAsync: %v", err)
	}

	select {
	case buf := <-received:
		if string(buf) != "secret" {
			t.Fatalf("got %q, want %q", buf, "secret")
		}
	case <-time.After(3 * time.Second):
		t.Fatal("timed out waiting for TLS echo")
	}
}

func waitWithTimeout(t *testing.T, wg *sync.WaitGroup, what string) {
	t.Helper()
	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(3 * time.Second):
		t.Fatalf("timed out waiting for %s", what)
	}
}

func TestIsBenignDisconnectMatchesTLSReasons(t *testing.T) {
	cases := []string{
		"remote error: tls: bad record mac",
		"tls: protocol is shutdown",
		"wrong version number",
		"local error: tls: stream truncated",
	}
	for _, msg := range cases {
		if !IsBenignDisconnect(&namedError{msg}) {
			t.Fatalf("expected %q to be classified benign", msg)
		}
	}
	if IsBenignDisconnect(&namedError{"certificate signed by unknown authority"}) {
		t.Fatal("expected a genuine verification failure to not be classified benign")
	}
}

type namedError struct{ msg string }

func (e *namedError) Error() string { return e.msg }
