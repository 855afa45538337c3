// Package tlsnet supplies a TLS layer as a decorator over netcore.Conn
// rather than a parallel Session/Client class hierarchy: *tls.Conn already
// satisfies net.Conn, so server.Server and client.Client need no
// TLS-specific code of their own beyond the NewSessionFunc/PostConnectFunc
// extension points they already expose.
package tlsnet

import (
	"crypto/tls"
	"crypto/x509"
	"encoding/pem"
	"fmt"
	"os"
)

func errNoCertificatesParsed(path string) error {
	return fmt.Errorf("tlsnet: no certificates parsed from %s", path)
}

// PeerVerification selects how a Context verifies its peer's certificate.
type PeerVerification int

const (
	// VerifyPeer verifies the peer's certificate against the configured (or
	// system) root pool. This is the default for client contexts.
	VerifyPeer PeerVerification = iota
	// VerifyNone skips peer verification entirely. This is the default for
	// server contexts, which by default do not ask for a client certificate
	// at all.
	VerifyNone
	// RequireAndVerifyPeer requires the peer to present a certificate and
	// verifies it — mutual TLS. Used on the server side when client-cert
	// auth is configured.
	RequireAndVerifyPeer
)

// Context is an immutable, shareable TLS configuration: a Server and all
// its Sessions, or a Client, hold a reference to the same Context for as
// long as they need it. Go's garbage collector already keeps a *Context
// alive for as long as its longest-lived holder, so Context carries no
// manual reference count of its own — just the immutable *tls.Config each
// handshake clones from.
type Context struct {
	base *tls.Config
}

// Option configures a Context at construction time. Unlike the fire-and-
// forget functional options elsewhere in this module (server.Config,
// client.Config), these can fail — loading a certificate or CA file is a
// fallible filesystem operation — so NewContext collects the first error
// any Option returns instead of panicking.
type Option func(*tls.Config) error

// WithCertificate loads a PEM certificate/key pair and adds it to the
// Context's certificate list.
func WithCertificate(certFile, keyFile string) Option {
	return func(cfg *tls.Config) error {
		cert, err := tls.LoadX509KeyPair(certFile, keyFile)
		if err != nil {
			return err
		}
		cfg.Certificates = append(cfg.Certificates, cert)
		return nil
	}
}

// WithRootCAFile loads a PEM file of CA certificates used to verify a peer
// (the server's cert from the client side, or a client cert from the server
// side when RequireAndVerifyPeer is configured).
func WithRootCAFile(caFile string) Option {
	return func(cfg *tls.Config) error {
		pemBytes, err := os.ReadFile(caFile)
		if err != nil {
			return err
		}
		pool := x509.NewCertPool()
		if !pool.AppendCertsFromPEM(pemBytes) {
			return errNoCertificatesParsed(caFile)
		}
		cfg.RootCAs = pool
		cfg.ClientCAs = pool
		return nil
	}
}

// WithMinVersion overrides the minimum negotiated TLS version. NewContext
// already defaults to TLS 1.2, crypto/tls's own default floor, so this is
// only needed to raise it further.
func WithMinVersion(version uint16) Option {
	return func(cfg *tls.Config) error {
		cfg.MinVersion = version
		return nil
	}
}

// WithPeerVerification sets the Context's peer-verification mode.
func WithPeerVerification(mode PeerVerification) Option {
	return func(cfg *tls.Config) error {
		switch mode {
		case VerifyNone:
			cfg.InsecureSkipVerify = true
			cfg.ClientAuth = tls.NoClientCert
		case RequireAndVerifyPeer:
			cfg.InsecureSkipVerify = false
			cfg.ClientAuth = tls.RequireAndVerifyClientCert
		default:
			cfg.InsecureSkipVerify = false
			cfg.ClientAuth = tls.NoClientCert
		}
		return nil
	}
}

// PasswordCallback supplies the passphrase for an encrypted PEM private
// key, called once per WithEncryptedCertificate option at Context
// construction time.
type PasswordCallback func() ([]byte, error)

// WithEncryptedCertificate loads a PEM certificate and a passphrase-
// encrypted PEM private key, decrypting the key with the passphrase
// callback returns before adding the pair to the Context's certificate
// list. tls.LoadX509KeyPair (used by WithCertificate) cannot handle an
// encrypted key block directly; this option does the decryption step
// crypto/x509 still exposes for legacy PKCS#1-encrypted keys first.
func WithEncryptedCertificate(certFile, keyFile string, callback PasswordCallback) Option {
	return func(cfg *tls.Config) error {
		certPEM, err := os.ReadFile(certFile)
		if err != nil {
			return err
		}
		keyPEM, err := os.ReadFile(keyFile)
		if err != nil {
			return err
		}
		block, _ := pem.Decode(keyPEM)
		if block == nil {
			return fmt.Errorf("tlsnet: no PEM block found in %s", keyFile)
		}
		password, err := callback()
		if err != nil {
			return err
		}
		der, err := x509.DecryptPEMBlock(block, password) //nolint:staticcheck // only standard-library path for legacy PKCS#1 encrypted keys
		if err != nil {
			return err
		}
		cert, err := tls.X509KeyPair(certPEM, pem.EncodeToMemory(&pem.Block{Type: block.Type, Bytes: der}))
		if err != nil {
			return err
		}
		cfg.Certificates = append(cfg.Certificates, cert)
		return nil
	}
}

// WithCurvePreferences overrides the elliptic curves offered for ECDHE key
// exchange, in preference order. This is the modern equivalent of loading a
// static Diffie-Hellman parameter file: crypto/tls never implemented the
// classic DHE cipher suites (only ECDHE), so there is no *tls.Config field
// a loaded DH parameter file could configure — curve selection is the one
// knob the standard library exposes over the key-exchange group.
func WithCurvePreferences(curves ...tls.CurveID) Option {
	return func(cfg *tls.Config) error {
		cfg.CurvePreferences = curves
		return nil
	}
}

// WithDHParamsFile is a deliberate no-op, kept as an explicit extension
// point for callers porting a configuration that used to load a static
// Diffie-Hellman parameter file. crypto/tls has no equivalent of OpenSSL's
// SSL_CTX_set_tmp_dh: it does not support the DHE cipher suites at all, so
// there is nothing in *tls.Config for a DH parameter file to set. Use
// WithCurvePreferences to choose the ECDHE groups instead.
func WithDHParamsFile(path string) Option {
	return func(cfg *tls.Config) error {
		return nil
	}
}

// NewContext builds a Context from the given options, with MinVersion
// defaulting to TLS 1.2. It returns the first error any Option reports (a
// missing certificate file, an unparsable CA bundle).
func NewContext(opts ...Option) (*Context, error) {
	cfg := &tls.Config{MinVersion: tls.VersionTLS12}
	for _, opt := range opts {
		if err := opt(cfg); err != nil {
			return nil, err
		}
	}
	return &Context{base: cfg}, nil
}

// serverConfig clones the base config for one server-side handshake. Every
// handshake gets its own clone because tls.Config is shared-but-mutated
// internally by the TLS state machine (session ticket keys, etc.) and the
// standard library's own guidance is to Clone before handing a *tls.Config
// to a new connection.
func (c *Context) serverConfig() *tls.Config {
	return c.base.Clone()
}

// clientConfig clones the base config for one client-side handshake,
// optionally overriding ServerName for SNI / certificate-name verification
// when the dialed address isn't itself a usable name (e.g. it's an IP).
func (c *Context) clientConfig(serverName string) *tls.Config {
	cfg := c.base.Clone()
	if serverName != "" {
		cfg.ServerName = serverName
	}
	return cfg
}
