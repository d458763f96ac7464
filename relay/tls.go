package relay

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"os"
	"sync"

	"github.com/caddyserver/certmagic"
	"github.com/golang/groupcache/lru"
	"github.com/golang/groupcache/singleflight"
	"github.com/tidwall/match"
)

// acmeALPNProto is the ALPN protocol id RFC 8737 reserves for the
// TLS-ALPN-01 challenge. A handshake that negotiates it is the challenge
// itself, not a client connection, and must never reach the HTTP service.
const acmeALPNProto = "acme-tls/1"

// AcceptOutcome reports what a TLS Acceptor's handshake produced.
type AcceptOutcome int

const (
	// AcceptOutcomeEstablished is an ordinary client connection ready for
	// the HTTP service.
	AcceptOutcomeEstablished AcceptOutcome = iota
	// AcceptOutcomeValidationConsumed means the handshake was an inbound
	// ACME TLS-ALPN-01 probe; the connection is already fully handled and
	// must be closed without any HTTP processing.
	AcceptOutcomeValidationConsumed
)

func (o AcceptOutcome) String() string {
	if o == AcceptOutcomeValidationConsumed {
		return "validation_consumed"
	}
	return "established"
}

// Acceptor turns a freshly-accepted raw connection into a Transport,
// performing whatever TLS handshake the variant requires. There is no
// "none" variant here: plaintext deployments simply don't configure an
// Acceptor, and the Supervisor uses the raw net.Conn directly (see
// supervisor.go).
type Acceptor interface {
	Accept(ctx context.Context, raw net.Conn) (AcceptOutcome, Transport, error)
}

// sslKeyLogWriter returns the process-wide TLS key log writer configured by
// SSLKEYLOGFILE, letting an operator decrypt a capture with Wireshark.
// Resolved once per process since the env var can't change at runtime.
var (
	sslKeyLogWriterOnce sync.Once
	sslKeyLogWriterVal  io.Writer
)

func sslKeyLogWriter() io.Writer {
	sslKeyLogWriterOnce.Do(func() {
		path := os.Getenv("SSLKEYLOGFILE")
		if path == "" {
			return
		}
		f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_APPEND, 0o600)
		if err != nil {
			slog.Warn("SSLKEYLOGFILE open failed, continuing without key logging", "error", err)
			return
		}
		sslKeyLogWriterVal = f
	})
	return sslKeyLogWriterVal
}

// StaticAcceptor serves a fixed, pre-provisioned certificate: no ACME
// traffic, no SNI routing, just a tls.Config the caller already built
// (e.g. from tls.LoadX509KeyPair).
type StaticAcceptor struct {
	config *tls.Config
}

// NewStaticAcceptor wraps cfg; a clone is taken so later mutation by the
// caller can't race the handshakes this Acceptor performs concurrently.
func NewStaticAcceptor(cfg *tls.Config) *StaticAcceptor {
	c := cfg.Clone()
	if c.KeyLogWriter == nil {
		c.KeyLogWriter = sslKeyLogWriter()
	}
	if c.MinVersion == 0 {
		c.MinVersion = tls.VersionTLS12
	}
	return &StaticAcceptor{config: c}
}

func (a *StaticAcceptor) Accept(ctx context.Context, raw net.Conn) (AcceptOutcome, Transport, error) {
	tlsConn := tls.Server(raw, a.config)
	if err := tlsConn.HandshakeContext(ctx); err != nil {
		return 0, nil, wrapErr(ErrTLSHandshake, err)
	}
	return AcceptOutcomeEstablished, tlsConn, nil
}

// ACMEOptions configures NewManagedConfig's certmagic issuer.
type ACMEOptions struct {
	Email   string
	CA      string // ACME directory URL; empty selects Let's Encrypt production (or staging if Staging is set)
	Agreed  bool
	Staging bool
}

// NewManagedConfig builds a certmagic.Config that issues and renews
// certificates on demand via ACME, TLS-ALPN-01 included, the way
// caddyserver/caddy's autohttps.go configures its ACMEIssuer.
func NewManagedConfig(opts ACMEOptions) *certmagic.Config {
	ca := opts.CA
	if ca == "" {
		if opts.Staging {
			ca = certmagic.LetsEncryptStagingCA
		} else {
			ca = certmagic.LetsEncryptProductionCA
		}
	}
	magic := certmagic.NewDefault()
	issuer := certmagic.NewACMEIssuer(magic, certmagic.ACMEIssuer{
		CA:     ca,
		Email:  opts.Email,
		Agreed: opts.Agreed,
	})
	magic.Issuers = []certmagic.Issuer{issuer}
	return magic
}

// ManagedAcceptor is the ACME-backed TLS variant: certificates are fetched
// from magic on first use per SNI name, gated by an optional allowlist,
// and cached with golang/groupcache's lru.Cache plus a singleflight.Group
// so concurrent handshakes for the same new name collapse into one
// certmagic lookup.
type ManagedAcceptor struct {
	magic      *certmagic.Config
	allowedSNI []string

	cacheMu sync.Mutex
	cache   *lru.Cache
	group   *singleflight.Group
}

// NewManagedAcceptor wraps magic. allowedSNI holds tidwall/match glob
// patterns (e.g. "*.relay.example.com"); a nil or empty slice allows any SNI.
func NewManagedAcceptor(magic *certmagic.Config, allowedSNI []string) *ManagedAcceptor {
	return &ManagedAcceptor{
		magic:      magic,
		allowedSNI: allowedSNI,
		cache:      lru.New(512),
		group:      new(singleflight.Group),
	}
}

func (a *ManagedAcceptor) snIAllowed(name string) bool {
	if len(a.allowedSNI) == 0 {
		return true
	}
	for _, pattern := range a.allowedSNI {
		if match.Match(name, pattern) {
			return true
		}
	}
	return false
}

// supportsACMEALPN reports whether the ClientHello advertised the
// TLS-ALPN-01 challenge protocol; certmagic's own issuer recognizes this on
// its side too, but we check it here as well so the ephemeral challenge
// certificate it returns is never written into our SNI cache.
func supportsACMEALPN(hello *tls.ClientHelloInfo) bool {
	for _, proto := range hello.SupportedProtos {
		if proto == acmeALPNProto {
			return true
		}
	}
	return false
}

func (a *ManagedAcceptor) getCertificate(hello *tls.ClientHelloInfo) (*tls.Certificate, error) {
	if supportsACMEALPN(hello) {
		return a.magic.GetCertificate(hello)
	}

	name := hello.ServerName
	if name == "" {
		return nil, errors.New("relay: TLS handshake missing SNI")
	}
	if !a.snIAllowed(name) {
		return nil, fmt.Errorf("relay: SNI %q not in allowlist", name)
	}

	a.cacheMu.Lock()
	if val, ok := a.cache.Get(name); ok {
		a.cacheMu.Unlock()
		cert, _ := val.(*tls.Certificate)
		return cert, nil
	}
	a.cacheMu.Unlock()

	val, err := a.group.Do(name, func() (any, error) {
		cert, err := a.magic.GetCertificate(hello)
		if err != nil {
			return nil, err
		}
		a.cacheMu.Lock()
		a.cache.Add(name, cert)
		a.cacheMu.Unlock()
		return cert, nil
	})
	if err != nil {
		return nil, err
	}
	cert, _ := val.(*tls.Certificate)
	return cert, nil
}

func (a *ManagedAcceptor) tlsConfig() *tls.Config {
	return &tls.Config{
		GetCertificate: a.getCertificate,
		NextProtos:     []string{"h2", "http/1.1", acmeALPNProto},
		KeyLogWriter:   sslKeyLogWriter(),
		MinVersion:     tls.VersionTLS12,
	}
}

func (a *ManagedAcceptor) Accept(ctx context.Context, raw net.Conn) (AcceptOutcome, Transport, error) {
	tlsConn := tls.Server(raw, a.tlsConfig())
	if err := tlsConn.HandshakeContext(ctx); err != nil {
		return 0, nil, wrapErr(ErrTLSHandshake, err)
	}
	if tlsConn.ConnectionState().NegotiatedProtocol == acmeALPNProto {
		return AcceptOutcomeValidationConsumed, tlsConn, nil
	}
	return AcceptOutcomeEstablished, tlsConn, nil
}
