package relay

import (
	"context"
	"errors"
	"log/slog"
	"net"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/atomic"
)

// Config configures a Server.
type Config struct {
	// Addr is the listen address for ListenAndServe, e.g. ":443". Ignored
	// by Serve, which takes an already-bound net.Listener.
	Addr string

	// Binding selects whether the relay path hands transports to a
	// Backend or is served by an override Responder.
	Binding Binding

	// Router dispatches every non-relay-path request.
	Router *Router

	// Acceptor performs the optional TLS handshake. Nil means plaintext.
	Acceptor Acceptor

	// Metrics receives connection/upgrade/response counters. A private
	// registry is created if nil.
	Metrics *Metrics

	// ReadHeaderTimeout bounds how long the server waits for a client to
	// finish sending its request line and headers. Zero disables the bound.
	ReadHeaderTimeout time.Duration

	// ShutdownTimeout bounds Backend.Close when Serve's context is
	// already done by the time shutdown starts. Defaults to 30s.
	ShutdownTimeout time.Duration
}

// Stats is a point-in-time snapshot of a Server's connection counters.
type Stats struct {
	Active int64
	Total  int64
}

// Server is the top-level listener, accept loop, and per-connection task
// supervisor: stop accepting, drain, then report done.
type Server struct {
	cfg     Config
	service *service

	mu       sync.Mutex
	listener net.Listener
	closed   bool

	wg sync.WaitGroup

	activeConns atomic.Int64
	totalConns  atomic.Int64
}

// NewServer validates cfg and builds a Server. It does not bind a socket;
// call ListenAndServe or Serve to start accepting.
func NewServer(cfg Config) (*Server, error) {
	if cfg.Binding.empty() {
		return nil, errors.New("relay: Config.Binding must configure a Backend or an override Responder")
	}
	if cfg.Router == nil {
		return nil, errors.New("relay: Config.Router is required")
	}
	if cfg.Metrics == nil {
		cfg.Metrics = NewMetrics(prometheus.NewRegistry())
	}
	svc := newService(cfg.Router, cfg.Binding, cfg.Metrics, cfg.ReadHeaderTimeout)
	return &Server{cfg: cfg, service: svc}, nil
}

// ListenAndServe binds cfg.Addr and serves until ctx is done or Shutdown
// is called. A failure to bind is returned as an ErrBind error; accept
// errors after that are logged and the accept loop keeps running.
func (s *Server) ListenAndServe(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.cfg.Addr)
	if err != nil {
		return wrapErr(ErrBind, err)
	}
	return s.Serve(ctx, ln)
}

// Serve runs the accept loop over an already-bound listener. It returns
// once shutdown (via ctx cancellation or Shutdown) has fully drained.
//
// The accept loop stops first, then the relay Backend is asked to close
// and drain its own sessions, then we wait for every per-connection
// goroutine this Server spawned to actually return, and only then is
// completion logged. Backend.Close must
// run before the wg.Wait: an in-flight relay session's goroutine is
// blocked inside Backend.Accept, and it's Backend.Close's job to unblock it.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	s.mu.Lock()
	s.listener = ln
	alreadyClosed := s.closed
	s.mu.Unlock()
	if alreadyClosed {
		// Shutdown ran before Serve stored the listener.
		_ = ln.Close()
	}

	logger := slog.Default().With("in", "relay.Server.Serve", "addr", ln.Addr().String())
	logger.Info("accepting connections")

	// net.Listener.Accept has no context-aware variant; closing the
	// listener on cancellation is the idiomatic Go stand-in for Tokio's
	// `select! { biased; _ = cancelled => ..., conn = accept() => ... }`.
	stopWatcher := make(chan struct{})
	go func() {
		select {
		case <-ctx.Done():
			s.closeListener()
		case <-stopWatcher:
		}
	}()

	for {
		raw, err := ln.Accept()
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, net.ErrClosed) {
				break
			}
			logConnErr(logger, "accept failed", wrapErr(ErrBind, err))
			continue
		}
		s.cfg.Metrics.connectionsAccepted.Inc()
		s.totalConns.Inc()
		s.wg.Add(1)
		go s.handleRaw(ctx, raw)
	}
	close(stopWatcher)

	logger.Debug("accept loop stopped")

	if s.cfg.Binding.backend != nil {
		closeCtx := ctx
		if closeCtx.Err() != nil {
			timeout := s.cfg.ShutdownTimeout
			if timeout <= 0 {
				timeout = 30 * time.Second
			}
			var cancel context.CancelFunc
			closeCtx, cancel = context.WithTimeout(context.Background(), timeout)
			defer cancel()
		}
		if err := s.cfg.Binding.backend.Close(closeCtx); err != nil {
			logger.Error("relay backend close failed", "error", err)
		}
	}

	s.wg.Wait()
	logger.Info("shutdown complete", "total_connections", s.totalConns.Load())
	return nil
}

// Shutdown requests that the accept loop stop. Idempotent and safe to call
// concurrently with Serve or with a context cancellation — whichever
// happens first wins, both converge on the same closeListener call.
func (s *Server) Shutdown() {
	s.closeListener()
}

func (s *Server) closeListener() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	s.closed = true
	if s.listener != nil {
		_ = s.listener.Close()
	}
}

// handleRaw performs the optional TLS handshake and, unless that consumed
// an ACME validation probe or failed outright, runs the HTTP service for
// one connection's lifetime.
func (s *Server) handleRaw(ctx context.Context, raw net.Conn) {
	defer s.wg.Done()
	s.activeConns.Inc()
	defer s.activeConns.Dec()
	s.cfg.Metrics.connectionsActive.Inc()
	defer s.cfg.Metrics.connectionsActive.Dec()

	transport, logger := s.acceptTransport(ctx, raw)
	if transport == nil {
		return
	}
	_ = logger
	s.service.serveConn(ctx, transport)
}

func (s *Server) acceptTransport(ctx context.Context, raw net.Conn) (Transport, *slog.Logger) {
	logger := connLogger("relay.Server.accept", raw)
	if s.cfg.Acceptor == nil {
		return raw, logger
	}
	outcome, transport, err := s.cfg.Acceptor.Accept(ctx, raw)
	if err != nil {
		s.cfg.Metrics.tlsHandshakeFailures.Inc()
		logConnErr(logger, "tls handshake failed", err)
		_ = raw.Close()
		return nil, logger
	}
	if outcome == AcceptOutcomeValidationConsumed {
		logger.Debug("tls handshake consumed an ACME TLS-ALPN-01 validation probe")
		_ = transport.Close()
		return nil, logger
	}
	return transport, logger
}

// Stats returns a snapshot of this Server's connection counters.
func (s *Server) Stats() Stats {
	return Stats{Active: s.activeConns.Load(), Total: s.totalConns.Load()}
}
