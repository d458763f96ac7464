package relay

import (
	"bufio"
	"context"
	"log/slog"
	"net/http"
	"time"
)

// service is the per-connection HTTP engine. It never builds a
// net/http.Server at all: the TLS acceptor (relay/tls.go) needs to inspect
// a raw connection for the ACME TLS-ALPN-01 challenge before any HTTP
// framing begins, and the upgrade negotiator needs the exact bufio.Reader
// that read the headers so it can check for leftover buffered bytes.
// net/http.Server's Hijacker path hides both of those from the caller, so
// this core parses one request per connection directly with
// http.ReadRequest and never hands control to net/http's own serve loop.
type service struct {
	router            *Router
	negotiator        *negotiator
	binding           Binding
	metrics           *Metrics
	readHeaderTimeout time.Duration

	// defaults is router.defaults plus whatever the bound relay backend's
	// DefaultHeaders contributes, merged once so every response the core
	// originates carries it. The router itself is left untouched so it can
	// still be reused by anything that doesn't care about the backend's
	// headers.
	defaults *HeaderSet
}

func newService(router *Router, binding Binding, metrics *Metrics, readHeaderTimeout time.Duration) *service {
	defaults := router.defaults
	if binding.backend != nil {
		if extra := binding.backend.DefaultHeaders(); len(extra) > 0 {
			merged := NewHeaderSet(defaults.Snapshot()...)
			for _, p := range extra {
				merged.Add(p.Name, p.Value)
			}
			defaults = merged
		}
	}
	return &service{
		router:            router,
		negotiator:        &negotiator{binding: binding, defaults: defaults, metrics: metrics},
		binding:           binding,
		metrics:           metrics,
		readHeaderTimeout: readHeaderTimeout,
		defaults:          defaults,
	}
}

// serveConn owns transport for its entire lifetime: it always closes it on
// return, whether that's after one ordinary response or after a relay
// session (whose Backend.Accept has already returned by the time we get
// back here). Exactly one request is read per connection.
func (s *service) serveConn(ctx context.Context, transport Transport) {
	defer transport.Close()
	logger := connLogger("relay.entry", transport)

	if s.readHeaderTimeout > 0 {
		_ = transport.SetReadDeadline(time.Now().Add(s.readHeaderTimeout))
	}
	br := bufio.NewReader(transport)
	req, err := http.ReadRequest(br)
	if err != nil {
		logConnErr(logger, "parse request", wrapErr(ErrHTTPParse, err))
		return
	}
	if s.readHeaderTimeout > 0 {
		_ = transport.SetReadDeadline(time.Time{})
	}
	if transport.RemoteAddr() != nil {
		req.RemoteAddr = transport.RemoteAddr().String()
	}
	bw := bufio.NewWriter(transport)

	if req.Method == http.MethodGet && (req.URL.Path == RelayPath || req.URL.Path == LegacyRelayPath) {
		if s.binding.override != nil {
			s.respond(bw, logger, s.binding.override, req)
			return
		}
		s.negotiator.negotiate(ctx, req, transport, br, bw, logger)
		return
	}

	responder := s.router.Dispatch(req.Method, req.URL.Path)
	s.respond(bw, logger, responder, req)
}

// respond runs responder and writes its output, downgrading any responder
// error to a generic 500 so one misbehaving handler never crashes the
// connection loop.
func (s *service) respond(bw *bufio.Writer, logger *slog.Logger, responder Responder, req *http.Request) {
	rb := newResponseBuilder(s.defaults)
	resp, err := responder(req, rb)
	if err != nil {
		logger.Error("responder failed", "path", req.URL.Path, "error", wrapErr(ErrResponderFailure, err))
		resp = newResponseBuilder(s.defaults).
			Status(http.StatusInternalServerError).
			Bytes([]byte("Internal Server Error")).
			Build()
	}
	if s.metrics != nil {
		s.metrics.responses.WithLabelValues(responseClass(resp.StatusCode)).Inc()
	}
	if err := resp.writeTo(bw); err != nil {
		logConnErr(logger, "write response", err)
	}
}
