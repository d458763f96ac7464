package relay

import (
	"bufio"
	"context"
	"crypto/sha1" //nolint:gosec // required by RFC 6455, not used for anything security-sensitive
	"encoding/base64"
	"fmt"
	"io"
	"log/slog"
	"net/http"

	gorillaws "github.com/gorilla/websocket"
	"golang.org/x/net/http/httpguts"
)

// negotiator is the hardest subcomponent of this core: it inspects
// the Upgrade/Sec-WebSocket-* headers of a request already routed to the
// relay path, decides the protocol variant, computes Sec-WebSocket-Accept
// when needed, and hands the raw transport to the relay Backend once the
// 101 response has been written.
//
// State machine:
//
//	Received --headers ok--> Responding101 --written--> Handed-off --relay done--> Closed
//	    |                         |                           |
//	    | bad headers             | write/buffered-bytes error| relay error
//	    v                         v                           v
//	 Reject400                Logged+Closed               Logged+Closed
type negotiator struct {
	binding  Binding
	defaults *HeaderSet
	metrics  *Metrics
}

// matchProtocol maps the request's Upgrade header to a Protocol. Upgrade is
// nominally single-valued, but RFC 7230 allows a comma-separated token
// list, so token membership (not exact string equality) is what the wire
// actually guarantees; httpguts.HeaderValuesContainsToken is the same
// helper net/http itself uses to check "Connection: close" / "Connection:
// Upgrade" token membership.
func matchProtocol(h http.Header) (Protocol, bool) {
	values := h["Upgrade"]
	if len(values) == 0 {
		return 0, false
	}
	if httpguts.HeaderValuesContainsToken(values, RelayUpgradeToken) {
		return ProtocolRelay, true
	}
	if httpguts.HeaderValuesContainsToken(values, WebSocketUpgradeToken) {
		return ProtocolWebSocket, true
	}
	return 0, false
}

// computeWebSocketAccept derives Sec-WebSocket-Accept per RFC 6455 §1.3:
// base64(sha1(key || magic GUID)). gorilla/websocket keeps the equivalent
// helper unexported, and using its Upgrader would hand back a
// *websocket.Conn frame reader instead of the raw net.Conn that must be
// handed to the relay Backend, so this single computation is done
// directly against the standard library.
func computeWebSocketAccept(key string) string {
	h := sha1.New() //nolint:gosec
	io.WriteString(h, key)
	io.WriteString(h, wsMagicGUID)
	return base64.StdEncoding.EncodeToString(h.Sum(nil))
}

// negotiate runs the state machine above for one connection already routed
// to the relay path. br/bw wrap transport; the caller (entry.go) owns
// closing transport once negotiate returns.
func (n *negotiator) negotiate(ctx context.Context, req *http.Request, transport Transport, br *bufio.Reader, bw *bufio.Writer, logger *slog.Logger) {
	protocol, ok := matchProtocol(req.Header)
	if !ok {
		n.reject400(bw, nil, logger, "missing or unrecognized Upgrade header")
		return
	}

	var versionMismatch *HeaderSet
	if protocol == ProtocolWebSocket {
		if !gorillaws.IsWebSocketUpgrade(req) {
			logger.Debug("websocket upgrade request missing Connection: Upgrade token")
		}
		if req.Header.Get("Sec-WebSocket-Key") == "" {
			n.reject400(bw, nil, logger, "missing Sec-WebSocket-Key")
			return
		}
		version := req.Header.Get("Sec-WebSocket-Version")
		if version != SupportedWebSocketVersion {
			// RFC 6455 §4.4: advertise the supported version on rejection.
			versionMismatch = NewHeaderSet(HeaderPair{Name: "Sec-WebSocket-Version", Value: SupportedWebSocketVersion})
			n.reject400(bw, versionMismatch, logger, "unsupported Sec-WebSocket-Version")
			return
		}
	}

	// The buffered-bytes check happens before we commit to a 101 response:
	// if the client pipelined bytes behind the upgrade request, bufio will
	// have already pulled them into br's internal buffer during the header
	// read. Checking here (rather than after writing 101, as the hyper
	// engine this was ported from effectively does) means we never send a
	// misleading success response before aborting — a strictly safer
	// rendering of the same non-goal. Prepending those buffered bytes to
	// the handed-off transport is not supported; the connection is simply
	// dropped.
	if br.Buffered() > 0 {
		logger.Error("upgrade handoff has buffered bytes, aborting connection",
			"protocol", protocol.String(), "buffered", br.Buffered())
		n.metrics.upgradeLostBytes.Inc()
		return
	}

	rb := newResponseBuilder(n.defaults)
	rb.Status(http.StatusSwitchingProtocols)
	rb.Header().Set("Upgrade", protocol.UpgradeHeader())
	if protocol == ProtocolWebSocket {
		rb.Header().Set("Connection", "upgrade")
		rb.Header().Set("Sec-WebSocket-Accept", computeWebSocketAccept(req.Header.Get("Sec-WebSocket-Key")))
	}
	resp := rb.Build()
	if err := resp.writeTo101(bw); err != nil {
		logConnErr(logger, "writing 101 response failed", err)
		return
	}

	logger.Debug("upgraded", "protocol", protocol.String())
	n.metrics.upgrades.WithLabelValues(protocol.String()).Inc()

	if n.binding.backend == nil {
		logger.Error("negotiate called with no relay backend bound")
		return
	}
	if err := n.binding.backend.Accept(ctx, protocol, transport); err != nil {
		logConnErr(logger, "relay session ended with error", wrapErr(ErrRelaySession, err))
		return
	}
	logger.Debug("relay session completed")
}

// reject400 writes 400 Bad Request with the default headers and any extra
// diagnostic headers (e.g. Sec-WebSocket-Version on a version mismatch).
// The body is always empty.
func (n *negotiator) reject400(bw *bufio.Writer, extra *HeaderSet, logger *slog.Logger, reason string) {
	logger.Debug("rejecting upgrade", "reason", reason)
	resp := badRequestResponse(n.defaults, extra)
	if err := resp.writeTo101(bw); err != nil {
		logConnErr(logger, "writing 400 response failed", err)
	}
}

// writeTo101 is writeTo plus the special case that a 101 response carries
// no Content-Length (it isn't a normal entity response) and no
// Connection: close — the relay session takes over the connection next.
func (r *Response) writeTo101(bw *bufio.Writer) error {
	if r.StatusCode != http.StatusSwitchingProtocols {
		return r.writeTo(bw)
	}
	if _, err := bw.WriteString("HTTP/1.1 101 Switching Protocols\r\n"); err != nil {
		return err
	}
	if err := r.Header.Write(bw); err != nil {
		return err
	}
	if _, err := bw.WriteString("\r\n"); err != nil {
		return err
	}
	if len(r.Body) > 0 {
		if _, err := bw.Write(r.Body); err != nil {
			return err
		}
	}
	return bw.Flush()
}
