package relay

import (
	"log/slog"
	"net"

	uuid "github.com/satori/go.uuid"
)

// Transport is the uniform carrier for a connection after the optional TLS
// handshake. Go's crypto/tls.Conn already implements net.Conn, so a
// Plain/Tls sum type collapses to a plain net.Conn here: downstream code
// (the HTTP service, the upgrade negotiator) is genuinely ignorant of
// encryption without needing an explicit wrapper enum.
type Transport = net.Conn

// connLogger returns a logger tagged with a fresh per-connection
// correlation ID and remote address, so every log line for one connection's
// lifetime can be grepped together. Grounded on conn.ClientConn.ID in the
// teacher, simplified from a stateful struct field to a derived logger.
func connLogger(component string, t Transport) *slog.Logger {
	id := uuid.NewV4()
	addr := "unknown"
	if t != nil && t.RemoteAddr() != nil {
		addr = t.RemoteAddr().String()
	}
	return slog.Default().With(
		"in", component,
		"conn_id", id.String(),
		"remote_addr", addr,
	)
}
