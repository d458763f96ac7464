package relay

import (
	"context"
	"fmt"
	"net"
)

// Backend is the downstream relay session handler. Its contents — the
// byte exchange that follows the upgrade — are out of scope for this
// core; this interface is the entire surface the core consumes.
type Backend interface {
	// Accept takes ownership of a post-upgrade byte stream and completes
	// when the relay session ends. The core never reads or writes
	// transport again after calling Accept.
	Accept(ctx context.Context, protocol Protocol, transport net.Conn) error

	// Close signals the backend to stop accepting new sessions and drain
	// whatever sessions are already in flight. It must not return until
	// draining is complete, or until ctx is done.
	Close(ctx context.Context) error

	// DefaultHeaders returns headers the backend wants merged into every
	// response the core originates, e.g. to stamp a server identity
	// header. May return nil.
	DefaultHeaders() []HeaderPair
}

// Binding is a sum type: exactly one of a live Backend (Connected) or an
// override Responder is configured.
// Binding itself is immutable after NewBinding/NewOverrideBinding.
type Binding struct {
	backend  Backend
	override Responder
}

// NewBinding configures the relay path to hand upgraded transports to backend.
func NewBinding(backend Backend) (Binding, error) {
	if backend == nil {
		return Binding{}, fmt.Errorf("relay: NewBinding requires a non-nil Backend")
	}
	return Binding{backend: backend}, nil
}

// NewOverrideBinding configures the relay path to be served by a normal
// HTTP responder instead of a relay backend — used to keep the server
// running with relaying disabled.
func NewOverrideBinding(override Responder) (Binding, error) {
	if override == nil {
		return Binding{}, fmt.Errorf("relay: NewOverrideBinding requires a non-nil Responder")
	}
	return Binding{override: override}, nil
}

// IsConnected reports whether this binding has a live relay backend.
func (b Binding) IsConnected() bool {
	return b.backend != nil
}

// empty reports whether neither variant was configured: a construction error.
func (b Binding) empty() bool {
	return b.backend == nil && b.override == nil
}
