package relay

import (
	"errors"
	"testing"

	qt "github.com/frankban/quicktest"
)

func TestErrorKindStrings(t *testing.T) {
	c := qt.New(t)
	cases := map[ErrorKind]string{
		ErrBind:                    "bind",
		ErrTLSHandshake:            "tls_handshake",
		ErrHTTPParse:               "http_parse",
		ErrUpgradeHeaderInvalid:    "upgrade_header_invalid",
		ErrUpgradeHandoffLostBytes: "upgrade_handoff_lost_bytes",
		ErrRelaySession:            "relay_session",
		ErrPeerDisconnect:          "peer_disconnect",
		ErrResponderFailure:        "responder_failure",
	}
	for kind, want := range cases {
		c.Assert(kind.String(), qt.Equals, want)
	}
	c.Assert(ErrorKind(99).String(), qt.Equals, "unknown")
}

func TestWrapErrNilPassthrough(t *testing.T) {
	c := qt.New(t)
	c.Assert(wrapErr(ErrBind, nil), qt.IsNil)
}

func TestWrapErrUnwraps(t *testing.T) {
	c := qt.New(t)
	inner := errors.New("boom")
	wrapped := wrapErr(ErrRelaySession, inner)
	c.Assert(errors.Unwrap(wrapped), qt.Equals, inner)
	c.Assert(wrapped.Error(), qt.Equals, "relay_session: boom")
}
