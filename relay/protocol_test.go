package relay

import (
	"testing"

	qt "github.com/frankban/quicktest"
)

func TestParseUpgradeHeader(t *testing.T) {
	c := qt.New(t)

	p, ok := ParseUpgradeHeader(RelayUpgradeToken)
	c.Assert(ok, qt.IsTrue)
	c.Assert(p, qt.Equals, ProtocolRelay)

	p, ok = ParseUpgradeHeader(WebSocketUpgradeToken)
	c.Assert(ok, qt.IsTrue)
	c.Assert(p, qt.Equals, ProtocolWebSocket)

	_, ok = ParseUpgradeHeader("spdy/3.1")
	c.Assert(ok, qt.IsFalse)
}

func TestProtocolRoundTrip(t *testing.T) {
	c := qt.New(t)

	for _, p := range []Protocol{ProtocolRelay, ProtocolWebSocket} {
		token := p.UpgradeHeader()
		got, ok := ParseUpgradeHeader(token)
		c.Assert(ok, qt.IsTrue)
		c.Assert(got, qt.Equals, p)
	}
}

func TestProtocolStringUnknown(t *testing.T) {
	c := qt.New(t)
	c.Assert(Protocol(99).String(), qt.Equals, "unknown")
	c.Assert(Protocol(99).UpgradeHeader(), qt.Equals, "")
}
