package relay

import (
	"net/http"
	"testing"

	qt "github.com/frankban/quicktest"
)

func TestHeaderSetApplyToPreservesOrderAndDuplicates(t *testing.T) {
	c := qt.New(t)

	hs := NewHeaderSet(
		HeaderPair{Name: "X-Relay-Region", Value: "nyc"},
		HeaderPair{Name: "X-Relay-Feature", Value: "a"},
	)
	hs.Add("X-Relay-Feature", "b")

	h := make(http.Header)
	hs.ApplyTo(h)

	c.Assert(h.Values("X-Relay-Feature"), qt.DeepEquals, []string{"a", "b"})
	c.Assert(h.Get("X-Relay-Region"), qt.Equals, "nyc")
}

func TestHeaderSetMerge(t *testing.T) {
	c := qt.New(t)

	base := NewHeaderSet(HeaderPair{Name: "Server", Value: "relayd"})
	extra := NewHeaderSet(HeaderPair{Name: "Sec-WebSocket-Version", Value: "13"})
	base.Merge(extra)

	c.Assert(base.Snapshot(), qt.DeepEquals, []HeaderPair{
		{Name: "Server", Value: "relayd"},
		{Name: "Sec-WebSocket-Version", Value: "13"},
	})
}

func TestHeaderSetNilIsHarmless(t *testing.T) {
	c := qt.New(t)

	var hs *HeaderSet
	h := make(http.Header)
	hs.ApplyTo(h)
	c.Assert(len(h), qt.Equals, 0)
	c.Assert(hs.Snapshot(), qt.IsNil)
}
