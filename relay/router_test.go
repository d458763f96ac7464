package relay

import (
	"net/http"
	"testing"

	qt "github.com/frankban/quicktest"
)

func TestRouterHandleRejectsReservedRelayRoutes(t *testing.T) {
	c := qt.New(t)

	b := NewRouterBuilder(nil)
	err := b.Handle(http.MethodGet, RelayPath, rootResponder)
	c.Assert(err, qt.ErrorMatches, ".*reserved by the core.*")

	err = b.Handle(http.MethodGet, LegacyRelayPath, rootResponder)
	c.Assert(err, qt.ErrorMatches, ".*reserved by the core.*")
}

func TestRouterHandleRejectsDuplicateRoutes(t *testing.T) {
	c := qt.New(t)

	b := NewRouterBuilder(nil)
	c.Assert(b.Handle(http.MethodGet, "/status", rootResponder), qt.IsNil)
	err := b.Handle(http.MethodGet, "/status", rootResponder)
	c.Assert(err, qt.ErrorMatches, ".*duplicate route.*")
}

func TestRouterDispatchFallsBackToDefaultNotFound(t *testing.T) {
	c := qt.New(t)

	rt := NewRouterBuilder(nil).Build()
	responder := rt.Dispatch(http.MethodGet, "/nope")

	resp, err := responder(nil, rt.DefaultResponseBuilder())
	c.Assert(err, qt.IsNil)
	c.Assert(resp.StatusCode, qt.Equals, http.StatusNotFound)
}

func TestRouterSoftPathsCanBeOverridden(t *testing.T) {
	c := qt.New(t)

	custom := func(_ *http.Request, rb *ResponseBuilder) (*Response, error) {
		rb.Status(http.StatusOK).Bytes([]byte("custom root"))
		return rb.Build(), nil
	}

	b := NewRouterBuilder(nil)
	c.Assert(b.Handle(http.MethodGet, "/", custom), qt.IsNil)
	rt := b.Build()

	responder := rt.Dispatch(http.MethodGet, "/")
	resp, err := responder(nil, rt.DefaultResponseBuilder())
	c.Assert(err, qt.IsNil)
	c.Assert(string(resp.Body), qt.Equals, "custom root")
}

func TestRouterSoftPathsDefaultToBuiltins(t *testing.T) {
	c := qt.New(t)

	rt := NewRouterBuilder(nil).Build()

	resp, err := rt.Dispatch(http.MethodGet, CaptivePortalPath)(nil, rt.DefaultResponseBuilder())
	c.Assert(err, qt.IsNil)
	c.Assert(resp.StatusCode, qt.Equals, http.StatusNoContent)

	resp, err = rt.Dispatch(http.MethodGet, "/")(nil, rt.DefaultResponseBuilder())
	c.Assert(err, qt.IsNil)
	c.Assert(string(resp.Body), qt.Equals, "iroh relay http")
}

func TestRouterRegisteredPathsSortedAndExcludesRelayPaths(t *testing.T) {
	c := qt.New(t)

	b := NewRouterBuilder(nil)
	c.Assert(b.Handle(http.MethodGet, "/zeta", rootResponder), qt.IsNil)
	c.Assert(b.Handle(http.MethodGet, "/alpha", rootResponder), qt.IsNil)
	rt := b.Build()

	c.Assert(rt.RegisteredPaths(), qt.DeepEquals, []string{"GET /alpha", "GET /zeta"})
}
