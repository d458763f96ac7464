package relay

import (
	"fmt"
	"net/http"
	"sort"

	"github.com/samber/lo"
)

// Well-known paths reserved by the core.
const (
	RelayPath         = "/relay"
	LegacyRelayPath   = "/derp" // backward-compatible alias
	CaptivePortalPath = "/generate_204"
)

// RouteKey is the (method, path) pair a Responder is registered under.
type RouteKey struct {
	Method string
	Path   string
}

// Responder produces a response for a request, given a builder already
// populated with the server's default headers. It is side-effect-free from
// the Router's perspective.
type Responder func(req *http.Request, rb *ResponseBuilder) (*Response, error)

// Router is a read-only, build-once dispatch table from (method, path) to
// Responder. The two relay paths are matched before the user map and
// always win for GET; the soft built-ins (CaptivePortalPath
// and "/") are matched only if the user hasn't registered their own
// handler for them, so a user registration silently overrides them — a
// deliberate asymmetry, not an inconsistency.
type Router struct {
	routes    map[RouteKey]Responder
	notFound  Responder
	defaults  *HeaderSet
	softPaths map[string]Responder
}

// RouterBuilder accumulates routes before Build freezes them.
type RouterBuilder struct {
	routes   map[RouteKey]Responder
	notFound Responder
	defaults *HeaderSet
}

// NewRouterBuilder starts a RouterBuilder; defaults are the headers applied
// to every response the core originates.
func NewRouterBuilder(defaults *HeaderSet) *RouterBuilder {
	return &RouterBuilder{
		routes:   make(map[RouteKey]Responder),
		defaults: defaults,
	}
}

// Handle registers a responder for (method, path). It is an error to
// register GET on RelayPath or LegacyRelayPath: the core always wins there.
func (b *RouterBuilder) Handle(method, path string, responder Responder) error {
	if method == http.MethodGet && (path == RelayPath || path == LegacyRelayPath) {
		return fmt.Errorf("relay: route %s %s is reserved by the core", method, path)
	}
	key := RouteKey{Method: method, Path: path}
	if _, exists := b.routes[key]; exists {
		return fmt.Errorf("relay: duplicate route %s %s", method, path)
	}
	b.routes[key] = responder
	return nil
}

// NotFound overrides the default 404 responder.
func (b *RouterBuilder) NotFound(responder Responder) {
	b.notFound = responder
}

// Build freezes the route table.
func (b *RouterBuilder) Build() *Router {
	soft := make(map[string]Responder)
	if r, ok := b.routes[RouteKey{Method: http.MethodGet, Path: CaptivePortalPath}]; ok {
		soft[CaptivePortalPath] = r
	}
	if r, ok := b.routes[RouteKey{Method: http.MethodGet, Path: "/"}]; ok {
		soft["/"] = r
	}
	return &Router{
		routes:    b.routes,
		notFound:  b.notFound,
		defaults:  b.defaults,
		softPaths: soft,
	}
}

// Dispatch performs an O(1) lookup. It never matches the two relay
// paths: those are handled by the caller (entry.go) before Dispatch is
// ever consulted, since they always win regardless of user registration.
func (rt *Router) Dispatch(method, path string) Responder {
	if method == http.MethodGet {
		switch path {
		case CaptivePortalPath:
			if r, ok := rt.softPaths[CaptivePortalPath]; ok {
				return r
			}
			return captivePortalResponder
		case "/":
			if r, ok := rt.softPaths["/"]; ok {
				return r
			}
			return rootResponder
		}
	}
	if r, ok := rt.routes[RouteKey{Method: method, Path: path}]; ok {
		return r
	}
	if rt.notFound != nil {
		return rt.notFound
	}
	return defaultNotFoundResponder
}

// DefaultResponseBuilder returns a builder with the configured default
// headers already applied.
func (rt *Router) DefaultResponseBuilder() *ResponseBuilder {
	return newResponseBuilder(rt.defaults)
}

// RegisteredPaths returns a sorted list of every user-registered route, for
// diagnostics (e.g. an admin status page); it never includes the relay
// paths or the soft built-ins.
func (rt *Router) RegisteredPaths() []string {
	keys := lo.Keys(rt.routes)
	paths := lo.Map(keys, func(k RouteKey, _ int) string { return k.Method + " " + k.Path })
	sort.Strings(paths)
	return paths
}

func defaultNotFoundResponder(_ *http.Request, rb *ResponseBuilder) (*Response, error) {
	rb.Status(http.StatusNotFound).Bytes([]byte("Not Found"))
	return rb.Build(), nil
}

// captivePortalResponder answers the captive-portal probe some clients send.
func captivePortalResponder(_ *http.Request, rb *ResponseBuilder) (*Response, error) {
	rb.Status(http.StatusNoContent)
	return rb.Build(), nil
}

// rootResponder is the default "/" banner.
func rootResponder(_ *http.Request, rb *ResponseBuilder) (*Response, error) {
	rb.Status(http.StatusOK).Bytes([]byte("iroh relay http"))
	rb.Header().Set("Content-Type", "text/plain; charset=utf-8")
	return rb.Build(), nil
}
