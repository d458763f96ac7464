package relay

import (
	"bufio"
	"context"
	"net"
	"net/http"
	"testing"
	"time"

	qt "github.com/frankban/quicktest"
	"github.com/prometheus/client_golang/prometheus"
)

func newTestService(t *testing.T, binding Binding) *service {
	t.Helper()
	defaults := NewHeaderSet(HeaderPair{Name: "Server", Value: "relayd/test"})
	router := NewRouterBuilder(defaults).Build()
	metrics := NewMetrics(prometheus.NewRegistry())
	return newService(router, binding, metrics, 2*time.Second)
}

func TestServiceServeConnRootBanner(t *testing.T) {
	c := qt.New(t)

	backend := &fakeBackend{}
	binding, err := NewBinding(backend)
	c.Assert(err, qt.IsNil)
	svc := newTestService(t, binding)

	server, client := net.Pipe()
	done := make(chan struct{})
	go func() {
		svc.serveConn(context.Background(), server)
		close(done)
	}()

	_, err = client.Write([]byte("GET / HTTP/1.1\r\nHost: relay.example.com\r\n\r\n"))
	c.Assert(err, qt.IsNil)

	resp, err := http.ReadResponse(bufio.NewReader(client), nil)
	c.Assert(err, qt.IsNil)
	c.Assert(resp.StatusCode, qt.Equals, http.StatusOK)
	c.Assert(resp.Header.Get("Server"), qt.Equals, "relayd/test")

	<-done
}

func TestServiceServeConnNotFound(t *testing.T) {
	c := qt.New(t)

	backend := &fakeBackend{}
	binding, err := NewBinding(backend)
	c.Assert(err, qt.IsNil)
	svc := newTestService(t, binding)

	server, client := net.Pipe()
	done := make(chan struct{})
	go func() {
		svc.serveConn(context.Background(), server)
		close(done)
	}()

	_, err = client.Write([]byte("GET /nope HTTP/1.1\r\nHost: relay.example.com\r\n\r\n"))
	c.Assert(err, qt.IsNil)

	resp, err := http.ReadResponse(bufio.NewReader(client), nil)
	c.Assert(err, qt.IsNil)
	c.Assert(resp.StatusCode, qt.Equals, http.StatusNotFound)

	<-done
}

func TestServiceServeConnRelayPathUpgrades(t *testing.T) {
	c := qt.New(t)

	backend := &fakeBackend{}
	binding, err := NewBinding(backend)
	c.Assert(err, qt.IsNil)
	svc := newTestService(t, binding)

	server, client := net.Pipe()
	done := make(chan struct{})
	go func() {
		svc.serveConn(context.Background(), server)
		close(done)
	}()

	req := "GET /relay HTTP/1.1\r\nHost: relay.example.com\r\nUpgrade: " + RelayUpgradeToken + "\r\nConnection: Upgrade\r\n\r\n"
	_, err = client.Write([]byte(req))
	c.Assert(err, qt.IsNil)

	br := bufio.NewReader(client)
	statusLine, err := br.ReadString('\n')
	c.Assert(err, qt.IsNil)
	c.Assert(statusLine, qt.Equals, "HTTP/1.1 101 Switching Protocols\r\n")

	<-done
	c.Assert(backend.calls, qt.Equals, 1)
	c.Assert(backend.acceptedProtocol, qt.Equals, ProtocolRelay)
}

func TestServiceServeConnRelayPathOverrideResponderBypassesBackend(t *testing.T) {
	c := qt.New(t)

	override := func(_ *http.Request, rb *ResponseBuilder) (*Response, error) {
		rb.Status(http.StatusServiceUnavailable).Bytes([]byte("relaying disabled"))
		return rb.Build(), nil
	}
	binding, err := NewOverrideBinding(override)
	c.Assert(err, qt.IsNil)
	svc := newTestService(t, binding)

	server, client := net.Pipe()
	done := make(chan struct{})
	go func() {
		svc.serveConn(context.Background(), server)
		close(done)
	}()

	_, err = client.Write([]byte("GET /relay HTTP/1.1\r\nHost: relay.example.com\r\nUpgrade: " + RelayUpgradeToken + "\r\n\r\n"))
	c.Assert(err, qt.IsNil)

	resp, err := http.ReadResponse(bufio.NewReader(client), nil)
	c.Assert(err, qt.IsNil)
	c.Assert(resp.StatusCode, qt.Equals, http.StatusServiceUnavailable)

	<-done
}
