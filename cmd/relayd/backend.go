package main

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net"
	"sync"

	"github.com/relaynet/relayhttp/relay"
)

// echoBackend is relayd's standalone-mode relay.Backend. The actual
// multi-peer packet relaying a production deployment would do lives in a
// separate system entirely; this backend exists only to exercise the
// handoff contract end to end, echoing every byte the client sends back to
// it once a session is accepted.
type echoBackend struct {
	mu     sync.Mutex
	wg     sync.WaitGroup
	closed bool
}

func newEchoBackend() *echoBackend {
	return &echoBackend{}
}

func (b *echoBackend) Accept(_ context.Context, protocol relay.Protocol, transport net.Conn) error {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return errors.New("relayd: backend is closed")
	}
	b.wg.Add(1)
	b.mu.Unlock()
	defer b.wg.Done()

	slog.Debug("echo backend session started", "protocol", protocol.String())
	_, err := io.Copy(transport, transport)
	if err != nil && !errors.Is(err, io.EOF) {
		return err
	}
	return nil
}

func (b *echoBackend) Close(ctx context.Context) error {
	b.mu.Lock()
	b.closed = true
	b.mu.Unlock()

	done := make(chan struct{})
	go func() {
		b.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (b *echoBackend) DefaultHeaders() []relay.HeaderPair {
	return []relay.HeaderPair{{Name: "Server", Value: "relayd"}}
}
