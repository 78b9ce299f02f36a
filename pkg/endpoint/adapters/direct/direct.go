// Package direct implements pkg/endpoint for direct:<name> URIs: in-process
// wiring between a route's dispatcher and another route's listener (or a
// test harness), with no network hop.
package direct

import (
	"context"
	"sync"

	"github.com/fixrouter/gateway/pkg/endpoint"
)

// Registry is a process-wide set of named in-process channels, analogous to
// broker/adapters/memory.Registry. One Registry must be shared between every
// direct Dialer and Listener that should see each other's payloads.
type Registry struct {
	mu    sync.Mutex
	names map[string]chan []byte
}

func NewRegistry() *Registry {
	return &Registry{names: make(map[string]chan []byte)}
}

func (r *Registry) channel(name string) chan []byte {
	r.mu.Lock()
	defer r.mu.Unlock()
	ch, ok := r.names[name]
	if !ok {
		ch = make(chan []byte, 256)
		r.names[name] = ch
	}
	return ch
}

type Dialer struct {
	ch chan []byte
}

func NewDialer(registry *Registry, name string) *Dialer {
	return &Dialer{ch: registry.channel(name)}
}

func (d *Dialer) Send(ctx context.Context, payload []byte) error {
	framed := make([]byte, len(payload))
	copy(framed, payload)
	select {
	case d.ch <- framed:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (d *Dialer) Close() error { return nil }

type Listener struct {
	ch     chan []byte
	mu     sync.Mutex
	closed bool
}

func NewListener(registry *Registry, name string) *Listener {
	return &Listener{ch: registry.channel(name)}
}

func (l *Listener) Accept(ctx context.Context) ([]byte, error) {
	select {
	case payload, ok := <-l.ch:
		if !ok {
			return nil, endpoint.ErrClosed(nil)
		}
		return payload, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (l *Listener) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.closed = true
	return nil
}

var (
	_ endpoint.Dialer   = (*Dialer)(nil)
	_ endpoint.Listener = (*Listener)(nil)
)
