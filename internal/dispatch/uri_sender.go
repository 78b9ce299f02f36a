package dispatch

import (
	"context"
	"strings"
	"sync"

	"github.com/fixrouter/gateway/pkg/endpoint"
)

// URISender multiplexes Send calls across endpoint dialers keyed by base
// destination URI, reusing one long-lived Dialer per base URI across
// envelopes; the disconnect/reuseChannel parameters buildTargetURI appends
// are not consulted. Every scheme, kafka:<topic> re-routing included, is
// resolved by the dial function URISender was built with.
type URISender struct {
	mu      sync.Mutex
	dialers map[string]endpoint.Dialer
	dial    func(uri string) (endpoint.Dialer, error)
}

func NewURISender(dial func(uri string) (endpoint.Dialer, error)) *URISender {
	return &URISender{dialers: make(map[string]endpoint.Dialer), dial: dial}
}

func (s *URISender) Send(ctx context.Context, destinationURI string, payload []byte) error {
	dialer, err := s.dialerFor(destinationURI)
	if err != nil {
		return err
	}
	return dialer.Send(ctx, payload)
}

func (s *URISender) dialerFor(uri string) (endpoint.Dialer, error) {
	base := baseURI(uri)
	s.mu.Lock()
	defer s.mu.Unlock()
	if d, ok := s.dialers[base]; ok {
		return d, nil
	}
	d, err := s.dial(uri)
	if err != nil {
		return nil, err
	}
	s.dialers[base] = d
	return d, nil
}

// baseURI strips the endpoint-parameter query string appended in
// buildTargetURI so repeated sends to the same destination reuse one dialer.
func baseURI(uri string) string {
	if i := strings.IndexByte(uri, '?'); i >= 0 {
		return uri[:i]
	}
	return uri
}

func (s *URISender) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	var firstErr error
	for _, d := range s.dialers {
		if err := d.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}
