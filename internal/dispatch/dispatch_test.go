package dispatch

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fixrouter/gateway/internal/envelope"
	"github.com/fixrouter/gateway/internal/routing"
	"github.com/fixrouter/gateway/pkg/errors"
)

type fakeSender struct {
	mu    sync.Mutex
	calls []string
	fail  func(destinationURI string, attempt int) error
	tries map[string]int
}

func newFakeSender(fail func(string, int) error) *fakeSender {
	return &fakeSender{fail: fail, tries: make(map[string]int)}
}

func (f *fakeSender) Send(ctx context.Context, destinationURI string, payload []byte) error {
	f.mu.Lock()
	f.tries[destinationURI]++
	attempt := f.tries[destinationURI]
	f.calls = append(f.calls, destinationURI)
	f.mu.Unlock()
	if f.fail != nil {
		return f.fail(destinationURI, attempt)
	}
	return nil
}

type fakeDeadLetter struct {
	mu      sync.Mutex
	records []string
}

func (f *fakeDeadLetter) PublishDeadLetter(ctx context.Context, topic string, e *envelope.Envelope) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.records = append(f.records, topic)
	return nil
}

func alwaysRefused(uri string, attempt int) error {
	return errors.Unavailable("connection refused", nil)
}

func TestRetryThenDeadLetter(t *testing.T) {
	sender := newFakeSender(alwaysRefused)
	dl := &fakeDeadLetter{}
	d := NewDispatcher(sender, dl)

	route := &routing.Route{
		RouteID: "R1",
		DestinationConfigs: []routing.DestinationConfig{
			{URI: "netty:tcp://localhost:9999", MaxRetries: 2, RetryDelay: 10 * time.Millisecond, Timeout: time.Second, DeadLetterTopic: "dead-letter-R1"},
		},
	}
	e := &envelope.Envelope{MsgType: "D", RawMessage: []byte("8=FIX.4.4\x0135=D\x01")}

	start := time.Now()
	err := d.Dispatch(context.Background(), route, e)
	elapsed := time.Since(start)

	require.NoError(t, err)
	assert.Len(t, sender.calls, 3)
	assert.GreaterOrEqual(t, elapsed, 20*time.Millisecond)
	assert.Len(t, dl.records, 1)
	assert.Equal(t, "dead-letter-R1", dl.records[0])
}

func TestTypeFilterSkip(t *testing.T) {
	sender := newFakeSender(nil)
	dl := &fakeDeadLetter{}
	d := NewDispatcher(sender, dl)

	route := &routing.Route{
		RouteID: "R2",
		DestinationConfigs: []routing.DestinationConfig{
			{URI: "direct:d0", MsgTypes: []string{"8"}, Timeout: time.Second},
			{URI: "direct:d1", MsgTypes: []string{"*"}, Timeout: time.Second},
		},
	}
	e := &envelope.Envelope{MsgType: "D", RawMessage: []byte("8=FIX.4.4\x0135=D\x01")}

	err := d.Dispatch(context.Background(), route, e)
	require.NoError(t, err)

	assert.NotContains(t, sender.calls, "direct:d0")
	assert.Contains(t, sender.calls, "direct:d1")
	assert.Empty(t, dl.records)
}

func TestStopOnExceptionAbortsRemainingDestinations(t *testing.T) {
	sender := newFakeSender(func(uri string, attempt int) error {
		if uri == "direct:d0" {
			return errors.Internal("permanent failure", nil)
		}
		return nil
	})
	dl := &fakeDeadLetter{}
	d := NewDispatcher(sender, dl)

	route := &routing.Route{
		RouteID: "R3",
		DestinationConfigs: []routing.DestinationConfig{
			{URI: "direct:d0", StopOnException: true, Timeout: time.Second},
			{URI: "direct:d1", Timeout: time.Second},
		},
	}
	e := &envelope.Envelope{MsgType: "D", RawMessage: []byte("8=FIX.4.4\x0135=D\x01")}

	err := d.Dispatch(context.Background(), route, e)
	require.Error(t, err)
	assert.NotContains(t, sender.calls, "direct:d1")
	assert.Len(t, dl.records, 1)
}

func TestPermanentErrorSkipsRetry(t *testing.T) {
	sender := newFakeSender(func(uri string, attempt int) error {
		return errors.Internal("parse failure", nil)
	})
	dl := &fakeDeadLetter{}
	d := NewDispatcher(sender, dl)

	route := &routing.Route{
		RouteID: "R4",
		DestinationConfigs: []routing.DestinationConfig{
			{URI: "direct:d0", MaxRetries: 5, RetryDelay: time.Millisecond, Timeout: time.Second},
		},
	}
	e := &envelope.Envelope{MsgType: "D", RawMessage: []byte("8=FIX.4.4\x0135=D\x01")}

	err := d.Dispatch(context.Background(), route, e)
	require.NoError(t, err)
	assert.Len(t, sender.calls, 1)
	assert.Len(t, dl.records, 1)
}
