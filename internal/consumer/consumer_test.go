package consumer

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fixrouter/gateway/internal/dispatch"
	"github.com/fixrouter/gateway/internal/envelope"
	"github.com/fixrouter/gateway/internal/routing"
	"github.com/fixrouter/gateway/pkg/broker"
	memorybroker "github.com/fixrouter/gateway/pkg/broker/adapters/memory"
)

type recordingSender struct {
	payloads [][]byte
}

func (s *recordingSender) Send(ctx context.Context, destinationURI string, payload []byte) error {
	s.payloads = append(s.payloads, payload)
	return nil
}

type recordingDeadLetter struct {
	topics []string
}

func (d *recordingDeadLetter) PublishDeadLetter(ctx context.Context, topic string, e *envelope.Envelope) error {
	d.topics = append(d.topics, topic)
	return nil
}

func TestWorkerDecodesDispatchesAndCommits(t *testing.T) {
	registry := memorybroker.NewRegistry()
	producer := memorybroker.NewProducer(registry)
	consumerImpl := memorybroker.NewConsumer(registry, "fix.GTWY.EXEC.input")

	e := envelope.New("FIX.4.4:GTWY->EXEC", "GTWY", "EXEC", []byte("8=FIX.4.4\x0135=D\x0155=AAPL\x01"))
	payload, err := envelope.EncodeJSON(e)
	require.NoError(t, err)

	require.NoError(t, producer.Publish(context.Background(), &broker.Record{Topic: "fix.GTWY.EXEC.input", Value: payload}))

	sender := &recordingSender{}
	dl := &recordingDeadLetter{}
	d := dispatch.NewDispatcher(sender, dl)

	route := &routing.Route{
		RouteID: "R1",
		DestinationConfigs: []routing.DestinationConfig{
			{URI: "direct:out", Timeout: time.Second},
		},
	}

	w := NewWorker(route, nil, consumerImpl, d)

	ctx, cancel := context.WithTimeout(context.Background(), 200*time.Millisecond)
	defer cancel()

	rec, err := consumerImpl.Poll(ctx)
	require.NoError(t, err)
	w.processRecord(ctx, rec)

	require.Len(t, sender.payloads, 1)
	assert.Contains(t, string(sender.payloads[0]), "35=D")
}
