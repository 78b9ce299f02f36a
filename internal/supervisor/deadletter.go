package supervisor

import (
	"context"

	"github.com/fixrouter/gateway/internal/envelope"
	"github.com/fixrouter/gateway/pkg/broker"
)

// deadLetterPublisher adapts the shared broker.Producer to
// dispatch.DeadLetterPublisher: a dead-lettered envelope is JSON-encoded
// exactly like any other egress record.
type deadLetterPublisher struct {
	producer broker.Producer
}

func newDeadLetterPublisher(producer broker.Producer) *deadLetterPublisher {
	return &deadLetterPublisher{producer: producer}
}

func (d *deadLetterPublisher) PublishDeadLetter(ctx context.Context, topic string, e *envelope.Envelope) error {
	body, err := envelope.EncodeJSON(e)
	if err != nil {
		return err
	}
	return d.producer.Publish(ctx, &broker.Record{Topic: topic, Value: body})
}
