package broker

import (
	"context"

	"github.com/fixrouter/gateway/pkg/logger"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// InstrumentedProducer wraps a Producer with logging and tracing.
type InstrumentedProducer struct {
	next   Producer
	topic  string
	tracer trace.Tracer
}

func NewInstrumentedProducer(next Producer, topic string) *InstrumentedProducer {
	return &InstrumentedProducer{next: next, topic: topic, tracer: otel.Tracer("pkg/broker")}
}

func (p *InstrumentedProducer) Publish(ctx context.Context, rec *Record) error {
	ctx, span := p.tracer.Start(ctx, "broker.Publish", trace.WithAttributes(
		attribute.String("broker.topic", rec.Topic),
	))
	defer span.End()

	logger.L().InfoContext(ctx, "publishing record", "topic", rec.Topic)

	err := p.next.Publish(ctx, rec)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		logger.L().ErrorContext(ctx, "failed to publish record", "topic", rec.Topic, "error", err)
		return err
	}

	span.SetStatus(codes.Ok, "record published")
	return nil
}

func (p *InstrumentedProducer) Close() error {
	logger.L().Info("closing producer", "topic", p.topic)
	return p.next.Close()
}

// InstrumentedConsumer wraps a Consumer with logging and tracing.
type InstrumentedConsumer struct {
	next   Consumer
	topic  string
	tracer trace.Tracer
}

func NewInstrumentedConsumer(next Consumer, topic string) *InstrumentedConsumer {
	return &InstrumentedConsumer{next: next, topic: topic, tracer: otel.Tracer("pkg/broker")}
}

func (c *InstrumentedConsumer) Poll(ctx context.Context) (*ConsumedRecord, error) {
	ctx, span := c.tracer.Start(ctx, "broker.Poll", trace.WithAttributes(
		attribute.String("broker.topic", c.topic),
	))
	defer span.End()

	rec, err := c.next.Poll(ctx)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}
	if rec != nil {
		span.SetAttributes(attribute.Int64("broker.offset", rec.Offset), attribute.Int("broker.partition", int(rec.Partition)))
	}
	span.SetStatus(codes.Ok, "record polled")
	return rec, nil
}

func (c *InstrumentedConsumer) Commit(ctx context.Context, rec *ConsumedRecord) error {
	ctx, span := c.tracer.Start(ctx, "broker.Commit", trace.WithAttributes(
		attribute.String("broker.topic", c.topic),
		attribute.Int64("broker.offset", rec.Offset),
	))
	defer span.End()

	err := c.next.Commit(ctx, rec)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		logger.L().ErrorContext(ctx, "failed to commit record", "topic", c.topic, "offset", rec.Offset, "error", err)
		return err
	}
	span.SetStatus(codes.Ok, "record committed")
	return nil
}

func (c *InstrumentedConsumer) Close() error {
	logger.L().Info("closing consumer", "topic", c.topic)
	return c.next.Close()
}

var (
	_ Producer = (*InstrumentedProducer)(nil)
	_ Consumer = (*InstrumentedConsumer)(nil)
)
