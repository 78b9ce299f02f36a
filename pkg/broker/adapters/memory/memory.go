// Package memory provides an in-process broker.Producer/broker.Consumer pair
// backed by per-topic channels. It is the default broker driver and backs the
// routing engine's own tests; `direct:<name>` URIs are served by
// pkg/endpoint/adapters/direct, not by this package.
package memory

import (
	"context"
	"sync"
	"time"

	"github.com/fixrouter/gateway/pkg/broker"
	"github.com/fixrouter/gateway/pkg/errors"
)

// Registry is a process-wide set of named topics. A single Registry should
// be shared between every memory Producer and Consumer that needs to see
// each other's records (tests construct one Registry and hand it to both
// sides; with the memory driver, main builds one for the whole process).
type Registry struct {
	mu     sync.Mutex
	topics map[string]chan *broker.ConsumedRecord
}

func NewRegistry() *Registry {
	return &Registry{topics: make(map[string]chan *broker.ConsumedRecord)}
}

func (r *Registry) topic(name string) chan *broker.ConsumedRecord {
	r.mu.Lock()
	defer r.mu.Unlock()
	ch, ok := r.topics[name]
	if !ok {
		ch = make(chan *broker.ConsumedRecord, 1024)
		r.topics[name] = ch
	}
	return ch
}

type Producer struct {
	registry *Registry
}

func NewProducer(registry *Registry) *Producer {
	return &Producer{registry: registry}
}

func (p *Producer) Publish(ctx context.Context, rec *broker.Record) error {
	if rec.Topic == "" {
		return errors.InvalidArgument("record topic is empty", nil)
	}
	ts := rec.Timestamp
	if ts.IsZero() {
		ts = time.Now()
	}
	cr := &broker.ConsumedRecord{
		Topic:     rec.Topic,
		Key:       rec.Key,
		Value:     rec.Value,
		Headers:   rec.Headers,
		Timestamp: ts,
	}
	select {
	case p.registry.topic(rec.Topic) <- cr:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (p *Producer) Close() error { return nil }

type Consumer struct {
	registry *Registry
	topic    string
	ch       chan *broker.ConsumedRecord
	mu       sync.Mutex
	closed   bool
}

func NewConsumer(registry *Registry, topic string) *Consumer {
	return &Consumer{registry: registry, topic: topic, ch: registry.topic(topic)}
}

func (c *Consumer) Poll(ctx context.Context) (*broker.ConsumedRecord, error) {
	select {
	case rec, ok := <-c.ch:
		if !ok {
			return nil, errors.Unavailable("consumer closed", nil)
		}
		return rec, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Commit is a no-op: the in-memory broker has no offset log to persist
// against, delivery already happened by the time Poll returned.
func (c *Consumer) Commit(ctx context.Context, rec *broker.ConsumedRecord) error {
	return nil
}

func (c *Consumer) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closed = true
	return nil
}

// EnsureTopic is a no-op: topics spring into existence on first use.
func (p *Producer) EnsureTopic(ctx context.Context, topic string, partitions int32, replicationFactor int16) error {
	p.registry.topic(topic)
	return nil
}

func (p *Producer) Healthy(ctx context.Context) bool { return true }

var (
	_ broker.Producer      = (*Producer)(nil)
	_ broker.Consumer      = (*Consumer)(nil)
	_ broker.TopicAdmin    = (*Producer)(nil)
	_ broker.HealthChecker = (*Producer)(nil)
)
