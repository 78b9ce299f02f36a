// Package nats implements pkg/broker against github.com/nats-io/nats.go's
// JetStream API, mirroring the producer/consumer shape of
// pkg/broker/adapters/kafka but using a durable pull consumer instead of a
// consumer group: JetStream's AckExplicit policy gives the same manual
// commit contract Kafka's manual offset commit does.
package nats

import (
	"context"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"

	"github.com/fixrouter/gateway/pkg/broker"
	"github.com/fixrouter/gateway/pkg/errors"
)

// Config configures a NATS JetStream connection.
type Config struct {
	URL            string        `env:"NATS_URL" env-default:"nats://localhost:4222"`
	ConnectTimeout time.Duration `env:"NATS_CONNECT_TIMEOUT" env-default:"5s"`
}

// Producer publishes records as JetStream messages, one stream per topic.
type Producer struct {
	conn *nats.Conn
	js   jetstream.JetStream
}

func NewProducer(cfg Config) (*Producer, error) {
	conn, err := nats.Connect(cfg.URL, nats.Timeout(cfg.ConnectTimeout))
	if err != nil {
		return nil, errors.Unavailable("failed to connect to nats", err)
	}
	js, err := jetstream.New(conn)
	if err != nil {
		conn.Close()
		return nil, errors.Unavailable("failed to open jetstream context", err)
	}
	return &Producer{conn: conn, js: js}, nil
}

func (p *Producer) Publish(ctx context.Context, rec *broker.Record) error {
	msg := &nats.Msg{Subject: rec.Topic, Data: rec.Value, Header: nats.Header{}}
	for k, v := range rec.Headers {
		msg.Header.Set(k, v)
	}
	if len(rec.Key) > 0 {
		msg.Header.Set("Nats-Msg-Key", string(rec.Key))
	}
	_, err := p.js.PublishMsg(ctx, msg)
	if err != nil {
		return errors.Unavailable("failed to publish to nats jetstream", err)
	}
	return nil
}

func (p *Producer) EnsureTopic(ctx context.Context, topic string, partitions int32, replicationFactor int16) error {
	_, err := p.js.CreateOrUpdateStream(ctx, jetstream.StreamConfig{
		Name:     streamName(topic),
		Subjects: []string{topic},
	})
	if err != nil {
		return errors.Wrap(err, "failed to ensure jetstream stream")
	}
	return nil
}

func (p *Producer) Healthy(ctx context.Context) bool {
	return p.conn.Status() == nats.CONNECTED
}

func (p *Producer) Close() error {
	p.conn.Close()
	return nil
}

// JetStream exposes the underlying context so a Consumer can be created
// against the same connection as this Producer.
func (p *Producer) JetStream() jetstream.JetStream {
	return p.js
}

func streamName(topic string) string {
	out := make([]rune, 0, len(topic))
	for _, r := range topic {
		if (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') || (r >= '0' && r <= '9') || r == '_' {
			out = append(out, r)
		} else {
			out = append(out, '_')
		}
	}
	return string(out)
}

// Consumer wraps a JetStream durable pull consumer. Poll fetches exactly one
// message (maxPollRecords=1) and Commit acks it explicitly.
type Consumer struct {
	consumer jetstream.Consumer
	current  jetstream.Msg
}

func NewConsumer(ctx context.Context, cfg Config, js jetstream.JetStream, topic, durableName string) (*Consumer, error) {
	stream, err := js.Stream(ctx, streamName(topic))
	if err != nil {
		return nil, errors.Wrap(err, "failed to look up jetstream stream")
	}
	cons, err := stream.CreateOrUpdateConsumer(ctx, jetstream.ConsumerConfig{
		Durable:       durableName,
		AckPolicy:     jetstream.AckExplicitPolicy,
		FilterSubject: topic,
	})
	if err != nil {
		return nil, errors.Wrap(err, "failed to create jetstream consumer")
	}
	return &Consumer{consumer: cons}, nil
}

func (c *Consumer) Poll(ctx context.Context) (*broker.ConsumedRecord, error) {
	batch, err := c.consumer.Fetch(1, jetstream.FetchMaxWait(5*time.Second))
	if err != nil {
		return nil, errors.Wrap(err, "failed to fetch from jetstream")
	}
	for msg := range batch.Messages() {
		meta, _ := msg.Metadata()
		headers := make(map[string]string)
		for k := range msg.Headers() {
			headers[k] = msg.Headers().Get(k)
		}
		c.current = msg
		rec := &broker.ConsumedRecord{
			Topic:     msg.Subject(),
			Partition: 0,
			Value:     msg.Data(),
			Headers:   headers,
			Timestamp: time.Now(),
		}
		if meta != nil {
			rec.Offset = int64(meta.Sequence.Stream)
		}
		return rec, nil
	}
	if err := batch.Error(); err != nil {
		return nil, errors.Wrap(err, "jetstream fetch batch error")
	}
	return nil, nil
}

func (c *Consumer) Commit(ctx context.Context, rec *broker.ConsumedRecord) error {
	if c.current == nil {
		return errors.InvalidArgument("commit called with no pending message", nil)
	}
	if err := c.current.Ack(); err != nil {
		return errors.Wrap(err, "failed to ack jetstream message")
	}
	c.current = nil
	return nil
}

func (c *Consumer) Close() error {
	return nil
}

var (
	_ broker.Producer      = (*Producer)(nil)
	_ broker.TopicAdmin    = (*Producer)(nil)
	_ broker.HealthChecker = (*Producer)(nil)
	_ broker.Consumer      = (*Consumer)(nil)
)
