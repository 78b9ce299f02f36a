// Package kafka implements pkg/broker against github.com/IBM/sarama.
//
// The Consumer adapts sarama's push-based ConsumerGroupHandler to the
// poll/commit shape broker.Consumer needs: ConsumeClaim hands each message to
// a single-slot channel and then blocks until Commit is called for that
// exact message, before pulling the next one off the partition claim. When a
// consumer group member owns more than one partition, sarama runs one
// ConsumeClaim goroutine per partition, but they all contend on the same
// handoff channel — so only one record is ever in flight for the whole
// route, matching the maxPollRecords=1 / single-worker contract of spec C6
// even across partitions.
package kafka

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/IBM/sarama"
	"github.com/xdg-go/scram"

	"github.com/fixrouter/gateway/pkg/broker"
	"github.com/fixrouter/gateway/pkg/errors"
)

// Config configures a Kafka broker connection.
type Config struct {
	Brokers []string `env:"KAFKA_BROKERS" env-separator:","`

	// SASL/SCRAM auth, for managed Kafka (Confluent/MSK) deployments.
	SASLEnabled   bool   `env:"KAFKA_SASL_ENABLED" env-default:"false"`
	SASLUser      string `env:"KAFKA_SASL_USER"`
	SASLPassword  string `env:"KAFKA_SASL_PASSWORD"`
	SASLMechanism string `env:"KAFKA_SASL_MECHANISM" env-default:"SCRAM-SHA-512"`

	RequestTimeout time.Duration `env:"KAFKA_REQUEST_TIMEOUT" env-default:"5s"`
}

func baseConfig(cfg Config) *sarama.Config {
	sc := sarama.NewConfig()
	sc.Producer.RequiredAcks = sarama.WaitForAll
	sc.Producer.Return.Successes = true
	sc.Producer.Timeout = cfg.RequestTimeout
	sc.Consumer.Offsets.AutoCommit.Enable = false
	sc.Consumer.Return.Errors = true
	sc.Version = sarama.V2_8_0_0

	if cfg.SASLEnabled {
		sc.Net.SASL.Enable = true
		sc.Net.SASL.User = cfg.SASLUser
		sc.Net.SASL.Password = cfg.SASLPassword
		sc.Net.SASL.Handshake = true
		switch cfg.SASLMechanism {
		case "SCRAM-SHA-256":
			sc.Net.SASL.Mechanism = sarama.SASLTypeSCRAMSHA256
			sc.Net.SASL.SCRAMClientGeneratorFunc = func() sarama.SCRAMClient {
				return &scramClient{HashGeneratorFcn: scram.SHA256}
			}
		default:
			sc.Net.SASL.Mechanism = sarama.SASLTypeSCRAMSHA512
			sc.Net.SASL.SCRAMClientGeneratorFunc = func() sarama.SCRAMClient {
				return &scramClient{HashGeneratorFcn: scram.SHA512}
			}
		}
	}
	return sc
}

// Producer is a sarama sync producer wrapped as a broker.Producer.
type Producer struct {
	client   sarama.Client
	producer sarama.SyncProducer
	admin    sarama.ClusterAdmin
}

func NewProducer(cfg Config) (*Producer, error) {
	sc := baseConfig(cfg)
	client, err := sarama.NewClient(cfg.Brokers, sc)
	if err != nil {
		return nil, errors.Unavailable("failed to connect to kafka", err)
	}
	producer, err := sarama.NewSyncProducerFromClient(client)
	if err != nil {
		_ = client.Close()
		return nil, errors.Unavailable("failed to create kafka producer", err)
	}
	admin, err := sarama.NewClusterAdminFromClient(client)
	if err != nil {
		_ = producer.Close()
		_ = client.Close()
		return nil, errors.Unavailable("failed to create kafka admin client", err)
	}
	return &Producer{client: client, producer: producer, admin: admin}, nil
}

func (p *Producer) Publish(ctx context.Context, rec *broker.Record) error {
	ts := rec.Timestamp
	if ts.IsZero() {
		ts = time.Now()
	}
	msg := &sarama.ProducerMessage{
		Topic:     rec.Topic,
		Value:     sarama.ByteEncoder(rec.Value),
		Timestamp: ts,
	}
	if len(rec.Key) > 0 {
		msg.Key = sarama.ByteEncoder(rec.Key)
	}
	if rec.Partition != nil {
		msg.Partition = *rec.Partition
	}
	for k, v := range rec.Headers {
		msg.Headers = append(msg.Headers, sarama.RecordHeader{Key: []byte(k), Value: []byte(v)})
	}
	_, _, err := p.producer.SendMessage(msg)
	if err != nil {
		return errors.Wrap(classify(err), "failed to publish to kafka")
	}
	return nil
}

func (p *Producer) EnsureTopic(ctx context.Context, topic string, partitions int32, replicationFactor int16) error {
	err := p.admin.CreateTopic(topic, &sarama.TopicDetail{
		NumPartitions:     partitions,
		ReplicationFactor: replicationFactor,
	}, false)
	if err == nil {
		return nil
	}
	if terr, ok := err.(*sarama.TopicError); ok && terr.Err == sarama.ErrTopicAlreadyExists {
		return nil
	}
	if err == sarama.ErrClusterAuthorizationFailed {
		return errors.PermissionDenied("not authorized to create topics", err)
	}
	return errors.Wrap(err, "failed to ensure kafka topic")
}

func (p *Producer) Healthy(ctx context.Context) bool {
	brokers := p.client.Brokers()
	for _, b := range brokers {
		if ok, _ := b.Connected(); ok {
			return true
		}
	}
	return false
}

func (p *Producer) Close() error {
	_ = p.admin.Close()
	_ = p.producer.Close()
	return p.client.Close()
}

// Consumer adapts a sarama consumer group to broker.Consumer's poll/commit
// contract, one topic per Consumer instance.
type Consumer struct {
	group sarama.ConsumerGroup
	topic string

	cancel context.CancelFunc
	wg     sync.WaitGroup

	records chan handoff
	errs    chan error

	pendingMu sync.Mutex
	pending   map[string]handoff
}

type handoff struct {
	rec     *broker.ConsumedRecord
	session sarama.ConsumerGroupSession
	msg     *sarama.ConsumerMessage
	ack     chan struct{}
}

// NewConsumer joins consumer group "fix-router-<normalisedRouteId>" (per
// spec C6) against topic, with autoCommitEnable=false and manual commit.
func NewConsumer(cfg Config, groupID, topic string) (*Consumer, error) {
	sc := baseConfig(cfg)
	sc.Consumer.MaxProcessingTime = 30 * time.Second
	group, err := sarama.NewConsumerGroup(cfg.Brokers, groupID, sc)
	if err != nil {
		return nil, errors.Unavailable("failed to join kafka consumer group", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	c := &Consumer{
		group:   group,
		topic:   topic,
		cancel:  cancel,
		records: make(chan handoff),
		errs:    make(chan error, 1),
	}

	c.wg.Add(1)
	go c.run(ctx)

	return c, nil
}

func (c *Consumer) run(ctx context.Context) {
	defer c.wg.Done()
	h := &groupHandler{records: c.records}
	for {
		if ctx.Err() != nil {
			return
		}
		if err := c.group.Consume(ctx, []string{c.topic}, h); err != nil {
			if ctx.Err() != nil {
				return
			}
			select {
			case c.errs <- err:
			default:
			}
			time.Sleep(time.Second)
		}
	}
}

func (c *Consumer) Poll(ctx context.Context) (*broker.ConsumedRecord, error) {
	select {
	case ho, ok := <-c.records:
		if !ok {
			return nil, errors.Unavailable("consumer closed", nil)
		}
		// Stash the ack channel on the record's headers-adjacent side
		// table via a closure captured in Commit; simplest is to keep a
		// pending map keyed by partition+offset.
		c.pendingMu.Lock()
		if c.pending == nil {
			c.pending = make(map[string]handoff)
		}
		c.pending[pendingKey(ho.rec)] = ho
		c.pendingMu.Unlock()
		return ho.rec, nil
	case err := <-c.errs:
		return nil, errors.Wrap(classify(err), "kafka consume error")
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func pendingKey(rec *broker.ConsumedRecord) string {
	return fmt.Sprintf("%s|%d|%d", rec.Topic, rec.Partition, rec.Offset)
}

func (c *Consumer) Commit(ctx context.Context, rec *broker.ConsumedRecord) error {
	c.pendingMu.Lock()
	ho, ok := c.pending[pendingKey(rec)]
	if ok {
		delete(c.pending, pendingKey(rec))
	}
	c.pendingMu.Unlock()
	if !ok {
		return errors.InvalidArgument("commit called for unknown record", nil)
	}
	ho.session.MarkMessage(ho.msg, "")
	close(ho.ack)
	return nil
}

func (c *Consumer) Close() error {
	c.cancel()
	err := c.group.Close()
	c.wg.Wait()
	return err
}

type groupHandler struct {
	records chan handoff
}

func (h *groupHandler) Setup(sarama.ConsumerGroupSession) error   { return nil }
func (h *groupHandler) Cleanup(sarama.ConsumerGroupSession) error { return nil }

func (h *groupHandler) ConsumeClaim(session sarama.ConsumerGroupSession, claim sarama.ConsumerGroupClaim) error {
	for msg := range claim.Messages() {
		headers := make(map[string]string, len(msg.Headers))
		for _, rh := range msg.Headers {
			headers[string(rh.Key)] = string(rh.Value)
		}
		rec := &broker.ConsumedRecord{
			Topic:     msg.Topic,
			Partition: msg.Partition,
			Offset:    msg.Offset,
			Key:       msg.Key,
			Value:     msg.Value,
			Headers:   headers,
			Timestamp: msg.Timestamp,
		}
		ack := make(chan struct{})
		select {
		case h.records <- handoff{rec: rec, session: session, msg: msg, ack: ack}:
		case <-session.Context().Done():
			return nil
		}
		select {
		case <-ack:
		case <-session.Context().Done():
			return nil
		}
	}
	return nil
}

// classify marks every sarama failure as errors.Unavailable, the code used
// for network-class failures; it does not tell connection/I-O failures apart
// from other broker errors.
func classify(err error) error {
	if err == nil {
		return nil
	}
	return errors.Unavailable(err.Error(), err)
}

var (
	_ broker.Producer      = (*Producer)(nil)
	_ broker.TopicAdmin    = (*Producer)(nil)
	_ broker.HealthChecker = (*Producer)(nil)
	_ broker.Consumer      = (*Consumer)(nil)
)

// scramClient adapts xdg-go/scram to sarama's SCRAMClient interface for
// SASL/SCRAM authentication.
type scramClient struct {
	*scram.Client
	*scram.ClientConversation
	scram.HashGeneratorFcn
}

func (c *scramClient) Begin(userName, password, authzID string) (err error) {
	c.Client, err = c.HashGeneratorFcn.NewClient(userName, password, authzID)
	if err != nil {
		return err
	}
	c.ClientConversation = c.Client.NewConversation()
	return nil
}

func (c *scramClient) Step(challenge string) (response string, err error) {
	return c.ClientConversation.Step(challenge)
}

func (c *scramClient) Done() bool {
	return c.ClientConversation.Done()
}
