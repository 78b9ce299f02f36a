package broker

import (
	"context"
	"time"

	"github.com/fixrouter/gateway/pkg/resilience"
)

// ResilientConfig configures the resilient producer/consumer wrappers.
type ResilientConfig struct {
	CircuitBreakerEnabled   bool          `env:"BROKER_CB_ENABLED" env-default:"true"`
	CircuitBreakerThreshold int64         `env:"BROKER_CB_THRESHOLD" env-default:"5"`
	CircuitBreakerTimeout   time.Duration `env:"BROKER_CB_TIMEOUT" env-default:"30s"`

	RetryEnabled     bool          `env:"BROKER_RETRY_ENABLED" env-default:"true"`
	RetryMaxAttempts int           `env:"BROKER_RETRY_MAX" env-default:"3"`
	RetryBackoff     time.Duration `env:"BROKER_RETRY_BACKOFF" env-default:"100ms"`
}

// ResilientProducer wraps a Producer with circuit breaker and retry.
// Commit is deliberately left unwrapped by ResilientConsumer below: retrying
// a commit after a false-negative ack would re-commit an offset the broker
// already recorded, which is harmless for Kafka's idempotent commit but
// would double-ack a RabbitMQ delivery tag. Adapters that need commit
// retries implement it themselves.
type ResilientProducer struct {
	next Producer
	cb   *resilience.CircuitBreaker
	retry resilience.RetryConfig
}

func NewResilientProducer(next Producer, cfg ResilientConfig) *ResilientProducer {
	rp := &ResilientProducer{next: next}
	if cfg.CircuitBreakerEnabled {
		rp.cb = resilience.NewCircuitBreaker(resilience.CircuitBreakerConfig{
			Name:             "broker",
			FailureThreshold: cfg.CircuitBreakerThreshold,
			SuccessThreshold: 2,
			Timeout:          cfg.CircuitBreakerTimeout,
		})
	}
	if cfg.RetryEnabled {
		rp.retry = resilience.RetryConfig{
			MaxAttempts:    cfg.RetryMaxAttempts,
			InitialBackoff: cfg.RetryBackoff,
			MaxBackoff:     5 * time.Second,
			Multiplier:     2.0,
		}
	}
	return rp
}

func (rp *ResilientProducer) execute(ctx context.Context, fn resilience.Executor) error {
	operation := fn
	if rp.cb != nil {
		cbFn := operation
		operation = func(ctx context.Context) error {
			return rp.cb.Execute(ctx, cbFn)
		}
	}
	if rp.retry.MaxAttempts > 0 {
		return resilience.Retry(ctx, rp.retry, operation)
	}
	return operation(ctx)
}

func (rp *ResilientProducer) Publish(ctx context.Context, rec *Record) error {
	return rp.execute(ctx, func(ctx context.Context) error {
		return rp.next.Publish(ctx, rec)
	})
}

func (rp *ResilientProducer) Close() error {
	return rp.next.Close()
}

// ResilientConsumer wraps a Consumer's Poll with retry; Commit passes
// straight through so a single record is never dispatched twice because a
// retried commit raced a redelivery.
type ResilientConsumer struct {
	next  Consumer
	retry resilience.RetryConfig
}

func NewResilientConsumer(next Consumer, cfg ResilientConfig) *ResilientConsumer {
	rc := &ResilientConsumer{next: next}
	if cfg.RetryEnabled {
		rc.retry = resilience.RetryConfig{
			MaxAttempts:    cfg.RetryMaxAttempts,
			InitialBackoff: cfg.RetryBackoff,
			MaxBackoff:     5 * time.Second,
			Multiplier:     2.0,
		}
	}
	return rc
}

func (rc *ResilientConsumer) Poll(ctx context.Context) (*ConsumedRecord, error) {
	var rec *ConsumedRecord
	err := func() error {
		if rc.retry.MaxAttempts == 0 {
			var err error
			rec, err = rc.next.Poll(ctx)
			return err
		}
		return resilience.Retry(ctx, rc.retry, func(ctx context.Context) error {
			var err error
			rec, err = rc.next.Poll(ctx)
			return err
		})
	}()
	if err != nil {
		return nil, err
	}
	return rec, nil
}

func (rc *ResilientConsumer) Commit(ctx context.Context, rec *ConsumedRecord) error {
	return rc.next.Commit(ctx, rec)
}

func (rc *ResilientConsumer) Close() error {
	return rc.next.Close()
}

var (
	_ Producer = (*ResilientProducer)(nil)
	_ Consumer = (*ResilientConsumer)(nil)
)
