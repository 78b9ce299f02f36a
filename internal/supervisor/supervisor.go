// Package supervisor is the gateway's process-lifecycle owner (C8): it
// builds one consumer.Worker per INPUT route and one listener.Worker per
// listener URI of each OUTPUT route from a loaded routing.Config, probes the broker before
// starting anything, provisions topics, and tears everything down within a
// bounded shutdown deadline.
package supervisor

import (
	"context"
	"sync"
	"time"

	"github.com/fixrouter/gateway/internal/consumer"
	"github.com/fixrouter/gateway/internal/dispatch"
	"github.com/fixrouter/gateway/internal/listener"
	"github.com/fixrouter/gateway/internal/routing"
	"github.com/fixrouter/gateway/pkg/broker"
	"github.com/fixrouter/gateway/pkg/concurrency"
	"github.com/fixrouter/gateway/pkg/endpoint"
	"github.com/fixrouter/gateway/pkg/errors"
	"github.com/fixrouter/gateway/pkg/logger"
	"github.com/fixrouter/gateway/pkg/resilience"
)

// Config is the supervisor's process configuration, loaded via pkg/config
// from the environment (ports, timeouts and the shutdown deadline are
// ambient process config, not routing-table data — see SPEC_FULL.md §1).
type Config struct {
	ShutdownDeadline       time.Duration `env:"SHUTDOWN_DEADLINE" env-default:"30s"`
	StartupProbeWindow     time.Duration `env:"STARTUP_PROBE_WINDOW" env-default:"10s"`
	StartupProbeInterval   time.Duration `env:"STARTUP_PROBE_INTERVAL" env-default:"1s"`
	TopicPartitions        int32         `env:"TOPIC_PARTITIONS" env-default:"1"`
	TopicReplicationFactor int16         `env:"TOPIC_REPLICATION_FACTOR" env-default:"1"`
}

// ConsumerFactory builds the broker.Consumer backing one INPUT route,
// joining consumer group groupID ("fix-router-<normalisedRouteId>", §4.6) on
// topic.
type ConsumerFactory func(groupID, topic string) (broker.Consumer, error)

// DialFactory builds an endpoint.Dialer for a destination URI. The factory
// does the scheme dispatch itself, kafka:-scheme re-routing destinations
// included.
type DialFactory func(uri string) (endpoint.Dialer, error)

// ListenFactory builds an endpoint.Listener for one OUTPUT route's
// configured listener URI.
type ListenFactory func(uri string) (endpoint.Listener, error)

// Supervisor owns the full worker set and its lifecycle.
type Supervisor struct {
	cfg        Config
	routingCfg *routing.Config
	producer   broker.Producer
	topicAdmin broker.TopicAdmin
	health     broker.HealthChecker

	consumerFactory ConsumerFactory
	dialFactory     DialFactory
	listenFactory   ListenFactory

	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu        sync.Mutex
	consumers []broker.Consumer
	senders   []*dispatch.URISender
	listeners []endpoint.Listener
}

func New(
	cfg Config,
	routingCfg *routing.Config,
	producer broker.Producer,
	topicAdmin broker.TopicAdmin,
	health broker.HealthChecker,
	consumerFactory ConsumerFactory,
	dialFactory DialFactory,
	listenFactory ListenFactory,
) *Supervisor {
	return &Supervisor{
		cfg:             cfg,
		routingCfg:      routingCfg,
		producer:        producer,
		topicAdmin:      topicAdmin,
		health:          health,
		consumerFactory: consumerFactory,
		dialFactory:     dialFactory,
		listenFactory:   listenFactory,
	}
}

// Start probes broker reachability (§7 SupervisorError: a 10s window polled
// every 1s by default), provisions topics, then launches every route's
// worker. It returns once all workers are launched; it does not block for
// their lifetime.
func (s *Supervisor) Start(ctx context.Context) error {
	if err := s.probeBrokerReachable(ctx); err != nil {
		return errors.Unavailable("broker not reachable within startup window", err)
	}

	if err := s.ensureTopics(ctx); err != nil {
		logger.L().ErrorContext(ctx, "topic provisioning failed, continuing since the broker may auto-create topics", "error", err)
	}

	runCtx, cancel := context.WithCancel(context.Background())
	s.cancel = cancel

	dl := newDeadLetterPublisher(s.producer)

	for _, route := range s.routingCfg.RoutesByDirection(routing.DirectionInput) {
		if err := s.startConsumerWorker(runCtx, route, dl); err != nil {
			cancel()
			return err
		}
	}
	for _, route := range s.routingCfg.RoutesByDirection(routing.DirectionOutput) {
		if err := s.startListenerWorkers(runCtx, route); err != nil {
			cancel()
			return err
		}
	}

	return nil
}

// probeBrokerReachable polls health.Healthy at a fixed interval for up to
// the configured window, per §7's SupervisorError startup contract.
func (s *Supervisor) probeBrokerReachable(ctx context.Context) error {
	if s.health == nil {
		return nil
	}
	attempts := int(s.cfg.StartupProbeWindow / s.cfg.StartupProbeInterval)
	if attempts < 1 {
		attempts = 1
	}
	return resilience.Retry(ctx, resilience.RetryConfig{
		MaxAttempts:    attempts,
		InitialBackoff: s.cfg.StartupProbeInterval,
		MaxBackoff:     s.cfg.StartupProbeInterval,
		Multiplier:     1,
		RetryIf:        func(err error) bool { return err != nil },
	}, func(ctx context.Context) error {
		if s.health.Healthy(ctx) {
			return nil
		}
		return errors.Unavailable("broker health check failed", nil)
	})
}

// ensureTopics provisions every input/output/dead-letter topic the route
// table names (§4.8), in parallel via pkg/concurrency.WorkerPool since
// provisioning order between topics never matters. A PermissionDenied
// failure is logged and treated as non-fatal per broker.TopicAdmin's
// contract; anything else is returned.
func (s *Supervisor) ensureTopics(ctx context.Context) error {
	if s.topicAdmin == nil {
		return nil
	}
	topics := s.collectTopics()
	if len(topics) == 0 {
		return nil
	}

	workers := len(topics)
	if workers > 4 {
		workers = 4
	}
	pool := concurrency.NewWorkerPool(workers, len(topics))
	pool.Start(ctx)
	defer pool.Stop()

	var (
		wg   sync.WaitGroup
		mu   sync.Mutex
		errs []error
	)
	for _, topic := range topics {
		topic := topic
		wg.Add(1)
		pool.Submit(func(taskCtx context.Context) {
			defer wg.Done()
			err := s.topicAdmin.EnsureTopic(taskCtx, topic, s.cfg.TopicPartitions, s.cfg.TopicReplicationFactor)
			if err == nil {
				return
			}
			if errors.Is(err, errors.CodePermissionDenied) {
				logger.L().InfoContext(taskCtx, "not authorized to create topic, assuming the broker auto-creates it", "topic", topic)
				return
			}
			mu.Lock()
			errs = append(errs, err)
			mu.Unlock()
		})
	}
	wg.Wait()

	if len(errs) > 0 {
		return errs[0]
	}
	return nil
}

func (s *Supervisor) collectTopics() []string {
	seen := make(map[string]bool)
	var topics []string
	add := func(t string) {
		if t != "" && !seen[t] {
			seen[t] = true
			topics = append(topics, t)
		}
	}
	for i := range s.routingCfg.Routes {
		r := &s.routingCfg.Routes[i]
		add(r.InputTopic)
		add(r.OutputTopic)
		add(r.DeadLetterTopic)
		for j := range r.DestinationConfigs {
			add(r.DestinationConfigs[j].DeadLetterTopic)
		}
	}
	return topics
}

func (s *Supervisor) startConsumerWorker(ctx context.Context, route *routing.Route, dl dispatch.DeadLetterPublisher) error {
	groupID := "fix-router-" + route.NormalisedID()
	c, err := s.consumerFactory(groupID, route.InputTopic)
	if err != nil {
		return errors.Unavailable("failed to start consumer for route "+route.RouteID, err)
	}

	sender := dispatch.NewURISender(s.dialFactory)
	d := dispatch.NewDispatcher(sender, dl)
	w := consumer.NewWorker(route, s.routingCfg, c, d)

	s.mu.Lock()
	s.consumers = append(s.consumers, c)
	s.senders = append(s.senders, sender)
	s.mu.Unlock()

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		if err := w.Run(ctx); err != nil {
			logger.L().ErrorContext(ctx, "consumer worker exited with error", "routeId", route.RouteID, "error", err)
		}
	}()
	return nil
}

func (s *Supervisor) startListenerWorkers(ctx context.Context, route *routing.Route) error {
	for _, uri := range route.ListenerURIs {
		l, err := s.listenFactory(uri)
		if err != nil {
			return errors.Unavailable("failed to start listener for route "+route.RouteID, err)
		}

		s.mu.Lock()
		s.listeners = append(s.listeners, l)
		s.mu.Unlock()

		w := listener.NewWorker(route, s.routingCfg, l, s.producer)
		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			if err := w.Run(ctx); err != nil {
				logger.L().ErrorContext(ctx, "listener worker exited with error", "routeId", route.RouteID, "error", err)
			}
		}()
	}
	return nil
}

// Stop cancels every worker's context and waits up to the configured
// shutdown deadline for them to drain, then closes every consumer, dialer,
// listener and the shared producer. A timed-out drain is logged but does
// not prevent the resource close pass from running.
func (s *Supervisor) Stop(ctx context.Context) error {
	if s.cancel != nil {
		s.cancel()
	}

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(s.cfg.ShutdownDeadline):
		logger.L().ErrorContext(ctx, "shutdown deadline exceeded, closing resources with workers still draining")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	var firstErr error
	record := func(err error) {
		if err != nil && firstErr == nil {
			firstErr = err
		}
	}

	for _, c := range s.consumers {
		record(c.Close())
	}
	for _, sender := range s.senders {
		record(sender.Close())
	}
	for _, l := range s.listeners {
		record(l.Close())
	}
	record(s.producer.Close())

	return firstErr
}
