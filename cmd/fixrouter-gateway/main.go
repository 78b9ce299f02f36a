// Command fixrouter-gateway is the FIX message gateway process: it loads a
// routing table, wires the configured broker and endpoint transports, and
// runs until signalled to shut down.
package main

import (
	"context"
	"fmt"
	"net/url"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/fixrouter/gateway/internal/httpapi"
	"github.com/fixrouter/gateway/internal/routing"
	"github.com/fixrouter/gateway/internal/supervisor"
	"github.com/fixrouter/gateway/pkg/broker"
	kafkabroker "github.com/fixrouter/gateway/pkg/broker/adapters/kafka"
	memorybroker "github.com/fixrouter/gateway/pkg/broker/adapters/memory"
	natsbroker "github.com/fixrouter/gateway/pkg/broker/adapters/nats"
	rabbitmqbroker "github.com/fixrouter/gateway/pkg/broker/adapters/rabbitmq"
	"github.com/fixrouter/gateway/pkg/cache"
	cachememory "github.com/fixrouter/gateway/pkg/cache/adapters/memory"
	cacheredis "github.com/fixrouter/gateway/pkg/cache/adapters/redis"
	"github.com/fixrouter/gateway/pkg/config"
	"github.com/fixrouter/gateway/pkg/endpoint"
	directendpoint "github.com/fixrouter/gateway/pkg/endpoint/adapters/direct"
	tcpendpoint "github.com/fixrouter/gateway/pkg/endpoint/adapters/tcp"
	websocketendpoint "github.com/fixrouter/gateway/pkg/endpoint/adapters/websocket"
	"github.com/fixrouter/gateway/pkg/errors"
	"github.com/fixrouter/gateway/pkg/logger"
	"github.com/fixrouter/gateway/pkg/telemetry"
)

// AppConfig is the process's full environment-sourced configuration. Nested
// structs are walked by cleanenv, so each sub-config's own env tags apply
// unprefixed.
type AppConfig struct {
	ServiceName       string `env:"SERVICE_NAME" env-default:"fixrouter-gateway"`
	HTTPAddr          string `env:"HTTP_ADDR" env-default:":8080"`
	RoutingConfigPath string `env:"ROUTING_CONFIG_PATH"`
	RouteCacheTTL     time.Duration `env:"ROUTE_CACHE_TTL" env-default:"30s"`

	Logger    logger.Config
	Telemetry telemetry.Config
	Broker         broker.Config
	Resilient      broker.ResilientConfig
	Supervisor     supervisor.Config
	Cache          cache.Config
	CacheResilient cache.ResilientConfig

	Kafka    kafkabroker.Config
	Nats     natsbroker.Config
	RabbitMQ rabbitmqbroker.Config
}

func main() {
	var cfg AppConfig
	if err := config.Load(&cfg); err != nil {
		fmt.Fprintln(os.Stderr, "failed to load configuration:", err)
		os.Exit(1)
	}

	logger.Init(cfg.Logger)

	shutdownTelemetry, err := telemetry.Init(cfg.Telemetry)
	if err != nil {
		logger.L().Error("failed to initialize telemetry", "error", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg); err != nil {
		logger.L().Error("gateway exited with error", "error", err)
		_ = shutdownTelemetry(context.Background())
		os.Exit(1)
	}

	_ = shutdownTelemetry(context.Background())
}

func run(ctx context.Context, cfg AppConfig) error {
	routingCfg, err := routing.Load(routing.ResolvePath(cfg.RoutingConfigPath))
	if err != nil {
		return errors.Wrap(err, "failed to load routing configuration")
	}

	bb, err := buildBroker(cfg)
	if err != nil {
		return errors.Wrap(err, "failed to build broker")
	}

	routeCache, err := buildRouteCache(cfg.Cache, cfg.CacheResilient)
	if err != nil {
		return errors.Wrap(err, "failed to build route cache")
	}
	defer routeCache.Close()
	resolver := routing.NewCachedResolver(routingCfg, routeCache, cfg.RouteCacheTTL)

	endpoints := newEndpointFactories(bb.producer)

	sup := supervisor.New(
		cfg.Supervisor,
		routingCfg,
		bb.producer,
		bb.topicAdmin,
		bb.health,
		bb.consumerFactory,
		endpoints.dial,
		endpoints.listen,
	)

	if err := sup.Start(ctx); err != nil {
		return errors.Wrap(err, "supervisor failed to start")
	}

	httpServer := httpapi.New(cfg.ServiceName, routingCfg, bb.health, resolver)
	httpErrCh := make(chan error, 1)
	go func() {
		httpErrCh <- httpServer.Start(cfg.HTTPAddr)
	}()

	select {
	case <-ctx.Done():
		logger.L().Info("shutdown signal received, draining workers")
	case err := <-httpErrCh:
		if err != nil {
			logger.L().Error("http server exited unexpectedly", "error", err)
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Supervisor.ShutdownDeadline)
	defer cancel()

	var firstErr error
	if err := httpServer.Shutdown(shutdownCtx); err != nil && firstErr == nil {
		firstErr = err
	}
	if err := sup.Stop(shutdownCtx); err != nil && firstErr == nil {
		firstErr = err
	}
	return firstErr
}

// brokerBundle is the constructed broker driver: producer is wrapped with
// the instrumented/resilient decorators for Publish, while topicAdmin/health
// stay bound to the raw adapter since the decorators only implement
// broker.Producer.
type brokerBundle struct {
	producer        broker.Producer
	topicAdmin      broker.TopicAdmin
	health          broker.HealthChecker
	consumerFactory supervisor.ConsumerFactory
}

func buildBroker(cfg AppConfig) (*brokerBundle, error) {
	switch cfg.Broker.Driver {
	case "kafka":
		raw, err := kafkabroker.NewProducer(cfg.Kafka)
		if err != nil {
			return nil, err
		}
		return &brokerBundle{
			producer:   wrapProducer(raw, cfg.Resilient),
			topicAdmin: raw,
			health:     raw,
			consumerFactory: func(groupID, topic string) (broker.Consumer, error) {
				c, err := kafkabroker.NewConsumer(cfg.Kafka, groupID, topic)
				if err != nil {
					return nil, err
				}
				return wrapConsumer(c, cfg.Resilient), nil
			},
		}, nil

	case "nats":
		raw, err := natsbroker.NewProducer(cfg.Nats)
		if err != nil {
			return nil, err
		}
		return &brokerBundle{
			producer:   wrapProducer(raw, cfg.Resilient),
			topicAdmin: raw,
			health:     raw,
			consumerFactory: func(groupID, topic string) (broker.Consumer, error) {
				c, err := natsbroker.NewConsumer(context.Background(), cfg.Nats, raw.JetStream(), topic, groupID)
				if err != nil {
					return nil, err
				}
				return wrapConsumer(c, cfg.Resilient), nil
			},
		}, nil

	case "rabbitmq":
		raw, err := rabbitmqbroker.NewProducer(cfg.RabbitMQ)
		if err != nil {
			return nil, err
		}
		return &brokerBundle{
			producer:   wrapProducer(raw, cfg.Resilient),
			topicAdmin: raw,
			health:     raw,
			consumerFactory: func(groupID, topic string) (broker.Consumer, error) {
				c, err := rabbitmqbroker.NewConsumer(cfg.RabbitMQ, topic)
				if err != nil {
					return nil, err
				}
				return wrapConsumer(c, cfg.Resilient), nil
			},
		}, nil

	default:
		registry := memorybroker.NewRegistry()
		raw := memorybroker.NewProducer(registry)
		return &brokerBundle{
			producer:   wrapProducer(raw, cfg.Resilient),
			topicAdmin: raw,
			health:     raw,
			consumerFactory: func(groupID, topic string) (broker.Consumer, error) {
				return wrapConsumer(memorybroker.NewConsumer(registry, topic), cfg.Resilient), nil
			},
		}, nil
	}
}

func wrapProducer(raw broker.Producer, cfg broker.ResilientConfig) broker.Producer {
	return broker.NewInstrumentedProducer(broker.NewResilientProducer(raw, cfg), "shared")
}

func wrapConsumer(raw broker.Consumer, cfg broker.ResilientConfig) broker.Consumer {
	return broker.NewInstrumentedConsumer(broker.NewResilientConsumer(raw, cfg), "shared")
}

func buildRouteCache(cfg cache.Config, resilientCfg cache.ResilientConfig) (cache.Cache, error) {
	var raw cache.Cache
	if cfg.Driver == "redis" {
		c, err := cacheredis.New(cfg)
		if err != nil {
			return nil, err
		}
		raw = c
	} else {
		raw = cachememory.New()
	}
	return cache.NewInstrumentedCache(cache.NewResilientCache(raw, resilientCfg)), nil
}

// endpointFactories scheme-dispatches destination/listener URIs to the
// pkg/endpoint transport adapters, and to a broker-backed dialer for the
// kafka:/amqp: destination schemes that cross-post to this gateway's own
// broker instead of dialing a peer directly.
type endpointFactories struct {
	directRegistry *directendpoint.Registry
	producer       broker.Producer
}

func newEndpointFactories(producer broker.Producer) *endpointFactories {
	return &endpointFactories{directRegistry: directendpoint.NewRegistry(), producer: producer}
}

func (f *endpointFactories) dial(uri string) (endpoint.Dialer, error) {
	base, query := splitURI(uri)
	switch {
	case strings.HasPrefix(base, "netty:tcp://"):
		addr := strings.TrimPrefix(base, "netty:tcp://")
		return tcpendpoint.NewDialer(tcpendpoint.Config{
			Addr:           addr,
			Timeout:        msParam(query, "requestTimeout", 5000),
			ConnectTimeout: msParam(query, "connectTimeout", 5000),
		}), nil
	case strings.HasPrefix(base, "ws://"), strings.HasPrefix(base, "wss://"):
		return websocketendpoint.NewDialer(websocketendpoint.Config{
			URL:            base,
			ConnectTimeout: msParam(query, "connectTimeout", 5000),
			WriteTimeout:   msParam(query, "requestTimeout", 5000),
		}), nil
	case strings.HasPrefix(base, "direct:"):
		name := strings.TrimPrefix(base, "direct:")
		return directendpoint.NewDialer(f.directRegistry, name), nil
	case strings.HasPrefix(base, "kafka:"):
		return &brokerDialer{producer: f.producer, topic: strings.TrimPrefix(base, "kafka:")}, nil
	case strings.HasPrefix(base, "amqp:"):
		return &brokerDialer{producer: f.producer, topic: strings.TrimPrefix(base, "amqp:")}, nil
	default:
		return nil, errors.InvalidArgument("unsupported destination uri scheme: "+uri, nil)
	}
}

func (f *endpointFactories) listen(uri string) (endpoint.Listener, error) {
	base, _ := splitURI(uri)
	switch {
	case strings.HasPrefix(base, "netty:tcp://"):
		return tcpendpoint.NewListener(strings.TrimPrefix(base, "netty:tcp://"))
	case strings.HasPrefix(base, "ws://"), strings.HasPrefix(base, "wss://"):
		addr, path := splitWebsocketAddr(base)
		return websocketendpoint.NewListener(addr, path), nil
	case strings.HasPrefix(base, "direct:"):
		name := strings.TrimPrefix(base, "direct:")
		return directendpoint.NewListener(f.directRegistry, name), nil
	default:
		return nil, errors.InvalidArgument("unsupported listener uri scheme: "+uri, nil)
	}
}

func splitURI(uri string) (base string, query url.Values) {
	if i := strings.IndexByte(uri, '?'); i >= 0 {
		base = uri[:i]
		query, _ = url.ParseQuery(uri[i+1:])
		return base, query
	}
	return uri, url.Values{}
}

func msParam(q url.Values, key string, def int) time.Duration {
	v := q.Get(key)
	if v == "" {
		return time.Duration(def) * time.Millisecond
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return time.Duration(def) * time.Millisecond
	}
	return time.Duration(n) * time.Millisecond
}

// splitWebsocketAddr pulls the host:port and path out of a ws(s):// listener
// URI, defaulting to "/" when no path segment is present.
func splitWebsocketAddr(base string) (addr, path string) {
	rest := base
	rest = strings.TrimPrefix(rest, "wss://")
	rest = strings.TrimPrefix(rest, "ws://")
	if i := strings.IndexByte(rest, '/'); i >= 0 {
		return rest[:i], rest[i:]
	}
	return rest, "/"
}

// brokerDialer adapts a broker.Producer to endpoint.Dialer, for destination
// URIs (kafka:<topic>, amqp:<queue>) that publish directly to this
// gateway's broker rather than dialing a transport peer.
type brokerDialer struct {
	producer broker.Producer
	topic    string
}

func (d *brokerDialer) Send(ctx context.Context, payload []byte) error {
	return d.producer.Publish(ctx, &broker.Record{Topic: d.topic, Value: payload})
}

func (d *brokerDialer) Close() error { return nil }

var _ endpoint.Dialer = (*brokerDialer)(nil)
