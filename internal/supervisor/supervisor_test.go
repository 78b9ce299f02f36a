package supervisor

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/fixrouter/gateway/internal/envelope"
	"github.com/fixrouter/gateway/internal/routing"
	"github.com/fixrouter/gateway/pkg/broker"
	memorybroker "github.com/fixrouter/gateway/pkg/broker/adapters/memory"
	"github.com/fixrouter/gateway/pkg/endpoint"
	directendpoint "github.com/fixrouter/gateway/pkg/endpoint/adapters/direct"
	"github.com/fixrouter/gateway/pkg/test"
)

type supervisorSuite struct {
	test.Suite

	registry         *memorybroker.Registry
	endpointRegistry *directendpoint.Registry
	producer         *memorybroker.Producer
	sup              *Supervisor
}

func (s *supervisorSuite) SetupTest() {
	s.Suite.SetupTest()

	s.registry = memorybroker.NewRegistry()
	s.producer = memorybroker.NewProducer(s.registry)
	s.endpointRegistry = directendpoint.NewRegistry()

	routingCfg := &routing.Config{
		Routes: []routing.Route{
			{
				RouteID:      "IN1",
				Direction:    routing.DirectionInput,
				SenderCompID: "GTWY",
				TargetCompID: "EXEC",
				InputTopic:   "fix.GTWY.EXEC.input",
				DestinationConfigs: []routing.DestinationConfig{
					{URI: "direct:exec-out", Timeout: time.Second},
				},
			},
			{
				RouteID:      "OUT1",
				Direction:    routing.DirectionOutput,
				SenderCompID: "EXEC",
				TargetCompID: "GTWY",
				OutputTopic:  "fix.EXEC.GTWY.output",
				ListenerURIs: []string{"direct:exec-in"},
			},
		},
	}

	consumerFactory := func(groupID, topic string) (broker.Consumer, error) {
		return memorybroker.NewConsumer(s.registry, topic), nil
	}
	dialFactory := func(uri string) (endpoint.Dialer, error) {
		return directendpoint.NewDialer(s.endpointRegistry, "exec-out"), nil
	}
	listenFactory := func(uri string) (endpoint.Listener, error) {
		return directendpoint.NewListener(s.endpointRegistry, "exec-in"), nil
	}

	s.sup = New(
		Config{ShutdownDeadline: time.Second, StartupProbeWindow: 0, StartupProbeInterval: time.Millisecond},
		routingCfg, s.producer, nil, nil,
		consumerFactory, dialFactory, listenFactory,
	)

	s.Require().NoError(s.sup.Start(s.Ctx))
}

func (s *supervisorSuite) TestInputRouteDispatchesToDestination() {
	e := envelope.New("FIX.4.4:GTWY->EXEC", "GTWY", "EXEC", []byte("8=FIX.4.4\x0135=D\x01"))
	payload, err := envelope.EncodeJSON(e)
	s.Require().NoError(err)
	s.Require().NoError(s.producer.Publish(s.Ctx, &broker.Record{Topic: "fix.GTWY.EXEC.input", Value: payload}))

	execOutListener := directendpoint.NewListener(s.endpointRegistry, "exec-out")
	ctx, cancel := context.WithTimeout(s.Ctx, 500*time.Millisecond)
	defer cancel()
	received, err := execOutListener.Accept(ctx)
	s.Require().NoError(err)
	s.Contains(string(received), "35=D")
}

func (s *supervisorSuite) TestOutputRouteListenerPublishesToOutputTopic() {
	ctx, cancel := context.WithTimeout(s.Ctx, 500*time.Millisecond)
	defer cancel()

	inDialer := directendpoint.NewDialer(s.endpointRegistry, "exec-in")
	s.Require().NoError(inDialer.Send(ctx, []byte("8=FIX.4.4\x0135=8\x01")))

	outConsumer := memorybroker.NewConsumer(s.registry, "fix.EXEC.GTWY.output")
	rec, err := outConsumer.Poll(ctx)
	s.Require().NoError(err)
	var decoded map[string]any
	s.Require().NoError(json.Unmarshal(rec.Value, &decoded))
	s.Equal("8", decoded["msgType"])
}

func (s *supervisorSuite) TearDownTest() {
	s.Require().NoError(s.sup.Stop(context.Background()))
}

func TestSupervisorSuite(t *testing.T) {
	test.Run(t, new(supervisorSuite))
}
