package listener

import (
	"context"
	"encoding/json"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fixrouter/gateway/internal/routing"
	memorybroker "github.com/fixrouter/gateway/pkg/broker/adapters/memory"
	directendpoint "github.com/fixrouter/gateway/pkg/endpoint/adapters/direct"
)

func TestWorkerPublishesEnvelopeToOutputTopic(t *testing.T) {
	registry := memorybroker.NewRegistry()
	producer := memorybroker.NewProducer(registry)
	consumer := memorybroker.NewConsumer(registry, "fix.EXEC.GTWY.output")

	endpointRegistry := directendpoint.NewRegistry()
	l := directendpoint.NewListener(endpointRegistry, "in")
	dialer := directendpoint.NewDialer(endpointRegistry, "in")

	route := &routing.Route{
		RouteID:      "R1",
		Direction:    routing.DirectionOutput,
		SenderCompID: "EXEC",
		TargetCompID: "GTWY",
		OutputTopic:  "fix.EXEC.GTWY.output",
	}

	w := NewWorker(route, nil, l, producer)

	ctx, cancel := context.WithTimeout(context.Background(), 200*time.Millisecond)
	defer cancel()

	go func() { _ = w.Run(ctx) }()

	require.NoError(t, dialer.Send(ctx, []byte("8=FIX.4.4\x0135=D\x0155=AAPL\x01")))

	rec, err := consumer.Poll(ctx)
	require.NoError(t, err)
	require.NotNil(t, rec)

	var decoded map[string]any
	require.NoError(t, json.Unmarshal(rec.Value, &decoded))
	assert.Equal(t, "D", decoded["msgType"])
	assert.Equal(t, "FIX.4.4:EXEC->GTWY", decoded["sessionId"])
	assert.Contains(t, decoded["rawMessage"], "55=AAPL")
}

func TestApplyPartitionStrategyKey(t *testing.T) {
	registry := memorybroker.NewRegistry()
	producer := memorybroker.NewProducer(registry)

	loaded, err := routing.Load(writeRoutingConfigFixture(t))
	require.NoError(t, err)

	w := NewWorker(&loaded.Routes[0], loaded, nil, producer)

	ctx := context.Background()
	w.processPayload(ctx, []byte("8=FIX.4.4\x0135=D\x0155=AAPL\x01"))

	rec, err := memorybroker.NewConsumer(registry, "fix.EXEC.GTWY.output").Poll(ctx)
	require.NoError(t, err)
	assert.Equal(t, "AAPL", string(rec.Key))
}

// writeRoutingConfigFixture writes a minimal single-route OUTPUT config with
// a KEY partition strategy on "Symbol" (route R2), and returns its path.
func writeRoutingConfigFixture(t *testing.T) string {
	t.Helper()
	path := t.TempDir() + "/routes.json"
	doc := `{
		"routes": [
			{
				"routeId": "R2",
				"type": "OUTPUT",
				"senderCompId": "EXEC",
				"targetCompId": "GTWY",
				"outputTopic": "fix.EXEC.GTWY.output",
				"partitionStrategy": "KEY",
				"partitionExpression": "Symbol"
			}
		]
	}`
	require.NoError(t, os.WriteFile(path, []byte(doc), 0o644))
	return path
}
