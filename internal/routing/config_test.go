package routing

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "routing-config.json")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

func TestLoadSampleRoute(t *testing.T) {
	path := writeConfig(t, `{ "routes": [
	  { "routeId": "R1", "type": "INPUT", "senderCompId": "GTWY", "targetCompId": "EXEC",
	    "inputTopic": "fix.GTWY.EXEC.input",
	    "destinationConfigs": [
	      { "uri": "netty:tcp://localhost:9999", "maxRetries": 3, "retryDelay": 1000,
	        "msgTypes": ["D","8"], "stopOnException": false }
	    ] } ] }`)

	cfg, err := Load(path)
	require.NoError(t, err)
	require.Len(t, cfg.Routes, 1)

	r := cfg.Routes[0]
	assert.Equal(t, "R1", r.RouteID)
	assert.Equal(t, DirectionInput, r.Direction)
	assert.Equal(t, 1, r.MaxRedeliveries)
	assert.Equal(t, "fix-dead-letter", r.DeadLetterTopic)

	d := r.DestinationConfigs[0]
	assert.Equal(t, 10000, d.TimeoutMs)
	assert.Equal(t, 5000, d.ConnectTimeoutMs)
	assert.Equal(t, 5000, d.RequestTimeoutMs)
	assert.Equal(t, "dead-letter-R1-netty-tcp-localhost-9999", d.DeadLetterTopic)
}

func TestAutoDeriveTopics(t *testing.T) {
	path := writeConfig(t, `{ "routes": [
	  { "routeId": "R2", "type": "OUTPUT", "senderCompId": "GTWY", "targetCompId": "EXEC" } ] }`)

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "fix.GTWY.EXEC.output", cfg.Routes[0].OutputTopic)
}

func TestRejectsRouteWithoutID(t *testing.T) {
	path := writeConfig(t, `{ "routes": [ { "type": "INPUT", "destinationConfigs": [{"uri":"direct:x"}] } ] }`)
	_, err := Load(path)
	assert.Error(t, err)
}

func TestRejectsInputRouteWithoutDestinations(t *testing.T) {
	path := writeConfig(t, `{ "routes": [ { "routeId": "R3", "type": "INPUT", "senderCompId": "A", "targetCompId": "B" } ] }`)
	_, err := Load(path)
	assert.Error(t, err)
}

func TestPartitionExpressionPrecompiled(t *testing.T) {
	path := writeConfig(t, `{ "routes": [
	  { "routeId": "R4", "type": "OUTPUT", "senderCompId": "GTWY", "targetCompId": "EXEC",
	    "partitionStrategy": "KEY", "partitionExpression": "Symbol" } ] }`)

	cfg, err := Load(path)
	require.NoError(t, err)
	compiled, err := cfg.ExprCache().Compile("Symbol")
	require.NoError(t, err)
	assert.NotNil(t, compiled)
}

func TestResolvePathPriority(t *testing.T) {
	assert.Equal(t, "/explicit/path.json", ResolvePath("/explicit/path.json"))

	t.Setenv("FIX_ROUTING_CONFIG_PATH", "/env/path.json")
	assert.Equal(t, "/env/path.json", ResolvePath(""))
}

func TestDestinationMatchesMsgType(t *testing.T) {
	all := DestinationConfig{}
	assert.True(t, all.MatchesMsgType("D"))

	star := DestinationConfig{MsgTypes: []string{"*"}}
	assert.True(t, star.MatchesMsgType("D"))

	filtered := DestinationConfig{MsgTypes: []string{"8"}}
	assert.False(t, filtered.MatchesMsgType("D"))
	assert.True(t, filtered.MatchesMsgType("8"))
}

func TestNormalisedID(t *testing.T) {
	r := Route{RouteID: "Route One!"}
	assert.Equal(t, "route-one-", r.NormalisedID())
}
