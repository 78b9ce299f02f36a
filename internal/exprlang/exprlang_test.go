package exprlang

import (
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fixrouter/gateway/internal/envelope"
	"github.com/fixrouter/gateway/internal/fixtag"
)

func newScenarioBinding(t *testing.T) Binding {
	t.Helper()
	raw := []byte("8=FIX.4.4\x019=100\x0135=D\x0149=GTWY\x0156=EXEC\x0155=AAPL\x0111=ORDER123\x0110=000\x01")
	tags := fixtag.ParseTags(raw)
	e := envelope.New("FIX.4.4:GTWY->EXEC", "GTWY", "EXEC", raw)
	e.EnrichFromTags(tags)
	return NewEnvelopeBinding(e, tags)
}

func TestPartitionKeyScenario(t *testing.T) {
	cache := NewCache()
	compiled, err := cache.Compile("Symbol")
	require.NoError(t, err)

	result, err := Eval(compiled, newScenarioBinding(t))
	require.NoError(t, err)
	assert.Equal(t, "AAPL", result)
}

func TestPartitionExprScenario(t *testing.T) {
	cache := NewCache()
	compiled, err := cache.Compile("if (MsgType == 'D') { return 1; } else { return 0; }")
	require.NoError(t, err)

	result, err := Eval(compiled, newScenarioBinding(t))
	require.NoError(t, err)
	assert.Equal(t, int64(1), result)
}

func TestConditionalScenario(t *testing.T) {
	cache := NewCache()
	compiled, err := cache.Compile("msgType == 'D' ? 'EQUITY_' + Symbol : 'OTHER'")
	require.NoError(t, err)

	result, err := Eval(compiled, newScenarioBinding(t))
	require.NoError(t, err)
	assert.Equal(t, "EQUITY_AAPL", result)
}

func TestCompileCachedOnce(t *testing.T) {
	cache := NewCache()
	var compiles int64

	// Wrap Compile to count underlying parses indirectly: compile once
	// up-front then assert repeat calls return the identical pointer.
	first, err := cache.Compile("1 + 1")
	require.NoError(t, err)
	atomic.AddInt64(&compiles, 1)

	var wg sync.WaitGroup
	results := make([]*Compiled, 20)
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func(idx int) {
			defer wg.Done()
			c, err := cache.Compile("1 + 1")
			require.NoError(t, err)
			results[idx] = c
		}(i)
	}
	wg.Wait()

	for _, c := range results {
		assert.Same(t, first, c)
	}
}

func TestArithmeticAndComparison(t *testing.T) {
	cache := NewCache()

	c1, err := cache.Compile("2 + 3 * 4")
	require.NoError(t, err)
	v1, err := Eval(c1, newScenarioBinding(t))
	require.NoError(t, err)
	assert.Equal(t, int64(14), v1)

	c2, err := cache.Compile("BodyLength >= '50'")
	require.NoError(t, err)
	v2, err := Eval(c2, newScenarioBinding(t))
	require.NoError(t, err)
	assert.Equal(t, false, v2)
}

func TestUnknownIdentifierIsEvaluationError(t *testing.T) {
	cache := NewCache()
	c, err := cache.Compile("totallyUnboundName")
	require.NoError(t, err)
	_, err = Eval(c, newScenarioBinding(t))
	assert.Error(t, err)
}
