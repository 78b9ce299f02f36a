package envelope

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fixrouter/gateway/internal/fixtag"
)

func TestJSONRoundTrip(t *testing.T) {
	e := &Envelope{
		SessionID:        "FIX.4.4:GTWY->EXEC",
		SenderCompID:     "GTWY",
		TargetCompID:     "EXEC",
		MsgType:          "D",
		ClOrdID:          "ORDER123",
		CreatedTimestamp: time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC),
		RawMessage:       []byte("8=FIX.4.4\x0135=D\x01"),
	}

	data, err := EncodeJSON(e)
	require.NoError(t, err)
	assert.NotContains(t, string(data), "parsedTags")
	assert.NotContains(t, string(data), "symbol")

	decoded, err := DecodeJSON(data)
	require.NoError(t, err)
	assert.Equal(t, e.SessionID, decoded.SessionID)
	assert.Equal(t, e.SenderCompID, decoded.SenderCompID)
	assert.Equal(t, e.TargetCompID, decoded.TargetCompID)
	assert.Equal(t, e.MsgType, decoded.MsgType)
	assert.Equal(t, e.ClOrdID, decoded.ClOrdID)
	assert.True(t, e.CreatedTimestamp.Equal(decoded.CreatedTimestamp))
	assert.Equal(t, e.RawMessage, decoded.RawMessage)
}

func TestEnrichFromTagsDerivesTransientFields(t *testing.T) {
	raw := []byte("8=FIX.4.4\x0135=D\x0155=AAPL\x0154=1\x0138=100\x0144=150.5\x0111=ORDER123\x01")
	tags := fixtag.ParseTags(raw)

	e := New("FIX.4.4:GTWY->EXEC", "GTWY", "EXEC", raw)
	e.EnrichFromTags(tags)

	assert.Equal(t, "D", e.MsgType)
	assert.Equal(t, "ORDER123", e.ClOrdID)
	assert.Equal(t, "AAPL", e.Symbol)
	assert.Equal(t, "1", e.Side)
	assert.Equal(t, "100", e.OrderQty)
	assert.Equal(t, "150.5", e.Price)
}

func TestDecodeTextPreservesTrailingSOH(t *testing.T) {
	line := "MessageEnvelope(sessionId=FIX.4.4:GTWY->EXEC, senderCompId=GTWY, targetCompId=EXEC, msgType=D, createdTimestamp=2026-01-02T03:04:05Z, rawMessage=8=FIX.4.4\x0135=D\x01)"

	e, err := DecodeText(line)
	require.NoError(t, err)
	assert.Equal(t, "GTWY", e.SenderCompID)
	assert.Equal(t, "EXEC", e.TargetCompID)
	assert.True(t, len(e.RawMessage) > 0)
	assert.Equal(t, byte(0x01), e.RawMessage[len(e.RawMessage)-1])
}

func TestDecodeTextBadTimestampFallsBackToNow(t *testing.T) {
	line := "MessageEnvelope(sessionId=FIX.4.4:GTWY->EXEC, senderCompId=GTWY, targetCompId=EXEC, msgType=D, createdTimestamp=not-a-time, rawMessage=8=FIX.4.4\x01)"

	before := time.Now().UTC()
	e, err := DecodeText(line)
	require.NoError(t, err)
	assert.True(t, e.CreatedTimestamp.After(before.Add(-time.Minute)))
}

func TestSessionID(t *testing.T) {
	assert.Equal(t, "FIX.4.4:GTWY->EXEC", SessionID("4.4", "GTWY", "EXEC"))
}
