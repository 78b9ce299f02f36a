package fixtag

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseTags(t *testing.T) {
	raw := []byte("8=FIX.4.4\x019=100\x0135=D\x0149=GTWY\x0156=EXEC\x0155=AAPL\x0111=ORDER123\x0110=000\x01")
	tags := ParseTags(raw)

	require.Equal(t, "FIX.4.4", tags[8])
	assert.Equal(t, "100", tags[9])
	assert.Equal(t, "D", tags[35])
	assert.Equal(t, "GTWY", tags[49])
	assert.Equal(t, "EXEC", tags[56])
	assert.Equal(t, "AAPL", tags[55])
	assert.Equal(t, "ORDER123", tags[11])
	assert.Equal(t, "000", tags[10])
}

func TestParseTagsSkipsMalformed(t *testing.T) {
	raw := []byte("8=FIX.4.4\x01garbage\x01notanumber=x\x0135=D\x01")
	tags := ParseTags(raw)

	assert.Equal(t, "FIX.4.4", tags[8])
	assert.Equal(t, "D", tags[35])
	assert.Len(t, tags, 2)
}

func TestParseTagsDuplicateLastWins(t *testing.T) {
	raw := []byte("35=D\x0135=8\x01")
	tags := ParseTags(raw)
	assert.Equal(t, "8", tags[35])
}

func TestEnsureTrailingSOH(t *testing.T) {
	assert.Equal(t, []byte("35=D\x01"), EnsureTrailingSOH([]byte("35=D")))
	assert.Equal(t, []byte("35=D\x01"), EnsureTrailingSOH([]byte("35=D\x01")))
	assert.Equal(t, []byte{}, EnsureTrailingSOH([]byte{}))
}

func TestEnsureTrailingSOHIdempotent(t *testing.T) {
	once := EnsureTrailingSOH([]byte("35=D"))
	twice := EnsureTrailingSOH(once)
	assert.Equal(t, once, twice)
}

func TestUnescapeUnicode(t *testing.T) {
	assert.Equal(t, "AAPL", UnescapeUnicode("AAPL"))
	assert.Equal(t, "A", UnescapeUnicode(`A`))
	assert.Equal(t, `\uZZZZ`, UnescapeUnicode(`\uZZZZ`))
}

func TestProcessRawMessageIdempotent(t *testing.T) {
	raw := []byte("8=FIX.4.4\x0135=D")
	once := ProcessRawMessage(raw)
	twice := ProcessRawMessage(once)
	assert.Equal(t, once, twice)
}

func TestIsValid(t *testing.T) {
	assert.True(t, IsValid([]byte("8=FIX.4.4\x0135=D\x01")))
	assert.False(t, IsValid([]byte("not a fix message")))
	assert.False(t, IsValid([]byte("8=FIX.4.4 no soh here")))
}
