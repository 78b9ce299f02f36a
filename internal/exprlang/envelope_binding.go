package exprlang

import (
	"strconv"

	"github.com/fixrouter/gateway/internal/envelope"
	"github.com/fixrouter/gateway/internal/fixtag"
)

// EnvelopeBinding exposes an envelope and an explicit tag map to an
// expression per §4.3: every envelope field by its JSON name, the whole
// "envelope" object, every (tag, value) by its symbolic name (or Tag<N>
// when unknown) and by Tag<N> regardless, and "parsedTags" indexed by
// integer tag. When both the envelope's own ParsedTags and an explicit tag
// map are supplied and non-empty, the envelope's tags take precedence.
type EnvelopeBinding struct {
	Envelope *envelope.Envelope
	Tags     map[int]string
}

func NewEnvelopeBinding(e *envelope.Envelope, tags map[int]string) *EnvelopeBinding {
	return &EnvelopeBinding{Envelope: e, Tags: tags}
}

func (b *EnvelopeBinding) effectiveTags() map[int]string {
	if len(b.Envelope.ParsedTags) > 0 {
		return b.Envelope.ParsedTags
	}
	return b.Tags
}

func (b *EnvelopeBinding) Lookup(name string) (any, bool) {
	switch name {
	case "sessionId":
		return b.Envelope.SessionID, true
	case "senderCompId":
		return b.Envelope.SenderCompID, true
	case "targetCompId":
		return b.Envelope.TargetCompID, true
	case "msgType":
		return b.Envelope.MsgType, true
	case "clOrdID":
		return b.Envelope.ClOrdID, true
	case "symbol":
		return b.Envelope.Symbol, true
	case "side":
		return b.Envelope.Side, true
	case "orderQty":
		return b.Envelope.OrderQty, true
	case "price":
		return b.Envelope.Price, true
	case "rawMessage":
		return string(b.Envelope.RawMessage), true
	case "createdTimestamp":
		return b.Envelope.CreatedTimestamp.Format("2006-01-02T15:04:05Z07:00"), true
	case "envelope":
		return b, true
	case "parsedTags":
		return parsedTagsMap(b.effectiveTags()), true
	}

	tags := b.effectiveTags()

	// Symbolic tag names (Symbol, MsgType, SenderCompID, ...).
	for tag, symbolicName := range fixtag.SymbolicNames {
		if symbolicName == name {
			if v, ok := tags[tag]; ok {
				return v, true
			}
			return nil, true
		}
	}

	// Tag<N> fallback, available for every tag regardless of a symbolic name.
	if tag, ok := parseTagN(name); ok {
		if v, ok := tags[tag]; ok {
			return v, true
		}
		return nil, true
	}

	return nil, false
}

func parsedTagsMap(tags map[int]string) map[string]any {
	out := make(map[string]any, len(tags))
	for tag, val := range tags {
		out[strconv.Itoa(tag)] = val
	}
	return out
}

func parseTagN(name string) (int, bool) {
	const prefix = "Tag"
	if len(name) <= len(prefix) || name[:len(prefix)] != prefix {
		return 0, false
	}
	n, err := strconv.Atoi(name[len(prefix):])
	if err != nil {
		return 0, false
	}
	return n, true
}

var _ Binding = (*EnvelopeBinding)(nil)
