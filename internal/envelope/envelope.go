// Package envelope defines the canonical in-memory FIX record the gateway
// moves between the broker and endpoints, and its two accepted wire forms:
// JSON (the only form emitted on egress) and a single-line text form kept
// for backwards compatibility with older producers.
package envelope

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/fixrouter/gateway/internal/fixtag"
)

// ErrorInfo is the optional error triple attached when an envelope is
// diverted to a dead-letter topic.
type ErrorInfo struct {
	ErrorMessage   string    `json:"errorMessage,omitempty"`
	ErrorType      string    `json:"errorType,omitempty"`
	ErrorTimestamp time.Time `json:"errorTimestamp,omitempty"`
	ErrorRouteID   string    `json:"errorRouteId,omitempty"`
}

// Envelope is the canonical record. Symbol/Side/OrderQty/Price and
// ParsedTags are derived from RawMessage after decode and are never present
// on the wire.
type Envelope struct {
	SessionID        string    `json:"sessionId"`
	SenderCompID     string    `json:"senderCompId"`
	TargetCompID     string    `json:"targetCompId"`
	MsgType          string    `json:"msgType"`
	ClOrdID          string    `json:"clOrdID,omitempty"`
	CreatedTimestamp time.Time `json:"createdTimestamp"`
	RawMessage       []byte    `json:"rawMessage"`

	Symbol   string `json:"-"`
	Side     string `json:"-"`
	OrderQty string `json:"-"`
	Price    string `json:"-"`

	ParsedTags map[int]string `json:"-"`

	*ErrorInfo `json:"-"`
}

// New constructs an envelope, defaulting CreatedTimestamp to now when zero.
func New(sessionID, senderCompID, targetCompID string, raw []byte) *Envelope {
	return &Envelope{
		SessionID:        sessionID,
		SenderCompID:     senderCompID,
		TargetCompID:     targetCompID,
		RawMessage:       raw,
		CreatedTimestamp: time.Now().UTC(),
	}
}

// EnrichFromTags sets ParsedTags and fills MsgType/ClOrdID from a tag map
// already parsed off RawMessage (internal/fixtag), keeping a MsgType or
// ClOrdID the caller already set to a non-empty value. Symbol/Side/OrderQty/
// Price are always taken from the tags.
func (e *Envelope) EnrichFromTags(tags map[int]string) {
	e.ParsedTags = tags
	if e.MsgType == "" {
		e.MsgType = tags[fixtag.TagMsgType]
	}
	if e.ClOrdID == "" {
		e.ClOrdID = tags[fixtag.TagClOrdID]
	}
	e.Symbol = tags[fixtag.TagSymbol]
	e.Side = tags[fixtag.TagSide]
	e.OrderQty = tags[fixtag.TagOrderQty]
	e.Price = tags[fixtag.TagPrice]
}

// wireEnvelope is the JSON shape: only the serialised fields, never the
// transient/derived ones.
type wireEnvelope struct {
	SessionID        string     `json:"sessionId"`
	SenderCompID     string     `json:"senderCompId"`
	TargetCompID     string     `json:"targetCompId"`
	MsgType          string     `json:"msgType"`
	ClOrdID          string     `json:"clOrdID,omitempty"`
	CreatedTimestamp time.Time  `json:"createdTimestamp"`
	RawMessage       string     `json:"rawMessage"`
	ErrorMessage     string     `json:"errorMessage,omitempty"`
	ErrorType        string     `json:"errorType,omitempty"`
	ErrorTimestamp   *time.Time `json:"errorTimestamp,omitempty"`
	ErrorRouteID     string     `json:"errorRouteId,omitempty"`
}

// EncodeJSON serialises e to the wire JSON form. Transient fields
// (parsedTags, symbol, side, orderQty, price) are suppressed.
func EncodeJSON(e *Envelope) ([]byte, error) {
	w := wireEnvelope{
		SessionID:        e.SessionID,
		SenderCompID:     e.SenderCompID,
		TargetCompID:     e.TargetCompID,
		MsgType:          e.MsgType,
		ClOrdID:          e.ClOrdID,
		CreatedTimestamp: e.CreatedTimestamp,
		RawMessage:       string(e.RawMessage),
	}
	if e.ErrorInfo != nil {
		w.ErrorMessage = e.ErrorMessage
		w.ErrorType = e.ErrorType
		if !e.ErrorTimestamp.IsZero() {
			ts := e.ErrorTimestamp
			w.ErrorTimestamp = &ts
		}
		w.ErrorRouteID = e.ErrorRouteID
	}
	return json.Marshal(w)
}

// DecodeJSON parses the wire JSON form into an Envelope. Derived fields are
// left empty; callers run EnrichFromTags afterwards.
func DecodeJSON(data []byte) (*Envelope, error) {
	var w wireEnvelope
	if err := json.Unmarshal(data, &w); err != nil {
		return nil, fmt.Errorf("decode envelope json: %w", err)
	}
	e := &Envelope{
		SessionID:        w.SessionID,
		SenderCompID:     w.SenderCompID,
		TargetCompID:     w.TargetCompID,
		MsgType:          w.MsgType,
		ClOrdID:          w.ClOrdID,
		CreatedTimestamp: w.CreatedTimestamp,
		RawMessage:       []byte(w.RawMessage),
	}
	if w.ErrorMessage != "" || w.ErrorType != "" || w.ErrorRouteID != "" || w.ErrorTimestamp != nil {
		info := &ErrorInfo{ErrorMessage: w.ErrorMessage, ErrorType: w.ErrorType, ErrorRouteID: w.ErrorRouteID}
		if w.ErrorTimestamp != nil {
			info.ErrorTimestamp = *w.ErrorTimestamp
		}
		e.ErrorInfo = info
	}
	return e, nil
}

// textPrefix is the marker DecodeText requires at the start of the line.
const textPrefix = "MessageEnvelope("

// EncodeText renders e in the single-line "MessageEnvelope(k=v, ...)" form.
func EncodeText(e *Envelope) string {
	var b strings.Builder
	b.WriteString(textPrefix)
	fmt.Fprintf(&b, "sessionId=%s, senderCompId=%s, targetCompId=%s, msgType=%s, createdTimestamp=%s, rawMessage=%s",
		e.SessionID, e.SenderCompID, e.TargetCompID, e.MsgType,
		e.CreatedTimestamp.UTC().Format(time.RFC3339), string(e.RawMessage))
	if e.ClOrdID != "" {
		fmt.Fprintf(&b, ", clOrdID=%s", e.ClOrdID)
	}
	b.WriteString(")")
	return b.String()
}

// DecodeText parses the "MessageEnvelope(k=v, ...)" text form. rawMessage is
// taken verbatim, including its trailing SOH, and is never trimmed. An
// unparseable createdTimestamp falls back to now.
func DecodeText(line string) (*Envelope, error) {
	line = strings.TrimSpace(line)
	if !strings.HasPrefix(line, textPrefix) || !strings.HasSuffix(line, ")") {
		return nil, fmt.Errorf("not a MessageEnvelope text line")
	}
	body := line[len(textPrefix) : len(line)-1]

	fields := splitTopLevelCommas(body)
	e := &Envelope{}
	var haveTimestamp bool
	for _, f := range fields {
		eq := strings.IndexByte(f, '=')
		if eq < 0 {
			continue
		}
		key := strings.TrimSpace(f[:eq])
		val := f[eq+1:]
		switch key {
		case "sessionId":
			e.SessionID = val
		case "senderCompId":
			e.SenderCompID = val
		case "targetCompId":
			e.TargetCompID = val
		case "msgType":
			e.MsgType = val
		case "clOrdID":
			e.ClOrdID = val
		case "createdTimestamp":
			if ts, err := time.Parse(time.RFC3339, val); err == nil {
				e.CreatedTimestamp = ts
				haveTimestamp = true
			}
		case "rawMessage":
			e.RawMessage = []byte(val)
		}
	}
	if !haveTimestamp {
		e.CreatedTimestamp = time.Now().UTC()
	}
	if e.SessionID == "" && e.SenderCompID == "" && e.TargetCompID == "" {
		return nil, fmt.Errorf("MessageEnvelope line missing required fields")
	}
	return e, nil
}

// splitTopLevelCommas splits on ", " but keeps rawMessage's SOH-delimited
// payload intact since it contains no commas itself.
func splitTopLevelCommas(body string) []string {
	return strings.Split(body, ", ")
}

// SessionID builds the "FIX.<v>:<sender>-><target>" form from §3/§4.7.
func SessionID(version, sender, target string) string {
	return "FIX." + version + ":" + sender + "->" + target
}
