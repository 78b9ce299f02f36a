// Package routing holds the typed route table the gateway loads once at
// startup: destination policies, partitioning strategy, and the
// error-handling knobs C5/C6/C7 read at runtime. Writes occur only at load;
// reads are many-reader/no-lock thereafter.
package routing

import "time"

// Direction is a route's data-flow direction.
type Direction string

const (
	DirectionInput  Direction = "INPUT"
	DirectionOutput Direction = "OUTPUT"
)

// PartitionStrategy selects how an OUTPUT route assigns a broker partition
// or key to an outgoing record.
type PartitionStrategy string

const (
	PartitionNone PartitionStrategy = "NONE"
	PartitionKey  PartitionStrategy = "KEY"
	PartitionExpr PartitionStrategy = "EXPR"
)

// DestinationConfig is one send target of an INPUT route's dispatcher.
type DestinationConfig struct {
	URI                string            `json:"uri" validate:"required,destination_uri"`
	MaxRetries         int               `json:"maxRetries"`
	RetryDelay         time.Duration     `json:"-"`
	RetryDelayMs       int               `json:"retryDelay"`
	Timeout            time.Duration     `json:"-"`
	TimeoutMs          int               `json:"timeout"`
	ConnectTimeoutMs   int               `json:"connectTimeout,omitempty"`
	RequestTimeoutMs   int               `json:"requestTimeout,omitempty"`
	DeadLetterTopic    string            `json:"deadLetterTopic,omitempty"`
	EndpointParameters map[string]string `json:"endpointParameters,omitempty"`
	ParallelProcessing bool              `json:"parallelProcessing,omitempty"`
	StopOnException    bool              `json:"stopOnException,omitempty"`
	MsgTypes           []string          `json:"msgTypes,omitempty"`
}

// MatchesMsgType reports whether this destination accepts msgType, per §4.5
// rule 1: empty list or a list containing "*" means "all".
func (d *DestinationConfig) MatchesMsgType(msgType string) bool {
	if len(d.MsgTypes) == 0 {
		return true
	}
	for _, t := range d.MsgTypes {
		if t == "*" || t == msgType {
			return true
		}
	}
	return false
}

// Route is one configured routing rule, immutable after load.
type Route struct {
	RouteID      string      `json:"routeId" validate:"required"`
	Direction    Direction   `json:"type" validate:"required,oneof=INPUT OUTPUT"`
	SenderCompID string      `json:"senderCompId"`
	TargetCompID string      `json:"targetCompId"`
	InputTopic   string      `json:"inputTopic,omitempty"`
	OutputTopic  string      `json:"outputTopic,omitempty"`

	DestinationConfigs []DestinationConfig `json:"destinationConfigs" validate:"dive"`

	MaxRedeliveries   int           `json:"maxRedeliveries,omitempty"`
	RedeliveryDelayMs int           `json:"redeliveryDelay,omitempty"`
	RedeliveryDelay   time.Duration `json:"-"`
	DeadLetterTopic   string        `json:"deadLetterTopic,omitempty"`

	PartitionStrategy  PartitionStrategy `json:"partitionStrategy,omitempty"`
	PartitionExpr      string            `json:"partitionExpression,omitempty"`

	ListenerURIs []string `json:"listenerUris,omitempty"`
}

// NormalisedID returns RouteID lowered and with any character outside
// [a-z0-9-] replaced by '-', for building the consumer-group id
// "fix-router-<normalisedRouteId>" (§4.6).
func (r *Route) NormalisedID() string {
	out := make([]rune, 0, len(r.RouteID))
	for _, c := range r.RouteID {
		switch {
		case c >= 'a' && c <= 'z', c >= '0' && c <= '9', c == '-':
			out = append(out, c)
		case c >= 'A' && c <= 'Z':
			out = append(out, c+('a'-'A'))
		default:
			out = append(out, '-')
		}
	}
	return string(out)
}
