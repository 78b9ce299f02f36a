// Package listener implements the output listener loop (C7): for each
// OUTPUT route and each configured listener endpoint, accept inbound FIX
// payloads, wrap them in an envelope, apply the partitioner, and publish to
// the broker topic.
package listener

import (
	"context"
	"fmt"
	"strconv"

	"github.com/fixrouter/gateway/internal/envelope"
	"github.com/fixrouter/gateway/internal/exprlang"
	"github.com/fixrouter/gateway/internal/fixtag"
	"github.com/fixrouter/gateway/internal/routing"
	"github.com/fixrouter/gateway/pkg/broker"
	"github.com/fixrouter/gateway/pkg/endpoint"
	"github.com/fixrouter/gateway/pkg/logger"
	"github.com/fixrouter/gateway/pkg/validator"
)

const fixVersion = "4.4"

// sessionIDValidator checks the derived sessionId against the
// "FIX.<v>:<sender>-><target>" form (§3/§4.7); a mismatch is logged, never
// fatal, since the envelope is still well-formed enough to route.
var sessionIDValidator = validator.New()

// Producer publishes one record to the broker, used here for the route's
// configured outputTopic.
type Producer interface {
	Publish(ctx context.Context, rec *broker.Record) error
}

// Worker runs the accept-wrap-partition-publish loop for one OUTPUT route
// against one listener endpoint.
type Worker struct {
	route     *routing.Route
	routingCfg *routing.Config
	listener  endpoint.Listener
	producer  Producer
}

func NewWorker(route *routing.Route, routingCfg *routing.Config, listener endpoint.Listener, producer Producer) *Worker {
	return &Worker{route: route, routingCfg: routingCfg, listener: listener, producer: producer}
}

// Run accepts payloads until ctx is cancelled.
func (w *Worker) Run(ctx context.Context) error {
	for {
		if ctx.Err() != nil {
			return nil
		}
		payload, err := w.listener.Accept(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			logger.L().ErrorContext(ctx, "listener accept failed", "routeId", w.route.RouteID, "error", err)
			continue
		}
		w.processPayload(ctx, payload)
	}
}

func (w *Worker) processPayload(ctx context.Context, payload []byte) {
	raw := fixtag.ProcessRawMessage(payload)
	tags := fixtag.ParseTags(raw)

	e := envelope.New(
		envelope.SessionID(fixVersion, w.route.SenderCompID, w.route.TargetCompID),
		w.route.SenderCompID, w.route.TargetCompID, raw,
	)
	e.EnrichFromTags(tags)
	if err := sessionIDValidator.ValidateVar(e.SessionID, "fix_session_id"); err != nil {
		logger.L().ErrorContext(ctx, "derived sessionId failed format validation", "routeId", w.route.RouteID, "sessionId", e.SessionID, "error", err)
	}

	rec := &broker.Record{
		Topic: w.route.OutputTopic,
		Headers: map[string]string{
			"__TypeId__":   "fixMessageEnvelope",
			"senderCompId": w.route.SenderCompID,
			"targetCompId": w.route.TargetCompID,
			"sessionId":    e.SessionID,
			"routeId":      w.route.RouteID,
			"outputTopic":  w.route.OutputTopic,
		},
	}

	w.applyPartitionStrategy(ctx, e, tags, rec)

	body, err := envelope.EncodeJSON(e)
	if err != nil {
		logger.L().ErrorContext(ctx, "envelope encode failed", "routeId", w.route.RouteID, "error", err)
		return
	}
	rec.Value = body

	if err := w.producer.Publish(ctx, rec); err != nil {
		logger.L().ErrorContext(ctx, "publish to output topic failed", "routeId", w.route.RouteID, "topic", w.route.OutputTopic, "error", err)
	}
}

// applyPartitionStrategy implements §4.7 step 3: KEY sets rec.Key from the
// expression's string form; EXPR sets rec.Partition from its integer form,
// falling back to no explicit partition on a non-integer result; NONE or an
// empty expression leaves both unset. An EvaluationError is logged and the
// record is still published without a key/partition (§7).
func (w *Worker) applyPartitionStrategy(ctx context.Context, e *envelope.Envelope, tags map[int]string, rec *broker.Record) {
	if w.routingCfg == nil || w.route.PartitionExpr == "" {
		return
	}
	switch w.route.PartitionStrategy {
	case routing.PartitionKey:
		v, err := w.evaluate(e, tags)
		if err != nil {
			logger.L().ErrorContext(ctx, "partition key expression failed", "routeId", w.route.RouteID, "error", err)
			return
		}
		if v == nil {
			logger.L().InfoContext(ctx, "partition expression evaluated to null, no key assigned", "routeId", w.route.RouteID)
			return
		}
		rec.Key = []byte(toKeyString(v))
		rec.Headers["kafka.KEY"] = toKeyString(v)
	case routing.PartitionExpr:
		v, err := w.evaluate(e, tags)
		if err != nil {
			logger.L().ErrorContext(ctx, "partition expression failed", "routeId", w.route.RouteID, "error", err)
			return
		}
		partition, ok := toPartition(v)
		if !ok {
			logger.L().ErrorContext(ctx, "partition expression did not evaluate to an integer, falling back to no explicit partition", "routeId", w.route.RouteID)
			return
		}
		rec.Partition = &partition
		rec.Headers["kafka.PARTITION"] = strconv.FormatInt(int64(partition), 10)
	}
}

func (w *Worker) evaluate(e *envelope.Envelope, tags map[int]string) (any, error) {
	compiled, err := w.routingCfg.ExprCache().Compile(w.route.PartitionExpr)
	if err != nil {
		return nil, err
	}
	binding := exprlang.NewEnvelopeBinding(e, tags)
	return exprlang.Eval(compiled, binding)
}

func toKeyString(v any) string {
	switch t := v.(type) {
	case string:
		return t
	default:
		return fmt.Sprint(t)
	}
}

func toPartition(v any) (int32, bool) {
	switch t := v.(type) {
	case int64:
		return int32(t), true
	default:
		return 0, false
	}
}
