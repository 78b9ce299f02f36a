// Package consumer implements the input consumer loop (C6): one worker per
// INPUT route maintains a consumer on the route's input topic with
// maxPollRecords=1 and manual commit, decoding, enriching, dispatching, then
// committing each record in turn.
package consumer

import (
	"context"

	"github.com/fixrouter/gateway/internal/dispatch"
	"github.com/fixrouter/gateway/internal/envelope"
	"github.com/fixrouter/gateway/internal/fixtag"
	"github.com/fixrouter/gateway/internal/routing"
	"github.com/fixrouter/gateway/pkg/broker"
	"github.com/fixrouter/gateway/pkg/logger"
)

// Worker runs the consume-decode-dispatch-commit loop for one INPUT route.
// It owns its broker.Consumer exclusively; nothing else may poll or commit
// against it (§5 shared-resource policy).
type Worker struct {
	route      *routing.Route
	routingCfg *routing.Config
	consumer   broker.Consumer
	dispatcher *dispatch.Dispatcher
}

func NewWorker(route *routing.Route, routingCfg *routing.Config, consumer broker.Consumer, dispatcher *dispatch.Dispatcher) *Worker {
	return &Worker{route: route, routingCfg: routingCfg, consumer: consumer, dispatcher: dispatcher}
}

// Run polls the consumer in a loop until ctx is cancelled, processing
// exactly one record at a time (the maxPollRecords=1 contract). It returns
// nil on clean shutdown (ctx cancellation observed between records).
func (w *Worker) Run(ctx context.Context) error {
	for {
		if ctx.Err() != nil {
			return nil
		}
		rec, err := w.consumer.Poll(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			logger.L().ErrorContext(ctx, "consumer poll failed", "routeId", w.route.RouteID, "error", err)
			continue
		}
		if rec == nil {
			continue
		}
		w.processRecord(ctx, rec)
	}
}

// processRecord implements §4.6 steps 1-6. A decode/validation failure is
// logged and the offset is still committed (it would otherwise block the
// partition forever); a dispatch abort (stopOnException) leaves the offset
// uncommitted so the record is redelivered.
func (w *Worker) processRecord(ctx context.Context, rec *broker.ConsumedRecord) {
	logger.L().InfoContext(ctx, "consumed record", "routeId", w.route.RouteID, "partition", rec.Partition, "offset", rec.Offset)

	e, err := decodeEnvelope(rec.Value)
	if err != nil {
		logger.L().ErrorContext(ctx, "envelope decode failed, skipping dispatch", "routeId", w.route.RouteID, "error", err)
		w.commit(ctx, rec)
		return
	}

	raw := fixtag.ProcessRawMessage(e.RawMessage)
	e.RawMessage = raw
	tags := fixtag.ParseTags(raw)
	e.EnrichFromTags(tags)

	if err := w.dispatcher.Dispatch(ctx, w.route, e); err != nil {
		logger.L().ErrorContext(ctx, "dispatch aborted, offset will not be committed",
			"routeId", w.route.RouteID, "error", err)
		return
	}

	w.commit(ctx, rec)
}

func (w *Worker) commit(ctx context.Context, rec *broker.ConsumedRecord) {
	if err := w.consumer.Commit(ctx, rec); err != nil {
		logger.L().ErrorContext(ctx, "commit failed", "routeId", w.route.RouteID, "offset", rec.Offset, "error", err)
	}
}

// decodeEnvelope tries JSON first, then the MessageEnvelope text form,
// matching C2's "JSON preferred, text form accepted" ingress rule.
func decodeEnvelope(data []byte) (*envelope.Envelope, error) {
	if e, err := envelope.DecodeJSON(data); err == nil {
		return e, nil
	}
	return envelope.DecodeText(string(data))
}
