// Package dispatch implements the per-destination send loop (C5): for one
// envelope and one route, iterate destinations in declared order, filter by
// message type, send synchronously with bounded retry on network errors,
// honour stopOnException, and dead-letter on exhaustion.
package dispatch

import (
	"context"
	"net/url"
	"strings"
	"time"

	"github.com/fixrouter/gateway/internal/envelope"
	"github.com/fixrouter/gateway/internal/routing"
	"github.com/fixrouter/gateway/pkg/errors"
	"github.com/fixrouter/gateway/pkg/logger"
)

// Sender sends a raw FIX payload to a single destination URI. Implementations
// live behind pkg/endpoint (netty:tcp, ws, direct) or pkg/broker (kafka: for
// re-routing), selected by the destination's URI scheme.
type Sender interface {
	Send(ctx context.Context, destinationURI string, payload []byte) error
}

// DeadLetterPublisher writes a permanently-failed envelope to a dead-letter
// topic via the shared broker producer.
type DeadLetterPublisher interface {
	PublishDeadLetter(ctx context.Context, topic string, e *envelope.Envelope) error
}

// Dispatcher iterates a route's destinations for one envelope.
type Dispatcher struct {
	sender    Sender
	deadLetter DeadLetterPublisher
}

func NewDispatcher(sender Sender, deadLetter DeadLetterPublisher) *Dispatcher {
	return &Dispatcher{sender: sender, deadLetter: deadLetter}
}

// Dispatch sends e to route's destinations, in declared order, sequentially
// (P4). It returns only after every destination has reached a terminal
// state (success, skip, or dead-letter), unless stopOnException aborts the
// remaining destinations early or ctx is cancelled mid-send, in which case
// the returned error is non-nil and the caller (C6) must NOT commit the
// record's offset. A context cancellation is a distinct ABORTED outcome
// (§4.5): it skips dead-lettering entirely, since the record should be
// redelivered rather than treated as a destination failure.
func (d *Dispatcher) Dispatch(ctx context.Context, route *routing.Route, e *envelope.Envelope) error {
	for i := range route.DestinationConfigs {
		dest := &route.DestinationConfigs[i]

		if !dest.MatchesMsgType(e.MsgType) {
			continue
		}

		err := d.sendWithRetry(ctx, dest, e)
		if err == nil {
			continue
		}

		// Shutdown aborted the send mid-dispatch (§5): this is distinct from
		// a destination's own failure, skips dead-lettering, and always
		// propagates so the caller never commits the record's offset.
		if ctx.Err() != nil {
			return errors.Wrap(ctx.Err(), "dispatch aborted: "+route.RouteID)
		}

		if deadLetterErr := d.deadLetterEnvelope(ctx, route, dest, e, err); deadLetterErr != nil {
			logger.L().ErrorContext(ctx, "failed to write dead-letter record",
				"routeId", route.RouteID, "destination", dest.URI, "error", deadLetterErr)
		}

		if dest.StopOnException {
			return err
		}
	}
	return nil
}

// sendWithRetry attempts delivery up to maxRetries+1 times with a fixed
// retryDelay between attempts (no jitter, no backoff per §4.5). Retry fires
// only for classified network errors; anything else breaks the loop
// immediately as a DestinationPermanentError.
func (d *Dispatcher) sendWithRetry(ctx context.Context, dest *routing.DestinationConfig, e *envelope.Envelope) error {
	targetURI := buildTargetURI(dest)
	attempts := dest.MaxRetries + 1

	var lastErr error
	for attempt := 1; attempt <= attempts; attempt++ {
		sendCtx, cancel := context.WithTimeout(ctx, dest.Timeout)
		err := d.sender.Send(sendCtx, targetURI, e.RawMessage)
		cancel()

		if err == nil {
			return nil
		}
		lastErr = err

		if !isNetworkError(err) {
			return err
		}
		if attempt == attempts {
			break
		}

		select {
		case <-time.After(dest.RetryDelay):
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return lastErr
}

func (d *Dispatcher) deadLetterEnvelope(ctx context.Context, route *routing.Route, dest *routing.DestinationConfig, e *envelope.Envelope, cause error) error {
	topic := dest.DeadLetterTopic
	if topic == "" {
		topic = route.DeadLetterTopic
	}
	dl := *e
	dl.ErrorInfo = &envelope.ErrorInfo{
		ErrorMessage: cause.Error(),
		ErrorType:    errors.Code(cause),
		ErrorRouteID: route.RouteID,
	}
	return d.deadLetter.PublishDeadLetter(ctx, topic, &dl)
}

// buildTargetURI appends endpoint parameters as query-string encoding and,
// for netty: destinations, fills in connectTimeout/requestTimeout/disconnect
// /reuseChannel/sync defaults the caller did not already supply (§4.5 rule 2).
func buildTargetURI(dest *routing.DestinationConfig) string {
	params := url.Values{}
	for k, v := range dest.EndpointParameters {
		params.Set(k, v)
	}
	if strings.HasPrefix(dest.URI, "netty:") {
		setIfAbsent(params, "connectTimeout", "2000")
		setIfAbsent(params, "requestTimeout", "2000")
		setIfAbsent(params, "disconnect", "true")
		setIfAbsent(params, "reuseChannel", "false")
		setIfAbsent(params, "sync", "true")
	}
	if len(params) == 0 {
		return dest.URI
	}
	sep := "?"
	if strings.Contains(dest.URI, "?") {
		sep = "&"
	}
	return dest.URI + sep + params.Encode()
}

func setIfAbsent(params url.Values, key, value string) {
	if params.Get(key) == "" {
		params.Set(key, value)
	}
}

// networkErrorTokens are the case-insensitive substrings §4.5 rule 4 uses to
// classify an error as transient/network, when it isn't already a typed
// network failure from the endpoint/broker layer.
var networkErrorTokens = []string{
	"connection", "timeout", "network", "socket", "io", "connect", "refused",
}

func isNetworkError(err error) bool {
	if errors.Is(err, errors.CodeUnavailable) || errors.Is(err, errors.CodeTimeout) {
		return true
	}
	msg := strings.ToLower(err.Error())
	for _, token := range networkErrorTokens {
		if strings.Contains(msg, token) {
			return true
		}
	}
	return false
}
