// Package endpoint provides a unified interface for sending to and
// listening on the FIX endpoints a route's destinations and listeners name
// by URI: netty:tcp://host:port (line-oriented TCP, SOH-framed), direct:name
// (in-process), ws://host:port/path (websocket, an "other transport" the
// gateway accepts alongside TCP).
package endpoint

import "context"

// Dialer sends a single raw FIX payload (including its SOH delimiters) to
// one endpoint and returns, or errors if the endpoint could not be reached
// or rejected the write within the caller's context deadline.
type Dialer interface {
	Send(ctx context.Context, payload []byte) error
	Close() error
}

// Listener accepts inbound FIX payloads from one or more connected peers.
// Accept blocks until a payload arrives or the context is cancelled.
type Listener interface {
	Accept(ctx context.Context) ([]byte, error)
	Close() error
}

// Config selects a dialer/listener driver. Each adapter reads its own
// connection parameters out of the destination/listener URI it's built
// from; this only names which adapter owns a given scheme.
type Config struct {
	Driver string `env:"ENDPOINT_DRIVER" env-default:"tcp"`
}

const (
	DriverTCP     = "netty:tcp"
	DriverDirect  = "direct"
	DriverWebsocket = "ws"
)
