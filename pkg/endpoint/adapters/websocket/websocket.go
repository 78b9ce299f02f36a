// Package websocket implements pkg/endpoint for ws:// URIs, the "other
// transports" spec §1 deliberately leaves room for alongside line-oriented
// TCP. Each FIX payload is sent as one binary websocket message; there is no
// SOH framing to do since the websocket frame itself is the message boundary.
package websocket

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/fixrouter/gateway/pkg/endpoint"
)

// Dialer is a long-lived outbound websocket connection.
type Dialer struct {
	url            string
	connectTimeout time.Duration
	writeTimeout   time.Duration
	mu             sync.Mutex
	conn           *websocket.Conn
}

type Config struct {
	URL            string
	ConnectTimeout time.Duration
	WriteTimeout   time.Duration
}

func NewDialer(cfg Config) *Dialer {
	return &Dialer{url: cfg.URL, connectTimeout: cfg.ConnectTimeout, writeTimeout: cfg.WriteTimeout}
}

func (d *Dialer) ensureConnected(ctx context.Context) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.conn != nil {
		return nil
	}
	dialer := websocket.Dialer{HandshakeTimeout: d.connectTimeout}
	conn, _, err := dialer.DialContext(ctx, d.url, nil)
	if err != nil {
		return endpoint.ErrDialFailed(d.url, err)
	}
	d.conn = conn
	return nil
}

func (d *Dialer) Send(ctx context.Context, payload []byte) error {
	if err := d.ensureConnected(ctx); err != nil {
		return err
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	deadline := time.Now().Add(d.writeTimeout)
	if dl, ok := ctx.Deadline(); ok && dl.Before(deadline) {
		deadline = dl
	}
	_ = d.conn.SetWriteDeadline(deadline)
	if err := d.conn.WriteMessage(websocket.BinaryMessage, payload); err != nil {
		_ = d.conn.Close()
		d.conn = nil
		return endpoint.ErrSendFailed(err)
	}
	return nil
}

func (d *Dialer) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.conn == nil {
		return nil
	}
	err := d.conn.Close()
	d.conn = nil
	return err
}

// Listener upgrades incoming HTTP connections on addr/path to websockets and
// yields binary messages from any connected peer in arrival order.
type Listener struct {
	server   *http.Server
	upgrader websocket.Upgrader
	frames   chan []byte
	closeCh  chan struct{}
}

func NewListener(addr, path string) *Listener {
	l := &Listener{
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
		frames:  make(chan []byte, 256),
		closeCh: make(chan struct{}),
	}
	mux := http.NewServeMux()
	mux.HandleFunc(path, l.handleUpgrade)
	l.server = &http.Server{Addr: addr, Handler: mux}
	go l.server.ListenAndServe()
	return l
}

func (l *Listener) handleUpgrade(w http.ResponseWriter, r *http.Request) {
	conn, err := l.upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	defer conn.Close()
	for {
		_, payload, err := conn.ReadMessage()
		if err != nil {
			return
		}
		select {
		case l.frames <- payload:
		case <-l.closeCh:
			return
		}
	}
}

func (l *Listener) Accept(ctx context.Context) ([]byte, error) {
	select {
	case payload := <-l.frames:
		return payload, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-l.closeCh:
		return nil, endpoint.ErrClosed(nil)
	}
}

func (l *Listener) Close() error {
	close(l.closeCh)
	return l.server.Close()
}

var (
	_ endpoint.Dialer   = (*Dialer)(nil)
	_ endpoint.Listener = (*Listener)(nil)
)
