// Package tcp implements pkg/endpoint for netty:tcp:// URIs: a persistent
// line-oriented TCP connection carrying ASCII FIX payloads, each frame
// delimited the way the wire protocol delimits fields within a message —
// by the SOH byte (0x01) — rather than a newline, so embedded newlines in a
// payload never truncate a frame.
package tcp

import (
	"bufio"
	"context"
	"net"
	"time"

	"github.com/fixrouter/gateway/pkg/endpoint"
)

const soh = 0x01

// Dialer is a long-lived outbound connection to one netty:tcp:// endpoint.
type Dialer struct {
	addr           string
	timeout        time.Duration
	connectTimeout time.Duration
	conn           net.Conn
}

// Config carries one destination's write and connect timeouts; the gateway
// fills them from the destination URI's requestTimeout and connectTimeout
// query parameters.
type Config struct {
	Addr           string
	Timeout        time.Duration
	ConnectTimeout time.Duration
}

func NewDialer(cfg Config) *Dialer {
	return &Dialer{addr: cfg.Addr, timeout: cfg.Timeout, connectTimeout: cfg.ConnectTimeout}
}

func (d *Dialer) ensureConnected(ctx context.Context) error {
	if d.conn != nil {
		return nil
	}
	dialer := net.Dialer{Timeout: d.connectTimeout}
	conn, err := dialer.DialContext(ctx, "tcp", d.addr)
	if err != nil {
		return endpoint.ErrDialFailed(d.addr, err)
	}
	d.conn = conn
	return nil
}

func (d *Dialer) Send(ctx context.Context, payload []byte) error {
	if err := d.ensureConnected(ctx); err != nil {
		return err
	}
	deadline := time.Now().Add(d.timeout)
	if dl, ok := ctx.Deadline(); ok && dl.Before(deadline) {
		deadline = dl
	}
	if err := d.conn.SetWriteDeadline(deadline); err != nil {
		return endpoint.ErrSendFailed(err)
	}
	framed := make([]byte, len(payload)+1)
	copy(framed, payload)
	framed[len(payload)] = soh
	if _, err := d.conn.Write(framed); err != nil {
		_ = d.conn.Close()
		d.conn = nil
		return endpoint.ErrSendFailed(err)
	}
	return nil
}

func (d *Dialer) Close() error {
	if d.conn == nil {
		return nil
	}
	err := d.conn.Close()
	d.conn = nil
	return err
}

// Listener accepts TCP connections on addr and yields SOH-delimited frames
// from any of them on a shared channel, in arrival order.
type Listener struct {
	ln      net.Listener
	frames  chan []byte
	errs    chan error
	closeCh chan struct{}
}

func NewListener(addr string) (*Listener, error) {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, endpoint.ErrAcceptFailed(err)
	}
	l := &Listener{
		ln:      ln,
		frames:  make(chan []byte, 256),
		errs:    make(chan error, 1),
		closeCh: make(chan struct{}),
	}
	go l.acceptLoop()
	return l, nil
}

func (l *Listener) acceptLoop() {
	for {
		conn, err := l.ln.Accept()
		if err != nil {
			select {
			case <-l.closeCh:
				return
			default:
			}
			select {
			case l.errs <- err:
			default:
			}
			return
		}
		go l.readLoop(conn)
	}
}

func (l *Listener) readLoop(conn net.Conn) {
	defer conn.Close()
	reader := bufio.NewReader(conn)
	for {
		frame, err := reader.ReadBytes(soh)
		if err != nil {
			return
		}
		payload := frame[:len(frame)-1]
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
	case err := <-l.errs:
		return nil, endpoint.ErrAcceptFailed(err)
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-l.closeCh:
		return nil, endpoint.ErrClosed(nil)
	}
}

func (l *Listener) Close() error {
	close(l.closeCh)
	return l.ln.Close()
}

var (
	_ endpoint.Dialer   = (*Dialer)(nil)
	_ endpoint.Listener = (*Listener)(nil)
)
