// Package transport wraps one client WebSocket connection. It dials with
// gobwas/ws, reads text frames on a background goroutine, and delivers socket
// activity as an ordered Event stream that a single dispatch loop consumes.
// Writes are fire-and-forget text frames serialized by a mutex; nothing is
// buffered or retried.
package transport

import (
	"context"
	"fmt"
	"net"
	"sync"

	"github.com/gobwas/ws"
	"github.com/gobwas/ws/wsutil"
	"github.com/rs/zerolog"
)

// EventKind discriminates socket events.
type EventKind int

const (
	// KindOpen is delivered once, before any frame, when the connection is
	// ready for traffic.
	KindOpen EventKind = iota
	// KindFrame carries one complete inbound text frame.
	KindFrame
	// KindClosed is the final event. Err is nil for a clean close (peer close
	// frame or local Close call) and non-nil when the connection died.
	KindClosed
)

// Event is one occurrence on the socket, delivered in arrival order.
type Event struct {
	Kind  EventKind
	Frame []byte
	Err   error
}

// Conn is a single client WebSocket connection.
type Conn struct {
	conn      net.Conn
	writeMu   sync.Mutex
	events    chan Event
	done      chan struct{}
	closeOnce sync.Once
	log       zerolog.Logger
}

// Dial connects to the given WebSocket URL and starts the background read
// loop. The returned connection already holds an open socket; the KindOpen
// event is the first value on Events.
func Dial(ctx context.Context, url string, logger zerolog.Logger) (*Conn, error) {
	conn, _, _, err := ws.Dial(ctx, url)
	if err != nil {
		return nil, fmt.Errorf("transport: dial %s: %w", url, err)
	}
	c := newConn(conn, logger)
	go c.readLoop()
	return c, nil
}

// newConn wraps an established connection. Split from Dial so tests can feed
// a net.Pipe end through the same read loop.
func newConn(conn net.Conn, logger zerolog.Logger) *Conn {
	return &Conn{
		conn:   conn,
		events: make(chan Event, 16),
		done:   make(chan struct{}),
		log:    logger,
	}
}

// Events returns the socket event stream. The channel is closed after the
// KindClosed event has been delivered.
func (c *Conn) Events() <-chan Event {
	return c.events
}

// SendText writes one text frame. The write mutex keeps concurrent callers
// from interleaving frame bytes; there is no acknowledgement and no retry.
func (c *Conn) SendText(frame []byte) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	if err := wsutil.WriteClientMessage(c.conn, ws.OpText, frame); err != nil {
		return fmt.Errorf("transport: write frame: %w", err)
	}
	return nil
}

// Close tears the connection down and stops the read loop. Safe to call
// multiple times.
func (c *Conn) Close() error {
	var err error
	c.closeOnce.Do(func() {
		close(c.done)
		err = c.conn.Close()
	})
	return err
}

// readLoop reads server frames until the connection ends, then classifies the
// termination and closes the event stream.
func (c *Conn) readLoop() {
	defer close(c.events)

	c.events <- Event{Kind: KindOpen}

	for {
		frame, err := wsutil.ReadServerText(c.conn)
		if err != nil {
			c.events <- Event{Kind: KindClosed, Err: c.classifyClose(err)}
			return
		}
		c.events <- Event{Kind: KindFrame, Frame: frame}
	}
}

// classifyClose maps a read-loop error to the close semantics the session
// sees: nil for a clean close, the error itself for a dead connection.
func (c *Conn) classifyClose(err error) error {
	select {
	case <-c.done:
		// Locally initiated close.
		return nil
	default:
	}

	if ce, ok := err.(wsutil.ClosedError); ok {
		switch ce.Code {
		case ws.StatusNormalClosure, ws.StatusGoingAway:
			c.log.Info().Int("code", int(ce.Code)).Str("reason", ce.Reason).Msg("peer closed connection")
			return nil
		}
		return fmt.Errorf("transport: peer closed with status %d: %s", ce.Code, ce.Reason)
	}
	return fmt.Errorf("transport: read frame: %w", err)
}
