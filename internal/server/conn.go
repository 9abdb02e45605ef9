package server

import (
	"errors"
	"fmt"
	"io"
	"net"
	"sync"
	"unicode/utf8"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"devharness/internal/shared/logger"
)

// Event kinds forwarded to the monitoring sink.
const (
	EventConnected    = "connected"
	EventDisconnected = "disconnected"
	EventPayload      = "payload"
)

// EventSink receives connection lifecycle and traffic notifications.
// A nil sink is valid and means monitoring is disabled.
type EventSink interface {
	ConnEvent(connID, remoteAddr, kind, detail string)
}

// Conn wraps one accepted device stream. The read loop is the only reader of
// the stream; writes (acks and operator-initiated sends) are serialized by
// writeMu because both may target the stream at the same time.
type Conn struct {
	id         string
	conn       net.Conn
	remoteAddr string
	registry   *Registry
	events     EventSink
	bufSize    int
	log        zerolog.Logger

	writeMu   sync.Mutex
	closeOnce sync.Once
}

func newConn(nc net.Conn, registry *Registry, events EventSink, bufSize int) *Conn {
	id := uuid.NewString()
	remoteAddr := nc.RemoteAddr().String()
	return &Conn{
		id:         id,
		conn:       nc,
		remoteAddr: remoteAddr,
		registry:   registry,
		events:     events,
		bufSize:    bufSize,
		log: logger.WithComponent("conn").With().
			Str("conn_id", id[:8]).
			Str("remote_addr", remoteAddr).
			Logger(),
	}
}

// ID returns the connection's unique identifier.
func (c *Conn) ID() string { return c.id }

// RemoteAddr returns the peer's ip:port, the registry identity key.
func (c *Conn) RemoteAddr() string { return c.remoteAddr }

// Send writes payload to the stream. A failure leaves the connection in an
// unusable state; the caller that observes it is expected to call Close.
func (c *Conn) Send(payload []byte) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	if _, err := c.conn.Write(payload); err != nil {
		return fmt.Errorf("send to %s: %w", c.remoteAddr, err)
	}
	return nil
}

// readLoop blocks on the stream until the peer closes, a read error occurs,
// or a local Close makes the read fail. Any exit path runs teardown.
func (c *Conn) readLoop() {
	defer c.teardown()

	buf := make([]byte, c.bufSize)
	for {
		n, err := c.conn.Read(buf)
		if n > 0 {
			c.process(buf[:n])
		}
		if err != nil {
			switch {
			case errors.Is(err, io.EOF):
				c.log.Info().Msg("Peer closed the connection.")
			case errors.Is(err, net.ErrClosed):
				c.log.Debug().Msg("Connection closed locally.")
			default:
				c.log.Warn().Err(err).Msg("Read error, dropping connection.")
			}
			return
		}
	}
}

// process logs one received payload as text when it decodes as UTF-8 and as
// hex otherwise, then acknowledges it with the received byte count. An ack
// failure is tolerated: only the read side terminates the loop.
func (c *Conn) process(payload []byte) {
	if utf8.Valid(payload) {
		c.log.Info().Int("bytes", len(payload)).Str("text", string(payload)).Msg("Received text payload.")
	} else {
		c.log.Info().Int("bytes", len(payload)).Hex("data", payload).Msg("Received binary payload.")
	}
	if c.events != nil {
		c.events.ConnEvent(c.id, c.remoteAddr, EventPayload, fmt.Sprintf("%d bytes", len(payload)))
	}

	ack := fmt.Sprintf("%d bytes received", len(payload))
	if err := c.Send([]byte(ack)); err != nil {
		c.log.Warn().Err(err).Msg("Failed to acknowledge payload.")
	}
}

// Close tears the connection down: the stream is closed and the registry
// entry removed. Safe to call any number of times and concurrently with the
// read loop's own teardown.
func (c *Conn) Close() {
	c.teardown()
}

func (c *Conn) teardown() {
	c.closeOnce.Do(func() {
		_ = c.conn.Close()
		c.registry.Remove(c.remoteAddr)
		if c.events != nil {
			c.events.ConnEvent(c.id, c.remoteAddr, EventDisconnected, "")
		}
		c.log.Info().Msg("Connection deregistered.")
	})
}
