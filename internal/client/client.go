package client

import (
	"errors"
	"fmt"
	"net"
	"strconv"
	"sync"
	"sync/atomic"
	"time"
	"unicode/utf8"

	"github.com/rs/zerolog"

	"devharness/internal/shared/logger"
)

// ErrNotConnected is returned by sends while the client has no live stream.
var ErrNotConnected = errors.New("client is not connected")

const dialTimeout = 5 * time.Second

// Client simulates one device: a single TCP stream with a receive loop that
// displays server replies, plus serialized sends.
type Client struct {
	host     string
	port     int
	deviceID string
	log      zerolog.Logger

	mu      sync.Mutex // guards conn across connect/disconnect/reconnect
	conn    net.Conn
	running atomic.Bool
	writeMu sync.Mutex
}

func New(host string, port int, deviceID string) *Client {
	return &Client{
		host:     host,
		port:     port,
		deviceID: deviceID,
		log:      logger.WithComponent("client").With().Str("device_id", deviceID).Logger(),
	}
}

// Connect dials the server and starts the receive loop.
func (c *Client) Connect() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.conn != nil {
		return errors.New("already connected")
	}

	addr := net.JoinHostPort(c.host, strconv.Itoa(c.port))
	conn, err := net.DialTimeout("tcp", addr, dialTimeout)
	if err != nil {
		return fmt.Errorf("connect to %s: %w", addr, err)
	}

	c.conn = conn
	c.running.Store(true)
	c.log.Info().Str("server", addr).Msg("Connected to server.")

	go c.receiveLoop(conn)
	return nil
}

// Disconnect closes the stream. Safe to call when already disconnected.
func (c *Client) Disconnect() {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.conn != nil {
		_ = c.conn.Close()
		c.conn = nil
		c.log.Info().Msg("Disconnected.")
	}
	c.running.Store(false)
}

// Connected reports whether the receive loop is live.
func (c *Client) Connected() bool {
	return c.running.Load()
}

// SendText sends a UTF-8 text payload.
func (c *Client) SendText(text string) error {
	if err := c.send([]byte(text)); err != nil {
		return err
	}
	c.log.Info().Str("text", text).Msg("Sent text payload.")
	return nil
}

// SendBinary sends a raw byte payload.
func (c *Client) SendBinary(data []byte) error {
	if err := c.send(data); err != nil {
		return err
	}
	c.log.Info().Hex("data", data).Msg("Sent binary payload.")
	return nil
}

func (c *Client) send(data []byte) error {
	c.mu.Lock()
	conn := c.conn
	c.mu.Unlock()
	if conn == nil {
		return ErrNotConnected
	}

	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	if _, err := conn.Write(data); err != nil {
		// Drop only the stream that failed; a reconnect may have swapped in
		// a fresh one since the snapshot above.
		c.dropConn(conn)
		return fmt.Errorf("send: %w", err)
	}
	return nil
}

// dropConn closes a broken stream and clears the client state only if that
// stream is still the current one.
func (c *Client) dropConn(conn net.Conn) {
	_ = conn.Close()

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.conn == conn {
		c.conn = nil
		c.running.Store(false)
	}
}

func (c *Client) receiveLoop(conn net.Conn) {
	buf := make([]byte, 1024)
	for {
		n, err := conn.Read(buf)
		if n > 0 {
			payload := buf[:n]
			if utf8.Valid(payload) {
				c.log.Info().Str("text", string(payload)).Msg("Received text.")
			} else {
				c.log.Info().Hex("data", payload).Msg("Received binary data.")
			}
		}
		if err != nil {
			if errors.Is(err, net.ErrClosed) {
				c.log.Debug().Msg("Connection closed locally.")
			} else {
				c.log.Warn().Err(err).Msg("Server closed the connection.")
			}
			break
		}
	}

	// Only clears state if no reconnect replaced the stream in the meantime.
	c.dropConn(conn)
	c.log.Info().Msg("Receive loop exited.")
}

// RunHeartbeat sends a numbered heartbeat every interval until the client
// disconnects. Blocks; run it in its own goroutine.
func (c *Client) RunHeartbeat(interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	counter := 0
	for range ticker.C {
		if !c.running.Load() {
			return
		}
		counter++
		msg := fmt.Sprintf("%s heartbeat #%d", c.deviceID, counter)
		if err := c.SendText(msg); err != nil {
			c.log.Warn().Err(err).Msg("Heartbeat send failed, stopping heartbeats.")
			return
		}
	}
}
