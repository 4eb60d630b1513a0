package websocket

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"sync"
	"time"

	ws "github.com/gorilla/websocket"

	"github.com/OCAP2/tickbridge/pkg/streaming"
)

const (
	sendChSize = 10_000
	ackChSize  = 16
	writeWait  = 10 * time.Second
	ackTimeout = 10 * time.Second
)

var (
	errClosed     = errors.New("websocket connection closed")
	errBufferFull = errors.New("websocket send buffer full")
)

// session is one live socket with its own read and write loop.
type session struct {
	conn *ws.Conn
	stop chan struct{}
}

// connection manages a websocket with a single write goroutine and replays
// the session opening message after every reconnect.
type connection struct {
	mu       sync.Mutex
	current  *session
	closed   bool
	startMsg []byte
	retry    []byte // message whose write failed, sent first after reconnect

	sendCh chan []byte
	ackCh  chan streaming.AckMessage
	done   chan struct{}
	loops  sync.WaitGroup

	wsURL  string
	secret string

	maxReconnect   int
	initialBackoff time.Duration
	maxBackoff     time.Duration

	logger *slog.Logger
}

func newConnection(logger *slog.Logger) *connection {
	return &connection{
		sendCh:         make(chan []byte, sendChSize),
		ackCh:          make(chan streaming.AckMessage, ackChSize),
		done:           make(chan struct{}),
		maxReconnect:   10,
		initialBackoff: time.Second,
		maxBackoff:     30 * time.Second,
		logger:         logger,
	}
}

// dial connects to the server and starts the read and write loops.
func (c *connection) dial(rawURL, secret string) error {
	c.wsURL = rawURL
	c.secret = secret

	conn, err := c.dialOnce()
	if err != nil {
		return err
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	c.start(conn)
	return nil
}

// dialOnce performs a single dial with the secret query param.
func (c *connection) dialOnce() (*ws.Conn, error) {
	u, err := url.Parse(c.wsURL)
	if err != nil {
		return nil, fmt.Errorf("invalid websocket URL: %w", err)
	}
	if c.secret != "" {
		q := u.Query()
		q.Set("secret", c.secret)
		u.RawQuery = q.Encode()
	}

	ctx, cancel := context.WithTimeout(context.Background(), writeWait)
	defer cancel()

	conn, _, err := ws.DefaultDialer.DialContext(ctx, u.String(), nil)
	if err != nil {
		return nil, fmt.Errorf("websocket dial failed: %w", err)
	}
	return conn, nil
}

// start must be called with c.mu held.
func (c *connection) start(conn *ws.Conn) {
	s := &session{conn: conn, stop: make(chan struct{})}
	c.current = s
	c.loops.Add(2)
	go c.writeLoop(s)
	go c.readLoop(s)
}

func (c *connection) writeLoop(s *session) {
	defer c.loops.Done()
	for {
		select {
		case <-c.done:
			_ = s.conn.SetWriteDeadline(time.Now().Add(writeWait))
			_ = s.conn.WriteMessage(ws.CloseMessage, ws.FormatCloseMessage(ws.CloseNormalClosure, ""))
			_ = s.conn.Close()
			return
		case <-s.stop:
			return
		case data := <-c.sendCh:
			if err := write(s.conn, data); err != nil {
				c.mu.Lock()
				c.retry = data
				c.mu.Unlock()
				c.lost(s, err)
				return
			}
		}
	}
}

func write(conn *ws.Conn, data []byte) error {
	if err := conn.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
		return err
	}
	return conn.WriteMessage(ws.TextMessage, data)
}

// readLoop routes acks to ackCh until the socket fails.
func (c *connection) readLoop(s *session) {
	defer c.loops.Done()
	for {
		_, message, err := s.conn.ReadMessage()
		if err != nil {
			c.lost(s, err)
			return
		}

		var ack streaming.AckMessage
		if err := json.Unmarshal(message, &ack); err != nil || ack.Type != streaming.TypeAck {
			c.logger.Debug("Non-ack message received", "raw", string(message))
			continue
		}

		select {
		case c.ackCh <- ack:
		default:
			c.logger.Debug("Ack channel full, dropping", "for", ack.For)
		}
	}
}

// lost tears down s and starts a reconnect, once per session.
func (c *connection) lost(s *session, err error) {
	c.mu.Lock()
	if c.closed || c.current != s {
		c.mu.Unlock()
		return
	}
	c.current = nil
	close(s.stop)
	_ = s.conn.Close()
	c.loops.Add(1)
	c.mu.Unlock()

	c.logger.Warn("WebSocket connection lost", "error", err)
	go c.reconnect()
}

// reconnect re-dials with exponential backoff. On success it replays the
// session opening message and any message whose write failed.
func (c *connection) reconnect() {
	defer c.loops.Done()

	backoff := c.initialBackoff
	for attempt := 1; attempt <= c.maxReconnect; attempt++ {
		c.logger.Info("Reconnecting to WebSocket", "attempt", attempt, "backoff", backoff)

		timer := time.NewTimer(backoff)
		select {
		case <-c.done:
			timer.Stop()
			return
		case <-timer.C:
		}

		conn, err := c.dialOnce()
		if err != nil {
			c.logger.Warn("Reconnect dial failed", "attempt", attempt, "error", err)
			backoff = min(backoff*2, c.maxBackoff)
			continue
		}

		c.mu.Lock()
		replay := make([][]byte, 0, 2)
		if c.startMsg != nil {
			replay = append(replay, c.startMsg)
		}
		if c.retry != nil {
			replay = append(replay, c.retry)
		}
		c.mu.Unlock()

		if err := replayAll(conn, replay); err != nil {
			c.logger.Warn("Failed to replay after reconnect", "error", err)
			_ = conn.Close()
			continue
		}

		c.mu.Lock()
		if c.closed {
			c.mu.Unlock()
			_ = conn.Close()
			return
		}
		c.retry = nil
		c.start(conn)
		c.mu.Unlock()

		c.logger.Info("WebSocket reconnected", "attempt", attempt)
		return
	}

	c.logger.Error("WebSocket reconnect failed after max attempts", "maxAttempts", c.maxReconnect)
}

func replayAll(conn *ws.Conn, msgs [][]byte) error {
	for _, m := range msgs {
		if err := write(conn, m); err != nil {
			return err
		}
	}
	return nil
}

// setStart records the message that opens the session on every connect.
func (c *connection) setStart(data []byte) {
	c.mu.Lock()
	c.startMsg = data
	c.mu.Unlock()
}

// send queues data for the write loop without blocking.
func (c *connection) send(data []byte) error {
	select {
	case <-c.done:
		return errClosed
	default:
	}

	select {
	case c.sendCh <- data:
		return nil
	default:
		c.logger.Warn("WebSocket send channel full, dropping message")
		return errBufferFull
	}
}

// sendAndWait sends data and blocks until the server acknowledges ackFor or
// the timeout expires.
func (c *connection) sendAndWait(data []byte, ackFor string, timeout time.Duration) error {
	if err := c.send(data); err != nil {
		return err
	}

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	for {
		select {
		case ack := <-c.ackCh:
			if ack.For == ackFor {
				return nil
			}
		case <-timer.C:
			return fmt.Errorf("timeout waiting for ack of %q", ackFor)
		case <-c.done:
			return fmt.Errorf("connection closed while waiting for ack of %q", ackFor)
		}
	}
}

// close sends a close frame and waits for every loop to exit.
func (c *connection) close() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	close(c.done)
	c.mu.Unlock()

	c.loops.Wait()
	return nil
}
