package ws

import (
	"encoding/json"
	"sync"
	"time"

	"github.com/gofiber/websocket/v2"
	"golang.org/x/time/rate"
)

// Client is one live connection bound to an authenticated user. Its
// channel membership set is owned by the connection: only the read loop of
// this connection mutates it.
type Client struct {
	ID     string
	UserID string

	conn     *websocket.Conn
	send     chan []byte
	channels map[string]struct{}
	limiter  *rate.Limiter

	closeOnce sync.Once
}

func NewClient(conn *websocket.Conn, connID, userID string, eventsPerSecond, burst int) *Client {
	return &Client{
		ID:       connID,
		UserID:   userID,
		conn:     conn,
		send:     make(chan []byte, 256),
		channels: make(map[string]struct{}),
		limiter:  rate.NewLimiter(rate.Limit(eventsPerSecond), burst),
	}
}

// Enqueue hands a frame to the write pump without blocking. Slow consumers
// drop frames; history is reconstructed from the store, not from the
// broadcast stream.
func (c *Client) Enqueue(b []byte) {
	select {
	case c.send <- b:
	default:
	}
}

func (c *Client) EnqueueEvent(event string, data any) {
	b, err := marshalEvent(event, data)
	if err != nil {
		return
	}
	c.Enqueue(b)
}

func marshalEvent(event string, data any) ([]byte, error) {
	var raw json.RawMessage
	if data != nil {
		b, err := json.Marshal(data)
		if err != nil {
			return nil, err
		}
		raw = b
	}
	return json.Marshal(Envelope{Event: event, Data: raw})
}

func (c *Client) Close() {
	c.closeOnce.Do(func() {
		close(c.send)
		_ = c.conn.Close()
	})
}

// WritePump drains the send channel onto the socket and keeps the
// connection alive with pings. Runs in its own goroutine per connection.
func (c *Client) WritePump(pingInterval, writeDeadline time.Duration) {
	ticker := time.NewTicker(pingInterval)
	defer func() {
		ticker.Stop()
		_ = c.conn.Close()
	}()
	for {
		select {
		case b, ok := <-c.send:
			if !ok {
				_ = c.conn.WriteControl(websocket.CloseMessage,
					websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
					time.Now().Add(time.Second))
				return
			}
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeDeadline))
			if err := c.conn.WriteMessage(websocket.TextMessage, b); err != nil {
				return
			}
		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeDeadline))
			if err := c.conn.WriteControl(websocket.PingMessage, []byte{}, time.Now().Add(time.Second)); err != nil {
				return
			}
		}
	}
}
