package hub

import (
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"

	"collaborative-pad/internal/domain"
	"collaborative-pad/internal/metrics"
)

const (
	// Time allowed to write a message to the peer.
	writeWait = 10 * time.Second

	// Time allowed to read the next pong message from the peer.
	pongWait = 60 * time.Second

	// Send pings to peer with this period. Must be less than pongWait.
	pingPeriod = (pongWait * 9) / 10
)

// Client wraps one WebSocket connection. It tracks the room the
// connection currently belongs to (at most one, updated only by the hub)
// and pumps frames between the socket and the hub.
type Client struct {
	hub  *Hub
	conn *websocket.Conn
	id   string
	send chan []byte

	limiter *rateLimiter

	roomMu sync.Mutex
	room   *domain.Room

	closeMu sync.Mutex
	closed  bool
}

// NewClient creates a Client for an upgraded connection. The id is used
// only for log correlation.
func NewClient(hub *Hub, conn *websocket.Conn) *Client {
	if conn != nil {
		conn.SetReadLimit(hub.maxMessageSize)
	}
	return &Client{
		hub:     hub,
		conn:    conn,
		id:      uuid.NewString(),
		send:    make(chan []byte, 256),
		limiter: newRateLimiter(hub.rateBurst, hub.rateRefill),
	}
}

// ID returns the connection's log-correlation id.
func (c *Client) ID() string { return c.id }

// Room returns the room this connection is currently attached to, or nil.
func (c *Client) Room() *domain.Room {
	c.roomMu.Lock()
	defer c.roomMu.Unlock()
	return c.room
}

// setRoom updates the connection's room attachment. Called only from
// this connection's reader goroutine via the hub.
func (c *Client) setRoom(r *domain.Room) {
	c.roomMu.Lock()
	c.room = r
	c.roomMu.Unlock()
}

// Deliver queues payload for the write pump without blocking. It reports
// false when the connection is already closed or the send buffer is
// full; the frame is dropped for this member only and transport
// backpressure stays per-connection.
func (c *Client) Deliver(payload []byte) bool {
	c.closeMu.Lock()
	defer c.closeMu.Unlock()
	if c.closed {
		return false
	}
	select {
	case c.send <- payload:
		return true
	default:
		metrics.DeliveriesDropped.Inc()
		logrus.WithFields(logrus.Fields{"conn_id": c.id}).Warn("Client send channel full, dropping delivery")
		return false
	}
}

// closeSend closes the send channel once the client can no longer be
// reached by broadcasts. Safe against late Deliver calls.
func (c *Client) closeSend() {
	c.closeMu.Lock()
	defer c.closeMu.Unlock()
	if !c.closed {
		c.closed = true
		close(c.send)
	}
}

// Run starts the read and write pumps.
func (c *Client) Run() {
	go c.writePump()
	go c.readPump()
}

// readPump reads frames from the WebSocket and routes them through the
// hub on this goroutine. When the transport closes, for any reason, it
// runs the hub's disconnect path exactly once, which covers the
// implicit-leave side effects.
func (c *Client) readPump() {
	logCtx := logrus.WithFields(logrus.Fields{"conn_id": c.id})
	defer func() {
		c.hub.disconnect(c)
		c.conn.Close()
		logCtx.Info("Read pump exited")
	}()

	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		messageType, payload, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure, websocket.CloseNormalClosure) {
				logCtx.WithError(err).Warn("WebSocket read error (unexpected close)")
			} else {
				logCtx.Debug("WebSocket connection closed")
			}
			break
		}
		if messageType != websocket.TextMessage {
			logCtx.Debugf("Ignoring non-text message type %d", messageType)
			continue
		}
		if !c.limiter.allow() {
			logCtx.Warn("Inbound message rate limit exceeded, dropping frame")
			continue
		}

		c.hub.routeFrame(c, payload)
	}
}

// writePump pumps queued payloads to the WebSocket and keeps the
// connection alive with periodic pings.
func (c *Client) writePump() {
	logCtx := logrus.WithFields(logrus.Fields{"conn_id": c.id})
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
		logCtx.Info("Write pump exited")
	}()

	for {
		select {
		case payload, ok := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				// Hub closed the send channel during unregister.
				_ = c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, payload); err != nil {
				logCtx.WithError(err).Warn("Failed to write message to websocket")
				return
			}

		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				logCtx.Debug("Failed to send ping, closing")
				return
			}
		}
	}
}
