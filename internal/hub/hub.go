package hub

import (
	"encoding/json"
	"sync/atomic"
	"time"

	"github.com/sirupsen/logrus"

	"collaborative-pad/internal/domain"
	"collaborative-pad/internal/dto"
	"collaborative-pad/internal/metrics"
	"collaborative-pad/internal/service"
)

// Options tunes per-connection behavior.
type Options struct {
	// MaxMessageSize caps inbound frame size in bytes.
	MaxMessageSize int64
	// RateBurst and RateRefill parameterize the per-connection inbound
	// token bucket: RateBurst frames, refilled over RateRefill.
	RateBurst  int
	RateRefill time.Duration
}

// Hub routes inbound frames from connections to the room registry and
// triggers the resulting broadcasts. Routing runs on each connection's
// own reader goroutine; the registry and room locks provide all the
// serialization, so traffic in distinct rooms never contends.
type Hub struct {
	registry *service.RoomRegistry

	maxMessageSize int64
	rateBurst      int
	rateRefill     time.Duration

	connections atomic.Int64
}

// NewHub creates a Hub routing into registry.
func NewHub(registry *service.RoomRegistry, opts Options) *Hub {
	if registry == nil {
		panic("RoomRegistry cannot be nil for Hub")
	}
	if opts.MaxMessageSize <= 0 {
		opts.MaxMessageSize = 64 * 1024
	}
	if opts.RateBurst <= 0 {
		opts.RateBurst = 50
	}
	if opts.RateRefill <= 0 {
		opts.RateRefill = time.Second
	}
	return &Hub{
		registry:       registry,
		maxMessageSize: opts.MaxMessageSize,
		rateBurst:      opts.RateBurst,
		rateRefill:     opts.RateRefill,
	}
}

// Register accounts for a freshly upgraded connection.
func (h *Hub) Register(c *Client) {
	h.connections.Add(1)
	metrics.ConnectionsActive.Inc()
	logrus.WithFields(logrus.Fields{"component": "hub", "conn_id": c.ID()}).Info("Client registered")
}

// ConnectionCount returns the number of open connections.
func (h *Hub) ConnectionCount() int64 {
	return h.connections.Load()
}

// disconnect runs the implicit-leave path when a connection's transport
// closes. readPump guarantees it is invoked exactly once per connection;
// a connection that never joined a room makes it a no-op.
func (h *Hub) disconnect(c *Client) {
	room := c.Room()
	c.setRoom(nil)
	h.registry.Leave(room, c)
	c.closeSend()
	h.connections.Add(-1)
	metrics.ConnectionsActive.Dec()
	logrus.WithFields(logrus.Fields{"component": "hub", "conn_id": c.ID()}).Info("Client disconnected")
}

// routeFrame parses one inbound frame and dispatches it. Malformed
// payloads and unknown types are dropped silently; they are an operator
// log line, not part of the client-visible contract.
func (h *Hub) routeFrame(c *Client, payload []byte) {
	logCtx := logrus.WithFields(logrus.Fields{"component": "hub", "conn_id": c.ID()})

	var msg dto.ClientMessage
	if err := json.Unmarshal(payload, &msg); err != nil {
		logCtx.WithError(err).Debug("Dropping malformed frame")
		return
	}

	switch msg.Type {
	case dto.TypeCreate:
		metrics.MessagesInbound.WithLabelValues(dto.TypeCreate).Inc()
		h.handleCreate(c, msg)
	case dto.TypeJoin:
		metrics.MessagesInbound.WithLabelValues(dto.TypeJoin).Inc()
		h.handleJoin(c, msg)
	case dto.TypeEdit:
		metrics.MessagesInbound.WithLabelValues(dto.TypeEdit).Inc()
		h.handleEdit(c, msg)
	case dto.TypeLeave:
		metrics.MessagesInbound.WithLabelValues(dto.TypeLeave).Inc()
		h.handleLeave(c)
	default:
		metrics.MessagesInbound.WithLabelValues("unknown").Inc()
		logCtx.WithField("type", msg.Type).Debug("Dropping frame with unknown type")
	}
}

func (h *Hub) handleCreate(c *Client, msg dto.ClientMessage) {
	id, err := h.registry.Create(msg.RoomID, msg.Password)
	if err != nil {
		h.sendTo(c, dto.NewError(err))
		return
	}
	h.sendTo(c, dto.NewRoomCreated(id))
}

func (h *Hub) handleJoin(c *Client, msg dto.ClientMessage) {
	// The registry delivers the joined snapshot and the presence fanout
	// itself, under the room lock, so the joiner hears joined first.
	room, _, err := h.registry.Join(msg.RoomID, msg.Password, c)
	if err != nil {
		h.sendTo(c, dto.NewError(err))
		return
	}

	// A connection belongs to at most one room: joining while attached
	// elsewhere is a room switch, so detach from the old room after the
	// new membership is established.
	if old := c.Room(); old != nil && old != room {
		h.registry.Leave(old, c)
	}
	c.setRoom(room)
}

func (h *Hub) handleEdit(c *Client, msg dto.ClientMessage) {
	room := c.Room()
	if room == nil {
		// Edits from roomless connections are dropped silently.
		logrus.WithFields(logrus.Fields{"component": "hub", "conn_id": c.ID()}).Debug("Dropping edit from connection without a room")
		return
	}

	// msg.BaseVersion is deliberately not compared against the room
	// version: edits fully overwrite shared state, last-write-wins.
	version, err := room.ApplyEditAndBroadcast(msg.Text, time.Now(), func(snap domain.Snapshot) ([]byte, error) {
		return json.Marshal(dto.NewUpdate(snap.Text, snap.Version))
	})
	if err != nil {
		logrus.WithError(err).Error("Failed to encode update broadcast")
		return
	}
	metrics.EditsApplied.Inc()
	logrus.WithFields(logrus.Fields{
		"component": "hub",
		"conn_id":   c.ID(),
		"room_id":   room.ID(),
		"version":   version,
	}).Debug("Edit applied and broadcast")
}

func (h *Hub) handleLeave(c *Client) {
	room := c.Room()
	c.setRoom(nil)
	h.registry.Leave(room, c)
	// The ack goes back regardless; the side effects above were
	// conditional on actually being in a room.
	h.sendTo(c, dto.NewLeftRoom())
}

// sendTo marshals v and queues it for a single connection.
func (h *Hub) sendTo(c *Client, v any) {
	payload, err := json.Marshal(v)
	if err != nil {
		logrus.WithError(err).Error("Failed to marshal outbound message")
		return
	}
	c.Deliver(payload)
}
