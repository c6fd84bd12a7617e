package http

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"collaborative-pad/internal/hub"
	"collaborative-pad/internal/service"
)

// Handler serves the plain-HTTP side of the server: liveness and
// operator visibility. All realtime traffic goes over the WebSocket.
type Handler struct {
	registry *service.RoomRegistry
	hub      *hub.Hub
}

// NewHandler creates a Handler.
func NewHandler(registry *service.RoomRegistry, h *hub.Hub) *Handler {
	if registry == nil {
		panic("RoomRegistry cannot be nil for http Handler")
	}
	if h == nil {
		panic("Hub cannot be nil for http Handler")
	}
	return &Handler{registry: registry, hub: h}
}

// Health answers the liveness probe with a static confirmation string.
func (h *Handler) Health(c *gin.Context) {
	c.String(http.StatusOK, "Realtime collab backend is running")
}

// Ping is a trivial reachability endpoint.
func (h *Handler) Ping(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"message": "pong"})
}

// StatsResponse reports live process counters.
type StatsResponse struct {
	Rooms       int   `json:"rooms"`
	Connections int64 `json:"connections"`
}

// Stats reports the current number of rooms and open connections.
func (h *Handler) Stats(c *gin.Context) {
	c.JSON(http.StatusOK, StatsResponse{
		Rooms:       h.registry.RoomCount(),
		Connections: h.hub.ConnectionCount(),
	})
}
