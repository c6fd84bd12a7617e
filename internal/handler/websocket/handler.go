package websocket

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"

	"collaborative-pad/internal/hub"
)

// Handler upgrades HTTP requests to WebSocket connections and hands them
// to the hub. Room membership is negotiated over the socket itself, so
// the upgrade carries no parameters.
type Handler struct {
	upgrader websocket.Upgrader
	hub      *hub.Hub
}

// NewHandler creates a Handler. allowedOrigin restricts upgrades to one
// origin; empty allows all (development).
func NewHandler(h *hub.Hub, allowedOrigin string) *Handler {
	if h == nil {
		panic("Hub cannot be nil for websocket Handler")
	}

	upgrader := websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin: func(r *http.Request) bool {
			if allowedOrigin == "" {
				return true
			}
			return r.Header.Get("Origin") == allowedOrigin
		},
	}

	return &Handler{upgrader: upgrader, hub: h}
}

// HandleConnection upgrades the request and starts the client pumps.
func (h *Handler) HandleConnection(c *gin.Context) {
	conn, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		// Upgrade already wrote the HTTP error response.
		logrus.WithError(err).Warn("WS Handler: failed to upgrade connection")
		return
	}

	client := hub.NewClient(h.hub, conn)
	h.hub.Register(client)
	client.Run()

	logrus.WithFields(logrus.Fields{
		"conn_id":   client.ID(),
		"remote_ip": c.ClientIP(),
	}).Info("WS Handler: connection upgraded")
}
