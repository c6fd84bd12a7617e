package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// ConnectionsActive tracks currently open WebSocket connections.
	ConnectionsActive = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "collabpad_connections_active",
		Help: "Number of open WebSocket connections.",
	})

	// RoomsActive tracks currently registered rooms.
	RoomsActive = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "collabpad_rooms_active",
		Help: "Number of live rooms in the registry.",
	})

	// MessagesInbound counts parsed inbound frames by message type.
	MessagesInbound = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "collabpad_messages_inbound_total",
		Help: "Inbound WebSocket messages processed, by type.",
	}, []string{"type"})

	// EditsApplied counts accepted document edits.
	EditsApplied = promauto.NewCounter(prometheus.CounterOpts{
		Name: "collabpad_edits_applied_total",
		Help: "Document edits applied across all rooms.",
	})

	// DeliveriesDropped counts broadcast payloads dropped because a
	// member's send buffer was full.
	DeliveriesDropped = promauto.NewCounter(prometheus.CounterOpts{
		Name: "collabpad_deliveries_dropped_total",
		Help: "Broadcast deliveries dropped due to slow consumers.",
	})
)

// Handler exposes Prometheus metrics at /metrics.
func Handler() http.Handler {
	return promhttp.Handler()
}
