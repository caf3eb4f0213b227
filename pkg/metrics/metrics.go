package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// ActiveConnections tracks currently bound WebSocket connections.
	ActiveConnections = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "presence_active_connections",
		Help: "Number of live WebSocket connections.",
	})

	JoinsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "presence_room_joins_total",
		Help: "Successful room joins.",
	})

	RejectedJoinsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "presence_room_joins_rejected_total",
		Help: "Rejected room joins by reason.",
	}, []string{"reason"})

	MessagesTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "presence_chat_messages_total",
		Help: "Chat messages broadcast to rooms.",
	})

	BroadcastDropsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "presence_broadcast_drops_total",
		Help: "Events skipped because a recipient could not accept them.",
	})
)

// Handler exposes Prometheus metrics at /metrics.
func Handler() http.Handler {
	return promhttp.Handler()
}
