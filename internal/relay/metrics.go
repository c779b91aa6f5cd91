package relay

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const (
	dropInvalidFrame = "invalid_frame"
	dropRateLimited  = "rate_limited"
	dropSlowClient   = "slow_client"
	dropBackplane    = "backplane"
)

type metrics struct {
	eventsTotal  *prometheus.CounterVec
	droppedTotal *prometheus.CounterVec
	deliveries   prometheus.Counter
	clients      prometheus.Gauge
}

func newMetrics(reg prometheus.Registerer) *metrics {
	factory := promauto.With(reg)
	return &metrics{
		eventsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "pagesync",
			Subsystem: "relay",
			Name:      "events_total",
			Help:      "Sync events relayed, by event name and source.",
		}, []string{"event", "source"}),
		droppedTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "pagesync",
			Subsystem: "relay",
			Name:      "dropped_total",
			Help:      "Frames or deliveries dropped, by reason.",
		}, []string{"reason"}),
		deliveries: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "pagesync",
			Subsystem: "relay",
			Name:      "deliveries_total",
			Help:      "Frames queued to connected clients.",
		}),
		clients: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: "pagesync",
			Subsystem: "relay",
			Name:      "clients",
			Help:      "Connected websocket clients.",
		}),
	}
}
