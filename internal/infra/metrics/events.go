package metrics

import "github.com/prometheus/client_golang/prometheus"

func init() { register(eventsPublishedTotal) }

var eventsPublishedTotal = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Name: "license_events_published_total",
		Help: "License events handed to the broker, by type and status.",
	},
	[]string{"type", "status"}, // status: 'ok', 'failed', 'dropped'
)

func IncEventPublished(eventType, status string) {
	eventsPublishedTotal.WithLabelValues(norm(eventType), norm(status)).Inc()
}
