package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds all Prometheus metrics for the application.
type Metrics struct {
	TransitionsTotal       *prometheus.CounterVec
	DashboardQueryDuration *prometheus.HistogramVec
	OutboxTasksQueued      prometheus.Counter
}

// New creates and registers all Prometheus metrics.
func New() *Metrics {
	return &Metrics{
		TransitionsTotal: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "mealflow_transitions_total",
			Help: "Workflow transition attempts by kind, transition and outcome",
		}, []string{"kind", "transition", "outcome"}),
		DashboardQueryDuration: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "mealflow_dashboard_query_seconds",
			Help:    "Dashboard aggregation latency by entity kind",
			Buckets: prometheus.DefBuckets,
		}, []string{"kind"}),
		OutboxTasksQueued: promauto.NewCounter(prometheus.CounterOpts{
			Name: "mealflow_outbox_tasks_queued_total",
			Help: "Side-effect tasks written to the outbox",
		}),
	}
}
