package metric

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics contains the core pipeline metrics shared by the consumer, the
// resolvers and the execution engine.
type Metrics struct {
	// Consumer metrics
	MessagesConsumed *prometheus.CounterVec // by tenant
	MessagesDropped  *prometheus.CounterVec // by reason
	DeadLettered     *prometheus.CounterVec // by reason

	// Resolution metrics
	CacheLookups     *prometheus.CounterVec // by entity kind and outcome
	ChainResolutions *prometheus.CounterVec // by source tier

	// Execution metrics
	Executions       *prometheus.CounterVec // by terminal status
	NodeDuration     *prometheus.HistogramVec
	PipelineDuration *prometheus.HistogramVec
}

// NewMetrics creates the core metric set.
func NewMetrics() *Metrics {
	return &Metrics{
		MessagesConsumed: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "petroedge",
				Subsystem: "consumer",
				Name:      "messages_consumed_total",
				Help:      "Total telemetry messages received from the broker",
			},
			[]string{"tenant"},
		),

		MessagesDropped: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "petroedge",
				Subsystem: "consumer",
				Name:      "messages_dropped_total",
				Help:      "Messages dropped, by failure reason",
			},
			[]string{"reason"},
		),

		DeadLettered: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "petroedge",
				Subsystem: "consumer",
				Name:      "dead_lettered_total",
				Help:      "Messages published to the dead-letter subject, by reason",
			},
			[]string{"reason"},
		),

		CacheLookups: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "petroedge",
				Subsystem: "resolver",
				Name:      "cache_lookups_total",
				Help:      "Cache lookups during resolution, by entity kind and outcome",
			},
			[]string{"kind", "outcome"},
		),

		ChainResolutions: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "petroedge",
				Subsystem: "resolver",
				Name:      "chain_resolutions_total",
				Help:      "Rule chain resolutions, by selected source tier",
			},
			[]string{"source"},
		),

		Executions: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "petroedge",
				Subsystem: "engine",
				Name:      "executions_total",
				Help:      "Rule chain executions, by terminal status",
			},
			[]string{"status"},
		),

		NodeDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: "petroedge",
				Subsystem: "engine",
				Name:      "node_duration_seconds",
				Help:      "Per-node execution duration in seconds",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"node_type"},
		),

		PipelineDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: "petroedge",
				Subsystem: "consumer",
				Name:      "pipeline_duration_seconds",
				Help:      "End-to-end per-message pipeline duration in seconds",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"outcome"},
		),
	}
}
