package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

var (
	OutboxEventsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "automation_outbox_events_total",
			Help: "Outbox delivery outcomes by result",
		},
		[]string{"result"}, // published|rescheduled|failed|stale
	)

	OutboxBatchSize = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "automation_outbox_batch_size",
			Help:    "Events claimed per publish batch",
			Buckets: []float64{0, 1, 5, 10, 25, 50, 100, 250, 500},
		},
	)

	RunsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "automation_runs_total",
			Help: "Automation runs by terminal status",
		},
		[]string{"status"}, // succeeded|failed
	)

	ActionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "automation_actions_total",
			Help: "Executed actions by kind and status",
		},
		[]string{"kind", "status"},
	)

	ActionDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "automation_action_duration_seconds",
			Help:    "Action execution latency",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"kind"},
	)

	EventsConsumedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "automation_bus_events_consumed_total",
			Help: "Bus messages seen by the matcher worker",
		},
		[]string{"result"}, // handled|poison|error|duplicate
	)

	ChannelBreakerState = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "automation_channel_breaker_state",
			Help: "Circuit breaker state per channel provider (0=closed, 1=half_open, 2=open)",
		},
		[]string{"provider"},
	)
)

func MustRegister(r prometheus.Registerer) {
	r.MustRegister(
		OutboxEventsTotal,
		OutboxBatchSize,
		RunsTotal,
		ActionsTotal,
		ActionDuration,
		EventsConsumedTotal,
		ChannelBreakerState,
	)
}
