package observability

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics exposes the bridge's operational counters. These mirror the
// persisted global statistics and are observational only; nothing in
// the pipeline reads them back for control decisions.
type Metrics struct {
	// ThreadsCreated counts new conversation records (one per new
	// Slack thread the bot joins).
	ThreadsCreated prometheus.Counter

	// MessagesProcessed counts messages flowing through the bridge.
	// Labels: direction (inbound|synced|outbound).
	MessagesProcessed *prometheus.CounterVec

	// ModeSwitches counts persona mode changes.
	ModeSwitches prometheus.Counter

	// Runs counts assistant runs by terminal status.
	// Labels: status (completed|failed|expired).
	Runs *prometheus.CounterVec

	// RunDuration measures end-to-end run latency in seconds,
	// submission through reply extraction.
	RunDuration prometheus.Histogram

	// ActiveQueues tracks how many conversation keys currently have
	// queue state in the serializer.
	ActiveQueues prometheus.Gauge

	// IntegrationRequests counts ticketing/documentation calls.
	// Labels: integration (jira|confluence), status (success|error).
	IntegrationRequests *prometheus.CounterVec
}

// NewMetrics registers and returns the bridge metrics. Pass nil to use
// the default Prometheus registerer.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	factory := promauto.With(reg)

	return &Metrics{
		ThreadsCreated: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "loom",
			Name:      "threads_created_total",
			Help:      "Conversation records created for new chat threads.",
		}),
		MessagesProcessed: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "loom",
			Name:      "messages_processed_total",
			Help:      "Messages handled by the bridge.",
		}, []string{"direction"}),
		ModeSwitches: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "loom",
			Name:      "mode_switches_total",
			Help:      "Persona mode changes requested by users.",
		}),
		Runs: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "loom",
			Name:      "runs_total",
			Help:      "Assistant runs by terminal status.",
		}, []string{"status"}),
		RunDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: "loom",
			Name:      "run_duration_seconds",
			Help:      "Assistant run latency from submission to reply.",
			Buckets:   []float64{0.5, 1, 2, 5, 10, 30, 60, 120},
		}),
		ActiveQueues: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: "loom",
			Name:      "active_queues",
			Help:      "Conversation keys with live serializer queue state.",
		}),
		IntegrationRequests: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "loom",
			Name:      "integration_requests_total",
			Help:      "Ticketing and documentation integration calls.",
		}, []string{"integration", "status"}),
	}
}
