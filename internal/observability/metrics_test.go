package observability

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestNewMetricsRegistersAndCounts(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewMetrics(reg)

	m.ThreadsCreated.Inc()
	m.MessagesProcessed.WithLabelValues("inbound").Inc()
	m.MessagesProcessed.WithLabelValues("synced").Add(3)
	m.Runs.WithLabelValues("completed").Inc()
	m.ModeSwitches.Inc()
	m.ActiveQueues.Set(2)

	if got := testutil.ToFloat64(m.ThreadsCreated); got != 1 {
		t.Fatalf("threads_created_total = %v, want 1", got)
	}
	if got := testutil.ToFloat64(m.MessagesProcessed.WithLabelValues("synced")); got != 3 {
		t.Fatalf("messages_processed_total{synced} = %v, want 3", got)
	}
	if got := testutil.ToFloat64(m.Runs.WithLabelValues("completed")); got != 1 {
		t.Fatalf("runs_total{completed} = %v, want 1", got)
	}
	if got := testutil.ToFloat64(m.ActiveQueues); got != 2 {
		t.Fatalf("active_queues = %v, want 2", got)
	}
}

func TestNewMetricsDuplicateRegistrationPanics(t *testing.T) {
	reg := prometheus.NewRegistry()
	NewMetrics(reg)
	defer func() {
		if recover() == nil {
			t.Fatal("expected duplicate registration to panic")
		}
	}()
	NewMetrics(reg)
}
