package observability

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestRecordLLMRequest(t *testing.T) {
	registry := prometheus.NewRegistry()
	counter := prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "test_llm_requests_total", Help: "test"},
		[]string{"provider", "model", "status"},
	)
	tokens := prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "test_llm_tokens_total", Help: "test"},
		[]string{"provider", "model", "kind"},
	)
	registry.MustRegister(counter, tokens)

	counter.WithLabelValues("anthropic", "claude-sonnet-4", "success").Inc()
	tokens.WithLabelValues("anthropic", "claude-sonnet-4", "prompt").Add(100)
	tokens.WithLabelValues("anthropic", "claude-sonnet-4", "completion").Add(40)

	if got := testutil.ToFloat64(counter.WithLabelValues("anthropic", "claude-sonnet-4", "success")); got != 1 {
		t.Errorf("expected 1 success request, got %v", got)
	}
	if got := testutil.ToFloat64(tokens.WithLabelValues("anthropic", "claude-sonnet-4", "prompt")); got != 100 {
		t.Errorf("expected 100 prompt tokens, got %v", got)
	}
}

func TestSemaphoreOccupancyGauges(t *testing.T) {
	m := &Metrics{
		SemaphoreInUse: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{Name: "test_sem_in_use", Help: "test"},
			[]string{"name"},
		),
		SemaphoreWaiters: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{Name: "test_sem_waiters", Help: "test"},
			[]string{"name"},
		),
	}

	m.SetSemaphoreOccupancy("llm", 3, 1)

	if got := testutil.ToFloat64(m.SemaphoreInUse.WithLabelValues("llm")); got != 3 {
		t.Errorf("expected in-use 3, got %v", got)
	}
	if got := testutil.ToFloat64(m.SemaphoreWaiters.WithLabelValues("llm")); got != 1 {
		t.Errorf("expected waiters 1, got %v", got)
	}
}

func TestIndexBuildGauges(t *testing.T) {
	m := &Metrics{
		IndexedNodes: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{Name: "test_index_nodes", Help: "test"},
			[]string{"root"},
		),
		IndexBuildsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{Name: "test_index_builds_total", Help: "test"},
			[]string{"root", "outcome"},
		),
		IndexBuildDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{Name: "test_index_build_duration", Help: "test"},
			[]string{"root"},
		),
	}

	m.IndexBuildStarted("/Users/jsmith")
	m.SetIndexedNodes("/Users/jsmith", 42)
	m.RecordIndexBuild("/Users/jsmith", "ready", 1.5)

	if got := testutil.ToFloat64(m.IndexedNodes.WithLabelValues("/Users/jsmith")); got != 42 {
		t.Errorf("expected 42 indexed nodes, got %v", got)
	}
	if got := testutil.ToFloat64(m.IndexBuildsTotal.WithLabelValues("/Users/jsmith", "ready")); got != 1 {
		t.Errorf("expected 1 completed build, got %v", got)
	}
}
