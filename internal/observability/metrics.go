package observability

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics is a centralized collection of Prometheus instruments for the
// daemon's two subsystems: the filesystem index and the session runtime.
//
// Usage:
//
//	metrics := observability.NewMetrics()
//	metrics.IndexBuildStarted("/Users/jsmith")
//	defer metrics.RecordLLMRequest("anthropic", "claude-sonnet-4", "success", elapsed, in, out)
type Metrics struct {
	// IndexedNodes tracks the number of nodes indexed per root, updated as
	// the walker and convert phases progress.
	IndexedNodes *prometheus.GaugeVec

	// IndexBuildDuration measures wall time from walk start to ready, per root.
	IndexBuildDuration *prometheus.HistogramVec

	// IndexBuildsTotal counts completed index builds by root and outcome.
	IndexBuildsTotal *prometheus.CounterVec

	// WatcherEventsTotal counts filesystem change events observed, by root and kind.
	WatcherEventsTotal *prometheus.CounterVec

	// WatcherRescansTotal counts must-rescan/root-changed escalations, by root.
	WatcherRescansTotal *prometheus.CounterVec

	// QueryDuration measures compiled-query evaluation latency.
	QueryDuration *prometheus.HistogramVec

	// QueryResultsReturned tracks result-set size per query.
	QueryResultsReturned prometheus.Histogram

	// SemaphoreInUse gauges the current occupancy of each named concurrency
	// limiter (llm, tool, async_job).
	SemaphoreInUse *prometheus.GaugeVec

	// SemaphoreWaiters gauges goroutines blocked waiting on a limiter.
	SemaphoreWaiters *prometheus.GaugeVec

	// LLMRequestDuration measures provider completion call latency.
	LLMRequestDuration *prometheus.HistogramVec

	// LLMRequestCounter counts provider completion calls by outcome.
	LLMRequestCounter *prometheus.CounterVec

	// LLMTokensUsed tracks token consumption by provider, model, and kind.
	LLMTokensUsed *prometheus.CounterVec

	// ToolExecutionCounter counts tool invocations by name and outcome.
	ToolExecutionCounter *prometheus.CounterVec

	// ToolExecutionDuration measures tool execution latency by name.
	ToolExecutionDuration *prometheus.HistogramVec

	// ActiveSessions gauges live session actors.
	ActiveSessions prometheus.Gauge

	// SessionRunDuration measures one run (user message in, idle out).
	SessionRunDuration prometheus.Histogram

	// ErrorCounter tracks errors by component and taxonomy class.
	ErrorCounter *prometheus.CounterVec
}

// NewMetrics builds and registers the metric set against the default
// Prometheus registry. Call once at daemon startup.
func NewMetrics() *Metrics {
	return &Metrics{
		IndexedNodes: promauto.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "cocommand_index_nodes",
				Help: "Number of filesystem nodes currently indexed, by root",
			},
			[]string{"root"},
		),
		IndexBuildDuration: promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "cocommand_index_build_duration_seconds",
				Help:    "Wall time from walk start to index ready, by root",
				Buckets: []float64{0.1, 0.5, 1, 5, 15, 30, 60, 180, 600},
			},
			[]string{"root"},
		),
		IndexBuildsTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "cocommand_index_builds_total",
				Help: "Total index builds by root and outcome (ready|failed|cancelled)",
			},
			[]string{"root", "outcome"},
		),
		WatcherEventsTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "cocommand_watcher_events_total",
				Help: "Filesystem change events observed by root and kind (create|write|remove|rename)",
			},
			[]string{"root", "kind"},
		),
		WatcherRescansTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "cocommand_watcher_rescans_total",
				Help: "Watcher escalations to a full rescan, by root",
			},
			[]string{"root"},
		),
		QueryDuration: promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "cocommand_query_duration_seconds",
				Help:    "Compiled query evaluation latency",
				Buckets: []float64{0.0001, 0.0005, 0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1},
			},
			[]string{"deferred"},
		),
		QueryResultsReturned: promauto.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "cocommand_query_results",
				Help:    "Number of results returned per query",
				Buckets: []float64{0, 1, 5, 25, 100, 500, 2000, 10000},
			},
		),
		SemaphoreInUse: promauto.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "cocommand_semaphore_in_use",
				Help: "Permits currently held, by semaphore name (llm|tool|async_job)",
			},
			[]string{"name"},
		),
		SemaphoreWaiters: promauto.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "cocommand_semaphore_waiters",
				Help: "Goroutines waiting to acquire, by semaphore name",
			},
			[]string{"name"},
		),
		LLMRequestDuration: promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "cocommand_llm_request_duration_seconds",
				Help:    "Duration of LLM provider completion calls",
				Buckets: []float64{0.1, 0.5, 1, 2, 5, 10, 30, 60},
			},
			[]string{"provider", "model"},
		),
		LLMRequestCounter: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "cocommand_llm_requests_total",
				Help: "Total LLM provider completion calls by provider, model, and status",
			},
			[]string{"provider", "model", "status"},
		),
		LLMTokensUsed: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "cocommand_llm_tokens_total",
				Help: "Tokens consumed by provider, model, and kind (prompt|completion)",
			},
			[]string{"provider", "model", "kind"},
		),
		ToolExecutionCounter: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "cocommand_tool_executions_total",
				Help: "Tool invocations by name and status",
			},
			[]string{"tool_name", "status"},
		),
		ToolExecutionDuration: promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "cocommand_tool_execution_duration_seconds",
				Help:    "Tool execution latency by name",
				Buckets: []float64{0.001, 0.01, 0.05, 0.1, 0.5, 1, 5, 10, 30},
			},
			[]string{"tool_name"},
		),
		ActiveSessions: promauto.NewGauge(
			prometheus.GaugeOpts{
				Name: "cocommand_active_sessions",
				Help: "Number of live session runtime actors",
			},
		),
		SessionRunDuration: promauto.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "cocommand_session_run_duration_seconds",
				Help:    "Duration of one session run, from message accepted to idle",
				Buckets: []float64{0.1, 0.5, 1, 5, 15, 30, 60, 180},
			},
		),
		ErrorCounter: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "cocommand_errors_total",
				Help: "Errors by component and taxonomy class",
			},
			[]string{"component", "class"},
		),
	}
}

// RecordLLMRequest records one provider completion call.
func (m *Metrics) RecordLLMRequest(provider, model, status string, durationSeconds float64, promptTokens, completionTokens int) {
	m.LLMRequestCounter.WithLabelValues(provider, model, status).Inc()
	m.LLMRequestDuration.WithLabelValues(provider, model).Observe(durationSeconds)
	if promptTokens > 0 {
		m.LLMTokensUsed.WithLabelValues(provider, model, "prompt").Add(float64(promptTokens))
	}
	if completionTokens > 0 {
		m.LLMTokensUsed.WithLabelValues(provider, model, "completion").Add(float64(completionTokens))
	}
}

// RecordToolExecution records one tool call.
func (m *Metrics) RecordToolExecution(toolName, status string, durationSeconds float64) {
	m.ToolExecutionCounter.WithLabelValues(toolName, status).Inc()
	m.ToolExecutionDuration.WithLabelValues(toolName).Observe(durationSeconds)
}

// RecordError increments the error counter for a component/class pair.
func (m *Metrics) RecordError(component, class string) {
	m.ErrorCounter.WithLabelValues(component, class).Inc()
}

// RecordQuery records one compiled query evaluation.
func (m *Metrics) RecordQuery(hadDeferredFilters bool, durationSeconds float64, results int) {
	deferred := "false"
	if hadDeferredFilters {
		deferred = "true"
	}
	m.QueryDuration.WithLabelValues(deferred).Observe(durationSeconds)
	m.QueryResultsReturned.Observe(float64(results))
}

// SetSemaphoreOccupancy reports current occupancy for a named limiter.
func (m *Metrics) SetSemaphoreOccupancy(name string, inUse, waiters int) {
	m.SemaphoreInUse.WithLabelValues(name).Set(float64(inUse))
	m.SemaphoreWaiters.WithLabelValues(name).Set(float64(waiters))
}

// IndexBuildStarted resets the node gauge for a root at the start of a walk.
func (m *Metrics) IndexBuildStarted(root string) {
	m.IndexedNodes.WithLabelValues(root).Set(0)
}

// SetIndexedNodes reports the current node count for a root.
func (m *Metrics) SetIndexedNodes(root string, n int64) {
	m.IndexedNodes.WithLabelValues(root).Set(float64(n))
}

// RecordIndexBuild records completion of an index build for a root.
func (m *Metrics) RecordIndexBuild(root, outcome string, durationSeconds float64) {
	m.IndexBuildsTotal.WithLabelValues(root, outcome).Inc()
	m.IndexBuildDuration.WithLabelValues(root).Observe(durationSeconds)
}

// RecordWatcherEvent records one coalesced filesystem change event.
func (m *Metrics) RecordWatcherEvent(root, kind string) {
	m.WatcherEventsTotal.WithLabelValues(root, kind).Inc()
}

// RecordWatcherRescan records a must-rescan/root-changed escalation.
func (m *Metrics) RecordWatcherRescan(root string) {
	m.WatcherRescansTotal.WithLabelValues(root).Inc()
}

// SessionStarted increments the active session gauge.
func (m *Metrics) SessionStarted() {
	m.ActiveSessions.Inc()
}

// SessionEnded decrements the active session gauge and records run duration.
func (m *Metrics) SessionEnded(durationSeconds float64) {
	m.ActiveSessions.Dec()
	m.SessionRunDuration.Observe(durationSeconds)
}
