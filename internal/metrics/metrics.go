// Package metrics tracks pipeline health: an in-process snapshot for /stats and
// Prometheus collectors for /metrics.
package metrics

import (
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

type Metrics struct {
	mu sync.RWMutex

	// Counters
	RunsStarted       int64
	RunsSucceeded     int64
	RunsEmpty         int64
	RunsFailed        int64
	TopicsCollected   int64
	DuplicatesDropped int64
	OracleFallbacks   int64
	SinkFailures      int64
	MessagesSent      int64

	// Timings
	LastProcessingTime    time.Duration
	AverageProcessingTime time.Duration
	TotalProcessingTime   time.Duration
	ProcessingCount       int64

	// Status
	LastRunTime   time.Time
	LastTopic     string
	LastErrorTime time.Time
	LastError     string
	IsHealthy     bool

	registry      *prometheus.Registry
	runs          *prometheus.CounterVec
	collected     *prometheus.CounterVec
	duplicates    prometheus.Counter
	oracleCalls   *prometheus.CounterVec
	fallbacks     *prometheus.CounterVec
	providerCalls *prometheus.CounterVec
	sinkFailures  *prometheus.CounterVec
	messages      prometheus.Counter
	runDuration   prometheus.Histogram
}

// Global is the process-wide instance used by the CLI and the monitoring server.
var Global = New()

// New creates a Metrics with its own Prometheus registry.
func New() *Metrics {
	m := &Metrics{
		IsHealthy: true,
		registry:  prometheus.NewRegistry(),
		runs: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "banterbot_runs_total",
				Help: "Pipeline runs by terminal status.",
			},
			[]string{"status"},
		),
		collected: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "banterbot_topics_collected_total",
				Help: "Topic records returned by each producer.",
			},
			[]string{"origin"},
		),
		duplicates: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "banterbot_duplicates_dropped_total",
				Help: "Records dropped by the merger as duplicates or empty.",
			},
		),
		oracleCalls: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "banterbot_oracle_calls_total",
				Help: "Oracle calls by pipeline stage and outcome (ok, error, unparsed).",
			},
			[]string{"stage", "outcome"},
		),
		fallbacks: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "banterbot_stage_fallbacks_total",
				Help: "Times a stage substituted its fallback output.",
			},
			[]string{"stage"},
		),
		providerCalls: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "banterbot_oracle_provider_calls_total",
				Help: "Calls per oracle backend by outcome (ok, error, limited).",
			},
			[]string{"provider", "outcome"},
		),
		sinkFailures: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "banterbot_sink_failures_total",
				Help: "Failed writes per result sink.",
			},
			[]string{"sink"},
		),
		messages: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "banterbot_messages_sent_total",
				Help: "Telegram messages delivered.",
			},
		),
		runDuration: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "banterbot_run_duration_seconds",
				Help:    "Wall time of a pipeline run.",
				Buckets: []float64{1, 5, 10, 30, 60, 120, 300},
			},
		),
	}

	m.registry.MustRegister(
		m.runs,
		m.collected,
		m.duplicates,
		m.oracleCalls,
		m.fallbacks,
		m.providerCalls,
		m.sinkFailures,
		m.messages,
		m.runDuration,
	)
	return m
}

// Handler serves this instance's collectors in the Prometheus text format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// Gatherer exposes the registry for tests and custom exporters.
func (m *Metrics) Gatherer() prometheus.Gatherer {
	return m.registry
}

func (m *Metrics) RunStarted() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.RunsStarted++
}

// RunFinished records a terminal run status. status is one of DONE, TERMINATED_EMPTY or FAILED.
func (m *Metrics) RunFinished(status string, d time.Duration) {
	m.runs.WithLabelValues(status).Inc()
	m.runDuration.Observe(d.Seconds())

	m.mu.Lock()
	switch status {
	case "DONE":
		m.RunsSucceeded++
	case "TERMINATED_EMPTY":
		m.RunsEmpty++
	default:
		m.RunsFailed++
	}
	m.mu.Unlock()

	m.RecordProcessingTime(d)
}

func (m *Metrics) AddTopicsCollected(origin string, n int) {
	m.collected.WithLabelValues(origin).Add(float64(n))
	m.mu.Lock()
	defer m.mu.Unlock()
	m.TopicsCollected += int64(n)
}

func (m *Metrics) AddDuplicatesDropped(n int) {
	if n <= 0 {
		return
	}
	m.duplicates.Add(float64(n))
	m.mu.Lock()
	defer m.mu.Unlock()
	m.DuplicatesDropped += int64(n)
}

// OracleCall implements topics.Observer.
func (m *Metrics) OracleCall(stage, outcome string) {
	m.oracleCalls.WithLabelValues(stage, outcome).Inc()
}

// Fallback implements topics.Observer.
func (m *Metrics) Fallback(stage string) {
	m.fallbacks.WithLabelValues(stage).Inc()
	m.mu.Lock()
	defer m.mu.Unlock()
	m.OracleFallbacks++
}

// ProviderCall implements oracle.Recorder.
func (m *Metrics) ProviderCall(provider, outcome string) {
	m.providerCalls.WithLabelValues(provider, outcome).Inc()
}

func (m *Metrics) SinkFailure(sink string) {
	m.sinkFailures.WithLabelValues(sink).Inc()
	m.mu.Lock()
	defer m.mu.Unlock()
	m.SinkFailures++
}

func (m *Metrics) IncrementMessagesSent() {
	m.messages.Inc()
	m.mu.Lock()
	defer m.mu.Unlock()
	m.MessagesSent++
}

func (m *Metrics) RecordProcessingTime(duration time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.LastProcessingTime = duration
	m.TotalProcessingTime += duration
	m.ProcessingCount++
	m.AverageProcessingTime = m.TotalProcessingTime / time.Duration(m.ProcessingCount)
}

// SetLastRun marks a completed run and the topic it picked.
func (m *Metrics) SetLastRun(topic string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.LastRunTime = time.Now()
	m.LastTopic = topic
	m.IsHealthy = true
}

func (m *Metrics) SetError(err string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.LastError = err
	m.LastErrorTime = time.Now()
	m.IsHealthy = false
}

func (m *Metrics) Healthy() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.IsHealthy
}

func (m *Metrics) GetStats() map[string]interface{} {
	m.mu.RLock()
	defer m.mu.RUnlock()

	return map[string]interface{}{
		"runs_started":               m.RunsStarted,
		"runs_succeeded":             m.RunsSucceeded,
		"runs_empty":                 m.RunsEmpty,
		"runs_failed":                m.RunsFailed,
		"topics_collected":           m.TopicsCollected,
		"duplicates_dropped":         m.DuplicatesDropped,
		"oracle_fallbacks":           m.OracleFallbacks,
		"sink_failures":              m.SinkFailures,
		"messages_sent":              m.MessagesSent,
		"last_processing_time_ms":    m.LastProcessingTime.Milliseconds(),
		"average_processing_time_ms": m.AverageProcessingTime.Milliseconds(),
		"last_run_time":              m.LastRunTime.Format(time.RFC3339),
		"last_topic":                 m.LastTopic,
		"last_error_time":            m.LastErrorTime.Format(time.RFC3339),
		"last_error":                 m.LastError,
		"is_healthy":                 m.IsHealthy,
	}
}
