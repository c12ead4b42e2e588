package observability

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics provides a centralized interface for collecting conductor
// metrics. It tracks:
//   - Turn throughput and failure reasons
//   - Tool-call emission by tool name
//   - Provider request latency and failure counts by provider/model
//   - Open client connection counts for capacity planning
//   - HTTP request latency for non-WS endpoints such as /healthz
//
// Usage:
//
//	metrics := observability.NewMetrics()
//	metrics.TurnStarted()
//	metrics.RecordProviderRequest("anthropic", "claude-3-opus", "success", time.Since(start).Seconds())
type Metrics struct {
	// TurnCounter tracks conductor turns by outcome.
	// Labels: outcome (started|completed|failed)
	TurnCounter *prometheus.CounterVec

	// TurnFailureReasons tracks turn failures by reason.
	// Labels: reason (matches the error taxonomy's codes)
	TurnFailureReasons *prometheus.CounterVec

	// ToolCallCounter counts tool.call emissions by tool name.
	// Labels: tool_name
	ToolCallCounter *prometheus.CounterVec

	// ProviderRequestDuration measures model-provider call latency in seconds.
	// Labels: provider, model
	// Buckets: 0.1s, 0.5s, 1s, 2s, 5s, 10s, 30s, 60s
	ProviderRequestDuration *prometheus.HistogramVec

	// ProviderRequestCounter counts provider requests by provider, model, status.
	// Labels: provider, model, status (success|error)
	ProviderRequestCounter *prometheus.CounterVec

	// ProviderFailureCounter counts provider failures by provider name.
	// Labels: provider
	ProviderFailureCounter *prometheus.CounterVec

	// ActiveSessions is a gauge tracking the number of open client
	// connections (the transport sets it on connect and disconnect).
	ActiveSessions prometheus.Gauge

	// InboundEnvelopesCounter counts inbound envelopes by disposition.
	// Labels: disposition (admitted|rate_limited|invalid|duplicate|session_mismatch)
	InboundEnvelopesCounter *prometheus.CounterVec

	// HTTPRequestDuration measures HTTP request latency for non-WS endpoints.
	// Labels: method, path, status_code
	HTTPRequestDuration *prometheus.HistogramVec
}

// NewMetrics creates and registers all Prometheus metrics. Call once at
// startup; the returned value is safe for concurrent use.
func NewMetrics() *Metrics {
	return &Metrics{
		TurnCounter: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "voiceconductor_turns_total",
				Help: "Total number of conductor turns by outcome",
			},
			[]string{"outcome"},
		),

		TurnFailureReasons: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "voiceconductor_turn_failures_total",
				Help: "Total number of failed turns by reason code",
			},
			[]string{"reason"},
		),

		ToolCallCounter: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "voiceconductor_tool_calls_total",
				Help: "Total number of tool.call events emitted by tool name",
			},
			[]string{"tool_name"},
		),

		ProviderRequestDuration: promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "voiceconductor_provider_request_duration_seconds",
				Help:    "Duration of model-provider requests in seconds",
				Buckets: []float64{0.1, 0.5, 1, 2, 5, 10, 30, 60},
			},
			[]string{"provider", "model"},
		),

		ProviderRequestCounter: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "voiceconductor_provider_requests_total",
				Help: "Total number of model-provider requests by provider, model, status",
			},
			[]string{"provider", "model", "status"},
		),

		ProviderFailureCounter: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "voiceconductor_provider_failures_total",
				Help: "Total number of model-provider failures by provider",
			},
			[]string{"provider"},
		),

		ActiveSessions: promauto.NewGauge(
			prometheus.GaugeOpts{
				Name: "voiceconductor_active_sessions",
				Help: "Current number of open client connections",
			},
		),

		InboundEnvelopesCounter: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "voiceconductor_inbound_envelopes_total",
				Help: "Total number of inbound envelopes by disposition",
			},
			[]string{"disposition"},
		),

		HTTPRequestDuration: promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "voiceconductor_http_request_duration_seconds",
				Help:    "Duration of HTTP requests in seconds",
				Buckets: []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1, 5},
			},
			[]string{"method", "path", "status_code"},
		),
	}
}

// TurnStarted records a conductor turn beginning.
func (m *Metrics) TurnStarted() {
	m.TurnCounter.WithLabelValues("started").Inc()
}

// TurnCompleted records a conductor turn finishing successfully.
func (m *Metrics) TurnCompleted() {
	m.TurnCounter.WithLabelValues("completed").Inc()
}

// TurnFailed records a conductor turn ending in an error, labeled by the
// error taxonomy's reason code (spec §7).
func (m *Metrics) TurnFailed(reason string) {
	m.TurnCounter.WithLabelValues("failed").Inc()
	m.TurnFailureReasons.WithLabelValues(reason).Inc()
}

// ToolCallEmitted records one tool.call emission.
func (m *Metrics) ToolCallEmitted(toolName string) {
	m.ToolCallCounter.WithLabelValues(toolName).Inc()
}

// RecordProviderRequest records the outcome and latency of one
// provider.GenerateResponse call.
func (m *Metrics) RecordProviderRequest(provider, model, status string, durationSeconds float64) {
	m.ProviderRequestCounter.WithLabelValues(provider, model, status).Inc()
	m.ProviderRequestDuration.WithLabelValues(provider, model).Observe(durationSeconds)
}

// ProviderFailure records a provider failure independent of the per-request
// counter above (used when the call site has no model label handy).
func (m *Metrics) ProviderFailure(providerName string) {
	m.ProviderFailureCounter.WithLabelValues(providerName).Inc()
}

// SetActiveSessions sets the active-session gauge to count.
func (m *Metrics) SetActiveSessions(count int) {
	m.ActiveSessions.Set(float64(count))
}

// RecordInboundEnvelope records one inbound envelope's disposition at the
// connection handler (spec §4.7).
func (m *Metrics) RecordInboundEnvelope(disposition string) {
	m.InboundEnvelopesCounter.WithLabelValues(disposition).Inc()
}

// RecordHTTPRequest records metrics for a non-WS HTTP request (e.g. /healthz).
func (m *Metrics) RecordHTTPRequest(method, path, statusCode string, durationSeconds float64) {
	m.HTTPRequestDuration.WithLabelValues(method, path, statusCode).Observe(durationSeconds)
}

// statusRecorder captures the status code a wrapped handler writes, since
// http.ResponseWriter doesn't expose it after the fact.
type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}

// InstrumentHTTP wraps next so every request records RecordHTTPRequest under
// the given route label (the /ws upgrade is excluded deliberately — its
// connection lifetime, not request latency, is what matters there).
func (m *Metrics) InstrumentHTTP(route string, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)
		m.RecordHTTPRequest(r.Method, route, strconv.Itoa(rec.status), time.Since(start).Seconds())
	})
}
