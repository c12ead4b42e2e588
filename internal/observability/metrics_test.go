package observability

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestNewMetrics(t *testing.T) {
	// NewMetrics registers with the default registry; calling it more than
	// once per process would panic on duplicate registration, so this is
	// exercised once via cmd/conductor at startup, not here.
	t.Log("NewMetrics is not called in this package's tests")
}

func TestTurnCounter(t *testing.T) {
	registry := prometheus.NewRegistry()
	counter := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "test_turns_total",
			Help: "Test turn counter",
		},
		[]string{"outcome"},
	)
	registry.MustRegister(counter)

	counter.WithLabelValues("started").Inc()
	counter.WithLabelValues("started").Inc()
	counter.WithLabelValues("completed").Inc()

	expected := `
		# HELP test_turns_total Test turn counter
		# TYPE test_turns_total counter
		test_turns_total{outcome="completed"} 1
		test_turns_total{outcome="started"} 2
	`
	if err := testutil.CollectAndCompare(counter, strings.NewReader(expected)); err != nil {
		t.Errorf("Unexpected metric value: %v", err)
	}
}

func TestToolCallCounter(t *testing.T) {
	registry := prometheus.NewRegistry()
	counter := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "test_tool_calls_total",
			Help: "Test tool call counter",
		},
		[]string{"tool_name"},
	)
	registry.MustRegister(counter)

	counter.WithLabelValues("convo.setState").Inc()
	counter.WithLabelValues("convo.setState").Inc()
	counter.WithLabelValues("tts.speak").Inc()

	if count := testutil.CollectAndCount(counter); count != 2 {
		t.Errorf("expected 2 label combinations, got %d", count)
	}
}

func TestProviderRequestCounter(t *testing.T) {
	registry := prometheus.NewRegistry()
	counter := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "test_provider_requests_total",
			Help: "Test provider request counter",
		},
		[]string{"provider", "model", "status"},
	)
	registry.MustRegister(counter)

	counter.WithLabelValues("anthropic", "claude-3-opus", "success").Inc()
	counter.WithLabelValues("openai", "gpt-4", "success").Inc()
	counter.WithLabelValues("anthropic", "claude-3-opus", "error").Inc()

	if count := testutil.CollectAndCount(counter); count < 3 {
		t.Error("expected at least 3 provider request label combinations")
	}
}

func TestTurnFailureReasons(t *testing.T) {
	registry := prometheus.NewRegistry()
	counter := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "test_turn_failures_total",
			Help: "Test turn failure counter",
		},
		[]string{"reason"},
	)
	registry.MustRegister(counter)

	counter.WithLabelValues("model_provider_failed").Inc()
	counter.WithLabelValues("model_provider_failed").Inc()
	counter.WithLabelValues("invalid_transcript").Inc()

	if count := testutil.CollectAndCount(counter); count < 1 {
		t.Error("expected at least 1 turn failure recorded")
	}
}

func TestActiveSessionsGauge(t *testing.T) {
	registry := prometheus.NewRegistry()
	gauge := prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "test_active_sessions",
			Help: "Test active sessions",
		},
	)
	registry.MustRegister(gauge)

	gauge.Inc()
	gauge.Inc()
	gauge.Dec()

	if got := testutil.ToFloat64(gauge); got != 1 {
		t.Errorf("active sessions = %v, want 1", got)
	}
}

func TestProviderRequestDurationBuckets(t *testing.T) {
	registry := prometheus.NewRegistry()
	histogram := prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "test_provider_request_duration_seconds",
			Help:    "Test provider request duration histogram",
			Buckets: []float64{0.1, 0.5, 1, 2, 5, 10, 30, 60},
		},
		[]string{"provider", "model"},
	)
	registry.MustRegister(histogram)

	durations := []float64{0.1, 0.5, 1, 2, 5, 10, 30, 60}
	for _, d := range durations {
		histogram.WithLabelValues("anthropic", "claude-3-opus").Observe(d)
	}

	if testutil.CollectAndCount(histogram) < 1 {
		t.Error("expected histogram to have observations across buckets")
	}
}

func TestConcurrentMetrics(t *testing.T) {
	registry := prometheus.NewRegistry()
	counter := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "test_concurrent_total",
			Help: "Test concurrent counter",
		},
		[]string{"label"},
	)
	registry.MustRegister(counter)

	done := make(chan bool)
	iterations := 100

	go func() {
		for i := 0; i < iterations; i++ {
			counter.WithLabelValues("a").Inc()
			time.Sleep(time.Microsecond)
		}
		done <- true
	}()

	go func() {
		for i := 0; i < iterations; i++ {
			counter.WithLabelValues("b").Inc()
			time.Sleep(time.Microsecond)
		}
		done <- true
	}()

	<-done
	<-done

	if testutil.CollectAndCount(counter) < 1 {
		t.Error("expected concurrent metric recording to work")
	}
}

func TestInstrumentHTTPRecordsStatusAndRoute(t *testing.T) {
	histogram := prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "test_http_request_duration_seconds",
			Help:    "Test HTTP request duration histogram",
			Buckets: []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1, 5},
		},
		[]string{"method", "path", "status_code"},
	)
	registry := prometheus.NewRegistry()
	registry.MustRegister(histogram)
	m := &Metrics{HTTPRequestDuration: histogram}

	handler := m.InstrumentHTTP("/healthz", http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))

	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("status = %d, want %d", rec.Code, http.StatusServiceUnavailable)
	}

	observer, err := histogram.GetMetricWithLabelValues(http.MethodGet, "/healthz", "503")
	if err != nil {
		t.Fatalf("GetMetricWithLabelValues: %v", err)
	}
	if count := testutil.CollectAndCount(observer.(prometheus.Collector)); count != 1 {
		t.Errorf("expected exactly 1 observation labeled 503, got %d", count)
	}
}

func TestInstrumentHTTPDefaultsStatusTo200WhenUnset(t *testing.T) {
	histogram := prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "test_http_request_duration_seconds_default",
			Help:    "Test HTTP request duration histogram",
			Buckets: []float64{0.001, 0.1, 1},
		},
		[]string{"method", "path", "status_code"},
	)
	m := &Metrics{HTTPRequestDuration: histogram}

	handler := m.InstrumentHTTP("/healthz", http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("ok")) // never calls WriteHeader explicitly
	}))

	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("httptest recorder status = %d, want 200", rec.Code)
	}
	if count := testutil.CollectAndCount(histogram); count < 1 {
		t.Error("expected InstrumentHTTP to record an observation even without an explicit WriteHeader")
	}
}
