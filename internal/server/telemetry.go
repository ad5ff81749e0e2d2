package server

import (
	"context"
	"log/slog"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	prometheusotel "go.opentelemetry.io/otel/exporters/prometheus"
	"go.opentelemetry.io/otel/metric"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
)

// Telemetry aggregates Prometheus and OpenTelemetry instrumentation for the
// API. A disabled instance is a no-op and safe to call.
type Telemetry struct {
	enabled bool
	logger  *slog.Logger

	registry       *prometheus.Registry
	metricsHandler http.Handler
	meter          metric.Meter

	reqCount    atomic.Int64
	errCount    atomic.Int64
	lastStatus  atomic.Int64
	lastLatency atomic.Int64

	httpRequests  metric.Int64Counter
	httpErrors    metric.Int64Counter
	httpLatency   metric.Float64Histogram
	docWrites     metric.Int64Counter
	searchOps     metric.Int64Counter
	searchLatency metric.Float64Histogram

	documentGauge *prometheus.GaugeVec
	segmentGauge  *prometheus.GaugeVec
	pendingGauge  *prometheus.GaugeVec
}

// NewTelemetry wires the Prometheus registry and the OTel meter provider. When
// disabled it returns an inert instance.
func NewTelemetry(ctx context.Context, logger *slog.Logger, enabled bool) *Telemetry {
	telemetry := &Telemetry{enabled: enabled, logger: logger}
	if !enabled {
		return telemetry
	}

	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector())
	registry.MustRegister(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	exporter, err := prometheusotel.New(prometheusotel.WithRegisterer(registry))
	if err != nil {
		logger.Error("failed to initialize prometheus exporter", "error", err)
		telemetry.enabled = false
		return telemetry
	}

	provider := sdkmetric.NewMeterProvider(sdkmetric.WithReader(exporter))
	otel.SetMeterProvider(provider)
	meter := provider.Meter("sutrasearch")

	httpReq, _ := meter.Int64Counter("http_requests_total", metric.WithDescription("Total HTTP requests"))
	httpErr, _ := meter.Int64Counter("http_errors_total", metric.WithDescription("HTTP requests that returned an error status"))
	httpLatency, _ := meter.Float64Histogram("http_request_duration_ms", metric.WithDescription("Latency of HTTP requests in milliseconds"), metric.WithUnit("ms"))
	docWrites, _ := meter.Int64Counter("document_writes_total", metric.WithDescription("Document index, update, and delete operations"))
	searchOps, _ := meter.Int64Counter("search_requests_total", metric.WithDescription("Search operations executed"))
	searchLatency, _ := meter.Float64Histogram("search_latency_ms", metric.WithDescription("Latency of search operations"), metric.WithUnit("ms"))

	documentGauge := prometheus.NewGaugeVec(prometheus.GaugeOpts{Namespace: "sutrasearch", Name: "documents", Help: "Documents currently live in the index"}, []string{"index"})
	segmentGauge := prometheus.NewGaugeVec(prometheus.GaugeOpts{Namespace: "sutrasearch", Name: "segments", Help: "Persisted segments tracked by the index"}, []string{"index"})
	pendingGauge := prometheus.NewGaugeVec(prometheus.GaugeOpts{Namespace: "sutrasearch", Name: "pending_records", Help: "In-memory records awaiting the next refresh"}, []string{"index"})
	registry.MustRegister(documentGauge, segmentGauge, pendingGauge)

	telemetry.registry = registry
	telemetry.metricsHandler = promhttp.HandlerFor(registry, promhttp.HandlerOpts{})
	telemetry.meter = meter
	telemetry.httpRequests = httpReq
	telemetry.httpErrors = httpErr
	telemetry.httpLatency = httpLatency
	telemetry.docWrites = docWrites
	telemetry.searchOps = searchOps
	telemetry.searchLatency = searchLatency
	telemetry.documentGauge = documentGauge
	telemetry.segmentGauge = segmentGauge
	telemetry.pendingGauge = pendingGauge

	telemetry.logger.Info("telemetry initialized", "prometheus", true)
	telemetry.httpRequests.Add(ctx, 0) // ensure metric is created eagerly
	return telemetry
}

func (t *Telemetry) recordRequest(ctx context.Context, method, path string, status int, duration time.Duration) {
	if !t.enabled {
		return
	}

	attrs := metric.WithAttributes(
		attribute.String("method", method),
		attribute.String("path", path),
		attribute.Int("status", status),
	)
	t.httpRequests.Add(ctx, 1, attrs)
	t.httpLatency.Record(ctx, float64(duration.Milliseconds()), attrs)
	if status >= http.StatusBadRequest {
		t.httpErrors.Add(ctx, 1, attrs)
	}

	t.reqCount.Add(1)
	t.lastStatus.Store(int64(status))
	t.lastLatency.Store(duration.Milliseconds())
	if status >= http.StatusBadRequest {
		t.errCount.Add(1)
	}
}

func (t *Telemetry) recordWrite(ctx context.Context, indexName, op string) {
	if !t.enabled {
		return
	}
	t.docWrites.Add(ctx, 1, metric.WithAttributes(
		attribute.String("index", indexName),
		attribute.String("op", op),
	))
}

func (t *Telemetry) recordSearch(ctx context.Context, indexName, mode string, hits int, duration time.Duration) {
	if !t.enabled {
		return
	}

	attrs := metric.WithAttributes(
		attribute.String("index", indexName),
		attribute.String("mode", mode),
	)
	t.searchOps.Add(ctx, 1, attrs)
	t.searchLatency.Record(ctx, float64(duration.Milliseconds()), attrs)
}

func (t *Telemetry) observeIndex(indexName string, documents, segments, pending int) {
	if !t.enabled {
		return
	}
	t.documentGauge.WithLabelValues(indexName).Set(float64(documents))
	t.segmentGauge.WithLabelValues(indexName).Set(float64(segments))
	t.pendingGauge.WithLabelValues(indexName).Set(float64(pending))
}

func (t *Telemetry) handleMetrics(w http.ResponseWriter, r *http.Request) {
	if !t.enabled || t.registry == nil {
		respond(w, http.StatusOK, map[string]any{"enabled": false})
		return
	}

	t.metricsHandler.ServeHTTP(w, r)
}

type responseRecorder struct {
	http.ResponseWriter
	status int
}

func (r *responseRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}

func withJSONHeaders(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		next.ServeHTTP(w, r)
	})
}

func withTelemetry(next http.Handler, telemetry *Telemetry, logRequests bool) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		recorder := &responseRecorder{ResponseWriter: w, status: http.StatusOK}
		start := time.Now()
		next.ServeHTTP(recorder, r)
		duration := time.Since(start)

		if telemetry != nil {
			telemetry.recordRequest(r.Context(), r.Method, r.URL.Path, recorder.status, duration)
		}
		if logRequests && telemetry != nil && telemetry.logger != nil {
			telemetry.logger.Info("request completed", "method", r.Method, "path", r.URL.Path, "status", recorder.status, "duration_ms", duration.Milliseconds())
		}
	})
}
