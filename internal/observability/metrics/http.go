package metrics

import (
	"bufio"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/kirillkom/scripture-rag/internal/core/domain"
)

const namespace = "scripture"

type HTTPServerMetrics struct {
	registry *prometheus.Registry
	service  string

	requestTotal    *prometheus.CounterVec
	requestDuration *prometheus.HistogramVec
	requestInFlight prometheus.Gauge

	retrievalTotal      *prometheus.CounterVec
	retrievalCandidates *prometheus.HistogramVec
	retrievalDuration   *prometheus.HistogramVec
	guardTotal          *prometheus.CounterVec
	cacheLookupsTotal   *prometheus.CounterVec
	rejectionsTotal     *prometheus.CounterVec
}

func NewHTTPServerMetrics(service string) *HTTPServerMetrics {
	registry := prometheus.NewRegistry()

	requestTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "Total HTTP requests processed.",
		},
		[]string{"service", "method", "path", "status"},
	)
	requestDuration := prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "HTTP request duration in seconds.",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"service", "method", "path"},
	)
	requestInFlight := prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "in_flight_requests",
			Help:      "Number of in-flight HTTP requests.",
			ConstLabels: prometheus.Labels{
				"service": service,
			},
		},
	)
	retrievalTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "retrieval",
			Name:      "requests_total",
			Help:      "Total retrieval calls by mode and outcome.",
		},
		[]string{"service", "mode", "outcome"},
	)
	retrievalCandidates := prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "retrieval",
			Name:      "candidates",
			Help:      "Candidates per retrieval call by list.",
			Buckets:   []float64{0, 1, 2, 5, 10, 15, 25, 50, 100, 250},
		},
		[]string{"service", "list"},
	)
	retrievalDuration := prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "retrieval",
			Name:      "duration_seconds",
			Help:      "Retrieval duration in seconds.",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"service", "mode"},
	)
	guardTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "guard",
			Name:      "decisions_total",
			Help:      "Guard decisions by verdict and reason.",
		},
		[]string{"service", "verdict", "reason"},
	)
	cacheLookupsTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "answer_cache",
			Name:      "lookups_total",
			Help:      "Answer cache lookups by result.",
		},
		[]string{"service", "result"},
	)
	rejectionsTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "rejections_total",
			Help:      "Requests rejected by traffic control or demo limits.",
		},
		[]string{"service", "reason"},
	)

	registry.MustRegister(
		requestTotal,
		requestDuration,
		requestInFlight,
		retrievalTotal,
		retrievalCandidates,
		retrievalDuration,
		guardTotal,
		cacheLookupsTotal,
		rejectionsTotal,
	)

	return &HTTPServerMetrics{
		registry:            registry,
		service:             service,
		requestTotal:        requestTotal,
		requestDuration:     requestDuration,
		requestInFlight:     requestInFlight,
		retrievalTotal:      retrievalTotal,
		retrievalCandidates: retrievalCandidates,
		retrievalDuration:   retrievalDuration,
		guardTotal:          guardTotal,
		cacheLookupsTotal:   cacheLookupsTotal,
		rejectionsTotal:     rejectionsTotal,
	}
}

func (m *HTTPServerMetrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

func (m *HTTPServerMetrics) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		path := normalizePath(r.URL.Path)
		recorder := &statusRecorder{
			ResponseWriter: w,
			statusCode:     http.StatusOK,
		}

		m.requestInFlight.Inc()
		defer m.requestInFlight.Dec()

		next.ServeHTTP(recorder, r)

		m.requestTotal.WithLabelValues(
			m.service,
			r.Method,
			path,
			strconv.Itoa(recorder.statusCode),
		).Inc()
		m.requestDuration.WithLabelValues(m.service, r.Method, path).Observe(time.Since(start).Seconds())
	})
}

func normalizePath(path string) string {
	switch {
	case strings.HasPrefix(path, "/v1/corpus/"):
		return "/v1/corpus/{import_id}"
	default:
		return path
	}
}

// ObserveRetrieval records one engine call.
func (m *HTTPServerMetrics) ObserveRetrieval(mode domain.RetrievalMode, literal, semantic, fused int, duration time.Duration, err error) {
	modeLabel := string(mode)
	if modeLabel == "" {
		modeLabel = "unknown"
	}
	m.retrievalTotal.WithLabelValues(m.service, modeLabel, retrievalOutcome(err)).Inc()
	m.retrievalDuration.WithLabelValues(m.service, modeLabel).Observe(duration.Seconds())
	if err != nil {
		return
	}
	m.retrievalCandidates.WithLabelValues(m.service, "literal").Observe(float64(literal))
	m.retrievalCandidates.WithLabelValues(m.service, "semantic").Observe(float64(semantic))
	m.retrievalCandidates.WithLabelValues(m.service, "fused").Observe(float64(fused))
}

func retrievalOutcome(err error) string {
	switch {
	case err == nil:
		return "ok"
	case errors.Is(err, domain.ErrTemporary):
		return "temporary"
	case errors.Is(err, domain.ErrStoreUnavailable):
		return "store_unavailable"
	default:
		return "error"
	}
}

func (m *HTTPServerMetrics) ObserveGuard(decision domain.GuardDecision) {
	reason := string(decision.Reason)
	if reason == "" {
		reason = "none"
	}
	m.guardTotal.WithLabelValues(m.service, string(decision.Verdict), reason).Inc()
}

func (m *HTTPServerMetrics) RecordCacheLookup(hit bool) {
	result := "miss"
	if hit {
		result = "hit"
	}
	m.cacheLookupsTotal.WithLabelValues(m.service, result).Inc()
}

func (m *HTTPServerMetrics) RecordRejection(reason string) {
	if reason == "" {
		reason = "unknown"
	}
	m.rejectionsTotal.WithLabelValues(m.service, reason).Inc()
}

type statusRecorder struct {
	http.ResponseWriter
	statusCode int
}

func (w *statusRecorder) WriteHeader(statusCode int) {
	w.statusCode = statusCode
	w.ResponseWriter.WriteHeader(statusCode)
}

func (w *statusRecorder) Flush() {
	flusher, ok := w.ResponseWriter.(http.Flusher)
	if ok {
		flusher.Flush()
	}
}

func (w *statusRecorder) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	hijacker, ok := w.ResponseWriter.(http.Hijacker)
	if !ok {
		return nil, nil, fmt.Errorf("response writer does not implement http.Hijacker")
	}
	return hijacker.Hijack()
}
