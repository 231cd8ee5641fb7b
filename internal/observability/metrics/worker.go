package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

type WorkerMetrics struct {
	registry *prometheus.Registry
	service  string

	importTotal     *prometheus.CounterVec
	importDuration  *prometheus.HistogramVec
	importInFlight  prometheus.Gauge
	passagesIndexed prometheus.Counter
	queueLag        *prometheus.HistogramVec
}

func NewWorkerMetrics(service string) *WorkerMetrics {
	registry := prometheus.NewRegistry()

	importTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "worker",
			Name:      "corpus_import_total",
			Help:      "Total processed corpus imports by outcome.",
		},
		[]string{"service", "outcome"},
	)
	importDuration := prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "worker",
			Name:      "corpus_import_duration_seconds",
			Help:      "Corpus import duration in seconds by outcome.",
			Buckets:   []float64{1, 5, 15, 30, 60, 120, 300, 600, 1200, 1800},
		},
		[]string{"service", "outcome"},
	)
	importInFlight := prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "worker",
			Name:      "corpus_import_in_flight",
			Help:      "Number of in-flight corpus imports.",
			ConstLabels: prometheus.Labels{
				"service": service,
			},
		},
	)
	passagesIndexed := prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "worker",
			Name:      "passages_indexed_total",
			Help:      "Passages embedded and written by completed imports.",
			ConstLabels: prometheus.Labels{
				"service": service,
			},
		},
	)
	queueLag := prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "worker",
			Name:      "queue_lag_seconds",
			Help:      "Delay between upload and processing start.",
			Buckets:   []float64{0.1, 0.5, 1, 2, 5, 10, 30, 60, 120, 300, 600},
		},
		[]string{"service"},
	)

	registry.MustRegister(importTotal, importDuration, importInFlight, passagesIndexed, queueLag)

	return &WorkerMetrics{
		registry:        registry,
		service:         service,
		importTotal:     importTotal,
		importDuration:  importDuration,
		importInFlight:  importInFlight,
		passagesIndexed: passagesIndexed,
		queueLag:        queueLag,
	}
}

func (m *WorkerMetrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// StartImport marks an import in flight and returns its completion hook.
func (m *WorkerMetrics) StartImport() func(outcome string, passages int) {
	started := time.Now()
	m.importInFlight.Inc()
	return func(outcome string, passages int) {
		m.importInFlight.Dec()
		if outcome == "" {
			outcome = "unknown"
		}
		m.importTotal.WithLabelValues(m.service, outcome).Inc()
		m.importDuration.WithLabelValues(m.service, outcome).Observe(time.Since(started).Seconds())
		if outcome == "ready" && passages > 0 {
			m.passagesIndexed.Add(float64(passages))
		}
	}
}

func (m *WorkerMetrics) ObserveQueueLag(lag time.Duration) {
	if lag < 0 {
		return
	}
	m.queueLag.WithLabelValues(m.service).Observe(lag.Seconds())
}
