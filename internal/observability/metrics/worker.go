package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/sankofa-health/malaria-rag/internal/core/domain"
)

// WorkerMetrics covers the ingestion worker: per-document outcomes, queue
// lag, and per-node pipeline timings. It implements the orchestrator's
// Observer interface for the node metrics.
type WorkerMetrics struct {
	service  string
	registry *prometheus.Registry

	processTotal    *prometheus.CounterVec
	processDuration *prometheus.HistogramVec
	processInFlight prometheus.Gauge
	queueLag        *prometheus.HistogramVec

	nodeTotal    *prometheus.CounterVec
	nodeDuration *prometheus.HistogramVec
}

func NewWorkerMetrics(service string) *WorkerMetrics {
	registry := prometheus.NewRegistry()

	processTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "mrag",
			Subsystem: "worker",
			Name:      "document_process_total",
			Help:      "Total processed documents by status.",
		},
		[]string{"service", "status"},
	)
	processDuration := prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "mrag",
			Subsystem: "worker",
			Name:      "document_process_duration_seconds",
			Help:      "Document processing duration in seconds by status.",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"service", "status"},
	)
	processInFlight := prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "mrag",
			Subsystem: "worker",
			Name:      "document_process_in_flight",
			Help:      "Number of in-flight document processing tasks.",
			ConstLabels: prometheus.Labels{
				"service": service,
			},
		},
	)
	queueLag := prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "mrag",
			Subsystem: "worker",
			Name:      "queue_lag_seconds",
			Help:      "Delay between document registration and processing start.",
			Buckets:   []float64{0.1, 0.5, 1, 2, 5, 10, 30, 60, 120, 300, 600},
		},
		[]string{"service"},
	)
	nodeTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "mrag",
			Subsystem: "pipeline",
			Name:      "node_executions_total",
			Help:      "Total pipeline node executions by node and status.",
		},
		[]string{"service", "node", "status"},
	)
	nodeDuration := prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "mrag",
			Subsystem: "pipeline",
			Name:      "node_duration_seconds",
			Help:      "Pipeline node execution duration in seconds.",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"service", "node"},
	)

	registry.MustRegister(processTotal, processDuration, processInFlight, queueLag, nodeTotal, nodeDuration)

	return &WorkerMetrics{
		service:         service,
		registry:        registry,
		processTotal:    processTotal,
		processDuration: processDuration,
		processInFlight: processInFlight,
		queueLag:        queueLag,
		nodeTotal:       nodeTotal,
		nodeDuration:    nodeDuration,
	}
}

func (m *WorkerMetrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

func (m *WorkerMetrics) StartDocument() {
	m.processInFlight.Inc()
}

func (m *WorkerMetrics) FinishDocument(duration time.Duration, err error) {
	m.processInFlight.Dec()

	status := "success"
	if err != nil {
		status = "error"
	}

	m.processTotal.WithLabelValues(m.service, status).Inc()
	m.processDuration.WithLabelValues(m.service, status).Observe(duration.Seconds())
}

func (m *WorkerMetrics) ObserveQueueLag(lag time.Duration) {
	if lag < 0 {
		return
	}
	m.queueLag.WithLabelValues(m.service).Observe(lag.Seconds())
}

// NodeFinished records one node attempt outcome.
func (m *WorkerMetrics) NodeFinished(nodeName string, status domain.NodeStatus, duration time.Duration) {
	m.nodeTotal.WithLabelValues(m.service, nodeName, string(status)).Inc()
	m.nodeDuration.WithLabelValues(m.service, nodeName).Observe(duration.Seconds())
}
