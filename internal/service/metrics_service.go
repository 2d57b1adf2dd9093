package service

import (
	"fmt"
	"net/http"
	"runtime"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/carelane/therapy-scheduler-api/internal/models"
)

// MetricsService encapsulates Prometheus instrumentation for the scheduling core.
type MetricsService struct {
	registry           *prometheus.Registry
	handler            http.Handler
	requestDuration    *prometheus.HistogramVec
	requestTotal       *prometheus.CounterVec
	generationDuration *prometheus.HistogramVec
	conflictsTotal     *prometheus.CounterVec
	rulesTotal         *prometheus.CounterVec
	bulkSessionsTotal  *prometheus.CounterVec
}

// NewMetricsService registers core Prometheus collectors.
func NewMetricsService() *MetricsService {
	registry := prometheus.NewRegistry()

	requestDuration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "http_request_duration_seconds",
		Help:    "Duration of HTTP requests in seconds",
		Buckets: prometheus.DefBuckets,
	}, []string{"method", "path", "status"})

	requestTotal := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "http_requests_total",
		Help: "Total number of HTTP requests",
	}, []string{"method", "path", "status"})

	generationDuration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "schedule_generation_duration_seconds",
		Help:    "Duration of schedule generation runs",
		Buckets: prometheus.DefBuckets,
	}, []string{"outcome"})

	conflictsTotal := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "scheduling_conflicts_total",
		Help: "Conflicts reported by the detector, by type",
	}, []string{"type"})

	rulesTotal := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "optimization_rules_total",
		Help: "Optimization rule outcomes, applied or discarded",
	}, []string{"rule", "result"})

	bulkSessionsTotal := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "bulk_sessions_processed_total",
		Help: "Sessions processed by bulk operations, by result",
	}, []string{"result"})

	goroutines := prometheus.NewGaugeFunc(prometheus.GaugeOpts{
		Name: "goroutines_total",
		Help: "Total number of goroutines",
	}, func() float64 {
		return float64(runtime.NumGoroutine())
	})

	registry.MustRegister(requestDuration, requestTotal, generationDuration, conflictsTotal, rulesTotal, bulkSessionsTotal, goroutines)

	handler := promhttp.HandlerFor(registry, promhttp.HandlerOpts{})

	return &MetricsService{
		registry:           registry,
		handler:            handler,
		requestDuration:    requestDuration,
		requestTotal:       requestTotal,
		generationDuration: generationDuration,
		conflictsTotal:     conflictsTotal,
		rulesTotal:         rulesTotal,
		bulkSessionsTotal:  bulkSessionsTotal,
	}
}

// Handler exposes the Prometheus HTTP handler.
func (m *MetricsService) Handler() http.Handler {
	if m == nil {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusServiceUnavailable)
		})
	}
	return m.handler
}

// ObserveHTTPRequest records request metrics.
func (m *MetricsService) ObserveHTTPRequest(method, path string, status int, duration time.Duration) {
	if m == nil {
		return
	}
	labelStatus := fmt.Sprintf("%d", status)
	m.requestDuration.WithLabelValues(method, path, labelStatus).Observe(duration.Seconds())
	m.requestTotal.WithLabelValues(method, path, labelStatus).Inc()
}

// ObserveGeneration records the duration and outcome of a generation run.
func (m *MetricsService) ObserveGeneration(outcome string, duration time.Duration) {
	if m == nil {
		return
	}
	m.generationDuration.WithLabelValues(outcome).Observe(duration.Seconds())
}

// RecordConflict counts a detected conflict by type.
func (m *MetricsService) RecordConflict(conflictType models.ConflictType) {
	if m == nil {
		return
	}
	m.conflictsTotal.WithLabelValues(string(conflictType)).Inc()
}

// RecordRule counts an optimization rule outcome.
func (m *MetricsService) RecordRule(rule models.RuleID, applied bool) {
	if m == nil {
		return
	}
	result := "applied"
	if !applied {
		result = "discarded"
	}
	m.rulesTotal.WithLabelValues(string(rule), result).Inc()
}

// RecordBulkSession counts one processed session inside a bulk operation.
func (m *MetricsService) RecordBulkSession(success bool) {
	if m == nil {
		return
	}
	result := "succeeded"
	if !success {
		result = "failed"
	}
	m.bulkSessionsTotal.WithLabelValues(result).Inc()
}
