package service

import (
	"errors"
	"fmt"
	"net/http"
	"runtime"
	"sync/atomic"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/noah-isme/sma-schedule/internal/models"
	appErrors "github.com/noah-isme/sma-schedule/pkg/errors"
)

// MetricsService encapsulates Prometheus instrumentation and keeps lightweight counters
// for the JSON summary endpoint. Every method is safe on a nil receiver.
type MetricsService struct {
	registry            *prometheus.Registry
	handler             http.Handler
	requestDuration     *prometheus.HistogramVec
	requestTotal        *prometheus.CounterVec
	mutationDuration    *prometheus.HistogramVec
	mutationTotal       *prometheus.CounterVec
	conflictTotal       *prometheus.CounterVec
	persistenceFailures prometheus.Counter
	schedules           *prometheus.GaugeVec
	cacheHits           prometheus.Counter
	cacheMisses         prometheus.Counter
	publishTotal        *prometheus.CounterVec

	requestCount   uint64
	mutationCount  uint64
	conflictCount  uint64
	persistFailure uint64
	cacheHitCount  uint64
	cacheMissCount uint64
	activeCount    int64
	cancelledCount int64
}

// NewMetricsService registers the collectors on a private registry.
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

	mutationDuration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "schedule_mutation_duration_seconds",
		Help:    "Duration of schedule mutations including validation and write-through",
		Buckets: prometheus.DefBuckets,
	}, []string{"operation"})

	mutationTotal := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "schedule_mutations_total",
		Help: "Schedule mutations by operation and outcome",
	}, []string{"operation", "outcome"})

	conflictTotal := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "schedule_conflicts_total",
		Help: "Conflicting schedules reported, by shared resource",
	}, []string{"dimension"})

	persistenceFailures := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "schedule_persistence_failures_total",
		Help: "Write-through failures of the schedule record",
	})

	schedules := prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Name: "schedules",
		Help: "Stored schedules by status",
	}, []string{"status"})

	cacheHits := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "directory_cache_hits_total",
		Help: "Directory cache hits",
	})

	cacheMisses := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "directory_cache_misses_total",
		Help: "Directory cache misses",
	})

	publishTotal := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "schedule_change_publish_total",
		Help: "Change events published to subscribers, by outcome",
	}, []string{"outcome"})

	goroutines := prometheus.NewGaugeFunc(prometheus.GaugeOpts{
		Name: "goroutines_total",
		Help: "Total number of goroutines",
	}, func() float64 {
		return float64(runtime.NumGoroutine())
	})

	registry.MustRegister(requestDuration, requestTotal, mutationDuration, mutationTotal, conflictTotal,
		persistenceFailures, schedules, cacheHits, cacheMisses, publishTotal, goroutines)

	return &MetricsService{
		registry:            registry,
		handler:             promhttp.HandlerFor(registry, promhttp.HandlerOpts{}),
		requestDuration:     requestDuration,
		requestTotal:        requestTotal,
		mutationDuration:    mutationDuration,
		mutationTotal:       mutationTotal,
		conflictTotal:       conflictTotal,
		persistenceFailures: persistenceFailures,
		schedules:           schedules,
		cacheHits:           cacheHits,
		cacheMisses:         cacheMisses,
		publishTotal:        publishTotal,
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

// Registry exposes the underlying registry (used by tests).
func (m *MetricsService) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}
	return m.registry
}

// ObserveHTTPRequest records request metrics.
func (m *MetricsService) ObserveHTTPRequest(method, path string, status int, duration time.Duration) {
	if m == nil {
		return
	}
	labelStatus := fmt.Sprintf("%d", status)
	m.requestDuration.WithLabelValues(method, path, labelStatus).Observe(duration.Seconds())
	m.requestTotal.WithLabelValues(method, path, labelStatus).Inc()
	atomic.AddUint64(&m.requestCount, 1)
}

// ObserveScheduleMutation records a store mutation and labels its outcome by error kind.
func (m *MetricsService) ObserveScheduleMutation(operation string, err error, duration time.Duration) {
	if m == nil {
		return
	}
	m.mutationDuration.WithLabelValues(operation).Observe(duration.Seconds())
	m.mutationTotal.WithLabelValues(operation, mutationOutcome(err)).Inc()
	atomic.AddUint64(&m.mutationCount, 1)
}

// RecordScheduleConflict counts one conflicting schedule under each shared dimension.
func (m *MetricsService) RecordScheduleConflict(dimensions []string) {
	if m == nil {
		return
	}
	for _, dim := range dimensions {
		m.conflictTotal.WithLabelValues(dim).Inc()
	}
	atomic.AddUint64(&m.conflictCount, 1)
}

// RecordPersistenceFailure counts a failed write-through.
func (m *MetricsService) RecordPersistenceFailure() {
	if m == nil {
		return
	}
	m.persistenceFailures.Inc()
	atomic.AddUint64(&m.persistFailure, 1)
}

// SetScheduleTotals publishes the number of stored schedules per status.
func (m *MetricsService) SetScheduleTotals(active, cancelled int) {
	if m == nil {
		return
	}
	m.schedules.WithLabelValues(string(models.ScheduleStatusActive)).Set(float64(active))
	m.schedules.WithLabelValues(string(models.ScheduleStatusCancelled)).Set(float64(cancelled))
	atomic.StoreInt64(&m.activeCount, int64(active))
	atomic.StoreInt64(&m.cancelledCount, int64(cancelled))
}

// RecordCacheOperation records a directory cache hit or miss.
func (m *MetricsService) RecordCacheOperation(hit bool, _ time.Duration) {
	if m == nil {
		return
	}
	if hit {
		m.cacheHits.Inc()
		atomic.AddUint64(&m.cacheHitCount, 1)
		return
	}
	m.cacheMisses.Inc()
	atomic.AddUint64(&m.cacheMissCount, 1)
}

// RecordPublish counts a change event delivery attempt.
func (m *MetricsService) RecordPublish(err error) {
	if m == nil {
		return
	}
	outcome := "ok"
	if err != nil {
		outcome = "error"
	}
	m.publishTotal.WithLabelValues(outcome).Inc()
}

// Snapshot returns aggregated counters for the JSON summary endpoint.
func (m *MetricsService) Snapshot() models.MetricsSnapshot {
	if m == nil {
		return models.MetricsSnapshot{}
	}
	hits := atomic.LoadUint64(&m.cacheHitCount)
	misses := atomic.LoadUint64(&m.cacheMissCount)
	var ratio float64
	if total := hits + misses; total > 0 {
		ratio = float64(hits) / float64(total)
	}
	return models.MetricsSnapshot{
		RequestsTotal:       atomic.LoadUint64(&m.requestCount),
		MutationsTotal:      atomic.LoadUint64(&m.mutationCount),
		ConflictsTotal:      atomic.LoadUint64(&m.conflictCount),
		PersistenceFailures: atomic.LoadUint64(&m.persistFailure),
		ActiveSchedules:     atomic.LoadInt64(&m.activeCount),
		CancelledSchedules:  atomic.LoadInt64(&m.cancelledCount),
		CacheHitRatio:       ratio,
		Goroutines:          runtime.NumGoroutine(),
		GeneratedAt:         time.Now().UTC(),
	}
}

func mutationOutcome(err error) string {
	if err == nil {
		return "ok"
	}
	var appErr *appErrors.Error
	if errors.As(err, &appErr) {
		return appErr.Code
	}
	return appErrors.ErrInternal.Code
}
