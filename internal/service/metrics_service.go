package service

import (
	"fmt"
	"net/http"
	"runtime"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// MetricsService encapsulates Prometheus instrumentation for the API and
// the face verification pipeline.
type MetricsService struct {
	registry        *prometheus.Registry
	handler         http.Handler
	requestDuration *prometheus.HistogramVec
	requestTotal    *prometheus.CounterVec
	verifications   *prometheus.CounterVec
	verifyDuration  prometheus.Observer
	matchDistance   prometheus.Histogram
	pendingRecords  prometheus.Gauge
	loginLockouts   prometheus.Counter
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

	verifications := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "face_verifications_total",
		Help: "Face verification attempts by outcome",
	}, []string{"outcome"})

	verifyDuration := prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "face_verification_duration_seconds",
		Help:    "End-to-end duration of face verification",
		Buckets: prometheus.DefBuckets,
	})

	matchDistance := prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "face_match_distance",
		Help:    "Euclidean distance observed on face comparisons",
		Buckets: prometheus.LinearBuckets(0, 0.1, 12),
	})

	pendingRecords := prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "attendance_pending_records",
		Help: "Attendance records queued for reconciliation",
	})

	loginLockouts := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "login_lockouts_total",
		Help: "Login identities locked out for repeated failures",
	})

	goroutines := prometheus.NewGaugeFunc(prometheus.GaugeOpts{
		Name: "goroutines_total",
		Help: "Total number of goroutines",
	}, func() float64 {
		return float64(runtime.NumGoroutine())
	})

	registry.MustRegister(requestDuration, requestTotal, verifications, verifyDuration, matchDistance, pendingRecords, loginLockouts, goroutines)

	return &MetricsService{
		registry:        registry,
		handler:         promhttp.HandlerFor(registry, promhttp.HandlerOpts{}),
		requestDuration: requestDuration,
		requestTotal:    requestTotal,
		verifications:   verifications,
		verifyDuration:  verifyDuration,
		matchDistance:   matchDistance,
		pendingRecords:  pendingRecords,
		loginLockouts:   loginLockouts,
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

// ObserveVerification records one face verification attempt. outcome is one
// of match, mismatch, no_face, no_reference, error.
func (m *MetricsService) ObserveVerification(outcome string, distance float64, duration time.Duration) {
	if m == nil {
		return
	}
	m.verifications.WithLabelValues(outcome).Inc()
	m.verifyDuration.Observe(duration.Seconds())
	if distance >= 0 {
		m.matchDistance.Observe(distance)
	}
}

// SetPendingRecords updates the reconciliation backlog gauge.
func (m *MetricsService) SetPendingRecords(n int64) {
	if m == nil {
		return
	}
	m.pendingRecords.Set(float64(n))
}

// RecordLockout counts a login lockout event.
func (m *MetricsService) RecordLockout() {
	if m == nil {
		return
	}
	m.loginLockouts.Inc()
}
