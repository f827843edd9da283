// Package metrics defines Moard's Prometheus collectors.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds the application collectors and the registry they live in.
// A nil *Metrics is valid and records nothing.
type Metrics struct {
	registry *prometheus.Registry

	requests           *prometheus.CounterVec
	requestDuration    *prometheus.HistogramVec
	uploads            *prometheus.CounterVec
	uploadBytes        prometheus.Counter
	logins             *prometheus.CounterVec
	sessionStoreErrors prometheus.Counter
}

// New creates the collectors on a fresh registry, together with the Go
// runtime and process collectors.
func New(version string) *Metrics {
	reg := prometheus.NewRegistry()
	m := &Metrics{
		registry: reg,
		requests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "moard_http_requests_total",
			Help: "Total number of HTTP requests by method and status code.",
		}, []string{"method", "status"}),
		requestDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "moard_http_request_duration_seconds",
			Help:    "HTTP request latency.",
			Buckets: prometheus.DefBuckets,
		}, []string{"method"}),
		uploads: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "moard_uploads_total",
			Help: "Image uploads by result.",
		}, []string{"result"}),
		uploadBytes: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "moard_upload_bytes_total",
			Help: "Bytes written by successful image uploads.",
		}),
		logins: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "moard_logins_total",
			Help: "Login attempts by result.",
		}, []string{"result"}),
		sessionStoreErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "moard_session_store_errors_total",
			Help: "Session store database failures.",
		}),
	}

	build := prometheus.NewGauge(prometheus.GaugeOpts{
		Name:        "moard_info",
		Help:        "Application version info.",
		ConstLabels: prometheus.Labels{"version": version},
	})
	build.Set(1)

	reg.MustRegister(
		m.requests,
		m.requestDuration,
		m.uploads,
		m.uploadBytes,
		m.logins,
		m.sessionStoreErrors,
		build,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return m
}

// Registry exposes the underlying registry, mainly for tests.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// RecordRequest counts one finished HTTP request.
func (m *Metrics) RecordRequest(method string, status int, d time.Duration) {
	if m == nil {
		return
	}
	m.requests.WithLabelValues(method, strconv.Itoa(status)).Inc()
	m.requestDuration.WithLabelValues(method).Observe(d.Seconds())
}

// RecordUpload counts a stored upload of size bytes.
func (m *Metrics) RecordUpload(size int64) {
	if m == nil {
		return
	}
	m.uploads.WithLabelValues("stored").Inc()
	m.uploadBytes.Add(float64(size))
}

// RecordUploadRejected counts an upload refused with reason.
func (m *Metrics) RecordUploadRejected(reason string) {
	if m == nil {
		return
	}
	m.uploads.WithLabelValues(reason).Inc()
}

// RecordLogin counts a login attempt; result is "success", "failure",
// "limited" (client rate limit) or "locked" (account lockout).
func (m *Metrics) RecordLogin(result string) {
	if m == nil {
		return
	}
	m.logins.WithLabelValues(result).Inc()
}

// RecordSessionStoreError counts a session store database failure.
func (m *Metrics) RecordSessionStoreError() {
	if m == nil {
		return
	}
	m.sessionStoreErrors.Inc()
}
