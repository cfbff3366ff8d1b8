package server

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
)

var loginRoles = []string{"teacher", "admin"}

// Metrics holds the in-process counters. Each Server owns one, registered on
// its own registry, so they reset on restart.
type Metrics struct {
	registry *prometheus.Registry

	requests      prometheus.Counter
	requestErrors *prometheus.CounterVec

	uploads        prometheus.Counter
	uploadBytes    prometheus.Counter
	uploadErrors   prometheus.Counter
	uploadDuration prometheus.Histogram

	downloads      prometheus.Counter
	downloadMisses prometheus.Counter

	logins *prometheus.CounterVec // role, result

	registrations  prometheus.Counter
	approvals      prometheus.Counter
	lessonsDeleted prometheus.Counter
}

func newMetrics() *Metrics {
	counter := func(name, help string) prometheus.Counter {
		return prometheus.NewCounter(prometheus.CounterOpts{Name: name, Help: help})
	}

	m := &Metrics{
		registry: prometheus.NewRegistry(),
		requests: counter("library_requests_total", "Total number of HTTP requests"),
		requestErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "library_request_errors_total",
			Help: "HTTP responses by error class",
		}, []string{"class"}),
		uploads:      counter("library_uploads_total", "Lessons uploaded since start"),
		uploadBytes:  counter("library_upload_bytes_total", "Bytes uploaded since start"),
		uploadErrors: counter("library_upload_errors_total", "Rejected or failed uploads"),
		uploadDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "library_upload_duration_seconds",
			Help:    "Time to store an accepted upload",
			Buckets: prometheus.DefBuckets,
		}),
		downloads:      counter("library_downloads_total", "Lesson downloads since start"),
		downloadMisses: counter("library_download_misses_total", "Downloads or views of missing files"),
		logins: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "library_logins_total",
			Help: "Login attempts by role and result",
		}, []string{"role", "result"}),
		registrations:  counter("library_registrations_total", "Registration requests queued"),
		approvals:      counter("library_approvals_total", "Registration requests approved"),
		lessonsDeleted: counter("library_lessons_deleted_total", "Lessons deleted"),
	}

	// Zero series show up before the first event.
	for _, class := range []string{"4xx", "5xx"} {
		m.requestErrors.WithLabelValues(class)
	}
	for _, role := range loginRoles {
		m.logins.WithLabelValues(role, "success")
		m.logins.WithLabelValues(role, "failure")
	}

	m.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.requests, m.requestErrors,
		m.uploads, m.uploadBytes, m.uploadErrors, m.uploadDuration,
		m.downloads, m.downloadMisses,
		m.logins,
		m.registrations, m.approvals, m.lessonsDeleted,
	)
	return m
}

// RecordUpload records a successful upload
func (m *Metrics) RecordUpload(bytes int64, duration time.Duration) {
	m.uploads.Inc()
	m.uploadBytes.Add(float64(bytes))
	m.uploadDuration.Observe(duration.Seconds())
}

func (m *Metrics) RecordUploadError() {
	m.uploadErrors.Inc()
}

func (m *Metrics) RecordDownload() {
	m.downloads.Inc()
}

// RecordDownloadMiss records a download or view of a missing file.
func (m *Metrics) RecordDownloadMiss() {
	m.downloadMisses.Inc()
}

// RecordLogin records a login attempt for role "teacher" or "admin".
func (m *Metrics) RecordLogin(role string, success bool) {
	result := "failure"
	if success {
		result = "success"
	}
	m.logins.WithLabelValues(role, result).Inc()
}

func (m *Metrics) RecordRegistration() {
	m.registrations.Inc()
}

func (m *Metrics) RecordApproval() {
	m.approvals.Inc()
}

func (m *Metrics) RecordLessonDeleted() {
	m.lessonsDeleted.Inc()
}

// RecordRequest records an HTTP request
func (m *Metrics) RecordRequest(statusCode int) {
	m.requests.Inc()

	if statusCode >= 500 {
		m.requestErrors.WithLabelValues("5xx").Inc()
	} else if statusCode >= 400 {
		m.requestErrors.WithLabelValues("4xx").Inc()
	}
}
