package metrics

import (
	"bufio"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

type HTTPServerMetrics struct {
	registry *prometheus.Registry

	requestTotal    *prometheus.CounterVec
	requestDuration *prometheus.HistogramVec
	requestInFlight prometheus.Gauge

	editsTotal          *prometheus.CounterVec
	editFaultsTotal     *prometheus.CounterVec
	editDuration        *prometheus.HistogramVec
	stageDuration       *prometheus.HistogramVec
	markerCount         *prometheus.HistogramVec
	safetyVerdictsTotal *prometheus.CounterVec
}

func NewHTTPServerMetrics(service string) *HTTPServerMetrics {
	registry := prometheus.NewRegistry()

	requestTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "eraser",
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "Total HTTP requests processed.",
		},
		[]string{"service", "method", "path", "status"},
	)
	requestDuration := prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "eraser",
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "HTTP request duration in seconds.",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"service", "method", "path"},
	)
	requestInFlight := prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "eraser",
			Subsystem: "http",
			Name:      "in_flight_requests",
			Help:      "Number of in-flight HTTP requests.",
			ConstLabels: prometheus.Labels{
				"service": service,
			},
		},
	)
	editsTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "eraser",
			Subsystem: "pipeline",
			Name:      "edits_total",
			Help:      "Total finished edit pipelines by outcome.",
		},
		[]string{"service", "outcome"},
	)
	editFaultsTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "eraser",
			Subsystem: "pipeline",
			Name:      "edit_faults_total",
			Help:      "Total failed edit pipelines by fault kind.",
		},
		[]string{"service", "kind"},
	)
	editDuration := prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "eraser",
			Subsystem: "pipeline",
			Name:      "edit_duration_seconds",
			Help:      "Edit pipeline duration in seconds by outcome.",
			Buckets:   []float64{0.5, 1, 2, 5, 10, 20, 30, 60, 120, 300},
		},
		[]string{"service", "outcome"},
	)
	stageDuration := prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "eraser",
			Subsystem: "pipeline",
			Name:      "stage_duration_seconds",
			Help:      "Time spent in each pipeline stage.",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"service", "stage"},
	)
	markerCount := prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "eraser",
			Subsystem: "pipeline",
			Name:      "marker_count",
			Help:      "Distribution of removal markers per edit request.",
			Buckets:   []float64{0, 1, 2, 3, 5, 8, 13, 21},
		},
		[]string{"service"},
	)
	safetyVerdictsTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "eraser",
			Subsystem: "safety",
			Name:      "verdicts_total",
			Help:      "Total content safety checks by verdict.",
		},
		[]string{"service", "verdict"},
	)

	registry.MustRegister(
		requestTotal,
		requestDuration,
		requestInFlight,
		editsTotal,
		editFaultsTotal,
		editDuration,
		stageDuration,
		markerCount,
		safetyVerdictsTotal,
	)

	return &HTTPServerMetrics{
		registry:            registry,
		requestTotal:        requestTotal,
		requestDuration:     requestDuration,
		requestInFlight:     requestInFlight,
		editsTotal:          editsTotal,
		editFaultsTotal:     editFaultsTotal,
		editDuration:        editDuration,
		stageDuration:       stageDuration,
		markerCount:         markerCount,
		safetyVerdictsTotal: safetyVerdictsTotal,
	}
}

func (m *HTTPServerMetrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

func (m *HTTPServerMetrics) Middleware(service string, next http.Handler) http.Handler {
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
			service,
			r.Method,
			path,
			strconv.Itoa(recorder.statusCode),
		).Inc()
		m.requestDuration.WithLabelValues(service, r.Method, path).Observe(time.Since(start).Seconds())
	})
}

// normalizePath collapses job identifiers so the path label stays
// bounded while the action suffix remains distinguishable.
func normalizePath(path string) string {
	const jobsPrefix = "/v1/jobs/"
	if !strings.HasPrefix(path, jobsPrefix) {
		return path
	}
	rest := strings.TrimPrefix(path, jobsPrefix)
	if i := strings.IndexByte(rest, '/'); i >= 0 {
		return jobsPrefix + "{job_id}/" + rest[i+1:]
	}
	return jobsPrefix + "{job_id}"
}

func (m *HTTPServerMetrics) RecordEditOutcome(service, outcome, faultKind string, duration time.Duration) {
	if outcome == "" {
		outcome = "unknown"
	}
	m.editsTotal.WithLabelValues(service, outcome).Inc()
	m.editDuration.WithLabelValues(service, outcome).Observe(duration.Seconds())
	if faultKind != "" {
		m.editFaultsTotal.WithLabelValues(service, faultKind).Inc()
	}
}

func (m *HTTPServerMetrics) ObserveStageDuration(service, stage string, duration time.Duration) {
	if stage == "" || duration < 0 {
		return
	}
	m.stageDuration.WithLabelValues(service, stage).Observe(duration.Seconds())
}

func (m *HTTPServerMetrics) ObserveMarkerCount(service string, count int) {
	m.markerCount.WithLabelValues(service).Observe(float64(count))
}

func (m *HTTPServerMetrics) RecordSafetyVerdict(service, verdict string) {
	if verdict == "" {
		verdict = "unknown"
	}
	m.safetyVerdictsTotal.WithLabelValues(service, verdict).Inc()
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

func (w *statusRecorder) Push(target string, opts *http.PushOptions) error {
	pusher, ok := w.ResponseWriter.(http.Pusher)
	if !ok {
		return http.ErrNotSupported
	}
	return pusher.Push(target, opts)
}
