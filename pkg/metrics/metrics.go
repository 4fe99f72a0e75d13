package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics groups every collector the service exports. All methods are
// safe on a nil receiver so components can run without metrics.
type Metrics struct {
	HTTPRequestsTotal   *prometheus.CounterVec
	HTTPRequestDuration *prometheus.HistogramVec
	ProbesTotal         *prometheus.CounterVec
	ProbeDuration       *prometheus.HistogramVec
	ProxyFallbacksTotal prometheus.Counter
	StorefrontsDetected prometheus.Counter
	PassesTotal         *prometheus.CounterVec
	PassDuration        prometheus.Histogram
	LastPassTimestamp   prometheus.Gauge
	NotificationsTotal  *prometheus.CounterVec
	StoresByStatus      *prometheus.GaugeVec
}

// New registers the collectors on reg.
func New(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		HTTPRequestsTotal: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "storewatch_http_requests_total",
				Help: "Total number of control API requests.",
			},
			[]string{"method", "path", "status"},
		),
		HTTPRequestDuration: f.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "storewatch_http_request_duration_seconds",
				Help:    "Duration of control API requests.",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"method", "path", "status"},
		),
		ProbesTotal: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "storewatch_probes_total",
				Help: "Store probes by resulting status.",
			},
			[]string{"status"},
		),
		ProbeDuration: f.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "storewatch_probe_duration_seconds",
				Help:    "Duration of store probes.",
				Buckets: []float64{0.1, 0.25, 0.5, 1, 2.5, 5, 10, 15},
			},
			[]string{"proxied"},
		),
		ProxyFallbacksTotal: f.NewCounter(prometheus.CounterOpts{
			Name: "storewatch_proxy_fallbacks_total",
			Help: "Probes retried without a proxy after a proxy failure.",
		}),
		StorefrontsDetected: f.NewCounter(prometheus.CounterOpts{
			Name: "storewatch_storefront_markers_total",
			Help: "Responses carrying storefront platform markers.",
		}),
		PassesTotal: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "storewatch_check_passes_total",
				Help: "Completed check passes by kind and result.",
			},
			[]string{"kind", "result"},
		),
		PassDuration: f.NewHistogram(prometheus.HistogramOpts{
			Name:    "storewatch_check_pass_duration_seconds",
			Help:    "Duration of full check passes.",
			Buckets: []float64{10, 30, 60, 300, 900, 1800, 3600},
		}),
		LastPassTimestamp: f.NewGauge(prometheus.GaugeOpts{
			Name: "storewatch_last_pass_timestamp_seconds",
			Help: "Unix time the last check pass finished.",
		}),
		NotificationsTotal: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "storewatch_notifications_total",
				Help: "Notification attempts by kind and result.",
			},
			[]string{"kind", "result"},
		),
		StoresByStatus: f.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "storewatch_stores",
				Help: "Monitored stores by current status.",
			},
			[]string{"status"},
		),
	}
}

// ObserveHTTP records one API request.
func (m *Metrics) ObserveHTTP(method, path, status string, d time.Duration) {
	if m == nil {
		return
	}
	m.HTTPRequestsTotal.WithLabelValues(method, path, status).Inc()
	m.HTTPRequestDuration.WithLabelValues(method, path, status).Observe(d.Seconds())
}

// ObserveProbe records one probe.
func (m *Metrics) ObserveProbe(status string, proxied bool, d time.Duration) {
	if m == nil {
		return
	}
	m.ProbesTotal.WithLabelValues(status).Inc()
	label := "false"
	if proxied {
		label = "true"
	}
	m.ProbeDuration.WithLabelValues(label).Observe(d.Seconds())
}

// IncProxyFallback counts a direct retry after a proxy failure.
func (m *Metrics) IncProxyFallback() {
	if m == nil {
		return
	}
	m.ProxyFallbacksTotal.Inc()
}

// IncStorefront counts a response with platform markers.
func (m *Metrics) IncStorefront() {
	if m == nil {
		return
	}
	m.StorefrontsDetected.Inc()
}

// ObservePass records a finished check pass.
func (m *Metrics) ObservePass(kind, result string, d time.Duration) {
	if m == nil {
		return
	}
	m.PassesTotal.WithLabelValues(kind, result).Inc()
	m.PassDuration.Observe(d.Seconds())
	m.LastPassTimestamp.SetToCurrentTime()
}

// IncNotification records one notification attempt.
func (m *Metrics) IncNotification(kind, result string) {
	if m == nil {
		return
	}
	m.NotificationsTotal.WithLabelValues(kind, result).Inc()
}

// SetStoreCounts replaces the per-status gauge values.
func (m *Metrics) SetStoreCounts(counts map[string]int) {
	if m == nil {
		return
	}
	m.StoresByStatus.Reset()
	for status, n := range counts {
		m.StoresByStatus.WithLabelValues(status).Set(float64(n))
	}
}
