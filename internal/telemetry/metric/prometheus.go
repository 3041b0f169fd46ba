package metric

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
)

const namespace = "keymesh_client"

// Refresh outcomes used as the "result" label.
const (
	RefreshSuccess = "success"
	RefreshFailure = "failure"
)

// Registry holds all client metrics.
type Registry struct {
	registry *prometheus.Registry

	// Request metrics
	RequestsTotal   *prometheus.CounterVec
	RequestDuration *prometheus.HistogramVec
	RetriesTotal    prometheus.Counter

	// Refresh coordination metrics
	RefreshTotal   *prometheus.CounterVec
	RefreshWaiters prometheus.Histogram

	// Session metrics
	ForcedLogouts prometheus.Counter
	Authenticated prometheus.Gauge
}

// NewRegistry creates a registry with all client metrics registered.
func NewRegistry() *Registry {
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector())

	r := &Registry{
		registry: reg,
		RequestsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "requests_total",
			Help:      "Outbound requests by method and response status.",
		}, []string{"method", "status"}),
		RequestDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "request_duration_seconds",
			Help:      "Outbound request latency per attempt.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method"}),
		RetriesTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "retries_total",
			Help:      "Requests retried after an access token renewal.",
		}),
		RefreshTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "refresh_total",
			Help:      "Access token refresh calls by result.",
		}, []string{"result"}),
		RefreshWaiters: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "refresh_waiters",
			Help:      "Requests released per completed refresh.",
			Buckets:   []float64{1, 2, 5, 10, 25, 50, 100},
		}),
		ForcedLogouts: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "forced_logouts_total",
			Help:      "Sessions dropped because authentication expired.",
		}),
		Authenticated: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "session_authenticated",
			Help:      "1 while the client holds an authenticated session.",
		}),
	}

	reg.MustRegister(
		r.RequestsTotal,
		r.RequestDuration,
		r.RetriesTotal,
		r.RefreshTotal,
		r.RefreshWaiters,
		r.ForcedLogouts,
		r.Authenticated,
	)

	return r
}

// ObserveRequest records one request attempt. status 0 means no response.
func (r *Registry) ObserveRequest(method string, status int, elapsed time.Duration) {
	label := "error"
	if status > 0 {
		label = strconv.Itoa(status)
	}
	r.RequestsTotal.WithLabelValues(method, label).Inc()
	r.RequestDuration.WithLabelValues(method).Observe(elapsed.Seconds())
}

// ObserveRefresh records a completed refresh and how many requests it released.
func (r *Registry) ObserveRefresh(ok bool, waiters int) {
	result := RefreshFailure
	if ok {
		result = RefreshSuccess
	}
	r.RefreshTotal.WithLabelValues(result).Inc()
	r.RefreshWaiters.Observe(float64(waiters))
}

// SetAuthenticated sets the session gauge.
func (r *Registry) SetAuthenticated(v bool) {
	if v {
		r.Authenticated.Set(1)
		return
	}
	r.Authenticated.Set(0)
}

// WriteTextfile writes the registry in the Prometheus text format to path,
// atomically, for a node_exporter textfile collector to pick up.
func (r *Registry) WriteTextfile(path string) error {
	return prometheus.WriteToTextfile(path, r.registry)
}
