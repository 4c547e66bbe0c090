// Package metrics registers the Prometheus collectors exposed at /metrics,
// grounded on cmd/server/main.go's httpDuration/httpRequests vars and
// prometheusMiddleware, generalized from HTTP-only counters to the
// dispatcher/session/archive surface SPEC_FULL.md adds.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Registry bundles every collector the server registers. A single instance
// is constructed in cmd/server/main.go and threaded through the components
// that report on it, rather than relying on package-level globals. The
// Server reports HTTP and session metrics and ArchiveWorker reports tick
// outcomes. Nothing calls ObserveDispatch or updates ArchiveMessagesTotal,
// so the dispatcher_* and archive_messages_archived_total series are
// registered but stay at zero.
type Registry struct {
	HTTPDuration *prometheus.HistogramVec
	HTTPRequests *prometheus.CounterVec

	FramesDispatched *prometheus.CounterVec
	DispatchDuration *prometheus.HistogramVec

	SessionsActive prometheus.Gauge

	ArchiveTicksTotal    *prometheus.CounterVec
	ArchiveMessagesTotal *prometheus.CounterVec
}

// New builds and registers a Registry against reg.
func New(reg prometheus.Registerer) *Registry {
	m := &Registry{
		HTTPDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name: "http_request_duration_seconds",
			Help: "HTTP request latencies in seconds",
		}, []string{"method", "path", "status"}),

		HTTPRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total number of HTTP requests",
		}, []string{"method", "path", "status"}),

		FramesDispatched: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "dispatcher_frames_total",
			Help: "Total number of wire frames dispatched, by message type and outcome",
		}, []string{"type", "outcome"}),

		DispatchDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name: "dispatcher_handle_duration_seconds",
			Help: "Time to handle one dispatched frame",
		}, []string{"type"}),

		SessionsActive: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "sessions_active",
			Help: "Number of currently bound sessions",
		}),

		ArchiveTicksTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "archive_ticks_total",
			Help: "Archive worker ticks, by pass and outcome",
		}, []string{"pass", "outcome"}),

		ArchiveMessagesTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "archive_messages_archived_total",
			Help: "Messages moved from hot to cold storage, by stream kind",
		}, []string{"kind"}),
	}

	reg.MustRegister(
		m.HTTPDuration, m.HTTPRequests,
		m.FramesDispatched, m.DispatchDuration,
		m.SessionsActive,
		m.ArchiveTicksTotal, m.ArchiveMessagesTotal,
	)
	return m
}

// ObserveDispatch records the outcome and latency of one dispatched frame.
func (m *Registry) ObserveDispatch(msgType string, outcome string, started time.Time) {
	m.FramesDispatched.WithLabelValues(msgType, outcome).Inc()
	m.DispatchDuration.WithLabelValues(msgType).Observe(time.Since(started).Seconds())
}

// ObserveArchiveTick records one pass's success/failure.
func (m *Registry) ObserveArchiveTick(pass string, ok bool) {
	outcome := "ok"
	if !ok {
		outcome = "error"
	}
	m.ArchiveTicksTotal.WithLabelValues(pass, outcome).Inc()
}
