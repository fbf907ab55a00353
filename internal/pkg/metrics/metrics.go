package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	InvitationsIssued = promauto.NewCounter(prometheus.CounterOpts{
		Name: "mystore_invitations_issued_total",
		Help: "Invitations issued.",
	})

	InvitationsAccepted = promauto.NewCounter(prometheus.CounterOpts{
		Name: "mystore_invitations_accepted_total",
		Help: "Invitations accepted.",
	})

	InvitationsExpired = promauto.NewCounter(prometheus.CounterOpts{
		Name: "mystore_invitations_expired_total",
		Help: "Invitations moved to expired by the sweep.",
	})

	AuditWriteFailures = promauto.NewCounter(prometheus.CounterOpts{
		Name: "mystore_audit_write_failures_total",
		Help: "Best-effort audit writes that failed.",
	})

	MailDispatched = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "mystore_mail_dispatched_total",
		Help: "Mail messages handed off, by dispatch mode and outcome.",
	}, []string{"mode", "outcome"})

	httpRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "http_requests_total",
		Help: "Total number of HTTP requests.",
	}, []string{"method", "route", "status"})

	httpRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "http_request_duration_seconds",
		Help:    "HTTP request latencies in seconds.",
		Buckets: prometheus.DefBuckets,
	}, []string{"method", "route", "status"})
)

func Handler() http.Handler {
	return promhttp.Handler()
}

// Instrument records count and latency for one named route.
func Instrument(route string, next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		sw := &statusWriter{ResponseWriter: w, code: http.StatusOK}
		next(sw, r)

		status := strconv.Itoa(sw.code)
		httpRequestDuration.WithLabelValues(r.Method, route, status).Observe(time.Since(start).Seconds())
		httpRequestsTotal.WithLabelValues(r.Method, route, status).Inc()
	}
}

type statusWriter struct {
	http.ResponseWriter
	code int
}

func (w *statusWriter) WriteHeader(code int) {
	w.code = code
	w.ResponseWriter.WriteHeader(code)
}
