package api

import (
	"strconv"
	"strings"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics are the Prometheus instruments for upstream API calls.
type Metrics struct {
	requests *prometheus.CounterVec
	duration *prometheus.HistogramVec
}

// NewMetrics registers the upstream instruments on reg.
// PRE: reg is non-nil and has not already registered these names
func NewMetrics(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		requests: f.NewCounterVec(prometheus.CounterOpts{
			Name: "glamour_upstream_requests_total",
			Help: "Calls to the venue API by route and status.",
		}, []string{"method", "route", "status"}),
		duration: f.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "glamour_upstream_request_duration_seconds",
			Help:    "Latency of calls to the venue API.",
			Buckets: prometheus.DefBuckets,
		}, []string{"method", "route"}),
	}
}

func (m *Metrics) observe(method, route string, status int, seconds float64) {
	if m == nil {
		return
	}
	m.requests.WithLabelValues(method, route, strconv.Itoa(status)).Inc()
	m.duration.WithLabelValues(method, route).Observe(seconds)
}

// staticSegments are the path segments the API uses as names; anything else is an ID.
var staticSegments = map[string]bool{
	"auth": true, "register": true, "login": true, "verify-email": true,
	"resend-verification": true, "profile": true, "events": true, "upcoming": true,
	"past": true, "ratings-distribution": true, "average-rating": true,
	"admin": true, "data": true, "feedback": true, "reply": true,
}

// RouteLabel collapses IDs in an API path so metric labels stay bounded.
// "/events/64ab/feedback" becomes "/events/:id/feedback".
func RouteLabel(path string) string {
	parts := strings.Split(strings.Trim(path, "/"), "/")
	for i, p := range parts {
		if p != "" && !staticSegments[p] {
			parts[i] = ":id"
		}
	}
	return "/" + strings.Join(parts, "/")
}
