package middleware

import (
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"

	"glamour/internal/adapters/http/perf"
)

// DefaultSlowRequest is the threshold above which a request logs at WARN.
const DefaultSlowRequest = 200 * time.Millisecond

// RequestIDHeader carries the request ID back to the client and in from a proxy.
const RequestIDHeader = "X-Request-ID"

// statusWriter remembers the status code written by the handler.
type statusWriter struct {
	http.ResponseWriter
	status int
}

func (sw *statusWriter) WriteHeader(code int) {
	sw.status = code
	sw.ResponseWriter.WriteHeader(code)
}

// Unwrap lets http.ResponseController reach the real writer.
func (sw *statusWriter) Unwrap() http.ResponseWriter {
	return sw.ResponseWriter
}

// untimed reports paths that stay out of the perf ring: assets and probes.
func untimed(path string) bool {
	return strings.HasPrefix(path, "/static/") || path == "/healthz" || path == "/metrics"
}

func requestID(r *http.Request) string {
	if id := r.Header.Get(RequestIDHeader); id != "" && len(id) <= 64 {
		return id
	}
	return uuid.NewString()
}

// Timing logs each page request and records it in collector (which may be nil).
// Requests at or above slow log at WARN, the rest at DEBUG.
// POST: the response carries X-Request-ID, reused from the request when a proxy set one
func Timing(collector *perf.Collector, slow time.Duration) func(http.Handler) http.Handler {
	if slow <= 0 {
		slow = DefaultSlowRequest
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if untimed(r.URL.Path) {
				next.ServeHTTP(w, r)
				return
			}
			id := requestID(r)
			w.Header().Set(RequestIDHeader, id)
			sw := &statusWriter{ResponseWriter: w, status: http.StatusOK}
			start := time.Now()

			// Deferred so a panicking handler is still recorded.
			defer func() {
				elapsed := time.Since(start)
				ms := float64(elapsed.Microseconds()) / 1000
				level := slog.LevelDebug
				msg := "request"
				if elapsed >= slow {
					level, msg = slog.LevelWarn, "slow_request"
				}
				slog.Log(r.Context(), level, msg,
					"request_id", id,
					"method", r.Method,
					"path", r.URL.Path,
					"status", sw.status,
					"duration_ms", ms,
				)
				collector.Record(perf.Entry{
					Kind:       perf.KindRequest,
					Path:       r.Method + " " + r.URL.Path,
					StatusCode: sw.status,
					DurationMs: ms,
					Timestamp:  start,
				})
			}()
			next.ServeHTTP(sw, r)
		})
	}
}
