package observability

import (
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
)

const traceHeader = "X-Trace-ID"

// TraceMiddleware assigns every request a trace id, honoring one the
// caller already carries, and echoes it back in the response header.
func TraceMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		traceID := r.Header.Get(traceHeader)
		if traceID == "" {
			traceID = uuid.NewString()
		}
		w.Header().Set(traceHeader, traceID)
		next.ServeHTTP(w, r.WithContext(ContextWithTraceID(r.Context(), traceID)))
	})
}

// LoggingMiddleware emits one structured line per request after the
// handler finishes.
func LoggingMiddleware(logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			tap := newResponseTap(w)
			next.ServeHTTP(tap, r)
			logger.InfoContext(r.Context(), "http_request",
				slog.String("trace_id", TraceIDFromContext(r.Context())),
				slog.String("method", r.Method),
				slog.String("path", r.URL.Path),
				slog.String("remote_addr", r.RemoteAddr),
				slog.Int("status", tap.status),
				slog.Int64("duration_ms", time.Since(start).Milliseconds()),
				slog.Int("bytes", tap.bytes),
			)
		})
	}
}

// MetricsMiddleware records request counts and latencies per route.
func MetricsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		tap := newResponseTap(w)
		next.ServeHTTP(tap, r)

		status := strconv.Itoa(tap.status)
		route := routeLabel(r)
		httpRequestsTotal.WithLabelValues(r.Method, route, status).Inc()
		httpRequestDurationSeconds.WithLabelValues(r.Method, route, status).Observe(time.Since(start).Seconds())
	})
}

// routeLabel prefers the matched mux pattern ("/v1/sessions/{id}/ask")
// so path parameters do not blow up metric cardinality, and falls back
// to the raw path for requests no route claimed.
func routeLabel(r *http.Request) string {
	if r.Pattern == "" {
		return r.URL.Path
	}
	if _, route, found := strings.Cut(r.Pattern, " "); found {
		return route
	}
	return r.Pattern
}

// responseTap observes the status code and body size on their way out.
type responseTap struct {
	http.ResponseWriter
	status int
	bytes  int
}

func newResponseTap(w http.ResponseWriter) *responseTap {
	return &responseTap{ResponseWriter: w, status: http.StatusOK}
}

func (t *responseTap) WriteHeader(status int) {
	t.status = status
	t.ResponseWriter.WriteHeader(status)
}

func (t *responseTap) Write(body []byte) (int, error) {
	n, err := t.ResponseWriter.Write(body)
	t.bytes += n
	return n, err
}
