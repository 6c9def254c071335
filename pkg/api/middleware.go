package api

import (
	"fmt"
	"net/http"
	"time"

	"github.com/cuemby/bkmsync/pkg/metrics"
	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"
)

func errUnknownMethod(method string) error {
	return fmt.Errorf("unknown rpc method %q", method)
}

// requestMetrics records APIRequestsTotal/APIRequestDuration for every
// request, the same way Warren's interceptor timed every gRPC call.
func requestMetrics(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		timer := metrics.NewTimer()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)
		method := r.Method + " " + routePattern(r)
		metrics.APIRequestsTotal.WithLabelValues(method, fmt.Sprintf("%d", rec.status)).Inc()
		timer.ObserveDurationVec(metrics.APIRequestDuration, method)
	})
}

func routePattern(r *http.Request) string {
	if rc := chi.RouteContext(r.Context()); rc != nil && rc.RoutePattern() != "" {
		return rc.RoutePattern()
	}
	return r.URL.Path
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (s *statusRecorder) WriteHeader(code int) {
	s.status = code
	s.ResponseWriter.WriteHeader(code)
}

// requestLogger logs each request at debug level with method, path,
// status, and duration.
func requestLogger(logger zerolog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
			next.ServeHTTP(rec, r)
			logger.Debug().
				Str("method", r.Method).
				Str("path", r.URL.Path).
				Int("status", rec.status).
				Dur("duration", time.Since(start)).
				Msg("request")
		})
	}
}

// readOnlyMiddleware rejects any rpc method not in readOnlyMethods,
// generalizing Warren's ReadOnlyInterceptor (which allowlisted gRPC
// List*/Get*/Inspect* methods) to this package's JSON-RPC method names.
func readOnlyMiddleware(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		method := chi.URLParam(r, "method")
		if !readOnlyMethods[method] {
			writeRPCError(w, http.StatusForbidden, fmt.Errorf("%q is not permitted on a read-only listener", method))
			return
		}
		next.ServeHTTP(w, r)
	}
}
