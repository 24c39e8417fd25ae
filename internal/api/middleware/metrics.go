package middleware

import (
	"net/http"
	"time"

	"github.com/Hoang7604119/mmostore-sub003/internal/observability"
	"github.com/go-chi/chi/v5"
)

// MetricsMiddleware feeds the HTTP latency histogram. Labels use the chi
// route pattern rather than the raw path so ids don't explode cardinality.
func MetricsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)
		observability.ObserveHTTP(r.Method, routePattern(r), rec.status, time.Since(start))
	})
}

func routePattern(r *http.Request) string {
	rc := chi.RouteContext(r.Context())
	if rc == nil {
		return r.URL.Path
	}
	if pattern := rc.RoutePattern(); pattern != "" {
		return pattern
	}
	return r.URL.Path
}
