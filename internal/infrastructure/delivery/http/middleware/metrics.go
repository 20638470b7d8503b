package middleware

import (
	"net/http"
	"time"

	"vidfetch/internal/observability"
)

// Metrics records request count, duration and response size.
// label maps a request to a low-cardinality path label.
func Metrics(metrics *observability.Metrics, label func(*http.Request) string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			rec := wrap(w)

			next.ServeHTTP(rec, r)

			metrics.RecordHTTPRequest(r.Method, label(r), rec.status, time.Since(start), rec.size)
		})
	}
}
