package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
)

var (
	httpDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "protomer",
		Name:      "http_request_duration_seconds",
		Help:      "Status server request latency.",
		Buckets:   prometheus.DefBuckets,
	}, []string{"method", "path", "status"})

	httpRequests = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "protomer",
		Name:      "http_requests_total",
		Help:      "Status server requests by route and code.",
	}, []string{"method", "path", "status"})
)

func init() {
	prometheus.MustRegister(httpDuration, httpRequests)
}

// Middleware records HTTP request duration and count. The chi route
// pattern is used as the path label so run IDs in URLs do not blow up
// label cardinality.
func Middleware() func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()

			ww := chimw.NewWrapResponseWriter(w, r.ProtoMajor)
			next.ServeHTTP(ww, r)

			path := chi.RouteContext(r.Context()).RoutePattern()
			if path == "" {
				path = "unknown"
			}
			status := ww.Status()
			if status == 0 {
				// Handler wrote nothing; net/http sends 200.
				status = http.StatusOK
			}

			httpDuration.WithLabelValues(r.Method, path, strconv.Itoa(status)).
				Observe(time.Since(start).Seconds())
			httpRequests.WithLabelValues(r.Method, path, strconv.Itoa(status)).Inc()
		})
	}
}
