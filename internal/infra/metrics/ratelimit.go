package metrics

import "github.com/prometheus/client_golang/prometheus"

func init() {
	register(
		rateLimitedTotal,
		rateLimiterErrorsTotal,
		rateLimitWindowsSwept,
	)
}

var (
	rateLimitedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "rate_limited_total",
			Help: "Requests denied by the rate limiter, by operation.",
		},
		[]string{"operation"},
	)

	// Limiter backend failures. Requests are admitted when this happens.
	rateLimiterErrorsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "rate_limiter_errors_total",
			Help: "Rate limiter backend errors, by operation.",
		},
		[]string{"operation"},
	)

	rateLimitWindowsSwept = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "rate_limit_windows_swept_total",
			Help: "Expired in-memory rate limit windows reclaimed by the sweeper.",
		},
	)
)

func IncRateLimited(op string) {
	rateLimitedTotal.WithLabelValues(norm(op)).Inc()
}

func IncRateLimiterError(op string) {
	rateLimiterErrorsTotal.WithLabelValues(norm(op)).Inc()
}

func AddWindowsSwept(n int) {
	if n <= 0 {
		return
	}
	rateLimitWindowsSwept.Add(float64(n))
}
