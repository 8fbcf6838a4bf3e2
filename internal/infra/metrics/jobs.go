package metrics

import "github.com/prometheus/client_golang/prometheus"

func init() { register(backgroundJobRunsTotal) }

var backgroundJobRunsTotal = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Name: "background_job_runs_total",
		Help: "Background job runs, labeled by job and status.",
	},
	[]string{"job", "status"}, // 'ok', 'failed'
)

func IncJobRun(job, status string) {
	backgroundJobRunsTotal.WithLabelValues(norm(job), norm(status)).Inc()
}
