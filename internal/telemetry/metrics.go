package telemetry

import (
	"net/http"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	once sync.Once

	JobsScheduled    = prometheus.NewCounter(prometheus.CounterOpts{Name: "reposense_jobs_scheduled_total", Help: "Jobs accepted by the scheduler"})
	JobsCompleted    = prometheus.NewCounter(prometheus.CounterOpts{Name: "reposense_jobs_completed_total", Help: "Jobs that finished successfully"})
	JobsFailed       = prometheus.NewCounter(prometheus.CounterOpts{Name: "reposense_jobs_failed_total", Help: "Jobs that finished with a failure"})
	JobsCancelled    = prometheus.NewCounter(prometheus.CounterOpts{Name: "reposense_jobs_cancelled_total", Help: "Jobs cancelled before execution"})
	RateLimitRejects = prometheus.NewCounter(prometheus.CounterOpts{Name: "reposense_rate_limit_rejects_total", Help: "Schedule requests rejected by the rate limiter"})
	TimersArmed      = prometheus.NewGauge(prometheus.GaugeOpts{Name: "reposense_timers_armed", Help: "Live timers held by the scheduler registry"})
	LoopsActive      = prometheus.NewGauge(prometheus.GaugeOpts{Name: "reposense_recurring_loops", Help: "Recurring auto-push loops currently registered"})
	GitOpDuration    = prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "reposense_git_op_duration_seconds",
		Help:    "Wall-clock duration of composite git procedures",
		Buckets: prometheus.DefBuckets,
	})
)

// Handler exposes /metrics HTTP handler with a singleton registry.
func Handler() http.Handler {
	once.Do(func() {
		prometheus.MustRegister(
			JobsScheduled,
			JobsCompleted,
			JobsFailed,
			JobsCancelled,
			RateLimitRejects,
			TimersArmed,
			LoopsActive,
			GitOpDuration,
		)
	})
	return promhttp.Handler()
}
