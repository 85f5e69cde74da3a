package metrics

import (
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	jobsSubmitted = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "mediafetch_jobs_submitted_total",
			Help: "Number of accepted job submissions",
		},
		[]string{"format"},
	)

	jobsFinished = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "mediafetch_jobs_finished_total",
			Help: "Number of jobs reaching a terminal state",
		},
		[]string{"status"},
	)

	postProcessFailures = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "mediafetch_postprocess_failures_total",
			Help: "Tagging failures that degraded to the untagged artifact",
		},
	)

	stageDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "mediafetch_stage_duration_seconds",
			Help:    "Time spent in each job stage",
			Buckets: []float64{1, 5, 15, 30, 60, 120, 300, 600, 1800},
		},
		[]string{"stage"}, // queued, extract, postprocess
	)

	activeJobs = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "mediafetch_jobs_active",
			Help: "Number of non-terminal jobs in each status",
		},
		[]string{"status"},
	)

	artifactsExpired = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "mediafetch_artifacts_expired_total",
			Help: "Artifacts removed by the expiry sweep",
		},
	)
)

func init() {
	prometheus.MustRegister(jobsSubmitted)
	prometheus.MustRegister(jobsFinished)
	prometheus.MustRegister(postProcessFailures)
	prometheus.MustRegister(stageDuration)
	prometheus.MustRegister(activeJobs)
	prometheus.MustRegister(artifactsExpired)
}

// Handler exposes the default registry for the gin router
func Handler() gin.HandlerFunc {
	return gin.WrapH(promhttp.Handler())
}

func JobSubmitted(format string) {
	jobsSubmitted.WithLabelValues(format).Inc()
}

func JobFinished(status string) {
	jobsFinished.WithLabelValues(status).Inc()
}

func PostProcessFailed() {
	postProcessFailures.Inc()
}

// ObserveStage records how long a job spent in stage since start
func ObserveStage(stage string, start time.Time) {
	stageDuration.WithLabelValues(stage).Observe(time.Since(start).Seconds())
}

// SetActive publishes per-status counts of non-terminal jobs
func SetActive(counts map[string]int) {
	for _, status := range []string{"queued", "running", "post_processing"} {
		activeJobs.WithLabelValues(status).Set(float64(counts[status]))
	}
}

func ArtifactExpired() {
	artifactsExpired.Inc()
}
