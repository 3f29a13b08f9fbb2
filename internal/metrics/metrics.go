// internal/metrics/metrics.go
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// DispatchesTotal counts finished invocations by final stage.
	DispatchesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "odm_dispatches_total",
			Help: "Total number of dispatch invocations by final stage.",
		},
		[]string{"stage"},
	)

	JobLaunchesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "odm_job_launches_total",
			Help: "Container job launch attempts by result.",
		},
		[]string{"result"},
	)

	StatusPollsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "odm_status_polls_total",
			Help: "Job status queries by reported status (error for failed queries).",
		},
		[]string{"status"},
	)

	ArtifactUploadsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "odm_artifact_uploads_total",
			Help: "Result artifact uploads by status.",
		},
		[]string{"status"},
	)

	JobWaitSeconds = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "odm_job_wait_seconds",
			Help:    "Time spent waiting for a job to reach a terminal state.",
			Buckets: []float64{30, 60, 120, 300, 600, 900, 1200, 1800},
		},
		[]string{"outcome"},
	)
)
