// internal/common/metrics/metrics.go
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	WorkerJobsCompleted = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "worker_jobs_completed_total",
			Help: "Total number of jobs completed by worker",
		},
		[]string{"task_type"},
	)

	WorkerJobsFailed = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "worker_jobs_failed_total",
			Help: "Total number of jobs failed by worker",
		},
		[]string{"task_type", "error_code"},
	)

	WorkerJobDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name: "worker_job_duration_seconds",
			Help: "Duration of job processing in seconds",
		},
		[]string{"task_type"},
	)

	PackagesInstantiated = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sqpr_packages_instantiated_total",
			Help: "Templates instantiated into packages",
		},
		[]string{"template_type"},
	)

	PackageFiles = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sqpr_package_files_total",
			Help: "Package files handed to the storage gateway, by outcome",
		},
		[]string{"status"},
	)

	PackageFileSaveDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "sqpr_package_file_save_seconds",
			Help:    "Duration of a single package file write",
			Buckets: prometheus.ExponentialBuckets(0.005, 2, 12),
		},
	)

	ValidationIssues = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sqpr_validation_issues_total",
			Help: "Validation issues reported, by validated entity and severity",
		},
		[]string{"entity", "severity"},
	)

	ExecutionRuns = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sqpr_execution_runs_total",
			Help: "Package save runs, by outcome",
		},
		[]string{"outcome"},
	)
)
