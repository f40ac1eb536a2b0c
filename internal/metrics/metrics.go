package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	RequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "carparkmanager_requests_total",
			Help: "Total number of API requests per path",
		},
		[]string{"path"},
	)

	RequestDurationSeconds = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "carparkmanager_request_duration_seconds",
			Help:    "Request duration in seconds per path",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"path"},
	)

	RequestErrorsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "carparkmanager_request_errors_total",
			Help: "Total number of error responses per path and status code",
		},
		[]string{"path", "code"},
	)
)

var (
	ScheduledJobLastRun = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "carparkmanager_job_last_run_timestamp",
			Help: "Unix timestamp of the last completed run for a job",
		},
		[]string{"job"},
	)

	ScheduledJobLastDurationSeconds = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "carparkmanager_job_last_duration_seconds",
			Help: "Duration of the last completed run for a job",
		},
		[]string{"job"},
	)

	ScheduledJobFailuresTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "carparkmanager_job_failures_total",
			Help: "Total number of failed executions per job",
		},
		[]string{"job"},
	)
)

var (
	FetchAttemptsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "carparkmanager_fetch_attempts_total",
			Help: "Upstream fetch attempts by outcome",
		},
		[]string{"outcome"},
	)

	SnapshotRecords = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "carparkmanager_snapshot_records",
			Help: "Number of car parks in the published snapshot",
		},
	)

	SnapshotFetchedTimestamp = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "carparkmanager_snapshot_fetched_timestamp",
			Help: "Unix timestamp at which the published snapshot was fetched",
		},
	)
)

func UpdateJobMetrics(job string, startedAt time.Time, err error) {
	dur := time.Since(startedAt).Seconds()
	ScheduledJobLastDurationSeconds.WithLabelValues(job).Set(dur)
	ScheduledJobLastRun.WithLabelValues(job).Set(float64(time.Now().Unix()))
	if err != nil {
		ScheduledJobFailuresTotal.WithLabelValues(job).Inc()
	}
}

// ObserveFetchAttempt counts one upstream attempt under its outcome label.
func ObserveFetchAttempt(outcome string) {
	FetchAttemptsTotal.WithLabelValues(outcome).Inc()
}

// UpdateSnapshotMetrics records the size and age of a freshly published snapshot.
func UpdateSnapshotMetrics(records int, fetchedAt time.Time) {
	SnapshotRecords.Set(float64(records))
	SnapshotFetchedTimestamp.Set(float64(fetchedAt.Unix()))
}
