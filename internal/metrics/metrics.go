package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	remindersCreated = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "doseline_reminders_created_total",
			Help: "Total number of medication reminders created",
		},
		[]string{"source"},
	)

	doseLogsMaterialized = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "doseline_dose_logs_materialized_total",
			Help: "Total number of adherence logs created by the materializer",
		},
	)

	doseLogsMissed = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "doseline_dose_logs_missed_total",
			Help: "Total number of adherence logs swept to MISSED",
		},
	)

	adherenceResponses = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "doseline_adherence_responses_total",
			Help: "Total number of patient dose responses",
		},
		[]string{"status"},
	)

	notificationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "doseline_notifications_total",
			Help: "Total number of notification attempts",
		},
		[]string{"channel", "result"},
	)

	jobDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "doseline_job_duration_seconds",
			Help:    "Background job run duration in seconds",
			Buckets: []float64{.01, .05, .1, .25, .5, 1, 2.5, 5, 10, 30},
		},
		[]string{"job"},
	)

	jobFailures = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "doseline_job_entity_failures_total",
			Help: "Per-entity failures isolated during background jobs",
		},
		[]string{"job"},
	)
)

// Handler returns the Prometheus metrics HTTP handler
func Handler() http.Handler {
	return promhttp.Handler()
}

func RecordReminderCreated(source string) {
	remindersCreated.WithLabelValues(source).Inc()
}

func RecordMaterialized(n int) {
	doseLogsMaterialized.Add(float64(n))
}

func RecordMissed(n int64) {
	doseLogsMissed.Add(float64(n))
}

func RecordAdherenceResponse(status string) {
	adherenceResponses.WithLabelValues(status).Inc()
}

func RecordNotification(channel string, err error) {
	result := "sent"
	if err != nil {
		result = "failed"
	}
	notificationsTotal.WithLabelValues(channel, result).Inc()
}

func RecordJob(job string, duration time.Duration) {
	jobDuration.WithLabelValues(job).Observe(duration.Seconds())
}

func RecordJobFailure(job string) {
	jobFailures.WithLabelValues(job).Inc()
}
