// Package metrics exposes Prometheus collectors for the check pipeline.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	ChecksTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sitewatch_checks_total",
			Help: "Checks recorded, by outcome status",
		},
		[]string{"status"},
	)

	CheckDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "sitewatch_check_duration_seconds",
			Help:    "Wall time of one check unit of work",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"status"},
	)

	NotificationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sitewatch_notifications_total",
			Help: "Notification attempts by kind (alert|recovery) and result (delivered|failed)",
		},
		[]string{"kind", "result"},
	)

	AlertsSuppressed = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "sitewatch_alerts_suppressed_total",
			Help: "Alerts withheld by the cooldown window",
		},
	)

	TaskRetries = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "sitewatch_task_retries_total",
			Help: "Check tasks re-queued after an infrastructure failure",
		},
	)

	TasksAbandoned = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sitewatch_tasks_abandoned_total",
			Help: "Check tasks given up, by reason",
		},
		[]string{"reason"},
	)

	JobsDropped = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "sitewatch_jobs_dropped_total",
			Help: "Dispatches dropped because the job queue was full",
		},
	)

	HistoryDeleted = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "sitewatch_history_deleted_total",
			Help: "Check records removed by the retention sweeper",
		},
	)

	DueTargets = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "sitewatch_due_targets",
			Help: "Targets found due on the last selector tick",
		},
	)
)

func RecordCheck(status string, took time.Duration) {
	ChecksTotal.WithLabelValues(status).Inc()
	CheckDuration.WithLabelValues(status).Observe(took.Seconds())
}

func RecordNotification(kind string, err error) {
	result := "delivered"
	if err != nil {
		result = "failed"
	}
	NotificationsTotal.WithLabelValues(kind, result).Inc()
}

func Handler() http.Handler {
	return promhttp.Handler()
}
