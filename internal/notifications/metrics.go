package notifications

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "taskgarden"

var (
	notificationsSent = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "notifications",
			Name:      "sent_total",
			Help:      "Total telegram API operations by outcome",
		},
		[]string{"operation", "status"},
	)

	notificationSendDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "notifications",
			Name:      "send_duration_seconds",
			Help:      "Time spent in telegram API calls",
			Buckets:   []float64{.01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10},
		},
		[]string{"operation"},
	)

	reminderCycles = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "reminders",
			Name:      "cycles_total",
			Help:      "Overdue poll cycles by outcome",
		},
		[]string{"status"},
	)

	remindersSent = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "reminders",
			Name:      "sent_total",
			Help:      "Overdue reminders by outcome",
		},
		[]string{"status"},
	)

	overdueTasks = promauto.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "reminders",
			Name:      "overdue_tasks",
			Help:      "Overdue incomplete tasks seen in the last poll cycle",
		},
	)
)

func recordNotificationSent(operation, status string) {
	notificationsSent.WithLabelValues(operation, status).Inc()
}

func recordNotificationDuration(operation string, duration time.Duration) {
	notificationSendDuration.WithLabelValues(operation).Observe(duration.Seconds())
}

func recordReminderCycle(status string) {
	reminderCycles.WithLabelValues(status).Inc()
}

func recordReminder(status string) {
	remindersSent.WithLabelValues(status).Inc()
}
