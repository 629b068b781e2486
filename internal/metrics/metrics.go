package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

var (
	EmailsSent = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "emails_sent_total",
			Help: "Total emails sent",
		},
	)

	EmailFailures = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "email_failures_total",
			Help: "Total failed emails",
		},
	)

	FollowupsCancelled = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "followups_cancelled_total",
			Help: "Total followups cancelled after a detected reply",
		},
	)

	RepliesDetected = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "replies_detected_total",
			Help: "Total conversations where a reply was detected",
		},
	)

	DetectionErrors = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "reply_detection_errors_total",
			Help: "Total reply checks that errored (treated as no reply)",
		},
	)

	TickDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "worker_tick_duration_seconds",
			Help:    "Duration of one delivery worker poll tick",
			Buckets: prometheus.DefBuckets,
		},
	)
)

func Init() {
	prometheus.MustRegister(
		EmailsSent,
		EmailFailures,
		FollowupsCancelled,
		RepliesDetected,
		DetectionErrors,
		TickDuration,
	)
}
