package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "studiobook_http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"method", "path", "status"},
	)

	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "studiobook_http_request_duration_seconds",
			Help:    "HTTP request duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "path"},
	)

	BookingsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "studiobook_bookings_total",
			Help: "Total number of booking writes by resulting status and source",
		},
		[]string{"status", "source"},
	)

	BookingCancellationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "studiobook_booking_cancellations_total",
			Help: "Total number of booking cancellations",
		},
		[]string{"reason"},
	)

	BookingRejectionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "studiobook_booking_rejections_total",
			Help: "Booking writes rejected by a guard",
		},
		[]string{"reason"},
	)

	EmailsSentTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "studiobook_emails_sent_total",
			Help: "Total number of emails sent",
		},
		[]string{"type", "status"},
	)

	EmailQueueLength = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "studiobook_email_queue_length",
			Help: "Current length of email queue",
		},
	)

	WebhookEventsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "studiobook_webhook_events_total",
			Help: "Billing webhook events by type and outcome",
		},
		[]string{"type", "outcome"},
	)

	LessonsGeneratedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "studiobook_lessons_generated_total",
			Help: "Lessons touched by schedule generation by outcome",
		},
		[]string{"outcome"},
	)

	ScheduleRunsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "studiobook_schedule_runs_total",
			Help: "Schedule generation runs by outcome",
		},
		[]string{"outcome"},
	)

	DetachedTaskFailuresTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "studiobook_detached_task_failures_total",
			Help: "Background side effects that returned an error or panicked",
		},
		[]string{"task"},
	)

	SubscriptionWritesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "studiobook_subscription_writes_total",
			Help: "Subscription rows written by reconciliation, by resulting status",
		},
		[]string{"status"},
	)

	RateLimitedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "studiobook_rate_limited_total",
			Help: "Requests rejected by the per-client rate limiter, by route",
		},
		[]string{"path"},
	)
)

func RecordHTTPRequest(method, path, status string, duration float64) {
	HTTPRequestsTotal.WithLabelValues(method, path, status).Inc()
	HTTPRequestDuration.WithLabelValues(method, path).Observe(duration)
}

func RecordBooking(status, source string) {
	BookingsTotal.WithLabelValues(status, source).Inc()
}

func RecordBookingCancellation(reason string) {
	BookingCancellationsTotal.WithLabelValues(reason).Inc()
}

func RecordBookingRejection(reason string) {
	BookingRejectionsTotal.WithLabelValues(reason).Inc()
}

func RecordEmail(emailType, status string) {
	EmailsSentTotal.WithLabelValues(emailType, status).Inc()
}

func RecordWebhook(eventType, outcome string) {
	WebhookEventsTotal.WithLabelValues(eventType, outcome).Inc()
}

func RecordLessonsGenerated(created, skipped, conflicts, deleted int) {
	LessonsGeneratedTotal.WithLabelValues("created").Add(float64(created))
	LessonsGeneratedTotal.WithLabelValues("skipped").Add(float64(skipped))
	LessonsGeneratedTotal.WithLabelValues("conflict").Add(float64(conflicts))
	LessonsGeneratedTotal.WithLabelValues("deleted").Add(float64(deleted))
}

func RecordScheduleRun(outcome string) {
	ScheduleRunsTotal.WithLabelValues(outcome).Inc()
}

func RecordDetachedTaskFailure(task string) {
	DetachedTaskFailuresTotal.WithLabelValues(task).Inc()
}

func RecordSubscriptionWrite(status string) {
	SubscriptionWritesTotal.WithLabelValues(status).Inc()
}

func RecordRateLimited(path string) {
	RateLimitedTotal.WithLabelValues(path).Inc()
}
