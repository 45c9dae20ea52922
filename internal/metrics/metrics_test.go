package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestRecordHTTPRequest(t *testing.T) {
	HTTPRequestsTotal.Reset()
	HTTPRequestDuration.Reset()

	RecordHTTPRequest("GET", "/lessons", "200", 0.5)

	count := testutil.ToFloat64(HTTPRequestsTotal.WithLabelValues("GET", "/lessons", "200"))
	assert.Equal(t, float64(1), count)
	assert.Equal(t, 1, testutil.CollectAndCount(HTTPRequestDuration))
}

func TestRecordHTTPRequestMultiple(t *testing.T) {
	HTTPRequestsTotal.Reset()

	RecordHTTPRequest("POST", "/lessons/:lessonID/check-in", "201", 0.1)
	RecordHTTPRequest("POST", "/lessons/:lessonID/check-in", "201", 0.2)
	RecordHTTPRequest("POST", "/lessons/:lessonID/check-in", "409", 0.05)

	successCount := testutil.ToFloat64(HTTPRequestsTotal.WithLabelValues("POST", "/lessons/:lessonID/check-in", "201"))
	conflictCount := testutil.ToFloat64(HTTPRequestsTotal.WithLabelValues("POST", "/lessons/:lessonID/check-in", "409"))

	assert.Equal(t, float64(2), successCount)
	assert.Equal(t, float64(1), conflictCount)
}

func TestRecordBooking(t *testing.T) {
	BookingsTotal.Reset()

	RecordBooking("confirmed", "check_in")
	RecordBooking("confirmed", "webhook")
	RecordBooking("waiting", "check_in")

	assert.Equal(t, float64(1), testutil.ToFloat64(BookingsTotal.WithLabelValues("confirmed", "check_in")))
	assert.Equal(t, float64(1), testutil.ToFloat64(BookingsTotal.WithLabelValues("confirmed", "webhook")))
	assert.Equal(t, float64(1), testutil.ToFloat64(BookingsTotal.WithLabelValues("waiting", "check_in")))
}

func TestRecordBookingCancellation(t *testing.T) {
	BookingCancellationsTotal.Reset()

	RecordBookingCancellation("user")
	RecordBookingCancellation("cascade")
	RecordBookingCancellation("cascade")

	assert.Equal(t, float64(1), testutil.ToFloat64(BookingCancellationsTotal.WithLabelValues("user")))
	assert.Equal(t, float64(2), testutil.ToFloat64(BookingCancellationsTotal.WithLabelValues("cascade")))
}

func TestRecordBookingRejection(t *testing.T) {
	BookingRejectionsTotal.Reset()

	RecordBookingRejection("full")
	RecordBookingRejection("duplicate")

	assert.Equal(t, float64(1), testutil.ToFloat64(BookingRejectionsTotal.WithLabelValues("full")))
	assert.Equal(t, float64(1), testutil.ToFloat64(BookingRejectionsTotal.WithLabelValues("duplicate")))
}

func TestRecordEmailMultipleTypes(t *testing.T) {
	EmailsSentTotal.Reset()

	RecordEmail("booking_confirmation", "success")
	RecordEmail("booking_confirmation", "failed")
	RecordEmail("generic", "success")

	assert.Equal(t, float64(1), testutil.ToFloat64(EmailsSentTotal.WithLabelValues("booking_confirmation", "success")))
	assert.Equal(t, float64(1), testutil.ToFloat64(EmailsSentTotal.WithLabelValues("booking_confirmation", "failed")))
	assert.Equal(t, float64(1), testutil.ToFloat64(EmailsSentTotal.WithLabelValues("generic", "success")))
}

func TestEmailQueueLength(t *testing.T) {
	EmailQueueLength.Set(10)
	assert.Equal(t, float64(10), testutil.ToFloat64(EmailQueueLength))

	EmailQueueLength.Set(0)
	assert.Equal(t, float64(0), testutil.ToFloat64(EmailQueueLength))
}

func TestRecordWebhook(t *testing.T) {
	WebhookEventsTotal.Reset()

	RecordWebhook("customer.subscription.updated", "handled")
	RecordWebhook("customer.subscription.updated", "handled")
	RecordWebhook("customer.subscription.created", "retry")

	assert.Equal(t, float64(2), testutil.ToFloat64(WebhookEventsTotal.WithLabelValues("customer.subscription.updated", "handled")))
	assert.Equal(t, float64(1), testutil.ToFloat64(WebhookEventsTotal.WithLabelValues("customer.subscription.created", "retry")))
}

func TestRecordLessonsGenerated(t *testing.T) {
	LessonsGeneratedTotal.Reset()

	RecordLessonsGenerated(8, 2, 1, 0)
	RecordLessonsGenerated(0, 10, 0, 3)

	assert.Equal(t, float64(8), testutil.ToFloat64(LessonsGeneratedTotal.WithLabelValues("created")))
	assert.Equal(t, float64(12), testutil.ToFloat64(LessonsGeneratedTotal.WithLabelValues("skipped")))
	assert.Equal(t, float64(1), testutil.ToFloat64(LessonsGeneratedTotal.WithLabelValues("conflict")))
	assert.Equal(t, float64(3), testutil.ToFloat64(LessonsGeneratedTotal.WithLabelValues("deleted")))
}

func TestRecordScheduleRunAndDetachedFailures(t *testing.T) {
	ScheduleRunsTotal.Reset()
	DetachedTaskFailuresTotal.Reset()

	RecordScheduleRun("success")
	RecordScheduleRun("failure")
	RecordDetachedTaskFailure("booking confirmation email")

	assert.Equal(t, float64(1), testutil.ToFloat64(ScheduleRunsTotal.WithLabelValues("success")))
	assert.Equal(t, float64(1), testutil.ToFloat64(ScheduleRunsTotal.WithLabelValues("failure")))
	assert.Equal(t, float64(1), testutil.ToFloat64(DetachedTaskFailuresTotal.WithLabelValues("booking confirmation email")))
}

func TestRecordSubscriptionWrite(t *testing.T) {
	SubscriptionWritesTotal.Reset()

	RecordSubscriptionWrite("active")
	RecordSubscriptionWrite("canceled")
	RecordSubscriptionWrite("active")

	assert.Equal(t, float64(2), testutil.ToFloat64(SubscriptionWritesTotal.WithLabelValues("active")))
	assert.Equal(t, float64(1), testutil.ToFloat64(SubscriptionWritesTotal.WithLabelValues("canceled")))
}

func TestRecordRateLimited(t *testing.T) {
	RateLimitedTotal.Reset()

	RecordRateLimited("/lessons")
	RecordRateLimited("/lessons")

	assert.Equal(t, float64(2), testutil.ToFloat64(RateLimitedTotal.WithLabelValues("/lessons")))
}
