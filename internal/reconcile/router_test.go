package reconcile

import (
	"context"
	"errors"
	"testing"
	"time"

	"studiobook/internal/booking"
	"studiobook/internal/ref"
	"studiobook/internal/subscription"
	"studiobook/internal/user"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	stripe "github.com/stripe/stripe-go/v78"
)

var fixedNow = time.Date(2025, 6, 2, 9, 0, 0, 0, time.UTC)

type env struct {
	router   *Router
	users    *memUsers
	plans    *memPlans
	subs     *memSubscriptions
	bookings *memBookings
	billing  *fakeBilling
}

func customer(id string) *string { return &id }

func newEnv() *env {
	e := &env{
		users: newMemUsers(
			&user.User{ID: 1, Email: "ana@example.com", StripeCustomerID: customer("cus_1")},
			&user.User{ID: 2, Email: "ben@example.com"},
		),
		plans: &memPlans{plans: map[string]*subscription.Plan{
			"prod_1": {ID: 10, Name: "Unlimited"},
			"prod_2": {ID: 20, Name: "Ten pack"},
		}},
		subs:     newMemSubscriptions(),
		bookings: newMemBookings(),
		billing:  &fakeBilling{emails: map[string]string{"cus_2": "ben@example.com"}},
	}
	e.router = NewRouter(e.users, e.plans, e.subs, e.bookings, memLessons{42: true}, e.billing)
	e.router.now = func() time.Time { return fixedNow }
	return e
}

func subObject(customerID string) SubscriptionObject {
	return SubscriptionObject{
		ID:          "sub_1",
		CustomerID:  customerID,
		Status:      "active",
		ProductID:   "prod_1",
		PeriodStart: time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC),
		PeriodEnd:   time.Date(2025, 7, 1, 0, 0, 0, 0, time.UTC),
	}
}

func (e *env) seed(t *testing.T, userID int) {
	t.Helper()
	require.NoError(t, e.subs.Upsert(context.Background(), &subscription.Subscription{
		User:                 ref.ID[user.User](userID),
		Plan:                 ref.ID[subscription.Plan](10),
		Status:               subscription.StatusActive,
		StripeSubscriptionID: "sub_1",
	}))
}

func TestCreated_MirrorsSubscriptionAndConfirmsLesson(t *testing.T) {
	e := newEnv()
	obj := subObject("cus_1")
	obj.LessonID = 42

	outcome, err := e.router.Dispatch(context.Background(), SubscriptionCreated{Subscription: obj})
	require.NoError(t, err)
	assert.Equal(t, OutcomeHandled, outcome)

	sub, err := e.subs.FindByStripeID(context.Background(), "sub_1")
	require.NoError(t, err)
	assert.Equal(t, 1, sub.User.ID())
	assert.Equal(t, 10, sub.Plan.ID())
	assert.Equal(t, subscription.StatusActive, sub.Status)
	require.NotNil(t, sub.EndDate)
	assert.Equal(t, obj.PeriodEnd, *sub.EndDate)
	assert.Equal(t, 1, e.bookings.confirmed[bookingKey{1, 42}])
}

func TestCreated_UnknownCustomerIsSoftSkip(t *testing.T) {
	e := newEnv()

	outcome, err := e.router.Dispatch(context.Background(), SubscriptionCreated{Subscription: subObject("cus_unknown")})
	require.NoError(t, err)
	assert.Equal(t, OutcomeSkipped, outcome)
	assert.Zero(t, e.subs.count())
}

func TestCreated_UnknownPlanIsHardFailure(t *testing.T) {
	e := newEnv()
	obj := subObject("cus_1")
	obj.ProductID = "prod_missing"

	_, err := e.router.Dispatch(context.Background(), SubscriptionCreated{Subscription: obj})
	assert.ErrorIs(t, err, ErrPlanNotFound)
	assert.Zero(t, e.subs.count())
}

func TestUpdated_Idempotent(t *testing.T) {
	e := newEnv()
	e.seed(t, 1)

	obj := subObject("cus_1")
	obj.Status = "past_due"
	obj.ProductID = "prod_2"
	obj.LessonID = 42
	ev := SubscriptionUpdated{Subscription: obj}

	for i := 0; i < 2; i++ {
		outcome, err := e.router.Dispatch(context.Background(), ev)
		require.NoError(t, err)
		assert.Equal(t, OutcomeHandled, outcome)
	}

	assert.Equal(t, 1, e.subs.count())
	sub, err := e.subs.FindByStripeID(context.Background(), "sub_1")
	require.NoError(t, err)
	assert.Equal(t, subscription.StatusPastDue, sub.Status)
	assert.Equal(t, 20, sub.Plan.ID())
	assert.Len(t, e.bookings.confirmed, 1, "one (user, lesson) pair")
}

func TestUpdated_EmailFallbackLinksCustomer(t *testing.T) {
	e := newEnv()
	e.seed(t, 1)

	_, err := e.router.Dispatch(context.Background(), SubscriptionUpdated{Subscription: subObject("cus_2")})
	require.NoError(t, err)
	assert.Equal(t, 1, e.billing.emailCalls)

	u, err := e.users.FindByStripeCustomerID(context.Background(), "cus_2")
	require.NoError(t, err)
	assert.Equal(t, 2, u.ID)

	sub, err := e.subs.FindByStripeID(context.Background(), "sub_1")
	require.NoError(t, err)
	assert.Equal(t, 2, sub.User.ID(), "subscription follows the billing customer")

	_, err = e.router.Dispatch(context.Background(), SubscriptionUpdated{Subscription: subObject("cus_2")})
	require.NoError(t, err)
	assert.Equal(t, 1, e.billing.emailCalls, "second delivery resolves by customer id")
}

func TestUpdated_EmailMatchAlreadyLinkedIsSoftSkip(t *testing.T) {
	e := newEnv()
	e.seed(t, 1)
	e.billing.emails["cus_9"] = "ana@example.com"

	outcome, err := e.router.Dispatch(context.Background(), SubscriptionUpdated{Subscription: subObject("cus_9")})
	require.NoError(t, err)
	assert.Equal(t, OutcomeSkipped, outcome)

	u, err := e.users.FindByStripeCustomerID(context.Background(), "cus_1")
	require.NoError(t, err, "existing link is kept")
	assert.Equal(t, 1, u.ID)

	_, err = e.users.FindByStripeCustomerID(context.Background(), "cus_9")
	assert.ErrorIs(t, err, user.ErrUserNotFound)
}

func TestUpdated_UnknownEverywhereIsSoftSkip(t *testing.T) {
	e := newEnv()
	e.seed(t, 1)

	outcome, err := e.router.Dispatch(context.Background(), SubscriptionUpdated{Subscription: subObject("cus_ghost")})
	require.NoError(t, err)
	assert.Equal(t, OutcomeSkipped, outcome)
}

func TestUpdated_SubscriptionNotMirroredIsRetryable(t *testing.T) {
	e := newEnv()

	_, err := e.router.Dispatch(context.Background(), SubscriptionUpdated{Subscription: subObject("cus_1")})
	assert.ErrorIs(t, err, ErrSubscriptionNotFound)
}

func TestUpdated_MissingLessonSkipsBooking(t *testing.T) {
	e := newEnv()
	e.seed(t, 1)
	obj := subObject("cus_1")
	obj.LessonID = 99

	outcome, err := e.router.Dispatch(context.Background(), SubscriptionUpdated{Subscription: obj})
	require.NoError(t, err)
	assert.Equal(t, OutcomeHandled, outcome)
	assert.Empty(t, e.bookings.confirmed)
}

func TestUpdated_FullLessonDoesNotFailEvent(t *testing.T) {
	e := newEnv()
	e.seed(t, 1)
	e.bookings.err = booking.ErrLessonFull
	obj := subObject("cus_1")
	obj.LessonID = 42

	outcome, err := e.router.Dispatch(context.Background(), SubscriptionUpdated{Subscription: obj})
	require.NoError(t, err)
	assert.Equal(t, OutcomeHandled, outcome)
}

func TestCanceled_CancelsFutureBookings(t *testing.T) {
	e := newEnv()
	e.seed(t, 1)
	obj := subObject("cus_1")
	obj.Status = "canceled"
	obj.CanceledAt = fixedNow.Add(-time.Hour)

	outcome, err := e.router.Dispatch(context.Background(), SubscriptionCanceled{Subscription: obj})
	require.NoError(t, err)
	assert.Equal(t, OutcomeHandled, outcome)

	sub, _ := e.subs.FindByStripeID(context.Background(), "sub_1")
	assert.Equal(t, subscription.StatusCanceled, sub.Status)
	require.NotNil(t, sub.CancelAt)
	assert.Equal(t, obj.CanceledAt, *sub.CancelAt)
	require.NotNil(t, sub.EndDate)
	assert.Equal(t, obj.CanceledAt, *sub.EndDate)

	require.Len(t, e.bookings.cancels, 1)
	assert.Equal(t, cancelCall{userID: 1, planID: 10, now: fixedNow}, e.bookings.cancels[0])
}

func TestPausedAndResumed_LeaveBookingsAlone(t *testing.T) {
	e := newEnv()
	e.seed(t, 1)

	obj := subObject("cus_1")
	obj.Status = "paused"
	_, err := e.router.Dispatch(context.Background(), SubscriptionPaused{Subscription: obj})
	require.NoError(t, err)
	sub, _ := e.subs.FindByStripeID(context.Background(), "sub_1")
	assert.Equal(t, subscription.StatusPaused, sub.Status)

	obj.Status = ""
	_, err = e.router.Dispatch(context.Background(), SubscriptionResumed{Subscription: obj})
	require.NoError(t, err)
	sub, _ = e.subs.FindByStripeID(context.Background(), "sub_1")
	assert.Equal(t, subscription.StatusActive, sub.Status)

	assert.Empty(t, e.bookings.cancels)
}

func TestPaused_NotMirroredIsRetryable(t *testing.T) {
	e := newEnv()
	_, err := e.router.Dispatch(context.Background(), SubscriptionPaused{Subscription: subObject("cus_1")})
	assert.ErrorIs(t, err, ErrSubscriptionNotFound)
}

func TestProductUpdated(t *testing.T) {
	e := newEnv()

	outcome, err := e.router.Dispatch(context.Background(), ProductUpdated{ProductID: "prod_2"})
	require.NoError(t, err)
	assert.Equal(t, OutcomeHandled, outcome)
	assert.Equal(t, []int{20}, e.plans.saved)

	outcome, err = e.router.Dispatch(context.Background(), ProductUpdated{ProductID: "prod_other"})
	require.NoError(t, err)
	assert.Equal(t, OutcomeIgnored, outcome)
}

func TestHandle_IgnoresUnknownTypes(t *testing.T) {
	e := newEnv()

	outcome, err := e.router.Handle(context.Background(), stripeEvent("invoice.paid", `{"id": "in_1"}`))
	require.NoError(t, err)
	assert.Equal(t, OutcomeIgnored, outcome)
}

func TestResync(t *testing.T) {
	e := newEnv()
	e.seed(t, 1)
	e.billing.subscriptions = map[string]*stripe.Subscription{
		"sub_1": {
			ID:               "sub_1",
			Customer:         &stripe.Customer{ID: "cus_1"},
			Status:           stripe.SubscriptionStatusPastDue,
			CurrentPeriodEnd: fixedNow.Add(72 * time.Hour).Unix(),
		},
	}

	sub, err := e.router.Resync(context.Background(), 1)
	require.NoError(t, err)
	assert.Equal(t, subscription.StatusPastDue, sub.Status)

	_, err = e.router.Resync(context.Background(), 404)
	assert.True(t, errors.Is(err, subscription.ErrSubscriptionNotFound))
}
