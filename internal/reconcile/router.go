package reconcile

import (
	"context"
	"errors"
	"fmt"
	"time"

	"studiobook/internal/billing"
	"studiobook/internal/booking"
	"studiobook/internal/lesson"
	"studiobook/internal/logger"
	"studiobook/internal/metrics"
	"studiobook/internal/ref"
	"studiobook/internal/subscription"
	"studiobook/internal/user"
	"studiobook/internal/viewer"

	stripe "github.com/stripe/stripe-go/v78"
)

var (
	// ErrSubscriptionNotFound means the provider is ahead of us; the event
	// should be retried.
	ErrSubscriptionNotFound = errors.New("subscription not mirrored locally yet")
	// ErrPlanNotFound means a product has no local plan. It is a
	// configuration problem and is surfaced as a failure.
	ErrPlanNotFound = errors.New("no plan for billing product")
)

type Outcome string

const (
	OutcomeHandled Outcome = "handled"
	OutcomeIgnored Outcome = "ignored"
	OutcomeSkipped Outcome = "skipped"
	OutcomeFailed  Outcome = "failed"
)

type Users interface {
	FindByStripeCustomerID(ctx context.Context, customerID string) (*user.User, error)
	FindByEmail(ctx context.Context, email string) (*user.User, error)
	SetStripeCustomerID(ctx context.Context, userID int, customerID string) error
}

type Plans interface {
	FindByProductID(ctx context.Context, productID string) (*subscription.Plan, error)
	Save(ctx context.Context, p *subscription.Plan) error
}

type Subscriptions interface {
	Upsert(ctx context.Context, sub *subscription.Subscription) error
	Update(ctx context.Context, sub *subscription.Subscription) error
	FindByStripeID(ctx context.Context, stripeID string) (*subscription.Subscription, error)
	Get(ctx context.Context, id int) (*subscription.Subscription, error)
}

type Bookings interface {
	UpsertConfirmed(ctx context.Context, rc viewer.RequestContext, userID, lessonID int) (*booking.Booking, error)
	CancelFutureForPlan(ctx context.Context, userID, planID int, now time.Time) (int, error)
}

type Lessons interface {
	GetLesson(ctx context.Context, id int) (*lesson.Lesson, error)
}

// Billing is the read side of the provider used for the email fallback and
// for resyncs.
type Billing interface {
	CustomerEmail(ctx context.Context, customerID string) (string, error)
	Subscription(ctx context.Context, subscriptionID string) (*stripe.Subscription, error)
}

// Router dispatches parsed events to their handlers. Every handler looks
// state up by natural key so a redelivered event converges on the same rows.
type Router struct {
	users         Users
	plans         Plans
	subscriptions Subscriptions
	bookings      Bookings
	lessons       Lessons
	billing       Billing
	now           func() time.Time
}

func NewRouter(users Users, plans Plans, subscriptions Subscriptions, bookings Bookings, lessons Lessons, billing Billing) *Router {
	return &Router{
		users:         users,
		plans:         plans,
		subscriptions: subscriptions,
		bookings:      bookings,
		lessons:       lessons,
		billing:       billing,
		now:           time.Now,
	}
}

// Handle parses a verified provider event, dispatches it and records the
// outcome.
func (r *Router) Handle(ctx context.Context, event stripe.Event) (Outcome, error) {
	ev, err := Parse(event)
	if errors.Is(err, ErrUnhandledEvent) {
		metrics.RecordWebhook(string(event.Type), string(OutcomeIgnored))
		return OutcomeIgnored, nil
	}
	if err != nil {
		metrics.RecordWebhook(string(event.Type), string(OutcomeFailed))
		return OutcomeFailed, err
	}

	outcome, err := r.Dispatch(ctx, ev)
	if err != nil {
		outcome = OutcomeFailed
	}
	metrics.RecordWebhook(string(event.Type), string(outcome))
	return outcome, err
}

func (r *Router) Dispatch(ctx context.Context, ev Event) (Outcome, error) {
	switch e := ev.(type) {
	case SubscriptionCreated:
		return r.created(ctx, e.Subscription)
	case SubscriptionUpdated:
		return r.updated(ctx, e.Subscription)
	case SubscriptionCanceled:
		return r.canceled(ctx, e.Subscription)
	case SubscriptionPaused:
		return r.statusOnly(ctx, e.Subscription, subscription.StatusPaused)
	case SubscriptionResumed:
		return r.statusOnly(ctx, e.Subscription, subscription.StatusActive)
	case ProductUpdated:
		return r.productUpdated(ctx, e.ProductID)
	default:
		return OutcomeIgnored, fmt.Errorf("%w: %T", ErrUnhandledEvent, ev)
	}
}

func (r *Router) created(ctx context.Context, obj SubscriptionObject) (Outcome, error) {
	u, err := r.users.FindByStripeCustomerID(ctx, obj.CustomerID)
	if errors.Is(err, user.ErrUserNotFound) {
		logger.Warn("no local user for billing customer, skipping subscription",
			"customer_id", obj.CustomerID, "subscription_id", obj.ID)
		return OutcomeSkipped, nil
	}
	if err != nil {
		return OutcomeFailed, err
	}

	plan, err := r.plan(ctx, obj.ProductID)
	if err != nil {
		return OutcomeFailed, err
	}

	status := subscription.Status(obj.Status)
	if !status.Valid() {
		status = subscription.StatusIncomplete
	}
	sub := &subscription.Subscription{
		User:                 ref.Expanded(u.ID, u),
		Plan:                 ref.Expanded(plan.ID, plan),
		Status:               status,
		StripeSubscriptionID: obj.ID,
		SkipSync:             true,
	}
	applyDates(sub, obj)
	if err := r.subscriptions.Upsert(ctx, sub); err != nil {
		return OutcomeFailed, err
	}
	logger.Info("subscription mirrored", "subscription_id", sub.ID, "stripe_id", obj.ID, "status", sub.Status)

	if obj.LessonID != 0 {
		if _, err := r.confirmBooking(ctx, u.ID, obj); err != nil {
			return OutcomeFailed, err
		}
	}
	return OutcomeHandled, nil
}

func (r *Router) updated(ctx context.Context, obj SubscriptionObject) (Outcome, error) {
	u, err := r.resolveUser(ctx, obj.CustomerID)
	if errors.Is(err, user.ErrUserNotFound) {
		logger.Warn("no local user for billing customer, skipping update",
			"customer_id", obj.CustomerID, "subscription_id", obj.ID)
		return OutcomeSkipped, nil
	}
	if err != nil {
		return OutcomeFailed, err
	}

	sub, err := r.findSubscription(ctx, obj.ID)
	if err != nil {
		return OutcomeFailed, err
	}

	if obj.ProductID != "" {
		plan, err := r.plan(ctx, obj.ProductID)
		if err != nil {
			return OutcomeFailed, err
		}
		sub.Plan = ref.Expanded(plan.ID, plan)
	}
	if status := subscription.Status(obj.Status); status.Valid() {
		sub.Status = status
	}
	applyDates(sub, obj)
	if sub.User.ID() != u.ID {
		logger.Info("reattributing subscription to billing customer's user",
			"subscription_id", obj.ID, "from_user_id", sub.User.ID(), "to_user_id", u.ID)
	}
	sub.User = ref.Expanded(u.ID, u)
	sub.SkipSync = true
	if err := r.subscriptions.Update(ctx, sub); err != nil {
		return OutcomeFailed, err
	}

	if obj.LessonID != 0 {
		if _, err := r.confirmBooking(ctx, u.ID, obj); err != nil {
			return OutcomeFailed, err
		}
	}
	return OutcomeHandled, nil
}

func (r *Router) canceled(ctx context.Context, obj SubscriptionObject) (Outcome, error) {
	sub, err := r.findSubscription(ctx, obj.ID)
	if err != nil {
		return OutcomeFailed, err
	}

	now := r.now()
	sub.Status = subscription.StatusCanceled
	applyDates(sub, obj)
	end := firstSet(obj.EndedAt, obj.CanceledAt, now)
	cancelAt := firstSet(obj.CanceledAt, obj.CancelAt, now)
	sub.EndDate = &end
	sub.CancelAt = &cancelAt
	sub.SkipSync = true
	if err := r.subscriptions.Update(ctx, sub); err != nil {
		return OutcomeFailed, err
	}

	planID := sub.Plan.ID()
	if obj.ProductID != "" {
		plan, err := r.plans.FindByProductID(ctx, obj.ProductID)
		switch {
		case err == nil:
			planID = plan.ID
		case errors.Is(err, subscription.ErrPlanNotFound):
			logger.Warn("cancelled subscription product has no plan, using stored plan",
				"product_id", obj.ProductID, "plan_id", planID)
		default:
			return OutcomeFailed, err
		}
	}
	if planID == 0 {
		logger.Warn("cancelled subscription has no plan, future bookings kept", "subscription_id", sub.ID)
		return OutcomeHandled, nil
	}

	if _, err := r.bookings.CancelFutureForPlan(ctx, sub.User.ID(), planID, now); err != nil {
		return OutcomeFailed, err
	}
	return OutcomeHandled, nil
}

// statusOnly mirrors a pause or resume. Confirmed bookings are left alone.
func (r *Router) statusOnly(ctx context.Context, obj SubscriptionObject, fallback subscription.Status) (Outcome, error) {
	sub, err := r.findSubscription(ctx, obj.ID)
	if err != nil {
		return OutcomeFailed, err
	}

	sub.Status = fallback
	if status := subscription.Status(obj.Status); status.Valid() {
		sub.Status = status
	}
	applyDates(sub, obj)
	sub.SkipSync = true
	if err := r.subscriptions.Update(ctx, sub); err != nil {
		return OutcomeFailed, err
	}
	return OutcomeHandled, nil
}

func (r *Router) productUpdated(ctx context.Context, productID string) (Outcome, error) {
	plan, err := r.plans.FindByProductID(ctx, productID)
	if errors.Is(err, subscription.ErrPlanNotFound) {
		logger.Info("updated product has no plan", "product_id", productID)
		return OutcomeIgnored, nil
	}
	if err != nil {
		return OutcomeFailed, err
	}

	if err := r.plans.Save(ctx, plan); err != nil {
		return OutcomeFailed, err
	}
	return OutcomeHandled, nil
}

// Resync pulls a subscription from the provider and replays it as an update.
func (r *Router) Resync(ctx context.Context, subscriptionID int) (*subscription.Subscription, error) {
	local, err := r.subscriptions.Get(ctx, subscriptionID)
	if err != nil {
		return nil, err
	}

	remote, err := r.billing.Subscription(ctx, local.StripeSubscriptionID)
	if err != nil {
		return nil, err
	}
	obj, err := FromStripe(remote)
	if err != nil {
		return nil, err
	}

	outcome, err := r.updated(ctx, obj)
	metrics.RecordWebhook("resync", string(outcome))
	if err != nil {
		return nil, err
	}
	return r.subscriptions.Get(ctx, subscriptionID)
}

// resolveUser looks the customer up locally and falls back to matching the
// provider's email. Only a user with no customer id yet gets linked.
func (r *Router) resolveUser(ctx context.Context, customerID string) (*user.User, error) {
	u, err := r.users.FindByStripeCustomerID(ctx, customerID)
	if !errors.Is(err, user.ErrUserNotFound) {
		return u, err
	}

	email, err := r.billing.CustomerEmail(ctx, customerID)
	if errors.Is(err, billing.ErrNotFound) || errors.Is(err, billing.ErrNotConfigured) || (err == nil && email == "") {
		return nil, user.ErrUserNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("fetch customer %s: %w", customerID, err)
	}

	u, err = r.users.FindByEmail(ctx, email)
	if err != nil {
		return nil, err
	}
	if u.HasStripeCustomer() {
		// An existing link is never replaced.
		logger.Warn("email match already linked to another billing customer",
			"user_id", u.ID, "customer_id", customerID, "linked_customer_id", *u.StripeCustomerID)
		return nil, user.ErrUserNotFound
	}
	if err := r.users.SetStripeCustomerID(ctx, u.ID, customerID); err != nil {
		return nil, fmt.Errorf("link customer %s to user %d: %w", customerID, u.ID, err)
	}
	logger.Info("linked billing customer by email", "user_id", u.ID, "customer_id", customerID)
	return u, nil
}

func (r *Router) findSubscription(ctx context.Context, stripeID string) (*subscription.Subscription, error) {
	sub, err := r.subscriptions.FindByStripeID(ctx, stripeID)
	if errors.Is(err, subscription.ErrSubscriptionNotFound) {
		return nil, fmt.Errorf("%w: %s", ErrSubscriptionNotFound, stripeID)
	}
	return sub, err
}

func (r *Router) plan(ctx context.Context, productID string) (*subscription.Plan, error) {
	if productID == "" {
		return nil, fmt.Errorf("%w: event carries no product", ErrPlanNotFound)
	}
	plan, err := r.plans.FindByProductID(ctx, productID)
	if errors.Is(err, subscription.ErrPlanNotFound) {
		return nil, fmt.Errorf("%w: %s", ErrPlanNotFound, productID)
	}
	return plan, err
}

// confirmBooking upserts the booking named in the subscription metadata. A
// lesson that no longer exists is logged and skipped.
func (r *Router) confirmBooking(ctx context.Context, userID int, obj SubscriptionObject) (*booking.Booking, error) {
	if _, err := r.lessons.GetLesson(ctx, obj.LessonID); err != nil {
		if errors.Is(err, lesson.ErrLessonNotFound) {
			logger.Warn("lesson from subscription metadata is gone, booking skipped",
				"lesson_id", obj.LessonID, "user_id", userID, "subscription_id", obj.ID)
			return nil, nil
		}
		return nil, err
	}

	b, err := r.bookings.UpsertConfirmed(ctx, viewer.System(r.now()), userID, obj.LessonID)
	if errors.Is(err, booking.ErrLessonFull) {
		logger.Warn("paid booking could not be confirmed, lesson is full",
			"lesson_id", obj.LessonID, "user_id", userID, "subscription_id", obj.ID)
		return nil, nil
	}
	return b, err
}

func applyDates(sub *subscription.Subscription, obj SubscriptionObject) {
	if start := firstSet(obj.PeriodStart, obj.StartDate); !start.IsZero() {
		sub.StartDate = &start
	}
	if !obj.PeriodEnd.IsZero() {
		end := obj.PeriodEnd
		sub.EndDate = &end
	}
	if !obj.CancelAt.IsZero() {
		cancelAt := obj.CancelAt
		sub.CancelAt = &cancelAt
	}
}

func firstSet(ts ...time.Time) time.Time {
	for _, t := range ts {
		if !t.IsZero() {
			return t
		}
	}
	return time.Time{}
}
