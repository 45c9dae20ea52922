package reconcile

import (
	"context"
	"sync"
	"time"

	"studiobook/internal/billing"
	"studiobook/internal/booking"
	"studiobook/internal/lesson"
	"studiobook/internal/ref"
	"studiobook/internal/subscription"
	"studiobook/internal/user"
	"studiobook/internal/viewer"

	stripe "github.com/stripe/stripe-go/v78"
)

type memUsers struct {
	mu    sync.Mutex
	users map[int]*user.User
}

func newMemUsers(users ...*user.User) *memUsers {
	m := &memUsers{users: map[int]*user.User{}}
	for _, u := range users {
		m.users[u.ID] = u
	}
	return m
}

func (m *memUsers) FindByStripeCustomerID(_ context.Context, customerID string) (*user.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, u := range m.users {
		if u.StripeCustomerID != nil && *u.StripeCustomerID == customerID {
			cp := *u
			return &cp, nil
		}
	}
	return nil, user.ErrUserNotFound
}

func (m *memUsers) FindByEmail(_ context.Context, email string) (*user.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, u := range m.users {
		if u.Email == email {
			cp := *u
			return &cp, nil
		}
	}
	return nil, user.ErrUserNotFound
}

func (m *memUsers) SetStripeCustomerID(_ context.Context, userID int, customerID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.users[userID]
	if !ok {
		return user.ErrUserNotFound
	}
	u.StripeCustomerID = &customerID
	return nil
}

type memPlans struct {
	plans map[string]*subscription.Plan
	saved []int
}

func (m *memPlans) FindByProductID(_ context.Context, productID string) (*subscription.Plan, error) {
	p, ok := m.plans[productID]
	if !ok {
		return nil, subscription.ErrPlanNotFound
	}
	cp := *p
	return &cp, nil
}

func (m *memPlans) Save(_ context.Context, p *subscription.Plan) error {
	m.saved = append(m.saved, p.ID)
	return nil
}

type memSubscriptions struct {
	mu     sync.Mutex
	nextID int
	rows   map[string]subscription.Subscription
	writes int
}

func newMemSubscriptions() *memSubscriptions {
	return &memSubscriptions{rows: map[string]subscription.Subscription{}}
}

func (m *memSubscriptions) Upsert(_ context.Context, sub *subscription.Subscription) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if existing, ok := m.rows[sub.StripeSubscriptionID]; ok {
		sub.ID = existing.ID
	} else {
		m.nextID++
		sub.ID = m.nextID
	}
	m.store(sub)
	return nil
}

func (m *memSubscriptions) Update(_ context.Context, sub *subscription.Subscription) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.rows[sub.StripeSubscriptionID]; !ok {
		return subscription.ErrSubscriptionNotFound
	}
	m.store(sub)
	return nil
}

func (m *memSubscriptions) store(sub *subscription.Subscription) {
	cp := *sub
	cp.User = ref.ID[user.User](sub.User.ID())
	cp.Plan = ref.ID[subscription.Plan](sub.Plan.ID())
	cp.SkipSync = false
	m.rows[sub.StripeSubscriptionID] = cp
	m.writes++
}

func (m *memSubscriptions) FindByStripeID(_ context.Context, stripeID string) (*subscription.Subscription, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.rows[stripeID]
	if !ok {
		return nil, subscription.ErrSubscriptionNotFound
	}
	return &s, nil
}

func (m *memSubscriptions) Get(_ context.Context, id int) (*subscription.Subscription, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, s := range m.rows {
		if s.ID == id {
			return &s, nil
		}
	}
	return nil, subscription.ErrSubscriptionNotFound
}

func (m *memSubscriptions) count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.rows)
}

type bookingKey struct{ user, lesson int }

type cancelCall struct {
	userID, planID int
	now            time.Time
}

type memBookings struct {
	mu        sync.Mutex
	confirmed map[bookingKey]int
	cancels   []cancelCall
	err       error
}

func newMemBookings() *memBookings {
	return &memBookings{confirmed: map[bookingKey]int{}}
}

func (m *memBookings) UpsertConfirmed(_ context.Context, rc viewer.RequestContext, userID, lessonID int) (*booking.Booking, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return nil, m.err
	}
	m.confirmed[bookingKey{userID, lessonID}]++
	return &booking.Booking{
		User:   ref.ID[user.User](userID),
		Lesson: ref.ID[lesson.Lesson](lessonID),
		Status: booking.StatusConfirmed,
	}, nil
}

func (m *memBookings) CancelFutureForPlan(_ context.Context, userID, planID int, now time.Time) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.cancels = append(m.cancels, cancelCall{userID, planID, now})
	return 1, nil
}

type memLessons map[int]bool

func (m memLessons) GetLesson(_ context.Context, id int) (*lesson.Lesson, error) {
	if !m[id] {
		return nil, lesson.ErrLessonNotFound
	}
	return &lesson.Lesson{ID: id}, nil
}

type fakeBilling struct {
	emails        map[string]string
	subscriptions map[string]*stripe.Subscription
	emailCalls    int
}

func (f *fakeBilling) CustomerEmail(_ context.Context, customerID string) (string, error) {
	f.emailCalls++
	email, ok := f.emails[customerID]
	if !ok {
		return "", billing.ErrNotFound
	}
	return email, nil
}

func (f *fakeBilling) Subscription(_ context.Context, id string) (*stripe.Subscription, error) {
	s, ok := f.subscriptions[id]
	if !ok {
		return nil, billing.ErrNotFound
	}
	return s, nil
}
