package booking

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"studiobook/internal/lesson"
	"studiobook/internal/ref"
	"studiobook/internal/user"
)

// memRepository keeps bookings in memory with the same guard semantics as
// the SQL repository.
type memRepository struct {
	mu           sync.Mutex
	nextID       int
	bookings     map[int]*Booking
	transactions map[int]*Transaction
	lessons      *fakeLessons
}

func newMemRepository(lessons *fakeLessons) *memRepository {
	return &memRepository{
		bookings:     map[int]*Booking{},
		transactions: map[int]*Transaction{},
		lessons:      lessons,
	}
}

func stored(b *Booking) *Booking {
	cp := &Booking{
		ID:        b.ID,
		User:      ref.ID[user.User](b.User.ID()),
		Lesson:    ref.ID[lesson.Lesson](b.Lesson.ID()),
		Status:    b.Status,
		CreatedAt: b.CreatedAt,
		UpdatedAt: b.UpdatedAt,
	}
	if !b.Transaction.IsZero() {
		cp.Transaction = ref.ID[Transaction](b.Transaction.ID())
	}
	return cp
}

func (r *memRepository) confirmedLocked(lessonID int) int {
	n := 0
	for _, b := range r.bookings {
		if b.Lesson.ID() == lessonID && b.Status == StatusConfirmed {
			n++
		}
	}
	return n
}

func (r *memRepository) insertLocked(b *Booking) error {
	for _, existing := range r.bookings {
		if existing.User.ID() == b.User.ID() && existing.Lesson.ID() == b.Lesson.ID() {
			return ErrDuplicateBooking
		}
	}
	r.nextID++
	b.ID = r.nextID
	b.CreatedAt = time.Now()
	b.UpdatedAt = b.CreatedAt
	r.bookings[b.ID] = stored(b)
	return nil
}

func (r *memRepository) Create(ctx context.Context, b *Booking) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.insertLocked(b)
}

func (r *memRepository) CreateConfirmed(ctx context.Context, b *Booking, places int) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if !HasSpace(places, r.confirmedLocked(b.Lesson.ID())) {
		return ErrLessonFull
	}
	b.Status = StatusConfirmed
	return r.insertLocked(b)
}

func (r *memRepository) Confirm(ctx context.Context, id, lessonID, places int) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if !HasSpace(places, r.confirmedLocked(lessonID)) {
		return ErrLessonFull
	}
	b, ok := r.bookings[id]
	if !ok {
		return ErrBookingNotFound
	}
	b.Status = StatusConfirmed
	return nil
}

func (r *memRepository) UpdateStatus(ctx context.Context, id int, status string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	b, ok := r.bookings[id]
	if !ok {
		return ErrBookingNotFound
	}
	b.Status = status
	return nil
}

func (r *memRepository) GetByID(ctx context.Context, id int) (*Booking, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	b, ok := r.bookings[id]
	if !ok {
		return nil, ErrBookingNotFound
	}
	return stored(b), nil
}

func (r *memRepository) FindByUserAndLesson(ctx context.Context, userID, lessonID int) (*Booking, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, b := range r.bookings {
		if b.User.ID() == userID && b.Lesson.ID() == lessonID {
			return stored(b), nil
		}
	}
	return nil, ErrBookingNotFound
}

func (r *memRepository) ExistsForUserAndLesson(ctx context.Context, userID, lessonID int) (bool, error) {
	_, err := r.FindByUserAndLesson(ctx, userID, lessonID)
	if errors.Is(err, ErrBookingNotFound) {
		return false, nil
	}
	return err == nil, err
}

func (r *memRepository) CountConfirmed(ctx context.Context, lessonID int) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.confirmedLocked(lessonID), nil
}

func (r *memRepository) CancelOthersInTransaction(ctx context.Context, transactionID, exceptBookingID int) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, b := range r.bookings {
		if b.Transaction.ID() == transactionID && b.ID != exceptBookingID && b.Status != StatusCancelled {
			b.Status = StatusCancelled
			n++
		}
	}
	return n, nil
}

func (r *memRepository) CancelFutureForPlan(ctx context.Context, userID, planID int, after time.Time) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, b := range r.bookings {
		if b.User.ID() != userID || b.Status != StatusConfirmed {
			continue
		}
		l := r.lessons.lessons[b.Lesson.ID()]
		opt := r.lessons.options[l.ClassOption.ID()]
		if l.StartTime.After(after) && opt.AllowsPlan(planID) {
			b.Status = StatusCancelled
			n++
		}
	}
	return n, nil
}

func (r *memRepository) list(match func(*Booking) bool) []BookingWithDetails {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := []BookingWithDetails{}
	for _, b := range r.bookings {
		if !match(b) {
			continue
		}
		l := r.lessons.lessons[b.Lesson.ID()]
		out = append(out, BookingWithDetails{
			Booking:     *stored(b),
			LessonStart: l.StartTime,
			LessonEnd:   l.EndTime,
			Location:    l.Location,
		})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

func (r *memRepository) ListByUser(ctx context.Context, userID int) ([]BookingWithDetails, error) {
	return r.list(func(b *Booking) bool { return b.User.ID() == userID }), nil
}

func (r *memRepository) ListByLesson(ctx context.Context, lessonID int) ([]BookingWithDetails, error) {
	return r.list(func(b *Booking) bool { return b.Lesson.ID() == lessonID }), nil
}

func (r *memRepository) CreateTransaction(ctx context.Context, t *Transaction) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	t.ID = len(r.transactions) + 1
	cp := *t
	r.transactions[t.ID] = &cp
	return nil
}

func (r *memRepository) GetTransaction(ctx context.Context, id int) (*Transaction, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	t, ok := r.transactions[id]
	if !ok {
		return nil, errors.New("transaction not found")
	}
	cp := *t
	return &cp, nil
}

func (r *memRepository) status(id int) string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.bookings[id].Status
}

func (r *memRepository) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.bookings)
}

type fakeLessons struct {
	lessons map[int]*lesson.Lesson
	options map[int]*lesson.ClassOption
}

func newFakeLessons() *fakeLessons {
	return &fakeLessons{
		lessons: map[int]*lesson.Lesson{},
		options: map[int]*lesson.ClassOption{},
	}
}

func (f *fakeLessons) GetLesson(ctx context.Context, id int) (*lesson.Lesson, error) {
	l, ok := f.lessons[id]
	if !ok {
		return nil, lesson.ErrLessonNotFound
	}
	cp := *l
	cp.ClassOption = cp.ClassOption.Expand(f.options[l.ClassOption.ID()])
	return &cp, nil
}

func (f *fakeLessons) ListLessons(ctx context.Context, from, to time.Time) ([]lesson.Lesson, error) {
	out := []lesson.Lesson{}
	for id := range f.lessons {
		l, _ := f.GetLesson(ctx, id)
		if !l.StartTime.Before(from) && l.StartTime.Before(to) {
			out = append(out, *l)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].StartTime.Before(out[j].StartTime) })
	return out, nil
}

func (f *fakeLessons) GetClassOption(ctx context.Context, id int) (*lesson.ClassOption, error) {
	o, ok := f.options[id]
	if !ok {
		return nil, lesson.ErrClassOptionNotFound
	}
	return o, nil
}

type fakeUsers struct {
	users map[int]*user.User
	repo  *memRepository
}

func (f *fakeUsers) FindByID(ctx context.Context, id int) (*user.User, error) {
	u, ok := f.users[id]
	if !ok {
		return nil, user.ErrUserNotFound
	}
	return u, nil
}

func (f *fakeUsers) HasConfirmedBooking(ctx context.Context, userID int) (bool, error) {
	f.repo.mu.Lock()
	defer f.repo.mu.Unlock()
	for _, b := range f.repo.bookings {
		if b.User.ID() == userID && b.Status == StatusConfirmed {
			return true, nil
		}
	}
	return false, nil
}

type fakeEntitlements struct {
	mu       sync.Mutex
	entitled map[int]bool
}

func (f *fakeEntitlements) HasActiveForClassOption(ctx context.Context, userID, classOptionID int) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.entitled[userID], nil
}

type recordingNotifier struct {
	mu   sync.Mutex
	sent []Confirmation
	err  error
}

func (n *recordingNotifier) BookingConfirmed(ctx context.Context, c Confirmation) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.sent = append(n.sent, c)
	return n.err
}

func (n *recordingNotifier) messages() []Confirmation {
	n.mu.Lock()
	defer n.mu.Unlock()
	return append([]Confirmation(nil), n.sent...)
}
