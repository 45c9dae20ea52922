package booking

import (
	"context"
	"errors"
	"fmt"
	"time"

	"studiobook/internal/async"
	"studiobook/internal/lesson"
	"studiobook/internal/logger"
	"studiobook/internal/metrics"
	"studiobook/internal/ref"
	"studiobook/internal/user"
	"studiobook/internal/viewer"
)

const notifyTimeout = 30 * time.Second

// LessonReader is satisfied by lesson.Service.
type LessonReader interface {
	GetLesson(ctx context.Context, id int) (*lesson.Lesson, error)
	ListLessons(ctx context.Context, from, to time.Time) ([]lesson.Lesson, error)
	GetClassOption(ctx context.Context, id int) (*lesson.ClassOption, error)
}

type UserReader interface {
	FindByID(ctx context.Context, id int) (*user.User, error)
	HasConfirmedBooking(ctx context.Context, userID int) (bool, error)
}

// Entitlements answers whether a user's subscriptions cover a class option.
type Entitlements interface {
	HasActiveForClassOption(ctx context.Context, userID, classOptionID int) (bool, error)
}

// Spawner runs a side effect without blocking the caller.
type Spawner interface {
	Go(parentCtx context.Context, timeout time.Duration, taskName string, fn func(context.Context) error)
}

type Service interface {
	Create(ctx context.Context, rc viewer.RequestContext, req CreateRequest) (*Booking, error)
	UpdateStatus(ctx context.Context, rc viewer.RequestContext, bookingID int, status string) (*Booking, error)
	UpsertConfirmed(ctx context.Context, rc viewer.RequestContext, userID, lessonID int) (*Booking, error)
	CancelFutureForPlan(ctx context.Context, userID, planID int, now time.Time) (int, error)
	CheckIn(ctx context.Context, rc viewer.RequestContext, lessonID int) (*Booking, error)

	RemainingCapacity(ctx context.Context, lessonID int) (int, error)
	LessonView(ctx context.Context, rc viewer.RequestContext, lessonID int) (*LessonView, error)
	ListLessonViews(ctx context.Context, rc viewer.RequestContext, from, to time.Time) ([]LessonView, error)

	ListForUser(ctx context.Context, userID int) ([]BookingWithDetails, error)
	ListForLesson(ctx context.Context, lessonID int) ([]BookingWithDetails, error)
}

type service struct {
	repo         Repository
	lessons      LessonReader
	users        UserReader
	entitlements Entitlements
	notifier     Notifier
	tasks        Spawner
	viewWorkers  int
}

func NewService(
	repo Repository,
	lessons LessonReader,
	users UserReader,
	entitlements Entitlements,
	notifier Notifier,
	tasks Spawner,
) Service {
	if tasks == nil {
		tasks = &async.Group{}
	}
	return &service{
		repo:         repo,
		lessons:      lessons,
		users:        users,
		entitlements: entitlements,
		notifier:     notifier,
		tasks:        tasks,
		viewWorkers:  8,
	}
}

func source(rc viewer.RequestContext) string {
	switch {
	case rc.Viewer == nil:
		return "anonymous"
	case rc.Viewer.Role == viewer.RoleSystem:
		return "system"
	case rc.IsStaff():
		return "staff"
	default:
		return "member"
	}
}

func (s *service) classOption(ctx context.Context, l *lesson.Lesson) (*lesson.ClassOption, error) {
	opt, err := l.ClassOption.Resolve(ctx, s.lessons.GetClassOption)
	if err != nil {
		return nil, fmt.Errorf("class option for lesson %d: %w", l.ID, err)
	}
	return opt, nil
}

// Create stores a new booking. A second booking for the same user and
// lesson is rejected whatever the status of the first one.
func (s *service) Create(ctx context.Context, rc viewer.RequestContext, req CreateRequest) (*Booking, error) {
	if !ValidStatus(req.Status) {
		return nil, ErrInvalidStatus
	}
	if !rc.IsStaff() && rc.UserID() != req.UserID {
		return nil, ErrForbidden
	}

	exists, err := s.repo.ExistsForUserAndLesson(ctx, req.UserID, req.LessonID)
	if err != nil {
		return nil, err
	}
	if exists {
		metrics.RecordBookingRejection("duplicate")
		return nil, ErrDuplicateBooking
	}

	l, err := s.lessons.GetLesson(ctx, req.LessonID)
	if err != nil {
		return nil, err
	}

	b := &Booking{
		User:   ref.ID[user.User](req.UserID),
		Lesson: ref.Expanded(l.ID, l),
		Status: req.Status,
	}
	if req.TransactionID != 0 {
		b.Transaction = ref.ID[Transaction](req.TransactionID)
	}

	if err := s.insert(ctx, b, l); err != nil {
		return nil, err
	}
	metrics.RecordBooking(b.Status, source(rc))

	if b.Status == StatusConfirmed {
		s.notifyConfirmed(ctx, b, l)
	}
	return b, nil
}

func (s *service) insert(ctx context.Context, b *Booking, l *lesson.Lesson) error {
	if b.Status != StatusConfirmed {
		err := s.repo.Create(ctx, b)
		if errors.Is(err, ErrDuplicateBooking) {
			metrics.RecordBookingRejection("duplicate")
		}
		return err
	}

	opt, err := s.classOption(ctx, l)
	if err != nil {
		return err
	}
	err = s.repo.CreateConfirmed(ctx, b, opt.Places)
	switch {
	case errors.Is(err, ErrLessonFull):
		metrics.RecordBookingRejection("full")
	case errors.Is(err, ErrDuplicateBooking):
		metrics.RecordBookingRejection("duplicate")
	}
	return err
}

func (s *service) confirm(ctx context.Context, b *Booking, l *lesson.Lesson) error {
	opt, err := s.classOption(ctx, l)
	if err != nil {
		return err
	}
	if err := s.repo.Confirm(ctx, b.ID, l.ID, opt.Places); err != nil {
		if errors.Is(err, ErrLessonFull) {
			metrics.RecordBookingRejection("full")
		}
		return err
	}
	b.Status = StatusConfirmed
	b.Lesson = ref.Expanded(l.ID, l)
	return nil
}

// UpdateStatus changes a booking's status. Members may only cancel their own
// bookings; staff may set any status.
func (s *service) UpdateStatus(ctx context.Context, rc viewer.RequestContext, bookingID int, status string) (*Booking, error) {
	if !ValidStatus(status) {
		return nil, ErrInvalidStatus
	}

	b, err := s.repo.GetByID(ctx, bookingID)
	if err != nil {
		return nil, err
	}

	if !rc.IsStaff() {
		if b.User.ID() != rc.UserID() || status != StatusCancelled {
			return nil, ErrForbidden
		}
	}

	if b.Status == status {
		return b, nil
	}

	if status == StatusConfirmed {
		l, err := s.lessons.GetLesson(ctx, b.Lesson.ID())
		if err != nil {
			return nil, err
		}
		if err := s.confirm(ctx, b, l); err != nil {
			return nil, err
		}
		metrics.RecordBooking(StatusConfirmed, source(rc))
		s.notifyConfirmed(ctx, b, l)
		return b, nil
	}

	if err := s.repo.UpdateStatus(ctx, b.ID, status); err != nil {
		return nil, err
	}
	b.Status = status
	metrics.RecordBooking(status, source(rc))

	if status == StatusCancelled {
		metrics.RecordBookingCancellation(source(rc))
		if err := s.cascadeCancel(ctx, rc, b); err != nil {
			return b, fmt.Errorf("cascade cancel for booking %d: %w", b.ID, err)
		}
	}
	return b, nil
}

// cascadeCancel cancels the other bookings paid by the same transaction when
// the actor is the one who created that transaction.
func (s *service) cascadeCancel(ctx context.Context, rc viewer.RequestContext, b *Booking) error {
	if b.Transaction.IsZero() {
		return nil
	}

	tx, err := b.Transaction.Resolve(ctx, s.repo.GetTransaction)
	if err != nil {
		return err
	}
	if tx.CreatedBy != rc.UserID() {
		logger.Info("skipping cascade cancel, actor did not create transaction",
			"booking_id", b.ID, "transaction_id", tx.ID, "actor_id", rc.UserID())
		return nil
	}

	n, err := s.repo.CancelOthersInTransaction(ctx, tx.ID, b.ID)
	if err != nil {
		return err
	}
	for i := 0; i < n; i++ {
		metrics.RecordBookingCancellation("cascade")
	}
	if n > 0 {
		logger.Info("cascade cancelled bookings", "transaction_id", tx.ID, "count", n)
	}
	return nil
}

// UpsertConfirmed makes sure the user holds a confirmed booking on the
// lesson, reusing an existing row for the pair when there is one.
func (s *service) UpsertConfirmed(ctx context.Context, rc viewer.RequestContext, userID, lessonID int) (*Booking, error) {
	l, err := s.lessons.GetLesson(ctx, lessonID)
	if err != nil {
		return nil, err
	}

	existing, err := s.repo.FindByUserAndLesson(ctx, userID, lessonID)
	switch {
	case err == nil:
		return s.confirmIfNeeded(ctx, rc, existing, l)
	case !errors.Is(err, ErrBookingNotFound):
		return nil, err
	}

	b := &Booking{
		User:   ref.ID[user.User](userID),
		Lesson: ref.Expanded(l.ID, l),
		Status: StatusConfirmed,
	}
	err = s.insert(ctx, b, l)
	if errors.Is(err, ErrDuplicateBooking) {
		// Lost a race with a concurrent delivery; the row exists now.
		existing, err = s.repo.FindByUserAndLesson(ctx, userID, lessonID)
		if err != nil {
			return nil, err
		}
		return s.confirmIfNeeded(ctx, rc, existing, l)
	}
	if err != nil {
		return nil, err
	}

	metrics.RecordBooking(StatusConfirmed, source(rc))
	s.notifyConfirmed(ctx, b, l)
	return b, nil
}

func (s *service) confirmIfNeeded(ctx context.Context, rc viewer.RequestContext, b *Booking, l *lesson.Lesson) (*Booking, error) {
	if b.Status == StatusConfirmed {
		return b, nil
	}
	if err := s.confirm(ctx, b, l); err != nil {
		return nil, err
	}
	metrics.RecordBooking(StatusConfirmed, source(rc))
	s.notifyConfirmed(ctx, b, l)
	return b, nil
}

func (s *service) CancelFutureForPlan(ctx context.Context, userID, planID int, now time.Time) (int, error) {
	n, err := s.repo.CancelFutureForPlan(ctx, userID, planID, now)
	if err != nil {
		return 0, err
	}
	for i := 0; i < n; i++ {
		metrics.RecordBookingCancellation("subscription_canceled")
	}
	logger.Info("cancelled future bookings for plan", "user_id", userID, "plan_id", planID, "count", n)
	return n, nil
}

// CheckIn books the viewer onto a lesson. Full lessons put the viewer on
// the waiting list; lessons covered by an active subscription are confirmed
// straight away and the rest stay pending until paid.
func (s *service) CheckIn(ctx context.Context, rc viewer.RequestContext, lessonID int) (*Booking, error) {
	if rc.IsAnonymous() {
		return nil, ErrForbidden
	}

	view, err := s.LessonView(ctx, rc, lessonID)
	if err != nil {
		return nil, err
	}

	switch view.Status {
	case LessonBooked:
		return nil, ErrAlreadyBooked
	case LessonClosed:
		return nil, ErrLessonClosed
	}

	status := StatusPending
	if view.Status == LessonWaitlist {
		status = StatusWaiting
	} else {
		entitled, err := s.entitlements.HasActiveForClassOption(ctx, rc.UserID(), view.Lesson.ClassOption.ID())
		if err != nil {
			return nil, err
		}
		if entitled {
			status = StatusConfirmed
		}
	}

	if existing := view.Booking; existing != nil {
		if existing.Status == status {
			return existing, nil
		}
		if status == StatusConfirmed {
			return s.confirmIfNeeded(ctx, rc, existing, view.Lesson)
		}
		if err := s.repo.UpdateStatus(ctx, existing.ID, status); err != nil {
			return nil, err
		}
		existing.Status = status
		metrics.RecordBooking(status, "check_in")
		return existing, nil
	}

	b := &Booking{
		User:   ref.ID[user.User](rc.UserID()),
		Lesson: ref.Expanded(view.Lesson.ID, view.Lesson),
		Status: status,
	}
	if err := s.insert(ctx, b, view.Lesson); err != nil {
		return nil, err
	}
	metrics.RecordBooking(status, "check_in")

	if status == StatusConfirmed {
		s.notifyConfirmed(ctx, b, view.Lesson)
	}
	return b, nil
}

func (s *service) RemainingCapacity(ctx context.Context, lessonID int) (int, error) {
	l, err := s.lessons.GetLesson(ctx, lessonID)
	if err != nil {
		return 0, err
	}
	opt, err := s.classOption(ctx, l)
	if err != nil {
		return 0, err
	}
	confirmed, err := s.repo.CountConfirmed(ctx, lessonID)
	if err != nil {
		return 0, err
	}
	return RemainingCapacity(opt.Places, confirmed), nil
}

func (s *service) ListForUser(ctx context.Context, userID int) ([]BookingWithDetails, error) {
	return s.repo.ListByUser(ctx, userID)
}

func (s *service) ListForLesson(ctx context.Context, lessonID int) ([]BookingWithDetails, error) {
	return s.repo.ListByLesson(ctx, lessonID)
}

func (s *service) notifyConfirmed(ctx context.Context, b *Booking, l *lesson.Lesson) {
	if s.notifier == nil {
		return
	}

	snapshot := *b
	s.tasks.Go(ctx, notifyTimeout, "booking confirmation email", func(ctx context.Context) error {
		u, err := s.users.FindByID(ctx, snapshot.User.ID())
		if err != nil {
			return fmt.Errorf("load user %d: %w", snapshot.User.ID(), err)
		}

		var tx *Transaction
		if !snapshot.Transaction.IsZero() {
			tx, err = snapshot.Transaction.Resolve(ctx, s.repo.GetTransaction)
			if err != nil {
				logger.Warn("sending confirmation without transaction details",
					"booking_id", snapshot.ID, "error", err)
				tx = nil
			}
		}

		return s.notifier.BookingConfirmed(ctx, Confirmation{
			User:        u,
			Lesson:      l,
			Booking:     &snapshot,
			Transaction: tx,
		})
	})
}
