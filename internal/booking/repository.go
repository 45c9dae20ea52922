package booking

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"studiobook/internal/db"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
)

const uniqueViolation = "23505"

const bookingColumns = `id, user_id, lesson_id, status, transaction_id, created_at, updated_at`

const detailsQuery = `
	SELECT b.id, b.user_id, b.lesson_id, b.status, b.transaction_id, b.created_at, b.updated_at,
		l.start_time AS lesson_start, l.end_time AS lesson_end, l.location,
		co.name AS class_name, u.name AS user_name, u.email AS user_email
	FROM bookings b
	JOIN lessons l ON l.id = b.lesson_id
	JOIN class_options co ON co.id = l.class_option_id
	JOIN users u ON u.id = b.user_id
`

type repository struct {
	db *sqlx.DB
}

func NewRepository(db *sqlx.DB) Repository {
	return &repository{db: db}
}

func isUniqueViolation(err error) bool {
	var pqErr *pq.Error
	return errors.As(err, &pqErr) && pqErr.Code == uniqueViolation
}

func insertBooking(ctx context.Context, q sqlx.QueryerContext, b *Booking) error {
	query := `
		INSERT INTO bookings (user_id, lesson_id, status, transaction_id)
		VALUES ($1, $2, $3, $4)
		RETURNING id, created_at, updated_at
	`
	err := q.QueryRowxContext(ctx, query, b.User, b.Lesson, b.Status, b.Transaction).
		Scan(&b.ID, &b.CreatedAt, &b.UpdatedAt)
	if isUniqueViolation(err) {
		return ErrDuplicateBooking
	}
	return err
}

// lockLesson serialises confirmations for one lesson until tx ends and
// rejects when no seat is left.
func lockLesson(ctx context.Context, tx *sqlx.Tx, lessonID, places int) error {
	if _, err := tx.ExecContext(ctx, `SELECT pg_advisory_xact_lock($1)`, lessonID); err != nil {
		return err
	}

	var confirmed int
	if err := tx.GetContext(ctx, &confirmed, `
		SELECT COUNT(*) FROM bookings WHERE lesson_id = $1 AND status = 'confirmed'
	`, lessonID); err != nil {
		return err
	}

	if !HasSpace(places, confirmed) {
		return ErrLessonFull
	}
	return nil
}

func (r *repository) Create(ctx context.Context, b *Booking) error {
	return insertBooking(ctx, r.db, b)
}

func (r *repository) CreateConfirmed(ctx context.Context, b *Booking, places int) error {
	b.Status = StatusConfirmed
	return db.WithTx(ctx, r.db, func(tx *sqlx.Tx) error {
		if err := lockLesson(ctx, tx, b.Lesson.ID(), places); err != nil {
			return err
		}
		return insertBooking(ctx, tx, b)
	})
}

func (r *repository) Confirm(ctx context.Context, id, lessonID, places int) error {
	return db.WithTx(ctx, r.db, func(tx *sqlx.Tx) error {
		if err := lockLesson(ctx, tx, lessonID, places); err != nil {
			return err
		}
		return updateStatus(ctx, tx, id, StatusConfirmed)
	})
}

func updateStatus(ctx context.Context, e sqlx.ExecerContext, id int, status string) error {
	result, err := e.ExecContext(ctx, `
		UPDATE bookings
		SET status = $1, updated_at = NOW()
		WHERE id = $2
	`, status, id)
	if err != nil {
		return err
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if rows == 0 {
		return ErrBookingNotFound
	}
	return nil
}

func (r *repository) UpdateStatus(ctx context.Context, id int, status string) error {
	return updateStatus(ctx, r.db, id, status)
}

func (r *repository) get(ctx context.Context, query string, args ...interface{}) (*Booking, error) {
	var b Booking
	if err := r.db.GetContext(ctx, &b, query, args...); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrBookingNotFound
		}
		return nil, err
	}
	return &b, nil
}

func (r *repository) GetByID(ctx context.Context, id int) (*Booking, error) {
	return r.get(ctx, `SELECT `+bookingColumns+` FROM bookings WHERE id = $1`, id)
}

func (r *repository) FindByUserAndLesson(ctx context.Context, userID, lessonID int) (*Booking, error) {
	return r.get(ctx, `SELECT `+bookingColumns+` FROM bookings WHERE user_id = $1 AND lesson_id = $2`, userID, lessonID)
}

func (r *repository) ExistsForUserAndLesson(ctx context.Context, userID, lessonID int) (bool, error) {
	return db.Exists(ctx, r.db, `
		SELECT EXISTS(
			SELECT 1 FROM bookings WHERE user_id = $1 AND lesson_id = $2
		)
	`, userID, lessonID)
}

func (r *repository) CountConfirmed(ctx context.Context, lessonID int) (int, error) {
	var count int
	err := r.db.GetContext(ctx, &count, `
		SELECT COUNT(*) FROM bookings WHERE lesson_id = $1 AND status = 'confirmed'
	`, lessonID)
	return count, err
}

func (r *repository) CancelOthersInTransaction(ctx context.Context, transactionID, exceptBookingID int) (int, error) {
	result, err := r.db.ExecContext(ctx, `
		UPDATE bookings
		SET status = 'cancelled', updated_at = NOW()
		WHERE transaction_id = $1 AND id <> $2 AND status <> 'cancelled'
	`, transactionID, exceptBookingID)
	if err != nil {
		return 0, err
	}
	rows, err := result.RowsAffected()
	return int(rows), err
}

// CancelFutureForPlan cancels the user's confirmed bookings on lessons
// starting after the given instant whose class option accepts the plan.
func (r *repository) CancelFutureForPlan(ctx context.Context, userID, planID int, after time.Time) (int, error) {
	result, err := r.db.ExecContext(ctx, `
		UPDATE bookings b
		SET status = 'cancelled', updated_at = NOW()
		FROM lessons l
		JOIN class_option_plans cop ON cop.class_option_id = l.class_option_id
		WHERE b.lesson_id = l.id
			AND b.user_id = $1
			AND cop.plan_id = $2
			AND b.status = 'confirmed'
			AND l.start_time > $3
	`, userID, planID, after)
	if err != nil {
		return 0, err
	}
	rows, err := result.RowsAffected()
	return int(rows), err
}

func (r *repository) ListByUser(ctx context.Context, userID int) ([]BookingWithDetails, error) {
	bookings := []BookingWithDetails{}
	err := r.db.SelectContext(ctx, &bookings, detailsQuery+`
		WHERE b.user_id = $1
		ORDER BY l.start_time DESC
	`, userID)
	return bookings, err
}

func (r *repository) ListByLesson(ctx context.Context, lessonID int) ([]BookingWithDetails, error) {
	bookings := []BookingWithDetails{}
	err := r.db.SelectContext(ctx, &bookings, detailsQuery+`
		WHERE b.lesson_id = $1
		ORDER BY b.created_at ASC
	`, lessonID)
	return bookings, err
}

func (r *repository) CreateTransaction(ctx context.Context, t *Transaction) error {
	query := `
		INSERT INTO transactions (created_by, amount_cents, currency, payment_method, stripe_payment_intent_id)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING id, created_at
	`
	return r.db.QueryRowxContext(ctx, query, t.CreatedBy, t.AmountCents, t.Currency, t.PaymentMethod, t.StripePaymentIntentID).
		Scan(&t.ID, &t.CreatedAt)
}

func (r *repository) GetTransaction(ctx context.Context, id int) (*Transaction, error) {
	var t Transaction
	err := r.db.GetContext(ctx, &t, `
		SELECT id, created_by, amount_cents, currency, payment_method, stripe_payment_intent_id, created_at
		FROM transactions
		WHERE id = $1
	`, id)
	if err != nil {
		return nil, err
	}
	return &t, nil
}
