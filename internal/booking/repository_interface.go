package booking

import (
	"context"
	"time"
)

type Repository interface {
	Create(ctx context.Context, b *Booking) error
	// CreateConfirmed inserts a confirmed booking after rechecking capacity
	// under a per-lesson lock.
	CreateConfirmed(ctx context.Context, b *Booking, places int) error
	// Confirm moves an existing booking to confirmed under the same lock.
	Confirm(ctx context.Context, id, lessonID, places int) error
	UpdateStatus(ctx context.Context, id int, status string) error

	GetByID(ctx context.Context, id int) (*Booking, error)
	FindByUserAndLesson(ctx context.Context, userID, lessonID int) (*Booking, error)
	ExistsForUserAndLesson(ctx context.Context, userID, lessonID int) (bool, error)
	CountConfirmed(ctx context.Context, lessonID int) (int, error)

	CancelOthersInTransaction(ctx context.Context, transactionID, exceptBookingID int) (int, error)
	CancelFutureForPlan(ctx context.Context, userID, planID int, after time.Time) (int, error)

	ListByUser(ctx context.Context, userID int) ([]BookingWithDetails, error)
	ListByLesson(ctx context.Context, lessonID int) ([]BookingWithDetails, error)

	CreateTransaction(ctx context.Context, t *Transaction) error
	GetTransaction(ctx context.Context, id int) (*Transaction, error)
}
