package booking

import (
	"time"

	"studiobook/internal/lesson"
	"studiobook/internal/ref"
	"studiobook/internal/user"
)

const (
	StatusPending   = "pending"
	StatusConfirmed = "confirmed"
	StatusCancelled = "cancelled"
	StatusWaiting   = "waiting"
)

func ValidStatus(s string) bool {
	switch s {
	case StatusPending, StatusConfirmed, StatusCancelled, StatusWaiting:
		return true
	}
	return false
}

// Transaction is a payment that may cover several bookings.
type Transaction struct {
	ID                    int       `db:"id" json:"id"`
	CreatedBy             int       `db:"created_by" json:"created_by"`
	AmountCents           int64     `db:"amount_cents" json:"amount_cents"`
	Currency              string    `db:"currency" json:"currency"`
	PaymentMethod         string    `db:"payment_method" json:"payment_method"`
	StripePaymentIntentID *string   `db:"stripe_payment_intent_id" json:"stripe_payment_intent_id,omitempty"`
	CreatedAt             time.Time `db:"created_at" json:"created_at"`
}

type Booking struct {
	ID          int                    `db:"id" json:"id"`
	User        ref.Ref[user.User]     `db:"user_id" json:"user"`
	Lesson      ref.Ref[lesson.Lesson] `db:"lesson_id" json:"lesson"`
	Status      string                 `db:"status" json:"status"`
	Transaction ref.Ref[Transaction]   `db:"transaction_id" json:"transaction"`
	CreatedAt   time.Time              `db:"created_at" json:"created_at"`
	UpdatedAt   time.Time              `db:"updated_at" json:"updated_at"`
}

type BookingWithDetails struct {
	Booking
	LessonStart time.Time `db:"lesson_start" json:"lesson_start"`
	LessonEnd   time.Time `db:"lesson_end" json:"lesson_end"`
	Location    string    `db:"location" json:"location"`
	ClassName   string    `db:"class_name" json:"class_name"`
	UserName    string    `db:"user_name" json:"user_name"`
	UserEmail   string    `db:"user_email" json:"user_email"`
}

// CreateRequest describes a booking write made by staff or by the system.
type CreateRequest struct {
	UserID        int    `json:"user_id" binding:"required"`
	LessonID      int    `json:"lesson_id" binding:"required"`
	Status        string `json:"status" binding:"required,oneof=pending confirmed cancelled waiting"`
	TransactionID int    `json:"transaction_id"`
}

type UpdateStatusRequest struct {
	Status string `json:"status" binding:"required,oneof=pending confirmed cancelled waiting"`
}
