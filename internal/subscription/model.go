package subscription

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"time"

	"studiobook/internal/billing"
	"studiobook/internal/ref"
	"studiobook/internal/user"
)

type Status string

// Statuses mirror the payment provider's subscription states.
const (
	StatusIncomplete        Status = "incomplete"
	StatusIncompleteExpired Status = "incomplete_expired"
	StatusTrialing          Status = "trialing"
	StatusActive            Status = "active"
	StatusPastDue           Status = "past_due"
	StatusUnpaid            Status = "unpaid"
	StatusCanceled          Status = "canceled"
	StatusPaused            Status = "paused"
)

func (s Status) Valid() bool {
	switch s {
	case StatusIncomplete, StatusIncompleteExpired, StatusTrialing, StatusActive,
		StatusPastDue, StatusUnpaid, StatusCanceled, StatusPaused:
		return true
	}
	return false
}

// Entitles reports whether a subscription in this state grants bookings.
func (s Status) Entitles() bool {
	return s == StatusActive || s == StatusTrialing
}

// PriceInfo caches the provider's default price on a plan.
type PriceInfo struct {
	billing.Price
}

func (p PriceInfo) Value() (driver.Value, error) {
	return json.Marshal(p)
}

func (p *PriceInfo) Scan(src any) error {
	switch v := src.(type) {
	case []byte:
		return json.Unmarshal(v, p)
	case string:
		return json.Unmarshal([]byte(v), p)
	default:
		return fmt.Errorf("subscription: cannot scan %T into PriceInfo", src)
	}
}

type Plan struct {
	ID              int        `db:"id" json:"id"`
	Name            string     `db:"name" json:"name"`
	StripeProductID *string    `db:"stripe_product_id" json:"stripe_product_id,omitempty"`
	Sessions        *int       `db:"sessions" json:"sessions,omitempty"`
	Interval        string     `db:"interval" json:"interval"`
	IntervalCount   int        `db:"interval_count" json:"interval_count"`
	Price           *PriceInfo `db:"price_json" json:"price,omitempty"`
	Active          bool       `db:"active" json:"active"`
	CreatedAt       time.Time  `db:"created_at" json:"created_at"`
	UpdatedAt       time.Time  `db:"updated_at" json:"updated_at"`

	// SkipSync suppresses the provider refresh on the next save.
	SkipSync bool `db:"-" json:"-"`
}

func (p *Plan) ProductID() string {
	if p.StripeProductID == nil {
		return ""
	}
	return *p.StripeProductID
}

type Subscription struct {
	ID                   int                `db:"id" json:"id"`
	User                 ref.Ref[user.User] `db:"user_id" json:"user"`
	Plan                 ref.Ref[Plan]      `db:"plan_id" json:"plan"`
	Status               Status             `db:"status" json:"status"`
	StartDate            *time.Time         `db:"start_date" json:"start_date,omitempty"`
	EndDate              *time.Time         `db:"end_date" json:"end_date,omitempty"`
	CancelAt             *time.Time         `db:"cancel_at" json:"cancel_at,omitempty"`
	StripeSubscriptionID string             `db:"stripe_subscription_id" json:"stripe_subscription_id"`
	CreatedAt            time.Time          `db:"created_at" json:"created_at"`
	UpdatedAt            time.Time          `db:"updated_at" json:"updated_at"`

	// SkipSync marks writes that mirror the provider and must not be pushed back to it.
	SkipSync bool `db:"-" json:"-"`
}

type CreatePlanRequest struct {
	Name            string  `json:"name" binding:"required"`
	StripeProductID *string `json:"stripe_product_id"`
	Sessions        *int    `json:"sessions" binding:"omitempty,min=1"`
	Interval        string  `json:"interval" binding:"omitempty,oneof=day week month year"`
	IntervalCount   int     `json:"interval_count" binding:"omitempty,min=1"`
}

type UpdateSubscriptionRequest struct {
	Status Status `json:"status" binding:"required,oneof=active paused canceled"`
}
