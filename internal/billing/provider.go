// Package billing talks to the payment provider. Only the reads and the few
// writes the plan and subscription sync hooks need are exposed.
package billing

import (
	"context"
	"errors"

	stripe "github.com/stripe/stripe-go/v78"
)

var (
	ErrNotConfigured = errors.New("billing provider not configured")
	ErrNotFound      = errors.New("billing resource not found")
)

type Price struct {
	ID            string `json:"id"`
	UnitAmount    int64  `json:"unit_amount"`
	Currency      string `json:"currency"`
	Interval      string `json:"interval,omitempty"`
	IntervalCount int64  `json:"interval_count,omitempty"`
}

type Product struct {
	ID           string
	Name         string
	Active       bool
	DefaultPrice *Price
}

type Provider interface {
	CustomerEmail(ctx context.Context, customerID string) (string, error)
	Product(ctx context.Context, productID string) (*Product, error)
	Subscription(ctx context.Context, subscriptionID string) (*stripe.Subscription, error)
	CancelSubscription(ctx context.Context, subscriptionID string) error
	PauseSubscription(ctx context.Context, subscriptionID string) error
	ResumeSubscription(ctx context.Context, subscriptionID string) error
}
