package billing

import (
	"context"
	"errors"
	"net/http"

	"studiobook/internal/logger"

	stripe "github.com/stripe/stripe-go/v78"
	"github.com/stripe/stripe-go/v78/client"
)

type StripeProvider struct {
	sc *client.API
}

// NewStripe returns nil when no secret key is configured.
func NewStripe(secretKey string) *StripeProvider {
	if secretKey == "" {
		return nil
	}
	sc := &client.API{}
	sc.Init(secretKey, nil)
	return &StripeProvider{sc: sc}
}

// NewStripeWithBackends is used by tests to point the client at a fake API.
func NewStripeWithBackends(secretKey string, backends *stripe.Backends) *StripeProvider {
	sc := &client.API{}
	sc.Init(secretKey, backends)
	return &StripeProvider{sc: sc}
}

func (p *StripeProvider) ready() error {
	if p == nil || p.sc == nil {
		return ErrNotConfigured
	}
	return nil
}

func translate(err error) error {
	var se *stripe.Error
	if errors.As(err, &se) && se.HTTPStatusCode == http.StatusNotFound {
		return errors.Join(ErrNotFound, err)
	}
	return err
}

func (p *StripeProvider) CustomerEmail(ctx context.Context, customerID string) (string, error) {
	if err := p.ready(); err != nil {
		return "", err
	}
	params := &stripe.CustomerParams{}
	params.Context = ctx
	c, err := p.sc.Customers.Get(customerID, params)
	if err != nil {
		return "", translate(err)
	}
	if c.Deleted {
		return "", ErrNotFound
	}
	return c.Email, nil
}

func (p *StripeProvider) Product(ctx context.Context, productID string) (*Product, error) {
	if err := p.ready(); err != nil {
		return nil, err
	}
	params := &stripe.ProductParams{}
	params.Context = ctx
	params.AddExpand("default_price")
	prod, err := p.sc.Products.Get(productID, params)
	if err != nil {
		return nil, translate(err)
	}

	out := &Product{ID: prod.ID, Name: prod.Name, Active: prod.Active}
	if pr := prod.DefaultPrice; pr != nil {
		out.DefaultPrice = &Price{
			ID:         pr.ID,
			UnitAmount: pr.UnitAmount,
			Currency:   string(pr.Currency),
		}
		if pr.Recurring != nil {
			out.DefaultPrice.Interval = string(pr.Recurring.Interval)
			out.DefaultPrice.IntervalCount = pr.Recurring.IntervalCount
		}
	}
	return out, nil
}

func (p *StripeProvider) Subscription(ctx context.Context, subscriptionID string) (*stripe.Subscription, error) {
	if err := p.ready(); err != nil {
		return nil, err
	}
	params := &stripe.SubscriptionParams{}
	params.Context = ctx
	sub, err := p.sc.Subscriptions.Get(subscriptionID, params)
	if err != nil {
		return nil, translate(err)
	}
	return sub, nil
}

func (p *StripeProvider) CancelSubscription(ctx context.Context, subscriptionID string) error {
	if err := p.ready(); err != nil {
		return err
	}
	params := &stripe.SubscriptionCancelParams{}
	params.Context = ctx
	if _, err := p.sc.Subscriptions.Cancel(subscriptionID, params); err != nil {
		return translate(err)
	}
	logger.Info("stripe subscription cancelled", "subscription_id", subscriptionID)
	return nil
}

// PauseSubscription stops invoicing without ending the subscription.
func (p *StripeProvider) PauseSubscription(ctx context.Context, subscriptionID string) error {
	if err := p.ready(); err != nil {
		return err
	}
	params := &stripe.SubscriptionParams{
		PauseCollection: &stripe.SubscriptionPauseCollectionParams{
			Behavior: stripe.String(string(stripe.SubscriptionPauseCollectionBehaviorVoid)),
		},
	}
	params.Context = ctx
	if _, err := p.sc.Subscriptions.Update(subscriptionID, params); err != nil {
		return translate(err)
	}
	logger.Info("stripe subscription paused", "subscription_id", subscriptionID)
	return nil
}

func (p *StripeProvider) ResumeSubscription(ctx context.Context, subscriptionID string) error {
	if err := p.ready(); err != nil {
		return err
	}
	params := &stripe.SubscriptionParams{}
	params.Context = ctx
	params.AddExtra("pause_collection", "")
	if _, err := p.sc.Subscriptions.Update(subscriptionID, params); err != nil {
		return translate(err)
	}
	logger.Info("stripe subscription resumed", "subscription_id", subscriptionID)
	return nil
}
