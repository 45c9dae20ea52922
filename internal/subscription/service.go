package subscription

import (
	"context"
	"errors"
	"fmt"

	"studiobook/internal/billing"
	"studiobook/internal/logger"
	"studiobook/internal/metrics"
)

var ErrInvalidStatus = errors.New("invalid subscription status")

// Provider is the part of billing.Provider the sync hooks call.
type Provider interface {
	Product(ctx context.Context, productID string) (*billing.Product, error)
	CancelSubscription(ctx context.Context, subscriptionID string) error
	PauseSubscription(ctx context.Context, subscriptionID string) error
	ResumeSubscription(ctx context.Context, subscriptionID string) error
}

type PlanService interface {
	Save(ctx context.Context, p *Plan) error
	Sync(ctx context.Context, id int) (*Plan, error)
	Get(ctx context.Context, id int) (*Plan, error)
	FindByProductID(ctx context.Context, productID string) (*Plan, error)
	List(ctx context.Context, activeOnly bool) ([]Plan, error)
}

type planService struct {
	repo     Repository
	provider Provider
}

func NewPlanService(repo Repository, provider Provider) PlanService {
	return &planService{repo: repo, provider: provider}
}

// Save creates or updates p. Unless p.SkipSync is set, name, price and
// active flag are first refreshed from the provider's product.
func (s *planService) Save(ctx context.Context, p *Plan) error {
	if p.SkipSync {
		p.SkipSync = false
	} else if err := s.pull(ctx, p); err != nil {
		return err
	}

	if p.Interval == "" {
		p.Interval = "month"
	}
	if p.IntervalCount < 1 {
		p.IntervalCount = 1
	}

	if p.ID == 0 {
		return s.repo.CreatePlan(ctx, p)
	}
	return s.repo.UpdatePlan(ctx, p)
}

func (s *planService) pull(ctx context.Context, p *Plan) error {
	productID := p.ProductID()
	if productID == "" || s.provider == nil {
		return nil
	}

	prod, err := s.provider.Product(ctx, productID)
	if errors.Is(err, billing.ErrNotConfigured) {
		logger.Warn("billing disabled, saving plan without provider data", "plan_id", p.ID)
		return nil
	}
	if err != nil {
		return fmt.Errorf("refresh plan from product %s: %w", productID, err)
	}

	p.Name = prod.Name
	p.Active = prod.Active
	if prod.DefaultPrice != nil {
		p.Price = &PriceInfo{Price: *prod.DefaultPrice}
		if prod.DefaultPrice.Interval != "" {
			p.Interval = prod.DefaultPrice.Interval
			p.IntervalCount = int(prod.DefaultPrice.IntervalCount)
		}
	}
	return nil
}

func (s *planService) Sync(ctx context.Context, id int) (*Plan, error) {
	p, err := s.repo.GetPlan(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := s.Save(ctx, p); err != nil {
		return nil, err
	}
	return p, nil
}

func (s *planService) Get(ctx context.Context, id int) (*Plan, error) {
	return s.repo.GetPlan(ctx, id)
}

func (s *planService) FindByProductID(ctx context.Context, productID string) (*Plan, error) {
	return s.repo.FindPlanByProductID(ctx, productID)
}

func (s *planService) List(ctx context.Context, activeOnly bool) ([]Plan, error) {
	return s.repo.ListPlans(ctx, activeOnly)
}

type Service interface {
	Upsert(ctx context.Context, sub *Subscription) error
	Update(ctx context.Context, sub *Subscription) error
	FindByStripeID(ctx context.Context, stripeID string) (*Subscription, error)
	Get(ctx context.Context, id int) (*Subscription, error)
	ListForUser(ctx context.Context, userID int) ([]Subscription, error)
	HasActiveForClassOption(ctx context.Context, userID, classOptionID int) (bool, error)
}

type service struct {
	repo     Repository
	provider Provider
}

func NewService(repo Repository, provider Provider) Service {
	return &service{repo: repo, provider: provider}
}

func (s *service) Upsert(ctx context.Context, sub *Subscription) error {
	if !sub.Status.Valid() {
		return fmt.Errorf("%w: %q", ErrInvalidStatus, sub.Status)
	}
	if err := s.repo.UpsertByStripeID(ctx, sub); err != nil {
		return err
	}
	metrics.RecordSubscriptionWrite(string(sub.Status))
	return nil
}

// Update stores sub. Unless sub.SkipSync is set, a status change is pushed
// to the provider before the row is written.
func (s *service) Update(ctx context.Context, sub *Subscription) error {
	if !sub.Status.Valid() {
		return fmt.Errorf("%w: %q", ErrInvalidStatus, sub.Status)
	}

	if sub.SkipSync {
		sub.SkipSync = false
	} else if err := s.push(ctx, sub); err != nil {
		return err
	}

	if err := s.repo.Update(ctx, sub); err != nil {
		return err
	}
	metrics.RecordSubscriptionWrite(string(sub.Status))
	return nil
}

func (s *service) push(ctx context.Context, sub *Subscription) error {
	if s.provider == nil {
		return nil
	}

	current, err := s.repo.GetByID(ctx, sub.ID)
	if err != nil {
		return err
	}
	if current.Status == sub.Status {
		return nil
	}

	switch {
	case sub.Status == StatusCanceled:
		err = s.provider.CancelSubscription(ctx, sub.StripeSubscriptionID)
	case sub.Status == StatusPaused:
		err = s.provider.PauseSubscription(ctx, sub.StripeSubscriptionID)
	case current.Status == StatusPaused && sub.Status == StatusActive:
		err = s.provider.ResumeSubscription(ctx, sub.StripeSubscriptionID)
	default:
		return nil
	}

	if errors.Is(err, billing.ErrNotConfigured) {
		logger.Warn("billing disabled, subscription change stays local",
			"subscription_id", sub.ID, "status", sub.Status)
		return nil
	}
	if err != nil {
		return fmt.Errorf("push %s to provider for subscription %d: %w", sub.Status, sub.ID, err)
	}
	return nil
}

func (s *service) FindByStripeID(ctx context.Context, stripeID string) (*Subscription, error) {
	return s.repo.FindByStripeID(ctx, stripeID)
}

func (s *service) Get(ctx context.Context, id int) (*Subscription, error) {
	return s.repo.GetByID(ctx, id)
}

func (s *service) ListForUser(ctx context.Context, userID int) ([]Subscription, error) {
	return s.repo.ListByUser(ctx, userID)
}

func (s *service) HasActiveForClassOption(ctx context.Context, userID, classOptionID int) (bool, error) {
	return s.repo.HasActiveForClassOption(ctx, userID, classOptionID)
}
