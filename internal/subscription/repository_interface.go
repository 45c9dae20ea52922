package subscription

import "context"

type Repository interface {
	CreatePlan(ctx context.Context, p *Plan) error
	UpdatePlan(ctx context.Context, p *Plan) error
	GetPlan(ctx context.Context, id int) (*Plan, error)
	FindPlanByProductID(ctx context.Context, productID string) (*Plan, error)
	ListPlans(ctx context.Context, activeOnly bool) ([]Plan, error)

	UpsertByStripeID(ctx context.Context, s *Subscription) error
	FindByStripeID(ctx context.Context, stripeID string) (*Subscription, error)
	GetByID(ctx context.Context, id int) (*Subscription, error)
	Update(ctx context.Context, s *Subscription) error
	ListByUser(ctx context.Context, userID int) ([]Subscription, error)
	HasActiveForClassOption(ctx context.Context, userID, classOptionID int) (bool, error)
}
