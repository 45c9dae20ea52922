package user

import "context"

type Repository interface {
	FindByID(ctx context.Context, id int) (*User, error)
	FindByEmail(ctx context.Context, email string) (*User, error)
	FindByStripeCustomerID(ctx context.Context, customerID string) (*User, error)
	SetStripeCustomerID(ctx context.Context, userID int, customerID string) error
	HasConfirmedBooking(ctx context.Context, userID int) (bool, error)
}
