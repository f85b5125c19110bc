package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	appErrors "github.com/unclebandit/mailleopard-backend/internal/errors"
	"github.com/unclebandit/mailleopard-backend/internal/model"
)

type UserRepositoryInterface interface {
	GetByID(ctx context.Context, id int) (*model.User, error)
	GetByStripeSubscription(ctx context.Context, subscriptionID string) (*model.User, error)
	UpdatePlan(ctx context.Context, id int, plan model.Plan) error
	SetStripeSubscription(ctx context.Context, id int, plan model.Plan, customerID, subscriptionID string) error
}

type UserRepository struct {
	DB *sql.DB
}

const userColumns = `id, email, full_name, company_name, plan, is_active, stripe_customer_id, stripe_subscription_id, created_at`

func scanUser(row rowScanner) (*model.User, error) {
	var u model.User
	if err := row.Scan(&u.ID, &u.Email, &u.FullName, &u.CompanyName, &u.Plan, &u.IsActive,
		&u.StripeCustomerID, &u.StripeSubscriptionID, &u.CreatedAt); err != nil {
		return nil, err
	}
	return &u, nil
}

func (r *UserRepository) GetByID(ctx context.Context, id int) (*model.User, error) {
	u, err := scanUser(r.DB.QueryRowContext(ctx, `SELECT `+userColumns+` FROM users WHERE id=$1`, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.NewNotFound("user", id)
		}
		return nil, fmt.Errorf("get user: %w", err)
	}
	return u, nil
}

func (r *UserRepository) GetByStripeSubscription(ctx context.Context, subscriptionID string) (*model.User, error) {
	u, err := scanUser(r.DB.QueryRowContext(ctx,
		`SELECT `+userColumns+` FROM users WHERE stripe_subscription_id=$1`, subscriptionID))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.NewNotFound("user with subscription", subscriptionID)
		}
		return nil, fmt.Errorf("get user by subscription: %w", err)
	}
	return u, nil
}

func (r *UserRepository) UpdatePlan(ctx context.Context, id int, plan model.Plan) error {
	res, err := r.DB.ExecContext(ctx, `UPDATE users SET plan=$1, updated_at=NOW() WHERE id=$2`, plan, id)
	if err != nil {
		return fmt.Errorf("update plan: %w", err)
	}
	return expectOne(res, "user", id)
}

// SetStripeSubscription writes plan and Stripe ids together. An empty customerID keeps the stored one.
func (r *UserRepository) SetStripeSubscription(ctx context.Context, id int, plan model.Plan, customerID, subscriptionID string) error {
	res, err := r.DB.ExecContext(ctx, `
		UPDATE users
		SET plan=$1,
		    stripe_customer_id = COALESCE(NULLIF($2, ''), stripe_customer_id),
		    stripe_subscription_id=$3,
		    updated_at=NOW()
		WHERE id=$4
	`, plan, customerID, subscriptionID, id)
	if err != nil {
		return fmt.Errorf("update stripe subscription: %w", err)
	}
	return expectOne(res, "user", id)
}

var _ UserRepositoryInterface = (*UserRepository)(nil)
