package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	appErrors "github.com/unclebandit/mailleopard-backend/internal/errors"
	"github.com/unclebandit/mailleopard-backend/internal/model"
)

type PaymentRepositoryInterface interface {
	Create(ctx context.Context, p *model.Payment) error
	GetByOrderID(ctx context.Context, orderID string) (*model.Payment, error)
	Update(ctx context.Context, p *model.Payment) error
}

type PaymentRepository struct {
	DB *sql.DB
}

const paymentColumns = `id, user_id, order_id, plan, payment_type, months, amount, currency, status,
	provider_payment_id, subscription_id, error_description, expires_at, cancelled_at, created_at, updated_at`

func (r *PaymentRepository) Create(ctx context.Context, p *model.Payment) error {
	p.CreatedAt = time.Now().UTC()
	query := `
		INSERT INTO payments (user_id, order_id, plan, payment_type, months, amount, currency, status, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		RETURNING id
	`
	err := r.DB.QueryRowContext(ctx, query,
		p.UserID, p.OrderID, p.Plan, p.PaymentType, p.Months, p.Amount, p.Currency, p.Status, p.CreatedAt,
	).Scan(&p.ID)
	if isUniqueViolation(err) {
		return appErrors.NewBadRequest("order %s already exists", p.OrderID)
	}
	if err != nil {
		return fmt.Errorf("insert payment: %w", err)
	}
	return nil
}

func (r *PaymentRepository) GetByOrderID(ctx context.Context, orderID string) (*model.Payment, error) {
	var p model.Payment
	err := r.DB.QueryRowContext(ctx, `SELECT `+paymentColumns+` FROM payments WHERE order_id=$1`, orderID).Scan(
		&p.ID, &p.UserID, &p.OrderID, &p.Plan, &p.PaymentType, &p.Months, &p.Amount, &p.Currency, &p.Status,
		&p.ProviderPaymentID, &p.SubscriptionID, &p.ErrorDescription, &p.ExpiresAt, &p.CancelledAt, &p.CreatedAt, &p.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.NewNotFound("payment", orderID)
		}
		return nil, fmt.Errorf("get payment: %w", err)
	}
	return &p, nil
}

func (r *PaymentRepository) Update(ctx context.Context, p *model.Payment) error {
	now := time.Now().UTC()
	p.UpdatedAt = &now
	res, err := r.DB.ExecContext(ctx, `
		UPDATE payments
		SET status=$1, provider_payment_id=$2, subscription_id=$3, error_description=$4,
		    expires_at=$5, cancelled_at=$6, updated_at=$7
		WHERE id=$8
	`, p.Status, p.ProviderPaymentID, p.SubscriptionID, p.ErrorDescription, p.ExpiresAt, p.CancelledAt, now, p.ID)
	if err != nil {
		return fmt.Errorf("update payment: %w", err)
	}
	return expectOne(res, "payment", p.ID)
}

var _ PaymentRepositoryInterface = (*PaymentRepository)(nil)
