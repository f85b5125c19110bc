// internal/model/payment.go
package model

import "time"

type PaymentType string

const (
	PaymentSubscription PaymentType = "subscription"
	PaymentOneTime      PaymentType = "onetime"
)

// Payment mirrors a provider order. Status is whatever the provider last reported.
type Payment struct {
	ID                int         `db:"id" json:"id"`
	UserID            int         `db:"user_id" json:"user_id"`
	OrderID           string      `db:"order_id" json:"order_id"`
	Plan              Plan        `db:"plan" json:"plan"`
	PaymentType       PaymentType `db:"payment_type" json:"payment_type"`
	Months            int         `db:"months" json:"months"`
	Amount            float64     `db:"amount" json:"amount"`
	Currency          string      `db:"currency" json:"currency"`
	Status            string      `db:"status" json:"status"`
	ProviderPaymentID string      `db:"provider_payment_id" json:"provider_payment_id,omitempty"`
	SubscriptionID    string      `db:"subscription_id" json:"subscription_id,omitempty"`
	ErrorDescription  string      `db:"error_description" json:"error_description,omitempty"`
	ExpiresAt         *time.Time  `db:"expires_at" json:"expires_at,omitempty"`
	CancelledAt       *time.Time  `db:"cancelled_at" json:"cancelled_at,omitempty"`
	CreatedAt         time.Time   `db:"created_at" json:"created_at"`
	UpdatedAt         *time.Time  `db:"updated_at" json:"updated_at,omitempty"`
}

const (
	ProviderStripe = "stripe"
	ProviderLiqPay = "liqpay"
)
