// internal/model/user.go
package model

import (
	"strings"
	"time"
)

type Plan string

const (
	PlanFree         Plan = "free"
	PlanStarter      Plan = "starter"
	PlanBusiness     Plan = "business"
	PlanProfessional Plan = "professional"
	PlanEnterprise   Plan = "enterprise"
)

var Plans = []Plan{PlanFree, PlanStarter, PlanBusiness, PlanProfessional, PlanEnterprise}

// ParsePlan is case-insensitive; ok is false for unknown names.
func ParsePlan(s string) (Plan, bool) {
	p := Plan(strings.ToLower(strings.TrimSpace(s)))
	for _, known := range Plans {
		if p == known {
			return p, true
		}
	}
	return "", false
}

type User struct {
	ID                   int       `db:"id" json:"id"`
	Email                string    `db:"email" json:"email"`
	FullName             string    `db:"full_name" json:"full_name"`
	CompanyName          string    `db:"company_name" json:"company_name,omitempty"`
	Plan                 Plan      `db:"plan" json:"plan"`
	IsActive             bool      `db:"is_active" json:"is_active"`
	StripeCustomerID     string    `db:"stripe_customer_id" json:"-"`
	StripeSubscriptionID string    `db:"stripe_subscription_id" json:"-"`
	CreatedAt            time.Time `db:"created_at" json:"created_at"`
}
