package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/unclebandit/mailleopard-backend/internal/model"
)

// PlanSpec describes one subscription tier.
type PlanSpec struct {
	ContactLimit int      `yaml:"contact_limit" json:"contact_limit"`
	PriceUSD     float64  `yaml:"price_usd" json:"price_usd"`
	PriceUAH     float64  `yaml:"price_uah" json:"price_uah"`
	Features     []string `yaml:"features" json:"features"`
}

type Plans map[model.Plan]PlanSpec

func DefaultPlans() Plans {
	return Plans{
		model.PlanFree: {
			ContactLimit: 100,
			Features:     []string{"Basic templates", "Email support"},
		},
		model.PlanStarter: {
			ContactLimit: 1000,
			PriceUSD:     9,
			PriceUAH:     349,
			Features:     []string{"All templates", "Basic analytics", "Email support"},
		},
		model.PlanBusiness: {
			ContactLimit: 5000,
			PriceUSD:     29,
			PriceUAH:     1099,
			Features:     []string{"All templates", "Advanced analytics", "A/B testing", "Priority support"},
		},
		model.PlanProfessional: {
			ContactLimit: 15000,
			PriceUSD:     79,
			PriceUAH:     2999,
			Features:     []string{"All templates", "Advanced analytics", "A/B testing", "Automation", "Priority support"},
		},
		model.PlanEnterprise: {
			ContactLimit: 999999999,
			PriceUSD:     199,
			PriceUAH:     7499,
			Features:     []string{"Unlimited contacts", "Dedicated manager", "Custom integrations", "SLA"},
		},
	}
}

// Spec returns the tier for plan, falling back to free for unknown plans.
func (p Plans) Spec(plan model.Plan) PlanSpec {
	if spec, ok := p[plan]; ok {
		return spec
	}
	return p[model.PlanFree]
}

func (p Plans) Limit(plan model.Plan) int {
	return p.Spec(plan).ContactLimit
}

// WithinLimit reports whether holding n contacts is allowed on plan.
func (p Plans) WithinLimit(plan model.Plan, n int) bool {
	return n <= p.Limit(plan)
}

type plansFile struct {
	Plans map[string]PlanSpec `yaml:"plans"`
}

// LoadPlans reads a YAML plans file; tiers it does not mention keep their defaults.
func LoadPlans(path string) (Plans, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read plans file: %w", err)
	}
	var f plansFile
	if err := yaml.Unmarshal(raw, &f); err != nil {
		return nil, fmt.Errorf("parse plans file: %w", err)
	}

	plans := DefaultPlans()
	for name, spec := range f.Plans {
		plan, ok := model.ParsePlan(name)
		if !ok {
			return nil, fmt.Errorf("plans file: unknown plan %q", name)
		}
		if spec.ContactLimit <= 0 {
			return nil, fmt.Errorf("plans file: %s contact_limit must be positive", name)
		}
		plans[plan] = spec
	}
	return plans, nil
}
