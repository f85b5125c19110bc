package config_test

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/unclebandit/mailleopard-backend/internal/config"
	"github.com/unclebandit/mailleopard-backend/internal/model"
)

func TestFromEnvDefaults(t *testing.T) {
	t.Setenv("DATABASE_URL", "postgres://u:p@db:5432/mail?sslmode=disable")
	t.Setenv("QUEUE_DRIVER", "")

	cfg, err := config.FromEnv()
	require.NoError(t, err)

	assert.Equal(t, "postgres://u:p@db:5432/mail?sslmode=disable", cfg.DatabaseURL)
	assert.Equal(t, "memory", cfg.QueueDriver)
	assert.Equal(t, 50, cfg.SendBatchSize)
	assert.Equal(t, 100, cfg.Plans.Limit(model.PlanFree))
	assert.Equal(t, 999999999, cfg.Plans.Limit(model.PlanEnterprise))
}

func TestFromEnvOverrides(t *testing.T) {
	t.Setenv("DATABASE_URL", "")
	t.Setenv("DB_USER", "mail")
	t.Setenv("DB_PASSWORD", "secret")
	t.Setenv("DB_HOST", "pg")
	t.Setenv("DB_PORT", "6543")
	t.Setenv("DB_NAME", "leopard")
	t.Setenv("STARTER_CONTACT_LIMIT", "1500")
	t.Setenv("STRIPE_PRICE_ID_BUSINESS", "price_biz")
	t.Setenv("SEND_TIMEOUT", "5")
	t.Setenv("CORS_ORIGINS", "https://a.example, https://b.example")

	cfg, err := config.FromEnv()
	require.NoError(t, err)

	assert.Equal(t, "postgres://mail:secret@pg:6543/leopard?sslmode=disable", cfg.DatabaseURL)
	assert.Equal(t, 1500, cfg.Plans.Limit(model.PlanStarter))
	assert.Equal(t, 5*time.Second, cfg.SendTimeout)
	assert.Equal(t, []string{"https://a.example", "https://b.example"}, cfg.CORSOrigins)

	plan, ok := cfg.PlanForPrice("price_biz")
	assert.True(t, ok)
	assert.Equal(t, model.PlanBusiness, plan)
}

func TestFromEnvRejectsUnknownQueueDriver(t *testing.T) {
	t.Setenv("QUEUE_DRIVER", "kafka")
	_, err := config.FromEnv()
	assert.Error(t, err)
}

func TestLoadPlans(t *testing.T) {
	path := filepath.Join(t.TempDir(), "plans.yaml")
	yml := `plans:
  starter:
    contact_limit: 2000
    price_uah: 399
    features: ["All templates"]
`
	require.NoError(t, os.WriteFile(path, []byte(yml), 0o600))

	plans, err := config.LoadPlans(path)
	require.NoError(t, err)
	assert.Equal(t, 2000, plans.Limit(model.PlanStarter))
	assert.Equal(t, 5000, plans.Limit(model.PlanBusiness))
	assert.Equal(t, 100, plans.Limit(model.Plan("gold")))
}

func TestWithinLimitBoundary(t *testing.T) {
	plans := config.DefaultPlans()
	assert.True(t, plans.WithinLimit(model.PlanFree, 100))
	assert.False(t, plans.WithinLimit(model.PlanFree, 101))
}
