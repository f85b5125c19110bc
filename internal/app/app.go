// Package app wires configuration, storage and services for the server and worker binaries.
package app

import (
	"context"
	"crypto/ecdsa"
	"database/sql"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/sendgrid/sendgrid-go/helpers/eventwebhook"
	"go.uber.org/zap"

	"github.com/unclebandit/mailleopard-backend/internal/config"
	"github.com/unclebandit/mailleopard-backend/internal/db"
	"github.com/unclebandit/mailleopard-backend/internal/liqpay"
	"github.com/unclebandit/mailleopard-backend/internal/lock"
	"github.com/unclebandit/mailleopard-backend/internal/mailer"
	"github.com/unclebandit/mailleopard-backend/internal/queue"
	"github.com/unclebandit/mailleopard-backend/internal/repository"
	"github.com/unclebandit/mailleopard-backend/internal/service"
)

// SendGrid retries failed event webhook deliveries for up to 72 hours.
const eventDedupTTL = 72 * time.Hour

type App struct {
	Config *config.Config
	Log    *zap.Logger
	DB     *sql.DB
	Redis  *redis.Client
	Queue  queue.Queue
	// SendGridKey verifies event webhook signatures; nil when no key is configured.
	SendGridKey *ecdsa.PublicKey

	Users     *service.UserService
	Contacts  *service.ContactService
	Templates *service.TemplateService
	Campaigns *service.CampaignService
	Analytics *service.AnalyticsService
	Billing   *service.BillingService
	Tracker   *service.EventTracker
	Pipeline  *service.SendPipeline
	Worker    *service.Worker
	Scheduler *service.Scheduler
}

// New connects to Postgres, Redis (when REDIS_ADDR is set) and the configured queue.
// Without Redis, the send guard and event deduper are process-local.
func New(ctx context.Context, cfg *config.Config, log *zap.Logger) (*App, error) {
	var sendGridKey *ecdsa.PublicKey
	if cfg.SendGridWebhookKey != "" {
		key, err := eventwebhook.ConvertPublicKeyBase64ToECDSA(cfg.SendGridWebhookKey)
		if err != nil {
			return nil, fmt.Errorf("parse SENDGRID_WEBHOOK_PUBLIC_KEY: %w", err)
		}
		sendGridKey = key
	} else {
		log.Warn("SENDGRID_WEBHOOK_PUBLIC_KEY not set, accepting unsigned email events")
	}

	conn, err := db.Open(ctx, cfg.DatabaseURL, log)
	if err != nil {
		return nil, err
	}
	a := &App{Config: cfg, Log: log, DB: conn, SendGridKey: sendGridKey}

	var (
		guard   lock.Guard   = lock.NewMemoryGuard()
		deduper lock.Deduper = lock.NewMemoryDeduper(eventDedupTTL)
	)
	if cfg.RedisAddr != "" {
		a.Redis = redis.NewClient(&redis.Options{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
		})
		if err := a.Redis.Ping(ctx).Err(); err != nil {
			a.Close()
			return nil, fmt.Errorf("ping redis: %w", err)
		}
		guard = lock.NewRedisGuard(a.Redis, "mailleopard:lock:")
		deduper = lock.NewRedisDeduper(a.Redis, eventDedupTTL, log)
		log.Info("connected to redis", zap.String("addr", cfg.RedisAddr))
	} else {
		log.Warn("REDIS_ADDR not set, using in-process locks")
	}

	switch cfg.QueueDriver {
	case "amqp":
		q, err := queue.DialAMQP(cfg.AMQPURL, log)
		if err != nil {
			a.Close()
			return nil, err
		}
		a.Queue = q
	default:
		a.Queue = queue.NewInMemoryQueue(log)
	}

	userRepo := &repository.UserRepository{DB: conn}
	contactRepo := &repository.ContactRepository{DB: conn}
	templateRepo := &repository.TemplateRepository{DB: conn}
	campaignRepo := &repository.CampaignRepository{DB: conn}
	emailRepo := &repository.EmailRepository{DB: conn}

	sender := mailer.FromConfig(cfg, log)

	a.Users = &service.UserService{UserRepo: userRepo, ContactRepo: contactRepo, Plans: cfg.Plans}
	a.Contacts = &service.ContactService{
		ContactRepo: contactRepo,
		UserRepo:    userRepo,
		Plans:       cfg.Plans,
		Log:         log,
	}
	a.Templates = &service.TemplateService{TemplateRepo: templateRepo, Log: log}
	a.Campaigns = &service.CampaignService{
		CampaignRepo: campaignRepo,
		ContactRepo:  contactRepo,
		TemplateRepo: templateRepo,
		UserRepo:     userRepo,
		Queue:        a.Queue,
		Sender:       sender,
		Plans:        cfg.Plans,
		Log:          log,
	}
	a.Analytics = &service.AnalyticsService{
		AnalyticsRepo: &repository.AnalyticsRepository{DB: conn},
		CampaignRepo:  campaignRepo,
		ContactRepo:   contactRepo,
		Log:           log,
	}

	var lp *liqpay.Client
	if cfg.LiqPayPublicKey != "" && cfg.LiqPayPrivateKey != "" {
		lp = liqpay.New(cfg.LiqPayPublicKey, cfg.LiqPayPrivateKey, cfg.LiqPaySandbox)
	}
	a.Billing = &service.BillingService{
		UserRepo:    userRepo,
		PaymentRepo: &repository.PaymentRepository{DB: conn},
		WebhookRepo: &repository.WebhookEventRepository{DB: conn},
		Config:      cfg,
		LiqPay:      lp,
		Log:         log,
	}
	a.Tracker = &service.EventTracker{EmailRepo: emailRepo, Deduper: deduper, Log: log}

	a.Pipeline = &service.SendPipeline{
		CampaignRepo:    campaignRepo,
		EmailRepo:       emailRepo,
		Sender:          sender,
		Log:             log,
		BatchSize:       cfg.SendBatchSize,
		SendTimeout:     cfg.SendTimeout,
		TrackingBaseURL: cfg.APIURL,
		TrackingEnabled: cfg.TrackingEnabled,
	}
	a.Worker = service.NewWorker(a.Pipeline, guard, log)
	a.Scheduler = &service.Scheduler{
		CampaignRepo: campaignRepo,
		Queue:        a.Queue,
		Guard:        guard,
		Interval:     cfg.SchedulerInterval,
		Log:          log,
	}
	return a, nil
}

// Close releases connections in reverse order of acquisition.
func (a *App) Close() {
	if a.Queue != nil {
		if err := a.Queue.Close(); err != nil {
			a.Log.Warn("closing queue", zap.Error(err))
		}
	}
	if a.Redis != nil {
		if err := a.Redis.Close(); err != nil {
			a.Log.Warn("closing redis", zap.Error(err))
		}
	}
	if err := a.DB.Close(); err != nil {
		a.Log.Warn("closing database", zap.Error(err))
	}
}
