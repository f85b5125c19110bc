// cmd/server/main.go
package main

import (
	"context"
	"errors"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/unclebandit/mailleopard-backend/internal/app"
	"github.com/unclebandit/mailleopard-backend/internal/config"
	"github.com/unclebandit/mailleopard-backend/internal/controller"
	"github.com/unclebandit/mailleopard-backend/internal/handler"
	"github.com/unclebandit/mailleopard-backend/internal/logger"
	"github.com/unclebandit/mailleopard-backend/internal/queue"
	"github.com/unclebandit/mailleopard-backend/internal/router"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		panic(err)
	}
	log := logger.Must(cfg.Environment)
	defer log.Sync()

	if cfg.JWTSecret == "" {
		log.Fatal("JWT_SECRET must be set")
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	a, err := app.New(ctx, cfg, log)
	if err != nil {
		log.Fatal("failed to initialise", zap.Error(err))
	}
	defer a.Close()

	// With the in-memory queue there is no separate worker process, so jobs run here.
	if cfg.QueueDriver == "memory" {
		if err := queue.StartCampaignSendSubscriber(a.Queue, a.Worker, log); err != nil {
			log.Fatal("failed to subscribe send worker", zap.Error(err))
		}
	}

	go a.Scheduler.Run(ctx)

	h := router.New(cfg, log, router.Handlers{
		Users:     &controller.UserController{UserService: a.Users, Log: log},
		Contacts:  &controller.ContactController{ContactService: a.Contacts, Log: log},
		Templates: &controller.TemplateController{TemplateService: a.Templates, Log: log},
		Campaigns: &controller.CampaignController{CampaignService: a.Campaigns, Log: log},
		Analytics: &controller.AnalyticsController{AnalyticsService: a.Analytics, Log: log},
		Payments:  &controller.PaymentController{BillingService: a.Billing, Log: log},
		Webhooks:  &handler.WebhookHandler{Billing: a.Billing, Tracker: a.Tracker, SendGridKey: a.SendGridKey, Log: log},
		Tracking:  &handler.TrackingHandler{Tracker: a.Tracker, Log: log},
	}, a.DB.PingContext)

	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           h,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		log.Info("server running", zap.String("addr", srv.Addr), zap.String("queue", cfg.QueueDriver))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("http server failed", zap.Error(err))
			stop()
		}
	}()

	<-ctx.Done()
	log.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error("http server shutdown error", zap.Error(err))
	}
	log.Info("server stopped")
}
