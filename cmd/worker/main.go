package main

import (
	"context"
	"errors"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/unclebandit/mailleopard-backend/internal/app"
	"github.com/unclebandit/mailleopard-backend/internal/config"
	"github.com/unclebandit/mailleopard-backend/internal/logger"
	"github.com/unclebandit/mailleopard-backend/internal/queue"
)

// The worker consumes campaign_sends from RabbitMQ and runs send passes. It serves only
// /health and /metrics.
func main() {
	cfg, err := config.Load()
	if err != nil {
		panic(err)
	}
	log := logger.Must(cfg.Environment).With(zap.String("component", "worker"))
	defer log.Sync()

	if cfg.QueueDriver != "amqp" {
		log.Fatal("worker requires QUEUE_DRIVER=amqp; the memory queue runs jobs inside the server")
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	a, err := app.New(ctx, cfg, log)
	if err != nil {
		log.Fatal("failed to initialise", zap.Error(err))
	}
	defer a.Close()

	if err := queue.StartCampaignSendSubscriber(a.Queue, a.Worker, log); err != nil {
		log.Fatal("failed to register consumer", zap.Error(err))
	}
	log.Info("worker running, waiting for messages", zap.String("queue", queue.TopicCampaignSends))

	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           statusMux(a.DB.PingContext),
		ReadHeaderTimeout: 10 * time.Second,
	}
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("metrics server failed", zap.Error(err))
		}
	}()

	<-ctx.Done()
	log.Info("shutting down worker")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	srv.Shutdown(shutdownCtx)
}

func statusMux(ping func(ctx context.Context) error) *http.ServeMux {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		if err := ping(r.Context()); err != nil {
			w.WriteHeader(http.StatusServiceUnavailable)
			w.Write([]byte(`{"status":"unhealthy"}`))
			return
		}
		w.Write([]byte(`{"status":"ok"}`))
	})
	return mux
}
