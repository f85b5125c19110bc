package router

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/go-chi/httprate"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/unclebandit/mailleopard-backend/internal/config"
	"github.com/unclebandit/mailleopard-backend/internal/controller"
	"github.com/unclebandit/mailleopard-backend/internal/handler"
	"github.com/unclebandit/mailleopard-backend/internal/middleware"
)

type Handlers struct {
	Users     *controller.UserController
	Contacts  *controller.ContactController
	Templates *controller.TemplateController
	Campaigns *controller.CampaignController
	Analytics *controller.AnalyticsController
	Payments  *controller.PaymentController
	Webhooks  *handler.WebhookHandler
	Tracking  *handler.TrackingHandler
}

// Pinger reports whether a dependency is reachable; used by /health.
type Pinger func(ctx context.Context) error

func New(cfg *config.Config, log *zap.Logger, h Handlers, ping Pinger) http.Handler {
	r := chi.NewRouter()
	r.Use(chimw.RealIP)
	r.Use(middleware.RequestID)
	r.Use(middleware.Recover(log))
	r.Use(middleware.Logger(log))
	r.Use(middleware.Metrics)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   cfg.CORSOrigins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", middleware.RequestIDHeader},
		ExposedHeaders:   []string{middleware.RequestIDHeader, "Content-Disposition"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	r.Get("/health", health(ping))
	r.Handle("/metrics", promhttp.Handler())

	// Tracking links are opened by mail clients, so they carry no auth and no rate limit.
	r.Route("/t", func(r chi.Router) {
		r.Get("/o/{id}", h.Tracking.Open)
		r.Get("/c/{id}", h.Tracking.Click)
		r.Get("/u/{id}", h.Tracking.Unsubscribe)
	})

	r.Route("/api/v1", func(r chi.Router) {
		r.Route("/webhooks", func(r chi.Router) {
			r.Post("/stripe", h.Webhooks.Stripe)
			r.Post("/liqpay", h.Webhooks.LiqPay)
			r.Post("/email", h.Webhooks.Email)
		})

		r.Group(func(r chi.Router) {
			if cfg.RateLimitRequests > 0 {
				r.Use(httprate.Limit(cfg.RateLimitRequests, cfg.RateLimitPeriod, httprate.WithKeyFuncs(httprate.KeyByIP)))
			}
			r.Use(middleware.Auth(cfg.JWTSecret))

			r.Get("/users/me", h.Users.Me)

			r.Route("/contacts", func(r chi.Router) {
				r.Post("/", h.Contacts.CreateContact)
				r.Get("/", h.Contacts.ListContacts)
				r.Post("/import", h.Contacts.ImportContacts)
				r.Get("/export/csv", h.Contacts.ExportContacts)
				r.Get("/tags/all", h.Contacts.ListTags)
				r.Post("/bulk-update", h.Contacts.BulkUpdate)
				r.Post("/bulk-delete", h.Contacts.BulkDelete)
				r.Get("/{id}", h.Contacts.GetContact)
				r.Put("/{id}", h.Contacts.UpdateContact)
				r.Delete("/{id}", h.Contacts.DeleteContact)
				r.Post("/{id}/unsubscribe", h.Contacts.Unsubscribe)
			})

			r.Route("/templates", func(r chi.Router) {
				r.Post("/", h.Templates.CreateTemplate)
				r.Get("/", h.Templates.ListTemplates)
				r.Get("/categories", h.Templates.Categories)
				r.Get("/{id}", h.Templates.GetTemplate)
				r.Put("/{id}", h.Templates.UpdateTemplate)
				r.Delete("/{id}", h.Templates.DeleteTemplate)
				r.Post("/{id}/duplicate", h.Templates.DuplicateTemplate)
			})

			r.Route("/campaigns", func(r chi.Router) {
				r.Post("/", h.Campaigns.CreateCampaign)
				r.Get("/", h.Campaigns.ListCampaigns)
				r.Get("/{id}", h.Campaigns.GetCampaignDetails)
				r.Put("/{id}", h.Campaigns.UpdateCampaign)
				r.Delete("/{id}", h.Campaigns.DeleteCampaign)
				r.Post("/{id}/send", h.Campaigns.SendCampaign)
				r.Post("/{id}/pause", h.Campaigns.PauseCampaign)
				r.Post("/{id}/resume", h.Campaigns.ResumeCampaign)
				r.Post("/{id}/test", h.Campaigns.SendTest)
				r.Post("/{id}/duplicate", h.Campaigns.DuplicateCampaign)
				r.Post("/{id}/personalized-preview", h.Campaigns.PersonalizedPreview)
			})

			r.Route("/analytics", func(r chi.Router) {
				r.Get("/overview", h.Analytics.Overview)
				r.Get("/campaigns/{id}", h.Analytics.Campaign)
				r.Get("/contacts/engagement", h.Analytics.ContactEngagement)
				r.Get("/growth", h.Analytics.Growth)
				r.Get("/performance/comparison", h.Analytics.Compare)
			})

			r.Post("/payments/liqpay/checkout", h.Payments.LiqPayCheckout)
		})
	})
	return r
}

func health(ping Pinger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		if ping != nil {
			ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
			defer cancel()
			if err := ping(ctx); err != nil {
				w.WriteHeader(http.StatusServiceUnavailable)
				w.Write([]byte(`{"status":"unhealthy"}`))
				return
			}
		}
		w.Write([]byte(`{"status":"healthy"}`))
	}
}
