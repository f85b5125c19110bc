package mailer

import (
	"go.uber.org/zap"

	"github.com/unclebandit/mailleopard-backend/internal/config"
)

// FromConfig picks SendGrid when an API key is configured, otherwise the log sender,
// and wraps it with the rate limiter and circuit breaker.
func FromConfig(cfg *config.Config, log *zap.Logger) Sender {
	var base Sender
	if cfg.SendGridAPIKey != "" {
		base = NewSendGridSender(cfg.SendGridAPIKey)
	} else {
		log.Warn("SENDGRID_API_KEY not set, emails will only be logged")
		base = &LogSender{Log: log}
	}
	limited := NewRateLimited(base, cfg.SendRatePerSecond, int(cfg.SendRatePerSecond))
	return NewBreaker(limited, BreakerSettings{}, log)
}
