package mailer

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/sony/gobreaker/v2"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

// ErrUnavailable marks a send that never reached the provider, because the breaker is
// open or no rate slot was free before the deadline. The message can be sent again later.
var ErrUnavailable = errors.New("email provider unavailable")

// RateLimited throttles sends to the provider quota.
type RateLimited struct {
	next    Sender
	limiter *rate.Limiter
}

func NewRateLimited(next Sender, perSecond float64, burst int) *RateLimited {
	if burst < 1 {
		burst = 1
	}
	limit := rate.Limit(perSecond)
	if perSecond <= 0 {
		limit = rate.Inf
	}
	return &RateLimited{next: next, limiter: rate.NewLimiter(limit, burst)}
}

func (s *RateLimited) Send(ctx context.Context, msg Message) (string, error) {
	if err := s.limiter.Wait(ctx); err != nil {
		if ctx.Err() != nil {
			return "", ctx.Err()
		}
		return "", fmt.Errorf("%w: %w", ErrUnavailable, err)
	}
	return s.next.Send(ctx, msg)
}

// Breaker stops calling the provider after repeated consecutive failures
// and fails fast with ErrUnavailable until the cool-down elapses. Rejections of a
// single message do not count as failures.
type Breaker struct {
	next Sender
	cb   *gobreaker.CircuitBreaker[string]
}

type BreakerSettings struct {
	ConsecutiveFailures uint32
	OpenTimeout         time.Duration
}

func NewBreaker(next Sender, s BreakerSettings, log *zap.Logger) *Breaker {
	if s.ConsecutiveFailures == 0 {
		s.ConsecutiveFailures = 5
	}
	if s.OpenTimeout == 0 {
		s.OpenTimeout = 30 * time.Second
	}
	cb := gobreaker.NewCircuitBreaker[string](gobreaker.Settings{
		Name:        "email-provider",
		MaxRequests: 1,
		Timeout:     s.OpenTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= s.ConsecutiveFailures
		},
		IsSuccessful: func(err error) bool {
			var rejected *RejectedError
			return err == nil ||
				errors.As(err, &rejected) ||
				errors.Is(err, ErrUnavailable) ||
				errors.Is(err, context.Canceled)
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			log.Warn("circuit breaker state changed",
				zap.String("name", name),
				zap.String("from", from.String()),
				zap.String("to", to.String()),
			)
		},
	})
	return &Breaker{next: next, cb: cb}
}

func (s *Breaker) Send(ctx context.Context, msg Message) (string, error) {
	id, err := s.cb.Execute(func() (string, error) {
		return s.next.Send(ctx, msg)
	})
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		return "", fmt.Errorf("%w: %w", ErrUnavailable, err)
	}
	return id, err
}

var (
	_ Sender = (*RateLimited)(nil)
	_ Sender = (*Breaker)(nil)
)
