package mailer

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/sony/gobreaker/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type failingSender struct {
	calls int
	err   error
}

func (f *failingSender) Send(ctx context.Context, msg Message) (string, error) {
	f.calls++
	if f.err != nil {
		return "", f.err
	}
	return "msg-1", nil
}

func TestLogSenderReturnsID(t *testing.T) {
	s := &LogSender{Log: zap.NewNop()}
	id, err := s.Send(context.Background(), Message{ToEmail: "a@example.com", Subject: "hi"})
	require.NoError(t, err)
	assert.NotEmpty(t, id)

	_, err = s.Send(context.Background(), Message{})
	assert.Error(t, err)
}

func TestBreakerOpensAfterConsecutiveFailures(t *testing.T) {
	next := &failingSender{err: errors.New("provider down")}
	b := NewBreaker(next, BreakerSettings{ConsecutiveFailures: 2, OpenTimeout: time.Minute}, zap.NewNop())

	for i := 0; i < 2; i++ {
		_, err := b.Send(context.Background(), Message{ToEmail: "a@example.com"})
		assert.Error(t, err)
	}
	_, err := b.Send(context.Background(), Message{ToEmail: "a@example.com"})
	assert.ErrorIs(t, err, gobreaker.ErrOpenState)
	assert.Equal(t, 2, next.calls)
}

func TestRateLimitedHonoursContext(t *testing.T) {
	next := &failingSender{}
	s := NewRateLimited(next, 0.001, 1)

	_, err := s.Send(context.Background(), Message{})
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	_, err = s.Send(ctx, Message{})
	assert.Error(t, err)
	assert.Equal(t, 1, next.calls)
}

func TestBreakerOpenStateIsUnavailable(t *testing.T) {
	next := &failingSender{err: errors.New("provider down")}
	b := NewBreaker(next, BreakerSettings{ConsecutiveFailures: 1, OpenTimeout: time.Minute}, zap.NewNop())

	_, err := b.Send(context.Background(), Message{ToEmail: "a@example.com"})
	require.Error(t, err)
	assert.NotErrorIs(t, err, ErrUnavailable)

	_, err = b.Send(context.Background(), Message{ToEmail: "a@example.com"})
	assert.ErrorIs(t, err, ErrUnavailable)
	assert.Equal(t, 1, next.calls)
}

func TestBreakerIgnoresRejectedMessages(t *testing.T) {
	next := &failingSender{err: fmt.Errorf("sendgrid: %w", &RejectedError{StatusCode: 400, Detail: "invalid email"})}
	b := NewBreaker(next, BreakerSettings{ConsecutiveFailures: 2, OpenTimeout: time.Minute}, zap.NewNop())

	for i := 0; i < 5; i++ {
		_, err := b.Send(context.Background(), Message{ToEmail: "bad"})
		var rejected *RejectedError
		require.ErrorAs(t, err, &rejected)
		assert.Equal(t, 400, rejected.StatusCode)
	}
	assert.Equal(t, 5, next.calls)
}

func TestRateLimitedWithoutSlotIsUnavailable(t *testing.T) {
	s := NewRateLimited(&failingSender{}, 0.001, 1)
	_, err := s.Send(context.Background(), Message{})
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	_, err = s.Send(ctx, Message{})
	assert.ErrorIs(t, err, ErrUnavailable)

	cancel()
	_, err = s.Send(ctx, Message{})
	assert.ErrorIs(t, err, context.Canceled)
}
