package mailer

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Message is one rendered email addressed to a single recipient.
type Message struct {
	FromName   string
	FromEmail  string
	ReplyTo    string
	ToName     string
	ToEmail    string
	Subject    string
	HTML       string
	Headers    map[string]string
	CustomArgs map[string]string
}

// Sender delivers a message and returns the provider's message id.
type Sender interface {
	Send(ctx context.Context, msg Message) (string, error)
}

// RejectedError is the provider refusing one message, for example an invalid address.
// Sending the same message again would fail the same way.
type RejectedError struct {
	StatusCode int
	Detail     string
}

func (e *RejectedError) Error() string {
	return fmt.Sprintf("message rejected with status %d: %s", e.StatusCode, e.Detail)
}

// LogSender logs messages instead of delivering them. Used in development.
type LogSender struct {
	Log *zap.Logger
}

func (s *LogSender) Send(ctx context.Context, msg Message) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	if msg.ToEmail == "" {
		return "", &RejectedError{StatusCode: 400, Detail: "missing recipient"}
	}
	id := uuid.NewString()
	s.Log.Info("email send skipped (log sender)",
		zap.String("message_id", id),
		zap.String("to", msg.ToEmail),
		zap.String("subject", msg.Subject),
	)
	return id, nil
}

var _ Sender = (*LogSender)(nil)
