package mailer

import (
	"context"
	"fmt"
	"net/http"

	"github.com/sendgrid/sendgrid-go"
	"github.com/sendgrid/sendgrid-go/helpers/mail"
)

type SendGridSender struct {
	Client *sendgrid.Client
}

func NewSendGridSender(apiKey string) *SendGridSender {
	return &SendGridSender{Client: sendgrid.NewSendClient(apiKey)}
}

func (s *SendGridSender) Send(ctx context.Context, msg Message) (string, error) {
	m := mail.NewV3Mail()
	m.SetFrom(mail.NewEmail(msg.FromName, msg.FromEmail))
	m.Subject = msg.Subject
	m.AddContent(mail.NewContent("text/html", msg.HTML))
	if msg.ReplyTo != "" {
		m.SetReplyTo(mail.NewEmail("", msg.ReplyTo))
	}
	for k, v := range msg.Headers {
		m.SetHeader(k, v)
	}

	p := mail.NewPersonalization()
	p.AddTos(mail.NewEmail(msg.ToName, msg.ToEmail))
	for k, v := range msg.CustomArgs {
		p.SetCustomArg(k, v)
	}
	m.AddPersonalizations(p)

	resp, err := s.Client.SendWithContext(ctx, m)
	if err != nil {
		return "", fmt.Errorf("sendgrid: %w", err)
	}
	switch {
	case resp.StatusCode == http.StatusBadRequest || resp.StatusCode == http.StatusRequestEntityTooLarge:
		return "", fmt.Errorf("sendgrid: %w", &RejectedError{StatusCode: resp.StatusCode, Detail: resp.Body})
	case resp.StatusCode >= 300:
		return "", fmt.Errorf("sendgrid: status %d: %s", resp.StatusCode, resp.Body)
	}
	if ids := resp.Headers["X-Message-Id"]; len(ids) > 0 {
		return ids[0], nil
	}
	return "", fmt.Errorf("sendgrid: response without X-Message-Id")
}

var _ Sender = (*SendGridSender)(nil)
