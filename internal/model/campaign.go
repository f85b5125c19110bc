// internal/model/campaign.go
package model

import "time"

type CampaignStatus string

const (
	CampaignDraft     CampaignStatus = "draft"
	CampaignScheduled CampaignStatus = "scheduled"
	CampaignSending   CampaignStatus = "sending"
	CampaignSent      CampaignStatus = "sent"
	CampaignPaused    CampaignStatus = "paused"
	CampaignFailed    CampaignStatus = "failed"
)

// Locked reports whether the campaign can no longer be edited or deleted.
func (s CampaignStatus) Locked() bool {
	return s == CampaignSending || s == CampaignSent
}

type Campaign struct {
	ID                int            `db:"id" json:"id"`
	UserID            int            `db:"user_id" json:"user_id"`
	Name              string         `db:"name" json:"name"`
	Subject           string         `db:"subject" json:"subject"`
	PreviewText       string         `db:"preview_text" json:"preview_text,omitempty"`
	Content           string         `db:"content" json:"content"`
	FromName          string         `db:"from_name" json:"from_name"`
	FromEmail         string         `db:"from_email" json:"from_email"`
	ReplyTo           string         `db:"reply_to" json:"reply_to,omitempty"`
	Status            CampaignStatus `db:"status" json:"status"`
	ScheduledAt       *time.Time     `db:"scheduled_at" json:"scheduled_at,omitempty"`
	SentAt            *time.Time     `db:"sent_at" json:"sent_at,omitempty"`
	RecipientsCount   int            `db:"recipients_count" json:"recipients_count"`
	OpensCount        int            `db:"opens_count" json:"opens_count"`
	ClicksCount       int            `db:"clicks_count" json:"clicks_count"`
	UnsubscribesCount int            `db:"unsubscribes_count" json:"unsubscribes_count"`
	BouncesCount      int            `db:"bounces_count" json:"bounces_count"`
	ComplaintsCount   int            `db:"complaints_count" json:"complaints_count"`
	CreatedAt         time.Time      `db:"created_at" json:"created_at"`
	UpdatedAt         *time.Time     `db:"updated_at" json:"updated_at,omitempty"`
}
