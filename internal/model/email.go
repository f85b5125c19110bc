// internal/model/email.go
package model

import "time"

type EmailStatus string

const (
	EmailPending EmailStatus = "pending"
	EmailSent    EmailStatus = "sent"
	EmailFailed  EmailStatus = "failed"
)

// Email is the per-recipient send record of a campaign.
type Email struct {
	ID             int         `db:"id" json:"id"`
	CampaignID     int         `db:"campaign_id" json:"campaign_id"`
	ContactID      int         `db:"contact_id" json:"contact_id"`
	MessageID      *string     `db:"message_id" json:"message_id,omitempty"`
	Status         EmailStatus `db:"status" json:"status"`
	LastError      string      `db:"last_error" json:"last_error,omitempty"`
	SentAt         *time.Time  `db:"sent_at" json:"sent_at,omitempty"`
	OpenedAt       *time.Time  `db:"opened_at" json:"opened_at,omitempty"`
	ClickedAt      *time.Time  `db:"clicked_at" json:"clicked_at,omitempty"`
	UnsubscribedAt *time.Time  `db:"unsubscribed_at" json:"unsubscribed_at,omitempty"`
	BouncedAt      *time.Time  `db:"bounced_at" json:"bounced_at,omitempty"`
	ComplainedAt   *time.Time  `db:"complained_at" json:"complained_at,omitempty"`
	OpenCount      int         `db:"open_count" json:"open_count"`
	ClickCount     int         `db:"click_count" json:"click_count"`
	CreatedAt      time.Time   `db:"created_at" json:"created_at"`
}

// Recipient is a pending Email joined with the contact it targets.
type Recipient struct {
	EmailID int
	Contact Contact
}

// SendResult is the outcome of one provider call during a pass.
type SendResult struct {
	EmailID   int
	MessageID string
	Error     string
	At        time.Time
}

func (r SendResult) Status() EmailStatus {
	if r.Error != "" {
		return EmailFailed
	}
	return EmailSent
}

type EventType string

const (
	EventOpen        EventType = "open"
	EventClick       EventType = "click"
	EventUnsubscribe EventType = "unsubscribe"
	EventBounce      EventType = "bounce"
	EventComplaint   EventType = "complaint"
)

func (t EventType) Valid() bool {
	switch t {
	case EventOpen, EventClick, EventUnsubscribe, EventBounce, EventComplaint:
		return true
	}
	return false
}

type EmailEvent struct {
	ID        int       `db:"id" json:"id"`
	EmailID   int       `db:"email_id" json:"email_id"`
	EventType EventType `db:"event_type" json:"event_type"`
	Metadata  JSONMap   `db:"metadata" json:"metadata"`
	IPAddress string    `db:"ip_address" json:"ip_address,omitempty"`
	UserAgent string    `db:"user_agent" json:"user_agent,omitempty"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
}

// EventOutcome describes what recording one event changed.
type EventOutcome struct {
	EmailID    int
	CampaignID int
	ContactID  int
	First      bool
}
