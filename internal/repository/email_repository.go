package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/unclebandit/mailleopard-backend/internal/db"
	appErrors "github.com/unclebandit/mailleopard-backend/internal/errors"
	"github.com/unclebandit/mailleopard-backend/internal/model"
)

type EmailRepositoryInterface interface {
	PendingRecipients(ctx context.Context, campaignID int) ([]model.Recipient, error)
	ApplySendResults(ctx context.Context, results []model.SendResult) error
	GetByID(ctx context.Context, id int) (*model.Email, error)
	GetByMessageID(ctx context.Context, messageID string) (*model.Email, error)
	RecordEvent(ctx context.Context, ev *model.EmailEvent) (*model.EventOutcome, error)
}

type EmailRepository struct {
	DB *sql.DB
}

// eventColumns lists, per event type, the email timestamp set on first occurrence,
// the email counter bumped on every occurrence, the campaign counter bumped on first
// occurrence and the contact status it implies.
type eventColumns struct {
	timestamp       string
	counter         string
	campaignCounter string
	contactStatus   model.ContactStatus
}

var eventColumnMap = map[model.EventType]eventColumns{
	model.EventOpen:        {"opened_at", "open_count", "opens_count", ""},
	model.EventClick:       {"clicked_at", "click_count", "clicks_count", ""},
	model.EventUnsubscribe: {"unsubscribed_at", "", "unsubscribes_count", model.ContactUnsubscribed},
	model.EventBounce:      {"bounced_at", "", "bounces_count", model.ContactBounced},
	model.EventComplaint:   {"complained_at", "", "complaints_count", model.ContactComplained},
}

const emailColumns = `id, campaign_id, contact_id, message_id, status, last_error, sent_at, opened_at, clicked_at,
	unsubscribed_at, bounced_at, complained_at, open_count, click_count, created_at`

func scanEmail(row rowScanner) (*model.Email, error) {
	var e model.Email
	err := row.Scan(
		&e.ID, &e.CampaignID, &e.ContactID, &e.MessageID, &e.Status, &e.LastError, &e.SentAt, &e.OpenedAt, &e.ClickedAt,
		&e.UnsubscribedAt, &e.BouncedAt, &e.ComplainedAt, &e.OpenCount, &e.ClickCount, &e.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &e, nil
}

// PendingRecipients snapshots the pending emails of a campaign together with their contacts.
func (r *EmailRepository) PendingRecipients(ctx context.Context, campaignID int) ([]model.Recipient, error) {
	query := `
		SELECT e.id, c.id, c.user_id, c.email, c.first_name, c.last_name, c.company, c.tags, c.custom_fields, c.status
		FROM emails e
		JOIN contacts c ON c.id = e.contact_id
		WHERE e.campaign_id=$1 AND e.status='pending'
		ORDER BY e.id
	`
	rows, err := r.DB.QueryContext(ctx, query, campaignID)
	if err != nil {
		return nil, fmt.Errorf("pending recipients: %w", err)
	}
	defer rows.Close()

	var out []model.Recipient
	for rows.Next() {
		var rc model.Recipient
		c := &rc.Contact
		if err := rows.Scan(&rc.EmailID, &c.ID, &c.UserID, &c.Email, &c.FirstName, &c.LastName, &c.Company,
			&c.Tags, &c.CustomFields, &c.Status); err != nil {
			return nil, err
		}
		out = append(out, rc)
	}
	return out, rows.Err()
}

// ApplySendResults commits one batch of outcomes. Rows that already left pending are untouched.
func (r *EmailRepository) ApplySendResults(ctx context.Context, results []model.SendResult) error {
	if len(results) == 0 {
		return nil
	}
	return db.WithTx(ctx, r.DB, func(tx *sql.Tx) error {
		stmt, err := tx.PrepareContext(ctx, `
			UPDATE emails
			SET status=$2,
			    message_id=NULLIF($3, ''),
			    last_error=$4,
			    sent_at = CASE WHEN $2 = 'sent' THEN $5 ELSE sent_at END
			WHERE id=$1 AND status='pending'
		`)
		if err != nil {
			return fmt.Errorf("prepare send results: %w", err)
		}
		defer stmt.Close()

		for _, res := range results {
			if _, err := stmt.ExecContext(ctx, res.EmailID, string(res.Status()), res.MessageID, res.Error, res.At); err != nil {
				return fmt.Errorf("apply send result for email %d: %w", res.EmailID, err)
			}
		}
		return nil
	})
}

func (r *EmailRepository) GetByID(ctx context.Context, id int) (*model.Email, error) {
	query := `SELECT ` + emailColumns + ` FROM emails WHERE id=$1`
	e, err := scanEmail(r.DB.QueryRowContext(ctx, query, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.NewNotFound("email", id)
		}
		return nil, fmt.Errorf("get email: %w", err)
	}
	return e, nil
}

func (r *EmailRepository) GetByMessageID(ctx context.Context, messageID string) (*model.Email, error) {
	query := `SELECT ` + emailColumns + ` FROM emails WHERE message_id=$1`
	e, err := scanEmail(r.DB.QueryRowContext(ctx, query, messageID))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.NewNotFound("email", messageID)
		}
		return nil, fmt.Errorf("get email by message id: %w", err)
	}
	return e, nil
}

// RecordEvent appends the event and rolls it into the email, campaign and contact rows.
// The email row is locked for the duration, so concurrent deliveries for the same email
// serialize and only one of them sees the first occurrence.
func (r *EmailRepository) RecordEvent(ctx context.Context, ev *model.EmailEvent) (*model.EventOutcome, error) {
	cols, ok := eventColumnMap[ev.EventType]
	if !ok {
		return nil, appErrors.NewBadRequest("unknown event type %q", ev.EventType)
	}

	out := &model.EventOutcome{EmailID: ev.EmailID}
	err := db.WithTx(ctx, r.DB, func(tx *sql.Tx) error {
		lockQuery := fmt.Sprintf(`SELECT campaign_id, contact_id, %s IS NULL FROM emails WHERE id=$1 FOR UPDATE`, cols.timestamp)
		err := tx.QueryRowContext(ctx, lockQuery, ev.EmailID).Scan(&out.CampaignID, &out.ContactID, &out.First)
		if errors.Is(err, sql.ErrNoRows) {
			return appErrors.NewNotFound("email", ev.EmailID)
		}
		if err != nil {
			return fmt.Errorf("lock email: %w", err)
		}

		err = tx.QueryRowContext(ctx, `
			INSERT INTO email_events (email_id, event_type, metadata, ip_address, user_agent, created_at)
			VALUES ($1, $2, $3, $4, $5, $6)
			RETURNING id
		`, ev.EmailID, ev.EventType, ev.Metadata, ev.IPAddress, ev.UserAgent, ev.CreatedAt).Scan(&ev.ID)
		if err != nil {
			return fmt.Errorf("insert event: %w", err)
		}

		set := fmt.Sprintf("%[1]s = COALESCE(%[1]s, $2)", cols.timestamp)
		if cols.counter != "" {
			set += fmt.Sprintf(", %[1]s = %[1]s + 1", cols.counter)
		}
		if _, err := tx.ExecContext(ctx, `UPDATE emails SET `+set+` WHERE id=$1`, ev.EmailID, ev.CreatedAt); err != nil {
			return fmt.Errorf("update email: %w", err)
		}

		if !out.First {
			return nil
		}

		campaignQuery := fmt.Sprintf(`UPDATE campaigns SET %[1]s = %[1]s + 1 WHERE id=$1`, cols.campaignCounter)
		if _, err := tx.ExecContext(ctx, campaignQuery, out.CampaignID); err != nil {
			return fmt.Errorf("update campaign counters: %w", err)
		}

		if cols.contactStatus != "" {
			_, err := tx.ExecContext(ctx, `
				UPDATE contacts
				SET status=$2,
				    unsubscribed_at = CASE WHEN $2 = 'unsubscribed' THEN COALESCE(unsubscribed_at, $3) ELSE unsubscribed_at END,
				    updated_at=NOW()
				WHERE id=$1
			`, out.ContactID, string(cols.contactStatus), ev.CreatedAt)
			if err != nil {
				return fmt.Errorf("update contact status: %w", err)
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

var _ EmailRepositoryInterface = (*EmailRepository)(nil)
