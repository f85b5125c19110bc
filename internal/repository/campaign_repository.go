package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/lib/pq"

	"github.com/unclebandit/mailleopard-backend/internal/db"
	appErrors "github.com/unclebandit/mailleopard-backend/internal/errors"
	"github.com/unclebandit/mailleopard-backend/internal/model"
)

type CampaignFilter struct {
	Offset int
	Limit  int
	Status model.CampaignStatus
	Search string
}

type CampaignRepositoryInterface interface {
	// Campaign CRUD
	CreateWithEmails(ctx context.Context, c *model.Campaign, contactIDs []int) error
	GetByID(ctx context.Context, id int) (*model.Campaign, error)
	GetForUser(ctx context.Context, userID, id int) (*model.Campaign, error)
	List(ctx context.Context, userID int, f CampaignFilter) ([]*model.Campaign, int, error)
	Update(ctx context.Context, c *model.Campaign) error
	Delete(ctx context.Context, userID, id int) error

	// Lifecycle
	TransitionStatus(ctx context.Context, id int, from []model.CampaignStatus, to model.CampaignStatus) (bool, error)
	ClaimDueScheduled(ctx context.Context, now time.Time) ([]int, error)
	ClaimStalledSending(ctx context.Context, idleSince time.Time) ([]int, error)
	GetCampaignStats(ctx context.Context, campaignID int) (map[string]int, error)
}

type CampaignRepository struct {
	DB *sql.DB
}

const campaignColumns = `id, user_id, name, subject, preview_text, content, from_name, from_email, reply_to,
	status, scheduled_at, sent_at, recipients_count, opens_count, clicks_count, unsubscribes_count,
	bounces_count, complaints_count, created_at, updated_at`

func scanCampaign(row rowScanner) (*model.Campaign, error) {
	var c model.Campaign
	err := row.Scan(
		&c.ID, &c.UserID, &c.Name, &c.Subject, &c.PreviewText, &c.Content, &c.FromName, &c.FromEmail, &c.ReplyTo,
		&c.Status, &c.ScheduledAt, &c.SentAt, &c.RecipientsCount, &c.OpensCount, &c.ClicksCount, &c.UnsubscribesCount,
		&c.BouncesCount, &c.ComplaintsCount, &c.CreatedAt, &c.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &c, nil
}

// ====================== Campaign CRUD ======================

// CreateWithEmails inserts the campaign and one pending email per contact in a single transaction.
func (r *CampaignRepository) CreateWithEmails(ctx context.Context, c *model.Campaign, contactIDs []int) error {
	c.CreatedAt = time.Now().UTC()
	if c.Status == "" {
		c.Status = model.CampaignDraft
	}
	c.RecipientsCount = len(contactIDs)

	return db.WithTx(ctx, r.DB, func(tx *sql.Tx) error {
		query := `
			INSERT INTO campaigns (user_id, name, subject, preview_text, content, from_name, from_email, reply_to,
			                       status, scheduled_at, recipients_count, created_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
			RETURNING id
		`
		err := tx.QueryRowContext(ctx, query,
			c.UserID, c.Name, c.Subject, c.PreviewText, c.Content, c.FromName, c.FromEmail, c.ReplyTo,
			c.Status, c.ScheduledAt, c.RecipientsCount, c.CreatedAt,
		).Scan(&c.ID)
		if err != nil {
			return fmt.Errorf("insert campaign: %w", err)
		}
		if len(contactIDs) == 0 {
			return nil
		}

		_, err = tx.ExecContext(ctx, `
			INSERT INTO emails (campaign_id, contact_id, status, created_at)
			SELECT $1, unnest($2::int[]), 'pending', $3
		`, c.ID, pq.Array(contactIDs), c.CreatedAt)
		if err != nil {
			return fmt.Errorf("insert emails: %w", err)
		}
		return nil
	})
}

func (r *CampaignRepository) GetByID(ctx context.Context, id int) (*model.Campaign, error) {
	query := `SELECT ` + campaignColumns + ` FROM campaigns WHERE id=$1`
	c, err := scanCampaign(r.DB.QueryRowContext(ctx, query, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.NewCampaignNotFound(id)
		}
		return nil, fmt.Errorf("get campaign: %w", err)
	}
	return c, nil
}

func (r *CampaignRepository) GetForUser(ctx context.Context, userID, id int) (*model.Campaign, error) {
	query := `SELECT ` + campaignColumns + ` FROM campaigns WHERE id=$1 AND user_id=$2`
	c, err := scanCampaign(r.DB.QueryRowContext(ctx, query, id, userID))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.NewCampaignNotFound(id)
		}
		return nil, fmt.Errorf("get campaign: %w", err)
	}
	return c, nil
}

func (r *CampaignRepository) List(ctx context.Context, userID int, f CampaignFilter) ([]*model.Campaign, int, error) {
	where := ` WHERE user_id=$1`
	args := []any{userID}
	argPos := 2

	if f.Status != "" {
		where += fmt.Sprintf(" AND status=$%d", argPos)
		args = append(args, f.Status)
		argPos++
	}
	if f.Search != "" {
		where += fmt.Sprintf(" AND name ILIKE $%d", argPos)
		args = append(args, "%"+f.Search+"%")
		argPos++
	}

	var total int
	if err := r.DB.QueryRowContext(ctx, `SELECT COUNT(*) FROM campaigns`+where, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count campaigns: %w", err)
	}

	query := `SELECT ` + campaignColumns + ` FROM campaigns` + where +
		fmt.Sprintf(" ORDER BY created_at DESC, id DESC LIMIT $%d OFFSET $%d", argPos, argPos+1)
	args = append(args, f.Limit, f.Offset)

	rows, err := r.DB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("list campaigns: %w", err)
	}
	defer rows.Close()

	campaigns := []*model.Campaign{}
	for rows.Next() {
		c, err := scanCampaign(rows)
		if err != nil {
			return nil, 0, err
		}
		campaigns = append(campaigns, c)
	}
	return campaigns, total, rows.Err()
}

func (r *CampaignRepository) Update(ctx context.Context, c *model.Campaign) error {
	query := `
		UPDATE campaigns
		SET name=$1, subject=$2, preview_text=$3, content=$4, from_name=$5, from_email=$6, reply_to=$7,
		    scheduled_at=$8, updated_at=NOW()
		WHERE id=$9 AND user_id=$10
	`
	res, err := r.DB.ExecContext(ctx, query,
		c.Name, c.Subject, c.PreviewText, c.Content, c.FromName, c.FromEmail, c.ReplyTo,
		c.ScheduledAt, c.ID, c.UserID,
	)
	if err != nil {
		return fmt.Errorf("update campaign: %w", err)
	}
	return expectOne(res, "campaign", c.ID)
}

func (r *CampaignRepository) Delete(ctx context.Context, userID, id int) error {
	res, err := r.DB.ExecContext(ctx, `DELETE FROM campaigns WHERE id=$1 AND user_id=$2`, id, userID)
	if err != nil {
		return fmt.Errorf("delete campaign: %w", err)
	}
	return expectOne(res, "campaign", id)
}

// ====================== Lifecycle ======================

// TransitionStatus moves the campaign to `to` only if its current status is one of `from`.
// It reports whether the row changed, so concurrent callers race on the database, not in memory.
func (r *CampaignRepository) TransitionStatus(ctx context.Context, id int, from []model.CampaignStatus, to model.CampaignStatus) (bool, error) {
	allowed := make(pq.StringArray, len(from))
	for i, s := range from {
		allowed[i] = string(s)
	}
	query := `
		UPDATE campaigns
		SET status=$2,
		    sent_at = CASE WHEN $2 = 'sent' THEN NOW() ELSE sent_at END,
		    updated_at=NOW()
		WHERE id=$1 AND status = ANY($3)
	`
	res, err := r.DB.ExecContext(ctx, query, id, string(to), allowed)
	if err != nil {
		return false, fmt.Errorf("transition campaign %d to %s: %w", id, to, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n == 1, nil
}

// ClaimDueScheduled flips every scheduled campaign whose time has come to sending
// and returns their ids.
func (r *CampaignRepository) ClaimDueScheduled(ctx context.Context, now time.Time) ([]int, error) {
	rows, err := r.DB.QueryContext(ctx, `
		UPDATE campaigns SET status='sending', updated_at=NOW()
		WHERE status='scheduled' AND scheduled_at <= $1
		RETURNING id
	`, now)
	if err != nil {
		return nil, fmt.Errorf("claim scheduled campaigns: %w", err)
	}
	return scanIDs(rows)
}

// ClaimStalledSending returns campaigns that have been in sending since before idleSince
// and touches updated_at, so each one is claimed at most once per idle window.
func (r *CampaignRepository) ClaimStalledSending(ctx context.Context, idleSince time.Time) ([]int, error) {
	rows, err := r.DB.QueryContext(ctx, `
		UPDATE campaigns SET updated_at=NOW()
		WHERE status='sending' AND COALESCE(updated_at, created_at) <= $1
		RETURNING id
	`, idleSince)
	if err != nil {
		return nil, fmt.Errorf("claim stalled campaigns: %w", err)
	}
	return scanIDs(rows)
}

func scanIDs(rows *sql.Rows) ([]int, error) {
	defer rows.Close()

	var ids []int
	for rows.Next() {
		var id int
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

func (r *CampaignRepository) GetCampaignStats(ctx context.Context, campaignID int) (map[string]int, error) {
	query := `SELECT status, COUNT(*) FROM emails WHERE campaign_id=$1 GROUP BY status`
	rows, err := r.DB.QueryContext(ctx, query, campaignID)
	if err != nil {
		return nil, fmt.Errorf("campaign stats: %w", err)
	}
	defer rows.Close()

	stats := map[string]int{"total": 0, "pending": 0, "sent": 0, "failed": 0}
	for rows.Next() {
		var status string
		var count int
		if err := rows.Scan(&status, &count); err != nil {
			return nil, err
		}
		stats[status] = count
		stats["total"] += count
	}
	return stats, rows.Err()
}

var _ CampaignRepositoryInterface = (*CampaignRepository)(nil)
