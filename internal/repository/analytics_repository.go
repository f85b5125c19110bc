package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/lib/pq"

	"github.com/unclebandit/mailleopard-backend/internal/model"
)

type AnalyticsRepositoryInterface interface {
	CampaignsCreatedSince(ctx context.Context, userID int, since time.Time) (int, error)
	EmailTotalsSince(ctx context.Context, userID int, since time.Time) (model.EmailTotals, error)
	CampaignTotals(ctx context.Context, campaignID int) (model.EmailTotals, error)
	HourlyEngagement(ctx context.Context, campaignID int, start time.Time, hours int) (map[int]model.HourBucket, error)
	TopMetadata(ctx context.Context, campaignID int, eventType model.EventType, key string, limit int) ([]model.CountBucket, error)
	ContactEngagement(ctx context.Context, userID int, since time.Time, limit int) ([]model.ContactEngagementRow, error)
	DailyGrowth(ctx context.Context, userID int, since time.Time) (map[string]model.DailyGrowth, error)
	OwnedCampaigns(ctx context.Context, userID int, ids []int) ([]*model.Campaign, error)
}

type AnalyticsRepository struct {
	DB *sql.DB
}

func (r *AnalyticsRepository) CampaignsCreatedSince(ctx context.Context, userID int, since time.Time) (int, error) {
	var n int
	err := r.DB.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM campaigns WHERE user_id=$1 AND created_at >= $2`, userID, since).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("count campaigns: %w", err)
	}
	return n, nil
}

const totalsSelect = `
	SELECT COUNT(e.sent_at), COUNT(e.opened_at), COUNT(e.clicked_at), COUNT(e.unsubscribed_at), COUNT(e.bounced_at)
	FROM emails e
`

func scanTotals(row *sql.Row) (model.EmailTotals, error) {
	var t model.EmailTotals
	err := row.Scan(&t.Sent, &t.Opened, &t.Clicked, &t.Unsubscribed, &t.Bounced)
	return t, err
}

func (r *AnalyticsRepository) EmailTotalsSince(ctx context.Context, userID int, since time.Time) (model.EmailTotals, error) {
	t, err := scanTotals(r.DB.QueryRowContext(ctx, totalsSelect+`
		JOIN campaigns c ON c.id = e.campaign_id
		WHERE c.user_id=$1 AND e.sent_at >= $2
	`, userID, since))
	if err != nil {
		return t, fmt.Errorf("email totals: %w", err)
	}
	return t, nil
}

func (r *AnalyticsRepository) CampaignTotals(ctx context.Context, campaignID int) (model.EmailTotals, error) {
	t, err := scanTotals(r.DB.QueryRowContext(ctx, totalsSelect+` WHERE e.campaign_id=$1`, campaignID))
	if err != nil {
		return t, fmt.Errorf("campaign totals: %w", err)
	}
	return t, nil
}

// HourlyEngagement groups open and click events into hour offsets from start in one query.
// Hours without events are absent from the result.
func (r *AnalyticsRepository) HourlyEngagement(ctx context.Context, campaignID int, start time.Time, hours int) (map[int]model.HourBucket, error) {
	rows, err := r.DB.QueryContext(ctx, `
		SELECT FLOOR(EXTRACT(EPOCH FROM (ev.created_at - $2)) / 3600)::int AS hour,
		       COUNT(*) FILTER (WHERE ev.event_type = 'open'),
		       COUNT(*) FILTER (WHERE ev.event_type = 'click')
		FROM email_events ev
		JOIN emails e ON e.id = ev.email_id
		WHERE e.campaign_id=$1
		  AND ev.event_type IN ('open', 'click')
		  AND ev.created_at >= $2
		  AND ev.created_at < $2 + make_interval(hours => $3)
		GROUP BY hour
	`, campaignID, start, hours)
	if err != nil {
		return nil, fmt.Errorf("hourly engagement: %w", err)
	}
	defer rows.Close()

	out := map[int]model.HourBucket{}
	for rows.Next() {
		var b model.HourBucket
		if err := rows.Scan(&b.Hour, &b.Opens, &b.Clicks); err != nil {
			return nil, err
		}
		out[b.Hour] = b
	}
	return out, rows.Err()
}

// TopMetadata counts events of one type by a metadata field, most frequent first.
func (r *AnalyticsRepository) TopMetadata(ctx context.Context, campaignID int, eventType model.EventType, key string, limit int) ([]model.CountBucket, error) {
	rows, err := r.DB.QueryContext(ctx, `
		SELECT ev.metadata ->> $3 AS k, COUNT(*) AS n
		FROM email_events ev
		JOIN emails e ON e.id = ev.email_id
		WHERE e.campaign_id=$1 AND ev.event_type=$2 AND COALESCE(ev.metadata ->> $3, '') <> ''
		GROUP BY k
		ORDER BY n DESC, k
		LIMIT $4
	`, campaignID, string(eventType), key, limit)
	if err != nil {
		return nil, fmt.Errorf("top %s: %w", key, err)
	}
	defer rows.Close()

	out := []model.CountBucket{}
	for rows.Next() {
		var b model.CountBucket
		if err := rows.Scan(&b.Key, &b.Count); err != nil {
			return nil, err
		}
		out = append(out, b)
	}
	return out, rows.Err()
}

func (r *AnalyticsRepository) ContactEngagement(ctx context.Context, userID int, since time.Time, limit int) ([]model.ContactEngagementRow, error) {
	rows, err := r.DB.QueryContext(ctx, `
		SELECT c.id, c.email, c.first_name, c.last_name,
		       COUNT(e.id), COUNT(e.opened_at), COUNT(e.clicked_at)
		FROM contacts c
		JOIN emails e ON e.contact_id = c.id
		WHERE c.user_id=$1 AND e.sent_at >= $2
		GROUP BY c.id
		ORDER BY COUNT(e.opened_at) DESC, c.id
		LIMIT $3
	`, userID, since, limit)
	if err != nil {
		return nil, fmt.Errorf("contact engagement: %w", err)
	}
	defer rows.Close()

	var out []model.ContactEngagementRow
	for rows.Next() {
		var row model.ContactEngagementRow
		if err := rows.Scan(&row.ContactID, &row.Email, &row.FirstName, &row.LastName,
			&row.EmailsSent, &row.Opened, &row.Clicked); err != nil {
			return nil, err
		}
		out = append(out, row)
	}
	return out, rows.Err()
}

// DailyGrowth returns subscribe and unsubscribe counts keyed by YYYY-MM-DD (UTC).
func (r *AnalyticsRepository) DailyGrowth(ctx context.Context, userID int, since time.Time) (map[string]model.DailyGrowth, error) {
	rows, err := r.DB.QueryContext(ctx, `
		SELECT d::date::text,
		       COUNT(*) FILTER (WHERE kind = 'sub'),
		       COUNT(*) FILTER (WHERE kind = 'unsub')
		FROM (
			SELECT (subscribed_at AT TIME ZONE 'UTC')::date AS d, 'sub' AS kind
			FROM contacts WHERE user_id=$1 AND subscribed_at >= $2
			UNION ALL
			SELECT (unsubscribed_at AT TIME ZONE 'UTC')::date, 'unsub'
			FROM contacts WHERE user_id=$1 AND unsubscribed_at >= $2
		) AS changes
		GROUP BY d
	`, userID, since)
	if err != nil {
		return nil, fmt.Errorf("daily growth: %w", err)
	}
	defer rows.Close()

	out := map[string]model.DailyGrowth{}
	for rows.Next() {
		var g model.DailyGrowth
		if err := rows.Scan(&g.Date, &g.NewSubscribers, &g.Unsubscribes); err != nil {
			return nil, err
		}
		g.NetGrowth = g.NewSubscribers - g.Unsubscribes
		out[g.Date] = g
	}
	return out, rows.Err()
}

func (r *AnalyticsRepository) OwnedCampaigns(ctx context.Context, userID int, ids []int) ([]*model.Campaign, error) {
	rows, err := r.DB.QueryContext(ctx,
		`SELECT `+campaignColumns+` FROM campaigns WHERE user_id=$1 AND id = ANY($2) ORDER BY id`,
		userID, pq.Array(ids))
	if err != nil {
		return nil, fmt.Errorf("owned campaigns: %w", err)
	}
	defer rows.Close()

	var out []*model.Campaign
	for rows.Next() {
		c, err := scanCampaign(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

var _ AnalyticsRepositoryInterface = (*AnalyticsRepository)(nil)
