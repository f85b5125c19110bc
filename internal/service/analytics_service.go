package service

import (
	"context"
	"math"
	"time"

	"go.uber.org/zap"

	appErrors "github.com/unclebandit/mailleopard-backend/internal/errors"
	"github.com/unclebandit/mailleopard-backend/internal/model"
	"github.com/unclebandit/mailleopard-backend/internal/repository"
	"github.com/unclebandit/mailleopard-backend/internal/validation"
)

const (
	engagementHours  = 48
	topLinksLimit    = 5
	topLocationLimit = 10
	topContactsLimit = 50
	deviceLimit      = 20
)

type AnalyticsService struct {
	AnalyticsRepo repository.AnalyticsRepositoryInterface
	CampaignRepo  repository.CampaignRepositoryInterface
	ContactRepo   repository.ContactRepositoryInterface
	Log           *zap.Logger
	Now           func() time.Time
}

type Overview struct {
	TotalCampaigns    int     `json:"total_campaigns"`
	TotalContacts     int     `json:"total_contacts"`
	TotalSent         int     `json:"total_sent"`
	AvgOpenRate       float64 `json:"avg_open_rate"`
	AvgClickRate      float64 `json:"avg_click_rate"`
	TotalUnsubscribes int     `json:"total_unsubscribes"`
	TotalBounces      int     `json:"total_bounces"`
}

type LinkStat struct {
	URL    string `json:"url"`
	Clicks int    `json:"clicks"`
}

type CampaignAnalytics struct {
	CampaignID         int                `json:"campaign_id"`
	SentCount          int                `json:"sent_count"`
	OpenRate           float64            `json:"open_rate"`
	ClickRate          float64            `json:"click_rate"`
	UnsubscribeRate    float64            `json:"unsubscribe_rate"`
	BounceRate         float64            `json:"bounce_rate"`
	EngagementOverTime []model.HourBucket `json:"engagement_over_time"`
	TopLinks           []LinkStat         `json:"top_links"`
	DeviceStats        map[string]int     `json:"device_stats"`
	LocationStats      map[string]int     `json:"location_stats"`
}

type ContactEngagement struct {
	ContactID       int     `json:"contact_id"`
	Email           string  `json:"email"`
	Name            string  `json:"name"`
	Opens           int     `json:"opens"`
	Clicks          int     `json:"clicks"`
	Received        int     `json:"received"`
	EngagementScore float64 `json:"engagement_score"`
}

type GrowthSummary struct {
	TotalNewSubscribers int     `json:"total_new_subscribers"`
	TotalUnsubscribes   int     `json:"total_unsubscribes"`
	NetGrowth           int     `json:"net_growth"`
	GrowthRate          float64 `json:"growth_rate"`
}

type Growth struct {
	GrowthData []model.DailyGrowth `json:"growth_data"`
	Summary    GrowthSummary       `json:"summary"`
}

type CampaignComparison struct {
	CampaignID   int        `json:"campaign_id"`
	CampaignName string     `json:"campaign_name"`
	SentAt       *time.Time `json:"sent_at"`
	Recipients   int        `json:"recipients"`
	OpenRate     float64    `json:"open_rate"`
	ClickRate    float64    `json:"click_rate"`
}

func (s *AnalyticsService) now() time.Time {
	if s.Now != nil {
		return s.Now()
	}
	return time.Now().UTC()
}

func validateDays(days int) error {
	return validation.Var("days", days, "gte=1,lte=365")
}

// rate is part/whole as a percentage rounded to 2 decimals; nothing sent means 0.
func rate(part, whole int) float64 {
	if whole <= 0 {
		return 0
	}
	return round2(float64(part) / float64(whole) * 100)
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}

func (s *AnalyticsService) Overview(ctx context.Context, userID, days int) (*Overview, error) {
	if err := validateDays(days); err != nil {
		return nil, err
	}
	since := s.now().AddDate(0, 0, -days)

	campaigns, err := s.AnalyticsRepo.CampaignsCreatedSince(ctx, userID, since)
	if err != nil {
		return nil, err
	}
	contacts, err := s.ContactRepo.Count(ctx, userID)
	if err != nil {
		return nil, err
	}
	totals, err := s.AnalyticsRepo.EmailTotalsSince(ctx, userID, since)
	if err != nil {
		return nil, err
	}

	return &Overview{
		TotalCampaigns:    campaigns,
		TotalContacts:     contacts,
		TotalSent:         totals.Sent,
		AvgOpenRate:       rate(totals.Opened, totals.Sent),
		AvgClickRate:      rate(totals.Clicked, totals.Sent),
		TotalUnsubscribes: totals.Unsubscribed,
		TotalBounces:      totals.Bounced,
	}, nil
}

func (s *AnalyticsService) Campaign(ctx context.Context, userID, campaignID int) (*CampaignAnalytics, error) {
	c, err := s.CampaignRepo.GetForUser(ctx, userID, campaignID)
	if err != nil {
		return nil, err
	}
	totals, err := s.AnalyticsRepo.CampaignTotals(ctx, campaignID)
	if err != nil {
		return nil, err
	}

	out := &CampaignAnalytics{
		CampaignID:         campaignID,
		SentCount:          totals.Sent,
		OpenRate:           rate(totals.Opened, totals.Sent),
		ClickRate:          rate(totals.Clicked, totals.Sent),
		UnsubscribeRate:    rate(totals.Unsubscribed, totals.Sent),
		BounceRate:         rate(totals.Bounced, totals.Sent),
		EngagementOverTime: []model.HourBucket{},
		TopLinks:           []LinkStat{},
		DeviceStats:        map[string]int{},
		LocationStats:      map[string]int{},
	}

	if c.SentAt != nil {
		start := c.SentAt.UTC()
		buckets, err := s.AnalyticsRepo.HourlyEngagement(ctx, campaignID, start, engagementHours)
		if err != nil {
			return nil, err
		}
		out.EngagementOverTime = fillHours(buckets, start, engagementHours)
	}

	links, err := s.AnalyticsRepo.TopMetadata(ctx, campaignID, model.EventClick, "url", topLinksLimit)
	if err != nil {
		return nil, err
	}
	for _, l := range links {
		out.TopLinks = append(out.TopLinks, LinkStat{URL: l.Key, Clicks: l.Count})
	}

	devices, err := s.AnalyticsRepo.TopMetadata(ctx, campaignID, model.EventOpen, "device_type", deviceLimit)
	if err != nil {
		return nil, err
	}
	for _, d := range devices {
		out.DeviceStats[d.Key] = d.Count
	}

	locations, err := s.AnalyticsRepo.TopMetadata(ctx, campaignID, model.EventOpen, "country", topLocationLimit)
	if err != nil {
		return nil, err
	}
	for _, l := range locations {
		out.LocationStats[l.Key] = l.Count
	}
	return out, nil
}

// fillHours expands the sparse hour map into exactly n consecutive buckets.
func fillHours(buckets map[int]model.HourBucket, start time.Time, n int) []model.HourBucket {
	out := make([]model.HourBucket, n)
	for h := 0; h < n; h++ {
		b := buckets[h]
		b.Hour = h
		b.Start = start.Add(time.Duration(h) * time.Hour)
		out[h] = b
	}
	return out
}

func (s *AnalyticsService) ContactEngagement(ctx context.Context, userID, days int) ([]ContactEngagement, error) {
	if err := validateDays(days); err != nil {
		return nil, err
	}
	rows, err := s.AnalyticsRepo.ContactEngagement(ctx, userID, s.now().AddDate(0, 0, -days), topContactsLimit)
	if err != nil {
		return nil, err
	}

	out := make([]ContactEngagement, 0, len(rows))
	for _, r := range rows {
		score := 0.0
		if r.EmailsSent > 0 {
			openRate := float64(r.Opened) / float64(r.EmailsSent) * 100
			clickRate := float64(r.Clicked) / float64(r.EmailsSent) * 100
			score = openRate*0.6 + clickRate*0.4
		}
		c := model.Contact{FirstName: r.FirstName, LastName: r.LastName}
		out = append(out, ContactEngagement{
			ContactID:       r.ContactID,
			Email:           r.Email,
			Name:            c.FullName(),
			Opens:           r.Opened,
			Clicks:          r.Clicked,
			Received:        r.EmailsSent,
			EngagementScore: round2(score),
		})
	}
	return out, nil
}

// Growth reports one row per UTC day for the last days days, oldest first, today included.
func (s *AnalyticsService) Growth(ctx context.Context, userID, days int) (*Growth, error) {
	if err := validateDays(days); err != nil {
		return nil, err
	}
	now := s.now().UTC()
	today := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)
	first := today.AddDate(0, 0, -(days - 1))

	byDay, err := s.AnalyticsRepo.DailyGrowth(ctx, userID, first)
	if err != nil {
		return nil, err
	}

	g := &Growth{GrowthData: make([]model.DailyGrowth, 0, days)}
	for d := 0; d < days; d++ {
		date := first.AddDate(0, 0, d).Format("2006-01-02")
		row := byDay[date]
		row.Date = date
		row.NetGrowth = row.NewSubscribers - row.Unsubscribes
		g.GrowthData = append(g.GrowthData, row)
		g.Summary.TotalNewSubscribers += row.NewSubscribers
		g.Summary.TotalUnsubscribes += row.Unsubscribes
	}
	g.Summary.NetGrowth = g.Summary.TotalNewSubscribers - g.Summary.TotalUnsubscribes
	g.Summary.GrowthRate = round2(float64(g.Summary.NetGrowth) / float64(days))
	return g, nil
}

// Compare fails with NotFound unless every id is a campaign of userID.
func (s *AnalyticsService) Compare(ctx context.Context, userID int, ids []int) ([]CampaignComparison, error) {
	if len(ids) == 0 {
		return nil, appErrors.NewBadRequest("campaign_ids is required")
	}
	unique := make([]int, 0, len(ids))
	seen := map[int]struct{}{}
	for _, id := range ids {
		if _, ok := seen[id]; !ok {
			seen[id] = struct{}{}
			unique = append(unique, id)
		}
	}

	campaigns, err := s.AnalyticsRepo.OwnedCampaigns(ctx, userID, unique)
	if err != nil {
		return nil, err
	}
	if len(campaigns) != len(unique) {
		return nil, appErrors.NewNotFound("one or more campaigns", nil)
	}

	out := make([]CampaignComparison, 0, len(campaigns))
	for _, c := range campaigns {
		totals, err := s.AnalyticsRepo.CampaignTotals(ctx, c.ID)
		if err != nil {
			return nil, err
		}
		out = append(out, CampaignComparison{
			CampaignID:   c.ID,
			CampaignName: c.Name,
			SentAt:       c.SentAt,
			Recipients:   totals.Sent,
			OpenRate:     rate(totals.Opened, totals.Sent),
			ClickRate:    rate(totals.Clicked, totals.Sent),
		})
	}
	return out, nil
}
