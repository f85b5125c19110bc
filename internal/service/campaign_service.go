// internal/service/campaign_service.go
package service

import (
	"context"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/unclebandit/mailleopard-backend/internal/config"
	appErrors "github.com/unclebandit/mailleopard-backend/internal/errors"
	"github.com/unclebandit/mailleopard-backend/internal/mailer"
	"github.com/unclebandit/mailleopard-backend/internal/model"
	"github.com/unclebandit/mailleopard-backend/internal/queue"
	"github.com/unclebandit/mailleopard-backend/internal/repository"
	"github.com/unclebandit/mailleopard-backend/internal/validation"
)

type CampaignService struct {
	CampaignRepo repository.CampaignRepositoryInterface
	ContactRepo  repository.ContactRepositoryInterface
	TemplateRepo repository.TemplateRepositoryInterface
	UserRepo     repository.UserRepositoryInterface
	Queue        queue.Queue
	Sender       mailer.Sender
	Plans        config.Plans
	Log          *zap.Logger
	Now          func() time.Time
}

type CampaignInput struct {
	Name        string     `json:"name" validate:"required,max=255"`
	Subject     string     `json:"subject" validate:"max=500"`
	PreviewText string     `json:"preview_text" validate:"max=255"`
	Content     string     `json:"content"`
	TemplateID  *int       `json:"template_id"`
	FromName    string     `json:"from_name" validate:"max=255"`
	FromEmail   string     `json:"from_email" validate:"omitempty,email"`
	ReplyTo     string     `json:"reply_to" validate:"omitempty,email"`
	ContactIDs  []int      `json:"contact_ids"`
	Tags        []string   `json:"tags"`
	ScheduledAt *time.Time `json:"scheduled_at"`
}

type CampaignUpdate struct {
	Name        *string    `json:"name" validate:"omitempty,max=255"`
	Subject     *string    `json:"subject" validate:"omitempty,max=500"`
	PreviewText *string    `json:"preview_text" validate:"omitempty,max=255"`
	Content     *string    `json:"content"`
	FromName    *string    `json:"from_name" validate:"omitempty,max=255"`
	FromEmail   *string    `json:"from_email" validate:"omitempty,email"`
	ReplyTo     *string    `json:"reply_to" validate:"omitempty,email"`
	ScheduledAt *time.Time `json:"scheduled_at"`
}

type CampaignQuery struct {
	Skip   int
	Limit  int
	Status model.CampaignStatus
	Search string
}

// CampaignDetails is a campaign with per-status email counts.
type CampaignDetails struct {
	*model.Campaign
	Stats map[string]int `json:"stats"`
}

type SendCampaignResult struct {
	CampaignID int                  `json:"campaign_id"`
	Status     model.CampaignStatus `json:"status"`
	Message    string               `json:"message"`
}

type Preview struct {
	Subject string `json:"subject"`
	Content string `json:"content"`
}

func (s *CampaignService) now() time.Time {
	if s.Now != nil {
		return s.Now()
	}
	return time.Now().UTC()
}

// Build resolves the recipient snapshot and stores the campaign with one pending
// email per recipient.
func (s *CampaignService) Build(ctx context.Context, userID int, in CampaignInput) (*model.Campaign, error) {
	if err := validation.Struct(in); err != nil {
		return nil, err
	}
	user, err := s.UserRepo.GetByID(ctx, userID)
	if err != nil {
		return nil, err
	}

	if in.TemplateID != nil {
		tpl, err := s.TemplateRepo.GetVisible(ctx, userID, *in.TemplateID)
		if err != nil {
			return nil, err
		}
		if strings.TrimSpace(in.Subject) == "" {
			in.Subject = tpl.Subject
		}
		if strings.TrimSpace(in.Content) == "" {
			in.Content = tpl.Content
		}
	}
	if strings.TrimSpace(in.Subject) == "" {
		return nil, appErrors.NewBadRequest("subject is required")
	}
	if strings.TrimSpace(in.Content) == "" {
		return nil, appErrors.NewBadRequest("content is required")
	}

	recipients, err := s.ContactRepo.ListActive(ctx, userID, in.ContactIDs, in.Tags)
	if err != nil {
		return nil, err
	}
	if !s.Plans.WithinLimit(user.Plan, len(recipients)) {
		return nil, appErrors.NewForbidden(
			"campaign has %d recipients, exceeding your %s plan's limit of %d",
			len(recipients), user.Plan, s.Plans.Limit(user.Plan))
	}

	c := &model.Campaign{
		UserID:      userID,
		Name:        in.Name,
		Subject:     in.Subject,
		PreviewText: in.PreviewText,
		Content:     in.Content,
		FromName:    orDefault(in.FromName, user.FullName),
		FromEmail:   orDefault(in.FromEmail, user.Email),
		ReplyTo:     in.ReplyTo,
		Status:      model.CampaignDraft,
		ScheduledAt: in.ScheduledAt,
	}
	ids := make([]int, len(recipients))
	for i, r := range recipients {
		ids[i] = r.ID
	}
	if err := s.CampaignRepo.CreateWithEmails(ctx, c, ids); err != nil {
		return nil, err
	}

	if in.TemplateID != nil {
		if err := s.TemplateRepo.IncrementUsage(ctx, *in.TemplateID); err != nil {
			s.Log.Warn("failed to bump template usage", zap.Int("template_id", *in.TemplateID), zap.Error(err))
		}
	}

	s.Log.Info("campaign created",
		zap.Int("campaign_id", c.ID),
		zap.Int("user_id", userID),
		zap.Int("recipients", c.RecipientsCount),
	)
	return c, nil
}

func (s *CampaignService) List(ctx context.Context, userID int, q CampaignQuery) (*Page[*model.Campaign], error) {
	skip, limit := normalizePage(q.Skip, q.Limit)
	items, total, err := s.CampaignRepo.List(ctx, userID, repository.CampaignFilter{
		Offset: skip,
		Limit:  limit,
		Status: q.Status,
		Search: q.Search,
	})
	if err != nil {
		return nil, err
	}
	return newPage(items, total, skip, limit), nil
}

func (s *CampaignService) Get(ctx context.Context, userID, id int) (*model.Campaign, error) {
	return s.CampaignRepo.GetForUser(ctx, userID, id)
}

func (s *CampaignService) Details(ctx context.Context, userID, id int) (*CampaignDetails, error) {
	c, err := s.CampaignRepo.GetForUser(ctx, userID, id)
	if err != nil {
		return nil, err
	}
	stats, err := s.CampaignRepo.GetCampaignStats(ctx, id)
	if err != nil {
		return nil, err
	}
	return &CampaignDetails{Campaign: c, Stats: stats}, nil
}

func (s *CampaignService) Update(ctx context.Context, userID, id int, in CampaignUpdate) (*model.Campaign, error) {
	if err := validation.Struct(in); err != nil {
		return nil, err
	}
	c, err := s.CampaignRepo.GetForUser(ctx, userID, id)
	if err != nil {
		return nil, err
	}
	if c.Status.Locked() {
		return nil, appErrors.NewBadRequest("cannot update a campaign that is %s", c.Status)
	}

	if in.Name != nil {
		c.Name = *in.Name
	}
	if in.Subject != nil {
		c.Subject = *in.Subject
	}
	if in.PreviewText != nil {
		c.PreviewText = *in.PreviewText
	}
	if in.Content != nil {
		c.Content = *in.Content
	}
	if in.FromName != nil {
		c.FromName = *in.FromName
	}
	if in.FromEmail != nil {
		c.FromEmail = *in.FromEmail
	}
	if in.ReplyTo != nil {
		c.ReplyTo = *in.ReplyTo
	}
	if in.ScheduledAt != nil {
		c.ScheduledAt = in.ScheduledAt
	}

	if err := s.CampaignRepo.Update(ctx, c); err != nil {
		return nil, err
	}
	return c, nil
}

func (s *CampaignService) Delete(ctx context.Context, userID, id int) error {
	c, err := s.CampaignRepo.GetForUser(ctx, userID, id)
	if err != nil {
		return err
	}
	if c.Status.Locked() {
		return appErrors.NewBadRequest("cannot delete a campaign that is %s", c.Status)
	}
	return s.CampaignRepo.Delete(ctx, userID, id)
}

// Duplicate creates a new draft with the same content and no recipients.
func (s *CampaignService) Duplicate(ctx context.Context, userID, id int) (*model.Campaign, error) {
	src, err := s.CampaignRepo.GetForUser(ctx, userID, id)
	if err != nil {
		return nil, err
	}
	c := &model.Campaign{
		UserID:      userID,
		Name:        src.Name + " (Copy)",
		Subject:     src.Subject,
		PreviewText: src.PreviewText,
		Content:     src.Content,
		FromName:    src.FromName,
		FromEmail:   src.FromEmail,
		ReplyTo:     src.ReplyTo,
		Status:      model.CampaignDraft,
	}
	if err := s.CampaignRepo.CreateWithEmails(ctx, c, nil); err != nil {
		return nil, err
	}
	return c, nil
}

// Send moves a draft to sending (or scheduled when scheduled_at is in the future) and
// enqueues it. The status change is a compare-and-set, so a second call is rejected.
func (s *CampaignService) Send(ctx context.Context, userID, id int) (*SendCampaignResult, error) {
	c, err := s.CampaignRepo.GetForUser(ctx, userID, id)
	if err != nil {
		return nil, err
	}
	if c.Status != model.CampaignDraft {
		return nil, appErrors.NewBadRequest("campaign must be in draft status to send")
	}

	target := model.CampaignSending
	if c.ScheduledAt != nil && c.ScheduledAt.After(s.now()) {
		target = model.CampaignScheduled
	}
	moved, err := s.CampaignRepo.TransitionStatus(ctx, id, []model.CampaignStatus{model.CampaignDraft}, target)
	if err != nil {
		return nil, err
	}
	if !moved {
		return nil, appErrors.NewBadRequest("campaign must be in draft status to send")
	}

	if target == model.CampaignScheduled {
		s.Log.Info("campaign scheduled", zap.Int("campaign_id", id), zap.Timep("scheduled_at", c.ScheduledAt))
		return &SendCampaignResult{CampaignID: id, Status: target, Message: "Campaign scheduled"}, nil
	}

	if err := s.enqueue(ctx, id, model.CampaignDraft); err != nil {
		return nil, err
	}
	return &SendCampaignResult{CampaignID: id, Status: target, Message: "Campaign queued for sending"}, nil
}

func (s *CampaignService) Pause(ctx context.Context, userID, id int) (*SendCampaignResult, error) {
	if _, err := s.CampaignRepo.GetForUser(ctx, userID, id); err != nil {
		return nil, err
	}
	moved, err := s.CampaignRepo.TransitionStatus(ctx, id,
		[]model.CampaignStatus{model.CampaignSending}, model.CampaignPaused)
	if err != nil {
		return nil, err
	}
	if !moved {
		return nil, appErrors.NewBadRequest("only a sending campaign can be paused")
	}
	s.Log.Info("campaign paused", zap.Int("campaign_id", id))
	return &SendCampaignResult{CampaignID: id, Status: model.CampaignPaused, Message: "Campaign paused"}, nil
}

func (s *CampaignService) Resume(ctx context.Context, userID, id int) (*SendCampaignResult, error) {
	if _, err := s.CampaignRepo.GetForUser(ctx, userID, id); err != nil {
		return nil, err
	}
	moved, err := s.CampaignRepo.TransitionStatus(ctx, id,
		[]model.CampaignStatus{model.CampaignPaused}, model.CampaignSending)
	if err != nil {
		return nil, err
	}
	if !moved {
		return nil, appErrors.NewBadRequest("only a paused campaign can be resumed")
	}
	if err := s.enqueue(ctx, id, model.CampaignPaused); err != nil {
		return nil, err
	}
	return &SendCampaignResult{CampaignID: id, Status: model.CampaignSending, Message: "Campaign resumed"}, nil
}

// enqueue publishes a send job, putting the campaign back to revertTo when the queue refuses it.
func (s *CampaignService) enqueue(ctx context.Context, id int, revertTo model.CampaignStatus) error {
	err := s.Queue.Publish(ctx, queue.TopicCampaignSends, queue.SendJob{CampaignID: id})
	if err == nil {
		s.Log.Info("campaign queued for sending", zap.Int("campaign_id", id))
		return nil
	}
	s.Log.Error("failed to enqueue campaign", zap.Int("campaign_id", id), zap.Error(err))
	if _, rerr := s.CampaignRepo.TransitionStatus(ctx, id,
		[]model.CampaignStatus{model.CampaignSending}, revertTo); rerr != nil {
		s.Log.Error("failed to revert campaign status", zap.Int("campaign_id", id), zap.Error(rerr))
	}
	return err
}

// testContact stands in for a real recipient in test sends.
var testContact = model.Contact{
	FirstName: "Test",
	LastName:  "User",
	Company:   "Test Company",
}

const testBanner = `<div style="background:#fff3cd;border:1px solid #ffc107;padding:10px;margin-bottom:20px;text-align:center;">` +
	`<strong>TEST EMAIL</strong> - This is a test email for campaign preview</div>`

// SendTest sends the campaign once to address, personalized for a dummy contact.
func (s *CampaignService) SendTest(ctx context.Context, userID, id int, address string) error {
	address = normalizeEmail(address)
	if err := validation.Var("test_email", address, "required,email"); err != nil {
		return err
	}
	c, err := s.CampaignRepo.GetForUser(ctx, userID, id)
	if err != nil {
		return err
	}

	contact := testContact
	contact.Email = address
	msg := mailer.Message{
		FromName:  c.FromName,
		FromEmail: c.FromEmail,
		ReplyTo:   c.ReplyTo,
		ToName:    contact.FullName(),
		ToEmail:   address,
		Subject:   "[TEST] " + Personalize(c.Subject, &contact),
		HTML:      testBanner + Personalize(c.Content, &contact),
	}
	messageID, err := s.Sender.Send(ctx, msg)
	if err != nil {
		s.Log.Error("test email failed", zap.Int("campaign_id", id), zap.Error(err))
		return err
	}
	s.Log.Info("test email sent", zap.Int("campaign_id", id), zap.String("message_id", messageID))
	return nil
}

// RenderPreview personalizes the campaign (or an override template) for one of the owner's contacts.
func (s *CampaignService) RenderPreview(ctx context.Context, userID, campaignID, contactID int, overrideTemplate *string) (*Preview, error) {
	campaign, err := s.CampaignRepo.GetForUser(ctx, userID, campaignID)
	if err != nil {
		return nil, err
	}
	contact, err := s.ContactRepo.GetByID(ctx, userID, contactID)
	if err != nil {
		return nil, err
	}

	template := campaign.Content
	if overrideTemplate != nil && strings.TrimSpace(*overrideTemplate) != "" {
		template = *overrideTemplate
	}
	if strings.TrimSpace(template) == "" {
		return nil, appErrors.NewBadRequest("template cannot be empty")
	}

	return &Preview{
		Subject: Personalize(campaign.Subject, contact),
		Content: Personalize(template, contact),
	}, nil
}
