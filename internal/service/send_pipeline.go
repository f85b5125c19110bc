package service

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"go.uber.org/zap"

	appErrors "github.com/unclebandit/mailleopard-backend/internal/errors"
	"github.com/unclebandit/mailleopard-backend/internal/mailer"
	"github.com/unclebandit/mailleopard-backend/internal/metrics"
	"github.com/unclebandit/mailleopard-backend/internal/model"
	"github.com/unclebandit/mailleopard-backend/internal/repository"
)

const (
	PassSent        = "sent"
	PassPaused      = "paused"
	PassInterrupted = "interrupted"
	PassDeferred    = "deferred"
	PassSkipped     = "skipped"
	PassFailed      = "failed"
)

// ErrPassIncomplete is returned when a pass stops with emails still pending and the
// campaign still sending, so the job has to run again.
var ErrPassIncomplete = errors.New("send pass incomplete")

// PassResult summarizes one run of the pipeline over a campaign.
type PassResult struct {
	CampaignID int
	Outcome    string
	Visited    int
	Sent       int
	Failed     int
}

// SendPipeline delivers the pending emails of a sending campaign.
type SendPipeline struct {
	CampaignRepo    repository.CampaignRepositoryInterface
	EmailRepo       repository.EmailRepositoryInterface
	Sender          mailer.Sender
	Log             *zap.Logger
	BatchSize       int
	SendTimeout     time.Duration
	TrackingBaseURL string
	TrackingEnabled bool
	Now             func() time.Time
}

func (p *SendPipeline) now() time.Time {
	if p.Now != nil {
		return p.Now()
	}
	return time.Now().UTC()
}

// Run makes one pass over the campaign's pending emails. Each pending row is sent at
// most once and ends the pass as sent or failed. A pause stops the pass cleanly; a
// cancelled context or an unreachable provider stops it with ErrPassIncomplete. Either
// way the rest stay pending for a later pass.
func (p *SendPipeline) Run(ctx context.Context, campaignID int) (*PassResult, error) {
	start := time.Now()
	res := &PassResult{CampaignID: campaignID}
	log := p.Log.With(zap.Int("campaign_id", campaignID))

	c, err := p.CampaignRepo.GetByID(ctx, campaignID)
	if err != nil {
		return res, err
	}
	if c.Status != model.CampaignSending {
		log.Info("campaign not in sending status, skipping pass", zap.String("status", string(c.Status)))
		res.Outcome = PassSkipped
		return res, nil
	}

	recipients, err := p.EmailRepo.PendingRecipients(ctx, campaignID)
	if err != nil {
		return p.fail(ctx, res, log, start, fmt.Errorf("load recipients: %w", err))
	}
	log.Info("send pass started", zap.Int("pending", len(recipients)))

	batchSize := p.BatchSize
	if batchSize < 1 {
		batchSize = 50
	}
	batch := make([]model.SendResult, 0, batchSize)

	// Results are committed even when ctx is already cancelled.
	flush := func() error {
		if len(batch) == 0 {
			return nil
		}
		if err := p.EmailRepo.ApplySendResults(context.WithoutCancel(ctx), batch); err != nil {
			return fmt.Errorf("commit send results: %w", err)
		}
		for _, r := range batch {
			if r.Status() == model.EmailSent {
				res.Sent++
			} else {
				res.Failed++
			}
		}
		batch = batch[:0]
		return nil
	}

	var stopped error
	for _, r := range recipients {
		if ctx.Err() != nil {
			res.Outcome, stopped = PassInterrupted, ctx.Err()
			break
		}
		result, err := p.sendOne(ctx, c, r)
		if err != nil && ctx.Err() != nil {
			// cancelled mid-send; leave the row pending
			res.Outcome, stopped = PassInterrupted, ctx.Err()
			break
		}
		if errors.Is(err, mailer.ErrUnavailable) {
			// the provider was never asked; leave the row pending
			res.Outcome, stopped = PassDeferred, err
			break
		}
		batch = append(batch, result)
		res.Visited++

		if len(batch) < batchSize {
			continue
		}
		if err := flush(); err != nil {
			return p.fail(ctx, res, log, start, err)
		}
		current, err := p.CampaignRepo.GetByID(ctx, campaignID)
		if err != nil {
			if ctx.Err() != nil {
				res.Outcome, stopped = PassInterrupted, ctx.Err()
				break
			}
			return p.fail(ctx, res, log, start, fmt.Errorf("reload campaign: %w", err))
		}
		if current.Status == model.CampaignPaused {
			res.Outcome = PassPaused
			break
		}
	}

	if err := flush(); err != nil {
		return p.fail(ctx, res, log, start, err)
	}

	if stopped != nil {
		p.finish(res, log, start)
		return res, fmt.Errorf("%w: %w", ErrPassIncomplete, stopped)
	}

	if res.Outcome == "" {
		done, err := p.CampaignRepo.TransitionStatus(context.WithoutCancel(ctx), campaignID,
			[]model.CampaignStatus{model.CampaignSending}, model.CampaignSent)
		if err != nil {
			return p.fail(ctx, res, log, start, fmt.Errorf("mark sent: %w", err))
		}
		res.Outcome = PassSent
		if !done {
			// paused between the last batch and the end of the pass
			res.Outcome = PassPaused
		}
	}

	p.finish(res, log, start)
	return res, nil
}

// Sending reports whether the campaign is in the sending state, i.e. whether a pass has work.
func (p *SendPipeline) Sending(ctx context.Context, campaignID int) (bool, error) {
	c, err := p.CampaignRepo.GetByID(ctx, campaignID)
	if appErrors.IsNotFound(err) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return c.Status == model.CampaignSending, nil
}

func (p *SendPipeline) finish(res *PassResult, log *zap.Logger, start time.Time) {
	metrics.IncrementEmailsSent(string(model.EmailSent), res.Sent)
	metrics.IncrementEmailsSent(string(model.EmailFailed), res.Failed)
	metrics.RecordSendPass(res.Outcome, time.Since(start))
	log.Info("send pass finished",
		zap.String("outcome", res.Outcome),
		zap.Int("sent", res.Sent),
		zap.Int("failed", res.Failed),
		zap.Duration("took", time.Since(start)),
	)
}

func (p *SendPipeline) fail(ctx context.Context, res *PassResult, log *zap.Logger, start time.Time, cause error) (*PassResult, error) {
	res.Outcome = PassFailed
	log.Error("send pass failed", zap.Error(cause))
	if _, err := p.CampaignRepo.TransitionStatus(context.WithoutCancel(ctx), res.CampaignID,
		[]model.CampaignStatus{model.CampaignSending}, model.CampaignFailed); err != nil {
		log.Error("failed to mark campaign failed", zap.Error(err))
	}
	metrics.RecordSendPass(res.Outcome, time.Since(start))
	return res, cause
}

func (p *SendPipeline) sendOne(ctx context.Context, c *model.Campaign, r model.Recipient) (model.SendResult, error) {
	contact := &r.Contact
	html := Personalize(c.Content, contact)
	headers := map[string]string{
		"X-Campaign-ID": strconv.Itoa(c.ID),
		"X-Email-ID":    strconv.Itoa(r.EmailID),
	}
	if p.TrackingEnabled && p.TrackingBaseURL != "" {
		html = AddTracking(html, p.TrackingBaseURL, r.EmailID)
		headers["List-Unsubscribe"] = "<" + UnsubscribeURL(p.TrackingBaseURL, r.EmailID) + ">"
	}

	msg := mailer.Message{
		FromName:  c.FromName,
		FromEmail: c.FromEmail,
		ReplyTo:   c.ReplyTo,
		ToName:    contact.FullName(),
		ToEmail:   contact.Email,
		Subject:   Personalize(c.Subject, contact),
		HTML:      html,
		Headers:   headers,
		CustomArgs: map[string]string{
			"email_id":    strconv.Itoa(r.EmailID),
			"campaign_id": strconv.Itoa(c.ID),
		},
	}

	sendCtx := ctx
	if p.SendTimeout > 0 {
		var cancel context.CancelFunc
		sendCtx, cancel = context.WithTimeout(ctx, p.SendTimeout)
		defer cancel()
	}

	result := model.SendResult{EmailID: r.EmailID, At: p.now()}
	messageID, err := p.Sender.Send(sendCtx, msg)
	if err != nil {
		result.Error = err.Error()
		p.Log.Warn("email send failed",
			zap.Int("campaign_id", c.ID),
			zap.Int("email_id", r.EmailID),
			zap.Error(err),
		)
		return result, err
	}
	result.MessageID = messageID
	return result, nil
}
