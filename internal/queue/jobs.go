package queue

import (
	"context"
	"encoding/json"

	"go.uber.org/zap"
)

const TopicCampaignSends = "campaign_sends"

// SendJob asks a worker to run a send pass for one campaign.
type SendJob struct {
	CampaignID int `json:"campaign_id"`
}

type CampaignRunner interface {
	RunCampaign(ctx context.Context, campaignID int) error
}

func StartCampaignSendSubscriber(q Queue, runner CampaignRunner, log *zap.Logger) error {
	return q.Subscribe(TopicCampaignSends, func(ctx context.Context, payload []byte) error {
		return HandleSendJob(ctx, payload, runner, log)
	})
}

// HandleSendJob decodes a SendJob and runs it. Malformed jobs are dropped rather than retried.
func HandleSendJob(ctx context.Context, body []byte, runner CampaignRunner, log *zap.Logger) error {
	var job SendJob
	if err := json.Unmarshal(body, &job); err != nil || job.CampaignID <= 0 {
		log.Warn("invalid send job, dropping", zap.ByteString("body", body), zap.Error(err))
		return nil
	}
	log.Info("processing send job", zap.Int("campaign_id", job.CampaignID))
	return runner.RunCampaign(ctx, job.CampaignID)
}
