package service

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/unclebandit/mailleopard-backend/internal/lock"
	"github.com/unclebandit/mailleopard-backend/internal/model"
	"github.com/unclebandit/mailleopard-backend/internal/queue"
	"github.com/unclebandit/mailleopard-backend/internal/repository"
)

// Scheduler promotes scheduled campaigns whose time has come and enqueues them. It also
// re-enqueues campaigns left in sending with no pass running, e.g. after a restart
// interrupted the pass or its job ran out of retries.
type Scheduler struct {
	CampaignRepo repository.CampaignRepositoryInterface
	Queue        queue.Queue
	// Guard is the workers' send guard; campaigns whose guard is held are left alone.
	Guard      lock.Guard
	Interval   time.Duration
	StallAfter time.Duration
	Log        *zap.Logger
	Now        func() time.Time
}

// Run ticks until ctx is cancelled.
func (s *Scheduler) Run(ctx context.Context) {
	interval := s.Interval
	if interval <= 0 {
		interval = 30 * time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	s.Log.Info("scheduler started", zap.Duration("interval", interval))
	for {
		select {
		case <-ctx.Done():
			s.Log.Info("scheduler stopped")
			return
		case <-ticker.C:
			if _, err := s.Tick(ctx); err != nil && ctx.Err() == nil {
				s.Log.Error("scheduler tick failed", zap.Error(err))
			}
		}
	}
}

func (s *Scheduler) now() time.Time {
	if s.Now != nil {
		return s.Now()
	}
	return time.Now().UTC()
}

// Tick claims every due campaign, then every stalled one, and returns the ids that were enqueued.
func (s *Scheduler) Tick(ctx context.Context) ([]int, error) {
	now := s.now()
	ids, err := s.CampaignRepo.ClaimDueScheduled(ctx, now)
	if err != nil {
		return nil, err
	}

	queued := make([]int, 0, len(ids))
	for _, id := range ids {
		if err := s.Queue.Publish(ctx, queue.TopicCampaignSends, queue.SendJob{CampaignID: id}); err != nil {
			s.Log.Error("failed to enqueue scheduled campaign, reverting", zap.Int("campaign_id", id), zap.Error(err))
			if _, rerr := s.CampaignRepo.TransitionStatus(ctx, id,
				[]model.CampaignStatus{model.CampaignSending}, model.CampaignScheduled); rerr != nil {
				s.Log.Error("failed to revert scheduled campaign", zap.Int("campaign_id", id), zap.Error(rerr))
			}
			continue
		}
		s.Log.Info("scheduled campaign queued", zap.Int("campaign_id", id))
		queued = append(queued, id)
	}

	stalled, err := s.requeueStalled(ctx, now)
	if err != nil {
		return queued, err
	}
	return append(queued, stalled...), nil
}

func (s *Scheduler) requeueStalled(ctx context.Context, now time.Time) ([]int, error) {
	stallAfter := s.StallAfter
	if stallAfter <= 0 {
		stallAfter = 5 * time.Minute
	}
	ids, err := s.CampaignRepo.ClaimStalledSending(ctx, now.Add(-stallAfter))
	if err != nil {
		return nil, err
	}

	var queued []int
	for _, id := range ids {
		if s.Guard != nil {
			held, err := s.Guard.Held(ctx, sendGuardKey(id))
			if err != nil {
				s.Log.Warn("cannot check send guard, skipping stalled campaign", zap.Int("campaign_id", id), zap.Error(err))
				continue
			}
			if held {
				continue
			}
		}
		// left in sending; the next tick after StallAfter tries again
		if err := s.Queue.Publish(ctx, queue.TopicCampaignSends, queue.SendJob{CampaignID: id}); err != nil {
			s.Log.Error("failed to requeue stalled campaign", zap.Int("campaign_id", id), zap.Error(err))
			continue
		}
		s.Log.Warn("stalled campaign requeued", zap.Int("campaign_id", id))
		queued = append(queued, id)
	}
	return queued, nil
}
