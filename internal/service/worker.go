package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/unclebandit/mailleopard-backend/internal/lock"
)

// PassRunner is the part of the pipeline the worker drives.
type PassRunner interface {
	Run(ctx context.Context, campaignID int) (*PassResult, error)
	Sending(ctx context.Context, campaignID int) (bool, error)
}

// Worker processes campaign send jobs, allowing one pass per campaign at a time.
type Worker struct {
	Pipeline PassRunner
	Guard    lock.Guard
	// LockTTL is how long a lease survives without renewal; it is renewed every LockTTL/3.
	LockTTL time.Duration
	Log     *zap.Logger
}

func NewWorker(pipeline PassRunner, guard lock.Guard, log *zap.Logger) *Worker {
	return &Worker{
		Pipeline: pipeline,
		Guard:    guard,
		LockTTL:  2 * time.Minute,
		Log:      log,
	}
}

func sendGuardKey(campaignID int) string {
	return fmt.Sprintf("campaign-send:%d", campaignID)
}

// RunCampaign drops the job when another pass for the same campaign holds the guard.
// The holder re-reads the campaign after releasing the guard and runs again if it was
// resumed meanwhile, so a resume arriving while a paused pass winds down is not lost.
func (w *Worker) RunCampaign(ctx context.Context, campaignID int) error {
	log := w.Log.With(zap.Int("campaign_id", campaignID))
	for {
		res, err := w.runGuarded(ctx, campaignID)
		if errors.Is(err, lock.ErrHeld) {
			log.Info("send pass already running, dropping job")
			return nil
		}
		if err != nil {
			return err
		}
		if res.Outcome == PassSent {
			return nil
		}

		again, err := w.Pipeline.Sending(ctx, campaignID)
		if err != nil {
			return err
		}
		if !again {
			return nil
		}
		log.Info("campaign resumed while the last pass was stopping, running again")
	}
}

func (w *Worker) runGuarded(ctx context.Context, campaignID int) (*PassResult, error) {
	ttl := w.LockTTL
	if ttl <= 0 {
		ttl = 2 * time.Minute
	}
	lease, err := w.Guard.Acquire(ctx, sendGuardKey(campaignID), ttl)
	if errors.Is(err, lock.ErrHeld) {
		return nil, err
	}
	if err != nil {
		return nil, fmt.Errorf("acquire send guard: %w", err)
	}
	defer lease.Release()

	passCtx, cancel := context.WithCancel(ctx)
	renewed := make(chan struct{})
	go func() {
		defer close(renewed)
		w.renew(passCtx, cancel, lease, ttl, campaignID)
	}()
	defer func() {
		cancel()
		<-renewed
	}()

	return w.Pipeline.Run(passCtx, campaignID)
}

// renew extends the lease until ctx ends. Losing the lease cancels the pass, since
// another worker may now be sending the same campaign.
func (w *Worker) renew(ctx context.Context, cancel context.CancelFunc, lease lock.Lease, ttl time.Duration, campaignID int) {
	ticker := time.NewTicker(ttl / 3)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			err := lease.Extend(ctx, ttl)
			if errors.Is(err, lock.ErrLost) {
				w.Log.Error("send guard lost, stopping pass", zap.Int("campaign_id", campaignID))
				cancel()
				return
			}
			if err != nil && ctx.Err() == nil {
				w.Log.Warn("send guard renewal failed", zap.Int("campaign_id", campaignID), zap.Error(err))
			}
		}
	}
}
