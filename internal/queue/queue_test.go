package queue

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/streadway/amqp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestInMemoryQueueRetriesUntilSuccess(t *testing.T) {
	q := NewInMemoryQueue(zap.NewNop())
	q.Backoff = time.Millisecond
	defer q.Close()

	var calls int32
	require.NoError(t, q.Subscribe("t", func(ctx context.Context, payload []byte) error {
		if atomic.AddInt32(&calls, 1) < 3 {
			return errors.New("transient")
		}
		return nil
	}))

	require.NoError(t, q.Publish(context.Background(), "t", map[string]int{"campaign_id": 1}))
	q.Wait()
	assert.Equal(t, int32(3), atomic.LoadInt32(&calls))
}

func TestInMemoryQueueGivesUpAfterMaxRetries(t *testing.T) {
	q := NewInMemoryQueue(zap.NewNop())
	q.Backoff = time.Millisecond
	q.MaxRetries = 2
	defer q.Close()

	var calls int32
	require.NoError(t, q.Subscribe("t", func(ctx context.Context, payload []byte) error {
		atomic.AddInt32(&calls, 1)
		return errors.New("permanent")
	}))
	require.NoError(t, q.Publish(context.Background(), "t", 1))
	q.Wait()
	assert.Equal(t, int32(3), atomic.LoadInt32(&calls))
}

func TestInMemoryQueueNoSubscribers(t *testing.T) {
	q := NewInMemoryQueue(zap.NewNop())
	defer q.Close()
	assert.Error(t, q.Publish(context.Background(), "nobody", 1))
}

func TestInMemoryQueueRejectsPublishAfterClose(t *testing.T) {
	q := NewInMemoryQueue(zap.NewNop())
	require.NoError(t, q.Subscribe("t", func(ctx context.Context, payload []byte) error { return nil }))
	require.NoError(t, q.Close())
	assert.ErrorIs(t, q.Publish(context.Background(), "t", 1), ErrClosed)
}

func TestInMemoryQueueCloseWhilePublishing(t *testing.T) {
	q := NewInMemoryQueue(zap.NewNop())
	var handled, accepted int32
	require.NoError(t, q.Subscribe("t", func(ctx context.Context, payload []byte) error {
		atomic.AddInt32(&handled, 1)
		return nil
	}))

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 50; j++ {
				err := q.Publish(context.Background(), "t", j)
				if errors.Is(err, ErrClosed) {
					return
				}
				if assert.NoError(t, err) {
					atomic.AddInt32(&accepted, 1)
				}
			}
		}()
	}
	time.Sleep(time.Millisecond)
	require.NoError(t, q.Close())
	wg.Wait()

	// every accepted job was counted before Close returned
	q.Wait()
	assert.Equal(t, atomic.LoadInt32(&accepted), atomic.LoadInt32(&handled))
}

type recordingRunner struct {
	ids []int
}

func (r *recordingRunner) RunCampaign(ctx context.Context, id int) error {
	r.ids = append(r.ids, id)
	return nil
}

func TestSendJobSubscriber(t *testing.T) {
	q := NewInMemoryQueue(zap.NewNop())
	defer q.Close()
	runner := &recordingRunner{}
	require.NoError(t, StartCampaignSendSubscriber(q, runner, zap.NewNop()))

	require.NoError(t, q.Publish(context.Background(), TopicCampaignSends, SendJob{CampaignID: 42}))
	q.Wait()
	assert.Equal(t, []int{42}, runner.ids)
}

func TestHandleSendJobDropsMalformed(t *testing.T) {
	runner := &recordingRunner{}
	assert.NoError(t, HandleSendJob(context.Background(), []byte("not json"), runner, zap.NewNop()))
	assert.NoError(t, HandleSendJob(context.Background(), []byte(`{"campaign_id":0}`), runner, zap.NewNop()))
	assert.Empty(t, runner.ids)
}

func TestRetryCount(t *testing.T) {
	assert.Equal(t, 0, RetryCount(amqp.Table{}))
	assert.Equal(t, 2, RetryCount(amqp.Table{retryHeader: int32(2)}))
	assert.Equal(t, 3, RetryCount(amqp.Table{retryHeader: int64(3)}))
}
