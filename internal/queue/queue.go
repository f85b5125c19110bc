package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"
)

var ErrClosed = errors.New("queue closed")

// Handler processes one message body. A non-nil error asks the queue to retry.
type Handler func(ctx context.Context, payload []byte) error

// Queue interface
type Queue interface {
	Publish(ctx context.Context, topic string, payload any) error
	Subscribe(topic string, handler Handler) error
	Close() error
}

// InMemoryQueue runs each published job on its own goroutine with bounded retries.
type InMemoryQueue struct {
	mu       sync.Mutex
	handlers map[string][]Handler
	closed   bool
	log      *zap.Logger

	MaxRetries int
	Backoff    time.Duration

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewInMemoryQueue creates a new queue
func NewInMemoryQueue(log *zap.Logger) *InMemoryQueue {
	ctx, cancel := context.WithCancel(context.Background())
	return &InMemoryQueue{
		handlers:   make(map[string][]Handler),
		log:        log,
		MaxRetries: 3,
		Backoff:    500 * time.Millisecond,
		ctx:        ctx,
		cancel:     cancel,
	}
}

// JobPayload wraps a message payload with retry info
type JobPayload struct {
	Topic      string
	Body       []byte
	RetryCount int
	MaxRetries int
}

// Publish sends a message to all subscribers
func (q *InMemoryQueue) Publish(ctx context.Context, topic string, payload any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("encode %s payload: %w", topic, err)
	}

	// wg.Add happens under mu so Close never waits on a group that is still growing.
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return ErrClosed
	}
	handlers := q.handlers[topic]
	q.wg.Add(len(handlers))
	q.mu.Unlock()

	if len(handlers) == 0 {
		return fmt.Errorf("no subscribers for topic %s", topic)
	}
	for _, handler := range handlers {
		job := JobPayload{Topic: topic, Body: body, MaxRetries: q.MaxRetries}
		go q.processJob(handler, job)
	}
	return nil
}

// processJob handles retries and errors
func (q *InMemoryQueue) processJob(handler Handler, job JobPayload) {
	defer q.wg.Done()
	log := q.log.With(zap.String("topic", job.Topic), zap.ByteString("payload", job.Body))

	for {
		err := handler(q.ctx, job.Body)
		if err == nil {
			log.Debug("job processed")
			return
		}

		job.RetryCount++
		if job.RetryCount > job.MaxRetries {
			log.Error("job permanently failed", zap.Int("attempts", job.RetryCount), zap.Error(err))
			return
		}
		log.Warn("job failed, retrying", zap.Int("attempt", job.RetryCount), zap.Int("max_retries", job.MaxRetries), zap.Error(err))

		select {
		case <-q.ctx.Done():
			return
		case <-time.After(time.Duration(job.RetryCount) * q.Backoff):
		}
	}
}

// Subscribe adds a handler for a topic
func (q *InMemoryQueue) Subscribe(topic string, handler Handler) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	q.handlers[topic] = append(q.handlers[topic], handler)
	return nil
}

// Close cancels in-flight jobs and waits for their goroutines to return.
func (q *InMemoryQueue) Close() error {
	q.mu.Lock()
	q.closed = true
	q.mu.Unlock()

	q.cancel()
	q.wg.Wait()
	return nil
}

// Wait blocks until every published job has finished. Used by tests.
func (q *InMemoryQueue) Wait() {
	q.wg.Wait()
}

var _ Queue = (*InMemoryQueue)(nil)
