package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/streadway/amqp"
	"go.uber.org/zap"
)

const retryHeader = "x-retry-count"

// AMQPQueue publishes to and consumes from durable RabbitMQ queues named after topics.
type AMQPQueue struct {
	conn *amqp.Connection
	log  *zap.Logger

	MaxRetries int

	mu  sync.Mutex
	pub *amqp.Channel
	wg  sync.WaitGroup
}

func DialAMQP(url string, log *zap.Logger) (*AMQPQueue, error) {
	conn, err := amqp.Dial(url)
	if err != nil {
		return nil, fmt.Errorf("connect to RabbitMQ: %w", err)
	}
	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("open publish channel: %w", err)
	}
	return &AMQPQueue{conn: conn, log: log, MaxRetries: 3, pub: ch}, nil
}

func declare(ch *amqp.Channel, topic string) error {
	_, err := ch.QueueDeclare(
		topic, // name
		true,  // durable
		false, // delete when unused
		false, // exclusive
		false, // no-wait
		nil,   // arguments
	)
	return err
}

func (q *AMQPQueue) Publish(ctx context.Context, topic string, payload any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("encode %s payload: %w", topic, err)
	}
	return q.publish(topic, body, 0)
}

func (q *AMQPQueue) publish(topic string, body []byte, retries int32) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	if err := declare(q.pub, topic); err != nil {
		return fmt.Errorf("declare queue %s: %w", topic, err)
	}
	return q.pub.Publish(
		"",
		topic,
		false,
		false,
		amqp.Publishing{
			ContentType:  "application/json",
			DeliveryMode: amqp.Persistent,
			Headers:      amqp.Table{retryHeader: retries},
			Body:         body,
		},
	)
}

// Subscribe consumes topic on a dedicated channel with manual acks, one message at a time.
func (q *AMQPQueue) Subscribe(topic string, handler Handler) error {
	ch, err := q.conn.Channel()
	if err != nil {
		return fmt.Errorf("open consume channel: %w", err)
	}
	if err := declare(ch, topic); err != nil {
		return fmt.Errorf("declare queue %s: %w", topic, err)
	}
	if err := ch.Qos(1, 0, false); err != nil {
		return fmt.Errorf("set qos: %w", err)
	}
	msgs, err := ch.Consume(
		topic,
		"",
		false, // autoAck = false for reliability
		false,
		false,
		false,
		nil,
	)
	if err != nil {
		return fmt.Errorf("register consumer: %w", err)
	}

	q.wg.Add(1)
	go func() {
		defer q.wg.Done()
		for d := range msgs {
			q.handle(topic, d, handler)
		}
	}()
	return nil
}

func (q *AMQPQueue) handle(topic string, d amqp.Delivery, handler Handler) {
	err := handler(context.Background(), d.Body)
	if err == nil {
		d.Ack(false)
		return
	}

	retries := RetryCount(d.Headers)
	if retries >= q.MaxRetries {
		q.log.Error("job permanently failed", zap.String("topic", topic), zap.Int("attempts", retries+1), zap.Error(err))
		d.Nack(false, false)
		return
	}

	q.log.Warn("job failed, requeueing", zap.String("topic", topic), zap.Int("attempt", retries+1), zap.Error(err))
	if perr := q.publish(topic, d.Body, int32(retries+1)); perr != nil {
		q.log.Error("requeue failed, returning message to broker", zap.Error(perr))
		d.Nack(false, true)
		return
	}
	d.Ack(false)
}

// RetryCount reads the retry header, which may arrive as any integer width.
func RetryCount(h amqp.Table) int {
	switch v := h[retryHeader].(type) {
	case int:
		return v
	case int16:
		return int(v)
	case int32:
		return int(v)
	case int64:
		return int(v)
	default:
		return 0
	}
}

func (q *AMQPQueue) Close() error {
	err := q.conn.Close()
	q.wg.Wait()
	return err
}

var _ Queue = (*AMQPQueue)(nil)
