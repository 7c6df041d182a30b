package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/google/uuid"
	amqp "github.com/rabbitmq/amqp091-go"
)

// QueueNamePrefix starts the name of every per-process tip queue
const QueueNamePrefix = "zentask_tip_jobs"

// RabbitMQQueue implements JobQueue using RabbitMQ. Jobs are published to the
// default exchange with the queue name as routing key.
//
// Tasks live in the server's memory, so a job only makes sense to the process
// that queued it. Each queue is exclusive to its connection and deleted by the
// broker when the connection goes away.
type RabbitMQQueue struct {
	conn      *amqp.Connection
	queueName string

	mu      sync.Mutex
	channel *amqp.Channel
}

// NewRabbitMQQueue connects to the broker and declares the tip queue
func NewRabbitMQQueue(amqpURL string) (*RabbitMQQueue, error) {
	conn, err := amqp.Dial(amqpURL)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to RabbitMQ: %w", err)
	}

	ch, err := conn.Channel()
	if err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("failed to open channel: %w", err)
	}

	q := &RabbitMQQueue{
		conn:      conn,
		channel:   ch,
		queueName: instanceQueueName(),
	}

	if err := q.setup(); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("failed to setup queue: %w", err)
	}

	return q, nil
}

func instanceQueueName() string {
	return QueueNamePrefix + "." + uuid.NewString()
}

// QueueName returns the name of this process's tip queue
func (q *RabbitMQQueue) QueueName() string {
	return q.queueName
}

// setup declares the tip queue
func (q *RabbitMQQueue) setup() error {
	_, err := q.channel.QueueDeclare(
		q.queueName,
		false, // durable
		true,  // delete when unused
		true,  // exclusive
		false, // no-wait
		nil,
	)
	if err != nil {
		return fmt.Errorf("failed to declare queue: %w", err)
	}
	return nil
}

// Enqueue publishes a job to the queue
func (q *RabbitMQQueue) Enqueue(ctx context.Context, job *TipJob) error {
	jobJSON, err := json.Marshal(job)
	if err != nil {
		return fmt.Errorf("failed to marshal job: %w", err)
	}

	publishing := amqp.Publishing{
		ContentType:   "application/json",
		Body:          jobJSON,
		DeliveryMode:  amqp.Transient,
		MessageId:     job.ID.String(),
		CorrelationId: job.RequestID,
		Timestamp:     job.CreatedAt,
	}

	// amqp channels are not safe for concurrent publishing
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.channel.IsClosed() {
		return ErrQueueClosed
	}

	err = q.channel.PublishWithContext(
		ctx,
		"", // default exchange
		q.queueName,
		false, // mandatory
		false, // immediate
		publishing,
	)
	if err != nil {
		return fmt.Errorf("failed to publish job: %w", err)
	}

	return nil
}

// Consume returns a channel of messages from the queue using async delivery
func (q *RabbitMQQueue) Consume(ctx context.Context, prefetchCount int) (<-chan *Message, <-chan error, error) {
	// Consumers get their own channel so publishes are not blocked by flow control
	consumeCh, err := q.conn.Channel()
	if err != nil {
		return nil, nil, fmt.Errorf("failed to create consumer channel: %w", err)
	}

	if err := consumeCh.Qos(prefetchCount, 0, false); err != nil {
		_ = consumeCh.Close()
		return nil, nil, fmt.Errorf("failed to set QoS: %w", err)
	}

	deliveries, err := consumeCh.Consume(
		q.queueName,
		"",    // consumer tag (empty = auto-generate)
		false, // auto-ack (false = manual ack required)
		true,  // exclusive
		false, // no-local
		false, // no-wait
		nil,   // args
	)
	if err != nil {
		_ = consumeCh.Close()
		return nil, nil, fmt.Errorf("failed to start consuming: %w", err)
	}

	msgChan := make(chan *Message, prefetchCount)
	errChan := make(chan error, 1)

	go func() {
		defer close(msgChan)
		defer close(errChan)
		defer func() {
			_ = consumeCh.Close() // may already be closed
		}()

		for {
			select {
			case <-ctx.Done():
				return
			case delivery, ok := <-deliveries:
				if !ok {
					errChan <- fmt.Errorf("delivery channel closed")
					return
				}

				job, err := decodeJob(delivery.Body)
				if err != nil {
					// Undecodable payloads are dropped
					_ = delivery.Nack(false, false)
					select {
					case errChan <- err:
					default:
					}
					continue
				}

				msg := newDeliveryMessage(job, delivery)

				select {
				case <-ctx.Done():
					// Nobody will resolve the job after shutdown
					_ = delivery.Nack(false, false)
					return
				case msgChan <- msg:
				}
			}
		}
	}()

	return msgChan, errChan, nil
}

func newDeliveryMessage(job *TipJob, d amqp.Delivery) *Message {
	return &Message{
		Job: job,
		ack: func() error {
			return d.Ack(false)
		},
		nack: func(requeue bool) error {
			return d.Nack(false, requeue)
		},
	}
}

// Close closes the queue connection
func (q *RabbitMQQueue) Close() error {
	q.mu.Lock()
	defer q.mu.Unlock()

	var err error
	if q.channel != nil && !q.channel.IsClosed() {
		err = q.channel.Close()
	}
	if q.conn != nil && !q.conn.IsClosed() {
		if closeErr := q.conn.Close(); closeErr != nil && err == nil {
			err = closeErr
		}
	}
	return err
}

// HealthCheck verifies the broker connection and queue are available
func (q *RabbitMQQueue) HealthCheck(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if q.conn == nil || q.conn.IsClosed() {
		return fmt.Errorf("rabbitmq connection closed: %w", ErrQueueClosed)
	}

	q.mu.Lock()
	defer q.mu.Unlock()
	if _, err := q.channel.QueueDeclarePassive(q.queueName, false, true, true, false, nil); err != nil {
		return fmt.Errorf("rabbitmq queue %s unavailable: %w", q.queueName, err)
	}
	return nil
}
