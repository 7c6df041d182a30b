package queue

import (
	"context"
	"errors"
)

var (
	// ErrQueueClosed is returned when using a queue after Close
	ErrQueueClosed = errors.New("queue closed")
	// ErrQueueFull is returned when a bounded queue cannot take another job
	ErrQueueFull = errors.New("queue full")
)

// Message wraps a TipJob with its delivery acknowledgement
type Message struct {
	Job *TipJob

	ack  func() error
	nack func(requeue bool) error
}

// Ack acknowledges the message
func (m *Message) Ack() error {
	if m.ack == nil {
		return nil
	}
	return m.ack()
}

// Nack negatively acknowledges the message
func (m *Message) Nack(requeue bool) error {
	if m.nack == nil {
		return nil
	}
	return m.nack(requeue)
}

// JobQueue is the interface for tip job queues
type JobQueue interface {
	// Enqueue adds a job to the queue
	Enqueue(ctx context.Context, job *TipJob) error

	// Consume returns a channel of messages from the queue
	// The caller is responsible for acknowledging each message
	// Prefetch controls how many unacknowledged messages the consumer can hold
	// The message channel is closed when the context is cancelled or the queue closes
	Consume(ctx context.Context, prefetchCount int) (<-chan *Message, <-chan error, error)

	// Close closes the queue
	Close() error

	// HealthCheck verifies the queue is usable
	HealthCheck(ctx context.Context) error
}
