package queue

import (
	"context"
	"sync"
)

// DefaultMemoryCapacity bounds the in-process queue
const DefaultMemoryCapacity = 256

// MemoryQueue implements JobQueue with a buffered channel
type MemoryQueue struct {
	jobs chan *TipJob
	done chan struct{}

	mu     sync.RWMutex
	closed bool
}

// NewMemoryQueue creates an in-process queue holding up to capacity jobs
func NewMemoryQueue(capacity int) *MemoryQueue {
	if capacity <= 0 {
		capacity = DefaultMemoryCapacity
	}
	return &MemoryQueue{
		jobs: make(chan *TipJob, capacity),
		done: make(chan struct{}),
	}
}

// Enqueue adds a job without blocking. It fails with ErrQueueFull when the buffer is full.
func (q *MemoryQueue) Enqueue(ctx context.Context, job *TipJob) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	q.mu.RLock()
	defer q.mu.RUnlock()
	if q.closed {
		return ErrQueueClosed
	}

	select {
	case q.jobs <- job:
		return nil
	default:
		return ErrQueueFull
	}
}

// Consume delivers queued jobs until ctx is cancelled or the queue is closed
func (q *MemoryQueue) Consume(ctx context.Context, prefetchCount int) (<-chan *Message, <-chan error, error) {
	if err := q.HealthCheck(ctx); err != nil {
		return nil, nil, err
	}
	if prefetchCount < 1 {
		prefetchCount = 1
	}

	msgChan := make(chan *Message, prefetchCount)
	errChan := make(chan error, 1)

	go func() {
		defer close(msgChan)
		defer close(errChan)

		for {
			select {
			case <-ctx.Done():
				return
			case <-q.done:
				return
			case job := <-q.jobs:
				msg := &Message{
					Job: job,
					nack: func(requeue bool) error {
						if !requeue {
							return nil
						}
						return q.Enqueue(context.Background(), job)
					},
				}
				select {
				case <-ctx.Done():
					return
				case <-q.done:
					return
				case msgChan <- msg:
				}
			}
		}
	}()

	return msgChan, errChan, nil
}

// Len returns the number of jobs waiting for a consumer
func (q *MemoryQueue) Len() int {
	return len(q.jobs)
}

// Close stops consumers and rejects further jobs
func (q *MemoryQueue) Close() error {
	q.mu.Lock()
	defer q.mu.Unlock()
	if !q.closed {
		q.closed = true
		close(q.done)
	}
	return nil
}

// HealthCheck reports ErrQueueClosed after Close
func (q *MemoryQueue) HealthCheck(ctx context.Context) error {
	q.mu.RLock()
	defer q.mu.RUnlock()
	if q.closed {
		return ErrQueueClosed
	}
	return nil
}
