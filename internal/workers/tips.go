package workers

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/benvon/zentask/internal/logger"
	"github.com/benvon/zentask/internal/models"
	"github.com/benvon/zentask/internal/queue"
	"github.com/benvon/zentask/internal/request"
	"github.com/benvon/zentask/internal/services/ai"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// TaskBoard is the part of board.Store the tip pipeline mutates
type TaskBoard interface {
	Get(id uuid.UUID) (models.Task, bool)
	StartTipRequest(id uuid.UUID) (models.Task, bool, bool)
	CompleteTipRequest(id uuid.UUID, tips string) bool
}

// DispatchResult describes what RequestTips did
type DispatchResult int

const (
	// DispatchNotFound means no task has the id
	DispatchNotFound DispatchResult = iota
	// DispatchSkipped means the task already has tips or is waiting for them
	DispatchSkipped
	// DispatchStarted means a tip job was queued, or resolved with the failure text
	DispatchStarted
)

// ErrConsumerStopped is returned by Start when the queue stops delivering
// while the worker is still supposed to run
var ErrConsumerStopped = errors.New("tip consumer stopped")

// Default restart backoff for Run
const (
	DefaultRestartDelay    = time.Second
	DefaultMaxRestartDelay = 30 * time.Second
)

// TipDispatcher starts tip requests and hands them to the tip queue
type TipDispatcher struct {
	board  TaskBoard
	queue  queue.JobQueue
	logger *zap.Logger
}

// NewTipDispatcher creates a new dispatcher
func NewTipDispatcher(board TaskBoard, jobQueue queue.JobQueue, log *zap.Logger) *TipDispatcher {
	if log == nil {
		log = zap.NewNop()
	}
	return &TipDispatcher{
		board:  board,
		queue:  jobQueue,
		logger: log,
	}
}

// RequestTips flags the task as loading and queues a tip job for it. The
// returned task reflects the board after the call.
func (d *TipDispatcher) RequestTips(ctx context.Context, id uuid.UUID) (models.Task, DispatchResult) {
	task, started, found := d.board.StartTipRequest(id)
	if !found {
		return models.Task{}, DispatchNotFound
	}
	if !started {
		return task, DispatchSkipped
	}

	requestID := request.IDFromContext(ctx)
	job := queue.NewTipJob(id, task.Title, requestID)
	if err := d.queue.Enqueue(ctx, job); err != nil {
		d.logger.Warn("tip_enqueue_failed",
			zap.String("task_id", id.String()),
			zap.String("request_id", requestID),
			zap.Error(err),
		)
		// The loading flag must not outlive a job that will never run
		d.board.CompleteTipRequest(id, ai.FallbackFailed)
		if current, ok := d.board.Get(id); ok {
			task = current
		}
		return task, DispatchStarted
	}

	d.logger.Info("tip_job_enqueued",
		zap.String("task_id", id.String()),
		zap.String("job_id", job.ID.String()),
		zap.String("request_id", requestID),
	)
	return task, DispatchStarted
}

// TipWorker consumes tip jobs and attaches the provider's text to tasks
type TipWorker struct {
	board    TaskBoard
	queue    queue.JobQueue
	tips     ai.TipProvider
	prefetch int
	logger   *zap.Logger

	restartDelay    time.Duration
	maxRestartDelay time.Duration
}

// TipWorkerOption configures a TipWorker
type TipWorkerOption func(*TipWorker)

// WithRestartBackoff sets the first and the largest delay between consumer
// restarts in Run
func WithRestartBackoff(initial, maxDelay time.Duration) TipWorkerOption {
	return func(w *TipWorker) {
		if initial > 0 {
			w.restartDelay = initial
		}
		if maxDelay >= w.restartDelay {
			w.maxRestartDelay = maxDelay
		}
	}
}

// NewTipWorker creates a worker processing up to prefetch jobs at once
func NewTipWorker(board TaskBoard, jobQueue queue.JobQueue, tips ai.TipProvider, prefetch int, log *zap.Logger, opts ...TipWorkerOption) *TipWorker {
	if prefetch < 1 {
		prefetch = 1
	}
	if log == nil {
		log = zap.NewNop()
	}
	w := &TipWorker{
		board:           board,
		queue:           jobQueue,
		tips:            tips,
		prefetch:        prefetch,
		logger:          log,
		restartDelay:    DefaultRestartDelay,
		maxRestartDelay: DefaultMaxRestartDelay,
	}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

// Run keeps a consumer attached to the queue until ctx is cancelled. A lost
// consumer is restarted with exponential backoff. Run returns nil on
// cancellation and an error wrapping queue.ErrQueueClosed once the queue has
// been closed.
func (w *TipWorker) Run(ctx context.Context) error {
	delay := w.restartDelay
	for {
		err := w.Start(ctx)
		if ctx.Err() != nil {
			return nil
		}
		if errors.Is(err, queue.ErrQueueClosed) {
			return err
		}
		if hcErr := w.queue.HealthCheck(ctx); errors.Is(hcErr, queue.ErrQueueClosed) {
			return fmt.Errorf("tip queue unavailable: %w", hcErr)
		}

		w.logger.Error("tip_consumer_lost_restarting",
			zap.Error(err),
			zap.Duration("retry_delay", delay),
		)
		select {
		case <-ctx.Done():
			return nil
		case <-time.After(delay):
		}
		delay *= 2
		if delay > w.maxRestartDelay {
			delay = w.maxRestartDelay
		}
	}
}

// Start consumes jobs until ctx is cancelled. In-flight jobs are finished
// before it returns. If the queue stops delivering first, Start returns
// ErrConsumerStopped.
func (w *TipWorker) Start(ctx context.Context) error {
	msgChan, errChan, err := w.queue.Consume(ctx, w.prefetch)
	if err != nil {
		return fmt.Errorf("failed to start consuming tip jobs: %w", err)
	}

	w.logger.Info("tip_worker_started", zap.Int("prefetch", w.prefetch))

	var wg sync.WaitGroup
	slots := make(chan struct{}, w.prefetch)
	defer func() {
		wg.Wait()
		w.logger.Info("tip_worker_stopped")
	}()

	for {
		select {
		case <-ctx.Done():
			return nil
		case err, ok := <-errChan:
			if !ok {
				errChan = nil
				continue
			}
			w.logger.Error("tip_queue_error", zap.Error(err))
		case msg, ok := <-msgChan:
			if !ok {
				if ctx.Err() != nil {
					return nil
				}
				w.logger.Error("tip_consumer_stopped")
				return ErrConsumerStopped
			}
			slots <- struct{}{}
			wg.Add(1)
			go func() {
				defer wg.Done()
				defer func() { <-slots }()
				w.ProcessMessage(ctx, msg)
			}()
		}
	}
}

// ProcessMessage resolves one tip job. The message is always acknowledged:
// tip requests get a single attempt.
func (w *TipWorker) ProcessMessage(ctx context.Context, msg *queue.Message) {
	job := msg.Job

	// Shutdown does not abort a provider call already under way
	ctx = context.WithoutCancel(ctx)
	ctx = ai.WithTaskID(ctx, job.TaskID)
	ctx = request.WithID(ctx, job.RequestID)

	tips := w.tips.RequestTips(ctx, job.Title)

	if !w.board.CompleteTipRequest(job.TaskID, tips) {
		w.logger.Debug("tip_task_gone",
			zap.String("task_id", job.TaskID.String()),
			zap.String("job_id", job.ID.String()),
		)
	} else {
		w.logger.Debug("tip_request_resolved",
			zap.String("task_id", job.TaskID.String()),
			zap.String("job_id", job.ID.String()),
			zap.String("title", logger.SanitizeTitle(job.Title)),
			zap.Duration("queue_age", job.Age(time.Now())),
		)
	}

	if err := msg.Ack(); err != nil {
		w.logger.Warn("tip_job_ack_failed",
			zap.String("job_id", job.ID.String()),
			zap.Error(err),
		)
	}
}
