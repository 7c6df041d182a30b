package workers

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/benvon/zentask/internal/board"
	"github.com/benvon/zentask/internal/models"
	"github.com/benvon/zentask/internal/queue"
	"github.com/benvon/zentask/internal/request"
	"github.com/benvon/zentask/internal/services/ai"
	"github.com/google/uuid"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

// fakeTips records calls and answers with fixed text
type fakeTips struct {
	mu      sync.Mutex
	text    string
	titles  []string
	taskIDs []string
	block   chan struct{}
}

func (f *fakeTips) RequestTips(ctx context.Context, title string) string {
	if f.block != nil {
		<-f.block
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.titles = append(f.titles, title)
	f.taskIDs = append(f.taskIDs, ai.ExtractTaskID(ctx))
	return f.text
}

func (f *fakeTips) calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.titles)
}

// failingQueue rejects every job
type failingQueue struct {
	*queue.MemoryQueue
}

func (failingQueue) Enqueue(context.Context, *queue.TipJob) error {
	return errors.New("broker unavailable")
}

// droppingQueue loses its consumer the first drops times Consume is called
type droppingQueue struct {
	*queue.MemoryQueue
	drops    int32
	consumes atomic.Int32
}

func (q *droppingQueue) Consume(ctx context.Context, prefetch int) (<-chan *queue.Message, <-chan error, error) {
	if q.consumes.Add(1) <= q.drops {
		msgs := make(chan *queue.Message)
		errs := make(chan error)
		close(msgs)
		close(errs)
		return msgs, errs, nil
	}
	return q.MemoryQueue.Consume(ctx, prefetch)
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("Condition not met before timeout")
}

func TestTipDispatcher_RequestTips(t *testing.T) {
	t.Parallel()

	store := board.NewStore()
	q := queue.NewMemoryQueue(4)
	d := NewTipDispatcher(store, q, zap.NewNop())

	task, _ := store.Create("Renew passport", nil, models.PriorityHigh)
	ctx := request.WithID(context.Background(), "req-42")

	got, result := d.RequestTips(ctx, task.ID)
	if result != DispatchStarted {
		t.Fatalf("Expected DispatchStarted, got %v", result)
	}
	if !got.IsLoadingTips {
		t.Error("Expected task to be loading tips")
	}
	if q.Len() != 1 {
		t.Fatalf("Expected one queued job, got %d", q.Len())
	}

	// Second request while loading is skipped
	if _, result := d.RequestTips(ctx, task.ID); result != DispatchSkipped {
		t.Errorf("Expected DispatchSkipped, got %v", result)
	}
	if q.Len() != 1 {
		t.Errorf("Expected no additional job, got %d", q.Len())
	}

	if _, result := d.RequestTips(ctx, uuid.New()); result != DispatchNotFound {
		t.Errorf("Expected DispatchNotFound, got %v", result)
	}

	msgs, _, err := q.Consume(ctx, 1)
	if err != nil {
		t.Fatalf("Consume() error = %v", err)
	}
	msg := <-msgs
	if msg.Job.TaskID != task.ID || msg.Job.Title != "Renew passport" || msg.Job.RequestID != "req-42" {
		t.Errorf("Unexpected job %+v", msg.Job)
	}
}

func TestTipDispatcher_EnqueueFailureResolvesWithFallback(t *testing.T) {
	t.Parallel()

	store := board.NewStore()
	core, logs := observer.New(zapcore.DebugLevel)
	d := NewTipDispatcher(store, failingQueue{queue.NewMemoryQueue(1)}, zap.New(core))

	task, _ := store.Create("Renew passport", nil, models.PriorityMedium)
	got, result := d.RequestTips(context.Background(), task.ID)
	if result != DispatchStarted {
		t.Fatalf("Expected DispatchStarted, got %v", result)
	}
	if got.IsLoadingTips {
		t.Error("Expected loading flag to be cleared")
	}
	if got.AITips == nil || *got.AITips != ai.FallbackFailed {
		t.Errorf("Expected failure fallback, got %v", got.AITips)
	}
	if logs.FilterMessage("tip_enqueue_failed").Len() != 1 {
		t.Error("Expected tip_enqueue_failed to be logged")
	}
}

func TestTipWorker_ProcessesJobs(t *testing.T) {
	t.Parallel()

	store := board.NewStore()
	q := queue.NewMemoryQueue(8)
	tips := &fakeTips{text: "- one\n- two\n- three"}
	d := NewTipDispatcher(store, q, nil)
	w := NewTipWorker(store, q, tips, 2, nil)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- w.Start(ctx) }()

	a, _ := store.Create("Task A", nil, models.PriorityLow)
	b, _ := store.Create("Task B", nil, models.PriorityLow)
	d.RequestTips(ctx, a.ID)
	d.RequestTips(ctx, b.ID)

	waitFor(t, func() bool {
		for _, task := range store.Snapshot() {
			if !task.HasTips() || task.IsLoadingTips {
				return false
			}
		}
		return true
	})

	for _, task := range store.Snapshot() {
		if *task.AITips != "- one\n- two\n- three" {
			t.Errorf("Unexpected tips %q for %s", *task.AITips, task.Title)
		}
		if task.Title == "" || task.IsCompleted {
			t.Errorf("Tip resolution changed other fields: %+v", task)
		}
	}
	if tips.calls() != 2 {
		t.Errorf("Expected 2 provider calls, got %d", tips.calls())
	}
	for _, id := range tips.taskIDs {
		if id != a.ID.String() && id != b.ID.String() {
			t.Errorf("Expected task id in provider context, got %q", id)
		}
	}

	cancel()
	select {
	case err := <-done:
		if err != nil {
			t.Errorf("Start() error = %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Worker did not stop")
	}
}

func TestTipWorker_DeletedTaskIsNoOp(t *testing.T) {
	t.Parallel()

	store := board.NewStore()
	q := queue.NewMemoryQueue(2)
	tips := &fakeTips{text: "- tip", block: make(chan struct{})}
	core, logs := observer.New(zapcore.DebugLevel)
	w := NewTipWorker(store, q, tips, 1, zap.New(core))

	task, _ := store.Create("Short lived", nil, models.PriorityLow)
	keep, _ := store.Create("Stays", nil, models.PriorityLow)
	store.StartTipRequest(task.ID)

	msgDone := make(chan struct{})
	go func() {
		w.ProcessMessage(context.Background(), &queue.Message{Job: queue.NewTipJob(task.ID, task.Title, "")})
		close(msgDone)
	}()

	store.Delete(task.ID)
	close(tips.block)
	<-msgDone

	if store.Len() != 1 {
		t.Fatalf("Expected 1 task, got %d", store.Len())
	}
	remaining, _ := store.Get(keep.ID)
	if remaining.HasTips() || remaining.IsLoadingTips {
		t.Errorf("Late tips must not touch other tasks: %+v", remaining)
	}
	if logs.FilterMessage("tip_task_gone").Len() != 1 {
		t.Error("Expected tip_task_gone to be logged")
	}
}

func TestTipWorker_StartFailsOnClosedQueue(t *testing.T) {
	t.Parallel()

	q := queue.NewMemoryQueue(1)
	_ = q.Close() // Ignore error in test

	w := NewTipWorker(board.NewStore(), q, &fakeTips{}, 1, nil)
	if err := w.Start(context.Background()); !errors.Is(err, queue.ErrQueueClosed) {
		t.Errorf("Expected ErrQueueClosed, got %v", err)
	}
}

func TestTipWorker_StopsWhenQueueCloses(t *testing.T) {
	t.Parallel()

	q := queue.NewMemoryQueue(1)
	w := NewTipWorker(board.NewStore(), q, &fakeTips{}, 1, nil)

	done := make(chan error, 1)
	go func() { done <- w.Start(context.Background()) }()

	// Give the worker a moment to subscribe before closing
	time.Sleep(20 * time.Millisecond)
	_ = q.Close() // Ignore error in test

	select {
	case err := <-done:
		// Closing before the worker subscribed surfaces as a start error
		if !errors.Is(err, ErrConsumerStopped) && !errors.Is(err, queue.ErrQueueClosed) {
			t.Errorf("Start() error = %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Worker did not stop after queue closed")
	}
}

func TestTipDispatcher_SkipsCompletedTask(t *testing.T) {
	t.Parallel()

	store := board.NewStore()
	q := queue.NewMemoryQueue(4)
	d := NewTipDispatcher(store, q, nil)

	task, _ := store.Create("Done already", nil, models.PriorityLow)
	store.Complete(task.ID)

	got, result := d.RequestTips(context.Background(), task.ID)
	if result != DispatchSkipped {
		t.Errorf("Expected DispatchSkipped, got %v", result)
	}
	if got.IsLoadingTips || !got.IsCompleted {
		t.Errorf("Unexpected task state %+v", got)
	}
	if q.Len() != 0 {
		t.Errorf("Expected no queued job, got %d", q.Len())
	}
}

func TestTipWorker_StartReportsLostConsumer(t *testing.T) {
	t.Parallel()

	core, logs := observer.New(zapcore.DebugLevel)
	q := &droppingQueue{MemoryQueue: queue.NewMemoryQueue(1), drops: 1}
	w := NewTipWorker(board.NewStore(), q, &fakeTips{}, 1, zap.New(core))

	if err := w.Start(context.Background()); !errors.Is(err, ErrConsumerStopped) {
		t.Errorf("Expected ErrConsumerStopped, got %v", err)
	}
	if logs.FilterMessage("tip_consumer_stopped").FilterLevelExact(zapcore.ErrorLevel).Len() != 1 {
		t.Error("Expected tip_consumer_stopped at error level")
	}
}

func TestTipWorker_RunRestartsLostConsumer(t *testing.T) {
	t.Parallel()

	store := board.NewStore()
	q := &droppingQueue{MemoryQueue: queue.NewMemoryQueue(4), drops: 2}
	tips := &fakeTips{text: "- tip"}
	core, logs := observer.New(zapcore.DebugLevel)
	d := NewTipDispatcher(store, q, nil)
	w := NewTipWorker(store, q, tips, 1, zap.New(core), WithRestartBackoff(time.Millisecond, 5*time.Millisecond))

	task, _ := store.Create("Renew passport", nil, models.PriorityHigh)
	if _, result := d.RequestTips(context.Background(), task.ID); result != DispatchStarted {
		t.Fatalf("Expected DispatchStarted, got %v", result)
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- w.Run(ctx) }()

	waitFor(t, func() bool {
		got, _ := store.Get(task.ID)
		return got.HasTips() && !got.IsLoadingTips
	})

	if got := logs.FilterMessage("tip_consumer_lost_restarting").Len(); got != 2 {
		t.Errorf("Expected 2 restarts to be logged, got %d", got)
	}

	cancel()
	select {
	case err := <-done:
		if err != nil {
			t.Errorf("Run() error = %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not stop")
	}
}

func TestTipWorker_RunStopsWhenQueueCloses(t *testing.T) {
	t.Parallel()

	q := queue.NewMemoryQueue(1)
	w := NewTipWorker(board.NewStore(), q, &fakeTips{}, 1, nil, WithRestartBackoff(time.Millisecond, time.Millisecond))

	done := make(chan error, 1)
	go func() { done <- w.Run(context.Background()) }()

	time.Sleep(20 * time.Millisecond)
	_ = q.Close() // Ignore error in test

	select {
	case err := <-done:
		if !errors.Is(err, queue.ErrQueueClosed) {
			t.Errorf("Expected ErrQueueClosed, got %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not stop after queue closed")
	}
}
