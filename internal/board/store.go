package board

import (
	"strings"
	"sync"
	"time"

	"github.com/benvon/zentask/internal/models"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Store holds the tasks of a single board in memory, in insertion order.
// It is the only writer of task state. Operations that target a missing task
// are no-ops, so callers holding a stale id never see an error.
type Store struct {
	mu     sync.RWMutex
	tasks  []models.Task
	now    func() time.Time
	newID  func() uuid.UUID
	logger *zap.Logger
}

// StoreOption configures a Store
type StoreOption func(*Store)

// WithClock overrides the time source used to stamp completions
func WithClock(now func() time.Time) StoreOption {
	return func(s *Store) {
		if now != nil {
			s.now = now
		}
	}
}

// WithIDGenerator overrides how task ids are generated
func WithIDGenerator(newID func() uuid.UUID) StoreOption {
	return func(s *Store) {
		if newID != nil {
			s.newID = newID
		}
	}
}

// WithLogger attaches a logger for mutation events
func WithLogger(logger *zap.Logger) StoreOption {
	return func(s *Store) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// NewStore creates an empty store
func NewStore(opts ...StoreOption) *Store {
	s := &Store{
		now:    time.Now,
		newID:  uuid.New,
		logger: zap.NewNop(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Create appends a new active task. A title that is empty after trimming
// whitespace is rejected and the store is left unchanged; ok reports which
// of the two happened.
func (s *Store) Create(title string, deadline *time.Time, priority models.Priority) (task models.Task, ok bool) {
	if strings.TrimSpace(title) == "" {
		return models.Task{}, false
	}

	task = models.Task{
		ID:       s.newID(),
		Title:    title,
		Priority: priority,
	}
	if deadline != nil {
		d := *deadline
		task.Deadline = &d
	}

	s.mu.Lock()
	s.tasks = append(s.tasks, task)
	s.mu.Unlock()

	s.logger.Debug("task_created",
		zap.String("task_id", task.ID.String()),
		zap.String("priority", string(task.Priority)),
		zap.Bool("has_deadline", task.Deadline != nil),
	)
	return task.Clone(), true
}

// Complete marks the task completed and stamps CompletedAt with the current
// time. Completing an already completed task stamps it again.
func (s *Store) Complete(id uuid.UUID) bool {
	now := s.now()
	found := s.update(id, func(t *models.Task) {
		t.IsCompleted = true
		t.CompletedAt = &now
	})
	if found {
		s.logger.Debug("task_completed", zap.String("task_id", id.String()))
	}
	return found
}

// Delete removes the task permanently
func (s *Store) Delete(id uuid.UUID) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	for i := range s.tasks {
		if s.tasks[i].ID == id {
			s.tasks = append(s.tasks[:i], s.tasks[i+1:]...)
			s.logger.Debug("task_deleted", zap.String("task_id", id.String()))
			return true
		}
	}
	return false
}

// BeginTipRequest flags the task as waiting for tips. It must be called
// before the tip provider is invoked for the task.
func (s *Store) BeginTipRequest(id uuid.UUID) bool {
	return s.update(id, func(t *models.Task) {
		t.IsLoadingTips = true
	})
}

// StartTipRequest begins a tip request for an active task that has no tips
// and is not already waiting for them. It returns the task as it stands after
// the call.
func (s *Store) StartTipRequest(id uuid.UUID) (task models.Task, started bool, found bool) {
	found = s.update(id, func(t *models.Task) {
		if !t.IsCompleted && !t.HasTips() && !t.IsLoadingTips {
			t.IsLoadingTips = true
			started = true
		}
		task = t.Clone()
	})
	if started {
		s.logger.Debug("tip_request_started", zap.String("task_id", id.String()))
	}
	return task, started, found
}

// CompleteTipRequest attaches the provider's text to the task and clears the
// loading flag. Fallback text from a failed request is stored the same way.
func (s *Store) CompleteTipRequest(id uuid.UUID, tips string) bool {
	return s.update(id, func(t *models.Task) {
		text := tips
		t.AITips = &text
		t.IsLoadingTips = false
	})
}

// Get returns a copy of the task with the given id
func (s *Store) Get(id uuid.UUID) (models.Task, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for i := range s.tasks {
		if s.tasks[i].ID == id {
			return s.tasks[i].Clone(), true
		}
	}
	return models.Task{}, false
}

// Snapshot returns copies of all tasks in insertion order
func (s *Store) Snapshot() []models.Task {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]models.Task, len(s.tasks))
	for i := range s.tasks {
		out[i] = s.tasks[i].Clone()
	}
	return out
}

// Len returns the number of tasks on the board
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.tasks)
}

func (s *Store) update(id uuid.UUID, fn func(*models.Task)) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	for i := range s.tasks {
		if s.tasks[i].ID == id {
			fn(&s.tasks[i])
			return true
		}
	}
	return false
}
