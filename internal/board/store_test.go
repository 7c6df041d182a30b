package board

import (
	"sync"
	"testing"
	"time"

	"github.com/benvon/zentask/internal/models"
	"github.com/google/uuid"
)

// stepClock returns a clock that advances by one minute on every call
func stepClock(start time.Time) func() time.Time {
	var mu sync.Mutex
	current := start
	return func() time.Time {
		mu.Lock()
		defer mu.Unlock()
		current = current.Add(time.Minute)
		return current
	}
}

func timePtr(t time.Time) *time.Time {
	return &t
}

func assertCompletionInvariant(t *testing.T, s *Store) {
	t.Helper()
	for _, task := range s.Snapshot() {
		if task.IsCompleted != (task.CompletedAt != nil) {
			t.Fatalf("Task %s violates completion invariant: is_completed=%v completed_at=%v", task.ID, task.IsCompleted, task.CompletedAt)
		}
	}
}

func TestStore_Create(t *testing.T) {
	t.Parallel()

	deadline := time.Date(2024, 3, 16, 15, 0, 0, 0, time.UTC)

	tests := []struct {
		name     string
		title    string
		deadline *time.Time
		priority models.Priority
		wantOK   bool
	}{
		{name: "valid task with deadline", title: "Buy milk", deadline: &deadline, priority: models.PriorityHigh, wantOK: true},
		{name: "valid task without deadline", title: "Call mom", priority: models.PriorityLow, wantOK: true},
		{name: "empty title", title: "", priority: models.PriorityMedium, wantOK: false},
		{name: "whitespace only title", title: "   ", priority: models.PriorityMedium, wantOK: false},
		{name: "tabs and newlines only", title: "\t\n ", priority: models.PriorityMedium, wantOK: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			s := NewStore()
			task, ok := s.Create(tt.title, tt.deadline, tt.priority)
			if ok != tt.wantOK {
				t.Fatalf("Create() ok = %v, want %v", ok, tt.wantOK)
			}

			if !tt.wantOK {
				if s.Len() != 0 {
					t.Errorf("Expected store to stay empty, got %d tasks", s.Len())
				}
				return
			}

			if s.Len() != 1 {
				t.Fatalf("Expected 1 task, got %d", s.Len())
			}
			if task.ID == uuid.Nil {
				t.Error("Expected a generated id")
			}
			if task.Title != tt.title || task.Priority != tt.priority {
				t.Errorf("Unexpected task fields: %+v", task)
			}
			if task.IsCompleted || task.CompletedAt != nil || task.AITips != nil || task.IsLoadingTips {
				t.Errorf("Expected a fresh active task, got %+v", task)
			}
			if (tt.deadline == nil) != (task.Deadline == nil) {
				t.Errorf("Deadline mismatch: got %v, want %v", task.Deadline, tt.deadline)
			}
		})
	}
}

func TestStore_CreateCopiesDeadline(t *testing.T) {
	t.Parallel()

	s := NewStore()
	deadline := time.Date(2024, 3, 16, 15, 0, 0, 0, time.UTC)
	task, _ := s.Create("Pay rent", &deadline, models.PriorityHigh)

	deadline = deadline.Add(48 * time.Hour)

	stored, _ := s.Get(task.ID)
	if !stored.Deadline.Equal(time.Date(2024, 3, 16, 15, 0, 0, 0, time.UTC)) {
		t.Errorf("Expected stored deadline to be unaffected by caller mutation, got %v", stored.Deadline)
	}
}

func TestStore_UniqueIDs(t *testing.T) {
	t.Parallel()

	s := NewStore()
	seen := make(map[uuid.UUID]bool)
	for i := 0; i < 100; i++ {
		task, _ := s.Create("task", nil, models.PriorityMedium)
		if seen[task.ID] {
			t.Fatalf("Duplicate id %s", task.ID)
		}
		seen[task.ID] = true
	}
}

func TestStore_Complete(t *testing.T) {
	t.Parallel()

	start := time.Date(2024, 3, 15, 10, 0, 0, 0, time.UTC)
	s := NewStore(WithClock(stepClock(start)))
	deadline := start.Add(time.Hour)
	task, _ := s.Create("Write report", &deadline, models.PriorityHigh)

	if !s.Complete(task.ID) {
		t.Fatal("Expected Complete to find the task")
	}

	got, _ := s.Get(task.ID)
	if !got.IsCompleted || got.CompletedAt == nil {
		t.Fatalf("Expected task to be completed, got %+v", got)
	}
	if !got.CompletedAt.Equal(start.Add(time.Minute)) {
		t.Errorf("Expected completed_at %v, got %v", start.Add(time.Minute), got.CompletedAt)
	}
	if got.Title != task.Title || got.Priority != task.Priority || !got.Deadline.Equal(deadline) {
		t.Errorf("Expected other fields to be untouched, got %+v", got)
	}
	assertCompletionInvariant(t, s)
}

// Completing twice stamps the second call's time; the first is not kept.
func TestStore_CompleteTwiceRestamps(t *testing.T) {
	t.Parallel()

	start := time.Date(2024, 3, 15, 10, 0, 0, 0, time.UTC)
	s := NewStore(WithClock(stepClock(start)))
	task, _ := s.Create("Water plants", nil, models.PriorityLow)

	s.Complete(task.ID)
	first, _ := s.Get(task.ID)
	s.Complete(task.ID)
	second, _ := s.Get(task.ID)

	if !second.CompletedAt.After(*first.CompletedAt) {
		t.Errorf("Expected second completion %v to be after first %v", second.CompletedAt, first.CompletedAt)
	}
	if !second.CompletedAt.Equal(start.Add(2 * time.Minute)) {
		t.Errorf("Expected completed_at to be the second call's time, got %v", second.CompletedAt)
	}
}

func TestStore_MissingTargetsAreNoOps(t *testing.T) {
	t.Parallel()

	s := NewStore()
	existing, _ := s.Create("Keep me", nil, models.PriorityMedium)
	before := s.Snapshot()
	missing := uuid.New()

	if s.Complete(missing) {
		t.Error("Complete on missing id reported a match")
	}
	if s.Delete(missing) {
		t.Error("Delete on missing id reported a match")
	}
	if s.BeginTipRequest(missing) {
		t.Error("BeginTipRequest on missing id reported a match")
	}
	if s.CompleteTipRequest(missing, "tips") {
		t.Error("CompleteTipRequest on missing id reported a match")
	}

	after := s.Snapshot()
	if len(after) != len(before) || after[0].ID != existing.ID {
		t.Fatalf("Expected store contents to be unchanged")
	}
	if after[0].IsCompleted || after[0].IsLoadingTips || after[0].AITips != nil {
		t.Errorf("Expected existing task untouched, got %+v", after[0])
	}
}

func TestStore_Delete(t *testing.T) {
	t.Parallel()

	s := NewStore()
	a, _ := s.Create("A", nil, models.PriorityMedium)
	b, _ := s.Create("B", nil, models.PriorityMedium)
	c, _ := s.Create("C", nil, models.PriorityMedium)

	if !s.Delete(b.ID) {
		t.Fatal("Expected Delete to find the task")
	}
	if _, ok := s.Get(b.ID); ok {
		t.Error("Expected deleted task to be gone")
	}

	snap := s.Snapshot()
	if len(snap) != 2 || snap[0].ID != a.ID || snap[1].ID != c.ID {
		t.Errorf("Expected insertion order [A, C] after delete, got %v", snap)
	}

	if s.Delete(b.ID) {
		t.Error("Expected second delete to be a no-op")
	}
}

func TestStore_TipRequestLifecycle(t *testing.T) {
	t.Parallel()

	s := NewStore()
	deadline := time.Date(2024, 3, 16, 15, 0, 0, 0, time.UTC)
	task, _ := s.Create("Plan trip", &deadline, models.PriorityHigh)

	if !s.BeginTipRequest(task.ID) {
		t.Fatal("Expected BeginTipRequest to find the task")
	}
	loading, _ := s.Get(task.ID)
	if !loading.IsLoadingTips {
		t.Error("Expected is_loading_tips to be true after BeginTipRequest")
	}
	if loading.AITips != nil {
		t.Error("Expected no tips while loading")
	}

	if !s.CompleteTipRequest(task.ID, "tip text") {
		t.Fatal("Expected CompleteTipRequest to find the task")
	}
	done, _ := s.Get(task.ID)
	if done.IsLoadingTips {
		t.Error("Expected is_loading_tips to be false after CompleteTipRequest")
	}
	if done.AITips == nil || *done.AITips != "tip text" {
		t.Errorf("Expected ai_tips 'tip text', got %v", done.AITips)
	}
	if done.Title != "Plan trip" || done.Priority != models.PriorityHigh || done.IsCompleted || !done.Deadline.Equal(deadline) {
		t.Errorf("Expected other fields untouched, got %+v", done)
	}
}

// A tip request that resolves after its task was deleted must not resurrect it.
func TestStore_TipResolvesAfterDelete(t *testing.T) {
	t.Parallel()

	s := NewStore()
	task, _ := s.Create("Doomed", nil, models.PriorityLow)
	s.BeginTipRequest(task.ID)
	s.Delete(task.ID)

	if s.CompleteTipRequest(task.ID, "late tips") {
		t.Error("Expected late tip resolution to be a no-op")
	}
	if s.Len() != 0 {
		t.Errorf("Expected empty store, got %d tasks", s.Len())
	}
}

func TestStore_SnapshotIsolation(t *testing.T) {
	t.Parallel()

	s := NewStore()
	task, _ := s.Create("Original", nil, models.PriorityMedium)
	s.CompleteTipRequest(task.ID, "tips")

	snap := s.Snapshot()
	snap[0].Title = "Mutated"
	*snap[0].AITips = "mutated tips"

	got, _ := s.Get(task.ID)
	if got.Title != "Original" || *got.AITips != "tips" {
		t.Errorf("Expected store to be isolated from snapshot mutation, got %+v", got)
	}
}

func TestStore_CompletionInvariantAcrossSequences(t *testing.T) {
	t.Parallel()

	s := NewStore(WithClock(stepClock(time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC))))
	var ids []uuid.UUID
	for i := 0; i < 20; i++ {
		task, _ := s.Create("task", nil, models.PriorityMedium)
		ids = append(ids, task.ID)
		assertCompletionInvariant(t, s)
	}
	for i, id := range ids {
		switch i % 3 {
		case 0:
			s.Complete(id)
		case 1:
			s.Delete(id)
		default:
			s.Complete(id)
			s.Complete(id)
		}
		assertCompletionInvariant(t, s)
	}
}

func TestStore_ConcurrentMutations(t *testing.T) {
	t.Parallel()

	s := NewStore()
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			task, _ := s.Create("concurrent", nil, models.PriorityMedium)
			s.BeginTipRequest(task.ID)
			s.CompleteTipRequest(task.ID, "tips")
			s.Complete(task.ID)
			_ = s.Snapshot()
		}()
	}
	wg.Wait()

	if s.Len() != 50 {
		t.Fatalf("Expected 50 tasks, got %d", s.Len())
	}
	assertCompletionInvariant(t, s)
}

func TestStore_WithIDGenerator(t *testing.T) {
	t.Parallel()

	fixed := uuid.MustParse("6f1c5b7e-2d4a-4b8e-9c3f-1a2b3c4d5e6f")
	s := NewStore(WithIDGenerator(func() uuid.UUID { return fixed }))
	task, _ := s.Create("Fixed id", nil, models.PriorityMedium)
	if task.ID != fixed {
		t.Errorf("Expected id %s, got %s", fixed, task.ID)
	}
}

func TestStore_StartTipRequest(t *testing.T) {
	t.Parallel()

	s := NewStore()
	task, _ := s.Create("Write report", nil, models.PriorityLow)

	got, started, found := s.StartTipRequest(task.ID)
	if !found || !started {
		t.Fatalf("Expected first request to start, got started=%v found=%v", started, found)
	}
	if !got.IsLoadingTips {
		t.Error("Expected returned task to be loading")
	}

	if _, started, _ := s.StartTipRequest(task.ID); started {
		t.Error("Expected no second request while one is outstanding")
	}

	s.CompleteTipRequest(task.ID, "- tip")
	got, started, found = s.StartTipRequest(task.ID)
	if !found || started {
		t.Errorf("Expected no request once tips exist, got started=%v found=%v", started, found)
	}
	if got.AITips == nil || *got.AITips != "- tip" || got.IsLoadingTips {
		t.Errorf("Unexpected task state %+v", got)
	}

	if _, started, found := s.StartTipRequest(uuid.New()); started || found {
		t.Error("Expected missing task to be a no-op")
	}

	done, _ := s.Create("Already done", nil, models.PriorityHigh)
	s.Complete(done.ID)
	got, started, found = s.StartTipRequest(done.ID)
	if !found || started {
		t.Errorf("Expected no request for a completed task, got started=%v found=%v", started, found)
	}
	if got.IsLoadingTips {
		t.Error("Completed task must not be flagged as loading")
	}
}

func TestStore_StartTipRequest_Concurrent(t *testing.T) {
	t.Parallel()

	s := NewStore()
	task, _ := s.Create("Write report", nil, models.PriorityLow)

	var wg sync.WaitGroup
	var mu sync.Mutex
	starts := 0
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, started, _ := s.StartTipRequest(task.ID); started {
				mu.Lock()
				starts++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	if starts != 1 {
		t.Errorf("Expected exactly one request to start, got %d", starts)
	}
}
