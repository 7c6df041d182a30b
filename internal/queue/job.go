package queue

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// ErrInvalidJob is returned when a job payload cannot be used
var ErrInvalidJob = errors.New("invalid tip job")

// TipJob asks a worker to fetch tips for one task
type TipJob struct {
	ID        uuid.UUID `json:"id"`
	TaskID    uuid.UUID `json:"task_id"`
	Title     string    `json:"title"`
	RequestID string    `json:"request_id,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

// NewTipJob creates a new job for the task
func NewTipJob(taskID uuid.UUID, title string, requestID string) *TipJob {
	return &TipJob{
		ID:        uuid.New(),
		TaskID:    taskID,
		Title:     title,
		RequestID: requestID,
		CreatedAt: time.Now(),
	}
}

// Age returns how long the job has been waiting relative to now
func (j *TipJob) Age(now time.Time) time.Duration {
	return now.Sub(j.CreatedAt)
}

// decodeJob parses a wire payload into a job
func decodeJob(body []byte) (*TipJob, error) {
	var job TipJob
	if err := json.Unmarshal(body, &job); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidJob, err)
	}
	if job.TaskID == uuid.Nil {
		return nil, fmt.Errorf("%w: missing task_id", ErrInvalidJob)
	}
	return &job, nil
}
