package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/benvon/zentask/internal/board"
	"github.com/benvon/zentask/internal/logger"
	"github.com/benvon/zentask/internal/models"
	"github.com/benvon/zentask/internal/request"
	"github.com/benvon/zentask/internal/validation"
	"github.com/benvon/zentask/internal/workers"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"go.uber.org/zap"
)

// TaskBoard is the board.Store surface the handlers use
type TaskBoard interface {
	Create(title string, deadline *time.Time, priority models.Priority) (models.Task, bool)
	Complete(id uuid.UUID) bool
	Delete(id uuid.UUID) bool
	Get(id uuid.UUID) (models.Task, bool)
	Snapshot() []models.Task
}

// TipRequester starts asynchronous tip requests
type TipRequester interface {
	RequestTips(ctx context.Context, id uuid.UUID) (models.Task, workers.DispatchResult)
}

// TaskHandler handles board and task requests
type TaskHandler struct {
	board  TaskBoard
	tips   TipRequester
	logger *zap.Logger
	now    func() time.Time
	tipsMW func(http.Handler) http.Handler
}

// TaskHandlerOption configures a TaskHandler
type TaskHandlerOption func(*TaskHandler)

// WithTaskClock overrides the clock used to compute overdue flags
func WithTaskClock(now func() time.Time) TaskHandlerOption {
	return func(h *TaskHandler) {
		if now != nil {
			h.now = now
		}
	}
}

// WithTipsMiddleware wraps only the tip request route, e.g. with a rate limiter
func WithTipsMiddleware(mw func(http.Handler) http.Handler) TaskHandlerOption {
	return func(h *TaskHandler) {
		h.tipsMW = mw
	}
}

// NewTaskHandler creates a new task handler
func NewTaskHandler(b TaskBoard, tips TipRequester, log *zap.Logger, opts ...TaskHandlerOption) *TaskHandler {
	if log == nil {
		log = zap.NewNop()
	}
	h := &TaskHandler{
		board:  b,
		tips:   tips,
		logger: log,
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// RegisterRoutes registers board and task routes on the given router
// The router should already have the /api/v1 prefix
func (h *TaskHandler) RegisterRoutes(r *mux.Router) {
	r.HandleFunc("/board", h.GetBoard).Methods(http.MethodGet)
	r.HandleFunc("/tasks", h.CreateTask).Methods(http.MethodPost)
	r.HandleFunc("/tasks/{id}", h.GetTask).Methods(http.MethodGet)
	r.HandleFunc("/tasks/{id}", h.DeleteTask).Methods(http.MethodDelete)
	r.HandleFunc("/tasks/{id}/complete", h.CompleteTask).Methods(http.MethodPost)

	var tips http.Handler = http.HandlerFunc(h.RequestTips)
	if h.tipsMW != nil {
		tips = h.tipsMW(tips)
	}
	r.Handle("/tasks/{id}/tips", tips).Methods(http.MethodPost)
}

// CreateTaskRequest represents a create task request
type CreateTaskRequest struct {
	Title    string `json:"title" validate:"title"`
	Deadline string `json:"deadline,omitempty"`
	Priority string `json:"priority,omitempty" validate:"omitempty,priority"`
}

// GetBoard returns the active and completed views
func (h *TaskHandler) GetBoard(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, h.projection())
}

// GetTask returns a single task with its overdue flag
func (h *TaskHandler) GetTask(w http.ResponseWriter, r *http.Request) {
	id, ok := taskID(r)
	if !ok {
		respondJSONError(w, http.StatusNotFound, "Not Found", "Task not found")
		return
	}

	task, found := h.board.Get(id)
	if !found {
		respondJSONError(w, http.StatusNotFound, "Not Found", "Task not found")
		return
	}

	respondJSON(w, http.StatusOK, h.view(task))
}

// CreateTask adds a task to the board. A title that is blank after
// sanitization is ignored and answered with 204.
func (h *TaskHandler) CreateTask(w http.ResponseWriter, r *http.Request) {
	var req CreateTaskRequest
	decoder := json.NewDecoder(r.Body)
	if err := decoder.Decode(&req); err != nil {
		var maxBytesErr *http.MaxBytesError
		if errors.As(err, &maxBytesErr) {
			respondJSONError(w, http.StatusRequestEntityTooLarge, "Request Entity Too Large", fmt.Sprintf("Request body exceeds maximum size of %d bytes", maxBytesErr.Limit))
			return
		}
		respondJSONError(w, http.StatusBadRequest, "Bad Request", "Invalid request body")
		return
	}

	if err := validation.Validate.Struct(req); err != nil {
		var validationErrors validator.ValidationErrors
		if errors.As(err, &validationErrors) && len(validationErrors) > 0 {
			respondJSONError(w, http.StatusBadRequest, "Bad Request", validationMessage(validationErrors[0]))
			return
		}
		respondJSONError(w, http.StatusBadRequest, "Bad Request", "Validation failed")
		return
	}

	priority, err := validation.ParsePriority(req.Priority)
	if err != nil {
		respondJSONError(w, http.StatusBadRequest, "Bad Request", err.Error())
		return
	}

	deadline, err := validation.ParseDeadline(req.Deadline)
	if err != nil {
		respondJSONError(w, http.StatusBadRequest, "Bad Request", err.Error())
		return
	}

	task, created := h.board.Create(validation.SanitizeText(req.Title), deadline, priority)
	if !created {
		h.logger.Debug("task_create_ignored",
			zap.String("reason", "blank_title"),
			zap.String("request_id", request.IDFromContext(r.Context())),
		)
		w.WriteHeader(http.StatusNoContent)
		return
	}

	h.logger.Info("task_created",
		zap.String("task_id", task.ID.String()),
		zap.String("title", logger.SanitizeTitle(task.Title)),
		zap.String("priority", string(task.Priority)),
		zap.String("request_id", request.IDFromContext(r.Context())),
	)
	respondJSON(w, http.StatusCreated, h.view(task))
}

// CompleteTask moves the task to the completed list and returns the board
func (h *TaskHandler) CompleteTask(w http.ResponseWriter, r *http.Request) {
	if id, ok := taskID(r); ok {
		if h.board.Complete(id) {
			h.logger.Info("task_completed",
				zap.String("task_id", id.String()),
				zap.String("request_id", request.IDFromContext(r.Context())),
			)
		}
	}
	respondJSON(w, http.StatusOK, h.projection())
}

// DeleteTask removes the task. Deleting a missing task succeeds.
func (h *TaskHandler) DeleteTask(w http.ResponseWriter, r *http.Request) {
	if id, ok := taskID(r); ok {
		if h.board.Delete(id) {
			h.logger.Info("task_deleted",
				zap.String("task_id", id.String()),
				zap.String("request_id", request.IDFromContext(r.Context())),
			)
		}
	}
	w.WriteHeader(http.StatusNoContent)
}

// RequestTips starts an asynchronous tip request for the task. Clients poll
// the task or board until is_loading_tips clears.
func (h *TaskHandler) RequestTips(w http.ResponseWriter, r *http.Request) {
	id, ok := taskID(r)
	if !ok {
		respondJSONError(w, http.StatusNotFound, "Not Found", "Task not found")
		return
	}

	task, result := h.tips.RequestTips(r.Context(), id)
	switch result {
	case workers.DispatchNotFound:
		respondJSONError(w, http.StatusNotFound, "Not Found", "Task not found")
	case workers.DispatchSkipped:
		respondJSON(w, http.StatusOK, h.view(task))
	default:
		respondJSON(w, http.StatusAccepted, h.view(task))
	}
}

func (h *TaskHandler) projection() board.Projection {
	return board.Project(h.board.Snapshot(), h.now())
}

func (h *TaskHandler) view(task models.Task) board.TaskView {
	return board.TaskView{Task: task, Overdue: board.IsOverdue(task, h.now())}
}

// validationMessage turns a validator field error into a client message
func validationMessage(fe validator.FieldError) string {
	switch fe.Tag() {
	case "title":
		return fmt.Sprintf("Validation failed: %s exceeds maximum length of %d characters", fe.Field(), validation.MaxTitleLength)
	case "priority":
		return fmt.Sprintf("Validation failed: invalid priority %q (must be 'High', 'Medium', or 'Low')", fe.Value())
	default:
		return fmt.Sprintf("Validation failed: %s", fe.Error())
	}
}
