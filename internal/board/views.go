package board

import (
	"sort"
	"time"

	"github.com/benvon/zentask/internal/models"
)

// TaskView is a task as presented to the user, with its overdue flag
// evaluated at projection time
type TaskView struct {
	models.Task
	Overdue bool `json:"overdue"`
}

// Projection is the render-ready state of the board
type Projection struct {
	Active    []TaskView `json:"active"`
	Completed []TaskView `json:"completed"`
	Remaining int        `json:"remaining"`
}

// ActiveView returns the tasks that are not completed. Tasks with a deadline
// come first, earliest deadline first; tasks without one keep their relative
// order. Priority does not take part in the ordering.
func ActiveView(tasks []models.Task) []models.Task {
	active := make([]models.Task, 0, len(tasks))
	for _, t := range tasks {
		if !t.IsCompleted {
			active = append(active, t)
		}
	}

	sort.SliceStable(active, func(i, j int) bool {
		a, b := active[i].Deadline, active[j].Deadline
		switch {
		case a != nil && b != nil:
			return a.Before(*b)
		case a != nil:
			return true
		default:
			return false
		}
	})
	return active
}

// CompletedView returns the completed tasks, most recently completed first.
// A completed task without a completion time sorts last.
func CompletedView(tasks []models.Task) []models.Task {
	done := make([]models.Task, 0, len(tasks))
	for _, t := range tasks {
		if t.IsCompleted {
			done = append(done, t)
		}
	}

	sort.SliceStable(done, func(i, j int) bool {
		a, b := done[i].CompletedAt, done[j].CompletedAt
		switch {
		case a != nil && b != nil:
			return a.After(*b)
		case a != nil:
			return true
		default:
			return false
		}
	})
	return done
}

// IsOverdue reports whether an active task's deadline is strictly before now
func IsOverdue(t models.Task, now time.Time) bool {
	return !t.IsCompleted && t.Deadline != nil && t.Deadline.Before(now)
}

// Project builds both views from a snapshot of the store
func Project(tasks []models.Task, now time.Time) Projection {
	active := ActiveView(tasks)
	completed := CompletedView(tasks)

	p := Projection{
		Active:    make([]TaskView, 0, len(active)),
		Completed: make([]TaskView, 0, len(completed)),
		Remaining: len(active),
	}
	for _, t := range active {
		p.Active = append(p.Active, TaskView{Task: t, Overdue: IsOverdue(t, now)})
	}
	for _, t := range completed {
		p.Completed = append(p.Completed, TaskView{Task: t})
	}
	return p
}
