package models

import (
	"time"

	"github.com/google/uuid"
)

// Priority represents how severe a task is
type Priority string

const (
	PriorityHigh   Priority = "High"
	PriorityMedium Priority = "Medium"
	PriorityLow    Priority = "Low"
)

// Valid reports whether p is one of the known priorities
func (p Priority) Valid() bool {
	switch p {
	case PriorityHigh, PriorityMedium, PriorityLow:
		return true
	default:
		return false
	}
}

// Task represents a single item on the board
type Task struct {
	ID            uuid.UUID  `json:"id"`
	Title         string     `json:"title"`
	Deadline      *time.Time `json:"deadline,omitempty"`
	Priority      Priority   `json:"priority"`
	IsCompleted   bool       `json:"is_completed"`
	CompletedAt   *time.Time `json:"completed_at,omitempty"`
	AITips        *string    `json:"ai_tips,omitempty"`
	IsLoadingTips bool       `json:"is_loading_tips"`
}

// HasTips reports whether a tip request has already resolved for the task
func (t Task) HasTips() bool {
	return t.AITips != nil
}

// Clone returns a copy of the task that shares no pointers with the original
func (t Task) Clone() Task {
	c := t
	if t.Deadline != nil {
		d := *t.Deadline
		c.Deadline = &d
	}
	if t.CompletedAt != nil {
		ca := *t.CompletedAt
		c.CompletedAt = &ca
	}
	if t.AITips != nil {
		tips := *t.AITips
		c.AITips = &tips
	}
	return c
}
