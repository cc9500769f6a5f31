package tasks

import (
	"errors"
	"time"

	"github.com/google/uuid"
)

var (
	ErrTaskNotFound     = errors.New("task not found")
	ErrDuplicateTask    = errors.New("an active task with this title already exists for the assignee")
	ErrAlreadyCompleted = errors.New("task already completed")
	ErrNotAuthorized    = errors.New("caller has no authority over this task")
	ErrAssigneeNotFound = errors.New("assignee not found")
)

// Status represents a task's lifecycle state. OPEN transitions to
// COMPLETED exactly once; there is no reopen.
type Status string

const (
	StatusOpen      Status = "OPEN"
	StatusCompleted Status = "COMPLETED"
)

// IsValid reports whether the status is one of the known values
func (s Status) IsValid() bool {
	return s == StatusOpen || s == StatusCompleted
}

// UserRef is the embedded user summary the client renders on task rows.
type UserRef struct {
	ID    uuid.UUID `json:"id"`
	Name  string    `json:"name"`
	Email string    `json:"email,omitempty"`
}

// Task represents an assignment in the task ledger.
type Task struct {
	ID               uuid.UUID  `json:"id"`
	Title            string     `json:"title"`
	Description      *string    `json:"description"`
	Status           Status     `json:"status"`
	AssignedToUserID uuid.UUID  `json:"assignedToUserId"`
	CreatedByUserID  uuid.UUID  `json:"createdByUserId"`
	CreatedAt        time.Time  `json:"createdAt"`
	CompletedAt      *time.Time `json:"completedAt"`
	AssignedTo       *UserRef   `json:"assignedTo,omitempty"`
	CreatedBy        *UserRef   `json:"createdBy,omitempty"`
}

// ListFilter narrows a task listing. Nil fields mean no constraint.
type ListFilter struct {
	Status           *Status
	AssignedToUserID *uuid.UUID
}
