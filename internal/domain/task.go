package domain

import (
	"errors"
	"time"

	"github.com/google/uuid"
)

// TaskStatus represents the lifecycle state of a task.
type TaskStatus string

// Possible task status values
const (
	TaskStatusPending   TaskStatus = "pending"
	TaskStatusRunning   TaskStatus = "running"
	TaskStatusCompleted TaskStatus = "completed"
	TaskStatusFailed    TaskStatus = "failed"
	TaskStatusCancelled TaskStatus = "cancelled"
)

// TaskPriority determines claim ordering. Higher values are claimed first.
type TaskPriority int

// Possible task priority values, ordered Critical > High > Normal > Low.
const (
	TaskPriorityLow      TaskPriority = 0
	TaskPriorityNormal   TaskPriority = 1
	TaskPriorityHigh     TaskPriority = 2
	TaskPriorityCritical TaskPriority = 3
)

// Common validation errors for Task
var (
	ErrEmptyTaskID       = errors.New("task ID cannot be empty")
	ErrEmptyTaskType     = errors.New("task type cannot be empty")
	ErrInvalidTaskStatus = errors.New("invalid task status")
	ErrInvalidPriority   = errors.New("invalid task priority")
	ErrInvalidAttempts   = errors.New("max attempts must be positive")
)

// Task represents a persisted unit of deferred work. It is created by a
// producer with status pending, mutated exclusively by the task processor
// during execution, and removed only by retention cleanup.
type Task struct {
	ID           uuid.UUID      `json:"id"`
	TaskType     string         `json:"task_type"`
	Status       TaskStatus     `json:"status"`
	Priority     TaskPriority   `json:"priority"`
	Payload      map[string]any `json:"payload"`
	AttemptCount int            `json:"attempt_count"`
	MaxAttempts  int            `json:"max_attempts"`
	NextRunAt    time.Time      `json:"next_run_at"`
	LastError    string         `json:"last_error,omitempty"`
	CreatedAt    time.Time      `json:"created_at"`
	UpdatedAt    time.Time      `json:"updated_at"`
}

// NewTask creates a new Task with the given type and payload.
// It generates a new UUID, sets the status to pending, applies the
// default priority (normal) when none is supplied, and schedules the
// task for immediate execution unless scheduledAt is in the future.
// Returns an error if validation fails.
func NewTask(
	taskType string,
	priority TaskPriority,
	payload map[string]any,
	maxAttempts int,
	scheduledAt time.Time,
) (*Task, error) {
	now := time.Now().UTC()
	if scheduledAt.IsZero() {
		scheduledAt = now
	}

	task := &Task{
		ID:          uuid.New(),
		TaskType:    taskType,
		Status:      TaskStatusPending,
		Priority:    priority,
		Payload:     payload,
		MaxAttempts: maxAttempts,
		NextRunAt:   scheduledAt.UTC(),
		CreatedAt:   now,
		UpdatedAt:   now,
	}

	if err := task.Validate(); err != nil {
		return nil, err
	}

	return task, nil
}

// Validate checks that the task satisfies its invariants.
func (t *Task) Validate() error {
	if t.ID == uuid.Nil {
		return ErrEmptyTaskID
	}
	if t.TaskType == "" {
		return ErrEmptyTaskType
	}
	if !t.Status.IsValid() {
		return ErrInvalidTaskStatus
	}
	if t.Priority < TaskPriorityLow || t.Priority > TaskPriorityCritical {
		return ErrInvalidPriority
	}
	if t.MaxAttempts <= 0 {
		return ErrInvalidAttempts
	}
	return nil
}

// IsTerminal reports whether the task has reached a state with no
// outgoing transitions.
func (t *Task) IsTerminal() bool {
	return t.Status == TaskStatusCompleted ||
		t.Status == TaskStatusFailed ||
		t.Status == TaskStatusCancelled
}

// IsValid reports whether the status is one of the defined values.
func (s TaskStatus) IsValid() bool {
	switch s {
	case TaskStatusPending, TaskStatusRunning, TaskStatusCompleted,
		TaskStatusFailed, TaskStatusCancelled:
		return true
	}
	return false
}

// ParseTaskStatus converts a string into a TaskStatus.
// Returns ErrInvalidTaskStatus for unknown values.
func ParseTaskStatus(s string) (TaskStatus, error) {
	status := TaskStatus(s)
	if !status.IsValid() {
		return "", ErrInvalidTaskStatus
	}
	return status, nil
}

// String returns the human-readable priority name.
func (p TaskPriority) String() string {
	switch p {
	case TaskPriorityLow:
		return "low"
	case TaskPriorityNormal:
		return "normal"
	case TaskPriorityHigh:
		return "high"
	case TaskPriorityCritical:
		return "critical"
	default:
		return "unknown"
	}
}

// ParseTaskPriority converts a priority name into a TaskPriority.
// An empty string maps to the default priority (normal).
func ParseTaskPriority(s string) (TaskPriority, error) {
	switch s {
	case "", "normal":
		return TaskPriorityNormal, nil
	case "low":
		return TaskPriorityLow, nil
	case "high":
		return TaskPriorityHigh, nil
	case "critical":
		return TaskPriorityCritical, nil
	default:
		return 0, ErrInvalidPriority
	}
}
