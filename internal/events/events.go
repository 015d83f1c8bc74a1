package events

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/jparker/dispatch-api/internal/domain"
)

// EventKind identifies what happened to a task or breaker.
type EventKind string

// Possible lifecycle event kinds
const (
	EventTaskCompleted     EventKind = "task_completed"
	EventTaskFailed        EventKind = "task_failed"
	EventTaskRetried       EventKind = "task_retried"
	EventCircuitTransition EventKind = "circuit_transition"
)

// TaskLifecycleEvent is a single observability event emitted by the
// task processor. Task fields are zero for circuit transition events,
// and the circuit fields are empty for task events.
type TaskLifecycleEvent struct {
	// ID is a unique identifier for this event
	ID uuid.UUID `json:"id"`

	// Kind indicates what happened
	Kind EventKind `json:"kind"`

	// TaskID and TaskType identify the affected task
	TaskID   uuid.UUID `json:"task_id,omitempty"`
	TaskType string    `json:"task_type"`

	// Status is the task's status after the event
	Status domain.TaskStatus `json:"status,omitempty"`

	// Attempt is the task's attempt count after the event
	Attempt int `json:"attempt,omitempty"`

	// Duration is the handler execution time, when a handler ran
	Duration time.Duration `json:"duration,omitempty"`

	// Error carries the failure description for failed/retried events
	Error string `json:"error,omitempty"`

	// OldState and NewState carry breaker states for circuit events
	OldState string `json:"old_state,omitempty"`
	NewState string `json:"new_state,omitempty"`

	// OccurredAt is the timestamp when the event was created
	OccurredAt time.Time `json:"occurred_at"`
}

// NewTaskEvent creates a lifecycle event for the given task.
func NewTaskEvent(kind EventKind, t *domain.Task, duration time.Duration, errMsg string) *TaskLifecycleEvent {
	return &TaskLifecycleEvent{
		ID:         uuid.New(),
		Kind:       kind,
		TaskID:     t.ID,
		TaskType:   t.TaskType,
		Status:     t.Status,
		Attempt:    t.AttemptCount,
		Duration:   duration,
		Error:      errMsg,
		OccurredAt: time.Now().UTC(),
	}
}

// NewCircuitEvent creates a circuit transition event for a task type.
func NewCircuitEvent(taskType, oldState, newState string) *TaskLifecycleEvent {
	return &TaskLifecycleEvent{
		ID:         uuid.New(),
		Kind:       EventCircuitTransition,
		TaskType:   taskType,
		OldState:   oldState,
		NewState:   newState,
		OccurredAt: time.Now().UTC(),
	}
}

// EventHandler defines an interface for components that consume
// lifecycle events.
type EventHandler interface {
	// HandleEvent processes the given event within the provided context.
	// Returns an error if the event cannot be handled successfully.
	HandleEvent(ctx context.Context, event *TaskLifecycleEvent) error
}

// EventEmitter defines an interface for components that emit lifecycle
// events. This allows the processor to publish events without direct
// knowledge of handlers.
type EventEmitter interface {
	// EmitEvent publishes the given event to all registered handlers.
	// Returns an error if the event cannot be emitted.
	EmitEvent(ctx context.Context, event *TaskLifecycleEvent) error
}
