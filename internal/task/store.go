package task

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/jparker/dispatch-api/internal/domain"
)

// TaskFilter controls which tasks are returned by TaskStore.Query.
// Nil or zero fields are not applied.
type TaskFilter struct {
	Status    *domain.TaskStatus
	TaskType  string
	OlderThan *time.Time // matches tasks whose updated_at is before this instant
	Limit     int
	Offset    int
}

// TaskStats aggregates operational counters over the task table.
type TaskStats struct {
	// CountsByStatus holds the number of tasks in each status.
	CountsByStatus map[domain.TaskStatus]int64 `json:"counts_by_status"`

	// AvgCompletion is the mean time from creation to completion over
	// all completed tasks. Nil when there are no completed tasks.
	AvgCompletion *time.Duration `json:"avg_completion,omitempty"`
}

// TotalCount returns the total number of tasks across all statuses.
func (s *TaskStats) TotalCount() int64 {
	var total int64
	for _, n := range s.CountsByStatus {
		total += n
	}
	return total
}

// TaskStore defines the persistence boundary consumed by the task
// engine. Implementations must provide row-level mutual exclusion for
// ClaimNext: no two concurrent callers may claim the same task.
type TaskStore interface {
	// Create persists a new task.
	Create(ctx context.Context, t *domain.Task) error

	// GetByID retrieves a task by its unique ID.
	// Returns store.ErrTaskNotFound if the task does not exist.
	GetByID(ctx context.Context, id uuid.UUID) (*domain.Task, error)

	// ClaimNext atomically claims the next eligible pending task,
	// transitioning it to running, and returns it. Eligible tasks have
	// status pending and next_run_at at or before now; claim order is
	// priority descending, then next_run_at ascending, then created_at
	// ascending. Returns (nil, nil) when no task is eligible.
	ClaimNext(ctx context.Context, now time.Time) (*domain.Task, error)

	// Update persists the full mutable state of an existing task and
	// refreshes its updated_at timestamp.
	// Returns store.ErrTaskNotFound if the task does not exist.
	Update(ctx context.Context, t *domain.Task) error

	// Query returns tasks matching the filter, newest first.
	Query(ctx context.Context, filter TaskFilter) ([]*domain.Task, error)

	// DeleteCompletedBefore removes completed tasks whose updated_at is
	// before the cutoff and returns the number removed. Tasks in any
	// other status are never touched.
	DeleteCompletedBefore(ctx context.Context, cutoff time.Time) (int64, error)

	// Stats returns aggregate counts by status and the average
	// completion time of completed tasks. A non-empty taskType scopes
	// the aggregate to that task type; empty covers the whole table.
	Stats(ctx context.Context, taskType string) (*TaskStats, error)

	// ReleaseStuck resets running tasks whose updated_at is older than
	// the given age back to pending, making them eligible for reclaim
	// after a worker crash. Returns the number of tasks released.
	ReleaseStuck(ctx context.Context, olderThan time.Duration) (int64, error)
}
