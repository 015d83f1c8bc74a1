package task

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jparker/dispatch-api/internal/domain"
	"github.com/jparker/dispatch-api/internal/store"
)

// MemoryTaskStore is an in-memory TaskStore. The claim operation is a
// single compare-and-swap under the store lock, giving the same
// at-most-one-claimant guarantee the SQL store gets from row locking.
// It backs the engine's tests; function fields allow overriding
// individual operations to inject failures.
type MemoryTaskStore struct {
	mu    sync.Mutex
	tasks map[uuid.UUID]*domain.Task

	// Overridable hooks for tests. When nil the default in-memory
	// behavior applies.
	CreateFn    func(ctx context.Context, t *domain.Task) error
	UpdateFn    func(ctx context.Context, t *domain.Task) error
	ClaimNextFn func(ctx context.Context, now time.Time) (*domain.Task, error)
}

// Ensure MemoryTaskStore implements the TaskStore interface
var _ TaskStore = (*MemoryTaskStore)(nil)

// NewMemoryTaskStore creates an empty MemoryTaskStore.
func NewMemoryTaskStore() *MemoryTaskStore {
	return &MemoryTaskStore{
		tasks: make(map[uuid.UUID]*domain.Task),
	}
}

// Create persists a new task.
func (s *MemoryTaskStore) Create(ctx context.Context, t *domain.Task) error {
	if s.CreateFn != nil {
		return s.CreateFn(ctx, t)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.tasks[t.ID]; exists {
		return store.ErrDuplicate
	}
	s.tasks[t.ID] = cloneTask(t)
	return nil
}

// GetByID retrieves a task by ID.
func (s *MemoryTaskStore) GetByID(ctx context.Context, id uuid.UUID) (*domain.Task, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	t, ok := s.tasks[id]
	if !ok {
		return nil, store.ErrTaskNotFound
	}
	return cloneTask(t), nil
}

// ClaimNext claims the next eligible pending task under the store lock:
// the scan-and-transition is atomic, so no two callers can claim the
// same task.
func (s *MemoryTaskStore) ClaimNext(ctx context.Context, now time.Time) (*domain.Task, error) {
	if s.ClaimNextFn != nil {
		return s.ClaimNextFn(ctx, now)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	var best *domain.Task
	for _, t := range s.tasks {
		if t.Status != domain.TaskStatusPending || t.NextRunAt.After(now) {
			continue
		}
		if best == nil || claimBefore(t, best) {
			best = t
		}
	}

	if best == nil {
		return nil, nil
	}

	best.Status = domain.TaskStatusRunning
	best.UpdatedAt = now.UTC()
	return cloneTask(best), nil
}

// claimBefore reports whether a should be claimed before b: priority
// descending, then next_run_at ascending, then created_at ascending.
func claimBefore(a, b *domain.Task) bool {
	if a.Priority != b.Priority {
		return a.Priority > b.Priority
	}
	if !a.NextRunAt.Equal(b.NextRunAt) {
		return a.NextRunAt.Before(b.NextRunAt)
	}
	return a.CreatedAt.Before(b.CreatedAt)
}

// Update persists the full mutable state of an existing task.
func (s *MemoryTaskStore) Update(ctx context.Context, t *domain.Task) error {
	if s.UpdateFn != nil {
		return s.UpdateFn(ctx, t)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.tasks[t.ID]; !ok {
		return store.ErrTaskNotFound
	}
	updated := cloneTask(t)
	updated.UpdatedAt = time.Now().UTC()
	s.tasks[t.ID] = updated
	return nil
}

// Query returns tasks matching the filter, newest first.
func (s *MemoryTaskStore) Query(ctx context.Context, filter TaskFilter) ([]*domain.Task, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var matched []*domain.Task
	for _, t := range s.tasks {
		if filter.Status != nil && t.Status != *filter.Status {
			continue
		}
		if filter.TaskType != "" && t.TaskType != filter.TaskType {
			continue
		}
		if filter.OlderThan != nil && !t.UpdatedAt.Before(*filter.OlderThan) {
			continue
		}
		matched = append(matched, cloneTask(t))
	}

	sort.Slice(matched, func(i, j int) bool {
		return matched[i].CreatedAt.After(matched[j].CreatedAt)
	})

	if filter.Offset > 0 {
		if filter.Offset >= len(matched) {
			return nil, nil
		}
		matched = matched[filter.Offset:]
	}
	if filter.Limit > 0 && len(matched) > filter.Limit {
		matched = matched[:filter.Limit]
	}
	return matched, nil
}

// DeleteCompletedBefore removes completed tasks older than the cutoff.
func (s *MemoryTaskStore) DeleteCompletedBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var removed int64
	for id, t := range s.tasks {
		if t.Status == domain.TaskStatusCompleted && t.UpdatedAt.Before(cutoff) {
			delete(s.tasks, id)
			removed++
		}
	}
	return removed, nil
}

// Stats aggregates counts by status and the average completion time,
// optionally scoped to one task type.
func (s *MemoryTaskStore) Stats(ctx context.Context, taskType string) (*TaskStats, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	stats := &TaskStats{
		CountsByStatus: make(map[domain.TaskStatus]int64),
	}

	var completed int64
	var totalCompletion time.Duration
	for _, t := range s.tasks {
		if taskType != "" && t.TaskType != taskType {
			continue
		}
		stats.CountsByStatus[t.Status]++
		if t.Status == domain.TaskStatusCompleted {
			completed++
			totalCompletion += t.UpdatedAt.Sub(t.CreatedAt)
		}
	}

	if completed > 0 {
		avg := totalCompletion / time.Duration(completed)
		stats.AvgCompletion = &avg
	}
	return stats, nil
}

// ReleaseStuck resets running tasks older than the given age to pending.
func (s *MemoryTaskStore) ReleaseStuck(ctx context.Context, olderThan time.Duration) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	cutoff := time.Now().UTC().Add(-olderThan)
	var released int64
	for _, t := range s.tasks {
		if t.Status == domain.TaskStatusRunning && t.UpdatedAt.Before(cutoff) {
			t.Status = domain.TaskStatusPending
			t.UpdatedAt = time.Now().UTC()
			released++
		}
	}
	return released, nil
}

// Len returns the number of stored tasks.
func (s *MemoryTaskStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.tasks)
}

func cloneTask(t *domain.Task) *domain.Task {
	copied := *t
	if t.Payload != nil {
		copied.Payload = make(map[string]any, len(t.Payload))
		for k, v := range t.Payload {
			copied.Payload[k] = v
		}
	}
	return &copied
}
