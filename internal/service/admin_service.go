package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/jparker/dispatch-api/internal/domain"
	"github.com/jparker/dispatch-api/internal/task"
)

// StatsCache is the optional read cache consulted before hitting the
// store for aggregate statistics. A nil cache disables caching.
type StatsCache interface {
	Get(ctx context.Context) (*task.TaskStats, bool)
	Set(ctx context.Context, stats *task.TaskStats)
	Invalidate(ctx context.Context)
}

// CleanupResult reports what a retention cleanup did, or would do when
// dry-run.
type CleanupResult struct {
	// Count is the number of tasks removed, or eligible when dry-run.
	Count int64 `json:"count"`

	// TaskIDs lists the eligible tasks. Populated only for dry runs,
	// where the operator wants to inspect before deleting.
	TaskIDs []uuid.UUID `json:"task_ids,omitempty"`

	// DryRun echoes whether anything was actually deleted.
	DryRun bool `json:"dry_run"`

	// Cutoff is the updated_at threshold applied.
	Cutoff time.Time `json:"cutoff"`
}

// AdminService provides read-only and maintenance operations over the
// task store for operational visibility: listing, aggregate stats, and
// retention cleanup.
type AdminService struct {
	store  task.TaskStore
	cache  StatsCache
	now    func() time.Time
	logger *slog.Logger
}

// NewAdminService creates an AdminService. cache may be nil.
func NewAdminService(taskStore task.TaskStore, cache StatsCache, logger *slog.Logger) (*AdminService, error) {
	if taskStore == nil {
		return nil, errors.New("task store cannot be nil")
	}

	return &AdminService{
		store:  taskStore,
		cache:  cache,
		now:    time.Now,
		logger: logger.With("component", "admin_service"),
	}, nil
}

// ListTasks returns tasks matching the filter, newest first.
// Purely read-only.
func (s *AdminService) ListTasks(ctx context.Context, filter task.TaskFilter) ([]*domain.Task, error) {
	tasks, err := s.store.Query(ctx, filter)
	if err != nil {
		return nil, fmt.Errorf("failed to list tasks: %w", err)
	}
	return tasks, nil
}

// TaskStats returns aggregate counts grouped by status and the average
// completion time of completed tasks. The average is absent rather than
// zero when no task has completed. A non-empty taskType scopes the
// aggregate to that task type; scoped aggregates bypass the cache, which
// holds only the table-wide numbers.
func (s *AdminService) TaskStats(ctx context.Context, taskType string) (*task.TaskStats, error) {
	if s.cache != nil && taskType == "" {
		if stats, ok := s.cache.Get(ctx); ok {
			return stats, nil
		}
	}

	stats, err := s.store.Stats(ctx, taskType)
	if err != nil {
		return nil, fmt.Errorf("failed to aggregate task stats: %w", err)
	}

	if s.cache != nil && taskType == "" {
		s.cache.Set(ctx, stats)
	}
	return stats, nil
}

// ClearCompleted removes completed tasks whose updated_at is older than
// the cutoff. Only completed tasks are eligible; failed and pending
// tasks are never auto-deleted by this path. When dryRun is set the
// store is not mutated and the result lists the eligible task IDs.
func (s *AdminService) ClearCompleted(ctx context.Context, olderThanDays int, dryRun bool) (*CleanupResult, error) {
	if olderThanDays < 0 {
		return nil, errors.New("older-than days cannot be negative")
	}

	cutoff := s.now().UTC().AddDate(0, 0, -olderThanDays)
	result := &CleanupResult{
		DryRun: dryRun,
		Cutoff: cutoff,
	}

	if dryRun {
		completed := domain.TaskStatusCompleted
		eligible, err := s.store.Query(ctx, task.TaskFilter{
			Status:    &completed,
			OlderThan: &cutoff,
		})
		if err != nil {
			return nil, fmt.Errorf("failed to query eligible tasks: %w", err)
		}

		result.Count = int64(len(eligible))
		result.TaskIDs = make([]uuid.UUID, 0, len(eligible))
		for _, t := range eligible {
			result.TaskIDs = append(result.TaskIDs, t.ID)
		}

		s.logger.Info("cleanup dry run",
			"eligible", result.Count,
			"cutoff", cutoff)
		return result, nil
	}

	removed, err := s.store.DeleteCompletedBefore(ctx, cutoff)
	if err != nil {
		return nil, fmt.Errorf("failed to delete completed tasks: %w", err)
	}
	result.Count = removed

	if s.cache != nil && removed > 0 {
		s.cache.Invalidate(ctx)
	}

	s.logger.Info("cleanup removed completed tasks",
		"removed", removed,
		"cutoff", cutoff)
	return result, nil
}
