package service

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jparker/dispatch-api/internal/domain"
	"github.com/jparker/dispatch-api/internal/task"
)

// fakeStatsCache is an in-memory StatsCache for cache-aside tests.
type fakeStatsCache struct {
	stats       *task.TaskStats
	gets        int
	sets        int
	invalidates int
}

func (c *fakeStatsCache) Get(ctx context.Context) (*task.TaskStats, bool) {
	c.gets++
	if c.stats == nil {
		return nil, false
	}
	return c.stats, true
}

func (c *fakeStatsCache) Set(ctx context.Context, stats *task.TaskStats) {
	c.sets++
	c.stats = stats
}

func (c *fakeStatsCache) Invalidate(ctx context.Context) {
	c.invalidates++
	c.stats = nil
}

func seedTask(
	t *testing.T,
	store *task.MemoryTaskStore,
	status domain.TaskStatus,
	updatedAt time.Time,
) *domain.Task {
	t.Helper()

	created, err := domain.NewTask("webhook_delivery", domain.TaskPriorityNormal, nil, 3, time.Time{})
	require.NoError(t, err)
	created.Status = status
	created.UpdatedAt = updatedAt
	require.NoError(t, store.Create(context.Background(), created))
	return created
}

func TestAdminService_TaskStats(t *testing.T) {
	t.Parallel()

	t.Run("empty store has nil average", func(t *testing.T) {
		t.Parallel()

		store := task.NewMemoryTaskStore()
		svc, err := NewAdminService(store, nil, testLogger())
		require.NoError(t, err)

		stats, err := svc.TaskStats(context.Background(), "")
		require.NoError(t, err)
		assert.Nil(t, stats.AvgCompletion)
		assert.Equal(t, int64(0), stats.TotalCount())
	})

	t.Run("aggregates counts", func(t *testing.T) {
		t.Parallel()

		store := task.NewMemoryTaskStore()
		now := time.Now().UTC()
		seedTask(t, store, domain.TaskStatusPending, now)
		seedTask(t, store, domain.TaskStatusCompleted, now)
		seedTask(t, store, domain.TaskStatusFailed, now)

		svc, err := NewAdminService(store, nil, testLogger())
		require.NoError(t, err)

		stats, err := svc.TaskStats(context.Background(), "")
		require.NoError(t, err)
		assert.Equal(t, int64(3), stats.TotalCount())
		assert.Equal(t, int64(1), stats.CountsByStatus[domain.TaskStatusCompleted])
		assert.NotNil(t, stats.AvgCompletion)
	})

	t.Run("scoped to one task type", func(t *testing.T) {
		t.Parallel()

		store := task.NewMemoryTaskStore()
		now := time.Now().UTC()
		seedTask(t, store, domain.TaskStatusPending, now)
		seedTask(t, store, domain.TaskStatusCompleted, now)

		other, err := domain.NewTask("email_send", domain.TaskPriorityNormal, nil, 3, time.Time{})
		require.NoError(t, err)
		require.NoError(t, store.Create(context.Background(), other))

		svc, err := NewAdminService(store, nil, testLogger())
		require.NoError(t, err)

		stats, err := svc.TaskStats(context.Background(), "email_send")
		require.NoError(t, err)
		assert.Equal(t, int64(1), stats.TotalCount())
		assert.Equal(t, int64(1), stats.CountsByStatus[domain.TaskStatusPending])
		assert.Nil(t, stats.AvgCompletion, "no email_send task has completed")
	})

	t.Run("scoped stats bypass the cache", func(t *testing.T) {
		t.Parallel()

		store := task.NewMemoryTaskStore()
		seedTask(t, store, domain.TaskStatusPending, time.Now().UTC())

		cache := &fakeStatsCache{}
		svc, err := NewAdminService(store, cache, testLogger())
		require.NoError(t, err)

		_, err = svc.TaskStats(context.Background(), "webhook_delivery")
		require.NoError(t, err)
		assert.Equal(t, 0, cache.gets, "scoped aggregate must not read the cache")
		assert.Equal(t, 0, cache.sets, "scoped aggregate must not populate the cache")
	})

	t.Run("cache aside", func(t *testing.T) {
		t.Parallel()

		store := task.NewMemoryTaskStore()
		seedTask(t, store, domain.TaskStatusPending, time.Now().UTC())

		cache := &fakeStatsCache{}
		svc, err := NewAdminService(store, cache, testLogger())
		require.NoError(t, err)

		// Miss populates the cache; the second call is served from it.
		first, err := svc.TaskStats(context.Background(), "")
		require.NoError(t, err)
		assert.Equal(t, 1, cache.sets)

		second, err := svc.TaskStats(context.Background(), "")
		require.NoError(t, err)
		assert.Equal(t, 2, cache.gets)
		assert.Equal(t, 1, cache.sets, "a cache hit must not re-populate")
		assert.Equal(t, first.TotalCount(), second.TotalCount())
	})
}

func TestAdminService_ListTasks(t *testing.T) {
	t.Parallel()

	store := task.NewMemoryTaskStore()
	now := time.Now().UTC()
	seedTask(t, store, domain.TaskStatusPending, now)
	seedTask(t, store, domain.TaskStatusFailed, now)

	svc, err := NewAdminService(store, nil, testLogger())
	require.NoError(t, err)

	all, err := svc.ListTasks(context.Background(), task.TaskFilter{})
	require.NoError(t, err)
	assert.Len(t, all, 2)

	failed := domain.TaskStatusFailed
	filtered, err := svc.ListTasks(context.Background(), task.TaskFilter{Status: &failed})
	require.NoError(t, err)
	assert.Len(t, filtered, 1)
}

func TestAdminService_ClearCompleted(t *testing.T) {
	t.Parallel()

	newSeededStore := func(t *testing.T) (*task.MemoryTaskStore, *domain.Task, *domain.Task, *domain.Task) {
		t.Helper()

		store := task.NewMemoryTaskStore()
		now := time.Now().UTC()

		oldCompleted := seedTask(t, store, domain.TaskStatusCompleted, now.AddDate(0, 0, -10))
		freshCompleted := seedTask(t, store, domain.TaskStatusCompleted, now)
		oldFailed := seedTask(t, store, domain.TaskStatusFailed, now.AddDate(0, 0, -10))
		return store, oldCompleted, freshCompleted, oldFailed
	}

	t.Run("dry run reports without mutating", func(t *testing.T) {
		t.Parallel()

		store, oldCompleted, _, _ := newSeededStore(t)
		svc, err := NewAdminService(store, nil, testLogger())
		require.NoError(t, err)

		result, err := svc.ClearCompleted(context.Background(), 7, true)
		require.NoError(t, err)

		assert.True(t, result.DryRun)
		assert.Equal(t, int64(1), result.Count)
		assert.Equal(t, []uuid.UUID{oldCompleted.ID}, result.TaskIDs)
		assert.Equal(t, 3, store.Len(), "dry run must not delete anything")
	})

	t.Run("deletes old completed tasks only", func(t *testing.T) {
		t.Parallel()

		store, oldCompleted, freshCompleted, oldFailed := newSeededStore(t)
		svc, err := NewAdminService(store, nil, testLogger())
		require.NoError(t, err)

		result, err := svc.ClearCompleted(context.Background(), 7, false)
		require.NoError(t, err)

		assert.False(t, result.DryRun)
		assert.Equal(t, int64(1), result.Count)
		assert.Equal(t, 2, store.Len())

		_, err = store.GetByID(context.Background(), oldCompleted.ID)
		assert.Error(t, err, "old completed task is deleted")
		_, err = store.GetByID(context.Background(), freshCompleted.ID)
		assert.NoError(t, err, "recent completed task survives")
		_, err = store.GetByID(context.Background(), oldFailed.ID)
		assert.NoError(t, err, "failed tasks are never auto-deleted")
	})

	t.Run("real run invalidates the stats cache", func(t *testing.T) {
		t.Parallel()

		store, _, _, _ := newSeededStore(t)
		cache := &fakeStatsCache{}
		svc, err := NewAdminService(store, cache, testLogger())
		require.NoError(t, err)

		_, err = svc.ClearCompleted(context.Background(), 7, false)
		require.NoError(t, err)
		assert.Equal(t, 1, cache.invalidates)
	})

	t.Run("rejects negative cutoff", func(t *testing.T) {
		t.Parallel()

		store := task.NewMemoryTaskStore()
		svc, err := NewAdminService(store, nil, testLogger())
		require.NoError(t, err)

		_, err = svc.ClearCompleted(context.Background(), -1, false)
		assert.Error(t, err)
	})
}
