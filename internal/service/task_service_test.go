package service

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jparker/dispatch-api/internal/domain"
	"github.com/jparker/dispatch-api/internal/task"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, &slog.HandlerOptions{
		Level: slog.LevelDebug,
	}))
}

func newTestTaskService(t *testing.T) (*TaskService, *task.MemoryTaskStore) {
	t.Helper()

	registry := task.NewRegistry()
	require.NoError(t, registry.Register("webhook_delivery", task.HandlerFunc(
		func(ctx context.Context, tk *domain.Task) error { return nil })))

	store := task.NewMemoryTaskStore()
	svc, err := NewTaskService(store, registry, 5, testLogger())
	require.NoError(t, err)
	return svc, store
}

func TestNewTaskService_Validation(t *testing.T) {
	t.Parallel()

	registry := task.NewRegistry()
	store := task.NewMemoryTaskStore()

	_, err := NewTaskService(nil, registry, 5, testLogger())
	assert.Error(t, err)

	_, err = NewTaskService(store, nil, 5, testLogger())
	assert.Error(t, err)

	_, err = NewTaskService(store, registry, 0, testLogger())
	assert.Error(t, err)
}

func TestTaskService_CreateTask(t *testing.T) {
	t.Parallel()

	t.Run("creates pending task with defaults", func(t *testing.T) {
		t.Parallel()

		svc, store := newTestTaskService(t)

		created, err := svc.CreateTask(context.Background(), CreateTaskParams{
			TaskType: "webhook_delivery",
			Payload:  map[string]any{"url": "https://example.com/hook"},
		})
		require.NoError(t, err)

		assert.Equal(t, domain.TaskStatusPending, created.Status)
		assert.Equal(t, domain.TaskPriorityNormal, created.Priority)
		assert.Equal(t, 5, created.MaxAttempts, "zero max attempts falls back to the configured default")
		assert.Equal(t, 1, store.Len())
	})

	t.Run("honors explicit max attempts and schedule", func(t *testing.T) {
		t.Parallel()

		svc, _ := newTestTaskService(t)
		scheduledAt := time.Now().UTC().Add(time.Hour)

		created, err := svc.CreateTask(context.Background(), CreateTaskParams{
			TaskType:    "webhook_delivery",
			Priority:    domain.TaskPriorityHigh,
			MaxAttempts: 2,
			ScheduledAt: scheduledAt,
		})
		require.NoError(t, err)

		assert.Equal(t, 2, created.MaxAttempts)
		assert.Equal(t, domain.TaskPriorityHigh, created.Priority)
		assert.WithinDuration(t, scheduledAt, created.NextRunAt, time.Second)
	})

	t.Run("rejects unregistered task type", func(t *testing.T) {
		t.Parallel()

		svc, store := newTestTaskService(t)

		_, err := svc.CreateTask(context.Background(), CreateTaskParams{
			TaskType: "no_such_type",
		})
		assert.ErrorIs(t, err, ErrUnregisteredTaskType)
		assert.Equal(t, 0, store.Len(), "rejected submissions must not be persisted")
	})

	t.Run("propagates store failure", func(t *testing.T) {
		t.Parallel()

		svc, store := newTestTaskService(t)
		store.CreateFn = func(ctx context.Context, tk *domain.Task) error {
			return errors.New("mock store down")
		}

		_, err := svc.CreateTask(context.Background(), CreateTaskParams{
			TaskType: "webhook_delivery",
		})
		assert.Error(t, err)
		assert.Contains(t, err.Error(), "failed to create task")
	})
}

func TestTaskService_GetTask(t *testing.T) {
	t.Parallel()

	svc, _ := newTestTaskService(t)

	created, err := svc.CreateTask(context.Background(), CreateTaskParams{
		TaskType: "webhook_delivery",
	})
	require.NoError(t, err)

	got, err := svc.GetTask(context.Background(), created.ID)
	require.NoError(t, err)
	assert.Equal(t, created.ID, got.ID)

	_, err = svc.GetTask(context.Background(), uuid.New())
	assert.ErrorIs(t, err, ErrTaskNotFound)
}

func TestTaskService_ListTasks(t *testing.T) {
	t.Parallel()

	svc, _ := newTestTaskService(t)

	for i := 0; i < 3; i++ {
		_, err := svc.CreateTask(context.Background(), CreateTaskParams{
			TaskType: "webhook_delivery",
		})
		require.NoError(t, err)
	}

	tasks, err := svc.ListTasks(context.Background(), task.TaskFilter{})
	require.NoError(t, err)
	assert.Len(t, tasks, 3)

	limited, err := svc.ListTasks(context.Background(), task.TaskFilter{Limit: 2})
	require.NoError(t, err)
	assert.Len(t, limited, 2)
}
