package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/jparker/dispatch-api/internal/domain"
	"github.com/jparker/dispatch-api/internal/store"
	"github.com/jparker/dispatch-api/internal/task"
)

// Common sentinel errors for TaskService
var (
	// ErrTaskNotFound indicates that the task does not exist
	ErrTaskNotFound = errors.New("task not found")

	// ErrUnregisteredTaskType indicates a producer submitted a task
	// type no handler is registered for
	ErrUnregisteredTaskType = errors.New("no handler registered for task type")
)

// CreateTaskParams carries the producer-supplied fields for a new task.
// Priority defaults to normal and ScheduledAt to now when zero-valued.
type CreateTaskParams struct {
	TaskType    string
	Priority    domain.TaskPriority
	Payload     map[string]any
	ScheduledAt time.Time
	MaxAttempts int
}

// TaskService is the producer-facing surface over the task store: it
// creates tasks and answers read queries for the API layer.
type TaskService struct {
	store              task.TaskStore
	registry           *task.Registry
	defaultMaxAttempts int
	logger             *slog.Logger
}

// NewTaskService creates a TaskService. The registry is consulted at
// creation time so that producers learn about unregistered task types
// immediately instead of through a permanently failed task.
func NewTaskService(
	taskStore task.TaskStore,
	registry *task.Registry,
	defaultMaxAttempts int,
	logger *slog.Logger,
) (*TaskService, error) {
	if taskStore == nil {
		return nil, errors.New("task store cannot be nil")
	}
	if registry == nil {
		return nil, errors.New("registry cannot be nil")
	}
	if defaultMaxAttempts <= 0 {
		return nil, errors.New("default max attempts must be positive")
	}

	return &TaskService{
		store:              taskStore,
		registry:           registry,
		defaultMaxAttempts: defaultMaxAttempts,
		logger:             logger.With("component", "task_service"),
	}, nil
}

// CreateTask validates the parameters, persists a new pending task, and
// returns it. The task becomes eligible for claiming once its
// scheduled time arrives.
func (s *TaskService) CreateTask(ctx context.Context, params CreateTaskParams) (*domain.Task, error) {
	if _, ok := s.registry.Get(params.TaskType); !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnregisteredTaskType, params.TaskType)
	}

	maxAttempts := params.MaxAttempts
	if maxAttempts <= 0 {
		maxAttempts = s.defaultMaxAttempts
	}

	t, err := domain.NewTask(
		params.TaskType,
		params.Priority,
		params.Payload,
		maxAttempts,
		params.ScheduledAt,
	)
	if err != nil {
		return nil, err
	}

	if err := s.store.Create(ctx, t); err != nil {
		return nil, fmt.Errorf("failed to create task: %w", err)
	}

	s.logger.Info("task created",
		"task_id", t.ID,
		"task_type", t.TaskType,
		"priority", t.Priority.String(),
		"next_run_at", t.NextRunAt)

	return t, nil
}

// GetTask retrieves a task by ID.
func (s *TaskService) GetTask(ctx context.Context, id uuid.UUID) (*domain.Task, error) {
	t, err := s.store.GetByID(ctx, id)
	if err != nil {
		if store.IsNotFoundError(err) {
			return nil, ErrTaskNotFound
		}
		return nil, fmt.Errorf("failed to get task: %w", err)
	}
	return t, nil
}

// ListTasks returns tasks matching the filter, newest first.
func (s *TaskService) ListTasks(ctx context.Context, filter task.TaskFilter) ([]*domain.Task, error) {
	tasks, err := s.store.Query(ctx, filter)
	if err != nil {
		return nil, fmt.Errorf("failed to list tasks: %w", err)
	}
	return tasks, nil
}
