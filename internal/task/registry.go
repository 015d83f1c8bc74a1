package task

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/jparker/dispatch-api/internal/domain"
)

// ErrUnknownTaskType is returned when no handler is registered for a
// task's type. It marks a configuration error, not a runtime failure:
// the task is failed permanently without retry and without affecting
// the type's circuit breaker.
var ErrUnknownTaskType = errors.New("unknown task type")

// Handler executes the task logic for a single task type.
// Implementations receive the claimed task, including its payload, and
// return nil on success or an error describing the failure. The context
// carries the per-task execution deadline and is cancelled on shutdown.
type Handler interface {
	Execute(ctx context.Context, t *domain.Task) error
}

// HandlerFunc adapts a plain function to the Handler interface.
type HandlerFunc func(ctx context.Context, t *domain.Task) error

// Execute runs the wrapped function.
func (f HandlerFunc) Execute(ctx context.Context, t *domain.Task) error {
	return f(ctx, t)
}

// Registry maps task-type names to their handlers. Registration happens
// once at startup; after that the registry is read-only and safe for
// concurrent lookup by multiple workers.
type Registry struct {
	mu       sync.RWMutex
	handlers map[string]Handler
}

// NewRegistry creates an empty handler registry.
func NewRegistry() *Registry {
	return &Registry{
		handlers: make(map[string]Handler),
	}
}

// Register associates a handler with a task-type name.
// Returns an error when the name is empty, the handler is nil, or the
// name is already registered.
func (r *Registry) Register(taskType string, handler Handler) error {
	if taskType == "" {
		return errors.New("task type cannot be empty")
	}
	if handler == nil {
		return errors.New("handler cannot be nil")
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.handlers[taskType]; exists {
		return fmt.Errorf("handler already registered for task type %q", taskType)
	}
	r.handlers[taskType] = handler
	return nil
}

// Get returns the handler for the given task type.
// The second return value is false when no handler is registered.
func (r *Registry) Get(taskType string) (Handler, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	h, ok := r.handlers[taskType]
	return h, ok
}

// Types returns the registered task-type names.
func (r *Registry) Types() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	types := make([]string, 0, len(r.handlers))
	for taskType := range r.handlers {
		types = append(types, taskType)
	}
	return types
}
