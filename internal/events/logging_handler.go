package events

import (
	"context"
	"log/slog"
)

// LoggingHandler writes one structured log line per lifecycle event.
type LoggingHandler struct {
	logger *slog.Logger
}

// NewLoggingHandler creates a LoggingHandler writing to the given logger.
func NewLoggingHandler(logger *slog.Logger) *LoggingHandler {
	return &LoggingHandler{
		logger: logger.With("component", "task_events"),
	}
}

// HandleEvent logs the event. Failures and circuit transitions are
// logged at warn level, everything else at info.
func (h *LoggingHandler) HandleEvent(ctx context.Context, event *TaskLifecycleEvent) error {
	switch event.Kind {
	case EventCircuitTransition:
		h.logger.Warn("circuit breaker state changed",
			"task_type", event.TaskType,
			"old_state", event.OldState,
			"new_state", event.NewState)

	case EventTaskFailed:
		h.logger.Warn("task failed permanently",
			"task_id", event.TaskID,
			"task_type", event.TaskType,
			"attempt", event.Attempt,
			"duration", event.Duration,
			"error", event.Error)

	case EventTaskRetried:
		h.logger.Info("task scheduled for retry",
			"task_id", event.TaskID,
			"task_type", event.TaskType,
			"attempt", event.Attempt,
			"error", event.Error)

	case EventTaskCompleted:
		h.logger.Info("task completed",
			"task_id", event.TaskID,
			"task_type", event.TaskType,
			"attempt", event.Attempt,
			"duration", event.Duration)
	}

	return nil
}
