package events

import (
	"context"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Prometheus metrics for monitoring task processing.
var (
	// tasksProcessed tracks the total number of processed tasks.
	// Labels:
	//   - status: "completed", "retried", or "failed"
	//   - type: task type (e.g., "send_email", "webhook")
	tasksProcessed = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "dispatch_processed_total",
		Help: "The total number of processed tasks",
	}, []string{"status", "type"})

	// taskDuration tracks handler execution latency in seconds.
	taskDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "dispatch_task_duration_seconds",
		Help:    "Duration of task handler execution",
		Buckets: prometheus.DefBuckets,
	}, []string{"type"})

	// circuitState exposes the current breaker state per task type:
	// 0 = closed, 1 = half-open, 2 = open.
	circuitState = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "dispatch_circuit_state",
		Help: "Circuit breaker state per task type (0=closed, 1=half-open, 2=open)",
	}, []string{"type"})

	// circuitTransitions counts breaker state changes.
	circuitTransitions = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "dispatch_circuit_transitions_total",
		Help: "The total number of circuit breaker state transitions",
	}, []string{"type", "to"})
)

// MetricsHandler translates lifecycle events into Prometheus metrics.
type MetricsHandler struct{}

// NewMetricsHandler creates a MetricsHandler.
func NewMetricsHandler() *MetricsHandler {
	return &MetricsHandler{}
}

// HandleEvent updates the counters for the event.
func (h *MetricsHandler) HandleEvent(ctx context.Context, event *TaskLifecycleEvent) error {
	switch event.Kind {
	case EventTaskCompleted:
		tasksProcessed.WithLabelValues("completed", event.TaskType).Inc()
		taskDuration.WithLabelValues(event.TaskType).Observe(event.Duration.Seconds())

	case EventTaskFailed:
		tasksProcessed.WithLabelValues("failed", event.TaskType).Inc()
		if event.Duration > 0 {
			taskDuration.WithLabelValues(event.TaskType).Observe(event.Duration.Seconds())
		}

	case EventTaskRetried:
		tasksProcessed.WithLabelValues("retried", event.TaskType).Inc()

	case EventCircuitTransition:
		circuitTransitions.WithLabelValues(event.TaskType, event.NewState).Inc()
		circuitState.WithLabelValues(event.TaskType).Set(stateValue(event.NewState))
	}

	return nil
}

func stateValue(state string) float64 {
	switch state {
	case "half_open":
		return 1
	case "open":
		return 2
	default:
		return 0
	}
}
