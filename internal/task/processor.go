package task

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/jparker/dispatch-api/internal/domain"
	"github.com/jparker/dispatch-api/internal/events"
)

// ProcessorConfig holds configuration for the task processor.
type ProcessorConfig struct {
	// WorkerCount determines how many concurrent workers poll for tasks.
	WorkerCount int

	// PollInterval is how long a worker sleeps after finding no
	// eligible task.
	PollInterval time.Duration

	// ClaimBatchSize bounds how many tasks one worker claims per poll
	// cycle, so a burst of tasks does not starve the other workers.
	ClaimBatchSize int

	// ExecutionTimeout bounds a single handler execution. Exceeding it
	// is treated as a handler failure.
	ExecutionTimeout time.Duration

	// ShutdownGrace bounds how long Stop waits for in-flight handlers
	// to finish before giving up. Tasks still running after the grace
	// period remain in the running state and are reclaimed by the
	// stuck-task reaper on a future start.
	ShutdownGrace time.Duration

	// UpdateRetries is how many additional attempts are made when a
	// write-back to the store fails.
	UpdateRetries int

	// UpdateRetryDelay is the fixed pause between write-back attempts.
	UpdateRetryDelay time.Duration

	// StuckTaskAge defines how long a task can sit in the running state
	// before the reaper resets it to pending. Zero disables the reaper.
	StuckTaskAge time.Duration

	// StuckTaskCheckInterval defines how often the reaper runs.
	// If zero, defaults to 5 minutes.
	StuckTaskCheckInterval time.Duration
}

// DefaultProcessorConfig returns a ProcessorConfig with reasonable defaults.
func DefaultProcessorConfig() ProcessorConfig {
	return ProcessorConfig{
		WorkerCount:            4,
		PollInterval:           time.Second,
		ClaimBatchSize:         10,
		ExecutionTimeout:       time.Minute,
		ShutdownGrace:          30 * time.Second,
		UpdateRetries:          3,
		UpdateRetryDelay:       500 * time.Millisecond,
		StuckTaskAge:           30 * time.Minute,
		StuckTaskCheckInterval: 5 * time.Minute,
	}
}

// TaskProcessor runs the worker pool that drives tasks through their
// lifecycle: claim, circuit check, dispatch, retry accounting, and
// write-back. Per-task errors never escape the loop; a failing task
// cannot interrupt other tasks or the workers themselves.
type TaskProcessor struct {
	store    TaskStore
	registry *Registry
	breakers *BreakerSet
	retry    RetryPolicy
	config   ProcessorConfig
	logger   *slog.Logger
	emitter  events.EventEmitter

	now        func() time.Time
	ctx        context.Context
	cancelFunc context.CancelFunc
	wg         sync.WaitGroup
}

// NewTaskProcessor creates a TaskProcessor. The breaker set is owned by
// the processor and shared by reference with every worker; pass the
// same set to anything else that needs to observe breaker state.
func NewTaskProcessor(
	store TaskStore,
	registry *Registry,
	breakers *BreakerSet,
	retry RetryPolicy,
	config ProcessorConfig,
	emitter events.EventEmitter,
	logger *slog.Logger,
) *TaskProcessor {
	if config.UpdateRetries <= 0 {
		config.UpdateRetries = 3
	}
	if config.UpdateRetryDelay <= 0 {
		config.UpdateRetryDelay = 500 * time.Millisecond
	}
	if config.StuckTaskCheckInterval == 0 {
		config.StuckTaskCheckInterval = 5 * time.Minute
	}

	ctx, cancel := context.WithCancel(context.Background())

	p := &TaskProcessor{
		store:      store,
		registry:   registry,
		breakers:   breakers,
		retry:      retry,
		config:     config,
		logger:     logger.With("component", "task_processor"),
		emitter:    emitter,
		now:        time.Now,
		ctx:        ctx,
		cancelFunc: cancel,
	}

	breakers.SetTransitionFunc(func(taskType string, from, to BreakerState) {
		p.emit(events.NewCircuitEvent(taskType, string(from), string(to)))
	})

	return p
}

// Start launches the worker pool and, when configured, the stuck-task
// reaper.
func (p *TaskProcessor) Start() error {
	if p.config.WorkerCount <= 0 {
		return fmt.Errorf("worker count must be positive, got %d", p.config.WorkerCount)
	}

	for i := 0; i < p.config.WorkerCount; i++ {
		p.wg.Add(1)
		go p.worker(i)
	}

	if p.config.StuckTaskAge > 0 {
		p.wg.Add(1)
		go p.stuckTaskReaper()
	}

	p.logger.Info("task processor started",
		"worker_count", p.config.WorkerCount,
		"poll_interval", p.config.PollInterval,
		"claim_batch_size", p.config.ClaimBatchSize)

	return nil
}

// Stop shuts the processor down gracefully: workers stop claiming new
// tasks and in-flight handlers are given the shutdown grace period to
// finish. Tasks still running afterwards stay in the running state for
// the reaper to reclaim on a future start.
func (p *TaskProcessor) Stop() {
	p.cancelFunc()

	done := make(chan struct{})
	go func() {
		p.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		p.logger.Info("task processor stopped")
	case <-time.After(p.config.ShutdownGrace):
		p.logger.Warn("task processor shutdown grace period elapsed with handlers still in flight",
			"grace", p.config.ShutdownGrace)
	}
}

// worker runs one independent poll loop against the shared store.
func (p *TaskProcessor) worker(id int) {
	defer p.wg.Done()

	logger := p.logger.With("worker_id", id)
	logger.Debug("starting worker")

	for {
		select {
		case <-p.ctx.Done():
			logger.Debug("stopping worker")
			return
		default:
		}

		claimed := p.pollOnce(logger)

		if claimed == 0 {
			select {
			case <-p.ctx.Done():
				logger.Debug("stopping worker")
				return
			case <-time.After(p.config.PollInterval):
			}
		}
	}
}

// pollOnce claims and processes up to ClaimBatchSize tasks and returns
// how many were claimed.
func (p *TaskProcessor) pollOnce(logger *slog.Logger) int {
	claimed := 0

	for i := 0; i < p.config.ClaimBatchSize; i++ {
		select {
		case <-p.ctx.Done():
			return claimed
		default:
		}

		t, err := p.store.ClaimNext(p.ctx, p.now().UTC())
		if err != nil {
			logger.Error("failed to claim next task", "error", err)
			return claimed
		}
		if t == nil {
			return claimed
		}

		claimed++
		p.processTask(t, logger)
	}

	return claimed
}

// processTask drives one claimed task through circuit check, dispatch,
// and write-back. The task's final state is persisted unconditionally,
// even when the handler panics, so no task is silently stranded in the
// running state.
func (p *TaskProcessor) processTask(t *domain.Task, logger *slog.Logger) {
	logger = logger.With("task_id", t.ID, "task_type", t.TaskType)

	breaker := p.breakers.For(t.TaskType)

	if !breaker.Allow() {
		// Fast-fail: the handler never ran, so neither the attempt
		// counter nor the breaker's failure counter moves. The task is
		// rescheduled like a retryable failure.
		p.rescheduleRejected(t, logger)
		p.writeBack(t, logger)
		return
	}

	handler, ok := p.registry.Get(t.TaskType)
	if !ok {
		// Configuration error, not a runtime failure: fail permanently
		// and report neither success nor failure to the breaker, only
		// returning the half-open trial slot if this dispatch held it.
		breaker.ReleaseTrial()
		t.Status = domain.TaskStatusFailed
		t.LastError = fmt.Sprintf("%v: %s", ErrUnknownTaskType, t.TaskType)
		logger.Error("no handler registered for task type")
		p.emit(events.NewTaskEvent(events.EventTaskFailed, t, 0, t.LastError))
		p.writeBack(t, logger)
		return
	}

	start := p.now()
	err := p.execute(handler, t)
	elapsed := p.now().Sub(start)

	t.AttemptCount++

	if err == nil {
		breaker.RecordSuccess()
		t.Status = domain.TaskStatusCompleted
		t.LastError = ""
		logger.Info("task completed", "attempt", t.AttemptCount, "duration", elapsed)
		p.emit(events.NewTaskEvent(events.EventTaskCompleted, t, elapsed, ""))
		p.writeBack(t, logger)
		return
	}

	breaker.RecordFailure()
	t.LastError = err.Error()

	delay, retryable := p.retry.NextDelay(t.AttemptCount, t.MaxAttempts)
	if !retryable {
		t.Status = domain.TaskStatusFailed
		logger.Warn("task failed permanently",
			"attempt", t.AttemptCount,
			"duration", elapsed,
			"error", err)
		p.emit(events.NewTaskEvent(events.EventTaskFailed, t, elapsed, t.LastError))
	} else {
		t.Status = domain.TaskStatusPending
		t.NextRunAt = p.now().UTC().Add(delay)
		logger.Info("task scheduled for retry",
			"attempt", t.AttemptCount,
			"next_run_in", delay,
			"error", err)
		p.emit(events.NewTaskEvent(events.EventTaskRetried, t, elapsed, t.LastError))
	}

	p.writeBack(t, logger)
}

// execute runs the handler under the per-task timeout, converting
// panics into ordinary errors so they drive the failure path instead of
// killing the worker.
func (p *TaskProcessor) execute(handler Handler, t *domain.Task) (err error) {
	ctx, cancel := context.WithTimeout(p.ctx, p.config.ExecutionTimeout)
	defer cancel()

	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("handler panicked: %v", r)
		}
	}()

	return handler.Execute(ctx, t)
}

// rescheduleRejected handles a circuit-open rejection: the task goes
// back to pending with a backoff delay, but attempt_count is untouched
// because no execution happened.
func (p *TaskProcessor) rescheduleRejected(t *domain.Task, logger *slog.Logger) {
	delay, ok := p.retry.NextDelay(t.AttemptCount+1, t.MaxAttempts)
	if !ok {
		// The attempt budget only moves on real executions, so a
		// rejection never fails a task terminally; wait out the
		// cooldown at the policy ceiling instead.
		delay = p.retry.MaxDelay
	}

	t.Status = domain.TaskStatusPending
	t.NextRunAt = p.now().UTC().Add(delay)
	t.LastError = fmt.Sprintf("circuit open for task type %q", t.TaskType)

	logger.Info("task rejected by open circuit, rescheduled",
		"next_run_in", delay,
		"attempt", t.AttemptCount)
	p.emit(events.NewTaskEvent(events.EventTaskRetried, t, 0, t.LastError))
}

// writeBack persists the task's final state, retrying a bounded number
// of times with a short fixed delay. Exhausting the retries is an
// operational alert condition, not a crash: the error is logged and the
// loop continues.
func (p *TaskProcessor) writeBack(t *domain.Task, logger *slog.Logger) {
	// Use a background context so write-back survives shutdown
	// cancellation of the processor context.
	ctx := context.Background()

	var err error
	for attempt := 0; attempt <= p.config.UpdateRetries; attempt++ {
		if attempt > 0 {
			time.Sleep(p.config.UpdateRetryDelay)
		}
		if err = p.store.Update(ctx, t); err == nil {
			return
		}
		logger.Warn("failed to persist task state, retrying",
			"write_attempt", attempt+1,
			"error", err)
	}

	logger.Error("giving up persisting task state; task may be stranded",
		"status", t.Status,
		"error", err)
}

// stuckTaskReaper periodically resets tasks stranded in the running
// state by a crashed or force-stopped worker.
func (p *TaskProcessor) stuckTaskReaper() {
	defer p.wg.Done()

	ticker := time.NewTicker(p.config.StuckTaskCheckInterval)
	defer ticker.Stop()

	for {
		select {
		case <-p.ctx.Done():
			return

		case <-ticker.C:
			released, err := p.store.ReleaseStuck(p.ctx, p.config.StuckTaskAge)
			if err != nil {
				p.logger.Error("failed to release stuck tasks", "error", err)
				continue
			}
			if released > 0 {
				p.logger.Info("released stuck tasks back to pending",
					"count", released,
					"older_than", p.config.StuckTaskAge)
			}
		}
	}
}

func (p *TaskProcessor) emit(event *events.TaskLifecycleEvent) {
	if p.emitter == nil {
		return
	}
	if err := p.emitter.EmitEvent(context.Background(), event); err != nil {
		p.logger.Debug("event handler reported error", "error", err)
	}
}
