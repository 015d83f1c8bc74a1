package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jparker/dispatch-api/internal/domain"
	"github.com/jparker/dispatch-api/internal/platform/logger"
	"github.com/jparker/dispatch-api/internal/store"
	"github.com/jparker/dispatch-api/internal/task"
)

// taskColumns is the column list shared by every task query.
const taskColumns = `id, task_type, status, priority, payload, attempt_count,
	max_attempts, next_run_at, last_error, created_at, updated_at`

// PostgresTaskStore implements the task.TaskStore interface using PostgreSQL.
type PostgresTaskStore struct {
	db store.DBTX
}

// Ensure PostgresTaskStore implements the task.TaskStore interface
var _ task.TaskStore = (*PostgresTaskStore)(nil)

// NewPostgresTaskStore creates a new PostgresTaskStore.
func NewPostgresTaskStore(db store.DBTX) *PostgresTaskStore {
	return &PostgresTaskStore{
		db: db,
	}
}

// Create persists a new task.
func (s *PostgresTaskStore) Create(ctx context.Context, t *domain.Task) error {
	log := logger.FromContext(ctx)

	if err := t.Validate(); err != nil {
		return fmt.Errorf("%w: %v", store.ErrInvalidEntity, err)
	}

	payload, err := json.Marshal(t.Payload)
	if err != nil {
		return fmt.Errorf("failed to marshal task payload: %w", err)
	}

	query := `
		INSERT INTO tasks (id, task_type, status, priority, payload, attempt_count,
			max_attempts, next_run_at, last_error, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
	`

	_, err = s.db.ExecContext(ctx, query,
		t.ID,
		t.TaskType,
		t.Status,
		t.Priority,
		payload,
		t.AttemptCount,
		t.MaxAttempts,
		t.NextRunAt,
		nullString(t.LastError),
		t.CreatedAt,
		t.UpdatedAt,
	)
	if err != nil {
		log.Error("failed to save task",
			"task_id", t.ID,
			"task_type", t.TaskType,
			"error", err)
		return MapError(err)
	}

	return nil
}

// GetByID retrieves a task by its unique ID.
func (s *PostgresTaskStore) GetByID(ctx context.Context, id uuid.UUID) (*domain.Task, error) {
	query := `SELECT ` + taskColumns + ` FROM tasks WHERE id = $1`

	t, err := scanTask(s.db.QueryRowContext(ctx, query, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrTaskNotFound
		}
		return nil, MapError(err)
	}
	return t, nil
}

// ClaimNext atomically claims the next eligible pending task. The inner
// select locks a single row with FOR UPDATE SKIP LOCKED, so concurrent
// claimants each receive a distinct row or none; the conditional UPDATE
// transitions it to running in the same statement.
func (s *PostgresTaskStore) ClaimNext(ctx context.Context, now time.Time) (*domain.Task, error) {
	query := `
		UPDATE tasks
		SET status = $1, updated_at = $2
		WHERE id = (
			SELECT id FROM tasks
			WHERE status = $3 AND next_run_at <= $2
			ORDER BY priority DESC, next_run_at ASC, created_at ASC
			FOR UPDATE SKIP LOCKED
			LIMIT 1
		)
		RETURNING ` + taskColumns

	t, err := scanTask(s.db.QueryRowContext(ctx, query,
		domain.TaskStatusRunning,
		now.UTC(),
		domain.TaskStatusPending,
	))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, MapError(err)
	}
	return t, nil
}

// Update persists the full mutable state of an existing task.
func (s *PostgresTaskStore) Update(ctx context.Context, t *domain.Task) error {
	log := logger.FromContext(ctx)

	payload, err := json.Marshal(t.Payload)
	if err != nil {
		return fmt.Errorf("failed to marshal task payload: %w", err)
	}

	query := `
		UPDATE tasks
		SET status = $1, priority = $2, payload = $3, attempt_count = $4,
			max_attempts = $5, next_run_at = $6, last_error = $7, updated_at = $8
		WHERE id = $9
	`

	result, err := s.db.ExecContext(ctx, query,
		t.Status,
		t.Priority,
		payload,
		t.AttemptCount,
		t.MaxAttempts,
		t.NextRunAt,
		nullString(t.LastError),
		time.Now().UTC(),
		t.ID,
	)
	if err != nil {
		log.Error("failed to update task",
			"task_id", t.ID,
			"status", t.Status,
			"error", err)
		return MapError(err)
	}

	if err := CheckRowsAffected(result, "task"); err != nil {
		return store.ErrTaskNotFound
	}
	return nil
}

// Query returns tasks matching the filter, newest first.
func (s *PostgresTaskStore) Query(ctx context.Context, filter task.TaskFilter) ([]*domain.Task, error) {
	var (
		conditions []string
		args       []any
	)

	addCondition := func(clause string, value any) {
		args = append(args, value)
		conditions = append(conditions, fmt.Sprintf(clause, len(args)))
	}

	if filter.Status != nil {
		addCondition("status = $%d", *filter.Status)
	}
	if filter.TaskType != "" {
		addCondition("task_type = $%d", filter.TaskType)
	}
	if filter.OlderThan != nil {
		addCondition("updated_at < $%d", filter.OlderThan.UTC())
	}

	query := `SELECT ` + taskColumns + ` FROM tasks`
	if len(conditions) > 0 {
		query += " WHERE " + strings.Join(conditions, " AND ")
	}
	query += " ORDER BY created_at DESC"
	if filter.Limit > 0 {
		query += " LIMIT " + strconv.Itoa(filter.Limit)
	}
	if filter.Offset > 0 {
		query += " OFFSET " + strconv.Itoa(filter.Offset)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, MapError(err)
	}
	defer func() { _ = rows.Close() }()

	var tasks []*domain.Task
	for rows.Next() {
		t, err := scanTask(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan task row: %w", err)
		}
		tasks = append(tasks, t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating task rows: %w", err)
	}

	return tasks, nil
}

// DeleteCompletedBefore removes completed tasks whose updated_at is
// before the cutoff and returns the number removed.
func (s *PostgresTaskStore) DeleteCompletedBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	query := `DELETE FROM tasks WHERE status = $1 AND updated_at < $2`

	result, err := s.db.ExecContext(ctx, query, domain.TaskStatusCompleted, cutoff.UTC())
	if err != nil {
		return 0, MapError(err)
	}

	removed, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to get rows affected: %w", err)
	}
	return removed, nil
}

// Stats aggregates counts by status and the average completion time of
// completed tasks in a single pass over the table, optionally scoped to
// one task type.
func (s *PostgresTaskStore) Stats(ctx context.Context, taskType string) (*task.TaskStats, error) {
	query := `
		SELECT status, COUNT(*),
			AVG(EXTRACT(EPOCH FROM (updated_at - created_at))) FILTER (WHERE status = $1)
		FROM tasks
	`
	args := []any{domain.TaskStatusCompleted}
	if taskType != "" {
		query += " WHERE task_type = $2"
		args = append(args, taskType)
	}
	query += " GROUP BY status"

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, MapError(err)
	}
	defer func() { _ = rows.Close() }()

	stats := &task.TaskStats{
		CountsByStatus: make(map[domain.TaskStatus]int64),
	}

	for rows.Next() {
		var (
			status     domain.TaskStatus
			count      int64
			avgSeconds sql.NullFloat64
		)
		if err := rows.Scan(&status, &count, &avgSeconds); err != nil {
			return nil, fmt.Errorf("failed to scan stats row: %w", err)
		}
		stats.CountsByStatus[status] = count
		if status == domain.TaskStatusCompleted && avgSeconds.Valid {
			avg := time.Duration(avgSeconds.Float64 * float64(time.Second))
			stats.AvgCompletion = &avg
		}
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating stats rows: %w", err)
	}

	return stats, nil
}

// ReleaseStuck resets running tasks whose updated_at is older than the
// given age back to pending.
func (s *PostgresTaskStore) ReleaseStuck(ctx context.Context, olderThan time.Duration) (int64, error) {
	query := `
		UPDATE tasks
		SET status = $1, last_error = $2, updated_at = $3
		WHERE status = $4 AND updated_at < $5
	`

	now := time.Now().UTC()
	result, err := s.db.ExecContext(ctx, query,
		domain.TaskStatusPending,
		"reset after being stuck in running state",
		now,
		domain.TaskStatusRunning,
		now.Add(-olderThan),
	)
	if err != nil {
		return 0, MapError(err)
	}

	released, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to get rows affected: %w", err)
	}
	return released, nil
}

// rowScanner abstracts *sql.Row and *sql.Rows for scanTask.
type rowScanner interface {
	Scan(dest ...any) error
}

func scanTask(row rowScanner) (*domain.Task, error) {
	var (
		t         domain.Task
		payload   []byte
		lastError sql.NullString
	)

	if err := row.Scan(
		&t.ID,
		&t.TaskType,
		&t.Status,
		&t.Priority,
		&payload,
		&t.AttemptCount,
		&t.MaxAttempts,
		&t.NextRunAt,
		&lastError,
		&t.CreatedAt,
		&t.UpdatedAt,
	); err != nil {
		return nil, err
	}

	if len(payload) > 0 {
		if err := json.Unmarshal(payload, &t.Payload); err != nil {
			return nil, fmt.Errorf("failed to unmarshal task payload: %w", err)
		}
	}
	t.LastError = lastError.String

	return &t, nil
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}
