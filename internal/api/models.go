package api

import (
	"time"

	"github.com/google/uuid"
	"github.com/jparker/dispatch-api/internal/domain"
)

// Common request/response structures

// RegisterRequest defines the payload for the user registration endpoint.
type RegisterRequest struct {
	Email    string `json:"email"    validate:"required,email"`
	Password string `json:"password" validate:"required,min=12,max=72"`
}

// LoginRequest defines the payload for the user login endpoint.
type LoginRequest struct {
	Email    string `json:"email"    validate:"required,email"`
	Password string `json:"password" validate:"required,min=1"`
}

// AuthResponse defines the successful response for authentication endpoints.
type AuthResponse struct {
	UserID uuid.UUID `json:"user_id"`

	// AccessToken is the JWT token used for API authorization
	AccessToken string `json:"token"`
}

// CreateTaskRequest defines the producer payload for enqueuing a task.
type CreateTaskRequest struct {
	TaskType string `json:"task_type" validate:"required,min=1"`

	// Priority is one of low, normal, high, critical; empty means normal.
	Priority string `json:"priority,omitempty"`

	Payload map[string]any `json:"payload"`

	// ScheduledAt defers execution; empty means now.
	ScheduledAt *time.Time `json:"scheduled_at,omitempty"`

	// MaxAttempts overrides the configured default when positive.
	MaxAttempts int `json:"max_attempts,omitempty" validate:"gte=0"`
}

// TaskResponse represents the response data for a task.
type TaskResponse struct {
	ID           string         `json:"id"`
	TaskType     string         `json:"task_type"`
	Status       string         `json:"status"`
	Priority     string         `json:"priority"`
	Payload      map[string]any `json:"payload,omitempty"`
	AttemptCount int            `json:"attempt_count"`
	MaxAttempts  int            `json:"max_attempts"`
	NextRunAt    time.Time      `json:"next_run_at"`
	LastError    string         `json:"last_error,omitempty"`
	CreatedAt    time.Time      `json:"created_at"`
	UpdatedAt    time.Time      `json:"updated_at"`
}

// taskToResponse converts a domain.Task to a TaskResponse.
// When verbose is false the payload is omitted to keep listings small.
func taskToResponse(t *domain.Task, verbose bool) TaskResponse {
	resp := TaskResponse{
		ID:           t.ID.String(),
		TaskType:     t.TaskType,
		Status:       string(t.Status),
		Priority:     t.Priority.String(),
		AttemptCount: t.AttemptCount,
		MaxAttempts:  t.MaxAttempts,
		NextRunAt:    t.NextRunAt,
		LastError:    t.LastError,
		CreatedAt:    t.CreatedAt,
		UpdatedAt:    t.UpdatedAt,
	}
	if verbose {
		resp.Payload = t.Payload
	}
	return resp
}

// CleanupRequest defines the payload for the retention cleanup endpoint.
type CleanupRequest struct {
	OlderThanDays int  `json:"older_than_days" validate:"gte=0"`
	DryRun        bool `json:"dry_run"`
}
