package api

import (
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/jparker/dispatch-api/internal/api/shared"
	"github.com/jparker/dispatch-api/internal/domain"
	"github.com/jparker/dispatch-api/internal/service"
	"github.com/jparker/dispatch-api/internal/task"
)

// TaskHandler handles the producer-facing task endpoints.
type TaskHandler struct {
	taskService *service.TaskService
	validator   *validator.Validate
}

// NewTaskHandler creates a new TaskHandler.
func NewTaskHandler(taskService *service.TaskService) *TaskHandler {
	return &TaskHandler{
		taskService: taskService,
		validator:   validator.New(),
	}
}

// CreateTask handles POST /tasks requests. The task is persisted as
// pending and picked up asynchronously, so the endpoint returns 202.
func (h *TaskHandler) CreateTask(w http.ResponseWriter, r *http.Request) {
	var req CreateTaskRequest
	if err := shared.DecodeJSON(r, &req); err != nil {
		shared.RespondWithError(w, r, http.StatusBadRequest, "Invalid request format")
		return
	}
	if err := h.validator.Struct(req); err != nil {
		shared.RespondWithError(w, r, http.StatusBadRequest, "Validation error: "+err.Error())
		return
	}

	priority, err := domain.ParseTaskPriority(req.Priority)
	if err != nil {
		shared.RespondWithError(w, r, http.StatusBadRequest, "Invalid priority: "+req.Priority)
		return
	}

	params := service.CreateTaskParams{
		TaskType:    req.TaskType,
		Priority:    priority,
		Payload:     req.Payload,
		MaxAttempts: req.MaxAttempts,
	}
	if req.ScheduledAt != nil {
		params.ScheduledAt = *req.ScheduledAt
	}

	t, err := h.taskService.CreateTask(r.Context(), params)
	if err != nil {
		if errors.Is(err, service.ErrUnregisteredTaskType) {
			shared.RespondWithError(w, r, http.StatusUnprocessableEntity, err.Error())
			return
		}
		shared.RespondWithErrorAndLog(w, r, http.StatusInternalServerError,
			"Failed to create task", err)
		return
	}

	shared.RespondWithJSON(w, r, http.StatusAccepted, taskToResponse(t, true))
}

// GetTask handles GET /tasks/{id} requests.
func (h *TaskHandler) GetTask(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		shared.RespondWithError(w, r, http.StatusBadRequest, "Invalid task ID")
		return
	}

	t, err := h.taskService.GetTask(r.Context(), id)
	if err != nil {
		if errors.Is(err, service.ErrTaskNotFound) {
			shared.RespondWithError(w, r, http.StatusNotFound, "Task not found")
			return
		}
		shared.RespondWithErrorAndLog(w, r, http.StatusInternalServerError,
			"Failed to get task", err)
		return
	}

	shared.RespondWithJSON(w, r, http.StatusOK, taskToResponse(t, true))
}

// ListTasks handles GET /tasks requests with optional status, task_type,
// and verbose query parameters plus the standard pagination parameters.
func (h *TaskHandler) ListTasks(w http.ResponseWriter, r *http.Request) {
	filter, verbose, err := parseTaskFilter(r)
	if err != nil {
		shared.RespondWithError(w, r, http.StatusBadRequest, err.Error())
		return
	}

	tasks, err := h.taskService.ListTasks(r.Context(), filter)
	if err != nil {
		shared.RespondWithErrorAndLog(w, r, http.StatusInternalServerError,
			"Failed to list tasks", err)
		return
	}

	items := make([]TaskResponse, 0, len(tasks))
	for _, t := range tasks {
		items = append(items, taskToResponse(t, verbose))
	}

	shared.RespondWithJSON(w, r, http.StatusOK, shared.PaginatedResponse{
		Items:  items,
		Count:  len(items),
		Limit:  filter.Limit,
		Offset: filter.Offset,
	})
}

// parseTaskFilter builds a TaskFilter from list query parameters.
func parseTaskFilter(r *http.Request) (task.TaskFilter, bool, error) {
	var filter task.TaskFilter

	if raw := r.URL.Query().Get("status"); raw != "" {
		status, err := domain.ParseTaskStatus(raw)
		if err != nil {
			return filter, false, errors.New("invalid status: " + raw)
		}
		filter.Status = &status
	}
	filter.TaskType = r.URL.Query().Get("task_type")
	filter.Limit, filter.Offset = shared.ParsePagination(r)

	verbose := r.URL.Query().Get("verbose") == "true"
	return filter, verbose, nil
}
