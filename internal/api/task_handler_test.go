package api

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jparker/dispatch-api/internal/domain"
	"github.com/jparker/dispatch-api/internal/service"
	"github.com/jparker/dispatch-api/internal/task"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// newTaskAPI wires a TaskHandler over a memory store behind a chi
// router, matching the production route layout.
func newTaskAPI(t *testing.T) (http.Handler, *task.MemoryTaskStore, *service.TaskService) {
	t.Helper()

	registry := task.NewRegistry()
	require.NoError(t, registry.Register("webhook_delivery", task.HandlerFunc(
		func(ctx context.Context, tk *domain.Task) error { return nil })))

	store := task.NewMemoryTaskStore()
	svc, err := service.NewTaskService(store, registry, 3, testLogger())
	require.NoError(t, err)

	handler := NewTaskHandler(svc)
	router := chi.NewRouter()
	router.Post("/tasks", handler.CreateTask)
	router.Get("/tasks", handler.ListTasks)
	router.Get("/tasks/{id}", handler.GetTask)

	return router, store, svc
}

func doJSON(t *testing.T, handler http.Handler, method, target string, body any) *httptest.ResponseRecorder {
	t.Helper()

	var reader io.Reader
	if body != nil {
		encoded, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(encoded)
	}

	req := httptest.NewRequest(method, target, reader)
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	return rec
}

func TestTaskHandler_CreateTask(t *testing.T) {
	t.Parallel()

	t.Run("accepted", func(t *testing.T) {
		t.Parallel()

		router, store, _ := newTaskAPI(t)

		rec := doJSON(t, router, http.MethodPost, "/tasks", map[string]any{
			"task_type": "webhook_delivery",
			"priority":  "high",
			"payload":   map[string]any{"url": "https://example.com/hook"},
		})

		require.Equal(t, http.StatusAccepted, rec.Code)

		var resp TaskResponse
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
		assert.Equal(t, "webhook_delivery", resp.TaskType)
		assert.Equal(t, "pending", resp.Status)
		assert.Equal(t, "high", resp.Priority)
		assert.NotEmpty(t, resp.Payload)
		assert.Equal(t, 1, store.Len())
	})

	t.Run("malformed body", func(t *testing.T) {
		t.Parallel()

		router, _, _ := newTaskAPI(t)

		req := httptest.NewRequest(http.MethodPost, "/tasks", bytes.NewBufferString("{not json"))
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, req)

		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})

	t.Run("missing task type", func(t *testing.T) {
		t.Parallel()

		router, _, _ := newTaskAPI(t)

		rec := doJSON(t, router, http.MethodPost, "/tasks", map[string]any{
			"payload": map[string]any{},
		})
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})

	t.Run("invalid priority", func(t *testing.T) {
		t.Parallel()

		router, _, _ := newTaskAPI(t)

		rec := doJSON(t, router, http.MethodPost, "/tasks", map[string]any{
			"task_type": "webhook_delivery",
			"priority":  "urgent",
		})
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})

	t.Run("unregistered task type", func(t *testing.T) {
		t.Parallel()

		router, _, _ := newTaskAPI(t)

		rec := doJSON(t, router, http.MethodPost, "/tasks", map[string]any{
			"task_type": "no_such_type",
		})
		assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
	})
}

func TestTaskHandler_GetTask(t *testing.T) {
	t.Parallel()

	router, _, svc := newTaskAPI(t)

	created, err := svc.CreateTask(context.Background(), service.CreateTaskParams{
		TaskType: "webhook_delivery",
		Payload:  map[string]any{"url": "https://example.com"},
	})
	require.NoError(t, err)

	t.Run("found", func(t *testing.T) {
		t.Parallel()

		rec := doJSON(t, router, http.MethodGet, "/tasks/"+created.ID.String(), nil)
		require.Equal(t, http.StatusOK, rec.Code)

		var resp TaskResponse
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
		assert.Equal(t, created.ID.String(), resp.ID)
	})

	t.Run("not found", func(t *testing.T) {
		t.Parallel()

		rec := doJSON(t, router, http.MethodGet, "/tasks/00000000-0000-0000-0000-000000000001", nil)
		assert.Equal(t, http.StatusNotFound, rec.Code)
	})

	t.Run("invalid id", func(t *testing.T) {
		t.Parallel()

		rec := doJSON(t, router, http.MethodGet, "/tasks/not-a-uuid", nil)
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})
}

func TestTaskHandler_ListTasks(t *testing.T) {
	t.Parallel()

	router, _, svc := newTaskAPI(t)

	for i := 0; i < 3; i++ {
		_, err := svc.CreateTask(context.Background(), service.CreateTaskParams{
			TaskType:    "webhook_delivery",
			Payload:     map[string]any{"url": "https://example.com"},
			ScheduledAt: time.Now().UTC().Add(time.Duration(i) * time.Minute),
		})
		require.NoError(t, err)
	}

	type listResponse struct {
		Items []TaskResponse `json:"items"`
		Count int            `json:"count"`
	}

	t.Run("lists all without payloads", func(t *testing.T) {
		t.Parallel()

		rec := doJSON(t, router, http.MethodGet, "/tasks", nil)
		require.Equal(t, http.StatusOK, rec.Code)

		var resp listResponse
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
		assert.Equal(t, 3, resp.Count)
		for _, item := range resp.Items {
			assert.Nil(t, item.Payload, "payload is omitted unless verbose")
		}
	})

	t.Run("verbose includes payloads", func(t *testing.T) {
		t.Parallel()

		rec := doJSON(t, router, http.MethodGet, "/tasks?verbose=true", nil)
		require.Equal(t, http.StatusOK, rec.Code)

		var resp listResponse
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
		for _, item := range resp.Items {
			assert.NotEmpty(t, item.Payload)
		}
	})

	t.Run("status filter", func(t *testing.T) {
		t.Parallel()

		rec := doJSON(t, router, http.MethodGet, "/tasks?status=completed", nil)
		require.Equal(t, http.StatusOK, rec.Code)

		var resp listResponse
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
		assert.Equal(t, 0, resp.Count)
	})

	t.Run("invalid status", func(t *testing.T) {
		t.Parallel()

		rec := doJSON(t, router, http.MethodGet, "/tasks?status=sleeping", nil)
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})

	t.Run("limit", func(t *testing.T) {
		t.Parallel()

		rec := doJSON(t, router, http.MethodGet, "/tasks?limit=2", nil)
		require.Equal(t, http.StatusOK, rec.Code)

		var resp listResponse
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
		assert.Equal(t, 2, resp.Count)
	})
}
