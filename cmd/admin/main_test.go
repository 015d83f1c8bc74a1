package main

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jparker/dispatch-api/internal/domain"
)

func newListedTask(t *testing.T, lastError string) *domain.Task {
	t.Helper()

	created, err := domain.NewTask("webhook_delivery", domain.TaskPriorityHigh,
		map[string]any{"url": "https://example.com/hook"}, 3, time.Time{})
	require.NoError(t, err)
	created.LastError = lastError
	return created
}

func TestPrintTaskTable(t *testing.T) {
	t.Parallel()

	longError := strings.Repeat("connection refused; ", 10)

	t.Run("default output truncates errors and omits payloads", func(t *testing.T) {
		t.Parallel()

		task := newListedTask(t, longError)

		var out strings.Builder
		require.NoError(t, printTaskTable(&out, []*domain.Task{task}, false))

		assert.Contains(t, out.String(), task.ID.String())
		assert.Contains(t, out.String(), "...")
		assert.NotContains(t, out.String(), longError)
		assert.NotContains(t, out.String(), "PAYLOAD")
		assert.NotContains(t, out.String(), "example.com")
	})

	t.Run("verbose output includes payloads and full errors", func(t *testing.T) {
		t.Parallel()

		task := newListedTask(t, longError)

		var out strings.Builder
		require.NoError(t, printTaskTable(&out, []*domain.Task{task}, true))

		assert.Contains(t, out.String(), "PAYLOAD")
		assert.Contains(t, out.String(), `"url":"https://example.com/hook"`)
		assert.Contains(t, out.String(), longError)
	})

	t.Run("empty list prints only the header", func(t *testing.T) {
		t.Parallel()

		var out strings.Builder
		require.NoError(t, printTaskTable(&out, nil, false))
		assert.Equal(t, 1, strings.Count(out.String(), "\n"))
	})
}

func TestTruncate(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "short", truncate("short", 60))
	assert.Equal(t, "abc...", truncate("abcdefgh", 6))
}
