package task

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jparker/dispatch-api/internal/domain"
)

func noopHandler() Handler {
	return HandlerFunc(func(ctx context.Context, t *domain.Task) error {
		return nil
	})
}

func TestRegistry_Register(t *testing.T) {
	t.Parallel()

	t.Run("successful registration", func(t *testing.T) {
		t.Parallel()

		r := NewRegistry()
		require.NoError(t, r.Register("webhook_delivery", noopHandler()))

		handler, ok := r.Get("webhook_delivery")
		assert.True(t, ok)
		assert.NotNil(t, handler)
	})

	t.Run("empty task type", func(t *testing.T) {
		t.Parallel()

		r := NewRegistry()
		err := r.Register("", noopHandler())
		assert.Error(t, err)
	})

	t.Run("nil handler", func(t *testing.T) {
		t.Parallel()

		r := NewRegistry()
		err := r.Register("webhook_delivery", nil)
		assert.Error(t, err)
	})

	t.Run("duplicate registration", func(t *testing.T) {
		t.Parallel()

		r := NewRegistry()
		require.NoError(t, r.Register("webhook_delivery", noopHandler()))

		err := r.Register("webhook_delivery", noopHandler())
		assert.Error(t, err)
		assert.Contains(t, err.Error(), "already registered")
	})
}

func TestRegistry_Get_UnknownType(t *testing.T) {
	t.Parallel()

	r := NewRegistry()
	handler, ok := r.Get("nonexistent")
	assert.False(t, ok)
	assert.Nil(t, handler)
}

func TestRegistry_Types(t *testing.T) {
	t.Parallel()

	r := NewRegistry()
	require.NoError(t, r.Register("webhook_delivery", noopHandler()))
	require.NoError(t, r.Register("email_send", noopHandler()))

	assert.ElementsMatch(t, []string{"webhook_delivery", "email_send"}, r.Types())
}

func TestRegistry_ConcurrentLookup(t *testing.T) {
	t.Parallel()

	r := NewRegistry()
	require.NoError(t, r.Register("webhook_delivery", noopHandler()))

	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				_, ok := r.Get("webhook_delivery")
				assert.True(t, ok)
			}
		}()
	}
	wg.Wait()
}

func TestHandlerFunc_Execute(t *testing.T) {
	t.Parallel()

	called := false
	fn := HandlerFunc(func(ctx context.Context, task *domain.Task) error {
		called = true
		return nil
	})

	task, err := domain.NewTask("webhook_delivery", domain.TaskPriorityNormal, nil, 3, time.Time{})
	require.NoError(t, err)

	require.NoError(t, fn.Execute(context.Background(), task))
	assert.True(t, called)
}
