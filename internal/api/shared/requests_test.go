package shared

import (
	"bytes"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDecodeJSON(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		body    string
		wantErr bool
	}{
		{
			name: "valid json",
			body: `{"task_type": "webhook_delivery", "priority": "high"}`,
		},
		{
			name:    "malformed json",
			body:    `{"task_type": "webhook_delivery",}`,
			wantErr: true,
		},
		{
			name:    "empty body",
			body:    "",
			wantErr: true,
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			req := httptest.NewRequest(http.MethodPost, "/tasks", bytes.NewBufferString(tc.body))

			var target struct {
				TaskType string `json:"task_type"`
				Priority string `json:"priority"`
			}
			err := DecodeJSON(req, &target)

			if tc.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, "webhook_delivery", target.TaskType)
			assert.Equal(t, "high", target.Priority)
		})
	}
}

// selfValidating exercises the Validate-method branch of ValidateRequest.
type selfValidating struct {
	fail bool
}

func (v *selfValidating) Validate() error {
	if v.fail {
		return errors.New("invalid")
	}
	return nil
}

func TestValidateRequest(t *testing.T) {
	t.Parallel()

	t.Run("struct tags", func(t *testing.T) {
		t.Parallel()

		type tagged struct {
			TaskType string `validate:"required"`
		}

		assert.NoError(t, ValidateRequest(&tagged{TaskType: "webhook_delivery"}))
		assert.Error(t, ValidateRequest(&tagged{}))
	})

	t.Run("own Validate method wins", func(t *testing.T) {
		t.Parallel()

		assert.NoError(t, ValidateRequest(&selfValidating{}))
		assert.Error(t, ValidateRequest(&selfValidating{fail: true}))
	})
}

func TestParsePagination(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name       string
		query      string
		wantLimit  int
		wantOffset int
	}{
		{name: "defaults", query: "", wantLimit: DefaultPageLimit, wantOffset: 0},
		{name: "explicit values", query: "limit=25&offset=75", wantLimit: 25, wantOffset: 75},
		{name: "limit capped", query: "limit=10000", wantLimit: MaxPageLimit, wantOffset: 0},
		{name: "malformed falls back", query: "limit=abc&offset=-3", wantLimit: DefaultPageLimit, wantOffset: 0},
		{name: "zero limit falls back", query: "limit=0", wantLimit: DefaultPageLimit, wantOffset: 0},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			req := httptest.NewRequest(http.MethodGet, "/tasks?"+tc.query, nil)
			limit, offset := ParsePagination(req)
			assert.Equal(t, tc.wantLimit, limit)
			assert.Equal(t, tc.wantOffset, offset)
		})
	}
}
