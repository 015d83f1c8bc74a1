// Package handlers contains the built-in task handlers registered by
// the server at startup.
package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/jparker/dispatch-api/internal/domain"
)

// TaskTypeWebhookDelivery is the task type handled by WebhookHandler.
const TaskTypeWebhookDelivery = "webhook_delivery"

// WebhookHandler delivers a task payload to an external HTTP endpoint.
// The payload must carry a "url" string; the remaining payload fields
// are posted as the JSON body.
type WebhookHandler struct {
	client *http.Client
	logger *slog.Logger
}

// NewWebhookHandler creates a WebhookHandler. A nil client falls back
// to a client with a 30 second timeout.
func NewWebhookHandler(client *http.Client, logger *slog.Logger) *WebhookHandler {
	if client == nil {
		client = &http.Client{Timeout: 30 * time.Second}
	}
	return &WebhookHandler{
		client: client,
		logger: logger.With("component", "webhook_handler"),
	}
}

// Execute posts the task payload to the target URL. Any non-2xx
// response is an error so the delivery is retried with backoff.
func (h *WebhookHandler) Execute(ctx context.Context, t *domain.Task) error {
	url, ok := t.Payload["url"].(string)
	if !ok || url == "" {
		return errors.New("webhook payload missing url")
	}

	body := make(map[string]any, len(t.Payload))
	for k, v := range t.Payload {
		if k == "url" {
			continue
		}
		body[k] = v
	}

	encoded, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("failed to encode webhook body: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(encoded))
	if err != nil {
		return fmt.Errorf("failed to build webhook request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Dispatch-Task-ID", t.ID.String())

	resp, err := h.client.Do(req)
	if err != nil {
		return fmt.Errorf("webhook delivery failed: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return fmt.Errorf("webhook endpoint returned status %d", resp.StatusCode)
	}

	h.logger.Debug("webhook delivered",
		"task_id", t.ID,
		"status", resp.StatusCode)
	return nil
}
