package alert

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v5"

	"github.com/arch-labs/orchestrator/core"
	"github.com/arch-labs/orchestrator/envelope"
	"github.com/arch-labs/orchestrator/postbox"
)

// Notifier dispatches a triggered alert to its configured channel:
// the HUMAN postbox inbox, a webhook with bounded exponential backoff,
// or a structured log line for console_log.
type Notifier struct {
	pb         *postbox.Postbox
	httpClient *http.Client
	logger     core.Logger
}

// NewNotifier builds a Notifier. pb may be nil if human notifications
// are never used by the loaded policy.
func NewNotifier(pb *postbox.Postbox, logger core.Logger) *Notifier {
	if logger == nil {
		logger = core.NoOpLogger{}
	}
	return &Notifier{
		pb:     pb,
		logger: logger,
		httpClient: &http.Client{
			Timeout: 10 * time.Second,
		},
	}
}

// NotifyHuman writes an alert envelope into HUMAN's inbox.
func (n *Notifier) NotifyHuman(action Action, ctx map[string]interface{}) error {
	level := action.Level
	if level == "" {
		level = "info"
	}
	message := action.Message
	if message == "" {
		if m, ok := ctx["message"].(string); ok {
			message = m
		}
	}

	taskID, _ := ctx["task_id"].(string)
	env := envelope.Envelope{
		Type:        envelope.TypeAlert,
		SenderID:    core.AgentOrchestrator,
		RecipientID: core.AgentHuman,
		Timestamp:   time.Now().UTC().Format(time.RFC3339),
		TaskID:      taskID,
		TraceID:     fmt.Sprintf("alert_%s_%d", taskID, time.Now().UnixNano()),
		Payload: envelope.Payload{
			Type: envelope.TypeAlert,
			Content: map[string]interface{}{
				"level":   level,
				"message": message,
				"context": ctx,
			},
		},
	}
	if err := n.pb.AppendToInbox(core.AgentHuman, env); err != nil {
		return core.NewError("alert.NotifyHuman", core.ErrNotify, "", taskID, err)
	}
	return nil
}

// NotifyConsole logs the alert through the structured logger, standing
// in for the teacher stack's console_log action.
func (n *Notifier) NotifyConsole(action Action, ctx map[string]interface{}) error {
	level := action.Level
	if level == "" {
		level = "info"
	}
	fields := map[string]interface{}{"context": ctx}
	switch strings.ToLower(level) {
	case "warn", "warning":
		n.logger.Warn(action.Message, fields)
	case "error":
		n.logger.Error(action.Message, fields)
	default:
		n.logger.Info(action.Message, fields)
	}
	return nil
}

// NotifyWebhook posts ctx (or a rendered template) to action.URL, retrying
// transport failures and 5xx responses up to twice with exponential
// backoff. A 4xx response is treated as permanent and is not retried.
func (n *Notifier) NotifyWebhook(action Action, ctx map[string]interface{}) error {
	if action.URL == "" {
		return core.NewError("alert.NotifyWebhook", core.ErrNotify, "", "", fmt.Errorf("webhook url is required"))
	}

	body, err := renderBody(action, ctx)
	if err != nil {
		return core.NewError("alert.NotifyWebhook", core.ErrNotify, "", "", err)
	}

	timeout := time.Duration(action.TimeoutSeconds) * time.Second
	if timeout <= 0 {
		timeout = 10 * time.Second
	}

	operation := func() (struct{}, error) {
		reqCtx, cancel := context.WithTimeout(context.Background(), timeout)
		defer cancel()

		req, err := http.NewRequestWithContext(reqCtx, http.MethodPost, action.URL, bytes.NewReader(body))
		if err != nil {
			return struct{}{}, backoff.Permanent(err)
		}
		req.Header.Set("Content-Type", "application/json")
		for k, v := range action.Headers {
			req.Header.Set(k, v)
		}

		resp, err := n.httpClient.Do(req)
		if err != nil {
			return struct{}{}, err
		}
		defer resp.Body.Close()

		switch {
		case resp.StatusCode >= 500:
			return struct{}{}, fmt.Errorf("webhook %s returned %d", action.URL, resp.StatusCode)
		case resp.StatusCode >= 400:
			return struct{}{}, backoff.Permanent(fmt.Errorf("webhook %s returned %d", action.URL, resp.StatusCode))
		}
		return struct{}{}, nil
	}

	_, err = backoff.Retry(context.Background(), operation,
		backoff.WithBackOff(backoff.NewExponentialBackOff()),
		backoff.WithMaxTries(3),
	)
	if err != nil {
		n.logger.Error("webhook notification failed", map[string]interface{}{"url": action.URL, "error": err.Error()})
		return core.NewError("alert.NotifyWebhook", core.ErrNotify, "", "", err)
	}
	return nil
}

// renderBody applies action.Template's `{{.key}}` placeholders against
// ctx, falling back to a plain JSON encoding of ctx when no template is
// configured.
func renderBody(action Action, ctx map[string]interface{}) ([]byte, error) {
	if action.Template == "" {
		return json.Marshal(ctx)
	}
	body := action.Template
	for key, value := range ctx {
		placeholder := fmt.Sprintf("{{.%s}}", key)
		body = strings.ReplaceAll(body, placeholder, fmt.Sprint(value))
	}
	return []byte(body), nil
}
