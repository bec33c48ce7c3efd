// Package slack sends triage run summaries to Slack via incoming webhooks.
package slack

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/linnemanlabs/bursar/internal/triage"
)

const httpTimeout = 10 * time.Second

// Notifier posts run summaries to a Slack webhook.
type Notifier struct {
	webhookURL string
	client     *http.Client
}

// New creates a new Slack notifier. If webhookURL is empty, Send is a no-op.
func New(webhookURL string) *Notifier {
	return &Notifier{
		webhookURL: webhookURL,
		client:     &http.Client{Timeout: httpTimeout},
	}
}

// Send posts a run summary to the configured Slack webhook.
// If no webhook URL is configured, it returns nil immediately.
func (n *Notifier) Send(ctx context.Context, summary *triage.Summary) error {
	if n.webhookURL == "" {
		return nil
	}

	msg := buildMessage(summary)

	body, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("slack: marshal message: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, n.webhookURL, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("slack: create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := n.client.Do(req) //nolint:gosec // G704: webhookURL is from trusted config, not user input
	if err != nil {
		return fmt.Errorf("slack: post webhook: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("slack: webhook returned %d: %s", resp.StatusCode, string(respBody))
	}
	return nil
}

func buildMessage(s *triage.Summary) map[string]any {
	return map[string]any{
		"blocks": []map[string]any{
			headerBlock(s),
			{"type": "divider"},
			fieldsBlock(s),
			{"type": "divider"},
			contextBlock(),
		},
	}
}

func headerBlock(s *triage.Summary) map[string]any {
	emoji := "\U0001f7e2" // green circle
	title := "Inbox Triage Complete"
	if s.Status == "empty" {
		title = "Inbox Clear"
	}
	if s.HumanRequired > 0 {
		emoji = "\U0001f7e1" // yellow circle: pending human review
	}

	return map[string]any{
		"type": "header",
		"text": map[string]any{
			"type": "plain_text",
			"text": fmt.Sprintf("%s %s", emoji, title),
		},
	}
}

func fieldsBlock(s *triage.Summary) map[string]any {
	fields := []map[string]any{
		{
			"type": "mrkdwn",
			"text": fmt.Sprintf("*Processed:* %d", s.Processed),
		},
		{
			"type": "mrkdwn",
			"text": fmt.Sprintf("*Auto-drafted:* %d", s.AIAgent),
		},
		{
			"type": "mrkdwn",
			"text": fmt.Sprintf("*Needs human:* %d", s.HumanRequired),
		},
		{
			"type": "mrkdwn",
			"text": fmt.Sprintf("*Redirected:* %d", s.Redirect),
		},
		{
			"type": "mrkdwn",
			"text": fmt.Sprintf("*Skipped:* %d", s.Skipped),
		},
	}

	return map[string]any{
		"type":   "section",
		"fields": fields,
	}
}

func contextBlock() map[string]any {
	elements := []map[string]any{
		{
			"type": "mrkdwn",
			"text": fmt.Sprintf("bursar • %s", time.Now().UTC().Format("2006-01-02 15:04 UTC")),
		},
	}

	return map[string]any{
		"type":     "context",
		"elements": elements,
	}
}
