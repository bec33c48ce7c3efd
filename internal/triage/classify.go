package triage

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/linnemanlabs/go-core/log"

	"github.com/linnemanlabs/bursar/internal/mail"
)

const classifyResponseTokens = 512

// Classifier routes inbound messages by invoking the classification
// collaborator with the fixed triage policy and per-message thread context.
type Classifier struct {
	provider Provider
	system   string
	logger   log.Logger
}

// NewClassifier creates a classifier. departments lists the redirect
// targets embedded in the routing policy.
func NewClassifier(provider Provider, departments []string, logger log.Logger) *Classifier {
	if logger == nil {
		logger = log.Nop()
	}
	return &Classifier{
		provider: provider,
		system:   classifySystemPrompt(departments),
		logger:   logger,
	}
}

// verdict mirrors the JSON structure the policy demands from the
// collaborator. Parsed and validated at the boundary; anything malformed
// is a per-item failure.
type verdict struct {
	Route      string  `json:"route"`
	Department string  `json:"department"`
	Confidence float64 `json:"confidence"`
	Reason     string  `json:"reason"`
}

// Classify routes a batch of messages into the three output lists. Calls
// are issued sequentially, one message at a time. A failed or unparseable
// classification drops that message from all three lists; the batch
// continues.
func (c *Classifier) Classify(ctx context.Context, msgs []mail.Message, threads map[string][]mail.ThreadMessage) (human, agent, redirect []Classification) {
	for _, m := range msgs {
		cl, err := c.classifyOne(ctx, m, threads[m.ID])
		if err != nil {
			c.logger.Error(ctx, err, "classification failed, dropping message",
				"message_id", m.ID,
				"subject", m.Subject,
			)
			continue
		}

		switch cl.Route {
		case RouteAgent:
			agent = append(agent, cl)
		case RouteHuman:
			human = append(human, cl)
		case RouteRedirect:
			redirect = append(redirect, cl)
		}
	}
	return human, agent, redirect
}

func (c *Classifier) classifyOne(ctx context.Context, m mail.Message, thread []mail.ThreadMessage) (Classification, error) {
	// Multi-message threads get the full thread context; single messages
	// get the minimal rendering.
	var userContext string
	if len(thread) > 1 {
		userContext = ClassificationContext(thread, m.ID)
	} else {
		userContext = SingleMessageContext(m)
	}

	resp, err := c.provider.Complete(ctx, &CompletionRequest{
		System:    c.system,
		Prompt:    userContext,
		MaxTokens: classifyResponseTokens,
	})
	if err != nil {
		return Classification{}, fmt.Errorf("classify call: %w", err)
	}

	v, err := parseVerdict(resp.Text)
	if err != nil {
		return Classification{}, fmt.Errorf("parse verdict: %w", err)
	}

	route, err := ParseRoute(v.Route)
	if err != nil {
		return Classification{}, err
	}
	if v.Confidence < 0 || v.Confidence > 1 {
		return Classification{}, fmt.Errorf("confidence %v out of range", v.Confidence)
	}

	// Department is meaningful only on the redirect route.
	dept := strings.TrimSpace(v.Department)
	if dept == "None" {
		dept = ""
	}
	if route == RouteRedirect && dept == "" {
		return Classification{}, fmt.Errorf("redirect verdict missing department")
	}
	if route != RouteRedirect {
		dept = ""
	}

	return Classification{
		MessageID:  m.ID,
		Message:    m,
		Route:      route,
		Confidence: v.Confidence,
		Reason:     v.Reason,
		Department: dept,
	}, nil
}

// parseVerdict decodes the collaborator's JSON verdict, tolerating markdown
// code fences around the payload.
func parseVerdict(text string) (*verdict, error) {
	s := strings.TrimSpace(text)
	if strings.HasPrefix(s, "```") {
		s = strings.TrimPrefix(s, "```json")
		s = strings.TrimPrefix(s, "```")
		s = strings.TrimSuffix(strings.TrimSpace(s), "```")
		s = strings.TrimSpace(s)
	}

	var v verdict
	if err := json.Unmarshal([]byte(s), &v); err != nil {
		return nil, fmt.Errorf("unmarshal: %w", err)
	}
	return &v, nil
}
