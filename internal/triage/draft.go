package triage

import (
	"context"
	"fmt"

	"github.com/linnemanlabs/go-core/log"

	"github.com/linnemanlabs/bursar/internal/mail"
)

const draftResponseTokens = 2048

// Drafter generates knowledge-base replies for messages routed to the
// automated path.
type Drafter struct {
	provider Provider
	logger   log.Logger
}

// NewDrafter creates a drafter backed by the generation collaborator.
func NewDrafter(provider Provider, logger log.Logger) *Drafter {
	if logger == nil {
		logger = log.Nop()
	}
	return &Drafter{provider: provider, logger: logger}
}

// Draft produces a sanitized email-ready response for an AI_AGENT
// classification. A non-nil error means the message must be skipped, not
// enqueued with an empty reply.
func (d *Drafter) Draft(ctx context.Context, cl Classification, thread []mail.ThreadMessage) (string, error) {
	var prompt string
	if len(thread) > 0 {
		prompt = GenerationContext(thread, cl.MessageID) + draftThreadInstruction
	} else {
		// No thread available; fall back to the raw message.
		prompt = fmt.Sprintf("Subject: %s\nBody: %s", cl.Message.Subject, cl.Message.Body)
	}

	resp, err := d.provider.Complete(ctx, &CompletionRequest{
		System:    draftSystemPrompt,
		Prompt:    prompt,
		MaxTokens: draftResponseTokens,
	})
	if err != nil {
		return "", fmt.Errorf("draft call: %w", err)
	}

	cleaned := CleanResponse(resp.Text)
	if cleaned == "" {
		return "", fmt.Errorf("draft produced empty response")
	}
	return cleaned, nil
}
