package triage

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/linnemanlabs/go-core/log"

	"github.com/linnemanlabs/bursar/internal/mail"
)

func agentClassification() Classification {
	return Classification{
		MessageID: "t3",
		Message: mail.Message{
			ID: "t3", Subject: "RE: Tuition question", Body: "The portal shows nothing.",
			ReceivedAt: time.Now(),
		},
		Route:      RouteAgent,
		Confidence: 0.95,
	}
}

func TestDraft_UsesThreadContext(t *testing.T) {
	t.Parallel()

	provider := &mockProvider{fn: func(req *CompletionRequest) (*CompletionResponse, error) {
		return &CompletionResponse{Text: "Please check the billing tab."}, nil
	}}
	d := NewDrafter(provider, log.Nop())

	got, err := d.Draft(context.Background(), agentClassification(), sampleThread())
	if err != nil {
		t.Fatalf("Draft: %v", err)
	}
	if got != "Please check the billing tab." {
		t.Errorf("draft = %q", got)
	}

	provider.mu.Lock()
	defer provider.mu.Unlock()
	prompt := provider.calls[0].Prompt
	if !strings.Contains(prompt, "<<< RESPOND TO THIS") {
		t.Errorf("prompt missing respond marker:\n%s", prompt)
	}
	if !strings.Contains(prompt, "'<<< RESPOND TO THIS'") {
		t.Errorf("prompt missing thread instruction:\n%s", prompt)
	}
	if provider.calls[0].System != draftSystemPrompt {
		t.Error("draft must use the generation system prompt")
	}
}

func TestDraft_FallsBackToRawMessage(t *testing.T) {
	t.Parallel()

	provider := &mockProvider{fn: func(req *CompletionRequest) (*CompletionResponse, error) {
		return &CompletionResponse{Text: "Answer."}, nil
	}}
	d := NewDrafter(provider, log.Nop())

	if _, err := d.Draft(context.Background(), agentClassification(), nil); err != nil {
		t.Fatalf("Draft: %v", err)
	}

	provider.mu.Lock()
	defer provider.mu.Unlock()
	prompt := provider.calls[0].Prompt
	if !strings.Contains(prompt, "Subject: RE: Tuition question") {
		t.Errorf("fallback prompt missing subject:\n%s", prompt)
	}
	if !strings.Contains(prompt, "Body: The portal shows nothing.") {
		t.Errorf("fallback prompt missing body:\n%s", prompt)
	}
}

func TestDraft_CleansResponse(t *testing.T) {
	t.Parallel()

	provider := &mockProvider{fn: func(*CompletionRequest) (*CompletionResponse, error) {
		return &CompletionResponse{Text: "Due May 1【4:0†Billing_FAQ.pdf】.\n\n\n\nThanks"}, nil
	}}
	d := NewDrafter(provider, log.Nop())

	got, err := d.Draft(context.Background(), agentClassification(), nil)
	if err != nil {
		t.Fatalf("Draft: %v", err)
	}
	if got != "Due May 1.\n\nThanks" {
		t.Errorf("draft = %q", got)
	}
}

func TestDraft_EmptyResponseIsError(t *testing.T) {
	t.Parallel()

	provider := &mockProvider{fn: func(*CompletionRequest) (*CompletionResponse, error) {
		return &CompletionResponse{Text: "  【1†a.pdf】  "}, nil
	}}
	d := NewDrafter(provider, log.Nop())

	if _, err := d.Draft(context.Background(), agentClassification(), nil); err == nil {
		t.Fatal("expected error for empty cleaned response")
	}
}

func TestDraft_ProviderError(t *testing.T) {
	t.Parallel()

	provider := &mockProvider{fn: func(*CompletionRequest) (*CompletionResponse, error) {
		return nil, errors.New("overloaded")
	}}
	d := NewDrafter(provider, log.Nop())

	if _, err := d.Draft(context.Background(), agentClassification(), nil); err == nil {
		t.Fatal("expected error when provider fails")
	}
}
