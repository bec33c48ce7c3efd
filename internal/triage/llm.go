package triage

import "context"

// Provider is the interface for any LLM backend. Both the classification
// and generation collaborators are single-shot completions over it.
type Provider interface {
	Complete(ctx context.Context, req *CompletionRequest) (*CompletionResponse, error)
}

// CompletionRequest is the input to the LLM provider.
type CompletionRequest struct {
	System    string
	Prompt    string
	MaxTokens int
}

// CompletionResponse is the text output from the LLM provider plus token
// usage for metrics.
type CompletionResponse struct {
	Text  string
	Usage Usage
}

// Usage represents token consumption reported by the provider.
type Usage struct {
	InputTokens  int `json:"input_tokens"`
	OutputTokens int `json:"output_tokens"`
}
