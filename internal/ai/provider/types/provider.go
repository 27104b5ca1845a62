package types

import "context"

// Provider is the uniform interface over the chat-completion backends. The
// synthesis layer only needs single-turn generation, so the surface is one
// prompt in, one completion out.
type Provider interface {
	// Generate produces a completion for req.
	Generate(ctx context.Context, req GenerateRequest) (*GenerateResponse, error)

	// Name returns the provider name used for registry lookup and logging.
	Name() string

	// Close releases any held resources.
	Close() error
}

// GenerateRequest is a single-turn generation request.
type GenerateRequest struct {
	SystemPrompt string
	Prompt       string
	Model        string // empty means the provider's configured default
	MaxTokens    int
	Temperature  float32
}

// GenerateResponse carries the completion and token accounting.
type GenerateResponse struct {
	Text         string
	Model        string
	InputTokens  int
	OutputTokens int
}
