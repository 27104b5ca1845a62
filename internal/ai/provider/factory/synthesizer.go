package factory

import (
	"context"
	"errors"

	"github.com/jvillegas-dev/chatbot-backend/internal/ai/provider/types"
)

// ChainSynthesizer adapts the provider fallback chain to the
// answer-synthesis contract used by the RAG pipeline.
type ChainSynthesizer struct {
	chain       *Chain
	maxTokens   int
	temperature float32
}

func NewChainSynthesizer(chain *Chain, maxTokens int, temperature float32) *ChainSynthesizer {
	return &ChainSynthesizer{
		chain:       chain,
		maxTokens:   maxTokens,
		temperature: temperature,
	}
}

// Synthesize runs the prompt through the chain and returns the first
// successful provider's text.
func (s *ChainSynthesizer) Synthesize(ctx context.Context, systemPrompt, prompt string) (string, error) {
	resp, _, err := s.chain.Generate(ctx, types.GenerateRequest{
		SystemPrompt: systemPrompt,
		Prompt:       prompt,
		MaxTokens:    s.maxTokens,
		Temperature:  s.temperature,
	})
	if err != nil {
		return "", err
	}
	if resp.Text == "" {
		return "", errors.New("provider returned empty completion")
	}
	return resp.Text, nil
}
