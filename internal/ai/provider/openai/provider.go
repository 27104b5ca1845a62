package openai

import (
	"context"
	"fmt"

	"github.com/jvillegas-dev/chatbot-backend/internal/ai/provider/types"
	openai "github.com/sashabaranov/go-openai"
)

const defaultModel = openai.GPT4oMini

// Provider implements generation against the OpenAI chat completions API.
type Provider struct {
	config *types.Config
	client *openai.Client
}

// New creates an OpenAI provider.
func New(config *types.Config) (*Provider, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}
	if config.Model == "" {
		config.Model = defaultModel
	}

	clientCfg := openai.DefaultConfig(config.APIKey)
	if config.BaseURL != "" {
		clientCfg.BaseURL = config.BaseURL
	}

	return &Provider{
		config: config,
		client: openai.NewClientWithConfig(clientCfg),
	}, nil
}

// Name returns the provider name.
func (p *Provider) Name() string {
	return "openai"
}

// Generate produces a completion for req.
func (p *Provider) Generate(ctx context.Context, req types.GenerateRequest) (*types.GenerateResponse, error) {
	model := req.Model
	if model == "" {
		model = p.config.Model
	}
	maxTokens := req.MaxTokens
	if maxTokens == 0 {
		maxTokens = p.config.MaxTokens
	}

	messages := make([]openai.ChatCompletionMessage, 0, 2)
	if req.SystemPrompt != "" {
		messages = append(messages, openai.ChatCompletionMessage{
			Role:    openai.ChatMessageRoleSystem,
			Content: req.SystemPrompt,
		})
	}
	messages = append(messages, openai.ChatCompletionMessage{
		Role:    openai.ChatMessageRoleUser,
		Content: req.Prompt,
	})

	resp, err := p.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model:       model,
		Messages:    messages,
		MaxTokens:   maxTokens,
		Temperature: req.Temperature,
	})
	if err != nil {
		return nil, types.NewProviderError(p.Name(), "chat completion failed", err)
	}
	if len(resp.Choices) == 0 {
		return nil, &types.ProviderError{
			Provider: p.Name(),
			Message:  fmt.Sprintf("no choices returned for model %s", model),
		}
	}

	return &types.GenerateResponse{
		Text:         resp.Choices[0].Message.Content,
		Model:        resp.Model,
		InputTokens:  resp.Usage.PromptTokens,
		OutputTokens: resp.Usage.CompletionTokens,
	}, nil
}

// Close releases resources.
func (p *Provider) Close() error {
	return nil
}
