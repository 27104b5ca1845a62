package factory

import (
	"fmt"
	"time"

	"github.com/jvillegas-dev/chatbot-backend/internal/ai/provider/anthropic"
	"github.com/jvillegas-dev/chatbot-backend/internal/ai/provider/deepseek"
	"github.com/jvillegas-dev/chatbot-backend/internal/ai/provider/openai"
	"github.com/jvillegas-dev/chatbot-backend/internal/ai/provider/registry"
	"github.com/jvillegas-dev/chatbot-backend/internal/ai/provider/types"
)

// Option mutates a provider config.
type Option func(*types.Config)

// WithModel sets the default model.
func WithModel(model string) Option {
	return func(c *types.Config) {
		c.Model = model
	}
}

// WithBaseURL sets a custom endpoint.
func WithBaseURL(baseURL string) Option {
	return func(c *types.Config) {
		c.BaseURL = baseURL
	}
}

// WithTimeout sets the per-request timeout.
func WithTimeout(timeout time.Duration) Option {
	return func(c *types.Config) {
		c.Timeout = timeout
	}
}

// New creates a provider by name and leaves registration to the caller.
func New(name, apiKey string, opts ...Option) (types.Provider, error) {
	config := &types.Config{
		APIKey:  apiKey,
		Timeout: 30 * time.Second,
	}
	for _, opt := range opts {
		opt(config)
	}

	switch name {
	case "openai":
		return openai.New(config)
	case "deepseek":
		return deepseek.New(config)
	case "anthropic":
		return anthropic.New(config)
	default:
		return nil, fmt.Errorf("unknown provider: %s", name)
	}
}

// Setup creates a provider and registers it under its name.
func Setup(name, apiKey string, opts ...Option) (types.Provider, error) {
	provider, err := New(name, apiKey, opts...)
	if err != nil {
		return nil, err
	}
	registry.Register(provider.Name(), provider)
	return provider, nil
}
