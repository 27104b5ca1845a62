package factory

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/jvillegas-dev/chatbot-backend/internal/ai/provider/registry"
	"github.com/jvillegas-dev/chatbot-backend/internal/ai/provider/types"
	"github.com/jvillegas-dev/chatbot-backend/internal/pkg/logger"
	"go.uber.org/zap"
)

// ErrNoProviders is returned when the chain has no usable provider.
var ErrNoProviders = errors.New("no providers available")

// Chain tries registered providers in a fixed order until one produces a
// completion. The order is configuration, not code, so operators can demote
// a flaky backend without a deploy.
type Chain struct {
	order  []string
	logger *logger.Logger
}

// NewChain creates a fallback chain over the given provider names.
func NewChain(order []string, log *logger.Logger) *Chain {
	if log == nil {
		log = logger.L()
	}
	return &Chain{order: order, logger: log}
}

// Order returns the configured provider order.
func (c *Chain) Order() []string {
	return c.order
}

// Generate tries each provider in order. It returns the first successful
// response along with the name of the provider that produced it. When every
// provider fails, the error lists each failure.
func (c *Chain) Generate(ctx context.Context, req types.GenerateRequest) (*types.GenerateResponse, string, error) {
	if len(c.order) == 0 {
		return nil, "", ErrNoProviders
	}

	var failures []string
	for _, name := range c.order {
		provider, err := registry.Get(name)
		if err != nil {
			failures = append(failures, fmt.Sprintf("%s: not registered", name))
			continue
		}

		resp, err := provider.Generate(ctx, req)
		if err == nil {
			return resp, name, nil
		}

		c.logger.Warn("provider failed, trying next",
			zap.String("provider", name),
			zap.Error(err))
		failures = append(failures, fmt.Sprintf("%s: %v", name, err))

		// a cancelled context fails every remaining provider the same way
		if ctx.Err() != nil {
			break
		}
	}

	return nil, "", fmt.Errorf("all providers failed: %s", strings.Join(failures, "; "))
}
