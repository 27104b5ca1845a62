package embedding

import (
	"fmt"

	"github.com/jvillegas-dev/chatbot-backend/internal/pkg/logger"
	"github.com/jvillegas-dev/chatbot-backend/internal/pkg/redis"
)

// Provider names accepted by the factory.
const (
	ProviderLocal  = "local"
	ProviderOpenAI = "openai"
)

// ProviderInfo describes an available embedding provider.
type ProviderInfo struct {
	Name        string `json:"name"`
	Model       string `json:"model"`
	Dimension   int    `json:"dimension"`
	RequiresKey bool   `json:"requires_key"`
	Description string `json:"description"`
}

// Providers lists the embedding providers this build supports.
func Providers() []ProviderInfo {
	return []ProviderInfo{
		{
			Name:        ProviderLocal,
			Model:       "local-hash-v1",
			Dimension:   LocalDimension,
			RequiresKey: false,
			Description: "deterministic hash embedding, no external service",
		},
		{
			Name:        ProviderOpenAI,
			Model:       "text-embedding-3-small",
			Dimension:   1536,
			RequiresKey: true,
			Description: "OpenAI embeddings API (or any compatible endpoint)",
		},
	}
}

// Recommended picks the best provider the given credentials can actually
// use: openai when an API key is present, local otherwise.
func Recommended(apiKey string) string {
	if apiKey != "" {
		return ProviderOpenAI
	}
	return ProviderLocal
}

// Factory builds embedders by provider name and wires in the shared cache.
type Factory struct {
	logger *logger.Logger
	cache  *redis.Client
}

// NewFactory creates an embedder factory. cache may be nil, in which case
// embedders are returned undecorated.
func NewFactory(log *logger.Logger, cache *redis.Client) *Factory {
	if log == nil {
		log = logger.L()
	}
	return &Factory{logger: log, cache: cache}
}

// CreateEmbedderConfig selects and configures an embedder.
type CreateEmbedderConfig struct {
	Provider    string
	Model       string
	Dimension   int
	APIKey      string
	BaseURL     string
	EnableCache bool
}

// CreateEmbedder builds the embedder named in cfg.
func (f *Factory) CreateEmbedder(cfg *CreateEmbedderConfig) (Embedder, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config is required")
	}

	var embedder Embedder
	var err error

	switch cfg.Provider {
	case ProviderLocal, "":
		embedder = NewLocalEmbedder(cfg.Dimension)

	case ProviderOpenAI:
		embedder, err = NewOpenAIEmbedder(&OpenAIEmbedderConfig{
			APIKey:    cfg.APIKey,
			BaseURL:   cfg.BaseURL,
			Model:     cfg.Model,
			Dimension: cfg.Dimension,
		}, f.logger)

	default:
		return nil, fmt.Errorf("unsupported embedding provider: %s", cfg.Provider)
	}

	if err != nil {
		return nil, fmt.Errorf("failed to create embedder: %w", err)
	}

	if cfg.EnableCache && f.cache != nil {
		embedder = NewCacheEmbedder(embedder, f.cache, nil, f.logger)
	}

	return embedder, nil
}
