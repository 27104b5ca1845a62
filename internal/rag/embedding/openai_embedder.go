package embedding

import (
	"context"
	"fmt"

	"github.com/jvillegas-dev/chatbot-backend/internal/pkg/logger"
	"github.com/pkoukk/tiktoken-go"
	"github.com/sashabaranov/go-openai"
	"go.uber.org/zap"
)

// maxEmbeddingTokens is the input limit of the text-embedding-3 family.
const maxEmbeddingTokens = 8191

// OpenAIEmbedder generates embeddings through the OpenAI embeddings API.
// A custom BaseURL lets it talk to any OpenAI-compatible endpoint.
type OpenAIEmbedder struct {
	client    *openai.Client
	model     string
	dimension int
	encoder   *tiktoken.Tiktoken
	logger    *logger.Logger
}

// OpenAIEmbedderConfig configures the OpenAI embedder.
type OpenAIEmbedderConfig struct {
	APIKey    string
	BaseURL   string
	Model     string
	Dimension int
}

// NewOpenAIEmbedder creates an OpenAI-backed embedder.
func NewOpenAIEmbedder(cfg *OpenAIEmbedderConfig, log *logger.Logger) (*OpenAIEmbedder, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config is required")
	}
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("api key is required")
	}
	if cfg.Model == "" {
		cfg.Model = string(openai.SmallEmbedding3)
	}
	if cfg.Dimension == 0 {
		cfg.Dimension = 1536
	}
	if log == nil {
		log = logger.L()
	}

	clientCfg := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		clientCfg.BaseURL = cfg.BaseURL
	}

	encoder, err := tiktoken.EncodingForModel(cfg.Model)
	if err != nil {
		// unknown model name, use the encoding the embedding models share
		encoder, err = tiktoken.GetEncoding("cl100k_base")
		if err != nil {
			return nil, fmt.Errorf("failed to load token encoder: %w", err)
		}
	}

	log.Info("openai embedder created",
		zap.String("model", cfg.Model),
		zap.Int("dimension", cfg.Dimension))

	return &OpenAIEmbedder{
		client:    openai.NewClientWithConfig(clientCfg),
		model:     cfg.Model,
		dimension: cfg.Dimension,
		encoder:   encoder,
		logger:    log,
	}, nil
}

// Embed generates the vector for a single text.
func (e *OpenAIEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	embeddings, err := e.BatchEmbed(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	if len(embeddings) == 0 {
		return nil, fmt.Errorf("no embedding generated")
	}
	return embeddings[0], nil
}

// BatchEmbed generates vectors for several texts in one API call. Inputs
// over the model token limit are truncated, not rejected.
func (e *OpenAIEmbedder) BatchEmbed(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return [][]float32{}, nil
	}

	inputs := make([]string, len(texts))
	for i, text := range texts {
		inputs[i] = e.truncateTokens(truncate(text))
	}

	req := openai.EmbeddingRequestStrings{
		Input:      inputs,
		Model:      openai.EmbeddingModel(e.model),
		Dimensions: e.dimension,
	}

	resp, err := e.client.CreateEmbeddings(ctx, req)
	if err != nil {
		e.logger.Error("failed to create embeddings",
			zap.Error(err),
			zap.Int("text_count", len(texts)))
		return nil, fmt.Errorf("failed to create embeddings: %w", err)
	}

	embeddings := make([][]float32, len(resp.Data))
	for i, data := range resp.Data {
		embeddings[i] = data.Embedding
	}

	e.logger.Debug("embeddings created",
		zap.Int("count", len(embeddings)),
		zap.Int("total_tokens", resp.Usage.TotalTokens))

	return embeddings, nil
}

// truncateTokens cuts text down to the model's token limit.
func (e *OpenAIEmbedder) truncateTokens(text string) string {
	tokens := e.encoder.Encode(text, nil, nil)
	if len(tokens) <= maxEmbeddingTokens {
		return text
	}
	return e.encoder.Decode(tokens[:maxEmbeddingTokens])
}

// Dimension returns the vector size.
func (e *OpenAIEmbedder) Dimension() int {
	return e.dimension
}

// Model returns the model identifier.
func (e *OpenAIEmbedder) Model() string {
	return e.model
}

// Provider returns the provider name.
func (e *OpenAIEmbedder) Provider() string {
	return ProviderOpenAI
}
