package embedding

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"time"

	"github.com/jvillegas-dev/chatbot-backend/internal/pkg/logger"
	"github.com/jvillegas-dev/chatbot-backend/internal/pkg/redis"
	"go.uber.org/zap"
)

// CacheEmbedder decorates another Embedder with a redis cache. Re-embedding
// the same chunk or query becomes a cache read, which matters when documents
// are reprocessed or popular questions repeat.
type CacheEmbedder struct {
	embedder Embedder
	cache    *redis.Client
	ttl      time.Duration
	prefix   string
	logger   *logger.Logger
}

// CacheEmbedderConfig configures the cache decorator.
type CacheEmbedderConfig struct {
	TTL    time.Duration
	Prefix string
}

// NewCacheEmbedder wraps embedder with a redis cache.
func NewCacheEmbedder(embedder Embedder, cache *redis.Client, cfg *CacheEmbedderConfig, log *logger.Logger) *CacheEmbedder {
	if cfg == nil {
		cfg = &CacheEmbedderConfig{}
	}
	if cfg.TTL == 0 {
		cfg.TTL = 24 * time.Hour
	}
	if cfg.Prefix == "" {
		cfg.Prefix = "rag:embedding:"
	}
	if log == nil {
		log = logger.L()
	}

	return &CacheEmbedder{
		embedder: embedder,
		cache:    cache,
		ttl:      cfg.TTL,
		prefix:   cfg.Prefix,
		logger:   log,
	}
}

// Embed returns the cached vector for text, or delegates and caches.
func (e *CacheEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	key := e.cacheKey(text)

	if e.cache != nil {
		if cached, err := e.getFromCache(ctx, key); err == nil {
			e.logger.Debug("embedding cache hit", zap.String("cache_key", key))
			return cached, nil
		}
	}

	vec, err := e.embedder.Embed(ctx, text)
	if err != nil {
		return nil, err
	}

	if e.cache != nil {
		if err := e.setToCache(ctx, key, vec); err != nil {
			e.logger.Warn("failed to cache embedding",
				zap.String("cache_key", key),
				zap.Error(err))
		}
	}

	return vec, nil
}

// BatchEmbed resolves cached texts first and only sends misses downstream.
func (e *CacheEmbedder) BatchEmbed(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return [][]float32{}, nil
	}

	results := make([][]float32, len(texts))
	missingIndices := make([]int, 0, len(texts))
	missingTexts := make([]string, 0, len(texts))

	if e.cache != nil {
		for i, text := range texts {
			if cached, err := e.getFromCache(ctx, e.cacheKey(text)); err == nil {
				results[i] = cached
			} else {
				missingIndices = append(missingIndices, i)
				missingTexts = append(missingTexts, text)
			}
		}
		e.logger.Debug("batch embedding cache stats",
			zap.Int("total", len(texts)),
			zap.Int("cache_misses", len(missingTexts)))
	} else {
		for i, text := range texts {
			missingIndices = append(missingIndices, i)
			missingTexts = append(missingTexts, text)
		}
	}

	if len(missingTexts) == 0 {
		return results, nil
	}

	var embeddings [][]float32
	var err error
	if batch, ok := e.embedder.(BatchEmbedder); ok {
		embeddings, err = batch.BatchEmbed(ctx, missingTexts)
	} else {
		embeddings = make([][]float32, len(missingTexts))
		for i, text := range missingTexts {
			embeddings[i], err = e.embedder.Embed(ctx, text)
			if err != nil {
				break
			}
		}
	}
	if err != nil {
		return nil, err
	}

	for i, vec := range embeddings {
		results[missingIndices[i]] = vec
		if e.cache != nil {
			key := e.cacheKey(missingTexts[i])
			if err := e.setToCache(ctx, key, vec); err != nil {
				e.logger.Warn("failed to cache embedding",
					zap.String("cache_key", key),
					zap.Error(err))
			}
		}
	}

	return results, nil
}

// Dimension returns the wrapped embedder's vector size.
func (e *CacheEmbedder) Dimension() int {
	return e.embedder.Dimension()
}

// Model returns the wrapped embedder's model identifier.
func (e *CacheEmbedder) Model() string {
	return e.embedder.Model()
}

// Provider returns the wrapped embedder's provider name.
func (e *CacheEmbedder) Provider() string {
	return e.embedder.Provider()
}

// cacheKey derives the key from the model and a hash of the text, so a
// model change never serves stale vectors.
func (e *CacheEmbedder) cacheKey(text string) string {
	sum := sha256.Sum256([]byte(text))
	return fmt.Sprintf("%s%s:%s", e.prefix, e.Model(), hex.EncodeToString(sum[:]))
}

func (e *CacheEmbedder) getFromCache(ctx context.Context, key string) ([]float32, error) {
	data, err := e.cache.Get(ctx, key)
	if err != nil {
		return nil, err
	}
	var vec []float32
	if err := json.Unmarshal([]byte(data), &vec); err != nil {
		return nil, fmt.Errorf("failed to unmarshal cached embedding: %w", err)
	}
	return vec, nil
}

func (e *CacheEmbedder) setToCache(ctx context.Context, key string, vec []float32) error {
	data, err := json.Marshal(vec)
	if err != nil {
		return fmt.Errorf("failed to marshal embedding: %w", err)
	}
	return e.cache.Set(ctx, key, string(data), e.ttl)
}
