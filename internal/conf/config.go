package conf

import (
	"fmt"
	"time"

	"github.com/jvillegas-dev/chatbot-backend/internal/pkg/database"
	"github.com/jvillegas-dev/chatbot-backend/internal/pkg/logger"
	"github.com/jvillegas-dev/chatbot-backend/internal/pkg/redis"
	"github.com/spf13/viper"
)

// Config is the root application configuration.
type Config struct {
	Server   ServerConfig    `mapstructure:"server"`
	Database database.Config `mapstructure:"database"`
	Redis    RedisConfig     `mapstructure:"redis"`
	Log      logger.Config   `mapstructure:"log"`
	AI       AIConfig        `mapstructure:"ai"`
	RAG      RAGConfig       `mapstructure:"rag"`
}

type ServerConfig struct {
	Host string `mapstructure:"host"`
	Port int    `mapstructure:"port"`
}

// RedisConfig wraps the redis client settings plus an enable switch; the
// embedding cache is optional and the service runs without it.
type RedisConfig struct {
	Enabled      bool `mapstructure:"enabled"`
	redis.Config `mapstructure:",squash"`
}

// AIConfig configures the answer-synthesis providers and the embedding
// provider. Providers are tried in FallbackOrder until one succeeds.
type AIConfig struct {
	FallbackOrder []string       `mapstructure:"fallback_order"` // e.g. ["openai", "deepseek", "anthropic"]
	Timeout       time.Duration  `mapstructure:"timeout"`        // per synthesizer call
	OpenAI        ProviderConfig `mapstructure:"openai"`
	DeepSeek      ProviderConfig `mapstructure:"deepseek"`
	Anthropic     ProviderConfig `mapstructure:"anthropic"`

	Embedding EmbeddingConfig `mapstructure:"embedding"`
}

type ProviderConfig struct {
	APIKey  string `mapstructure:"api_key"`
	BaseURL string `mapstructure:"base_url"`
	Model   string `mapstructure:"model"`
}

type EmbeddingConfig struct {
	Provider  string        `mapstructure:"provider"` // local, openai
	Model     string        `mapstructure:"model"`
	Dimension int           `mapstructure:"dimension"`
	APIKey    string        `mapstructure:"api_key"`
	BaseURL   string        `mapstructure:"base_url"`
	CacheTTL  time.Duration `mapstructure:"cache_ttl"`
}

// RAGConfig carries the per-knowledge-base defaults applied when a request
// does not override them.
type RAGConfig struct {
	ChunkSize         int     `mapstructure:"chunk_size"`
	ChunkOverlap      int     `mapstructure:"chunk_overlap"`
	PreserveStructure bool    `mapstructure:"preserve_structure"`
	MaxResults        int     `mapstructure:"max_results"`
	Threshold         float64 `mapstructure:"threshold"`
	ContextTokens     int     `mapstructure:"context_tokens"`
	EmbedWorkers      int     `mapstructure:"embed_workers"`
	MaxUploadBytes    int64   `mapstructure:"max_upload_bytes"`
}

// Load reads the configuration file and environment overrides.
func Load(path string) (*Config, error) {
	viper.SetConfigFile(path)
	viper.AutomaticEnv()

	if err := viper.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("failed to read config: %w", err)
	}

	var config Config
	if err := viper.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	config.applyDefaults()
	return &config, nil
}

func (c *Config) applyDefaults() {
	if c.Server.Port == 0 {
		c.Server.Port = 8080
	}
	if c.AI.Timeout == 0 {
		c.AI.Timeout = 30 * time.Second
	}
	if c.AI.Embedding.Provider == "" {
		c.AI.Embedding.Provider = "local"
	}
	if c.AI.Embedding.Dimension == 0 {
		c.AI.Embedding.Dimension = 384
	}
	if c.RAG.ChunkSize == 0 {
		c.RAG.ChunkSize = 1000
	}
	if c.RAG.ChunkOverlap == 0 {
		c.RAG.ChunkOverlap = 200
	}
	if c.RAG.MaxResults == 0 {
		c.RAG.MaxResults = 5
	}
	if c.RAG.Threshold == 0 {
		c.RAG.Threshold = 0.3
	}
	if c.RAG.ContextTokens == 0 {
		c.RAG.ContextTokens = 2000
	}
	if c.RAG.EmbedWorkers == 0 {
		c.RAG.EmbedWorkers = 4
	}
	if c.RAG.MaxUploadBytes == 0 {
		c.RAG.MaxUploadBytes = 20 << 20
	}
}
