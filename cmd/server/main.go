package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	aifactory "github.com/jvillegas-dev/chatbot-backend/internal/ai/provider/factory"
	"github.com/jvillegas-dev/chatbot-backend/internal/conf"
	"github.com/jvillegas-dev/chatbot-backend/internal/pkg/database"
	"github.com/jvillegas-dev/chatbot-backend/internal/pkg/logger"
	"github.com/jvillegas-dev/chatbot-backend/internal/pkg/redis"
	"github.com/jvillegas-dev/chatbot-backend/internal/pkg/workerpool"
	"github.com/jvillegas-dev/chatbot-backend/internal/rag/biz"
	"github.com/jvillegas-dev/chatbot-backend/internal/rag/chunker"
	"github.com/jvillegas-dev/chatbot-backend/internal/rag/data"
	"github.com/jvillegas-dev/chatbot-backend/internal/rag/embedding"
	"github.com/jvillegas-dev/chatbot-backend/internal/rag/processor"
	"github.com/jvillegas-dev/chatbot-backend/internal/rag/service"
	"github.com/jvillegas-dev/chatbot-backend/internal/server"
)

var configFile = flag.String("config", "config.yaml", "config file path")

func main() {
	flag.Parse()

	config, err := conf.Load(*configFile)
	if err != nil {
		panic("failed to load config: " + err.Error())
	}

	log, err := logger.New(&config.Log)
	if err != nil {
		panic("failed to initialize logger: " + err.Error())
	}
	defer log.Sync()

	if err := logger.InitGlobal(&config.Log); err != nil {
		log.Fatal("failed to initialize global logger", zap.Error(err))
	}

	log.Info("config loaded successfully")

	db, err := database.New(&config.Database, log)
	if err != nil {
		log.Fatal("failed to connect to database", zap.Error(err))
	}
	defer db.Close()

	if err := db.AutoMigrate(&data.KnowledgeBasePO{}, &data.DocumentChunkPO{}); err != nil {
		log.Fatal("failed to migrate schema", zap.Error(err))
	}

	var redisClient *redis.Client
	if config.Redis.Enabled {
		redisClient, err = redis.New(&config.Redis.Config, log)
		if err != nil {
			log.Fatal("failed to connect to redis", zap.Error(err))
		}
		defer redisClient.Close()
	}

	// Embedder: the hash embedder by default, OpenAI when configured, with
	// the redis cache layered on whenever redis is up.
	embedProvider := config.AI.Embedding.Provider
	if embedProvider == "auto" {
		embedProvider = embedding.Recommended(config.AI.Embedding.APIKey)
	}
	embedder, err := embedding.NewFactory(log, redisClient).CreateEmbedder(&embedding.CreateEmbedderConfig{
		Provider:    embedProvider,
		Model:       config.AI.Embedding.Model,
		Dimension:   config.AI.Embedding.Dimension,
		APIKey:      config.AI.Embedding.APIKey,
		BaseURL:     config.AI.Embedding.BaseURL,
		EnableCache: redisClient != nil,
	})
	if err != nil {
		log.Fatal("failed to create embedder", zap.Error(err))
	}

	synthesizer := setupSynthesizer(config, log)

	pool, err := workerpool.New(config.RAG.EmbedWorkers, log.Logger)
	if err != nil {
		log.Fatal("failed to create worker pool", zap.Error(err))
	}
	defer pool.Release()

	kbRepo := data.NewKnowledgeBaseRepo(db)
	chunkRepo := data.NewChunkRepo(db)
	engine := biz.NewRetrievalEngine(chunkRepo, log)

	ragUseCase := biz.NewRAGUseCase(
		kbRepo,
		chunkRepo,
		engine,
		chunker.New(log),
		embedder,
		synthesizer,
		pool,
		biz.Defaults{
			Chunking: biz.ChunkingConfig{
				ChunkSize:         config.RAG.ChunkSize,
				ChunkOverlap:      config.RAG.ChunkOverlap,
				PreserveStructure: config.RAG.PreserveStructure,
			},
			Retrieval: biz.RetrievalConfig{
				MaxResults:    config.RAG.MaxResults,
				Threshold:     config.RAG.Threshold,
				ContextTokens: config.RAG.ContextTokens,
			},
			SynthesisTimeout: config.AI.Timeout,
		},
		log,
	)

	ragService := service.NewRAGService(
		ragUseCase,
		processor.NewDocumentProcessor(),
		config.RAG.MaxUploadBytes,
		log,
	)

	httpServer := server.NewHTTPServer(config, log, ragService)

	go func() {
		if err := httpServer.Start(); err != nil {
			log.Fatal("failed to start HTTP server", zap.Error(err))
		}
	}()

	log.Info("server started successfully")

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info("shutting down server...")

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := httpServer.Stop(ctx); err != nil {
		log.Error("HTTP server forced to shutdown", zap.Error(err))
	}

	log.Info("server exited")
}

// setupSynthesizer registers every configured provider and builds the
// fallback chain. With no provider configured the pipeline answers through
// extraction only.
func setupSynthesizer(config *conf.Config, log *logger.Logger) biz.Synthesizer {
	providers := map[string]conf.ProviderConfig{
		"openai":    config.AI.OpenAI,
		"deepseek":  config.AI.DeepSeek,
		"anthropic": config.AI.Anthropic,
	}

	registered := 0
	for name, pc := range providers {
		if pc.APIKey == "" {
			continue
		}
		opts := []aifactory.Option{aifactory.WithTimeout(config.AI.Timeout)}
		if pc.Model != "" {
			opts = append(opts, aifactory.WithModel(pc.Model))
		}
		if pc.BaseURL != "" {
			opts = append(opts, aifactory.WithBaseURL(pc.BaseURL))
		}
		if _, err := aifactory.Setup(name, pc.APIKey, opts...); err != nil {
			log.Warn("failed to set up AI provider", zap.String("provider", name), zap.Error(err))
			continue
		}
		registered++
		log.Info("AI provider registered", zap.String("provider", name))
	}

	if registered == 0 {
		log.Warn("no AI provider configured, answers fall back to extraction")
		return nil
	}

	order := config.AI.FallbackOrder
	if len(order) == 0 {
		order = []string{"openai", "deepseek", "anthropic"}
	}

	chain := aifactory.NewChain(order, log)
	return aifactory.NewChainSynthesizer(chain, 1024, 0.3)
}
