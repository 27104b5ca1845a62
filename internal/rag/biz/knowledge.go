package biz

import (
	"context"
	"time"
)

// Knowledge base lifecycle states.
const (
	StatusPending    = "pending"
	StatusProcessing = "processing"
	StatusProcessed  = "processed"
	StatusError      = "error"
	StatusDisabled   = "disabled"
)

// Document types accepted by ingestion.
const (
	DocTypePDF  = "pdf"
	DocTypeTxt  = "txt"
	DocTypeMD   = "md"
	DocTypeHTML = "html"
	DocTypeJSON = "json"
	DocTypeDoc  = "doc"
	DocTypeDocx = "docx"
	DocTypeURL  = "url"
	DocTypeText = "text"
)

// ChunkingConfig controls how a document is split.
type ChunkingConfig struct {
	ChunkSize         int      `json:"chunk_size"`
	ChunkOverlap      int      `json:"chunk_overlap"`
	Separators        []string `json:"separators,omitempty"`
	PreserveStructure bool     `json:"preserve_structure"`
}

// EmbeddingSettings records which embedder produced a knowledge base's
// vectors. Chunks of one knowledge base always share one dimensionality.
type EmbeddingSettings struct {
	Provider  string `json:"provider"`
	Model     string `json:"model"`
	Dimension int    `json:"dimension"`
}

// RetrievalConfig carries the per-knowledge-base query defaults.
type RetrievalConfig struct {
	MaxResults    int     `json:"max_results"`
	Threshold     float64 `json:"threshold"`
	ContextTokens int     `json:"context_tokens"`
}

// KnowledgeBase is the ingested representation of one source document for
// one chatbot.
type KnowledgeBase struct {
	ID              string
	ChatbotID       string
	Title           string
	DocumentType    string
	SourceURL       string
	Category        string
	Tags            []string
	Status          string
	IsActive        bool
	TotalChunks     int
	ProcessedChunks int
	TotalTokens     int
	Chunking        ChunkingConfig
	Embedding       EmbeddingSettings
	Retrieval       RetrievalConfig
	Metadata        map[string]interface{}
	LastProcessedAt *time.Time
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

// DocumentChunk is one retrievable segment of a knowledge base.
type DocumentChunk struct {
	ID              string
	KnowledgeBaseID string
	ChunkIndex      int
	Content         string
	Title           string
	TokenCount      int
	StartOffset     int
	EndOffset       int
	Embedding       []float32
	Metadata        map[string]interface{}
	IsActive        bool
	RetrievalCount  int
	LastRetrievedAt *time.Time
	QualityScore    *float64
	CreatedAt       time.Time
}

// KnowledgeBaseStats aggregates a chatbot's ingested volume.
type KnowledgeBaseStats struct {
	TotalDocuments int64 `json:"total_documents"`
	TotalChunks    int64 `json:"total_chunks"`
	TotalTokens    int64 `json:"total_tokens"`
	ProcessedCount int64 `json:"processed_count"`
	ErrorCount     int64 `json:"error_count"`
}

// ChunkFilter narrows the active-chunk scan used by retrieval.
type ChunkFilter struct {
	Categories []string
	Tags       []string
}

// KnowledgeBaseRepo is the knowledge base persistence contract.
type KnowledgeBaseRepo interface {
	Create(ctx context.Context, kb *KnowledgeBase) error
	GetByID(ctx context.Context, id string) (*KnowledgeBase, error)
	// GetLatestActive returns the most recently created active knowledge
	// base for the chatbot, or ErrKnowledgeBaseNotFound.
	GetLatestActive(ctx context.Context, chatbotID string) (*KnowledgeBase, error)
	ListByChatbot(ctx context.Context, chatbotID string) ([]*KnowledgeBase, error)
	Update(ctx context.Context, kb *KnowledgeBase) error
	UpdateStatus(ctx context.Context, id, status string) error
	// Delete removes the knowledge base and all its chunks atomically.
	Delete(ctx context.Context, id string) error
	Stats(ctx context.Context, chatbotID string) (*KnowledgeBaseStats, error)
}

// ChunkRepo is the chunk persistence contract.
type ChunkRepo interface {
	BatchCreate(ctx context.Context, chunks []*DocumentChunk) error
	// ListActive returns the active chunks belonging to processed, active
	// knowledge bases of the chatbot.
	ListActive(ctx context.Context, chatbotID string, filter *ChunkFilter) ([]*DocumentChunk, error)
	// ListByChatbot returns every active chunk of the chatbot regardless of
	// knowledge base status, for the degraded keyword path and diagnostics.
	ListByChatbot(ctx context.Context, chatbotID string) ([]*DocumentChunk, error)
	// BatchTouchRetrieved bumps retrieval counters for the given chunk IDs
	// in one statement.
	BatchTouchRetrieved(ctx context.Context, ids []string) error
	DeleteByKnowledgeBase(ctx context.Context, knowledgeBaseID string) error
}
