package service

import (
	"time"

	"github.com/jvillegas-dev/chatbot-backend/internal/rag/biz"
	"github.com/jvillegas-dev/chatbot-backend/internal/rag/embedding"
)

// ProcessDocumentRequest ingests raw text into a chatbot's knowledge base.
type ProcessDocumentRequest struct {
	ChatbotID    string                 `json:"chatbot_id"`
	Title        string                 `json:"title"`
	Content      string                 `json:"content"`
	DocumentType string                 `json:"document_type"`
	Category     string                 `json:"category"`
	Tags         []string               `json:"tags"`
	Metadata     map[string]interface{} `json:"metadata"`
}

// ProcessURLRequest ingests the text content of a web page.
type ProcessURLRequest struct {
	ChatbotID string   `json:"chatbot_id"`
	URL       string   `json:"url"`
	Title     string   `json:"title"`
	Category  string   `json:"category"`
	Tags      []string `json:"tags"`
}

// QueryRequest asks a question against a chatbot's knowledge.
type QueryRequest struct {
	ChatbotID  string   `json:"chatbot_id"`
	Query      string   `json:"query"`
	MaxResults int      `json:"max_results"`
	Threshold  *float64 `json:"threshold"`
	Categories []string `json:"categories"`
	Tags       []string `json:"tags"`
}

// ProcessDocumentResponse reports an ingestion outcome.
type ProcessDocumentResponse struct {
	KnowledgeBaseID string `json:"knowledge_base_id"`
	Title           string `json:"title"`
	ChunksCreated   int    `json:"chunks_created"`
	TotalChunks     int    `json:"total_chunks"`
	TotalTokens     int    `json:"total_tokens"`
	Message         string `json:"message"`
}

// KnowledgeBaseResponse is the API view of one knowledge base.
type KnowledgeBaseResponse struct {
	ID              string                `json:"id"`
	ChatbotID       string                `json:"chatbot_id"`
	Title           string                `json:"title"`
	DocumentType    string                `json:"document_type"`
	SourceURL       string                `json:"source_url,omitempty"`
	Category        string                `json:"category,omitempty"`
	Tags            []string              `json:"tags,omitempty"`
	Status          string                `json:"status"`
	IsActive        bool                  `json:"is_active"`
	TotalChunks     int                   `json:"total_chunks"`
	ProcessedChunks int                   `json:"processed_chunks"`
	TotalTokens     int                   `json:"total_tokens"`
	Embedding       biz.EmbeddingSettings `json:"embedding"`
	CreatedAt       time.Time             `json:"created_at"`
	UpdatedAt       time.Time             `json:"updated_at"`
}

// ChunkDebugResponse exposes the stored state of one chunk, including
// whether its embedding is usable for similarity search.
type ChunkDebugResponse struct {
	ID                 string `json:"id"`
	KnowledgeBaseID    string `json:"knowledge_base_id"`
	ChunkIndex         int    `json:"chunk_index"`
	Title              string `json:"title"`
	ContentPreview     string `json:"content_preview"`
	TokenCount         int    `json:"token_count"`
	EmbeddingDimension int    `json:"embedding_dimension"`
	EmbeddingValid     bool   `json:"embedding_valid"`
	IsActive           bool   `json:"is_active"`
	RetrievalCount     int    `json:"retrieval_count"`
}

const debugPreviewLimit = 120

func toProcessDocumentResponse(r *biz.ProcessDocumentResult) *ProcessDocumentResponse {
	return &ProcessDocumentResponse{
		KnowledgeBaseID: r.KnowledgeBaseID,
		Title:           r.Title,
		ChunksCreated:   r.ChunksCreated,
		TotalChunks:     r.TotalChunks,
		TotalTokens:     r.TotalTokens,
		Message:         r.Message,
	}
}

func toKnowledgeBaseResponse(kb *biz.KnowledgeBase) *KnowledgeBaseResponse {
	return &KnowledgeBaseResponse{
		ID:              kb.ID,
		ChatbotID:       kb.ChatbotID,
		Title:           kb.Title,
		DocumentType:    kb.DocumentType,
		SourceURL:       kb.SourceURL,
		Category:        kb.Category,
		Tags:            kb.Tags,
		Status:          kb.Status,
		IsActive:        kb.IsActive,
		TotalChunks:     kb.TotalChunks,
		ProcessedChunks: kb.ProcessedChunks,
		TotalTokens:     kb.TotalTokens,
		Embedding:       kb.Embedding,
		CreatedAt:       kb.CreatedAt,
		UpdatedAt:       kb.UpdatedAt,
	}
}

func toChunkDebugResponse(ch *biz.DocumentChunk) *ChunkDebugResponse {
	valid := len(ch.Embedding) > 0 &&
		embedding.ValidateVector(ch.Embedding, len(ch.Embedding)) == nil

	preview := ch.Content
	if runes := []rune(preview); len(runes) > debugPreviewLimit {
		preview = string(runes[:debugPreviewLimit]) + "..."
	}

	return &ChunkDebugResponse{
		ID:                 ch.ID,
		KnowledgeBaseID:    ch.KnowledgeBaseID,
		ChunkIndex:         ch.ChunkIndex,
		Title:              ch.Title,
		ContentPreview:     preview,
		TokenCount:         ch.TokenCount,
		EmbeddingDimension: len(ch.Embedding),
		EmbeddingValid:     valid,
		IsActive:           ch.IsActive,
		RetrievalCount:     ch.RetrievalCount,
	}
}
