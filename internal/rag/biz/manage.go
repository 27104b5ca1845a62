package biz

import (
	"context"
)

// ListKnowledgeBases returns every knowledge base of the chatbot, newest
// first.
func (uc *RAGUseCase) ListKnowledgeBases(ctx context.Context, chatbotID string) ([]*KnowledgeBase, error) {
	if chatbotID == "" {
		return nil, ErrChatbotIDRequired
	}
	return uc.kbRepo.ListByChatbot(ctx, chatbotID)
}

// Stats aggregates the chatbot's ingested volume across knowledge bases.
func (uc *RAGUseCase) Stats(ctx context.Context, chatbotID string) (*KnowledgeBaseStats, error) {
	if chatbotID == "" {
		return nil, ErrChatbotIDRequired
	}
	return uc.kbRepo.Stats(ctx, chatbotID)
}

// DeleteKnowledgeBase removes a knowledge base together with its chunks.
func (uc *RAGUseCase) DeleteKnowledgeBase(ctx context.Context, id string) error {
	if id == "" {
		return ErrKnowledgeBaseNotFound
	}
	return uc.kbRepo.Delete(ctx, id)
}

// DebugChunks exposes every stored chunk of the chatbot regardless of
// knowledge base status, for ingestion diagnostics.
func (uc *RAGUseCase) DebugChunks(ctx context.Context, chatbotID string) ([]*DocumentChunk, error) {
	if chatbotID == "" {
		return nil, ErrChatbotIDRequired
	}
	return uc.chunkRepo.ListByChatbot(ctx, chatbotID)
}
