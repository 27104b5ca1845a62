package biz

import "errors"

// Knowledge base errors.
var (
	ErrKnowledgeBaseNotFound = errors.New("knowledge base not found")
	ErrTitleRequired         = errors.New("title is required")
	ErrContentRequired       = errors.New("content is required")
	ErrChatbotIDRequired     = errors.New("chatbot id is required")
	ErrQueryRequired         = errors.New("query text is required")
	ErrInvalidDocumentType   = errors.New("invalid document type")
)

// Pipeline errors.
var (
	ErrQueryEmbeddingFailed = errors.New("failed to embed query")
	ErrSynthesisFailed      = errors.New("answer synthesis failed")
)
