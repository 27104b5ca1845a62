package service

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/url"
	"path/filepath"
	"strings"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	apperrors "github.com/jvillegas-dev/chatbot-backend/internal/pkg/errors"
	"github.com/jvillegas-dev/chatbot-backend/internal/pkg/logger"
	"github.com/jvillegas-dev/chatbot-backend/internal/pkg/response"
	"github.com/jvillegas-dev/chatbot-backend/internal/rag/biz"
	"github.com/jvillegas-dev/chatbot-backend/internal/rag/processor"
)

// extDocTypes maps upload file extensions to ingestion document types.
var extDocTypes = map[string]string{
	".pdf":  biz.DocTypePDF,
	".txt":  biz.DocTypeTxt,
	".md":   biz.DocTypeMD,
	".html": biz.DocTypeHTML,
	".htm":  biz.DocTypeHTML,
	".json": biz.DocTypeJSON,
	".doc":  biz.DocTypeDoc,
	".docx": biz.DocTypeDocx,
}

// RAGService exposes ingestion and query over HTTP.
type RAGService struct {
	ragUseCase     *biz.RAGUseCase
	processor      *processor.DocumentProcessor
	maxUploadBytes int64
	logger         *logger.Logger
}

func NewRAGService(
	ragUseCase *biz.RAGUseCase,
	proc *processor.DocumentProcessor,
	maxUploadBytes int64,
	log *logger.Logger,
) *RAGService {
	if log == nil {
		log = logger.L()
	}
	return &RAGService{
		ragUseCase:     ragUseCase,
		processor:      proc,
		maxUploadBytes: maxUploadBytes,
		logger:         log,
	}
}

// RegisterRoutes mounts the RAG endpoints under the given group.
func (s *RAGService) RegisterRoutes(r *gin.RouterGroup) {
	rag := r.Group("/rag")
	{
		rag.POST("/process-document", s.ProcessDocument)
		rag.POST("/upload-document/:chatbotId", s.UploadDocument)
		rag.POST("/process-url", s.ProcessURL)
		rag.POST("/query", s.Query)
		rag.POST("/simple-query", s.SimpleQuery)
		rag.GET("/knowledge-bases/:chatbotId", s.ListKnowledgeBases)
		rag.GET("/stats/:chatbotId", s.GetStats)
		rag.DELETE("/knowledge-base/:id", s.DeleteKnowledgeBase)
		rag.GET("/debug-chunks/:chatbotId", s.DebugChunks)
	}
}

// ProcessDocument ingests raw text sent in the request body.
func (s *RAGService) ProcessDocument(c *gin.Context) {
	var req ProcessDocumentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, err.Error())
		return
	}

	result, err := s.ragUseCase.ProcessDocument(c.Request.Context(), &biz.ProcessDocumentRequest{
		ChatbotID:    req.ChatbotID,
		Title:        req.Title,
		Content:      req.Content,
		DocumentType: req.DocumentType,
		Category:     req.Category,
		Tags:         req.Tags,
		Metadata:     req.Metadata,
	})
	if err != nil {
		s.handleError(c, err)
		return
	}

	response.Created(c, toProcessDocumentResponse(result))
}

// UploadDocument ingests a multipart file upload. The document type is
// derived from the file extension.
func (s *RAGService) UploadDocument(c *gin.Context) {
	chatbotID := c.Param("chatbotId")

	file, header, err := c.Request.FormFile("file")
	if err != nil {
		response.BadRequest(c, "invalid file or field name is not 'file'")
		return
	}
	defer file.Close()

	if s.maxUploadBytes > 0 && header.Size > s.maxUploadBytes {
		response.ErrorWithCode(c, apperrors.ErrRAGFileTooLarge,
			fmt.Sprintf("file size %d exceeds limit %d", header.Size, s.maxUploadBytes))
		return
	}

	docType, ok := extDocTypes[strings.ToLower(filepath.Ext(header.Filename))]
	if !ok {
		response.ErrorWithCode(c, apperrors.ErrRAGInvalidFileType, header.Filename)
		return
	}

	fileData, err := io.ReadAll(file)
	if err != nil {
		response.InternalError(c, "failed to read file")
		return
	}

	s.logger.Info("document upload",
		zap.String("chatbot_id", chatbotID),
		zap.String("filename", header.Filename),
		zap.String("document_type", docType),
		zap.Int("file_size", len(fileData)))

	content, err := s.processor.ExtractText(c.Request.Context(), fileData, docType)
	if err != nil {
		s.logger.Error("text extraction failed",
			zap.String("filename", header.Filename), zap.Error(err))
		response.ErrorWithCode(c, apperrors.ErrRAGProcessingFailed, err.Error())
		return
	}

	result, err := s.ragUseCase.ProcessDocument(c.Request.Context(), &biz.ProcessDocumentRequest{
		ChatbotID:    chatbotID,
		Title:        header.Filename,
		Content:      content,
		DocumentType: docType,
		Category:     c.PostForm("category"),
	})
	if err != nil {
		s.handleError(c, err)
		return
	}

	response.Created(c, toProcessDocumentResponse(result))
}

// ProcessURL fetches a web page, strips it to text and ingests it.
func (s *RAGService) ProcessURL(c *gin.Context) {
	var req ProcessURLRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, err.Error())
		return
	}
	if req.URL == "" {
		response.BadRequest(c, "url is required")
		return
	}

	content, err := processor.FetchURL(c.Request.Context(), req.URL)
	if err != nil {
		s.logger.Error("url fetch failed", zap.String("url", req.URL), zap.Error(err))
		response.ErrorWithCode(c, apperrors.ErrRAGFetchFailed, err.Error())
		return
	}

	title := req.Title
	if title == "" {
		if u, perr := url.Parse(req.URL); perr == nil && u.Host != "" {
			title = u.Host
		} else {
			title = req.URL
		}
	}

	result, err := s.ragUseCase.ProcessDocument(c.Request.Context(), &biz.ProcessDocumentRequest{
		ChatbotID:    req.ChatbotID,
		Title:        title,
		Content:      content,
		DocumentType: biz.DocTypeURL,
		SourceURL:    req.URL,
		Category:     req.Category,
		Tags:         req.Tags,
	})
	if err != nil {
		s.handleError(c, err)
		return
	}

	response.Created(c, toProcessDocumentResponse(result))
}

// Query answers a question through the full retrieval pipeline.
func (s *RAGService) Query(c *gin.Context) {
	s.query(c, s.ragUseCase.Query)
}

// SimpleQuery answers through the degraded pipeline that falls back to
// keyword overlap when semantic retrieval finds nothing.
func (s *RAGService) SimpleQuery(c *gin.Context) {
	s.query(c, s.ragUseCase.SimpleQuery)
}

func (s *RAGService) query(c *gin.Context, run func(ctx context.Context, req *biz.QueryRequest) (*biz.QueryResult, error)) {
	var req QueryRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, err.Error())
		return
	}

	result, err := run(c.Request.Context(), &biz.QueryRequest{
		ChatbotID:  req.ChatbotID,
		Query:      req.Query,
		MaxResults: req.MaxResults,
		Threshold:  req.Threshold,
		Categories: req.Categories,
		Tags:       req.Tags,
	})
	if err != nil {
		s.handleError(c, err)
		return
	}

	response.Success(c, result)
}

// ListKnowledgeBases returns the chatbot's knowledge bases.
func (s *RAGService) ListKnowledgeBases(c *gin.Context) {
	kbs, err := s.ragUseCase.ListKnowledgeBases(c.Request.Context(), c.Param("chatbotId"))
	if err != nil {
		s.handleError(c, err)
		return
	}

	items := make([]*KnowledgeBaseResponse, len(kbs))
	for i, kb := range kbs {
		items[i] = toKnowledgeBaseResponse(kb)
	}

	response.Success(c, map[string]interface{}{
		"items": items,
		"total": len(items),
	})
}

// GetStats returns the chatbot's aggregate ingestion counters.
func (s *RAGService) GetStats(c *gin.Context) {
	stats, err := s.ragUseCase.Stats(c.Request.Context(), c.Param("chatbotId"))
	if err != nil {
		s.handleError(c, err)
		return
	}
	response.Success(c, stats)
}

// DeleteKnowledgeBase removes a knowledge base and all of its chunks.
func (s *RAGService) DeleteKnowledgeBase(c *gin.Context) {
	if err := s.ragUseCase.DeleteKnowledgeBase(c.Request.Context(), c.Param("id")); err != nil {
		s.handleError(c, err)
		return
	}
	response.Success(c, struct{}{})
}

// DebugChunks lists the chatbot's stored chunks with embedding diagnostics.
func (s *RAGService) DebugChunks(c *gin.Context) {
	chunks, err := s.ragUseCase.DebugChunks(c.Request.Context(), c.Param("chatbotId"))
	if err != nil {
		s.handleError(c, err)
		return
	}

	items := make([]*ChunkDebugResponse, len(chunks))
	for i, ch := range chunks {
		items[i] = toChunkDebugResponse(ch)
	}

	response.Success(c, map[string]interface{}{
		"items": items,
		"total": len(items),
	})
}

func (s *RAGService) handleError(c *gin.Context, err error) {
	s.logger.Error("rag operation failed", zap.Error(err))

	switch {
	case errors.Is(err, biz.ErrKnowledgeBaseNotFound):
		response.NotFound(c, err.Error())
	case errors.Is(err, biz.ErrTitleRequired),
		errors.Is(err, biz.ErrContentRequired),
		errors.Is(err, biz.ErrChatbotIDRequired),
		errors.Is(err, biz.ErrQueryRequired),
		errors.Is(err, biz.ErrInvalidDocumentType):
		response.BadRequest(c, err.Error())
	case errors.Is(err, biz.ErrQueryEmbeddingFailed):
		response.ErrorWithCode(c, apperrors.ErrRAGEmbeddingFailed)
	case errors.Is(err, biz.ErrSynthesisFailed):
		response.ErrorWithCode(c, apperrors.ErrRAGSynthesisFailed)
	default:
		response.InternalError(c, "internal server error")
	}
}
