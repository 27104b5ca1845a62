package biz

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jvillegas-dev/chatbot-backend/internal/pkg/logger"
	"github.com/jvillegas-dev/chatbot-backend/internal/pkg/workerpool"
	"github.com/jvillegas-dev/chatbot-backend/internal/rag/chunker"
	"github.com/jvillegas-dev/chatbot-backend/internal/rag/embedding"
	"go.uber.org/zap"
)

// Fixed user-facing replies for the defined empty terminal states.
const (
	MsgNoKnowledgeBase = "No hay una base de conocimiento configurada para este chatbot."
	MsgNoResults       = "No encontré información sobre eso en la base de conocimiento."
)

// sourceContentLimit truncates chunk content echoed back in query sources.
const sourceContentLimit = 200

// Synthesizer turns an assembled context plus a question into a natural
// language answer. The AI provider chain satisfies this behind an adapter.
type Synthesizer interface {
	Synthesize(ctx context.Context, systemPrompt, prompt string) (string, error)
}

// Defaults are the knobs applied when neither the knowledge base nor the
// caller overrides them.
type Defaults struct {
	Chunking         ChunkingConfig
	Retrieval        RetrievalConfig
	SynthesisTimeout time.Duration
}

// ProcessDocumentRequest is one ingestion request.
type ProcessDocumentRequest struct {
	ChatbotID    string
	Title        string
	Content      string
	DocumentType string
	SourceURL    string
	Category     string
	Tags         []string
	Metadata     map[string]interface{}
}

// ProcessDocumentResult reports the ingestion outcome. Partial chunk
// failures are reflected in the counts, not in an error.
type ProcessDocumentResult struct {
	KnowledgeBaseID string
	Title           string
	ChunksCreated   int
	TotalChunks     int
	TotalTokens     int
	Message         string
}

// QueryRequest is one retrieval question.
type QueryRequest struct {
	ChatbotID  string
	Query      string
	MaxResults int      // 0 means knowledge-base default
	Threshold  *float64 // nil means knowledge-base default
	Categories []string
	Tags       []string
}

// Source describes one chunk that grounded the answer.
type Source struct {
	ID         string                 `json:"id"`
	Title      string                 `json:"title"`
	Content    string                 `json:"content"`
	Similarity float64                `json:"similarity"`
	Metadata   map[string]interface{} `json:"metadata,omitempty"`
}

// QueryResult is the answer plus its grounding.
type QueryResult struct {
	Answer         string    `json:"answer"`
	Sources        []*Source `json:"sources"`
	Confidence     float64   `json:"confidence"`
	ProcessingTime int64     `json:"processing_time_ms"`
}

// RAGUseCase coordinates ingestion and querying end to end.
type RAGUseCase struct {
	kbRepo      KnowledgeBaseRepo
	chunkRepo   ChunkRepo
	retrieval   *RetrievalEngine
	chunker     *chunker.Chunker
	embedder    embedding.Embedder
	synthesizer Synthesizer
	pool        *workerpool.Pool
	defaults    Defaults
	logger      *logger.Logger
}

// NewRAGUseCase wires the orchestrator. synthesizer may be nil, in which
// case every query answers through the extraction fallback.
func NewRAGUseCase(
	kbRepo KnowledgeBaseRepo,
	chunkRepo ChunkRepo,
	retrieval *RetrievalEngine,
	ck *chunker.Chunker,
	embedder embedding.Embedder,
	synthesizer Synthesizer,
	pool *workerpool.Pool,
	defaults Defaults,
	log *logger.Logger,
) *RAGUseCase {
	if defaults.Chunking.ChunkSize == 0 {
		defaults.Chunking.ChunkSize = 1000
	}
	if defaults.Retrieval.MaxResults == 0 {
		defaults.Retrieval.MaxResults = 5
	}
	if defaults.Retrieval.ContextTokens == 0 {
		defaults.Retrieval.ContextTokens = 2000
	}
	if defaults.SynthesisTimeout == 0 {
		defaults.SynthesisTimeout = 30 * time.Second
	}
	if log == nil {
		log = logger.L()
	}

	return &RAGUseCase{
		kbRepo:      kbRepo,
		chunkRepo:   chunkRepo,
		retrieval:   retrieval,
		chunker:     ck,
		embedder:    embedder,
		synthesizer: synthesizer,
		pool:        pool,
		defaults:    defaults,
		logger:      log,
	}
}

// ProcessDocument ingests one document: chunk, embed each chunk, persist
// the survivors in one batch and settle the knowledge base status. A single
// bad chunk never aborts ingestion; only infrastructure failures propagate.
func (uc *RAGUseCase) ProcessDocument(ctx context.Context, req *ProcessDocumentRequest) (*ProcessDocumentResult, error) {
	if req.ChatbotID == "" {
		return nil, ErrChatbotIDRequired
	}
	if strings.TrimSpace(req.Title) == "" {
		return nil, ErrTitleRequired
	}
	if strings.TrimSpace(req.Content) == "" {
		return nil, ErrContentRequired
	}

	docType := req.DocumentType
	if docType == "" {
		docType = DocTypeText
	}

	now := time.Now()
	kb := &KnowledgeBase{
		ID:           uuid.New().String(),
		ChatbotID:    req.ChatbotID,
		Title:        req.Title,
		DocumentType: docType,
		SourceURL:    req.SourceURL,
		Category:     req.Category,
		Tags:         req.Tags,
		Status:       StatusProcessing,
		IsActive:     true,
		Chunking:     uc.defaults.Chunking,
		Embedding: EmbeddingSettings{
			Provider:  uc.embedder.Provider(),
			Model:     uc.embedder.Model(),
			Dimension: uc.embedder.Dimension(),
		},
		Retrieval: uc.defaults.Retrieval,
		Metadata:  req.Metadata,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := uc.kbRepo.Create(ctx, kb); err != nil {
		return nil, fmt.Errorf("failed to create knowledge base: %w", err)
	}

	chunkCfg := &chunker.Config{
		ChunkSize:         kb.Chunking.ChunkSize,
		ChunkOverlap:      kb.Chunking.ChunkOverlap,
		Separators:        kb.Chunking.Separators,
		PreserveStructure: kb.Chunking.PreserveStructure,
	}
	chunks, err := uc.chunker.Chunk(req.Content, chunkCfg)
	if err != nil {
		uc.markError(kb.ID)
		return nil, fmt.Errorf("chunking failed: %w", err)
	}

	persisted, totalTokens := uc.embedChunks(ctx, kb, chunks)

	if len(persisted) > 0 {
		if err := uc.chunkRepo.BatchCreate(ctx, persisted); err != nil {
			uc.markError(kb.ID)
			return nil, fmt.Errorf("failed to persist chunks: %w", err)
		}
	}

	kb.TotalChunks = len(chunks)
	kb.ProcessedChunks = len(persisted)
	kb.TotalTokens = totalTokens
	kb.Status = StatusProcessed
	if kb.ProcessedChunks == 0 {
		kb.Status = StatusError
	}
	processedAt := time.Now()
	kb.LastProcessedAt = &processedAt
	kb.UpdatedAt = processedAt
	if err := uc.kbRepo.Update(ctx, kb); err != nil {
		return nil, fmt.Errorf("failed to update knowledge base: %w", err)
	}

	uc.logger.Info("document processed",
		zap.String("knowledge_base_id", kb.ID),
		zap.String("chatbot_id", kb.ChatbotID),
		zap.Int("processed_chunks", kb.ProcessedChunks),
		zap.Int("total_chunks", kb.TotalChunks),
		zap.String("status", kb.Status))

	return &ProcessDocumentResult{
		KnowledgeBaseID: kb.ID,
		Title:           kb.Title,
		ChunksCreated:   kb.ProcessedChunks,
		TotalChunks:     kb.TotalChunks,
		TotalTokens:     kb.TotalTokens,
		Message:         fmt.Sprintf("processed %d/%d chunks", kb.ProcessedChunks, kb.TotalChunks),
	}, nil
}

// embedChunks fans the chunks out over the worker pool. Failed chunks are
// logged and dropped; order is preserved by the chunk index assigned before
// the parallel work starts.
func (uc *RAGUseCase) embedChunks(ctx context.Context, kb *KnowledgeBase, chunks []*chunker.Chunk) ([]*DocumentChunk, int) {
	vectors := make([][]float32, len(chunks))

	embedOne := func(i int) {
		vec, err := uc.embedder.Embed(ctx, chunks[i].Content)
		if err != nil {
			uc.logger.Warn("chunk embedding failed, skipping",
				zap.String("knowledge_base_id", kb.ID),
				zap.Int("chunk_index", chunks[i].Index),
				zap.Error(err))
			return
		}
		if err := embedding.ValidateVector(vec, uc.embedder.Dimension()); err != nil {
			uc.logger.Warn("chunk produced invalid vector, skipping",
				zap.String("knowledge_base_id", kb.ID),
				zap.Int("chunk_index", chunks[i].Index),
				zap.Error(err))
			return
		}
		vectors[i] = vec
	}

	if uc.pool != nil {
		if err := uc.pool.Map(ctx, len(chunks), embedOne); err != nil {
			uc.logger.Warn("embedding fan-out interrupted",
				zap.String("knowledge_base_id", kb.ID),
				zap.Error(err))
		}
	} else {
		for i := range chunks {
			if ctx.Err() != nil {
				break
			}
			embedOne(i)
		}
	}

	persisted := make([]*DocumentChunk, 0, len(chunks))
	totalTokens := 0
	now := time.Now()
	for i, c := range chunks {
		totalTokens += c.TokenCount
		if vectors[i] == nil {
			continue
		}
		persisted = append(persisted, &DocumentChunk{
			ID:              uuid.New().String(),
			KnowledgeBaseID: kb.ID,
			ChunkIndex:      c.Index,
			Content:         c.Content,
			Title:           c.Title,
			TokenCount:      c.TokenCount,
			StartOffset:     c.Start,
			EndOffset:       c.End,
			Embedding:       vectors[i],
			Metadata:        c.Metadata,
			IsActive:        true,
			CreatedAt:       now,
		})
	}
	return persisted, totalTokens
}

// markError best-effort flips the knowledge base into error state after an
// ingestion failure.
func (uc *RAGUseCase) markError(kbID string) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := uc.kbRepo.UpdateStatus(ctx, kbID, StatusError); err != nil {
		uc.logger.Warn("failed to mark knowledge base as error",
			zap.String("knowledge_base_id", kbID),
			zap.Error(err))
	}
}

// Query answers a question from the chatbot's knowledge. Zero retrieved
// chunks is a defined terminal state, not an error; only infrastructure and
// query-embedding failures propagate.
func (uc *RAGUseCase) Query(ctx context.Context, req *QueryRequest) (*QueryResult, error) {
	start := time.Now()

	if req.ChatbotID == "" {
		return nil, ErrChatbotIDRequired
	}
	if strings.TrimSpace(req.Query) == "" {
		return nil, ErrQueryRequired
	}

	kb, err := uc.kbRepo.GetLatestActive(ctx, req.ChatbotID)
	if err != nil {
		if errors.Is(err, ErrKnowledgeBaseNotFound) {
			return emptyResult(MsgNoKnowledgeBase, start), nil
		}
		return nil, err
	}

	maxResults := kb.Retrieval.MaxResults
	if req.MaxResults > 0 {
		maxResults = req.MaxResults
	}
	threshold := kb.Retrieval.Threshold
	if req.Threshold != nil {
		threshold = *req.Threshold
	}

	queryVector, err := uc.embedder.Embed(ctx, req.Query)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrQueryEmbeddingFailed, err)
	}

	results, err := uc.retrieval.Retrieve(ctx, queryVector, &RetrieveParams{
		ChatbotID:  req.ChatbotID,
		QueryText:  req.Query,
		MaxResults: maxResults,
		Threshold:  threshold,
		Categories: req.Categories,
		Tags:       req.Tags,
	})
	if err != nil {
		return nil, err
	}
	if len(results) == 0 {
		return emptyResult(MsgNoResults, start), nil
	}

	contextText := BuildContext(results, kb.Retrieval.ContextTokens)
	answer := uc.synthesize(ctx, contextText, req.Query, results)

	return &QueryResult{
		Answer:         answer,
		Sources:        toSources(results),
		Confidence:     Confidence(results),
		ProcessingTime: time.Since(start).Milliseconds(),
	}, nil
}

// SimpleQuery answers with an explicit fallback ladder: full semantic query,
// then keyword-overlap scoring across everything the chatbot has ingested,
// then regex fact extraction. Each stage's failure reason is logged so a
// degraded answer is traceable to the stage that produced it.
func (uc *RAGUseCase) SimpleQuery(ctx context.Context, req *QueryRequest) (*QueryResult, error) {
	start := time.Now()

	if req.ChatbotID == "" {
		return nil, ErrChatbotIDRequired
	}
	if strings.TrimSpace(req.Query) == "" {
		return nil, ErrQueryRequired
	}

	var reasons []string

	result, err := uc.Query(ctx, req)
	if err == nil && len(result.Sources) > 0 {
		return result, nil
	}
	if err != nil {
		reasons = append(reasons, "semantic: "+err.Error())
	} else {
		reasons = append(reasons, "semantic: no sources")
	}

	results, reason := uc.keywordOverlap(ctx, req)
	if reason != "" {
		reasons = append(reasons, "keyword: "+reason)
		uc.logger.Info("simple query exhausted fallbacks",
			zap.String("chatbot_id", req.ChatbotID),
			zap.Strings("reasons", reasons))
		// "no knowledge base" only when the chatbot truly has none;
		// an ingested chatbot whose chunks match nothing gets the
		// no-results message instead
		message := MsgNoResults
		if _, kerr := uc.kbRepo.GetLatestActive(ctx, req.ChatbotID); errors.Is(kerr, ErrKnowledgeBaseNotFound) {
			message = MsgNoKnowledgeBase
		}
		return emptyResult(message, start), nil
	}

	maxResults := req.MaxResults
	if maxResults == 0 {
		maxResults = uc.defaults.Retrieval.MaxResults
	}
	if len(results) > maxResults {
		results = results[:maxResults]
	}

	contextText := BuildContext(results, uc.defaults.Retrieval.ContextTokens)
	answer := uc.synthesize(ctx, contextText, req.Query, results)

	uc.logger.Debug("simple query answered via fallback",
		zap.String("chatbot_id", req.ChatbotID),
		zap.Strings("reasons", reasons))

	return &QueryResult{
		Answer:         answer,
		Sources:        toSources(results),
		Confidence:     Confidence(results),
		ProcessingTime: time.Since(start).Milliseconds(),
	}, nil
}

// keywordOverlap scores every chunk of the chatbot by the fraction of query
// keywords it contains. It sees all ingested chunks, not only those of
// processed knowledge bases, because the degraded path should use anything
// available.
func (uc *RAGUseCase) keywordOverlap(ctx context.Context, req *QueryRequest) ([]*ScoredChunk, string) {
	keywords := ExtractKeywords(req.Query)
	if len(keywords) == 0 {
		return nil, "no usable keywords in query"
	}

	chunks, err := uc.chunkRepo.ListByChatbot(ctx, req.ChatbotID)
	if err != nil {
		return nil, "chunk scan failed: " + err.Error()
	}
	if len(chunks) == 0 {
		return nil, "chatbot has no chunks"
	}

	var results []*ScoredChunk
	for _, chunk := range chunks {
		text := strings.ToLower(chunk.Content + " " + chunk.Title)
		matched := 0
		for _, kw := range keywords {
			if strings.Contains(text, kw) {
				matched++
			}
		}
		if matched > 0 {
			results = append(results, &ScoredChunk{
				Chunk:      chunk,
				Similarity: float64(matched) / float64(len(keywords)),
			})
		}
	}
	if len(results) == 0 {
		return nil, "no chunk matched any keyword"
	}

	sortScored(results)
	return results, ""
}

// synthesize asks the provider chain for an answer under an explicit
// timeout. On failure or timeout, it falls back to extracting a fact from
// the top-ranked chunk, so the reply stays grounded and deterministic.
func (uc *RAGUseCase) synthesize(ctx context.Context, contextText, query string, results []*ScoredChunk) string {
	if uc.synthesizer != nil {
		synthCtx, cancel := context.WithTimeout(ctx, uc.defaults.SynthesisTimeout)
		defer cancel()

		answer, err := uc.synthesizer.Synthesize(synthCtx, synthesisSystemPrompt, buildPrompt(contextText, query))
		if err == nil && strings.TrimSpace(answer) != "" {
			return answer
		}
		uc.logger.Warn("synthesis failed, using extraction fallback",
			zap.Error(err))
	}

	if answer, ok := ExtractAnswer(query, results[0].Chunk.Content); ok {
		return answer
	}
	return MsgNoResults
}

const synthesisSystemPrompt = "Eres un asistente que responde preguntas usando únicamente el contexto proporcionado. " +
	"Si el contexto no contiene la información necesaria, dilo explícitamente. No inventes datos."

func buildPrompt(contextText, query string) string {
	var b strings.Builder
	b.WriteString("Contexto:\n")
	b.WriteString(contextText)
	b.WriteString("\nPregunta: ")
	b.WriteString(query)
	b.WriteString("\nRespuesta:")
	return b.String()
}

// BuildContext concatenates ranked chunks as "=== title ===\ncontent\n\n"
// blocks, stopping before the token budget is exceeded. At least the top
// chunk is always included.
func BuildContext(results []*ScoredChunk, tokenBudget int) string {
	if tokenBudget <= 0 {
		tokenBudget = 2000
	}

	var b strings.Builder
	used := 0
	for i, r := range results {
		block := "=== " + r.Chunk.Title + " ===\n" + r.Chunk.Content + "\n\n"
		cost := chunker.EstimateTokens(block)
		if i > 0 && used+cost > tokenBudget {
			break
		}
		b.WriteString(block)
		used += cost
	}
	return b.String()
}

func toSources(results []*ScoredChunk) []*Source {
	sources := make([]*Source, len(results))
	for i, r := range results {
		content := r.Chunk.Content
		if runes := []rune(content); len(runes) > sourceContentLimit {
			content = string(runes[:sourceContentLimit]) + "..."
		}
		sources[i] = &Source{
			ID:         r.Chunk.ID,
			Title:      r.Chunk.Title,
			Content:    content,
			Similarity: r.Similarity,
			Metadata:   r.Chunk.Metadata,
		}
	}
	return sources
}

func emptyResult(message string, start time.Time) *QueryResult {
	return &QueryResult{
		Answer:         message,
		Sources:        []*Source{},
		Confidence:     0,
		ProcessingTime: time.Since(start).Milliseconds(),
	}
}

func sortScored(results []*ScoredChunk) {
	sort.SliceStable(results, func(i, j int) bool {
		return results[i].Similarity > results[j].Similarity
	})
}
