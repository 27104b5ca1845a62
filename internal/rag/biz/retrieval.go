package biz

import (
	"context"
	"math"
	"sort"
	"strings"
	"time"

	"github.com/jvillegas-dev/chatbot-backend/internal/pkg/logger"
	"github.com/jvillegas-dev/chatbot-backend/internal/rag/embedding"
	"go.uber.org/zap"
)

// keywordFallbackSimilarity is the nominal score assigned to keyword-matched
// chunks so confidence scoring still works on the degraded path.
const keywordFallbackSimilarity = 0.06

// touchTimeout bounds the fire-and-forget retrieval-stat update.
const touchTimeout = 5 * time.Second

// spanishStopWords are excluded from keyword extraction. Queries come from
// Spanish-speaking end users, so the list covers Spanish function words.
var spanishStopWords = map[string]struct{}{
	"que": {}, "como": {}, "cual": {}, "cuales": {}, "donde": {}, "cuando": {},
	"quien": {}, "por": {}, "para": {}, "con": {}, "sin": {}, "del": {},
	"las": {}, "los": {}, "una": {}, "uno": {}, "unos": {}, "unas": {},
	"este": {}, "esta": {}, "estos": {}, "estas": {}, "ese": {}, "esa": {},
	"son": {}, "hay": {}, "muy": {}, "mas": {}, "pero": {}, "sus": {},
	"les": {}, "nos": {}, "qué": {}, "cómo": {}, "cuál": {}, "cuáles": {},
	"dónde": {}, "cuándo": {}, "quién": {}, "más": {},
}

// ScoredChunk is a retrieval hit with its similarity to the query.
type ScoredChunk struct {
	Chunk      *DocumentChunk
	Similarity float64
}

// RetrieveParams parameterizes one retrieval pass.
type RetrieveParams struct {
	ChatbotID  string
	QueryText  string
	MaxResults int
	Threshold  float64
	Categories []string
	Tags       []string
}

// RetrievalEngine ranks stored chunks against a query vector, with a
// keyword fallback when the embedding space surfaces nothing.
type RetrievalEngine struct {
	chunkRepo ChunkRepo
	logger    *logger.Logger
}

// NewRetrievalEngine creates a retrieval engine.
func NewRetrievalEngine(chunkRepo ChunkRepo, log *logger.Logger) *RetrievalEngine {
	if log == nil {
		log = logger.L()
	}
	return &RetrievalEngine{chunkRepo: chunkRepo, logger: log}
}

// Retrieve runs the semantic pass and, only when it yields zero results,
// the keyword fallback. Results are sorted by descending similarity and
// capped at MaxResults. Retrieval counters for returned chunks are updated
// in the background and never block the caller.
func (e *RetrievalEngine) Retrieve(ctx context.Context, queryVector []float32, p *RetrieveParams) ([]*ScoredChunk, error) {
	var filter *ChunkFilter
	if len(p.Categories) > 0 || len(p.Tags) > 0 {
		filter = &ChunkFilter{Categories: p.Categories, Tags: p.Tags}
	}

	chunks, err := e.chunkRepo.ListActive(ctx, p.ChatbotID, filter)
	if err != nil {
		return nil, err
	}
	if len(chunks) == 0 {
		return nil, nil
	}

	results := e.semanticSearch(queryVector, chunks, p.Threshold)
	if len(results) == 0 {
		e.logger.Debug("semantic search empty, trying keyword fallback",
			zap.String("chatbot_id", p.ChatbotID),
			zap.Float64("threshold", p.Threshold))
		results = e.keywordSearch(p.QueryText, chunks)
	}

	sort.SliceStable(results, func(i, j int) bool {
		return results[i].Similarity > results[j].Similarity
	})
	if p.MaxResults > 0 && len(results) > p.MaxResults {
		results = results[:p.MaxResults]
	}

	if len(results) > 0 {
		e.touchRetrieved(results)
	}
	return results, nil
}

// semanticSearch scores every chunk with a usable embedding against the
// query vector. Chunks with missing or mismatched embeddings are skipped,
// not fatal: they may still surface via the keyword fallback.
func (e *RetrievalEngine) semanticSearch(queryVector []float32, chunks []*DocumentChunk, threshold float64) []*ScoredChunk {
	results := make([]*ScoredChunk, 0, len(chunks))
	for _, chunk := range chunks {
		if len(chunk.Embedding) == 0 {
			continue
		}
		sim, err := embedding.CosineSimilarity(queryVector, chunk.Embedding)
		if err != nil {
			e.logger.Warn("skipping chunk with incompatible embedding",
				zap.String("chunk_id", chunk.ID),
				zap.Int("chunk_dimension", len(chunk.Embedding)),
				zap.Int("query_dimension", len(queryVector)))
			continue
		}
		if sim >= threshold {
			results = append(results, &ScoredChunk{Chunk: chunk, Similarity: sim})
		}
	}
	return results
}

// keywordSearch matches extracted query keywords against chunk content and
// title, case-insensitive. Each hit gets a fixed nominal similarity.
func (e *RetrievalEngine) keywordSearch(queryText string, chunks []*DocumentChunk) []*ScoredChunk {
	keywords := ExtractKeywords(queryText)
	if len(keywords) == 0 {
		return nil
	}

	var results []*ScoredChunk
	for _, chunk := range chunks {
		content := strings.ToLower(chunk.Content)
		title := strings.ToLower(chunk.Title)
		for _, kw := range keywords {
			if strings.Contains(content, kw) || strings.Contains(title, kw) {
				results = append(results, &ScoredChunk{Chunk: chunk, Similarity: keywordFallbackSimilarity})
				break
			}
		}
	}
	return results
}

// touchRetrieved bumps retrieval stats for the returned chunks without
// blocking or failing the query.
func (e *RetrievalEngine) touchRetrieved(results []*ScoredChunk) {
	ids := make([]string, len(results))
	for i, r := range results {
		ids[i] = r.Chunk.ID
	}

	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), touchTimeout)
		defer cancel()
		if err := e.chunkRepo.BatchTouchRetrieved(ctx, ids); err != nil {
			e.logger.Warn("failed to update retrieval stats",
				zap.Int("chunk_count", len(ids)),
				zap.Error(err))
		}
	}()
}

// ExtractKeywords lowercases the query, splits on non-letter characters and
// drops short words and Spanish stop words.
func ExtractKeywords(text string) []string {
	fields := strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !isWordRune(r)
	})

	keywords := make([]string, 0, len(fields))
	for _, f := range fields {
		if len([]rune(f)) <= 2 {
			continue
		}
		if _, stop := spanishStopWords[f]; stop {
			continue
		}
		keywords = append(keywords, f)
	}
	return keywords
}

func isWordRune(r rune) bool {
	switch {
	case r >= 'a' && r <= 'z', r >= '0' && r <= '9':
		return true
	case r == 'á' || r == 'é' || r == 'í' || r == 'ó' || r == 'ú' || r == 'ü' || r == 'ñ':
		return true
	default:
		return false
	}
}

// Confidence combines average and maximum similarity of a result set into a
// single score rounded to two decimals. An empty set scores 0.
func Confidence(results []*ScoredChunk) float64 {
	if len(results) == 0 {
		return 0
	}

	var sum, max float64
	for _, r := range results {
		sum += r.Similarity
		if r.Similarity > max {
			max = r.Similarity
		}
	}
	avg := sum / float64(len(results))

	return math.Round((avg*0.6+max*0.4)*100) / 100
}
