package data

import (
	"context"
	"time"

	"github.com/jvillegas-dev/chatbot-backend/internal/pkg/database"
	"github.com/jvillegas-dev/chatbot-backend/internal/rag/biz"
	"gorm.io/gorm"
)

const chunkInsertBatchSize = 100

// DocumentChunkPO is the chunk row. The embedding vector lives in a JSON
// text column; similarity math happens in process, so the database only
// needs to filter and fetch.
type DocumentChunkPO struct {
	ID              string                 `gorm:"type:uuid;primarykey"`
	KnowledgeBaseID string                 `gorm:"type:uuid;not null;index:idx_document_chunks_kb_id"`
	ChunkIndex      int                    `gorm:"not null"`
	Content         string                 `gorm:"type:text;not null"`
	Title           string                 `gorm:"size:255"`
	TokenCount      int                    `gorm:"not null;default:0"`
	StartOffset     int                    `gorm:"not null;default:0"`
	EndOffset       int                    `gorm:"not null;default:0"`
	Embedding       []float32              `gorm:"serializer:json;type:text"`
	Metadata        map[string]interface{} `gorm:"serializer:json;type:text"`
	IsActive        bool                   `gorm:"not null;default:true"`
	RetrievalCount  int                    `gorm:"not null;default:0"`
	LastRetrievedAt *time.Time
	QualityScore    *float64  `gorm:"type:real"`
	CreatedAt       time.Time `gorm:"not null;default:CURRENT_TIMESTAMP"`
}

func (DocumentChunkPO) TableName() string {
	return "document_chunks"
}

// ChunkRepo is the gorm-backed chunk repository.
type ChunkRepo struct {
	db *database.DB
}

// NewChunkRepo creates the repository.
func NewChunkRepo(db *database.DB) biz.ChunkRepo {
	return &ChunkRepo{db: db}
}

// BatchCreate inserts all chunks of one ingestion in batches inside a
// single transaction.
func (r *ChunkRepo) BatchCreate(ctx context.Context, chunks []*biz.DocumentChunk) error {
	if len(chunks) == 0 {
		return nil
	}

	pos := make([]*DocumentChunkPO, len(chunks))
	for i, c := range chunks {
		pos[i] = toDocumentChunkPO(c)
	}

	return r.db.Transaction(ctx, func(tx *gorm.DB) error {
		return tx.CreateInBatches(pos, chunkInsertBatchSize).Error
	})
}

// ListActive returns active chunks of processed, active knowledge bases,
// optionally narrowed by category or tags. Tags are matched against the
// JSON-serialized tag column.
func (r *ChunkRepo) ListActive(ctx context.Context, chatbotID string, filter *biz.ChunkFilter) ([]*biz.DocumentChunk, error) {
	query := r.db.WithContext(ctx).GetDB().
		Model(&DocumentChunkPO{}).
		Joins("JOIN knowledge_bases kb ON kb.id = document_chunks.knowledge_base_id").
		Where("kb.chatbot_id = ? AND kb.is_active = ? AND kb.status = ?", chatbotID, true, biz.StatusProcessed).
		Where("document_chunks.is_active = ?", true)

	if filter != nil {
		if len(filter.Categories) > 0 {
			query = query.Where("kb.category IN ?", filter.Categories)
		}
		for _, tag := range filter.Tags {
			query = query.Where("kb.tags LIKE ?", "%\""+tag+"\"%")
		}
	}

	var pos []DocumentChunkPO
	if err := query.Order("document_chunks.knowledge_base_id, document_chunks.chunk_index").Find(&pos).Error; err != nil {
		return nil, err
	}
	return toDocumentChunks(pos), nil
}

// ListByChatbot returns every active chunk of the chatbot regardless of
// knowledge base status, for the degraded keyword path and diagnostics.
func (r *ChunkRepo) ListByChatbot(ctx context.Context, chatbotID string) ([]*biz.DocumentChunk, error) {
	var pos []DocumentChunkPO
	err := r.db.WithContext(ctx).GetDB().
		Model(&DocumentChunkPO{}).
		Joins("JOIN knowledge_bases kb ON kb.id = document_chunks.knowledge_base_id").
		Where("kb.chatbot_id = ? AND document_chunks.is_active = ?", chatbotID, true).
		Order("document_chunks.knowledge_base_id, document_chunks.chunk_index").
		Find(&pos).Error
	if err != nil {
		return nil, err
	}
	return toDocumentChunks(pos), nil
}

// BatchTouchRetrieved bumps the retrieval counters for all given chunks in
// one statement.
func (r *ChunkRepo) BatchTouchRetrieved(ctx context.Context, ids []string) error {
	if len(ids) == 0 {
		return nil
	}
	return r.db.WithContext(ctx).GetDB().
		Model(&DocumentChunkPO{}).
		Where("id IN ?", ids).
		Updates(map[string]interface{}{
			"retrieval_count":   gorm.Expr("retrieval_count + 1"),
			"last_retrieved_at": time.Now(),
		}).Error
}

func (r *ChunkRepo) DeleteByKnowledgeBase(ctx context.Context, knowledgeBaseID string) error {
	return r.db.WithContext(ctx).GetDB().
		Where("knowledge_base_id = ?", knowledgeBaseID).
		Delete(&DocumentChunkPO{}).Error
}

func toDocumentChunkPO(c *biz.DocumentChunk) *DocumentChunkPO {
	return &DocumentChunkPO{
		ID:              c.ID,
		KnowledgeBaseID: c.KnowledgeBaseID,
		ChunkIndex:      c.ChunkIndex,
		Content:         c.Content,
		Title:           c.Title,
		TokenCount:      c.TokenCount,
		StartOffset:     c.StartOffset,
		EndOffset:       c.EndOffset,
		Embedding:       c.Embedding,
		Metadata:        c.Metadata,
		IsActive:        c.IsActive,
		RetrievalCount:  c.RetrievalCount,
		LastRetrievedAt: c.LastRetrievedAt,
		QualityScore:    c.QualityScore,
		CreatedAt:       c.CreatedAt,
	}
}

func toDocumentChunk(po *DocumentChunkPO) *biz.DocumentChunk {
	return &biz.DocumentChunk{
		ID:              po.ID,
		KnowledgeBaseID: po.KnowledgeBaseID,
		ChunkIndex:      po.ChunkIndex,
		Content:         po.Content,
		Title:           po.Title,
		TokenCount:      po.TokenCount,
		StartOffset:     po.StartOffset,
		EndOffset:       po.EndOffset,
		Embedding:       po.Embedding,
		Metadata:        po.Metadata,
		IsActive:        po.IsActive,
		RetrievalCount:  po.RetrievalCount,
		LastRetrievedAt: po.LastRetrievedAt,
		QualityScore:    po.QualityScore,
		CreatedAt:       po.CreatedAt,
	}
}

func toDocumentChunks(pos []DocumentChunkPO) []*biz.DocumentChunk {
	chunks := make([]*biz.DocumentChunk, len(pos))
	for i := range pos {
		chunks[i] = toDocumentChunk(&pos[i])
	}
	return chunks
}
