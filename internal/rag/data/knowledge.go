package data

import (
	"context"
	"time"

	"github.com/jvillegas-dev/chatbot-backend/internal/pkg/database"
	"github.com/jvillegas-dev/chatbot-backend/internal/rag/biz"
	"gorm.io/gorm"
)

// KnowledgeBasePO is the knowledge base row. Config records, tags and
// metadata are JSON-serialized text columns; the structured columns cover
// everything retrieval filters on (chatbot, status, active).
type KnowledgeBasePO struct {
	ID              string                 `gorm:"type:uuid;primarykey"`
	ChatbotID       string                 `gorm:"type:uuid;not null;index:idx_knowledge_bases_chatbot_id"`
	Title           string                 `gorm:"size:255;not null"`
	DocumentType    string                 `gorm:"size:20;not null;default:'text'"`
	SourceURL       string                 `gorm:"size:2048"`
	Category        string                 `gorm:"size:100;index:idx_knowledge_bases_category"`
	Tags            []string               `gorm:"serializer:json;type:text"`
	Status          string                 `gorm:"size:20;not null;default:'pending';index:idx_knowledge_bases_status"`
	IsActive        bool                   `gorm:"not null;default:true"`
	TotalChunks     int                    `gorm:"not null;default:0"`
	ProcessedChunks int                    `gorm:"not null;default:0"`
	TotalTokens     int                    `gorm:"not null;default:0"`
	Chunking        biz.ChunkingConfig     `gorm:"serializer:json;type:text"`
	Embedding       biz.EmbeddingSettings  `gorm:"serializer:json;type:text"`
	Retrieval       biz.RetrievalConfig    `gorm:"serializer:json;type:text"`
	Metadata        map[string]interface{} `gorm:"serializer:json;type:text"`
	LastProcessedAt *time.Time
	CreatedAt       time.Time `gorm:"not null;default:CURRENT_TIMESTAMP;index:idx_knowledge_bases_created_at"`
	UpdatedAt       time.Time `gorm:"not null;default:CURRENT_TIMESTAMP"`
}

func (KnowledgeBasePO) TableName() string {
	return "knowledge_bases"
}

// KnowledgeBaseRepo is the gorm-backed knowledge base repository.
type KnowledgeBaseRepo struct {
	db *database.DB
}

// NewKnowledgeBaseRepo creates the repository.
func NewKnowledgeBaseRepo(db *database.DB) biz.KnowledgeBaseRepo {
	return &KnowledgeBaseRepo{db: db}
}

func (r *KnowledgeBaseRepo) Create(ctx context.Context, kb *biz.KnowledgeBase) error {
	return r.db.WithContext(ctx).GetDB().Create(toKnowledgeBasePO(kb)).Error
}

func (r *KnowledgeBaseRepo) GetByID(ctx context.Context, id string) (*biz.KnowledgeBase, error) {
	var po KnowledgeBasePO
	err := r.db.WithContext(ctx).GetDB().Where("id = ?", id).First(&po).Error
	if err != nil {
		if database.IsRecordNotFoundError(err) {
			return nil, biz.ErrKnowledgeBaseNotFound
		}
		return nil, err
	}
	return toKnowledgeBase(&po), nil
}

func (r *KnowledgeBaseRepo) GetLatestActive(ctx context.Context, chatbotID string) (*biz.KnowledgeBase, error) {
	var po KnowledgeBasePO
	err := r.db.WithContext(ctx).GetDB().
		Where("chatbot_id = ? AND is_active = ?", chatbotID, true).
		Order("created_at DESC").
		First(&po).Error
	if err != nil {
		if database.IsRecordNotFoundError(err) {
			return nil, biz.ErrKnowledgeBaseNotFound
		}
		return nil, err
	}
	return toKnowledgeBase(&po), nil
}

func (r *KnowledgeBaseRepo) ListByChatbot(ctx context.Context, chatbotID string) ([]*biz.KnowledgeBase, error) {
	var pos []KnowledgeBasePO
	err := r.db.WithContext(ctx).GetDB().
		Where("chatbot_id = ?", chatbotID).
		Order("created_at DESC").
		Find(&pos).Error
	if err != nil {
		return nil, err
	}

	kbs := make([]*biz.KnowledgeBase, len(pos))
	for i := range pos {
		kbs[i] = toKnowledgeBase(&pos[i])
	}
	return kbs, nil
}

func (r *KnowledgeBaseRepo) Update(ctx context.Context, kb *biz.KnowledgeBase) error {
	return r.db.WithContext(ctx).GetDB().Save(toKnowledgeBasePO(kb)).Error
}

func (r *KnowledgeBaseRepo) UpdateStatus(ctx context.Context, id, status string) error {
	result := r.db.WithContext(ctx).GetDB().
		Model(&KnowledgeBasePO{}).
		Where("id = ?", id).
		Updates(map[string]interface{}{"status": status, "updated_at": time.Now()})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return biz.ErrKnowledgeBaseNotFound
	}
	return nil
}

// Delete removes the knowledge base and its chunks in one transaction so a
// partial failure can never leave orphaned chunks behind.
func (r *KnowledgeBaseRepo) Delete(ctx context.Context, id string) error {
	return r.db.Transaction(ctx, func(tx *gorm.DB) error {
		if err := tx.Where("knowledge_base_id = ?", id).Delete(&DocumentChunkPO{}).Error; err != nil {
			return err
		}
		result := tx.Where("id = ?", id).Delete(&KnowledgeBasePO{})
		if result.Error != nil {
			return result.Error
		}
		if result.RowsAffected == 0 {
			return biz.ErrKnowledgeBaseNotFound
		}
		return nil
	})
}

func (r *KnowledgeBaseRepo) Stats(ctx context.Context, chatbotID string) (*biz.KnowledgeBaseStats, error) {
	var stats biz.KnowledgeBaseStats
	err := r.db.WithContext(ctx).GetDB().
		Model(&KnowledgeBasePO{}).
		Select(`COUNT(*) AS total_documents,
			COALESCE(SUM(processed_chunks), 0) AS total_chunks,
			COALESCE(SUM(total_tokens), 0) AS total_tokens,
			COUNT(*) FILTER (WHERE status = 'processed') AS processed_count,
			COUNT(*) FILTER (WHERE status = 'error') AS error_count`).
		Where("chatbot_id = ?", chatbotID).
		Scan(&stats).Error
	if err != nil {
		return nil, err
	}
	return &stats, nil
}

func toKnowledgeBasePO(kb *biz.KnowledgeBase) *KnowledgeBasePO {
	return &KnowledgeBasePO{
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
		Chunking:        kb.Chunking,
		Embedding:       kb.Embedding,
		Retrieval:       kb.Retrieval,
		Metadata:        kb.Metadata,
		LastProcessedAt: kb.LastProcessedAt,
		CreatedAt:       kb.CreatedAt,
		UpdatedAt:       kb.UpdatedAt,
	}
}

func toKnowledgeBase(po *KnowledgeBasePO) *biz.KnowledgeBase {
	return &biz.KnowledgeBase{
		ID:              po.ID,
		ChatbotID:       po.ChatbotID,
		Title:           po.Title,
		DocumentType:    po.DocumentType,
		SourceURL:       po.SourceURL,
		Category:        po.Category,
		Tags:            po.Tags,
		Status:          po.Status,
		IsActive:        po.IsActive,
		TotalChunks:     po.TotalChunks,
		ProcessedChunks: po.ProcessedChunks,
		TotalTokens:     po.TotalTokens,
		Chunking:        po.Chunking,
		Embedding:       po.Embedding,
		Retrieval:       po.Retrieval,
		Metadata:        po.Metadata,
		LastProcessedAt: po.LastProcessedAt,
		CreatedAt:       po.CreatedAt,
		UpdatedAt:       po.UpdatedAt,
	}
}
