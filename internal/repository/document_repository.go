// Package repository 定义了与数据库进行数据交换的接口和实现。
package repository

import (
	"context"
	"time"

	"ai-kms-go/internal/model"

	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// DocumentRepository 接口定义了文档及其文档级向量的持久化操作。
type DocumentRepository interface {
	Create(ctx context.Context, doc *model.Document) error
	FindByID(ctx context.Context, id uint) (*model.Document, error)
	MarkNotIndexed(ctx context.Context, id uint) error
	SaveEmbedding(ctx context.Context, id uint, embedding []byte, embeddingModel string, at time.Time) error
	ListIDsByUser(ctx context.Context, userID uint) ([]uint, error)
	FindEmbeddedByUser(ctx context.Context, userID uint, filter model.DocumentFilter) ([]model.Document, error)
	FindByUser(ctx context.Context, userID uint, filter model.DocumentFilter) ([]model.Document, error)
}

// documentRepository 是 DocumentRepository 接口的 GORM 实现。
type documentRepository struct {
	db *gorm.DB
}

// NewDocumentRepository 创建一个新的 DocumentRepository 实例。
func NewDocumentRepository(db *gorm.DB) DocumentRepository {
	return &documentRepository{db: db}
}

func (r *documentRepository) Create(ctx context.Context, doc *model.Document) error {
	return r.db.WithContext(ctx).Create(doc).Error
}

// FindByID 根据 ID 查找文档，不存在时返回 gorm.ErrRecordNotFound。
func (r *documentRepository) FindByID(ctx context.Context, id uint) (*model.Document, error) {
	var doc model.Document
	if err := r.db.WithContext(ctx).First(&doc, id).Error; err != nil {
		return nil, err
	}
	return &doc, nil
}

// MarkNotIndexed 将文档标记为未进入向量库，保留旧的向量数据不动。
func (r *documentRepository) MarkNotIndexed(ctx context.Context, id uint) error {
	return r.db.WithContext(ctx).Model(&model.Document{}).Where("id = ?", id).
		Update("is_in_vector_db", false).Error
}

// SaveEmbedding 一次性写入向量、模型标识、更新时间并将文档标记为已索引。
func (r *documentRepository) SaveEmbedding(ctx context.Context, id uint, embedding []byte, embeddingModel string, at time.Time) error {
	return r.db.WithContext(ctx).Model(&model.Document{}).Where("id = ?", id).
		Updates(map[string]interface{}{
			"embedding":             datatypes.JSON(embedding),
			"embedding_model":       embeddingModel,
			"last_embedding_update": at,
			"is_in_vector_db":       true,
		}).Error
}

// ListIDsByUser 返回某个用户的全部文档 ID。
func (r *documentRepository) ListIDsByUser(ctx context.Context, userID uint) ([]uint, error) {
	var ids []uint
	err := r.db.WithContext(ctx).Model(&model.Document{}).
		Where("user_id = ?", userID).Order("id").Pluck("id", &ids).Error
	return ids, err
}

// FindEmbeddedByUser 返回用户满足过滤条件且已有文档向量的文档，供语义检索全量扫描。
func (r *documentRepository) FindEmbeddedByUser(ctx context.Context, userID uint, filter model.DocumentFilter) ([]model.Document, error) {
	var docs []model.Document
	err := r.scoped(ctx, userID, filter).
		Where("embedding IS NOT NULL").
		Find(&docs).Error
	return docs, err
}

// FindByUser 返回用户满足过滤条件的全部文档，按创建时间倒序。
func (r *documentRepository) FindByUser(ctx context.Context, userID uint, filter model.DocumentFilter) ([]model.Document, error) {
	var docs []model.Document
	err := r.scoped(ctx, userID, filter).
		Order("created_at DESC").Order("id DESC").
		Find(&docs).Error
	return docs, err
}

func (r *documentRepository) scoped(ctx context.Context, userID uint, filter model.DocumentFilter) *gorm.DB {
	db := r.db.WithContext(ctx).Where("user_id = ?", userID)
	if filter.Category != "" {
		db = db.Where("(category = ? OR ai_category = ?)", filter.Category, filter.Category)
	}
	if !filter.DateFrom.IsZero() {
		db = db.Where("created_at >= ?", filter.DateFrom)
	}
	if !filter.DateTo.IsZero() {
		db = db.Where("created_at <= ?", filter.DateTo)
	}
	return db
}
