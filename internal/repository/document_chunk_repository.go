package repository

import (
	"context"

	"ai-kms-go/internal/model"

	"gorm.io/gorm"
)

// DocumentChunkRepository 定义了对 document_chunks 表的数据操作接口。
type DocumentChunkRepository interface {
	// ReplaceForDocument 在一个事务内删除文档的旧分块并写入新分块。
	ReplaceForDocument(ctx context.Context, documentID uint, chunks []*model.DocumentChunk) error
	FindByDocumentID(ctx context.Context, documentID uint) ([]*model.DocumentChunk, error)
}

type documentChunkRepository struct {
	db *gorm.DB
}

// NewDocumentChunkRepository 创建一个新的 DocumentChunkRepository 实例。
func NewDocumentChunkRepository(db *gorm.DB) DocumentChunkRepository {
	return &documentChunkRepository{db: db}
}

func (r *documentChunkRepository) ReplaceForDocument(ctx context.Context, documentID uint, chunks []*model.DocumentChunk) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("document_id = ?", documentID).Delete(&model.DocumentChunk{}).Error; err != nil {
			return err
		}
		if len(chunks) == 0 {
			return nil
		}
		for _, c := range chunks {
			c.DocumentID = documentID
		}
		return tx.CreateInBatches(chunks, 100).Error // 每100条记录一批
	})
}

// FindByDocumentID 按分块序号返回文档的全部分块。
func (r *documentChunkRepository) FindByDocumentID(ctx context.Context, documentID uint) ([]*model.DocumentChunk, error) {
	var chunks []*model.DocumentChunk
	err := r.db.WithContext(ctx).Where("document_id = ?", documentID).Order("chunk_index").Find(&chunks).Error
	return chunks, err
}
