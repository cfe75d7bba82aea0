package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"ai-kms-go/internal/model"
	"ai-kms-go/internal/repository"

	"gorm.io/gorm"
)

// IndexStatusDTO 是返回给前端的文档索引状态，不包含向量本身。
type IndexStatusDTO struct {
	DocumentID          uint       `json:"documentId"`
	Name                string     `json:"name"`
	IsInVectorDB        bool       `json:"isInVectorDb"`
	EmbeddingModel      *string    `json:"embeddingModel"`
	LastEmbeddingUpdate *time.Time `json:"lastEmbeddingUpdate"`
	ChunkCount          int        `json:"chunkCount"`
}

// DocumentService 接口定义了调用方查看自己文档索引结果的业务操作。
type DocumentService interface {
	// GetOwned 返回属于 userID 的文档；文档不存在或属于其他用户时返回 ErrDocumentNotFound。
	GetOwned(ctx context.Context, userID, documentID uint) (*model.Document, error)
	GetIndexStatus(ctx context.Context, userID, documentID uint) (*IndexStatusDTO, error)
	ListChunks(ctx context.Context, userID, documentID uint) ([]*model.DocumentChunk, error)
}

type documentService struct {
	docRepo   repository.DocumentRepository
	chunkRepo repository.DocumentChunkRepository
}

// NewDocumentService 创建一个新的 DocumentService 实例。
func NewDocumentService(docRepo repository.DocumentRepository, chunkRepo repository.DocumentChunkRepository) DocumentService {
	return &documentService{docRepo: docRepo, chunkRepo: chunkRepo}
}

func (s *documentService) GetOwned(ctx context.Context, userID, documentID uint) (*model.Document, error) {
	doc, err := s.docRepo.FindByID(ctx, documentID)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrDocumentNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("load document %d: %w", documentID, err)
	}
	// 不区分“不存在”与“无权访问”，避免泄露其他用户的文档 ID
	if doc.UserID != userID {
		return nil, ErrDocumentNotFound
	}
	return doc, nil
}

func (s *documentService) GetIndexStatus(ctx context.Context, userID, documentID uint) (*IndexStatusDTO, error) {
	doc, err := s.GetOwned(ctx, userID, documentID)
	if err != nil {
		return nil, err
	}
	chunks, err := s.chunkRepo.FindByDocumentID(ctx, documentID)
	if err != nil {
		return nil, fmt.Errorf("load chunks of document %d: %w", documentID, err)
	}
	return &IndexStatusDTO{
		DocumentID:          doc.ID,
		Name:                doc.Name,
		IsInVectorDB:        doc.IsInVectorDB,
		EmbeddingModel:      doc.EmbeddingModel,
		LastEmbeddingUpdate: doc.LastEmbeddingUpdate,
		ChunkCount:          len(chunks),
	}, nil
}

func (s *documentService) ListChunks(ctx context.Context, userID, documentID uint) ([]*model.DocumentChunk, error) {
	if _, err := s.GetOwned(ctx, userID, documentID); err != nil {
		return nil, err
	}
	chunks, err := s.chunkRepo.FindByDocumentID(ctx, documentID)
	if err != nil {
		return nil, fmt.Errorf("load chunks of document %d: %w", documentID, err)
	}
	return chunks, nil
}
