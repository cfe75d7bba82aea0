// Package service 包含检索核心的业务逻辑：文档索引、检索、批量重建索引与检索会话记录。
package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"ai-kms-go/internal/config"
	"ai-kms-go/internal/model"
	"ai-kms-go/internal/repository"
	"ai-kms-go/pkg/chunker"
	"ai-kms-go/pkg/embedding"
	"ai-kms-go/pkg/lock"
	"ai-kms-go/pkg/log"
	"ai-kms-go/pkg/vector"

	"gorm.io/gorm"
)

// IndexerService 为单个文档生成文档级向量与分块向量。
type IndexerService interface {
	// IndexDocument 对文档重建索引。文档不存在时不做任何事并返回 nil；
	// 嵌入服务调用失败时返回包装后的 *embedding.ProviderError。
	IndexDocument(ctx context.Context, documentID uint) error
}

// ChunkMirror 接收文档最新的分块集合，供下游系统使用。镜像失败只记录日志。
type ChunkMirror interface {
	ReplaceChunks(ctx context.Context, documentID uint, chunks []model.ChunkMirrorDocument) error
}

type indexerService struct {
	docRepo   repository.DocumentRepository
	chunkRepo repository.DocumentChunkRepository
	embedder  embedding.Client
	chunker   *chunker.Chunker
	cfg       config.RetrievalConfig
	locker    lock.Locker
	mirror    ChunkMirror
}

// NewIndexerService 创建一个新的 IndexerService 实例。locker 与 mirror 可以为 nil。
func NewIndexerService(
	docRepo repository.DocumentRepository,
	chunkRepo repository.DocumentChunkRepository,
	embedder embedding.Client,
	cfg config.RetrievalConfig,
	locker lock.Locker,
	mirror ChunkMirror,
) IndexerService {
	return &indexerService{
		docRepo:   docRepo,
		chunkRepo: chunkRepo,
		embedder:  embedder,
		chunker:   chunker.New(cfg.CharsPerToken),
		cfg:       cfg,
		locker:    locker,
		mirror:    mirror,
	}
}

func indexLockKey(documentID uint) string {
	return fmt.Sprintf("kms:index-lock:%d", documentID)
}

func (s *indexerService) IndexDocument(ctx context.Context, documentID uint) error {
	if s.locker != nil {
		release, acquired, err := s.locker.TryLock(ctx, indexLockKey(documentID), s.cfg.IndexLockTTL)
		switch {
		case err != nil:
			// 锁只是咨询性的，Redis 不可用时仍然继续索引
			log.Warnf("[IndexerService] 获取文档锁失败，继续无锁索引, documentID: %d, error: %v", documentID, err)
		case !acquired:
			return fmt.Errorf("%w: document %d", ErrDocumentBusy, documentID)
		default:
			defer release()
		}
	}

	doc, err := s.docRepo.FindByID(ctx, documentID)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		log.Warnf("[IndexerService] 文档不存在，跳过索引, documentID: %d", documentID)
		return nil
	}
	if err != nil {
		return fmt.Errorf("load document %d: %w", documentID, err)
	}

	text := documentText(doc)
	if text == "" {
		log.Infof("[IndexerService] 文档没有可索引的文本, documentID: %d", documentID)
		if err := s.docRepo.MarkNotIndexed(ctx, documentID); err != nil {
			return fmt.Errorf("mark document %d not indexed: %w", documentID, err)
		}
		return nil
	}

	vec, err := s.embedder.Embed(ctx, text)
	if err != nil {
		if markErr := s.docRepo.MarkNotIndexed(ctx, documentID); markErr != nil {
			log.Errorf("[IndexerService] 标记文档未索引失败, documentID: %d, error: %v", documentID, markErr)
		}
		return fmt.Errorf("embed document %d: %w", documentID, err)
	}
	if len(vec) == 0 {
		log.Warnf("[IndexerService] 嵌入服务返回空向量, documentID: %d", documentID)
		if err := s.docRepo.MarkNotIndexed(ctx, documentID); err != nil {
			return fmt.Errorf("mark document %d not indexed: %w", documentID, err)
		}
		return nil
	}

	data, err := vector.Marshal(vec)
	if err != nil {
		return fmt.Errorf("encode embedding of document %d: %w", documentID, err)
	}
	if err := s.docRepo.SaveEmbedding(ctx, documentID, data, s.embedder.Model(), time.Now()); err != nil {
		return fmt.Errorf("save embedding of document %d: %w", documentID, err)
	}
	log.Infof("[IndexerService] 文档向量已更新, documentID: %d, 维度: %d, model: %s", documentID, len(vec), s.embedder.Model())

	s.tryIndexChunks(ctx, doc)
	return nil
}

// tryIndexChunks 重建文档的分块向量。所有失败只记录日志，失败时保留旧的分块集合。
func (s *indexerService) tryIndexChunks(ctx context.Context, doc *model.Document) {
	segments := s.chunker.Chunk(doc.Content, s.cfg.MaxTokensPerChunk)
	texts := make([]string, len(segments))
	for i, seg := range segments {
		texts[i] = seg.Text
	}

	var vectors [][]float32
	if len(texts) > 0 {
		var err error
		vectors, err = s.embedder.EmbedBatch(ctx, texts)
		if err != nil {
			log.Errorf("[IndexerService] 分块向量化失败，保留旧分块, documentID: %d, error: %v", doc.ID, err)
			return
		}
		if len(vectors) != len(texts) {
			log.Errorf("[IndexerService] 分块向量数量不匹配，保留旧分块, documentID: %d, 期望: %d, 实际: %d", doc.ID, len(texts), len(vectors))
			return
		}
	}

	chunks := make([]*model.DocumentChunk, 0, len(segments))
	mirrored := make([]model.ChunkMirrorDocument, 0, len(segments))
	for i, seg := range segments {
		data, err := vector.Marshal(vectors[i])
		if err != nil {
			log.Errorf("[IndexerService] 分块向量为空，保留旧分块, documentID: %d, chunk: %d", doc.ID, i)
			return
		}
		chunks = append(chunks, &model.DocumentChunk{
			DocumentID:  doc.ID,
			ChunkIndex:  i,
			Content:     seg.Text,
			Embedding:   data,
			StartOffset: seg.Start,
			EndOffset:   seg.End,
			TokenCount:  seg.TokenCount,
		})
		mirrored = append(mirrored, model.ChunkMirrorDocument{
			ChunkID:    fmt.Sprintf("%d_%d", doc.ID, i),
			DocumentID: doc.ID,
			ChunkIndex: i,
			Content:    seg.Text,
			Vector:     vectors[i],
			Model:      s.embedder.Model(),
			UserID:     doc.UserID,
		})
	}

	if err := s.chunkRepo.ReplaceForDocument(ctx, doc.ID, chunks); err != nil {
		log.Errorf("[IndexerService] 写入分块失败, documentID: %d, error: %v", doc.ID, err)
		return
	}
	log.Infof("[IndexerService] 分块已更新, documentID: %d, 分块数: %d", doc.ID, len(chunks))

	if s.mirror != nil {
		if err := s.mirror.ReplaceChunks(ctx, doc.ID, mirrored); err != nil {
			log.Warnf("[IndexerService] 同步分块镜像失败, documentID: %d, error: %v", doc.ID, err)
		}
	}
}

// documentText 拼接名称、摘要与正文中的非空字段。
func documentText(doc *model.Document) string {
	parts := make([]string, 0, 3)
	for _, p := range []string{doc.Name, deref(doc.Summary), doc.Content} {
		if strings.TrimSpace(p) != "" {
			parts = append(parts, p)
		}
	}
	return strings.TrimSpace(strings.Join(parts, "\n\n"))
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
