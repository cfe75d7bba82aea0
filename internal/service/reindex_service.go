package service

import (
	"context"
	"fmt"
	"sync/atomic"

	"ai-kms-go/internal/repository"
	"ai-kms-go/pkg/log"

	"golang.org/x/sync/errgroup"
)

// ReindexResult 汇总一次批量重建索引的结果。
type ReindexResult struct {
	Processed int  `json:"processed"`
	Failed    int  `json:"failed"`
	Skipped   int  `json:"skipped"`
	Cancelled bool `json:"cancelled"`
}

// ReindexService 对用户的全部文档重建索引，单个文档失败不影响其他文档。
type ReindexService interface {
	// ReindexAll 只有在枚举文档失败时才返回错误。ctx 取消后不再启动新的文档，
	// 已开始的文档会在不可取消的上下文中执行完毕。
	ReindexAll(ctx context.Context, userID uint) (ReindexResult, error)
}

type reindexService struct {
	docRepo     repository.DocumentRepository
	indexer     IndexerService
	concurrency int
}

// NewReindexService 创建一个新的 ReindexService 实例。
func NewReindexService(docRepo repository.DocumentRepository, indexer IndexerService, concurrency int) ReindexService {
	if concurrency <= 0 {
		concurrency = 1
	}
	return &reindexService{docRepo: docRepo, indexer: indexer, concurrency: concurrency}
}

func (s *reindexService) ReindexAll(ctx context.Context, userID uint) (ReindexResult, error) {
	ids, err := s.docRepo.ListIDsByUser(ctx, userID)
	if err != nil {
		return ReindexResult{}, fmt.Errorf("list documents of user %d: %w", userID, err)
	}
	log.Infof("[ReindexService] 开始批量重建索引, userID: %d, 文档数: %d, 并发: %d", userID, len(ids), s.concurrency)

	var (
		g         errgroup.Group
		processed atomic.Int64
		failed    atomic.Int64
		result    ReindexResult
	)
	sem := make(chan struct{}, s.concurrency)
	// 已开始的文档不受调用方取消影响，避免留下写了一半的分块
	workCtx := context.WithoutCancel(ctx)

launch:
	for i, id := range ids {
		acquired := false
		select {
		case <-ctx.Done():
		case sem <- struct{}{}:
			acquired = true
		}
		if ctx.Err() != nil {
			if acquired {
				<-sem
			}
			result.Skipped = len(ids) - i
			result.Cancelled = true
			break launch
		}

		id := id
		g.Go(func() error {
			defer func() { <-sem }()
			if err := s.indexer.IndexDocument(workCtx, id); err != nil {
				failed.Add(1)
				log.Errorf("[ReindexService] 文档重建索引失败, documentID: %d, error: %v", id, err)
				return nil
			}
			processed.Add(1)
			return nil
		})
	}
	_ = g.Wait()

	result.Processed = int(processed.Load())
	result.Failed = int(failed.Load())
	log.Infof("[ReindexService] 批量重建索引结束, userID: %d, 成功: %d, 失败: %d, 跳过: %d", userID, result.Processed, result.Failed, result.Skipped)
	return result, nil
}
