// Package pipeline 定义了异步索引任务的处理流程。
package pipeline

import (
	"context"
	"errors"
	"fmt"

	"ai-kms-go/internal/service"
	"ai-kms-go/pkg/log"
	"ai-kms-go/pkg/tasks"
)

// Processor 将 Kafka 中的索引任务分派给单文档索引或用户级批量重建索引。
type Processor struct {
	indexer service.IndexerService
	reindex service.ReindexService
}

// NewProcessor 创建一个新的 Processor 实例。
func NewProcessor(indexer service.IndexerService, reindex service.ReindexService) *Processor {
	return &Processor{indexer: indexer, reindex: reindex}
}

// Process 是索引任务处理的主函数。返回错误时任务会被重试。
func (p *Processor) Process(ctx context.Context, task tasks.IndexTask) error {
	if task.IsReindexAll() {
		log.Infof("[Processor] 开始批量重建索引, UserID: %d", task.UserID)
		result, err := p.reindex.ReindexAll(ctx, task.UserID)
		if err != nil {
			return fmt.Errorf("reindex user %d: %w", task.UserID, err)
		}
		// 单个文档的失败已计入结果，不触发整个任务重试
		if result.Failed > 0 {
			log.Warnf("[Processor] 批量重建索引部分失败, UserID: %d, 成功: %d, 失败: %d", task.UserID, result.Processed, result.Failed)
		}
		return nil
	}

	log.Infof("[Processor] 开始索引文档, DocumentID: %d", task.DocumentID)
	err := p.indexer.IndexDocument(ctx, task.DocumentID)
	if errors.Is(err, service.ErrDocumentBusy) {
		log.Infof("[Processor] 文档正在被其他任务索引，跳过, DocumentID: %d", task.DocumentID)
		return nil
	}
	return err
}
