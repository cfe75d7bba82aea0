// Package handler 包含了处理 HTTP 请求的控制器逻辑。
package handler

import (
	"context"
	"errors"
	"net/http"
	"strconv"

	"ai-kms-go/internal/middleware"
	"ai-kms-go/internal/service"
	"ai-kms-go/pkg/embedding"
	"ai-kms-go/pkg/log"
	"ai-kms-go/pkg/tasks"

	"github.com/gin-gonic/gin"
)

// IndexTaskQueue 接收异步索引任务，由 Kafka Producer 实现。
type IndexTaskQueue interface {
	ProduceIndexTask(ctx context.Context, task tasks.IndexTask) error
}

// DocumentHandler 负责处理文档索引相关的 API 请求。
type DocumentHandler struct {
	docService service.DocumentService
	indexer    service.IndexerService
	reindex    service.ReindexService
	queue      IndexTaskQueue
}

// NewDocumentHandler 创建一个新的 DocumentHandler 实例。queue 为 nil 时异步接口返回 503。
func NewDocumentHandler(docService service.DocumentService, indexer service.IndexerService, reindex service.ReindexService, queue IndexTaskQueue) *DocumentHandler {
	return &DocumentHandler{
		docService: docService,
		indexer:    indexer,
		reindex:    reindex,
		queue:      queue,
	}
}

// GetIndexStatus 返回文档当前的索引状态。
func (h *DocumentHandler) GetIndexStatus(c *gin.Context) {
	userID, docID, ok := h.parseRequest(c)
	if !ok {
		return
	}
	status, err := h.docService.GetIndexStatus(c.Request.Context(), userID, docID)
	if err != nil {
		h.writeLookupError(c, docID, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"code": http.StatusOK, "message": "success", "data": status})
}

// ListChunks 返回文档当前的分块集合（不含向量）。
func (h *DocumentHandler) ListChunks(c *gin.Context) {
	userID, docID, ok := h.parseRequest(c)
	if !ok {
		return
	}
	chunks, err := h.docService.ListChunks(c.Request.Context(), userID, docID)
	if err != nil {
		h.writeLookupError(c, docID, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"code": http.StatusOK, "message": "success", "data": chunks})
}

// IndexDocument 同步地为单个文档重建索引。
func (h *DocumentHandler) IndexDocument(c *gin.Context) {
	userID, docID, ok := h.parseRequest(c)
	if !ok {
		return
	}
	if _, err := h.docService.GetOwned(c.Request.Context(), userID, docID); err != nil {
		h.writeLookupError(c, docID, err)
		return
	}

	err := h.indexer.IndexDocument(c.Request.Context(), docID)
	var providerErr *embedding.ProviderError
	switch {
	case err == nil:
	case errors.Is(err, service.ErrDocumentBusy):
		c.JSON(http.StatusConflict, gin.H{"code": http.StatusConflict, "message": "文档正在被索引，请稍后重试"})
		return
	case errors.As(err, &providerErr):
		log.Errorf("[DocumentHandler] 嵌入服务调用失败, docID: %d, error: %v", docID, err)
		c.JSON(http.StatusBadGateway, gin.H{"code": http.StatusBadGateway, "message": "嵌入服务调用失败"})
		return
	default:
		log.Errorf("[DocumentHandler] 索引文档失败, docID: %d, error: %v", docID, err)
		c.JSON(http.StatusInternalServerError, gin.H{"code": http.StatusInternalServerError, "message": "索引文档失败"})
		return
	}

	status, err := h.docService.GetIndexStatus(c.Request.Context(), userID, docID)
	if err != nil {
		h.writeLookupError(c, docID, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"code": http.StatusOK, "message": "文档索引完成", "data": status})
}

// IndexDocumentAsync 将单文档索引任务投递到队列。
func (h *DocumentHandler) IndexDocumentAsync(c *gin.Context) {
	userID, docID, ok := h.parseRequest(c)
	if !ok {
		return
	}
	if _, err := h.docService.GetOwned(c.Request.Context(), userID, docID); err != nil {
		h.writeLookupError(c, docID, err)
		return
	}
	h.enqueue(c, tasks.IndexTask{DocumentID: docID, UserID: userID})
}

// ReindexAll 同步地为当前用户的全部文档重建索引。
func (h *DocumentHandler) ReindexAll(c *gin.Context) {
	userID, ok := h.userID(c)
	if !ok {
		return
	}
	result, err := h.reindex.ReindexAll(c.Request.Context(), userID)
	if err != nil {
		log.Errorf("[DocumentHandler] 批量重建索引失败, userID: %d, error: %v", userID, err)
		c.JSON(http.StatusInternalServerError, gin.H{"code": http.StatusInternalServerError, "message": "批量重建索引失败"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"code": http.StatusOK, "message": "批量重建索引完成", "data": result})
}

// ReindexAllAsync 将用户级批量重建索引任务投递到队列。
func (h *DocumentHandler) ReindexAllAsync(c *gin.Context) {
	userID, ok := h.userID(c)
	if !ok {
		return
	}
	h.enqueue(c, tasks.IndexTask{UserID: userID})
}

func (h *DocumentHandler) enqueue(c *gin.Context, task tasks.IndexTask) {
	if h.queue == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"code": http.StatusServiceUnavailable, "message": "异步索引未启用"})
		return
	}
	if err := h.queue.ProduceIndexTask(c.Request.Context(), task); err != nil {
		log.Errorf("[DocumentHandler] 投递索引任务失败, task: %s, error: %v", task.Key(), err)
		c.JSON(http.StatusInternalServerError, gin.H{"code": http.StatusInternalServerError, "message": "投递索引任务失败"})
		return
	}
	log.Infof("[DocumentHandler] 索引任务已投递, task: %s", task.Key())
	c.JSON(http.StatusAccepted, gin.H{"code": http.StatusAccepted, "message": "索引任务已提交"})
}

func (h *DocumentHandler) userID(c *gin.Context) (uint, bool) {
	userID, ok := middleware.UserID(c)
	if !ok {
		log.Errorf("[DocumentHandler] 无法从 Gin 上下文中获取用户信息")
		c.JSON(http.StatusInternalServerError, gin.H{"code": http.StatusInternalServerError, "message": "无法获取用户信息"})
	}
	return userID, ok
}

func (h *DocumentHandler) parseRequest(c *gin.Context) (userID, docID uint, ok bool) {
	if userID, ok = h.userID(c); !ok {
		return 0, 0, false
	}
	id, err := strconv.ParseUint(c.Param("id"), 10, 64)
	if err != nil || id == 0 {
		badRequest(c, "无效的文档 ID")
		return 0, 0, false
	}
	return userID, uint(id), true
}

func (h *DocumentHandler) writeLookupError(c *gin.Context, docID uint, err error) {
	if errors.Is(err, service.ErrDocumentNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"code": http.StatusNotFound, "message": "文档不存在"})
		return
	}
	log.Errorf("[DocumentHandler] 查询文档失败, docID: %d, error: %v", docID, err)
	c.JSON(http.StatusInternalServerError, gin.H{"code": http.StatusInternalServerError, "message": "查询文档失败"})
}
