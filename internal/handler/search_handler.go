package handler

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"ai-kms-go/internal/middleware"
	"ai-kms-go/internal/model"
	"ai-kms-go/internal/service"
	"ai-kms-go/pkg/log"

	"github.com/gin-gonic/gin"
)

const dateLayout = "2006-01-02"

// SearchHandler 结构体定义了搜索相关的处理器。
type SearchHandler struct {
	searchService service.SearchService
}

// NewSearchHandler 创建一个新的 SearchHandler 实例。
func NewSearchHandler(searchService service.SearchService) *SearchHandler {
	return &SearchHandler{
		searchService: searchService,
	}
}

// Search 是处理语义、关键词与混合检索请求的 Gin 处理函数。
func (h *SearchHandler) Search(c *gin.Context) {
	query := strings.TrimSpace(c.Query("query"))
	log.Infof("[SearchHandler] 收到检索请求, query: %s, mode: %s", query, c.Query("mode"))

	if query == "" {
		log.Warnf("[SearchHandler] 检索请求失败: query 参数为空")
		badRequest(c, "无效的查询参数")
		return
	}

	opts := model.SearchOptions{
		Mode:   model.ParseSearchMode(c.Query("mode")),
		Filter: model.DocumentFilter{Category: strings.TrimSpace(c.Query("category"))},
	}
	// limit 非法时回退为服务端默认值
	if limit, err := strconv.Atoi(c.Query("limit")); err == nil && limit > 0 {
		opts.Limit = limit
	}
	if raw := c.Query("threshold"); raw != "" {
		threshold, err := strconv.ParseFloat(raw, 64)
		if err != nil || threshold < 0 || threshold > 1 {
			badRequest(c, "threshold 必须是 0 到 1 之间的数字")
			return
		}
		opts.Threshold = &threshold
	}

	var err error
	if opts.Filter.DateFrom, err = parseDateParam(c.Query("from"), false); err != nil {
		badRequest(c, "from 日期格式无效")
		return
	}
	if opts.Filter.DateTo, err = parseDateParam(c.Query("to"), true); err != nil {
		badRequest(c, "to 日期格式无效")
		return
	}

	userID, ok := middleware.UserID(c)
	if !ok {
		log.Errorf("[SearchHandler] 无法从 Gin 上下文中获取用户信息")
		c.JSON(http.StatusInternalServerError, gin.H{"code": http.StatusInternalServerError, "message": "无法获取用户信息"})
		return
	}

	results := h.searchService.Search(c.Request.Context(), query, userID, opts)
	log.Infof("[SearchHandler] 检索完成, query: '%s', mode: %s, 返回 %d 条结果", query, opts.Mode, len(results))
	c.JSON(http.StatusOK, gin.H{"code": 200, "data": results, "message": "success"})
}

// parseDateParam 解析 YYYY-MM-DD 或 RFC3339 格式的日期。endOfDay 为 true 时，
// 仅包含日期的值会扩展到当天最后一刻，使区间包含整天。
func parseDateParam(raw string, endOfDay bool) (time.Time, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return time.Time{}, nil
	}
	if t, err := time.ParseInLocation(dateLayout, raw, time.Local); err == nil {
		if endOfDay {
			t = t.AddDate(0, 0, 1).Add(-time.Nanosecond)
		}
		return t, nil
	}
	return time.Parse(time.RFC3339, raw)
}

func badRequest(c *gin.Context, message string) {
	c.JSON(http.StatusBadRequest, gin.H{"code": http.StatusBadRequest, "message": message})
}
