package handler

import (
	"net/http"

	"ai-kms-go/internal/middleware"
	"ai-kms-go/pkg/token"

	"github.com/gin-gonic/gin"
)

// NewRouter 创建路由引擎并注册全部 API 路由。
func NewRouter(jwtManager *token.JWTManager, searchHandler *SearchHandler, documentHandler *DocumentHandler) *gin.Engine {
	r := gin.New() // 使用 New() 创建一个不带默认中间件的引擎
	// 添加我们自定义的日志中间件和 Gin 的 Recovery 中间件
	r.Use(middleware.RequestLogger(), gin.Recovery())

	r.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"code": http.StatusOK, "message": "ok"})
	})

	apiV1 := r.Group("/api/v1")
	apiV1.Use(middleware.AuthMiddleware(jwtManager))
	{
		apiV1.GET("/search", searchHandler.Search)

		documents := apiV1.Group("/documents")
		{
			documents.POST("/reindex", documentHandler.ReindexAll)
			documents.POST("/reindex/async", documentHandler.ReindexAllAsync)
			documents.GET("/:id/index", documentHandler.GetIndexStatus)
			documents.GET("/:id/chunks", documentHandler.ListChunks)
			documents.POST("/:id/index", documentHandler.IndexDocument)
			documents.POST("/:id/index/async", documentHandler.IndexDocumentAsync)
		}
	}
	return r
}
