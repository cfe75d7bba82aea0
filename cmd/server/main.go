// Package main 是应用程序的入口点。
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"ai-kms-go/internal/config"
	"ai-kms-go/internal/handler"
	"ai-kms-go/internal/pipeline"
	"ai-kms-go/internal/repository"
	"ai-kms-go/internal/service"
	"ai-kms-go/pkg/database"
	"ai-kms-go/pkg/embedding"
	"ai-kms-go/pkg/es"
	"ai-kms-go/pkg/kafka"
	"ai-kms-go/pkg/lock"
	"ai-kms-go/pkg/log"
	"ai-kms-go/pkg/token"

	"github.com/gin-gonic/gin"
)

func main() {
	configPath := "./configs/config.yaml"
	if p := os.Getenv("KMS_CONFIG"); p != "" {
		configPath = p
	}

	// 1. 初始化配置
	config.Init(configPath)
	cfg := config.Conf

	// 2. 初始化日志记录器
	log.Init(cfg.Log.Level, cfg.Log.Format, cfg.Log.OutputPath)
	defer log.Sync() // 确保在程序退出时刷新所有缓冲的日志条目
	log.Info("日志记录器初始化成功")

	// 3. 初始化数据库和 Redis
	database.InitMySQL(cfg.Database.MySQL.DSN)
	database.InitRedis(cfg.Database.Redis)

	var (
		locker   lock.Locker
		attempts kafka.AttemptCounter
	)
	if database.RDB != nil {
		locker = lock.NewRedisLocker(database.RDB)
		attempts = kafka.NewRedisAttemptCounter(database.RDB)
	}

	// 分块镜像是可选的，初始化失败不影响检索核心
	var mirror service.ChunkMirror
	if cfg.Elasticsearch.Addresses != "" {
		m, err := es.NewChunkMirror(cfg.Elasticsearch, cfg.Embedding.Dimensions)
		if err != nil {
			log.Errorf("es 初始化失败, 分块镜像已禁用: %v", err)
		} else {
			mirror = m
		}
	}

	// 4. 初始化 Repository
	docRepo := repository.NewDocumentRepository(database.DB)
	chunkRepo := repository.NewDocumentChunkRepository(database.DB)
	sessionRepo := repository.NewSearchSessionRepository(database.DB)

	// 5. 初始化 Service (依赖注入)
	jwtManager := token.NewJWTManager(cfg.JWT.Secret, cfg.JWT.AccessTokenExpireHours)
	embeddingClient := embedding.NewClient(cfg.Embedding)
	sessionService := service.NewSessionService(sessionRepo, embeddingClient, cfg.Retrieval.SessionLogTimeout)
	indexerService := service.NewIndexerService(docRepo, chunkRepo, embeddingClient, cfg.Retrieval, locker, mirror)
	reindexService := service.NewReindexService(docRepo, indexerService, cfg.Retrieval.ReindexConcurrency)
	searchService := service.NewSearchService(docRepo, embeddingClient, sessionService, cfg.Retrieval)
	documentService := service.NewDocumentService(docRepo, chunkRepo)

	// 6. 启动后台 Kafka 消费者（未配置 broker 时异步接口返回 503）
	consumerCtx, stopConsumer := context.WithCancel(context.Background())
	defer stopConsumer()
	consumerDone := make(chan struct{})
	var (
		producer *kafka.Producer
		queue    handler.IndexTaskQueue
	)
	if cfg.Kafka.Brokers != "" {
		producer = kafka.InitProducer(cfg.Kafka)
		queue = producer
		processor := pipeline.NewProcessor(indexerService, reindexService)
		consumer := kafka.NewConsumer(cfg.Kafka, processor, attempts)
		go func() {
			defer close(consumerDone)
			if err := consumer.Run(consumerCtx); err != nil {
				log.Errorf("Kafka 消费者异常退出: %v", err)
			}
		}()
	} else {
		log.Warnf("未配置 Kafka broker，异步索引已禁用")
		close(consumerDone)
	}

	// 7. 设置 Gin 模式并注册路由
	gin.SetMode(cfg.Server.Mode)
	r := handler.NewRouter(
		jwtManager,
		handler.NewSearchHandler(searchService),
		handler.NewDocumentHandler(documentService, indexerService, reindexService, queue),
	)

	// 启动 HTTP 服务器并实现优雅停机
	srv := &http.Server{
		Addr:    fmt.Sprintf(":%s", cfg.Server.Port),
		Handler: r,
	}

	go func() {
		log.Infof("服务启动于 %s", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("HTTP 服务监听失败: %s\n", err)
		}
	}()

	// 等待中断信号以实现优雅停机
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Info("接收到停机信号，正在关闭服务...")

	// 设置一个5秒的超时上下文
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	// 关闭 HTTP 服务器
	if err := srv.Shutdown(ctx); err != nil {
		log.Errorf("HTTP 服务器关闭失败: %v", err)
	}

	// 停止消费者；正在处理的任务结束后 Run 才会返回
	stopConsumer()
	select {
	case <-consumerDone:
	case <-ctx.Done():
		log.Warnf("等待 Kafka 消费者退出超时")
	}
	if producer != nil {
		if err := producer.Close(); err != nil {
			log.Errorf("关闭 Kafka 生产者失败: %v", err)
		}
	}
	log.Info("服务已优雅关闭")
}
