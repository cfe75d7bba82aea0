package database

import (
	"context"
	"time"

	"ai-kms-go/internal/config"
	"ai-kms-go/pkg/log"

	"github.com/go-redis/redis/v8"
)

// RDB 在未配置 Redis 地址时为 nil，此时文档索引锁与任务重试计数都不启用。
var RDB *redis.Client

// InitRedis 初始化 Redis 客户端连接
func InitRedis(cfg config.RedisConfig) {
	if cfg.Addr == "" {
		log.Warnf("[Redis] 未配置 Redis 地址，文档索引锁与任务重试计数已禁用")
		return
	}
	RDB = redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	// 测试连接
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := RDB.Ping(ctx).Err(); err != nil {
		log.Fatal("failed to connect to redis", err)
	}

	log.Info("Redis client connected successfully")
}
