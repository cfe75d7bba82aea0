// Package kafka 提供了与 Kafka 消息队列交互的功能。
package kafka

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"ai-kms-go/internal/config"
	"ai-kms-go/pkg/log"
	"ai-kms-go/pkg/tasks"

	"github.com/go-redis/redis/v8"
	"github.com/segmentio/kafka-go"
)

const (
	maxAttempts    = 3
	attemptsTTL    = 24 * time.Hour
	attemptsPrefix = "kms:index-attempts:"
)

// TaskProcessor defines the interface for any service that can process a task.
// This decouples the Kafka consumer from the concrete pipeline implementation.
type TaskProcessor interface {
	Process(ctx context.Context, task tasks.IndexTask) error
}

// AttemptCounter 记录任务失败次数，用于决定何时放弃重试。
type AttemptCounter interface {
	Incr(ctx context.Context, key string) (int64, error)
	Reset(ctx context.Context, key string) error
}

type redisAttemptCounter struct {
	rdb *redis.Client
}

// NewRedisAttemptCounter 创建基于 Redis INCR 的失败计数器，计数保留 24 小时。
func NewRedisAttemptCounter(rdb *redis.Client) AttemptCounter {
	return &redisAttemptCounter{rdb: rdb}
}

func (c *redisAttemptCounter) Incr(ctx context.Context, key string) (int64, error) {
	attempts, err := c.rdb.Incr(ctx, attemptsPrefix+key).Result()
	if err != nil {
		return 0, err
	}
	_ = c.rdb.Expire(ctx, attemptsPrefix+key, attemptsTTL).Err()
	return attempts, nil
}

func (c *redisAttemptCounter) Reset(ctx context.Context, key string) error {
	return c.rdb.Del(ctx, attemptsPrefix+key).Err()
}

func splitBrokers(brokers string) []string {
	var out []string
	for _, b := range strings.Split(brokers, ",") {
		if b = strings.TrimSpace(b); b != "" {
			out = append(out, b)
		}
	}
	return out
}

type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// Producer 将索引任务写入 Kafka。
type Producer struct {
	writer messageWriter
}

// InitProducer 初始化 Kafka 生产者。同一任务键总是写入同一分区。
func InitProducer(cfg config.KafkaConfig) *Producer {
	p := &Producer{writer: &kafka.Writer{
		Addr:     kafka.TCP(splitBrokers(cfg.Brokers)...),
		Topic:    cfg.Topic,
		Balancer: &kafka.Hash{},
	}}
	log.Info("Kafka 生产者初始化成功")
	return p
}

// ProduceIndexTask 发送一个索引任务到 Kafka。
func (p *Producer) ProduceIndexTask(ctx context.Context, task tasks.IndexTask) error {
	if task.RequestedAt.IsZero() {
		task.RequestedAt = time.Now()
	}
	taskBytes, err := json.Marshal(task)
	if err != nil {
		return err
	}
	return p.writer.WriteMessages(ctx, kafka.Message{
		Key:   []byte(task.Key()),
		Value: taskBytes,
	})
}

func (p *Producer) Close() error {
	return p.writer.Close()
}

type messageReader interface {
	FetchMessage(ctx context.Context) (kafka.Message, error)
	CommitMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// Consumer 消费索引任务。成功后提交 offset；失败时按递增间隔重试，
// 同一任务累计失败 3 次后提交 offset 放弃该任务。
type Consumer struct {
	reader       messageReader
	processor    TaskProcessor
	attempts     AttemptCounter
	retryBackoff time.Duration
}

// NewConsumer 创建一个 Kafka 消费者。attempts 为 nil 时失败的任务直接提交，不做重试。
func NewConsumer(cfg config.KafkaConfig, processor TaskProcessor, attempts AttemptCounter) *Consumer {
	r := kafka.NewReader(kafka.ReaderConfig{
		Brokers:  splitBrokers(cfg.Brokers),
		Topic:    cfg.Topic,
		GroupID:  cfg.GroupID,
		MinBytes: 1,
		MaxBytes: 10e6, // 10MB
	})
	return &Consumer{reader: r, processor: processor, attempts: attempts, retryBackoff: 2 * time.Second}
}

// Run 循环消费直到 ctx 被取消或读取失败。
func (c *Consumer) Run(ctx context.Context) error {
	log.Infof("[Kafka] 消费者已启动")
	defer func() {
		if err := c.reader.Close(); err != nil {
			log.Errorf("[Kafka] 关闭消费者失败: %v", err)
		}
	}()

	for {
		m, err := c.reader.FetchMessage(ctx)
		if err != nil {
			if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
				log.Info("[Kafka] 消费者已停止")
				return nil
			}
			log.Error("[Kafka] 从 Kafka 读取消息失败", err)
			return fmt.Errorf("fetch message: %w", err)
		}
		c.handle(ctx, m)
	}
}

func (c *Consumer) handle(ctx context.Context, m kafka.Message) {
	log.Infof("[Kafka] 收到 Kafka 消息: partition %d, offset %d", m.Partition, m.Offset)

	var task tasks.IndexTask
	if err := json.Unmarshal(m.Value, &task); err != nil {
		log.Errorf("[Kafka] 无法解析 Kafka 消息: %v, value: %s", err, string(m.Value))
		// 消息格式错误，直接提交，避免阻塞队列
		c.commit(ctx, m)
		return
	}

	key := task.Key()
	// Redis 不可用时退回到本次处理内的计数，仍然最多重试 maxAttempts 次
	var localAttempts int64
	for {
		err := c.processor.Process(ctx, task)
		if err == nil {
			log.Infof("[Kafka] 索引任务处理成功: %s", key)
			if c.attempts != nil {
				_ = c.attempts.Reset(ctx, key)
			}
			c.commit(ctx, m)
			return
		}
		log.Errorf("[Kafka] 处理索引任务失败: %s, error: %v", key, err)
		if c.attempts == nil {
			c.commit(ctx, m)
			return
		}

		// 计数保存在 Redis 中，消费者重启后重投的消息也会累计
		localAttempts++
		attempts, incErr := c.attempts.Incr(ctx, key)
		if incErr != nil {
			log.Warnf("[Kafka] 记录失败次数出错，使用本地计数: %v", incErr)
			attempts = localAttempts
		} else if attempts < localAttempts {
			attempts = localAttempts
		}
		if attempts >= maxAttempts {
			log.Errorf("[Kafka] 索引任务多次失败(>=%d)，提交 offset 终止重试: %s", maxAttempts, key)
			c.commit(ctx, m)
			return
		}

		select {
		case <-ctx.Done():
			return
		case <-time.After(time.Duration(attempts) * c.retryBackoff):
		}
	}
}

func (c *Consumer) commit(ctx context.Context, m kafka.Message) {
	if err := c.reader.CommitMessages(ctx, m); err != nil {
		log.Errorf("[Kafka] 提交 Kafka 消息 offset 失败: %v", err)
	}
}
