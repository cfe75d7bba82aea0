// Package config 负责加载和管理应用程序的配置。
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// 全局配置变量，存储从配置文件加载的所有设置。
var Conf Config

// Config 是整个应用程序的配置结构体，与 config.yaml 文件结构对应。
type Config struct {
	Server        ServerConfig        `mapstructure:"server"`
	Database      DatabaseConfig      `mapstructure:"database"`
	JWT           JWTConfig           `mapstructure:"jwt"`
	Log           LogConfig           `mapstructure:"log"`
	Kafka         KafkaConfig         `mapstructure:"kafka"`
	Elasticsearch ElasticsearchConfig `mapstructure:"elasticsearch"`
	Embedding     EmbeddingConfig     `mapstructure:"embedding"`
	Retrieval     RetrievalConfig     `mapstructure:"retrieval"`
}

// ServerConfig 存储服务器相关的配置。
type ServerConfig struct {
	Port string `mapstructure:"port"`
	Mode string `mapstructure:"mode"`
}

// DatabaseConfig 存储所有数据库连接的配置。
type DatabaseConfig struct {
	MySQL MySQLConfig `mapstructure:"mysql"`
	Redis RedisConfig `mapstructure:"redis"`
}

// MySQLConfig 存储 MySQL 数据库的配置。
type MySQLConfig struct {
	DSN string `mapstructure:"dsn"`
}

// RedisConfig 存储 Redis 的配置。Addr 为空时不启用文档级索引锁。
type RedisConfig struct {
	Addr     string `mapstructure:"addr"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

// JWTConfig 存储 JWT 相关的配置。
type JWTConfig struct {
	Secret                 string `mapstructure:"secret"`
	AccessTokenExpireHours int    `mapstructure:"access_token_expire_hours"`
}

// LogConfig 存储日志相关的配置。
type LogConfig struct {
	Level      string `mapstructure:"level"`
	Format     string `mapstructure:"format"`
	OutputPath string `mapstructure:"output_path"`
}

// KafkaConfig 存储索引任务队列的配置。Brokers 为空时异步索引接口不可用。
type KafkaConfig struct {
	Brokers string `mapstructure:"brokers"`
	Topic   string `mapstructure:"topic"`
	GroupID string `mapstructure:"group_id"`
}

// ElasticsearchConfig 存储分块镜像索引的配置。Addresses 为空时不启用镜像。
type ElasticsearchConfig struct {
	Addresses string `mapstructure:"addresses"`
	Username  string `mapstructure:"username"`
	Password  string `mapstructure:"password"`
	IndexName string `mapstructure:"index_name"`
}

// EmbeddingConfig 存储 Embedding 模型相关的配置。
type EmbeddingConfig struct {
	APIKey               string        `mapstructure:"api_key"`
	BaseURL              string        `mapstructure:"base_url"`
	Model                string        `mapstructure:"model"`
	Dimensions           int           `mapstructure:"dimensions"`
	BatchSize            int           `mapstructure:"batch_size"`
	MaxConcurrentBatches int           `mapstructure:"max_concurrent_batches"`
	Timeout              time.Duration `mapstructure:"timeout"`
}

// RetrievalConfig 存储分块、检索排序与批量重建索引的调优参数。
type RetrievalConfig struct {
	MaxTokensPerChunk   int           `mapstructure:"max_tokens_per_chunk"`
	CharsPerToken       int           `mapstructure:"chars_per_token"`
	SimilarityThreshold float64       `mapstructure:"similarity_threshold"`
	DefaultLimit        int           `mapstructure:"default_limit"`
	KeywordScore        float64       `mapstructure:"keyword_score"`
	SemanticBoost       float64       `mapstructure:"semantic_boost"`
	KeywordBonus        float64       `mapstructure:"keyword_bonus"`
	ScoreCap            float64       `mapstructure:"score_cap"`
	ReindexConcurrency  int           `mapstructure:"reindex_concurrency"`
	SessionLogTimeout   time.Duration `mapstructure:"session_log_timeout"`
	IndexLockTTL        time.Duration `mapstructure:"index_lock_ttl"`
}

// DefaultRetrievalConfig 返回检索核心的默认调优参数。
func DefaultRetrievalConfig() RetrievalConfig {
	return RetrievalConfig{
		MaxTokensPerChunk:   8000,
		CharsPerToken:       4,
		SimilarityThreshold: 0.6,
		DefaultLimit:        20,
		KeywordScore:        0.8,
		SemanticBoost:       1.2,
		KeywordBonus:        0.2,
		ScoreCap:            1.0,
		ReindexConcurrency:  4,
		SessionLogTimeout:   5 * time.Second,
		IndexLockTTL:        5 * time.Minute,
	}
}

func setDefaults(v *viper.Viper) {
	r := DefaultRetrievalConfig()
	v.SetDefault("server.port", "8081")
	v.SetDefault("server.mode", "release")
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")
	v.SetDefault("jwt.access_token_expire_hours", 24)
	v.SetDefault("kafka.topic", "document-index")
	v.SetDefault("kafka.group_id", "ai-kms-indexer")
	v.SetDefault("elasticsearch.index_name", "document_chunks")
	// 没有默认值的键不会被 AutomaticEnv 覆盖，这里显式登记
	v.SetDefault("database.mysql.dsn", "")
	v.SetDefault("database.redis.addr", "")
	v.SetDefault("jwt.secret", "")
	v.SetDefault("embedding.api_key", "")
	v.SetDefault("embedding.base_url", "https://api.openai.com/v1")
	v.SetDefault("embedding.model", "text-embedding-3-small")
	v.SetDefault("embedding.batch_size", 100)
	v.SetDefault("embedding.max_concurrent_batches", 1)
	v.SetDefault("embedding.timeout", 60*time.Second)
	v.SetDefault("retrieval.max_tokens_per_chunk", r.MaxTokensPerChunk)
	v.SetDefault("retrieval.chars_per_token", r.CharsPerToken)
	v.SetDefault("retrieval.similarity_threshold", r.SimilarityThreshold)
	v.SetDefault("retrieval.default_limit", r.DefaultLimit)
	v.SetDefault("retrieval.keyword_score", r.KeywordScore)
	v.SetDefault("retrieval.semantic_boost", r.SemanticBoost)
	v.SetDefault("retrieval.keyword_bonus", r.KeywordBonus)
	v.SetDefault("retrieval.score_cap", r.ScoreCap)
	v.SetDefault("retrieval.reindex_concurrency", r.ReindexConcurrency)
	v.SetDefault("retrieval.session_log_timeout", r.SessionLogTimeout)
	v.SetDefault("retrieval.index_lock_ttl", r.IndexLockTTL)
}

// Load 从指定路径读取 YAML 配置，叠加默认值与 KMS_ 前缀的环境变量。
// 例如 KMS_EMBEDDING_MODEL 覆盖 embedding.model。
func Load(configPath string) (Config, error) {
	v := viper.New()
	setDefaults(v)
	v.SetEnvPrefix("KMS")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	v.SetConfigFile(configPath)
	v.SetConfigType("yaml")
	if err := v.ReadInConfig(); err != nil {
		return Config{}, fmt.Errorf("读取配置文件失败: %w", err)
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("无法将配置解析到结构体中: %w", err)
	}
	return cfg, nil
}

// Init 初始化配置加载，从指定的路径读取 YAML 文件并解析到 Conf 变量中。
func Init(configPath string) {
	cfg, err := Load(configPath)
	if err != nil {
		panic(err)
	}
	Conf = cfg
}
