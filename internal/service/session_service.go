package service

import (
	"context"
	"strings"
	"time"

	"ai-kms-go/internal/model"
	"ai-kms-go/internal/repository"
	"ai-kms-go/pkg/embedding"
	"ai-kms-go/pkg/log"
	"ai-kms-go/pkg/vector"
)

// SessionService 以尽力而为的方式记录检索会话。
type SessionService interface {
	// TryLogSession 写入一条检索会话记录。它不返回错误也不会向外 panic，
	// 使用独立于请求的超时上下文；queryVector 为空时会尝试自行生成查询向量。
	TryLogSession(userID uint, query string, mode model.SearchMode, queryVector []float32, resultsCount int)
}

type sessionService struct {
	repo     repository.SearchSessionRepository
	embedder embedding.Client
	timeout  time.Duration
}

// NewSessionService 创建一个新的 SessionService 实例。
func NewSessionService(repo repository.SearchSessionRepository, embedder embedding.Client, timeout time.Duration) SessionService {
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &sessionService{repo: repo, embedder: embedder, timeout: timeout}
}

func (s *sessionService) TryLogSession(userID uint, query string, mode model.SearchMode, queryVector []float32, resultsCount int) {
	defer func() {
		if r := recover(); r != nil {
			log.Errorf("[SessionService] 记录检索会话时发生 panic: %v", r)
		}
	}()

	ctx, cancel := context.WithTimeout(context.Background(), s.timeout)
	defer cancel()

	// 空查询不调用嵌入服务，向量记录为 NULL
	if len(queryVector) == 0 && s.embedder != nil && strings.TrimSpace(query) != "" {
		v, err := s.embedder.Embed(ctx, query)
		if err != nil {
			log.Warnf("[SessionService] 生成查询向量失败，会话将不带向量记录: %v", err)
		} else {
			queryVector = v
		}
	}

	session := &model.SearchSession{
		UserID:       userID,
		Query:        query,
		SearchMode:   string(mode),
		ResultsCount: resultsCount,
	}
	if len(queryVector) > 0 {
		if data, err := vector.Marshal(queryVector); err == nil {
			session.QueryEmbedding = data
		}
	}

	if err := s.repo.Create(ctx, session); err != nil {
		log.Warnf("[SessionService] 写入检索会话失败, userID: %d, error: %v", userID, err)
	}
}
