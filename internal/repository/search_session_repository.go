package repository

import (
	"context"

	"ai-kms-go/internal/model"

	"gorm.io/gorm"
)

// SearchSessionRepository 定义了检索会话审计记录的写入与查询。
type SearchSessionRepository interface {
	Create(ctx context.Context, session *model.SearchSession) error
	FindByUser(ctx context.Context, userID uint) ([]model.SearchSession, error)
}

type searchSessionRepository struct {
	db *gorm.DB
}

// NewSearchSessionRepository 创建一个新的 SearchSessionRepository 实例。
func NewSearchSessionRepository(db *gorm.DB) SearchSessionRepository {
	return &searchSessionRepository{db: db}
}

func (r *searchSessionRepository) Create(ctx context.Context, session *model.SearchSession) error {
	return r.db.WithContext(ctx).Create(session).Error
}

// FindByUser 按时间顺序返回用户的检索会话。
func (r *searchSessionRepository) FindByUser(ctx context.Context, userID uint) ([]model.SearchSession, error) {
	var sessions []model.SearchSession
	err := r.db.WithContext(ctx).Where("user_id = ?", userID).Order("id").Find(&sessions).Error
	return sessions, err
}
