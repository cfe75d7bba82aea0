// Package model 定义了与数据库表对应的 Go 结构体。
package model

import (
	"time"

	"gorm.io/datatypes"
)

// Document 对应于数据库中的 documents 表。
// Embedding、EmbeddingModel、LastEmbeddingUpdate 与 IsInVectorDB 只由索引服务写入；
// IsInVectorDB 为 true 时 Embedding 必定是由 EmbeddingModel 生成的非空向量。
type Document struct {
	ID                  uint                        `gorm:"primaryKey;autoIncrement" json:"id"`
	UserID              uint                        `gorm:"index;not null" json:"userId"`
	Name                string                      `gorm:"type:varchar(255);not null" json:"name"`
	Content             string                      `gorm:"type:longtext" json:"content"`
	Summary             *string                     `gorm:"type:text" json:"summary"`
	Category            *string                     `gorm:"type:varchar(100)" json:"category"`
	AICategory          *string                     `gorm:"type:varchar(100);column:ai_category" json:"aiCategory"`
	Tags                datatypes.JSONSlice[string] `json:"tags"`
	Embedding           datatypes.JSON              `json:"-"`
	EmbeddingModel      *string                     `gorm:"type:varchar(100)" json:"embeddingModel"`
	LastEmbeddingUpdate *time.Time                  `json:"lastEmbeddingUpdate"`
	IsInVectorDB        bool                        `gorm:"not null;default:false;column:is_in_vector_db" json:"isInVectorDb"`
	CreatedAt           time.Time                   `gorm:"autoCreateTime;index" json:"createdAt"`
	UpdatedAt           time.Time                   `gorm:"autoUpdateTime" json:"updatedAt"`
}

// TableName 指定了此模型在数据库中对应的表名。
func (Document) TableName() string {
	return "documents"
}

// DocumentFilter 描述检索时对文档集合的过滤条件。零值字段表示不过滤。
type DocumentFilter struct {
	// Category 同时匹配 category 与 ai_category。
	Category string
	DateFrom time.Time
	DateTo   time.Time
}
