package model

import (
	"time"

	"gorm.io/datatypes"
)

// DocumentChunk 对应于数据库中的 document_chunks 表。
// 同一文档的分块集合总是在一个事务内整体替换，ChunkIndex 从 0 开始连续。
// StartOffset/EndOffset 是分块在原文中的字符（rune）偏移，EndOffset 不包含。
type DocumentChunk struct {
	ID          uint           `gorm:"primaryKey;autoIncrement" json:"id"`
	DocumentID  uint           `gorm:"not null;index" json:"documentId"`
	ChunkIndex  int            `gorm:"not null" json:"chunkIndex"`
	Content     string         `gorm:"type:longtext" json:"content"`
	Embedding   datatypes.JSON `json:"-"`
	StartOffset int            `gorm:"not null" json:"startOffset"`
	EndOffset   int            `gorm:"not null" json:"endOffset"`
	TokenCount  int            `gorm:"not null" json:"tokenCount"`
	CreatedAt   time.Time      `gorm:"autoCreateTime" json:"createdAt"`
}

func (DocumentChunk) TableName() string {
	return "document_chunks"
}
