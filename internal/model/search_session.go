package model

import (
	"time"

	"gorm.io/datatypes"
)

// SearchSession 记录一次检索请求，仅追加写入，用于审计与分析。
type SearchSession struct {
	ID             uint           `gorm:"primaryKey;autoIncrement" json:"id"`
	UserID         uint           `gorm:"index;not null" json:"userId"`
	Query          string         `gorm:"type:text;not null" json:"query"`
	SearchMode     string         `gorm:"type:varchar(20);not null" json:"searchMode"`
	QueryEmbedding datatypes.JSON `json:"-"`
	ResultsCount   int            `gorm:"not null" json:"resultsCount"`
	CreatedAt      time.Time      `gorm:"autoCreateTime" json:"createdAt"`
}

func (SearchSession) TableName() string {
	return "search_sessions"
}
