package model

// SearchMode 决定检索使用语义、关键词还是两者融合。
type SearchMode string

const (
	SearchModeSemantic SearchMode = "semantic"
	SearchModeKeyword  SearchMode = "keyword"
	SearchModeHybrid   SearchMode = "hybrid"
)

// ParseSearchMode 将请求参数解析为 SearchMode，未知或空值回退为 hybrid。
func ParseSearchMode(s string) SearchMode {
	switch m := SearchMode(s); m {
	case SearchModeSemantic, SearchModeKeyword, SearchModeHybrid:
		return m
	default:
		return SearchModeHybrid
	}
}

// SearchOptions 是一次检索的可选参数。零值字段使用配置中的默认值。
type SearchOptions struct {
	Limit int
	// Threshold 为 nil 时使用默认相似度阈值；显式给出的 0 表示不过滤。
	Threshold *float64
	Mode      SearchMode
	Filter    DocumentFilter
}

// SearchResult 定义了返回给前端的检索结果，每次请求实时计算，不做缓存。
type SearchResult struct {
	ID         uint      `json:"id"`
	Name       string    `json:"name"`
	Content    string    `json:"content"`
	Summary    *string   `json:"summary"`
	Category   *string   `json:"category"`
	Similarity float64   `json:"similarity"`
	CreatedAt  LocalTime `json:"createdAt"`
}

// NewSearchResult 由文档与得分构造检索结果。
func NewSearchResult(doc *Document, score float64) SearchResult {
	return SearchResult{
		ID:         doc.ID,
		Name:       doc.Name,
		Content:    doc.Content,
		Summary:    doc.Summary,
		Category:   doc.Category,
		Similarity: score,
		CreatedAt:  LocalTime(doc.CreatedAt),
	}
}
