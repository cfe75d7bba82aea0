package service

import (
	"context"
	"errors"
	"sort"
	"strings"
	"unicode"
	"unicode/utf8"

	"ai-kms-go/internal/config"
	"ai-kms-go/internal/model"
	"ai-kms-go/internal/repository"
	"ai-kms-go/pkg/embedding"
	"ai-kms-go/pkg/log"
	"ai-kms-go/pkg/vector"

	"golang.org/x/sync/errgroup"
)

// SearchService 接口定义了检索操作。
type SearchService interface {
	// Search 在用户的文档中检索。任何内部错误都只记录日志，结果可能为空但不会返回错误。
	Search(ctx context.Context, query string, userID uint, opts model.SearchOptions) []model.SearchResult
}

type searchService struct {
	docRepo  repository.DocumentRepository
	embedder embedding.Client
	sessions SessionService
	cfg      config.RetrievalConfig
}

// NewSearchService 创建一个新的 SearchService 实例。sessions 为 nil 时不记录检索会话。
func NewSearchService(docRepo repository.DocumentRepository, embedder embedding.Client, sessions SessionService, cfg config.RetrievalConfig) SearchService {
	return &searchService{
		docRepo:  docRepo,
		embedder: embedder,
		sessions: sessions,
		cfg:      cfg,
	}
}

type scoredDocument struct {
	doc   model.Document
	score float64
}

func (s *searchService) Search(ctx context.Context, query string, userID uint, opts model.SearchOptions) []model.SearchResult {
	query = strings.TrimSpace(query)
	mode := model.ParseSearchMode(string(opts.Mode))
	limit := opts.Limit
	if limit <= 0 {
		limit = s.cfg.DefaultLimit
	}
	threshold := s.cfg.SimilarityThreshold
	if opts.Threshold != nil {
		threshold = *opts.Threshold
	}
	results := []model.SearchResult{}
	if query == "" {
		if s.sessions != nil {
			go s.sessions.TryLogSession(userID, query, mode, nil, 0)
		}
		return results
	}
	log.Infof("[SearchService] 开始检索, query: '%s', mode: %s, limit: %d, userID: %d", query, mode, limit, userID)

	var (
		scored   []scoredDocument
		queryVec []float32
	)
	switch mode {
	case model.SearchModeSemantic:
		scored, queryVec = s.semanticSearch(ctx, query, userID, opts.Filter, threshold, limit)
	case model.SearchModeKeyword:
		scored = s.keywordSearch(ctx, query, userID, opts.Filter, limit)
	default:
		scored, queryVec = s.hybridSearch(ctx, query, userID, opts.Filter, threshold, limit)
	}

	for i := range scored {
		results = append(results, model.NewSearchResult(&scored[i].doc, scored[i].score))
	}
	log.Infof("[SearchService] 检索完成, mode: %s, 结果数: %d", mode, len(results))

	if s.sessions != nil {
		go s.sessions.TryLogSession(userID, query, mode, queryVec, len(results))
	}
	return results
}

// semanticSearch 对用户全部已嵌入文档做全量余弦相似度扫描。单个文档的向量异常只跳过该文档。
func (s *searchService) semanticSearch(ctx context.Context, query string, userID uint, filter model.DocumentFilter, threshold float64, limit int) ([]scoredDocument, []float32) {
	queryVec, err := s.embedder.Embed(ctx, query)
	if err != nil {
		log.Errorf("[SearchService] 向量化查询失败: %v", err)
		return nil, nil
	}
	if len(queryVec) == 0 {
		log.Warnf("[SearchService] 查询向量为空，语义检索返回空结果")
		return nil, nil
	}

	docs, err := s.docRepo.FindEmbeddedByUser(ctx, userID, filter)
	if err != nil {
		log.Errorf("[SearchService] 读取候选文档失败: %v", err)
		return nil, queryVec
	}

	scored := make([]scoredDocument, 0, len(docs))
	for _, doc := range docs {
		docVec, err := vector.Parse(doc.Embedding)
		if err != nil {
			log.Warnw("[SearchService] 跳过向量无法解析的文档", "documentID", doc.ID, "error", err)
			continue
		}
		sim, err := vector.CosineSimilarity(queryVec, docVec)
		if errors.Is(err, vector.ErrDimensionMismatch) {
			log.Errorf("[SearchService] 文档向量维度与查询不一致，可能由不同模型生成, documentID: %d, error: %v", doc.ID, err)
			continue
		}
		if err != nil {
			log.Errorf("[SearchService] 计算相似度失败, documentID: %d, error: %v", doc.ID, err)
			continue
		}
		if sim >= threshold {
			scored = append(scored, scoredDocument{doc: doc, score: sim})
		}
	}

	sort.SliceStable(scored, func(i, j int) bool { return scored[i].score > scored[j].score })
	if len(scored) > limit {
		scored = scored[:limit]
	}
	log.Infof("[SearchService] 语义检索扫描 %d 个文档, 命中 %d 个", len(docs), len(scored))
	return scored, queryVec
}

// keywordSearch 按创建时间倒序返回任一关键词出现在名称、正文、摘要或标签中的文档。
func (s *searchService) keywordSearch(ctx context.Context, query string, userID uint, filter model.DocumentFilter, limit int) []scoredDocument {
	terms := keywordTerms(query)
	if len(terms) == 0 {
		log.Infof("[SearchService] 查询中没有长度大于 2 的关键词, query: '%s'", query)
		return nil
	}

	docs, err := s.docRepo.FindByUser(ctx, userID, filter)
	if err != nil {
		log.Errorf("[SearchService] 读取候选文档失败: %v", err)
		return nil
	}

	var scored []scoredDocument
	for _, doc := range docs {
		if len(scored) >= limit {
			break
		}
		if matchesAnyTerm(&doc, terms) {
			scored = append(scored, scoredDocument{doc: doc, score: s.cfg.KeywordScore})
		}
	}
	return scored
}

// hybridSearch 并发执行语义与关键词检索，各取 ceil(limit/2) 条后按文档合并打分。
func (s *searchService) hybridSearch(ctx context.Context, query string, userID uint, filter model.DocumentFilter, threshold float64, limit int) ([]scoredDocument, []float32) {
	half := (limit + 1) / 2

	var (
		g        errgroup.Group
		semantic []scoredDocument
		keyword  []scoredDocument
		queryVec []float32
	)
	g.Go(func() error {
		semantic, queryVec = s.semanticSearch(ctx, query, userID, filter, threshold, half)
		return nil
	})
	g.Go(func() error {
		keyword = s.keywordSearch(ctx, query, userID, filter, half)
		return nil
	})
	_ = g.Wait()

	merged := make([]scoredDocument, 0, len(semantic)+len(keyword))
	position := make(map[uint]int, len(semantic))
	for _, r := range semantic {
		r.score *= s.cfg.SemanticBoost
		position[r.doc.ID] = len(merged)
		merged = append(merged, r)
	}
	for _, r := range keyword {
		if i, ok := position[r.doc.ID]; ok {
			merged[i].score = min(s.cfg.ScoreCap, merged[i].score+s.cfg.KeywordBonus)
			continue
		}
		merged = append(merged, r)
	}

	sort.SliceStable(merged, func(i, j int) bool { return merged[i].score > merged[j].score })
	if len(merged) > limit {
		merged = merged[:limit]
	}
	return merged, queryVec
}

// keywordTerms 按空白切分小写查询，去掉词首尾的标点，保留长度大于 2 的去重词项。
// 词内的标点与符号保留，如 "node.js"、"e-mail"、"c++"。
func keywordTerms(query string) []string {
	fields := strings.Fields(strings.ToLower(query))
	seen := make(map[string]struct{}, len(fields))
	terms := make([]string, 0, len(fields))
	for _, f := range fields {
		f = strings.TrimFunc(f, unicode.IsPunct)
		if utf8.RuneCountInString(f) <= 2 {
			continue
		}
		if _, ok := seen[f]; ok {
			continue
		}
		seen[f] = struct{}{}
		terms = append(terms, f)
	}
	return terms
}

func matchesAnyTerm(doc *model.Document, terms []string) bool {
	fields := []string{doc.Name, doc.Content, deref(doc.Summary)}
	fields = append(fields, doc.Tags...)
	for i := range fields {
		fields[i] = strings.ToLower(fields[i])
	}
	for _, term := range terms {
		for _, f := range fields {
			if strings.Contains(f, term) {
				return true
			}
		}
	}
	return false
}
