// Package es 提供了与 Elasticsearch 交互的客户端功能，用于维护文档分块的镜像索引。
package es

import (
	"bytes"
	"context"
	"crypto/tls"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"ai-kms-go/internal/config"
	"ai-kms-go/internal/model"
	"ai-kms-go/pkg/log"

	"github.com/elastic/go-elasticsearch/v8"
	"github.com/elastic/go-elasticsearch/v8/esapi"
)

// ChunkMirror 将每个文档最新的分块集合同步到 Elasticsearch，供下游检索系统使用。
type ChunkMirror struct {
	client    *elasticsearch.Client
	indexName string
}

// NewChunkMirror 初始化 Elasticsearch 客户端并确保镜像索引存在。dims 为 0 时由 ES 根据首个文档推断向量维度。
func NewChunkMirror(esCfg config.ElasticsearchConfig, dims int) (*ChunkMirror, error) {
	cfg := elasticsearch.Config{
		Addresses: strings.Split(esCfg.Addresses, ","),
		Username:  esCfg.Username,
		Password:  esCfg.Password,
		Transport: &http.Transport{
			TLSClientConfig: &tls.Config{InsecureSkipVerify: true},
		},
	}
	client, err := elasticsearch.NewClient(cfg)
	if err != nil {
		return nil, err
	}
	m := &ChunkMirror{client: client, indexName: esCfg.IndexName}
	if err := m.createIndexIfNotExists(dims); err != nil {
		return nil, err
	}
	return m, nil
}

func indexMapping(dims int) string {
	vectorField := map[string]interface{}{
		"type":       "dense_vector",
		"index":      true,
		"similarity": "cosine",
	}
	if dims > 0 {
		vectorField["dims"] = dims
	}
	mapping := map[string]interface{}{
		"mappings": map[string]interface{}{
			"properties": map[string]interface{}{
				"chunk_id":    map[string]string{"type": "keyword"},
				"document_id": map[string]string{"type": "long"},
				"chunk_index": map[string]string{"type": "integer"},
				"content":     map[string]string{"type": "text"},
				"vector":      vectorField,
				"model":       map[string]string{"type": "keyword"},
				"user_id":     map[string]string{"type": "long"},
			},
		},
	}
	b, _ := json.Marshal(mapping)
	return string(b)
}

// createIndexIfNotExists 检查索引是否存在，如果不存在则创建它
func (m *ChunkMirror) createIndexIfNotExists(dims int) error {
	res, err := m.client.Indices.Exists([]string{m.indexName})
	if err != nil {
		log.Errorf("[ES] 检查索引是否存在时出错: %v", err)
		return err
	}
	res.Body.Close()
	if res.StatusCode == http.StatusOK {
		log.Infof("[ES] 索引 '%s' 已存在", m.indexName)
		return nil
	}
	if res.StatusCode != http.StatusNotFound {
		return fmt.Errorf("检查索引是否存在时收到意外的状态码: %d", res.StatusCode)
	}

	res, err = m.client.Indices.Create(
		m.indexName,
		m.client.Indices.Create.WithBody(strings.NewReader(indexMapping(dims))),
	)
	if err != nil {
		log.Errorf("[ES] 创建索引 '%s' 失败: %v", m.indexName, err)
		return err
	}
	defer res.Body.Close()
	if res.IsError() {
		log.Errorf("[ES] 创建索引 '%s' 时 Elasticsearch 返回错误: %s", m.indexName, res.String())
		return errors.New("创建索引时 Elasticsearch 返回错误")
	}

	log.Infof("[ES] 索引 '%s' 创建成功", m.indexName)
	return nil
}

// ReplaceChunks 删除文档在镜像中的旧分块，再批量写入新分块。
func (m *ChunkMirror) ReplaceChunks(ctx context.Context, documentID uint, chunks []model.ChunkMirrorDocument) error {
	query, err := json.Marshal(map[string]interface{}{
		"query": map[string]interface{}{
			"term": map[string]interface{}{"document_id": documentID},
		},
	})
	if err != nil {
		return err
	}
	refresh := true
	del := esapi.DeleteByQueryRequest{
		Index:     []string{m.indexName},
		Body:      bytes.NewReader(query),
		Conflicts: "proceed",
		Refresh:   &refresh,
	}
	res, err := del.Do(ctx, m.client)
	if err != nil {
		return fmt.Errorf("delete mirrored chunks of document %d: %w", documentID, err)
	}
	defer res.Body.Close()
	if res.IsError() {
		return fmt.Errorf("delete mirrored chunks of document %d: %s", documentID, res.String())
	}

	if len(chunks) == 0 {
		return nil
	}
	return m.bulkIndex(ctx, chunks)
}

func (m *ChunkMirror) bulkIndex(ctx context.Context, chunks []model.ChunkMirrorDocument) error {
	var body bytes.Buffer
	enc := json.NewEncoder(&body)
	for _, c := range chunks {
		meta := map[string]interface{}{"index": map[string]string{"_id": c.ChunkID}}
		if err := enc.Encode(meta); err != nil {
			return err
		}
		if err := enc.Encode(c); err != nil {
			return err
		}
	}

	req := esapi.BulkRequest{
		Index:   m.indexName,
		Body:    &body,
		Refresh: "true",
	}
	res, err := req.Do(ctx, m.client)
	if err != nil {
		return fmt.Errorf("bulk index chunks: %w", err)
	}
	defer res.Body.Close()
	if res.IsError() {
		return fmt.Errorf("bulk index chunks: %s", res.String())
	}

	var bulkResp struct {
		Errors bool `json:"errors"`
	}
	raw, err := io.ReadAll(res.Body)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(raw, &bulkResp); err != nil {
		return fmt.Errorf("decode bulk response: %w", err)
	}
	if bulkResp.Errors {
		log.Errorf("[ES] 批量写入分块存在失败条目: %s", string(raw))
		return errors.New("bulk index reported item errors")
	}
	return nil
}
