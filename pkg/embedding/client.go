// Package embedding provides a client for interacting with embedding models.
package embedding

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"ai-kms-go/internal/config"
	"ai-kms-go/pkg/log"

	"golang.org/x/sync/errgroup"
)

const (
	defaultBatchSize = 100
	defaultTimeout   = 60 * time.Second
)

// ErrEmptyEmbedding is wrapped in a ProviderError when the provider answers without a vector.
var ErrEmptyEmbedding = errors.New("received empty embedding from api")

// ProviderError reports a failed or malformed call to the embedding provider.
type ProviderError struct {
	Op  string
	Err error
}

func (e *ProviderError) Error() string {
	return fmt.Sprintf("embedding provider: %s: %v", e.Op, e.Err)
}

func (e *ProviderError) Unwrap() error { return e.Err }

// Client defines the interface for an embedding client.
type Client interface {
	// Embed trims text and returns its vector from a single remote call.
	Embed(ctx context.Context, text string) ([]float32, error)
	// EmbedBatch returns one vector per input, index-aligned. Any failed batch fails the whole call.
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)
	// Model is the identifier persisted alongside generated vectors.
	Model() string
}

type openAICompatibleClient struct {
	cfg    config.EmbeddingConfig
	client *http.Client
}

// NewClient creates a new embedding client for an OpenAI-compatible /embeddings endpoint.
func NewClient(cfg config.EmbeddingConfig) Client {
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = defaultBatchSize
	}
	if cfg.MaxConcurrentBatches <= 0 {
		cfg.MaxConcurrentBatches = 1
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = defaultTimeout
	}
	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	return &openAICompatibleClient{
		cfg:    cfg,
		client: &http.Client{Timeout: cfg.Timeout},
	}
}

type embeddingRequest struct {
	Model      string   `json:"model"`
	Input      []string `json:"input"`
	Dimensions int      `json:"dimensions,omitempty"`
}

type embeddingResponse struct {
	Data []struct {
		Embedding []float32 `json:"embedding"`
		Index     int       `json:"index"`
	} `json:"data"`
	Error *struct {
		Message string `json:"message"`
	} `json:"error,omitempty"`
}

func (c *openAICompatibleClient) Model() string {
	return c.cfg.Model
}

// Embed calls the API to get the vector for a given text.
func (c *openAICompatibleClient) Embed(ctx context.Context, text string) ([]float32, error) {
	vectors, err := c.call(ctx, []string{strings.TrimSpace(text)})
	if err != nil {
		return nil, err
	}
	log.Debugf("[EmbeddingClient] 成功获取向量, 维度: %d", len(vectors[0]))
	return vectors[0], nil
}

// EmbedBatch splits texts into provider-sized batches and reassembles results by batch index.
func (c *openAICompatibleClient) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}
	size := c.cfg.BatchSize
	numBatches := (len(texts) + size - 1) / size
	log.Infof("[EmbeddingClient] 批量向量化, model: %s, 文本数: %d, 批次数: %d", c.cfg.Model, len(texts), numBatches)

	results := make([][]float32, len(texts))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(c.cfg.MaxConcurrentBatches)
	for b := 0; b < numBatches; b++ {
		start := b * size
		end := start + size
		if end > len(texts) {
			end = len(texts)
		}
		g.Go(func() error {
			batch := make([]string, end-start)
			for i, t := range texts[start:end] {
				batch[i] = strings.TrimSpace(t)
			}
			vectors, err := c.call(gctx, batch)
			if err != nil {
				return err
			}
			copy(results[start:end], vectors)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return results, nil
}

// call issues one request and returns vectors ordered like inputs.
func (c *openAICompatibleClient) call(ctx context.Context, inputs []string) ([][]float32, error) {
	reqBytes, err := json.Marshal(embeddingRequest{
		Model:      c.cfg.Model,
		Input:      inputs,
		Dimensions: c.cfg.Dimensions,
	})
	if err != nil {
		return nil, &ProviderError{Op: "marshal request", Err: err}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.BaseURL+"/embeddings", bytes.NewReader(reqBytes))
	if err != nil {
		return nil, &ProviderError{Op: "create request", Err: err}
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.cfg.APIKey)

	resp, err := c.client.Do(req)
	if err != nil {
		log.Errorf("[EmbeddingClient] 调用 Embedding API 失败, error: %v", err)
		return nil, &ProviderError{Op: "call api", Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		log.Errorf("[EmbeddingClient] Embedding API 返回非 200 状态码: %s", resp.Status)
		return nil, &ProviderError{Op: "call api", Err: fmt.Errorf("status %s: %s", resp.Status, strings.TrimSpace(string(body)))}
	}

	var embeddingResp embeddingResponse
	if err := json.NewDecoder(resp.Body).Decode(&embeddingResp); err != nil {
		log.Errorf("[EmbeddingClient] 解析 Embedding API 响应失败, error: %v", err)
		return nil, &ProviderError{Op: "decode response", Err: err}
	}
	if embeddingResp.Error != nil {
		return nil, &ProviderError{Op: "call api", Err: errors.New(embeddingResp.Error.Message)}
	}
	if len(embeddingResp.Data) != len(inputs) {
		return nil, &ProviderError{Op: "decode response", Err: fmt.Errorf("got %d embeddings for %d inputs", len(embeddingResp.Data), len(inputs))}
	}

	// 部分兼容实现不返回 index（全部为 0），此时按返回顺序对齐
	positional := true
	for _, d := range embeddingResp.Data {
		if d.Index != 0 {
			positional = false
			break
		}
	}
	vectors := make([][]float32, len(inputs))
	filled := make([]bool, len(inputs))
	for pos, d := range embeddingResp.Data {
		idx := d.Index
		if positional {
			idx = pos
		}
		if idx < 0 || idx >= len(inputs) || filled[idx] {
			return nil, &ProviderError{Op: "decode response", Err: fmt.Errorf("duplicate or out-of-range embedding index %d", d.Index)}
		}
		filled[idx] = true
		vectors[idx] = d.Embedding
	}
	for _, v := range vectors {
		if len(v) == 0 {
			log.Warnf("[EmbeddingClient] Embedding API 返回了空的向量数据")
			return nil, &ProviderError{Op: "decode response", Err: ErrEmptyEmbedding}
		}
	}
	return vectors, nil
}
