// Package vector 提供向量相似度计算以及向量在存储中的 JSON 序列化。
package vector

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
)

var (
	// ErrDimensionMismatch 表示参与相似度计算的两个向量长度不一致，通常意味着存储数据的模型版本不一致。
	ErrDimensionMismatch = errors.New("vector dimension mismatch")
	// ErrMalformedVector 表示存储的向量无法解析为非空数值数组。
	ErrMalformedVector = errors.New("malformed stored vector")
)

// CosineSimilarity 计算两个等长向量的余弦相似度。
// 任一向量范数为 0 时返回 0。
func CosineSimilarity(a, b []float32) (float64, error) {
	if len(a) != len(b) {
		return 0, fmt.Errorf("%w: %d != %d", ErrDimensionMismatch, len(a), len(b))
	}
	var dot, normA, normB float64
	for i := range a {
		x, y := float64(a[i]), float64(b[i])
		dot += x * y
		normA += x * x
		normB += y * y
	}
	if normA == 0 || normB == 0 {
		return 0, nil
	}
	return dot / (math.Sqrt(normA) * math.Sqrt(normB)), nil
}

// Marshal 将向量序列化为 JSON 数组。
func Marshal(v []float32) ([]byte, error) {
	if len(v) == 0 {
		return nil, fmt.Errorf("%w: empty vector", ErrMalformedVector)
	}
	return json.Marshal(v)
}

// Parse 将存储中的 JSON 数组解析为向量。
func Parse(data []byte) ([]float32, error) {
	var v []float32
	if err := json.Unmarshal(data, &v); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedVector, err)
	}
	if len(v) == 0 {
		return nil, fmt.Errorf("%w: empty vector", ErrMalformedVector)
	}
	return v, nil
}
