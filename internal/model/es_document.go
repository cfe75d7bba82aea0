package model

// ChunkMirrorDocument 是分块镜像索引（Elasticsearch）中的文档结构，供下游检索系统消费。
type ChunkMirrorDocument struct {
	ChunkID    string    `json:"chunk_id"` // documentID + "_" + chunkIndex
	DocumentID uint      `json:"document_id"`
	ChunkIndex int       `json:"chunk_index"`
	Content    string    `json:"content"`
	Vector     []float32 `json:"vector"`
	Model      string    `json:"model"`
	UserID     uint      `json:"user_id"`
}
