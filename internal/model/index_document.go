package model

// IndexDocument 定义了存储在向量索引（Elasticsearch）中的文档结构。
// 每个分块对应一条索引记录，VectorID 由 docId 与 chunkIndex 拼接而成，
// 重新索引同一文档时会覆盖而不是重复写入。
type IndexDocument struct {
	VectorID     string    `json:"vector_id"`
	DocID        string    `json:"doc_id"`
	ChunkIndex   int       `json:"chunk_index"`
	TextContent  string    `json:"text_content"`
	CharStart    int       `json:"char_start"` // 分块在原文中的起始偏移（rune）
	CharEnd      int       `json:"char_end"`
	Vector       []float32 `json:"vector"`
	ModelVersion string    `json:"model_version"`
}
