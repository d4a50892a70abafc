// Package vectorindex 提供了向量索引的读写协议：
// 按文档幂等写入分块向量、跨全部文档做相似度检索、按文档整体删除。
// 底层存储（Elasticsearch）对上层是不透明依赖。
package vectorindex

import (
	"context"
	"errors"
)

// ErrUnavailable 表示向量索引存储 I/O 出错。
// 对调用方（摄取或查询）而言该错误是致命的，不允许静默吞掉。
var ErrUnavailable = errors.New("vector index unavailable")

// Entry 是待写入索引的一个分块。
type Entry struct {
	ChunkIndex int
	Vector     []float32
	Text       string
	CharStart  int
	CharEnd    int
}

// Hit 是一次相似度检索的单条命中，Score 越高越相关。
type Hit struct {
	DocID      string
	ChunkIndex int
	Text       string
	Score      float64
}

// Index 定义了向量索引的操作协议。
type Index interface {
	// Upsert 写入一个文档的全部分块。以 (docID, chunkIndex) 为键幂等：
	// 重新索引同一文档会覆盖旧条目而不是重复写入。
	Upsert(ctx context.Context, docID string, entries []Entry) error
	// Query 在全部文档范围内检索 topK 个最相似分块，按相似度降序返回。
	Query(ctx context.Context, vector []float32, topK int) ([]Hit, error)
	// Delete 删除指定文档的全部条目。
	Delete(ctx context.Context, docID string) error
}
