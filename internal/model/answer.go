package model

// SourceRef 记录答案所引用分块的出处，保证从答案可以追溯回原始文档。
type SourceRef struct {
	DocID      string  `json:"docId"`
	FileName   string  `json:"fileName"`
	ChunkIndex int     `json:"chunkIndex"`
	Score      float64 `json:"score"`
}

// AnswerResult 是一次问答请求的最终结果。
// Sources 的顺序与拼入提示词的分块顺序一致；无检索结果时为空。
type AnswerResult struct {
	Answer  string      `json:"answer"`
	Sources []SourceRef `json:"sources"`
}

// RetrievedChunk 是检索阶段的中间结果，按相似度降序排列，不做持久化。
type RetrievedChunk struct {
	DocID       string  `json:"docId"`
	FileName    string  `json:"fileName"`
	ChunkIndex  int     `json:"chunkIndex"`
	TextContent string  `json:"textContent"`
	Score       float64 `json:"score"`
}
