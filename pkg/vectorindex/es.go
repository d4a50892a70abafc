package vectorindex

import (
	"bytes"
	"context"
	"crypto/tls"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"

	"doc-qa-go/internal/config"
	"doc-qa-go/internal/model"
	"doc-qa-go/pkg/log"

	"github.com/elastic/go-elasticsearch/v8"
	"github.com/elastic/go-elasticsearch/v8/esapi"
)

// esIndex 是 Index 接口的 Elasticsearch 实现。
type esIndex struct {
	client       *elasticsearch.Client
	indexName    string
	dims         int
	modelVersion string
}

// NewESIndex 初始化 Elasticsearch 客户端并确保索引存在。
// dims 为部署固定的向量维度，modelVersion 随条目一起落盘以便追溯。
func NewESIndex(esCfg config.ElasticsearchConfig, dims int, modelVersion string) (Index, error) {
	cfg := elasticsearch.Config{
		Addresses: []string{esCfg.Addresses},
		Username:  esCfg.Username,
		Password:  esCfg.Password,
		Transport: &http.Transport{
			TLSClientConfig: &tls.Config{InsecureSkipVerify: true},
		},
	}
	client, err := elasticsearch.NewClient(cfg)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	idx := &esIndex{
		client:       client,
		indexName:    esCfg.IndexName,
		dims:         dims,
		modelVersion: modelVersion,
	}
	if err := idx.createIndexIfNotExists(); err != nil {
		return nil, err
	}
	return idx, nil
}

// createIndexIfNotExists 检查索引是否存在，如果不存在则创建它
func (s *esIndex) createIndexIfNotExists() error {
	res, err := s.client.Indices.Exists([]string{s.indexName})
	if err != nil {
		log.Errorf("检查索引是否存在时出错: %v", err)
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	if !res.IsError() && res.StatusCode == http.StatusOK {
		log.Infof("索引 '%s' 已存在", s.indexName)
		return nil
	}
	if res.StatusCode != http.StatusNotFound {
		log.Errorf("检查索引 '%s' 是否存在时收到意外的状态码: %d", s.indexName, res.StatusCode)
		return fmt.Errorf("%w: 检查索引时收到状态码 %d", ErrUnavailable, res.StatusCode)
	}

	// dense_vector 使用 cosine 相似度，维度由部署配置决定
	mapping := fmt.Sprintf(`{
		"mappings": {
			"properties": {
				"vector_id": { "type": "keyword" },
				"doc_id": { "type": "keyword" },
				"chunk_index": { "type": "integer" },
				"text_content": { "type": "text" },
				"char_start": { "type": "integer" },
				"char_end": { "type": "integer" },
				"vector": {
					"type": "dense_vector",
					"dims": %d,
					"index": true,
					"similarity": "cosine"
				},
				"model_version": { "type": "keyword" }
			}
		}
	}`, s.dims)

	res, err = s.client.Indices.Create(
		s.indexName,
		s.client.Indices.Create.WithBody(strings.NewReader(mapping)),
	)
	if err != nil {
		log.Errorf("创建索引 '%s' 失败: %v", s.indexName, err)
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	if res.IsError() {
		log.Errorf("创建索引 '%s' 时 Elasticsearch 返回错误: %s", s.indexName, res.String())
		return fmt.Errorf("%w: 创建索引时 Elasticsearch 返回错误", ErrUnavailable)
	}

	log.Infof("索引 '%s' 创建成功", s.indexName)
	return nil
}

// Upsert 通过 bulk API 写入一个文档的全部分块。
// 文档 _id 取 docID_chunkIndex，同键重写即覆盖。
func (s *esIndex) Upsert(ctx context.Context, docID string, entries []Entry) error {
	if len(entries) == 0 {
		return nil
	}

	var buf bytes.Buffer
	for _, e := range entries {
		doc := model.IndexDocument{
			VectorID:     fmt.Sprintf("%s_%d", docID, e.ChunkIndex),
			DocID:        docID,
			ChunkIndex:   e.ChunkIndex,
			TextContent:  e.Text,
			CharStart:    e.CharStart,
			CharEnd:      e.CharEnd,
			Vector:       e.Vector,
			ModelVersion: s.modelVersion,
		}
		meta := map[string]map[string]string{
			"index": {"_index": s.indexName, "_id": doc.VectorID},
		}
		if err := json.NewEncoder(&buf).Encode(meta); err != nil {
			return fmt.Errorf("%w: 序列化 bulk 元数据失败: %v", ErrUnavailable, err)
		}
		if err := json.NewEncoder(&buf).Encode(doc); err != nil {
			return fmt.Errorf("%w: 序列化索引文档失败: %v", ErrUnavailable, err)
		}
	}

	req := esapi.BulkRequest{
		Index:   s.indexName,
		Body:    &buf,
		Refresh: "true",
	}
	res, err := req.Do(ctx, s.client)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	defer res.Body.Close()

	if res.IsError() {
		log.Errorf("bulk 写入 Elasticsearch 出错: %s", res.String())
		return fmt.Errorf("%w: bulk write failed: %s", ErrUnavailable, res.Status())
	}

	// bulk 整体 200 时仍可能存在单条失败，需要检查 errors 标志
	var bulkResp struct {
		Errors bool `json:"errors"`
		Items  []map[string]struct {
			Status int `json:"status"`
			Error  *struct {
				Reason string `json:"reason"`
			} `json:"error"`
		} `json:"items"`
	}
	if err := json.NewDecoder(res.Body).Decode(&bulkResp); err != nil {
		return fmt.Errorf("%w: 解析 bulk 响应失败: %v", ErrUnavailable, err)
	}
	if bulkResp.Errors {
		for _, item := range bulkResp.Items {
			for _, r := range item {
				if r.Error != nil {
					return fmt.Errorf("%w: bulk item failed: %s", ErrUnavailable, r.Error.Reason)
				}
			}
		}
		return fmt.Errorf("%w: bulk write reported errors", ErrUnavailable)
	}

	log.Infof("成功写入 %d 条索引条目, doc_id: %s", len(entries), docID)
	return nil
}

// Query 执行 kNN 相似度检索，结果跨全部文档全局排序。
func (s *esIndex) Query(ctx context.Context, vector []float32, topK int) ([]Hit, error) {
	if topK <= 0 {
		topK = 5
	}

	numCandidates := topK * 10
	esQuery := map[string]interface{}{
		"knn": map[string]interface{}{
			"field":          "vector",
			"query_vector":   vector,
			"k":              topK,
			"num_candidates": numCandidates,
		},
		"size":    topK,
		"_source": []string{"doc_id", "chunk_index", "text_content"},
	}

	var buf bytes.Buffer
	if err := json.NewEncoder(&buf).Encode(esQuery); err != nil {
		return nil, fmt.Errorf("%w: 序列化查询失败: %v", ErrUnavailable, err)
	}

	res, err := s.client.Search(
		s.client.Search.WithContext(ctx),
		s.client.Search.WithIndex(s.indexName),
		s.client.Search.WithBody(&buf),
	)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	defer res.Body.Close()

	if res.IsError() {
		log.Errorf("Elasticsearch 检索返回错误: %s", res.String())
		return nil, fmt.Errorf("%w: search failed: %s", ErrUnavailable, res.Status())
	}

	var esResponse struct {
		Hits struct {
			Hits []struct {
				Source model.IndexDocument `json:"_source"`
				Score  float64             `json:"_score"`
			} `json:"hits"`
		} `json:"hits"`
	}
	if err := json.NewDecoder(res.Body).Decode(&esResponse); err != nil {
		return nil, fmt.Errorf("%w: 解析检索响应失败: %v", ErrUnavailable, err)
	}

	hits := make([]Hit, 0, len(esResponse.Hits.Hits))
	for _, h := range esResponse.Hits.Hits {
		hits = append(hits, Hit{
			DocID:      h.Source.DocID,
			ChunkIndex: h.Source.ChunkIndex,
			Text:       h.Source.TextContent,
			Score:      h.Score,
		})
	}
	return hits, nil
}

// Delete 按 doc_id 删除一个文档的全部条目。
func (s *esIndex) Delete(ctx context.Context, docID string) error {
	query := map[string]interface{}{
		"query": map[string]interface{}{
			"term": map[string]interface{}{"doc_id": docID},
		},
	}
	var buf bytes.Buffer
	if err := json.NewEncoder(&buf).Encode(query); err != nil {
		return fmt.Errorf("%w: 序列化删除查询失败: %v", ErrUnavailable, err)
	}

	refresh := true
	req := esapi.DeleteByQueryRequest{
		Index:   []string{s.indexName},
		Body:    &buf,
		Refresh: &refresh,
	}
	res, err := req.Do(ctx, s.client)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	defer res.Body.Close()

	if res.IsError() {
		log.Errorf("按文档删除索引条目出错, doc_id: %s, resp: %s", docID, res.String())
		return fmt.Errorf("%w: delete by doc_id failed: %s", ErrUnavailable, res.Status())
	}

	log.Infof("已删除 doc_id '%s' 的全部索引条目", docID)
	return nil
}
