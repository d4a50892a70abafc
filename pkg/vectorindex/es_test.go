package vectorindex

import (
	"bufio"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"doc-qa-go/internal/config"
	"doc-qa-go/internal/model"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeES 模拟 Elasticsearch 的 HTTP 接口。客户端会校验产品响应头，
// 所有响应都必须带上 X-Elastic-Product。
type fakeES struct {
	indexExists bool
	mappingBody string
	bulkBody    string
	bulkResp    string
	searchResp  string
	deleteBody  string
}

func (f *fakeES) handler(t *testing.T) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("X-Elastic-Product", "Elasticsearch")
		w.Header().Set("Content-Type", "application/json")

		switch {
		case r.Method == http.MethodHead:
			if f.indexExists {
				w.WriteHeader(http.StatusOK)
			} else {
				w.WriteHeader(http.StatusNotFound)
			}
		case r.Method == http.MethodPut:
			f.mappingBody = readBody(t, r)
			f.indexExists = true
			w.Write([]byte(`{"acknowledged":true}`))
		case strings.HasSuffix(r.URL.Path, "/_bulk"):
			f.bulkBody = readBody(t, r)
			resp := f.bulkResp
			if resp == "" {
				resp = `{"errors":false,"items":[]}`
			}
			w.Write([]byte(resp))
		case strings.HasSuffix(r.URL.Path, "/_search"):
			w.Write([]byte(f.searchResp))
		case strings.HasSuffix(r.URL.Path, "/_delete_by_query"):
			f.deleteBody = readBody(t, r)
			w.Write([]byte(`{"deleted":3}`))
		default:
			t.Fatalf("未预期的请求: %s %s", r.Method, r.URL.Path)
		}
	}
}

func readBody(t *testing.T, r *http.Request) string {
	var sb strings.Builder
	scanner := bufio.NewScanner(r.Body)
	scanner.Buffer(make([]byte, 1024*1024), 1024*1024)
	for scanner.Scan() {
		sb.WriteString(scanner.Text())
		sb.WriteString("\n")
	}
	require.NoError(t, scanner.Err())
	return sb.String()
}

func newTestIndex(t *testing.T, fake *fakeES) Index {
	srv := httptest.NewServer(fake.handler(t))
	t.Cleanup(srv.Close)

	idx, err := NewESIndex(config.ElasticsearchConfig{
		Addresses: srv.URL,
		IndexName: "chunks_test",
	}, 4, "test-embedding")
	require.NoError(t, err)
	return idx
}

func TestNewESIndex_CreatesMappingWhenMissing(t *testing.T) {
	fake := &fakeES{indexExists: false}
	newTestIndex(t, fake)

	require.NotEmpty(t, fake.mappingBody, "索引不存在时必须创建 mapping")
	assert.Contains(t, fake.mappingBody, `"dense_vector"`)
	assert.Contains(t, fake.mappingBody, `"dims": 4`)
	assert.Contains(t, fake.mappingBody, `"similarity": "cosine"`)
}

func TestNewESIndex_SkipsCreateWhenExists(t *testing.T) {
	fake := &fakeES{indexExists: true}
	newTestIndex(t, fake)
	assert.Empty(t, fake.mappingBody)
}

// bulk 写入必须使用 docID_chunkIndex 作为 _id，同一分块重写即覆盖。
func TestUpsert_UsesDeterministicIDs(t *testing.T) {
	fake := &fakeES{indexExists: true}
	idx := newTestIndex(t, fake)

	err := idx.Upsert(context.Background(), "doc-1", []Entry{
		{ChunkIndex: 0, Vector: []float32{1, 0, 0, 0}, Text: "第一块", CharStart: 0, CharEnd: 3},
		{ChunkIndex: 1, Vector: []float32{0, 1, 0, 0}, Text: "第二块", CharStart: 3, CharEnd: 6},
	})
	require.NoError(t, err)

	lines := strings.Split(strings.TrimSpace(fake.bulkBody), "\n")
	require.Len(t, lines, 4, "每个条目一行元数据一行文档")

	var meta map[string]map[string]string
	require.NoError(t, json.Unmarshal([]byte(lines[0]), &meta))
	assert.Equal(t, "doc-1_0", meta["index"]["_id"])
	require.NoError(t, json.Unmarshal([]byte(lines[2]), &meta))
	assert.Equal(t, "doc-1_1", meta["index"]["_id"])

	var doc model.IndexDocument
	require.NoError(t, json.Unmarshal([]byte(lines[1]), &doc))
	assert.Equal(t, "doc-1", doc.DocID)
	assert.Equal(t, 0, doc.ChunkIndex)
	assert.Equal(t, "第一块", doc.TextContent)
	assert.Equal(t, "test-embedding", doc.ModelVersion)
}

func TestUpsert_EmptyEntriesIsNoop(t *testing.T) {
	fake := &fakeES{indexExists: true}
	idx := newTestIndex(t, fake)

	require.NoError(t, idx.Upsert(context.Background(), "doc-1", nil))
	assert.Empty(t, fake.bulkBody)
}

// bulk 整体 200 但存在单条失败时必须上报 ErrUnavailable。
func TestUpsert_ReportsPartialBulkFailure(t *testing.T) {
	fake := &fakeES{
		indexExists: true,
		bulkResp:    `{"errors":true,"items":[{"index":{"status":400,"error":{"reason":"mapper parsing failed"}}}]}`,
	}
	idx := newTestIndex(t, fake)

	err := idx.Upsert(context.Background(), "doc-1", []Entry{
		{ChunkIndex: 0, Vector: []float32{1, 0, 0, 0}, Text: "x"},
	})
	require.ErrorIs(t, err, ErrUnavailable)
	assert.Contains(t, err.Error(), "mapper parsing failed")
}

func TestQuery_ParsesHits(t *testing.T) {
	fake := &fakeES{
		indexExists: true,
		searchResp: `{"hits":{"hits":[
			{"_score":0.92,"_source":{"doc_id":"doc-a","chunk_index":2,"text_content":"相关内容"}},
			{"_score":0.41,"_source":{"doc_id":"doc-b","chunk_index":0,"text_content":"次相关内容"}}
		]}}`,
	}
	idx := newTestIndex(t, fake)

	hits, err := idx.Query(context.Background(), []float32{1, 0, 0, 0}, 5)
	require.NoError(t, err)
	require.Len(t, hits, 2)

	assert.Equal(t, Hit{DocID: "doc-a", ChunkIndex: 2, Text: "相关内容", Score: 0.92}, hits[0])
	assert.Equal(t, Hit{DocID: "doc-b", ChunkIndex: 0, Text: "次相关内容", Score: 0.41}, hits[1])
}

func TestDelete_UsesTermQueryOnDocID(t *testing.T) {
	fake := &fakeES{indexExists: true}
	idx := newTestIndex(t, fake)

	require.NoError(t, idx.Delete(context.Background(), "doc-gone"))

	var body struct {
		Query struct {
			Term map[string]string `json:"term"`
		} `json:"query"`
	}
	require.NoError(t, json.Unmarshal([]byte(strings.TrimSpace(fake.deleteBody)), &body))
	assert.Equal(t, "doc-gone", body.Query.Term["doc_id"])
}
