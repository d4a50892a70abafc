package pipeline

import (
	"context"
	"errors"
	"io"
	"strings"
	"testing"

	"doc-qa-go/internal/config"
	"doc-qa-go/internal/model"
	"doc-qa-go/pkg/tasks"
	"doc-qa-go/pkg/vectorindex"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// ---- 测试替身 ----

type fakeFetcher struct {
	data []byte
	err  error
}

func (f *fakeFetcher) FetchObject(_ context.Context, _ string) ([]byte, error) {
	return f.data, f.err
}

type fakeExtractor struct {
	text string
	err  error
}

func (f *fakeExtractor) ExtractText(_ io.Reader, _ string) (string, error) {
	return f.text, f.err
}

// fakeEmbedder 为每条文本返回一个确定的向量；failAt ≥ 0 时在对应下标失败。
type fakeEmbedder struct {
	failAt int
	calls  int
}

func newFakeEmbedder() *fakeEmbedder { return &fakeEmbedder{failAt: -1} }

func (f *fakeEmbedder) CreateEmbedding(ctx context.Context, text string) ([]float32, error) {
	vecs, err := f.CreateEmbeddings(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	return vecs[0], nil
}

func (f *fakeEmbedder) CreateEmbeddings(_ context.Context, texts []string) ([][]float32, error) {
	f.calls++
	vectors := make([][]float32, len(texts))
	for i, t := range texts {
		if f.failAt >= 0 && i == f.failAt {
			return nil, errors.New("embedding backend down")
		}
		vectors[i] = []float32{float32(len(t)), 1}
	}
	return vectors, nil
}

// fakeIndex 在内存中按 docID 维护索引条目，模拟幂等 upsert 与按文档删除。
type fakeIndex struct {
	entries    map[string]map[int]vectorindex.Entry
	deletes    int
	upsertErr  error
	deleteErr  error
	queryHits  []vectorindex.Hit
	queryCalls int
}

func newFakeIndex() *fakeIndex {
	return &fakeIndex{entries: make(map[string]map[int]vectorindex.Entry)}
}

func (f *fakeIndex) Upsert(_ context.Context, docID string, entries []vectorindex.Entry) error {
	if f.upsertErr != nil {
		return f.upsertErr
	}
	byChunk, ok := f.entries[docID]
	if !ok {
		byChunk = make(map[int]vectorindex.Entry)
		f.entries[docID] = byChunk
	}
	for _, e := range entries {
		byChunk[e.ChunkIndex] = e
	}
	return nil
}

func (f *fakeIndex) Query(_ context.Context, _ []float32, _ int) ([]vectorindex.Hit, error) {
	f.queryCalls++
	return f.queryHits, nil
}

func (f *fakeIndex) Delete(_ context.Context, docID string) error {
	f.deletes++
	if f.deleteErr != nil {
		return f.deleteErr
	}
	delete(f.entries, docID)
	return nil
}

func (f *fakeIndex) count(docID string) int { return len(f.entries[docID]) }

// fakeDocRepo 只记录状态流转，其余操作为空实现。
type fakeDocRepo struct {
	statuses     []string
	lastErrDetal string
	indexedCount int
	markIndexed  int
}

func (f *fakeDocRepo) Create(*model.Document) error                     { return nil }
func (f *fakeDocRepo) FindByDocID(string) (*model.Document, error)      { return nil, nil }
func (f *fakeDocRepo) FindAll() ([]model.Document, error)               { return nil, nil }
func (f *fakeDocRepo) FindBatchByDocIDs([]string) ([]*model.Document, error) {
	return nil, nil
}
func (f *fakeDocRepo) UpdateStatus(_ string, status string, errDetail string) error {
	f.statuses = append(f.statuses, status)
	f.lastErrDetal = errDetail
	return nil
}
func (f *fakeDocRepo) MarkIndexed(_ string, chunkCount int) error {
	f.statuses = append(f.statuses, model.StatusIndexed)
	f.markIndexed++
	f.indexedCount = chunkCount
	return nil
}
func (f *fakeDocRepo) Delete(string) error { return nil }

// ---- 测试 ----

func testTask() tasks.DocumentProcessingTask {
	return tasks.DocumentProcessingTask{DocID: "doc-1", ObjectName: "raw/doc-1/a.txt", FileName: "a.txt"}
}

func testRagCfg() config.RAGConfig {
	return config.RAGConfig{ChunkSize: 100, ChunkOverlap: 10}
}

func TestProcess_Success(t *testing.T) {
	text := strings.Repeat("全文检索需要先将文档切分为可向量化的分块。", 20)
	fetcher := &fakeFetcher{data: []byte(text)}
	idx := newFakeIndex()
	repo := &fakeDocRepo{}
	p := NewProcessor(fetcher, &fakeExtractor{text: text}, newFakeEmbedder(), idx, repo, testRagCfg())

	err := p.Process(context.Background(), testTask())
	require.NoError(t, err)

	assert.Equal(t, []string{model.StatusProcessing, model.StatusIndexed}, repo.statuses)
	assert.Equal(t, 1, repo.markIndexed)
	assert.Equal(t, repo.indexedCount, idx.count("doc-1"))
	assert.Greater(t, idx.count("doc-1"), 1)
}

func TestProcess_FetchFailureMarksFailed(t *testing.T) {
	fetcher := &fakeFetcher{err: errors.New("object storage unreachable")}
	idx := newFakeIndex()
	repo := &fakeDocRepo{}
	p := NewProcessor(fetcher, &fakeExtractor{}, newFakeEmbedder(), idx, repo, testRagCfg())

	err := p.Process(context.Background(), testTask())
	require.Error(t, err)

	assert.Equal(t, []string{model.StatusProcessing, model.StatusFailed}, repo.statuses)
	assert.Contains(t, repo.lastErrDetal, "object storage unreachable")
	assert.Zero(t, repo.markIndexed)
	assert.Zero(t, idx.count("doc-1"))
}

func TestProcess_EmptyTextFailsWithErrEmptyDocument(t *testing.T) {
	fetcher := &fakeFetcher{data: []byte("raw bytes")}
	repo := &fakeDocRepo{}
	p := NewProcessor(fetcher, &fakeExtractor{text: ""}, newFakeEmbedder(), newFakeIndex(), repo, testRagCfg())

	err := p.Process(context.Background(), testTask())
	require.ErrorIs(t, err, ErrEmptyDocument)
	assert.Equal(t, []string{model.StatusProcessing, model.StatusFailed}, repo.statuses)
	assert.NotEmpty(t, repo.lastErrDetal)
}

// 向量化任何一个分块失败时，整个文档必须回滚为 failed 且索引中不留任何条目。
func TestProcess_EmbeddingFailureIsAllOrNothing(t *testing.T) {
	text := strings.Repeat("分块内容 ", 100)
	embedder := newFakeEmbedder()
	embedder.failAt = 2
	idx := newFakeIndex()
	repo := &fakeDocRepo{}
	p := NewProcessor(&fakeFetcher{data: []byte(text)}, &fakeExtractor{text: text}, embedder, idx, repo, testRagCfg())

	err := p.Process(context.Background(), testTask())
	require.Error(t, err)
	assert.Equal(t, []string{model.StatusProcessing, model.StatusFailed}, repo.statuses)
	assert.Zero(t, repo.markIndexed)
	assert.Zero(t, idx.count("doc-1"), "失败文档不得在索引中留下条目")
}

func TestProcess_UpsertFailureRollsBack(t *testing.T) {
	text := strings.Repeat("内容 ", 80)
	idx := newFakeIndex()
	idx.upsertErr = errors.New("index unavailable")
	repo := &fakeDocRepo{}
	p := NewProcessor(&fakeFetcher{data: []byte(text)}, &fakeExtractor{text: text}, newFakeEmbedder(), idx, repo, testRagCfg())

	err := p.Process(context.Background(), testTask())
	require.Error(t, err)
	assert.Equal(t, []string{model.StatusProcessing, model.StatusFailed}, repo.statuses)
	assert.Zero(t, idx.count("doc-1"))
}

// 重复摄取同一文档必须幂等：第二次成功后条目数与单次一致，不产生重复。
func TestProcess_ReingestIsIdempotent(t *testing.T) {
	text := strings.Repeat("重复摄取的文档内容。", 30)
	idx := newFakeIndex()
	repo := &fakeDocRepo{}
	p := NewProcessor(&fakeFetcher{data: []byte(text)}, &fakeExtractor{text: text}, newFakeEmbedder(), idx, repo, testRagCfg())

	require.NoError(t, p.Process(context.Background(), testTask()))
	countAfterFirst := idx.count("doc-1")

	require.NoError(t, p.Process(context.Background(), testTask()))
	assert.Equal(t, countAfterFirst, idx.count("doc-1"))
}

// 失败回滚时即使索引删除出错，状态也必须推进到 failed（查询侧按状态兜底过滤）。
func TestProcess_FailureStillRecordedWhenIndexDeleteFails(t *testing.T) {
	idx := newFakeIndex()
	idx.deleteErr = errors.New("delete timeout")
	repo := &fakeDocRepo{}
	p := NewProcessor(&fakeFetcher{err: errors.New("boom")}, &fakeExtractor{}, newFakeEmbedder(), idx, repo, testRagCfg())

	err := p.Process(context.Background(), testTask())
	require.Error(t, err)
	assert.Equal(t, []string{model.StatusProcessing, model.StatusFailed}, repo.statuses)
}
