// Package pipeline 定义了文档摄取的核心流程：
// 下载 → 提取 → 分块 → 向量化 → 索引，并维护每个文档的处理状态机。
package pipeline

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"unicode/utf8"

	"doc-qa-go/internal/chunker"
	"doc-qa-go/internal/config"
	"doc-qa-go/internal/model"
	"doc-qa-go/internal/repository"
	"doc-qa-go/pkg/embedding"
	"doc-qa-go/pkg/extractor"
	"doc-qa-go/pkg/log"
	"doc-qa-go/pkg/tasks"
	"doc-qa-go/pkg/vectorindex"
)

// ErrEmptyDocument 表示文档无法产出任何分块（提取文本为空）。
// 这是一种摄取失败，而不是静默成功。
var ErrEmptyDocument = errors.New("document produced no chunks")

// ObjectFetcher 从对象存储中取回文档的原始字节。
type ObjectFetcher interface {
	FetchObject(ctx context.Context, objectName string) ([]byte, error)
}

// Processor 封装了文档摄取的所有依赖和逻辑。
type Processor struct {
	fetcher         ObjectFetcher
	extractorClient extractor.Extractor
	embeddingClient embedding.Client
	index           vectorindex.Index
	docRepo         repository.DocumentRepository
	ragCfg          config.RAGConfig
}

// NewProcessor 创建一个新的 Processor 实例。
func NewProcessor(
	fetcher ObjectFetcher,
	extractorClient extractor.Extractor,
	embeddingClient embedding.Client,
	index vectorindex.Index,
	docRepo repository.DocumentRepository,
	ragCfg config.RAGConfig,
) *Processor {
	return &Processor{
		fetcher:         fetcher,
		extractorClient: extractorClient,
		embeddingClient: embeddingClient,
		index:           index,
		docRepo:         docRepo,
		ragCfg:          ragCfg,
	}
}

// Process 是文档摄取的主函数。状态机：
// pending → processing → indexed，任一步骤出错则 → failed。
// 只有当全部分块成功向量化并写入索引后才会置为 indexed；
// 部分成功一律回滚为 failed 并清空该文档的索引条目，索引永远不会
// 对外提供失败文档的残留内容。返回非 nil 仅用于驱动消费端的重试计数，
// 错误本身已经记录在文档上。
func (p *Processor) Process(ctx context.Context, task tasks.DocumentProcessingTask) error {
	log.Infof("[Processor] 开始处理文档, DocID: %s, FileName: %s", task.DocID, task.FileName)

	if err := p.docRepo.UpdateStatus(task.DocID, model.StatusProcessing, ""); err != nil {
		log.Errorf("[Processor] 更新文档状态为 processing 失败, DocID: %s, Error: %v", task.DocID, err)
		return fmt.Errorf("更新文档状态失败: %w", err)
	}

	// 1. 从对象存储下载原始字节
	log.Infof("[Processor] 步骤1: 从对象存储下载文件, Object: %s", task.ObjectName)
	data, err := p.fetcher.FetchObject(ctx, task.ObjectName)
	if err != nil {
		return p.fail(ctx, task.DocID, fmt.Errorf("下载文档失败: %w", err))
	}
	if len(data) == 0 {
		return p.fail(ctx, task.DocID, fmt.Errorf("%w: 文件内容为空", ErrEmptyDocument))
	}
	log.Infof("[Processor] 步骤1: 文件下载成功, 大小: %d 字节", len(data))

	// 2. 使用 Tika 提取文本
	log.Info("[Processor] 步骤2: 提取文本内容")
	textContent, err := p.extractorClient.ExtractText(bytes.NewReader(data), task.FileName)
	if err != nil {
		return p.fail(ctx, task.DocID, fmt.Errorf("提取文本失败: %w", err))
	}
	log.Infof("[Processor] 步骤2: 文本提取成功, 内容长度: %d 字符", utf8.RuneCountInString(textContent))

	// 3. 文本切块。原始文本在此之后即被丢弃，只有分块进入后续流程
	log.Infof("[Processor] 步骤3: 进行文本分块, chunkSize: %d, chunkOverlap: %d", p.ragCfg.ChunkSize, p.ragCfg.ChunkOverlap)
	chunks := chunker.Split(textContent, p.ragCfg.ChunkSize, p.ragCfg.ChunkOverlap)
	if len(chunks) == 0 {
		return p.fail(ctx, task.DocID, fmt.Errorf("%w: 提取的文本未产生任何分块", ErrEmptyDocument))
	}
	log.Infof("[Processor] 步骤3: 文本分块完成, 共生成 %d 个分块", len(chunks))

	// 4. 批量向量化。任何一个分块失败都会放弃整个文档
	log.Info("[Processor] 步骤4: 开始批量向量化分块")
	texts := make([]string, len(chunks))
	for i, c := range chunks {
		texts[i] = c.Text
	}
	vectors, err := p.embeddingClient.CreateEmbeddings(ctx, texts)
	if err != nil {
		return p.fail(ctx, task.DocID, fmt.Errorf("分块向量化失败: %w", err))
	}
	log.Infof("[Processor] 步骤4: 向量化完成, 共 %d 个向量", len(vectors))

	// 5. 先清理该文档既有的索引条目再写入（重摄取幂等，分块数减少也不留残余）
	if err := p.index.Delete(ctx, task.DocID); err != nil {
		return p.fail(ctx, task.DocID, fmt.Errorf("清理旧索引条目失败: %w", err))
	}

	entries := make([]vectorindex.Entry, len(chunks))
	for i, c := range chunks {
		entries[i] = vectorindex.Entry{
			ChunkIndex: c.Index,
			Vector:     vectors[i],
			Text:       c.Text,
			CharStart:  c.Start,
			CharEnd:    c.End,
		}
	}
	log.Infof("[Processor] 步骤5: 写入 %d 条索引条目", len(entries))
	if err := p.index.Upsert(ctx, task.DocID, entries); err != nil {
		return p.fail(ctx, task.DocID, fmt.Errorf("写入索引失败: %w", err))
	}

	// 6. 索引写入全部完成之后，状态才切换为 indexed（读已提交保证）
	if err := p.docRepo.MarkIndexed(task.DocID, len(chunks)); err != nil {
		return p.fail(ctx, task.DocID, fmt.Errorf("标记文档为 indexed 失败: %w", err))
	}

	log.Infof("[Processor] 文档处理成功完成, DocID: %s, 分块数: %d", task.DocID, len(chunks))
	return nil
}

// fail 将文档置为 failed 终态。先删除该文档已写入的索引条目，
// 删除完成后才更新状态，避免 failed 文档仍有条目可被检索到的窗口。
func (p *Processor) fail(ctx context.Context, docID string, cause error) error {
	log.Errorf("[Processor] 文档处理失败, DocID: %s, Error: %v", docID, cause)

	if err := p.index.Delete(ctx, docID); err != nil {
		// 删除失败只记录：查询侧按状态过滤，failed 文档的残留条目不会被检索到
		log.Errorf("[Processor] 回滚删除索引条目失败, DocID: %s, Error: %v", docID, err)
	}

	if err := p.docRepo.UpdateStatus(docID, model.StatusFailed, cause.Error()); err != nil {
		log.Errorf("[Processor] 记录失败状态出错, DocID: %s, Error: %v", docID, err)
	}
	return cause
}
