// Package service 提供了检索与有据生成（grounding）的业务逻辑。
package service

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"doc-qa-go/internal/config"
	"doc-qa-go/internal/model"
	"doc-qa-go/internal/repository"
	"doc-qa-go/pkg/embedding"
	"doc-qa-go/pkg/llm"
	"doc-qa-go/pkg/log"
	"doc-qa-go/pkg/vectorindex"
)

// 问答阶段的错误类别。检索失败与生成失败分开上报，
// 而“检索不到内容”是一个合法的空结果回答，不属于错误。
var (
	ErrRetrievalFailed  = errors.New("retrieval failed")
	ErrGenerationFailed = errors.New("generation failed")
)

// 候选条目按 overfetchFactor*topK 超量检索，
// 过滤掉未完成索引的文档之后仍能凑满 topK。
const overfetchFactor = 3

// RagService 接口定义了基于已索引文档回答问题的操作。
type RagService interface {
	Answer(ctx context.Context, question string, topK int) (*model.AnswerResult, error)
}

type ragService struct {
	embeddingClient embedding.Client
	index           vectorindex.Index
	docRepo         repository.DocumentRepository
	llmClient       llm.Client
	ragCfg          config.RAGConfig
}

// NewRagService 创建一个新的 RagService 实例。
func NewRagService(
	embeddingClient embedding.Client,
	index vectorindex.Index,
	docRepo repository.DocumentRepository,
	llmClient llm.Client,
	ragCfg config.RAGConfig,
) RagService {
	return &ragService{
		embeddingClient: embeddingClient,
		index:           index,
		docRepo:         docRepo,
		llmClient:       llmClient,
		ragCfg:          ragCfg,
	}
}

// Answer 执行完整的检索与有据生成流程：
// 向量化问题 → 全局检索 → 状态过滤与阈值过滤 → 组装提示词 → 单次生成。
// 零命中时返回固定的"无足够上下文"回答，不调用生成能力。
func (s *ragService) Answer(ctx context.Context, question string, topK int) (*model.AnswerResult, error) {
	question = strings.TrimSpace(question)
	if question == "" {
		return nil, fmt.Errorf("%w: 问题为空", ErrRetrievalFailed)
	}
	if topK <= 0 {
		topK = s.ragCfg.TopK
	}
	log.Infof("[RagService] 开始处理问答请求, question: '%s', topK: %d", question, topK)

	// 1. 向量化问题。失败对整个请求是致命的
	queryVector, err := s.embeddingClient.CreateEmbedding(ctx, question)
	if err != nil {
		log.Errorf("[RagService] 向量化问题失败: %v", err)
		return nil, fmt.Errorf("%w: 向量化问题失败: %v", ErrRetrievalFailed, err)
	}

	// 2. 检索候选分块并过滤
	retrieved, err := s.retrieve(ctx, queryVector, topK)
	if err != nil {
		return nil, err
	}

	// 3. 零命中：返回固定回答，不触发生成，避免无依据的幻觉
	if len(retrieved) == 0 {
		log.Infof("[RagService] 无可用检索结果, 返回固定回答")
		return &model.AnswerResult{
			Answer:  s.noResultText(),
			Sources: []model.SourceRef{},
		}, nil
	}

	// 4. 组装有据提示词并单次调用生成能力
	messages := []llm.Message{
		{Role: "system", Content: s.buildSystemMessage(retrieved)},
		{Role: "user", Content: question},
	}
	answer, err := s.llmClient.Complete(ctx, messages, nil)
	if err != nil {
		log.Errorf("[RagService] 调用生成能力失败: %v", err)
		return nil, fmt.Errorf("%w: %v", ErrGenerationFailed, err)
	}

	// 5. Sources 与拼入提示词的分块一一对应，保证答案可回溯到原文
	sources := make([]model.SourceRef, len(retrieved))
	for i, r := range retrieved {
		sources[i] = model.SourceRef{
			DocID:      r.DocID,
			FileName:   r.FileName,
			ChunkIndex: r.ChunkIndex,
			Score:      r.Score,
		}
	}

	log.Infof("[RagService] 问答完成, 引用 %d 个分块", len(sources))
	return &model.AnswerResult{Answer: answer, Sources: sources}, nil
}

// retrieve 超量检索候选分块，丢弃未达相似度阈值以及所属文档
// 状态不是 indexed 的命中（读已提交：processing/failed 文档不可见），
// 最终截断到 topK。
func (s *ragService) retrieve(ctx context.Context, queryVector []float32, topK int) ([]model.RetrievedChunk, error) {
	hits, err := s.index.Query(ctx, queryVector, topK*overfetchFactor)
	if err != nil {
		log.Errorf("[RagService] 向量索引检索失败: %v", err)
		return nil, fmt.Errorf("%w: %v", ErrRetrievalFailed, err)
	}
	if len(hits) == 0 {
		return nil, nil
	}

	// 批量获取命中文档的状态与文件名
	seen := make(map[string]struct{})
	docIDs := make([]string, 0, len(hits))
	for _, h := range hits {
		if _, ok := seen[h.DocID]; !ok {
			seen[h.DocID] = struct{}{}
			docIDs = append(docIDs, h.DocID)
		}
	}
	docs, err := s.docRepo.FindBatchByDocIDs(docIDs)
	if err != nil {
		log.Errorf("[RagService] 批量查询文档记录失败: %v", err)
		return nil, fmt.Errorf("%w: 查询文档记录失败: %v", ErrRetrievalFailed, err)
	}
	indexedDocs := make(map[string]string, len(docs))
	for _, d := range docs {
		if d.Status == model.StatusIndexed {
			indexedDocs[d.DocID] = d.FileName
		}
	}

	results := make([]model.RetrievedChunk, 0, topK)
	for _, h := range hits {
		if s.ragCfg.MinScore > 0 && h.Score < s.ragCfg.MinScore {
			continue
		}
		fileName, ok := indexedDocs[h.DocID]
		if !ok {
			// 所属文档尚未 indexed 或已失败，不得出现在检索结果中
			continue
		}
		results = append(results, model.RetrievedChunk{
			DocID:       h.DocID,
			FileName:    fileName,
			ChunkIndex:  h.ChunkIndex,
			TextContent: h.Text,
			Score:       h.Score,
		})
		if len(results) == topK {
			break
		}
	}
	return results, nil
}

// buildSystemMessage 构建系统消息：约束规则 + 引用标记包裹的上下文。
// 每个分块按检索顺序编号并标注来源文件名。
func (s *ragService) buildSystemMessage(retrieved []model.RetrievedChunk) string {
	rules := s.ragCfg.Prompt.Rules
	if rules == "" {
		rules = "你是一个文档问答助手。只能依据下面给出的参考资料回答用户问题；" +
			"如果参考资料中没有相关信息，请明确说明无法从文档中找到答案，不要编造内容。"
	}
	refStart := s.ragCfg.Prompt.RefStart
	if refStart == "" {
		refStart = "<<REF>>"
	}
	refEnd := s.ragCfg.Prompt.RefEnd
	if refEnd == "" {
		refEnd = "<<END>>"
	}

	var sys strings.Builder
	sys.WriteString(rules)
	sys.WriteString("\n\n")
	sys.WriteString(refStart)
	sys.WriteString("\n")
	for i, r := range retrieved {
		sys.WriteString(fmt.Sprintf("[%d] (%s) %s\n", i+1, r.FileName, r.TextContent))
	}
	sys.WriteString(refEnd)
	return sys.String()
}

// noResultText 返回零命中时的固定回答文案。
func (s *ragService) noResultText() string {
	if s.ragCfg.Prompt.NoResultText != "" {
		return s.ragCfg.Prompt.NoResultText
	}
	return "未能在已上传的文档中检索到与问题相关的内容，请先上传相关文档。"
}
