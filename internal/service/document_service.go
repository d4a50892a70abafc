// Package service 包含了应用的业务逻辑层。
package service

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strings"

	"doc-qa-go/internal/config"
	"doc-qa-go/internal/model"
	"doc-qa-go/internal/repository"
	"doc-qa-go/pkg/extractor"
	"doc-qa-go/pkg/kafka"
	"doc-qa-go/pkg/log"
	"doc-qa-go/pkg/storage"
	"doc-qa-go/pkg/tasks"
	"doc-qa-go/pkg/vectorindex"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// ErrDocumentNotFound 表示指定的文档不存在。
var ErrDocumentNotFound = errors.New("document not found")

// DocumentService 接口定义了文档管理相关的业务操作。
type DocumentService interface {
	// Upload 接收文档字节并入队等待摄取。上传总是立即返回 pending 记录，
	// 摄取阶段的失败通过文档状态查询暴露，而不是在上传时抛出。
	Upload(ctx context.Context, fileName string, data []byte) (*model.Document, error)
	List() ([]model.Document, error)
	Get(docID string) (*model.Document, error)
	// Delete 删除文档：索引条目、对象存储中的原始字节与元数据记录。
	Delete(ctx context.Context, docID string) error
	SupportedTypes() []string
}

type documentService struct {
	docRepo  repository.DocumentRepository
	index    vectorindex.Index
	minioCfg config.MinIOConfig
}

// NewDocumentService 创建一个新的 DocumentService 实例。
func NewDocumentService(docRepo repository.DocumentRepository, index vectorindex.Index, minioCfg config.MinIOConfig) DocumentService {
	return &documentService{
		docRepo:  docRepo,
		index:    index,
		minioCfg: minioCfg,
	}
}

// Upload 将原始字节暂存到对象存储，创建 pending 记录并发送摄取任务。
func (s *documentService) Upload(ctx context.Context, fileName string, data []byte) (*model.Document, error) {
	if !extractor.IsSupported(fileName) {
		return nil, fmt.Errorf("%w: %s", extractor.ErrUnsupportedFormat, filepath.Ext(fileName))
	}
	if len(data) == 0 {
		return nil, errors.New("上传内容为空")
	}

	docID := uuid.NewString()
	objectName := storage.ObjectName(docID, fileName)

	if err := storage.PutObject(ctx, s.minioCfg.BucketName, objectName, data); err != nil {
		return nil, fmt.Errorf("暂存文档字节失败: %w", err)
	}

	doc := &model.Document{
		DocID:    docID,
		FileName: fileName,
		FileType: strings.TrimPrefix(strings.ToLower(filepath.Ext(fileName)), "."),
		FileSize: int64(len(data)),
		Status:   model.StatusPending,
	}
	if err := s.docRepo.Create(doc); err != nil {
		return nil, fmt.Errorf("创建文档记录失败: %w", err)
	}

	task := tasks.DocumentProcessingTask{
		DocID:      docID,
		ObjectName: objectName,
		FileName:   fileName,
	}
	if err := kafka.ProduceDocumentTask(task); err != nil {
		// 任务入队失败时不保留悬空的 pending 记录
		log.Errorf("[DocumentService] 发送摄取任务失败, DocID: %s, Error: %v", docID, err)
		_ = s.docRepo.Delete(docID)
		return nil, fmt.Errorf("发送摄取任务失败: %w", err)
	}

	log.Infof("[DocumentService] 文档已接收并入队, DocID: %s, FileName: %s", docID, fileName)
	return doc, nil
}

// List 返回全部文档记录。
func (s *documentService) List() ([]model.Document, error) {
	return s.docRepo.FindAll()
}

// Get 返回单个文档的状态详情。
func (s *documentService) Get(docID string) (*model.Document, error) {
	doc, err := s.docRepo.FindByDocID(docID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrDocumentNotFound
		}
		return nil, err
	}
	return doc, nil
}

// Delete 删除文档的索引条目、对象与元数据记录。
func (s *documentService) Delete(ctx context.Context, docID string) error {
	doc, err := s.docRepo.FindByDocID(docID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return ErrDocumentNotFound
		}
		return err
	}

	if err := s.index.Delete(ctx, docID); err != nil {
		return fmt.Errorf("删除索引条目失败: %w", err)
	}

	objectName := storage.ObjectName(docID, doc.FileName)
	if err := storage.RemoveObject(ctx, s.minioCfg.BucketName, objectName); err != nil {
		// 对象删除失败不阻断元数据清理
		log.Warnf("[DocumentService] 删除对象失败, Object: %s, Error: %v", objectName, err)
	}

	if err := s.docRepo.Delete(docID); err != nil {
		return fmt.Errorf("删除文档记录失败: %w", err)
	}

	log.Infof("[DocumentService] 文档已删除, DocID: %s", docID)
	return nil
}

// SupportedTypes 返回允许上传的文件类型。
func (s *documentService) SupportedTypes() []string {
	return extractor.SupportedTypes()
}
