// Package repository 定义了与数据库进行数据交换的接口和实现。
package repository

import (
	"time"

	"doc-qa-go/internal/model"

	"gorm.io/gorm"
)

// DocumentRepository 接口定义了文档元数据的持久化操作。
type DocumentRepository interface {
	Create(doc *model.Document) error
	FindByDocID(docID string) (*model.Document, error)
	FindAll() ([]model.Document, error)
	FindBatchByDocIDs(docIDs []string) ([]*model.Document, error)
	// UpdateStatus 更新文档状态；errDetail 仅在 status=failed 时写入。
	UpdateStatus(docID string, status string, errDetail string) error
	// MarkIndexed 将文档置为 indexed 终态并记录分块数与完成时间。
	MarkIndexed(docID string, chunkCount int) error
	Delete(docID string) error
}

// documentRepository 是 DocumentRepository 接口的 GORM 实现。
type documentRepository struct {
	db *gorm.DB
}

// NewDocumentRepository 创建一个新的 DocumentRepository 实例。
func NewDocumentRepository(db *gorm.DB) DocumentRepository {
	return &documentRepository{db: db}
}

// Create 在数据库中创建一条新的文档记录。
func (r *documentRepository) Create(doc *model.Document) error {
	return r.db.Create(doc).Error
}

// FindByDocID 根据文档标识检索文档记录。
func (r *documentRepository) FindByDocID(docID string) (*model.Document, error) {
	var doc model.Document
	err := r.db.Where("doc_id = ?", docID).First(&doc).Error
	if err != nil {
		return nil, err
	}
	return &doc, nil
}

// FindAll 按创建时间倒序返回全部文档记录。
func (r *documentRepository) FindAll() ([]model.Document, error) {
	var docs []model.Document
	err := r.db.Order("created_at desc").Find(&docs).Error
	return docs, err
}

// FindBatchByDocIDs 批量查询文档记录。
func (r *documentRepository) FindBatchByDocIDs(docIDs []string) ([]*model.Document, error) {
	var docs []*model.Document
	if len(docIDs) == 0 {
		return docs, nil
	}
	err := r.db.Where("doc_id IN ?", docIDs).Find(&docs).Error
	return docs, err
}

// UpdateStatus 更新指定文档的处理状态与错误详情。
func (r *documentRepository) UpdateStatus(docID string, status string, errDetail string) error {
	updates := map[string]interface{}{
		"status":       status,
		"error_detail": errDetail,
	}
	return r.db.Model(&model.Document{}).Where("doc_id = ?", docID).Updates(updates).Error
}

// MarkIndexed 将文档置为 indexed 并记录分块数。
func (r *documentRepository) MarkIndexed(docID string, chunkCount int) error {
	now := time.Now()
	updates := map[string]interface{}{
		"status":       model.StatusIndexed,
		"error_detail": "",
		"chunk_count":  chunkCount,
		"indexed_at":   &now,
	}
	return r.db.Model(&model.Document{}).Where("doc_id = ?", docID).Updates(updates).Error
}

// Delete 删除一条文档记录。
func (r *documentRepository) Delete(docID string) error {
	return r.db.Where("doc_id = ?", docID).Delete(&model.Document{}).Error
}
