// Package model 定义了与数据库表对应的 Go 结构体。
package model

import "time"

// 文档处理状态枚举。生命周期：
// pending → processing → indexed（成功）或 processing → failed（任一步骤出错）。
// 终态只能通过重新上传进入新的生命周期，不会被回退。
const (
	StatusPending    = "pending"
	StatusProcessing = "processing"
	StatusIndexed    = "indexed"
	StatusFailed     = "failed"
)

// Document 定义了 documents 表的 ORM 模型。
// 它记录了每个上传文档的元数据和处理状态。
type Document struct {
	ID          uint       `gorm:"primaryKey;autoIncrement" json:"-"`
	DocID       string     `gorm:"type:varchar(36);not null;uniqueIndex" json:"docId"`
	FileName    string     `gorm:"type:varchar(255);not null" json:"fileName"`
	FileType    string     `gorm:"type:varchar(10);not null" json:"fileType"`
	FileSize    int64      `gorm:"not null" json:"fileSize"`
	Status      string     `gorm:"type:varchar(20);not null;default:'pending'" json:"status"`
	ErrorDetail string     `gorm:"type:text" json:"errorDetail,omitempty"` // 仅在 status=failed 时有值
	ChunkCount  int        `gorm:"not null;default:0" json:"chunkCount"`
	CreatedAt   time.Time  `gorm:"autoCreateTime" json:"createdAt"`
	IndexedAt   *time.Time `gorm:"default:null" json:"indexedAt,omitempty"`
}

// TableName 指定了此模型在数据库中对应的表名。
func (Document) TableName() string {
	return "documents"
}
