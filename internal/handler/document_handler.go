// Package handler 存放 Gin 的 HTTP 处理器。
package handler

import (
	"errors"
	"io"
	"net/http"

	"doc-qa-go/internal/service"
	"doc-qa-go/pkg/extractor"
	"doc-qa-go/pkg/log"

	"github.com/gin-gonic/gin"
)

// DocumentHandler 结构体定义了文档管理相关的处理器。
type DocumentHandler struct {
	documentService service.DocumentService
}

// NewDocumentHandler 创建一个新的 DocumentHandler 实例。
func NewDocumentHandler(documentService service.DocumentService) *DocumentHandler {
	return &DocumentHandler{documentService: documentService}
}

// Upload 接收一个文档并入队摄取。摄取是异步的：
// 这里返回 202 与 pending 记录，处理结果通过状态查询接口获取。
func (h *DocumentHandler) Upload(c *gin.Context) {
	fileHeader, err := c.FormFile("file")
	if err != nil {
		log.Warnf("[DocumentHandler] 上传请求缺少文件: %v", err)
		c.JSON(http.StatusBadRequest, gin.H{"error": "请求中缺少 file 字段"})
		return
	}

	f, err := fileHeader.Open()
	if err != nil {
		log.Errorf("[DocumentHandler] 打开上传文件失败: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "读取上传文件失败"})
		return
	}
	defer f.Close()

	data, err := io.ReadAll(f)
	if err != nil {
		log.Errorf("[DocumentHandler] 读取上传文件失败: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "读取上传文件失败"})
		return
	}

	doc, err := h.documentService.Upload(c.Request.Context(), fileHeader.Filename, data)
	if err != nil {
		if errors.Is(err, extractor.ErrUnsupportedFormat) {
			c.JSON(http.StatusBadRequest, gin.H{"error": "不支持的文件类型", "supportedTypes": h.documentService.SupportedTypes()})
			return
		}
		log.Errorf("[DocumentHandler] 上传处理失败, FileName: %s, Error: %v", fileHeader.Filename, err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "上传失败"})
		return
	}

	c.JSON(http.StatusAccepted, gin.H{"code": 202, "data": doc, "message": "文档已接收并进入处理队列"})
}

// List 返回全部文档及其处理状态。
func (h *DocumentHandler) List(c *gin.Context) {
	docs, err := h.documentService.List()
	if err != nil {
		log.Errorf("[DocumentHandler] 查询文档列表失败: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "查询文档列表失败"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"code": 200, "data": docs, "message": "success"})
}

// Get 返回单个文档的状态详情（含失败原因与分块数）。
func (h *DocumentHandler) Get(c *gin.Context) {
	docID := c.Param("docId")
	doc, err := h.documentService.Get(docID)
	if err != nil {
		if errors.Is(err, service.ErrDocumentNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "文档不存在"})
			return
		}
		log.Errorf("[DocumentHandler] 查询文档失败, DocID: %s, Error: %v", docID, err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "查询文档失败"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"code": 200, "data": doc, "message": "success"})
}

// Delete 删除一个文档及其全部索引条目。
func (h *DocumentHandler) Delete(c *gin.Context) {
	docID := c.Param("docId")
	if err := h.documentService.Delete(c.Request.Context(), docID); err != nil {
		if errors.Is(err, service.ErrDocumentNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "文档不存在"})
			return
		}
		log.Errorf("[DocumentHandler] 删除文档失败, DocID: %s, Error: %v", docID, err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "删除文档失败"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"code": 200, "message": "文档已删除"})
}

// SupportedTypes 返回允许上传的文件类型列表。
func (h *DocumentHandler) SupportedTypes(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"code": 200, "data": h.documentService.SupportedTypes(), "message": "success"})
}
