package handler

import (
	"errors"
	"net/http"

	"doc-qa-go/internal/service"
	"doc-qa-go/pkg/log"

	"github.com/gin-gonic/gin"
)

// QueryHandler 结构体定义了问答相关的处理器。
type QueryHandler struct {
	ragService service.RagService
}

// NewQueryHandler 创建一个新的 QueryHandler 实例。
func NewQueryHandler(ragService service.RagService) *QueryHandler {
	return &QueryHandler{ragService: ragService}
}

// queryRequest 是问答请求体。TopK 可选，缺省时使用配置值。
type queryRequest struct {
	Question string `json:"question" binding:"required"`
	TopK     int    `json:"top_k"`
}

// Query 是处理问答请求的 Gin 处理函数。
// 检索或生成失败作为请求级错误返回；检索不到内容是合法的 200 回答。
func (h *QueryHandler) Query(c *gin.Context) {
	var req queryRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		log.Warnf("[QueryHandler] 问答请求参数无效: %v", err)
		c.JSON(http.StatusBadRequest, gin.H{"error": "无效的请求参数: question 不能为空"})
		return
	}
	log.Infof("[QueryHandler] 收到问答请求, question: '%s', topK: %d", req.Question, req.TopK)

	result, err := h.ragService.Answer(c.Request.Context(), req.Question, req.TopK)
	if err != nil {
		switch {
		case errors.Is(err, service.ErrRetrievalFailed):
			log.Errorf("[QueryHandler] 检索失败: %v", err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "检索失败"})
		case errors.Is(err, service.ErrGenerationFailed):
			log.Errorf("[QueryHandler] 生成失败: %v", err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "答案生成失败"})
		default:
			log.Errorf("[QueryHandler] 问答失败: %v", err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "问答失败"})
		}
		return
	}

	c.JSON(http.StatusOK, gin.H{"code": 200, "data": result, "message": "success"})
}
