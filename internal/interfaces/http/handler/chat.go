package handler

import (
	"log/slog"

	"github.com/gin-gonic/gin"

	"github.com/notionwiki/backend/internal/application/query"
	"github.com/notionwiki/backend/internal/infrastructure/log"
	"github.com/notionwiki/backend/internal/interfaces/http/response"
)

// ChatHandler 问答处理器
type ChatHandler struct {
	service *query.Service
	logger  *slog.Logger
}

// NewChatHandler 创建问答处理器
func NewChatHandler(service *query.Service) *ChatHandler {
	return &ChatHandler{
		service: service,
		logger:  log.NewModuleLogger("http", "chat"),
	}
}

// ChatRequest 问答请求
type ChatRequest struct {
	SourceID int64  `json:"sourceId" binding:"required"`
	Question string `json:"question" binding:"required"`
}

// Chat 基于知识库回答问题
// POST /api/v1/chat
func (h *ChatHandler) Chat(c *gin.Context) {
	var req ChatRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, err.Error())
		return
	}

	answer, err := h.service.Ask(c.Request.Context(), req.SourceID, req.Question)
	if err != nil {
		respondError(c, err)
		return
	}
	response.Success(c, answer)
}
