package handler

import (
	"log/slog"
	"strconv"

	"github.com/gin-gonic/gin"

	appsource "github.com/notionwiki/backend/internal/application/source"
	"github.com/notionwiki/backend/internal/infrastructure/log"
	"github.com/notionwiki/backend/internal/interfaces/http/response"
)

// SourceHandler 来源与同步目标处理器
type SourceHandler struct {
	service *appsource.Service
	logger  *slog.Logger
}

// NewSourceHandler 创建来源处理器
func NewSourceHandler(service *appsource.Service) *SourceHandler {
	return &SourceHandler{
		service: service,
		logger:  log.NewModuleLogger("http", "source"),
	}
}

// CreateSourceRequest 注册来源请求
type CreateSourceRequest struct {
	Name  string `json:"name"`
	Token string `json:"token" binding:"required"`
}

// Create 注册 Notion 工作区
// POST /api/v1/sources
func (h *SourceHandler) Create(c *gin.Context) {
	var req CreateSourceRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, err.Error())
		return
	}

	source, err := h.service.CreateSource(c.Request.Context(), req.Name, req.Token)
	if err != nil {
		respondError(c, err)
		return
	}
	response.Success(c, toSourceView(source))
}

// List 列出所有来源
// GET /api/v1/sources
func (h *SourceHandler) List(c *gin.Context) {
	sources, err := h.service.ListSources()
	if err != nil {
		respondError(c, err)
		return
	}

	views := make([]SourceView, len(sources))
	for i, s := range sources {
		views[i] = toSourceView(s)
	}
	response.Success(c, views)
}

// AddTargetRequest 添加同步目标请求
type AddTargetRequest struct {
	TargetType string `json:"targetType" binding:"required"`
	TargetID   string `json:"targetId" binding:"required"`
	Title      string `json:"title"`
}

// AddTarget 将页面或数据源加入白名单
// POST /api/v1/sources/:id/targets
func (h *SourceHandler) AddTarget(c *gin.Context) {
	sourceID, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		response.BadRequest(c, "invalid source id")
		return
	}

	var req AddTargetRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, err.Error())
		return
	}

	target, err := h.service.AddTarget(sourceID, req.TargetType, req.TargetID, req.Title)
	if err != nil {
		respondError(c, err)
		return
	}
	response.Success(c, toTargetView(target))
}

// ListTargets 列出来源的同步目标
// GET /api/v1/sources/:id/targets
func (h *SourceHandler) ListTargets(c *gin.Context) {
	sourceID, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		response.BadRequest(c, "invalid source id")
		return
	}

	targets, err := h.service.ListTargets(sourceID)
	if err != nil {
		respondError(c, err)
		return
	}

	views := make([]TargetView, len(targets))
	for i, t := range targets {
		views[i] = toTargetView(t)
	}
	response.Success(c, views)
}

// SetTargetStatusRequest 目标启停请求
type SetTargetStatusRequest struct {
	Active *bool `json:"active" binding:"required"`
}

// SetTargetStatus 启用或停用同步目标
// PATCH /api/v1/targets/:id
func (h *SourceHandler) SetTargetStatus(c *gin.Context) {
	targetID, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		response.BadRequest(c, "invalid target id")
		return
	}

	var req SetTargetStatusRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, err.Error())
		return
	}

	target, err := h.service.SetTargetStatus(targetID, *req.Active)
	if err != nil {
		respondError(c, err)
		return
	}
	response.Success(c, toTargetView(target))
}

// Discover 搜索工作区中可注册的页面和数据源
// GET /api/v1/sources/:id/discover
func (h *SourceHandler) Discover(c *gin.Context) {
	sourceID, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		response.BadRequest(c, "invalid source id")
		return
	}

	items, err := h.service.Discover(c.Request.Context(), sourceID, c.Query("query"))
	if err != nil {
		respondError(c, err)
		return
	}
	response.Success(c, items)
}
