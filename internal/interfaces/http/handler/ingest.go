package handler

import (
	"log/slog"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/notionwiki/backend/internal/application/ingest"
	"github.com/notionwiki/backend/internal/domain/knowledge"
	"github.com/notionwiki/backend/internal/infrastructure/log"
	"github.com/notionwiki/backend/internal/interfaces/http/response"
)

// IngestHandler 摄取任务处理器
type IngestHandler struct {
	dispatcher *ingest.Dispatcher
	logger     *slog.Logger
}

// NewIngestHandler 创建摄取处理器
func NewIngestHandler(dispatcher *ingest.Dispatcher) *IngestHandler {
	return &IngestHandler{
		dispatcher: dispatcher,
		logger:     log.NewModuleLogger("http", "ingest"),
	}
}

// RunIngestRequest 发起摄取请求
type RunIngestRequest struct {
	SourceID    int64  `json:"sourceId" binding:"required"`
	Mode        string `json:"mode"`
	RequestedBy string `json:"requestedBy"`
}

// Run 发起一次摄取运行
// POST /api/v1/ingest/run
func (h *IngestHandler) Run(c *gin.Context) {
	var req RunIngestRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, err.Error())
		return
	}
	if req.Mode == "" {
		req.Mode = knowledge.IngestModeIncremental
	}

	job, err := h.dispatcher.RunIngest(req.SourceID, req.Mode, req.RequestedBy)
	if err != nil {
		respondError(c, err)
		return
	}
	response.Success(c, toJobView(job))
}

// ListJobs 列出来源的摄取任务
// GET /api/v1/ingest/jobs?sourceId=&limit=
func (h *IngestHandler) ListJobs(c *gin.Context) {
	sourceID, err := strconv.ParseInt(c.Query("sourceId"), 10, 64)
	if err != nil {
		response.BadRequest(c, "sourceId is required")
		return
	}
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "20"))

	jobs, err := h.dispatcher.ListJobs(sourceID, limit)
	if err != nil {
		respondError(c, err)
		return
	}

	views := make([]JobView, len(jobs))
	for i, j := range jobs {
		views[i] = toJobView(j)
	}
	response.Success(c, views)
}

// GetJob 查询单个摄取任务
// GET /api/v1/ingest/jobs/:id
func (h *IngestHandler) GetJob(c *gin.Context) {
	jobID, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		response.BadRequest(c, "invalid job id")
		return
	}

	job, err := h.dispatcher.GetJob(jobID)
	if err != nil {
		respondError(c, err)
		return
	}
	response.Success(c, toJobView(job))
}

// ListFailures 列出来源未解决的页面失败
// GET /api/v1/ingest/failures?sourceId=
func (h *IngestHandler) ListFailures(c *gin.Context) {
	sourceID, err := strconv.ParseInt(c.Query("sourceId"), 10, 64)
	if err != nil {
		response.BadRequest(c, "sourceId is required")
		return
	}

	failures, err := h.dispatcher.ListPageFailures(sourceID)
	if err != nil {
		respondError(c, err)
		return
	}

	views := make([]FailureView, len(failures))
	for i, f := range failures {
		views[i] = toFailureView(f)
	}
	response.Success(c, views)
}

// RetryFailureRequest 失败重试请求
type RetryFailureRequest struct {
	RequestedBy string `json:"requestedBy"`
}

// RetryFailure 针对单个失败页面发起重试
// POST /api/v1/ingest/failures/:id/retry
func (h *IngestHandler) RetryFailure(c *gin.Context) {
	failureID, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		response.BadRequest(c, "invalid failure id")
		return
	}

	var req RetryFailureRequest
	if c.Request.Body != nil {
		// body 可省略
		_ = c.ShouldBindJSON(&req)
	}

	job, err := h.dispatcher.RetryPageFailure(failureID, req.RequestedBy)
	if err != nil {
		respondError(c, err)
		return
	}
	response.Success(c, toJobView(job))
}
