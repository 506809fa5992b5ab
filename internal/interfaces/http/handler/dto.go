package handler

import (
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/notionwiki/backend/internal/domain/knowledge"
	"github.com/notionwiki/backend/internal/interfaces/http/response"
)

// SourceView 来源视图，token 不对外暴露
type SourceView struct {
	ID        int64  `json:"id"`
	Name      string `json:"name"`
	CreatedAt string `json:"createdAt"`
	UpdatedAt string `json:"updatedAt"`
}

// TargetView 同步目标视图
type TargetView struct {
	ID         int64   `json:"id"`
	SourceID   int64   `json:"sourceId"`
	TargetType string  `json:"targetType"`
	TargetID   string  `json:"targetId"`
	Title      string  `json:"title"`
	Active     bool    `json:"active"`
	LastSyncAt *string `json:"lastSyncAt"`
	CreatedAt  string  `json:"createdAt"`
}

// JobView 摄取任务视图
type JobView struct {
	ID             int64   `json:"id"`
	SourceID       int64   `json:"sourceId"`
	Mode           string  `json:"mode"`
	Status         string  `json:"status"`
	Attempt        int     `json:"attempt"`
	ErrorCode      string  `json:"errorCode,omitempty"`
	Message        string  `json:"message,omitempty"`
	RequestedBy    string  `json:"requestedBy,omitempty"`
	RequestedAt    string  `json:"requestedAt"`
	StartedAt      *string `json:"startedAt"`
	FinishedAt     *string `json:"finishedAt"`
	PagesProcessed int     `json:"pagesProcessed"`
	PagesFailed    int     `json:"pagesFailed"`
	ChunksUpserted int     `json:"chunksUpserted"`
}

// FailureView 页面失败视图
type FailureView struct {
	ID               int64   `json:"id"`
	SourceID         int64   `json:"sourceId"`
	PageID           string  `json:"pageId"`
	Stage            string  `json:"stage"`
	ErrorCode        string  `json:"errorCode,omitempty"`
	ErrorMessage     string  `json:"errorMessage"`
	FailureCount     int     `json:"failureCount"`
	Status           string  `json:"status"`
	FirstFailedAt    string  `json:"firstFailedAt"`
	LastFailedAt     string  `json:"lastFailedAt"`
	ResolvedAt       *string `json:"resolvedAt"`
	RetryIngestJobID *int64  `json:"retryIngestJobId"`
}

func toSourceView(s *knowledge.Source) SourceView {
	return SourceView{
		ID:        s.ID,
		Name:      s.Name,
		CreatedAt: rfc3339(s.CreatedAt),
		UpdatedAt: rfc3339(s.UpdatedAt),
	}
}

func toTargetView(t *knowledge.SyncTarget) TargetView {
	return TargetView{
		ID:         t.ID,
		SourceID:   t.SourceID,
		TargetType: t.TargetType,
		TargetID:   t.TargetID,
		Title:      t.Title,
		Active:     t.Active,
		LastSyncAt: rfc3339Ptr(t.LastSyncAt),
		CreatedAt:  rfc3339(t.CreatedAt),
	}
}

func toJobView(j *knowledge.IngestJob) JobView {
	return JobView{
		ID:             j.ID,
		SourceID:       j.SourceID,
		Mode:           j.Mode,
		Status:         j.Status,
		Attempt:        j.Attempt,
		ErrorCode:      j.ErrorCode,
		Message:        j.Message,
		RequestedBy:    j.RequestedBy,
		RequestedAt:    rfc3339(j.RequestedAt),
		StartedAt:      rfc3339Ptr(j.StartedAt),
		FinishedAt:     rfc3339Ptr(j.FinishedAt),
		PagesProcessed: j.PagesProcessed,
		PagesFailed:    j.PagesFailed,
		ChunksUpserted: j.ChunksUpserted,
	}
}

func toFailureView(f *knowledge.PageFailure) FailureView {
	return FailureView{
		ID:               f.ID,
		SourceID:         f.SourceID,
		PageID:           f.PageID,
		Stage:            f.Stage,
		ErrorCode:        f.ErrorCode,
		ErrorMessage:     f.ErrorMessage,
		FailureCount:     f.FailureCount,
		Status:           f.Status,
		FirstFailedAt:    rfc3339(f.FirstFailedAt),
		LastFailedAt:     rfc3339(f.LastFailedAt),
		ResolvedAt:       rfc3339Ptr(f.ResolvedAt),
		RetryIngestJobID: f.RetryIngestJobID,
	}
}

// rfc3339 Unix 秒转 RFC3339 字符串
func rfc3339(ts int64) string {
	return time.Unix(ts, 0).UTC().Format(time.RFC3339)
}

func rfc3339Ptr(ts *int64) *string {
	if ts == nil {
		return nil
	}
	formatted := rfc3339(*ts)
	return &formatted
}

// respondError 按错误内容选择状态码
func respondError(c *gin.Context, err error) {
	msg := err.Error()
	switch {
	case strings.Contains(msg, "not found"):
		response.NotFound(c, msg)
	case strings.Contains(msg, "is required"),
		strings.Contains(msg, "invalid"),
		strings.Contains(msg, "already resolved"),
		strings.Contains(msg, "allowlist is empty"):
		response.BadRequest(c, msg)
	default:
		response.Internal(c, msg)
	}
}
