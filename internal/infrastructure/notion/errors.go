package notion

import (
	"fmt"
	"net/http"
	"time"
)

// 错误分类常量
const (
	ErrCodeAuthFailed  = "AUTH_FAILED"
	ErrCodeRateLimited = "RATE_LIMITED"
	ErrCodeServerError = "SERVER_ERROR"
	ErrCodeBadRequest  = "BAD_REQUEST"
)

// APIError Notion API 错误，携带分类后的错误码
type APIError struct {
	Code       string
	Status     int
	Message    string
	RetryAfter time.Duration // 来自 Retry-After 响应头，0 表示未提供
}

// Error 实现 error 接口
func (e *APIError) Error() string {
	return fmt.Sprintf("notion api error %s (status %d): %s", e.Code, e.Status, e.Message)
}

// Retryable 检查错误是否可重试
func (e *APIError) Retryable() bool {
	return e.Code == ErrCodeRateLimited || e.Code == ErrCodeServerError
}

// classifyStatus 将 HTTP 状态码归入错误分类
func classifyStatus(status int) string {
	switch {
	case status == http.StatusUnauthorized || status == http.StatusForbidden:
		return ErrCodeAuthFailed
	case status == http.StatusTooManyRequests:
		return ErrCodeRateLimited
	case status >= 500:
		return ErrCodeServerError
	default:
		return ErrCodeBadRequest
	}
}
