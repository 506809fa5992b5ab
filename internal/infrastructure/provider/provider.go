package provider

import (
	"context"
	"fmt"

	"github.com/notionwiki/backend/internal/infrastructure/config"
)

// 提供方错误分类常量
const (
	ErrCodeTimeout             = "TIMEOUT"
	ErrCodeRateLimited         = "RATE_LIMITED"
	ErrCodeBadRequest          = "BAD_REQUEST"
	ErrCodeAuthFailed          = "AUTH_FAILED"
	ErrCodeServerError         = "SERVER_ERROR"
	ErrCodeUpstreamUnavailable = "UPSTREAM_UNAVAILABLE"
	ErrCodeUnknown             = "UNKNOWN"
)

// Error 提供方错误，携带分类和可重试标记
type Error struct {
	Code      string
	Message   string
	Retryable bool
}

// Error 实现 error 接口
func (e *Error) Error() string {
	return fmt.Sprintf("provider error %s: %s", e.Code, e.Message)
}

// EmbedRequest 批量向量化请求
type EmbedRequest struct {
	Texts []string
	// TaskType 嵌入用途，为空时默认 RETRIEVAL_DOCUMENT
	TaskType string
}

// EmbedResponse 批量向量化结果，向量顺序与输入一致
type EmbedResponse struct {
	Vectors   [][]float32
	Model     string
	Dimension int
}

// GenerateRequest 文本生成请求
type GenerateRequest struct {
	SystemInstruction string
	UserText          string
	// JSONOutput 要求模型输出 JSON
	JSONOutput bool
}

// GenerateResponse 文本生成结果
type GenerateResponse struct {
	Text  string
	Model string
}

// Provider 生成式模型提供方
type Provider interface {
	Name() string
	Embed(ctx context.Context, req *EmbedRequest) (*EmbedResponse, error)
	Generate(ctx context.Context, req *GenerateRequest) (*GenerateResponse, error)
}

// NewProvider 按配置选择提供方实现
func NewProvider(cfg *config.Config) Provider {
	if cfg.Provider.Name == "mock" {
		return NewMockProvider()
	}
	return NewGeminiProvider(&cfg.Provider)
}
