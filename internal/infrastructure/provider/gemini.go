package provider

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/notionwiki/backend/internal/infrastructure/config"
	"github.com/notionwiki/backend/internal/infrastructure/log"
)

const (
	embedTimeout    = 10 * time.Second
	generateTimeout = 30 * time.Second

	// 能力协商：部分 API key 不支持这些特性，按响应降级后在同一轮内重发
	markerNoSystemInstruction = "Developer instruction is not enabled"
	markerNoJSONMode          = "JSON mode is not enabled"
	maxNegotiationPasses      = 3

	defaultEmbedTaskType = "RETRIEVAL_DOCUMENT"
)

// GeminiProvider 基于 Gemini REST API 的提供方实现
type GeminiProvider struct {
	baseURL    string
	apiKey     string
	embedModel string
	genModel   string
	maxRetries int
	httpClient *http.Client
	logger     *slog.Logger
}

// NewGeminiProvider 创建 Gemini 提供方
func NewGeminiProvider(cfg *config.ProviderConfig) *GeminiProvider {
	return &GeminiProvider{
		baseURL:    strings.TrimSuffix(cfg.BaseURL, "/"),
		apiKey:     cfg.APIKey,
		embedModel: cfg.EmbeddingModel,
		genModel:   cfg.GenerateModel,
		maxRetries: DefaultMaxRetries,
		httpClient: &http.Client{},
		logger:     log.NewModuleLogger("provider", "gemini"),
	}
}

// Name 返回提供方名称
func (p *GeminiProvider) Name() string {
	return "gemini"
}

type geminiPart struct {
	Text string `json:"text"`
}

type geminiContent struct {
	Role  string       `json:"role,omitempty"`
	Parts []geminiPart `json:"parts"`
}

// Embed 批量向量化文本
func (p *GeminiProvider) Embed(ctx context.Context, req *EmbedRequest) (*EmbedResponse, error) {
	if len(req.Texts) == 0 {
		return nil, fmt.Errorf("texts cannot be empty")
	}

	taskType := req.TaskType
	if taskType == "" {
		taskType = defaultEmbedTaskType
	}

	type embedEntry struct {
		Model    string        `json:"model"`
		Content  geminiContent `json:"content"`
		TaskType string        `json:"taskType"`
	}
	entries := make([]embedEntry, len(req.Texts))
	for i, text := range req.Texts {
		entries[i] = embedEntry{
			Model:    "models/" + p.embedModel,
			Content:  geminiContent{Parts: []geminiPart{{Text: text}}},
			TaskType: taskType,
		}
	}

	requestURL := fmt.Sprintf("%s/models/%s:batchEmbedContents?key=%s", p.baseURL, p.embedModel, p.apiKey)

	var result *EmbedResponse
	err := WithRetry(ctx, p.logger, "embed", p.maxRetries, func() error {
		var resp struct {
			Embeddings []struct {
				Values []float32 `json:"values"`
			} `json:"embeddings"`
		}
		if err := p.doJSON(ctx, embedTimeout, requestURL, map[string]any{"requests": entries}, &resp); err != nil {
			return err
		}
		if len(resp.Embeddings) != len(req.Texts) {
			return &Error{
				Code:    ErrCodeUnknown,
				Message: fmt.Sprintf("expected %d embeddings, got %d", len(req.Texts), len(resp.Embeddings)),
			}
		}

		vectors := make([][]float32, len(resp.Embeddings))
		for i, e := range resp.Embeddings {
			vectors[i] = e.Values
		}
		dimension := 0
		if len(vectors) > 0 {
			dimension = len(vectors[0])
		}
		result = &EmbedResponse{Vectors: vectors, Model: p.embedModel, Dimension: dimension}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

// Generate 生成文本，带能力协商降级
func (p *GeminiProvider) Generate(ctx context.Context, req *GenerateRequest) (*GenerateResponse, error) {
	requestURL := fmt.Sprintf("%s/models/%s:generateContent?key=%s", p.baseURL, p.genModel, p.apiKey)

	var result *GenerateResponse
	err := WithRetry(ctx, p.logger, "generate", p.maxRetries, func() error {
		system := req.SystemInstruction
		userText := req.UserText
		jsonMode := req.JSONOutput

		for pass := 0; pass < maxNegotiationPasses; pass++ {
			body := map[string]any{
				"contents": []geminiContent{
					{Role: "user", Parts: []geminiPart{{Text: userText}}},
				},
			}
			if system != "" {
				body["systemInstruction"] = geminiContent{Parts: []geminiPart{{Text: system}}}
			}
			if jsonMode {
				body["generationConfig"] = map[string]any{"responseMimeType": "application/json"}
			}

			var resp struct {
				Candidates []struct {
					Content geminiContent `json:"content"`
				} `json:"candidates"`
			}
			err := p.doJSON(ctx, generateTimeout, requestURL, body, &resp)
			if err == nil {
				if len(resp.Candidates) == 0 {
					return &Error{Code: ErrCodeUnknown, Message: "no candidates in response"}
				}
				var sb strings.Builder
				for _, part := range resp.Candidates[0].Content.Parts {
					sb.WriteString(part.Text)
				}
				result = &GenerateResponse{Text: sb.String(), Model: p.genModel}
				return nil
			}

			var provErr *Error
			if errors.As(err, &provErr) && provErr.Code == ErrCodeBadRequest {
				if system != "" && strings.Contains(provErr.Message, markerNoSystemInstruction) {
					p.logger.Info("system instruction not supported, folding into user text")
					userText = "SYSTEM RULES:\n" + system + "\n\n" + userText
					system = ""
					continue
				}
				if jsonMode && strings.Contains(provErr.Message, markerNoJSONMode) {
					p.logger.Info("json mode not supported, falling back to plain text")
					jsonMode = false
					continue
				}
			}
			return err
		}
		return &Error{Code: ErrCodeUnknown, Message: "fallback attempts exhausted"}
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

// doJSON 发送单次请求并分类错误
func (p *GeminiProvider) doJSON(ctx context.Context, timeout time.Duration, requestURL string, body any, out any) error {
	payload, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("failed to marshal request: %w", err)
	}

	reqCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(reqCtx, http.MethodPost, requestURL, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := p.httpClient.Do(req)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) && ctx.Err() == nil {
			return &Error{Code: ErrCodeTimeout, Message: "request timed out", Retryable: true}
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return &Error{Code: ErrCodeUpstreamUnavailable, Message: err.Error(), Retryable: true}
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("failed to read response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		return classifyGeminiError(resp.StatusCode, respBody)
	}

	if err := json.Unmarshal(respBody, out); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	return nil
}

// classifyGeminiError 按状态码分类错误
func classifyGeminiError(status int, body []byte) *Error {
	var payload struct {
		Error struct {
			Message string `json:"message"`
		} `json:"error"`
	}
	message := ""
	if err := json.Unmarshal(body, &payload); err == nil {
		message = payload.Error.Message
	}
	if message == "" {
		message = string(body)
		if len(message) > 200 {
			message = message[:200]
		}
	}

	switch {
	case status == http.StatusUnauthorized || status == http.StatusForbidden:
		return &Error{Code: ErrCodeAuthFailed, Message: message}
	case status == http.StatusTooManyRequests:
		return &Error{Code: ErrCodeRateLimited, Message: message, Retryable: true}
	case status >= 500:
		return &Error{Code: ErrCodeServerError, Message: message, Retryable: true}
	default:
		return &Error{Code: ErrCodeBadRequest, Message: message}
	}
}
