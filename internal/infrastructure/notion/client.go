package notion

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math"
	"math/rand"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"github.com/notionwiki/backend/internal/infrastructure/config"
	"github.com/notionwiki/backend/internal/infrastructure/log"
)

const (
	defaultPageSize = 100

	baseRetryDelay = 500 * time.Millisecond
	maxRetryDelay  = 10 * time.Second
	retryJitter    = 250 * time.Millisecond

	// Notion 对机器人无权访问的块子树返回 400 并带这段提示
	unsupportedSubtreeMarker = "not supported via the API for your bot type"
)

// Factory 按来源 token 构建客户端
type Factory struct {
	cfg *config.NotionConfig
}

// NewFactory 创建客户端工厂
func NewFactory(cfg *config.Config) *Factory {
	return &Factory{cfg: &cfg.Notion}
}

// ForToken 为指定 integration token 创建客户端
func (f *Factory) ForToken(token string) *Client {
	return NewClient(f.cfg, token)
}

// Client Notion API 客户端
// 同一客户端内的请求共享一个最小间隔水位，重试也计入
type Client struct {
	baseURL    string
	version    string
	token      string
	maxRetries int
	limiter    *rate.Limiter
	httpClient *http.Client
	logger     *slog.Logger
}

// NewClient 创建 Notion 客户端
func NewClient(cfg *config.NotionConfig, token string) *Client {
	rps := cfg.RequestsPerSecond
	if rps <= 0 {
		rps = 3
	}
	// 最小请求间隔：ceil(1000/rps) 毫秒，下限 1 毫秒
	interval := time.Duration(math.Ceil(1000/rps)) * time.Millisecond
	if interval < time.Millisecond {
		interval = time.Millisecond
	}

	maxRetries := cfg.MaxRetries
	if maxRetries <= 0 {
		maxRetries = 3
	}

	return &Client{
		baseURL:    strings.TrimSuffix(cfg.BaseURL, "/"),
		version:    cfg.Version,
		token:      token,
		maxRetries: maxRetries,
		limiter:    rate.NewLimiter(rate.Every(interval), 1),
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
		logger: log.NewModuleLogger("notion", "client"),
	}
}

// Me 查询当前 bot 用户，用于验证 token
func (c *Client) Me(ctx context.Context) (*User, error) {
	var user User
	if err := c.doRequest(ctx, http.MethodGet, "users/me", nil, &user); err != nil {
		return nil, err
	}
	return &user, nil
}

// RetrievePage 获取页面元数据
func (c *Client) RetrievePage(ctx context.Context, pageID string) (*Page, error) {
	var page Page
	if err := c.doRequest(ctx, http.MethodGet, "pages/"+url.PathEscape(pageID), nil, &page); err != nil {
		return nil, err
	}
	return &page, nil
}

// ListBlocks 递归列出页面下的全部内容块
// 无权访问的子树不会中断遍历，而是作为警告返回
func (c *Client) ListBlocks(ctx context.Context, blockID string) ([]Block, []string, error) {
	var blocks []Block
	var warnings []string
	if err := c.collectBlocks(ctx, blockID, &blocks, &warnings); err != nil {
		return nil, nil, err
	}
	return blocks, warnings, nil
}

// collectBlocks 深度优先收集子块
func (c *Client) collectBlocks(ctx context.Context, blockID string, blocks *[]Block, warnings *[]string) error {
	cursor := ""
	for {
		path := fmt.Sprintf("blocks/%s/children?page_size=%d", url.PathEscape(blockID), defaultPageSize)
		if cursor != "" {
			path += "&start_cursor=" + url.QueryEscape(cursor)
		}

		var envelope struct {
			Results    []Block `json:"results"`
			HasMore    bool    `json:"has_more"`
			NextCursor string  `json:"next_cursor"`
		}
		if err := c.doRequest(ctx, http.MethodGet, path, nil, &envelope); err != nil {
			var apiErr *APIError
			if errors.As(err, &apiErr) && apiErr.Code == ErrCodeBadRequest &&
				strings.Contains(apiErr.Message, unsupportedSubtreeMarker) {
				c.logger.Warn("skipping unsupported block subtree",
					"block_id", blockID,
					"message", apiErr.Message,
				)
				*warnings = append(*warnings, fmt.Sprintf("skipped unsupported block subtree under %s: %s", blockID, apiErr.Message))
				return nil
			}
			return err
		}

		for _, block := range envelope.Results {
			*blocks = append(*blocks, block)
			// 子页面和子数据库是独立文档，不下钻
			if block.HasChildren && block.Type != "child_page" && block.Type != "child_database" {
				if err := c.collectBlocks(ctx, block.ID, blocks, warnings); err != nil {
					return err
				}
			}
		}

		if !envelope.HasMore || envelope.NextCursor == "" {
			return nil
		}
		cursor = envelope.NextCursor
	}
}

// QueryDataSource 列出数据源下的全部页面
func (c *Client) QueryDataSource(ctx context.Context, dataSourceID string) ([]Page, error) {
	var pages []Page
	cursor := ""
	for {
		body := map[string]any{"page_size": defaultPageSize}
		if cursor != "" {
			body["start_cursor"] = cursor
		}

		var envelope struct {
			Results    []Page `json:"results"`
			HasMore    bool   `json:"has_more"`
			NextCursor string `json:"next_cursor"`
		}
		path := fmt.Sprintf("data_sources/%s/query", url.PathEscape(dataSourceID))
		if err := c.doRequest(ctx, http.MethodPost, path, body, &envelope); err != nil {
			return nil, err
		}

		pages = append(pages, envelope.Results...)
		if !envelope.HasMore || envelope.NextCursor == "" {
			return pages, nil
		}
		cursor = envelope.NextCursor
	}
}

// SearchAll 搜索工作区内 bot 可见的页面和数据源，按最近编辑排序
func (c *Client) SearchAll(ctx context.Context, query string) ([]SearchResult, error) {
	var results []SearchResult
	cursor := ""
	for {
		body := map[string]any{
			"page_size": defaultPageSize,
			"sort": map[string]string{
				"direction": "descending",
				"timestamp": "last_edited_time",
			},
		}
		if query != "" {
			body["query"] = query
		}
		if cursor != "" {
			body["start_cursor"] = cursor
		}

		var envelope struct {
			Results    []json.RawMessage `json:"results"`
			HasMore    bool              `json:"has_more"`
			NextCursor string            `json:"next_cursor"`
		}
		if err := c.doRequest(ctx, http.MethodPost, "search", body, &envelope); err != nil {
			return nil, err
		}

		for _, raw := range envelope.Results {
			result, err := decodeSearchResult(raw)
			if err != nil {
				return nil, fmt.Errorf("failed to decode search result: %w", err)
			}
			if result != nil {
				results = append(results, *result)
			}
		}

		if !envelope.HasMore || envelope.NextCursor == "" {
			return results, nil
		}
		cursor = envelope.NextCursor
	}
}

// decodeSearchResult 按 object 类型解码搜索结果，未知类型跳过
func decodeSearchResult(raw json.RawMessage) (*SearchResult, error) {
	var peek struct {
		Object string `json:"object"`
	}
	if err := json.Unmarshal(raw, &peek); err != nil {
		return nil, err
	}

	switch peek.Object {
	case "page":
		var page Page
		if err := json.Unmarshal(raw, &page); err != nil {
			return nil, err
		}
		return &SearchResult{
			ID:             page.ID,
			Object:         "page",
			URL:            page.URL,
			LastEditedTime: page.LastEditedTime,
			Title:          page.PlainTitle(),
		}, nil
	case "data_source":
		var ds struct {
			ID             string     `json:"id"`
			Title          []RichText `json:"title"`
			URL            string     `json:"url"`
			LastEditedTime string     `json:"last_edited_time"`
		}
		if err := json.Unmarshal(raw, &ds); err != nil {
			return nil, err
		}
		var sb strings.Builder
		for _, rt := range ds.Title {
			sb.WriteString(rt.PlainText)
		}
		return &SearchResult{
			ID:             ds.ID,
			Object:         "data_source",
			URL:            ds.URL,
			LastEditedTime: ds.LastEditedTime,
			Title:          sb.String(),
		}, nil
	default:
		return nil, nil
	}
}

// doRequest 发送请求，带水位限速和分类重试
func (c *Client) doRequest(ctx context.Context, method, path string, body any, out any) error {
	var payload []byte
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("failed to marshal request: %w", err)
		}
		payload = data
	}

	requestURL := c.baseURL + "/" + path

	for attempt := 0; ; attempt++ {
		if err := c.limiter.Wait(ctx); err != nil {
			return err
		}

		var reader io.Reader
		if payload != nil {
			reader = bytes.NewReader(payload)
		}
		req, err := http.NewRequestWithContext(ctx, method, requestURL, reader)
		if err != nil {
			return fmt.Errorf("failed to create request: %w", err)
		}
		req.Header.Set("Authorization", "Bearer "+c.token)
		req.Header.Set("Notion-Version", c.version)
		if payload != nil {
			req.Header.Set("Content-Type", "application/json")
		}

		resp, err := c.httpClient.Do(req)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			if attempt < c.maxRetries {
				c.logger.Warn("request failed, retrying",
					"method", method,
					"path", path,
					"attempt", attempt+1,
					"error", err,
				)
				if err := sleepCtx(ctx, backoffDelay(attempt)); err != nil {
					return err
				}
				continue
			}
			return fmt.Errorf("failed to send request: %w", err)
		}

		respBody, readErr := io.ReadAll(resp.Body)
		resp.Body.Close()

		if resp.StatusCode == http.StatusOK {
			if readErr != nil {
				return fmt.Errorf("failed to read response: %w", readErr)
			}
			if out != nil {
				if err := json.Unmarshal(respBody, out); err != nil {
					return fmt.Errorf("failed to decode response: %w", err)
				}
			}
			return nil
		}

		apiErr := &APIError{
			Code:    classifyStatus(resp.StatusCode),
			Status:  resp.StatusCode,
			Message: extractErrorMessage(respBody),
		}
		if seconds, err := strconv.ParseFloat(resp.Header.Get("Retry-After"), 64); err == nil && seconds > 0 {
			apiErr.RetryAfter = time.Duration(seconds * float64(time.Second))
		}

		if apiErr.Retryable() && attempt < c.maxRetries {
			delay := apiErr.RetryAfter
			if delay <= 0 {
				delay = backoffDelay(attempt)
			}
			c.logger.Warn("retryable api error",
				"method", method,
				"path", path,
				"code", apiErr.Code,
				"status", apiErr.Status,
				"attempt", attempt+1,
				"delay", delay,
			)
			if err := sleepCtx(ctx, delay); err != nil {
				return err
			}
			continue
		}

		return apiErr
	}
}

// extractErrorMessage 从错误响应体提取 message 字段
func extractErrorMessage(body []byte) string {
	var payload struct {
		Message string `json:"message"`
	}
	if err := json.Unmarshal(body, &payload); err == nil && payload.Message != "" {
		return payload.Message
	}
	msg := string(body)
	if len(msg) > 200 {
		msg = msg[:200]
	}
	return msg
}

// backoffDelay 指数退避：500ms * 2^attempt 加抖动，上限 10 秒
func backoffDelay(attempt int) time.Duration {
	delay := baseRetryDelay << uint(attempt)
	delay += time.Duration(rand.Int63n(int64(retryJitter)))
	if delay > maxRetryDelay {
		delay = maxRetryDelay
	}
	return delay
}

// sleepCtx 可取消的等待
func sleepCtx(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
