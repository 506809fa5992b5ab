package mcp

import (
	"context"
	"fmt"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/notionwiki/backend/internal/application/query"
)

const (
	defaultSearchLimit = 8
	maxSearchLimit     = 50
)

// AskKnowledgeBaseInput 问答工具输入
type AskKnowledgeBaseInput struct {
	SourceID int64  `json:"source_id" jsonschema:"知识来源 ID"`
	Question string `json:"question" jsonschema:"自然语言问题"`
}

// AskKnowledgeBaseOutput 问答工具输出
type AskKnowledgeBaseOutput struct {
	Answer       string           `json:"answer" jsonschema:"基于引用内容的回答"`
	Citations    []query.Citation `json:"citations" jsonschema:"引用列表，含 chunkId、标题、URL 和原文引文"`
	RetrievalMs  int64            `json:"retrieval_ms" jsonschema:"检索耗时（毫秒）"`
	GenerationMs int64            `json:"generation_ms" jsonschema:"生成耗时（毫秒）"`
}

// SearchChunksInput 检索工具输入
type SearchChunksInput struct {
	SourceID int64  `json:"source_id" jsonschema:"知识来源 ID"`
	Query    string `json:"query" jsonschema:"检索查询，支持引号包裹的精确短语"`
	Limit    int    `json:"limit,omitempty" jsonschema:"返回的最大片段数（1-50，默认 8）"`
}

// SearchChunksOutput 检索工具输出
type SearchChunksOutput struct {
	Results []query.SearchResultItem `json:"results" jsonschema:"检索到的片段列表"`
	Total   int                      `json:"total" jsonschema:"返回的片段数"`
}

// askKnowledgeBaseTool 处理 ask_knowledge_base 工具调用
func (s *MCPServer) askKnowledgeBaseTool(ctx context.Context, req *mcp.CallToolRequest, input AskKnowledgeBaseInput) (*mcp.CallToolResult, AskKnowledgeBaseOutput, error) {
	if input.SourceID <= 0 {
		return nil, AskKnowledgeBaseOutput{}, fmt.Errorf("source_id is required")
	}
	if input.Question == "" {
		return nil, AskKnowledgeBaseOutput{}, fmt.Errorf("question is required")
	}

	answer, err := s.queryService.Ask(ctx, input.SourceID, input.Question)
	if err != nil {
		return nil, AskKnowledgeBaseOutput{}, fmt.Errorf("failed to answer question: %w", err)
	}

	output := AskKnowledgeBaseOutput{
		Answer:       answer.Answer,
		Citations:    answer.Citations,
		RetrievalMs:  answer.Meta.RetrievalMs,
		GenerationMs: answer.Meta.GenerationMs,
	}
	if output.Citations == nil {
		output.Citations = []query.Citation{}
	}
	return nil, output, nil
}

// searchChunksTool 处理 search_chunks 工具调用
func (s *MCPServer) searchChunksTool(ctx context.Context, req *mcp.CallToolRequest, input SearchChunksInput) (*mcp.CallToolResult, SearchChunksOutput, error) {
	if input.SourceID <= 0 {
		return nil, SearchChunksOutput{}, fmt.Errorf("source_id is required")
	}
	if input.Query == "" {
		return nil, SearchChunksOutput{}, fmt.Errorf("query is required")
	}

	limit := input.Limit
	if limit <= 0 {
		limit = defaultSearchLimit
	}
	if limit > maxSearchLimit {
		limit = maxSearchLimit
	}

	results, err := s.queryService.SearchChunks(ctx, input.SourceID, input.Query, limit)
	if err != nil {
		return nil, SearchChunksOutput{}, fmt.Errorf("failed to search chunks: %w", err)
	}
	if results == nil {
		results = []query.SearchResultItem{}
	}
	return nil, SearchChunksOutput{Results: results, Total: len(results)}, nil
}
