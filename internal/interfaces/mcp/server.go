package mcp

import (
	"net/http"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/notionwiki/backend/internal/application/query"
)

// MCPServer MCP 服务器
type MCPServer struct {
	server       *mcp.Server
	handler      http.Handler
	queryService *query.Service
}

// NewServer 创建 MCP 服务器并注册知识库工具
func NewServer(queryService *query.Service) *MCPServer {
	server := mcp.NewServer(
		&mcp.Implementation{
			Name:    "notionwiki-backend",
			Version: "0.1.0",
		},
		nil, // 使用默认能力
	)

	mcpServer := &MCPServer{
		server:       server,
		queryService: queryService,
	}

	// 注册工具：ask_knowledge_base
	mcp.AddTool(server, &mcp.Tool{
		Name: "ask_knowledge_base",
		Description: `Ask a question against an indexed Notion knowledge base and get a grounded answer with citations.

Use this tool when you need factual information that lives in the team's Notion workspace (runbooks, design docs, onboarding guides, policies).

Parameters:
- source_id (int, required): ID of the knowledge source to query
- question (string, required): Natural language question

Returns: answer text, citations (chunk ID, document title, URL, verbatim quote), and timing metadata. If no relevant evidence exists the answer says so explicitly instead of guessing.`,
	}, mcpServer.askKnowledgeBaseTool)

	// 注册工具：search_chunks
	mcp.AddTool(server, &mcp.Tool{
		Name: "search_chunks",
		Description: `Retrieve raw indexed chunks from a Notion knowledge base without LLM generation.

Use this tool when you want the underlying source material itself, or when you plan to synthesize an answer yourself from multiple passages.

Parameters:
- source_id (int, required): ID of the knowledge source to search
- query (string, required): Search query; exact phrases can be wrapped in quotes
- limit (int, optional): Maximum number of chunks to return (1-50, default 8)

Returns: list of chunks with document title, URL, text, and relevance score.`,
	}, mcpServer.searchChunksTool)

	// 创建 SSE Handler
	handler := mcp.NewSSEHandler(
		func(r *http.Request) *mcp.Server {
			// 每个请求返回同一个服务器实例
			return server
		},
		nil, // SSEOptions，使用默认值
	)

	mcpServer.handler = handler
	return mcpServer
}

// GetHandler 获取 HTTP Handler（用于集成到 HTTP 服务器）
func (s *MCPServer) GetHandler() http.Handler {
	return s.handler
}

// Stop 停止服务器
// HTTP/SSE 模式下生命周期由 HTTP 服务器统一管理
func (s *MCPServer) Stop() error {
	return nil
}
