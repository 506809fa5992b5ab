package http

import (
	"context"
	"net/http"
	"time"

	"log/slog"

	"github.com/gin-gonic/gin"

	"github.com/notionwiki/backend/internal/infrastructure/config"
	"github.com/notionwiki/backend/internal/infrastructure/log"
	"github.com/notionwiki/backend/internal/interfaces/http/handler"
	"github.com/notionwiki/backend/internal/interfaces/mcp"
)

// HTTPServer HTTP 服务器
type HTTPServer struct {
	router *gin.Engine
	addr   string
	server *http.Server
	logger *slog.Logger
}

// NewServer 创建 HTTP 服务器并注册路由
func NewServer(
	sourceHandler *handler.SourceHandler,
	ingestHandler *handler.IngestHandler,
	chatHandler *handler.ChatHandler,
	mcpServer *mcp.MCPServer,
	cfg *config.ServerConfig,
) *HTTPServer {
	router := gin.Default()

	logger := log.NewModuleLogger("http", "server")

	api := router.Group("/api/v1")
	{
		// 来源与同步目标
		api.POST("/sources", sourceHandler.Create)
		api.GET("/sources", sourceHandler.List)
		api.POST("/sources/:id/targets", sourceHandler.AddTarget)
		api.GET("/sources/:id/targets", sourceHandler.ListTargets)
		api.GET("/sources/:id/discover", sourceHandler.Discover)
		api.PATCH("/targets/:id", sourceHandler.SetTargetStatus)

		// 摄取
		api.POST("/ingest/run", ingestHandler.Run)
		api.GET("/ingest/jobs", ingestHandler.ListJobs)
		api.GET("/ingest/jobs/:id", ingestHandler.GetJob)
		api.GET("/ingest/failures", ingestHandler.ListFailures)
		api.POST("/ingest/failures/:id/retry", ingestHandler.RetryFailure)

		// 问答
		api.POST("/chat", chatHandler.Chat)
	}

	// MCP over SSE，复用 HTTP 端口
	if mcpServer != nil {
		router.Any("/mcp/sse", gin.WrapH(mcpServer.GetHandler()))
	}

	// 健康检查
	router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	return &HTTPServer{
		router: router,
		addr:   cfg.HTTPAddr,
		logger: logger,
	}
}

// Start 启动服务器
func (s *HTTPServer) Start() error {
	s.server = &http.Server{
		Addr:    s.addr,
		Handler: s.router,
	}

	s.logger.Info("HTTP server starting", "addr", s.addr)
	return s.server.ListenAndServe()
}

// Shutdown 优雅关闭
func (s *HTTPServer) Shutdown(ctx context.Context) error {
	if s.server != nil {
		return s.server.Shutdown(ctx)
	}
	return nil
}

// Stop 停止服务器
func (s *HTTPServer) Stop() error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return s.Shutdown(ctx)
}

// Router 返回底层路由，供测试使用
func (s *HTTPServer) Router() *gin.Engine {
	return s.router
}
