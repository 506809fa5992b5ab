package wire

import (
	"database/sql"

	"log/slog"

	"github.com/notionwiki/backend/internal/infrastructure/log"
	"github.com/notionwiki/backend/internal/infrastructure/queue"
	"github.com/notionwiki/backend/internal/infrastructure/vector"
	"github.com/notionwiki/backend/internal/interfaces"
)

// App 应用主结构，组合所有服务
type App struct {
	HTTPServer  *interfaces.HTTPServer
	MCPServer   *interfaces.MCPServer
	queueClient *queue.Client
	vectorStore *vector.Store
	db          *sql.DB
	logger      *slog.Logger
}

// NewApp 创建应用实例
func NewApp(
	httpServer *interfaces.HTTPServer,
	mcpServer *interfaces.MCPServer,
	queueClient *queue.Client,
	vectorStore *vector.Store,
	db *sql.DB,
) *App {
	return &App{
		HTTPServer:  httpServer,
		MCPServer:   mcpServer,
		queueClient: queueClient,
		vectorStore: vectorStore,
		db:          db,
		logger:      log.NewModuleLogger("app", "main"),
	}
}

// Start 启动所有服务
func (a *App) Start() error {
	a.logger.Info("starting notionwiki backend")

	// HTTP 服务器（goroutine），MCP 通过 /mcp/sse 复用同一端口
	go func() {
		if err := a.HTTPServer.Start(); err != nil {
			a.logger.Error("HTTP server stopped", "error", err)
		}
	}()

	a.logger.Info("notionwiki backend started")
	return nil
}

// Stop 停止所有服务并释放连接
func (a *App) Stop() error {
	a.logger.Info("stopping notionwiki backend")

	if err := a.HTTPServer.Stop(); err != nil {
		a.logger.Error("failed to stop HTTP server", "error", err)
	}
	if err := a.MCPServer.Stop(); err != nil {
		a.logger.Error("failed to stop MCP server", "error", err)
	}
	if err := a.queueClient.Close(); err != nil {
		a.logger.Error("failed to close queue client", "error", err)
	}
	if err := a.vectorStore.Close(); err != nil {
		a.logger.Error("failed to close vector store", "error", err)
	}
	if err := a.db.Close(); err != nil {
		a.logger.Error("failed to close database", "error", err)
	}

	a.logger.Info("notionwiki backend stopped")
	return nil
}
