package queue

import (
	"fmt"
	"log/slog"

	"github.com/hibiken/asynq"

	"github.com/notionwiki/backend/internal/infrastructure/config"
	"github.com/notionwiki/backend/internal/infrastructure/log"
)

// Client 摄取任务入队客户端
type Client struct {
	client *asynq.Client
	logger *slog.Logger
}

// NewClient 创建入队客户端
func NewClient(cfg *config.Config) *Client {
	return &Client{
		client: asynq.NewClient(asynq.RedisClientOpt{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		}),
		logger: log.NewModuleLogger("queue", "client"),
	}
}

// EnqueueIngest 将摄取任务入队
func (c *Client) EnqueueIngest(payload *IngestPayload) error {
	task, err := NewIngestTask(payload)
	if err != nil {
		return err
	}

	info, err := c.client.Enqueue(task)
	if err != nil {
		return fmt.Errorf("failed to enqueue ingest task: %w", err)
	}

	c.logger.Info("ingest task enqueued",
		"task_id", info.ID,
		"queue", info.Queue,
		"source_id", payload.SourceID,
		"mode", payload.Mode,
		"ingest_job_id", payload.IngestJobID,
	)
	return nil
}

// Close 关闭客户端连接
func (c *Client) Close() error {
	return c.client.Close()
}
