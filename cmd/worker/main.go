package main

import (
	"os"

	"github.com/hibiken/asynq"

	"github.com/notionwiki/backend/internal/application/ingest"
	"github.com/notionwiki/backend/internal/infrastructure/config"
	applog "github.com/notionwiki/backend/internal/infrastructure/log"
	"github.com/notionwiki/backend/internal/infrastructure/notion"
	"github.com/notionwiki/backend/internal/infrastructure/provider"
	"github.com/notionwiki/backend/internal/infrastructure/queue"
	"github.com/notionwiki/backend/internal/infrastructure/storage"
	"github.com/notionwiki/backend/internal/infrastructure/vector"
)

func main() {
	// 初始化日志系统
	applog.Init(nil)
	logger := applog.GetLogger()

	cfg := config.Load()

	db, err := storage.NewDB(config.NewDatabaseConfig(cfg))
	if err != nil {
		logger.Error("Failed to open database", "error", err)
		os.Exit(1)
	}
	defer db.Close()

	store, err := vector.NewStore(cfg)
	if err != nil {
		logger.Error("Failed to connect to vector store", "error", err)
		os.Exit(1)
	}
	defer store.Close()

	service := ingest.NewService(
		storage.NewSourceRepository(db),
		storage.NewSyncTargetRepository(db),
		storage.NewDocumentRepository(db),
		storage.NewChunkRepository(db),
		storage.NewEmbeddingRefRepository(db),
		storage.NewIngestJobRepository(db),
		storage.NewPageFailureRepository(db),
		ingest.NewClientFactory(notion.NewFactory(cfg)),
		provider.NewProvider(cfg),
		store,
	)

	// 单并发消费，保证同一来源的摄取顺序执行
	srv := asynq.NewServer(
		asynq.RedisClientOpt{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		},
		asynq.Config{
			Concurrency: 1,
			Queues: map[string]int{
				queue.IngestQueue: 1,
			},
		},
	)

	mux := asynq.NewServeMux()
	mux.HandleFunc(queue.TypeIngestRun, service.ProcessTask)

	logger.Info("ingest worker starting", "redis", cfg.Redis.Addr)
	if err := srv.Run(mux); err != nil {
		logger.Error("ingest worker stopped", "error", err)
		os.Exit(1)
	}
}
