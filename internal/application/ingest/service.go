package ingest

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/hibiken/asynq"

	"github.com/notionwiki/backend/internal/domain/knowledge"
	"github.com/notionwiki/backend/internal/infrastructure/log"
	"github.com/notionwiki/backend/internal/infrastructure/notion"
	"github.com/notionwiki/backend/internal/infrastructure/provider"
	"github.com/notionwiki/backend/internal/infrastructure/queue"
	"github.com/notionwiki/backend/internal/infrastructure/vector"
)

// 页面流水线阶段名，写入失败记录
const (
	StageRetrievePage      = "retrieve_page"
	StageRetrieveBlocks    = "retrieve_blocks"
	StageNormalizeBlocks   = "normalize_blocks"
	StageDocumentUpsert    = "document_upsert"
	StageVectorMarkDeleted = "vector_mark_deleted"
	StageChunking          = "chunking"
	StageEmbedding         = "embedding"
	StageVectorBootstrap   = "vector_collection_bootstrap"
	StageChunkUpsert       = "chunk_upsert"
	StageEmbeddingRefs     = "embedding_ref_upsert"
	StageVectorUpsert      = "vector_upsert"
	StageChunkCleanup      = "chunk_cleanup"
	StageVectorCleanup     = "vector_cleanup"
)

// 任务级错误码
const (
	ErrCodePartialFailure  = "INGEST_PARTIAL_FAILURE"
	ErrCodeSourceNotFound  = "SOURCE_NOT_FOUND"
	ErrCodeNoActiveTargets = "NO_ACTIVE_TARGETS"
	ErrCodeJobSetupFailed  = "JOB_SETUP_FAILED"
)

// ContentClient 摄取所需的内容端操作
type ContentClient interface {
	RetrievePage(ctx context.Context, pageID string) (*notion.Page, error)
	ListBlocks(ctx context.Context, blockID string) ([]notion.Block, []string, error)
	QueryDataSource(ctx context.Context, dataSourceID string) ([]notion.Page, error)
}

// ClientFactory 按来源 token 创建内容客户端
type ClientFactory interface {
	ForToken(token string) ContentClient
}

// VectorIndex 摄取所需的向量库操作
type VectorIndex interface {
	EnsureCollection(ctx context.Context, dimension int) error
	UpsertPoints(ctx context.Context, points []*vector.ChunkPoint) error
	DeleteByDocument(ctx context.Context, documentID int64) error
	DeletePoints(ctx context.Context, pointIDs []string) error
}

// Service 摄取编排器：把一次摄取任务推进到底
type Service struct {
	sources   knowledge.SourceRepository
	targets   knowledge.SyncTargetRepository
	documents knowledge.DocumentRepository
	chunks    knowledge.ChunkRepository
	refs      knowledge.EmbeddingRefRepository
	jobs      knowledge.IngestJobRepository
	failures  knowledge.PageFailureRepository

	clients  ClientFactory
	provider provider.Provider
	index    VectorIndex
	logger   *slog.Logger

	// collectionReady 进程内的集合初始化标记，worker 串行执行无需加锁
	collectionReady bool
}

// NewService 创建摄取编排器
func NewService(
	sources knowledge.SourceRepository,
	targets knowledge.SyncTargetRepository,
	documents knowledge.DocumentRepository,
	chunks knowledge.ChunkRepository,
	refs knowledge.EmbeddingRefRepository,
	jobs knowledge.IngestJobRepository,
	failures knowledge.PageFailureRepository,
	clients ClientFactory,
	prov provider.Provider,
	index VectorIndex,
) *Service {
	return &Service{
		sources:   sources,
		targets:   targets,
		documents: documents,
		chunks:    chunks,
		refs:      refs,
		jobs:      jobs,
		failures:  failures,
		clients:   clients,
		provider:  prov,
		index:     index,
		logger:    log.NewModuleLogger("ingest", "service"),
	}
}

// ProcessTask asynq 任务入口
func (s *Service) ProcessTask(ctx context.Context, task *asynq.Task) error {
	payload, err := queue.ParseIngestPayload(task)
	if err != nil {
		return err
	}
	return s.Run(ctx, payload)
}

// pageOutcome 单页处理结果
type pageOutcome int

const (
	outcomeProcessed pageOutcome = iota
	outcomeSkipped
	outcomeFailed
)

// Run 执行一次摄取任务
// 页面级错误被记录为失败并继续；只有任务级前置条件不满足才算任务失败
func (s *Service) Run(ctx context.Context, payload *queue.IngestPayload) error {
	job, err := s.jobs.FindByID(payload.IngestJobID)
	if err != nil {
		return fmt.Errorf("failed to load ingest job: %w", err)
	}
	if job == nil {
		return fmt.Errorf("ingest job %d not found", payload.IngestJobID)
	}

	now := time.Now().Unix()
	job.Status = knowledge.JobStatusRunning
	job.Attempt++
	job.StartedAt = &now
	if err := s.jobs.Save(job); err != nil {
		return fmt.Errorf("failed to mark job running: %w", err)
	}

	source, err := s.sources.FindByID(payload.SourceID)
	if err != nil {
		return s.failJob(job, ErrCodeJobSetupFailed, err.Error())
	}
	if source == nil {
		return s.failJob(job, ErrCodeSourceNotFound, fmt.Sprintf("source %d not found", payload.SourceID))
	}

	client := s.clients.ForToken(source.Token)
	s.logger.Info("ingest run started",
		"job_id", job.ID,
		"source_id", source.ID,
		"mode", payload.Mode,
		"attempt", job.Attempt,
		"scoped_pages", len(payload.PageIDs),
		"retry_failure_id", payload.RetryFailureID,
	)

	var processed, failed, skipped, chunksUpserted int
	seen := make(map[string]bool)

	runPage := func(pageID string, lastSyncAt *int64) {
		if seen[pageID] {
			return
		}
		seen[pageID] = true

		outcome, chunkCount := s.processPage(ctx, client, source, job, pageID, payload.Mode, lastSyncAt)
		switch outcome {
		case outcomeProcessed:
			processed++
			chunksUpserted += chunkCount
		case outcomeSkipped:
			skipped++
		case outcomeFailed:
			failed++
		}
	}

	if len(payload.PageIDs) > 0 {
		// 定向运行：只处理指定页面，不遍历目标也不推进水位
		for _, pageID := range payload.PageIDs {
			runPage(pageID, nil)
		}
	} else {
		targets, err := s.targets.FindActiveBySource(source.ID)
		if err != nil {
			return s.failJob(job, ErrCodeJobSetupFailed, err.Error())
		}
		if len(targets) == 0 {
			return s.failJob(job, ErrCodeNoActiveTargets, "sync target allowlist is empty; nothing to ingest")
		}

		for _, target := range targets {
			var watermark *int64
			if payload.Mode == knowledge.IngestModeIncremental {
				watermark = target.LastSyncAt
			}

			switch target.TargetType {
			case knowledge.TargetTypeDataSource:
				pages, err := client.QueryDataSource(ctx, target.TargetID)
				if err != nil {
					// 整个数据源不可读：以目标 ID 记一条页面失败
					s.recordFailure(source.ID, target.TargetID, job.ID, StageRetrievePage, err)
					failed++
					continue
				}
				for _, page := range pages {
					// 数据源查询已带元数据，水位之下的页面不再逐页拉取
					if watermark != nil && parseNotionTime(page.LastEditedTime) <= *watermark {
						if !seen[page.ID] {
							seen[page.ID] = true
							skipped++
						}
						continue
					}
					runPage(page.ID, watermark)
				}
			default:
				runPage(target.TargetID, watermark)
			}

			if err := s.targets.UpdateLastSyncAt(target.ID, time.Now().Unix()); err != nil {
				s.logger.Error("failed to advance sync watermark", "target_id", target.ID, "error", err)
			}
		}
	}

	finished := time.Now().Unix()
	job.FinishedAt = &finished
	job.Status = knowledge.JobStatusSucceeded
	job.PagesProcessed = processed
	job.PagesFailed = failed
	job.ChunksUpserted = chunksUpserted
	if failed > 0 {
		job.ErrorCode = ErrCodePartialFailure
		job.Message = fmt.Sprintf("Skipped %d page(s) due to recoverable errors. Check worker logs for details.", failed)
	} else {
		job.ErrorCode = ""
		job.Message = ""
	}
	if err := s.jobs.Save(job); err != nil {
		return fmt.Errorf("failed to finish job: %w", err)
	}

	s.logger.Info("ingest run finished",
		"job_id", job.ID,
		"pages_processed", processed,
		"pages_failed", failed,
		"pages_skipped", skipped,
		"chunks_upserted", chunksUpserted,
	)
	return nil
}

// failJob 任务级失败：页面循环尚未开始
func (s *Service) failJob(job *knowledge.IngestJob, code, message string) error {
	finished := time.Now().Unix()
	job.Status = knowledge.JobStatusFailed
	job.ErrorCode = code
	job.Message = message
	job.FinishedAt = &finished
	if err := s.jobs.Save(job); err != nil {
		return fmt.Errorf("failed to persist job failure: %w", err)
	}
	s.logger.Error("ingest job failed", "job_id", job.ID, "code", code, "message", message)
	return nil
}

// processPage 处理单个页面，贯穿整条流水线
func (s *Service) processPage(
	ctx context.Context,
	client ContentClient,
	source *knowledge.Source,
	job *knowledge.IngestJob,
	pageID string,
	mode string,
	lastSyncAt *int64,
) (pageOutcome, int) {
	fail := func(stage string, err error) (pageOutcome, int) {
		s.recordFailure(source.ID, pageID, job.ID, stage, err)
		return outcomeFailed, 0
	}

	page, err := client.RetrievePage(ctx, pageID)
	if err != nil {
		return fail(StageRetrievePage, err)
	}

	if page.Removed() {
		return s.tombstonePage(ctx, source, job, page)
	}

	lastEdited := parseNotionTime(page.LastEditedTime)
	if mode == knowledge.IngestModeIncremental && lastSyncAt != nil && lastEdited <= *lastSyncAt {
		return outcomeSkipped, 0
	}

	blocks, warnings, err := client.ListBlocks(ctx, page.ID)
	if err != nil {
		return fail(StageRetrieveBlocks, err)
	}
	for _, warning := range warnings {
		s.logger.Warn("block listing warning", "page_id", page.ID, "warning", warning)
	}

	text := NormalizeBlocks(blocks)

	docID, err := s.documents.Upsert(&knowledge.Document{
		SourceID:     source.ID,
		PageID:       page.ID,
		Title:        page.PlainTitle(),
		URL:          page.URL,
		Status:       knowledge.DocumentStatusActive,
		LastEditedAt: lastEdited,
	})
	if err != nil {
		return fail(StageDocumentUpsert, err)
	}

	pieces := ChunkText(source.ID, page.ID, text)
	if len(pieces) == 0 {
		// 空页面：没有可索引内容，视为正常处理
		s.resolveFailure(source.ID, page.ID)
		return outcomeProcessed, 0
	}

	texts := make([]string, len(pieces))
	for i, piece := range pieces {
		texts[i] = piece.Text
	}
	// 提供方客户端自带重试，这里不再包一层
	embeddings, err := s.provider.Embed(ctx, &provider.EmbedRequest{Texts: texts})
	if err != nil {
		return fail(StageEmbedding, err)
	}

	if !s.collectionReady {
		if err := s.index.EnsureCollection(ctx, embeddings.Dimension); err != nil {
			return fail(StageVectorBootstrap, err)
		}
		s.collectionReady = true
	}

	domainChunks := make([]*knowledge.Chunk, len(pieces))
	refs := make([]*knowledge.EmbeddingRef, len(pieces))
	points := make([]*vector.ChunkPoint, len(pieces))
	keep := make([]string, len(pieces))
	for i, piece := range pieces {
		pointID := PointIDForChunk(piece.ChunkID)
		keep[i] = piece.ChunkID
		domainChunks[i] = &knowledge.Chunk{
			ChunkID:     piece.ChunkID,
			DocumentID:  docID,
			SourceID:    source.ID,
			PageID:      page.ID,
			ChunkIndex:  piece.Index,
			Text:        piece.Text,
			TokenCount:  piece.TokenCount,
			StartOffset: piece.StartOffset,
			EndOffset:   piece.EndOffset,
		}
		refs[i] = &knowledge.EmbeddingRef{
			ChunkID:   piece.ChunkID,
			PointID:   pointID,
			Model:     embeddings.Model,
			Dimension: embeddings.Dimension,
		}
		points[i] = &vector.ChunkPoint{
			PointID:      pointID,
			Vector:       embeddings.Vectors[i],
			ChunkID:      piece.ChunkID,
			SourceID:     source.ID,
			DocumentID:   docID,
			PageID:       page.ID,
			ChunkIndex:   piece.Index,
			Title:        page.PlainTitle(),
			URL:          page.URL,
			Text:         piece.Text,
			LastEditedAt: page.LastEditedTime,
		}
	}

	if err := s.chunks.UpsertBatch(domainChunks); err != nil {
		return fail(StageChunkUpsert, err)
	}
	if err := s.refs.UpsertBatch(refs); err != nil {
		return fail(StageEmbeddingRefs, err)
	}
	if err := s.index.UpsertPoints(ctx, points); err != nil {
		return fail(StageVectorUpsert, err)
	}

	stale, err := s.chunks.DeleteStale(docID, keep)
	if err != nil {
		return fail(StageChunkCleanup, err)
	}
	if len(stale) > 0 {
		pointIDs, err := s.refs.FindPointIDs(stale)
		if err != nil {
			return fail(StageVectorCleanup, err)
		}
		if err := s.index.DeletePoints(ctx, pointIDs); err != nil {
			return fail(StageVectorCleanup, err)
		}
		if err := s.refs.DeleteByChunkIDs(stale); err != nil {
			return fail(StageVectorCleanup, err)
		}
	}

	s.resolveFailure(source.ID, page.ID)
	s.logger.Info("page ingested",
		"page_id", page.ID,
		"chunks", len(pieces),
		"stale_removed", len(stale),
	)
	return outcomeProcessed, len(pieces)
}

// tombstonePage 页面被归档或删除：打墓碑并清理向量
func (s *Service) tombstonePage(ctx context.Context, source *knowledge.Source, job *knowledge.IngestJob, page *notion.Page) (pageOutcome, int) {
	doc, err := s.documents.FindBySourceAndPage(source.ID, page.ID)
	if err != nil {
		s.recordFailure(source.ID, page.ID, job.ID, StageDocumentUpsert, err)
		return outcomeFailed, 0
	}
	if doc != nil {
		if _, err := s.documents.MarkDeleted(source.ID, page.ID, time.Now().Unix()); err != nil {
			s.recordFailure(source.ID, page.ID, job.ID, StageDocumentUpsert, err)
			return outcomeFailed, 0
		}
		if err := s.index.DeleteByDocument(ctx, doc.ID); err != nil {
			s.recordFailure(source.ID, page.ID, job.ID, StageVectorMarkDeleted, err)
			return outcomeFailed, 0
		}
	}

	s.resolveFailure(source.ID, page.ID)
	s.logger.Info("page tombstoned", "page_id", page.ID)
	return outcomeProcessed, 0
}

// recordFailure 登记页面失败，错误码按出错的依赖分类
func (s *Service) recordFailure(sourceID int64, pageID string, jobID int64, stage string, err error) {
	failure := &knowledge.PageFailure{
		SourceID:     sourceID,
		PageID:       pageID,
		IngestJobID:  jobID,
		Stage:        stage,
		ErrorCode:    failureCode(stage, err),
		ErrorMessage: err.Error(),
		LastFailedAt: time.Now().Unix(),
	}
	if recordErr := s.failures.RecordFailure(failure); recordErr != nil {
		s.logger.Error("failed to record page failure", "page_id", pageID, "error", recordErr)
	}
	s.logger.Error("page ingest failed",
		"page_id", pageID,
		"stage", stage,
		"code", failure.ErrorCode,
		"error", err,
	)
}

// resolveFailure 页面成功后关闭历史失败记录
func (s *Service) resolveFailure(sourceID int64, pageID string) {
	if err := s.failures.Resolve(sourceID, pageID, time.Now().Unix()); err != nil {
		s.logger.Error("failed to resolve page failure", "page_id", pageID, "error", err)
	}
}

// failureCode 由底层错误推导失败码
func failureCode(stage string, err error) string {
	var apiErr *notion.APIError
	if errors.As(err, &apiErr) {
		return "NOTION_" + apiErr.Code
	}
	var provErr *provider.Error
	if errors.As(err, &provErr) {
		return "EMBEDDING_" + provErr.Code
	}
	switch stage {
	case StageVectorMarkDeleted, StageVectorBootstrap, StageVectorUpsert, StageVectorCleanup:
		return "QDRANT_REQUEST_FAILED"
	}
	return ""
}

// parseNotionTime 解析 Notion 时间戳为 Unix 秒，解析失败返回 0
func parseNotionTime(value string) int64 {
	if value == "" {
		return 0
	}
	t, err := time.Parse(time.RFC3339, value)
	if err != nil {
		return 0
	}
	return t.Unix()
}
