package ingest

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/notionwiki/backend/internal/domain/knowledge"
	"github.com/notionwiki/backend/internal/infrastructure/log"
	"github.com/notionwiki/backend/internal/infrastructure/queue"
)

// Enqueuer 摄取任务入队器
type Enqueuer interface {
	EnqueueIngest(payload *queue.IngestPayload) error
}

// Dispatcher 接收摄取请求：建任务记录并投递到队列
type Dispatcher struct {
	sources  knowledge.SourceRepository
	targets  knowledge.SyncTargetRepository
	jobs     knowledge.IngestJobRepository
	failures knowledge.PageFailureRepository
	enqueuer Enqueuer
	logger   *slog.Logger
}

// NewDispatcher 创建摄取调度器
func NewDispatcher(
	sources knowledge.SourceRepository,
	targets knowledge.SyncTargetRepository,
	jobs knowledge.IngestJobRepository,
	failures knowledge.PageFailureRepository,
	enqueuer Enqueuer,
) *Dispatcher {
	return &Dispatcher{
		sources:  sources,
		targets:  targets,
		jobs:     jobs,
		failures: failures,
		enqueuer: enqueuer,
		logger:   log.NewModuleLogger("ingest", "dispatcher"),
	}
}

// RunIngest 发起一次摄取运行，返回新建的任务记录
// 入队前校验来源存在且白名单非空，避免排队后才发现无事可做
func (d *Dispatcher) RunIngest(sourceID int64, mode, requestedBy string) (*knowledge.IngestJob, error) {
	if mode != knowledge.IngestModeFull && mode != knowledge.IngestModeIncremental {
		return nil, fmt.Errorf("invalid ingest mode: %s", mode)
	}

	source, err := d.sources.FindByID(sourceID)
	if err != nil {
		return nil, fmt.Errorf("failed to load source: %w", err)
	}
	if source == nil {
		return nil, fmt.Errorf("source %d not found", sourceID)
	}

	targets, err := d.targets.FindActiveBySource(sourceID)
	if err != nil {
		return nil, fmt.Errorf("failed to load sync targets: %w", err)
	}
	if len(targets) == 0 {
		return nil, fmt.Errorf("sync target allowlist is empty; add at least one page or data source before ingesting")
	}

	job := &knowledge.IngestJob{
		SourceID:    sourceID,
		Mode:        mode,
		Status:      knowledge.JobStatusQueued,
		RequestedBy: requestedBy,
		RequestedAt: time.Now().Unix(),
	}
	if err := d.jobs.Save(job); err != nil {
		return nil, fmt.Errorf("failed to create ingest job: %w", err)
	}

	payload := &queue.IngestPayload{
		SourceID:    sourceID,
		Mode:        mode,
		RequestedBy: requestedBy,
		RequestedAt: job.RequestedAt,
		IngestJobID: job.ID,
	}
	if err := d.enqueuer.EnqueueIngest(payload); err != nil {
		return nil, fmt.Errorf("failed to enqueue ingest job: %w", err)
	}

	d.logger.Info("ingest dispatched", "job_id", job.ID, "source_id", sourceID, "mode", mode)
	return job, nil
}

// ListJobs 列出来源的摄取任务，按创建时间倒序
func (d *Dispatcher) ListJobs(sourceID int64, limit int) ([]*knowledge.IngestJob, error) {
	if limit <= 0 {
		limit = 20
	}
	return d.jobs.FindBySource(sourceID, limit)
}

// GetJob 查询单个摄取任务
func (d *Dispatcher) GetJob(jobID int64) (*knowledge.IngestJob, error) {
	job, err := d.jobs.FindByID(jobID)
	if err != nil {
		return nil, fmt.Errorf("failed to load ingest job: %w", err)
	}
	if job == nil {
		return nil, fmt.Errorf("ingest job %d not found", jobID)
	}
	return job, nil
}

// ListPageFailures 列出来源未解决的页面失败
func (d *Dispatcher) ListPageFailures(sourceID int64) ([]*knowledge.PageFailure, error) {
	return d.failures.FindOpenBySource(sourceID)
}

// RetryPageFailure 针对单个失败页面发起定向重试
func (d *Dispatcher) RetryPageFailure(failureID int64, requestedBy string) (*knowledge.IngestJob, error) {
	failure, err := d.failures.FindByID(failureID)
	if err != nil {
		return nil, fmt.Errorf("failed to load page failure: %w", err)
	}
	if failure == nil {
		return nil, fmt.Errorf("page failure %d not found", failureID)
	}
	if failure.IsResolved() {
		return nil, fmt.Errorf("page failure %d is already resolved", failureID)
	}

	source, err := d.sources.FindByID(failure.SourceID)
	if err != nil {
		return nil, fmt.Errorf("failed to load source: %w", err)
	}
	if source == nil {
		return nil, fmt.Errorf("source %d not found", failure.SourceID)
	}

	job := &knowledge.IngestJob{
		SourceID:    failure.SourceID,
		Mode:        knowledge.IngestModeIncremental,
		Status:      knowledge.JobStatusQueued,
		RequestedBy: requestedBy,
		RequestedAt: time.Now().Unix(),
	}
	if err := d.jobs.Save(job); err != nil {
		return nil, fmt.Errorf("failed to create retry job: %w", err)
	}

	if err := d.failures.MarkRetryQueued(failure.ID, job.ID, job.RequestedAt, requestedBy); err != nil {
		return nil, fmt.Errorf("failed to mark failure retry queued: %w", err)
	}

	payload := &queue.IngestPayload{
		SourceID:       failure.SourceID,
		Mode:           knowledge.IngestModeIncremental,
		RequestedBy:    requestedBy,
		RequestedAt:    job.RequestedAt,
		IngestJobID:    job.ID,
		PageIDs:        []string{failure.PageID},
		RetryFailureID: failure.ID,
	}
	if err := d.enqueuer.EnqueueIngest(payload); err != nil {
		return nil, fmt.Errorf("failed to enqueue retry job: %w", err)
	}

	d.logger.Info("page retry dispatched",
		"job_id", job.ID,
		"failure_id", failure.ID,
		"page_id", failure.PageID,
	)
	return job, nil
}
