package storage

import (
	"database/sql"
	"fmt"

	"github.com/notionwiki/backend/internal/domain/knowledge"
)

// 确保 IngestJobRepositoryImpl 实现了 knowledge.IngestJobRepository 接口
var _ knowledge.IngestJobRepository = (*IngestJobRepositoryImpl)(nil)

// IngestJobRepositoryImpl 摄取任务仓库实现
type IngestJobRepositoryImpl struct {
	db *sql.DB
}

// NewIngestJobRepository 创建摄取任务仓库实例
func NewIngestJobRepository(db *sql.DB) knowledge.IngestJobRepository {
	return &IngestJobRepositoryImpl{db: db}
}

// Save 保存任务，ID 为零时插入并回填 ID
func (r *IngestJobRepositoryImpl) Save(job *knowledge.IngestJob) error {
	if job.ID == 0 {
		result, err := r.db.Exec(
			`INSERT INTO ingest_jobs
			 (source_id, mode, status, attempt, error_code, message, requested_by, requested_at,
			  started_at, finished_at, pages_processed, pages_failed, chunks_upserted)
			 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			job.SourceID, job.Mode, job.Status, job.Attempt, job.ErrorCode, job.Message, job.RequestedBy,
			job.RequestedAt, job.StartedAt, job.FinishedAt,
			job.PagesProcessed, job.PagesFailed, job.ChunksUpserted,
		)
		if err != nil {
			return fmt.Errorf("failed to insert ingest job: %w", err)
		}
		id, err := result.LastInsertId()
		if err != nil {
			return fmt.Errorf("failed to get ingest job id: %w", err)
		}
		job.ID = id
		return nil
	}

	_, err := r.db.Exec(
		`UPDATE ingest_jobs SET status = ?, attempt = ?, error_code = ?, message = ?, started_at = ?, finished_at = ?,
		        pages_processed = ?, pages_failed = ?, chunks_upserted = ?
		 WHERE id = ?`,
		job.Status, job.Attempt, job.ErrorCode, job.Message, job.StartedAt, job.FinishedAt,
		job.PagesProcessed, job.PagesFailed, job.ChunksUpserted, job.ID,
	)
	if err != nil {
		return fmt.Errorf("failed to update ingest job: %w", err)
	}
	return nil
}

// FindByID 按 ID 查找任务
func (r *IngestJobRepositoryImpl) FindByID(id int64) (*knowledge.IngestJob, error) {
	row := r.db.QueryRow(
		`SELECT id, source_id, mode, status, attempt, error_code, message, requested_by, requested_at,
		        started_at, finished_at, pages_processed, pages_failed, chunks_upserted
		 FROM ingest_jobs WHERE id = ?`, id,
	)
	job, err := scanJob(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	return job, err
}

// FindBySource 列出来源的任务，按请求时间倒序
func (r *IngestJobRepositoryImpl) FindBySource(sourceID int64, limit int) ([]*knowledge.IngestJob, error) {
	rows, err := r.db.Query(
		`SELECT id, source_id, mode, status, attempt, error_code, message, requested_by, requested_at,
		        started_at, finished_at, pages_processed, pages_failed, chunks_upserted
		 FROM ingest_jobs WHERE source_id = ? ORDER BY requested_at DESC, id DESC LIMIT ?`,
		sourceID, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to query ingest jobs: %w", err)
	}
	defer rows.Close()

	var jobs []*knowledge.IngestJob
	for rows.Next() {
		job, err := scanJob(rows)
		if err != nil {
			return nil, err
		}
		jobs = append(jobs, job)
	}
	return jobs, rows.Err()
}

// scanJob 扫描一行摄取任务
func scanJob(row scanner) (*knowledge.IngestJob, error) {
	var job knowledge.IngestJob
	var startedAt, finishedAt sql.NullInt64

	err := row.Scan(&job.ID, &job.SourceID, &job.Mode, &job.Status, &job.Attempt, &job.ErrorCode, &job.Message,
		&job.RequestedBy, &job.RequestedAt, &startedAt, &finishedAt,
		&job.PagesProcessed, &job.PagesFailed, &job.ChunksUpserted)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, err
		}
		return nil, fmt.Errorf("failed to scan ingest job: %w", err)
	}

	if startedAt.Valid {
		job.StartedAt = &startedAt.Int64
	}
	if finishedAt.Valid {
		job.FinishedAt = &finishedAt.Int64
	}
	return &job, nil
}
