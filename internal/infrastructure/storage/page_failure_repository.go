package storage

import (
	"database/sql"
	"fmt"

	"github.com/notionwiki/backend/internal/domain/knowledge"
)

// 确保 PageFailureRepositoryImpl 实现了 knowledge.PageFailureRepository 接口
var _ knowledge.PageFailureRepository = (*PageFailureRepositoryImpl)(nil)

// PageFailureRepositoryImpl 页面失败仓库实现
type PageFailureRepositoryImpl struct {
	db *sql.DB
}

// NewPageFailureRepository 创建页面失败仓库实例
func NewPageFailureRepository(db *sql.DB) knowledge.PageFailureRepository {
	return &PageFailureRepositoryImpl{db: db}
}

// RecordFailure 记录一次失败
// 已有未解决记录则累加计数并刷新现场；已解决的旧记录重新打开并重置计数
func (r *PageFailureRepositoryImpl) RecordFailure(failure *knowledge.PageFailure) error {
	existing, err := r.findBySourceAndPage(failure.SourceID, failure.PageID)
	if err != nil {
		return err
	}

	if existing == nil {
		result, err := r.db.Exec(
			`INSERT INTO page_failures
			 (source_id, page_id, ingest_job_id, stage, error_code, error_message,
			  failure_count, status, first_failed_at, last_failed_at)
			 VALUES (?, ?, ?, ?, ?, ?, 1, ?, ?, ?)`,
			failure.SourceID, failure.PageID, failure.IngestJobID, failure.Stage,
			failure.ErrorCode, failure.ErrorMessage,
			knowledge.FailureStatusOpen, failure.LastFailedAt, failure.LastFailedAt,
		)
		if err != nil {
			return fmt.Errorf("failed to insert page failure: %w", err)
		}
		id, err := result.LastInsertId()
		if err != nil {
			return fmt.Errorf("failed to get page failure id: %w", err)
		}
		failure.ID = id
		failure.FailureCount = 1
		failure.Status = knowledge.FailureStatusOpen
		failure.FirstFailedAt = failure.LastFailedAt
		return nil
	}

	count := existing.FailureCount + 1
	firstFailedAt := existing.FirstFailedAt
	if existing.IsResolved() {
		count = 1
		firstFailedAt = failure.LastFailedAt
	}

	_, err = r.db.Exec(
		`UPDATE page_failures
		 SET ingest_job_id = ?, stage = ?, error_code = ?, error_message = ?,
		     failure_count = ?, status = ?, first_failed_at = ?, last_failed_at = ?,
		     resolved_at = NULL, retry_ingest_job_id = NULL, retry_requested_at = NULL, retry_requested_by = ''
		 WHERE id = ?`,
		failure.IngestJobID, failure.Stage, failure.ErrorCode, failure.ErrorMessage,
		count, knowledge.FailureStatusOpen, firstFailedAt, failure.LastFailedAt,
		existing.ID,
	)
	if err != nil {
		return fmt.Errorf("failed to update page failure: %w", err)
	}

	failure.ID = existing.ID
	failure.FailureCount = count
	failure.Status = knowledge.FailureStatusOpen
	failure.FirstFailedAt = firstFailedAt
	return nil
}

// Resolve 将未解决记录标记为已解决，没有记录时为空操作
func (r *PageFailureRepositoryImpl) Resolve(sourceID int64, pageID string, resolvedAt int64) error {
	_, err := r.db.Exec(
		`UPDATE page_failures SET status = ?, resolved_at = ?
		 WHERE source_id = ? AND page_id = ? AND status != ?`,
		knowledge.FailureStatusResolved, resolvedAt, sourceID, pageID, knowledge.FailureStatusResolved,
	)
	if err != nil {
		return fmt.Errorf("failed to resolve page failure: %w", err)
	}
	return nil
}

// FindByID 按 ID 查找失败记录
func (r *PageFailureRepositoryImpl) FindByID(id int64) (*knowledge.PageFailure, error) {
	row := r.db.QueryRow(failureSelect+` WHERE id = ?`, id)
	failure, err := scanFailure(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	return failure, err
}

// FindOpenBySource 列出来源的未解决失败，按最近失败时间倒序
func (r *PageFailureRepositoryImpl) FindOpenBySource(sourceID int64) ([]*knowledge.PageFailure, error) {
	rows, err := r.db.Query(
		failureSelect+` WHERE source_id = ? AND status != ? ORDER BY last_failed_at DESC, id DESC`,
		sourceID, knowledge.FailureStatusResolved,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to query page failures: %w", err)
	}
	defer rows.Close()

	var failures []*knowledge.PageFailure
	for rows.Next() {
		failure, err := scanFailure(rows)
		if err != nil {
			return nil, err
		}
		failures = append(failures, failure)
	}
	return failures, rows.Err()
}

// MarkRetryQueued 登记重试任务信息并切换状态
func (r *PageFailureRepositoryImpl) MarkRetryQueued(id int64, retryJobID int64, requestedAt int64, requestedBy string) error {
	_, err := r.db.Exec(
		`UPDATE page_failures
		 SET status = ?, retry_ingest_job_id = ?, retry_requested_at = ?, retry_requested_by = ?
		 WHERE id = ?`,
		knowledge.FailureStatusRetryQueued, retryJobID, requestedAt, requestedBy, id,
	)
	if err != nil {
		return fmt.Errorf("failed to mark retry queued: %w", err)
	}
	return nil
}

func (r *PageFailureRepositoryImpl) findBySourceAndPage(sourceID int64, pageID string) (*knowledge.PageFailure, error) {
	row := r.db.QueryRow(failureSelect+` WHERE source_id = ? AND page_id = ?`, sourceID, pageID)
	failure, err := scanFailure(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	return failure, err
}

const failureSelect = `SELECT id, source_id, page_id, ingest_job_id, stage, error_code, error_message,
	failure_count, status, first_failed_at, last_failed_at, resolved_at,
	retry_ingest_job_id, retry_requested_at, retry_requested_by
	FROM page_failures`

// scanFailure 扫描一行失败记录
func scanFailure(row scanner) (*knowledge.PageFailure, error) {
	var failure knowledge.PageFailure
	var resolvedAt, retryJobID, retryRequestedAt sql.NullInt64

	err := row.Scan(&failure.ID, &failure.SourceID, &failure.PageID, &failure.IngestJobID,
		&failure.Stage, &failure.ErrorCode, &failure.ErrorMessage,
		&failure.FailureCount, &failure.Status, &failure.FirstFailedAt, &failure.LastFailedAt,
		&resolvedAt, &retryJobID, &retryRequestedAt, &failure.RetryRequestedBy)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, err
		}
		return nil, fmt.Errorf("failed to scan page failure: %w", err)
	}

	if resolvedAt.Valid {
		failure.ResolvedAt = &resolvedAt.Int64
	}
	if retryJobID.Valid {
		failure.RetryIngestJobID = &retryJobID.Int64
	}
	if retryRequestedAt.Valid {
		failure.RetryRequestedAt = &retryRequestedAt.Int64
	}
	return &failure, nil
}
