package storage

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/notionwiki/backend/internal/domain/knowledge"
)

// 确保 SyncTargetRepositoryImpl 实现了 knowledge.SyncTargetRepository 接口
var _ knowledge.SyncTargetRepository = (*SyncTargetRepositoryImpl)(nil)

// SyncTargetRepositoryImpl 同步目标仓库实现
type SyncTargetRepositoryImpl struct {
	db *sql.DB
}

// NewSyncTargetRepository 创建同步目标仓库实例
func NewSyncTargetRepository(db *sql.DB) knowledge.SyncTargetRepository {
	return &SyncTargetRepositoryImpl{db: db}
}

// Save 保存同步目标
func (r *SyncTargetRepositoryImpl) Save(target *knowledge.SyncTarget) error {
	if target.CreatedAt == 0 {
		target.CreatedAt = time.Now().Unix()
	}

	active := 0
	if target.Active {
		active = 1
	}

	if target.ID == 0 {
		result, err := r.db.Exec(
			`INSERT INTO sync_targets (source_id, target_type, target_id, title, active, last_sync_at, created_at)
			 VALUES (?, ?, ?, ?, ?, ?, ?)`,
			target.SourceID, target.TargetType, target.TargetID, target.Title, active, target.LastSyncAt, target.CreatedAt,
		)
		if err != nil {
			return fmt.Errorf("failed to insert sync target: %w", err)
		}
		id, err := result.LastInsertId()
		if err != nil {
			return fmt.Errorf("failed to get sync target id: %w", err)
		}
		target.ID = id
		return nil
	}

	_, err := r.db.Exec(
		`UPDATE sync_targets SET target_type = ?, title = ?, active = ?, last_sync_at = ? WHERE id = ?`,
		target.TargetType, target.Title, active, target.LastSyncAt, target.ID,
	)
	if err != nil {
		return fmt.Errorf("failed to update sync target: %w", err)
	}
	return nil
}

// FindByID 按 ID 查找同步目标
func (r *SyncTargetRepositoryImpl) FindByID(id int64) (*knowledge.SyncTarget, error) {
	row := r.db.QueryRow(
		`SELECT id, source_id, target_type, target_id, title, active, last_sync_at, created_at
		 FROM sync_targets WHERE id = ?`, id,
	)
	target, err := scanTarget(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	return target, err
}

// FindBySource 列出来源的全部同步目标
func (r *SyncTargetRepositoryImpl) FindBySource(sourceID int64) ([]*knowledge.SyncTarget, error) {
	return r.findBySource(sourceID, false)
}

// FindActiveBySource 列出来源的活跃同步目标
func (r *SyncTargetRepositoryImpl) FindActiveBySource(sourceID int64) ([]*knowledge.SyncTarget, error) {
	return r.findBySource(sourceID, true)
}

func (r *SyncTargetRepositoryImpl) findBySource(sourceID int64, activeOnly bool) ([]*knowledge.SyncTarget, error) {
	query := `SELECT id, source_id, target_type, target_id, title, active, last_sync_at, created_at
		 FROM sync_targets WHERE source_id = ?`
	if activeOnly {
		query += ` AND active = 1`
	}
	query += ` ORDER BY id`

	rows, err := r.db.Query(query, sourceID)
	if err != nil {
		return nil, fmt.Errorf("failed to query sync targets: %w", err)
	}
	defer rows.Close()

	var targets []*knowledge.SyncTarget
	for rows.Next() {
		target, err := scanTarget(rows)
		if err != nil {
			return nil, err
		}
		targets = append(targets, target)
	}
	return targets, rows.Err()
}

// UpdateLastSyncAt 推进增量同步水位
func (r *SyncTargetRepositoryImpl) UpdateLastSyncAt(id int64, syncedAt int64) error {
	_, err := r.db.Exec(`UPDATE sync_targets SET last_sync_at = ? WHERE id = ?`, syncedAt, id)
	if err != nil {
		return fmt.Errorf("failed to update last_sync_at: %w", err)
	}
	return nil
}

// Delete 删除同步目标
func (r *SyncTargetRepositoryImpl) Delete(id int64) error {
	if _, err := r.db.Exec(`DELETE FROM sync_targets WHERE id = ?`, id); err != nil {
		return fmt.Errorf("failed to delete sync target: %w", err)
	}
	return nil
}

// scanner 兼容 *sql.Row 和 *sql.Rows
type scanner interface {
	Scan(dest ...any) error
}

// scanTarget 扫描一行同步目标
func scanTarget(row scanner) (*knowledge.SyncTarget, error) {
	var target knowledge.SyncTarget
	var active int
	var lastSyncAt sql.NullInt64

	err := row.Scan(&target.ID, &target.SourceID, &target.TargetType, &target.TargetID,
		&target.Title, &active, &lastSyncAt, &target.CreatedAt)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, err
		}
		return nil, fmt.Errorf("failed to scan sync target: %w", err)
	}

	target.Active = active == 1
	if lastSyncAt.Valid {
		target.LastSyncAt = &lastSyncAt.Int64
	}
	return &target, nil
}
