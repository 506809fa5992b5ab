package storage

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/notionwiki/backend/internal/domain/knowledge"
)

// 确保 SourceRepositoryImpl 实现了 knowledge.SourceRepository 接口
var _ knowledge.SourceRepository = (*SourceRepositoryImpl)(nil)

// SourceRepositoryImpl 工作区来源仓库实现
type SourceRepositoryImpl struct {
	db *sql.DB
}

// NewSourceRepository 创建来源仓库实例
func NewSourceRepository(db *sql.DB) knowledge.SourceRepository {
	return &SourceRepositoryImpl{db: db}
}

// Save 保存来源，ID 为零时插入并回填 ID
func (r *SourceRepositoryImpl) Save(source *knowledge.Source) error {
	now := time.Now().Unix()
	if source.CreatedAt == 0 {
		source.CreatedAt = now
	}
	source.UpdatedAt = now

	if source.ID == 0 {
		result, err := r.db.Exec(
			`INSERT INTO sources (name, token, created_at, updated_at) VALUES (?, ?, ?, ?)`,
			source.Name, source.Token, source.CreatedAt, source.UpdatedAt,
		)
		if err != nil {
			return fmt.Errorf("failed to insert source: %w", err)
		}
		id, err := result.LastInsertId()
		if err != nil {
			return fmt.Errorf("failed to get source id: %w", err)
		}
		source.ID = id
		return nil
	}

	_, err := r.db.Exec(
		`UPDATE sources SET name = ?, token = ?, updated_at = ? WHERE id = ?`,
		source.Name, source.Token, source.UpdatedAt, source.ID,
	)
	if err != nil {
		return fmt.Errorf("failed to update source: %w", err)
	}
	return nil
}

// FindByID 按 ID 查找来源，不存在时返回 nil
func (r *SourceRepositoryImpl) FindByID(id int64) (*knowledge.Source, error) {
	row := r.db.QueryRow(
		`SELECT id, name, token, created_at, updated_at FROM sources WHERE id = ?`, id,
	)

	var source knowledge.Source
	err := row.Scan(&source.ID, &source.Name, &source.Token, &source.CreatedAt, &source.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to scan source: %w", err)
	}
	return &source, nil
}

// FindAll 列出全部来源
func (r *SourceRepositoryImpl) FindAll() ([]*knowledge.Source, error) {
	rows, err := r.db.Query(
		`SELECT id, name, token, created_at, updated_at FROM sources ORDER BY id`,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to query sources: %w", err)
	}
	defer rows.Close()

	var sources []*knowledge.Source
	for rows.Next() {
		var source knowledge.Source
		if err := rows.Scan(&source.ID, &source.Name, &source.Token, &source.CreatedAt, &source.UpdatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan source: %w", err)
		}
		sources = append(sources, &source)
	}
	return sources, rows.Err()
}

// Delete 删除来源
func (r *SourceRepositoryImpl) Delete(id int64) error {
	if _, err := r.db.Exec(`DELETE FROM sources WHERE id = ?`, id); err != nil {
		return fmt.Errorf("failed to delete source: %w", err)
	}
	return nil
}
