package storage

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/notionwiki/backend/internal/domain/knowledge"
)

// 确保 EmbeddingRefRepositoryImpl 实现了 knowledge.EmbeddingRefRepository 接口
var _ knowledge.EmbeddingRefRepository = (*EmbeddingRefRepositoryImpl)(nil)

// EmbeddingRefRepositoryImpl 向量引用仓库实现
type EmbeddingRefRepositoryImpl struct {
	db *sql.DB
}

// NewEmbeddingRefRepository 创建向量引用仓库实例
func NewEmbeddingRefRepository(db *sql.DB) knowledge.EmbeddingRefRepository {
	return &EmbeddingRefRepositoryImpl{db: db}
}

// UpsertBatch 批量写入向量引用
func (r *EmbeddingRefRepositoryImpl) UpsertBatch(refs []*knowledge.EmbeddingRef) error {
	if len(refs) == 0 {
		return nil
	}

	tx, err := r.db.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.Prepare(
		`INSERT OR REPLACE INTO embedding_refs (chunk_id, point_id, model, dimension, created_at)
		 VALUES (?, ?, ?, ?, ?)`,
	)
	if err != nil {
		return fmt.Errorf("failed to prepare statement: %w", err)
	}
	defer stmt.Close()

	now := time.Now().Unix()
	for _, ref := range refs {
		createdAt := ref.CreatedAt
		if createdAt == 0 {
			createdAt = now
		}
		if _, err := stmt.Exec(ref.ChunkID, ref.PointID, ref.Model, ref.Dimension, createdAt); err != nil {
			return fmt.Errorf("failed to upsert embedding ref %s: %w", ref.ChunkID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

// FindPointIDs 查找片段对应的向量点 ID
func (r *EmbeddingRefRepositoryImpl) FindPointIDs(chunkIDs []string) ([]string, error) {
	if len(chunkIDs) == 0 {
		return nil, nil
	}

	args := make([]any, len(chunkIDs))
	for i, id := range chunkIDs {
		args[i] = id
	}

	rows, err := r.db.Query(
		`SELECT point_id FROM embedding_refs WHERE chunk_id IN (`+placeholders(len(chunkIDs))+`)`,
		args...,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to query point ids: %w", err)
	}
	defer rows.Close()

	var pointIDs []string
	for rows.Next() {
		var pointID string
		if err := rows.Scan(&pointID); err != nil {
			return nil, fmt.Errorf("failed to scan point id: %w", err)
		}
		pointIDs = append(pointIDs, pointID)
	}
	return pointIDs, rows.Err()
}

// DeleteByChunkIDs 删除片段的向量引用
func (r *EmbeddingRefRepositoryImpl) DeleteByChunkIDs(chunkIDs []string) error {
	if len(chunkIDs) == 0 {
		return nil
	}

	args := make([]any, len(chunkIDs))
	for i, id := range chunkIDs {
		args[i] = id
	}

	_, err := r.db.Exec(
		`DELETE FROM embedding_refs WHERE chunk_id IN (`+placeholders(len(chunkIDs))+`)`,
		args...,
	)
	if err != nil {
		return fmt.Errorf("failed to delete embedding refs: %w", err)
	}
	return nil
}
