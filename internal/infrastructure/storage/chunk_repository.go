package storage

import (
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/notionwiki/backend/internal/domain/knowledge"
)

// 确保 ChunkRepositoryImpl 实现了 knowledge.ChunkRepository 接口
var _ knowledge.ChunkRepository = (*ChunkRepositoryImpl)(nil)

// ChunkRepositoryImpl 片段仓库实现
type ChunkRepositoryImpl struct {
	db *sql.DB
}

// NewChunkRepository 创建片段仓库实例
func NewChunkRepository(db *sql.DB) knowledge.ChunkRepository {
	return &ChunkRepositoryImpl{db: db}
}

const chunkColumns = `id, chunk_id, document_id, source_id, page_id, chunk_index,
	chunk_text, token_count, start_offset, end_offset, created_at`

// UpsertBatch 批量写入片段，chunk_id 冲突时覆盖
func (r *ChunkRepositoryImpl) UpsertBatch(chunks []*knowledge.Chunk) error {
	if len(chunks) == 0 {
		return nil
	}

	tx, err := r.db.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.Prepare(
		`INSERT OR REPLACE INTO document_chunks
		 (chunk_id, document_id, source_id, page_id, chunk_index, chunk_text, token_count, start_offset, end_offset, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
	)
	if err != nil {
		return fmt.Errorf("failed to prepare statement: %w", err)
	}
	defer stmt.Close()

	now := time.Now().Unix()
	for _, chunk := range chunks {
		createdAt := chunk.CreatedAt
		if createdAt == 0 {
			createdAt = now
		}
		_, err := stmt.Exec(chunk.ChunkID, chunk.DocumentID, chunk.SourceID, chunk.PageID,
			chunk.ChunkIndex, chunk.Text, chunk.TokenCount, chunk.StartOffset, chunk.EndOffset, createdAt)
		if err != nil {
			return fmt.Errorf("failed to upsert chunk %s: %w", chunk.ChunkID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

// DeleteStale 删除文档中不在 keep 集合内的片段，返回被删的 chunk_id
func (r *ChunkRepositoryImpl) DeleteStale(documentID int64, keep []string) ([]string, error) {
	tx, err := r.db.Begin()
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	query := `SELECT chunk_id FROM document_chunks WHERE document_id = ?`
	args := []any{documentID}
	if len(keep) > 0 {
		query += ` AND chunk_id NOT IN (` + placeholders(len(keep)) + `)`
		for _, id := range keep {
			args = append(args, id)
		}
	}

	rows, err := tx.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query stale chunks: %w", err)
	}
	var stale []string
	for rows.Next() {
		var chunkID string
		if err := rows.Scan(&chunkID); err != nil {
			rows.Close()
			return nil, fmt.Errorf("failed to scan chunk id: %w", err)
		}
		stale = append(stale, chunkID)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, err
	}

	if len(stale) == 0 {
		return nil, tx.Commit()
	}

	deleteQuery := `DELETE FROM document_chunks WHERE chunk_id IN (` + placeholders(len(stale)) + `)`
	deleteArgs := make([]any, len(stale))
	for i, id := range stale {
		deleteArgs[i] = id
	}
	if _, err := tx.Exec(deleteQuery, deleteArgs...); err != nil {
		return nil, fmt.Errorf("failed to delete stale chunks: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit transaction: %w", err)
	}
	return stale, nil
}

// FindByChunkID 按片段 ID 查找
func (r *ChunkRepositoryImpl) FindByChunkID(chunkID string) (*knowledge.Chunk, error) {
	row := r.db.QueryRow(
		`SELECT `+chunkColumns+` FROM document_chunks WHERE chunk_id = ?`, chunkID,
	)
	chunk, err := scanChunk(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	return chunk, err
}

// FindContaining 在来源的活跃文档中做字节级包含匹配
// 按文档更新时间倒序，同文档内按片段倒序
func (r *ChunkRepositoryImpl) FindContaining(sourceID int64, phrase string, limit int) ([]*knowledge.Chunk, error) {
	rows, err := r.db.Query(
		`SELECT c.id, c.chunk_id, c.document_id, c.source_id, c.page_id, c.chunk_index,
		        c.chunk_text, c.token_count, c.start_offset, c.end_offset, c.created_at
		 FROM document_chunks c
		 JOIN documents d ON d.id = c.document_id
		 WHERE c.source_id = ? AND d.status = 'active' AND instr(c.chunk_text, ?) > 0
		 ORDER BY d.last_edited_at DESC, c.id DESC
		 LIMIT ?`,
		sourceID, phrase, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to query containing chunks: %w", err)
	}
	defer rows.Close()

	return collectChunks(rows)
}

// FindByAnyToken 取出命中任一 token 的候选片段池（大小写不敏感）
func (r *ChunkRepositoryImpl) FindByAnyToken(sourceID int64, tokens []string, limit int) ([]*knowledge.Chunk, error) {
	if len(tokens) == 0 {
		return nil, nil
	}

	conditions := make([]string, len(tokens))
	args := []any{sourceID}
	for i, token := range tokens {
		conditions[i] = `instr(lower(c.chunk_text), ?) > 0`
		args = append(args, strings.ToLower(token))
	}
	args = append(args, limit)

	rows, err := r.db.Query(
		`SELECT c.id, c.chunk_id, c.document_id, c.source_id, c.page_id, c.chunk_index,
		        c.chunk_text, c.token_count, c.start_offset, c.end_offset, c.created_at
		 FROM document_chunks c
		 JOIN documents d ON d.id = c.document_id
		 WHERE c.source_id = ? AND d.status = 'active' AND (`+strings.Join(conditions, " OR ")+`)
		 ORDER BY c.id DESC
		 LIMIT ?`,
		args...,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to query token chunks: %w", err)
	}
	defer rows.Close()

	return collectChunks(rows)
}

// scanChunk 扫描一行片段
func scanChunk(row scanner) (*knowledge.Chunk, error) {
	var chunk knowledge.Chunk
	err := row.Scan(&chunk.ID, &chunk.ChunkID, &chunk.DocumentID, &chunk.SourceID, &chunk.PageID,
		&chunk.ChunkIndex, &chunk.Text, &chunk.TokenCount, &chunk.StartOffset, &chunk.EndOffset, &chunk.CreatedAt)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, err
		}
		return nil, fmt.Errorf("failed to scan chunk: %w", err)
	}
	return &chunk, nil
}

// collectChunks 收集查询结果
func collectChunks(rows *sql.Rows) ([]*knowledge.Chunk, error) {
	var chunks []*knowledge.Chunk
	for rows.Next() {
		chunk, err := scanChunk(rows)
		if err != nil {
			return nil, err
		}
		chunks = append(chunks, chunk)
	}
	return chunks, rows.Err()
}

// placeholders 生成 n 个逗号分隔的占位符
func placeholders(n int) string {
	if n <= 0 {
		return ""
	}
	return strings.Repeat("?, ", n-1) + "?"
}
