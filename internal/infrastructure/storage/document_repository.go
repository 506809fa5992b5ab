package storage

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/notionwiki/backend/internal/domain/knowledge"
)

// 确保 DocumentRepositoryImpl 实现了 knowledge.DocumentRepository 接口
var _ knowledge.DocumentRepository = (*DocumentRepositoryImpl)(nil)

// DocumentRepositoryImpl 文档仓库实现
type DocumentRepositoryImpl struct {
	db *sql.DB
}

// NewDocumentRepository 创建文档仓库实例
func NewDocumentRepository(db *sql.DB) knowledge.DocumentRepository {
	return &DocumentRepositoryImpl{db: db}
}

// Upsert 按 (source_id, page_id) 插入或更新，重新摄取会把墓碑恢复为活跃
func (r *DocumentRepositoryImpl) Upsert(doc *knowledge.Document) (int64, error) {
	now := time.Now().Unix()
	if doc.Status == "" {
		doc.Status = knowledge.DocumentStatusActive
	}

	existing, err := r.FindBySourceAndPage(doc.SourceID, doc.PageID)
	if err != nil {
		return 0, err
	}

	if existing == nil {
		result, err := r.db.Exec(
			`INSERT INTO documents (source_id, page_id, title, url, status, last_edited_at, created_at, updated_at)
			 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
			doc.SourceID, doc.PageID, doc.Title, doc.URL, doc.Status, doc.LastEditedAt, now, now,
		)
		if err != nil {
			return 0, fmt.Errorf("failed to insert document: %w", err)
		}
		id, err := result.LastInsertId()
		if err != nil {
			return 0, fmt.Errorf("failed to get document id: %w", err)
		}
		doc.ID = id
		doc.CreatedAt = now
		doc.UpdatedAt = now
		return id, nil
	}

	_, err = r.db.Exec(
		`UPDATE documents SET title = ?, url = ?, status = ?, last_edited_at = ?, updated_at = ? WHERE id = ?`,
		doc.Title, doc.URL, doc.Status, doc.LastEditedAt, now, existing.ID,
	)
	if err != nil {
		return 0, fmt.Errorf("failed to update document: %w", err)
	}
	doc.ID = existing.ID
	doc.CreatedAt = existing.CreatedAt
	doc.UpdatedAt = now
	return existing.ID, nil
}

// FindBySourceAndPage 按来源和页面 ID 查找文档
func (r *DocumentRepositoryImpl) FindBySourceAndPage(sourceID int64, pageID string) (*knowledge.Document, error) {
	row := r.db.QueryRow(
		`SELECT id, source_id, page_id, title, url, status, last_edited_at, created_at, updated_at
		 FROM documents WHERE source_id = ? AND page_id = ?`,
		sourceID, pageID,
	)

	var doc knowledge.Document
	err := row.Scan(&doc.ID, &doc.SourceID, &doc.PageID, &doc.Title, &doc.URL,
		&doc.Status, &doc.LastEditedAt, &doc.CreatedAt, &doc.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to scan document: %w", err)
	}
	return &doc, nil
}

// MarkDeleted 将文档置为墓碑，返回文档是否存在
func (r *DocumentRepositoryImpl) MarkDeleted(sourceID int64, pageID string, updatedAt int64) (bool, error) {
	result, err := r.db.Exec(
		`UPDATE documents SET status = ?, updated_at = ? WHERE source_id = ? AND page_id = ?`,
		knowledge.DocumentStatusDeleted, updatedAt, sourceID, pageID,
	)
	if err != nil {
		return false, fmt.Errorf("failed to mark document deleted: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to get affected rows: %w", err)
	}
	return affected > 0, nil
}

// CountBySource 统计来源下的文档数
func (r *DocumentRepositoryImpl) CountBySource(sourceID int64) (int64, error) {
	var count int64
	err := r.db.QueryRow(`SELECT COUNT(*) FROM documents WHERE source_id = ?`, sourceID).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count documents: %w", err)
	}
	return count, nil
}
