package knowledge

// SourceRepository 工作区来源仓库
type SourceRepository interface {
	Save(source *Source) error
	FindByID(id int64) (*Source, error)
	FindAll() ([]*Source, error)
	Delete(id int64) error
}

// SyncTargetRepository 同步目标仓库
type SyncTargetRepository interface {
	Save(target *SyncTarget) error
	FindByID(id int64) (*SyncTarget, error)
	FindBySource(sourceID int64) ([]*SyncTarget, error)
	FindActiveBySource(sourceID int64) ([]*SyncTarget, error)
	UpdateLastSyncAt(id int64, syncedAt int64) error
	Delete(id int64) error
}

// DocumentRepository 文档仓库
type DocumentRepository interface {
	// Upsert 按 (source_id, page_id) 插入或更新，返回文档 ID
	Upsert(doc *Document) (int64, error)
	FindBySourceAndPage(sourceID int64, pageID string) (*Document, error)
	// MarkDeleted 将文档置为墓碑状态，返回是否存在该文档
	MarkDeleted(sourceID int64, pageID string, updatedAt int64) (bool, error)
	CountBySource(sourceID int64) (int64, error)
}

// ChunkRepository 片段仓库，同时承担词法检索
type ChunkRepository interface {
	UpsertBatch(chunks []*Chunk) error
	// DeleteStale 删除某文档中不在 keep 集合内的片段，返回被删片段的 chunk_id
	DeleteStale(documentID int64, keep []string) ([]string, error)
	FindByChunkID(chunkID string) (*Chunk, error)
	// FindContaining 在来源的活跃文档中做字节级包含匹配，按文档更新时间倒序
	FindContaining(sourceID int64, phrase string, limit int) ([]*Chunk, error)
	// FindByAnyToken 取出命中任一 token 的候选片段池，按片段 ID 倒序
	FindByAnyToken(sourceID int64, tokens []string, limit int) ([]*Chunk, error)
}

// EmbeddingRefRepository 向量引用仓库
type EmbeddingRefRepository interface {
	UpsertBatch(refs []*EmbeddingRef) error
	// FindPointIDs 返回给定 chunk_id 对应的向量点 ID
	FindPointIDs(chunkIDs []string) ([]string, error)
	DeleteByChunkIDs(chunkIDs []string) error
}

// IngestJobRepository 摄取任务仓库
type IngestJobRepository interface {
	Save(job *IngestJob) error
	FindByID(id int64) (*IngestJob, error)
	FindBySource(sourceID int64, limit int) ([]*IngestJob, error)
}

// PageFailureRepository 页面失败仓库
type PageFailureRepository interface {
	// RecordFailure 记录一次失败：已有未解决记录则累加计数并刷新现场
	RecordFailure(failure *PageFailure) error
	// Resolve 将 (source, page) 的未解决记录标记为已解决
	Resolve(sourceID int64, pageID string, resolvedAt int64) error
	FindByID(id int64) (*PageFailure, error)
	FindOpenBySource(sourceID int64) ([]*PageFailure, error)
	// MarkRetryQueued 登记重试任务信息并切换状态
	MarkRetryQueued(id int64, retryJobID int64, requestedAt int64, requestedBy string) error
}
