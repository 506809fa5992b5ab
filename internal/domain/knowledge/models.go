package knowledge

// Source 一个已接入的 Notion 工作区
type Source struct {
	ID        int64  // 自增主键
	Name      string // 展示名称
	Token     string // Notion integration token
	CreatedAt int64  // Unix 秒
	UpdatedAt int64
}

// 同步目标类型常量
const (
	TargetTypePage       = "page"
	TargetTypeDataSource = "data_source"
)

// SyncTarget 同步范围白名单中的一项
// 只有列入白名单的页面或数据源会被摄取
type SyncTarget struct {
	ID         int64
	SourceID   int64
	TargetType string // page / data_source
	TargetID   string // Notion 页面或数据源 ID
	Title      string
	Active     bool
	LastSyncAt *int64 // 上次增量同步水位，Unix 秒；nil 表示从未同步
	CreatedAt  int64
}

// 文档状态常量
const (
	DocumentStatusActive  = "active"
	DocumentStatusDeleted = "deleted"
)

// Document 一个已摄取的 Notion 页面
type Document struct {
	ID           int64
	SourceID     int64
	PageID       string // Notion 页面 ID
	Title        string
	URL          string
	Status       string // active / deleted
	LastEditedAt int64  // Notion last_edited_time，Unix 秒
	CreatedAt    int64
	UpdatedAt    int64
}

// Chunk 文档切分后的片段
type Chunk struct {
	ID          int64
	ChunkID     string // 内容寻址 ID：sourceId:pageId:index:hash
	DocumentID  int64
	SourceID    int64
	PageID      string
	ChunkIndex  int
	Text        string
	TokenCount  int
	StartOffset int
	EndOffset   int
	CreatedAt   int64
}

// EmbeddingRef 片段与向量点的对应关系
type EmbeddingRef struct {
	ChunkID   string // 片段 ID（唯一）
	PointID   string // Qdrant point UUID
	Model     string // 生成向量的模型
	Dimension int
	CreatedAt int64
}

// 摄取任务状态常量
const (
	JobStatusQueued    = "queued"
	JobStatusRunning   = "running"
	JobStatusSucceeded = "succeeded"
	JobStatusFailed    = "failed"
)

// 摄取模式常量
const (
	IngestModeFull        = "full"
	IngestModeIncremental = "incremental"
)

// IngestJob 一次摄取运行的记录
type IngestJob struct {
	ID          int64
	SourceID    int64
	Mode        string // full / incremental
	Status      string // queued / running / succeeded / failed
	Attempt     int    // 执行次数，每次进入 running 加一
	ErrorCode   string // 为空表示无错误
	Message     string
	RequestedBy string
	RequestedAt int64
	StartedAt   *int64
	FinishedAt  *int64

	// 运行统计
	PagesProcessed int
	PagesFailed    int
	ChunksUpserted int
}

// 页面失败状态常量
const (
	FailureStatusOpen        = "open"
	FailureStatusResolved    = "resolved"
	FailureStatusRetryQueued = "retry_queued"
)

// PageFailure 某个页面在摄取中的持续失败记录
// 同一 (source, page) 只保留一条未解决记录，重复失败累加计数
type PageFailure struct {
	ID           int64
	SourceID     int64
	PageID       string
	IngestJobID  int64  // 最近一次失败所在的任务
	Stage        string // 失败发生的流水线阶段
	ErrorCode    string
	ErrorMessage string
	FailureCount int
	Status       string // open / resolved / retry_queued
	FirstFailedAt int64
	LastFailedAt  int64
	ResolvedAt    *int64

	// 重试回执
	RetryIngestJobID *int64
	RetryRequestedAt *int64
	RetryRequestedBy string
}

// IsResolved 检查失败是否已解决
func (f *PageFailure) IsResolved() bool {
	return f.Status == FailureStatusResolved
}
