package queue

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/hibiken/asynq"
)

// TypeIngestRun 摄取任务类型
const TypeIngestRun = "ingest:run"

// IngestQueue 摄取任务所在的队列
const IngestQueue = "ingest"

// IngestPayload 摄取任务载荷
type IngestPayload struct {
	SourceID    int64  `json:"sourceId"`
	Mode        string `json:"mode"`
	RequestedBy string `json:"requestedBy"`
	RequestedAt int64  `json:"requestedAt"`
	IngestJobID int64  `json:"ingestJobId"`

	// PageIDs 非空时只处理这些页面，不做目标遍历
	PageIDs []string `json:"pageIds,omitempty"`

	// RetryFailureID 重试场景下关联的失败记录
	RetryFailureID int64 `json:"retryFailureId,omitempty"`
}

// NewIngestTask 构建摄取任务
// 任务级不重试：页面级的重试和失败记录由编排器自己管理
func NewIngestTask(payload *IngestPayload) (*asynq.Task, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal ingest payload: %w", err)
	}
	return asynq.NewTask(TypeIngestRun, data,
		asynq.MaxRetry(0),
		asynq.Timeout(30*time.Minute),
		asynq.Queue(IngestQueue),
	), nil
}

// ParseIngestPayload 解析摄取任务载荷
func ParseIngestPayload(task *asynq.Task) (*IngestPayload, error) {
	var payload IngestPayload
	if err := json.Unmarshal(task.Payload(), &payload); err != nil {
		return nil, fmt.Errorf("failed to unmarshal ingest payload: %w", err)
	}
	return &payload, nil
}
