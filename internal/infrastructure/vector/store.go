package vector

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/qdrant/go-client/qdrant"

	"github.com/notionwiki/backend/internal/infrastructure/config"
	"github.com/notionwiki/backend/internal/infrastructure/log"
)

// 向量点 payload 字段名
const (
	PayloadChunkID      = "chunkId"
	PayloadSourceID     = "sourceId"
	PayloadDocumentID   = "documentId"
	PayloadPageID       = "pageId"
	PayloadChunkIndex   = "chunkIndex"
	PayloadTitle        = "title"
	PayloadURL          = "url"
	PayloadText         = "text"
	PayloadLastEditedAt = "lastEditedAt"
	PayloadStatus       = "status"
)

// ChunkPoint 待写入的向量点
type ChunkPoint struct {
	PointID      string
	Vector       []float32
	ChunkID      string
	SourceID     int64
	DocumentID   int64
	PageID       string
	ChunkIndex   int
	Title        string
	URL          string
	Text         string
	LastEditedAt string // RFC3339，供 datetime 索引使用
}

// SearchHit 语义检索命中
type SearchHit struct {
	PointID    string
	Score      float32
	ChunkID    string
	DocumentID int64
	PageID     string
	Title      string
	URL        string
	Text       string
}

// Store Qdrant 向量库封装
type Store struct {
	client     *qdrant.Client
	collection string
	logger     *slog.Logger
}

// NewStore 连接已部署的 Qdrant
func NewStore(cfg *config.Config) (*Store, error) {
	client, err := qdrant.NewClient(&qdrant.Config{
		Host: cfg.Qdrant.Host,
		Port: cfg.Qdrant.Port,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to qdrant: %w", err)
	}

	return &Store{
		client:     client,
		collection: cfg.Qdrant.Collection,
		logger:     log.NewModuleLogger("vector", "store"),
	}, nil
}

// Collection 返回集合名
func (s *Store) Collection() string {
	return s.collection
}

// Close 关闭连接
func (s *Store) Close() error {
	return s.client.Close()
}

// EnsureCollection 确保集合和 payload 索引存在，可重复调用
func (s *Store) EnsureCollection(ctx context.Context, dimension int) error {
	exists, err := s.client.CollectionExists(ctx, s.collection)
	if err != nil {
		return fmt.Errorf("failed to check collection: %w", err)
	}

	if !exists {
		err := s.client.CreateCollection(ctx, &qdrant.CreateCollection{
			CollectionName: s.collection,
			VectorsConfig: qdrant.NewVectorsConfig(&qdrant.VectorParams{
				Size:     uint64(dimension),
				Distance: qdrant.Distance_Cosine,
			}),
		})
		// 并发初始化时另一进程可能已建好
		if err != nil && !strings.Contains(err.Error(), "already exists") {
			return fmt.Errorf("failed to create collection: %w", err)
		}
		s.logger.Info("collection created", "collection", s.collection, "dimension", dimension)
	}

	return s.EnsurePayloadIndexes(ctx)
}

// EnsurePayloadIndexes 创建检索过滤所需的 payload 索引
func (s *Store) EnsurePayloadIndexes(ctx context.Context) error {
	indexes := []struct {
		field     string
		fieldType qdrant.FieldType
	}{
		{PayloadSourceID, qdrant.FieldType_FieldTypeInteger},
		{PayloadStatus, qdrant.FieldType_FieldTypeKeyword},
		{PayloadDocumentID, qdrant.FieldType_FieldTypeInteger},
		{PayloadLastEditedAt, qdrant.FieldType_FieldTypeDatetime},
	}

	for _, idx := range indexes {
		fieldType := idx.fieldType
		_, err := s.client.CreateFieldIndex(ctx, &qdrant.CreateFieldIndexCollection{
			CollectionName: s.collection,
			FieldName:      idx.field,
			FieldType:      &fieldType,
		})
		if err != nil && !strings.Contains(err.Error(), "already exists") {
			return fmt.Errorf("failed to create payload index %s: %w", idx.field, err)
		}
	}
	return nil
}

// UpsertPoints 批量写入向量点
func (s *Store) UpsertPoints(ctx context.Context, points []*ChunkPoint) error {
	if len(points) == 0 {
		return nil
	}

	qdrantPoints := make([]*qdrant.PointStruct, len(points))
	for i, p := range points {
		qdrantPoints[i] = &qdrant.PointStruct{
			Id:      qdrant.NewID(p.PointID),
			Vectors: qdrant.NewVectors(p.Vector...),
			Payload: qdrant.NewValueMap(map[string]any{
				PayloadChunkID:      p.ChunkID,
				PayloadSourceID:     p.SourceID,
				PayloadDocumentID:   p.DocumentID,
				PayloadPageID:       p.PageID,
				PayloadChunkIndex:   p.ChunkIndex,
				PayloadTitle:        p.Title,
				PayloadURL:          p.URL,
				PayloadText:         p.Text,
				PayloadLastEditedAt: p.LastEditedAt,
				PayloadStatus:       "active",
			}),
		}
	}

	waitUpsert := true
	_, err := s.client.Upsert(ctx, &qdrant.UpsertPoints{
		CollectionName: s.collection,
		Points:         qdrantPoints,
		Wait:           &waitUpsert,
	})
	if err != nil {
		return fmt.Errorf("failed to upsert points: %w", err)
	}
	return nil
}

// Search 按向量检索某来源下的活跃片段
func (s *Store) Search(ctx context.Context, vector []float32, sourceID int64, limit uint64) ([]*SearchHit, error) {
	points, err := s.client.Query(ctx, &qdrant.QueryPoints{
		CollectionName: s.collection,
		Query:          qdrant.NewQuery(vector...),
		Limit:          &limit,
		Filter: &qdrant.Filter{
			Must: []*qdrant.Condition{
				qdrant.NewMatchInt(PayloadSourceID, sourceID),
				qdrant.NewMatch(PayloadStatus, "active"),
			},
		},
		WithPayload: qdrant.NewWithPayload(true),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to query collection: %w", err)
	}

	hits := make([]*SearchHit, 0, len(points))
	for _, point := range points {
		hits = append(hits, scoredPointToHit(point))
	}
	return hits, nil
}

// DeleteByDocument 删除某文档的全部向量点
func (s *Store) DeleteByDocument(ctx context.Context, documentID int64) error {
	waitDelete := true
	_, err := s.client.Delete(ctx, &qdrant.DeletePoints{
		CollectionName: s.collection,
		Points: qdrant.NewPointsSelectorFilter(&qdrant.Filter{
			Must: []*qdrant.Condition{
				qdrant.NewMatchInt(PayloadDocumentID, documentID),
			},
		}),
		Wait: &waitDelete,
	})
	if err != nil {
		return fmt.Errorf("failed to delete points by document: %w", err)
	}
	return nil
}

// DeletePoints 按 ID 删除向量点
func (s *Store) DeletePoints(ctx context.Context, pointIDs []string) error {
	if len(pointIDs) == 0 {
		return nil
	}

	ids := make([]*qdrant.PointId, len(pointIDs))
	for i, id := range pointIDs {
		ids[i] = qdrant.NewID(id)
	}

	waitDelete := true
	_, err := s.client.Delete(ctx, &qdrant.DeletePoints{
		CollectionName: s.collection,
		Points:         qdrant.NewPointsSelector(ids...),
		Wait:           &waitDelete,
	})
	if err != nil {
		return fmt.Errorf("failed to delete points: %w", err)
	}
	return nil
}

// scoredPointToHit 提取检索命中的 payload 字段
func scoredPointToHit(point *qdrant.ScoredPoint) *SearchHit {
	hit := &SearchHit{
		Score: point.Score,
	}
	if point.Id != nil {
		hit.PointID = point.Id.GetUuid()
	}

	payload := point.Payload
	hit.ChunkID = extractStringValue(payload, PayloadChunkID)
	hit.DocumentID = extractIntValue(payload, PayloadDocumentID)
	hit.PageID = extractStringValue(payload, PayloadPageID)
	hit.Title = extractStringValue(payload, PayloadTitle)
	hit.URL = extractStringValue(payload, PayloadURL)
	hit.Text = extractStringValue(payload, PayloadText)
	return hit
}

// extractStringValue 从 payload 提取字符串字段
func extractStringValue(payload map[string]*qdrant.Value, key string) string {
	if value, ok := payload[key]; ok {
		return value.GetStringValue()
	}
	return ""
}

// extractIntValue 从 payload 提取整型字段
func extractIntValue(payload map[string]*qdrant.Value, key string) int64 {
	if value, ok := payload[key]; ok {
		return value.GetIntegerValue()
	}
	return 0
}
