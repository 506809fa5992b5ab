package source

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/notionwiki/backend/internal/domain/knowledge"
	"github.com/notionwiki/backend/internal/infrastructure/log"
	"github.com/notionwiki/backend/internal/infrastructure/notion"
)

// WorkspaceClient 来源管理所需的 Notion 操作
type WorkspaceClient interface {
	Me(ctx context.Context) (*notion.User, error)
	SearchAll(ctx context.Context, query string) ([]notion.SearchResult, error)
}

// ClientFactory 按 token 创建工作区客户端
type ClientFactory interface {
	ForToken(token string) WorkspaceClient
}

// Service 来源与同步目标的管理操作
type Service struct {
	sources knowledge.SourceRepository
	targets knowledge.SyncTargetRepository
	clients ClientFactory
	logger  *slog.Logger
}

// NewService 创建来源管理服务
func NewService(
	sources knowledge.SourceRepository,
	targets knowledge.SyncTargetRepository,
	clients ClientFactory,
) *Service {
	return &Service{
		sources: sources,
		targets: targets,
		clients: clients,
		logger:  log.NewModuleLogger("source", "service"),
	}
}

// CreateSource 注册一个 Notion 工作区
// 入库前先用 token 调 /users/me 验证；名称缺省取工作区名
func (s *Service) CreateSource(ctx context.Context, name, token string) (*knowledge.Source, error) {
	if token == "" {
		return nil, fmt.Errorf("token is required")
	}

	user, err := s.clients.ForToken(token).Me(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to validate notion token: %w", err)
	}
	if name == "" {
		name = user.Bot.WorkspaceName
	}
	if name == "" {
		name = "Notion workspace"
	}

	now := time.Now().Unix()

	// 同名来源视为重新授权：更新 token 而不是再建一条
	existing, err := s.sources.FindAll()
	if err != nil {
		return nil, fmt.Errorf("failed to list sources: %w", err)
	}
	for _, src := range existing {
		if src.Name == name {
			src.Token = token
			src.UpdatedAt = now
			if err := s.sources.Save(src); err != nil {
				return nil, fmt.Errorf("failed to update source token: %w", err)
			}
			s.logger.Info("source re-authorized", "source_id", src.ID, "name", name)
			return src, nil
		}
	}

	source := &knowledge.Source{
		Name:      name,
		Token:     token,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := s.sources.Save(source); err != nil {
		return nil, fmt.Errorf("failed to save source: %w", err)
	}

	s.logger.Info("source registered", "source_id", source.ID, "name", name)
	return source, nil
}

// ListSources 列出所有来源
func (s *Service) ListSources() ([]*knowledge.Source, error) {
	return s.sources.FindAll()
}

// GetSource 查询单个来源
func (s *Service) GetSource(id int64) (*knowledge.Source, error) {
	source, err := s.sources.FindByID(id)
	if err != nil {
		return nil, fmt.Errorf("failed to load source: %w", err)
	}
	if source == nil {
		return nil, fmt.Errorf("source %d not found", id)
	}
	return source, nil
}

// AddTarget 将页面或数据源加入同步白名单
func (s *Service) AddTarget(sourceID int64, targetType, targetID, title string) (*knowledge.SyncTarget, error) {
	if targetType != knowledge.TargetTypePage && targetType != knowledge.TargetTypeDataSource {
		return nil, fmt.Errorf("invalid target type: %s", targetType)
	}
	if targetID == "" {
		return nil, fmt.Errorf("target id is required")
	}
	if _, err := s.GetSource(sourceID); err != nil {
		return nil, err
	}

	target := &knowledge.SyncTarget{
		SourceID:   sourceID,
		TargetType: targetType,
		TargetID:   targetID,
		Title:      title,
		Active:     true,
		CreatedAt:  time.Now().Unix(),
	}
	if err := s.targets.Save(target); err != nil {
		return nil, fmt.Errorf("failed to save sync target: %w", err)
	}

	s.logger.Info("sync target added",
		"source_id", sourceID,
		"target_id", targetID,
		"target_type", targetType,
	)
	return target, nil
}

// ListTargets 列出来源的同步目标
func (s *Service) ListTargets(sourceID int64) ([]*knowledge.SyncTarget, error) {
	return s.targets.FindBySource(sourceID)
}

// SetTargetStatus 启用或停用同步目标
func (s *Service) SetTargetStatus(targetID int64, active bool) (*knowledge.SyncTarget, error) {
	target, err := s.targets.FindByID(targetID)
	if err != nil {
		return nil, fmt.Errorf("failed to load sync target: %w", err)
	}
	if target == nil {
		return nil, fmt.Errorf("sync target %d not found", targetID)
	}

	target.Active = active
	if err := s.targets.Save(target); err != nil {
		return nil, fmt.Errorf("failed to update sync target: %w", err)
	}
	return target, nil
}

// DiscoveryItem 工作区中可注册的候选目标
type DiscoveryItem struct {
	ID             string `json:"id"`
	Type           string `json:"type"` // page / data_source
	Title          string `json:"title"`
	URL            string `json:"url"`
	LastEditedTime string `json:"lastEditedTime"`
}

// Discover 搜索工作区，返回可加入白名单的页面和数据源
func (s *Service) Discover(ctx context.Context, sourceID int64, query string) ([]DiscoveryItem, error) {
	source, err := s.GetSource(sourceID)
	if err != nil {
		return nil, err
	}

	results, err := s.clients.ForToken(source.Token).SearchAll(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to search workspace: %w", err)
	}

	items := make([]DiscoveryItem, 0, len(results))
	for _, result := range results {
		itemType := knowledge.TargetTypePage
		if result.Object == "data_source" {
			itemType = knowledge.TargetTypeDataSource
		}
		items = append(items, DiscoveryItem{
			ID:             result.ID,
			Type:           itemType,
			Title:          result.Title,
			URL:            result.URL,
			LastEditedTime: result.LastEditedTime,
		})
	}
	return items, nil
}
