package source

import (
	"github.com/google/wire"

	"github.com/notionwiki/backend/internal/infrastructure/notion"
)

// ProviderSet 来源管理模块 ProviderSet
var ProviderSet = wire.NewSet(
	NewService,
	NewClientFactory,
)

// notionClientFactory 把 notion.Factory 适配成工作区客户端工厂
type notionClientFactory struct {
	factory *notion.Factory
}

func (f notionClientFactory) ForToken(token string) WorkspaceClient {
	return f.factory.ForToken(token)
}

// NewClientFactory 创建工作区客户端工厂
func NewClientFactory(factory *notion.Factory) ClientFactory {
	return notionClientFactory{factory: factory}
}
