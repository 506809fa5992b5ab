package ingest

import (
	"github.com/google/wire"

	"github.com/notionwiki/backend/internal/infrastructure/notion"
	"github.com/notionwiki/backend/internal/infrastructure/queue"
	"github.com/notionwiki/backend/internal/infrastructure/vector"
)

// ProviderSet 摄取模块 ProviderSet
var ProviderSet = wire.NewSet(
	NewService,
	NewDispatcher,
	NewClientFactory,
	wire.Bind(new(Enqueuer), new(*queue.Client)),
	wire.Bind(new(VectorIndex), new(*vector.Store)),
)

// notionClientFactory 把 notion.Factory 适配成摄取层的客户端工厂
type notionClientFactory struct {
	factory *notion.Factory
}

func (f notionClientFactory) ForToken(token string) ContentClient {
	return f.factory.ForToken(token)
}

// NewClientFactory 创建内容客户端工厂
func NewClientFactory(factory *notion.Factory) ClientFactory {
	return notionClientFactory{factory: factory}
}
