package infrastructure

import (
	"github.com/google/wire"

	"github.com/notionwiki/backend/internal/infrastructure/config"
	"github.com/notionwiki/backend/internal/infrastructure/notion"
	"github.com/notionwiki/backend/internal/infrastructure/provider"
	"github.com/notionwiki/backend/internal/infrastructure/queue"
	"github.com/notionwiki/backend/internal/infrastructure/storage"
	"github.com/notionwiki/backend/internal/infrastructure/vector"
)

// ProviderSet Infrastructure 层总 ProviderSet
var ProviderSet = wire.NewSet(
	config.ProviderSet,
	storage.ProviderSet,
	notion.ProviderSet,
	provider.ProviderSet,
	vector.ProviderSet,
	queue.ProviderSet,
)
