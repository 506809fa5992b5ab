package query

import (
	"github.com/google/wire"

	"github.com/notionwiki/backend/internal/infrastructure/vector"
)

// ProviderSet 查询模块 ProviderSet
var ProviderSet = wire.NewSet(
	NewService,
	wire.Bind(new(VectorSearcher), new(*vector.Store)),
)
