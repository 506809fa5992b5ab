package notion

import "github.com/google/wire"

// ProviderSet Notion 客户端 ProviderSet
var ProviderSet = wire.NewSet(
	NewFactory,
)
