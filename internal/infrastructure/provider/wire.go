package provider

import "github.com/google/wire"

// ProviderSet 模型提供方 ProviderSet
var ProviderSet = wire.NewSet(
	NewProvider,
)
