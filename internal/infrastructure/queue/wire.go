package queue

import "github.com/google/wire"

// ProviderSet 任务队列 ProviderSet
var ProviderSet = wire.NewSet(
	NewClient,
)
