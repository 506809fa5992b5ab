package application

import (
	"github.com/google/wire"

	"github.com/notionwiki/backend/internal/application/ingest"
	"github.com/notionwiki/backend/internal/application/query"
	"github.com/notionwiki/backend/internal/application/source"
)

// ProviderSet Application 层总 ProviderSet
var ProviderSet = wire.NewSet(
	source.ProviderSet,
	ingest.ProviderSet,
	query.ProviderSet,
)
