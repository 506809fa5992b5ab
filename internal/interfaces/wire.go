package interfaces

import (
	"github.com/google/wire"

	"github.com/notionwiki/backend/internal/interfaces/http"
	"github.com/notionwiki/backend/internal/interfaces/mcp"
)

// ProviderSet Interfaces 层总 ProviderSet
var ProviderSet = wire.NewSet(
	http.ProviderSet,
	mcp.ProviderSet,
)
