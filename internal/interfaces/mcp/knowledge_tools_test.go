package mcp

import (
	"context"
	"fmt"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/notionwiki/backend/internal/application/query"
	"github.com/notionwiki/backend/internal/domain/knowledge"
	"github.com/notionwiki/backend/internal/infrastructure/config"
	"github.com/notionwiki/backend/internal/infrastructure/provider"
	"github.com/notionwiki/backend/internal/infrastructure/storage"
	"github.com/notionwiki/backend/internal/infrastructure/vector"
)

// noopSearcher 无向量命中的检索器，词法路径足够覆盖工具行为
type noopSearcher struct{}

func (noopSearcher) Search(ctx context.Context, vec []float32, sourceID int64, limit uint64) ([]*vector.SearchHit, error) {
	return nil, nil
}

func (noopSearcher) EnsureCollection(ctx context.Context, dimension int) error {
	return nil
}

func setupMCPServer(t *testing.T) (*MCPServer, int64) {
	t.Helper()

	db, err := storage.NewDB(&config.DatabaseConfig{Path: filepath.Join(t.TempDir(), "test.db")})
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	sources := storage.NewSourceRepository(db)
	source := &knowledge.Source{Name: "kb", Token: "secret", CreatedAt: 1, UpdatedAt: 1}
	require.NoError(t, sources.Save(source))

	documents := storage.NewDocumentRepository(db)
	chunks := storage.NewChunkRepository(db)

	docID, err := documents.Upsert(&knowledge.Document{
		SourceID:     source.ID,
		PageID:       "page-1",
		Title:        "Deploy Runbook",
		URL:          "https://notion.so/page-1",
		Status:       knowledge.DocumentStatusActive,
		LastEditedAt: 100,
	})
	require.NoError(t, err)
	require.NoError(t, chunks.UpsertBatch([]*knowledge.Chunk{{
		ChunkID:    fmt.Sprintf("%d:page-1:0:seed", source.ID),
		DocumentID: docID,
		SourceID:   source.ID,
		PageID:     "page-1",
		ChunkIndex: 0,
		Text:       "Rollbacks are triggered with the deploy-rollback command on the primary node.",
		TokenCount: 12,
	}}))

	cfg := &config.Config{Query: config.QueryConfig{TopK: 4}}
	service := query.NewService(chunks, documents, provider.NewMockProvider(), noopSearcher{}, cfg)
	return NewServer(service), source.ID
}

func TestAskKnowledgeBaseTool(t *testing.T) {
	server, sourceID := setupMCPServer(t)

	_, output, err := server.askKnowledgeBaseTool(context.Background(), nil, AskKnowledgeBaseInput{
		SourceID: sourceID,
		Question: `Where is "deploy-rollback command" documented?`,
	})
	require.NoError(t, err)

	assert.Equal(t, "Found 1 exact match(es).", output.Answer)
	require.Len(t, output.Citations, 1)
	assert.Equal(t, "Deploy Runbook", output.Citations[0].Title)
	assert.Equal(t, "https://notion.so/page-1", output.Citations[0].URL)
}

func TestAskKnowledgeBaseTool_Validation(t *testing.T) {
	server, sourceID := setupMCPServer(t)

	_, _, err := server.askKnowledgeBaseTool(context.Background(), nil, AskKnowledgeBaseInput{Question: "hi"})
	assert.ErrorContains(t, err, "source_id is required")

	_, _, err = server.askKnowledgeBaseTool(context.Background(), nil, AskKnowledgeBaseInput{SourceID: sourceID})
	assert.ErrorContains(t, err, "question is required")
}

func TestSearchChunksTool(t *testing.T) {
	server, sourceID := setupMCPServer(t)

	_, output, err := server.searchChunksTool(context.Background(), nil, SearchChunksInput{
		SourceID: sourceID,
		Query:    "rollback primary node",
	})
	require.NoError(t, err)

	require.Equal(t, 1, output.Total)
	assert.Equal(t, "Deploy Runbook", output.Results[0].Title)
	assert.Contains(t, output.Results[0].Text, "deploy-rollback")
}

func TestSearchChunksTool_NoMatches(t *testing.T) {
	server, sourceID := setupMCPServer(t)

	_, output, err := server.searchChunksTool(context.Background(), nil, SearchChunksInput{
		SourceID: sourceID,
		Query:    "kubernetes operator upgrade",
	})
	require.NoError(t, err)
	assert.Zero(t, output.Total)
	assert.NotNil(t, output.Results)
}

func TestSearchChunksTool_Validation(t *testing.T) {
	server, _ := setupMCPServer(t)

	_, _, err := server.searchChunksTool(context.Background(), nil, SearchChunksInput{Query: "x"})
	assert.ErrorContains(t, err, "source_id is required")
}
