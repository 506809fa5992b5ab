package source

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/notionwiki/backend/internal/domain/knowledge"
	"github.com/notionwiki/backend/internal/infrastructure/config"
	"github.com/notionwiki/backend/internal/infrastructure/notion"
	"github.com/notionwiki/backend/internal/infrastructure/storage"
)

type fakeWorkspaceClient struct {
	user      *notion.User
	meErr     error
	results   []notion.SearchResult
	searchErr error
}

func (c *fakeWorkspaceClient) Me(ctx context.Context) (*notion.User, error) {
	if c.meErr != nil {
		return nil, c.meErr
	}
	return c.user, nil
}

func (c *fakeWorkspaceClient) SearchAll(ctx context.Context, query string) ([]notion.SearchResult, error) {
	if c.searchErr != nil {
		return nil, c.searchErr
	}
	return c.results, nil
}

type fakeFactory struct {
	client *fakeWorkspaceClient
}

func (f fakeFactory) ForToken(token string) WorkspaceClient {
	return f.client
}

func newTestService(t *testing.T) (*Service, *fakeWorkspaceClient) {
	t.Helper()

	db, err := storage.NewDB(&config.DatabaseConfig{Path: filepath.Join(t.TempDir(), "test.db")})
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	client := &fakeWorkspaceClient{
		user: &notion.User{ID: "bot-1", Type: "bot"},
	}
	client.user.Bot.WorkspaceName = "Acme Wiki"

	svc := NewService(
		storage.NewSourceRepository(db),
		storage.NewSyncTargetRepository(db),
		fakeFactory{client: client},
	)
	return svc, client
}

func TestCreateSource(t *testing.T) {
	svc, _ := newTestService(t)

	source, err := svc.CreateSource(context.Background(), "Team KB", "secret-token")
	require.NoError(t, err)
	assert.NotZero(t, source.ID)
	assert.Equal(t, "Team KB", source.Name)
	assert.Equal(t, "secret-token", source.Token)
}

func TestCreateSource_DefaultsToWorkspaceName(t *testing.T) {
	svc, _ := newTestService(t)

	source, err := svc.CreateSource(context.Background(), "", "secret-token")
	require.NoError(t, err)
	assert.Equal(t, "Acme Wiki", source.Name)
}

func TestCreateSource_InvalidToken(t *testing.T) {
	svc, client := newTestService(t)
	client.meErr = &notion.APIError{Code: "AUTH_FAILED", Status: 401, Message: "invalid token"}

	_, err := svc.CreateSource(context.Background(), "Team KB", "bad-token")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to validate notion token")

	sources, err := svc.ListSources()
	require.NoError(t, err)
	assert.Empty(t, sources)
}

func TestCreateSource_ReauthUpdatesToken(t *testing.T) {
	svc, _ := newTestService(t)

	first, err := svc.CreateSource(context.Background(), "Team KB", "old-token")
	require.NoError(t, err)

	second, err := svc.CreateSource(context.Background(), "Team KB", "new-token")
	require.NoError(t, err)
	assert.Equal(t, first.ID, second.ID)
	assert.Equal(t, "new-token", second.Token)

	sources, err := svc.ListSources()
	require.NoError(t, err)
	assert.Len(t, sources, 1)
}

func TestAddTarget(t *testing.T) {
	svc, _ := newTestService(t)
	source, err := svc.CreateSource(context.Background(), "Team KB", "secret")
	require.NoError(t, err)

	target, err := svc.AddTarget(source.ID, knowledge.TargetTypePage, "page-1", "Runbook")
	require.NoError(t, err)
	assert.NotZero(t, target.ID)
	assert.True(t, target.Active)

	targets, err := svc.ListTargets(source.ID)
	require.NoError(t, err)
	assert.Len(t, targets, 1)
}

func TestAddTarget_Validation(t *testing.T) {
	svc, _ := newTestService(t)
	source, err := svc.CreateSource(context.Background(), "Team KB", "secret")
	require.NoError(t, err)

	_, err = svc.AddTarget(source.ID, "database", "x", "")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid target type")

	_, err = svc.AddTarget(source.ID, knowledge.TargetTypePage, "", "")
	require.Error(t, err)

	_, err = svc.AddTarget(999, knowledge.TargetTypePage, "page-1", "")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not found")
}

func TestSetTargetStatus(t *testing.T) {
	svc, _ := newTestService(t)
	source, err := svc.CreateSource(context.Background(), "Team KB", "secret")
	require.NoError(t, err)
	target, err := svc.AddTarget(source.ID, knowledge.TargetTypePage, "page-1", "")
	require.NoError(t, err)

	updated, err := svc.SetTargetStatus(target.ID, false)
	require.NoError(t, err)
	assert.False(t, updated.Active)

	updated, err = svc.SetTargetStatus(target.ID, true)
	require.NoError(t, err)
	assert.True(t, updated.Active)

	_, err = svc.SetTargetStatus(999, true)
	require.Error(t, err)
}

func TestDiscover(t *testing.T) {
	svc, client := newTestService(t)
	source, err := svc.CreateSource(context.Background(), "Team KB", "secret")
	require.NoError(t, err)

	client.results = []notion.SearchResult{
		{ID: "page-1", Object: "page", URL: "https://notion.so/page-1", Title: "Runbook", LastEditedTime: "2026-08-01T00:00:00Z"},
		{ID: "ds-1", Object: "data_source", Title: "Tickets"},
	}

	items, err := svc.Discover(context.Background(), source.ID, "run")
	require.NoError(t, err)
	require.Len(t, items, 2)
	assert.Equal(t, knowledge.TargetTypePage, items[0].Type)
	assert.Equal(t, knowledge.TargetTypeDataSource, items[1].Type)
	assert.Equal(t, "Runbook", items[0].Title)
}
