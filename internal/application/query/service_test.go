package query

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/notionwiki/backend/internal/domain/knowledge"
	"github.com/notionwiki/backend/internal/infrastructure/config"
	"github.com/notionwiki/backend/internal/infrastructure/provider"
	"github.com/notionwiki/backend/internal/infrastructure/storage"
	"github.com/notionwiki/backend/internal/infrastructure/vector"
)

// fakeProvider 返回脚本化结果的提供方
type fakeProvider struct {
	genText    string
	genErr     error
	embedErr   error
	genCalls   int
	embedCalls int
}

func (p *fakeProvider) Name() string { return "fake" }

func (p *fakeProvider) Embed(ctx context.Context, req *provider.EmbedRequest) (*provider.EmbedResponse, error) {
	p.embedCalls++
	if p.embedErr != nil {
		return nil, p.embedErr
	}
	vectors := make([][]float32, len(req.Texts))
	for i := range vectors {
		vectors[i] = []float32{0.1, 0.2, 0.3, 0.4}
	}
	return &provider.EmbedResponse{Vectors: vectors, Model: "fake-embed", Dimension: 4}, nil
}

func (p *fakeProvider) Generate(ctx context.Context, req *provider.GenerateRequest) (*provider.GenerateResponse, error) {
	p.genCalls++
	if p.genErr != nil {
		return nil, p.genErr
	}
	return &provider.GenerateResponse{Text: p.genText, Model: "fake-gen"}, nil
}

// fakeSearcher 返回脚本化结果的向量检索器
type fakeSearcher struct {
	hits        []*vector.SearchHit
	err         error
	ensuredDims []int
}

func (f *fakeSearcher) Search(ctx context.Context, vec []float32, sourceID int64, limit uint64) ([]*vector.SearchHit, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.hits, nil
}

func (f *fakeSearcher) EnsureCollection(ctx context.Context, dimension int) error {
	f.ensuredDims = append(f.ensuredDims, dimension)
	return nil
}

type queryEnv struct {
	service   *Service
	sourceID  int64
	documents knowledge.DocumentRepository
	chunks    knowledge.ChunkRepository
	provider  *fakeProvider
	searcher  *fakeSearcher
}

func newQueryEnv(t *testing.T) *queryEnv {
	t.Helper()

	db, err := storage.NewDB(&config.DatabaseConfig{Path: filepath.Join(t.TempDir(), "test.db")})
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	sources := storage.NewSourceRepository(db)
	source := &knowledge.Source{Name: "kb", Token: "secret", CreatedAt: 1, UpdatedAt: 1}
	require.NoError(t, sources.Save(source))

	env := &queryEnv{
		sourceID:  source.ID,
		documents: storage.NewDocumentRepository(db),
		chunks:    storage.NewChunkRepository(db),
		provider:  &fakeProvider{genText: `{"answer": "Default.", "citations": []}`},
		searcher:  &fakeSearcher{},
	}
	cfg := &config.Config{Query: config.QueryConfig{TopK: 4}}
	env.service = NewService(env.chunks, env.documents, env.provider, env.searcher, cfg)
	return env
}

// seedChunk 建档并写入一个片段，返回 chunk_id
func (e *queryEnv) seedChunk(t *testing.T, pageID, title, text string, index int, lastEdited int64) string {
	t.Helper()

	docID, err := e.documents.Upsert(&knowledge.Document{
		SourceID:     e.sourceID,
		PageID:       pageID,
		Title:        title,
		URL:          "https://notion.so/" + pageID,
		Status:       knowledge.DocumentStatusActive,
		LastEditedAt: lastEdited,
	})
	require.NoError(t, err)

	chunkID := fmt.Sprintf("%d:%s:%d:seed", e.sourceID, pageID, index)
	require.NoError(t, e.chunks.UpsertBatch([]*knowledge.Chunk{{
		ChunkID:    chunkID,
		DocumentID: docID,
		SourceID:   e.sourceID,
		PageID:     pageID,
		ChunkIndex: index,
		Text:       text,
		TokenCount: 10,
	}}))
	return chunkID
}

func TestAsk_ExactMatch(t *testing.T) {
	env := newQueryEnv(t)
	chunkID := env.seedChunk(t, "page-1", "Vendors", "The approved vendor domain is forcura.com for all integrations.", 0, 100)

	answer, err := env.service.Ask(context.Background(), env.sourceID, `Is "forcura.com" in the docs?`)
	require.NoError(t, err)

	assert.Equal(t, "Found 1 exact match(es).", answer.Answer)
	require.Len(t, answer.Citations, 1)
	assert.Equal(t, chunkID, answer.Citations[0].ChunkID)
	assert.Equal(t, "Vendors", answer.Citations[0].Title)
	assert.Equal(t, "https://notion.so/page-1", answer.Citations[0].URL)
	assert.NotEmpty(t, answer.Citations[0].Quote)
	// 词法路径不调用生成
	assert.Zero(t, env.provider.genCalls)
}

func TestAsk_ExactMatchNewestFirst(t *testing.T) {
	env := newQueryEnv(t)
	env.seedChunk(t, "page-old", "Old", "Shared phrase target here.", 0, 100)
	newest := env.seedChunk(t, "page-new", "New", "Shared phrase target here too.", 0, 200)

	answer, err := env.service.Ask(context.Background(), env.sourceID, `Find "phrase target" please`)
	require.NoError(t, err)

	assert.Equal(t, "Found 2 exact match(es).", answer.Answer)
	require.Len(t, answer.Citations, 2)
	assert.Equal(t, newest, answer.Citations[0].ChunkID)
}

func TestAsk_PartialMatch(t *testing.T) {
	env := newQueryEnv(t)
	env.seedChunk(t, "page-1", "Runbook", "The deployment checklist lives in the ops folder.", 0, 100)

	answer, err := env.service.Ask(context.Background(), env.sourceID, `Did we write "deployment checklist rollback"?`)
	require.NoError(t, err)

	assert.Equal(t, "Exact phrase was not found, but found 1 partial match(es).", answer.Answer)
	require.Len(t, answer.Citations, 1)
	assert.Zero(t, env.provider.genCalls)
}

func TestAsk_PhraseNotFound(t *testing.T) {
	env := newQueryEnv(t)
	env.seedChunk(t, "page-1", "Runbook", "Nothing relevant lives here.", 0, 100)

	answer, err := env.service.Ask(context.Background(), env.sourceID, `Search for "zzqx wvut entirely-absent"`)
	require.NoError(t, err)

	assert.Equal(t, answerPhraseNotFound, answer.Answer)
	assert.Empty(t, answer.Citations)
}

func TestAsk_HybridGeneration(t *testing.T) {
	env := newQueryEnv(t)
	chunkID := env.seedChunk(t, "page-1", "Runbook", "Restart the worker with systemctl restart worker.", 0, 100)
	env.provider.genText = fmt.Sprintf(
		`{"answer": "Run systemctl restart worker.", "citations": [{"chunkId": "%s", "quote": "Restart the worker with systemctl restart worker."}]}`,
		chunkID,
	)

	answer, err := env.service.Ask(context.Background(), env.sourceID, "How do I restart the worker?")
	require.NoError(t, err)

	assert.Equal(t, "Run systemctl restart worker.", answer.Answer)
	require.Len(t, answer.Citations, 1)
	assert.Equal(t, chunkID, answer.Citations[0].ChunkID)
	assert.Equal(t, "Restart the worker with systemctl restart worker.", answer.Citations[0].Quote)
	assert.Equal(t, "Runbook", answer.Citations[0].Title)
	assert.Equal(t, 1, env.provider.genCalls)
	assert.Equal(t, 4, answer.Meta.TopK)
}

func TestAsk_InvalidCitationFallsBack(t *testing.T) {
	env := newQueryEnv(t)
	chunkID := env.seedChunk(t, "page-1", "Runbook", "Restart the worker daily. Check the logs after.", 0, 100)
	env.provider.genText = `{"answer": "Do the thing.", "citations": [{"chunkId": "bogus-chunk", "quote": "made up"}]}`

	answer, err := env.service.Ask(context.Background(), env.sourceID, "How do I restart the worker?")
	require.NoError(t, err)

	assert.Equal(t, "Do the thing.", answer.Answer)
	require.Len(t, answer.Citations, 1)
	assert.Equal(t, chunkID, answer.Citations[0].ChunkID)
	assert.Equal(t, "Restart the worker daily. Check the logs after.", answer.Citations[0].Quote)
}

func TestAsk_GenerationFailure(t *testing.T) {
	env := newQueryEnv(t)
	env.seedChunk(t, "page-1", "Runbook", "Restart the worker daily.", 0, 100)
	env.provider.genErr = &provider.Error{Code: provider.ErrCodeServerError, Message: "boom", Retryable: true}

	answer, err := env.service.Ask(context.Background(), env.sourceID, "How do I restart the worker?")
	require.NoError(t, err)

	assert.Equal(t, answerGenerationFailed, answer.Answer)
	require.Len(t, answer.Citations, 1)
	// 重试属于提供方客户端，服务层对每个阶段只调一次
	assert.Equal(t, 1, env.provider.embedCalls)
	assert.Equal(t, 1, env.provider.genCalls)
}

func TestAsk_NoEvidence(t *testing.T) {
	env := newQueryEnv(t)

	answer, err := env.service.Ask(context.Background(), env.sourceID, "Anything about quantum llamas?")
	require.NoError(t, err)

	assert.Equal(t, answerNoEvidence, answer.Answer)
	assert.Empty(t, answer.Citations)
	assert.Zero(t, env.provider.genCalls)
}

func TestAsk_SemanticFailureDegrades(t *testing.T) {
	env := newQueryEnv(t)
	env.seedChunk(t, "page-1", "Runbook", "Restart the worker daily.", 0, 100)
	env.searcher.err = errors.New("qdrant unreachable")

	answer, err := env.service.Ask(context.Background(), env.sourceID, "How do I restart the worker?")
	require.NoError(t, err)
	require.Len(t, answer.Citations, 1)
}

func TestAsk_MissingCollectionRecovers(t *testing.T) {
	env := newQueryEnv(t)
	env.seedChunk(t, "page-1", "Runbook", "Restart the worker daily.", 0, 100)
	env.searcher.err = errors.New("collection `notion_chunks` doesn't exist")

	answer, err := env.service.Ask(context.Background(), env.sourceID, "How do I restart the worker?")
	require.NoError(t, err)
	require.NotEmpty(t, answer.Citations)
	// 用查询向量的维度补建集合
	assert.Equal(t, []int{4}, env.searcher.ensuredDims)
}

func TestAsk_SemanticHitsFused(t *testing.T) {
	env := newQueryEnv(t)
	chunkID := env.seedChunk(t, "page-1", "Runbook", "Restart the worker daily.", 0, 100)
	env.searcher.hits = []*vector.SearchHit{
		{PointID: "p-1", Score: 0.9, ChunkID: chunkID, DocumentID: 1, PageID: "page-1", Title: "Runbook", URL: "https://notion.so/page-1", Text: "Restart the worker daily."},
		{PointID: "p-2", Score: 0.5, ChunkID: "other-chunk", DocumentID: 2, PageID: "page-2", Title: "Other", URL: "https://notion.so/page-2", Text: "Unrelated."},
	}
	env.provider.genText = fmt.Sprintf(`{"answer": "Fused.", "citations": [{"chunkId": "%s", "quote": "Restart the worker daily."}]}`, chunkID)

	answer, err := env.service.Ask(context.Background(), env.sourceID, "How do I restart the worker?")
	require.NoError(t, err)
	assert.Equal(t, "Fused.", answer.Answer)
	assert.Equal(t, chunkID, answer.Citations[0].ChunkID)
}

func TestSearchChunks(t *testing.T) {
	env := newQueryEnv(t)
	chunkID := env.seedChunk(t, "page-1", "Runbook", "Restart the worker daily.", 0, 100)

	items, err := env.service.SearchChunks(context.Background(), env.sourceID, "restart worker", 5)
	require.NoError(t, err)
	require.Len(t, items, 1)
	assert.Equal(t, chunkID, items[0].ChunkID)
	assert.Equal(t, "Runbook", items[0].Title)
	assert.Positive(t, items[0].Score)

	_, err = env.service.SearchChunks(context.Background(), env.sourceID, "  ", 5)
	require.Error(t, err)
}

func TestFuse_MergesDuplicates(t *testing.T) {
	lexical := []*knowledge.Chunk{
		{ChunkID: "c-shared", DocumentID: 1, PageID: "p1", Text: "shared text"},
		{ChunkID: "c-lex-only", DocumentID: 2, PageID: "p2", Text: "lexical only"},
	}
	semantic := []*vector.SearchHit{
		{PointID: "pt-1", ChunkID: "c-shared", DocumentID: 1, PageID: "p1", Title: "Doc", URL: "u", Text: "shared text"},
		{PointID: "pt-2", ChunkID: "c-sem-only", DocumentID: 3, PageID: "p3", Text: "semantic only"},
	}

	fused := fuse(lexical, semantic)
	require.Len(t, fused, 3)

	// 双列表命中的候选分数为两份 RRF 贡献之和，排第一
	assert.Equal(t, "c-shared", fused[0].chunkID)
	expected := 1.0/float64(rrfK+1) + 1.0/float64(rrfK+1)
	assert.InDelta(t, expected, fused[0].score, 1e-9)
	// 语义侧的元数据回填
	assert.Equal(t, "Doc", fused[0].title)
}

func TestFuse_TieBreaksOnSimilarity(t *testing.T) {
	lexical := []*knowledge.Chunk{
		{ChunkID: "lex-top", DocumentID: 1, PageID: "p1", Text: "top"},
		{ChunkID: "lex-second", DocumentID: 2, PageID: "p2", Text: "second"},
	}
	semantic := []*vector.SearchHit{
		{PointID: "pt-1", ChunkID: "sem-top", Score: 0.95, DocumentID: 3, PageID: "p3", Text: "sem top"},
		{PointID: "pt-2", ChunkID: "sem-second", Score: 0.9, DocumentID: 4, PageID: "p4", Text: "sem second"},
	}

	fused := fuse(lexical, semantic)
	require.Len(t, fused, 4)

	// 同名次的候选融合分并列，按各自的单源相似度定序：
	// 词法第 1 名合成相似度 1.0，第 2 名 0.5
	assert.Equal(t, "lex-top", fused[0].chunkID)
	assert.Equal(t, "sem-top", fused[1].chunkID)
	assert.Equal(t, "sem-second", fused[2].chunkID)
	assert.Equal(t, "lex-second", fused[3].chunkID)
}

func TestFuse_OrderInvariance(t *testing.T) {
	lexical := []*knowledge.Chunk{
		{ChunkID: "a", DocumentID: 1, PageID: "p", Text: "a"},
		{ChunkID: "b", DocumentID: 1, PageID: "p", Text: "b"},
	}
	semantic := []*vector.SearchHit{
		{PointID: "pt-b", ChunkID: "b", DocumentID: 1, PageID: "p", Text: "b"},
		{PointID: "pt-a", ChunkID: "a", DocumentID: 1, PageID: "p", Text: "a"},
	}

	fused := fuse(lexical, semantic)
	require.Len(t, fused, 2)
	// a 和 b 的总分相同，列表来源顺序不影响分数
	assert.InDelta(t, fused[0].score, fused[1].score, 1e-9)
}

func TestApplyDiversityCap(t *testing.T) {
	candidates := []*contextChunk{
		{chunkID: "d1-a", documentID: 1},
		{chunkID: "d1-b", documentID: 1},
		{chunkID: "d1-c", documentID: 1},
		{chunkID: "d2-a", documentID: 2},
		{chunkID: "d1-d", documentID: 1},
	}

	result := applyDiversityCap(candidates, 4)
	require.Len(t, result, 4)
	// 前两名来自文档 1，第三名被多样性约束跳过，文档 2 顶上
	assert.Equal(t, "d1-a", result[0].chunkID)
	assert.Equal(t, "d1-b", result[1].chunkID)
	assert.Equal(t, "d2-a", result[2].chunkID)
	// 名额未满时跳过的候选回填
	assert.Equal(t, "d1-c", result[3].chunkID)
}

func TestApplyDiversityCap_SkippedWhenSmall(t *testing.T) {
	candidates := []*contextChunk{
		{chunkID: "a", documentID: 1},
		{chunkID: "b", documentID: 1},
		{chunkID: "c", documentID: 1},
	}
	result := applyDiversityCap(candidates, 4)
	assert.Len(t, result, 3)
}
