package query

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"time"

	"github.com/notionwiki/backend/internal/domain/knowledge"
	"github.com/notionwiki/backend/internal/infrastructure/config"
	"github.com/notionwiki/backend/internal/infrastructure/log"
	"github.com/notionwiki/backend/internal/infrastructure/provider"
	"github.com/notionwiki/backend/internal/infrastructure/vector"
)

const (
	// rrfK RRF 融合常数
	rrfK = 60
	// maxCitations 一条回答最多带的引用数
	maxCitations = 5
	// maxPerDocument 多样性约束：每个文档最多入选的片段数
	maxPerDocument = 2
	// partialPoolSize 部分匹配候选池大小
	partialPoolSize = 100
	// queryEmbedTaskType 查询向量化的任务类型
	queryEmbedTaskType = "RETRIEVAL_QUERY"
)

// 固定回答文案
const (
	answerPhraseNotFound   = "Exact phrase was not found in indexed documents for this source."
	answerNoEvidence       = "Cannot verify: no relevant evidence found."
	answerGenerationFailed = "LLM generation failed. Review the citations below."
)

// VectorSearcher 查询所需的向量库操作
type VectorSearcher interface {
	Search(ctx context.Context, vector []float32, sourceID int64, limit uint64) ([]*vector.SearchHit, error)
	EnsureCollection(ctx context.Context, dimension int) error
}

// Meta 单次查询的执行信息
type Meta struct {
	TopK         int   `json:"topK"`
	RetrievalMs  int64 `json:"retrievalMs"`
	GenerationMs int64 `json:"generationMs"`
}

// Answer 查询结果：回答永远伴随引用（除非确实无证据）
type Answer struct {
	Answer    string     `json:"answer"`
	Citations []Citation `json:"citations"`
	Meta      Meta       `json:"meta"`
}

// SearchResultItem 原始检索结果，供 MCP 工具使用
type SearchResultItem struct {
	ChunkID string  `json:"chunkId"`
	Title   string  `json:"title"`
	URL     string  `json:"url"`
	Text    string  `json:"text"`
	Score   float64 `json:"score"`
}

// contextChunk 融合后的检索候选
type contextChunk struct {
	key        string
	chunkID    string
	documentID int64
	pageID     string
	title      string
	url        string
	text       string
	score      float64
	best       float64 // 最高单源相似度，融合分并列时的次序键
}

// Service 混合检索与回答装配
type Service struct {
	chunks    knowledge.ChunkRepository
	documents knowledge.DocumentRepository
	provider  provider.Provider
	vectors   VectorSearcher
	topK      int
	logger    *slog.Logger
}

// NewService 创建查询服务
func NewService(
	chunks knowledge.ChunkRepository,
	documents knowledge.DocumentRepository,
	prov provider.Provider,
	vectors VectorSearcher,
	cfg *config.Config,
) *Service {
	topK := cfg.Query.TopK
	if topK <= 0 {
		topK = 8
	}
	return &Service{
		chunks:    chunks,
		documents: documents,
		provider:  prov,
		vectors:   vectors,
		topK:      topK,
		logger:    log.NewModuleLogger("query", "service"),
	}
}

// Ask 回答一个问题
// 带精确短语的问题走词法验证路径，其余走混合检索加生成
func (s *Service) Ask(ctx context.Context, sourceID int64, question string) (*Answer, error) {
	question = strings.TrimSpace(question)
	if question == "" {
		return nil, fmt.Errorf("question is required")
	}

	if phrase, ok := ExtractLexicalCandidate(question); ok {
		return s.askLexical(sourceID, phrase)
	}

	start := time.Now()
	contexts, err := s.retrieveHybrid(ctx, sourceID, question, s.topK)
	if err != nil {
		return nil, err
	}
	retrievalMs := time.Since(start).Milliseconds()

	if len(contexts) == 0 {
		return &Answer{
			Answer:    answerNoEvidence,
			Citations: []Citation{},
			Meta:      Meta{TopK: s.topK, RetrievalMs: retrievalMs},
		}, nil
	}

	genStart := time.Now()
	answerText, citations := s.generate(ctx, question, contexts)
	return &Answer{
		Answer:    answerText,
		Citations: citations,
		Meta: Meta{
			TopK:         s.topK,
			RetrievalMs:  retrievalMs,
			GenerationMs: time.Since(genStart).Milliseconds(),
		},
	}, nil
}

// SearchChunks 返回融合后的原始片段，不做生成
func (s *Service) SearchChunks(ctx context.Context, sourceID int64, query string, limit int) ([]SearchResultItem, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return nil, fmt.Errorf("query is required")
	}
	if limit <= 0 {
		limit = s.topK
	}

	contexts, err := s.retrieveHybrid(ctx, sourceID, query, limit)
	if err != nil {
		return nil, err
	}

	items := make([]SearchResultItem, len(contexts))
	for i, c := range contexts {
		items[i] = SearchResultItem{
			ChunkID: c.chunkID,
			Title:   c.title,
			URL:     c.url,
			Text:    c.text,
			Score:   c.score,
		}
	}
	return items, nil
}

// askLexical 词法验证路径：先精确包含，再按词部分匹配，不做生成
func (s *Service) askLexical(sourceID int64, phrase string) (*Answer, error) {
	start := time.Now()

	exact, err := s.chunks.FindContaining(sourceID, phrase, s.topK)
	if err != nil {
		return nil, fmt.Errorf("failed to search exact matches: %w", err)
	}
	if len(exact) > 0 {
		contexts := s.contextsFromChunks(sourceID, exact, func(i int) float64 {
			score := 1 - float64(i)*0.01
			if score < 0.5 {
				score = 0.5
			}
			return score
		})
		return &Answer{
			Answer:    fmt.Sprintf("Found %d exact match(es).", len(exact)),
			Citations: s.citationsFrom(contexts),
			Meta:      Meta{TopK: s.topK, RetrievalMs: time.Since(start).Milliseconds()},
		}, nil
	}

	terms := tokenizeTerms(phrase)
	pool, err := s.chunks.FindByAnyToken(sourceID, terms, partialPoolSize)
	if err != nil {
		return nil, fmt.Errorf("failed to search partial matches: %w", err)
	}
	partial := rankByTermHits(pool, terms, s.topK)
	if len(partial) > 0 {
		contexts := s.contextsFromChunks(sourceID, partial, func(i int) float64 {
			return 1 / float64(i+1)
		})
		return &Answer{
			Answer:    fmt.Sprintf("Exact phrase was not found, but found %d partial match(es).", len(partial)),
			Citations: s.citationsFrom(contexts),
			Meta:      Meta{TopK: s.topK, RetrievalMs: time.Since(start).Milliseconds()},
		}, nil
	}

	return &Answer{
		Answer:    answerPhraseNotFound,
		Citations: []Citation{},
		Meta:      Meta{TopK: s.topK, RetrievalMs: time.Since(start).Milliseconds()},
	}, nil
}

// rankByTermHits 按命中的不同词数排序，命中数相同时保持片段新旧顺序
func rankByTermHits(pool []*knowledge.Chunk, terms []string, limit int) []*knowledge.Chunk {
	if len(pool) == 0 {
		return nil
	}

	hits := make(map[string]int, len(pool))
	for _, chunk := range pool {
		lowered := strings.ToLower(chunk.Text)
		count := 0
		for _, term := range terms {
			if strings.Contains(lowered, term) {
				count++
			}
		}
		hits[chunk.ChunkID] = count
	}

	ranked := make([]*knowledge.Chunk, len(pool))
	copy(ranked, pool)
	sort.SliceStable(ranked, func(i, j int) bool {
		return hits[ranked[i].ChunkID] > hits[ranked[j].ChunkID]
	})

	if len(ranked) > limit {
		ranked = ranked[:limit]
	}
	return ranked
}

// retrieveHybrid 词法与语义并行检索，RRF 融合后做多样性约束
func (s *Service) retrieveHybrid(ctx context.Context, sourceID int64, question string, limit int) ([]*contextChunk, error) {
	lexicalLimit := 6 * limit
	if lexicalLimit < 48 {
		lexicalLimit = 48
	}
	semanticLimit := 4 * limit
	if semanticLimit < 24 {
		semanticLimit = 24
	}

	// 语义分支并行执行，失败时降级为空结果
	type semanticResult struct {
		hits []*vector.SearchHit
		err  error
	}
	semanticCh := make(chan semanticResult, 1)
	go func() {
		// 提供方客户端自带重试，这里不再包一层
		resp, err := s.provider.Embed(ctx, &provider.EmbedRequest{
			Texts:    []string{question},
			TaskType: queryEmbedTaskType,
		})
		if err != nil {
			semanticCh <- semanticResult{err: err}
			return
		}

		hits, err := s.vectors.Search(ctx, resp.Vectors[0], sourceID, uint64(semanticLimit))
		if err != nil {
			// 集合还没建：补建后按空结果返回
			if strings.Contains(err.Error(), "doesn't exist") {
				if ensureErr := s.vectors.EnsureCollection(ctx, resp.Dimension); ensureErr != nil {
					s.logger.Error("failed to ensure collection during query", "error", ensureErr)
				}
				semanticCh <- semanticResult{}
				return
			}
			semanticCh <- semanticResult{err: err}
			return
		}
		semanticCh <- semanticResult{hits: hits}
	}()

	terms := tokenizeTerms(question)
	pool, err := s.chunks.FindByAnyToken(sourceID, terms, lexicalLimit)
	if err != nil {
		return nil, fmt.Errorf("failed to run lexical search: %w", err)
	}
	lexical := rankByTermHits(pool, terms, lexicalLimit)

	semantic := <-semanticCh
	if semantic.err != nil {
		s.logger.Warn("semantic search degraded", "error", semantic.err)
	}

	fused := fuse(lexical, semantic.hits)
	s.fillDocumentInfo(sourceID, fused)
	diversified := applyDiversityCap(fused, limit)
	if len(diversified) > limit {
		diversified = diversified[:limit]
	}
	return diversified, nil
}

// fuse RRF 融合两个有序候选列表
// 并列时按候选自身的最高单源相似度排序
func fuse(lexical []*knowledge.Chunk, semantic []*vector.SearchHit) []*contextChunk {
	candidates := make(map[string]*contextChunk)
	var order []string

	add := func(key string, contrib, similarity float64, fill func(c *contextChunk)) {
		c, ok := candidates[key]
		if !ok {
			c = &contextChunk{key: key}
			candidates[key] = c
			order = append(order, key)
		}
		c.score += contrib
		if similarity > c.best {
			c.best = similarity
		}
		fill(c)
	}

	for rank, chunk := range lexical {
		chunk := chunk
		// 词法侧没有相似度，用名次合成一个
		add(chunk.ChunkID, 1/float64(rrfK+rank+1), 1/float64(rank+1), func(c *contextChunk) {
			if c.chunkID == "" {
				c.chunkID = chunk.ChunkID
			}
			if c.text == "" {
				c.text = chunk.Text
			}
			if c.documentID == 0 {
				c.documentID = chunk.DocumentID
			}
			if c.pageID == "" {
				c.pageID = chunk.PageID
			}
		})
	}

	for rank, hit := range semantic {
		hit := hit
		key := hit.ChunkID
		if key == "" {
			key = hit.PointID
		}
		add(key, 1/float64(rrfK+rank+1), float64(hit.Score), func(c *contextChunk) {
			if c.chunkID == "" {
				c.chunkID = hit.ChunkID
			}
			if c.text == "" {
				c.text = hit.Text
			}
			if c.documentID == 0 {
				c.documentID = hit.DocumentID
			}
			if c.pageID == "" {
				c.pageID = hit.PageID
			}
			if c.title == "" {
				c.title = hit.Title
			}
			if c.url == "" {
				c.url = hit.URL
			}
		})
	}

	fused := make([]*contextChunk, 0, len(order))
	for _, key := range order {
		fused = append(fused, candidates[key])
	}
	sort.SliceStable(fused, func(i, j int) bool {
		if fused[i].score != fused[j].score {
			return fused[i].score > fused[j].score
		}
		return fused[i].best > fused[j].best
	})
	return fused
}

// applyDiversityCap 贪心限制每个文档的片段数，名额不满时回填被跳过的
func applyDiversityCap(candidates []*contextChunk, limit int) []*contextChunk {
	if len(candidates) <= limit {
		return candidates
	}

	perDoc := make(map[int64]int)
	picked := make([]*contextChunk, 0, limit)
	var skipped []*contextChunk

	for _, c := range candidates {
		if len(picked) >= limit {
			break
		}
		if perDoc[c.documentID] >= maxPerDocument {
			skipped = append(skipped, c)
			continue
		}
		perDoc[c.documentID]++
		picked = append(picked, c)
	}
	for _, c := range skipped {
		if len(picked) >= limit {
			break
		}
		picked = append(picked, c)
	}
	return picked
}

// generate 调用模型生成回答，引用必须指向已提供的上下文
func (s *Service) generate(ctx context.Context, question string, contexts []*contextChunk) (string, []Citation) {
	resp, err := s.provider.Generate(ctx, &provider.GenerateRequest{
		SystemInstruction: answerSystemPrompt,
		UserText:          buildUserText(question, contexts),
		JSONOutput:        true,
	})
	if err != nil {
		s.logger.Error("answer generation failed", "error", err)
		return answerGenerationFailed, []Citation{fallbackCitation(contexts[0])}
	}

	parsed, err := parseGenerated(resp.Text)
	if err != nil {
		s.logger.Error("failed to parse generated answer", "error", err)
		return answerGenerationFailed, []Citation{fallbackCitation(contexts[0])}
	}

	byChunkID := make(map[string]*contextChunk, len(contexts))
	for _, c := range contexts {
		byChunkID[c.chunkID] = c
	}

	var citations []Citation
	for _, cited := range parsed.Citations {
		c, ok := byChunkID[cited.ChunkID]
		if !ok {
			// 引用了不存在的片段，丢弃
			continue
		}
		quote := cited.Quote
		if quote == "" || !strings.Contains(c.text, quote) {
			quote = quoteFromChunk(c.text)
		}
		citations = append(citations, Citation{
			ChunkID: c.chunkID,
			Title:   c.title,
			URL:     c.url,
			Quote:   quote,
		})
		if len(citations) >= maxCitations {
			break
		}
	}
	if len(citations) == 0 {
		citations = []Citation{fallbackCitation(contexts[0])}
	}
	return parsed.Answer, citations
}

// contextsFromChunks 将仓库片段转成上下文，并补全文档标题和链接
func (s *Service) contextsFromChunks(sourceID int64, chunks []*knowledge.Chunk, score func(i int) float64) []*contextChunk {
	contexts := make([]*contextChunk, len(chunks))
	for i, chunk := range chunks {
		contexts[i] = &contextChunk{
			key:        chunk.ChunkID,
			chunkID:    chunk.ChunkID,
			documentID: chunk.DocumentID,
			pageID:     chunk.PageID,
			text:       chunk.Text,
			score:      score(i),
		}
	}
	s.fillDocumentInfo(sourceID, contexts)
	return contexts
}

// fillDocumentInfo 为缺少标题或链接的候选补查文档信息
func (s *Service) fillDocumentInfo(sourceID int64, contexts []*contextChunk) {
	cache := make(map[string]*knowledge.Document)
	for _, c := range contexts {
		if c.title != "" || c.pageID == "" {
			continue
		}
		doc, ok := cache[c.pageID]
		if !ok {
			var err error
			doc, err = s.documents.FindBySourceAndPage(sourceID, c.pageID)
			if err != nil || doc == nil {
				continue
			}
			cache[c.pageID] = doc
		}
		c.title = doc.Title
		c.url = doc.URL
	}
}

// citationsFrom 从最靠前的上下文生成引用，最多 maxCitations 条
func (s *Service) citationsFrom(contexts []*contextChunk) []Citation {
	count := len(contexts)
	if count > maxCitations {
		count = maxCitations
	}
	citations := make([]Citation, count)
	for i := 0; i < count; i++ {
		citations[i] = fallbackCitation(contexts[i])
	}
	return citations
}
