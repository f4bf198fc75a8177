// Package retrieve finds the fragments of the loaded document that answer a
// query, by embedding similarity and by remote relevance reranking.
package retrieve

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"

	"github.com/WessleyAI/docqa/engine/domain"
	"github.com/WessleyAI/docqa/engine/embed"
	"github.com/WessleyAI/docqa/engine/semantic"
	"github.com/WessleyAI/docqa/engine/store"
)

// DefaultTopK is the number of results returned when none is requested.
const DefaultTopK = 5

// Search types reported in Results.
const (
	SearchEmbedding = "embedding"
	SearchBoth      = "both"
	SearchError     = "error"
)

var errQueryEmbedding = errors.New("query embedding failed")

// QueryEmbedder embeds query text. embed.Client satisfies it.
type QueryEmbedder interface {
	EmbedText(ctx context.Context, text string, mode embed.Mode) ([]float32, bool)
}

// Index is a persistent copy of document vectors. semantic.VectorStore
// satisfies it.
type Index interface {
	Search(ctx context.Context, embedding []float32, topK int, docID string) ([]semantic.SearchResult, error)
}

// Stats summarizes a SearchBoth call.
type Stats struct {
	EmbedCount  int `json:"embed_count"`
	RerankCount int `json:"rerank_count"`
}

// Results is the outcome of SearchBoth. RerankResults is nil unless rerank
// was requested. Err records a remote failure that emptied a result list.
type Results struct {
	EmbedResults  []domain.SearchResult `json:"embed_results"`
	RerankResults []domain.SearchResult `json:"rerank_results"`
	SearchType    string                `json:"search_type"`
	Stats         Stats                 `json:"stats"`
	Error         string                `json:"error,omitempty"`
	Err           error                 `json:"-"`
}

// Retriever reads the document currently held by a store.
type Retriever struct {
	store    *store.Store
	embedder QueryEmbedder
	reranker domain.Reranker
	index    Index
	logger   *slog.Logger
}

// Option configures a Retriever.
type Option func(*Retriever)

// WithIndex makes Search query ix first. Local ranking is used when the
// index fails or holds nothing for the loaded document.
func WithIndex(ix Index) Option {
	return func(r *Retriever) { r.index = ix }
}

// New creates a Retriever. A nil logger uses slog.Default().
func New(s *store.Store, e QueryEmbedder, r domain.Reranker, logger *slog.Logger, opts ...Option) *Retriever {
	if logger == nil {
		logger = slog.Default()
	}
	rt := &Retriever{store: s, embedder: e, reranker: r, logger: logger}
	for _, o := range opts {
		o(rt)
	}
	return rt
}

// Search ranks embedded fragments by dot product with the query embedding.
// Ties keep document order. A failed query embedding yields no results and
// a non-nil error; domain.ErrNoDocument is returned when nothing is loaded.
func (r *Retriever) Search(ctx context.Context, query string, topK int) ([]domain.SearchResult, error) {
	doc, err := r.store.Get()
	if err != nil {
		return nil, err
	}
	topK = clampTopK(topK)

	q, ok := r.embedder.EmbedText(ctx, query, embed.ModeQuery)
	if !ok {
		r.logger.Error("retrieve: search", "err", errQueryEmbedding)
		return []domain.SearchResult{}, fmt.Errorf("retrieve: search: %w", errQueryEmbedding)
	}

	if r.index != nil {
		if out, ok := r.searchIndex(ctx, doc, q, topK); ok {
			return out, nil
		}
	}

	type scored struct {
		idx   int
		score float64
	}
	var hits []scored
	for i, f := range doc.Fragments {
		if f.Embedded() {
			hits = append(hits, scored{i, embed.Dot(q, f.Embedding)})
		}
	}
	sort.SliceStable(hits, func(a, b int) bool { return hits[a].score > hits[b].score })
	if len(hits) > topK {
		hits = hits[:topK]
	}

	out := make([]domain.SearchResult, len(hits))
	for i, h := range hits {
		score := h.score
		out[i] = domain.SearchResult{Fragment: doc.Fragments[h.idx].Stripped(), SimilarityScore: &score}
	}
	return out, nil
}

// searchIndex maps index hits for doc back onto its fragments, ordered by
// score and then document order. ok is false when the local ranking should
// be used instead.
func (r *Retriever) searchIndex(ctx context.Context, doc *store.Document, q []float32, topK int) ([]domain.SearchResult, bool) {
	hits, err := r.index.Search(ctx, q, topK, doc.ID)
	if err != nil {
		r.logger.Warn("retrieve: index search, using local ranking", "document_id", doc.ID, "err", err)
		return nil, false
	}

	byChunk := make(map[int]int, len(doc.Fragments))
	for i, f := range doc.Fragments {
		if f.Embedded() {
			byChunk[f.ChunkID] = i
		}
	}
	type scored struct {
		idx   int
		score float64
	}
	var found []scored
	for _, h := range hits {
		i, ok := byChunk[h.ChunkID]
		if !ok || h.DocID != doc.ID {
			continue
		}
		found = append(found, scored{i, float64(h.Score)})
	}
	if len(found) == 0 {
		return nil, false
	}
	sort.Slice(found, func(a, b int) bool {
		if found[a].score != found[b].score {
			return found[a].score > found[b].score
		}
		return found[a].idx < found[b].idx
	})
	if len(found) > topK {
		found = found[:topK]
	}

	out := make([]domain.SearchResult, len(found))
	for i, h := range found {
		score := h.score
		out[i] = domain.SearchResult{Fragment: doc.Fragments[h.idx].Stripped(), SimilarityScore: &score}
	}
	return out, true
}

// Rerank asks the remote reranker to order the embedded text fragments by
// relevance to query. Images are never reranked. With no text fragments, or
// no reranker configured, the result is empty and no remote call is made.
func (r *Retriever) Rerank(ctx context.Context, query string, topK int) ([]domain.SearchResult, error) {
	doc, err := r.store.Get()
	if err != nil {
		return nil, err
	}
	topK = clampTopK(topK)

	var (
		texts   []string
		mapping []int
	)
	for i, f := range doc.Fragments {
		if f.Kind == domain.KindText && f.Embedded() {
			texts = append(texts, f.Content)
			mapping = append(mapping, i)
		}
	}
	if len(texts) == 0 {
		r.logger.Warn("retrieve: no text fragments to rerank")
		return []domain.SearchResult{}, nil
	}
	if r.reranker == nil {
		return []domain.SearchResult{}, nil
	}

	hits, err := r.reranker.Rerank(ctx, query, texts, min(topK, len(texts)))
	if err != nil {
		r.logger.Error("retrieve: rerank", "err", err)
		return []domain.SearchResult{}, fmt.Errorf("retrieve: rerank: %w", err)
	}

	out := make([]domain.SearchResult, 0, len(hits))
	for _, h := range hits {
		if h.Index < 0 || h.Index >= len(mapping) {
			r.logger.Warn("retrieve: rerank index out of range", "index", h.Index, "documents", len(texts))
			continue
		}
		score := h.Score
		out = append(out, domain.SearchResult{Fragment: doc.Fragments[mapping[h.Index]].Stripped(), RelevanceScore: &score})
	}
	return out, nil
}

// SearchBoth runs similarity search and, when useRerank is set, rerank.
// Remote failures are reported in Results.Err rather than returned; the
// error is only non-nil when no document is loaded.
func (r *Retriever) SearchBoth(ctx context.Context, query string, useRerank bool, topK int) (Results, error) {
	res := Results{SearchType: SearchEmbedding}
	embedResults, err := r.Search(ctx, query, topK)
	if errors.Is(err, domain.ErrNoDocument) {
		return Results{}, err
	}
	res.EmbedResults = embedResults
	res.Err = err

	if useRerank {
		res.SearchType = SearchBoth
		rerankResults, err := r.Rerank(ctx, query, topK)
		if errors.Is(err, domain.ErrNoDocument) {
			return Results{}, err
		}
		res.RerankResults = rerankResults
		res.Err = errors.Join(res.Err, err)
	}

	if res.Err != nil {
		res.Error = res.Err.Error()
		if len(res.EmbedResults) == 0 && len(res.RerankResults) == 0 {
			res.SearchType = SearchError
		}
	}
	res.Stats = Stats{EmbedCount: len(res.EmbedResults), RerankCount: len(res.RerankResults)}
	r.logger.Info("retrieve: search done", "type", res.SearchType, "embed", res.Stats.EmbedCount, "rerank", res.Stats.RerankCount)
	return res, nil
}

func clampTopK(k int) int {
	if k <= 0 {
		return DefaultTopK
	}
	return k
}
