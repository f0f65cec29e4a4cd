package vector

import (
	"context"
	"sort"

	"apikb/internal/logging"
	"apikb/internal/manifest"
)

// Query filters and bounds one retrieval request
type Query struct {
	Text        string
	Kind        string // endpoint, dto, or service; empty matches all
	Service     string // restrict to one service; empty matches all
	TokenBudget int    // maximum combined tokens across results; 0 = default
	Limit       int    // maximum result count; 0 = default
}

const (
	defaultTokenBudget = 2048
	defaultLimit       = 10
)

// Result is one retrieved chunk with its relevance score
type Result struct {
	EntityID string
	Kind     string
	Service  string
	Text     string
	Tokens   int
	Score    float64
}

// Retriever answers queries against the active index generation
type Retriever struct {
	engine Engine
	store  *Store
	logger *logging.Logger
}

// NewRetriever creates a retriever over the given engine and store
func NewRetriever(engine Engine, store *Store, logger *logging.Logger) *Retriever {
	return &Retriever{engine: engine, store: store, logger: logger}
}

// Search embeds the query text and returns the most similar chunks, deduped
// to one result per entity, packed greedily under the token budget. The
// manifest fingerprint guards against answering from a stale index.
func (r *Retriever) Search(ctx context.Context, pk *manifest.ProjectKnowledge, q Query) ([]Result, error) {
	budget := q.TokenBudget
	if budget <= 0 {
		budget = defaultTokenBudget
	}
	limit := q.Limit
	if limit <= 0 {
		limit = defaultLimit
	}

	var expect string
	if pk != nil {
		expect = pk.Fingerprint()
	}
	stored, err := r.store.LoadGeneration(expect)
	if err != nil {
		return nil, err
	}

	queryVec, err := r.engine.Embed(ctx, q.Text)
	if err != nil {
		return nil, err
	}

	type scored struct {
		chunk StoredChunk
		score float64
	}
	candidates := make([]scored, 0, len(stored))
	for _, sc := range stored {
		if q.Kind != "" && sc.Kind != q.Kind {
			continue
		}
		if q.Service != "" && sc.Service != q.Service {
			continue
		}
		candidates = append(candidates, scored{chunk: sc, score: CosineSimilarity(queryVec, sc.Embedding)})
	}

	// Equal scores order by chunk id so results are reproducible
	sort.Slice(candidates, func(i, j int) bool {
		if candidates[i].score != candidates[j].score {
			return candidates[i].score > candidates[j].score
		}
		return candidates[i].chunk.ID < candidates[j].chunk.ID
	})

	var results []Result
	used := 0
	seenEntity := make(map[string]bool)

	for _, c := range candidates {
		if len(results) >= limit {
			break
		}
		if seenEntity[c.chunk.EntityID] {
			continue
		}
		if used+c.chunk.Tokens > budget {
			continue // a smaller chunk further down may still fit
		}
		seenEntity[c.chunk.EntityID] = true
		used += c.chunk.Tokens
		results = append(results, Result{
			EntityID: c.chunk.EntityID,
			Kind:     c.chunk.Kind,
			Service:  c.chunk.Service,
			Text:     c.chunk.Text,
			Tokens:   c.chunk.Tokens,
			Score:    c.score,
		})
	}

	r.logger.Debug("Vector search completed", map[string]interface{}{
		"query":      q.Text,
		"candidates": len(candidates),
		"results":    len(results),
		"tokensUsed": used,
	})

	return results, nil
}

// boundSearcher adapts a retriever to the manifest API's Searcher interface,
// fixing the manifest and query options at bind time.
type boundSearcher struct {
	r    *Retriever
	pk   *manifest.ProjectKnowledge
	opts Query
}

// Searcher binds this retriever to a manifest for use behind manifest.API.
// The query text of opts is ignored; it is supplied per call.
func (r *Retriever) Searcher(pk *manifest.ProjectKnowledge, opts Query) manifest.Searcher {
	return &boundSearcher{r: r, pk: pk, opts: opts}
}

func (b *boundSearcher) Search(ctx context.Context, query string) ([]manifest.SearchHit, error) {
	q := b.opts
	q.Text = query
	results, err := b.r.Search(ctx, b.pk, q)
	if err != nil {
		return nil, err
	}
	hits := make([]manifest.SearchHit, len(results))
	for i, res := range results {
		hits[i] = manifest.SearchHit{
			EntityID: res.EntityID,
			Kind:     res.Kind,
			Service:  res.Service,
			Text:     res.Text,
			Score:    res.Score,
		}
	}
	return hits, nil
}
