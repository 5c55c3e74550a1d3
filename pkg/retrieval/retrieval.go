package retrieval

import (
	"context"
	"fmt"
	"sort"

	"github.com/xhad/docdex/internal/models"
	"github.com/xhad/docdex/internal/types"
	"github.com/xhad/docdex/pkg/sparse"
)

type EngineConfig struct {
	Threshold       float64 // minimum dense similarity for candidates
	CandidateFactor int     // dense candidates fetched per requested result
}

// Engine runs hybrid retrieval: a dense nearest-neighbor pass against the
// store, then a keyword re-scoring pass, blended by the query's alpha.
type Engine struct {
	store    types.VectorStore
	embedder types.Embedder
	config   EngineConfig
}

func NewEngine(store types.VectorStore, embedder types.Embedder, config EngineConfig) *Engine {
	if config.Threshold < 0 {
		config.Threshold = 0
	}
	if config.CandidateFactor <= 0 {
		config.CandidateFactor = 4
	}
	return &Engine{store: store, embedder: embedder, config: config}
}

// Retrieve returns up to query.TopK results ranked by
// alpha*dense + (1-alpha)*sparse. An empty result set is not an error;
// backend failures are.
func (e *Engine) Retrieve(ctx context.Context, query models.Query) ([]models.SearchResult, error) {
	if query.Alpha < 0 || query.Alpha > 1 {
		return nil, fmt.Errorf("alpha must be in [0,1], got %g", query.Alpha)
	}
	topK := query.TopK
	if topK <= 0 {
		topK = 5
	}

	vector, err := e.embedder.Embed(ctx, query.Raw)
	if err != nil {
		return nil, fmt.Errorf("failed to embed query: %w", err)
	}

	// person queries narrow the candidate set before scoring
	var filter *models.Filter
	if query.Mode == models.ModePerson && query.Subject != "" {
		filter = &models.Filter{Subject: query.Subject}
	}

	candidates, err := e.store.Query(ctx, vector, e.config.Threshold, topK*e.config.CandidateFactor, filter)
	if err != nil {
		return nil, fmt.Errorf("vector store query: %w", err)
	}

	candidates = dedupeByChunk(candidates)
	e.blend(query, candidates)

	sort.SliceStable(candidates, func(i, j int) bool {
		return candidates[i].Score > candidates[j].Score
	})

	if len(candidates) > topK {
		candidates = candidates[:topK]
	}
	return candidates, nil
}

// blend fills Sparse and Score on each candidate. The keyword pass is skipped
// entirely for alpha=1 so pure semantic ranking is exactly the dense order.
func (e *Engine) blend(query models.Query, candidates []models.SearchResult) {
	if query.Alpha == 1 || len(candidates) == 0 {
		for i := range candidates {
			candidates[i].Score = candidates[i].Dense
		}
		return
	}

	pool := make([]string, len(candidates))
	for i, c := range candidates {
		pool[i] = c.Content
	}
	enc := sparse.NewEncoder()
	enc.Fit(pool)
	queryVec := enc.Encode(query.Raw)

	for i := range candidates {
		candidates[i].Sparse = sparse.Cosine(queryVec, enc.Encode(candidates[i].Content))
		candidates[i].Score = query.Alpha*candidates[i].Dense + (1-query.Alpha)*candidates[i].Sparse
	}
}

// dedupeByChunk keeps the first (best-ranked) hit per chunk id.
func dedupeByChunk(results []models.SearchResult) []models.SearchResult {
	seen := make(map[string]bool, len(results))
	out := results[:0]
	for _, res := range results {
		if seen[res.ChunkID] {
			continue
		}
		seen[res.ChunkID] = true
		out = append(out, res)
	}
	return out
}
