package retrieval

import (
	"context"
	"sync"

	"github.com/noteqa/ragcore/internal/config"
	"github.com/noteqa/ragcore/internal/logger"
	"github.com/noteqa/ragcore/internal/models/embedding"
	"github.com/noteqa/ragcore/internal/models/rerank"
	"github.com/noteqa/ragcore/internal/tracing"
	"github.com/noteqa/ragcore/internal/types"
)

// HybridRetriever fans a query out across the vector/lexical/recency
// sources in parallel (tolerant of any single source's failure), fuses the
// results with RRF, then reranks and diversifies the top of the list.
type HybridRetriever struct {
	cfg      config.RetrievalConfig
	cache    *EmbeddingCache
	vector   VectorSource
	lexical  LexicalSource
	recency  RecencySource
	reranker rerank.Reranker
}

// NewHybridRetriever wires the three sources, the embedding cache, and the
// reranker into one orchestrator.
func NewHybridRetriever(
	cfg config.RetrievalConfig, cache *EmbeddingCache, vector VectorSource, lexical LexicalSource,
	recency RecencySource, reranker rerank.Reranker,
) *HybridRetriever {
	return &HybridRetriever{cfg: cfg, cache: cache, vector: vector, lexical: lexical, recency: recency, reranker: reranker}
}

// Retrieve runs the full hybrid retrieval pipeline for one analyzed query,
// returning the final ranked/diversified chunk list plus per-source
// candidate counts for observability.
func (h *HybridRetriever) Retrieve(
	ctx context.Context, tenantID uint64, embedder embedding.Embedder,
	analysis *types.QueryAnalysis, filters *types.NoteFilters, finalK int,
) ([]*types.ScoredChunk, types.CandidateCounts, types.RetrievalMode, error) {
	ctx, span := tracing.ContextWithSpan(ctx, "retrieval.hybrid")
	defer span.End()

	overfetch := finalK * h.cfg.OverfetchMultiplier
	if overfetch < h.cfg.MaxK {
		overfetch = h.cfg.MaxK
	}

	queryVector, vecErr := h.embedQuery(ctx, embedder, analysis.Normalized)

	var (
		wg               sync.WaitGroup
		vectorResults    []Candidate
		lexicalResults   []Candidate
		recencyResults   []Candidate
		vectorSourceErr  error
		lexicalSourceErr error
		recencySourceErr error
	)

	if vecErr == nil && h.vector != nil {
		wg.Add(1)
		go func() {
			defer wg.Done()
			vectorResults, vectorSourceErr = h.vector.Search(ctx, tenantID, queryVector, overfetch, filters)
		}()
	}
	if h.lexical != nil {
		wg.Add(1)
		go func() {
			defer wg.Done()
			lexicalResults, lexicalSourceErr = h.lexical.Search(ctx, tenantID, analysis.Keywords, overfetch, filters)
		}()
	}
	if h.recency != nil {
		wg.Add(1)
		go func() {
			defer wg.Done()
			recencyResults, recencySourceErr = h.recency.Search(ctx, tenantID, overfetch, filters)
		}()
	}
	wg.Wait()

	if vectorSourceErr != nil {
		logger.Warnf(ctx, "vector source failed, degrading to remaining sources: %v", vectorSourceErr)
	}
	if lexicalSourceErr != nil {
		logger.Warnf(ctx, "lexical source failed, degrading to remaining sources: %v", lexicalSourceErr)
	}
	if recencySourceErr != nil {
		logger.Warnf(ctx, "recency source failed, degrading to remaining sources: %v", recencySourceErr)
	}

	counts := types.CandidateCounts{
		Vector:  len(vectorResults),
		Lexical: len(lexicalResults),
		Recency: len(recencyResults),
	}

	mode := classifyMode(vecErr, vectorResults, lexicalResults)

	fused := Fuse(h.cfg, vectorResults, lexicalResults, recencyResults)
	counts.Merged = len(fused)

	rerankWidth := finalK * h.cfg.RerankWidthMultiplier
	if rerankWidth > h.cfg.RerankCandidateCap {
		rerankWidth = h.cfg.RerankCandidateCap
	}
	if rerankWidth > len(fused) {
		rerankWidth = len(fused)
	}
	candidatesForRerank := fused[:rerankWidth]
	counts.Reranked = len(candidatesForRerank)

	final := Rerank(ctx, h.cfg, h.reranker, analysis.Normalized, candidatesForRerank, finalK)
	counts.Final = len(final)

	tracing.SetAttributes(span, map[string]string{
		"retrieval.mode": string(mode),
	})

	return final, counts, mode, nil
}

// embedQuery consults the process-wide embedding cache before calling the
// embedder.
func (h *HybridRetriever) embedQuery(ctx context.Context, embedder embedding.Embedder, query string) ([]float32, error) {
	if embedder == nil {
		return nil, nil
	}
	key := Key(query, embedder.GetModelID())
	if h.cache != nil {
		if vec, ok := h.cache.Get(ctx, key); ok {
			return vec, nil
		}
	}
	vec, err := embedder.Embed(ctx, query)
	if err != nil {
		return nil, err
	}
	if h.cache != nil {
		h.cache.Set(ctx, key, vec)
	}
	return vec, nil
}

// classifyMode determines the RetrievalMode used for this request, for the
// observability log and debug block.
func classifyMode(vecErr error, vector, lexical []Candidate) types.RetrievalMode {
	switch {
	case vecErr != nil && len(lexical) > 0:
		return types.RetrievalModeKeywordOnly
	case len(vector) > 0 && len(lexical) > 0:
		return types.RetrievalModeHybrid
	case len(vector) > 0:
		return types.RetrievalModeVector
	case len(lexical) > 0:
		return types.RetrievalModeKeywordOnly
	default:
		return types.RetrievalModeFallback
	}
}
