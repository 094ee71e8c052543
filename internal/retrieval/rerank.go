package retrieval

import (
	"context"
	"sort"

	"github.com/noteqa/ragcore/internal/config"
	"github.com/noteqa/ragcore/internal/models/rerank"
	"github.com/noteqa/ragcore/internal/searchutil"
	"github.com/noteqa/ragcore/internal/types"
)

// Rerank blends each fused candidate's RRF score with a cross-encoder
// relevance score (a 0.7/0.3 blend), then diversifies the top of the list
// with MMR.
func Rerank(ctx context.Context, cfg config.RetrievalConfig, reranker rerank.Reranker, query string, candidates []*types.ScoredChunk, finalK int) []*types.ScoredChunk {
	if len(candidates) == 0 {
		return nil
	}

	passages := make([]string, len(candidates))
	for i, c := range candidates {
		passages[i] = c.Chunk.Text
	}

	if reranker != nil {
		results, err := reranker.Rerank(ctx, query, passages)
		if err == nil {
			for _, r := range results {
				if r.Index < 0 || r.Index >= len(candidates) {
					continue
				}
				sc := candidates[r.Index]
				sc.CrossEncoder = r.RelevanceScore
				sc.HasCrossEncoder = true
				sc.Score = cfg.CrossEncoderWeight*r.RelevanceScore + cfg.RRFWeight*sc.Score
			}
		}
	}

	sort.SliceStable(candidates, func(i, j int) bool { return candidates[i].Score > candidates[j].Score })

	return applyMMR(candidates, min(finalK, len(candidates)), cfg.MMRLambda)
}

// applyMMR greedily selects up to k chunks maximizing
// lambda*relevance - (1-lambda)*max_redundancy against what's already
// selected, using Jaccard token overlap as the redundancy signal.
func applyMMR(candidates []*types.ScoredChunk, k int, lambda float64) []*types.ScoredChunk {
	if k <= 0 || len(candidates) == 0 {
		return nil
	}

	tokenSets := make([]map[string]struct{}, len(candidates))
	for i, c := range candidates {
		tokenSets[i] = searchutil.TokenizeSimple(c.Chunk.Text)
	}

	selected := make([]*types.ScoredChunk, 0, k)
	selectedTokens := make([]map[string]struct{}, 0, k)
	chosen := make(map[int]struct{}, k)

	for len(selected) < k && len(chosen) < len(candidates) {
		bestIdx := -1
		bestScore := -1.0

		for i, c := range candidates {
			if _, ok := chosen[i]; ok {
				continue
			}
			redundancy := 0.0
			for _, selTokens := range selectedTokens {
				if sim := searchutil.Jaccard(tokenSets[i], selTokens); sim > redundancy {
					redundancy = sim
				}
			}
			mmr := lambda*c.Score - (1.0-lambda)*redundancy
			if mmr > bestScore {
				bestScore = mmr
				bestIdx = i
			}
		}

		if bestIdx < 0 {
			break
		}
		selected = append(selected, candidates[bestIdx])
		selectedTokens = append(selectedTokens, tokenSets[bestIdx])
		chosen[bestIdx] = struct{}{}
	}

	return selected
}
