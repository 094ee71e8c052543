package retrieval

import (
	"sort"

	"github.com/noteqa/ragcore/internal/config"
	"github.com/noteqa/ragcore/internal/types"
)

// FusionInput groups one source's ranked candidate list for RRF.
type FusionInput struct {
	Candidates []Candidate
	Weight     float64
}

// Fuse combines per-source ranked candidate lists into one score-sorted
// list of ScoredChunk via Reciprocal Rank Fusion:
//
//	score = sum_s w_s / (k_rrf + rank_s(d))
//
// plus a multiplicative boost for chunks that appear in more than one
// source.
func Fuse(cfg config.RetrievalConfig, vector, lexical, recency []Candidate) []*types.ScoredChunk {
	merged := make(map[string]*types.ScoredChunk)
	sourceHits := make(map[string]int)

	add := func(candidates []Candidate, weight float64, assign func(sc *types.ScoredChunk, score float64)) {
		ranked := rankByScoreDesc(candidates)
		for rank, c := range ranked {
			sc, ok := merged[c.Chunk.ID]
			if !ok {
				sc = &types.ScoredChunk{Chunk: c.Chunk}
				merged[c.Chunk.ID] = sc
			}
			rrf := weight / float64(cfg.RRFK+rank+1)
			sc.Score += rrf
			assign(sc, c.Score)
			sourceHits[c.Chunk.ID]++
		}
	}

	add(vector, cfg.VectorWeight, func(sc *types.ScoredChunk, s float64) { sc.VectorScore = s })
	add(lexical, cfg.LexicalWeight, func(sc *types.ScoredChunk, s float64) { sc.LexicalScore = s })
	add(recency, cfg.RecencyWeight, func(sc *types.ScoredChunk, s float64) { sc.RecencyScore = s })

	out := make([]*types.ScoredChunk, 0, len(merged))
	for id, sc := range merged {
		hits := sourceHits[id]
		sc.SourceCount = hits
		if hits > 1 {
			sc.Score *= 1.0 + cfg.MultiSourceBoost*float64(hits-1)
		}
		out = append(out, sc)
	}

	sort.SliceStable(out, func(i, j int) bool { return out[i].Score > out[j].Score })
	return out
}

func rankByScoreDesc(candidates []Candidate) []Candidate {
	sorted := make([]Candidate, len(candidates))
	copy(sorted, candidates)
	sort.SliceStable(sorted, func(i, j int) bool { return sorted[i].Score > sorted[j].Score })
	return sorted
}
