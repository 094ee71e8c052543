package retrieval

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noteqa/ragcore/internal/config"
	"github.com/noteqa/ragcore/internal/types"
)

func fusionTestConfig() config.RetrievalConfig {
	return config.RetrievalConfig{
		RRFK:             60,
		VectorWeight:     1.0,
		LexicalWeight:    1.0,
		RecencyWeight:    0.5,
		MultiSourceBoost: 0.1,
	}
}

func chunk(id string) *types.Chunk { return &types.Chunk{ID: id} }

func TestFuse_MultiSourceChunkOutranksSingleSource(t *testing.T) {
	cfg := fusionTestConfig()

	vector := []Candidate{{Chunk: chunk("a"), Score: 0.9}, {Chunk: chunk("b"), Score: 0.8}}
	lexical := []Candidate{{Chunk: chunk("a"), Score: 0.7}}

	out := Fuse(cfg, vector, lexical, nil)

	require.Len(t, out, 2)
	assert.Equal(t, "a", out[0].Chunk.ID, "chunk hit by both sources should rank first")
	assert.Equal(t, 2, out[0].SourceCount)
	assert.Equal(t, 1, out[1].SourceCount)
}

func TestFuse_EmptyInputsProduceNoResults(t *testing.T) {
	out := Fuse(fusionTestConfig(), nil, nil, nil)
	assert.Empty(t, out)
}

func TestFuse_PerSourceScoresArePreserved(t *testing.T) {
	cfg := fusionTestConfig()
	vector := []Candidate{{Chunk: chunk("a"), Score: 0.42}}
	lexical := []Candidate{{Chunk: chunk("a"), Score: 0.13}}
	recency := []Candidate{{Chunk: chunk("a"), Score: 0.99}}

	out := Fuse(cfg, vector, lexical, recency)

	require.Len(t, out, 1)
	sc := out[0]
	assert.Equal(t, 0.42, sc.VectorScore)
	assert.Equal(t, 0.13, sc.LexicalScore)
	assert.Equal(t, 0.99, sc.RecencyScore)
}

func TestFuse_ResultsAreSortedDescending(t *testing.T) {
	cfg := fusionTestConfig()
	vector := []Candidate{
		{Chunk: chunk("low"), Score: 0.1},
		{Chunk: chunk("high"), Score: 0.99},
		{Chunk: chunk("mid"), Score: 0.5},
	}

	out := Fuse(cfg, vector, nil, nil)

	for i := 1; i < len(out); i++ {
		assert.GreaterOrEqual(t, out[i-1].Score, out[i].Score, "results must be sorted descending")
	}
}
