package retrieval

import (
	"context"
	"errors"
	"testing"

	"github.com/noteqa/ragcore/internal/config"
	"github.com/noteqa/ragcore/internal/models/rerank"
	"github.com/noteqa/ragcore/internal/types"
)

func TestClassifyMode_VectorErrorWithLexicalFallsBackToKeywordOnly(t *testing.T) {
	mode := classifyMode(errors.New("embed failed"), nil, []Candidate{{Chunk: chunk("a")}})
	if mode != types.RetrievalModeKeywordOnly {
		t.Errorf("got %v, want RetrievalModeKeywordOnly", mode)
	}
}

func TestClassifyMode_BothPresentIsHybrid(t *testing.T) {
	mode := classifyMode(nil, []Candidate{{Chunk: chunk("a")}}, []Candidate{{Chunk: chunk("b")}})
	if mode != types.RetrievalModeHybrid {
		t.Errorf("got %v, want RetrievalModeHybrid", mode)
	}
}

func TestClassifyMode_VectorOnly(t *testing.T) {
	mode := classifyMode(nil, []Candidate{{Chunk: chunk("a")}}, nil)
	if mode != types.RetrievalModeVector {
		t.Errorf("got %v, want RetrievalModeVector", mode)
	}
}

func TestClassifyMode_LexicalOnly(t *testing.T) {
	mode := classifyMode(nil, nil, []Candidate{{Chunk: chunk("a")}})
	if mode != types.RetrievalModeKeywordOnly {
		t.Errorf("got %v, want RetrievalModeKeywordOnly", mode)
	}
}

func TestClassifyMode_NeitherSourceFallsBack(t *testing.T) {
	mode := classifyMode(nil, nil, nil)
	if mode != types.RetrievalModeFallback {
		t.Errorf("got %v, want RetrievalModeFallback", mode)
	}
}

type fakeVectorSource struct {
	results []Candidate
	err     error
}

func (f *fakeVectorSource) Search(ctx context.Context, tenantID uint64, queryVector []float32, topK int, filters *types.NoteFilters) ([]Candidate, error) {
	return f.results, f.err
}

type fakeLexicalSource struct {
	results []Candidate
	err     error
}

func (f *fakeLexicalSource) Search(ctx context.Context, tenantID uint64, keywords []string, topK int, filters *types.NoteFilters) ([]Candidate, error) {
	return f.results, f.err
}

type fakeRecencySource struct {
	results []Candidate
	err     error
}

func (f *fakeRecencySource) Search(ctx context.Context, tenantID uint64, topK int, filters *types.NoteFilters) ([]Candidate, error) {
	return f.results, f.err
}

type fakeEmbedder struct {
	vec []float32
	err error
}

func (f *fakeEmbedder) Embed(ctx context.Context, text string) ([]float32, error) { return f.vec, f.err }
func (f *fakeEmbedder) BatchEmbed(ctx context.Context, texts []string) ([][]float32, error) {
	return nil, nil
}
func (f *fakeEmbedder) GetModelName() string { return "fake-embedder" }
func (f *fakeEmbedder) GetDimensions() int   { return len(f.vec) }
func (f *fakeEmbedder) GetModelID() string   { return "fake:embedder" }

type passthroughReranker struct{}

func (passthroughReranker) Rerank(ctx context.Context, query string, passages []string) ([]rerank.RankResult, error) {
	out := make([]rerank.RankResult, len(passages))
	for i := range passages {
		out[i] = rerank.RankResult{Index: i, RelevanceScore: 1.0}
	}
	return out, nil
}
func (passthroughReranker) GetModelID() string { return "fake:reranker" }

func hybridTestConfig() config.RetrievalConfig {
	return config.RetrievalConfig{
		RRFK:                  60,
		VectorWeight:          1.0,
		LexicalWeight:         1.0,
		RecencyWeight:         0.5,
		MultiSourceBoost:      0.1,
		BaseK:                 5,
		MaxK:                  10,
		OverfetchMultiplier:   3,
		RerankWidthMultiplier: 2,
		RerankCandidateCap:    20,
		CrossEncoderWeight:    0.7,
		RRFWeight:             0.3,
		MMRLambda:             0.5,
	}
}

func TestHybridRetriever_Retrieve_MergesAllThreeSources(t *testing.T) {
	vec := &fakeVectorSource{results: []Candidate{{Chunk: chunk("a"), Score: 0.9}}}
	lex := &fakeLexicalSource{results: []Candidate{{Chunk: chunk("b"), Score: 0.8}}}
	rec := &fakeRecencySource{results: []Candidate{{Chunk: chunk("c"), Score: 0.5}}}
	h := NewHybridRetriever(hybridTestConfig(), nil, vec, lex, rec, passthroughReranker{})

	analysis := &types.QueryAnalysis{Normalized: "what happened", Keywords: []string{"happened"}}
	final, counts, mode, err := h.Retrieve(context.Background(), 1, &fakeEmbedder{vec: []float32{0.1, 0.2}}, analysis, nil, 5)
	if err != nil {
		t.Fatalf("Retrieve: %v", err)
	}
	if counts.Vector != 1 || counts.Lexical != 1 || counts.Recency != 1 {
		t.Errorf("expected per-source counts of 1 each, got %+v", counts)
	}
	if counts.Merged != 3 {
		t.Errorf("expected 3 merged candidates, got %d", counts.Merged)
	}
	if mode != types.RetrievalModeHybrid {
		t.Errorf("expected RetrievalModeHybrid, got %v", mode)
	}
	if len(final) != 3 {
		t.Fatalf("expected all 3 candidates surfaced within finalK, got %d", len(final))
	}
}

func TestHybridRetriever_Retrieve_DegradesWhenVectorSourceErrors(t *testing.T) {
	vec := &fakeVectorSource{err: errors.New("backend down")}
	lex := &fakeLexicalSource{results: []Candidate{{Chunk: chunk("b"), Score: 0.8}}}
	h := NewHybridRetriever(hybridTestConfig(), nil, vec, lex, nil, passthroughReranker{})

	analysis := &types.QueryAnalysis{Normalized: "query", Keywords: []string{"query"}}
	final, counts, mode, err := h.Retrieve(context.Background(), 1, &fakeEmbedder{vec: []float32{0.1}}, analysis, nil, 5)
	if err != nil {
		t.Fatalf("Retrieve: %v", err)
	}
	if counts.Vector != 0 {
		t.Errorf("expected 0 vector candidates when source errors, got %d", counts.Vector)
	}
	if mode != types.RetrievalModeKeywordOnly {
		t.Errorf("expected RetrievalModeKeywordOnly after vector source failure, got %v", mode)
	}
	if len(final) != 1 || final[0].Chunk.ID != "b" {
		t.Fatalf("expected lexical result to survive the vector outage, got %+v", final)
	}
}

func TestHybridRetriever_Retrieve_CapsRerankWidth(t *testing.T) {
	vector := make([]Candidate, 10)
	for i := range vector {
		vector[i] = Candidate{Chunk: chunk(string(rune('a' + i))), Score: float64(10-i) / 10}
	}
	cfg := hybridTestConfig()
	cfg.RerankWidthMultiplier = 1
	cfg.RerankCandidateCap = 3
	h := NewHybridRetriever(cfg, nil, &fakeVectorSource{results: vector}, nil, nil, passthroughReranker{})

	analysis := &types.QueryAnalysis{Normalized: "q", Keywords: []string{"q"}}
	final, counts, _, err := h.Retrieve(context.Background(), 1, &fakeEmbedder{vec: []float32{0.1}}, analysis, nil, 3)
	if err != nil {
		t.Fatalf("Retrieve: %v", err)
	}
	if counts.Reranked != 3 {
		t.Errorf("expected reranked width capped to RerankCandidateCap=3, got %d", counts.Reranked)
	}
	if len(final) != 3 {
		t.Errorf("expected final list capped to finalK=3, got %d", len(final))
	}
}

func TestHybridRetriever_Retrieve_NoVectorSourceConfiguredSkipsIt(t *testing.T) {
	lex := &fakeLexicalSource{results: []Candidate{{Chunk: chunk("b"), Score: 0.8}}}
	h := NewHybridRetriever(hybridTestConfig(), nil, nil, lex, nil, passthroughReranker{})

	analysis := &types.QueryAnalysis{Normalized: "q", Keywords: []string{"q"}}
	final, counts, mode, err := h.Retrieve(context.Background(), 1, nil, analysis, nil, 5)
	if err != nil {
		t.Fatalf("Retrieve: %v", err)
	}
	if counts.Vector != 0 {
		t.Errorf("expected no vector candidates when no vector source is wired, got %d", counts.Vector)
	}
	if mode != types.RetrievalModeKeywordOnly {
		t.Errorf("expected RetrievalModeKeywordOnly, got %v", mode)
	}
	if len(final) != 1 {
		t.Errorf("expected only the lexical candidate, got %+v", final)
	}
}
