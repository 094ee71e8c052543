package retrieval

import (
	"context"

	"github.com/noteqa/ragcore/internal/types"
)

// Candidate is one chunk surfaced by a single retrieval source, carrying
// only that source's own score. The hybrid orchestrator merges candidates
// from all sources before fusion.
type Candidate struct {
	Chunk *types.Chunk
	Score float64
}

// VectorSource performs nearest-neighbor search over chunk embeddings.
type VectorSource interface {
	Search(ctx context.Context, tenantID uint64, queryVector []float32, topK int, filters *types.NoteFilters) ([]Candidate, error)
}

// LexicalSource performs full-text/keyword search over chunk text.
type LexicalSource interface {
	Search(ctx context.Context, tenantID uint64, keywords []string, topK int, filters *types.NoteFilters) ([]Candidate, error)
}

// RecencySource surfaces the most recently created chunks, independent of
// query relevance.
type RecencySource interface {
	Search(ctx context.Context, tenantID uint64, topK int, filters *types.NoteFilters) ([]Candidate, error)
}
