package interfaces

import (
	"context"
	"time"

	"github.com/noteqa/ragcore/internal/types"
)

// ChunkStore is the downstream chunk store collaborator: point lookup,
// batched lookup, and recency-filtered listing, scoped to a tenant. It has
// no transactional requirements.
type ChunkStore interface {
	// GetChunkByID looks up a single chunk by its identifier.
	GetChunkByID(ctx context.Context, tenantID uint64, id string) (*types.Chunk, error)
	// ListChunksByID performs a single batched lookup of many identifiers,
	// used by the vector source to enrich over-fetched hits with text.
	ListChunksByID(ctx context.Context, tenantID uint64, ids []string) ([]*types.Chunk, error)
	// ListRecentChunks returns chunks for a tenant created within the given
	// horizon, newest first, bounded by limit. Used by the recency source.
	ListRecentChunks(ctx context.Context, tenantID uint64, since time.Time, limit int) ([]*types.Chunk, error)
	// ListChunksByNoteID returns the ordered chunks of a single note. No
	// pipeline stage calls it.
	ListChunksByNoteID(ctx context.Context, tenantID uint64, noteID string) ([]*types.Chunk, error)
	// CountChunks returns the total chunk count for a tenant; zero triggers
	// the empty-corpus short-circuit response.
	CountChunks(ctx context.Context, tenantID uint64) (int64, error)
}
