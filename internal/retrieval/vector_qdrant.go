package retrieval

import (
	"context"
	"fmt"

	"github.com/noteqa/ragcore/internal/types"
	"github.com/noteqa/ragcore/internal/types/interfaces"
	"github.com/qdrant/go-client/qdrant"
)

// qdrantVectorSource implements VectorSource against a Qdrant collection.
type qdrantVectorSource struct {
	client         *qdrant.Client
	collectionName string
	store          interfaces.ChunkStore
}

// NewQdrantVectorSource builds a Qdrant-backed VectorSource against a
// single fixed-dimension collection.
func NewQdrantVectorSource(client *qdrant.Client, collectionName string, store interfaces.ChunkStore) VectorSource {
	return &qdrantVectorSource{client: client, collectionName: collectionName, store: store}
}

func (s *qdrantVectorSource) Search(
	ctx context.Context, tenantID uint64, queryVector []float32, topK int, filters *types.NoteFilters,
) ([]Candidate, error) {
	if len(queryVector) == 0 || topK <= 0 {
		return nil, nil
	}

	must := []*qdrant.Condition{
		qdrant.NewMatchInt("tenant_id", int64(tenantID)),
	}
	if filters != nil && len(filters.IncludeNoteIDs) > 0 {
		must = append(must, qdrant.NewMatchKeywords("note_id", filters.IncludeNoteIDs...))
	}
	qdrantFilter := &qdrant.Filter{Must: must}
	if filters != nil && len(filters.ExcludeNoteIDs) > 0 {
		qdrantFilter.MustNot = []*qdrant.Condition{qdrant.NewMatchKeywords("note_id", filters.ExcludeNoteIDs...)}
	}

	limit := uint64(topK)
	searchResult, err := s.client.Query(ctx, &qdrant.QueryPoints{
		CollectionName: s.collectionName,
		Query:          qdrant.NewQuery(queryVector...),
		Filter:         qdrantFilter,
		Limit:          &limit,
		WithPayload:    qdrant.NewWithPayload(true),
	})
	if err != nil {
		return nil, fmt.Errorf("qdrant query: %w", err)
	}
	if len(searchResult) == 0 {
		return nil, nil
	}

	ids := make([]string, 0, len(searchResult))
	scoreByID := make(map[string]float64, len(searchResult))
	for _, point := range searchResult {
		chunkID := point.Payload["chunk_id"].GetStringValue()
		if chunkID == "" {
			continue
		}
		ids = append(ids, chunkID)
		scoreByID[chunkID] = float64(point.Score)
	}

	chunks, err := s.store.ListChunksByID(ctx, tenantID, ids)
	if err != nil {
		return nil, fmt.Errorf("qdrant query: hydrate chunks: %w", err)
	}
	out := make([]Candidate, 0, len(chunks))
	for _, c := range chunks {
		out = append(out, Candidate{Chunk: c, Score: scoreByID[c.ID]})
	}
	return out, nil
}
