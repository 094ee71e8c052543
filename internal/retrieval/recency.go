package retrieval

import (
	"context"
	"math"
	"time"

	"github.com/noteqa/ragcore/internal/types"
	"github.com/noteqa/ragcore/internal/types/interfaces"
)

// chunkStoreRecencySource implements RecencySource directly against the
// chunk store's ListRecentChunks, scoring each candidate by an exponential
// decay over its age.
type chunkStoreRecencySource struct {
	store     interfaces.ChunkStore
	halfLife  time.Duration
}

// NewRecencySource builds a RecencySource with the given score half-life.
func NewRecencySource(store interfaces.ChunkStore, halfLifeDays float64) RecencySource {
	return &chunkStoreRecencySource{store: store, halfLife: time.Duration(halfLifeDays * float64(24*time.Hour))}
}

func (s *chunkStoreRecencySource) Search(
	ctx context.Context, tenantID uint64, topK int, filters *types.NoteFilters,
) ([]Candidate, error) {
	if topK <= 0 {
		return nil, nil
	}
	since := time.Time{}
	if filters != nil && filters.After != nil {
		since = *filters.After
	}

	chunks, err := s.store.ListRecentChunks(ctx, tenantID, since, topK*3)
	if err != nil {
		return nil, err
	}

	now := time.Now()
	out := make([]Candidate, 0, len(chunks))
	for _, c := range chunks {
		if filters != nil && filters.Before != nil && c.CreatedAt.After(*filters.Before) {
			continue
		}
		age := now.Sub(c.CreatedAt)
		score := decayScore(age, s.halfLife)
		out = append(out, Candidate{Chunk: c, Score: score})
	}
	if len(out) > topK {
		out = out[:topK]
	}
	return out, nil
}

// decayScore returns 0.5^(age/halfLife), 1.0 for age<=0.
func decayScore(age, halfLife time.Duration) float64 {
	if age <= 0 || halfLife <= 0 {
		return 1.0
	}
	ratio := float64(age) / float64(halfLife)
	return math.Pow(0.5, ratio)
}
