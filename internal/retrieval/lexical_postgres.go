package retrieval

import (
	"context"
	"fmt"
	"strings"

	"github.com/noteqa/ragcore/internal/types"
	"github.com/noteqa/ragcore/internal/types/interfaces"
	"gorm.io/gorm"
)

// postgresLexicalSource implements LexicalSource with Postgres full-text
// search (to_tsvector/to_tsquery), the default keyword backend when no
// Elasticsearch cluster is configured.
type postgresLexicalSource struct {
	db    *gorm.DB
	store interfaces.ChunkStore
}

// NewPostgresLexicalSource builds a Postgres-FTS-backed LexicalSource.
func NewPostgresLexicalSource(db *gorm.DB, store interfaces.ChunkStore) LexicalSource {
	return &postgresLexicalSource{db: db, store: store}
}

func (s *postgresLexicalSource) Search(
	ctx context.Context, tenantID uint64, keywords []string, topK int, filters *types.NoteFilters,
) ([]Candidate, error) {
	if len(keywords) == 0 || topK <= 0 {
		return nil, nil
	}
	query := strings.Join(keywords, " | ")

	whereParts := []string{"tenant_id = $2", "to_tsvector('simple', text) @@ to_tsquery('simple', $1)"}
	vars := []interface{}{query, tenantID}

	if filters != nil && len(filters.IncludeNoteIDs) > 0 {
		placeholders := make([]string, len(filters.IncludeNoteIDs))
		for i, id := range filters.IncludeNoteIDs {
			vars = append(vars, id)
			placeholders[i] = fmt.Sprintf("$%d", len(vars))
		}
		whereParts = append(whereParts, fmt.Sprintf("note_id IN (%s)", strings.Join(placeholders, ", ")))
	}

	vars = append(vars, topK)
	sql := fmt.Sprintf(`
		SELECT id as chunk_id,
		       ts_rank(to_tsvector('simple', text), to_tsquery('simple', $1)) as score
		FROM chunks
		WHERE %s
		ORDER BY score DESC
		LIMIT $%d
	`, strings.Join(whereParts, " AND "), len(vars))

	type row struct {
		ChunkID string
		Score   float64
	}
	var rows []row
	if err := s.db.WithContext(ctx).Raw(sql, vars...).Scan(&rows).Error; err != nil {
		return nil, fmt.Errorf("lexical search: %w", err)
	}
	if len(rows) == 0 {
		return nil, nil
	}

	ids := make([]string, len(rows))
	for i, r := range rows {
		ids[i] = r.ChunkID
	}
	chunks, err := s.store.ListChunksByID(ctx, tenantID, ids)
	if err != nil {
		return nil, fmt.Errorf("lexical search: hydrate chunks: %w", err)
	}
	byID := make(map[string]*types.Chunk, len(chunks))
	for _, c := range chunks {
		byID[c.ID] = c
	}

	out := make([]Candidate, 0, len(rows))
	for _, r := range rows {
		if chunk, ok := byID[r.ChunkID]; ok {
			out = append(out, Candidate{Chunk: chunk, Score: r.Score})
		}
	}
	return out, nil
}
