package retrieval

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/noteqa/ragcore/internal/types"
	"github.com/noteqa/ragcore/internal/types/interfaces"
	"github.com/pgvector/pgvector-go"
	"gorm.io/gorm"
)

// VectorIndexRow is the pgvector-backed sibling table to Chunk: Chunk rows
// hold text (gorm:"-" on Embedding), this table holds the vector in a
// separate embeddings table.
type VectorIndexRow struct {
	ChunkID   string          `gorm:"primaryKey;type:varchar(64)"`
	TenantID  uint64          `gorm:"index"`
	NoteID    string          `gorm:"index;type:varchar(64)"`
	Dimension int             `gorm:"index"`
	Embedding pgvector.HalfVector `gorm:"type:halfvec"`
	CreatedAt time.Time
}

// TableName pins the GORM table name.
func (VectorIndexRow) TableName() string { return "vector_index" }

// postgresVectorSource implements VectorSource with a pgvector halfvec
// column and an HNSW-friendly ORDER BY ... LIMIT pattern.
type postgresVectorSource struct {
	db    *gorm.DB
	store interfaces.ChunkStore
}

// NewPostgresVectorSource builds a pgvector-backed VectorSource.
func NewPostgresVectorSource(db *gorm.DB, store interfaces.ChunkStore) VectorSource {
	return &postgresVectorSource{db: db, store: store}
}

// UpsertEmbedding persists a chunk's embedding for later vector search.
func (s *postgresVectorSource) UpsertEmbedding(ctx context.Context, tenantID uint64, chunk *types.Chunk) error {
	row := VectorIndexRow{
		ChunkID:   chunk.ID,
		TenantID:  tenantID,
		NoteID:    chunk.NoteID,
		Dimension: len(chunk.Embedding),
		Embedding: pgvector.NewHalfVector(chunk.Embedding),
		CreatedAt: time.Now(),
	}
	return s.db.WithContext(ctx).Save(&row).Error
}

func (s *postgresVectorSource) Search(
	ctx context.Context, tenantID uint64, queryVector []float32, topK int, filters *types.NoteFilters,
) ([]Candidate, error) {
	if len(queryVector) == 0 || topK <= 0 {
		return nil, nil
	}
	dimension := len(queryVector)
	queryHalf := pgvector.NewHalfVector(queryVector)

	whereParts := []string{"tenant_id = $2", "dimension = $3"}
	vars := []interface{}{queryHalf, tenantID, dimension}

	if filters != nil && len(filters.IncludeNoteIDs) > 0 {
		placeholders := make([]string, len(filters.IncludeNoteIDs))
		for i, id := range filters.IncludeNoteIDs {
			vars = append(vars, id)
			placeholders[i] = fmt.Sprintf("$%d", len(vars))
		}
		whereParts = append(whereParts, fmt.Sprintf("note_id IN (%s)", strings.Join(placeholders, ", ")))
	}
	if filters != nil && len(filters.ExcludeNoteIDs) > 0 {
		placeholders := make([]string, len(filters.ExcludeNoteIDs))
		for i, id := range filters.ExcludeNoteIDs {
			vars = append(vars, id)
			placeholders[i] = fmt.Sprintf("$%d", len(vars))
		}
		whereParts = append(whereParts, fmt.Sprintf("note_id NOT IN (%s)", strings.Join(placeholders, ", ")))
	}
	if filters != nil && filters.After != nil {
		vars = append(vars, *filters.After)
		whereParts = append(whereParts, fmt.Sprintf("created_at >= $%d", len(vars)))
	}
	if filters != nil && filters.Before != nil {
		vars = append(vars, *filters.Before)
		whereParts = append(whereParts, fmt.Sprintf("created_at <= $%d", len(vars)))
	}

	expandedTopK := topK * 3
	if expandedTopK < 50 {
		expandedTopK = 50
	}
	vars = append(vars, expandedTopK)
	limitParam := len(vars)

	sql := fmt.Sprintf(`
		SELECT chunk_id, (1 - (embedding <=> $1)) as score
		FROM vector_index
		WHERE %s
		ORDER BY embedding <=> $1
		LIMIT $%d
	`, strings.Join(whereParts, " AND "), limitParam)

	type row struct {
		ChunkID string
		Score   float64
	}
	var rows []row
	if err := s.db.WithContext(ctx).Raw(sql, vars...).Scan(&rows).Error; err != nil {
		return nil, fmt.Errorf("vector search: %w", err)
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
		return nil, fmt.Errorf("vector search: hydrate chunks: %w", err)
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
	if len(out) > topK {
		out = out[:topK]
	}
	return out, nil
}
