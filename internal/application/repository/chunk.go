package repository

import (
	"context"
	"errors"
	"time"

	"github.com/noteqa/ragcore/internal/types"
	"github.com/noteqa/ragcore/internal/types/interfaces"
	"gorm.io/gorm"
)

// chunkStore implements interfaces.ChunkStore against Postgres via GORM.
type chunkStore struct {
	db *gorm.DB
}

// NewChunkStore creates a new chunk store.
func NewChunkStore(db *gorm.DB) interfaces.ChunkStore {
	return &chunkStore{db: db}
}

// ErrChunkNotFound is returned when a point lookup finds no row.
var ErrChunkNotFound = errors.New("chunk not found")

func (r *chunkStore) GetChunkByID(ctx context.Context, tenantID uint64, id string) (*types.Chunk, error) {
	var chunk types.Chunk
	if err := r.db.WithContext(ctx).Where("tenant_id = ? AND id = ?", tenantID, id).First(&chunk).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrChunkNotFound
		}
		return nil, err
	}
	return &chunk, nil
}

func (r *chunkStore) ListChunksByID(ctx context.Context, tenantID uint64, ids []string) ([]*types.Chunk, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	var chunks []*types.Chunk
	if err := r.db.WithContext(ctx).
		Where("tenant_id = ? AND id IN ?", tenantID, ids).
		Find(&chunks).Error; err != nil {
		return nil, err
	}
	return chunks, nil
}

// ListRecentChunks backs the recency retrieval source: the since/limit
// window is applied by the caller's TimeHint/HorizonDays.
func (r *chunkStore) ListRecentChunks(ctx context.Context, tenantID uint64, since time.Time, limit int) ([]*types.Chunk, error) {
	var chunks []*types.Chunk
	q := r.db.WithContext(ctx).
		Where("tenant_id = ? AND created_at >= ?", tenantID, since).
		Order("created_at DESC")
	if limit > 0 {
		q = q.Limit(limit)
	}
	if err := q.Find(&chunks).Error; err != nil {
		return nil, err
	}
	return chunks, nil
}

func (r *chunkStore) ListChunksByNoteID(ctx context.Context, tenantID uint64, noteID string) ([]*types.Chunk, error) {
	var chunks []*types.Chunk
	if err := r.db.WithContext(ctx).
		Where("tenant_id = ? AND note_id = ?", tenantID, noteID).
		Order("ordinal ASC").
		Find(&chunks).Error; err != nil {
		return nil, err
	}
	return chunks, nil
}

func (r *chunkStore) CountChunks(ctx context.Context, tenantID uint64) (int64, error) {
	var count int64
	if err := r.db.WithContext(ctx).Model(&types.Chunk{}).Where("tenant_id = ?", tenantID).Count(&count).Error; err != nil {
		return 0, err
	}
	return count, nil
}
