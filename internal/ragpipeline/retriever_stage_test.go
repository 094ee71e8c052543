package ragpipeline

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/noteqa/ragcore/internal/config"
	"github.com/noteqa/ragcore/internal/models/chat"
	"github.com/noteqa/ragcore/internal/models/embedding"
	"github.com/noteqa/ragcore/internal/models/rerank"
	"github.com/noteqa/ragcore/internal/retrieval"
	"github.com/noteqa/ragcore/internal/types"
)

type noEmbedderModelService struct{}

func (noEmbedderModelService) GetEmbeddingModel(ctx context.Context, modelID string) (embedding.Embedder, error) {
	return nil, nil
}
func (noEmbedderModelService) GetRerankModel(ctx context.Context, modelID string) (rerank.Reranker, error) {
	return nil, nil
}
func (noEmbedderModelService) GetChatModel(ctx context.Context, modelID string) (chat.Chat, error) {
	return nil, nil
}

type fakeChunkStore struct {
	count  int64
	countErr error
}

func (f *fakeChunkStore) GetChunkByID(ctx context.Context, tenantID uint64, id string) (*types.Chunk, error) {
	return nil, nil
}
func (f *fakeChunkStore) ListChunksByID(ctx context.Context, tenantID uint64, ids []string) ([]*types.Chunk, error) {
	return nil, nil
}
func (f *fakeChunkStore) ListRecentChunks(ctx context.Context, tenantID uint64, since time.Time, limit int) ([]*types.Chunk, error) {
	return nil, nil
}
func (f *fakeChunkStore) ListChunksByNoteID(ctx context.Context, tenantID uint64, noteID string) ([]*types.Chunk, error) {
	return nil, nil
}
func (f *fakeChunkStore) CountChunks(ctx context.Context, tenantID uint64) (int64, error) {
	return f.count, f.countErr
}

func baseRequestContext() *types.RequestContext {
	return &types.RequestContext{
		RequestID: "req-1",
		TenantID:  1,
		Request:   &types.AnswerRequest{TenantID: 1, Question: "what happened"},
		Analysis:  &types.QueryAnalysis{Intent: types.IntentSearch, AdaptiveK: 5, Normalized: "what happened"},
	}
}

func TestRetrieverStage_EmptyCorpusIsTerminal(t *testing.T) {
	em := NewEventManager()
	hr := retrieval.NewHybridRetriever(config.RetrievalConfig{}, nil, nil, nil, nil, nil)
	NewRetrieverStage(em, hr, nil, &fakeChunkStore{count: 0})

	rc := baseRequestContext()
	pe := em.Trigger(context.Background(), types.RetrieveHybrid, rc)
	if pe != nil {
		t.Fatalf("unexpected plugin error: %v", pe)
	}
	if !rc.Terminal {
		t.Fatal("expected a terminal response for an empty corpus")
	}
	if rc.TerminalResponse.Metadata.Confidence != types.ConfidenceNone {
		t.Errorf("expected ConfidenceNone, got %v", rc.TerminalResponse.Metadata.Confidence)
	}
}

func TestRetrieverStage_CountChunksErrorSurfacesAsTransient(t *testing.T) {
	em := NewEventManager()
	hr := retrieval.NewHybridRetriever(config.RetrievalConfig{}, nil, nil, nil, nil, nil)
	NewRetrieverStage(em, hr, nil, &fakeChunkStore{countErr: errors.New("db down")})

	rc := baseRequestContext()
	pe := em.Trigger(context.Background(), types.RetrieveHybrid, rc)
	if pe == nil {
		t.Fatal("expected a plugin error when CountChunks fails")
	}
	if pe.Kind != types.ErrorKindTransient {
		t.Errorf("expected ErrorKindTransient, got %v", pe.Kind)
	}
}

func TestRetrieverStage_NoResultsIsTerminalWithNoEvidenceAnswer(t *testing.T) {
	em := NewEventManager()
	hr := retrieval.NewHybridRetriever(config.RetrievalConfig{}, nil, nil, nil, nil, nil)
	NewRetrieverStage(em, hr, noEmbedderModelService{}, &fakeChunkStore{count: 3})

	rc := baseRequestContext()
	pe := em.Trigger(context.Background(), types.RetrieveHybrid, rc)
	if pe != nil {
		t.Fatalf("unexpected plugin error: %v", pe)
	}
	if !rc.Terminal {
		t.Fatal("expected terminal response when no chunks are retrieved")
	}
	if rc.TerminalResponse.Metadata.SourceCount != 0 {
		t.Errorf("expected SourceCount=0, got %d", rc.TerminalResponse.Metadata.SourceCount)
	}
}
