package interfaces

import (
	"context"

	"github.com/noteqa/ragcore/internal/models/chat"
	"github.com/noteqa/ragcore/internal/models/embedding"
	"github.com/noteqa/ragcore/internal/models/rerank"
)

// ModelService resolves a model identifier to a concrete backend client. The
// core stays agnostic to which backend answers: it only needs an Embedder, a
// Reranker, and a Chat for a given model ID.
type ModelService interface {
	GetEmbeddingModel(ctx context.Context, modelID string) (embedding.Embedder, error)
	GetRerankModel(ctx context.Context, modelID string) (rerank.Reranker, error)
	GetChatModel(ctx context.Context, modelID string) (chat.Chat, error)
}
