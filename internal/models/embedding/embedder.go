package embedding

import "context"

// Embedder converts text into dense vectors for the vector retrieval
// source and for query-time candidate scoring.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
	BatchEmbed(ctx context.Context, texts []string) ([][]float32, error)
	GetModelName() string
	GetDimensions() int
	GetModelID() string
}

// EmbedderPooler fans a batch embedding call out across a bounded
// goroutine pool, used by backends (Ollama) whose wire API embeds one
// request body at a time.
type EmbedderPooler interface {
	BatchEmbedWithPool(ctx context.Context, model Embedder, texts []string) ([][]float32, error)
}
