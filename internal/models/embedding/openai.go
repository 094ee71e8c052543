package embedding

import (
	"context"
	"fmt"

	openai "github.com/sashabaranov/go-openai"
)

// OpenAIEmbedder calls an OpenAI-compatible embeddings endpoint directly,
// without the pooled-single-request shape Ollama needs, since the OpenAI
// API already accepts a batch of inputs per call.
type OpenAIEmbedder struct {
	client     *openai.Client
	modelName  string
	modelID    string
	dimensions int
}

// NewOpenAIEmbedder builds an embedder against apiKey/baseURL, mirroring
// chat.RemoteAPIChat's client construction.
func NewOpenAIEmbedder(apiKey, baseURL, modelName, modelID string, dimensions int) *OpenAIEmbedder {
	cfg := openai.DefaultConfig(apiKey)
	if baseURL != "" {
		cfg.BaseURL = baseURL
	}
	return &OpenAIEmbedder{
		client:     openai.NewClientWithConfig(cfg),
		modelName:  modelName,
		modelID:    modelID,
		dimensions: dimensions,
	}
}

func (e *OpenAIEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	results, err := e.BatchEmbed(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	if len(results) == 0 {
		return nil, fmt.Errorf("openai embedder: empty result")
	}
	return results[0], nil
}

func (e *OpenAIEmbedder) BatchEmbed(ctx context.Context, texts []string) ([][]float32, error) {
	cleaned := make([]string, len(texts))
	for i, t := range texts {
		cleaned[i] = PreprocessTextForEmbedding(t)
	}

	resp, err := e.client.CreateEmbeddings(ctx, openai.EmbeddingRequestStrings{
		Input: cleaned,
		Model: openai.EmbeddingModel(e.modelName),
	})
	if err != nil {
		return nil, fmt.Errorf("openai embeddings: %w", err)
	}
	if len(resp.Data) != len(texts) {
		return nil, fmt.Errorf("openai embeddings: expected %d vectors, got %d", len(texts), len(resp.Data))
	}

	out := make([][]float32, len(resp.Data))
	for _, d := range resp.Data {
		vec, _ := sanitizeVector(d.Embedding)
		out[d.Index] = vec
	}
	return out, nil
}

func (e *OpenAIEmbedder) GetModelName() string { return e.modelName }
func (e *OpenAIEmbedder) GetDimensions() int   { return e.dimensions }
func (e *OpenAIEmbedder) GetModelID() string   { return e.modelID }
