// Package modelservice resolves the model identifiers carried on an
// AnswerRequest (EmbeddingModelID/ChatModelID/RerankModelID) into concrete
// backend clients, implementing interfaces.ModelService. The core pipeline
// is agnostic to which backend answers a given ID; this is
// the one place that decides.
package modelservice

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/noteqa/ragcore/internal/config"
	"github.com/noteqa/ragcore/internal/models/chat"
	"github.com/noteqa/ragcore/internal/models/embedding"
	"github.com/noteqa/ragcore/internal/models/rerank"
	"github.com/noteqa/ragcore/internal/models/utils/ollama"
	"github.com/noteqa/ragcore/internal/types"
	"github.com/panjf2000/ants/v2"
)

// Service resolves a model ID of the form "<provider>:<name>" into a
// cached backend instance. An empty ID falls back to the process default
// configured for that model kind. Recognized providers are "ollama",
// "openai", "remote" (OpenAI-compatible chat/rerank endpoint), and
// "lexical" (the zero-dependency rerank fallback).
type Service struct {
	cfg  config.ModelsConfig
	pool *ants.Pool

	mu        sync.Mutex
	embedders map[string]embedding.Embedder
	rerankers map[string]rerank.Reranker
	chats     map[string]chat.Chat
	ollama    *ollama.OllamaService
}

// New builds a Service. pool is reused as the Ollama embedder's
// batch-fan-out pool (internal/models/embedding.EmbedderPooler).
func New(cfg config.ModelsConfig, pool *ants.Pool) *Service {
	return &Service{
		cfg:       cfg,
		pool:      pool,
		embedders: make(map[string]embedding.Embedder),
		rerankers: make(map[string]rerank.Reranker),
		chats:     make(map[string]chat.Chat),
	}
}

// GetEmbeddingModel resolves modelID (or the configured default) to an
// Embedder, caching the instance across calls.
func (s *Service) GetEmbeddingModel(ctx context.Context, modelID string) (embedding.Embedder, error) {
	if modelID == "" {
		modelID = s.cfg.DefaultEmbeddingModelID
	}
	if modelID == "" {
		return nil, fmt.Errorf("modelservice: no embedding model configured")
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if e, ok := s.embedders[modelID]; ok {
		return e, nil
	}

	provider, name := splitModelID(modelID)
	var e embedding.Embedder
	var err error
	switch provider {
	case "openai":
		e = embedding.NewOpenAIEmbedder(s.cfg.OpenAIAPIKey, s.cfg.OpenAIBaseURL, name, modelID, 0)
	case "ollama", "":
		var svc *ollama.OllamaService
		svc, err = s.ollamaService()
		if err != nil {
			return nil, fmt.Errorf("modelservice: ollama embedder %q: %w", modelID, err)
		}
		e, err = embedding.NewOllamaEmbedder(s.cfg.OllamaBaseURL, name, 0, 0, modelID,
			embedding.NewBatchEmbedder(s.pool, s.cfg.EmbedBatchSize), svc)
	default:
		return nil, fmt.Errorf("modelservice: unknown embedding provider %q", provider)
	}
	if err != nil {
		return nil, err
	}
	s.embedders[modelID] = e
	return e, nil
}

// GetRerankModel resolves modelID (or the configured default) to a
// Reranker. An empty default falls back to the dependency-free lexical
// reranker rather than failing the request.
func (s *Service) GetRerankModel(ctx context.Context, modelID string) (rerank.Reranker, error) {
	if modelID == "" {
		modelID = s.cfg.DefaultRerankModelID
	}
	if modelID == "" {
		modelID = "lexical:default"
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if r, ok := s.rerankers[modelID]; ok {
		return r, nil
	}

	provider, name := splitModelID(modelID)
	var r rerank.Reranker
	switch provider {
	case "lexical":
		r = rerank.NewLexicalReranker(modelID)
	case "remote", "":
		r = rerank.NewRemoteReranker(s.cfg.OpenAIBaseURL, s.cfg.OpenAIAPIKey, name, modelID, 0)
	default:
		return nil, fmt.Errorf("modelservice: unknown rerank provider %q", provider)
	}
	s.rerankers[modelID] = r
	return r, nil
}

// GetChatModel resolves modelID (or the configured default) to a Chat
// backend via chat.NewChat, which dispatches on types.ModelSource.
func (s *Service) GetChatModel(ctx context.Context, modelID string) (chat.Chat, error) {
	if modelID == "" {
		modelID = s.cfg.DefaultChatModelID
	}
	if modelID == "" {
		return nil, fmt.Errorf("modelservice: no chat model configured")
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if c, ok := s.chats[modelID]; ok {
		return c, nil
	}

	provider, name := splitModelID(modelID)
	cc := &chat.ChatConfig{ModelID: modelID, ModelName: name}
	var svc *ollama.OllamaService
	switch provider {
	case "ollama", "local":
		cc.Source = types.ModelSourceLocal
		cc.BaseURL = s.cfg.OllamaBaseURL
		var err error
		svc, err = s.ollamaService()
		if err != nil {
			return nil, fmt.Errorf("modelservice: chat model %q: %w", modelID, err)
		}
	case "openai", "remote", "":
		cc.Source = types.ModelSourceRemote
		cc.BaseURL = s.cfg.OpenAIBaseURL
		cc.APIKey = s.cfg.OpenAIAPIKey
	default:
		return nil, fmt.Errorf("modelservice: unknown chat provider %q", provider)
	}

	c, err := chat.NewChat(cc, svc)
	if err != nil {
		return nil, fmt.Errorf("modelservice: chat model %q: %w", modelID, err)
	}
	s.chats[modelID] = c
	return c, nil
}

// ollamaService lazily builds and caches this Service's OllamaService,
// shared across the Ollama embedder and the local chat backend. Callers
// must already hold s.mu.
func (s *Service) ollamaService() (*ollama.OllamaService, error) {
	if s.ollama != nil {
		return s.ollama, nil
	}
	svc, err := ollama.NewOllamaService(s.cfg.OllamaBaseURL, s.cfg.OllamaOptional)
	if err != nil {
		return nil, err
	}
	s.ollama = svc
	return svc, nil
}

// splitModelID splits "provider:name" into its two parts. A bare name with
// no colon is treated as having an empty provider (caller default).
func splitModelID(modelID string) (provider, name string) {
	if i := strings.Index(modelID, ":"); i >= 0 {
		return modelID[:i], modelID[i+1:]
	}
	return "", modelID
}
