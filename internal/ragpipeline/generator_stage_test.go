package ragpipeline

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/noteqa/ragcore/internal/config"
	"github.com/noteqa/ragcore/internal/generator"
	"github.com/noteqa/ragcore/internal/models/chat"
	"github.com/noteqa/ragcore/internal/models/embedding"
	"github.com/noteqa/ragcore/internal/models/rerank"
	"github.com/noteqa/ragcore/internal/types"
)

type fakeChatBackend struct {
	response string
	err      error
}

func (f *fakeChatBackend) Chat(ctx context.Context, messages []chat.Message, opts *chat.ChatOptions) (*types.ChatResponse, error) {
	if f.err != nil {
		return nil, f.err
	}
	return &types.ChatResponse{Content: f.response}, nil
}
func (f *fakeChatBackend) ChatStream(ctx context.Context, messages []chat.Message, opts *chat.ChatOptions) (<-chan types.StreamResponse, error) {
	return nil, nil
}
func (f *fakeChatBackend) GetModelName() string { return "fake" }
func (f *fakeChatBackend) GetModelID() string   { return "fake:1" }

type stageModelService struct {
	backend chat.Chat
	err     error
}

func (s *stageModelService) GetEmbeddingModel(ctx context.Context, modelID string) (embedding.Embedder, error) {
	return nil, nil
}
func (s *stageModelService) GetRerankModel(ctx context.Context, modelID string) (rerank.Reranker, error) {
	return nil, nil
}
func (s *stageModelService) GetChatModel(ctx context.Context, modelID string) (chat.Chat, error) {
	if s.err != nil {
		return nil, s.err
	}
	return s.backend, nil
}

func testGeneratorStageConfig() config.GeneratorConfig {
	return config.GeneratorConfig{
		Timeout:       time.Second,
		MaxAttempts:   1,
		BackoffBase:   time.Millisecond,
		BackoffFactor: 2,
		BackoffCap:    10 * time.Millisecond,
		MaxConcurrent: 2,
	}
}

func TestGeneratorStage_OnEvent_PopulatesRawAnswer(t *testing.T) {
	gen, err := generator.New(testGeneratorStageConfig())
	if err != nil {
		t.Fatalf("generator.New: %v", err)
	}
	defer gen.Close()

	em := NewEventManager()
	models := &stageModelService{backend: &fakeChatBackend{response: "the meeting is Tuesday [N1]."}}
	NewGeneratorStage(em, gen, models)

	rc := &types.RequestContext{
		Request:      &types.AnswerRequest{Question: "when is the meeting?"},
		SystemPrompt: "system",
		UserPrompt:   "user",
	}
	pe := em.Trigger(context.Background(), types.GenerateAnswer, rc)
	if pe != nil {
		t.Fatalf("unexpected plugin error: %v", pe)
	}
	if rc.RawAnswer != "the meeting is Tuesday [N1]." {
		t.Errorf("unexpected raw answer: %q", rc.RawAnswer)
	}
}

func TestGeneratorStage_OnEvent_NoChatBackendIsConfigurationError(t *testing.T) {
	gen, err := generator.New(testGeneratorStageConfig())
	if err != nil {
		t.Fatalf("generator.New: %v", err)
	}
	defer gen.Close()

	em := NewEventManager()
	models := &stageModelService{err: errors.New("no backend registered")}
	NewGeneratorStage(em, gen, models)

	rc := &types.RequestContext{Request: &types.AnswerRequest{Question: "x"}}
	pe := em.Trigger(context.Background(), types.GenerateAnswer, rc)
	if pe == nil {
		t.Fatal("expected a plugin error when no chat backend resolves")
	}
	if pe.Kind != types.ErrorKindConfiguration {
		t.Errorf("expected ErrorKindConfiguration, got %v", pe.Kind)
	}
}

func TestGeneratorStage_OnEvent_BackendErrorPropagatesAsTransient(t *testing.T) {
	gen, err := generator.New(testGeneratorStageConfig())
	if err != nil {
		t.Fatalf("generator.New: %v", err)
	}
	defer gen.Close()

	em := NewEventManager()
	models := &stageModelService{backend: &fakeChatBackend{err: errors.New("backend exploded")}}
	NewGeneratorStage(em, gen, models)

	rc := &types.RequestContext{Request: &types.AnswerRequest{Question: "x"}, SystemPrompt: "s", UserPrompt: "u"}
	pe := em.Trigger(context.Background(), types.GenerateAnswer, rc)
	if pe == nil {
		t.Fatal("expected a plugin error when the backend fails")
	}
	if pe.Kind != types.ErrorKindTransient {
		t.Errorf("expected ErrorKindTransient, got %v", pe.Kind)
	}
}
