package ragpipeline

import (
	"context"
	"time"

	"github.com/noteqa/ragcore/internal/generator"
	"github.com/noteqa/ragcore/internal/models/chat"
	"github.com/noteqa/ragcore/internal/types"
	"github.com/noteqa/ragcore/internal/types/interfaces"
)

const stageGenerator = "GENERATOR"

// GeneratorStage invokes the external completion model for the built
// prompt.
type GeneratorStage struct {
	gen    *generator.Generator
	models interfaces.ModelService
}

// NewGeneratorStage builds and registers the Generator stage.
func NewGeneratorStage(em *EventManager, gen *generator.Generator, models interfaces.ModelService) *GeneratorStage {
	s := &GeneratorStage{gen: gen, models: models}
	em.Register(s)
	return s
}

func (s *GeneratorStage) ActivationEvents() []types.EventType {
	return []types.EventType{types.GenerateAnswer}
}

func (s *GeneratorStage) OnEvent(ctx context.Context, eventType types.EventType, rc *types.RequestContext, next func() *PluginError) *PluginError {
	start := time.Now()

	backend, err := s.models.GetChatModel(ctx, rc.Request.ChatModelID)
	if err != nil {
		return NewPluginError(stageGenerator, types.ErrorKindConfiguration, "no chat backend configured").WithCause(err)
	}

	opts := &chat.ChatOptions{}
	if rc.Request.Temperature != nil {
		opts.Temperature = *rc.Request.Temperature
	}
	if rc.Request.MaxTokens != nil {
		opts.MaxTokens = *rc.Request.MaxTokens
	}

	text, err := s.gen.Generate(ctx, backend, rc.SystemPrompt, rc.UserPrompt, opts)
	if err != nil {
		if ragErr, ok := asRAGError(err); ok {
			return NewPluginError(stageGenerator, ragErr.Kind, ragErr.Message).WithCause(ragErr.Cause)
		}
		return NewPluginError(stageGenerator, types.ErrorKindTransient, "generation failed").WithCause(err)
	}

	rc.RawAnswer = text
	rc.RecordTiming(stageGenerator, time.Since(start))
	return next()
}

func asRAGError(err error) (*types.RAGError, bool) {
	ragErr, ok := err.(*types.RAGError)
	return ragErr, ok
}

// repair issues a narrower-instruction regeneration call directly (used by
// the Citation Validator's repair pass, not registered as its own event).
func (s *GeneratorStage) repair(ctx context.Context, chatModelID, systemPrompt, userPrompt string) (string, error) {
	backend, err := s.models.GetChatModel(ctx, chatModelID)
	if err != nil {
		return "", err
	}
	return s.gen.Generate(ctx, backend, systemPrompt, userPrompt, &chat.ChatOptions{})
}
