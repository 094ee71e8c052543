package chat

import (
	"context"
	"fmt"

	"github.com/noteqa/ragcore/internal/models/utils/ollama"
	"github.com/noteqa/ragcore/internal/types"
	ollamaapi "github.com/ollama/ollama/api"
)

// OllamaChat implements Chat against a locally running Ollama model.
type OllamaChat struct {
	modelName string
	modelID   string
	service   *ollama.OllamaService
}

// NewOllamaChat builds a Chat backed by the shared OllamaService.
func NewOllamaChat(cfg *ChatConfig, service *ollama.OllamaService) (Chat, error) {
	return &OllamaChat{modelName: cfg.ModelName, modelID: cfg.ModelID, service: service}, nil
}

func toOllamaMessages(messages []Message) []ollamaapi.Message {
	out := make([]ollamaapi.Message, 0, len(messages))
	for _, m := range messages {
		out = append(out, ollamaapi.Message{Role: m.Role, Content: m.Content})
	}
	return out
}

// Chat issues a non-streaming chat completion.
func (o *OllamaChat) Chat(ctx context.Context, messages []Message, opts *ChatOptions) (*types.ChatResponse, error) {
	stream := false
	req := &ollamaapi.ChatRequest{
		Model:    o.modelName,
		Messages: toOllamaMessages(messages),
		Stream:   &stream,
	}
	if opts != nil {
		req.Options = map[string]interface{}{
			"temperature": opts.Temperature,
			"top_p":       opts.TopP,
		}
	}

	var result *types.ChatResponse
	err := o.service.Chat(ctx, req, func(resp ollamaapi.ChatResponse) error {
		result = &types.ChatResponse{
			Content:      resp.Message.Content,
			FinishReason: resp.DoneReason,
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("ollama chat: %w", err)
	}
	if result == nil {
		return nil, fmt.Errorf("ollama chat: empty response")
	}
	return result, nil
}

// ChatStream issues a streaming chat completion over a channel.
func (o *OllamaChat) ChatStream(ctx context.Context, messages []Message, opts *ChatOptions) (<-chan types.StreamResponse, error) {
	stream := true
	req := &ollamaapi.ChatRequest{
		Model:    o.modelName,
		Messages: toOllamaMessages(messages),
		Stream:   &stream,
	}
	if opts != nil {
		req.Options = map[string]interface{}{
			"temperature": opts.Temperature,
			"top_p":       opts.TopP,
		}
	}

	out := make(chan types.StreamResponse)
	go func() {
		defer close(out)
		err := o.service.Chat(ctx, req, func(resp ollamaapi.ChatResponse) error {
			out <- types.StreamResponse{Content: resp.Message.Content, Done: resp.Done, FinishReason: resp.DoneReason}
			return nil
		})
		if err != nil {
			out <- types.StreamResponse{Err: err, Done: true}
		}
	}()
	return out, nil
}

// GetModelName returns the configured model name.
func (o *OllamaChat) GetModelName() string { return o.modelName }

// GetModelID returns the configured model identifier.
func (o *OllamaChat) GetModelID() string { return o.modelID }
