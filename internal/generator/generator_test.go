package generator

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/noteqa/ragcore/internal/config"
	"github.com/noteqa/ragcore/internal/models/chat"
	"github.com/noteqa/ragcore/internal/types"
)

type fakeChat struct {
	calls     int
	failUntil int
	failWith  error
	response  string
}

func (f *fakeChat) Chat(ctx context.Context, messages []chat.Message, opts *chat.ChatOptions) (*types.ChatResponse, error) {
	f.calls++
	if f.calls <= f.failUntil {
		return nil, f.failWith
	}
	return &types.ChatResponse{Content: f.response}, nil
}

func (f *fakeChat) ChatStream(ctx context.Context, messages []chat.Message, opts *chat.ChatOptions) (<-chan types.StreamResponse, error) {
	return nil, nil
}
func (f *fakeChat) GetModelName() string { return "fake" }
func (f *fakeChat) GetModelID() string   { return "fake:1" }

func testGeneratorConfig() config.GeneratorConfig {
	return config.GeneratorConfig{
		Timeout:       time.Second,
		MaxAttempts:   3,
		BackoffBase:   time.Millisecond,
		BackoffFactor: 2,
		BackoffCap:    10 * time.Millisecond,
		MaxConcurrent: 2,
	}
}

func TestGenerator_SucceedsOnFirstAttempt(t *testing.T) {
	g, err := New(testGeneratorConfig())
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer g.Close()

	backend := &fakeChat{response: "the answer"}
	got, err := g.Generate(context.Background(), backend, "system", "user", nil)
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	if got != "the answer" {
		t.Errorf("got %q", got)
	}
	if backend.calls != 1 {
		t.Errorf("expected 1 call, got %d", backend.calls)
	}
}

func TestGenerator_RetriesTransientFailures(t *testing.T) {
	g, err := New(testGeneratorConfig())
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer g.Close()

	backend := &fakeChat{failUntil: 2, failWith: errors.New("connection reset"), response: "recovered"}
	got, err := g.Generate(context.Background(), backend, "system", "user", nil)
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	if got != "recovered" {
		t.Errorf("got %q", got)
	}
	if backend.calls != 3 {
		t.Errorf("expected 3 attempts, got %d", backend.calls)
	}
}

func TestGenerator_GivesUpAfterMaxAttempts(t *testing.T) {
	g, err := New(testGeneratorConfig())
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer g.Close()

	backend := &fakeChat{failUntil: 99, failWith: errors.New("always fails")}
	_, err = g.Generate(context.Background(), backend, "system", "user", nil)
	if err == nil {
		t.Fatal("expected error after exhausting retries")
	}
	var ragErr *types.RAGError
	if !errors.As(err, &ragErr) {
		t.Fatalf("expected *types.RAGError, got %T", err)
	}
	if ragErr.Kind != types.ErrorKindTransient {
		t.Errorf("expected ErrorKindTransient, got %v", ragErr.Kind)
	}
	if backend.calls != testGeneratorConfig().MaxAttempts {
		t.Errorf("expected %d attempts, got %d", testGeneratorConfig().MaxAttempts, backend.calls)
	}
}

func TestGenerator_NonRetryableErrorFailsFast(t *testing.T) {
	g, err := New(testGeneratorConfig())
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer g.Close()

	backend := &fakeChat{
		failUntil: 99,
		failWith:  types.NewRAGError(types.ErrorKindInput, "bad request"),
	}
	_, err = g.Generate(context.Background(), backend, "system", "user", nil)
	if err == nil {
		t.Fatal("expected error")
	}
	if backend.calls != 1 {
		t.Errorf("expected fail-fast after 1 attempt, got %d calls", backend.calls)
	}
}

func TestGenerator_RateLimitedErrorCarriesRetryAfter(t *testing.T) {
	g, err := New(testGeneratorConfig())
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer g.Close()

	backend := &fakeChat{
		failUntil: 99,
		failWith:  types.NewRAGError(types.ErrorKindRateLimited, "slow down"),
	}
	_, err = g.Generate(context.Background(), backend, "system", "user", nil)
	var ragErr *types.RAGError
	if !errors.As(err, &ragErr) {
		t.Fatalf("expected *types.RAGError, got %T", err)
	}
	if ragErr.Kind != types.ErrorKindRateLimited {
		t.Errorf("expected ErrorKindRateLimited, got %v", ragErr.Kind)
	}
	if ragErr.RetryAfter <= 0 {
		t.Error("expected a positive RetryAfter")
	}
}
