// Package generator wraps a chat.Chat backend with the retry/backoff,
// timeout, and concurrency-limiting policy the Generator stage requires,
// using an ants goroutine-pool semaphore for the process-wide
// external-concurrency cap.
package generator

import (
	"context"
	"errors"
	"time"

	"github.com/noteqa/ragcore/internal/config"
	"github.com/noteqa/ragcore/internal/logger"
	"github.com/noteqa/ragcore/internal/models/chat"
	"github.com/noteqa/ragcore/internal/types"
	"github.com/panjf2000/ants/v2"
)

// Generator invokes an external completion model with a hard per-attempt
// timeout, exponential backoff between retries, and a process-wide
// concurrency cap.
type Generator struct {
	cfg  config.GeneratorConfig
	pool *ants.Pool
}

// New builds a Generator bounded by cfg.MaxConcurrent simultaneous calls.
func New(cfg config.GeneratorConfig) (*Generator, error) {
	pool, err := ants.NewPool(cfg.MaxConcurrent, ants.WithNonblocking(false))
	if err != nil {
		return nil, err
	}
	return &Generator{cfg: cfg, pool: pool}, nil
}

// Close releases the underlying goroutine pool.
func (g *Generator) Close() { g.pool.Release() }

// Generate sends system+user prompt to the chat backend, retrying
// retryable failures with exponential backoff, and returns the raw answer
// text. Non-retryable and rate-limit errors are surfaced immediately via
// types.RAGError.
func (g *Generator) Generate(ctx context.Context, backend chat.Chat, systemPrompt, userPrompt string, opts *chat.ChatOptions) (string, error) {
	type result struct {
		text string
		err  error
	}
	resultCh := make(chan result, 1)

	submitErr := g.pool.Submit(func() {
		text, err := g.runWithRetry(ctx, backend, systemPrompt, userPrompt, opts)
		resultCh <- result{text: text, err: err}
	})
	if submitErr != nil {
		return "", types.NewRAGErrorWithCause(types.ErrorKindInternal, "generator pool saturated", submitErr).WithOperation("generator.Generate")
	}

	select {
	case <-ctx.Done():
		return "", types.NewRAGErrorWithCause(types.ErrorKindTimeout, "generation cancelled", ctx.Err()).WithOperation("generator.Generate")
	case r := <-resultCh:
		return r.text, r.err
	}
}

func (g *Generator) runWithRetry(ctx context.Context, backend chat.Chat, systemPrompt, userPrompt string, opts *chat.ChatOptions) (string, error) {
	messages := []chat.Message{
		{Role: "system", Content: systemPrompt},
		{Role: "user", Content: userPrompt},
	}

	backoff := g.cfg.BackoffBase
	var lastErr error

	for attempt := 1; attempt <= g.cfg.MaxAttempts; attempt++ {
		attemptCtx, cancel := context.WithTimeout(ctx, g.cfg.Timeout)
		resp, err := backend.Chat(attemptCtx, messages, opts)
		cancel()

		if err == nil {
			return resp.Content, nil
		}

		kind := classifyError(err)
		switch kind {
		case types.ErrorKindInput, types.ErrorKindConfiguration:
			return "", types.NewRAGErrorWithCause(kind, "generation failed", err).WithOperation("generator.Generate")
		case types.ErrorKindRateLimited:
			return "", types.NewRAGErrorWithCause(kind, "generator rate limited", err).WithOperation("generator.Generate").WithRetryAfter(backoff)
		}

		lastErr = err
		logger.Warnf(ctx, "generator attempt %d/%d failed: %v", attempt, g.cfg.MaxAttempts, err)

		if attempt == g.cfg.MaxAttempts {
			break
		}
		select {
		case <-ctx.Done():
			return "", types.NewRAGErrorWithCause(types.ErrorKindTimeout, "generation cancelled", ctx.Err()).WithOperation("generator.Generate")
		case <-time.After(backoff):
		}
		backoff *= time.Duration(g.cfg.BackoffFactor)
		if backoff > g.cfg.BackoffCap {
			backoff = g.cfg.BackoffCap
		}
	}

	return "", types.NewRAGErrorWithCause(types.ErrorKindTransient, "generation failed after retries", lastErr).WithOperation("generator.Generate")
}

// classifyError maps a backend error to the core's error-kind taxonomy.
// Backends that already return a *types.RAGError pass its Kind through;
// everything else defaults to transient (retryable).
func classifyError(err error) types.ErrorKind {
	var ragErr *types.RAGError
	if errors.As(err, &ragErr) {
		return ragErr.Kind
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return types.ErrorKindTimeout
	}
	return types.ErrorKindTransient
}
