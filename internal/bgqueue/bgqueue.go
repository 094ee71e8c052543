// Package bgqueue defines the background-queue boundary for offloading
// non-request-path work (cache warmup, embedding backfill) without pulling
// job execution into the core itself, built on asynq.Client.
package bgqueue

import (
	"context"

	"github.com/hibiken/asynq"
)

// TaskType names a background job kind. The core only ever enqueues; a
// separate worker process registers the corresponding asynq.Handler.
type TaskType string

const (
	// TaskWarmEmbeddingCache asks a worker to pre-populate the embedding
	// cache for a tenant's most recent chunks ahead of expected load.
	TaskWarmEmbeddingCache TaskType = "ragcore:warm_embedding_cache"
)

// BackgroundQueue is the core's only contact point with asynchronous job
// execution: enqueue and forget.
type BackgroundQueue interface {
	Enqueue(ctx context.Context, taskType TaskType, payload []byte) error
}

// asynqQueue implements BackgroundQueue against a real Redis-backed asynq
// client.
type asynqQueue struct {
	client *asynq.Client
}

// New wraps an asynq client configured against the same Redis the rate
// limiter and embedding cache use.
func New(redisAddr string) BackgroundQueue {
	return &asynqQueue{client: asynq.NewClient(asynq.RedisClientOpt{Addr: redisAddr})}
}

func (q *asynqQueue) Enqueue(ctx context.Context, taskType TaskType, payload []byte) error {
	task := asynq.NewTask(string(taskType), payload)
	_, err := q.client.EnqueueContext(ctx, task)
	return err
}
