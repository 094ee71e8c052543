package embedding

import (
	"context"
	"fmt"
	"math"
	"sync"

	"github.com/noteqa/ragcore/internal/models/utils"
	"github.com/panjf2000/ants/v2"
)

// DefaultBatchEmbedSize is how many chunk texts are grouped per
// model.BatchEmbed call when the caller does not override it.
const DefaultBatchEmbedSize = 5

type batchEmbedder struct {
	pool      *ants.Pool
	batchSize int
}

// NewBatchEmbedder pools concurrent BatchEmbed calls across an ants worker
// pool, batching batchSize chunk texts per call. batchSize <= 0 falls back
// to DefaultBatchEmbedSize.
func NewBatchEmbedder(pool *ants.Pool, batchSize int) EmbedderPooler {
	if batchSize <= 0 {
		batchSize = DefaultBatchEmbedSize
	}
	return &batchEmbedder{pool: pool, batchSize: batchSize}
}

type textEmbedding struct {
	text    string
	results []float32
}

// sanitizeVector removes NaN and Inf values from embedding vectors
// Replaces invalid values with 0.0 to prevent JSON serialization errors
func sanitizeVector(vec []float32) ([]float32, error) {
	hasInvalid := false
	for i, v := range vec {
		if math.IsNaN(float64(v)) || math.IsInf(float64(v), 0) {
			vec[i] = 0.0
			hasInvalid = true
		}
	}
	if hasInvalid {
		return vec, fmt.Errorf("vector contained NaN or Inf values, replaced with 0.0")
	}
	return vec, nil
}

func (e *batchEmbedder) BatchEmbedWithPool(ctx context.Context, model Embedder, texts []string) ([][]float32, error) {
	// Create goroutine pool for concurrent processing of document chunks
	var wg sync.WaitGroup
	var mu sync.Mutex  // For synchronizing access to error
	var firstErr error // Record the first error that occurs
	textEmbeddings := utils.MapSlice(texts, func(text string) *textEmbedding {
		cleaned, _ := PreprocessChunkText(text)
		return &textEmbedding{text: cleaned}
	})

	// Function to process each document chunk
	processChunk := func(texts []*textEmbedding) func() {
		return func() {
			defer wg.Done()
			// If an error has already occurred, don't continue processing
			if firstErr != nil {
				return
			}
			// Embed text
			embedding, err := model.BatchEmbed(ctx, utils.MapSlice(texts, func(text *textEmbedding) string {
				return text.text
			}))
			if err != nil {
				mu.Lock()
				if firstErr == nil {
					firstErr = err
				}
				mu.Unlock()
				return
			}

			// Check if embedding result is valid
			if len(embedding) == 0 {
				mu.Lock()
				if firstErr == nil {
					firstErr = fmt.Errorf("received empty embedding result")
				}
				mu.Unlock()
				return
			}

			// Check if embedding length matches input length
			if len(embedding) != len(texts) {
				mu.Lock()
				if firstErr == nil {
					firstErr = fmt.Errorf("embedding count mismatch: expected %d, got %d", len(texts), len(embedding))
				}
				mu.Unlock()
				return
			}

			mu.Lock()
			for i, text := range texts {
				if text == nil {
					continue
				}
				sanitized, _ := sanitizeVector(embedding[i])
				text.results = sanitized
			}
			mu.Unlock()
		}
	}

	// Submit all tasks to the goroutine pool
	for _, texts := range utils.ChunkSlice(textEmbeddings, e.batchSize) {
		wg.Add(1)
		err := e.pool.Submit(processChunk(texts))
		if err != nil {
			return nil, err
		}
	}

	// Wait for all tasks to complete
	wg.Wait()

	// Check if any errors occurred
	if firstErr != nil {
		return nil, firstErr
	}

	// Sanitize all results and return
	results := make([][]float32, 0, len(textEmbeddings))
	for _, text := range textEmbeddings {
		if text.results != nil {
			sanitized, _ := sanitizeVector(text.results)
			results = append(results, sanitized)
		} else {
			results = append(results, nil)
		}
	}
	return results, nil
}
