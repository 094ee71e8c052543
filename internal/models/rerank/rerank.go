// Package rerank scores (query, passage) pairs with a cross-encoder style
// model, the third leg of the Hybrid Retriever's blended ranking (a 0.7
// cross-encoder / 0.3 RRF blend). The remote backend talks the REST shape
// most reranker providers (Cohere, Jina, text-embeddings-inference) expose,
// using a raw http.Client rather than a provider-specific SDK.
package rerank

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/noteqa/ragcore/internal/searchutil"
)

// RankResult is one reranked passage, indexed back into the caller's
// original passage slice.
type RankResult struct {
	Index          int     `json:"index"`
	RelevanceScore float64 `json:"relevance_score"`
}

// Reranker scores passages against query and returns them ordered by
// descending relevance.
type Reranker interface {
	Rerank(ctx context.Context, query string, passages []string) ([]RankResult, error)
	GetModelID() string
}

// RemoteReranker calls an HTTP cross-encoder rerank endpoint.
type RemoteReranker struct {
	baseURL string
	apiKey  string
	model   string
	modelID string
	client  *http.Client
}

// NewRemoteReranker builds a reranker against a rerank endpoint at baseURL
// (e.g. "https://api.jina.ai/v1" or a self-hosted text-embeddings-inference
// instance).
func NewRemoteReranker(baseURL, apiKey, model, modelID string, timeout time.Duration) *RemoteReranker {
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &RemoteReranker{
		baseURL: baseURL,
		apiKey:  apiKey,
		model:   model,
		modelID: modelID,
		client:  &http.Client{Timeout: timeout},
	}
}

type rerankRequest struct {
	Model     string   `json:"model"`
	Query     string   `json:"query"`
	Documents []string `json:"documents"`
}

type rerankResponseResult struct {
	Index          int     `json:"index"`
	RelevanceScore float64 `json:"relevance_score"`
}

type rerankResponse struct {
	Results []rerankResponseResult `json:"results"`
}

func (r *RemoteReranker) Rerank(ctx context.Context, query string, passages []string) ([]RankResult, error) {
	if len(passages) == 0 {
		return nil, nil
	}

	body, err := json.Marshal(rerankRequest{Model: r.model, Query: query, Documents: passages})
	if err != nil {
		return nil, fmt.Errorf("rerank: marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, r.baseURL+"/rerank", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("rerank: build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if r.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+r.apiKey)
	}

	resp, err := r.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("rerank: request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("rerank: status %d", resp.StatusCode)
	}

	var decoded rerankResponse
	if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
		return nil, fmt.Errorf("rerank: decode response: %w", err)
	}

	out := make([]RankResult, 0, len(decoded.Results))
	for _, res := range decoded.Results {
		out = append(out, RankResult{Index: res.Index, RelevanceScore: res.RelevanceScore})
	}
	return out, nil
}

func (r *RemoteReranker) GetModelID() string { return r.modelID }

// LexicalReranker approximates cross-encoder scoring with Jaccard token
// overlap, used when no remote rerank backend is configured (local/offline
// deployments).
type LexicalReranker struct {
	modelID string
}

// NewLexicalReranker builds a dependency-free fallback reranker.
func NewLexicalReranker(modelID string) *LexicalReranker {
	return &LexicalReranker{modelID: modelID}
}

func (r *LexicalReranker) Rerank(_ context.Context, query string, passages []string) ([]RankResult, error) {
	queryTokens := searchutil.TokenizeSimple(query)
	out := make([]RankResult, 0, len(passages))
	for i, passage := range passages {
		tokens := searchutil.TokenizeSimple(passage)
		out = append(out, RankResult{Index: i, RelevanceScore: searchutil.Jaccard(queryTokens, tokens)})
	}
	return out, nil
}

func (r *LexicalReranker) GetModelID() string { return r.modelID }
