package modelservice

import (
	"context"
	"testing"

	"github.com/noteqa/ragcore/internal/config"
)

func TestSplitModelID(t *testing.T) {
	cases := []struct {
		id           string
		wantProvider string
		wantName     string
	}{
		{"ollama:nomic-embed-text", "ollama", "nomic-embed-text"},
		{"openai:text-embedding-3-small", "openai", "text-embedding-3-small"},
		{"no-colon-name", "", "no-colon-name"},
		{"", "", ""},
	}
	for _, c := range cases {
		provider, name := splitModelID(c.id)
		if provider != c.wantProvider || name != c.wantName {
			t.Errorf("splitModelID(%q) = (%q, %q), want (%q, %q)", c.id, provider, name, c.wantProvider, c.wantName)
		}
	}
}

func TestGetRerankModel_EmptyIDFallsBackToLexical(t *testing.T) {
	s := New(config.ModelsConfig{}, nil)

	r, err := s.GetRerankModel(context.Background(), "")
	if err != nil {
		t.Fatalf("GetRerankModel: %v", err)
	}

	results, err := r.Rerank(context.Background(), "hello world", []string{"hello there", "goodbye"})
	if err != nil {
		t.Fatalf("Rerank: %v", err)
	}
	if len(results) != 2 {
		t.Fatalf("expected 2 results, got %d", len(results))
	}
}

func TestGetRerankModel_CachesByModelID(t *testing.T) {
	s := New(config.ModelsConfig{}, nil)

	a, err := s.GetRerankModel(context.Background(), "lexical:default")
	if err != nil {
		t.Fatalf("GetRerankModel: %v", err)
	}
	b, err := s.GetRerankModel(context.Background(), "lexical:default")
	if err != nil {
		t.Fatalf("GetRerankModel: %v", err)
	}
	if a != b {
		t.Error("expected the same cached reranker instance for the same model ID")
	}
}

func TestGetRerankModel_UnknownProviderErrors(t *testing.T) {
	s := New(config.ModelsConfig{}, nil)
	if _, err := s.GetRerankModel(context.Background(), "bogus:thing"); err == nil {
		t.Fatal("expected error for unknown rerank provider")
	}
}

func TestGetEmbeddingModel_NoDefaultConfiguredErrors(t *testing.T) {
	s := New(config.ModelsConfig{}, nil)
	if _, err := s.GetEmbeddingModel(context.Background(), ""); err == nil {
		t.Fatal("expected error when no embedding model is configured")
	}
}

func TestGetChatModel_NoDefaultConfiguredErrors(t *testing.T) {
	s := New(config.ModelsConfig{}, nil)
	if _, err := s.GetChatModel(context.Background(), ""); err == nil {
		t.Fatal("expected error when no chat model is configured")
	}
}
