package retrieval

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/elastic/go-elasticsearch/v8"
	"github.com/elastic/go-elasticsearch/v8/esapi"
	"github.com/noteqa/ragcore/internal/types"
	"github.com/noteqa/ragcore/internal/types/interfaces"
)

// elasticsearchLexicalSource implements LexicalSource against an
// Elasticsearch index, used when the deployment needs CJK-aware full-text
// search beyond Postgres FTS. Query terms are pre-segmented with
// types.Jieba when available.
type elasticsearchLexicalSource struct {
	client *elasticsearch.Client
	index  string
	store  interfaces.ChunkStore
}

// NewElasticsearchLexicalSource builds an ES-backed LexicalSource.
func NewElasticsearchLexicalSource(client *elasticsearch.Client, index string, store interfaces.ChunkStore) LexicalSource {
	return &elasticsearchLexicalSource{client: client, index: index, store: store}
}

type esSearchResponse struct {
	Hits struct {
		Hits []struct {
			ID     string  `json:"_id"`
			Score  float64 `json:"_score"`
			Source struct {
				TenantID uint64 `json:"tenant_id"`
			} `json:"_source"`
		} `json:"hits"`
	} `json:"hits"`
}

func (s *elasticsearchLexicalSource) Search(
	ctx context.Context, tenantID uint64, keywords []string, topK int, filters *types.NoteFilters,
) ([]Candidate, error) {
	if len(keywords) == 0 || topK <= 0 {
		return nil, nil
	}

	segmented := segmentKeywords(keywords)

	must := []map[string]interface{}{
		{"term": map[string]interface{}{"tenant_id": tenantID}},
		{"match": map[string]interface{}{"text": strings.Join(segmented, " ")}},
	}
	if filters != nil && len(filters.IncludeNoteIDs) > 0 {
		must = append(must, map[string]interface{}{"terms": map[string]interface{}{"note_id": filters.IncludeNoteIDs}})
	}

	body := map[string]interface{}{
		"size":  topK,
		"query": map[string]interface{}{"bool": map[string]interface{}{"must": must}},
	}
	if filters != nil && len(filters.ExcludeNoteIDs) > 0 {
		body["query"].(map[string]interface{})["bool"].(map[string]interface{})["must_not"] =
			[]map[string]interface{}{{"terms": map[string]interface{}{"note_id": filters.ExcludeNoteIDs}}}
	}

	payload, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("lexical search: marshal query: %w", err)
	}

	req := esapi.SearchRequest{
		Index: []string{s.index},
		Body:  bytes.NewReader(payload),
	}
	resp, err := req.Do(ctx, s.client)
	if err != nil {
		return nil, fmt.Errorf("lexical search: elasticsearch request: %w", err)
	}
	defer resp.Body.Close()
	if resp.IsError() {
		return nil, fmt.Errorf("lexical search: elasticsearch status %s", resp.Status())
	}

	var decoded esSearchResponse
	if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
		return nil, fmt.Errorf("lexical search: decode response: %w", err)
	}
	if len(decoded.Hits.Hits) == 0 {
		return nil, nil
	}

	ids := make([]string, len(decoded.Hits.Hits))
	scoreByID := make(map[string]float64, len(decoded.Hits.Hits))
	for i, hit := range decoded.Hits.Hits {
		ids[i] = hit.ID
		scoreByID[hit.ID] = hit.Score
	}

	chunks, err := s.store.ListChunksByID(ctx, tenantID, ids)
	if err != nil {
		return nil, fmt.Errorf("lexical search: hydrate chunks: %w", err)
	}
	out := make([]Candidate, 0, len(chunks))
	for _, c := range chunks {
		out = append(out, Candidate{Chunk: c, Score: scoreByID[c.ID]})
	}
	return out, nil
}

// segmentKeywords runs each keyword through the global CJK segmenter when
// one is installed, otherwise passes keywords through unchanged.
func segmentKeywords(keywords []string) []string {
	if types.Jieba == nil {
		return keywords
	}
	out := make([]string, 0, len(keywords)*2)
	for _, kw := range keywords {
		out = append(out, types.Jieba.CutForSearch(kw, true)...)
	}
	return out
}
