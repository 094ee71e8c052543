package ragpipeline

import (
	"context"
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/noteqa/ragcore/internal/config"
	"github.com/noteqa/ragcore/internal/searchutil"
	"github.com/noteqa/ragcore/internal/types"
)

const stageSourcesPack = "SOURCES_PACK_BUILDER"

var sentenceSplitPattern = regexp.MustCompile(`(?:[.!?。！？]+["')\]]*)\s+`)

// SourcesPackBuilder assigns stable citation identifiers N1..Nk to the
// retrieved passages in output order and computes a query-aware snippet for
// each. Once built, the pack is immutable for the rest of the request.
type SourcesPackBuilder struct {
	cfg config.RetrievalConfig
}

// NewSourcesPackBuilder builds and registers the stage.
func NewSourcesPackBuilder(em *EventManager, cfg config.RetrievalConfig) *SourcesPackBuilder {
	b := &SourcesPackBuilder{cfg: cfg}
	em.Register(b)
	return b
}

func (b *SourcesPackBuilder) ActivationEvents() []types.EventType {
	return []types.EventType{types.BuildSourcesPack}
}

func (b *SourcesPackBuilder) OnEvent(ctx context.Context, eventType types.EventType, rc *types.RequestContext, next func() *PluginError) *PluginError {
	start := time.Now()
	rc.Pack = b.Build(rc.Analysis.Keywords, rc.ScoredChunks)
	rc.RecordTiming(stageSourcesPack, time.Since(start))
	return next()
}

// Build assigns N1..Nk in list order and computes each citation's snippet.
func (b *SourcesPackBuilder) Build(keywords []string, scored []*types.ScoredChunk) *types.SourcesPack {
	pack := &types.SourcesPack{
		Ordered: scored,
		ByID:    make(map[string]*types.Citation, len(scored)),
		Order:   make([]string, 0, len(scored)),
	}

	for i, sc := range scored {
		id := fmt.Sprintf("N%d", i+1)
		citation := &types.Citation{
			ID:          id,
			NoteID:      sc.Chunk.NoteID,
			ChunkID:     sc.Chunk.ID,
			CreatedAt:   sc.Chunk.CreatedAt,
			Snippet:     extractSnippet(sc.Chunk.Text, keywords, b.cfg.SnippetLengthCap),
			Relevance:   sc.Score,
			StartOffset: sc.Chunk.StartOffset,
			EndOffset:   sc.Chunk.EndOffset,
			Anchor:      sc.Chunk.Anchor,
		}
		pack.ByID[id] = citation
		pack.Order = append(pack.Order, id)
	}
	return pack
}

// extractSnippet splits text into sentences, scores each by count of query
// keywords, picks the best-fitting one, tries to extend with adjacent
// sentences while staying under cap, and falls back to word-boundary
// truncation when nothing scores.
func extractSnippet(text string, keywords []string, cap int) string {
	text = strings.TrimSpace(text)
	if text == "" {
		return ""
	}
	if cap <= 0 {
		cap = 240
	}

	sentences := splitSentences(text)
	if len(sentences) == 0 {
		return truncateWords(text, cap)
	}

	keywordSet := make(map[string]struct{}, len(keywords))
	for _, k := range keywords {
		keywordSet[strings.ToLower(k)] = struct{}{}
	}

	bestIdx, bestScore := 0, -1
	for i, s := range sentences {
		if len(s) > cap {
			continue
		}
		score := countKeywordHits(s, keywordSet)
		if score > bestScore {
			bestScore = score
			bestIdx = i
		}
	}

	if bestScore <= 0 {
		return truncateWords(sentences[0], cap)
	}

	snippet := sentences[bestIdx]
	for _, extendIdx := range []int{bestIdx + 1, bestIdx - 1} {
		if extendIdx < 0 || extendIdx >= len(sentences) {
			continue
		}
		candidate := snippet
		if extendIdx > bestIdx {
			candidate = candidate + " " + sentences[extendIdx]
		} else {
			candidate = sentences[extendIdx] + " " + candidate
		}
		if len(candidate) <= cap {
			snippet = candidate
		}
	}
	return truncateWords(snippet, cap)
}

func splitSentences(text string) []string {
	parts := sentenceSplitPattern.Split(text, -1)
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}

func countKeywordHits(sentence string, keywordSet map[string]struct{}) int {
	tokens := searchutil.TokenizeSimple(sentence)
	count := 0
	for t := range tokens {
		if _, ok := keywordSet[t]; ok {
			count++
		}
	}
	return count
}

func truncateWords(s string, cap int) string {
	if len(s) <= cap {
		return s
	}
	if cap <= 3 {
		return s[:cap]
	}
	truncated := s[:cap-3]
	if idx := strings.LastIndexByte(truncated, ' '); idx > 0 {
		truncated = truncated[:idx]
	}
	return truncated + "..."
}

// renumberCitationID renders an internal N-prefixed marker as the external
// bracketed integer form.
func renumberCitationID(internal string) string {
	n := strings.TrimPrefix(internal, "N")
	if _, err := strconv.Atoi(n); err != nil {
		return internal
	}
	return n
}
