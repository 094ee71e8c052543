package ragpipeline

import (
	"context"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/noteqa/ragcore/internal/config"
	"github.com/noteqa/ragcore/internal/searchutil"
	"github.com/noteqa/ragcore/internal/types"
)

const stageQueryAnalyzer = "QUERY_ANALYZER"

// stopWords is the closed stop-word set the keyword extractor drops.
var stopWords = map[string]struct{}{
	"a": {}, "an": {}, "the": {}, "is": {}, "are": {}, "was": {}, "were": {},
	"be": {}, "been": {}, "being": {}, "to": {}, "of": {}, "in": {}, "on": {},
	"at": {}, "for": {}, "with": {}, "by": {}, "from": {}, "and": {}, "or": {},
	"but": {}, "if": {}, "do": {}, "does": {}, "did": {}, "can": {}, "could": {},
	"will": {}, "would": {}, "should": {}, "i": {}, "me": {}, "my": {}, "we": {},
	"you": {}, "your": {}, "it": {}, "its": {}, "this": {}, "that": {}, "these": {},
	"those": {}, "what": {}, "which": {}, "who": {}, "whom": {}, "about": {}, "as": {},
	"into": {}, "than": {}, "then": {}, "so": {}, "not": {}, "have": {}, "has": {}, "had": {},
}

var identifierPattern = regexp.MustCompile(`^[A-Z][A-Z0-9_]*_[A-Z0-9_]*$`)

type timeHintRule struct {
	pattern *regexp.Regexp
	build   func(matches []string, now time.Time) *types.TimeHint
}

var timeHintRules = []timeHintRule{
	{regexp.MustCompile(`(?i)\btoday\b`), func(_ []string, now time.Time) *types.TimeHint {
		return &types.TimeHint{DaysBack: 1}
	}},
	{regexp.MustCompile(`(?i)\byesterday\b`), func(_ []string, now time.Time) *types.TimeHint {
		return &types.TimeHint{DaysBack: 2}
	}},
	{regexp.MustCompile(`(?i)\b(this|last)\s+week\b`), func(_ []string, now time.Time) *types.TimeHint {
		return &types.TimeHint{DaysBack: 14}
	}},
	{regexp.MustCompile(`(?i)\b(this|last)\s+month\b`), func(_ []string, now time.Time) *types.TimeHint {
		return &types.TimeHint{DaysBack: 60}
	}},
	{regexp.MustCompile(`(?i)\bin\s+the\s+last\s+(\d+)\s+hours?\b`), func(m []string, now time.Time) *types.TimeHint {
		return &types.TimeHint{DaysBack: 1}
	}},
	{regexp.MustCompile(`(?i)\bin\s+the\s+last\s+(\d+)\s+days?\b`), func(m []string, now time.Time) *types.TimeHint {
		n, _ := strconv.Atoi(m[1])
		return &types.TimeHint{DaysBack: n}
	}},
	{regexp.MustCompile(`(?i)\bin\s+the\s+last\s+(\d+)\s+weeks?\b`), func(m []string, now time.Time) *types.TimeHint {
		n, _ := strconv.Atoi(m[1])
		return &types.TimeHint{DaysBack: n * 7}
	}},
}

type intentRule struct {
	pattern *regexp.Regexp
	intent  types.Intent
}

var intentRules = []intentRule{
	{regexp.MustCompile(`(?i)^\s*summari[sz]e\b`), types.IntentSummarize},
	{regexp.MustCompile(`(?i)^\s*(list|show me|enumerate)\b`), types.IntentList},
	{regexp.MustCompile(`(?i)\bwhat did (we|i) decide\b|\bdecision\b`), types.IntentDecision},
	{regexp.MustCompile(`(?i)\btodo\b|\baction item\b|\bwhat do i need to do\b`), types.IntentActionItem},
	{regexp.MustCompile(`(?i)^\s*(what|when|where|who|why|how|which|is|are|do|does|did|can|could)\b.*\?\s*$`), types.IntentQuestion},
}

// QueryAnalyzer is the pipeline's first stage: it classifies intent,
// extracts keywords/entities/time hints, and computes an adaptive
// candidate count. It never fails — worst case it falls back to intent
// "search" over every non-stop-word token of length >= 3.
type QueryAnalyzer struct {
	cfg config.RetrievalConfig
}

// NewQueryAnalyzer builds and registers the Query Analyzer stage.
func NewQueryAnalyzer(em *EventManager, cfg config.RetrievalConfig) *QueryAnalyzer {
	a := &QueryAnalyzer{cfg: cfg}
	em.Register(a)
	return a
}

func (a *QueryAnalyzer) ActivationEvents() []types.EventType {
	return []types.EventType{types.AnalyzeQuery}
}

func (a *QueryAnalyzer) OnEvent(ctx context.Context, eventType types.EventType, rc *types.RequestContext, next func() *PluginError) *PluginError {
	start := time.Now()
	rc.Analysis = a.Analyze(rc.Request.Question)
	rc.RecordTiming(stageQueryAnalyzer, time.Since(start))
	return next()
}

// Analyze runs the rule-based classifier over raw question text.
func (a *QueryAnalyzer) Analyze(raw string) *types.QueryAnalysis {
	normalized := normalizeQuery(raw)

	intent := types.IntentSearch
	for _, rule := range intentRules {
		if rule.pattern.MatchString(raw) {
			intent = rule.intent
			break
		}
	}

	keywords, entities := extractKeywordsAndEntities(raw)
	if len(keywords) == 0 {
		intent = types.IntentSearch
		keywords = fallbackKeywords(raw)
	}

	var hint *types.TimeHint
	now := time.Now()
	for _, rule := range timeHintRules {
		if m := rule.pattern.FindStringSubmatch(raw); m != nil {
			hint = rule.build(m, now)
			break
		}
	}

	adaptiveK := a.cfg.BaseK
	if intent == types.IntentList || intent == types.IntentSummarize {
		adaptiveK += a.cfg.BaseK / 2
	}
	if len(keywords) > 6 {
		adaptiveK += 2
	}
	if adaptiveK > a.cfg.MaxK {
		adaptiveK = a.cfg.MaxK
	}

	return &types.QueryAnalysis{
		Normalized:  normalized,
		Keywords:    keywords,
		Intent:      intent,
		TimeHint:    hint,
		Entities:    entities,
		AdaptiveK:   adaptiveK,
		RerankWidth: adaptiveK * a.cfg.RerankWidthMultiplier,
	}
}

func normalizeQuery(raw string) string {
	return strings.Join(strings.Fields(strings.TrimSpace(raw)), " ")
}

// extractKeywordsAndEntities lowercases and strips punctuation, drops stop
// words, and deduplicates; uppercase-with-underscore identifiers in the raw
// text are preserved verbatim as both a keyword and an entity.
func extractKeywordsAndEntities(raw string) ([]string, []string) {
	fields := strings.Fields(raw)
	seen := make(map[string]struct{})
	var keywords, entities []string

	for _, f := range fields {
		trimmed := strings.Trim(f, ".,!?;:()[]{}\"'")
		if identifierPattern.MatchString(trimmed) {
			if _, ok := seen[trimmed]; !ok {
				seen[trimmed] = struct{}{}
				keywords = append(keywords, trimmed)
				entities = append(entities, trimmed)
			}
			continue
		}
		for token := range searchutil.TokenizeSimple(trimmed) {
			if _, stop := stopWords[token]; stop {
				continue
			}
			if len(token) < 2 {
				continue
			}
			if _, ok := seen[token]; ok {
				continue
			}
			seen[token] = struct{}{}
			keywords = append(keywords, token)
		}
	}
	return keywords, entities
}

// fallbackKeywords returns every non-stop-word token of length >= 3, the
// degradation path; it is empty when the question has no such token.
func fallbackKeywords(raw string) []string {
	seen := make(map[string]struct{})
	var out []string
	for token := range searchutil.TokenizeSimple(raw) {
		if _, stop := stopWords[token]; stop {
			continue
		}
		if len(token) < 3 {
			continue
		}
		if _, ok := seen[token]; ok {
			continue
		}
		seen[token] = struct{}{}
		out = append(out, token)
	}
	return out
}
