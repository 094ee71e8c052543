package ragpipeline

import (
	"context"
	"regexp"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/noteqa/ragcore/internal/config"
	"github.com/noteqa/ragcore/internal/searchutil"
	"github.com/noteqa/ragcore/internal/types"
)

const stageConfidenceScorer = "CONFIDENCE_SCORER"

var uncertaintyPhrases = []string{"don't have", "do not have", "no notes about", "couldn't find anything", "could not find anything"}

var numberPattern = regexp.MustCompile(`\b\d+(\.\d+)?\b`)
var factualVerbPattern = regexp.MustCompile(`(?i)\b(is|are|was|were|will|has|have|had|shows?|indicates?|means?|requires?|costs?|took|started|ended)\b`)
var absolutePattern = regexp.MustCompile(`(?i)\b(always|never|every|all|none|must|definitely)\b`)

// ConfidenceScorer computes the four weighted sub-scores and derives an
// overall confidence level.
type ConfidenceScorer struct {
	cfg config.ConfidenceConfig
}

// NewConfidenceScorer builds and registers the stage.
func NewConfidenceScorer(em *EventManager, cfg config.ConfidenceConfig) *ConfidenceScorer {
	s := &ConfidenceScorer{cfg: cfg}
	em.Register(s)
	return s
}

func (s *ConfidenceScorer) ActivationEvents() []types.EventType {
	return []types.EventType{types.ScoreConfidence}
}

func (s *ConfidenceScorer) OnEvent(ctx context.Context, eventType types.EventType, rc *types.RequestContext, next func() *PluginError) *PluginError {
	start := time.Now()

	breakdown := s.Score(rc.FinalText, rc.SurvivingCitations, rc.Analysis.Intent)
	rc.ConfidenceBreakdown = breakdown

	if len(rc.SurvivingCitations) == 0 || isUncertaintyAnswer(rc.FinalText) {
		rc.Confidence = types.ConfidenceNone
		rc.EnhancedConfidence = types.EnhancedConfidenceVeryLow
	} else {
		rc.EnhancedConfidence = s.level(breakdown.Overall)
		rc.Confidence = collapseConfidence(rc.EnhancedConfidence)
	}

	rc.RecordTiming(stageConfidenceScorer, time.Since(start))
	return next()
}

// Score computes the four sub-scores and their weighted sum.
func (s *ConfidenceScorer) Score(text string, citations []*types.Citation, intent types.Intent) types.ConfidenceBreakdown {
	density := s.citationDensity(text)
	relevance := s.sourceRelevance(citations)
	coherence := s.answerCoherence(text, intent)
	claimSupport := s.claimSupport(text)

	overall := s.cfg.CitationDensityWeight*density +
		s.cfg.SourceRelevanceWeight*relevance +
		s.cfg.AnswerCoherenceWeight*coherence +
		s.cfg.ClaimSupportWeight*claimSupport

	return types.ConfidenceBreakdown{
		CitationDensity: density,
		SourceRelevance: relevance,
		AnswerCoherence: coherence,
		ClaimSupport:    claimSupport,
		Overall:         searchutil.ClampFloat(overall, 0, 1),
	}
}

// citationDensity is peaked at CitationDensityPeak: ratios below the peak
// scale linearly up to 1.0, ratios above are mildly penalized back down.
func (s *ConfidenceScorer) citationDensity(text string) float64 {
	sentences := splitSentences(text)
	var substantial, cited int
	for _, sent := range sentences {
		if len(sent) <= 15 {
			continue
		}
		substantial++
		if markerPattern.MatchString(sent) {
			cited++
		}
	}
	if substantial == 0 {
		return 0
	}
	ratio := float64(cited) / float64(substantial)
	peak := s.cfg.CitationDensityPeak
	if peak <= 0 {
		peak = 0.7
	}
	if ratio <= peak {
		return ratio / peak
	}
	overshoot := (ratio - peak) / (1 - peak)
	return searchutil.ClampFloat(1.0-0.3*overshoot, 0, 1)
}

func (s *ConfidenceScorer) sourceRelevance(citations []*types.Citation) float64 {
	if len(citations) == 0 {
		return 0
	}
	sum := 0.0
	for _, c := range citations {
		sum += c.Relevance
	}
	return searchutil.ClampFloat(sum/float64(len(citations)), 0, 1)
}

func (s *ConfidenceScorer) answerCoherence(text string, intent types.Intent) float64 {
	score := 1.0
	trimmed := strings.TrimSpace(text)
	if trimmed == "" {
		return 0
	}
	last, _ := utf8.DecodeLastRuneInString(trimmed)
	if last != '.' && last != '!' && last != '?' && last != '"' && last != '。' {
		score -= 0.15
	}
	if markerOwnLine.MatchString(text) {
		score -= 0.15
	}
	if regexp.MustCompile(`(\[N\d+\]\s*){4,}`).MatchString(text) {
		score -= 0.15
	}
	if len(trimmed) < 40 {
		score -= 0.2
	}
	if (intent == types.IntentList || intent == types.IntentActionItem) && !bulletLinePattern.MatchString(text) {
		score -= 0.15
	}
	return searchutil.ClampFloat(score, 0, 1)
}

func (s *ConfidenceScorer) claimSupport(text string) float64 {
	sentences := splitSentences(text)
	var factual, supported int
	for _, sent := range sentences {
		if !isFactualLooking(sent) {
			continue
		}
		factual++
		if markerPattern.MatchString(sent) {
			supported++
		}
	}
	if factual == 0 {
		return 1.0
	}
	return float64(supported) / float64(factual)
}

func isFactualLooking(sentence string) bool {
	return factualVerbPattern.MatchString(sentence) || numberPattern.MatchString(sentence) || absolutePattern.MatchString(sentence)
}

func (s *ConfidenceScorer) level(overall float64) types.EnhancedConfidenceLevel {
	switch {
	case overall >= s.cfg.VeryHighThreshold:
		return types.EnhancedConfidenceVeryHigh
	case overall >= s.cfg.HighThreshold:
		return types.EnhancedConfidenceHigh
	case overall >= s.cfg.MediumThreshold:
		return types.EnhancedConfidenceMedium
	case overall >= s.cfg.LowThreshold:
		return types.EnhancedConfidenceLow
	default:
		return types.EnhancedConfidenceVeryLow
	}
}

func collapseConfidence(e types.EnhancedConfidenceLevel) types.ConfidenceLevel {
	switch e {
	case types.EnhancedConfidenceVeryHigh, types.EnhancedConfidenceHigh:
		return types.ConfidenceHigh
	case types.EnhancedConfidenceMedium:
		return types.ConfidenceMedium
	case types.EnhancedConfidenceLow:
		return types.ConfidenceLow
	default:
		return types.ConfidenceNone
	}
}

func isUncertaintyAnswer(text string) bool {
	lower := strings.ToLower(text)
	for _, p := range uncertaintyPhrases {
		if strings.Contains(lower, p) {
			return true
		}
	}
	return false
}

// PerCitationScore is one claim-citation pair's weighted relevance score,
// computed by the optional per-citation scorer, run only when the caller
// enables citation verification.
type PerCitationScore struct {
	CitationID     string
	LexicalOverlap float64
	NGramOverlap   float64
	EntityAlign    float64
	Semantic       float64
	Overall        float64
}

// ScorePerCitation computes the optional per-citation breakdown for one
// claim sentence against its cited source text. The semantic term is
// supplied by the caller (cosine similarity against the source embedding)
// and defaults to 0 when unavailable.
func ScorePerCitation(claim, sourceText string, semanticCosine float64) PerCitationScore {
	claimTokens := searchutil.TokenizeSimple(claim)
	sourceTokens := searchutil.TokenizeSimple(sourceText)
	lexical := searchutil.Jaccard(claimTokens, sourceTokens)

	ngram := ngramOverlap(claim, sourceText)
	entity := entityAlignment(claim, sourceText)

	overall := 0.25*lexical + 0.20*ngram + 0.15*entity + 0.40*semanticCosine
	return PerCitationScore{
		LexicalOverlap: lexical,
		NGramOverlap:   ngram,
		EntityAlign:    entity,
		Semantic:       semanticCosine,
		Overall:        searchutil.ClampFloat(overall, 0, 1),
	}
}

func ngrams(tokens []string, n int) map[string]struct{} {
	out := make(map[string]struct{})
	for i := 0; i+n <= len(tokens); i++ {
		out[strings.Join(tokens[i:i+n], "_")] = struct{}{}
	}
	return out
}

func ngramOverlap(a, b string) float64 {
	at := strings.Fields(strings.ToLower(a))
	bt := strings.Fields(strings.ToLower(b))
	bi := jaccardSet(ngrams(at, 2), ngrams(bt, 2))
	tri := jaccardSet(ngrams(at, 3), ngrams(bt, 3))
	return 0.4*bi + 0.6*tri
}

func jaccardSet(a, b map[string]struct{}) float64 {
	if len(a) == 0 || len(b) == 0 {
		return 0
	}
	inter := 0
	for k := range a {
		if _, ok := b[k]; ok {
			inter++
		}
	}
	union := len(a) + len(b) - inter
	if union == 0 {
		return 0
	}
	return float64(inter) / float64(union)
}

var capitalizedWord = regexp.MustCompile(`\b[A-Z][a-zA-Z]{2,}\b`)

func entityAlignment(claim, source string) float64 {
	claimEntities := make(map[string]struct{})
	for _, m := range capitalizedWord.FindAllString(claim, -1) {
		claimEntities[strings.ToLower(m)] = struct{}{}
	}
	if len(claimEntities) == 0 {
		return 1.0
	}
	sourceLower := strings.ToLower(source)
	hit := 0
	for e := range claimEntities {
		if strings.Contains(sourceLower, e) {
			hit++
		}
	}
	return float64(hit) / float64(len(claimEntities))
}
