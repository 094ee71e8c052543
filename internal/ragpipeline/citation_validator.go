package ragpipeline

import (
	"context"
	"regexp"
	"strings"
	"time"

	"github.com/noteqa/ragcore/internal/config"
	"github.com/noteqa/ragcore/internal/searchutil"
	"github.com/noteqa/ragcore/internal/types"
)

const stageCitationValidator = "CITATION_VALIDATOR"

var markerPattern = regexp.MustCompile(`\[N(\d+)\]`)
var blankLineRun = regexp.MustCompile(`\n{3,}`)
var spaceBeforePunct = regexp.MustCompile(`\s+([.,!?;:])`)

// ValidationResult is the outcome of one validator pass, shared by the
// pre-pipeline pass and the post-repair pass.
type ValidationResult struct {
	Text               string
	SurvivingCitations  []*types.Citation
	InvalidIDs         []string
	DroppedIDs         []string
	SuspiciousIDs      []string
	CoveragePercent    float64
	ContractCompliant  bool
	HallucinationCount int
}

// CitationValidator strips dangling, duplicate, and low-overlap citation
// markers and, when warranted, triggers one repair pass through the
// generator.
type CitationValidator struct {
	cfg config.CitationConfig
	gen *GeneratorStage
}

// NewCitationValidator builds and registers the Citation Validator stage.
func NewCitationValidator(em *EventManager, cfg config.CitationConfig, gen *GeneratorStage) *CitationValidator {
	v := &CitationValidator{cfg: cfg, gen: gen}
	em.Register(v)
	return v
}

func (v *CitationValidator) ActivationEvents() []types.EventType {
	return []types.EventType{types.ValidateCitations}
}

func (v *CitationValidator) OnEvent(ctx context.Context, eventType types.EventType, rc *types.RequestContext, next func() *PluginError) *PluginError {
	start := time.Now()

	result := v.Validate(rc.RawAnswer, rc.Pack, false)

	repairAttempted := false
	repairAccepted := false

	if v.needsRepair(result, rc.Pack) {
		repairAttempted = true
		repaired, err := v.repair(ctx, rc, result)
		if err == nil {
			repairedResult := v.Validate(repaired, rc.Pack, true)
			if repairedResult.CoveragePercent > result.CoveragePercent && len(repairedResult.SurvivingCitations) > 0 {
				result = repairedResult
				repairAccepted = true
			}
		}
	}

	rc.ValidatedText = result.Text
	rc.SurvivingCitations = result.SurvivingCitations
	rc.InvalidRemoved = len(result.InvalidIDs)
	rc.DanglingRemoved = len(result.InvalidIDs)
	rc.SuspiciousIDs = result.SuspiciousIDs
	rc.DroppedIDs = result.DroppedIDs
	rc.CoveragePercent = result.CoveragePercent
	rc.ContractCompliant = result.ContractCompliant
	rc.HallucinationsDetected = result.HallucinationCount
	rc.RepairAttempted = repairAttempted
	rc.RepairAccepted = repairAccepted

	rc.RecordTiming(stageCitationValidator, time.Since(start))
	return next()
}

// needsRepair reports whether a repair pass should run: zero valid
// citations, or coverage below 50% with at least three sources offered, or
// any invalid citation was removed.
func (v *CitationValidator) needsRepair(result ValidationResult, pack *types.SourcesPack) bool {
	if len(result.SurvivingCitations) == 0 {
		return true
	}
	if result.CoveragePercent < v.cfg.RepairCoverageThreshold && pack.Size() >= v.cfg.MinSourcesForRepair {
		return true
	}
	if len(result.InvalidIDs) > 0 {
		return true
	}
	return false
}

func (v *CitationValidator) repair(ctx context.Context, rc *types.RequestContext, prior ValidationResult) (string, error) {
	var b strings.Builder
	b.WriteString("Rewrite the following answer so that every factual claim carries a valid citation marker of the ")
	b.WriteString("form [N<integer>], using only the sources listed. Do not invent markers.\n\n")
	b.WriteString("Original answer:\n")
	b.WriteString(prior.Text)
	b.WriteString("\n\nAvailable sources:\n")
	for _, id := range rc.Pack.Order {
		c := rc.Pack.ByID[id]
		b.WriteString("[" + id + "] " + c.Snippet + "\n")
	}
	repairPrompt := b.String()
	return v.gen.repair(ctx, rc.Request.ChatModelID, "You repair citation markers without changing factual content.", repairPrompt)
}

// Validate runs the full validator algorithm against answer text and a
// fixed Sources Pack. strictMode applies the strict drop threshold used
// for the repair-pass re-validation.
func (v *CitationValidator) Validate(answer string, pack *types.SourcesPack, strictMode bool) ValidationResult {
	strippedMap := make(map[string]struct{}, len(pack.Order))
	for _, id := range pack.Order {
		strippedMap[id] = struct{}{}
	}

	var invalid []string
	seenInvalid := make(map[string]struct{})
	validOrder := []string{}
	seenValid := make(map[string]struct{})

	for _, m := range markerPattern.FindAllStringSubmatch(answer, -1) {
		id := "N" + m[1]
		if _, ok := strippedMap[id]; ok {
			if _, dup := seenValid[id]; !dup {
				seenValid[id] = struct{}{}
				validOrder = append(validOrder, id)
			}
			continue
		}
		if _, dup := seenInvalid[id]; !dup {
			seenInvalid[id] = struct{}{}
			invalid = append(invalid, id)
		}
	}

	cleaned := removeDanglingMarkers(answer, strippedMap)
	cleaned = collapseDuplicateAdjacent(cleaned)
	cleaned = limitMarkersPerSentence(cleaned, v.cfg.MaxMarkersPerSentence)
	cleaned = normalizeSpacing(cleaned)

	answerKeywords := searchutil.TokenizeSimple(stripMarkers(cleaned))

	var surviving []*types.Citation
	var suspicious, dropped []string
	threshold := v.cfg.OverlapThreshold
	suspiciousFloor := threshold * v.cfg.SuspiciousRatio

	for _, id := range validOrder {
		citation := pack.ByID[id]
		sourceText := findSourceText(pack, id)
		sourceTokens := searchutil.TokenizeSimple(stripMarkers(sourceText))
		overlap := searchutil.OverlapCoefficient(answerKeywords, sourceTokens)

		switch {
		case overlap < suspiciousFloor:
			dropped = append(dropped, id)
		case overlap < threshold:
			if strictMode {
				dropped = append(dropped, id)
			} else {
				suspicious = append(suspicious, id)
				surviving = append(surviving, citation)
			}
		default:
			surviving = append(surviving, citation)
		}
	}

	if len(dropped) > 0 {
		droppedSet := make(map[string]struct{}, len(dropped))
		for _, id := range dropped {
			droppedSet[id] = struct{}{}
		}
		cleaned = removeSpecificMarkers(cleaned, droppedSet)
		cleaned = normalizeSpacing(cleaned)
	}

	coverage := citationCoverage(cleaned)

	return ValidationResult{
		Text:               cleaned,
		SurvivingCitations: surviving,
		InvalidIDs:         invalid,
		DroppedIDs:         dropped,
		SuspiciousIDs:      suspicious,
		CoveragePercent:    coverage,
		ContractCompliant:  len(invalid) == 0,
		HallucinationCount: countHallucinationMarkers(cleaned),
	}
}

func findSourceText(pack *types.SourcesPack, id string) string {
	citation, ok := pack.ByID[id]
	if !ok {
		return ""
	}
	for _, sc := range pack.Ordered {
		if sc.Chunk.ID == citation.ChunkID {
			return sc.Chunk.Text
		}
	}
	return ""
}

func removeDanglingMarkers(text string, valid map[string]struct{}) string {
	return markerPattern.ReplaceAllStringFunc(text, func(m string) string {
		sub := markerPattern.FindStringSubmatch(m)
		if _, ok := valid["N"+sub[1]]; ok {
			return m
		}
		return ""
	})
}

func removeSpecificMarkers(text string, ids map[string]struct{}) string {
	return markerPattern.ReplaceAllStringFunc(text, func(m string) string {
		sub := markerPattern.FindStringSubmatch(m)
		if _, ok := ids["N"+sub[1]]; ok {
			return ""
		}
		return m
	})
}

func collapseDuplicateAdjacent(text string) string {
	for {
		next := regexp.MustCompile(`(\[N\d+\])\s*\1`).ReplaceAllString(text, "$1")
		if next == text {
			return text
		}
		text = next
	}
}

// limitMarkersPerSentence strips markers beyond cap within each sentence,
// walking the original text by marker position instead of splitting on
// sentence boundaries, so every character outside a stripped marker --
// including newlines and paragraph breaks -- passes through untouched.
func limitMarkersPerSentence(text string, cap int) string {
	boundaries := sentenceSplitPattern.FindAllStringIndex(text, -1)
	boundaryEnd := make([]int, len(boundaries))
	for i, loc := range boundaries {
		boundaryEnd[i] = loc[1]
	}

	var b strings.Builder
	boundaryIdx := 0
	count := 0
	last := 0
	for _, loc := range markerPattern.FindAllStringIndex(text, -1) {
		start, end := loc[0], loc[1]
		for boundaryIdx < len(boundaryEnd) && start >= boundaryEnd[boundaryIdx] {
			boundaryIdx++
			count = 0
		}
		count++
		b.WriteString(text[last:start])
		if count <= cap {
			b.WriteString(text[start:end])
		}
		last = end
	}
	b.WriteString(text[last:])
	return b.String()
}

func normalizeSpacing(text string) string {
	text = spaceBeforePunct.ReplaceAllString(text, "$1")
	text = regexp.MustCompile(`[ \t]+`).ReplaceAllString(text, " ")
	text = blankLineRun.ReplaceAllString(text, "\n\n")
	lines := strings.Split(text, "\n")
	for i := range lines {
		lines[i] = strings.TrimRight(lines[i], " \t")
	}
	return strings.TrimSpace(strings.Join(lines, "\n"))
}

func stripMarkers(text string) string {
	return markerPattern.ReplaceAllString(text, "")
}

// citationCoverage is the fraction of sentences longer than 15 characters
// that carry at least one valid marker.
func citationCoverage(text string) float64 {
	sentences := splitSentences(text)
	var substantial, cited int
	for _, s := range sentences {
		if len(s) <= 15 {
			continue
		}
		substantial++
		if markerPattern.MatchString(s) {
			cited++
		}
	}
	if substantial == 0 {
		return 0
	}
	return float64(cited) / float64(substantial)
}

var hallucinationPhrases = []string{"your notes indicate", "according to your notes", "as your notes show"}

// countHallucinationMarkers flags uncited fabrication phrases near no
// marker, for observability only; it never triggers removal.
func countHallucinationMarkers(text string) int {
	lower := strings.ToLower(text)
	count := 0
	for _, phrase := range hallucinationPhrases {
		idx := 0
		for {
			pos := strings.Index(lower[idx:], phrase)
			if pos < 0 {
				break
			}
			abs := idx + pos
			window := lower[max0(abs-40) : min0(len(lower), abs+len(phrase)+40)]
			if !markerPattern.MatchString(window) {
				count++
			}
			idx = abs + len(phrase)
		}
	}
	return count
}

func max0(v int) int {
	if v < 0 {
		return 0
	}
	return v
}

func min0(a, b int) int {
	if a < b {
		return a
	}
	return b
}
