package ragpipeline

import (
	"context"
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/noteqa/ragcore/internal/types"
)

const stagePostProcessor = "POST_PROCESSOR"

var bareIntMarker = regexp.MustCompile(`\[(\d+)\]`)
var markerOwnLine = regexp.MustCompile(`(?m)^\s*\[N\d+\]\s*$`)

// PostProcessor normalizes citation format and whitespace, enforces
// list/paragraph consistency, and renumbers surviving citations to a dense
// 1..K ordering. Renumbering happens exactly once, at the last step, and
// must preserve which source each surviving identifier names.
type PostProcessor struct{}

// NewPostProcessor builds and registers the stage.
func NewPostProcessor(em *EventManager) *PostProcessor {
	p := &PostProcessor{}
	em.Register(p)
	return p
}

func (p *PostProcessor) ActivationEvents() []types.EventType {
	return []types.EventType{types.PostProcess}
}

func (p *PostProcessor) OnEvent(ctx context.Context, eventType types.EventType, rc *types.RequestContext, next func() *PluginError) *PluginError {
	start := time.Now()

	text := bareIntMarker.ReplaceAllString(rc.ValidatedText, "[N$1]")

	renumbered, citations, mods := renumberCitations(text, rc.SurvivingCitations)
	renumbered = enforceListConsistency(renumbered, rc.Analysis.Intent, &mods)
	renumbered = clipTrailingCitationOnlySentence(renumbered)
	renumbered = normalizeSpacing(renumbered)

	rc.FinalText = renumbered
	rc.SurvivingCitations = citations
	rc.PostProcessingMods = mods

	rc.RecordTiming(stagePostProcessor, time.Since(start))
	return next()
}

// renumberCitations maps each surviving internal ID (N-prefixed, in first-
// appearance order within the text) to a dense 1..K sequence, rewriting
// both the text markers and the Citation records' IDs. Citations the text
// no longer references are dropped from the returned slice but not
// reported as a post-processing modification (the validator already
// accounted for drops).
func renumberCitations(text string, surviving []*types.Citation) (string, []*types.Citation, []string) {
	byOldID := make(map[string]*types.Citation, len(surviving))
	for _, c := range surviving {
		byOldID[c.ID] = c
	}

	order := []string{}
	seen := make(map[string]struct{})
	for _, m := range markerPattern.FindAllStringSubmatch(text, -1) {
		old := "N" + m[1]
		if _, ok := byOldID[old]; !ok {
			continue
		}
		if _, dup := seen[old]; dup {
			continue
		}
		seen[old] = struct{}{}
		order = append(order, old)
	}

	renameMap := make(map[string]string, len(order))
	newCitations := make([]*types.Citation, 0, len(order))
	for i, old := range order {
		newID := fmt.Sprintf("N%d", i+1)
		renameMap[old] = newID
		c := *byOldID[old]
		c.ID = newID
		newCitations = append(newCitations, &c)
	}

	rewritten := markerPattern.ReplaceAllStringFunc(text, func(m string) string {
		sub := markerPattern.FindStringSubmatch(m)
		old := "N" + sub[1]
		if newID, ok := renameMap[old]; ok {
			return "[" + newID + "]"
		}
		return m
	})

	var mods []string
	if len(order) > 0 && fmt.Sprintf("N%d", len(order)) != order[len(order)-1] {
		mods = append(mods, "renumbered_citations")
	}

	return rewritten, newCitations, mods
}

var bulletLinePattern = regexp.MustCompile(`(?m)^\s*([-*•]|\d+[.)])\s+`)

// enforceListConsistency detects a mixed bullet/numbered style for
// list/action-item intents and converts every item to the dominant style.
func enforceListConsistency(text string, intent types.Intent, mods *[]string) string {
	if intent != types.IntentList && intent != types.IntentActionItem {
		return text
	}
	lines := strings.Split(text, "\n")
	bulletCount, numberCount := 0, 0
	for _, l := range lines {
		m := bulletLinePattern.FindStringSubmatch(l)
		if m == nil {
			continue
		}
		if _, err := strconv.Atoi(strings.TrimRight(m[1], ".)")); err == nil {
			numberCount++
		} else {
			bulletCount++
		}
	}
	if bulletCount == 0 || numberCount == 0 {
		return text
	}

	dominant := "-"
	useNumbers := numberCount >= bulletCount
	counter := 1
	for i, l := range lines {
		if !bulletLinePattern.MatchString(l) {
			continue
		}
		rest := bulletLinePattern.ReplaceAllString(l, "")
		if useNumbers {
			lines[i] = fmt.Sprintf("%d. %s", counter, rest)
			counter++
		} else {
			lines[i] = dominant + " " + rest
		}
	}
	*mods = append(*mods, "unified_list_style")
	return strings.Join(lines, "\n")
}

func clipTrailingCitationOnlySentence(text string) string {
	sentences := splitSentences(strings.TrimSpace(text))
	if len(sentences) == 0 {
		return text
	}
	last := sentences[len(sentences)-1]
	if stripMarkers(last) == "" || strings.TrimSpace(stripMarkers(last)) == "" {
		sentences = sentences[:len(sentences)-1]
		return strings.Join(sentences, " ")
	}
	return text
}
