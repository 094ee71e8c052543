package ragpipeline

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/noteqa/ragcore/internal/types"
)

const stagePromptBuilder = "PROMPT_BUILDER"

// PromptTier selects one of the three prompt-construction strategies the
// builder supports.
type PromptTier string

const (
	PromptTierLegacy   PromptTier = "legacy"
	PromptTierV2       PromptTier = "v2"
	PromptTierAgentic  PromptTier = "agentic"
)

// PromptBuilder turns the query, intent, and Sources Pack into a system
// instruction and a user prompt, imposing the citation-marker grammar the
// validator depends on.
type PromptBuilder struct {
	tier PromptTier
}

// NewPromptBuilder builds and registers the stage with the given default
// tier; an empty tier means v2 (see DESIGN.md, Open Question (a)).
func NewPromptBuilder(em *EventManager, tier PromptTier) *PromptBuilder {
	if tier == "" {
		tier = PromptTierV2
	}
	p := &PromptBuilder{tier: tier}
	em.Register(p)
	return p
}

func (p *PromptBuilder) ActivationEvents() []types.EventType {
	return []types.EventType{types.BuildPrompt}
}

func (p *PromptBuilder) OnEvent(ctx context.Context, eventType types.EventType, rc *types.RequestContext, next func() *PluginError) *PluginError {
	start := time.Now()

	tier := p.tier
	system, user := p.Build(tier, rc.Request.Question, rc.Analysis.Intent, rc.Pack, rc.Request.CustomSystemPrompt, rc.Request.ConversationHistory)
	rc.SystemPrompt = system
	rc.UserPrompt = user

	rc.RecordTiming(stagePromptBuilder, time.Since(start))
	return next()
}

// Build produces the system instruction and user prompt for one of the
// three tiers; all tiers preserve the citation-marker grammar.
func (p *PromptBuilder) Build(tier PromptTier, question string, intent types.Intent, pack *types.SourcesPack, customSystem string, history []string) (string, string) {
	switch tier {
	case PromptTierAgentic:
		return p.buildAgentic(question, intent, pack, customSystem, history)
	case PromptTierLegacy:
		return p.buildLegacy(question, intent, pack, customSystem)
	default:
		return p.buildV2(question, intent, pack, customSystem, history)
	}
}

func grammarInstruction() string {
	return "Every factual claim must be followed by one or more citation markers of the exact form [N<integer>], " +
		"where the integer refers to a source listed below. Group adjacent markers like [N1][N3] when a claim draws " +
		"on more than one source. Never state a claim from the sources without a marker, and never invent a marker " +
		"for a source that is not listed. If the sources do not answer the question, say so plainly instead of " +
		"guessing."
}

func intentDirective(intent types.Intent) string {
	switch intent {
	case types.IntentList:
		return "Format the answer as a bulleted or numbered list of items."
	case types.IntentSummarize:
		return "Write a concise summary covering the key points across sources."
	case types.IntentDecision:
		return "Lead with the decision itself, then the supporting reasoning."
	case types.IntentActionItem:
		return "List concrete action items, each as its own bullet."
	default:
		return "Answer directly and concisely."
	}
}

func renderSources(pack *types.SourcesPack) string {
	var b strings.Builder
	for _, id := range pack.Order {
		c := pack.ByID[id]
		stars := ""
		if c.Relevance > 0 {
			stars = strings.Repeat("*", relevanceStars(c.Relevance))
		}
		fmt.Fprintf(&b, "[%s]%s %s\n", id, stars, noteText(pack, id))
	}
	return b.String()
}

func noteText(pack *types.SourcesPack, id string) string {
	for _, sc := range pack.Ordered {
		c := pack.ByID[id]
		if sc.Chunk.ID == c.ChunkID {
			return sc.Chunk.Text
		}
	}
	return ""
}

func relevanceStars(score float64) int {
	switch {
	case score >= 0.8:
		return 3
	case score >= 0.5:
		return 2
	case score > 0:
		return 1
	default:
		return 0
	}
}

func (p *PromptBuilder) buildLegacy(question string, intent types.Intent, pack *types.SourcesPack, customSystem string) (string, string) {
	system := customSystem
	if system == "" {
		system = "You are a helpful assistant answering questions using only the user's own notes. " + grammarInstruction()
	}
	user := fmt.Sprintf("Question: %s\n\n%s\n\nSources:\n%s", question, intentDirective(intent), renderSources(pack))
	return system, user
}

func (p *PromptBuilder) buildV2(question string, intent types.Intent, pack *types.SourcesPack, customSystem string, history []string) (string, string) {
	system := customSystem
	if system == "" {
		system = "You are the question-answering core of a personal notes assistant.\n" +
			grammarInstruction() + "\n" + intentDirective(intent)
	}

	var b strings.Builder
	if len(history) > 0 {
		b.WriteString("Conversation so far:\n")
		for _, h := range history {
			b.WriteString(h)
			b.WriteString("\n")
		}
		b.WriteString("\n")
	}
	fmt.Fprintf(&b, "Question:\n%s\n\nSources (%d):\n%s", question, pack.Size(), renderSources(pack))
	return system, b.String()
}

func (p *PromptBuilder) buildAgentic(question string, intent types.Intent, pack *types.SourcesPack, customSystem string, history []string) (string, string) {
	system := customSystem
	if system == "" {
		system = "You are an autonomous research assistant over the user's notes. Reason step by step internally, " +
			"but only output the final grounded answer.\n" + grammarInstruction() + "\n" + intentDirective(intent)
	}

	var b strings.Builder
	if len(history) > 0 {
		fmt.Fprintf(&b, "Prior turns:\n%s\n\n", strings.Join(history, "\n"))
	}
	fmt.Fprintf(&b, "Task: answer the user's question using only the numbered sources.\nQuestion: %s\n\nSources:\n%s", question, renderSources(pack))
	return system, b.String()
}
