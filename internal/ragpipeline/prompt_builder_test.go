package ragpipeline

import (
	"context"
	"strings"
	"testing"

	"github.com/noteqa/ragcore/internal/types"
)

func testPack() *types.SourcesPack {
	chunk1 := &types.Chunk{ID: "c1", Text: "The invoice was due on the fifteenth."}
	chunk2 := &types.Chunk{ID: "c2", Text: "Potassium is found in bananas."}
	return &types.SourcesPack{
		Ordered: []*types.ScoredChunk{{Chunk: chunk1}, {Chunk: chunk2}},
		ByID: map[string]*types.Citation{
			"N1": {ID: "N1", ChunkID: "c1", Relevance: 0.9},
			"N2": {ID: "N2", ChunkID: "c2", Relevance: 0.4},
		},
		Order: []string{"N1", "N2"},
	}
}

func TestRenderSources_IncludesEachSourceAndStars(t *testing.T) {
	out := renderSources(testPack())
	if !strings.Contains(out, "[N1]") || !strings.Contains(out, "[N2]") {
		t.Fatalf("expected both source markers present, got %q", out)
	}
	if !strings.Contains(out, "invoice") || !strings.Contains(out, "bananas") {
		t.Errorf("expected source text included, got %q", out)
	}
}

func TestRelevanceStars_Thresholds(t *testing.T) {
	cases := []struct {
		score float64
		want  int
	}{
		{0.9, 3},
		{0.5, 2},
		{0.1, 1},
		{0.0, 0},
	}
	for _, c := range cases {
		if got := relevanceStars(c.score); got != c.want {
			t.Errorf("relevanceStars(%v) = %d, want %d", c.score, got, c.want)
		}
	}
}

func TestIntentDirective_CoversEachIntent(t *testing.T) {
	cases := map[types.Intent]string{
		types.IntentList:       "list",
		types.IntentSummarize:  "summary",
		types.IntentDecision:   "decision",
		types.IntentActionItem: "action items",
		types.IntentSearch:     "directly",
	}
	for intent, want := range cases {
		got := intentDirective(intent)
		if !strings.Contains(got, want) {
			t.Errorf("intentDirective(%v) = %q, expected to mention %q", intent, got, want)
		}
	}
}

func TestGrammarInstruction_MentionsMarkerGrammar(t *testing.T) {
	g := grammarInstruction()
	if !strings.Contains(g, "[N<integer>]") {
		t.Errorf("expected the citation marker grammar to be spelled out, got %q", g)
	}
}

func TestPromptBuilder_Build_LegacyUsesPlainQuestionFormat(t *testing.T) {
	p := &PromptBuilder{tier: PromptTierLegacy}
	system, user := p.Build(PromptTierLegacy, "what is the invoice date?", types.IntentSearch, testPack(), "", nil)
	if !strings.Contains(system, grammarInstruction()) {
		t.Error("expected legacy system prompt to include the marker grammar")
	}
	if !strings.HasPrefix(user, "Question: what is the invoice date?") {
		t.Errorf("unexpected legacy user prompt: %q", user)
	}
}

func TestPromptBuilder_Build_V2IncludesHistoryWhenPresent(t *testing.T) {
	p := &PromptBuilder{tier: PromptTierV2}
	_, user := p.Build(PromptTierV2, "what next?", types.IntentActionItem, testPack(), "", []string{"user: hi", "assistant: hello"})
	if !strings.Contains(user, "Conversation so far:") {
		t.Errorf("expected history section in v2 prompt, got %q", user)
	}
	if !strings.Contains(user, "user: hi") {
		t.Errorf("expected history entries included, got %q", user)
	}
}

func TestPromptBuilder_Build_V2OmitsHistorySectionWhenEmpty(t *testing.T) {
	p := &PromptBuilder{tier: PromptTierV2}
	_, user := p.Build(PromptTierV2, "what next?", types.IntentSearch, testPack(), "", nil)
	if strings.Contains(user, "Conversation so far:") {
		t.Errorf("expected no history section when history is empty, got %q", user)
	}
}

func TestPromptBuilder_Build_CustomSystemPromptOverridesDefault(t *testing.T) {
	p := &PromptBuilder{tier: PromptTierV2}
	system, _ := p.Build(PromptTierV2, "q", types.IntentSearch, testPack(), "You are Bob.", nil)
	if system != "You are Bob." {
		t.Errorf("expected custom system prompt to override default, got %q", system)
	}
}

func TestPromptBuilder_Build_AgenticMentionsStepByStepReasoning(t *testing.T) {
	p := &PromptBuilder{tier: PromptTierAgentic}
	system, user := p.Build(PromptTierAgentic, "q", types.IntentSearch, testPack(), "", nil)
	if !strings.Contains(system, "Reason step by step") {
		t.Errorf("expected agentic system prompt to mention step-by-step reasoning, got %q", system)
	}
	if !strings.Contains(user, "Task: answer the user's question") {
		t.Errorf("expected agentic user prompt framing, got %q", user)
	}
}

func TestPromptBuilder_Build_DefaultsToV2ForUnknownTier(t *testing.T) {
	p := &PromptBuilder{tier: PromptTierV2}
	_, userV2 := p.Build(PromptTierV2, "q", types.IntentSearch, testPack(), "", nil)
	_, userUnknown := p.Build(PromptTier("bogus"), "q", types.IntentSearch, testPack(), "", nil)
	if userV2 != userUnknown {
		t.Error("expected an unrecognized tier to fall back to the v2 builder")
	}
}

func TestNewPromptBuilder_DefaultsToV2WhenTierEmpty(t *testing.T) {
	em := NewEventManager()
	p := NewPromptBuilder(em, "")
	if p.tier != PromptTierV2 {
		t.Errorf("expected default tier v2, got %v", p.tier)
	}
}

func TestPromptBuilder_OnEvent_PopulatesSystemAndUserPrompt(t *testing.T) {
	em := NewEventManager()
	NewPromptBuilder(em, PromptTierLegacy)

	rc := &types.RequestContext{
		Request:  &types.AnswerRequest{Question: "what is the invoice date?"},
		Analysis: &types.QueryAnalysis{Intent: types.IntentSearch},
		Pack:     testPack(),
	}
	pe := em.Trigger(context.Background(), types.BuildPrompt, rc)
	if pe != nil {
		t.Fatalf("unexpected plugin error: %v", pe)
	}
	if rc.SystemPrompt == "" || rc.UserPrompt == "" {
		t.Fatal("expected both system and user prompts to be populated")
	}
}
