package ragpipeline

import (
	"testing"

	"github.com/noteqa/ragcore/internal/types"
)

func TestRenumberCitations_DensifiesToOneThroughK(t *testing.T) {
	text := "First fact [N3]. Second fact [N7]. Repeated [N3]."
	surviving := []*types.Citation{
		{ID: "N3", Snippet: "three"},
		{ID: "N7", Snippet: "seven"},
	}

	rewritten, citations, mods := renumberCitations(text, surviving)

	if rewritten != "First fact [N1]. Second fact [N2]. Repeated [N1]." {
		t.Fatalf("unexpected renumbered text: %q", rewritten)
	}
	if len(citations) != 2 || citations[0].ID != "N1" || citations[1].ID != "N2" {
		t.Fatalf("unexpected citations: %+v", citations)
	}
	if citations[0].Snippet != "three" || citations[1].Snippet != "seven" {
		t.Fatalf("expected renumbering to preserve which source each ID names, got %+v", citations)
	}
	if len(mods) == 0 {
		t.Error("expected a renumbered_citations modification to be recorded")
	}
}

func TestRenumberCitations_AlreadyDenseRecordsNoMod(t *testing.T) {
	text := "First [N1]. Second [N2]."
	surviving := []*types.Citation{{ID: "N1"}, {ID: "N2"}}

	_, _, mods := renumberCitations(text, surviving)
	if len(mods) != 0 {
		t.Errorf("expected no mods for an already-dense sequence, got %v", mods)
	}
}

func TestRenumberCitations_DropsReferencesToNonSurvivingCitations(t *testing.T) {
	text := "Fact one [N1]. Fact two [N2]."
	surviving := []*types.Citation{{ID: "N1"}} // N2 did not survive validation

	_, citations, _ := renumberCitations(text, surviving)
	if len(citations) != 1 {
		t.Fatalf("expected only the surviving citation, got %+v", citations)
	}
}

func TestEnforceListConsistency_UnifiesToMajorityStyle(t *testing.T) {
	text := "1. First item\n- Second item\n- Third item\n- Fourth item"
	var mods []string

	out := enforceListConsistency(text, types.IntentList, &mods)

	if out == text {
		t.Fatal("expected mixed-style list to be rewritten")
	}
	if len(mods) == 0 {
		t.Error("expected unified_list_style modification to be recorded")
	}
}

func TestEnforceListConsistency_LeavesNonListIntentAlone(t *testing.T) {
	text := "1. First item\n- Second item"
	var mods []string

	out := enforceListConsistency(text, types.IntentQuestion, &mods)
	if out != text {
		t.Error("expected non-list intent to be left unchanged")
	}
	if len(mods) != 0 {
		t.Error("expected no mods recorded for non-list intent")
	}
}

func TestEnforceListConsistency_SingleStyleIsLeftAlone(t *testing.T) {
	text := "- First item\n- Second item\n- Third item"
	var mods []string

	out := enforceListConsistency(text, types.IntentList, &mods)
	if out != text {
		t.Error("expected a uniform bullet list to be left unchanged")
	}
}

func TestClipTrailingCitationOnlySentence_RemovesBareCitationTail(t *testing.T) {
	text := "The project shipped on time. [N1]"
	out := clipTrailingCitationOnlySentence(text)
	if out == text {
		t.Error("expected trailing citation-only sentence to be clipped")
	}
}
