package ragpipeline

import (
	"strings"
	"testing"

	"github.com/noteqa/ragcore/internal/config"
	"github.com/noteqa/ragcore/internal/types"
)

func testCitationConfig() config.CitationConfig {
	return config.CitationConfig{
		OverlapThreshold:        0.2,
		SuspiciousRatio:         0.5,
		MaxMarkersPerSentence:   3,
		RepairCoverageThreshold: 0.5,
		MinSourcesForRepair:     3,
		StrictCoverageThreshold: 0.5,
	}
}

func testSourcesPack() *types.SourcesPack {
	chunkA := &types.Chunk{ID: "chunk-a", Text: "The invoice total was five hundred forty dollars due on the fifteenth"}
	chunkB := &types.Chunk{ID: "chunk-b", Text: "Bananas are a great source of potassium and fiber"}

	return &types.SourcesPack{
		Ordered: []*types.ScoredChunk{{Chunk: chunkA}, {Chunk: chunkB}},
		ByID: map[string]*types.Citation{
			"N1": {ID: "N1", ChunkID: "chunk-a"},
			"N2": {ID: "N2", ChunkID: "chunk-b"},
		},
		Order: []string{"N1", "N2"},
	}
}

func TestCitationValidator_KeepsCitationWithGoodOverlap(t *testing.T) {
	v := &CitationValidator{cfg: testCitationConfig()}
	pack := testSourcesPack()

	answer := "The invoice total was five hundred forty dollars [N1]."
	result := v.Validate(answer, pack, false)

	if len(result.SurvivingCitations) != 1 || result.SurvivingCitations[0].ID != "N1" {
		t.Fatalf("expected N1 to survive, got %+v", result.SurvivingCitations)
	}
	if !result.ContractCompliant {
		t.Error("expected a contract-compliant result (no invalid IDs referenced)")
	}
}

func TestCitationValidator_DropsDanglingMarker(t *testing.T) {
	v := &CitationValidator{cfg: testCitationConfig()}
	pack := testSourcesPack()

	answer := "The invoice total was five hundred forty dollars [N99]."
	result := v.Validate(answer, pack, false)

	if len(result.InvalidIDs) != 1 || result.InvalidIDs[0] != "N99" {
		t.Fatalf("expected N99 flagged invalid, got %+v", result.InvalidIDs)
	}
	if result.ContractCompliant {
		t.Error("expected non-compliant result when an invalid marker is referenced")
	}
	if result.Text != "The invoice total was five hundred forty dollars." {
		t.Errorf("expected dangling marker stripped from text, got %q", result.Text)
	}
}

func TestCitationValidator_DropsLowOverlapCitation(t *testing.T) {
	v := &CitationValidator{cfg: testCitationConfig()}
	pack := testSourcesPack()

	// N2 cites the banana chunk but the claim is entirely unrelated.
	answer := "The invoice total was five hundred forty dollars [N2]."
	result := v.Validate(answer, pack, false)

	if len(result.SurvivingCitations) != 0 {
		t.Fatalf("expected the mismatched citation to be dropped, got %+v", result.SurvivingCitations)
	}
	if len(result.DroppedIDs) != 1 || result.DroppedIDs[0] != "N2" {
		t.Errorf("expected N2 recorded as dropped, got %+v", result.DroppedIDs)
	}
}

func TestCitationValidator_NeedsRepairWhenNoCitationsSurvive(t *testing.T) {
	v := &CitationValidator{cfg: testCitationConfig()}
	result := ValidationResult{SurvivingCitations: nil}
	if !v.needsRepair(result, testSourcesPack()) {
		t.Error("expected repair to be needed when zero citations survive")
	}
}

func TestCitationValidator_NoRepairWhenCoverageIsHigh(t *testing.T) {
	v := &CitationValidator{cfg: testCitationConfig()}
	result := ValidationResult{
		SurvivingCitations: []*types.Citation{{ID: "N1"}},
		CoveragePercent:    0.9,
	}
	if v.needsRepair(result, testSourcesPack()) {
		t.Error("expected no repair needed for well-covered, valid answer")
	}
}

func TestCollapseDuplicateAdjacent(t *testing.T) {
	got := collapseDuplicateAdjacent("The answer [N1] [N1] is clear.")
	want := "The answer [N1] is clear."
	if got != want {
		t.Errorf("got %q, want %q", got, want)
	}
}

func TestNormalizeSpacing_CollapsesRunsAndTrimsSpaceBeforePunctuation(t *testing.T) {
	got := normalizeSpacing("Hello   world .  Goodbye .\n\n\n\nNext")
	if got != "Hello world. Goodbye.\n\nNext" {
		t.Errorf("got %q", got)
	}
}

func TestLimitMarkersPerSentence_PreservesNewlinesWhenCappingMarkers(t *testing.T) {
	text := "Claim one [N1] [N2] [N1] [N2] here.\n\nSecond paragraph stays intact.\nThird line too."
	got := limitMarkersPerSentence(text, 2)

	want := "Claim one [N1] [N2]   here.\n\nSecond paragraph stays intact.\nThird line too."
	if got != want {
		t.Errorf("got %q, want %q", got, want)
	}
	if !strings.Contains(got, "\n\n") {
		t.Error("expected paragraph break preserved")
	}
}

func TestLimitMarkersPerSentence_UnderCapLeavesTextUntouched(t *testing.T) {
	text := "One claim [N1].\n\nAnother claim [N2]."
	got := limitMarkersPerSentence(text, 3)
	if got != text {
		t.Errorf("expected text unchanged when under cap, got %q", got)
	}
}

func TestStripMarkers(t *testing.T) {
	got := stripMarkers("Claim [N1] continues [N2].")
	want := "Claim  continues ."
	if got != want {
		t.Errorf("got %q, want %q", got, want)
	}
}
