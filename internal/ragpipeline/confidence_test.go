package ragpipeline

import (
	"testing"

	"github.com/noteqa/ragcore/internal/config"
	"github.com/noteqa/ragcore/internal/types"
)

func testConfidenceConfig() config.ConfidenceConfig {
	return config.ConfidenceConfig{
		CitationDensityWeight: 0.3,
		SourceRelevanceWeight: 0.3,
		AnswerCoherenceWeight: 0.2,
		ClaimSupportWeight:    0.2,
		CitationDensityPeak:   0.7,
		VeryHighThreshold:     0.9,
		HighThreshold:         0.75,
		MediumThreshold:       0.5,
		LowThreshold:          0.25,
	}
}

func TestConfidenceScorer_WellCitedAnswerScoresHigh(t *testing.T) {
	s := NewConfidenceScorer(NewEventManager(), testConfidenceConfig())

	text := "The invoice total was $540 [N1]. Payment is due on the 15th [N2]."
	citations := []*types.Citation{{ID: "N1", Relevance: 0.9}, {ID: "N2", Relevance: 0.85}}

	breakdown := s.Score(text, citations, types.IntentQuestion)
	if breakdown.Overall < 0.6 {
		t.Errorf("expected a well-cited answer to score reasonably high, got %+v", breakdown)
	}
}

func TestConfidenceScorer_UncitedFactualAnswerScoresLow(t *testing.T) {
	s := NewConfidenceScorer(NewEventManager(), testConfidenceConfig())

	text := "The invoice total was $540. Payment is due on the 15th."
	breakdown := s.Score(text, nil, types.IntentQuestion)
	if breakdown.Overall > 0.3 {
		t.Errorf("expected an uncited answer to score low, got %+v", breakdown)
	}
}

func TestConfidenceScorer_LevelThresholds(t *testing.T) {
	s := &ConfidenceScorer{cfg: testConfidenceConfig()}
	cases := []struct {
		overall float64
		want    types.EnhancedConfidenceLevel
	}{
		{0.95, types.EnhancedConfidenceVeryHigh},
		{0.8, types.EnhancedConfidenceHigh},
		{0.6, types.EnhancedConfidenceMedium},
		{0.3, types.EnhancedConfidenceLow},
		{0.1, types.EnhancedConfidenceVeryLow},
	}
	for _, c := range cases {
		if got := s.level(c.overall); got != c.want {
			t.Errorf("level(%v) = %v, want %v", c.overall, got, c.want)
		}
	}
}

func TestIsUncertaintyAnswer(t *testing.T) {
	if !isUncertaintyAnswer("I don't have any notes about that topic.") {
		t.Error("expected uncertainty phrase to be detected")
	}
	if isUncertaintyAnswer("The meeting is scheduled for Tuesday.") {
		t.Error("expected confident answer not to be flagged")
	}
}

func TestScorePerCitation_ExactMatchScoresHigh(t *testing.T) {
	claim := "The Acme contract was signed in March"
	source := "The Acme contract was signed in March by both parties."

	score := ScorePerCitation(claim, source, 1.0)
	if score.Overall < 0.7 {
		t.Errorf("expected high overall score for near-identical text, got %+v", score)
	}
}

func TestScorePerCitation_UnrelatedTextScoresLow(t *testing.T) {
	claim := "The rocket launch was delayed by weather"
	source := "Bananas are a good source of potassium."

	score := ScorePerCitation(claim, source, 0.0)
	if score.Overall > 0.3 {
		t.Errorf("expected low overall score for unrelated text, got %+v", score)
	}
}
