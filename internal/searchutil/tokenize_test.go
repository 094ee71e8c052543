package searchutil

import "testing"

func TestTokenizeSimple_SplitsOnPunctuationAndLowercases(t *testing.T) {
	tokens := TokenizeSimple("Hello, World! RAG-101")
	want := []string{"hello", "world", "rag", "101"}
	for _, w := range want {
		if _, ok := tokens[w]; !ok {
			t.Errorf("expected token %q, got %v", w, tokens)
		}
	}
	if len(tokens) != len(want) {
		t.Errorf("expected %d tokens, got %d: %v", len(want), len(tokens), tokens)
	}
}

func TestTokenizeSimple_SplitsCJKIntoSingleCharacters(t *testing.T) {
	tokens := TokenizeSimple("检索增强")
	if len(tokens) != 4 {
		t.Fatalf("expected 4 single-character tokens, got %d: %v", len(tokens), tokens)
	}
	for _, r := range []string{"检", "索", "增", "强"} {
		if _, ok := tokens[r]; !ok {
			t.Errorf("expected token %q", r)
		}
	}
}

func TestJaccard(t *testing.T) {
	a := TokenizeSimple("the quick brown fox")
	b := TokenizeSimple("the quick red fox")

	got := Jaccard(a, b)
	// intersection = {the, quick, fox} = 3, union = {the,quick,brown,fox,red} = 5
	want := 3.0 / 5.0
	if got != want {
		t.Errorf("Jaccard = %v, want %v", got, want)
	}
}

func TestJaccard_EmptySetsReturnZero(t *testing.T) {
	if got := Jaccard(map[string]struct{}{}, map[string]struct{}{"x": {}}); got != 0 {
		t.Errorf("expected 0 for empty set, got %v", got)
	}
}

func TestOverlapCoefficient_FullyContainedSetScoresOne(t *testing.T) {
	a := TokenizeSimple("rag is great")
	b := TokenizeSimple("rag is absolutely great for retrieval")

	got := OverlapCoefficient(a, b)
	if got != 1.0 {
		t.Errorf("expected fully-contained smaller set to score 1.0, got %v", got)
	}
}

func TestClampFloat(t *testing.T) {
	cases := []struct {
		v, min, max, want float64
	}{
		{5, 0, 1, 1},
		{-5, 0, 1, 0},
		{0.5, 0, 1, 0.5},
	}
	for _, c := range cases {
		if got := ClampFloat(c.v, c.min, c.max); got != c.want {
			t.Errorf("ClampFloat(%v, %v, %v) = %v, want %v", c.v, c.min, c.max, got, c.want)
		}
	}
}
