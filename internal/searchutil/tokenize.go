// Package searchutil provides small text-scoring primitives shared by the
// rerank and MMR diversification stages, built from first principles from
// their call sites.
package searchutil

import (
	"strings"
	"unicode"
)

// TokenizeSimple lowercases text and splits it on non-letter/non-digit
// runes, returning the resulting token set. CJK runs are split into single
// characters, since word-boundary tokenization needs a segmenter (see
// types.Jieba) that callers can layer on top when available.
func TokenizeSimple(text string) map[string]struct{} {
	tokens := make(map[string]struct{})
	var b strings.Builder

	flush := func() {
		if b.Len() > 0 {
			tokens[b.String()] = struct{}{}
			b.Reset()
		}
	}

	for _, r := range strings.ToLower(text) {
		switch {
		case unicode.IsLetter(r) && r > unicode.MaxASCII:
			// Treat each CJK/other-script letter as its own token.
			flush()
			tokens[string(r)] = struct{}{}
		case unicode.IsLetter(r) || unicode.IsDigit(r):
			b.WriteRune(r)
		default:
			flush()
		}
	}
	flush()
	return tokens
}

// Jaccard returns the Jaccard similarity coefficient |a∩b| / |a∪b| of two
// token sets, used for MMR redundancy and citation-overlap scoring.
func Jaccard(a, b map[string]struct{}) float64 {
	if len(a) == 0 || len(b) == 0 {
		return 0
	}
	intersection := 0
	for t := range a {
		if _, ok := b[t]; ok {
			intersection++
		}
	}
	union := len(a) + len(b) - intersection
	if union == 0 {
		return 0
	}
	return float64(intersection) / float64(union)
}

// OverlapCoefficient returns the Szymkiewicz-Simpson overlap coefficient
// |a∩b| / min(|a|,|b|), used by the citation validator to test whether a
// sentence's claim is actually supported by its cited chunk.
func OverlapCoefficient(a, b map[string]struct{}) float64 {
	if len(a) == 0 || len(b) == 0 {
		return 0
	}
	intersection := 0
	for t := range a {
		if _, ok := b[t]; ok {
			intersection++
		}
	}
	minLen := len(a)
	if len(b) < minLen {
		minLen = len(b)
	}
	if minLen == 0 {
		return 0
	}
	return float64(intersection) / float64(minLen)
}

// ClampFloat restricts v to the closed interval [minV, maxV].
func ClampFloat(v, minV, maxV float64) float64 {
	if v < minV {
		return minV
	}
	if v > maxV {
		return maxV
	}
	return v
}
