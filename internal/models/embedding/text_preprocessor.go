package embedding

import (
	"regexp"
	"strings"
	"unicode"
	"unicode/utf8"
)

// MaxTextLength bounds how much of a chunk's text is sent to an embedding
// backend. Notes chunks routinely carry CJK text, where a byte-oriented
// truncation at this length would split a multi-byte rune and corrupt the
// trailing character; truncateText below walks rune boundaries instead.
const MaxTextLength = 8000

// PreprocessTextForEmbedding cleans and normalizes a chunk's text before it
// is sent to an embedding backend, preventing the stray control characters
// and run-on whitespace that otherwise surface as NaN vectors.
func PreprocessTextForEmbedding(text string) string {
	if text == "" {
		return text
	}

	text = removeControlCharacters(text)
	text = normalizeWhitespace(text)
	if utf8.RuneCountInString(text) > MaxTextLength {
		text = truncateText(text, MaxTextLength)
	}
	return strings.TrimSpace(text)
}

// PreprocessChunkText is PreprocessTextForEmbedding plus a report of how
// many trailing runes were dropped, so a caller that also tracks a chunk's
// citation EndOffset can tell whether the embedded text actually spans the
// full chunk or was cut short.
func PreprocessChunkText(text string) (cleaned string, trimmedRunes int) {
	before := utf8.RuneCountInString(text)
	cleaned = PreprocessTextForEmbedding(text)
	after := utf8.RuneCountInString(cleaned)
	if before > after {
		trimmedRunes = before - after
	}
	return cleaned, trimmedRunes
}

func removeControlCharacters(text string) string {
	return strings.Map(func(r rune) rune {
		if r == '\n' || r == '\t' || r == '\r' {
			return r
		}
		if unicode.IsControl(r) {
			return -1
		}
		return r
	}, text)
}

var (
	spaceRegex   = regexp.MustCompile(`[ \t]+`)
	newlineRegex = regexp.MustCompile(`\n{3,}`)
)

func normalizeWhitespace(text string) string {
	text = spaceRegex.ReplaceAllString(text, " ")
	text = newlineRegex.ReplaceAllString(text, "\n\n")
	return text
}

var sentenceEndings = []string{"。", ".", "！", "!", "？", "?", "\n"}

// truncateText cuts text down to maxRunes runes, preferring to break on a
// sentence boundary within the trailing 100-rune window so the text sent
// for embedding doesn't end mid-clause. Cutting is done on rune indices, never a
// raw byte offset, so a trailing multi-byte CJK character is never split.
func truncateText(text string, maxRunes int) string {
	runes := []rune(text)
	if len(runes) <= maxRunes {
		return text
	}

	truncated := string(runes[:maxRunes])

	windowStart := maxRunes - 100
	if windowStart < 0 {
		windowStart = 0
	}
	window := string(runes[windowStart:maxRunes])

	bestPos := -1
	for _, ending := range sentenceEndings {
		if pos := strings.LastIndex(window, ending); pos != -1 {
			actual := windowStart + utf8.RuneCountInString(window[:pos]) + utf8.RuneCountInString(ending)
			if actual > bestPos {
				bestPos = actual
			}
		}
	}

	if bestPos > windowStart {
		return string(runes[:bestPos])
	}
	return truncated
}

// TruncateTextWithRatio truncates text to a given fraction of its original
// rune length (never below 100 runes), used by the Ollama embedder's retry
// path when the backend reports NaN/Inf values for a batch.
func TruncateTextWithRatio(text string, ratio float64) string {
	if ratio >= 1.0 {
		return text
	}

	runeLen := utf8.RuneCountInString(text)
	newLen := int(float64(runeLen) * ratio)
	if newLen < 100 {
		newLen = 100
	}
	return truncateText(text, newLen)
}
