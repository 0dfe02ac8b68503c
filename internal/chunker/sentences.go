package chunker

import (
	"strings"
	"unicode"
)

// sentence is one segmented sentence with its offsets into the source text.
type sentence struct {
	// start and end are character offsets into the source text, [start, end).
	start int
	end   int
	// text is the trimmed sentence content.
	text string
}

// splitSentences segments text into sentences using basic punctuation
// heuristics: a sentence ends at a run of terminators (.!?) followed by
// whitespace, or at a paragraph break (blank line). Decimal points and
// mid-token periods do not split. The segmentation is deterministic.
func splitSentences(text string) []sentence {
	var out []sentence
	start := 0
	i := 0
	n := len(text)

	emit := func(end int) {
		raw := text[start:end]
		trimmed := strings.TrimSpace(raw)
		if trimmed == "" {
			start = end
			return
		}
		lead := leadingWhitespace(raw)
		out = append(out, sentence{
			start: start + lead,
			end:   start + lead + len(trimmed),
			text:  collapseNewlines(trimmed),
		})
		start = end
	}

	for i < n {
		c := text[i]

		// Paragraph break: a blank line is always a sentence boundary.
		if c == '\n' && isBlankLineAhead(text, i) {
			emit(i)
			// Skip the whole blank-line run.
			for i < n && (text[i] == '\n' || text[i] == ' ' || text[i] == '\t') {
				i++
			}
			start = i
			continue
		}

		if c == '.' || c == '!' || c == '?' {
			// Consume the terminator run ("...", "?!").
			j := i + 1
			for j < n && (text[j] == '.' || text[j] == '!' || text[j] == '?') {
				j++
			}
			// A period directly followed by a digit is a decimal or a
			// section number, not a sentence end.
			if c == '.' && j < n && text[j] >= '0' && text[j] <= '9' {
				i = j
				continue
			}
			if j >= n || isSpaceByte(text[j]) {
				emit(j)
				i = j
				continue
			}
			i = j
			continue
		}

		i++
	}
	emit(n)

	return out
}

// isBlankLineAhead reports whether the newline at position i is followed by
// another newline with only spaces/tabs in between.
func isBlankLineAhead(text string, i int) bool {
	j := i + 1
	for j < len(text) && (text[j] == ' ' || text[j] == '\t') {
		j++
	}
	return j < len(text) && text[j] == '\n'
}

// isSpaceByte reports whether b is an ASCII whitespace byte.
func isSpaceByte(b byte) bool {
	return b == ' ' || b == '\t' || b == '\n' || b == '\r'
}

// leadingWhitespace returns the byte length of the leading whitespace of s.
func leadingWhitespace(s string) int {
	return len(s) - len(strings.TrimLeftFunc(s, unicode.IsSpace))
}

// collapseNewlines replaces internal newlines with single spaces so chunk
// text reads as continuous prose regardless of source line wrapping.
func collapseNewlines(s string) string {
	fields := strings.Fields(s)
	return strings.Join(fields, " ")
}

// countWords returns the number of whitespace-separated words in s.
func countWords(s string) int {
	return len(strings.Fields(s))
}
