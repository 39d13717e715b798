package extract

import (
	"strings"
	"unicode"
)

// CleanText prepares raw engine output for pattern matching: control
// characters dropped, whitespace runs collapsed, currency and punctuation
// symbols relevant to invoices preserved.
func CleanText(text string) string {
	var b strings.Builder
	b.Grow(len(text))
	lastSpace := false
	for _, r := range text {
		switch {
		case r == '\n':
			b.WriteRune('\n')
			lastSpace = false
		case unicode.IsControl(r):
			// drop
		case unicode.IsSpace(r):
			if !lastSpace {
				b.WriteRune(' ')
				lastSpace = true
			}
		case unicode.IsLetter(r) || unicode.IsDigit(r) || keepSymbol(r):
			b.WriteRune(r)
			lastSpace = false
		default:
			if !lastSpace {
				b.WriteRune(' ')
				lastSpace = true
			}
		}
	}
	lines := strings.Split(b.String(), "\n")
	for i := range lines {
		lines[i] = strings.TrimSpace(lines[i])
	}
	return strings.TrimSpace(strings.Join(lines, "\n"))
}

// flatten joins all lines into one for patterns that may span line breaks.
func flatten(text string) string {
	return strings.Join(strings.Fields(text), " ")
}

func keepSymbol(r rune) bool {
	switch r {
	case '.', ',', ';', ':', '(', ')', '[', ']', '{', '}', '€', '$', '£', '%', '@', '-', '+', '*', '/', '_', '=', '|', '"', '\'', '!', '?', '&', '§', '#':
		return true
	}
	return false
}

func trimMatch(s string) string {
	return strings.Trim(strings.TrimSpace(s), ".,:;")
}
