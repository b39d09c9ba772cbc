package utils

import (
	"regexp"
	"strings"
	"unicode"
)

// NormalizeText lower-cases s and collapses every run of non-alphanumeric
// characters into a single space
func NormalizeText(s string) string {
	var b strings.Builder
	space := true
	for _, r := range strings.ToLower(s) {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			b.WriteRune(r)
			space = false
			continue
		}
		if !space {
			b.WriteRune(' ')
			space = true
		}
	}
	return strings.TrimSpace(b.String())
}

// ContainsFold reports whether text contains term, ignoring case and punctuation
func ContainsFold(text, term string) bool {
	t := NormalizeText(term)
	if t == "" {
		return false
	}
	return strings.Contains(NormalizeText(text), t)
}

// ContainsWord reports whether term occurs in text on word boundaries,
// ignoring case and punctuation. "Box Hill" matches "box hill north" but
// "Hill" does not match "Hillside".
func ContainsWord(text, term string) bool {
	_, ok := IndexWord(text, term)
	return ok
}

// IndexWord returns the word-boundary position of term within the normalized text
func IndexWord(text, term string) (int, bool) {
	t := NormalizeText(term)
	if t == "" {
		return -1, false
	}
	padded := " " + NormalizeText(text) + " "
	idx := strings.Index(padded, " "+t+" ")
	if idx < 0 {
		return -1, false
	}
	return idx, true
}

// FindWord returns the span of text that matches term on word boundaries,
// spelled as it appears in text. Punctuation between words may differ.
func FindWord(text, term string) (string, bool) {
	words := strings.Fields(NormalizeText(term))
	if len(words) == 0 {
		return "", false
	}
	for k, w := range words {
		words[k] = regexp.QuoteMeta(w)
	}
	re, err := regexp.Compile(`(?i)(?:^|[^\pL\pN])(` + strings.Join(words, `[^\pL\pN]+`) + `)(?:[^\pL\pN]|$)`)
	if err != nil {
		return "", false
	}
	m := re.FindStringSubmatch(text)
	if m == nil {
		return "", false
	}
	return m[1], true
}

// FuzzyMatchTerm reports whether text mentions term or one of its aliases,
// ignoring case. Terms of three characters or fewer must appear as whole
// words so abbreviations like "NT" do not match "want".
func FuzzyMatchTerm(text, term string, aliases map[string][]string) bool {
	if matchTerm(text, term) {
		return true
	}
	for _, alias := range aliases[strings.ToUpper(strings.TrimSpace(term))] {
		if matchTerm(text, alias) {
			return true
		}
	}
	return false
}

func matchTerm(text, term string) bool {
	if len(NormalizeText(term)) <= 3 {
		return ContainsWord(text, term)
	}
	return ContainsFold(text, term)
}
