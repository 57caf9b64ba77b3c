package trigger

import (
	"regexp"
	"sort"
	"strings"
)

// MatchSpan reports one trigger word occurrence within a text.
type MatchSpan struct {
	Word      string
	CharStart int
	CharEnd   int
}

// Match finds every non-overlapping, case-insensitive, word-boundary
// occurrence of each word in words within text. Multiple distinct
// words on the same text and repeated occurrences of the same word are
// all reported. Returns nil for empty text or an empty word set.
func Match(text string, words []string) []MatchSpan {
	if text == "" || len(words) == 0 {
		return nil
	}

	lower := strings.ToLower(text)
	var spans []MatchSpan
	for _, word := range words {
		word = strings.ToLower(strings.TrimSpace(word))
		if word == "" {
			continue
		}

		re, err := regexp.Compile(`\b` + regexp.QuoteMeta(word) + `\b`)
		if err != nil {
			continue
		}

		for _, loc := range re.FindAllStringIndex(lower, -1) {
			spans = append(spans, MatchSpan{
				Word:      word,
				CharStart: loc[0],
				CharEnd:   loc[1],
			})
		}
	}

	sort.SliceStable(spans, func(i, j int) bool {
		return spans[i].CharStart < spans[j].CharStart
	})
	return spans
}

// ContainsAny reports whether text contains at least one word-boundary
// occurrence of any word in words. Fast path for plain lyrics checks.
func ContainsAny(text string, words []string) bool {
	if text == "" || len(words) == 0 {
		return false
	}

	lower := strings.ToLower(text)
	for _, word := range words {
		word = strings.ToLower(strings.TrimSpace(word))
		if word == "" {
			continue
		}
		re, err := regexp.Compile(`\b` + regexp.QuoteMeta(word) + `\b`)
		if err != nil {
			continue
		}
		if re.MatchString(lower) {
			return true
		}
	}
	return false
}
