// Package trigger provides trigger categories, word matching against
// lyrics text, persisted trigger occurrences, and read-time merging of
// occurrences into skip windows.
package trigger

import (
	"strings"
	"time"
)

// Category represents a named, independently toggleable set of trigger
// words. A nil UserID marks a global category shared by every user.
type Category struct {
	ID        int64
	Name      string
	Words     []string
	UserID    *int64
	IsActive  bool
	CreatedAt time.Time
	UpdatedAt time.Time
}

// NormalizedWords returns the category's words lowercased, trimmed and
// deduplicated. Empty entries are dropped.
func (c *Category) NormalizedWords() []string {
	seen := make(map[string]struct{}, len(c.Words))
	out := make([]string, 0, len(c.Words))
	for _, w := range c.Words {
		w = strings.ToLower(strings.TrimSpace(w))
		if w == "" {
			continue
		}
		if _, ok := seen[w]; ok {
			continue
		}
		seen[w] = struct{}{}
		out = append(out, w)
	}
	return out
}

// SameWords reports whether the category's word set equals the given
// list after normalization. Used to detect word-list edits that must
// invalidate previously scanned occurrences.
func (c *Category) SameWords(words []string) bool {
	other := Category{Words: words}
	a, b := c.NormalizedWords(), other.NormalizedWords()
	if len(a) != len(b) {
		return false
	}
	set := make(map[string]struct{}, len(a))
	for _, w := range a {
		set[w] = struct{}{}
	}
	for _, w := range b {
		if _, ok := set[w]; !ok {
			return false
		}
	}
	return true
}
