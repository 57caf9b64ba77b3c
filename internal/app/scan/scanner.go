// Package scan turns lyrics and active trigger categories into
// persisted trigger occurrences and drives songs through the scan
// state machine.
package scan

import (
	"github.com/arieluchka/spotify-ocd-saver/internal/domain/lyrics"
	"github.com/arieluchka/spotify-ocd-saver/internal/domain/trigger"
)

// CategoryWord identifies one trigger word hit within one category.
type CategoryWord struct {
	CategoryID int64
	Word       string
}

// PlainResult is the outcome of scanning unsynced lyrics. It carries
// no timing; the caller decides how to persist contamination.
type PlainResult struct {
	HasTriggers bool
	Matches     []CategoryWord
}

// ScanSynced scans ordered synced lyrics lines against the active
// categories and returns occurrence candidates. Trigger granularity is
// line-level: each occurrence spans its line, from the line's start to
// the next line's start. The final line extends to the track duration,
// or start+tailMs when the duration is unknown or inconsistent.
// Candidates sharing (category, word, start) are deduplicated, so a
// word repeated within one line yields a single occurrence while a
// repeated chorus line yields one occurrence per timestamp.
func ScanSynced(lines []lyrics.Line, cats []trigger.Category, songID, durationMs, tailMs int64) []trigger.Occurrence {
	if len(lines) == 0 || len(cats) == 0 {
		return nil
	}

	type dedupKey struct {
		categoryID int64
		word       string
		startMs    int64
	}
	seen := make(map[dedupKey]struct{})

	var occs []trigger.Occurrence
	for i, line := range lines {
		startMs := line.StartTimeMs
		endMs := startMs + tailMs
		if i+1 < len(lines) {
			endMs = lines[i+1].StartTimeMs
		} else if durationMs > startMs {
			endMs = durationMs
		}
		if endMs < startMs {
			// Out-of-order residue; skip the line rather than emit an
			// invalid range.
			continue
		}

		for _, cat := range cats {
			words := cat.NormalizedWords()
			if len(words) == 0 {
				continue
			}
			for _, span := range trigger.Match(line.Text, words) {
				key := dedupKey{categoryID: cat.ID, word: span.Word, startMs: startMs}
				if _, ok := seen[key]; ok {
					continue
				}
				seen[key] = struct{}{}
				occs = append(occs, trigger.Occurrence{
					CategoryID:  cat.ID,
					SongID:      songID,
					UserID:      cat.UserID,
					Word:        span.Word,
					StartTimeMs: startMs,
					EndTimeMs:   endMs,
				})
			}
		}
	}
	return occs
}

// ScanPlain scans unsynced lyrics text against the active categories.
func ScanPlain(text string, cats []trigger.Category) PlainResult {
	if text == "" || len(cats) == 0 {
		return PlainResult{}
	}

	var result PlainResult
	seen := make(map[CategoryWord]struct{})
	for _, cat := range cats {
		words := cat.NormalizedWords()
		if !trigger.ContainsAny(text, words) {
			continue
		}
		for _, span := range trigger.Match(text, words) {
			cw := CategoryWord{CategoryID: cat.ID, Word: span.Word}
			if _, ok := seen[cw]; ok {
				continue
			}
			seen[cw] = struct{}{}
			result.Matches = append(result.Matches, cw)
		}
	}
	result.HasTriggers = len(result.Matches) > 0
	return result
}
