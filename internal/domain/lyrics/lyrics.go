// Package lyrics provides lyrics line types and LRC parsing.
package lyrics

import (
	"regexp"
	"sort"
	"strconv"
	"strings"
)

// Line represents a single line of synced lyrics.
type Line struct {
	StartTimeMs int64  // Start timestamp in milliseconds
	Text        string // Lyrics text
}

// lrcLine matches an LRC line like "[02:29.16] some text".
var lrcLine = regexp.MustCompile(`^\[([^\]]+)\](.*)$`)

// ParseLRC parses raw LRC content into an ordered sequence of lines.
// Malformed lines (missing or unparseable timestamps, empty text) are
// dropped rather than failing the whole parse. The result is sorted by
// start timestamp so downstream scanning can rely on line order.
func ParseLRC(raw string) []Line {
	if raw == "" {
		return nil
	}

	var lines []Line
	for _, l := range strings.Split(strings.TrimSpace(raw), "\n") {
		l = strings.TrimSpace(l)
		if l == "" || !strings.HasPrefix(l, "[") {
			continue
		}

		m := lrcLine.FindStringSubmatch(l)
		if m == nil {
			continue
		}

		text := strings.TrimSpace(m[2])
		if text == "" {
			continue
		}

		ms, ok := parseTimestamp(m[1])
		if !ok {
			continue
		}

		lines = append(lines, Line{StartTimeMs: ms, Text: text})
	}

	sort.SliceStable(lines, func(i, j int) bool {
		return lines[i].StartTimeMs < lines[j].StartTimeMs
	})
	return lines
}

// parseTimestamp converts an LRC timestamp ("mm:ss.cc" or "mm:ss")
// to milliseconds.
func parseTimestamp(s string) (int64, bool) {
	parts := strings.SplitN(s, ":", 2)
	if len(parts) != 2 {
		return 0, false
	}

	minutes, err := strconv.ParseInt(strings.TrimSpace(parts[0]), 10, 64)
	if err != nil || minutes < 0 {
		return 0, false
	}

	secParts := strings.SplitN(parts[1], ".", 2)
	seconds, err := strconv.ParseInt(strings.TrimSpace(secParts[0]), 10, 64)
	if err != nil || seconds < 0 {
		return 0, false
	}

	var centis int64
	if len(secParts) == 2 {
		centis, err = strconv.ParseInt(strings.TrimSpace(secParts[1]), 10, 64)
		if err != nil || centis < 0 {
			return 0, false
		}
	}

	return (minutes*60+seconds)*1000 + centis*10, true
}
