package trigger

import "sort"

// Window is a derived, never-persisted time range produced by merging
// nearby occurrences. Changing the gap tolerance takes effect on the
// next read because windows are recomputed on every read.
type Window struct {
	StartTimeMs int64 `json:"start_time_ms"`
	EndTimeMs   int64 `json:"end_time_ms"`
}

// Contains reports whether the position falls inside the window,
// start-inclusive and end-exclusive.
func (w Window) Contains(positionMs int64) bool {
	return positionMs >= w.StartTimeMs && positionMs < w.EndTimeMs
}

// MergeOccurrences merges overlapping and near-adjacent occurrences
// into minimal skip windows. Two occurrences join the same window when
// the later one starts no more than gapToleranceMs after the earlier
// window ends. The input is not modified; the result is deterministic
// and independent of input order.
func MergeOccurrences(occs []Occurrence, gapToleranceMs int64) []Window {
	if len(occs) == 0 {
		return nil
	}
	if gapToleranceMs < 0 {
		gapToleranceMs = 0
	}

	sorted := make([]Occurrence, len(occs))
	copy(sorted, occs)
	sort.Slice(sorted, func(i, j int) bool {
		if sorted[i].StartTimeMs != sorted[j].StartTimeMs {
			return sorted[i].StartTimeMs < sorted[j].StartTimeMs
		}
		return sorted[i].EndTimeMs < sorted[j].EndTimeMs
	})

	windows := make([]Window, 0, len(sorted))
	cur := Window{StartTimeMs: sorted[0].StartTimeMs, EndTimeMs: sorted[0].EndTimeMs}
	for _, o := range sorted[1:] {
		if o.StartTimeMs <= cur.EndTimeMs+gapToleranceMs {
			if o.EndTimeMs > cur.EndTimeMs {
				cur.EndTimeMs = o.EndTimeMs
			}
			continue
		}
		windows = append(windows, cur)
		cur = Window{StartTimeMs: o.StartTimeMs, EndTimeMs: o.EndTimeMs}
	}
	return append(windows, cur)
}
