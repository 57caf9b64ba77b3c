package trigger

import (
	"time"

	"github.com/cockroachdb/errors"
)

// ErrInvalidTimeRange is returned when an occurrence ends before it starts.
var ErrInvalidTimeRange = errors.New("occurrence end time precedes start time")

// Occurrence is one persisted record of a trigger word matching within
// one time span of one song. Raw occurrences are the source of truth;
// skip windows are always re-derived from them at read time.
type Occurrence struct {
	ID          int64
	CategoryID  int64
	SongID      int64
	UserID      *int64 // nil for global-category occurrences
	Word        string
	StartTimeMs int64
	EndTimeMs   int64
	CreatedAt   time.Time
}

// Validate rejects occurrences that violate the time-range invariant.
// Invalid occurrences must never reach storage.
func (o *Occurrence) Validate() error {
	if o.StartTimeMs < 0 {
		return errors.Newf("occurrence start time is negative: %d", o.StartTimeMs)
	}
	if o.EndTimeMs < o.StartTimeMs {
		return errors.Wrapf(ErrInvalidTimeRange, "start=%d end=%d", o.StartTimeMs, o.EndTimeMs)
	}
	return nil
}
