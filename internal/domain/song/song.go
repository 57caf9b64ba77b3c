// Package song provides the Song domain entity and its scan lifecycle.
package song

import "time"

// ScanStatus represents the lyrics scan lifecycle stage of a song.
type ScanStatus int

const (
	StatusNotScanned ScanStatus = iota // No lyrics lookup attempted yet
	StatusNoResults                    // Lyrics lookup found nothing
	StatusPlainOnly                    // Only plain (unsynced) lyrics available
	StatusSynced                       // Synced (timestamped) lyrics scanned
)

// String returns the string representation of the status.
func (s ScanStatus) String() string {
	switch s {
	case StatusNotScanned:
		return "not_scanned"
	case StatusNoResults:
		return "no_results"
	case StatusPlainOnly:
		return "plain_only"
	case StatusSynced:
		return "synced"
	default:
		return "unknown"
	}
}

// Terminal reports whether the status is a completed scan outcome.
// NotScanned is the only non-terminal status: NoResults and PlainOnly
// are retried on a caller-owned cooldown, not on every sighting.
func (s ScanStatus) Terminal() bool {
	return s != StatusNotScanned
}

// CanTransition reports whether moving to the given status is a valid
// forward transition. Status never regresses here; regressions happen
// only through explicit category-word invalidation in storage.
func (s ScanStatus) CanTransition(to ScanStatus) bool {
	if s == StatusNotScanned {
		return true
	}
	// Plain-only songs upgrade when synced lyrics become available.
	return s == StatusPlainOnly && to == StatusSynced
}

// NeedsScan reports whether a song with the given status is owed a
// scan. categoriesChanged is supplied by the caller when an active
// category's word list changed since the song was last scanned.
func NeedsScan(status ScanStatus, categoriesChanged bool) bool {
	if categoriesChanged {
		return true
	}
	return status == StatusNotScanned
}

// Song represents a track known to the system.
type Song struct {
	ID            int64
	Title         string
	Artist        string
	Album         string
	DurationMs    int64
	SpotifyID     string // External track ID, unique
	ISRC          string
	LRCLibID      string // Provider ID of the synced lyrics result
	PlainLRCLibID string // Provider ID of the plain lyrics result
	ScanStatus    ScanStatus
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// TrackInfo describes a track as reported by the playback or queue
// collaborator, before it exists as a Song.
type TrackInfo struct {
	SpotifyID  string
	Title      string
	Artist     string
	Album      string
	DurationMs int64
	ISRC       string
}
