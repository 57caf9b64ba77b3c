// Package playback provides the playback snapshot contract consumed
// by the monitoring loop.
package playback

import "github.com/arieluchka/spotify-ocd-saver/internal/domain/song"

// Snapshot represents the playback state at one poll.
type Snapshot struct {
	Track      *song.TrackInfo // nil when nothing is playing
	PositionMs int64
	IsPlaying  bool
}
