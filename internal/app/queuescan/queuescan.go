// Package queuescan runs the background loop that registers upcoming
// queue tracks and scans them ahead of playback, so the monitor
// rarely meets a track without windows.
package queuescan

import (
	"context"
	"time"

	"github.com/rs/zerolog"
	zlog "github.com/rs/zerolog/log"

	"github.com/arieluchka/spotify-ocd-saver/internal/domain/song"
)

// QueueSource reports the upcoming tracks from the playback
// collaborator.
type QueueSource interface {
	GetUpcoming(ctx context.Context) ([]song.TrackInfo, error)
}

// Store is the persistence surface the queue scanner needs.
type Store interface {
	UpsertSong(ctx context.Context, info song.TrackInfo) (*song.Song, error)
	UpdateSongISRC(ctx context.Context, id int64, isrc string) error
}

// Scanner runs scan passes for registered songs.
type Scanner interface {
	ScanSong(ctx context.Context, songID int64, userID *int64, force bool) (song.ScanStatus, error)
}

// Config holds queue scanner tunables.
type Config struct {
	Interval time.Duration
	// RetryNoResults re-attempts lyrics lookup for songs that found
	// nothing previously, using the polling interval as the cooldown.
	RetryNoResults bool
}

// Runner polls the queue on a fixed interval. It owns no state beyond
// the loop itself; idempotence comes from the storage layer's upsert
// and scan-commit semantics, so overlapping track lists across polls
// never produce duplicate rows.
type Runner struct {
	source  QueueSource
	store   Store
	scanner Scanner
	cfg     Config
	logger  zerolog.Logger
}

// NewRunner creates a queue scan runner.
func NewRunner(source QueueSource, store Store, scanner Scanner, cfg Config) *Runner {
	if cfg.Interval <= 0 {
		cfg.Interval = 5 * time.Minute
	}
	return &Runner{
		source:  source,
		store:   store,
		scanner: scanner,
		cfg:     cfg,
		logger:  zlog.With().Str("component", "queuescan").Logger(),
	}
}

// Run polls until the context is cancelled. The first pass runs
// immediately.
func (r *Runner) Run(ctx context.Context) error {
	r.logger.Info().Msgf("queuescan: started (interval=%s)", r.cfg.Interval)
	defer r.logger.Info().Msg("queuescan: stopped")

	ticker := time.NewTicker(r.cfg.Interval)
	defer ticker.Stop()

	for {
		if err := r.Pass(ctx); err != nil && ctx.Err() == nil {
			r.logger.Warn().Err(err).Msg("queuescan: pass failed")
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

// Pass runs one queue sweep: register every upcoming track and scan
// those still owed a scan. A failing scan for one track does not stop
// the sweep.
func (r *Runner) Pass(ctx context.Context) error {
	tracks, err := r.source.GetUpcoming(ctx)
	if err != nil {
		return err
	}

	var scanned int
	for _, track := range tracks {
		if ctx.Err() != nil {
			return ctx.Err()
		}

		sng, err := r.store.UpsertSong(ctx, track)
		if err != nil {
			r.logger.Warn().Err(err).Msgf("queuescan: failed to register %s - %s", track.Artist, track.Title)
			continue
		}
		if track.ISRC != "" && sng.ISRC == "" {
			if err := r.store.UpdateSongISRC(ctx, sng.ID, track.ISRC); err != nil {
				r.logger.Warn().Err(err).Msgf("queuescan: failed to record isrc for song %d", sng.ID)
			}
		}

		if !r.shouldScan(sng.ScanStatus) {
			continue
		}
		if _, err := r.scanner.ScanSong(ctx, sng.ID, nil, r.forceScan(sng.ScanStatus)); err != nil {
			r.logger.Warn().Err(err).Msgf("queuescan: scan failed for song %d", sng.ID)
			continue
		}
		scanned++
	}

	r.logger.Debug().Msgf("queuescan: pass complete, %d tracks seen, %d scanned", len(tracks), scanned)
	return nil
}

func (r *Runner) shouldScan(status song.ScanStatus) bool {
	if song.NeedsScan(status, false) {
		return true
	}
	return r.cfg.RetryNoResults && status == song.StatusNoResults
}

// forceScan is set only for the no-results retry path, which has to
// bypass the needs-scan check.
func (r *Runner) forceScan(status song.ScanStatus) bool {
	return status == song.StatusNoResults
}
