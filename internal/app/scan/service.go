package scan

import (
	"context"

	"github.com/cockroachdb/errors"
	"github.com/google/uuid"
	zlog "github.com/rs/zerolog/log"

	"github.com/arieluchka/spotify-ocd-saver/internal/domain/song"
	"github.com/arieluchka/spotify-ocd-saver/internal/domain/trigger"
	"github.com/arieluchka/spotify-ocd-saver/internal/infra/lrclib"
	"github.com/arieluchka/spotify-ocd-saver/internal/infra/storage"
)

// Store is the persistence surface the scan service needs.
type Store interface {
	SongByID(ctx context.Context, id int64) (*song.Song, error)
	ActiveCategories(ctx context.Context, userID *int64) ([]trigger.Category, error)
	CommitScan(ctx context.Context, songID int64, to song.ScanStatus, occs []trigger.Occurrence, refs storage.ScanRefs) error
}

// LyricsProvider resolves lyrics for a track.
type LyricsProvider interface {
	Lookup(ctx context.Context, q lrclib.Query) (*lrclib.Result, error)
}

// Config holds scan service tunables.
type Config struct {
	// TailMs bounds the final lyrics line when the track duration is
	// unknown.
	TailMs int64
}

// Service runs scan passes: it resolves lyrics for a song, matches
// them against the active trigger categories, and commits the outcome
// atomically.
type Service struct {
	store  Store
	lyrics LyricsProvider
	tailMs int64
}

// NewService creates a scan service.
func NewService(store Store, provider LyricsProvider, cfg Config) *Service {
	tailMs := cfg.TailMs
	if tailMs <= 0 {
		tailMs = 5000
	}
	return &Service{store: store, lyrics: provider, tailMs: tailMs}
}

// ScanSong runs one scan pass for the song, scoped to the categories
// visible to userID (global plus that user's own). A song already past
// NotScanned is left untouched unless force is set. Provider failures
// other than a definitive miss leave the song's state unchanged so a
// later pass can retry.
func (s *Service) ScanSong(ctx context.Context, songID int64, userID *int64, force bool) (song.ScanStatus, error) {
	sng, err := s.store.SongByID(ctx, songID)
	if err != nil {
		return song.StatusNotScanned, err
	}
	if !force && !song.NeedsScan(sng.ScanStatus, false) {
		return sng.ScanStatus, nil
	}

	passID := uuid.NewString()
	logger := zlog.With().Str("scan_pass", passID).Int64("song_id", songID).Logger()
	logger.Debug().Msgf("scan: starting pass for %s - %s", sng.Artist, sng.Title)

	cats, err := s.store.ActiveCategories(ctx, userID)
	if err != nil {
		return sng.ScanStatus, err
	}

	res, err := s.lyrics.Lookup(ctx, lrclib.Query{
		Title:      sng.Title,
		Artist:     sng.Artist,
		Album:      sng.Album,
		DurationMs: sng.DurationMs,
	})
	if errors.Is(err, lrclib.ErrNotFound) {
		if err := s.store.CommitScan(ctx, songID, song.StatusNoResults, nil, storage.ScanRefs{}); err != nil {
			return sng.ScanStatus, err
		}
		logger.Info().Msg("scan: no lyrics found")
		return song.StatusNoResults, nil
	}
	if err != nil {
		return sng.ScanStatus, errors.Wrap(err, "lyrics lookup failed")
	}

	if len(res.SyncedLines) > 0 {
		occs := ScanSynced(res.SyncedLines, cats, songID, sng.DurationMs, s.tailMs)
		refs := storage.ScanRefs{LRCLibID: res.SyncedTrackID}
		if err := s.store.CommitScan(ctx, songID, song.StatusSynced, occs, refs); err != nil {
			return sng.ScanStatus, err
		}
		logger.Info().Msgf("scan: synced lyrics scanned, %d occurrences", len(occs))
		return song.StatusSynced, nil
	}

	occs := s.plainOccurrences(res.PlainText, cats, songID, sng.DurationMs)
	refs := storage.ScanRefs{PlainLRCLibID: res.PlainTrackID}
	if err := s.store.CommitScan(ctx, songID, song.StatusPlainOnly, occs, refs); err != nil {
		return sng.ScanStatus, err
	}
	logger.Info().Msgf("scan: plain lyrics only, contaminated=%t", len(occs) > 0)
	return song.StatusPlainOnly, nil
}

// plainOccurrences maps plain-lyrics hits onto untimed occurrences
// spanning the whole track, so merging yields a single conservative
// window.
func (s *Service) plainOccurrences(text string, cats []trigger.Category, songID, durationMs int64) []trigger.Occurrence {
	result := ScanPlain(text, cats)
	if !result.HasTriggers {
		return nil
	}

	endMs := durationMs
	if endMs <= 0 {
		endMs = s.tailMs
	}

	byID := make(map[int64]*trigger.Category, len(cats))
	for i := range cats {
		byID[cats[i].ID] = &cats[i]
	}

	occs := make([]trigger.Occurrence, 0, len(result.Matches))
	for _, cw := range result.Matches {
		var userID *int64
		if cat, ok := byID[cw.CategoryID]; ok {
			userID = cat.UserID
		}
		occs = append(occs, trigger.Occurrence{
			CategoryID:  cw.CategoryID,
			SongID:      songID,
			UserID:      userID,
			Word:        cw.Word,
			StartTimeMs: 0,
			EndTimeMs:   endMs,
		})
	}
	return occs
}
