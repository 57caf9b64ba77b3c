// Package storage provides the sqlite-backed store for songs, trigger
// categories and trigger occurrences.
package storage

import (
	"context"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/glebarez/sqlite"
	zlog "github.com/rs/zerolog/log"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	gormlogger "gorm.io/gorm/logger"

	"github.com/arieluchka/spotify-ocd-saver/internal/domain/song"
	"github.com/arieluchka/spotify-ocd-saver/internal/domain/trigger"
)

// ErrNotFound is returned when a requested row does not exist.
var ErrNotFound = errors.New("not found")

// Store wraps the gorm database handle.
type Store struct {
	db *gorm.DB
}

// Open opens (and migrates) the sqlite database at the given path.
func Open(path string) (*Store, error) {
	db, err := gorm.Open(sqlite.Open(path+"?_pragma=foreign_keys(1)"), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	if err != nil {
		return nil, errors.Wrap(err, "failed to open sqlite database")
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, errors.Wrap(err, "failed to get sql.DB handle")
	}
	sqlDB.SetMaxOpenConns(25)
	sqlDB.SetMaxIdleConns(5)
	sqlDB.SetConnMaxLifetime(time.Hour)

	if err := db.AutoMigrate(&Song{}, &TriggerCategory{}, &TriggerOccurrence{}); err != nil {
		return nil, errors.Wrap(err, "failed to migrate schema")
	}

	zlog.Debug().Msgf("storage: opened database: path=%s", path)
	return &Store{db: db}, nil
}

// Close closes the underlying database connection.
func (s *Store) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// UpsertSong creates a song row for the given track if one does not
// exist yet, keyed on the external Spotify track id. The existing or
// newly created row is returned. Safe under concurrent calls from the
// monitor and queue loops.
func (s *Store) UpsertSong(ctx context.Context, info song.TrackInfo) (*song.Song, error) {
	row := Song{
		Title:      info.Title,
		Artist:     info.Artist,
		Album:      info.Album,
		DurationMs: info.DurationMs,
		SpotifyID:  info.SpotifyID,
		ISRC:       info.ISRC,
		ScanStatus: int(song.StatusNotScanned),
	}

	err := s.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "spotify_id"}},
			DoNothing: true,
		}).
		Create(&row).Error
	if err != nil {
		return nil, errors.Wrap(err, "failed to upsert song")
	}

	// The insert is a no-op on conflict; read back the winning row.
	return s.SongBySpotifyID(ctx, info.SpotifyID)
}

// SongByID returns the song with the given id.
func (s *Store) SongByID(ctx context.Context, id int64) (*song.Song, error) {
	var row Song
	err := s.db.WithContext(ctx).First(&row, id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, errors.Wrapf(ErrNotFound, "song id=%d", id)
	}
	if err != nil {
		return nil, errors.Wrap(err, "failed to get song")
	}
	return row.toDomain(), nil
}

// SongBySpotifyID returns the song with the given external track id.
func (s *Store) SongBySpotifyID(ctx context.Context, spotifyID string) (*song.Song, error) {
	var row Song
	err := s.db.WithContext(ctx).Where("spotify_id = ?", spotifyID).First(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, errors.Wrapf(ErrNotFound, "song spotify_id=%s", spotifyID)
	}
	if err != nil {
		return nil, errors.Wrap(err, "failed to get song")
	}
	return row.toDomain(), nil
}

// UpdateSongISRC fills in a song's ISRC when it was missing at creation.
func (s *Store) UpdateSongISRC(ctx context.Context, id int64, isrc string) error {
	err := s.db.WithContext(ctx).Model(&Song{}).
		Where("id = ? AND (isrc = '' OR isrc IS NULL)", id).
		Update("isrc", isrc).Error
	return errors.Wrap(err, "failed to update song isrc")
}

// SearchSongs returns songs whose title, artist or album matches the query.
func (s *Store) SearchSongs(ctx context.Context, query string) ([]song.Song, error) {
	like := "%" + query + "%"
	var rows []Song
	err := s.db.WithContext(ctx).
		Where("title LIKE ? OR artist LIKE ? OR album LIKE ?", like, like, like).
		Order("artist, title").
		Find(&rows).Error
	if err != nil {
		return nil, errors.Wrap(err, "failed to search songs")
	}
	return toDomainSongs(rows), nil
}

// SongsWithStatus returns all songs in the given scan status.
func (s *Store) SongsWithStatus(ctx context.Context, status song.ScanStatus) ([]song.Song, error) {
	var rows []Song
	err := s.db.WithContext(ctx).Where("scan_status = ?", int(status)).Find(&rows).Error
	if err != nil {
		return nil, errors.Wrap(err, "failed to list songs by status")
	}
	return toDomainSongs(rows), nil
}

// ContaminatedSongs returns songs that have at least one trigger
// occurrence visible to the given user scope (global plus personal).
func (s *Store) ContaminatedSongs(ctx context.Context, userID *int64) ([]song.Song, error) {
	var rows []Song
	q := s.db.WithContext(ctx).
		Joins("JOIN trigger_occurrences ON trigger_occurrences.song_id = songs.id").
		Group("songs.id").
		Order("songs.artist, songs.title")
	q = scopeOccurrences(q, userID)
	if err := q.Find(&rows).Error; err != nil {
		return nil, errors.Wrap(err, "failed to list contaminated songs")
	}
	return toDomainSongs(rows), nil
}

// CreateCategory inserts a trigger category and sets its id.
func (s *Store) CreateCategory(ctx context.Context, cat *trigger.Category) error {
	words, err := encodeWords(cat.NormalizedWords())
	if err != nil {
		return errors.Wrap(err, "failed to encode words")
	}
	row := TriggerCategory{
		Name:     cat.Name,
		Words:    words,
		UserID:   cat.UserID,
		IsActive: cat.IsActive,
	}
	if err := s.db.WithContext(ctx).Create(&row).Error; err != nil {
		return errors.Wrap(err, "failed to create category")
	}
	cat.ID = row.ID
	cat.CreatedAt = row.CreatedAt
	cat.UpdatedAt = row.UpdatedAt
	return nil
}

// CategoryByID returns the category with the given id.
func (s *Store) CategoryByID(ctx context.Context, id int64) (*trigger.Category, error) {
	var row TriggerCategory
	err := s.db.WithContext(ctx).First(&row, id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, errors.Wrapf(ErrNotFound, "category id=%d", id)
	}
	if err != nil {
		return nil, errors.Wrap(err, "failed to get category")
	}
	cat, err := row.toDomain()
	return cat, errors.Wrap(err, "failed to decode category words")
}

// ListCategories returns the user's categories, optionally including
// global ones. A nil userID returns global categories only.
func (s *Store) ListCategories(ctx context.Context, userID *int64, includeGlobal bool) ([]trigger.Category, error) {
	q := s.db.WithContext(ctx).Order("name")
	switch {
	case userID == nil:
		q = q.Where("user_id IS NULL")
	case includeGlobal:
		q = q.Where("user_id IS NULL OR user_id = ?", *userID)
	default:
		q = q.Where("user_id = ?", *userID)
	}

	var rows []TriggerCategory
	if err := q.Find(&rows).Error; err != nil {
		return nil, errors.Wrap(err, "failed to list categories")
	}

	cats := make([]trigger.Category, 0, len(rows))
	for i := range rows {
		cat, err := rows[i].toDomain()
		if err != nil {
			return nil, errors.Wrap(err, "failed to decode category words")
		}
		cats = append(cats, *cat)
	}
	return cats, nil
}

// ActiveCategories returns the active categories visible to the user
// scope: global categories plus the user's own.
func (s *Store) ActiveCategories(ctx context.Context, userID *int64) ([]trigger.Category, error) {
	cats, err := s.ListCategories(ctx, userID, true)
	if err != nil {
		return nil, err
	}
	active := cats[:0]
	for _, c := range cats {
		if c.IsActive {
			active = append(active, c)
		}
	}
	return active, nil
}

// UpdateCategory updates a category. When the word list changed, the
// category's occurrences are purged and every song's scan status is
// reset inside the same transaction, so readers never observe stale
// occurrences alongside the new word list. Returns whether occurrences
// were invalidated.
func (s *Store) UpdateCategory(ctx context.Context, cat *trigger.Category) (bool, error) {
	existing, err := s.CategoryByID(ctx, cat.ID)
	if err != nil {
		return false, err
	}

	wordsChanged := !existing.SameWords(cat.Words)
	words, err := encodeWords(cat.NormalizedWords())
	if err != nil {
		return false, errors.Wrap(err, "failed to encode words")
	}

	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if wordsChanged {
			if err := tx.Where("category_id = ?", cat.ID).Delete(&TriggerOccurrence{}).Error; err != nil {
				return errors.Wrap(err, "failed to purge category occurrences")
			}
			// Reset scan status so every song is reconsidered under
			// the new word list.
			if err := tx.Model(&Song{}).
				Where("scan_status <> ?", int(song.StatusNotScanned)).
				Update("scan_status", int(song.StatusNotScanned)).Error; err != nil {
				return errors.Wrap(err, "failed to reset scan status")
			}
		}

		res := tx.Model(&TriggerCategory{}).Where("id = ?", cat.ID).
			Updates(map[string]any{
				"name":      cat.Name,
				"words":     words,
				"is_active": cat.IsActive,
			})
		if res.Error != nil {
			return errors.Wrap(res.Error, "failed to update category")
		}
		if res.RowsAffected == 0 {
			return errors.Wrapf(ErrNotFound, "category id=%d", cat.ID)
		}
		return nil
	})
	if err != nil {
		return false, err
	}

	if wordsChanged {
		zlog.Info().Msgf("storage: category words changed, occurrences invalidated: category=%d name=%s", cat.ID, cat.Name)
	}
	return wordsChanged, nil
}

// DeleteCategory removes a category and, via FK cascade, all of its
// occurrences.
func (s *Store) DeleteCategory(ctx context.Context, id int64) error {
	res := s.db.WithContext(ctx).Delete(&TriggerCategory{}, id)
	if res.Error != nil {
		return errors.Wrap(res.Error, "failed to delete category")
	}
	if res.RowsAffected == 0 {
		return errors.Wrapf(ErrNotFound, "category id=%d", id)
	}
	return nil
}

// InsertOccurrences inserts occurrences idempotently: rows matching an
// existing (song, category, word, start) key are silently ignored.
// Occurrences violating the time-range invariant are rejected before
// anything is written.
func (s *Store) InsertOccurrences(ctx context.Context, occs []trigger.Occurrence) error {
	return s.insertOccurrences(s.db.WithContext(ctx), occs)
}

func (s *Store) insertOccurrences(tx *gorm.DB, occs []trigger.Occurrence) error {
	if len(occs) == 0 {
		return nil
	}

	rows := make([]TriggerOccurrence, 0, len(occs))
	for i := range occs {
		if err := occs[i].Validate(); err != nil {
			return errors.Wrap(err, "rejecting invalid occurrence")
		}
		rows = append(rows, TriggerOccurrence{
			SongID:      occs[i].SongID,
			CategoryID:  occs[i].CategoryID,
			UserID:      occs[i].UserID,
			Word:        occs[i].Word,
			StartTimeMs: occs[i].StartTimeMs,
			EndTimeMs:   occs[i].EndTimeMs,
		})
	}

	err := tx.Clauses(clause.OnConflict{DoNothing: true}).Create(&rows).Error
	return errors.Wrap(err, "failed to insert occurrences")
}

// ScanRefs records lyrics provider identifiers discovered during a scan.
type ScanRefs struct {
	LRCLibID      string
	PlainLRCLibID string
}

// CommitScan atomically persists a completed scan pass: all
// occurrences, the provider refs, and the terminal scan status land in
// one transaction. A partially written scan is therefore never visible
// as complete. Invalid forward transitions (e.g. Synced back to
// PlainOnly) leave the row untouched.
func (s *Store) CommitScan(ctx context.Context, songID int64, to song.ScanStatus, occs []trigger.Occurrence, refs ScanRefs) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var row Song
		if err := tx.First(&row, songID).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return errors.Wrapf(ErrNotFound, "song id=%d", songID)
			}
			return errors.Wrap(err, "failed to load song")
		}

		current := song.ScanStatus(row.ScanStatus)
		if current != to && !current.CanTransition(to) {
			zlog.Debug().Msgf("storage: scan commit skipped, status would regress: song=%d current=%s to=%s",
				songID, current, to)
			return nil
		}

		if err := s.insertOccurrences(tx, occs); err != nil {
			return err
		}

		updates := map[string]any{"scan_status": int(to)}
		if refs.LRCLibID != "" {
			updates["lrc_lib_id"] = refs.LRCLibID
		}
		if refs.PlainLRCLibID != "" {
			updates["plain_lrc_lib_id"] = refs.PlainLRCLibID
		}
		err := tx.Model(&Song{}).Where("id = ?", songID).Updates(updates).Error
		return errors.Wrap(err, "failed to update scan status")
	})
}

// OccurrencesForSong returns the song's raw occurrences visible to the
// user scope, optionally restricted to the given categories. Results
// are ordered by start time for stable merging.
func (s *Store) OccurrencesForSong(ctx context.Context, songID int64, userID *int64, categoryIDs []int64) ([]trigger.Occurrence, error) {
	q := s.db.WithContext(ctx).Where("song_id = ?", songID).Order("start_time_ms, end_time_ms")
	q = scopeOccurrences(q, userID)
	if len(categoryIDs) > 0 {
		q = q.Where("category_id IN ?", categoryIDs)
	}

	var rows []TriggerOccurrence
	if err := q.Find(&rows).Error; err != nil {
		return nil, errors.Wrap(err, "failed to list occurrences")
	}

	occs := make([]trigger.Occurrence, 0, len(rows))
	for i := range rows {
		occs = append(occs, rows[i].toDomain())
	}
	return occs, nil
}

// Counts returns song and occurrence totals for the stats endpoint.
func (s *Store) Counts(ctx context.Context) (songs int64, occurrences int64, err error) {
	if err := s.db.WithContext(ctx).Model(&Song{}).Count(&songs).Error; err != nil {
		return 0, 0, errors.Wrap(err, "failed to count songs")
	}
	if err := s.db.WithContext(ctx).Model(&TriggerOccurrence{}).Count(&occurrences).Error; err != nil {
		return 0, 0, errors.Wrap(err, "failed to count occurrences")
	}
	return songs, occurrences, nil
}

// scopeOccurrences restricts an occurrence query to the global scope
// plus, when set, the given user's personal scope.
func scopeOccurrences(q *gorm.DB, userID *int64) *gorm.DB {
	if userID == nil {
		return q.Where("trigger_occurrences.user_id IS NULL")
	}
	return q.Where("trigger_occurrences.user_id IS NULL OR trigger_occurrences.user_id = ?", *userID)
}

func toDomainSongs(rows []Song) []song.Song {
	out := make([]song.Song, 0, len(rows))
	for i := range rows {
		out = append(out, *rows[i].toDomain())
	}
	return out
}
