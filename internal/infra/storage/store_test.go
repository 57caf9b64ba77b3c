package storage

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/arieluchka/spotify-ocd-saver/internal/domain/song"
	"github.com/arieluchka/spotify-ocd-saver/internal/domain/trigger"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func testTrack(spotifyID string) song.TrackInfo {
	return song.TrackInfo{
		SpotifyID:  spotifyID,
		Title:      "Heathens",
		Artist:     "Twenty One Pilots",
		Album:      "Suicide Squad",
		DurationMs: 195920,
	}
}

func TestUpsertSong_Idempotent(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	first, err := s.UpsertSong(ctx, testTrack("spotify-1"))
	require.NoError(t, err)

	second, err := s.UpsertSong(ctx, testTrack("spotify-1"))
	require.NoError(t, err)

	assert.Equal(t, first.ID, second.ID)

	songs, _, err := s.Counts(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), songs)
}

func TestSongBySpotifyID_NotFound(t *testing.T) {
	s := newTestStore(t)

	_, err := s.SongBySpotifyID(context.Background(), "missing")

	assert.ErrorIs(t, err, ErrNotFound)
}

func TestInsertOccurrences_Idempotent(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	sng, err := s.UpsertSong(ctx, testTrack("spotify-1"))
	require.NoError(t, err)

	cat := &trigger.Category{Name: "violence", Words: []string{"guns"}, IsActive: true}
	require.NoError(t, s.CreateCategory(ctx, cat))

	occs := []trigger.Occurrence{
		{SongID: sng.ID, CategoryID: cat.ID, Word: "guns", StartTimeMs: 1000, EndTimeMs: 2000},
	}
	require.NoError(t, s.InsertOccurrences(ctx, occs))
	require.NoError(t, s.InsertOccurrences(ctx, occs))

	got, err := s.OccurrencesForSong(ctx, sng.ID, nil, nil)
	require.NoError(t, err)
	assert.Len(t, got, 1)
}

func TestInsertOccurrences_RejectsInvalidRange(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	sng, err := s.UpsertSong(ctx, testTrack("spotify-1"))
	require.NoError(t, err)
	cat := &trigger.Category{Name: "violence", Words: []string{"guns"}, IsActive: true}
	require.NoError(t, s.CreateCategory(ctx, cat))

	err = s.InsertOccurrences(ctx, []trigger.Occurrence{
		{SongID: sng.ID, CategoryID: cat.ID, Word: "guns", StartTimeMs: 2000, EndTimeMs: 1000},
	})

	assert.ErrorIs(t, err, trigger.ErrInvalidTimeRange)

	got, err := s.OccurrencesForSong(ctx, sng.ID, nil, nil)
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestUpdateCategory_WordChangeInvalidatesOccurrences(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	sng, err := s.UpsertSong(ctx, testTrack("spotify-1"))
	require.NoError(t, err)

	catA := &trigger.Category{Name: "violence", Words: []string{"guns"}, IsActive: true}
	catB := &trigger.Category{Name: "health", Words: []string{"sick"}, IsActive: true}
	require.NoError(t, s.CreateCategory(ctx, catA))
	require.NoError(t, s.CreateCategory(ctx, catB))

	require.NoError(t, s.InsertOccurrences(ctx, []trigger.Occurrence{
		{SongID: sng.ID, CategoryID: catA.ID, Word: "guns", StartTimeMs: 1000, EndTimeMs: 2000},
		{SongID: sng.ID, CategoryID: catB.ID, Word: "sick", StartTimeMs: 3000, EndTimeMs: 4000},
	}))
	require.NoError(t, s.CommitScan(ctx, sng.ID, song.StatusSynced, nil, ScanRefs{}))

	catA.Words = []string{"guns", "knives"}
	invalidated, err := s.UpdateCategory(ctx, catA)
	require.NoError(t, err)
	assert.True(t, invalidated)

	// Category A occurrences purged, category B untouched.
	got, err := s.OccurrencesForSong(ctx, sng.ID, nil, nil)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, catB.ID, got[0].CategoryID)

	// Scan status reset so the song is reconsidered.
	reloaded, err := s.SongByID(ctx, sng.ID)
	require.NoError(t, err)
	assert.Equal(t, song.StatusNotScanned, reloaded.ScanStatus)
}

func TestUpdateCategory_NoWordChangeKeepsOccurrences(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	sng, err := s.UpsertSong(ctx, testTrack("spotify-1"))
	require.NoError(t, err)
	cat := &trigger.Category{Name: "violence", Words: []string{"guns"}, IsActive: true}
	require.NoError(t, s.CreateCategory(ctx, cat))
	require.NoError(t, s.InsertOccurrences(ctx, []trigger.Occurrence{
		{SongID: sng.ID, CategoryID: cat.ID, Word: "guns", StartTimeMs: 1000, EndTimeMs: 2000},
	}))

	cat.Name = "weapons"
	cat.Words = []string{" GUNS "} // same word after normalization
	invalidated, err := s.UpdateCategory(ctx, cat)
	require.NoError(t, err)
	assert.False(t, invalidated)

	got, err := s.OccurrencesForSong(ctx, sng.ID, nil, nil)
	require.NoError(t, err)
	assert.Len(t, got, 1)

	reloaded, err := s.CategoryByID(ctx, cat.ID)
	require.NoError(t, err)
	assert.Equal(t, "weapons", reloaded.Name)
}

func TestDeleteCategory_CascadesOccurrences(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	sng, err := s.UpsertSong(ctx, testTrack("spotify-1"))
	require.NoError(t, err)
	cat := &trigger.Category{Name: "violence", Words: []string{"guns"}, IsActive: true}
	require.NoError(t, s.CreateCategory(ctx, cat))
	require.NoError(t, s.InsertOccurrences(ctx, []trigger.Occurrence{
		{SongID: sng.ID, CategoryID: cat.ID, Word: "guns", StartTimeMs: 1000, EndTimeMs: 2000},
	}))

	require.NoError(t, s.DeleteCategory(ctx, cat.ID))

	got, err := s.OccurrencesForSong(ctx, sng.ID, nil, nil)
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestCommitScan_StatusNeverRegresses(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	sng, err := s.UpsertSong(ctx, testTrack("spotify-1"))
	require.NoError(t, err)

	require.NoError(t, s.CommitScan(ctx, sng.ID, song.StatusSynced, nil, ScanRefs{LRCLibID: "42"}))
	require.NoError(t, s.CommitScan(ctx, sng.ID, song.StatusNoResults, nil, ScanRefs{}))

	reloaded, err := s.SongByID(ctx, sng.ID)
	require.NoError(t, err)
	assert.Equal(t, song.StatusSynced, reloaded.ScanStatus)
	assert.Equal(t, "42", reloaded.LRCLibID)
}

func TestCommitScan_PlainOnlyUpgradesToSynced(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	sng, err := s.UpsertSong(ctx, testTrack("spotify-1"))
	require.NoError(t, err)

	require.NoError(t, s.CommitScan(ctx, sng.ID, song.StatusPlainOnly, nil, ScanRefs{PlainLRCLibID: "7"}))
	require.NoError(t, s.CommitScan(ctx, sng.ID, song.StatusSynced, nil, ScanRefs{LRCLibID: "8"}))

	reloaded, err := s.SongByID(ctx, sng.ID)
	require.NoError(t, err)
	assert.Equal(t, song.StatusSynced, reloaded.ScanStatus)
	assert.Equal(t, "8", reloaded.LRCLibID)
	assert.Equal(t, "7", reloaded.PlainLRCLibID)
}

func TestOccurrencesForSong_UserScope(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	userA := int64(1)
	userB := int64(2)

	sng, err := s.UpsertSong(ctx, testTrack("spotify-1"))
	require.NoError(t, err)

	global := &trigger.Category{Name: "violence", Words: []string{"guns"}, IsActive: true}
	personal := &trigger.Category{Name: "personal", Words: []string{"spiders"}, UserID: &userA, IsActive: true}
	require.NoError(t, s.CreateCategory(ctx, global))
	require.NoError(t, s.CreateCategory(ctx, personal))

	require.NoError(t, s.InsertOccurrences(ctx, []trigger.Occurrence{
		{SongID: sng.ID, CategoryID: global.ID, Word: "guns", StartTimeMs: 1000, EndTimeMs: 2000},
		{SongID: sng.ID, CategoryID: personal.ID, UserID: &userA, Word: "spiders", StartTimeMs: 5000, EndTimeMs: 6000},
	}))

	forA, err := s.OccurrencesForSong(ctx, sng.ID, &userA, nil)
	require.NoError(t, err)
	assert.Len(t, forA, 2)

	forB, err := s.OccurrencesForSong(ctx, sng.ID, &userB, nil)
	require.NoError(t, err)
	assert.Len(t, forB, 1)

	globalOnly, err := s.OccurrencesForSong(ctx, sng.ID, nil, nil)
	require.NoError(t, err)
	assert.Len(t, globalOnly, 1)
}

func TestListCategories_Scoping(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	userA := int64(1)

	require.NoError(t, s.CreateCategory(ctx, &trigger.Category{Name: "global", Words: []string{"a"}, IsActive: true}))
	require.NoError(t, s.CreateCategory(ctx, &trigger.Category{Name: "mine", Words: []string{"b"}, UserID: &userA, IsActive: true}))
	require.NoError(t, s.CreateCategory(ctx, &trigger.Category{Name: "inactive", Words: []string{"c"}, IsActive: false}))

	all, err := s.ListCategories(ctx, &userA, true)
	require.NoError(t, err)
	assert.Len(t, all, 3)

	mineOnly, err := s.ListCategories(ctx, &userA, false)
	require.NoError(t, err)
	assert.Len(t, mineOnly, 1)

	active, err := s.ActiveCategories(ctx, &userA)
	require.NoError(t, err)
	assert.Len(t, active, 2)
}

func TestContaminatedSongs(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	clean, err := s.UpsertSong(ctx, testTrack("clean"))
	require.NoError(t, err)
	dirty, err := s.UpsertSong(ctx, testTrack("dirty"))
	require.NoError(t, err)

	cat := &trigger.Category{Name: "violence", Words: []string{"guns"}, IsActive: true}
	require.NoError(t, s.CreateCategory(ctx, cat))
	require.NoError(t, s.InsertOccurrences(ctx, []trigger.Occurrence{
		{SongID: dirty.ID, CategoryID: cat.ID, Word: "guns", StartTimeMs: 0, EndTimeMs: 1000},
	}))

	songs, err := s.ContaminatedSongs(ctx, nil)
	require.NoError(t, err)
	require.Len(t, songs, 1)
	assert.Equal(t, dirty.ID, songs[0].ID)
	assert.NotEqual(t, clean.ID, songs[0].ID)
}
