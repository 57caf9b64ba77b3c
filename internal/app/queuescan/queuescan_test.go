package queuescan

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/arieluchka/spotify-ocd-saver/internal/domain/song"
)

type fakeSource struct {
	tracks []song.TrackInfo
	err    error
}

func (f *fakeSource) GetUpcoming(ctx context.Context) ([]song.TrackInfo, error) {
	return f.tracks, f.err
}

type fakeStore struct {
	mu    sync.Mutex
	songs map[string]*song.Song
	next  int64
}

func newFakeStore() *fakeStore {
	return &fakeStore{songs: make(map[string]*song.Song)}
}

func (f *fakeStore) UpsertSong(ctx context.Context, info song.TrackInfo) (*song.Song, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if existing, ok := f.songs[info.SpotifyID]; ok {
		cp := *existing
		return &cp, nil
	}
	f.next++
	s := &song.Song{ID: f.next, SpotifyID: info.SpotifyID, Title: info.Title, ScanStatus: song.StatusNotScanned}
	f.songs[info.SpotifyID] = s
	cp := *s
	return &cp, nil
}

func (f *fakeStore) UpdateSongISRC(ctx context.Context, id int64, isrc string) error {
	return nil
}

func (f *fakeStore) rowCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.songs)
}

func (f *fakeStore) setStatus(spotifyID string, status song.ScanStatus) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.songs[spotifyID].ScanStatus = status
}

type fakeScanner struct {
	mu     sync.Mutex
	calls  []int64
	forced []bool
	after  song.ScanStatus
	store  *fakeStore
	byID   map[int64]string
}

func newFakeScanner(store *fakeStore) *fakeScanner {
	return &fakeScanner{after: song.StatusSynced, store: store, byID: make(map[int64]string)}
}

func (f *fakeScanner) ScanSong(ctx context.Context, songID int64, userID *int64, force bool) (song.ScanStatus, error) {
	f.mu.Lock()
	f.calls = append(f.calls, songID)
	f.forced = append(f.forced, force)
	f.mu.Unlock()

	// Mirror the real service: commit a terminal status.
	if f.store != nil {
		f.store.mu.Lock()
		for _, s := range f.store.songs {
			if s.ID == songID {
				s.ScanStatus = f.after
			}
		}
		f.store.mu.Unlock()
	}
	return f.after, nil
}

func (f *fakeScanner) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.calls)
}

func track(id string) song.TrackInfo {
	return song.TrackInfo{SpotifyID: id, Title: "Track " + id, Artist: "Artist"}
}

func TestPassRegistersAndScans(t *testing.T) {
	ctx := context.Background()
	store := newFakeStore()
	scanner := newFakeScanner(store)
	source := &fakeSource{tracks: []song.TrackInfo{track("a"), track("b")}}
	r := NewRunner(source, store, scanner, Config{Interval: time.Minute})

	require.NoError(t, r.Pass(ctx))
	assert.Equal(t, 2, store.rowCount())
	assert.Equal(t, 2, scanner.callCount())
}

func TestOverlappingPassesCreateNoDuplicates(t *testing.T) {
	ctx := context.Background()
	store := newFakeStore()
	scanner := newFakeScanner(store)
	source := &fakeSource{tracks: []song.TrackInfo{track("a"), track("b")}}
	r := NewRunner(source, store, scanner, Config{Interval: time.Minute})

	require.NoError(t, r.Pass(ctx))
	source.tracks = []song.TrackInfo{track("b"), track("c")}
	require.NoError(t, r.Pass(ctx))

	assert.Equal(t, 3, store.rowCount(), "overlapping track lists share rows")
	assert.Equal(t, 3, scanner.callCount(), "already-scanned tracks are not re-scanned")
}

func TestNoResultsRetry(t *testing.T) {
	ctx := context.Background()

	t.Run("off by default", func(t *testing.T) {
		store := newFakeStore()
		scanner := newFakeScanner(store)
		source := &fakeSource{tracks: []song.TrackInfo{track("a")}}
		r := NewRunner(source, store, scanner, Config{Interval: time.Minute})

		require.NoError(t, r.Pass(ctx))
		store.setStatus("a", song.StatusNoResults)
		require.NoError(t, r.Pass(ctx))
		assert.Equal(t, 1, scanner.callCount())
	})

	t.Run("retries with force when enabled", func(t *testing.T) {
		store := newFakeStore()
		scanner := newFakeScanner(store)
		source := &fakeSource{tracks: []song.TrackInfo{track("a")}}
		r := NewRunner(source, store, scanner, Config{Interval: time.Minute, RetryNoResults: true})

		require.NoError(t, r.Pass(ctx))
		store.setStatus("a", song.StatusNoResults)
		require.NoError(t, r.Pass(ctx))

		require.Equal(t, 2, scanner.callCount())
		scanner.mu.Lock()
		defer scanner.mu.Unlock()
		assert.False(t, scanner.forced[0])
		assert.True(t, scanner.forced[1])
	})
}

func TestPassSourceFailure(t *testing.T) {
	store := newFakeStore()
	scanner := newFakeScanner(store)
	source := &fakeSource{err: errors.New("queue unavailable")}
	r := NewRunner(source, store, scanner, Config{Interval: time.Minute})

	assert.Error(t, r.Pass(context.Background()))
	assert.Zero(t, store.rowCount())
}

func TestRunStopsOnCancel(t *testing.T) {
	store := newFakeStore()
	scanner := newFakeScanner(store)
	source := &fakeSource{tracks: []song.TrackInfo{track("a")}}
	r := NewRunner(source, store, scanner, Config{Interval: 5 * time.Millisecond})

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Millisecond)
	defer cancel()
	err := r.Run(ctx)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.GreaterOrEqual(t, scanner.callCount(), 1, "first pass runs immediately")
}
