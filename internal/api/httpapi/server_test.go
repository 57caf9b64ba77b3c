package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/arieluchka/spotify-ocd-saver/internal/app/monitor"
	"github.com/arieluchka/spotify-ocd-saver/internal/domain/song"
	"github.com/arieluchka/spotify-ocd-saver/internal/domain/trigger"
	"github.com/arieluchka/spotify-ocd-saver/internal/infra/storage"
)

type stubScanner struct {
	status song.ScanStatus
	err    error
	calls  int
	forced bool
}

func (s *stubScanner) ScanSong(ctx context.Context, songID int64, userID *int64, force bool) (song.ScanStatus, error) {
	s.calls++
	s.forced = force
	return s.status, s.err
}

type stubSessions struct {
	started  []*int64
	stopped  []string
	sessions []monitor.SessionStatus
	startErr error
}

func (s *stubSessions) Start(userID *int64, overrides map[string]any) (monitor.SessionStatus, error) {
	if s.startErr != nil {
		return monitor.SessionStatus{}, s.startErr
	}
	s.started = append(s.started, userID)
	st := monitor.SessionStatus{ID: fmt.Sprintf("session-%d", len(s.started))}
	s.sessions = append(s.sessions, st)
	return st, nil
}

func (s *stubSessions) Stop(sessionID string) error {
	for i, st := range s.sessions {
		if st.ID == sessionID {
			s.sessions = append(s.sessions[:i], s.sessions[i+1:]...)
			s.stopped = append(s.stopped, sessionID)
			return nil
		}
	}
	return monitor.ErrSessionNotFound
}

func (s *stubSessions) Status() []monitor.SessionStatus { return s.sessions }

func (s *stubSessions) StatusFor(userID *int64) (monitor.SessionStatus, bool) {
	if len(s.sessions) == 0 {
		return monitor.SessionStatus{}, false
	}
	return s.sessions[0], true
}

type testAPI struct {
	store    *storage.Store
	scanner  *stubScanner
	sessions *stubSessions
	handler  http.Handler
}

func newTestAPI(t *testing.T) *testAPI {
	t.Helper()
	store, err := storage.Open(filepath.Join(t.TempDir(), "api.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })

	scanner := &stubScanner{status: song.StatusSynced}
	sessions := &stubSessions{}
	srv := NewServer(store, scanner, sessions, Config{GapToleranceMs: 5000})
	return &testAPI{store: store, scanner: scanner, sessions: sessions, handler: srv.Handler()}
}

func (a *testAPI) do(t *testing.T, method, path string, body any, out any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	rec := httptest.NewRecorder()
	a.handler.ServeHTTP(rec, req)
	if out != nil && rec.Code < 400 {
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), out))
	}
	return rec
}

func TestCategoriesCRUD(t *testing.T) {
	api := newTestAPI(t)

	var created CategoryDTO
	rec := api.do(t, http.MethodPost, "/api/trigger-categories",
		CategoryRequest{Name: "violence", Words: []string{"Knife", "blood"}}, &created)
	require.Equal(t, http.StatusCreated, rec.Code)
	assert.True(t, created.IsActive)

	t.Run("list includes the new category", func(t *testing.T) {
		var list ListCategoriesResponse
		rec := api.do(t, http.MethodGet, "/api/trigger-categories", nil, &list)
		require.Equal(t, http.StatusOK, rec.Code)
		require.Equal(t, 1, list.Count)
		assert.Equal(t, created.ID, list.Categories[0].ID)
	})

	t.Run("renaming does not invalidate", func(t *testing.T) {
		var updated UpdateCategoryResponse
		rec := api.do(t, http.MethodPut, fmt.Sprintf("/api/trigger-categories/%d", created.ID),
			CategoryRequest{Name: "graphic violence"}, &updated)
		require.Equal(t, http.StatusOK, rec.Code)
		assert.False(t, updated.Invalidated)
		assert.Equal(t, "graphic violence", updated.Category.Name)
	})

	t.Run("word edit reports invalidation", func(t *testing.T) {
		var updated UpdateCategoryResponse
		rec := api.do(t, http.MethodPut, fmt.Sprintf("/api/trigger-categories/%d", created.ID),
			CategoryRequest{Words: []string{"knife"}}, &updated)
		require.Equal(t, http.StatusOK, rec.Code)
		assert.True(t, updated.Invalidated)
	})

	t.Run("delete then 404", func(t *testing.T) {
		rec := api.do(t, http.MethodDelete, fmt.Sprintf("/api/trigger-categories/%d", created.ID), nil, nil)
		require.Equal(t, http.StatusOK, rec.Code)

		rec = api.do(t, http.MethodGet, fmt.Sprintf("/api/trigger-categories/%d", created.ID), nil, nil)
		assert.Equal(t, http.StatusNotFound, rec.Code)
	})

	t.Run("create requires name and words", func(t *testing.T) {
		rec := api.do(t, http.MethodPost, "/api/trigger-categories", CategoryRequest{Name: "empty"}, nil)
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})
}

func TestSongTriggersEndpoint(t *testing.T) {
	api := newTestAPI(t)
	ctx := context.Background()

	sng, err := api.store.UpsertSong(ctx, song.TrackInfo{
		SpotifyID: "sp-1", Title: "Heathens", Artist: "Twenty One Pilots", DurationMs: 195920,
	})
	require.NoError(t, err)

	cat := trigger.Category{Name: "violence", Words: []string{"knife"}, IsActive: true}
	require.NoError(t, api.store.CreateCategory(ctx, &cat))

	require.NoError(t, api.store.CommitScan(ctx, sng.ID, song.StatusSynced, []trigger.Occurrence{
		{CategoryID: cat.ID, SongID: sng.ID, Word: "knife", StartTimeMs: 1000, EndTimeMs: 3000},
		{CategoryID: cat.ID, SongID: sng.ID, Word: "knife", StartTimeMs: 4000, EndTimeMs: 6000},
		{CategoryID: cat.ID, SongID: sng.ID, Word: "knife", StartTimeMs: 60000, EndTimeMs: 62000},
	}, storage.ScanRefs{LRCLibID: "42"}))

	t.Run("default tolerance merges nearby occurrences", func(t *testing.T) {
		var resp SongTriggersResponse
		rec := api.do(t, http.MethodGet, fmt.Sprintf("/api/songs/%d/triggers", sng.ID), nil, &resp)
		require.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, "synced", resp.ScanStatus)
		assert.Len(t, resp.Occurrences, 3)
		require.Len(t, resp.Windows, 2)
		assert.Equal(t, int64(1000), resp.Windows[0].StartTimeMs)
		assert.Equal(t, int64(6000), resp.Windows[0].EndTimeMs)
	})

	t.Run("per-request tolerance changes the merge immediately", func(t *testing.T) {
		var resp SongTriggersResponse
		rec := api.do(t, http.MethodGet,
			fmt.Sprintf("/api/songs/%d/triggers?gap_tolerance_ms=0", sng.ID), nil, &resp)
		require.Equal(t, http.StatusOK, rec.Code)
		assert.Len(t, resp.Windows, 3)
	})

	t.Run("unknown song", func(t *testing.T) {
		rec := api.do(t, http.MethodGet, "/api/songs/9999/triggers", nil, nil)
		assert.Equal(t, http.StatusNotFound, rec.Code)
	})

	t.Run("contaminated listing includes the song", func(t *testing.T) {
		var list ListSongsResponse
		rec := api.do(t, http.MethodGet, "/api/songs/contaminated", nil, &list)
		require.Equal(t, http.StatusOK, rec.Code)
		require.Equal(t, 1, list.Count)
		assert.Equal(t, sng.ID, list.Songs[0].ID)
	})

	t.Run("search finds it by title", func(t *testing.T) {
		var list ListSongsResponse
		rec := api.do(t, http.MethodGet, "/api/songs/search?q=heathens", nil, &list)
		require.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, 1, list.Count)
	})
}

func TestScanEndpoint(t *testing.T) {
	api := newTestAPI(t)
	ctx := context.Background()

	sng, err := api.store.UpsertSong(ctx, song.TrackInfo{SpotifyID: "sp-1", Title: "T", Artist: "A"})
	require.NoError(t, err)

	var resp ScanResponse
	rec := api.do(t, http.MethodPost, fmt.Sprintf("/api/songs/%d/scan?force=true", sng.ID), nil, &resp)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "synced", resp.ScanStatus)
	assert.Equal(t, 1, api.scanner.calls)
	assert.True(t, api.scanner.forced)

	t.Run("missing song", func(t *testing.T) {
		api.scanner.err = storage.ErrNotFound
		rec := api.do(t, http.MethodPost, "/api/songs/777/scan", nil, nil)
		assert.Equal(t, http.StatusNotFound, rec.Code)
	})
}

func TestMonitoringEndpoints(t *testing.T) {
	api := newTestAPI(t)

	var started monitor.SessionStatus
	rec := api.do(t, http.MethodPost, "/api/monitoring/start", StartMonitoringRequest{}, &started)
	require.Equal(t, http.StatusCreated, rec.Code)
	require.NotEmpty(t, started.ID)

	t.Run("status lists the session", func(t *testing.T) {
		var resp struct {
			Count int `json:"count"`
		}
		rec := api.do(t, http.MethodGet, "/api/monitoring/status", nil, &resp)
		require.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, 1, resp.Count)
	})

	t.Run("conflicting start maps to 409", func(t *testing.T) {
		api.sessions.startErr = monitor.ErrAlreadyRunning
		rec := api.do(t, http.MethodPost, "/api/monitoring/start", nil, nil)
		assert.Equal(t, http.StatusConflict, rec.Code)
		api.sessions.startErr = nil
	})

	t.Run("stop without id stops own session", func(t *testing.T) {
		rec := api.do(t, http.MethodPost, "/api/monitoring/stop", nil, nil)
		require.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, []string{started.ID}, api.sessions.stopped)
	})

	t.Run("stop with no session", func(t *testing.T) {
		rec := api.do(t, http.MethodPost, "/api/monitoring/stop", nil, nil)
		assert.Equal(t, http.StatusNotFound, rec.Code)
	})
}

func TestHealthAndStats(t *testing.T) {
	api := newTestAPI(t)

	rec := api.do(t, http.MethodGet, "/api/health", nil, nil)
	assert.Equal(t, http.StatusOK, rec.Code)

	var stats StatsResponse
	rec = api.do(t, http.MethodGet, "/api/stats", nil, &stats)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Zero(t, stats.Songs)
}

func TestUserScopeHeader(t *testing.T) {
	api := newTestAPI(t)

	req := httptest.NewRequest(http.MethodGet, "/api/trigger-categories", nil)
	req.Header.Set("X-User-ID", "not-a-number")
	rec := httptest.NewRecorder()
	api.handler.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}
