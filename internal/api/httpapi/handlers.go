package httpapi

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/cockroachdb/errors"

	"github.com/arieluchka/spotify-ocd-saver/internal/app/monitor"
	"github.com/arieluchka/spotify-ocd-saver/internal/domain/trigger"
	"github.com/arieluchka/spotify-ocd-saver/internal/infra/storage"
)

// handleHealth handles GET /api/health.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	s.respondJSON(w, http.StatusOK, map[string]string{
		"status": "healthy",
		"time":   time.Now().Format(time.RFC3339),
	})
}

// handleStats handles GET /api/stats.
func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	userID, err := s.userScope(r)
	if err != nil {
		s.respondError(w, http.StatusBadRequest, "Invalid user header")
		return
	}

	songs, occurrences, err := s.store.Counts(r.Context())
	if err != nil {
		s.log.Error().Err(err).Msg("httpapi: failed to count rows")
		s.respondError(w, http.StatusInternalServerError, "Failed to retrieve stats")
		return
	}
	contaminated, err := s.store.ContaminatedSongs(r.Context(), userID)
	if err != nil {
		s.log.Error().Err(err).Msg("httpapi: failed to list contaminated songs")
		s.respondError(w, http.StatusInternalServerError, "Failed to retrieve stats")
		return
	}

	s.respondJSON(w, http.StatusOK, StatsResponse{
		Songs:             songs,
		Occurrences:       occurrences,
		ContaminatedSongs: len(contaminated),
		ActiveSessions:    len(s.sessions.Status()),
	})
}

// handleCategories routes /api/trigger-categories.
func (s *Server) handleCategories(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		s.handleListCategories(w, r)
	case http.MethodPost:
		s.handleCreateCategory(w, r)
	default:
		s.respondError(w, http.StatusMethodNotAllowed, "Method not allowed")
	}
}

func (s *Server) handleListCategories(w http.ResponseWriter, r *http.Request) {
	userID, err := s.userScope(r)
	if err != nil {
		s.respondError(w, http.StatusBadRequest, "Invalid user header")
		return
	}

	cats, err := s.store.ListCategories(r.Context(), userID, true)
	if err != nil {
		s.log.Error().Err(err).Msg("httpapi: failed to list categories")
		s.respondError(w, http.StatusInternalServerError, "Failed to retrieve categories")
		return
	}

	dtos := make([]CategoryDTO, len(cats))
	for i, c := range cats {
		dtos[i] = categoryDTO(c)
	}
	s.respondJSON(w, http.StatusOK, ListCategoriesResponse{Categories: dtos, Count: len(dtos)})
}

func (s *Server) handleCreateCategory(w http.ResponseWriter, r *http.Request) {
	userID, err := s.userScope(r)
	if err != nil {
		s.respondError(w, http.StatusBadRequest, "Invalid user header")
		return
	}

	var req CategoryRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.respondError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	if req.Name == "" || len(req.Words) == 0 {
		s.respondError(w, http.StatusBadRequest, "name and words are required")
		return
	}

	cat := trigger.Category{
		Name:     req.Name,
		Words:    req.Words,
		UserID:   userID,
		IsActive: req.IsActive == nil || *req.IsActive,
	}
	if err := s.store.CreateCategory(r.Context(), &cat); err != nil {
		s.log.Error().Err(err).Msgf("httpapi: failed to create category %s", req.Name)
		s.respondError(w, http.StatusInternalServerError, "Failed to create category")
		return
	}

	s.log.Info().Msgf("httpapi: created category %s (id=%d)", cat.Name, cat.ID)
	s.respondJSON(w, http.StatusCreated, categoryDTO(cat))
}

// handleCategory routes /api/trigger-categories/{id}.
func (s *Server) handleCategory(w http.ResponseWriter, r *http.Request) {
	idStr := strings.TrimPrefix(r.URL.Path, "/api/trigger-categories/")
	id, err := strconv.ParseInt(idStr, 10, 64)
	if err != nil || id <= 0 {
		s.respondError(w, http.StatusBadRequest, "Invalid category ID")
		return
	}

	switch r.Method {
	case http.MethodGet:
		s.handleGetCategory(w, r, id)
	case http.MethodPut:
		s.handleUpdateCategory(w, r, id)
	case http.MethodDelete:
		s.handleDeleteCategory(w, r, id)
	default:
		s.respondError(w, http.StatusMethodNotAllowed, "Method not allowed")
	}
}

func (s *Server) handleGetCategory(w http.ResponseWriter, r *http.Request, id int64) {
	cat, err := s.store.CategoryByID(r.Context(), id)
	if errors.Is(err, storage.ErrNotFound) {
		s.respondError(w, http.StatusNotFound, fmt.Sprintf("Category %d not found", id))
		return
	}
	if err != nil {
		s.log.Error().Err(err).Msgf("httpapi: failed to get category %d", id)
		s.respondError(w, http.StatusInternalServerError, "Failed to retrieve category")
		return
	}
	s.respondJSON(w, http.StatusOK, categoryDTO(*cat))
}

func (s *Server) handleUpdateCategory(w http.ResponseWriter, r *http.Request, id int64) {
	var req CategoryRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.respondError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	existing, err := s.store.CategoryByID(r.Context(), id)
	if errors.Is(err, storage.ErrNotFound) {
		s.respondError(w, http.StatusNotFound, fmt.Sprintf("Category %d not found", id))
		return
	}
	if err != nil {
		s.log.Error().Err(err).Msgf("httpapi: failed to load category %d", id)
		s.respondError(w, http.StatusInternalServerError, "Failed to update category")
		return
	}

	cat := *existing
	if req.Name != "" {
		cat.Name = req.Name
	}
	if req.Words != nil {
		cat.Words = req.Words
	}
	if req.IsActive != nil {
		cat.IsActive = *req.IsActive
	}

	invalidated, err := s.store.UpdateCategory(r.Context(), &cat)
	if err != nil {
		s.log.Error().Err(err).Msgf("httpapi: failed to update category %d", id)
		s.respondError(w, http.StatusInternalServerError, "Failed to update category")
		return
	}

	updated, err := s.store.CategoryByID(r.Context(), id)
	if err != nil {
		s.log.Error().Err(err).Msgf("httpapi: failed to reload category %d", id)
		s.respondError(w, http.StatusInternalServerError, "Failed to update category")
		return
	}

	s.respondJSON(w, http.StatusOK, UpdateCategoryResponse{
		Category:    categoryDTO(*updated),
		Invalidated: invalidated,
	})
}

func (s *Server) handleDeleteCategory(w http.ResponseWriter, r *http.Request, id int64) {
	err := s.store.DeleteCategory(r.Context(), id)
	if errors.Is(err, storage.ErrNotFound) {
		s.respondError(w, http.StatusNotFound, fmt.Sprintf("Category %d not found", id))
		return
	}
	if err != nil {
		s.log.Error().Err(err).Msgf("httpapi: failed to delete category %d", id)
		s.respondError(w, http.StatusInternalServerError, "Failed to delete category")
		return
	}

	s.log.Info().Msgf("httpapi: deleted category %d", id)
	s.respondJSON(w, http.StatusOK, map[string]any{
		"message": "Category deleted",
		"id":      id,
	})
}

// handleMonitoringStart handles POST /api/monitoring/start.
func (s *Server) handleMonitoringStart(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		s.respondError(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}
	userID, err := s.userScope(r)
	if err != nil {
		s.respondError(w, http.StatusBadRequest, "Invalid user header")
		return
	}

	var req StartMonitoringRequest
	if r.Body != nil && r.ContentLength != 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			s.respondError(w, http.StatusBadRequest, "Invalid request body")
			return
		}
	}

	status, err := s.sessions.Start(userID, req.Settings)
	if errors.Is(err, monitor.ErrAlreadyRunning) {
		s.respondError(w, http.StatusConflict, "Monitoring already running for this user")
		return
	}
	if err != nil {
		s.respondError(w, http.StatusBadRequest, err.Error())
		return
	}

	s.respondJSON(w, http.StatusCreated, status)
}

// handleMonitoringStop handles POST /api/monitoring/stop.
func (s *Server) handleMonitoringStop(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		s.respondError(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}
	userID, err := s.userScope(r)
	if err != nil {
		s.respondError(w, http.StatusBadRequest, "Invalid user header")
		return
	}

	var req StopMonitoringRequest
	if r.Body != nil && r.ContentLength != 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			s.respondError(w, http.StatusBadRequest, "Invalid request body")
			return
		}
	}

	sessionID := req.SessionID
	if sessionID == "" {
		status, ok := s.sessions.StatusFor(userID)
		if !ok {
			s.respondError(w, http.StatusNotFound, "No monitoring session for this user")
			return
		}
		sessionID = status.ID
	}

	if err := s.sessions.Stop(sessionID); err != nil {
		if errors.Is(err, monitor.ErrSessionNotFound) {
			s.respondError(w, http.StatusNotFound, "Monitoring session not found")
			return
		}
		s.log.Error().Err(err).Msgf("httpapi: failed to stop session %s", sessionID)
		s.respondError(w, http.StatusInternalServerError, "Failed to stop monitoring")
		return
	}

	s.respondJSON(w, http.StatusOK, map[string]string{
		"message":   "Monitoring stopped",
		"sessionId": sessionID,
	})
}

// handleMonitoringStatus handles GET /api/monitoring/status.
func (s *Server) handleMonitoringStatus(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		s.respondError(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}
	sessions := s.sessions.Status()
	s.respondJSON(w, http.StatusOK, map[string]any{
		"sessions": sessions,
		"count":    len(sessions),
	})
}

// handleSongSearch handles GET /api/songs/search?q=...
func (s *Server) handleSongSearch(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		s.respondError(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}
	query := r.URL.Query().Get("q")
	if query == "" {
		s.respondError(w, http.StatusBadRequest, "q parameter is required")
		return
	}

	songs, err := s.store.SearchSongs(r.Context(), query)
	if err != nil {
		s.log.Error().Err(err).Msg("httpapi: song search failed")
		s.respondError(w, http.StatusInternalServerError, "Failed to search songs")
		return
	}

	dtos := make([]SongDTO, len(songs))
	for i, sng := range songs {
		dtos[i] = songDTO(sng)
	}
	s.respondJSON(w, http.StatusOK, ListSongsResponse{Songs: dtos, Count: len(dtos)})
}

// handleContaminated handles GET /api/songs/contaminated.
func (s *Server) handleContaminated(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		s.respondError(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}
	userID, err := s.userScope(r)
	if err != nil {
		s.respondError(w, http.StatusBadRequest, "Invalid user header")
		return
	}

	songs, err := s.store.ContaminatedSongs(r.Context(), userID)
	if err != nil {
		s.log.Error().Err(err).Msg("httpapi: failed to list contaminated songs")
		s.respondError(w, http.StatusInternalServerError, "Failed to retrieve songs")
		return
	}

	dtos := make([]SongDTO, len(songs))
	for i, sng := range songs {
		dtos[i] = songDTO(sng)
	}
	s.respondJSON(w, http.StatusOK, ListSongsResponse{Songs: dtos, Count: len(dtos)})
}

// handleSong routes /api/songs/{id} and its subresources.
func (s *Server) handleSong(w http.ResponseWriter, r *http.Request) {
	rest := strings.TrimPrefix(r.URL.Path, "/api/songs/")
	idStr, sub, _ := strings.Cut(rest, "/")
	id, err := strconv.ParseInt(idStr, 10, 64)
	if err != nil || id <= 0 {
		s.respondError(w, http.StatusBadRequest, "Invalid song ID")
		return
	}

	switch {
	case sub == "" && r.Method == http.MethodGet:
		s.handleGetSong(w, r, id)
	case sub == "triggers" && r.Method == http.MethodGet:
		s.handleSongTriggers(w, r, id)
	case sub == "scan" && r.Method == http.MethodPost:
		s.handleScanSong(w, r, id)
	default:
		s.respondError(w, http.StatusMethodNotAllowed, "Method not allowed")
	}
}

func (s *Server) handleGetSong(w http.ResponseWriter, r *http.Request, id int64) {
	sng, err := s.store.SongByID(r.Context(), id)
	if errors.Is(err, storage.ErrNotFound) {
		s.respondError(w, http.StatusNotFound, fmt.Sprintf("Song %d not found", id))
		return
	}
	if err != nil {
		s.log.Error().Err(err).Msgf("httpapi: failed to get song %d", id)
		s.respondError(w, http.StatusInternalServerError, "Failed to retrieve song")
		return
	}
	s.respondJSON(w, http.StatusOK, songDTO(*sng))
}

// handleSongTriggers handles GET /api/songs/{id}/triggers. The merge
// tolerance can be overridden per request, taking effect immediately
// because windows are always computed at read time.
func (s *Server) handleSongTriggers(w http.ResponseWriter, r *http.Request, id int64) {
	userID, err := s.userScope(r)
	if err != nil {
		s.respondError(w, http.StatusBadRequest, "Invalid user header")
		return
	}

	gapMs := s.cfg.GapToleranceMs
	if raw := r.URL.Query().Get("gap_tolerance_ms"); raw != "" {
		gapMs, err = strconv.ParseInt(raw, 10, 64)
		if err != nil || gapMs < 0 {
			s.respondError(w, http.StatusBadRequest, "Invalid gap_tolerance_ms")
			return
		}
	}

	var categoryIDs []int64
	for _, raw := range r.URL.Query()["category_id"] {
		cid, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			s.respondError(w, http.StatusBadRequest, "Invalid category_id")
			return
		}
		categoryIDs = append(categoryIDs, cid)
	}

	sng, err := s.store.SongByID(r.Context(), id)
	if errors.Is(err, storage.ErrNotFound) {
		s.respondError(w, http.StatusNotFound, fmt.Sprintf("Song %d not found", id))
		return
	}
	if err != nil {
		s.log.Error().Err(err).Msgf("httpapi: failed to get song %d", id)
		s.respondError(w, http.StatusInternalServerError, "Failed to retrieve song")
		return
	}

	occs, err := s.store.OccurrencesForSong(r.Context(), id, userID, categoryIDs)
	if err != nil {
		s.log.Error().Err(err).Msgf("httpapi: failed to load occurrences for song %d", id)
		s.respondError(w, http.StatusInternalServerError, "Failed to retrieve triggers")
		return
	}

	dtos := make([]OccurrenceDTO, len(occs))
	for i, o := range occs {
		dtos[i] = OccurrenceDTO{
			ID:          o.ID,
			CategoryID:  o.CategoryID,
			Word:        o.Word,
			StartTimeMs: o.StartTimeMs,
			EndTimeMs:   o.EndTimeMs,
		}
	}

	s.respondJSON(w, http.StatusOK, SongTriggersResponse{
		SongID:         id,
		ScanStatus:     sng.ScanStatus.String(),
		GapToleranceMs: gapMs,
		Windows:        trigger.MergeOccurrences(occs, gapMs),
		Occurrences:    dtos,
	})
}

// handleScanSong handles POST /api/songs/{id}/scan.
func (s *Server) handleScanSong(w http.ResponseWriter, r *http.Request, id int64) {
	userID, err := s.userScope(r)
	if err != nil {
		s.respondError(w, http.StatusBadRequest, "Invalid user header")
		return
	}
	force := r.URL.Query().Get("force") == "true"

	status, err := s.scanner.ScanSong(r.Context(), id, userID, force)
	if errors.Is(err, storage.ErrNotFound) {
		s.respondError(w, http.StatusNotFound, fmt.Sprintf("Song %d not found", id))
		return
	}
	if err != nil {
		s.log.Error().Err(err).Msgf("httpapi: scan failed for song %d", id)
		s.respondError(w, http.StatusBadGateway, "Scan failed, try again later")
		return
	}

	s.respondJSON(w, http.StatusOK, ScanResponse{SongID: id, ScanStatus: status.String()})
}
