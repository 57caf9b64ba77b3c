package httpapi

import (
	"time"

	"github.com/arieluchka/spotify-ocd-saver/internal/domain/song"
	"github.com/arieluchka/spotify-ocd-saver/internal/domain/trigger"
)

// ErrorResponse is the uniform error payload.
type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message"`
	Code    int    `json:"code"`
}

// CategoryDTO is the wire representation of a trigger category.
type CategoryDTO struct {
	ID        int64     `json:"id"`
	Name      string    `json:"name"`
	Words     []string  `json:"words"`
	UserID    *int64    `json:"userId,omitempty"`
	IsActive  bool      `json:"isActive"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

func categoryDTO(c trigger.Category) CategoryDTO {
	return CategoryDTO{
		ID:        c.ID,
		Name:      c.Name,
		Words:     c.Words,
		UserID:    c.UserID,
		IsActive:  c.IsActive,
		CreatedAt: c.CreatedAt,
		UpdatedAt: c.UpdatedAt,
	}
}

// CategoryRequest is the create/update payload for a category.
type CategoryRequest struct {
	Name     string   `json:"name"`
	Words    []string `json:"words"`
	IsActive *bool    `json:"isActive,omitempty"`
}

// ListCategoriesResponse wraps a category listing.
type ListCategoriesResponse struct {
	Categories []CategoryDTO `json:"categories"`
	Count      int           `json:"count"`
}

// UpdateCategoryResponse reports a category update and whether the
// word change invalidated existing occurrences.
type UpdateCategoryResponse struct {
	Category    CategoryDTO `json:"category"`
	Invalidated bool        `json:"invalidated"`
}

// SongDTO is the wire representation of a song.
type SongDTO struct {
	ID         int64  `json:"id"`
	Title      string `json:"title"`
	Artist     string `json:"artist"`
	Album      string `json:"album,omitempty"`
	DurationMs int64  `json:"durationMs"`
	SpotifyID  string `json:"spotifyId"`
	ISRC       string `json:"isrc,omitempty"`
	ScanStatus string `json:"scanStatus"`
}

func songDTO(s song.Song) SongDTO {
	return SongDTO{
		ID:         s.ID,
		Title:      s.Title,
		Artist:     s.Artist,
		Album:      s.Album,
		DurationMs: s.DurationMs,
		SpotifyID:  s.SpotifyID,
		ISRC:       s.ISRC,
		ScanStatus: s.ScanStatus.String(),
	}
}

// ListSongsResponse wraps a song listing.
type ListSongsResponse struct {
	Songs []SongDTO `json:"songs"`
	Count int       `json:"count"`
}

// OccurrenceDTO is the wire representation of one trigger occurrence.
type OccurrenceDTO struct {
	ID          int64  `json:"id"`
	CategoryID  int64  `json:"categoryId"`
	Word        string `json:"word"`
	StartTimeMs int64  `json:"startTimeMs"`
	EndTimeMs   int64  `json:"endTimeMs"`
}

// SongTriggersResponse carries a song's merged skip windows together
// with the raw occurrences they were computed from.
type SongTriggersResponse struct {
	SongID         int64            `json:"songId"`
	ScanStatus     string           `json:"scanStatus"`
	GapToleranceMs int64            `json:"gapToleranceMs"`
	Windows        []trigger.Window `json:"windows"`
	Occurrences    []OccurrenceDTO  `json:"occurrences"`
}

// ScanResponse reports a manual scan outcome.
type ScanResponse struct {
	SongID     int64  `json:"songId"`
	ScanStatus string `json:"scanStatus"`
}

// StartMonitoringRequest carries optional policy overrides applied on
// top of the configured defaults.
type StartMonitoringRequest struct {
	Settings map[string]any `json:"settings,omitempty"`
}

// StopMonitoringRequest identifies the session to stop. When the id
// is empty the caller's own scope session is stopped.
type StopMonitoringRequest struct {
	SessionID string `json:"sessionId,omitempty"`
}

// StatsResponse is the dashboard stats payload.
type StatsResponse struct {
	Songs             int64 `json:"songs"`
	Occurrences       int64 `json:"occurrences"`
	ContaminatedSongs int   `json:"contaminatedSongs"`
	ActiveSessions    int   `json:"activeSessions"`
}
