package storage

import (
	"encoding/json"
	"time"

	"github.com/arieluchka/spotify-ocd-saver/internal/domain/song"
	"github.com/arieluchka/spotify-ocd-saver/internal/domain/trigger"
)

// Song is the songs table row.
type Song struct {
	ID            int64  `gorm:"primaryKey;autoIncrement"`
	Title         string `gorm:"not null"`
	Artist        string `gorm:"not null"`
	Album         string
	DurationMs    int64
	SpotifyID     string `gorm:"uniqueIndex;not null"`
	ISRC          string
	LRCLibID      string
	PlainLRCLibID string
	ScanStatus    int `gorm:"not null;default:0;index"`
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// TriggerCategory is the trigger_categories table row. Words are held
// as a JSON array string.
type TriggerCategory struct {
	ID        int64  `gorm:"primaryKey;autoIncrement"`
	Name      string `gorm:"not null;uniqueIndex:idx_category_name_owner,priority:1"`
	Words     string `gorm:"not null;default:'[]'"`
	UserID    *int64 `gorm:"uniqueIndex:idx_category_name_owner,priority:2"`
	IsActive  bool   `gorm:"not null;default:true"`
	CreatedAt time.Time
	UpdatedAt time.Time
}

// TriggerOccurrence is the trigger_occurrences table row. The unique
// index is the idempotency key for occurrence inserts: a rescan of the
// same line can never produce a second row.
type TriggerOccurrence struct {
	ID          int64 `gorm:"primaryKey;autoIncrement"`
	SongID      int64 `gorm:"not null;uniqueIndex:idx_occurrence_key,priority:1;index"`
	CategoryID  int64 `gorm:"not null;uniqueIndex:idx_occurrence_key,priority:2;index"`
	UserID      *int64
	Word        string `gorm:"not null;uniqueIndex:idx_occurrence_key,priority:3"`
	StartTimeMs int64  `gorm:"not null;uniqueIndex:idx_occurrence_key,priority:4"`
	EndTimeMs   int64  `gorm:"not null"`
	CreatedAt   time.Time

	Song     Song            `gorm:"constraint:OnDelete:CASCADE"`
	Category TriggerCategory `gorm:"constraint:OnDelete:CASCADE"`
}

func (s *Song) toDomain() *song.Song {
	return &song.Song{
		ID:            s.ID,
		Title:         s.Title,
		Artist:        s.Artist,
		Album:         s.Album,
		DurationMs:    s.DurationMs,
		SpotifyID:     s.SpotifyID,
		ISRC:          s.ISRC,
		LRCLibID:      s.LRCLibID,
		PlainLRCLibID: s.PlainLRCLibID,
		ScanStatus:    song.ScanStatus(s.ScanStatus),
		CreatedAt:     s.CreatedAt,
		UpdatedAt:     s.UpdatedAt,
	}
}

func (c *TriggerCategory) toDomain() (*trigger.Category, error) {
	var words []string
	if c.Words != "" {
		if err := json.Unmarshal([]byte(c.Words), &words); err != nil {
			return nil, err
		}
	}
	return &trigger.Category{
		ID:        c.ID,
		Name:      c.Name,
		Words:     words,
		UserID:    c.UserID,
		IsActive:  c.IsActive,
		CreatedAt: c.CreatedAt,
		UpdatedAt: c.UpdatedAt,
	}, nil
}

func (o *TriggerOccurrence) toDomain() trigger.Occurrence {
	return trigger.Occurrence{
		ID:          o.ID,
		CategoryID:  o.CategoryID,
		SongID:      o.SongID,
		UserID:      o.UserID,
		Word:        o.Word,
		StartTimeMs: o.StartTimeMs,
		EndTimeMs:   o.EndTimeMs,
		CreatedAt:   o.CreatedAt,
	}
}

func encodeWords(words []string) (string, error) {
	if words == nil {
		words = []string{}
	}
	data, err := json.Marshal(words)
	if err != nil {
		return "", err
	}
	return string(data), nil
}
